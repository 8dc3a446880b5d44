package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contract is an agreement between the provider and an operator
type Contract struct {
	ID         int64      `json:"id"`
	Number     string     `json:"number"`
	OperatorID string     `json:"operator_id"`
	Status     string     `json:"status"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    time.Time  `json:"end_date"`
}

// ActiveAt reports whether the contract can be used as a reference at t
func (c *Contract) ActiveAt(t time.Time) bool {
	if c.Status != ContractActive {
		return false
	}
	if c.StartDate != nil && c.StartDate.After(t) {
		return false
	}
	return !c.EndDate.Before(t)
}

// ContractItem is the negotiated terms for one procedure code
type ContractItem struct {
	ID                    int64               `json:"id"`
	ContractID            int64               `json:"contract_id"`
	Code                  string              `json:"code"`
	ContractedPrice       decimal.Decimal     `json:"contracted_price"`
	InPackage             bool                `json:"in_package"`
	RequiresAuthorization bool                `json:"requires_authorization"`
	MaxQuantity           decimal.NullDecimal `json:"max_quantity"`
	Notes                 string              `json:"notes,omitempty"`
}

// ReferencePrice is a fee-schedule price for a code, optionally bounded in time
type ReferencePrice struct {
	ID        int64           `json:"id"`
	Table     string          `json:"table"`
	Code      string          `json:"code"`
	Price     decimal.Decimal `json:"price"`
	ValidFrom *time.Time      `json:"valid_from,omitempty"`
	ValidTo   *time.Time      `json:"valid_to,omitempty"`
}

// ValidAt reports whether the price applies at t. Open bounds always match.
func (r *ReferencePrice) ValidAt(t time.Time) bool {
	if r.ValidFrom != nil && r.ValidFrom.After(t) {
		return false
	}
	return r.ValidTo == nil || !r.ValidTo.Before(t)
}

// SizeClassification is the registered size class of a procedure code
type SizeClassification struct {
	Code        string `json:"code"`
	SizeClass   string `json:"size_class"`
	Description string `json:"description,omitempty"`
}

package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is an immutable record of the financial effect of one decision
type LedgerEntry struct {
	ID                   string              `json:"id"`
	GuideID              int64               `json:"guide_id" validate:"gt=0"`
	GuideNumber          string              `json:"guide_number"`
	ProcedureID          int64               `json:"procedure_id" validate:"gt=0"`
	ProcedureCode        string              `json:"procedure_code"`
	ProcedureDescription string              `json:"procedure_description"`
	BeneficiaryCard      string              `json:"beneficiary_card"`
	OperatorID           string              `json:"operator_id"`
	OperatorName         string              `json:"operator_name"`
	ApportionmentType    string              `json:"apportionment_type"`
	OriginalValue        decimal.Decimal     `json:"original_value"`
	OriginalQuantity     decimal.Decimal     `json:"original_quantity"`
	ContractedValue      decimal.NullDecimal `json:"contracted_value"`
	MaxQuantity          decimal.NullDecimal `json:"max_quantity"`
	ApprovedValue        decimal.Decimal     `json:"approved_value"`
	ApprovedQuantity     decimal.NullDecimal `json:"approved_quantity"`
	Economy              decimal.NullDecimal `json:"economy"`
	Decision             Decision            `json:"decision" validate:"required,oneof=APPROVED REJECTED PARTIALLY_APPROVED"`
	AuditorID            string              `json:"auditor_id" validate:"required"`
	AuditorName          string              `json:"auditor_name"`
	Notes                string              `json:"notes"`
	ValueSource          string              `json:"value_source"`
	DecidedAt            time.Time           `json:"decided_at"`
	CreatedAt            time.Time           `json:"created_at"`
}

// EconomyValue returns the recorded economy, or original minus approved when none was recorded
func (e *LedgerEntry) EconomyValue() decimal.Decimal {
	if e.Economy.Valid {
		return e.Economy.Decimal
	}
	return e.OriginalValue.Sub(e.ApprovedValue)
}

// LedgerFilter narrows ledger reads. Zero values mean "no bound".
// Date bounds are inclusive.
type LedgerFilter struct {
	From       *time.Time
	To         *time.Time
	OperatorID string
	Decisions  []Decision
}

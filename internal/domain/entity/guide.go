package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Guide is a billing claim submitted by a provider to an operator
type Guide struct {
	ID               int64           `json:"id"`
	Number           string          `json:"number"`
	OperatorID       string          `json:"operator_id"`
	OperatorName     string          `json:"operator_name"`
	BeneficiaryCard  string          `json:"beneficiary_card"`
	ProceduresTotal  decimal.Decimal `json:"procedures_total"`
	DailiesTotal     decimal.Decimal `json:"dailies_total"`
	RentalsTotal     decimal.Decimal `json:"rentals_total"`
	MaterialsTotal   decimal.Decimal `json:"materials_total"`
	MedicationsTotal decimal.Decimal `json:"medications_total"`
	DevicesTotal     decimal.Decimal `json:"devices_total"`
	GasesTotal       decimal.Decimal `json:"gases_total"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Recompute sets ProceduresTotal from the effective totals of procs and
// rebuilds GrandTotal from it plus the non-procedure subtotals.
func (g *Guide) Recompute(procs []*Procedure) {
	sum := decimal.Zero
	for _, p := range procs {
		sum = sum.Add(p.EffectiveTotal())
	}
	g.ProceduresTotal = sum
	g.GrandTotal = sum.
		Add(g.DailiesTotal).
		Add(g.RentalsTotal).
		Add(g.MaterialsTotal).
		Add(g.MedicationsTotal).
		Add(g.DevicesTotal).
		Add(g.GasesTotal)
}

// Procedure is one billed line item of a guide
type Procedure struct {
	ID                int64               `json:"id"`
	GuideID           int64               `json:"guide_id"`
	Sequence          int                 `json:"sequence"`
	Code              string              `json:"code"`
	Description       string              `json:"description"`
	ExpenseCode       string              `json:"expense_code"`
	UnitPrice         decimal.Decimal     `json:"unit_price"`
	Quantity          decimal.Decimal     `json:"quantity"`
	TotalValue        decimal.Decimal     `json:"total_value"`
	ApprovedUnitPrice decimal.NullDecimal `json:"approved_unit_price"`
	ApprovedQuantity  decimal.NullDecimal `json:"approved_quantity"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// BilledQuantity returns the billed quantity, treating zero as one
func (p *Procedure) BilledQuantity() decimal.Decimal {
	if p.Quantity.IsPositive() {
		return p.Quantity
	}
	return decimal.NewFromInt(1)
}

// EffectiveTotal is the approved amount when one was recorded, otherwise the billed total
func (p *Procedure) EffectiveTotal() decimal.Decimal {
	if !p.ApprovedUnitPrice.Valid {
		return p.TotalValue
	}
	qty := p.BilledQuantity()
	if p.ApprovedQuantity.Valid {
		qty = p.ApprovedQuantity.Decimal
	}
	return p.ApprovedUnitPrice.Decimal.Mul(qty).Round(2)
}

// ProcedureStatus is the current decision state of a procedure
type ProcedureStatus struct {
	GuideID     int64          `json:"guide_id"`
	ProcedureID int64          `json:"procedure_id"`
	State       ProcedureState `json:"state"`
	AuditorID   string         `json:"auditor_id"`
	Notes       string         `json:"notes"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

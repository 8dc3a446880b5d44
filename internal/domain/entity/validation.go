package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValidationSnapshot is the persisted result of one check for one procedure.
// There is at most one per (GuideID, ProcedureID, Kind); re-running a check overwrites it.
type ValidationSnapshot struct {
	ID                int64               `json:"id"`
	GuideID           int64               `json:"guide_id"`
	ProcedureID       int64               `json:"procedure_id"`
	Kind              CheckKind           `json:"kind"`
	Status            CheckStatus         `json:"status"`
	Message           string              `json:"message"`
	ExpectedValue     decimal.NullDecimal `json:"expected_value"`
	FoundValue        decimal.NullDecimal `json:"found_value"`
	Difference        decimal.NullDecimal `json:"difference"`
	ExpectedSizeClass string              `json:"expected_size_class,omitempty"`
	FoundSizeClass    string              `json:"found_size_class,omitempty"`
	ValueSource       string              `json:"value_source,omitempty"`
	Details           map[string]any      `json:"details,omitempty"`
	AuditorID         string              `json:"auditor_id,omitempty"`
	Notes             string              `json:"notes,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// CheckResult is the in-memory outcome of one check
type CheckResult struct {
	Kind              CheckKind           `json:"kind"`
	IsValid           bool                `json:"is_valid"`
	Status            CheckStatus         `json:"status"`
	Message           string              `json:"message"`
	ExpectedValue     decimal.NullDecimal `json:"expected_value"`
	FoundValue        decimal.NullDecimal `json:"found_value"`
	Difference        decimal.NullDecimal `json:"difference"`
	DifferencePercent decimal.NullDecimal `json:"difference_percent"`
	ExpectedSizeClass string              `json:"expected_size_class,omitempty"`
	FoundSizeClass    string              `json:"found_size_class,omitempty"`
	ValueSource       string              `json:"value_source,omitempty"`
	Details           map[string]any      `json:"details,omitempty"`
}

// Snapshot converts the result into the row persisted for (guideID, procedureID)
func (r *CheckResult) Snapshot(guideID, procedureID int64) *ValidationSnapshot {
	return &ValidationSnapshot{
		GuideID:           guideID,
		ProcedureID:       procedureID,
		Kind:              r.Kind,
		Status:            r.Status,
		Message:           r.Message,
		ExpectedValue:     r.ExpectedValue,
		FoundValue:        r.FoundValue,
		Difference:        r.Difference,
		ExpectedSizeClass: r.ExpectedSizeClass,
		FoundSizeClass:    r.FoundSizeClass,
		ValueSource:       r.ValueSource,
		Details:           r.Details,
	}
}

// Package savings aggregates ledger entries into the economy views used by
// auditors and operators. Everything here is pure and safe for concurrent use.
package savings

import (
	"sort"

	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// MonthLayout is the bucket key format used by ByMonth
const MonthLayout = "2006-01"

// MonthBucket is the economy of all decisions taken in one calendar month
type MonthBucket struct {
	Month          string          `json:"month"`
	Total          int             `json:"total"`
	Approved       int             `json:"approved"`
	Rejected       int             `json:"rejected"`
	OriginalTotal  decimal.Decimal `json:"original_total"`
	ApprovedTotal  decimal.Decimal `json:"approved_total"`
	EconomyTotal   decimal.Decimal `json:"economy_total"`
	AverageEconomy decimal.Decimal `json:"average_economy"`
}

// OperatorRollup is the economy obtained against one operator
type OperatorRollup struct {
	OperatorID     string          `json:"operator_id"`
	OperatorName   string          `json:"operator_name"`
	Total          int             `json:"total"`
	Approved       int             `json:"approved"`
	EconomyTotal   decimal.Decimal `json:"economy_total"`
	AverageEconomy decimal.Decimal `json:"average_economy"`
	MaxEconomy     decimal.Decimal `json:"max_economy"`
}

// AuditorRollup is the economy produced by one auditor
type AuditorRollup struct {
	AuditorID      string          `json:"auditor_id"`
	AuditorName    string          `json:"auditor_name"`
	Total          int             `json:"total"`
	Approved       int             `json:"approved"`
	EconomyTotal   decimal.Decimal `json:"economy_total"`
	AverageEconomy decimal.Decimal `json:"average_economy"`
	MaxEconomy     decimal.Decimal `json:"max_economy"`
	MinEconomy     decimal.Decimal `json:"min_economy"`
}

// TypeRollup is the economy per divergence (apportionment) type
type TypeRollup struct {
	Type           string          `json:"type"`
	Total          int             `json:"total"`
	Approved       int             `json:"approved"`
	Rejected       int             `json:"rejected"`
	EconomyTotal   decimal.Decimal `json:"economy_total"`
	AverageEconomy decimal.Decimal `json:"average_economy"`
}

// Summary is the overall economy of a set of entries
type Summary struct {
	Total          int             `json:"total"`
	Approved       int             `json:"approved"`
	Rejected       int             `json:"rejected"`
	Partial        int             `json:"partial"`
	OriginalTotal  decimal.Decimal `json:"original_total"`
	ApprovedTotal  decimal.Decimal `json:"approved_total"`
	EconomyTotal   decimal.Decimal `json:"economy_total"`
	AverageEconomy decimal.Decimal `json:"average_economy"`
	MaxEconomy     decimal.Decimal `json:"max_economy"`
	MinEconomy     decimal.Decimal `json:"min_economy"`
	PercentSaved   string          `json:"percent_saved"`
}

// ByMonth buckets entries by the month they were decided in, newest month first.
func ByMonth(entries []entity.LedgerEntry) []MonthBucket {
	index := make(map[string]*MonthBucket)
	for i := range entries {
		e := &entries[i]
		key := e.DecidedAt.Format(MonthLayout)
		b, ok := index[key]
		if !ok {
			b = &MonthBucket{Month: key}
			index[key] = b
		}
		b.Total++
		switch e.Decision {
		case entity.DecisionApproved:
			b.Approved++
		case entity.DecisionRejected:
			b.Rejected++
		}
		b.OriginalTotal = b.OriginalTotal.Add(e.OriginalValue)
		b.ApprovedTotal = b.ApprovedTotal.Add(e.ApprovedValue)
		b.EconomyTotal = b.EconomyTotal.Add(e.EconomyValue())
	}

	out := make([]MonthBucket, 0, len(index))
	for _, b := range index {
		b.AverageEconomy = average(b.EconomyTotal, b.Total)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out
}

// ByOperator groups entries per operator, highest total economy first.
func ByOperator(entries []entity.LedgerEntry) []OperatorRollup {
	type key struct{ id, name string }
	index := make(map[key]*OperatorRollup)
	var order []key
	for i := range entries {
		e := &entries[i]
		k := key{e.OperatorID, e.OperatorName}
		r, ok := index[k]
		if !ok {
			r = &OperatorRollup{OperatorID: e.OperatorID, OperatorName: e.OperatorName}
			index[k] = r
			order = append(order, k)
		}
		econ := e.EconomyValue()
		if r.Total == 0 || econ.GreaterThan(r.MaxEconomy) {
			r.MaxEconomy = econ
		}
		r.Total++
		if e.Decision == entity.DecisionApproved {
			r.Approved++
		}
		r.EconomyTotal = r.EconomyTotal.Add(econ)
	}

	out := make([]OperatorRollup, 0, len(order))
	for _, k := range order {
		r := index[k]
		r.AverageEconomy = average(r.EconomyTotal, r.Total)
		out = append(out, *r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EconomyTotal.GreaterThan(out[j].EconomyTotal) })
	return out
}

// ByAuditor ranks auditors by the economy they produced. Only approved or
// partially approved entries with positive economy are considered, so an
// auditor who only rejected never appears.
func ByAuditor(entries []entity.LedgerEntry) []AuditorRollup {
	type key struct{ id, name string }
	index := make(map[key]*AuditorRollup)
	var order []key
	for i := range entries {
		e := &entries[i]
		econ := e.EconomyValue()
		if !e.Decision.Counts() || !econ.IsPositive() {
			continue
		}
		k := key{e.AuditorID, e.AuditorName}
		r, ok := index[k]
		if !ok {
			r = &AuditorRollup{AuditorID: e.AuditorID, AuditorName: e.AuditorName, MaxEconomy: econ, MinEconomy: econ}
			index[k] = r
			order = append(order, k)
		}
		r.Total++
		if e.Decision == entity.DecisionApproved {
			r.Approved++
		}
		r.EconomyTotal = r.EconomyTotal.Add(econ)
		if econ.GreaterThan(r.MaxEconomy) {
			r.MaxEconomy = econ
		}
		if econ.LessThan(r.MinEconomy) {
			r.MinEconomy = econ
		}
	}

	out := make([]AuditorRollup, 0, len(order))
	for _, k := range order {
		r := index[k]
		r.AverageEconomy = average(r.EconomyTotal, r.Total)
		out = append(out, *r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EconomyTotal.GreaterThan(out[j].EconomyTotal) })
	return out
}

// ByType groups entries per apportionment type, highest total economy first.
func ByType(entries []entity.LedgerEntry) []TypeRollup {
	index := make(map[string]*TypeRollup)
	var order []string
	for i := range entries {
		e := &entries[i]
		r, ok := index[e.ApportionmentType]
		if !ok {
			r = &TypeRollup{Type: e.ApportionmentType}
			index[e.ApportionmentType] = r
			order = append(order, e.ApportionmentType)
		}
		r.Total++
		switch e.Decision {
		case entity.DecisionApproved:
			r.Approved++
		case entity.DecisionRejected:
			r.Rejected++
		}
		r.EconomyTotal = r.EconomyTotal.Add(e.EconomyValue())
	}

	out := make([]TypeRollup, 0, len(order))
	for _, k := range order {
		r := index[k]
		r.AverageEconomy = average(r.EconomyTotal, r.Total)
		out = append(out, *r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EconomyTotal.GreaterThan(out[j].EconomyTotal) })
	return out
}

// Summarize totals entries. PercentSaved is economy over original value with
// two decimals, "0.00" when there is no original value.
func Summarize(entries []entity.LedgerEntry) Summary {
	var s Summary
	for i := range entries {
		e := &entries[i]
		econ := e.EconomyValue()
		if s.Total == 0 {
			s.MaxEconomy, s.MinEconomy = econ, econ
		} else {
			s.MaxEconomy = decimal.Max(s.MaxEconomy, econ)
			s.MinEconomy = decimal.Min(s.MinEconomy, econ)
		}
		s.Total++
		switch e.Decision {
		case entity.DecisionApproved:
			s.Approved++
		case entity.DecisionRejected:
			s.Rejected++
		case entity.DecisionPartiallyApproved:
			s.Partial++
		}
		s.OriginalTotal = s.OriginalTotal.Add(e.OriginalValue)
		s.ApprovedTotal = s.ApprovedTotal.Add(e.ApprovedValue)
		s.EconomyTotal = s.EconomyTotal.Add(econ)
	}
	s.AverageEconomy = average(s.EconomyTotal, s.Total)
	s.PercentSaved = Percent(s.EconomyTotal, s.OriginalTotal)
	return s
}

// Percent renders part/whole*100 with two decimals, "0.00" for a zero whole.
func Percent(part, whole decimal.Decimal) string {
	if whole.IsZero() {
		return "0.00"
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).StringFixed(2)
}

func average(sum decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return sum.DivRound(decimal.NewFromInt(int64(n)), 2)
}

package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/internal/domain/savings"
	"github.com/garyjia/guide-audit/pkg/utils"
	"github.com/shopspring/decimal"
)

// Correction kinds, checked in this order
const (
	CorrectionQuantity  = "QUANTITY"
	CorrectionUnitPrice = "UNIT_PRICE"
	CorrectionTotal     = "TOTAL"
)

const commonCaseLimit = 5

// SavingsReport is the economy obtained in a reporting window
type SavingsReport struct {
	Period         string                `json:"period"`
	Start          time.Time             `json:"start"`
	End            time.Time             `json:"end"`
	TotalDecisions int                   `json:"total_decisions"`
	Corrections    int                   `json:"corrections"`
	OriginalTotal  decimal.Decimal       `json:"original_total"`
	CorrectedTotal decimal.Decimal       `json:"corrected_total"`
	SavingTotal    decimal.Decimal       `json:"saving_total"`
	SavingPercent  string                `json:"saving_percent"`
	ByType         []savings.TypeRollup `json:"by_type"`
}

// AuditorMetric is one auditor's activity in a reporting window
type AuditorMetric struct {
	AuditorID    string `json:"auditor_id"`
	AuditorName  string `json:"auditor_name"`
	Total        int    `json:"total"`
	Approved     int    `json:"approved"`
	ApprovalRate string `json:"approval_rate"`
}

// AuditMetrics summarizes auditor activity in a reporting window
type AuditMetrics struct {
	Period       string          `json:"period"`
	Start        time.Time       `json:"start"`
	End          time.Time       `json:"end"`
	Total        int             `json:"total"`
	Approved     int             `json:"approved"`
	Rejected     int             `json:"rejected"`
	Partial      int             `json:"partial"`
	ApprovalRate string          `json:"approval_rate"`
	AuditedTotal decimal.Decimal `json:"audited_total"`
	ByAuditor    []AuditorMetric `json:"by_auditor"`
}

// CorrectionCase is one recurring change and how often it was made
type CorrectionCase struct {
	Description string `json:"description"`
	Frequency   int    `json:"frequency"`
}

// CorrectionAnalysis groups the corrections of one kind in a reporting window
type CorrectionAnalysis struct {
	Type        string           `json:"type"`
	Count       int              `json:"count"`
	SavingTotal decimal.Decimal  `json:"saving_total"`
	CommonCases []CorrectionCase `json:"common_cases"`
}

// AnalyticsService reports ledger economy over day/week/month/quarter/year windows
type AnalyticsService interface {
	SavingsSummary(ctx context.Context, period string, ref time.Time) (*SavingsReport, error)
	AuditMetrics(ctx context.Context, period string, ref time.Time) (*AuditMetrics, error)
	// CorrectionAnalysis groups corrections by kind. An empty kind means all kinds.
	CorrectionAnalysis(ctx context.Context, kind, period string, ref time.Time) ([]CorrectionAnalysis, error)
}

type analyticsServiceImpl struct {
	ledger LedgerService
	logger Logger
}

// NewAnalyticsService creates a new AnalyticsService
func NewAnalyticsService(ledger LedgerService, logger Logger) AnalyticsService {
	return &analyticsServiceImpl{
		ledger: ledger,
		logger: logger,
	}
}

func (s *analyticsServiceImpl) window(ctx context.Context, period string, ref time.Time) ([]entity.LedgerEntry, time.Time, time.Time, error) {
	start, end, err := savings.Window(period, ref)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	entries, err := s.ledger.Entries(ctx, LedgerQuery{From: &start, To: &end})
	if err != nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("load %s window: %w", period, err)
	}
	return entries, start, end, nil
}

// SavingsSummary counts decisions that changed the paid value and their economy
func (s *analyticsServiceImpl) SavingsSummary(ctx context.Context, period string, ref time.Time) (*SavingsReport, error) {
	entries, start, end, err := s.window(ctx, period, ref)
	if err != nil {
		return nil, err
	}

	report := &SavingsReport{
		Period:         period,
		Start:          start,
		End:            end,
		TotalDecisions: len(entries),
	}

	var corrected []entity.LedgerEntry
	for _, e := range entries {
		if e.EconomyValue().IsZero() {
			continue
		}
		corrected = append(corrected, e)
		report.OriginalTotal = report.OriginalTotal.Add(e.OriginalValue)
		report.CorrectedTotal = report.CorrectedTotal.Add(e.ApprovedValue)
	}
	report.Corrections = len(corrected)
	report.SavingTotal = report.OriginalTotal.Sub(report.CorrectedTotal)
	report.SavingPercent = savings.Percent(report.SavingTotal, report.OriginalTotal)
	report.ByType = savings.ByType(corrected)
	return report, nil
}

// AuditMetrics reports decision counts and approval rates, overall and per auditor
func (s *analyticsServiceImpl) AuditMetrics(ctx context.Context, period string, ref time.Time) (*AuditMetrics, error) {
	entries, start, end, err := s.window(ctx, period, ref)
	if err != nil {
		return nil, err
	}

	summary := savings.Summarize(entries)
	metrics := &AuditMetrics{
		Period:       period,
		Start:        start,
		End:          end,
		Total:        summary.Total,
		Approved:     summary.Approved,
		Rejected:     summary.Rejected,
		Partial:      summary.Partial,
		ApprovalRate: rate(summary.Approved, summary.Total),
		AuditedTotal: summary.OriginalTotal,
	}

	index := make(map[string]*AuditorMetric)
	for _, e := range entries {
		m, ok := index[e.AuditorID]
		if !ok {
			m = &AuditorMetric{AuditorID: e.AuditorID, AuditorName: e.AuditorName}
			index[e.AuditorID] = m
		}
		m.Total++
		if e.Decision == entity.DecisionApproved {
			m.Approved++
		}
	}
	for _, m := range index {
		m.ApprovalRate = rate(m.Approved, m.Total)
		metrics.ByAuditor = append(metrics.ByAuditor, *m)
	}
	sort.Slice(metrics.ByAuditor, func(i, j int) bool {
		if metrics.ByAuditor[i].Total != metrics.ByAuditor[j].Total {
			return metrics.ByAuditor[i].Total > metrics.ByAuditor[j].Total
		}
		return metrics.ByAuditor[i].AuditorID < metrics.ByAuditor[j].AuditorID
	})
	return metrics, nil
}

func (s *analyticsServiceImpl) CorrectionAnalysis(ctx context.Context, kind, period string, ref time.Time) ([]CorrectionAnalysis, error) {
	switch kind {
	case "", CorrectionQuantity, CorrectionUnitPrice, CorrectionTotal:
	default:
		return nil, fmt.Errorf("%w: unknown correction type %q", utils.ErrValidation, kind)
	}
	entries, _, _, err := s.window(ctx, period, ref)
	if err != nil {
		return nil, err
	}

	type group struct {
		analysis CorrectionAnalysis
		cases    map[string]int
	}
	groups := make(map[string]*group)
	for i := range entries {
		c, ok := classifyCorrection(&entries[i])
		if !ok || (kind != "" && c.kind != kind) {
			continue
		}
		g, found := groups[c.kind]
		if !found {
			g = &group{analysis: CorrectionAnalysis{Type: c.kind}, cases: make(map[string]int)}
			groups[c.kind] = g
		}
		g.analysis.Count++
		g.analysis.SavingTotal = g.analysis.SavingTotal.Add(entries[i].EconomyValue())
		g.cases[c.description]++
	}

	out := make([]CorrectionAnalysis, 0, len(groups))
	for _, g := range groups {
		for desc, n := range g.cases {
			g.analysis.CommonCases = append(g.analysis.CommonCases, CorrectionCase{Description: desc, Frequency: n})
		}
		sort.Slice(g.analysis.CommonCases, func(i, j int) bool {
			a, b := g.analysis.CommonCases[i], g.analysis.CommonCases[j]
			if a.Frequency != b.Frequency {
				return a.Frequency > b.Frequency
			}
			return a.Description < b.Description
		})
		if len(g.analysis.CommonCases) > commonCaseLimit {
			g.analysis.CommonCases = g.analysis.CommonCases[:commonCaseLimit]
		}
		out = append(out, g.analysis)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

type correction struct {
	kind        string
	description string
}

// classifyCorrection reports how an approval changed the billed line.
// Entries that kept both quantity and value are not corrections.
func classifyCorrection(e *entity.LedgerEntry) (correction, bool) {
	originalQty := e.OriginalQuantity
	approvedQty := originalQty
	if e.ApprovedQuantity.Valid {
		approvedQty = e.ApprovedQuantity.Decimal
	}
	qtyChanged := !approvedQty.Equal(originalQty)
	valueChanged := !e.ApprovedValue.Equal(e.OriginalValue)
	if !qtyChanged && !valueChanged {
		return correction{}, false
	}

	var parts []string
	if qtyChanged {
		parts = append(parts, fmt.Sprintf("Qty: %s -> %s", originalQty.String(), approvedQty.String()))
	}
	var priceChanged bool
	if originalQty.IsPositive() && approvedQty.IsPositive() {
		originalUnit := e.OriginalValue.Div(originalQty).Round(2)
		approvedUnit := e.ApprovedValue.Div(approvedQty).Round(2)
		if !originalUnit.Equal(approvedUnit) {
			priceChanged = true
			parts = append(parts, fmt.Sprintf("Price: %s -> %s", originalUnit.StringFixed(2), approvedUnit.StringFixed(2)))
		}
	}

	switch {
	case qtyChanged:
		return correction{CorrectionQuantity, strings.Join(parts, ", ")}, true
	case priceChanged:
		return correction{CorrectionUnitPrice, strings.Join(parts, ", ")}, true
	default:
		return correction{CorrectionTotal, fmt.Sprintf("Total: %s -> %s",
			e.OriginalValue.StringFixed(2), e.ApprovedValue.StringFixed(2))}, true
	}
}

func rate(part, whole int) string {
	return savings.Percent(decimal.NewFromInt(int64(part)), decimal.NewFromInt(int64(whole)))
}

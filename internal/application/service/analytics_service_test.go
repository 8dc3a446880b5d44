package service

import (
	"context"
	"testing"
	"time"

	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/internal/domain/savings"
	"github.com/garyjia/guide-audit/pkg/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAnalytics(t *testing.T, svc *services, ref time.Time) {
	t.Helper()
	rows := []struct {
		daysAgo  int
		decision entity.Decision
		kind     string
		original string
		approved string
		auditor  string
	}{
		{0, entity.DecisionApproved, "VALUE", "100", "80", "aud-1"},
		{2, entity.DecisionApproved, "PACKAGE", "50", "50", "aud-1"},
		{5, entity.DecisionRejected, "VALUE", "40", "40", "aud-2"},
		{10, entity.DecisionApproved, "VALUE", "200", "150", "aud-2"},
		{90, entity.DecisionApproved, "VALUE", "999", "1", "aud-1"},
	}
	for _, r := range rows {
		e := newEntry(r.decision, r.original, r.approved)
		e.ApportionmentType = r.kind
		e.AuditorID = r.auditor
		e.DecidedAt = ref.AddDate(0, 0, -r.daysAgo)
		_, err := svc.ledger.Append(context.Background(), &e)
		require.NoError(t, err)
	}
}

func TestAnalyticsService_SavingsSummary(t *testing.T) {
	svc := newServices()
	ref := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	seedAnalytics(t, svc, ref)

	report, err := svc.analytics.SavingsSummary(context.Background(), savings.PeriodMonth, ref)
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalDecisions)
	assert.Equal(t, 2, report.Corrections)
	assert.True(t, report.OriginalTotal.Equal(dec("300")))
	assert.True(t, report.CorrectedTotal.Equal(dec("230")))
	assert.True(t, report.SavingTotal.Equal(dec("70")))
	assert.Equal(t, "23.33", report.SavingPercent)
	require.Len(t, report.ByType, 1)
	assert.Equal(t, "VALUE", report.ByType[0].Type)
	assert.Equal(t, 2, report.ByType[0].Total)

	week, err := svc.analytics.SavingsSummary(context.Background(), savings.PeriodWeek, ref)
	require.NoError(t, err)
	assert.Equal(t, 3, week.TotalDecisions)
	assert.Equal(t, 1, week.Corrections)
}

func TestAnalyticsService_AuditMetrics(t *testing.T) {
	svc := newServices()
	ref := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	seedAnalytics(t, svc, ref)

	metrics, err := svc.analytics.AuditMetrics(context.Background(), savings.PeriodMonth, ref)
	require.NoError(t, err)

	assert.Equal(t, 4, metrics.Total)
	assert.Equal(t, 3, metrics.Approved)
	assert.Equal(t, 1, metrics.Rejected)
	assert.Equal(t, "75.00", metrics.ApprovalRate)
	assert.True(t, metrics.AuditedTotal.Equal(dec("390")))

	require.Len(t, metrics.ByAuditor, 2)
	assert.Equal(t, "aud-1", metrics.ByAuditor[0].AuditorID)
	assert.Equal(t, "100.00", metrics.ByAuditor[0].ApprovalRate)
	assert.Equal(t, "aud-2", metrics.ByAuditor[1].AuditorID)
	assert.Equal(t, "50.00", metrics.ByAuditor[1].ApprovalRate)
}

func TestAnalyticsService_EmptyWindowAndBadPeriod(t *testing.T) {
	svc := newServices()
	ref := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	report, err := svc.analytics.SavingsSummary(context.Background(), savings.PeriodDay, ref)
	require.NoError(t, err)
	assert.Zero(t, report.TotalDecisions)
	assert.Equal(t, "0.00", report.SavingPercent)

	metrics, err := svc.analytics.AuditMetrics(context.Background(), savings.PeriodYear, ref)
	require.NoError(t, err)
	assert.Equal(t, "0.00", metrics.ApprovalRate)
	assert.Empty(t, metrics.ByAuditor)

	_, err = svc.analytics.SavingsSummary(context.Background(), "decade", ref)
	assert.ErrorIs(t, err, savings.ErrInvalidPeriod)
}

func TestClassifyCorrection(t *testing.T) {
	tests := []struct {
		name        string
		original    string
		approved    string
		approvedQty string
		wantOK      bool
		wantKind    string
		wantDesc    string
	}{
		{"unchanged", "100", "100", "", false, "", ""},
		{"unit price", "100", "80", "", true, CorrectionUnitPrice, "Price: 100.00 -> 80.00"},
		{"quantity only", "100", "50", "1", true, CorrectionQuantity, "Qty: 2 -> 1"},
		{"quantity and price", "100", "40", "1", true, CorrectionQuantity, "Qty: 2 -> 1, Price: 50.00 -> 40.00"},
		{"rounding residue", "100.004", "100", "", true, CorrectionTotal, "Total: 100.00 -> 100.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEntry(entity.DecisionApproved, tt.original, tt.approved)
			e.OriginalQuantity = dec("1")
			if tt.approvedQty != "" {
				e.OriginalQuantity = dec("2")
				e.ApprovedQuantity = decimal.NewNullDecimal(dec(tt.approvedQty))
			}

			c, ok := classifyCorrection(&e)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKind, c.kind)
			assert.Equal(t, tt.wantDesc, c.description)
		})
	}
}

func TestAnalyticsService_CorrectionAnalysis(t *testing.T) {
	svc := newServices()
	ctx := context.Background()
	ref := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	seedAnalytics(t, svc, ref)

	halved := newEntry(entity.DecisionPartiallyApproved, "100", "50")
	halved.OriginalQuantity = dec("2")
	halved.ApprovedQuantity = decimal.NewNullDecimal(dec("1"))
	halved.DecidedAt = ref
	_, err := svc.ledger.Append(ctx, &halved)
	require.NoError(t, err)

	t.Run("all kinds", func(t *testing.T) {
		got, err := svc.analytics.CorrectionAnalysis(ctx, "", savings.PeriodMonth, ref)
		require.NoError(t, err)
		require.Len(t, got, 2)

		assert.Equal(t, CorrectionUnitPrice, got[0].Type)
		assert.Equal(t, 2, got[0].Count)
		assert.True(t, got[0].SavingTotal.Equal(dec("70")), got[0].SavingTotal.String())
		require.Len(t, got[0].CommonCases, 2)
		assert.Equal(t, "Price: 100.00 -> 80.00", got[0].CommonCases[0].Description)
		assert.Equal(t, 1, got[0].CommonCases[0].Frequency)

		assert.Equal(t, CorrectionQuantity, got[1].Type)
		assert.Equal(t, 1, got[1].Count)
		assert.True(t, got[1].SavingTotal.Equal(dec("50")))
	})

	t.Run("filtered by kind", func(t *testing.T) {
		got, err := svc.analytics.CorrectionAnalysis(ctx, CorrectionQuantity, savings.PeriodMonth, ref)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, CorrectionQuantity, got[0].Type)
	})

	t.Run("common cases are capped", func(t *testing.T) {
		fresh := newServices()
		for i := 1; i <= 7; i++ {
			e := newEntry(entity.DecisionApproved, "100", decimal.NewFromInt(int64(90-i)).String())
			e.DecidedAt = ref
			_, err := fresh.ledger.Append(ctx, &e)
			require.NoError(t, err)
		}
		got, err := fresh.analytics.CorrectionAnalysis(ctx, "", savings.PeriodDay, ref)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 7, got[0].Count)
		assert.Len(t, got[0].CommonCases, 5)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := svc.analytics.CorrectionAnalysis(ctx, "DISCOUNT", savings.PeriodMonth, ref)
		assert.ErrorIs(t, err, utils.ErrValidation)

		_, err = svc.analytics.CorrectionAnalysis(ctx, "", "decade", ref)
		assert.ErrorIs(t, err, savings.ErrInvalidPeriod)
	})
}

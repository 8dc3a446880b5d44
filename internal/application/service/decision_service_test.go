package service

import (
	"context"
	"testing"

	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedDecisionGuide builds a guide of 450 in procedures plus 50 in materials:
// procedure a is billed 100 against a contracted 80, procedure b has no reference.
func seedDecisionGuide(t *testing.T, svc *services) (*entity.Guide, *entity.Procedure, *entity.Procedure) {
	t.Helper()
	g := svc.store.addGuide(&entity.Guide{
		Number:          "G-1001",
		OperatorID:      "OP1",
		OperatorName:    "Operator One",
		ProceduresTotal: dec("450"),
		MaterialsTotal:  dec("50"),
		GrandTotal:      dec("500"),
	})
	a := svc.store.addProcedure(g.ID, "10101012", "100", "1")
	b := svc.store.addProcedure(g.ID, "20202024", "350", "1")
	c := svc.store.addContract("OP1", "CT-1", entity.ContractActive)
	svc.store.addItem(c.ID, "10101012", "80", true)
	return g, a, b
}

func TestDecisionService_ApproveSettlesAtReference(t *testing.T) {
	svc := newServices()
	ctx := context.Background()
	g, a, _ := seedDecisionGuide(t, svc)

	_, err := svc.validation.EvaluateProcedure(ctx, EvaluationRequest{GuideID: g.ID, ProcedureID: a.ID})
	require.NoError(t, err)

	res, err := svc.decision.Approve(ctx, DecisionRequest{
		GuideID:     g.ID,
		ProcedureID: a.ID,
		AuditorID:   "aud-1",
		AuditorName: "Ana",
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, entity.StateApproved, res.Status)
	assert.True(t, res.OriginalValue.Equal(dec("100")))
	assert.True(t, res.ApprovedValue.Equal(dec("80")))
	assert.True(t, res.Economy.Equal(dec("20")))
	assert.Equal(t, entity.SourceContract, res.ValueSource)
	assert.Equal(t, 1, svc.tx.calls)

	proc := svc.store.procedure(a.ID)
	assert.True(t, proc.EffectiveTotal().Equal(dec("80")))

	guide := svc.store.guide(g.ID)
	assert.True(t, guide.ProceduresTotal.Equal(dec("430")), "procedures total %s", guide.ProceduresTotal)
	assert.True(t, guide.GrandTotal.Equal(dec("480")), "grand total %s", guide.GrandTotal)
	assert.True(t, res.GuideTotal.Decimal.Equal(dec("480")))

	for _, snap := range svc.store.snapshotsOf(g.ID, a.ID) {
		assert.Equal(t, entity.CheckConforming, snap.Status)
		assert.Equal(t, "aud-1", snap.AuditorID)
	}

	entries := svc.store.ledgerOf(a.ID)
	require.Len(t, entries, 3)
	assert.Equal(t, 3, res.LedgerEntries)
	types := map[string]bool{}
	for _, e := range entries {
		types[e.ApportionmentType] = true
		assert.Equal(t, entity.DecisionApproved, e.Decision)
		assert.True(t, e.EconomyValue().Equal(dec("20")))
		assert.Equal(t, "G-1001", e.GuideNumber)
		assert.NotEmpty(t, e.ID)
		if e.ApportionmentType == string(entity.CheckValue) {
			assert.True(t, e.ContractedValue.Decimal.Equal(dec("80")))
		}
	}
	assert.Equal(t, map[string]bool{"VALUE": true, "SIZE_CLASS": true, "PACKAGE": true}, types)

	status, err := svc.decision.GuideStatus(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Approved)
	assert.Equal(t, 1, status.Pending)
}

func TestDecisionService_ApproveWithoutEvaluation(t *testing.T) {
	t.Run("resolved price", func(t *testing.T) {
		svc := newServices()
		g, a, _ := seedDecisionGuide(t, svc)

		res, err := svc.decision.Approve(context.Background(), DecisionRequest{GuideID: g.ID, ProcedureID: a.ID, AuditorID: "aud-1"})
		require.NoError(t, err)
		assert.True(t, res.ApprovedValue.Equal(dec("80")))

		entries := svc.store.ledgerOf(a.ID)
		require.Len(t, entries, 1)
		assert.Equal(t, entity.ApportionmentGeneral, entries[0].ApportionmentType)
	})

	t.Run("no reference keeps billed value", func(t *testing.T) {
		svc := newServices()
		g, _, b := seedDecisionGuide(t, svc)

		res, err := svc.decision.Approve(context.Background(), DecisionRequest{GuideID: g.ID, ProcedureID: b.ID, AuditorID: "aud-1"})
		require.NoError(t, err)
		assert.True(t, res.ApprovedValue.Equal(dec("350")))
		assert.True(t, res.Economy.IsZero())
		assert.Equal(t, entity.SourceBilled, res.ValueSource)
		assert.True(t, svc.store.guide(g.ID).GrandTotal.Equal(dec("500")))
	})
}

func TestDecisionService_RejectRecordsZeroEconomy(t *testing.T) {
	svc := newServices()
	ctx := context.Background()
	g, a, _ := seedDecisionGuide(t, svc)

	_, err := svc.validation.EvaluateProcedure(ctx, EvaluationRequest{GuideID: g.ID, ProcedureID: a.ID})
	require.NoError(t, err)

	res, err := svc.decision.Reject(ctx, DecisionRequest{GuideID: g.ID, ProcedureID: a.ID, AuditorID: "aud-1", Notes: "missing report"})
	require.NoError(t, err)

	assert.Equal(t, entity.StateRejected, res.Status)
	assert.True(t, res.Economy.IsZero())
	assert.True(t, res.ApprovedValue.Equal(dec("100")))
	assert.Zero(t, svc.store.totalsUpdates)

	for _, snap := range svc.store.snapshotsOf(g.ID, a.ID) {
		assert.Equal(t, entity.CheckDivergent, snap.Status)
		assert.Equal(t, "missing report", snap.Notes)
	}
	for _, e := range svc.store.ledgerOf(a.ID) {
		assert.Equal(t, entity.DecisionRejected, e.Decision)
		assert.True(t, e.EconomyValue().IsZero())
		assert.False(t, e.ApprovedQuantity.Valid)
	}
}

func TestDecisionService_LastDecisionWins(t *testing.T) {
	svc := newServices()
	ctx := context.Background()
	g, a, _ := seedDecisionGuide(t, svc)
	req := DecisionRequest{GuideID: g.ID, ProcedureID: a.ID, AuditorID: "aud-1"}

	_, err := svc.decision.Approve(ctx, req)
	require.NoError(t, err)
	_, err = svc.decision.Reject(ctx, req)
	require.NoError(t, err)

	status, err := svc.decision.GuideStatus(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateRejected, status.Procedures[0].State)
	assert.Len(t, svc.store.ledgerOf(a.ID), 2)
}

func TestDecisionService_Errors(t *testing.T) {
	svc := newServices()
	ctx := context.Background()
	g, a, _ := seedDecisionGuide(t, svc)
	other := svc.store.addGuide(&entity.Guide{Number: "G-2"})

	_, err := svc.decision.Approve(ctx, DecisionRequest{GuideID: g.ID, ProcedureID: a.ID})
	assert.ErrorIs(t, err, utils.ErrValidation)

	_, err = svc.decision.Approve(ctx, DecisionRequest{GuideID: other.ID, ProcedureID: a.ID, AuditorID: "aud-1"})
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = svc.decision.Reject(ctx, DecisionRequest{GuideID: g.ID, ProcedureID: 999, AuditorID: "aud-1"})
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.Empty(t, svc.store.ledger)

	svc.store.ledgerErr = errStore
	_, err = svc.decision.Approve(ctx, DecisionRequest{GuideID: g.ID, ProcedureID: a.ID, AuditorID: "aud-1"})
	require.Error(t, err)
	var perr *entity.PersistenceError
	assert.ErrorAs(t, err, &perr)
}

func TestDecisionService_ApproveAll(t *testing.T) {
	svc := newServices()
	ctx := context.Background()
	g, a, b := seedDecisionGuide(t, svc)
	c := svc.store.addProcedure(g.ID, "30303036", "10", "1")
	svc.store.setApprovedErr[c.ID] = errStore

	res, err := svc.decision.ApproveAll(ctx, g.ID, "aud-1", "Ana")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Approved)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, c.ID, res.Failures[0].ProcedureID)

	for _, id := range []int64{a.ID, b.ID} {
		entries := svc.store.ledgerOf(id)
		require.NotEmpty(t, entries)
		assert.Equal(t, BatchApprovalNote, entries[0].Notes)
	}
	assert.Empty(t, svc.store.ledgerOf(c.ID))

	_, err = svc.decision.ApproveAll(ctx, 999, "aud-1", "")
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = svc.decision.ApproveAll(ctx, g.ID, "", "")
	assert.ErrorIs(t, err, utils.ErrValidation)
}

func TestDecisionService_GuideStatusDefaultsToPending(t *testing.T) {
	svc := newServices()
	g, _, _ := seedDecisionGuide(t, svc)

	status, err := svc.decision.GuideStatus(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Total)
	assert.Equal(t, 2, status.Pending)
	for _, p := range status.Procedures {
		assert.Equal(t, entity.StatePending, p.State)
		assert.Nil(t, p.UpdatedAt)
	}

	_, err = svc.decision.GuideStatus(context.Background(), 999)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

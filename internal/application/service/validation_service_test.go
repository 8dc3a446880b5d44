package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceResolver_ContractBeforeTable(t *testing.T) {
	svc := newServices()
	c := svc.store.addContract("OP1", "CT-1", entity.ContractActive)
	svc.store.addItem(c.ID, "10101012", "80", true)
	svc.store.addPrice("10101012", "95")

	ref, err := svc.resolver.ResolvePrice(context.Background(), "10101012", "OP1")
	require.NoError(t, err)
	assert.Equal(t, entity.SourceContract, ref.Source)
	assert.True(t, ref.UnitPrice.Equal(dec("80")))
	assert.Equal(t, "CT-1", ref.ContractNumber)

	ref, err = svc.resolver.ResolvePrice(context.Background(), "10101012", "OP2")
	require.NoError(t, err)
	assert.Equal(t, entity.SourceReferenceTable, ref.Source)
	assert.True(t, ref.UnitPrice.Equal(dec("95")))
}

func TestReferenceResolver_OlderContractListingCode(t *testing.T) {
	svc := newServices()
	older := svc.store.addContract("OP1", "CT-OLD", entity.ContractActive)
	svc.store.addItem(older.ID, "10101012", "80", true)
	newer := svc.store.addContract("OP1", "CT-NEW", entity.ContractActive)
	newer.EndDate = newer.EndDate.AddDate(1, 0, 0)
	svc.store.addItem(newer.ID, "20202020", "10", false)
	svc.store.addPrice("10101012", "95")

	ref, err := svc.resolver.ResolvePrice(context.Background(), "10101012", "OP1")
	require.NoError(t, err)
	assert.Equal(t, entity.SourceContract, ref.Source)
	assert.Equal(t, "CT-OLD", ref.ContractNumber)
	assert.True(t, ref.UnitPrice.Equal(dec("80")))

	pkg, err := svc.resolver.ResolvePackage(context.Background(), "10101012", "OP1")
	require.NoError(t, err)
	assert.Equal(t, "CT-OLD", pkg.ContractNumber)
	assert.True(t, pkg.Itemized)

	pkg, err = svc.resolver.ResolvePackage(context.Background(), "30303030", "OP1")
	require.NoError(t, err)
	assert.Equal(t, "CT-NEW", pkg.ContractNumber)
	assert.False(t, pkg.Itemized)
}

func TestReferenceResolver_InactiveContractIgnored(t *testing.T) {
	svc := newServices()
	c := svc.store.addContract("OP1", "CT-1", entity.ContractInactive)
	svc.store.addItem(c.ID, "10101012", "80", true)

	_, err := svc.resolver.ResolvePrice(context.Background(), "10101012", "OP1")
	assert.ErrorIs(t, err, entity.ErrNoReference)

	_, err = svc.resolver.ResolvePackage(context.Background(), "10101012", "OP1")
	assert.ErrorIs(t, err, entity.ErrNoContract)
}

func TestReferenceResolver_Resolve(t *testing.T) {
	svc := newServices()
	svc.store.addSize("10101012", "3")

	ref, err := svc.resolver.Resolve(context.Background(), "10101012", "OP1")
	require.NoError(t, err)
	assert.Nil(t, ref.Price)
	assert.Nil(t, ref.Package)
	require.NotNil(t, ref.SizeClass)
	assert.Equal(t, "3", ref.SizeClass.SizeClass)

	svc.store.referenceErr = errStore
	_, err = svc.resolver.Resolve(context.Background(), "10101012", "OP1")
	assert.ErrorIs(t, err, errStore)
}

func TestValidationService_ValueCheck(t *testing.T) {
	tests := []struct {
		name       string
		billed     string
		qty        string
		reference  string
		wantStatus entity.CheckStatus
		wantValid  bool
		wantDiff   string
		wantExpect string
	}{
		{"overbilled", "100", "1", "80", entity.CheckDivergent, false, "20", "80"},
		{"underbilled", "70", "1", "80", entity.CheckDivergent, false, "-10", "80"},
		{"scaled by quantity", "160", "2", "80", entity.CheckConforming, true, "0", "160"},
		{"overbilled unit with quantity", "200", "2", "80", entity.CheckDivergent, false, "40", "160"},
		{"within tolerance", "80.005", "1", "80", entity.CheckConforming, true, "0.005", "80"},
		{"zero quantity counts as one", "80", "0", "80", entity.CheckConforming, true, "0", "80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newServices()
			g := svc.store.addGuide(&entity.Guide{Number: "G-1", OperatorID: "OP1"})
			p := svc.store.addProcedure(g.ID, "10101012", tt.billed, tt.qty)
			svc.store.addPrice("10101012", tt.reference)

			res, err := svc.validation.EvaluateProcedure(context.Background(), EvaluationRequest{GuideID: g.ID, ProcedureID: p.ID})
			require.NoError(t, err)

			value := res.Check(entity.CheckValue)
			require.NotNil(t, value)
			assert.Equal(t, tt.wantStatus, value.Status)
			assert.Equal(t, tt.wantValid, value.IsValid)
			require.True(t, value.Difference.Valid)
			assert.True(t, value.Difference.Decimal.Equal(dec(tt.wantDiff)), "difference %s", value.Difference.Decimal)
			require.True(t, value.ExpectedValue.Valid)
			assert.True(t, value.ExpectedValue.Decimal.Equal(dec(tt.wantExpect)), "expected %s", value.ExpectedValue.Decimal)
			assert.Equal(t, entity.SourceReferenceTable, value.ValueSource)
		})
	}
}

func TestValidationService_NoReferenceIsNotPending(t *testing.T) {
	svc := newServices()
	g := svc.store.addGuide(&entity.Guide{Number: "G-1", OperatorID: "OP1"})
	p := svc.store.addProcedure(g.ID, "99999999", "100", "1")
	c := svc.store.addContract("OP1", "CT-1", entity.ContractActive)
	svc.store.addItem(c.ID, "00000000", "1", true)

	res, err := svc.validation.EvaluateProcedure(context.Background(), EvaluationRequest{GuideID: g.ID, ProcedureID: p.ID})
	require.NoError(t, err)

	value := res.Check(entity.CheckValue)
	assert.Equal(t, entity.CheckNoReference, value.Status)
	assert.True(t, value.IsValid)

	size := res.Check(entity.CheckSizeClass)
	assert.Equal(t, entity.CheckNotFound, size.Status)
	assert.True(t, size.IsValid)

	pkg := res.Check(entity.CheckPackage)
	assert.Equal(t, entity.CheckOutOfPackage, pkg.Status)
	assert.False(t, pkg.IsValid)
	assert.Equal(t, true, pkg.Details["requires_authorization"])

	assert.Equal(t, 1, res.TotalPending)
	assert.False(t, res.IsValid)
}

func TestValidationService_SizeClassCheck(t *testing.T) {
	tests := []struct {
		name       string
		registered string
		found      string
		wantStatus entity.CheckStatus
		wantValid  bool
	}{
		{"not registered ignores found class", "", "2", entity.CheckNotFound, true},
		{"no class reported", "3", "", entity.CheckConforming, true},
		{"same class", "3", "3", entity.CheckConforming, true},
		{"different class", "3", "2", entity.CheckDivergent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newServices()
			g := svc.store.addGuide(&entity.Guide{Number: "G-1", OperatorID: "OP1"})
			p := svc.store.addProcedure(g.ID, "10101012", "100", "1")
			if tt.registered != "" {
				svc.store.addSize("10101012", tt.registered)
			}

			res, err := svc.validation.EvaluateProcedure(context.Background(), EvaluationRequest{
				GuideID:        g.ID,
				ProcedureID:    p.ID,
				FoundSizeClass: tt.found,
			})
			require.NoError(t, err)

			size := res.Check(entity.CheckSizeClass)
			assert.Equal(t, tt.wantStatus, size.Status)
			assert.Equal(t, tt.wantValid, size.IsValid)
			assert.Equal(t, tt.registered, size.ExpectedSizeClass)
		})
	}
}

func TestValidationService_PackageCheck(t *testing.T) {
	tests := []struct {
		name       string
		contract   bool
		itemized   bool
		inPackage  bool
		operator   string
		wantStatus entity.CheckStatus
		wantValid  bool
	}{
		{"no contract", false, false, false, "OP1", entity.CheckError, false},
		{"in package", true, true, true, "OP1", entity.CheckInPackage, true},
		{"itemized outside package", true, true, false, "OP1", entity.CheckOutOfPackage, false},
		{"not itemized", true, false, false, "OP1", entity.CheckOutOfPackage, false},
		{"operator override", true, true, true, "OP2", entity.CheckError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newServices()
			g := svc.store.addGuide(&entity.Guide{Number: "G-1", OperatorID: "OP1"})
			p := svc.store.addProcedure(g.ID, "10101012", "100", "1")
			if tt.contract {
				c := svc.store.addContract("OP1", "CT-1", entity.ContractActive)
				if tt.itemized {
					svc.store.addItem(c.ID, "10101012", "100", tt.inPackage)
				}
			}

			res, err := svc.validation.EvaluateProcedure(context.Background(), EvaluationRequest{
				GuideID:     g.ID,
				ProcedureID: p.ID,
				OperatorID:  tt.operator,
			})
			require.NoError(t, err)

			pkg := res.Check(entity.CheckPackage)
			assert.Equal(t, tt.wantStatus, pkg.Status)
			assert.Equal(t, tt.wantValid, pkg.IsValid)
		})
	}
}

func TestValidationService_EvaluationIsIdempotent(t *testing.T) {
	svc := newServices()
	g := svc.store.addGuide(&entity.Guide{Number: "G-1", OperatorID: "OP1"})
	p := svc.store.addProcedure(g.ID, "10101012", "100", "1")
	svc.store.addPrice("10101012", "80")

	req := EvaluationRequest{GuideID: g.ID, ProcedureID: p.ID}
	first, err := svc.validation.EvaluateProcedure(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.validation.EvaluateProcedure(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.TotalPending, second.TotalPending)
	snaps := svc.store.snapshotsOf(g.ID, p.ID)
	assert.Len(t, snaps, len(entity.CheckKinds))
}

func TestValidationService_SnapshotFailureIsSwallowed(t *testing.T) {
	svc := newServices()
	g := svc.store.addGuide(&entity.Guide{Number: "G-1", OperatorID: "OP1"})
	p := svc.store.addProcedure(g.ID, "10101012", "100", "1")
	svc.store.snapshotErr = errStore

	res, err := svc.validation.EvaluateProcedure(context.Background(), EvaluationRequest{GuideID: g.ID, ProcedureID: p.ID})
	require.NoError(t, err)
	assert.Len(t, res.Checks, 3)
	assert.Empty(t, svc.store.snapshotsOf(g.ID, p.ID))
}

func TestValidationService_LookupFailureAborts(t *testing.T) {
	svc := newServices()
	g := svc.store.addGuide(&entity.Guide{Number: "G-1", OperatorID: "OP1"})
	p := svc.store.addProcedure(g.ID, "10101012", "100", "1")
	svc.store.referenceErr = errStore

	_, err := svc.validation.EvaluateProcedure(context.Background(), EvaluationRequest{GuideID: g.ID, ProcedureID: p.ID})
	assert.ErrorIs(t, err, errStore)
}

func TestValidationService_ProcedureOfAnotherGuide(t *testing.T) {
	svc := newServices()
	g1 := svc.store.addGuide(&entity.Guide{Number: "G-1"})
	g2 := svc.store.addGuide(&entity.Guide{Number: "G-2"})
	p := svc.store.addProcedure(g1.ID, "10101012", "100", "1")

	_, err := svc.validation.EvaluateProcedure(context.Background(), EvaluationRequest{GuideID: g2.ID, ProcedureID: p.ID})
	assert.True(t, errors.Is(err, entity.ErrNotFound))
}

func TestValidationService_EvaluateGuide(t *testing.T) {
	t.Run("unknown guide", func(t *testing.T) {
		svc := newServices()
		_, err := svc.validation.EvaluateGuide(context.Background(), 42, "")
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("no procedures", func(t *testing.T) {
		svc := newServices()
		g := svc.store.addGuide(&entity.Guide{Number: "G-1", OperatorID: "OP1"})

		res, err := svc.validation.EvaluateGuide(context.Background(), g.ID, "")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "No procedures found in the guide", res.Message)
		assert.Zero(t, res.Evaluated)
	})

	t.Run("counts conforming and pending", func(t *testing.T) {
		svc := newServices()
		g := svc.store.addGuide(&entity.Guide{Number: "G-1", OperatorID: "OP1"})
		c := svc.store.addContract("OP1", "CT-1", entity.ContractActive)
		svc.store.addItem(c.ID, "10101012", "100", true)
		svc.store.addItem(c.ID, "20202024", "80", true)
		svc.store.addSize("20202024", "4")
		svc.store.addProcedure(g.ID, "10101012", "100", "1")
		svc.store.addProcedure(g.ID, "20202024", "100", "1")

		res, err := svc.validation.EvaluateGuide(context.Background(), g.ID, "")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 2, res.Evaluated)
		assert.Equal(t, 1, res.Conforming)
		assert.Equal(t, 1, res.Pending)
		assert.Equal(t, 1, res.TotalPending)
		assert.Equal(t, "50.00", res.ConformityPercent)

		// no size class is reported per procedure, so a registered class conforms
		size := res.Procedures[1].Check(entity.CheckSizeClass)
		assert.Equal(t, entity.CheckConforming, size.Status)
	})
}

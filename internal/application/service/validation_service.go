package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/guide-audit/internal/application/port"
	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/internal/domain/savings"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultValueTolerance is the absolute difference under which a billed value conforms
var DefaultValueTolerance = decimal.RequireFromString("0.01")

// EvaluationRequest identifies the procedure to evaluate
type EvaluationRequest struct {
	GuideID        int64  `json:"guide_id" validate:"gt=0"`
	ProcedureID    int64  `json:"procedure_id" validate:"gt=0"`
	OperatorID     string `json:"operator_id"`
	FoundSizeClass string `json:"found_size_class"`
}

// EvaluationResult is the outcome of the three checks for one procedure
type EvaluationResult struct {
	GuideID      int64                `json:"guide_id"`
	ProcedureID  int64                `json:"procedure_id"`
	Code         string               `json:"code"`
	Checks       []entity.CheckResult `json:"checks"`
	TotalPending int                  `json:"total_pending"`
	IsValid      bool                 `json:"is_valid"`
}

// Check returns the result of kind, or nil
func (r *EvaluationResult) Check(kind entity.CheckKind) *entity.CheckResult {
	for i := range r.Checks {
		if r.Checks[i].Kind == kind {
			return &r.Checks[i]
		}
	}
	return nil
}

// GuideEvaluationResult is the outcome of evaluating every procedure of a guide
type GuideEvaluationResult struct {
	Success           bool                `json:"success"`
	Message           string              `json:"message,omitempty"`
	GuideID           int64               `json:"guide_id"`
	Evaluated         int                 `json:"evaluated"`
	Conforming        int                 `json:"conforming"`
	Pending           int                 `json:"pending"`
	TotalPending      int                 `json:"total_pending"`
	ConformityPercent string              `json:"conformity_percent"`
	Procedures        []*EvaluationResult `json:"procedures,omitempty"`
}

// ValidationService evaluates procedures against reference data and
// records one snapshot per check.
type ValidationService interface {
	EvaluateProcedure(ctx context.Context, req EvaluationRequest) (*EvaluationResult, error)
	EvaluateGuide(ctx context.Context, guideID int64, operatorID string) (*GuideEvaluationResult, error)
}

type validationServiceImpl struct {
	guideRepo     port.GuideRepository
	procedureRepo port.ProcedureRepository
	snapshotRepo  port.SnapshotRepository
	resolver      ReferenceResolver
	tolerance     decimal.Decimal
	logger        Logger
}

// NewValidationService creates a new ValidationService.
// A non-positive tolerance falls back to DefaultValueTolerance.
func NewValidationService(
	guideRepo port.GuideRepository,
	procedureRepo port.ProcedureRepository,
	snapshotRepo port.SnapshotRepository,
	resolver ReferenceResolver,
	tolerance decimal.Decimal,
	logger Logger,
) ValidationService {
	if !tolerance.IsPositive() {
		tolerance = DefaultValueTolerance
	}
	return &validationServiceImpl{
		guideRepo:     guideRepo,
		procedureRepo: procedureRepo,
		snapshotRepo:  snapshotRepo,
		resolver:      resolver,
		tolerance:     tolerance,
		logger:        logger,
	}
}

// EvaluateProcedure runs the value, size-class and package checks concurrently.
// Snapshot write failures are logged and do not fail the evaluation.
func (s *validationServiceImpl) EvaluateProcedure(ctx context.Context, req EvaluationRequest) (*EvaluationResult, error) {
	proc, err := s.procedureRepo.GetByID(ctx, req.ProcedureID)
	if err != nil {
		return nil, fmt.Errorf("get procedure: %w", err)
	}
	if proc == nil || proc.GuideID != req.GuideID {
		return nil, entity.NewNotFound("procedure", req.ProcedureID)
	}

	operatorID := req.OperatorID
	if operatorID == "" {
		guide, err := s.guideRepo.GetByID(ctx, req.GuideID)
		if err != nil {
			return nil, fmt.Errorf("get guide: %w", err)
		}
		if guide != nil {
			operatorID = guide.OperatorID
		}
	}

	return s.evaluate(ctx, req.GuideID, proc, operatorID, req.FoundSizeClass)
}

func (s *validationServiceImpl) evaluate(ctx context.Context, guideID int64, proc *entity.Procedure, operatorID, foundSize string) (*EvaluationResult, error) {
	checks := make([]entity.CheckResult, len(entity.CheckKinds))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.checkValue(gctx, proc, operatorID)
		if err != nil {
			return err
		}
		checks[0] = *r
		s.persist(gctx, guideID, proc.ID, r)
		return nil
	})
	g.Go(func() error {
		r, err := s.checkSizeClass(gctx, proc, foundSize)
		if err != nil {
			return err
		}
		checks[1] = *r
		s.persist(gctx, guideID, proc.ID, r)
		return nil
	})
	g.Go(func() error {
		r, err := s.checkPackage(gctx, proc, operatorID)
		if err != nil {
			return err
		}
		checks[2] = *r
		s.persist(gctx, guideID, proc.ID, r)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("Procedure evaluation failed", "guide_id", guideID, "procedure_id", proc.ID, "error", err)
		return nil, err
	}

	result := &EvaluationResult{
		GuideID:     guideID,
		ProcedureID: proc.ID,
		Code:        proc.Code,
		Checks:      checks,
	}
	for _, c := range checks {
		if !c.IsValid {
			result.TotalPending++
		}
	}
	result.IsValid = result.TotalPending == 0
	return result, nil
}

func (s *validationServiceImpl) persist(ctx context.Context, guideID, procedureID int64, r *entity.CheckResult) {
	if err := s.snapshotRepo.Upsert(ctx, r.Snapshot(guideID, procedureID)); err != nil {
		s.logger.Error("Failed to save validation snapshot",
			"guide_id", guideID,
			"procedure_id", procedureID,
			"kind", string(r.Kind),
			"error", entity.Persist("validation snapshot", err))
	}
}

// checkValue compares the billed total with reference unit price times billed quantity
func (s *validationServiceImpl) checkValue(ctx context.Context, proc *entity.Procedure, operatorID string) (*entity.CheckResult, error) {
	billed := proc.TotalValue
	result := &entity.CheckResult{
		Kind:       entity.CheckValue,
		FoundValue: decimal.NewNullDecimal(billed),
	}

	ref, err := s.resolver.ResolvePrice(ctx, proc.Code, operatorID)
	if errors.Is(err, entity.ErrNoReference) {
		result.IsValid = true
		result.Status = entity.CheckNoReference
		result.Message = fmt.Sprintf("No contract or reference-table price for code %s", proc.Code)
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	// Reference prices are per unit; the billed value is the line total.
	qty := proc.BilledQuantity()
	expected := ref.UnitPrice.Mul(qty).Round(2)
	diff := billed.Sub(expected)

	result.ExpectedValue = decimal.NewNullDecimal(expected)
	result.Difference = decimal.NewNullDecimal(diff)
	result.ValueSource = ref.Source
	result.Details = map[string]any{
		"unit_price": ref.UnitPrice.String(),
		"quantity":   qty.String(),
	}
	if ref.ContractNumber != "" {
		result.Details["contract_number"] = ref.ContractNumber
	}
	if ref.Table != "" {
		result.Details["table"] = ref.Table
	}
	if !expected.IsZero() {
		pct := diff.Div(expected).Mul(decimal.NewFromInt(100)).Round(2)
		result.DifferencePercent = decimal.NewNullDecimal(pct)
		result.Details["difference_percent"] = pct.StringFixed(2)
	}

	if diff.Abs().LessThan(s.tolerance) {
		result.IsValid = true
		result.Status = entity.CheckConforming
		result.Message = "Billed value matches the reference"
		return result, nil
	}

	result.Status = entity.CheckDivergent
	result.Message = fmt.Sprintf("Billed %s, expected %s (%s)", billed.StringFixed(2), expected.StringFixed(2), ref.Source)
	return result, nil
}

// checkSizeClass compares the size class reported on the claim with the registered one
func (s *validationServiceImpl) checkSizeClass(ctx context.Context, proc *entity.Procedure, found string) (*entity.CheckResult, error) {
	result := &entity.CheckResult{
		Kind:           entity.CheckSizeClass,
		FoundSizeClass: found,
	}

	size, err := s.resolver.ResolveSizeClass(ctx, proc.Code)
	if errors.Is(err, entity.ErrSizeClassNotRegistered) {
		result.IsValid = true
		result.Status = entity.CheckNotFound
		result.Message = fmt.Sprintf("No size class registered for code %s", proc.Code)
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.ExpectedSizeClass = size.SizeClass
	if found == "" || found == size.SizeClass {
		result.IsValid = true
		result.Status = entity.CheckConforming
		result.Message = "Size class matches the registry"
		return result, nil
	}

	result.Status = entity.CheckDivergent
	result.Message = fmt.Sprintf("Size class %s, expected %s", found, size.SizeClass)
	return result, nil
}

// checkPackage verifies the code is covered by the operator's active contract
func (s *validationServiceImpl) checkPackage(ctx context.Context, proc *entity.Procedure, operatorID string) (*entity.CheckResult, error) {
	result := &entity.CheckResult{Kind: entity.CheckPackage}

	ref, err := s.resolver.ResolvePackage(ctx, proc.Code, operatorID)
	if errors.Is(err, entity.ErrNoContract) {
		result.Status = entity.CheckError
		result.Message = "No active contract for the operator"
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.Details = map[string]any{
		"contract_number":        ref.ContractNumber,
		"requires_authorization": ref.RequiresAuthorization,
	}
	if ref.MaxQuantity.Valid {
		result.Details["max_quantity"] = ref.MaxQuantity.Decimal.String()
	}

	switch {
	case !ref.Itemized:
		result.Status = entity.CheckOutOfPackage
		result.Message = fmt.Sprintf("Code %s is not part of contract %s; may be denied", proc.Code, ref.ContractNumber)
		result.Details["requires_authorization"] = true
	case ref.InPackage:
		result.IsValid = true
		result.Status = entity.CheckInPackage
		result.Message = "Procedure is covered by the contract package"
	default:
		result.Status = entity.CheckOutOfPackage
		result.Message = "Procedure is not included in the contract package; may be denied"
	}
	return result, nil
}

// EvaluateGuide evaluates every procedure of the guide in billing order
func (s *validationServiceImpl) EvaluateGuide(ctx context.Context, guideID int64, operatorID string) (*GuideEvaluationResult, error) {
	guide, err := s.guideRepo.GetByID(ctx, guideID)
	if err != nil {
		return nil, fmt.Errorf("get guide: %w", err)
	}
	if guide == nil {
		return nil, entity.NewNotFound("guide", guideID)
	}
	if operatorID == "" {
		operatorID = guide.OperatorID
	}

	procs, err := s.procedureRepo.ListByGuide(ctx, guideID)
	if err != nil {
		return nil, fmt.Errorf("list procedures: %w", err)
	}
	if len(procs) == 0 {
		return &GuideEvaluationResult{
			Success:           false,
			Message:           "No procedures found in the guide",
			GuideID:           guideID,
			ConformityPercent: "0.00",
		}, nil
	}

	out := &GuideEvaluationResult{Success: true, GuideID: guideID}
	for _, proc := range procs {
		r, err := s.evaluate(ctx, guideID, proc, operatorID, "")
		if err != nil {
			return nil, fmt.Errorf("evaluate procedure %d: %w", proc.ID, err)
		}
		out.Procedures = append(out.Procedures, r)
		out.TotalPending += r.TotalPending
		if r.IsValid {
			out.Conforming++
		} else {
			out.Pending++
		}
	}
	out.Evaluated = len(out.Procedures)
	out.ConformityPercent = savings.Percent(decimal.NewFromInt(int64(out.Conforming)), decimal.NewFromInt(int64(out.Evaluated)))

	s.logger.Info("Guide evaluated",
		"guide_id", guideID,
		"procedures", out.Evaluated,
		"total_pending", out.TotalPending)
	return out, nil
}

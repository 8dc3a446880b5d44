package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/guide-audit/internal/application/port"
	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/pkg/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// BatchApprovalNote is recorded on every decision taken by ApproveAll
const BatchApprovalNote = "Batch approval - whole guide"

// DefaultDecisionConcurrency bounds ApproveAll when no limit is configured
const DefaultDecisionConcurrency = 4

// DecisionRequest is an auditor's decision on one procedure
type DecisionRequest struct {
	GuideID     int64  `json:"guide_id" validate:"gt=0"`
	ProcedureID int64  `json:"procedure_id" validate:"gt=0"`
	AuditorID   string `json:"auditor_id" validate:"required"`
	AuditorName string `json:"auditor_name"`
	Notes       string `json:"notes"`
}

// DecisionResult reports the effect of one decision
type DecisionResult struct {
	Success       bool                  `json:"success"`
	GuideID       int64                 `json:"guide_id"`
	ProcedureID   int64                 `json:"procedure_id"`
	Status        entity.ProcedureState `json:"status"`
	Message       string                `json:"message"`
	OriginalValue decimal.Decimal       `json:"original_value"`
	ApprovedValue decimal.Decimal       `json:"approved_value"`
	Economy       decimal.Decimal       `json:"economy"`
	ValueSource   string                `json:"value_source"`
	LedgerEntries int                   `json:"ledger_entries"`
	GuideTotal    decimal.NullDecimal   `json:"guide_total"`
}

// BatchFailure is one procedure ApproveAll could not approve
type BatchFailure struct {
	ProcedureID int64  `json:"procedure_id"`
	Error       string `json:"error"`
}

// BatchResult reports the outcome of ApproveAll
type BatchResult struct {
	GuideID  int64             `json:"guide_id"`
	Total    int               `json:"total"`
	Approved int               `json:"approved"`
	Failed   int               `json:"failed"`
	Results  []*DecisionResult `json:"results"`
	Failures []BatchFailure    `json:"failures,omitempty"`
}

// ProcedureStatusView is the decision state of one procedure
type ProcedureStatusView struct {
	ProcedureID int64                 `json:"procedure_id"`
	Code        string                `json:"code"`
	Description string                `json:"description"`
	State       entity.ProcedureState `json:"state"`
	AuditorID   string                `json:"auditor_id,omitempty"`
	Notes       string                `json:"notes,omitempty"`
	UpdatedAt   *time.Time            `json:"updated_at,omitempty"`
}

// GuideStatusResult counts the decision states of a guide's procedures
type GuideStatusResult struct {
	GuideID    int64                 `json:"guide_id"`
	Total      int                   `json:"total"`
	Approved   int                   `json:"approved"`
	Rejected   int                   `json:"rejected"`
	Pending    int                   `json:"pending"`
	Procedures []ProcedureStatusView `json:"procedures"`
}

// DecisionService records auditor decisions and their financial effect
type DecisionService interface {
	Approve(ctx context.Context, req DecisionRequest) (*DecisionResult, error)
	Reject(ctx context.Context, req DecisionRequest) (*DecisionResult, error)
	ApproveAll(ctx context.Context, guideID int64, auditorID, auditorName string) (*BatchResult, error)
	GuideStatus(ctx context.Context, guideID int64) (*GuideStatusResult, error)
}

type decisionServiceImpl struct {
	guideRepo     port.GuideRepository
	procedureRepo port.ProcedureRepository
	snapshotRepo  port.SnapshotRepository
	statusRepo    port.StatusRepository
	ledger        LedgerService
	resolver      ReferenceResolver
	txManager     port.TransactionManager
	concurrency   int
	logger        Logger
	now           func() time.Time
}

// NewDecisionService creates a new DecisionService.
// concurrency bounds ApproveAll; non-positive values use DefaultDecisionConcurrency.
func NewDecisionService(
	guideRepo port.GuideRepository,
	procedureRepo port.ProcedureRepository,
	snapshotRepo port.SnapshotRepository,
	statusRepo port.StatusRepository,
	ledger LedgerService,
	resolver ReferenceResolver,
	txManager port.TransactionManager,
	concurrency int,
	logger Logger,
) DecisionService {
	if concurrency <= 0 {
		concurrency = DefaultDecisionConcurrency
	}
	return &decisionServiceImpl{
		guideRepo:     guideRepo,
		procedureRepo: procedureRepo,
		snapshotRepo:  snapshotRepo,
		statusRepo:    statusRepo,
		ledger:        ledger,
		resolver:      resolver,
		txManager:     txManager,
		concurrency:   concurrency,
		logger:        logger,
		now:           time.Now,
	}
}

// decisionContext is what every decision loads before writing
type decisionContext struct {
	guide     *entity.Guide
	procedure *entity.Procedure
	snapshots []*entity.ValidationSnapshot
}

func (s *decisionServiceImpl) load(ctx context.Context, req DecisionRequest) (*decisionContext, error) {
	proc, err := s.procedureRepo.GetByID(ctx, req.ProcedureID)
	if err != nil {
		return nil, fmt.Errorf("get procedure: %w", err)
	}
	if proc == nil || proc.GuideID != req.GuideID {
		return nil, entity.NewNotFound("procedure", req.ProcedureID)
	}

	guide, err := s.guideRepo.GetByID(ctx, req.GuideID)
	if err != nil {
		return nil, fmt.Errorf("get guide: %w", err)
	}
	if guide == nil {
		return nil, entity.NewNotFound("guide", req.GuideID)
	}

	snaps, err := s.snapshotRepo.ListByProcedure(ctx, req.GuideID, req.ProcedureID)
	if err != nil {
		return nil, fmt.Errorf("list validation snapshots: %w", err)
	}

	return &decisionContext{guide: guide, procedure: proc, snapshots: snaps}, nil
}

// approvedTotal picks the value an approval settles on: the expected value of
// the VALUE snapshot, else the resolved reference price times the billed
// quantity, else the billed total.
func (s *decisionServiceImpl) approvedTotal(ctx context.Context, dc *decisionContext) (decimal.Decimal, string, error) {
	for _, snap := range dc.snapshots {
		if snap.Kind == entity.CheckValue && snap.ExpectedValue.Valid {
			return snap.ExpectedValue.Decimal, snap.ValueSource, nil
		}
	}

	ref, err := s.resolver.ResolvePrice(ctx, dc.procedure.Code, dc.guide.OperatorID)
	if errors.Is(err, entity.ErrNoReference) {
		return dc.procedure.TotalValue, entity.SourceBilled, nil
	}
	if err != nil {
		return decimal.Zero, "", err
	}
	return ref.UnitPrice.Mul(dc.procedure.BilledQuantity()).Round(2), ref.Source, nil
}

// Approve settles the procedure at its reference value, recomputes the guide
// totals and appends the economy to the ledger, all in one transaction.
func (s *decisionServiceImpl) Approve(ctx context.Context, req DecisionRequest) (*DecisionResult, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var result *DecisionResult
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		dc, err := s.load(ctx, req)
		if err != nil {
			return err
		}

		approved, source, err := s.approvedTotal(ctx, dc)
		if err != nil {
			return fmt.Errorf("resolve approved value: %w", err)
		}
		proc := dc.procedure
		original := proc.TotalValue
		economy := original.Sub(approved)
		qty := proc.BilledQuantity()

		unit := approved.DivRound(qty, 8)
		if err := s.procedureRepo.SetApproved(ctx, proc.ID, unit, qty); err != nil {
			return entity.Persist("approved value", err)
		}
		if err := s.statusRepo.Upsert(ctx, &entity.ProcedureStatus{
			GuideID:     req.GuideID,
			ProcedureID: proc.ID,
			State:       entity.StateApproved,
			AuditorID:   req.AuditorID,
			Notes:       req.Notes,
		}); err != nil {
			return entity.Persist("procedure status", err)
		}
		if err := s.snapshotRepo.SetStatus(ctx, req.GuideID, proc.ID, entity.CheckConforming, req.AuditorID, req.Notes); err != nil {
			return entity.Persist("validation snapshots", err)
		}

		guideTotal, err := s.recomputeGuide(ctx, dc.guide)
		if err != nil {
			return err
		}

		approvedQty := decimal.NewNullDecimal(qty)
		entries := s.ledgerRows(dc, req, entity.DecisionApproved, approved, approvedQty, decimal.NewNullDecimal(economy), source)
		if err := s.appendLedger(ctx, entries); err != nil {
			return err
		}

		result = &DecisionResult{
			Success:       true,
			GuideID:       req.GuideID,
			ProcedureID:   proc.ID,
			Status:        entity.StateApproved,
			Message:       "Procedure approved",
			OriginalValue: original,
			ApprovedValue: approved,
			Economy:       economy,
			ValueSource:   source,
			LedgerEntries: len(entries),
			GuideTotal:    decimal.NewNullDecimal(guideTotal),
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to approve procedure",
			"guide_id", req.GuideID, "procedure_id", req.ProcedureID, "auditor_id", req.AuditorID, "error", err)
		return nil, err
	}

	s.logger.Info("Procedure approved",
		"guide_id", req.GuideID,
		"procedure_id", req.ProcedureID,
		"auditor_id", req.AuditorID,
		"economy", result.Economy.String())
	return result, nil
}

// Reject marks the procedure rejected and records a zero-economy ledger row.
// Guide totals are left untouched.
func (s *decisionServiceImpl) Reject(ctx context.Context, req DecisionRequest) (*DecisionResult, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var result *DecisionResult
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		dc, err := s.load(ctx, req)
		if err != nil {
			return err
		}
		proc := dc.procedure

		if err := s.statusRepo.Upsert(ctx, &entity.ProcedureStatus{
			GuideID:     req.GuideID,
			ProcedureID: proc.ID,
			State:       entity.StateRejected,
			AuditorID:   req.AuditorID,
			Notes:       req.Notes,
		}); err != nil {
			return entity.Persist("procedure status", err)
		}
		if err := s.snapshotRepo.SetStatus(ctx, req.GuideID, proc.ID, entity.CheckDivergent, req.AuditorID, req.Notes); err != nil {
			return entity.Persist("validation snapshots", err)
		}

		entries := s.ledgerRows(dc, req, entity.DecisionRejected, proc.TotalValue, decimal.NullDecimal{}, decimal.NewNullDecimal(decimal.Zero), "")
		if err := s.appendLedger(ctx, entries); err != nil {
			return err
		}

		result = &DecisionResult{
			Success:       true,
			GuideID:       req.GuideID,
			ProcedureID:   proc.ID,
			Status:        entity.StateRejected,
			Message:       "Procedure rejected",
			OriginalValue: proc.TotalValue,
			ApprovedValue: proc.TotalValue,
			Economy:       decimal.Zero,
			LedgerEntries: len(entries),
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to reject procedure",
			"guide_id", req.GuideID, "procedure_id", req.ProcedureID, "auditor_id", req.AuditorID, "error", err)
		return nil, err
	}

	s.logger.Info("Procedure rejected",
		"guide_id", req.GuideID,
		"procedure_id", req.ProcedureID,
		"auditor_id", req.AuditorID)
	return result, nil
}

// recomputeGuide rebuilds the guide totals from the effective procedure totals
func (s *decisionServiceImpl) recomputeGuide(ctx context.Context, guide *entity.Guide) (decimal.Decimal, error) {
	procs, err := s.procedureRepo.ListByGuide(ctx, guide.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list procedures: %w", err)
	}
	guide.Recompute(procs)
	if err := s.guideRepo.UpdateTotals(ctx, guide); err != nil {
		return decimal.Zero, entity.Persist("guide totals", err)
	}
	return guide.GrandTotal, nil
}

// appendLedger writes the entries one by one on the caller's transaction
func (s *decisionServiceImpl) appendLedger(ctx context.Context, entries []entity.LedgerEntry) error {
	for i := range entries {
		if _, err := s.ledger.Append(ctx, &entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// ledgerRows builds one entry per loaded snapshot, or a single GENERAL entry
// when the procedure was never evaluated.
func (s *decisionServiceImpl) ledgerRows(
	dc *decisionContext,
	req DecisionRequest,
	decision entity.Decision,
	approved decimal.Decimal,
	approvedQty decimal.NullDecimal,
	economy decimal.NullDecimal,
	source string,
) []entity.LedgerEntry {
	now := s.now()
	proc := dc.procedure
	base := entity.LedgerEntry{
		GuideID:              dc.guide.ID,
		GuideNumber:          dc.guide.Number,
		ProcedureID:          proc.ID,
		ProcedureCode:        proc.Code,
		ProcedureDescription: proc.Description,
		BeneficiaryCard:      dc.guide.BeneficiaryCard,
		OperatorID:           dc.guide.OperatorID,
		OperatorName:         dc.guide.OperatorName,
		ApportionmentType:    entity.ApportionmentGeneral,
		OriginalValue:        proc.TotalValue,
		OriginalQuantity:     proc.BilledQuantity(),
		ApprovedValue:        approved,
		ApprovedQuantity:     approvedQty,
		Economy:              economy,
		Decision:             decision,
		AuditorID:            req.AuditorID,
		AuditorName:          req.AuditorName,
		Notes:                req.Notes,
		ValueSource:          source,
		DecidedAt:            now,
	}

	if len(dc.snapshots) == 0 {
		return []entity.LedgerEntry{base}
	}

	entries := make([]entity.LedgerEntry, 0, len(dc.snapshots))
	for _, snap := range dc.snapshots {
		e := base
		e.ApportionmentType = string(snap.Kind)
		if snap.Kind == entity.CheckValue {
			e.ContractedValue = snap.ExpectedValue
			if e.ValueSource == "" {
				e.ValueSource = snap.ValueSource
			}
		}
		if snap.Kind == entity.CheckPackage {
			if mq, ok := snap.Details["max_quantity"].(string); ok {
				if d, err := decimal.NewFromString(mq); err == nil {
					e.MaxQuantity = decimal.NewNullDecimal(d)
				}
			}
		}
		entries = append(entries, e)
	}
	return entries
}

// ApproveAll approves every procedure of the guide on a bounded worker pool.
// Individual failures are reported in the result, not returned.
func (s *decisionServiceImpl) ApproveAll(ctx context.Context, guideID int64, auditorID, auditorName string) (*BatchResult, error) {
	if auditorID == "" {
		return nil, fmt.Errorf("%w: AuditorID is required", utils.ErrValidation)
	}

	guide, err := s.guideRepo.GetByID(ctx, guideID)
	if err != nil {
		return nil, fmt.Errorf("get guide: %w", err)
	}
	if guide == nil {
		return nil, entity.NewNotFound("guide", guideID)
	}

	procs, err := s.procedureRepo.ListByGuide(ctx, guideID)
	if err != nil {
		return nil, fmt.Errorf("list procedures: %w", err)
	}

	out := &BatchResult{GuideID: guideID, Total: len(procs)}
	results := make([]*DecisionResult, len(procs))
	var (
		mu       sync.Mutex
		failures []BatchFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, proc := range procs {
		i, proc := i, proc
		g.Go(func() error {
			r, err := s.Approve(gctx, DecisionRequest{
				GuideID:     guideID,
				ProcedureID: proc.ID,
				AuditorID:   auditorID,
				AuditorName: auditorName,
				Notes:       BatchApprovalNote,
			})
			if err != nil {
				mu.Lock()
				failures = append(failures, BatchFailure{ProcedureID: proc.ID, Error: err.Error()})
				mu.Unlock()
				return nil
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r != nil {
			out.Results = append(out.Results, r)
		}
	}
	out.Approved = len(out.Results)
	out.Failed = len(failures)
	out.Failures = failures

	s.logger.Info("Guide approved in batch",
		"guide_id", guideID,
		"auditor_id", auditorID,
		"approved", out.Approved,
		"failed", out.Failed)
	return out, nil
}

// GuideStatus lists every procedure of the guide with its decision state.
// Procedures with no recorded decision are PENDING.
func (s *decisionServiceImpl) GuideStatus(ctx context.Context, guideID int64) (*GuideStatusResult, error) {
	guide, err := s.guideRepo.GetByID(ctx, guideID)
	if err != nil {
		return nil, fmt.Errorf("get guide: %w", err)
	}
	if guide == nil {
		return nil, entity.NewNotFound("guide", guideID)
	}

	procs, err := s.procedureRepo.ListByGuide(ctx, guideID)
	if err != nil {
		return nil, fmt.Errorf("list procedures: %w", err)
	}
	statuses, err := s.statusRepo.ListByGuide(ctx, guideID)
	if err != nil {
		return nil, fmt.Errorf("list procedure statuses: %w", err)
	}

	byProcedure := make(map[int64]*entity.ProcedureStatus, len(statuses))
	for _, st := range statuses {
		byProcedure[st.ProcedureID] = st
	}

	out := &GuideStatusResult{
		GuideID:    guideID,
		Total:      len(procs),
		Procedures: make([]ProcedureStatusView, 0, len(procs)),
	}
	for _, p := range procs {
		view := ProcedureStatusView{
			ProcedureID: p.ID,
			Code:        p.Code,
			Description: p.Description,
			State:       entity.StatePending,
		}
		if st, ok := byProcedure[p.ID]; ok {
			view.State = st.State
			view.AuditorID = st.AuditorID
			view.Notes = st.Notes
			updated := st.UpdatedAt
			view.UpdatedAt = &updated
		}
		switch view.State {
		case entity.StateApproved:
			out.Approved++
		case entity.StateRejected:
			out.Rejected++
		default:
			out.Pending++
		}
		out.Procedures = append(out.Procedures, view)
	}
	return out, nil
}

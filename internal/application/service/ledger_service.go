package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/guide-audit/internal/application/port"
	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/internal/domain/savings"
	"github.com/garyjia/guide-audit/pkg/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// LedgerQuery bounds ledger reads. Date bounds are inclusive.
type LedgerQuery struct {
	From       *time.Time
	To         *time.Time
	OperatorID string
}

// BatchAppendResult reports a successful AppendBatch
type BatchAppendResult struct {
	Count        int             `json:"count"`
	EconomyTotal decimal.Decimal `json:"economy_total"`
}

// LedgerService appends decision effects to the audit ledger and reads them back
type LedgerService interface {
	Append(ctx context.Context, entry *entity.LedgerEntry) (*entity.LedgerEntry, error)
	// AppendBatch appends every entry independently. It reports the first
	// failure; rows already written stay.
	AppendBatch(ctx context.Context, entries []entity.LedgerEntry) (*BatchAppendResult, error)
	ByGuide(ctx context.Context, guideRef string) ([]entity.LedgerEntry, error)
	ByPeriod(ctx context.Context, q LedgerQuery) ([]savings.MonthBucket, error)
	ByOperator(ctx context.Context, q LedgerQuery) ([]savings.OperatorRollup, error)
	ByAuditor(ctx context.Context, q LedgerQuery) ([]savings.AuditorRollup, error)
	ByDivergenceType(ctx context.Context, q LedgerQuery) ([]savings.TypeRollup, error)
	Summary(ctx context.Context, q LedgerQuery) (*savings.Summary, error)
	Entries(ctx context.Context, q LedgerQuery) ([]entity.LedgerEntry, error)
}

type ledgerServiceImpl struct {
	ledgerRepo  port.LedgerRepository
	concurrency int
	logger      Logger
	now         func() time.Time
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(ledgerRepo port.LedgerRepository, concurrency int, logger Logger) LedgerService {
	if concurrency <= 0 {
		concurrency = DefaultDecisionConcurrency
	}
	return &ledgerServiceImpl{
		ledgerRepo:  ledgerRepo,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// Append validates and stores one entry. A missing economy is derived as
// original minus approved value.
func (s *ledgerServiceImpl) Append(ctx context.Context, entry *entity.LedgerEntry) (*entity.LedgerEntry, error) {
	if err := utils.ValidateStruct(entry); err != nil {
		return nil, err
	}
	if entry.OriginalValue.IsNegative() || entry.ApprovedValue.IsNegative() {
		return nil, fmt.Errorf("%w: ledger values must not be negative", utils.ErrValidation)
	}

	e := *entry
	now := s.now()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.DecidedAt.IsZero() {
		e.DecidedAt = now
	}
	e.CreatedAt = now
	if !e.Economy.Valid {
		e.Economy = decimal.NewNullDecimal(e.OriginalValue.Sub(e.ApprovedValue))
	}
	if e.OriginalQuantity.IsZero() {
		e.OriginalQuantity = decimal.NewFromInt(1)
	}

	if err := s.ledgerRepo.Append(ctx, &e); err != nil {
		return nil, entity.Persist("ledger entry", err)
	}
	return &e, nil
}

func (s *ledgerServiceImpl) AppendBatch(ctx context.Context, entries []entity.LedgerEntry) (*BatchAppendResult, error) {
	var (
		mu  sync.Mutex
		out = &BatchAppendResult{}
	)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range entries {
		i := i
		g.Go(func() error {
			stored, err := s.Append(ctx, &entries[i])
			if err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			mu.Lock()
			out.Count++
			out.EconomyTotal = out.EconomyTotal.Add(stored.EconomyValue())
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Ledger batch append failed", "entries", len(entries), "written", out.Count, "error", err)
		return nil, err
	}

	s.logger.Info("Ledger batch appended", "entries", out.Count, "economy_total", out.EconomyTotal.String())
	return out, nil
}

// ByGuide matches the guide id or guide number, newest decision first
func (s *ledgerServiceImpl) ByGuide(ctx context.Context, guideRef string) ([]entity.LedgerEntry, error) {
	if guideRef == "" {
		return nil, fmt.Errorf("%w: guide reference is required", utils.ErrValidation)
	}
	entries, err := s.ledgerRepo.ListByGuide(ctx, guideRef)
	if err != nil {
		return nil, fmt.Errorf("list ledger by guide: %w", err)
	}
	return entries, nil
}

func (s *ledgerServiceImpl) ByPeriod(ctx context.Context, q LedgerQuery) ([]savings.MonthBucket, error) {
	entries, err := s.list(ctx, entity.LedgerFilter{From: q.From, To: q.To, OperatorID: q.OperatorID})
	if err != nil {
		return nil, err
	}
	return savings.ByMonth(entries), nil
}

func (s *ledgerServiceImpl) ByOperator(ctx context.Context, q LedgerQuery) ([]savings.OperatorRollup, error) {
	entries, err := s.list(ctx, entity.LedgerFilter{From: q.From, To: q.To})
	if err != nil {
		return nil, err
	}
	return savings.ByOperator(entries), nil
}

func (s *ledgerServiceImpl) ByAuditor(ctx context.Context, q LedgerQuery) ([]savings.AuditorRollup, error) {
	entries, err := s.list(ctx, entity.LedgerFilter{
		From:      q.From,
		To:        q.To,
		Decisions: []entity.Decision{entity.DecisionApproved, entity.DecisionPartiallyApproved},
	})
	if err != nil {
		return nil, err
	}
	return savings.ByAuditor(entries), nil
}

func (s *ledgerServiceImpl) ByDivergenceType(ctx context.Context, q LedgerQuery) ([]savings.TypeRollup, error) {
	entries, err := s.list(ctx, entity.LedgerFilter{From: q.From, To: q.To})
	if err != nil {
		return nil, err
	}
	return savings.ByType(entries), nil
}

func (s *ledgerServiceImpl) Summary(ctx context.Context, q LedgerQuery) (*savings.Summary, error) {
	entries, err := s.list(ctx, entity.LedgerFilter{From: q.From, To: q.To})
	if err != nil {
		return nil, err
	}
	summary := savings.Summarize(entries)
	return &summary, nil
}

// Entries returns the raw entries in range, honoring the operator filter
func (s *ledgerServiceImpl) Entries(ctx context.Context, q LedgerQuery) ([]entity.LedgerEntry, error) {
	return s.list(ctx, entity.LedgerFilter{From: q.From, To: q.To, OperatorID: q.OperatorID})
}

func (s *ledgerServiceImpl) list(ctx context.Context, f entity.LedgerFilter) ([]entity.LedgerEntry, error) {
	entries, err := s.ledgerRepo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

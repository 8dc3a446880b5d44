package port

import (
	"context"
	"time"

	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// GuideRepository defines persistence operations for Guide
type GuideRepository interface {
	Create(ctx context.Context, guide *entity.Guide) error
	GetByID(ctx context.Context, id int64) (*entity.Guide, error)
	UpdateTotals(ctx context.Context, guide *entity.Guide) error
}

// ProcedureRepository defines persistence operations for Procedure
type ProcedureRepository interface {
	Create(ctx context.Context, proc *entity.Procedure) error
	GetByID(ctx context.Context, id int64) (*entity.Procedure, error)
	ListByGuide(ctx context.Context, guideID int64) ([]*entity.Procedure, error)
	SetApproved(ctx context.Context, id int64, unitPrice, quantity decimal.Decimal) error
}

// ReferenceRepository reads the reference data used to evaluate procedures
type ReferenceRepository interface {
	// ActiveContract returns the operator's contract active at t, or nil
	ActiveContract(ctx context.Context, operatorID string, at time.Time) (*entity.Contract, error)
	// ActiveContractFor returns the operator's contract active at t that lists code, or nil
	ActiveContractFor(ctx context.Context, operatorID, code string, at time.Time) (*entity.Contract, error)
	// ContractItem returns the item for code in the contract, or nil
	ContractItem(ctx context.Context, contractID int64, code string) (*entity.ContractItem, error)
	// ReferencePrice returns the reference-table price for code valid at t, or nil
	ReferencePrice(ctx context.Context, code string, at time.Time) (*entity.ReferencePrice, error)
	// SizeClass returns the registered size class of code, or nil
	SizeClass(ctx context.Context, code string) (*entity.SizeClassification, error)
}

// ReferenceWriter loads reference data
type ReferenceWriter interface {
	CreateContract(ctx context.Context, c *entity.Contract) error
	// PutContractItem inserts or replaces the terms for (ContractID, Code)
	PutContractItem(ctx context.Context, item *entity.ContractItem) error
	CreateReferencePrice(ctx context.Context, p *entity.ReferencePrice) error
	// PutSizeClass inserts or replaces the size class of Code
	PutSizeClass(ctx context.Context, s *entity.SizeClassification) error
}

// SnapshotRepository defines persistence operations for ValidationSnapshot
type SnapshotRepository interface {
	// Upsert inserts or overwrites the snapshot keyed by (guide, procedure, kind)
	Upsert(ctx context.Context, snap *entity.ValidationSnapshot) error
	ListByProcedure(ctx context.Context, guideID, procedureID int64) ([]*entity.ValidationSnapshot, error)
	// SetStatus overwrites status, auditor and notes of every snapshot of the procedure
	SetStatus(ctx context.Context, guideID, procedureID int64, status entity.CheckStatus, auditorID, notes string) error
}

// StatusRepository defines persistence operations for ProcedureStatus
type StatusRepository interface {
	Upsert(ctx context.Context, status *entity.ProcedureStatus) error
	ListByGuide(ctx context.Context, guideID int64) ([]*entity.ProcedureStatus, error)
}

// LedgerRepository is append-only: entries are never updated or deleted
type LedgerRepository interface {
	Append(ctx context.Context, entry *entity.LedgerEntry) error
	// ListByGuide matches the guide id or the guide number, newest decision first
	ListByGuide(ctx context.Context, ref string) ([]entity.LedgerEntry, error)
	List(ctx context.Context, filter entity.LedgerFilter) ([]entity.LedgerEntry, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/guide-audit/internal/application/port"
	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/internal/infrastructure/persistence/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const procedureColumns = `id, guide_id, sequence, code, description, expense_code,
	unit_price, quantity, total_value, approved_unit_price, approved_quantity,
	created_at, updated_at`

// ProcedureRepository implements port.ProcedureRepository
type ProcedureRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProcedureRepository creates a new procedure repository
func NewProcedureRepository(db *sql.DB, logger *zap.Logger) port.ProcedureRepository {
	return &ProcedureRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a procedure and sets its ID
func (r *ProcedureRepository) Create(ctx context.Context, p *entity.Procedure) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO procedures (
			guide_id, sequence, code, description, expense_code,
			unit_price, quantity, total_value, approved_unit_price, approved_quantity,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.GuideID, p.Sequence, p.Code, p.Description, p.ExpenseCode,
		p.UnitPrice, p.Quantity, p.TotalValue, p.ApprovedUnitPrice, p.ApprovedQuantity,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create procedure",
			zap.Int64("guide_id", p.GuideID), zap.String("code", p.Code), zap.Error(err))
		return fmt.Errorf("create procedure: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// GetByID returns the procedure or nil when it does not exist
func (r *ProcedureRepository) GetByID(ctx context.Context, id int64) (*entity.Procedure, error) {
	row := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+procedureColumns+` FROM procedures WHERE id = ?`, id)

	p, err := scanProcedure(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get procedure", zap.Int64("procedure_id", id), zap.Error(err))
		return nil, fmt.Errorf("get procedure: %w", err)
	}
	return p, nil
}

// ListByGuide returns the guide's procedures in billing order
func (r *ProcedureRepository) ListByGuide(ctx context.Context, guideID int64) ([]*entity.Procedure, error) {
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx,
		`SELECT `+procedureColumns+` FROM procedures WHERE guide_id = ? ORDER BY sequence, id`, guideID)
	if err != nil {
		r.logger.Error("Failed to list procedures", zap.Int64("guide_id", guideID), zap.Error(err))
		return nil, fmt.Errorf("list procedures: %w", err)
	}
	defer rows.Close()

	var procs []*entity.Procedure
	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, fmt.Errorf("scan procedure: %w", err)
		}
		procs = append(procs, p)
	}
	return procs, rows.Err()
}

// SetApproved records the approved unit price and quantity
func (r *ProcedureRepository) SetApproved(ctx context.Context, id int64, unitPrice, quantity decimal.Decimal) error {
	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		UPDATE procedures
		SET approved_unit_price = ?, approved_quantity = ?, updated_at = ?
		WHERE id = ?
	`, unitPrice, quantity, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to set approved values", zap.Int64("procedure_id", id), zap.Error(err))
		return fmt.Errorf("set approved values: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return entity.NewNotFound("procedure", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcedure(s rowScanner) (*entity.Procedure, error) {
	var p entity.Procedure
	err := s.Scan(
		&p.ID, &p.GuideID, &p.Sequence, &p.Code, &p.Description, &p.ExpenseCode,
		&p.UnitPrice, &p.Quantity, &p.TotalValue, &p.ApprovedUnitPrice, &p.ApprovedQuantity,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

var _ port.ProcedureRepository = (*ProcedureRepository)(nil)

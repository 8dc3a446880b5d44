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
	"go.uber.org/zap"
)

// ReferenceRepository implements port.ReferenceRepository over the contract,
// fee-schedule and size-class tables. The write methods are used to load
// reference data; the audit core only reads.
type ReferenceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReferenceRepository creates a new reference data repository
func NewReferenceRepository(db *sql.DB, logger *zap.Logger) *ReferenceRepository {
	return &ReferenceRepository{
		db:     db,
		logger: logger,
	}
}

// ActiveContract returns the operator's active contract with the latest end date
func (r *ReferenceRepository) ActiveContract(ctx context.Context, operatorID string, at time.Time) (*entity.Contract, error) {
	at = at.UTC()
	c, err := r.scanContract(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, number, operator_id, status, start_date, end_date
		FROM contracts
		WHERE operator_id = ?
			AND status = ?
			AND end_date >= ?
			AND (start_date IS NULL OR start_date <= ?)
		ORDER BY end_date DESC, id DESC
		LIMIT 1
	`, operatorID, entity.ContractActive, at, at))
	if err != nil {
		r.logger.Error("Failed to get active contract", zap.String("operator_id", operatorID), zap.Error(err))
		return nil, fmt.Errorf("get active contract: %w", err)
	}
	return c, nil
}

// ActiveContractFor returns the active contract listing code with the latest
// end date. Older active contracts still match when the newest omits code.
func (r *ReferenceRepository) ActiveContractFor(ctx context.Context, operatorID, code string, at time.Time) (*entity.Contract, error) {
	at = at.UTC()
	c, err := r.scanContract(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, `
		SELECT c.id, c.number, c.operator_id, c.status, c.start_date, c.end_date
		FROM contracts c
		JOIN contract_items i ON i.contract_id = c.id
		WHERE c.operator_id = ?
			AND i.code = ?
			AND c.status = ?
			AND c.end_date >= ?
			AND (c.start_date IS NULL OR c.start_date <= ?)
		ORDER BY c.end_date DESC, c.id DESC
		LIMIT 1
	`, operatorID, code, entity.ContractActive, at, at))
	if err != nil {
		r.logger.Error("Failed to get active contract for code",
			zap.String("operator_id", operatorID),
			zap.String("code", code),
			zap.Error(err))
		return nil, fmt.Errorf("get active contract for code: %w", err)
	}
	return c, nil
}

func (r *ReferenceRepository) scanContract(row *sql.Row) (*entity.Contract, error) {
	var (
		c     entity.Contract
		start sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Number, &c.OperatorID, &c.Status, &start, &c.EndDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if start.Valid {
		c.StartDate = &start.Time
	}
	return &c, nil
}

// ContractItem returns the contract's terms for code
func (r *ReferenceRepository) ContractItem(ctx context.Context, contractID int64, code string) (*entity.ContractItem, error) {
	var item entity.ContractItem
	err := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, contract_id, code, contracted_price, in_package,
			requires_authorization, max_quantity, notes
		FROM contract_items
		WHERE contract_id = ? AND code = ?
	`, contractID, code).Scan(
		&item.ID, &item.ContractID, &item.Code, &item.ContractedPrice, &item.InPackage,
		&item.RequiresAuthorization, &item.MaxQuantity, &item.Notes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get contract item",
			zap.Int64("contract_id", contractID), zap.String("code", code), zap.Error(err))
		return nil, fmt.Errorf("get contract item: %w", err)
	}
	return &item, nil
}

// ReferencePrice returns the most recent reference-table price for code valid at t
func (r *ReferenceRepository) ReferencePrice(ctx context.Context, code string, at time.Time) (*entity.ReferencePrice, error) {
	at = at.UTC()
	var (
		p        entity.ReferencePrice
		from, to sql.NullTime
	)
	err := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, table_name, code, price, valid_from, valid_to
		FROM reference_prices
		WHERE code = ?
			AND (valid_from IS NULL OR valid_from <= ?)
			AND (valid_to IS NULL OR valid_to >= ?)
		ORDER BY valid_from IS NULL, valid_from DESC, id DESC
		LIMIT 1
	`, code, at, at).Scan(&p.ID, &p.Table, &p.Code, &p.Price, &from, &to)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get reference price", zap.String("code", code), zap.Error(err))
		return nil, fmt.Errorf("get reference price: %w", err)
	}
	if from.Valid {
		p.ValidFrom = &from.Time
	}
	if to.Valid {
		p.ValidTo = &to.Time
	}
	return &p, nil
}

// SizeClass returns the registered size class of code
func (r *ReferenceRepository) SizeClass(ctx context.Context, code string) (*entity.SizeClassification, error) {
	var s entity.SizeClassification
	err := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx,
		`SELECT code, size_class, description FROM size_classifications WHERE code = ?`, code,
	).Scan(&s.Code, &s.SizeClass, &s.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get size class", zap.String("code", code), zap.Error(err))
		return nil, fmt.Errorf("get size class: %w", err)
	}
	return &s, nil
}

// CreateContract inserts a contract and sets its ID
func (r *ReferenceRepository) CreateContract(ctx context.Context, c *entity.Contract) error {
	var start any
	if c.StartDate != nil {
		start = c.StartDate.UTC()
	}
	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO contracts (number, operator_id, status, start_date, end_date)
		VALUES (?, ?, ?, ?, ?)
	`, c.Number, c.OperatorID, c.Status, start, c.EndDate.UTC())
	if err != nil {
		return fmt.Errorf("create contract: %w", err)
	}
	c.ID, err = result.LastInsertId()
	return err
}

// PutContractItem inserts or replaces the contract's terms for item.Code
func (r *ReferenceRepository) PutContractItem(ctx context.Context, item *entity.ContractItem) error {
	err := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO contract_items (
			contract_id, code, contracted_price, in_package, requires_authorization, max_quantity, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contract_id, code) DO UPDATE SET
			contracted_price = excluded.contracted_price,
			in_package = excluded.in_package,
			requires_authorization = excluded.requires_authorization,
			max_quantity = excluded.max_quantity,
			notes = excluded.notes
		RETURNING id
	`, item.ContractID, item.Code, item.ContractedPrice, item.InPackage,
		item.RequiresAuthorization, item.MaxQuantity, item.Notes,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("put contract item: %w", err)
	}
	return nil
}

// CreateReferencePrice inserts a reference-table price and sets its ID
func (r *ReferenceRepository) CreateReferencePrice(ctx context.Context, p *entity.ReferencePrice) error {
	var from, to any
	if p.ValidFrom != nil {
		from = p.ValidFrom.UTC()
	}
	if p.ValidTo != nil {
		to = p.ValidTo.UTC()
	}
	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO reference_prices (table_name, code, price, valid_from, valid_to)
		VALUES (?, ?, ?, ?, ?)
	`, p.Table, p.Code, p.Price, from, to)
	if err != nil {
		return fmt.Errorf("create reference price: %w", err)
	}
	p.ID, err = result.LastInsertId()
	return err
}

// PutSizeClass inserts or replaces the size class of s.Code
func (r *ReferenceRepository) PutSizeClass(ctx context.Context, s *entity.SizeClassification) error {
	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO size_classifications (code, size_class, description)
		VALUES (?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			size_class = excluded.size_class,
			description = excluded.description
	`, s.Code, s.SizeClass, s.Description)
	if err != nil {
		return fmt.Errorf("put size class: %w", err)
	}
	return nil
}

var (
	_ port.ReferenceRepository = (*ReferenceRepository)(nil)
	_ port.ReferenceWriter     = (*ReferenceRepository)(nil)
)

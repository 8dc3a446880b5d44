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

// GuideRepository implements port.GuideRepository
type GuideRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewGuideRepository creates a new guide repository
func NewGuideRepository(db *sql.DB, logger *zap.Logger) port.GuideRepository {
	return &GuideRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a guide and sets its ID
func (r *GuideRepository) Create(ctx context.Context, g *entity.Guide) error {
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO guides (
			number, operator_id, operator_name, beneficiary_card,
			procedures_total, dailies_total, rentals_total, materials_total,
			medications_total, devices_total, gases_total, grand_total,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		g.Number, g.OperatorID, g.OperatorName, g.BeneficiaryCard,
		g.ProceduresTotal, g.DailiesTotal, g.RentalsTotal, g.MaterialsTotal,
		g.MedicationsTotal, g.DevicesTotal, g.GasesTotal, g.GrandTotal,
		g.CreatedAt.UTC(), g.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create guide", zap.String("number", g.Number), zap.Error(err))
		return fmt.Errorf("create guide: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	g.ID = id
	return nil
}

// GetByID returns the guide or nil when it does not exist
func (r *GuideRepository) GetByID(ctx context.Context, id int64) (*entity.Guide, error) {
	var g entity.Guide
	err := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, number, operator_id, operator_name, beneficiary_card,
			procedures_total, dailies_total, rentals_total, materials_total,
			medications_total, devices_total, gases_total, grand_total,
			created_at, updated_at
		FROM guides
		WHERE id = ?
	`, id).Scan(
		&g.ID, &g.Number, &g.OperatorID, &g.OperatorName, &g.BeneficiaryCard,
		&g.ProceduresTotal, &g.DailiesTotal, &g.RentalsTotal, &g.MaterialsTotal,
		&g.MedicationsTotal, &g.DevicesTotal, &g.GasesTotal, &g.GrandTotal,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get guide", zap.Int64("guide_id", id), zap.Error(err))
		return nil, fmt.Errorf("get guide: %w", err)
	}
	return &g, nil
}

// UpdateTotals overwrites the procedures subtotal and the grand total
func (r *GuideRepository) UpdateTotals(ctx context.Context, g *entity.Guide) error {
	g.UpdatedAt = time.Now().UTC()
	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		UPDATE guides
		SET procedures_total = ?, grand_total = ?, updated_at = ?
		WHERE id = ?
	`, g.ProceduresTotal, g.GrandTotal, g.UpdatedAt, g.ID)
	if err != nil {
		r.logger.Error("Failed to update guide totals", zap.Int64("guide_id", g.ID), zap.Error(err))
		return fmt.Errorf("update guide totals: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return entity.NewNotFound("guide", g.ID)
	}
	return nil
}

var _ port.GuideRepository = (*GuideRepository)(nil)

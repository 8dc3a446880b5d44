package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/guide-audit/internal/application/port"
	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// StatusRepository implements port.StatusRepository
type StatusRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStatusRepository creates a new procedure status repository
func NewStatusRepository(db *sql.DB, logger *zap.Logger) port.StatusRepository {
	return &StatusRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert records the latest decision for the procedure, replacing any previous one
func (r *StatusRepository) Upsert(ctx context.Context, s *entity.ProcedureStatus) error {
	s.UpdatedAt = time.Now().UTC()
	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO procedure_statuses (guide_id, procedure_id, state, auditor_id, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (guide_id, procedure_id) DO UPDATE SET
			state = excluded.state,
			auditor_id = excluded.auditor_id,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`, s.GuideID, s.ProcedureID, s.State, s.AuditorID, s.Notes, s.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to upsert procedure status",
			zap.Int64("guide_id", s.GuideID),
			zap.Int64("procedure_id", s.ProcedureID),
			zap.String("state", string(s.State)),
			zap.Error(err))
		return fmt.Errorf("upsert procedure status: %w", err)
	}
	return nil
}

// ListByGuide returns every recorded status of the guide's procedures
func (r *StatusRepository) ListByGuide(ctx context.Context, guideID int64) ([]*entity.ProcedureStatus, error) {
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, `
		SELECT guide_id, procedure_id, state, auditor_id, notes, updated_at
		FROM procedure_statuses
		WHERE guide_id = ?
		ORDER BY procedure_id
	`, guideID)
	if err != nil {
		r.logger.Error("Failed to list procedure statuses", zap.Int64("guide_id", guideID), zap.Error(err))
		return nil, fmt.Errorf("list procedure statuses: %w", err)
	}
	defer rows.Close()

	var statuses []*entity.ProcedureStatus
	for rows.Next() {
		var s entity.ProcedureStatus
		if err := rows.Scan(&s.GuideID, &s.ProcedureID, &s.State, &s.AuditorID, &s.Notes, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan procedure status: %w", err)
		}
		statuses = append(statuses, &s)
	}
	return statuses, rows.Err()
}

var _ port.StatusRepository = (*StatusRepository)(nil)

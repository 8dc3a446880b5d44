package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/guide-audit/internal/application/port"
	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// SnapshotRepository implements port.SnapshotRepository
type SnapshotRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSnapshotRepository creates a new validation snapshot repository
func NewSnapshotRepository(db *sql.DB, logger *zap.Logger) port.SnapshotRepository {
	return &SnapshotRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert writes the snapshot, overwriting any previous result for the same check
func (r *SnapshotRepository) Upsert(ctx context.Context, s *entity.ValidationSnapshot) error {
	details, err := marshalDetails(s.Details)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	err = sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO validation_snapshots (
			guide_id, procedure_id, kind, status, message,
			expected_value, found_value, difference,
			expected_size_class, found_size_class, value_source, details,
			auditor_id, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (guide_id, procedure_id, kind) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			expected_value = excluded.expected_value,
			found_value = excluded.found_value,
			difference = excluded.difference,
			expected_size_class = excluded.expected_size_class,
			found_size_class = excluded.found_size_class,
			value_source = excluded.value_source,
			details = excluded.details,
			auditor_id = excluded.auditor_id,
			notes = excluded.notes,
			updated_at = excluded.updated_at
		RETURNING id
	`,
		s.GuideID, s.ProcedureID, s.Kind, s.Status, s.Message,
		s.ExpectedValue, s.FoundValue, s.Difference,
		s.ExpectedSizeClass, s.FoundSizeClass, s.ValueSource, details,
		s.AuditorID, s.Notes, now, now,
	).Scan(&s.ID)
	if err != nil {
		r.logger.Error("Failed to upsert validation snapshot",
			zap.Int64("guide_id", s.GuideID),
			zap.Int64("procedure_id", s.ProcedureID),
			zap.String("kind", string(s.Kind)),
			zap.Error(err))
		return fmt.Errorf("upsert validation snapshot: %w", err)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return nil
}

// ListByProcedure returns the procedure's snapshots ordered by kind
func (r *SnapshotRepository) ListByProcedure(ctx context.Context, guideID, procedureID int64) ([]*entity.ValidationSnapshot, error) {
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, `
		SELECT id, guide_id, procedure_id, kind, status, message,
			expected_value, found_value, difference,
			expected_size_class, found_size_class, value_source, details,
			auditor_id, notes, created_at, updated_at
		FROM validation_snapshots
		WHERE guide_id = ? AND procedure_id = ?
		ORDER BY kind
	`, guideID, procedureID)
	if err != nil {
		r.logger.Error("Failed to list validation snapshots",
			zap.Int64("guide_id", guideID), zap.Int64("procedure_id", procedureID), zap.Error(err))
		return nil, fmt.Errorf("list validation snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*entity.ValidationSnapshot
	for rows.Next() {
		var (
			s       entity.ValidationSnapshot
			details string
		)
		if err := rows.Scan(
			&s.ID, &s.GuideID, &s.ProcedureID, &s.Kind, &s.Status, &s.Message,
			&s.ExpectedValue, &s.FoundValue, &s.Difference,
			&s.ExpectedSizeClass, &s.FoundSizeClass, &s.ValueSource, &details,
			&s.AuditorID, &s.Notes, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan validation snapshot: %w", err)
		}
		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &s.Details); err != nil {
				r.logger.Warn("Discarding unreadable snapshot details", zap.Int64("snapshot_id", s.ID), zap.Error(err))
			}
		}
		snaps = append(snaps, &s)
	}
	return snaps, rows.Err()
}

// SetStatus records an auditor decision on every snapshot of the procedure
func (r *SnapshotRepository) SetStatus(ctx context.Context, guideID, procedureID int64, status entity.CheckStatus, auditorID, notes string) error {
	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		UPDATE validation_snapshots
		SET status = ?, auditor_id = ?, notes = ?, updated_at = ?
		WHERE guide_id = ? AND procedure_id = ?
	`, status, auditorID, notes, time.Now().UTC(), guideID, procedureID)
	if err != nil {
		r.logger.Error("Failed to set snapshot status",
			zap.Int64("guide_id", guideID), zap.Int64("procedure_id", procedureID), zap.Error(err))
		return fmt.Errorf("set snapshot status: %w", err)
	}
	return nil
}

func marshalDetails(details map[string]any) (string, error) {
	if len(details) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot details: %w", err)
	}
	return string(b), nil
}

var _ port.SnapshotRepository = (*SnapshotRepository)(nil)

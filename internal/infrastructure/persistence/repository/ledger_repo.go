package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garyjia/guide-audit/internal/application/port"
	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const ledgerColumns = `id, guide_id, guide_number, procedure_id, procedure_code,
	procedure_description, beneficiary_card, operator_id, operator_name,
	apportionment_type, original_value, original_quantity, contracted_value,
	max_quantity, approved_value, approved_quantity, economy, decision,
	auditor_id, auditor_name, notes, value_source, decided_at, created_at`

// LedgerRepository implements port.LedgerRepository.
// The table rejects UPDATE and DELETE through triggers.
type LedgerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *sql.DB, logger *zap.Logger) port.LedgerRepository {
	return &LedgerRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts a fully populated entry. ID, timestamps and economy are set by the caller.
func (r *LedgerRepository) Append(ctx context.Context, e *entity.LedgerEntry) error {
	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO ledger_entries (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.GuideID, e.GuideNumber, e.ProcedureID, e.ProcedureCode,
		e.ProcedureDescription, e.BeneficiaryCard, e.OperatorID, e.OperatorName,
		e.ApportionmentType, e.OriginalValue, e.OriginalQuantity, e.ContractedValue,
		e.MaxQuantity, e.ApprovedValue, e.ApprovedQuantity, e.EconomyValue(), e.Decision,
		e.AuditorID, e.AuditorName, e.Notes, e.ValueSource, e.DecidedAt.UTC(), e.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append ledger entry",
			zap.String("entry_id", e.ID),
			zap.Int64("guide_id", e.GuideID),
			zap.Int64("procedure_id", e.ProcedureID),
			zap.Error(err))
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// ListByGuide matches ref against the guide id or the guide number
func (r *LedgerRepository) ListByGuide(ctx context.Context, ref string) ([]entity.LedgerEntry, error) {
	return r.query(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE CAST(guide_id AS TEXT) = ? OR guide_number = ?
		ORDER BY decided_at DESC, created_at DESC
	`, ref, ref)
}

// List returns the entries matching filter, newest decision first
func (r *LedgerRepository) List(ctx context.Context, f entity.LedgerFilter) ([]entity.LedgerEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.From != nil {
		where = append(where, "decided_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "decided_at <= ?")
		args = append(args, f.To.UTC())
	}
	if f.OperatorID != "" {
		where = append(where, "operator_id = ?")
		args = append(args, f.OperatorID)
	}
	if len(f.Decisions) > 0 {
		marks := make([]string, len(f.Decisions))
		for i, d := range f.Decisions {
			marks[i] = "?"
			args = append(args, d)
		}
		where = append(where, "decision IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY decided_at DESC, created_at DESC`

	return r.query(ctx, query, args...)
}

func (r *LedgerRepository) query(ctx context.Context, query string, args ...any) ([]entity.LedgerEntry, error) {
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query ledger entries", zap.Error(err))
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []entity.LedgerEntry{}
	for rows.Next() {
		var e entity.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.GuideID, &e.GuideNumber, &e.ProcedureID, &e.ProcedureCode,
			&e.ProcedureDescription, &e.BeneficiaryCard, &e.OperatorID, &e.OperatorName,
			&e.ApportionmentType, &e.OriginalValue, &e.OriginalQuantity, &e.ContractedValue,
			&e.MaxQuantity, &e.ApprovedValue, &e.ApprovedQuantity, &e.Economy, &e.Decision,
			&e.AuditorID, &e.AuditorName, &e.Notes, &e.ValueSource, &e.DecidedAt, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ port.LedgerRepository = (*LedgerRepository)(nil)

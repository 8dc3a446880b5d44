// Package container wires configuration, storage and application services
// together and owns their lifecycle.
package container

import (
	"context"
	"fmt"

	"github.com/garyjia/guide-audit/internal/application/port"
	"github.com/garyjia/guide-audit/internal/application/service"
	"github.com/garyjia/guide-audit/internal/config"
	"github.com/garyjia/guide-audit/internal/infrastructure/persistence/repository"
	"github.com/garyjia/guide-audit/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/guide-audit/internal/infrastructure/report"
	"github.com/garyjia/guide-audit/internal/infrastructure/storage"
	"github.com/garyjia/guide-audit/migrations"
	"github.com/garyjia/guide-audit/pkg/database"
	"github.com/garyjia/guide-audit/pkg/utils"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Guide     port.GuideRepository
	Procedure port.ProcedureRepository
	Reference *repository.ReferenceRepository
	Snapshot  port.SnapshotRepository
	Status    port.StatusRepository
	Ledger    port.LedgerRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Guides     service.GuideService
	References service.ReferenceDataService
	Resolver   service.ReferenceResolver
	Validation service.ValidationService
	Decisions  service.DecisionService
	Ledger     service.LedgerService
	Analytics  service.AnalyticsService
	Exports    service.ExportService
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Guide:     repository.NewGuideRepository(db.DB, logger),
		Procedure: repository.NewProcedureRepository(db.DB, logger),
		Reference: repository.NewReferenceRepository(db.DB, logger),
		Snapshot:  repository.NewSnapshotRepository(db.DB, logger),
		Status:    repository.NewStatusRepository(db.DB, logger),
		Ledger:    repository.NewLedgerRepository(db.DB, logger),
	}, nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Config       *config.Config
	Repositories *RepositoryBundle
	TxManager    port.TransactionManager
	Archive      port.ReportArchive
	Logger       *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Config == nil || deps.Repositories == nil || deps.TxManager == nil || deps.Logger == nil {
		return nil, fmt.Errorf("service dependencies are incomplete")
	}

	tolerance, err := deps.Config.Validation.Tolerance()
	if err != nil {
		return nil, err
	}

	repos := deps.Repositories
	log := utils.NewKVLogger(deps.Logger)
	concurrency := deps.Config.Decision.MaxConcurrency

	resolver := service.NewReferenceResolver(repos.Reference, log)
	ledger := service.NewLedgerService(repos.Ledger, concurrency, log)

	return &ServiceBundle{
		Guides:     service.NewGuideService(repos.Guide, repos.Procedure, deps.TxManager, log),
		References: service.NewReferenceDataService(repos.Reference, resolver, log),
		Resolver:   resolver,
		Validation: service.NewValidationService(repos.Guide, repos.Procedure, repos.Snapshot, resolver, tolerance, log),
		Decisions: service.NewDecisionService(repos.Guide, repos.Procedure, repos.Snapshot, repos.Status,
			ledger, resolver, deps.TxManager, concurrency, log),
		Ledger:    ledger,
		Analytics: service.NewAnalyticsService(ledger, log),
		Exports:   service.NewExportService(ledger, report.NewWorkbookBuilder(deps.Logger), deps.Archive, log),
	}, nil
}

// ProvideArchive returns the report archive, or nil when archiving is disabled.
func ProvideArchive(cfg *config.ReportConfig, logger *zap.Logger) port.ReportArchive {
	if cfg == nil || cfg.ArchiveDir == "" {
		return nil
	}
	return storage.NewLocalReportArchive(cfg.ArchiveDir, logger)
}

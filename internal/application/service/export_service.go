package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/garyjia/guide-audit/internal/application/port"
	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/internal/domain/savings"
	"golang.org/x/sync/errgroup"
)

const exportDateLayout = "20060102"

// WorkbookRenderer turns ledger rollups into a spreadsheet
type WorkbookRenderer interface {
	Build(summary *savings.Summary, operators []savings.OperatorRollup, auditors []savings.AuditorRollup, entries []entity.LedgerEntry) (*bytes.Buffer, error)
}

// Export is a rendered ledger workbook
type Export struct {
	Name         string
	Content      []byte
	ArchivedPath string
}

// ExportService renders the ledger as a workbook and keeps archived copies
type ExportService interface {
	Export(ctx context.Context, q LedgerQuery, archive bool) (*Export, error)
	Archived(ctx context.Context) ([]port.ArchivedReport, error)
	Open(ctx context.Context, name string) ([]byte, error)
}

type exportServiceImpl struct {
	ledger   LedgerService
	renderer WorkbookRenderer
	archive  port.ReportArchive
	logger   Logger
	now      func() time.Time
}

// NewExportService creates a new ExportService. archive may be nil, in which
// case exports are never archived.
func NewExportService(ledger LedgerService, renderer WorkbookRenderer, archive port.ReportArchive, logger Logger) ExportService {
	return &exportServiceImpl{
		ledger:   ledger,
		renderer: renderer,
		archive:  archive,
		logger:   logger,
		now:      time.Now,
	}
}

// Export loads the four ledger views concurrently and renders them
func (s *exportServiceImpl) Export(ctx context.Context, q LedgerQuery, archive bool) (*Export, error) {
	var (
		summary   *savings.Summary
		operators []savings.OperatorRollup
		auditors  []savings.AuditorRollup
		entries   []entity.LedgerEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		summary, err = s.ledger.Summary(gctx, q)
		return err
	})
	g.Go(func() (err error) {
		operators, err = s.ledger.ByOperator(gctx, q)
		return err
	})
	g.Go(func() (err error) {
		auditors, err = s.ledger.ByAuditor(gctx, q)
		return err
	})
	g.Go(func() (err error) {
		entries, err = s.ledger.Entries(gctx, q)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load ledger views: %w", err)
	}

	buf, err := s.renderer.Build(summary, operators, auditors, entries)
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}

	out := &Export{
		Name:    s.exportName(q),
		Content: buf.Bytes(),
	}

	if archive && s.archive != nil {
		path, err := s.archive.Save(ctx, out.Name, out.Content)
		if err != nil {
			return nil, entity.Persist("report archive", err)
		}
		out.ArchivedPath = path
	}

	s.logger.Info("Ledger exported",
		"name", out.Name,
		"entries", len(entries),
		"archived", out.ArchivedPath != "")
	return out, nil
}

func (s *exportServiceImpl) Archived(ctx context.Context) ([]port.ArchivedReport, error) {
	if s.archive == nil {
		return []port.ArchivedReport{}, nil
	}
	return s.archive.List(ctx)
}

func (s *exportServiceImpl) Open(ctx context.Context, name string) ([]byte, error) {
	if s.archive == nil {
		return nil, entity.NewNotFound("report", name)
	}
	return s.archive.Read(ctx, name)
}

// exportName is ledger_<from>_<to>[_<operator>]_<generated>.xlsx
func (s *exportServiceImpl) exportName(q LedgerQuery) string {
	from, to := "start", "now"
	if q.From != nil {
		from = q.From.Format(exportDateLayout)
	}
	if q.To != nil {
		to = q.To.Format(exportDateLayout)
	}
	name := fmt.Sprintf("ledger_%s_%s", from, to)
	if q.OperatorID != "" {
		name += "_" + q.OperatorID
	}
	return fmt.Sprintf("%s_%s.xlsx", name, s.now().Format("20060102T150405"))
}

package report

import (
	"bytes"
	"fmt"

	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/internal/domain/savings"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Sheet names, in workbook order
const (
	SheetSummary   = "Summary"
	SheetOperators = "Operators"
	SheetAuditors  = "Auditors"
	SheetEntries   = "Entries"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	operatorHeader = []string{"Operator ID", "Operator", "Decisions", "Approved", "Economy", "Average", "Max"}
	auditorHeader  = []string{"Auditor ID", "Auditor", "Decisions", "Approved", "Economy", "Average", "Max", "Min"}
	entryHeader    = []string{
		"Decided At", "Guide", "Procedure", "Description", "Operator", "Type", "Decision",
		"Original", "Contracted", "Approved", "Economy", "Source", "Auditor", "Notes",
	}
)

// WorkbookBuilder renders ledger rollups as an xlsx workbook
type WorkbookBuilder struct {
	logger *zap.Logger
}

// NewWorkbookBuilder creates a new WorkbookBuilder
func NewWorkbookBuilder(logger *zap.Logger) *WorkbookBuilder {
	return &WorkbookBuilder{logger: logger}
}

// Build writes the Summary, Operators, Auditors and Entries sheets
func (b *WorkbookBuilder) Build(
	summary *savings.Summary,
	operators []savings.OperatorRollup,
	auditors []savings.AuditorRollup,
	entries []entity.LedgerEntry,
) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetOperators, SheetAuditors, SheetEntries} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	b.fillSummary(f, summary)

	b.writeHeader(f, SheetOperators, operatorHeader, headerStyle)
	for i, r := range operators {
		b.writeRow(f, SheetOperators, i+2, r.OperatorID, r.OperatorName, r.Total, r.Approved,
			money(r.EconomyTotal), money(r.AverageEconomy), money(r.MaxEconomy))
	}

	b.writeHeader(f, SheetAuditors, auditorHeader, headerStyle)
	for i, r := range auditors {
		b.writeRow(f, SheetAuditors, i+2, r.AuditorID, r.AuditorName, r.Total, r.Approved,
			money(r.EconomyTotal), money(r.AverageEconomy), money(r.MaxEconomy), money(r.MinEconomy))
	}

	b.writeHeader(f, SheetEntries, entryHeader, headerStyle)
	for i := range entries {
		e := &entries[i]
		var contracted any
		if e.ContractedValue.Valid {
			contracted = money(e.ContractedValue.Decimal)
		}
		b.writeRow(f, SheetEntries, i+2,
			e.DecidedAt.Format(timeLayout),
			e.GuideNumber,
			e.ProcedureCode,
			e.ProcedureDescription,
			e.OperatorName,
			e.ApportionmentType,
			string(e.Decision),
			money(e.OriginalValue),
			contracted,
			money(e.ApprovedValue),
			money(e.EconomyValue()),
			e.ValueSource,
			e.AuditorName,
			e.Notes,
		)
	}

	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	b.logger.Debug("Savings workbook built",
		zap.Int("operators", len(operators)),
		zap.Int("auditors", len(auditors)),
		zap.Int("entries", len(entries)),
		zap.Int("size", buf.Len()))
	return buf, nil
}

func (b *WorkbookBuilder) fillSummary(f *excelize.File, s *savings.Summary) {
	if s == nil {
		s = &savings.Summary{PercentSaved: "0.00"}
	}
	rows := [][2]any{
		{"Decisions", s.Total},
		{"Approved", s.Approved},
		{"Rejected", s.Rejected},
		{"Partially approved", s.Partial},
		{"Original total", money(s.OriginalTotal)},
		{"Approved total", money(s.ApprovedTotal)},
		{"Economy total", money(s.EconomyTotal)},
		{"Average economy", money(s.AverageEconomy)},
		{"Max economy", money(s.MaxEconomy)},
		{"Min economy", money(s.MinEconomy)},
		{"Percent saved", s.PercentSaved},
	}
	for i, r := range rows {
		b.writeRow(f, SheetSummary, i+1, r[0], r[1])
	}
	if err := f.SetColWidth(SheetSummary, "A", "A", 22); err != nil {
		b.logger.Warn("Failed to set column width", zap.String("sheet", SheetSummary), zap.Error(err))
	}
}

func (b *WorkbookBuilder) writeHeader(f *excelize.File, sheet string, header []string, style int) {
	values := make([]any, len(header))
	for i, h := range header {
		values[i] = h
	}
	b.writeRow(f, sheet, 1, values...)

	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		b.logger.Warn("Failed to style header", zap.String("sheet", sheet), zap.Error(err))
	}
}

func (b *WorkbookBuilder) writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for col, v := range values {
		if v == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			b.logger.Warn("Invalid cell coordinates", zap.Int("col", col+1), zap.Int("row", row), zap.Error(err))
			continue
		}
		b.setCell(f, sheet, cell, v)
	}
}

// setCell sets a cell value in the workbook
func (b *WorkbookBuilder) setCell(f *excelize.File, sheet, cell string, value any) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		b.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/guide-audit/internal/application/service"
	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/internal/domain/savings"
	"github.com/garyjia/guide-audit/pkg/utils"
)

const (
	dateLayout      = "2006-01-02"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// BatchLedgerRequest is the body of POST /ledger/batch
type BatchLedgerRequest struct {
	Entries []entity.LedgerEntry `json:"entries"`
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. A calendar
// date used as an upper bound covers the whole day.
func parseDate(raw string, upper bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a date", utils.ErrValidation, raw)
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func ledgerQuery(c *gin.Context) (service.LedgerQuery, error) {
	from, err := parseDate(c.Query("dateFrom"), false)
	if err != nil {
		return service.LedgerQuery{}, err
	}
	to, err := parseDate(c.Query("dateTo"), true)
	if err != nil {
		return service.LedgerQuery{}, err
	}
	if from != nil && to != nil && from.After(*to) {
		return service.LedgerQuery{}, fmt.Errorf("%w: dateFrom is after dateTo", utils.ErrValidation)
	}
	return service.LedgerQuery{From: from, To: to, OperatorID: c.Query("operatorId")}, nil
}

// withQuery parses the ledger filter and hands it to fn
func (h *Handlers) withQuery(c *gin.Context, fn func(q service.LedgerQuery) (interface{}, error)) {
	if !available(c, h.services.Ledger != nil) {
		return
	}
	q, err := ledgerQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	data, err := fn(q)
	if err != nil {
		h.fail(c, "ledger query failed", err, "path", c.FullPath())
		return
	}
	ok(c, data)
}

// AppendLedger handles POST /api/v1/ledger
func (h *Handlers) AppendLedger(c *gin.Context) {
	if !available(c, h.services.Ledger != nil) {
		return
	}
	var entry entity.LedgerEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	stored, err := h.services.Ledger.Append(c.Request.Context(), &entry)
	if err != nil {
		h.fail(c, "failed to append ledger entry", err, "guide_id", entry.GuideID)
		return
	}
	created(c, stored)
}

// AppendLedgerBatch handles POST /api/v1/ledger/batch
func (h *Handlers) AppendLedgerBatch(c *gin.Context) {
	if !available(c, h.services.Ledger != nil) {
		return
	}
	var req BatchLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.services.Ledger.AppendBatch(c.Request.Context(), req.Entries)
	if err != nil {
		h.fail(c, "failed to append ledger batch", err, "entries", len(req.Entries))
		return
	}
	created(c, result)
}

// LedgerByGuide handles GET /api/v1/ledger/guides/:ref
func (h *Handlers) LedgerByGuide(c *gin.Context) {
	if !available(c, h.services.Ledger != nil) {
		return
	}
	ref := c.Param("ref")
	entries, err := h.services.Ledger.ByGuide(c.Request.Context(), ref)
	if err != nil {
		h.fail(c, "failed to read guide ledger", err, "guide", ref)
		return
	}
	ok(c, entries)
}

// EconomyByPeriod handles GET /api/v1/ledger/economy/period
func (h *Handlers) EconomyByPeriod(c *gin.Context) {
	h.withQuery(c, func(q service.LedgerQuery) (interface{}, error) {
		return h.services.Ledger.ByPeriod(c.Request.Context(), q)
	})
}

// EconomyByOperator handles GET /api/v1/ledger/economy/operator
func (h *Handlers) EconomyByOperator(c *gin.Context) {
	h.withQuery(c, func(q service.LedgerQuery) (interface{}, error) {
		return h.services.Ledger.ByOperator(c.Request.Context(), q)
	})
}

// EconomyByAuditor handles GET /api/v1/ledger/economy/auditor
func (h *Handlers) EconomyByAuditor(c *gin.Context) {
	h.withQuery(c, func(q service.LedgerQuery) (interface{}, error) {
		return h.services.Ledger.ByAuditor(c.Request.Context(), q)
	})
}

// EconomyByType handles GET /api/v1/ledger/economy/type
func (h *Handlers) EconomyByType(c *gin.Context) {
	h.withQuery(c, func(q service.LedgerQuery) (interface{}, error) {
		return h.services.Ledger.ByDivergenceType(c.Request.Context(), q)
	})
}

// LedgerSummary handles GET /api/v1/ledger/summary
func (h *Handlers) LedgerSummary(c *gin.Context) {
	h.withQuery(c, func(q service.LedgerQuery) (interface{}, error) {
		return h.services.Ledger.Summary(c.Request.Context(), q)
	})
}

// ExportLedger handles GET /api/v1/ledger/export.xlsx
func (h *Handlers) ExportLedger(c *gin.Context) {
	if !available(c, h.services.Exports != nil) {
		return
	}
	q, err := ledgerQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	archive, _ := strconv.ParseBool(c.DefaultQuery("archive", "false"))

	export, err := h.services.Exports.Export(c.Request.Context(), q, archive)
	if err != nil {
		h.fail(c, "ledger export failed", err)
		return
	}
	if export.ArchivedPath != "" {
		c.Header("X-Archived-Path", export.ArchivedPath)
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Name))
	c.Data(http.StatusOK, xlsxContentType, export.Content)
}

// ListReports handles GET /api/v1/reports
func (h *Handlers) ListReports(c *gin.Context) {
	if !available(c, h.services.Exports != nil) {
		return
	}
	reports, err := h.services.Exports.Archived(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to list reports", err)
		return
	}
	ok(c, reports)
}

// DownloadReport handles GET /api/v1/reports/:name
func (h *Handlers) DownloadReport(c *gin.Context) {
	if !available(c, h.services.Exports != nil) {
		return
	}
	name := c.Param("name")
	content, err := h.services.Exports.Open(c.Request.Context(), name)
	if err != nil {
		h.fail(c, "failed to open report", err, "name", name)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, content)
}

// AnalyticsQuery is the query string of the analytics endpoints
type AnalyticsQuery struct {
	Period string `form:"period" validate:"omitempty,period"`
	Date   string `form:"date"`
	Type   string `form:"type" validate:"omitempty,oneof=QUANTITY UNIT_PRICE TOTAL"`
}

func bindAnalytics(c *gin.Context) (AnalyticsQuery, time.Time, error) {
	var q AnalyticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return q, time.Time{}, fmt.Errorf("%w: %w", utils.ErrValidation, err)
	}
	if err := utils.ValidateStruct(q); err != nil {
		return q, time.Time{}, err
	}
	if q.Period == "" {
		q.Period = savings.PeriodMonth
	}

	ref := time.Now()
	if q.Date != "" {
		t, err := parseDate(q.Date, false)
		if err != nil {
			return q, time.Time{}, err
		}
		ref = *t
	}
	return q, ref, nil
}

func analyticsParams(c *gin.Context) (string, time.Time, error) {
	q, ref, err := bindAnalytics(c)
	return q.Period, ref, err
}

// SavingsAnalytics handles GET /api/v1/analytics/savings?period=&date=
func (h *Handlers) SavingsAnalytics(c *gin.Context) {
	if !available(c, h.services.Analytics != nil) {
		return
	}
	period, ref, err := analyticsParams(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	report, err := h.services.Analytics.SavingsSummary(c.Request.Context(), period, ref)
	if err != nil {
		h.fail(c, "savings analytics failed", err, "period", period)
		return
	}
	ok(c, report)
}

// MetricsAnalytics handles GET /api/v1/analytics/metrics?period=&date=
func (h *Handlers) MetricsAnalytics(c *gin.Context) {
	if !available(c, h.services.Analytics != nil) {
		return
	}
	period, ref, err := analyticsParams(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	metrics, err := h.services.Analytics.AuditMetrics(c.Request.Context(), period, ref)
	if err != nil {
		h.fail(c, "audit metrics failed", err, "period", period)
		return
	}
	ok(c, metrics)
}

// CorrectionAnalytics handles GET /api/v1/analytics/corrections?type=&period=&date=
func (h *Handlers) CorrectionAnalytics(c *gin.Context) {
	if !available(c, h.services.Analytics != nil) {
		return
	}
	q, ref, err := bindAnalytics(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	analysis, err := h.services.Analytics.CorrectionAnalysis(c.Request.Context(), q.Type, q.Period, ref)
	if err != nil {
		h.fail(c, "correction analytics failed", err, "period", q.Period, "type", q.Type)
		return
	}
	ok(c, analysis)
}

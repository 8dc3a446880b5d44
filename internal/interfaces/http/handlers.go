package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/guide-audit/internal/application/service"
	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/internal/domain/savings"
	"github.com/garyjia/guide-audit/pkg/utils"
)

// Version is reported by the health check
var Version = "1.0.0"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	health   HealthFunc
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, health HealthFunc, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		health:   health,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ProcedureValidationRequest is the body of POST /procedures/:procedureId/validate
type ProcedureValidationRequest struct {
	GuideID        int64  `json:"guideId"`
	OperatorID     string `json:"operatorId"`
	FoundSizeClass string `json:"foundSizeClass"`
}

// GuideValidationRequest is the body of POST /guides/:guideId/validate
type GuideValidationRequest struct {
	OperatorID string `json:"operatorId"`
}

// DecisionBody is the body of the approve and reject endpoints
type DecisionBody struct {
	GuideID     int64  `json:"guideId"`
	AuditorID   string `json:"auditorId"`
	AuditorName string `json:"auditorName"`
	Notes       string `json:"notes"`
}

// ApproveAllRequest is the body of POST /guides/:guideId/approve-all
type ApproveAllRequest struct {
	AuditorID   string `json:"auditorId"`
	AuditorName string `json:"auditorName"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrValidation), errors.Is(err, savings.ErrInvalidPeriod):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, msg string, err error, keysAndValues ...interface{}) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append(keysAndValues, "error", err)...)
	}
	c.JSON(status, Response{Success: false, Error: err.Error(), Message: msg})
}

// available answers 503 when a route's service is not wired
func available(c *gin.Context, wired bool) bool {
	if !wired {
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "service unavailable"})
	}
	return wired
}

func idParam(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Database:  "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}

	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			resp.Status = "unhealthy"
			resp.Database = err.Error()
			c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: resp})
			return
		}
	}

	ok(c, resp)
}

// CreateGuide handles POST /api/v1/guides
func (h *Handlers) CreateGuide(c *gin.Context) {
	if !available(c, h.services.Guides != nil) {
		return
	}
	var in service.GuideInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	view, err := h.services.Guides.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "failed to create guide", err, "number", in.Number)
		return
	}
	created(c, view)
}

// GetGuide handles GET /api/v1/guides/:guideId
func (h *Handlers) GetGuide(c *gin.Context) {
	if !available(c, h.services.Guides != nil) {
		return
	}
	id, valid := idParam(c, "guideId")
	if !valid {
		return
	}

	view, err := h.services.Guides.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "failed to get guide", err, "guide_id", id)
		return
	}
	ok(c, view)
}

// ValidateProcedure handles POST /api/v1/procedures/:procedureId/validate
func (h *Handlers) ValidateProcedure(c *gin.Context) {
	if !available(c, h.services.Validation != nil) {
		return
	}
	procedureID, valid := idParam(c, "procedureId")
	if !valid {
		return
	}
	var req ProcedureValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.services.Validation.EvaluateProcedure(c.Request.Context(), service.EvaluationRequest{
		GuideID:        req.GuideID,
		ProcedureID:    procedureID,
		OperatorID:     req.OperatorID,
		FoundSizeClass: req.FoundSizeClass,
	})
	if err != nil {
		h.fail(c, "validation failed", err, "procedure_id", procedureID)
		return
	}
	ok(c, result)
}

// ValidateGuide handles POST /api/v1/guides/:guideId/validate
func (h *Handlers) ValidateGuide(c *gin.Context) {
	if !available(c, h.services.Validation != nil) {
		return
	}
	guideID, valid := idParam(c, "guideId")
	if !valid {
		return
	}
	var req GuideValidationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	result, err := h.services.Validation.EvaluateGuide(c.Request.Context(), guideID, req.OperatorID)
	if err != nil {
		h.fail(c, "guide validation failed", err, "guide_id", guideID)
		return
	}
	ok(c, result)
}

// ApproveProcedure handles POST /api/v1/procedures/:procedureId/approve
func (h *Handlers) ApproveProcedure(c *gin.Context) {
	h.decide(c, true)
}

// RejectProcedure handles POST /api/v1/procedures/:procedureId/reject
func (h *Handlers) RejectProcedure(c *gin.Context) {
	h.decide(c, false)
}

func (h *Handlers) decide(c *gin.Context, approve bool) {
	if !available(c, h.services.Decisions != nil) {
		return
	}
	procedureID, valid := idParam(c, "procedureId")
	if !valid {
		return
	}
	var body DecisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	req := service.DecisionRequest{
		GuideID:     body.GuideID,
		ProcedureID: procedureID,
		AuditorID:   body.AuditorID,
		AuditorName: body.AuditorName,
		Notes:       body.Notes,
	}

	var (
		result *service.DecisionResult
		err    error
	)
	if approve {
		result, err = h.services.Decisions.Approve(c.Request.Context(), req)
	} else {
		result, err = h.services.Decisions.Reject(c.Request.Context(), req)
	}
	if err != nil {
		h.fail(c, "decision failed", err, "procedure_id", procedureID, "approve", approve)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result, Message: result.Message})
}

// ApproveAll handles POST /api/v1/guides/:guideId/approve-all
func (h *Handlers) ApproveAll(c *gin.Context) {
	if !available(c, h.services.Decisions != nil) {
		return
	}
	guideID, valid := idParam(c, "guideId")
	if !valid {
		return
	}
	var req ApproveAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.services.Decisions.ApproveAll(c.Request.Context(), guideID, req.AuditorID, req.AuditorName)
	if err != nil {
		h.fail(c, "batch approval failed", err, "guide_id", guideID)
		return
	}
	ok(c, result)
}

// GuideStatus handles GET /api/v1/guides/:guideId/status
func (h *Handlers) GuideStatus(c *gin.Context) {
	if !available(c, h.services.Decisions != nil) {
		return
	}
	guideID, valid := idParam(c, "guideId")
	if !valid {
		return
	}

	result, err := h.services.Decisions.GuideStatus(c.Request.Context(), guideID)
	if err != nil {
		h.fail(c, "failed to get guide status", err, "guide_id", guideID)
		return
	}
	ok(c, result)
}

// AddContract handles POST /api/v1/references/contracts
func (h *Handlers) AddContract(c *gin.Context) {
	if !available(c, h.services.References != nil) {
		return
	}
	var in service.ContractInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	contract, err := h.services.References.AddContract(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "failed to add contract", err)
		return
	}
	created(c, contract)
}

// PutContractItem handles PUT /api/v1/references/contract-items
func (h *Handlers) PutContractItem(c *gin.Context) {
	if !available(c, h.services.References != nil) {
		return
	}
	var in service.ContractItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	item, err := h.services.References.PutContractItem(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "failed to store contract item", err)
		return
	}
	ok(c, item)
}

// AddReferencePrice handles POST /api/v1/references/prices
func (h *Handlers) AddReferencePrice(c *gin.Context) {
	if !available(c, h.services.References != nil) {
		return
	}
	var in service.ReferencePriceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	price, err := h.services.References.AddReferencePrice(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "failed to add reference price", err)
		return
	}
	created(c, price)
}

// PutSizeClass handles PUT /api/v1/references/size-classes
func (h *Handlers) PutSizeClass(c *gin.Context) {
	if !available(c, h.services.References != nil) {
		return
	}
	var in service.SizeClassInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	sc, err := h.services.References.PutSizeClass(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "failed to store size class", err)
		return
	}
	ok(c, sc)
}

// LookupReference handles GET /api/v1/references/codes/:code?operatorId=
func (h *Handlers) LookupReference(c *gin.Context) {
	if !available(c, h.services.References != nil) {
		return
	}
	code := c.Param("code")
	ref, err := h.services.References.Lookup(c.Request.Context(), code, c.Query("operatorId"))
	if err != nil {
		h.fail(c, "reference lookup failed", err, "code", code)
		return
	}
	ok(c, ref)
}

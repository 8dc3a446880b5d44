// Package http exposes the audit services over a JSON API.
// Handlers only translate requests into service calls.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/guide-audit/internal/application/service"
)

// RequestIDHeader carries the request id echoed on every response
const RequestIDHeader = "X-Request-ID"

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	Mode            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		Mode:            gin.ReleaseMode,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Services are the application services routed by the server. A nil
// service leaves its routes answering 503.
type Services struct {
	Guides     service.GuideService
	References service.ReferenceDataService
	Validation service.ValidationService
	Decisions  service.DecisionService
	Ledger     service.LedgerService
	Analytics  service.AnalyticsService
	Exports    service.ExportService
}

// HealthFunc reports whether the backing store is reachable
type HealthFunc func(ctx context.Context) error

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, health HealthFunc, logger Logger) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	server := &Server{
		config:   config,
		router:   gin.New(),
		handlers: NewHandlers(services, health, logger),
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString("request_id"),
		)
	}
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api/v1")
	{
		api.POST("/guides", h.CreateGuide)
		api.GET("/guides/:guideId", h.GetGuide)
		api.POST("/guides/:guideId/validate", h.ValidateGuide)
		api.POST("/guides/:guideId/approve-all", h.ApproveAll)
		api.GET("/guides/:guideId/status", h.GuideStatus)

		api.POST("/procedures/:procedureId/validate", h.ValidateProcedure)
		api.POST("/procedures/:procedureId/approve", h.ApproveProcedure)
		api.POST("/procedures/:procedureId/reject", h.RejectProcedure)

		refs := api.Group("/references")
		refs.POST("/contracts", h.AddContract)
		refs.PUT("/contract-items", h.PutContractItem)
		refs.POST("/prices", h.AddReferencePrice)
		refs.PUT("/size-classes", h.PutSizeClass)
		refs.GET("/codes/:code", h.LookupReference)

		ledger := api.Group("/ledger")
		ledger.POST("", h.AppendLedger)
		ledger.POST("/batch", h.AppendLedgerBatch)
		ledger.GET("/guides/:ref", h.LedgerByGuide)
		ledger.GET("/economy/period", h.EconomyByPeriod)
		ledger.GET("/economy/operator", h.EconomyByOperator)
		ledger.GET("/economy/auditor", h.EconomyByAuditor)
		ledger.GET("/economy/type", h.EconomyByType)
		ledger.GET("/summary", h.LedgerSummary)
		ledger.GET("/export.xlsx", h.ExportLedger)

		api.GET("/reports", h.ListReports)
		api.GET("/reports/:name", h.DownloadReport)

		api.GET("/analytics/savings", h.SavingsAnalytics)
		api.GET("/analytics/metrics", h.MetricsAnalytics)
		api.GET("/analytics/corrections", h.CorrectionAnalytics)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

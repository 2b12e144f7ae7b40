package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aescanero/dago-message-router/internal/analytics"
	"github.com/aescanero/dago-message-router/internal/migration"
	"github.com/aescanero/dago-message-router/internal/service"
	"go.uber.org/zap"
)

const (
	maxBodyBytes = 1 << 20
	maxBatchSize = 100
)

// Check reports the health of one dependency
type Check func(ctx context.Context) error

// Dependencies are the components the HTTP surface exposes
type Dependencies struct {
	Service     *service.Service
	Tracker     *analytics.Tracker
	Experiments *analytics.Experiments
	Migration   *migration.Controller
	Auth        Authenticator
	Checks      map[string]Check
}

// Server serves the routing API, the admin surface and health checks
type Server struct {
	port   int
	deps   Dependencies
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a new server
func NewServer(port int, deps Dependencies, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		port:   port,
		deps:   deps,
		logger: logger,
	}
}

// Handler returns the HTTP handler with every route registered
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	mux.HandleFunc("POST /v1/messages/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /v1/messages/route", s.handleRoute)
	mux.HandleFunc("POST /v1/messages/route/batch", s.handleBatch)
	mux.HandleFunc("GET /v1/routing-options", s.handleRoutingOptions)

	mux.Handle("GET /admin/migration/status", s.operator(s.handleMigrationStatus))
	mux.Handle("POST /admin/migration/validate", s.operator(s.handleMigrationValidate))
	mux.Handle("POST /admin/migration/start", s.operator(s.handleMigrationStart))
	mux.Handle("POST /admin/migration/rollback", s.operator(s.handleMigrationRollback))

	mux.Handle("GET /admin/analytics/performance", s.operator(s.handlePerformance))
	mux.Handle("GET /admin/analytics/escalations", s.operator(s.handleEscalationStats))
	mux.Handle("GET /admin/analytics/dead-letters", s.operator(s.handleDeadLetters))
	mux.Handle("GET /admin/analytics/ab-testing", s.operator(s.handleABResults))
	mux.Handle("POST /admin/analytics/ab-testing", s.operator(s.handleABStart))
	mux.Handle("POST /admin/analytics/ab-testing/{testId}/complete", s.operator(s.handleABComplete))
	mux.Handle("POST /admin/analytics/ab-testing/{testId}/outcome", s.operator(s.handleABOutcome))
	mux.Handle("POST /admin/escalations/{ticketId}/resolve", s.operator(s.handleResolveEscalation))

	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("starting http server", zap.Int("port", s.port))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("stopping http server")
	return s.server.Shutdown(ctx)
}

// operator gates a handler behind the authenticator
func (s *Server) operator(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Auth == nil {
			s.respondError(w, http.StatusUnauthorized, codeUnauthorized, "operator authentication is not configured")
			return
		}
		if err := s.deps.Auth.Authenticate(r); err != nil {
			s.logger.Warn("rejected admin request",
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			s.respondError(w, http.StatusUnauthorized, codeUnauthorized, "operator authentication required")
			return
		}
		next(w, r)
	})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.Checks))
	healthy := true
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			checks[name] = fmt.Sprintf("unhealthy: %v", err)
			healthy = false
			continue
		}
		checks[name] = "healthy"
	}

	if !healthy {
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Checks: checks,
		})
		return
	}

	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Checks: checks,
	})
}

// handleReady handles the /ready endpoint
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "not ready",
			})
			return
		}
	}

	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ready",
	})
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, code, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{Code: code, Message: message})
}

// fail maps a domain error to its status and code
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := service.Code(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	s.respondError(w, status, code, err.Error())
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, service.CodeInvalidInput, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

const (
	codeUnauthorized        = "UNAUTHORIZED"
	codePrerequisitesNotMet = "PREREQUISITES_NOT_MET"
	codeBatchTooLarge       = "BATCH_TOO_LARGE"
)

func statusFor(code string) int {
	switch code {
	case service.CodeInvalidInput, service.CodeInvalidPreference, service.CodeInvalidStage,
		service.CodeInvalidTestConfig, service.CodeUnknownVariant, service.CodeInvalidTimeRange:
		return http.StatusBadRequest
	case service.CodeTestNotFound:
		return http.StatusNotFound
	case service.CodeBackwardMigration, service.CodeStageSkip, service.CodeAlreadyAtFirstStage,
		service.CodeTestCompleted:
		return http.StatusConflict
	case service.CodeCancelled:
		return http.StatusRequestTimeout
	case service.CodeExecutionTimeout:
		return http.StatusGatewayTimeout
	case service.CodeRouteExecutionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/aescanero/dago-message-router/internal/analytics"
	"github.com/aescanero/dago-message-router/internal/analyzer"
	"github.com/aescanero/dago-message-router/internal/migration"
	"github.com/aescanero/dago-message-router/internal/router"
	"github.com/aescanero/dago-message-router/internal/service"
	"go.uber.org/zap"
)

type analyzeResponse struct {
	Analysis *analyzer.Analysis `json:"analysis"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req service.Request
	if !s.decode(w, r, &req) {
		return
	}

	analysis, err := s.deps.Service.AnalyzeMessage(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, analyzeResponse{Analysis: analysis})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req service.Request
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.deps.Service.RouteMessage(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type batchRequest struct {
	Messages []service.Request `json:"messages"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		s.respondError(w, http.StatusBadRequest, service.CodeInvalidInput, "messages must not be empty")
		return
	}
	if len(req.Messages) > maxBatchSize {
		s.respondError(w, http.StatusBadRequest, codeBatchTooLarge,
			fmt.Sprintf("batch of %d messages exceeds the limit of %d", len(req.Messages), maxBatchSize))
		return
	}

	s.respondJSON(w, http.StatusOK, s.deps.Service.BatchRouteMessages(r.Context(), req.Messages))
}

type routingOptionsResponse struct {
	Options []service.RoutingOption `json:"options"`
	Rules   router.RuleSet          `json:"rules"`
}

func (s *Server) handleRoutingOptions(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, routingOptionsResponse{
		Options: s.deps.Service.RoutingOptions(),
		Rules:   s.deps.Service.PolicyRules(),
	})
}

type stageRequest struct {
	TargetStage migration.Stage `json:"targetStage"`
}

type promotionFailure struct {
	ErrorResponse
	Checklist migration.Checklist `json:"checklist"`
}

func (s *Server) handleMigrationStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.deps.Migration.Status())
}

func (s *Server) handleMigrationValidate(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respondJSON(w, http.StatusOK, s.deps.Migration.ValidatePrerequisites(r.Context(), req.TargetStage))
}

// handleMigrationStart validates prerequisites and promotes only when they pass
func (s *Server) handleMigrationStart(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if !s.decode(w, r, &req) {
		return
	}

	list := s.deps.Migration.ValidatePrerequisites(r.Context(), req.TargetStage)
	if !list.CanProceed && list.TargetStageValid {
		s.respondJSON(w, http.StatusPreconditionFailed, promotionFailure{
			ErrorResponse: ErrorResponse{
				Code:    codePrerequisitesNotMet,
				Message: fmt.Sprintf("prerequisites for %s are not met", req.TargetStage),
			},
			Checklist: list,
		})
		return
	}

	// an invalid target falls through so the caller gets the specific error
	status, err := s.deps.Migration.Promote(r.Context(), req.TargetStage)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.logger.Info("migration promoted by operator", zap.String("stage", string(status.CurrentStage)))
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleMigrationRollback(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Migration.Rollback(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.logger.Info("migration rolled back by operator", zap.String("stage", string(status.CurrentStage)))
	s.respondJSON(w, http.StatusOK, status)
}

func filtersFrom(r *http.Request) (analytics.Filters, error) {
	q := r.URL.Query()
	tr, err := analytics.ParseTimeRange(q.Get("timeRange"))
	if err != nil {
		return analytics.Filters{}, err
	}

	routingType := q.Get("routingType")
	if routingType != "" && !router.Route(routingType).Valid() {
		return analytics.Filters{}, fmt.Errorf("%w: unknown routingType %q", router.ErrInvalidPreference, routingType)
	}

	return analytics.Filters{
		TimeRange:   tr,
		CandidateID: q.Get("candidateId"),
		RoutingType: routingType,
	}, nil
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	f, err := filtersFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	report, err := s.deps.Tracker.PerformanceMetrics(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleEscalationStats(w http.ResponseWriter, r *http.Request) {
	f, err := filtersFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	stats, err := s.deps.Tracker.EscalationStats(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"deadLetters": s.deps.Tracker.DeadLetters(),
	})
}

type abTestsResponse struct {
	Tests []analytics.ABTest `json:"tests"`
}

func (s *Server) handleABResults(w http.ResponseWriter, r *http.Request) {
	tests, err := s.deps.Experiments.Results(r.URL.Query().Get("testId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, abTestsResponse{Tests: tests})
}

func (s *Server) handleABStart(w http.ResponseWriter, r *http.Request) {
	var cfg analytics.TestConfig
	if !s.decode(w, r, &cfg) {
		return
	}

	test, err := s.deps.Experiments.Start(cfg)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, test)
}

func (s *Server) handleABComplete(w http.ResponseWriter, r *http.Request) {
	test, err := s.deps.Experiments.Complete(r.PathValue("testId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, test)
}

type outcomeRequest struct {
	Variant string `json:"variant"`
	Success bool   `json:"success"`
}

func (s *Server) handleABOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if !s.decode(w, r, &req) {
		return
	}

	testID := r.PathValue("testId")
	if err := s.deps.Experiments.RecordOutcome(testID, req.Variant, req.Success); err != nil {
		s.fail(w, r, err)
		return
	}

	tests, err := s.deps.Experiments.Results(testID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, tests[0])
}

type resolveRequest struct {
	CandidateID string `json:"candidateId"`
}

func (s *Server) handleResolveEscalation(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CandidateID) == "" {
		s.respondError(w, http.StatusBadRequest, service.CodeInvalidInput, "candidateId is required")
		return
	}

	ticketID := r.PathValue("ticketId")
	s.deps.Tracker.ResolveEscalation(req.CandidateID, ticketID)
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"ticketId": ticketID,
		"status":   "resolution recorded",
	})
}

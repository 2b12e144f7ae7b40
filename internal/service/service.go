package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/aescanero/dago-message-router/internal/analytics"
	"github.com/aescanero/dago-message-router/internal/analyzer"
	"github.com/aescanero/dago-message-router/internal/migration"
	"github.com/aescanero/dago-message-router/internal/router"
	"go.uber.org/zap"
)

// ControlVariant is the A/B variant served by the main policy
const ControlVariant = "control"

// RequestContext is the caller-supplied conversation context. A nil
// PreviousEscalations is looked up from the escalation history.
type RequestContext struct {
	PreviousEscalations *int              `json:"previousEscalations,omitempty"`
	SessionID           string            `json:"sessionId,omitempty"`
	Extra               map[string]string `json:"extra,omitempty"`
}

// Request is one inbound message
type Request struct {
	Message          string         `json:"message"`
	CandidateID      string         `json:"candidateId"`
	Context          RequestContext `json:"context"`
	PreferredRouting string         `json:"preferredRouting,omitempty"`
}

// Response is the outcome of routing one message
type Response struct {
	Analysis        *analyzer.Analysis `json:"analysis"`
	RoutingDecision router.Decision    `json:"routingDecision"`
	Result          *router.Result     `json:"result"`
	FailedDecision  *router.Decision   `json:"failedDecision,omitempty"`
	Variant         string             `json:"variant,omitempty"`
}

// EscalationHistory reports how often a candidate has been escalated
type EscalationHistory interface {
	EscalationCount(ctx context.Context, candidateID string) (int, error)
}

// StageGate reports whether a rollout stage is live
type StageGate interface {
	Enabled(stage migration.Stage) bool
}

// Dependencies are the components the service wires together. History,
// Experiments and Stages are optional.
type Dependencies struct {
	Analyzer        *analyzer.Analyzer
	Policy          *router.Policy
	Variants        map[string]*router.Policy
	Executor        *router.Executor
	Tracker         *analytics.Tracker
	History         EscalationHistory
	Experiments     *analytics.Experiments
	Stages          StageGate
	FallbackOnError bool
}

// Service runs the analyze, decide, execute and track pipeline
type Service struct {
	deps   Dependencies
	logger *zap.Logger
}

// New creates a service
func New(deps Dependencies, logger *zap.Logger) (*Service, error) {
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if deps.Policy == nil {
		return nil, fmt.Errorf("policy is required")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if deps.Variants == nil {
		deps.Variants = map[string]*router.Policy{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{deps: deps, logger: logger}, nil
}

// AnalyzeMessage analyzes a message without routing it
func (s *Service) AnalyzeMessage(ctx context.Context, req Request) (*analyzer.Analysis, error) {
	actx := s.resolveContext(ctx, req)
	return s.deps.Analyzer.Analyze(req.Message, actx)
}

// RouteMessage analyzes, decides, executes and tracks one message. The
// tracking record is written on every path that reaches a decision.
func (s *Service) RouteMessage(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.CandidateID) == "" {
		return nil, fmt.Errorf("%w: candidateId is required", analyzer.ErrInvalidInput)
	}

	pref, err := router.ParsePreference(req.PreferredRouting)
	if err != nil {
		return nil, err
	}

	actx := s.resolveContext(ctx, req)

	analysis, err := s.deps.Analyzer.Analyze(req.Message, actx)
	if err != nil {
		s.logger.Warn("analysis failed",
			zap.String("candidate_id", req.CandidateID),
			zap.Error(err),
		)
		return nil, err
	}

	md := analytics.Metadata{
		SessionID: actx.SessionID,
		Analysis:  analysis,
		Extra:     req.Context.Extra,
	}

	if ctx.Err() != nil {
		md.Incomplete = true
		md.Error = ctx.Err().Error()
		s.deps.Tracker.Track(req.CandidateID, req.Message, "", md)
		return nil, ctx.Err()
	}

	policy, variant := s.selectPolicy(req.CandidateID, pref)
	md.Variant = variant

	decision, err := policy.Decide(ctx, analysis, pref)
	if err != nil {
		return nil, err
	}
	md.Decision = &decision

	resp := &Response{
		Analysis:        analysis,
		RoutingDecision: decision,
		Variant:         variant,
	}

	if ctx.Err() != nil {
		return nil, s.incomplete(req, decision, md, ctx.Err())
	}

	result, err := s.deps.Executor.Execute(ctx, req.CandidateID, req.Message, decision, analysis, actx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.incomplete(req, decision, md, err)
		}
		return s.handleFailure(ctx, req, resp, md, actx, err)
	}

	resp.Result = result
	md.Result = result
	md.TicketID = result.TicketID
	s.deps.Tracker.Track(req.CandidateID, req.Message, decision.Type, md)

	s.logger.Info("message routed",
		zap.String("candidate_id", req.CandidateID),
		zap.String("route", string(decision.Type)),
		zap.String("reason", decision.Reason),
		zap.Float64("confidence", analysis.Confidence),
	)

	return resp, nil
}

// handleFailure handles a failed execution, retrying once against the fallback
// route when enabled
func (s *Service) handleFailure(ctx context.Context, req Request, resp *Response, md analytics.Metadata, actx analyzer.Context, execErr error) (*Response, error) {
	decision := resp.RoutingDecision
	md.Error = execErr.Error()

	var routeErr *router.RouteExecutionError
	if !s.deps.FallbackOnError || decision.Type == router.RouteFallback || !errors.As(execErr, &routeErr) {
		s.deps.Tracker.Track(req.CandidateID, req.Message, decision.Type, md)
		return nil, execErr
	}

	fallback := router.FallbackFor(decision.Type)
	result, err := s.deps.Executor.Execute(ctx, req.CandidateID, req.Message, fallback, resp.Analysis, actx)
	if err != nil {
		s.logger.Error("fallback after failed route also failed",
			zap.String("candidate_id", req.CandidateID),
			zap.String("route", string(decision.Type)),
			zap.Error(err),
		)
		md.Incomplete = ctx.Err() != nil
		s.deps.Tracker.Track(req.CandidateID, req.Message, decision.Type, md)
		return nil, execErr
	}

	md.Result = result
	md.Extra = maps.Clone(md.Extra)
	if md.Extra == nil {
		md.Extra = make(map[string]string, 1)
	}
	md.Extra["fallback_reason"] = fallback.Reason
	s.deps.Tracker.Track(req.CandidateID, req.Message, decision.Type, md)

	s.logger.Warn("route failed, answered with fallback",
		zap.String("candidate_id", req.CandidateID),
		zap.String("route", string(decision.Type)),
		zap.Error(execErr),
	)

	failed := decision
	resp.FailedDecision = &failed
	resp.RoutingDecision = fallback
	resp.Result = result
	return resp, nil
}

func (s *Service) incomplete(req Request, decision router.Decision, md analytics.Metadata, err error) error {
	md.Incomplete = true
	md.Error = err.Error()
	s.deps.Tracker.Track(req.CandidateID, req.Message, decision.Type, md)

	s.logger.Info("routing abandoned before completion",
		zap.String("candidate_id", req.CandidateID),
		zap.String("route", string(decision.Type)),
	)
	return err
}

// resolveContext fills previousEscalations from the history when the caller
// omitted it. History failures are logged and treated as zero.
func (s *Service) resolveContext(ctx context.Context, req Request) analyzer.Context {
	actx := analyzer.Context{
		SessionID: req.Context.SessionID,
		Extra:     req.Context.Extra,
	}

	if req.Context.PreviousEscalations != nil {
		actx.PreviousEscalations = *req.Context.PreviousEscalations
		return actx
	}
	if s.deps.History == nil || req.CandidateID == "" {
		return actx
	}

	count, err := s.deps.History.EscalationCount(ctx, req.CandidateID)
	if err != nil {
		s.logger.Warn("failed to read escalation history",
			zap.String("candidate_id", req.CandidateID),
			zap.Error(err),
		)
		return actx
	}
	actx.PreviousEscalations = count
	return actx
}

// selectPolicy picks the A/B variant policy for auto routing once the
// optimization stage is live
func (s *Service) selectPolicy(candidateID string, pref router.Preference) (*router.Policy, string) {
	if !pref.IsAuto() || s.deps.Experiments == nil || s.deps.Stages == nil {
		return s.deps.Policy, ""
	}
	if !s.deps.Stages.Enabled(migration.StageOptimization) {
		return s.deps.Policy, ""
	}

	test, ok := s.deps.Experiments.Active()
	if !ok {
		return s.deps.Policy, ""
	}

	variant, err := s.deps.Experiments.Assign(test.ID, candidateID)
	if err != nil {
		s.logger.Warn("variant assignment failed", zap.String("test_id", test.ID), zap.Error(err))
		return s.deps.Policy, ""
	}
	if err := s.deps.Experiments.RecordParticipation(test.ID, variant, candidateID); err != nil {
		s.logger.Warn("failed to record participation", zap.String("test_id", test.ID), zap.Error(err))
	}

	if policy, ok := s.deps.Variants[variant]; ok {
		return policy, variant
	}
	if variant != ControlVariant {
		s.logger.Warn("no policy for variant, using main policy",
			zap.String("test_id", test.ID),
			zap.String("variant", variant),
		)
	}
	return s.deps.Policy, variant
}

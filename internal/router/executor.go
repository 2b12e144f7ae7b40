package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/dago-message-router/internal/analyzer"
	"go.uber.org/zap"
)

// Generator produces an AI-written response
type Generator interface {
	Generate(ctx context.Context, message string, actx analyzer.Context) (string, error)
}

// Template is a canned response selected for an analysis
type Template struct {
	ID       string
	Response string
}

// TemplateMatcher selects a canned response. It returns nil when nothing matches.
type TemplateMatcher interface {
	Match(ctx context.Context, analysis *analyzer.Analysis) (*Template, error)
}

// EscalationQueue hands a message to human operators and returns a ticket id
type EscalationQueue interface {
	Enqueue(ctx context.Context, candidateID, message string, analysis *analyzer.Analysis) (string, error)
}

// FallbackResponder produces the generic response used when nothing else can
type FallbackResponder interface {
	Fallback(ctx context.Context, candidateID string, analysis *analyzer.Analysis) (string, error)
}

// Collaborators groups the external systems the executor dispatches to.
// A nil collaborator makes its route fail with ErrCollaboratorMissing.
type Collaborators struct {
	Generator   Generator
	Templates   TemplateMatcher
	Escalations EscalationQueue
	Fallback    FallbackResponder
}

// Executor invokes the collaborator selected by a Decision
type Executor struct {
	collab  Collaborators
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewExecutor creates an executor. A positive timeout bounds every
// collaborator call.
func NewExecutor(collab Collaborators, timeout time.Duration, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		collab:  collab,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
}

// Execute dispatches to exactly one collaborator. Failures are returned as
// *RouteExecutionError carrying the attempted route; the executor never
// switches to another route on its own.
func (e *Executor) Execute(ctx context.Context, candidateID, message string, decision Decision, analysis *analyzer.Analysis, actx analyzer.Context) (*Result, error) {
	if !decision.Type.Valid() {
		return nil, &RouteExecutionError{Route: decision.Type, Err: fmt.Errorf("unknown route %q", decision.Type)}
	}

	start := e.now()

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	out, err := e.call(callCtx, func(c context.Context) (dispatchOutput, error) {
		return e.dispatch(c, candidateID, message, decision, analysis, actx)
	})
	if err != nil {
		execErr := e.classify(ctx, callCtx, decision.Type, err)
		e.logger.Warn("route execution failed",
			zap.String("candidate_id", candidateID),
			zap.String("route", string(decision.Type)),
			zap.Bool("timeout", execErr.Timeout()),
			zap.Error(execErr.Err),
		)
		return nil, execErr
	}

	result := &Result{
		Response:         out.response,
		ResponseType:     decision.Type,
		Confidence:       decision.Confidence,
		ProcessingTimeMs: e.now().Sub(start).Milliseconds(),
		TicketID:         out.ticketID,
		TemplateID:       out.templateID,
		Timestamp:        e.now(),
	}

	e.logger.Debug("route executed",
		zap.String("candidate_id", candidateID),
		zap.String("route", string(decision.Type)),
		zap.Int64("processing_time_ms", result.ProcessingTimeMs),
	)

	return result, nil
}

type dispatchOutput struct {
	response   string
	ticketID   string
	templateID string
}

// call runs fn and stops waiting once ctx is done, so collaborators that
// ignore their context still cannot block the caller
func (e *Executor) call(ctx context.Context, fn func(context.Context) (dispatchOutput, error)) (dispatchOutput, error) {
	type outcome struct {
		out dispatchOutput
		err error
	}

	done := make(chan outcome, 1)
	go func() {
		out, err := fn(ctx)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		return o.out, o.err
	case <-ctx.Done():
		return dispatchOutput{}, ctx.Err()
	}
}

func (e *Executor) dispatch(ctx context.Context, candidateID, message string, decision Decision, analysis *analyzer.Analysis, actx analyzer.Context) (dispatchOutput, error) {
	switch decision.Type {
	case RouteAI:
		if e.collab.Generator == nil {
			return dispatchOutput{}, ErrCollaboratorMissing
		}
		text, err := e.collab.Generator.Generate(ctx, message, actx)
		if err != nil {
			return dispatchOutput{}, err
		}
		return dispatchOutput{response: text}, nil

	case RouteTemplate:
		if e.collab.Templates == nil {
			return dispatchOutput{}, ErrCollaboratorMissing
		}
		tpl, err := e.collab.Templates.Match(ctx, analysis)
		if err != nil {
			return dispatchOutput{}, err
		}
		if tpl == nil {
			return dispatchOutput{}, ErrNoTemplate
		}
		return dispatchOutput{response: tpl.Response, templateID: tpl.ID}, nil

	case RouteEscalation:
		if e.collab.Escalations == nil {
			return dispatchOutput{}, ErrCollaboratorMissing
		}
		ticket, err := e.collab.Escalations.Enqueue(ctx, candidateID, message, analysis)
		if err != nil {
			return dispatchOutput{}, err
		}
		return dispatchOutput{response: ticket, ticketID: ticket}, nil

	case RouteFallback:
		if e.collab.Fallback == nil {
			return dispatchOutput{}, ErrCollaboratorMissing
		}
		text, err := e.collab.Fallback.Fallback(ctx, candidateID, analysis)
		if err != nil {
			return dispatchOutput{}, err
		}
		return dispatchOutput{response: text}, nil

	default:
		return dispatchOutput{}, fmt.Errorf("unknown route %q", decision.Type)
	}
}

// classify separates caller cancellation from the executor's own deadline
func (e *Executor) classify(parent, callCtx context.Context, route Route, err error) *RouteExecutionError {
	switch {
	case parent.Err() != nil:
		return &RouteExecutionError{Route: route, Err: parent.Err()}
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return &RouteExecutionError{
			Route: route,
			Err:   fmt.Errorf("%w after %s: %w", ErrExecutionTimeout, e.timeout, callCtx.Err()),
		}
	default:
		return &RouteExecutionError{Route: route, Err: err}
	}
}

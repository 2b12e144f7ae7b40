package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aescanero/dago-message-router/internal/analyzer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	text  string
	err   error
	block bool
}

func (f *fakeGenerator) Generate(ctx context.Context, message string, actx analyzer.Context) (string, error) {
	if f.block {
		// ignores ctx on purpose
		time.Sleep(time.Second)
	}
	return f.text, f.err
}

type fakeTemplates struct {
	tpl *Template
	err error
}

func (f *fakeTemplates) Match(ctx context.Context, a *analyzer.Analysis) (*Template, error) {
	return f.tpl, f.err
}

type fakeEscalations struct {
	ticket    string
	err       error
	candidate string
}

func (f *fakeEscalations) Enqueue(ctx context.Context, candidateID, message string, a *analyzer.Analysis) (string, error) {
	f.candidate = candidateID
	return f.ticket, f.err
}

type fakeFallback struct {
	text string
}

func (f *fakeFallback) Fallback(ctx context.Context, candidateID string, a *analyzer.Analysis) (string, error) {
	return f.text, nil
}

func newTestExecutor(collab Collaborators, timeout time.Duration) *Executor {
	return NewExecutor(collab, timeout, nil)
}

func TestExecute_DispatchesToCollaborator(t *testing.T) {
	escalations := &fakeEscalations{ticket: "1700000000000-0"}
	e := newTestExecutor(Collaborators{
		Generator:   &fakeGenerator{text: "generated"},
		Templates:   &fakeTemplates{tpl: &Template{ID: "payment_status", Response: "canned"}},
		Escalations: escalations,
		Fallback:    &fakeFallback{text: "sorry"},
	}, time.Second)

	tests := []struct {
		route        Route
		wantResponse string
	}{
		{RouteAI, "generated"},
		{RouteTemplate, "canned"},
		{RouteEscalation, "1700000000000-0"},
		{RouteFallback, "sorry"},
	}

	for _, tt := range tests {
		t.Run(string(tt.route), func(t *testing.T) {
			decision := NewDecision(tt.route, 0.7, "test")
			got, err := e.Execute(context.Background(), "cand-1", "hello", decision, &analyzer.Analysis{}, analyzer.Context{})
			require.NoError(t, err)

			assert.Equal(t, tt.wantResponse, got.Response)
			assert.Equal(t, tt.route, got.ResponseType)
			assert.Equal(t, 0.7, got.Confidence)
			assert.GreaterOrEqual(t, got.ProcessingTimeMs, int64(0))
			assert.False(t, got.Timestamp.IsZero())
		})
	}

	assert.Equal(t, "cand-1", escalations.candidate)
}

func TestExecute_ResultCarriesIdentifiers(t *testing.T) {
	e := newTestExecutor(Collaborators{
		Templates:   &fakeTemplates{tpl: &Template{ID: "greeting", Response: "hi"}},
		Escalations: &fakeEscalations{ticket: "t-1"},
	}, 0)

	got, err := e.Execute(context.Background(), "c", "m", NewDecision(RouteTemplate, 0.8, "r"), &analyzer.Analysis{}, analyzer.Context{})
	require.NoError(t, err)
	assert.Equal(t, "greeting", got.TemplateID)

	got, err = e.Execute(context.Background(), "c", "m", NewDecision(RouteEscalation, 0.8, "r"), &analyzer.Analysis{}, analyzer.Context{})
	require.NoError(t, err)
	assert.Equal(t, "t-1", got.TicketID)
}

func TestExecute_CollaboratorFailure(t *testing.T) {
	boom := errors.New("llm unavailable")
	e := newTestExecutor(Collaborators{Generator: &fakeGenerator{err: boom}}, time.Second)

	_, err := e.Execute(context.Background(), "c", "m", NewDecision(RouteAI, 0.7, "r"), &analyzer.Analysis{}, analyzer.Context{})

	var execErr *RouteExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, RouteAI, execErr.Route)
	assert.ErrorIs(t, err, boom)
	assert.False(t, execErr.Timeout())
}

func TestExecute_NoTemplateMatch(t *testing.T) {
	e := newTestExecutor(Collaborators{Templates: &fakeTemplates{}}, time.Second)

	_, err := e.Execute(context.Background(), "c", "m", NewDecision(RouteTemplate, 0.8, "r"), &analyzer.Analysis{}, analyzer.Context{})

	var execErr *RouteExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, RouteTemplate, execErr.Route)
	assert.ErrorIs(t, err, ErrNoTemplate)
}

func TestExecute_MissingCollaborator(t *testing.T) {
	e := newTestExecutor(Collaborators{}, time.Second)

	for _, route := range Routes {
		_, err := e.Execute(context.Background(), "c", "m", NewDecision(route, 0.8, "r"), &analyzer.Analysis{}, analyzer.Context{})
		assert.ErrorIs(t, err, ErrCollaboratorMissing, string(route))
	}
}

func TestExecute_Timeout(t *testing.T) {
	e := newTestExecutor(Collaborators{Generator: &fakeGenerator{block: true}}, 20*time.Millisecond)

	start := time.Now()
	_, err := e.Execute(context.Background(), "c", "m", NewDecision(RouteAI, 0.7, "r"), &analyzer.Analysis{}, analyzer.Context{})
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	var execErr *RouteExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.True(t, execErr.Timeout())
	assert.ErrorIs(t, err, ErrExecutionTimeout)
	assert.Equal(t, RouteAI, execErr.Route)
}

func TestExecute_ParentCancellation(t *testing.T) {
	e := newTestExecutor(Collaborators{Generator: &fakeGenerator{block: true}}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := e.Execute(ctx, "c", "m", NewDecision(RouteAI, 0.7, "r"), &analyzer.Analysis{}, analyzer.Context{})

	var execErr *RouteExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, execErr.Timeout())
}

func TestExecute_UnknownRoute(t *testing.T) {
	e := newTestExecutor(Collaborators{}, time.Second)

	_, err := e.Execute(context.Background(), "c", "m", NewDecision("teleport", 0.8, "r"), &analyzer.Analysis{}, analyzer.Context{})

	var execErr *RouteExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, Route("teleport"), execErr.Route)
}

func TestFallbackFor(t *testing.T) {
	d := FallbackFor(RouteAI)
	assert.Equal(t, RouteFallback, d.Type)
	assert.Equal(t, "fallback_after_ai_response_failure", d.Reason)
}

package router

import (
	"errors"
	"fmt"
	"time"
)

// Route is a downstream handling strategy for a message
type Route string

const (
	// RouteAI generates a response with the AI backend
	RouteAI Route = "ai_response"

	// RouteTemplate answers with a canned template
	RouteTemplate Route = "template_response"

	// RouteEscalation hands the message to a human operator
	RouteEscalation Route = "escalation"

	// RouteFallback sends the generic fallback response
	RouteFallback Route = "fallback"
)

// Routes lists every route in catalog order
var Routes = []Route{RouteAI, RouteTemplate, RouteEscalation, RouteFallback}

// Valid reports whether r is one of the known routes
func (r Route) Valid() bool {
	switch r {
	case RouteAI, RouteTemplate, RouteEscalation, RouteFallback:
		return true
	}
	return false
}

func (r Route) String() string {
	return string(r)
}

// PreferenceAuto lets the policy choose the route
const PreferenceAuto = "auto"

// Preference is either PreferenceAuto or an explicit route
type Preference string

// ParsePreference validates a caller-supplied routing preference. An empty
// value means auto.
func ParsePreference(s string) (Preference, error) {
	if s == "" || s == PreferenceAuto {
		return PreferenceAuto, nil
	}
	if !Route(s).Valid() {
		return "", fmt.Errorf("%w: unknown routing preference %q", ErrInvalidPreference, s)
	}
	return Preference(s), nil
}

// IsAuto reports whether the policy should choose the route
func (p Preference) IsAuto() bool {
	return p == "" || p == PreferenceAuto
}

// Decision reasons
const (
	ReasonExplicit       = "explicitly_requested"
	ReasonLowConfidence  = "low_confidence_or_complex_query"
	ReasonNeedsAI        = "complex_query_needs_ai"
	ReasonTemplateMatch  = "simple_query_template_match"
	ReasonFallbackPrefix = "fallback_after_"
)

// Decision is the chosen handling strategy for one message. It is created
// once by the policy and never modified.
type Decision struct {
	Type       Route   `json:"type"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// NewDecision creates a new Decision
func NewDecision(route Route, confidence float64, reason string) Decision {
	return Decision{
		Type:       route,
		Confidence: confidence,
		Reason:     reason,
	}
}

// FallbackFor builds the decision a caller uses to retry a failed route
func FallbackFor(failed Route) Decision {
	return NewDecision(RouteFallback, 0.5, ReasonFallbackPrefix+string(failed)+"_failure")
}

// Result is the outcome of executing a Decision
type Result struct {
	Response         string    `json:"response"`
	ResponseType     Route     `json:"responseType"`
	Confidence       float64   `json:"confidence"`
	ProcessingTimeMs int64     `json:"processingTimeMs"`
	TicketID         string    `json:"ticketId,omitempty"`
	TemplateID       string    `json:"templateId,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

var (
	// ErrInvalidPreference is returned for an unknown routing preference
	ErrInvalidPreference = errors.New("invalid routing preference")

	// ErrExecutionTimeout marks a collaborator call that exceeded its deadline
	ErrExecutionTimeout = errors.New("execution timed out")

	// ErrNoTemplate is returned when no template matches the analysis
	ErrNoTemplate = errors.New("no matching template")

	// ErrCollaboratorMissing is returned when a route has no collaborator configured
	ErrCollaboratorMissing = errors.New("collaborator not configured")
)

// RouteExecutionError reports a collaborator failure for the attempted route.
// Timeouts are RouteExecutionErrors wrapping ErrExecutionTimeout.
type RouteExecutionError struct {
	Route Route
	Err   error
}

func (e *RouteExecutionError) Error() string {
	return fmt.Sprintf("route %s failed: %v", e.Route, e.Err)
}

func (e *RouteExecutionError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline on the collaborator call
func (e *RouteExecutionError) Timeout() bool {
	return errors.Is(e.Err, ErrExecutionTimeout)
}

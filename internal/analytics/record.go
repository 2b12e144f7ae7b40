package analytics

import (
	"time"
	"unicode/utf8"

	"github.com/aescanero/dago-message-router/internal/analyzer"
	"github.com/aescanero/dago-message-router/internal/router"
)

// PreviewLength is the maximum number of runes of a message kept in a record
const PreviewLength = 100

// Kind distinguishes routed messages from escalation resolutions
type Kind string

const (
	// KindRouting is written once per routed message
	KindRouting Kind = "routing"

	// KindResolution is written when an operator resolves an escalation
	KindResolution Kind = "resolution"
)

// Metadata is the per-message context stored alongside a record
type Metadata struct {
	SessionID  string
	Analysis   *analyzer.Analysis
	Decision   *router.Decision
	Result     *router.Result
	TicketID   string
	Error      string
	Incomplete bool
	Variant    string
	Extra      map[string]string
}

// Record is the persisted unit of the tracker. Records are append-only.
type Record struct {
	ID                  string             `json:"id"`
	Kind                Kind               `json:"kind"`
	CandidateID         string             `json:"candidateId"`
	SessionID           string             `json:"sessionId,omitempty"`
	InputPreview        string             `json:"inputMessagePreview,omitempty"`
	RoutingDecisionType string             `json:"routingDecisionType,omitempty"`
	Analysis            *analyzer.Analysis `json:"analysis,omitempty"`
	Decision            *router.Decision   `json:"routingDecision,omitempty"`
	Result              *router.Result     `json:"result,omitempty"`
	TicketID            string             `json:"ticketId,omitempty"`
	Error               string             `json:"error,omitempty"`
	Incomplete          bool               `json:"incomplete,omitempty"`
	Variant             string             `json:"variant,omitempty"`
	Metadata            map[string]string  `json:"metadata,omitempty"`
	Timestamp           time.Time          `json:"timestamp"`
}

// Succeeded reports whether the routed message produced a result
func (r *Record) Succeeded() bool {
	return r.Kind == KindRouting && r.Result != nil && r.Error == "" && !r.Incomplete
}

// Escalated reports whether the message was actually handed to a human
func (r *Record) Escalated() bool {
	return r.Succeeded() && r.Result.ResponseType == router.RouteEscalation
}

// Preview truncates a message to PreviewLength runes
func Preview(message string) string {
	if utf8.RuneCountInString(message) <= PreviewLength {
		return message
	}
	runes := []rune(message)
	return string(runes[:PreviewLength])
}

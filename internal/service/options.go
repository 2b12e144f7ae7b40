package service

import "github.com/aescanero/dago-message-router/internal/router"

// RoutingOption describes one value accepted as preferredRouting
type RoutingOption struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

var optionDescriptions = map[router.Route]string{
	router.RouteAI:         "Generate a reply with the AI backend",
	router.RouteTemplate:   "Answer with a canned template matched to the message",
	router.RouteEscalation: "Hand the message to a human operator",
	router.RouteFallback:   "Send the generic fallback reply",
}

// RoutingOptions lists auto followed by every route
func (s *Service) RoutingOptions() []RoutingOption {
	opts := make([]RoutingOption, 0, len(router.Routes)+1)
	opts = append(opts, RoutingOption{
		Type:        router.PreferenceAuto,
		Description: "Let the routing policy choose from the message analysis",
	})
	for _, r := range router.Routes {
		opts = append(opts, RoutingOption{Type: string(r), Description: optionDescriptions[r]})
	}
	return opts
}

// PolicyRules returns the rules of the main policy
func (s *Service) PolicyRules() router.RuleSet {
	return s.deps.Policy.Rules()
}

// Package service runs the message routing pipeline: analyze the message,
// decide a route, execute it and track the outcome.
//
// Tracking happens on every path that reaches a decision. A request
// cancelled before execution finishes is tracked as incomplete with the
// decision computed so far. When FallbackOnError is set, a failed route is
// retried once against the fallback route and the response carries both
// decisions.
//
//	svc, err := service.New(service.Dependencies{
//	    Analyzer: a,
//	    Policy:   policy,
//	    Executor: executor,
//	    Tracker:  tracker,
//	    History:  store,
//	}, logger)
//	resp, err := svc.RouteMessage(ctx, service.Request{Message: msg, CandidateID: id})
package service

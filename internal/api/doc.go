// Package api exposes the message router over HTTP.
//
// Public endpoints:
//
//	GET  /health
//	GET  /ready
//	POST /v1/messages/analyze
//	POST /v1/messages/route
//	POST /v1/messages/route/batch
//	GET  /v1/routing-options
//
// Endpoints under /admin require operator credentials checked by an
// Authenticator; TokenAuthenticator accepts a static bearer token. They
// cover the migration stages, routing analytics, A/B tests and escalation
// resolution.
//
// Errors are returned as {"code": "...", "message": "..."} with the HTTP
// status derived from the code.
package api

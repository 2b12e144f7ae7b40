package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned when a request carries no valid operator credentials
var ErrUnauthorized = errors.New("unauthorized")

// Authenticator decides whether a request may use the admin endpoints
type Authenticator interface {
	Authenticate(r *http.Request) error
}

// TokenAuthenticator accepts requests bearing a static operator token
type TokenAuthenticator struct {
	token string
}

// NewTokenAuthenticator creates a new token authenticator
func NewTokenAuthenticator(token string) *TokenAuthenticator {
	return &TokenAuthenticator{token: token}
}

// Authenticate checks the Authorization bearer token. An empty configured
// token rejects every request.
func (a *TokenAuthenticator) Authenticate(r *http.Request) error {
	if a.token == "" {
		return ErrUnauthorized
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

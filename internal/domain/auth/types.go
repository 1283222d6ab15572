// Package auth decides who a caller is and which tenant they may act on.
package auth

import "errors"

// ErrUnauthenticated is returned when neither a session cookie nor a valid
// API key is presented. Maps to HTTP 401. Cross-tenant denials have no
// sentinel: AuthorizeTenant returns a bool and the transport writes the 403.
var ErrUnauthenticated = errors.New("unauthenticated")

// Method records how a principal authenticated.
type Method string

const (
	// MethodSession means a session cookie resolved to a live session.
	MethodSession Method = "session"
	// MethodAPIKey means the shared API secret matched.
	MethodAPIKey Method = "api_key"
)

// Principal is an authenticated caller.
type Principal struct {
	// Tenant is the namespace the caller may act on. For API-key callers
	// this is always the configured administrative tenant.
	Tenant string
	// Email is the session's verified address; empty for API-key callers.
	Email string
	// Method records the authentication mode that succeeded.
	Method Method
}

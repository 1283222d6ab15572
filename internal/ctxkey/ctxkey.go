// Package ctxkey defines shared context key types, allowing cross-package
// context access without import cycles.
package ctxkey

// LoggerKey is the context key for the request-enriched slog.Logger.
type LoggerKey struct{}

// RequestIDKey is the context key for the request ID.
type RequestIDKey struct{}

// PrincipalKey is the context key for the authenticated *auth.Principal.
type PrincipalKey struct{}

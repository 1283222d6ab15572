package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/khamel/linkgate/internal/ctxkey"
	"github.com/khamel/linkgate/internal/domain/auth"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session"

// APIKeyHeader is the header carrying the shared API secret.
const APIKeyHeader = "X-API-Key"

// LoggerKey is the context key for the enriched logger.
// Uses the shared key type from ctxkey to allow cross-package access.
var LoggerKey = ctxkey.LoggerKey{}

// RequestIDKey is the context key for the request ID.
var RequestIDKey = ctxkey.RequestIDKey{}

// PrincipalKey is the context key for the authenticated principal.
var PrincipalKey = ctxkey.PrincipalKey{}

// RequestIDMiddleware extracts or generates a request ID and enriches the
// logger. The ID is stored under RequestIDKey, the enriched logger under
// LoggerKey, and echoed in the X-Request-ID response header for correlation.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enriched := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enriched)

			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// AuthMiddleware extracts the session cookie and API-key header, resolves
// them through AccessControl, and stores any resulting principal in context.
// Unauthenticated requests pass through with no principal: resolution and
// the login flow are public, so enforcement happens per-handler.
func AuthMiddleware(access *auth.AccessControl) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if c, err := r.Cookie(SessionCookieName); err == nil {
				token = c.Value
			}
			apiKey := r.Header.Get(APIKeyHeader)

			principal, err := access.Authenticate(r.Context(), token, apiKey)
			if err == nil {
				ctx := context.WithValue(r.Context(), PrincipalKey, principal)
				r = r.WithContext(ctx)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext retrieves the authenticated principal from context.
// Returns nil for unauthenticated requests.
func PrincipalFromContext(ctx context.Context) *auth.Principal {
	if p, ok := ctx.Value(PrincipalKey).(*auth.Principal); ok {
		return p
	}
	return nil
}

// RealIPMiddleware extracts the client's real IP address for logging.
// It checks X-Forwarded-For and X-Real-IP (reverse proxy support), falling
// back to r.RemoteAddr. Only the first X-Forwarded-For entry is trusted.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractRealIP(r)
		logger := LoggerFromContext(r.Context()).With("client_ip", ip)
		ctx := context.WithValue(r.Context(), LoggerKey, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractRealIP extracts the client's real IP address from the request.
func extractRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if ip := strings.TrimSpace(ips[0]); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

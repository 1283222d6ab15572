package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"

	"github.com/khamel/linkgate/internal/domain/auth"
	"github.com/khamel/linkgate/internal/domain/identity"
	"github.com/khamel/linkgate/internal/domain/route"
	"github.com/khamel/linkgate/internal/domain/session"
	"github.com/khamel/linkgate/internal/kv"
)

// ViewRecorder accepts best-effort view-count increments, dispatched after
// the redirect is constructed and never blocking the response path.
type ViewRecorder interface {
	Record(tenant, path string)
}

// Handler serves route resolution, the route CRUD API and the login flow.
type Handler struct {
	routes   *route.Table
	sessions *session.Manager
	access   *auth.AccessControl
	gateway  *identity.Gateway
	views    ViewRecorder
	metrics  *Metrics

	// domain is the registrable service domain ("example.com"). The tenant
	// acted on by a request is derived from the Host header: bare domain
	// maps to defaultTenant, "<tenant>.<domain>" maps to that tenant.
	domain        string
	defaultTenant string
}

// HandlerConfig wires the handler's collaborators.
type HandlerConfig struct {
	Routes        *route.Table
	Sessions      *session.Manager
	Access        *auth.AccessControl
	Gateway       *identity.Gateway
	Views         ViewRecorder // optional
	Domain        string
	DefaultTenant string
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		routes:        cfg.Routes,
		sessions:      cfg.Sessions,
		access:        cfg.Access,
		gateway:       cfg.Gateway,
		views:         cfg.Views,
		domain:        cfg.Domain,
		defaultTenant: cfg.DefaultTenant,
	}
}

// Register mounts all application routes on the mux. Observability routes
// (/health, /metrics) are mounted by the transport.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /routes", h.handleListRoutes)
	mux.HandleFunc("POST /routes", h.handleCreateRoute)
	mux.HandleFunc("DELETE /routes/{path}", h.handleDeleteRoute)
	mux.HandleFunc("GET /auth/login", h.handleLogin)
	mux.HandleFunc("GET /auth/callback", h.handleCallback)
	mux.HandleFunc("GET /auth/logout", h.handleLogout)
	mux.HandleFunc("/", h.handleResolve)
}

// targetTenant derives the tenant a request acts on from the Host header.
// The Host header is attacker-controlled: a subdomain naming a reserved
// namespace ("session", "email", ...) must never become a tenant, or the
// resolver would serve that namespace's keys as routes. Returns "" for such
// hosts; callers answer 404.
func (h *Handler) targetTenant(r *http.Request) string {
	host := r.Host
	if hp, _, err := net.SplitHostPort(host); err == nil {
		host = hp
	}
	host = strings.ToLower(host)

	if h.domain != "" && strings.HasSuffix(host, "."+h.domain) {
		tenant := strings.TrimSuffix(host, "."+h.domain)
		if kv.IsReservedTenant(tenant) {
			return ""
		}
		return tenant
	}
	return h.defaultTenant
}

// requireTenant authenticates the caller and checks the tenant claim against
// the tenant being acted on. Writes the error response and returns "" when
// the request may not proceed.
func (h *Handler) requireTenant(w http.ResponseWriter, r *http.Request) string {
	principal := PrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return ""
	}

	tenant := h.targetTenant(r)
	if tenant == "" {
		writeError(w, http.StatusNotFound, "unknown tenant")
		return ""
	}
	if !h.access.AuthorizeTenant(principal, tenant) {
		writeError(w, http.StatusForbidden, "not authorized for this tenant")
		return ""
	}
	return tenant
}

// handleListRoutes returns the tenant's routes sorted by path.
func (h *Handler) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	tenant := h.requireTenant(w, r)
	if tenant == "" {
		return
	}

	routes, err := h.routes.List(r.Context(), tenant)
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to list routes", "tenant", tenant, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"routes": routes})
}

// handleCreateRoute creates or overwrites a route.
func (h *Handler) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	tenant := h.requireTenant(w, r)
	if tenant == "" {
		return
	}

	var req struct {
		Path   string `json:"path"`
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := h.routes.Put(r.Context(), tenant, req.Path, req.Target)
	if errors.Is(err, route.ErrBadPath) || errors.Is(err, route.ErrMissingField) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to store route", "tenant", tenant, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}

	LoggerFromContext(r.Context()).Info("route stored", "tenant", tenant, "path", created.Path)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"path":    created.Path,
		"target":  created.Target,
	})
}

// handleDeleteRoute removes a route. Deleting an absent path succeeds.
func (h *Handler) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	tenant := h.requireTenant(w, r)
	if tenant == "" {
		return
	}

	path := r.PathValue("path")
	if err := h.routes.Delete(r.Context(), tenant, path); err != nil {
		LoggerFromContext(r.Context()).Error("failed to delete route", "tenant", tenant, "path", path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"deleted": strings.ToLower(path),
	})
}

// handleLogin redirects the browser to the provider's authorization URL.
// An optional ?return= URL rides in the OAuth state parameter.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	authURL := h.gateway.BeginLogin(r.URL.Query().Get("return"))
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback completes the OAuth exchange, issues the session cookie and
// redirects to the validated return target or the tenant landing view.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logger := LoggerFromContext(r.Context())

	if e := q.Get("error"); e != "" {
		http.Error(w, fmt.Sprintf("login failed: provider returned %q", e), http.StatusBadRequest)
		return
	}

	id, err := h.gateway.CompleteLogin(r.Context(), q.Get("code"))
	switch {
	case errors.Is(err, identity.ErrMissingCode):
		http.Error(w, "login failed: missing authorization code", http.StatusBadRequest)
		return
	case errors.Is(err, identity.ErrNoAccount):
		// Guidance rather than a bare 403: the login itself succeeded.
		http.Error(w, "no account is linked to this email; ask the administrator to add one", http.StatusForbidden)
		return
	case errors.Is(err, identity.ErrProvider):
		logger.Warn("identity provider error", "error", err)
		http.Error(w, "login failed: identity provider error", http.StatusBadRequest)
		return
	case err != nil:
		logger.Error("login failed", "error", err)
		http.Error(w, "login failed", http.StatusBadGateway)
		return
	}

	sess, err := h.sessions.Create(r.Context(), id.Email, id.Tenant)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
		return
	}
	if h.metrics != nil {
		h.metrics.SessionsIssued.Inc()
	}
	logger.Info("login complete", "tenant", sess.Tenant)

	h.setSessionCookie(w, sess.ID, int(h.sessions.TTL().Seconds()))

	// The state parameter is attacker-influenced; only absolute https URLs
	// on the service domain are honored as redirect targets.
	dest := "/"
	if state := q.Get("state"); identity.SafeReturnURL(state, h.domain) {
		dest = state
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

// handleLogout revokes the session and clears the cookie. Idempotent.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.sessions.Revoke(r.Context(), c.Value); err != nil {
			LoggerFromContext(r.Context()).Warn("failed to revoke session", "error", err)
		}
	}
	h.setSessionCookie(w, "", -1)
	http.Redirect(w, r, "/", http.StatusFound)
}

// setSessionCookie writes the session cookie per the service's contract:
// HttpOnly, Secure, SameSite=Lax, scoped to the registrable domain so
// tenant subdomains share the session.
func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if h.domain != "" {
		cookie.Domain = h.domain
	}
	http.SetCookie(w, cookie)
}

// handleResolve is the catch-all: the empty path renders the tenant landing
// view, anything else resolves to a redirect or a 404 listing the tenant's
// routes.
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	tenant := h.targetTenant(r)
	if tenant == "" {
		http.Error(w, "unknown tenant", http.StatusNotFound)
		return
	}

	if r.URL.Path == "/" {
		h.renderLanding(w, r, tenant)
		return
	}

	target, err := h.routes.Resolve(r.Context(), tenant, r.URL.Path)
	var notFound *route.NotFoundError
	if errors.As(err, &notFound) {
		if h.metrics != nil {
			h.metrics.ResolutionsTotal.WithLabelValues("not_found").Inc()
		}
		writeRouteNotFound(w, notFound)
		return
	}
	if err != nil {
		LoggerFromContext(r.Context()).Error("resolution failed", "tenant", tenant, "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	if h.metrics != nil {
		h.metrics.ResolutionsTotal.WithLabelValues("redirect").Inc()
	}
	if h.views != nil {
		name, _, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
		h.views.Record(tenant, strings.ToLower(name))
	}

	// 307 preserves method and body for non-GET clients.
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// writeRouteNotFound renders the plain-text 404 listing the tenant's routes
// for discoverability.
func writeRouteNotFound(w http.ResponseWriter, nf *route.NotFoundError) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)

	var b strings.Builder
	fmt.Fprintf(&b, "Not found: /%s\n\nAvailable routes:\n", nf.Route)
	for _, p := range nf.Available {
		fmt.Fprintf(&b, "  /%s\n", p)
	}
	_, _ = w.Write([]byte(b.String()))
}

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Tenant}}</title>
</head>
<body>
  <h1>{{.Tenant}}</h1>
  <ul>
  {{- range .Routes}}
    <li><a href="/{{.Path}}">/{{.Path}}</a></li>
  {{- end}}
  </ul>
</body>
</html>
`))

// renderLanding lists the tenant's routes as links.
func (h *Handler) renderLanding(w http.ResponseWriter, r *http.Request, tenant string) {
	routes, err := h.routes.List(r.Context(), tenant)
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to list routes for landing", "tenant", tenant, "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Tenant string
		Routes []route.Route
	}{Tenant: tenant, Routes: routes}
	if err := landingTemplate.Execute(w, data); err != nil {
		LoggerFromContext(r.Context()).Error("failed to render landing", "error", err)
	}
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the machine-readable {error} body used by API endpoints.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

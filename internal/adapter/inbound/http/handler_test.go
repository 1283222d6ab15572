package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/khamel/linkgate/internal/domain/auth"
	"github.com/khamel/linkgate/internal/domain/identity"
	"github.com/khamel/linkgate/internal/domain/route"
	"github.com/khamel/linkgate/internal/domain/session"
	"github.com/khamel/linkgate/internal/kv/memory"
)

const testAPIKey = "test-api-secret"

type testApp struct {
	handler  http.Handler
	store    *memory.Store
	sessions *session.Manager
	routes   *route.Table
}

// newTestApp assembles the handler behind the same middleware chain the
// transport uses, minus metrics and TLS.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	store := memory.NewStore()
	sessions := session.NewManager(store, session.Config{})
	routes := route.NewTable(store)
	access := auth.NewAccessControl(sessions, auth.HashSecret(testAPIKey), "admin")

	h := NewHandler(HandlerConfig{
		Routes:        routes,
		Sessions:      sessions,
		Access:        access,
		Gateway:       newLoginGateway(),
		Domain:        "example.com",
		DefaultTenant: "admin",
	})

	mux := http.NewServeMux()
	h.Register(mux)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var handler http.Handler = mux
	handler = AuthMiddleware(access)(handler)
	handler = RequestIDMiddleware(logger)(handler)

	return &testApp{handler: handler, store: store, sessions: sessions, routes: routes}
}

// do executes a request against the app. host controls the tenant derivation.
func (a *testApp) do(method, host, target, body string, decorate func(*http.Request)) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Host = host
	if decorate != nil {
		decorate(req)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func withAPIKey(r *http.Request) {
	r.Header.Set(APIKeyHeader, testAPIKey)
}

func (a *testApp) withSessionFor(t *testing.T, email, tenant string) func(*http.Request) {
	t.Helper()
	sess, err := a.sessions.Create(context.Background(), email, tenant)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.ID})
	}
}

func TestHandler_CreateListResolve(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	rec := app.do(http.MethodPost, "example.com", "/routes", `{"path":"fd","target":"https://one.example/x/"}`, withAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /routes status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Success bool   `json:"success"`
		Path    string `json:"path"`
		Target  string `json:"target"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !created.Success || created.Path != "fd" || created.Target != "https://one.example/x/" {
		t.Errorf("POST /routes response = %+v", created)
	}

	rec = app.do(http.MethodGet, "example.com", "/routes", "", withAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /routes status = %d", rec.Code)
	}
	var listed struct {
		Routes []route.Route `json:"routes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(listed.Routes) != 1 || listed.Routes[0].Path != "fd" {
		t.Errorf("GET /routes = %+v", listed.Routes)
	}

	rec = app.do(http.MethodGet, "example.com", "/fd", "", nil)
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("GET /fd status = %d, want 307", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://one.example/x/" {
		t.Errorf("Location = %q, want stored target verbatim", loc)
	}
}

func TestHandler_ResolveCarriesSubpath(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	app.do(http.MethodPost, "example.com", "/routes", `{"path":"fd","target":"https://one.example/x/"}`, withAPIKey)

	rec := app.do(http.MethodGet, "example.com", "/fd/extra/deep", "", nil)
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://one.example/x/extra/deep" {
		t.Errorf("Location = %q, want subpath appended", loc)
	}
}

func TestHandler_ResolveUnknownListsRoutes(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	app.do(http.MethodPost, "example.com", "/routes", `{"path":"fd","target":"https://one.example/"}`, withAPIKey)
	app.do(http.MethodPost, "example.com", "/routes", `{"path":"tv","target":"https://two.example/"}`, withAPIKey)

	rec := app.do(http.MethodGet, "example.com", "/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Not found: /nope") {
		t.Errorf("404 body missing requested route: %q", body)
	}
	if !strings.Contains(body, "/fd") || !strings.Contains(body, "/tv") {
		t.Errorf("404 body missing available routes: %q", body)
	}
}

func TestHandler_DeleteRoute(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	app.do(http.MethodPost, "example.com", "/routes", `{"path":"fd","target":"https://one.example/"}`, withAPIKey)

	rec := app.do(http.MethodDelete, "example.com", "/routes/fd", "", withAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	var deleted struct {
		Success bool   `json:"success"`
		Deleted string `json:"deleted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &deleted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !deleted.Success || deleted.Deleted != "fd" {
		t.Errorf("DELETE response = %+v", deleted)
	}

	if rec := app.do(http.MethodGet, "example.com", "/fd", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET /fd after delete status = %d, want 404", rec.Code)
	}

	// Deleting an absent route still succeeds.
	if rec := app.do(http.MethodDelete, "example.com", "/routes/fd", "", withAPIKey); rec.Code != http.StatusOK {
		t.Errorf("repeat DELETE status = %d, want 200", rec.Code)
	}
}

func TestHandler_CreateValidation(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "bad path characters", body: `{"path":"../etc","target":"https://x/"}`},
		{name: "missing target", body: `{"path":"fd"}`},
		{name: "missing path", body: `{"target":"https://x/"}`},
		{name: "invalid JSON", body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodPost, "example.com", "/routes", tt.body, withAPIKey)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_ManagementRequiresAuth(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	for _, tc := range []struct {
		method string
		target string
	}{
		{http.MethodGet, "/routes"},
		{http.MethodPost, "/routes"},
		{http.MethodDelete, "/routes/fd"},
	} {
		rec := app.do(tc.method, "example.com", tc.target, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", tc.method, tc.target, rec.Code)
		}
	}
}

func TestHandler_CrossTenantForbidden(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	asAlice := app.withSessionFor(t, "alice@example.com", "alice")

	// alice manages her own subdomain.
	rec := app.do(http.MethodPost, "alice.example.com", "/routes", `{"path":"fd","target":"https://a/"}`, asAlice)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST as alice on alice host status = %d", rec.Code)
	}

	// alice cannot manage bob's namespace.
	rec = app.do(http.MethodGet, "bob.example.com", "/routes", "", asAlice)
	if rec.Code != http.StatusForbidden {
		t.Errorf("GET as alice on bob host status = %d, want 403", rec.Code)
	}

	// The API key is bound to the admin tenant only.
	rec = app.do(http.MethodGet, "alice.example.com", "/routes", "", withAPIKey)
	if rec.Code != http.StatusForbidden {
		t.Errorf("GET with API key on alice host status = %d, want 403", rec.Code)
	}
}

func TestHandler_TenantFromHost(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	asAlice := app.withSessionFor(t, "alice@example.com", "alice")

	app.do(http.MethodPost, "alice.example.com", "/routes", `{"path":"fd","target":"https://alice.example/"}`, asAlice)
	app.do(http.MethodPost, "example.com", "/routes", `{"path":"fd","target":"https://admin.example/"}`, withAPIKey)

	rec := app.do(http.MethodGet, "alice.example.com", "/fd", "", nil)
	if loc := rec.Header().Get("Location"); loc != "https://alice.example/" {
		t.Errorf("alice host Location = %q", loc)
	}

	// A port on the Host header does not change the tenant.
	rec = app.do(http.MethodGet, "alice.example.com:8080", "/fd", "", nil)
	if loc := rec.Header().Get("Location"); loc != "https://alice.example/" {
		t.Errorf("alice host with port Location = %q", loc)
	}

	rec = app.do(http.MethodGet, "example.com", "/fd", "", nil)
	if loc := rec.Header().Get("Location"); loc != "https://admin.example/" {
		t.Errorf("bare domain Location = %q", loc)
	}
}

func TestHandler_ReservedHostsAreNotTenants(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app := newTestApp(t)

	// Seed every reserved namespace: a live session, a directory entry and a
	// view counter all share the "<prefix>:" keyspace with route keys.
	sess, err := app.sessions.Create(ctx, "alice@example.com", "alice")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := app.store.Put(ctx, "email:bob@corp.example", "bob"); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := app.store.Put(ctx, "views:alice:fd", "42"); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	// The landing page on a reserved host must not list that namespace's
	// keys as routes; session tokens are replayable cookies.
	rec := app.do(http.MethodGet, "session.example.com", "/", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET / on session host status = %d, want 404", rec.Code)
	}
	if strings.Contains(rec.Body.String(), sess.ID) {
		t.Error("landing on session host leaked a live session token")
	}

	// Nor may the resolver read a reserved namespace's values as targets.
	rec = app.do(http.MethodGet, "session.example.com", "/"+sess.ID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /<token> on session host status = %d, want 404", rec.Code)
	}
	rec = app.do(http.MethodGet, "email.example.com", "/bob@corp.example", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET on email host status = %d, want 404", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "" {
		t.Errorf("email host resolved to %q, want no redirect", loc)
	}

	for _, host := range []string{"email.example.com", "views.example.com", "status.example.com"} {
		if rec := app.do(http.MethodGet, host, "/", "", nil); rec.Code != http.StatusNotFound {
			t.Errorf("GET / on %s status = %d, want 404", host, rec.Code)
		}
	}

	// The management API gets the same answer, even authenticated.
	rec = app.do(http.MethodGet, "session.example.com", "/routes", "", withAPIKey)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /routes on session host status = %d, want 404", rec.Code)
	}
}

func TestHandler_LandingListsRoutes(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	app.do(http.MethodPost, "example.com", "/routes", `{"path":"fd","target":"https://one.example/"}`, withAPIKey)

	rec := app.do(http.MethodGet, "example.com", "/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(rec.Body.String(), `href="/fd"`) {
		t.Errorf("landing page missing route link: %s", rec.Body.String())
	}
}

func TestHandler_LogoutClearsCookieAndRevokes(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	sess, err := app.sessions.Create(context.Background(), "alice@example.com", "alice")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	rec := app.do(http.MethodGet, "alice.example.com", "/auth/logout", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.ID})
	})
	if rec.Code != http.StatusFound {
		t.Fatalf("logout status = %d, want 302", rec.Code)
	}

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("logout did not clear the session cookie")
	}

	if _, err := app.sessions.Resolve(context.Background(), sess.ID); err == nil {
		t.Error("session still resolvable after logout")
	}

	// Logout without a session is still a redirect.
	if rec := app.do(http.MethodGet, "alice.example.com", "/auth/logout", "", nil); rec.Code != http.StatusFound {
		t.Errorf("logout without cookie status = %d, want 302", rec.Code)
	}
}

func TestHandler_LoginRedirectsToProvider(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/login?return=https://alice.example.com/", nil)

	h := NewHandler(HandlerConfig{
		Routes:   route.NewTable(memory.NewStore()),
		Sessions: session.NewManager(memory.NewStore(), session.Config{}),
		Gateway:  newLoginGateway(),
		Domain:   "example.com",
	})
	h.handleLogin(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("login status = %d, want 302", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://provider.example/auth") {
		t.Errorf("Location = %q, want provider auth URL", loc)
	}
	if !strings.Contains(loc, "state=") {
		t.Errorf("Location = %q, want state parameter", loc)
	}
}

func TestHandler_ViewRecorderInvoked(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	sessions := session.NewManager(store, session.Config{})
	routes := route.NewTable(store)
	access := auth.NewAccessControl(sessions, auth.HashSecret(testAPIKey), "admin")
	views := &captureViews{}

	h := NewHandler(HandlerConfig{
		Routes:        routes,
		Sessions:      sessions,
		Access:        access,
		Views:         views,
		Domain:        "example.com",
		DefaultTenant: "admin",
	})

	if _, err := routes.Put(context.Background(), "admin", "fd", "https://x/"); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/FD/sub", nil)
	req.Host = "example.com"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	if views.tenant != "admin" || views.path != "fd" {
		t.Errorf("Record(%q, %q), want (admin, fd)", views.tenant, views.path)
	}
}

func TestHandler_CallbackIssuesSessionCookie(t *testing.T) {
	t.Parallel()

	providerMux := http.NewServeMux()
	providerMux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fake-token","token_type":"bearer"}`))
	})
	providerMux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"alice@example.com"}`))
	})
	provider := httptest.NewServer(providerMux)
	t.Cleanup(provider.Close)

	store := memory.NewStore()
	sessions := session.NewManager(store, session.Config{})
	gateway := identity.NewGateway(identity.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      provider.URL + "/auth",
		TokenURL:     provider.URL + "/token",
		ProfileURL:   provider.URL + "/profile",
		RedirectURL:  "https://example.com/auth/callback",
		AllowedEmail: "alice@example.com",
		Tenant:       "alice",
	}, store)

	h := NewHandler(HandlerConfig{
		Routes:   route.NewTable(store),
		Sessions: sessions,
		Gateway:  gateway,
		Domain:   "example.com",
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=any&state=https://alice.example.com/routes", nil)
	h.handleCallback(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("callback status = %d, body %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "https://alice.example.com/routes" {
		t.Errorf("Location = %q, want validated state honored", loc)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("callback did not set a session cookie")
	}
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie attributes = %+v, want HttpOnly Secure SameSite=Lax", cookie)
	}
	if cookie.Domain != "example.com" {
		t.Errorf("cookie Domain = %q, want %q", cookie.Domain, "example.com")
	}

	sess, err := sessions.Resolve(context.Background(), cookie.Value)
	if err != nil {
		t.Fatalf("Resolve() of issued cookie error: %v", err)
	}
	if sess.Tenant != "alice" || sess.Email != "alice@example.com" {
		t.Errorf("issued session = %+v", sess)
	}
}

func TestHandler_CallbackRejectsOffDomainState(t *testing.T) {
	t.Parallel()

	providerMux := http.NewServeMux()
	providerMux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fake-token","token_type":"bearer"}`))
	})
	providerMux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"alice@example.com"}`))
	})
	provider := httptest.NewServer(providerMux)
	t.Cleanup(provider.Close)

	store := memory.NewStore()
	gateway := identity.NewGateway(identity.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      provider.URL + "/auth",
		TokenURL:     provider.URL + "/token",
		ProfileURL:   provider.URL + "/profile",
		RedirectURL:  "https://example.com/auth/callback",
		AllowedEmail: "alice@example.com",
		Tenant:       "alice",
	}, store)

	h := NewHandler(HandlerConfig{
		Routes:   route.NewTable(store),
		Sessions: session.NewManager(store, session.Config{}),
		Gateway:  gateway,
		Domain:   "example.com",
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=any&state=https://evil.example/phish", nil)
	h.handleCallback(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("callback status = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want / for off-domain state", loc)
	}
}

func TestHandler_CallbackProviderError(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	rec := app.do(http.MethodGet, "example.com", "/auth/callback?error=access_denied", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("callback with provider error status = %d, want 400", rec.Code)
	}

	rec = app.do(http.MethodGet, "example.com", "/auth/callback", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("callback without code status = %d, want 400", rec.Code)
	}
}

func newLoginGateway() *identity.Gateway {
	return identity.NewGateway(identity.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      "https://provider.example/auth",
		TokenURL:     "https://provider.example/token",
		ProfileURL:   "https://provider.example/profile",
		RedirectURL:  "https://example.com/auth/callback",
		AllowedEmail: "alice@example.com",
		Tenant:       "alice",
	}, memory.NewStore())
}

type captureViews struct {
	tenant, path string
}

func (c *captureViews) Record(tenant, path string) {
	c.tenant = tenant
	c.path = path
}

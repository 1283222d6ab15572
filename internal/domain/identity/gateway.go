// Package identity executes the OAuth authorization-code exchange against
// the single configured identity provider and binds verified identities to
// local tenants.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/khamel/linkgate/internal/kv"
)

// DefaultHTTPTimeout bounds the token exchange and profile fetch. A slow
// provider surfaces as an error to the caller, never a hung request.
const DefaultHTTPTimeout = 10 * time.Second

// ErrMissingCode is returned when the callback carries no authorization code.
var ErrMissingCode = errors.New("missing authorization code")

// ErrProvider is returned when the provider rejects the exchange or the
// token/profile fetch fails. Maps to HTTP 400.
var ErrProvider = errors.New("identity provider error")

// ErrNoAccount is returned when a verified email has no linked tenant.
// Maps to HTTP 403 with a guidance page.
var ErrNoAccount = errors.New("no account linked to this email")

// Identity is a provider-verified email bound to a local tenant.
type Identity struct {
	Email  string
	Tenant string
}

// Config holds provider endpoints and tenant binding settings.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	// ProfileURL is fetched with the bearer token to learn the email.
	ProfileURL  string
	RedirectURL string

	// AllowedEmail enables single-tenant mode: the identity is accepted
	// iff its email equals this address, binding to Tenant. When empty,
	// the gateway runs in directory mode and looks emails up under
	// "email:" keys in the store.
	AllowedEmail string
	Tenant       string

	// HTTPTimeout bounds outbound provider calls. Default: 10s.
	HTTPTimeout time.Duration
}

// Gateway drives the login flow: BeginLogin builds the authorization URL,
// CompleteLogin exchanges the callback code and resolves the tenant.
type Gateway struct {
	oauth        *oauth2.Config
	profileURL   string
	store        kv.Store
	allowedEmail string
	tenant       string
	client       *http.Client
}

// NewGateway creates a Gateway. The store is only consulted in directory
// mode and may be shared with every other component.
func NewGateway(cfg Config, store kv.Store) *Gateway {
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}
	return &Gateway{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"profile", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		profileURL:   cfg.ProfileURL,
		store:        store,
		allowedEmail: cfg.AllowedEmail,
		tenant:       cfg.Tenant,
		client:       &http.Client{Timeout: timeout},
	}
}

// BeginLogin builds the provider's authorization URL. returnHint rides in
// the state parameter and is round-tripped unmodified by the provider; it is
// validated against the service domain on the way back, never here.
func (g *Gateway) BeginLogin(returnHint string) string {
	return g.oauth.AuthCodeURL(returnHint)
}

// CompleteLogin exchanges the authorization code for a bearer token, fetches
// the profile, and binds the verified email to a tenant.
// Returns ErrMissingCode, ErrProvider or ErrNoAccount.
func (g *Gateway) CompleteLogin(ctx context.Context, code string) (*Identity, error) {
	if code == "" {
		return nil, ErrMissingCode
	}

	// Route the exchange and profile fetch through the bounded client.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)

	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange failed: %v", ErrProvider, err)
	}

	email, err := g.fetchEmail(ctx, token)
	if err != nil {
		return nil, err
	}

	tenant, err := g.ResolveTenant(ctx, email)
	if err != nil {
		return nil, err
	}

	return &Identity{Email: email, Tenant: tenant}, nil
}

// fetchEmail retrieves the profile with the bearer token and extracts the
// verified email address.
func (g *Gateway) fetchEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	resp, err := g.oauth.Client(ctx, token).Get(g.profileURL)
	if err != nil {
		return "", fmt.Errorf("%w: profile fetch failed: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: profile fetch returned %d", ErrProvider, resp.StatusCode)
	}

	var profile struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("%w: failed to decode profile: %v", ErrProvider, err)
	}
	if profile.Email == "" {
		return "", fmt.Errorf("%w: profile contains no email", ErrProvider)
	}
	return profile.Email, nil
}

// ResolveTenant maps a verified email to its tenant.
// Single-tenant mode compares against the configured address; directory mode
// looks the email up under "email:" keys. Returns ErrNoAccount on a miss.
func (g *Gateway) ResolveTenant(ctx context.Context, email string) (string, error) {
	if g.allowedEmail != "" {
		if strings.EqualFold(email, g.allowedEmail) {
			return g.tenant, nil
		}
		return "", ErrNoAccount
	}

	tenant, err := g.store.Get(ctx, kv.EmailPrefix+strings.ToLower(email))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return "", ErrNoAccount
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up account: %w", err)
	}
	// A directory entry naming a reserved namespace would mint a session
	// whose tenant claim aliases that namespace's keys.
	if kv.IsReservedTenant(tenant) {
		return "", ErrNoAccount
	}
	return tenant, nil
}

// SafeReturnURL reports whether a state value may be honored as the
// post-login redirect target. Only absolute https URLs on the service domain
// or a subdomain of it qualify; anything else falls back to the default
// post-login location. A bare prefix check would pass
// "https://evil.example/...", so the registrable domain is matched explicitly.
func SafeReturnURL(raw, serviceDomain string) bool {
	if raw == "" || serviceDomain == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	return strings.EqualFold(host, serviceDomain) ||
		strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(serviceDomain))
}

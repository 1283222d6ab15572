package auth

import (
	"context"
	"errors"

	"github.com/khamel/linkgate/internal/domain/session"
)

// AccessControl authenticates callers and authorizes tenant actions.
// Transport concerns (cookie and header extraction) stay in the HTTP
// adapter; this type sees only the credential values.
type AccessControl struct {
	sessions    *session.Manager
	secretHash  string
	adminTenant string
}

// NewAccessControl creates an AccessControl. secretHash is the hashed shared
// API secret (empty disables API-key auth); adminTenant is the fixed
// namespace API-key callers act as.
func NewAccessControl(sessions *session.Manager, secretHash, adminTenant string) *AccessControl {
	return &AccessControl{
		sessions:    sessions,
		secretHash:  secretHash,
		adminTenant: adminTenant,
	}
}

// Authenticate tries the session token first, then the API key; the first
// success wins. Returns ErrUnauthenticated if both fail. An unresolvable
// session token does not block a valid API key on the same request.
func (a *AccessControl) Authenticate(ctx context.Context, sessionToken, apiKey string) (*Principal, error) {
	if sessionToken != "" {
		sess, err := a.sessions.Resolve(ctx, sessionToken)
		if err == nil {
			return &Principal{Tenant: sess.Tenant, Email: sess.Email, Method: MethodSession}, nil
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			return nil, err
		}
	}

	if apiKey != "" && a.secretHash != "" {
		match, err := VerifySecret(apiKey, a.secretHash)
		if err == nil && match {
			return &Principal{Tenant: a.adminTenant, Method: MethodAPIKey}, nil
		}
	}

	return nil, ErrUnauthenticated
}

// AuthorizeTenant reports whether the principal may act on tenant.
// Authorization is tenant equality, nothing more: API-key principals carry
// the administrative tenant and are authorized for it alone.
func (a *AccessControl) AuthorizeTenant(p *Principal, tenant string) bool {
	return p != nil && p.Tenant == tenant
}

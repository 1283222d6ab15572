package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/khamel/linkgate/internal/kv"
)

// Config holds session manager configuration.
type Config struct {
	// TTL is the session lifetime. Default: 30 days.
	TTL time.Duration
}

// Manager issues, resolves and revokes session tokens. Records live under
// "session:<token>" keys with a store-enforced TTL; the manager holds no
// state of its own.
type Manager struct {
	store kv.Store
	ttl   time.Duration
}

// NewManager creates a Manager with the given store and config.
func NewManager(store kv.Store, cfg Config) *Manager {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl}
}

// TTL returns the configured session lifetime, for cookie Max-Age.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create issues a new session bound to the given email and tenant.
func (m *Manager) Create(ctx context.Context, email, tenant string) (*Session, error) {
	id, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        id,
		Email:     email,
		Tenant:    tenant,
		CreatedAt: time.Now().UTC(),
	}

	record, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.store.PutTTL(ctx, kv.SessionPrefix+id, string(record), m.ttl); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return sess, nil
}

// Resolve looks up a session by token.
// Returns ErrSessionNotFound if the token is absent or expired; expiry is
// delegated to the store's TTL.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	record, err := m.store.Get(ctx, kv.SessionPrefix+token)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(record), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	sess.ID = token
	return &sess, nil
}

// Revoke deletes a session immediately. Idempotent: revoking an absent or
// already-expired token succeeds.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if err := m.store.Delete(ctx, kv.SessionPrefix+token); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// GenerateToken creates a cryptographically random session token.
// Returns 64 hex characters (32 bytes).
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

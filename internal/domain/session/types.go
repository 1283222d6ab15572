// Package session manages the login session lifecycle over the key-value
// store. Sessions are bearer records: whoever presents the token acts as the
// tenant the record names.
package session

import (
	"errors"
	"time"
)

// DefaultTTL is the fixed session lifetime. There is no sliding renewal.
const DefaultTTL = 30 * 24 * time.Hour

// ErrSessionNotFound is returned when a session doesn't exist or has expired.
var ErrSessionNotFound = errors.New("session not found")

// Session is the stored record behind a session token.
// Tenant is immutable for the session's lifetime and is the sole authority
// for which namespace the bearer may mutate.
type Session struct {
	// ID is the opaque token, 32 random bytes hex-encoded. Not serialized;
	// it is the storage key.
	ID string `json:"-"`
	// Email is the verified address the identity provider returned.
	Email string `json:"email"`
	// Tenant is the namespace this session is bound to.
	Tenant string `json:"tenant"`
	// CreatedAt is when the session was issued (UTC).
	CreatedAt time.Time `json:"created_at"`
}

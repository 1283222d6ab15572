// Package kv defines the key-value store port that all durable state in
// linkgate sits on. Implementations live under kv/memory, kv/rediskv and
// kv/sqlitekv and are selected by configuration.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key doesn't exist or has expired.
var ErrKeyNotFound = errors.New("key not found")

// Reserved key prefixes. Everything else in the store is a tenant route key
// of the form "<tenant>:<path>".
const (
	// SessionPrefix namespaces session tokens.
	SessionPrefix = "session:"
	// EmailPrefix namespaces the email-to-tenant directory entries.
	EmailPrefix = "email:"
	// StatusPrefix namespaces target health records written by the poller.
	StatusPrefix = "status:"
	// ViewsPrefix namespaces best-effort view counters.
	ViewsPrefix = "views:"
)

// reservedPrefixes lists every non-route namespace.
var reservedPrefixes = []string{SessionPrefix, EmailPrefix, StatusPrefix, ViewsPrefix}

// IsReservedKey reports whether key belongs to one of the non-route
// namespaces. Used when scanning the whole store for route entries.
func IsReservedKey(key string) bool {
	for _, p := range reservedPrefixes {
		if len(key) >= len(p) && key[:len(p)] == p {
			return true
		}
	}
	return false
}

// IsReservedTenant reports whether a tenant name aliases one of the reserved
// namespaces. Route keys share the "<prefix>:" keyspace with the reserved
// prefixes, so a tenant named "session" would read and write session records
// as if they were routes. Such names are rejected wherever tenant names enter
// the system: the Host header, the email directory and configuration.
func IsReservedTenant(tenant string) bool {
	return IsReservedKey(tenant + ":")
}

// Store provides namespaced string persistence with optional per-key expiry.
// Each call is atomic on its own; there are no multi-key transactions, and
// concurrent writers to the same key race under last-write-wins. Every
// component resolves state fresh from the store per call.
type Store interface {
	// Get returns the value for key.
	// Returns ErrKeyNotFound if the key is absent or expired.
	Get(ctx context.Context, key string) (string, error)

	// Put stores value under key with no expiry, overwriting any
	// existing value.
	Put(ctx context.Context, key, value string) error

	// PutTTL stores value under key, expiring after ttl.
	// A non-positive ttl behaves like Put.
	PutTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// ListPrefix returns all live keys starting with prefix, paired with
	// their values. Iteration order is unspecified.
	ListPrefix(ctx context.Context, prefix string) (map[string]string, error)
}

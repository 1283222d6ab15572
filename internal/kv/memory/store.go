// Package memory provides an in-memory kv.Store for development and tests.
package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/khamel/linkgate/internal/kv"
)

// DefaultSweepInterval is how often the background sweeper removes expired keys.
const DefaultSweepInterval = 1 * time.Minute

type entry struct {
	value     string
	expiresAt time.Time // zero = never expires
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store implements kv.Store with a mutex-protected map.
// Thread-safe for concurrent access. A background sweeper goroutine removes
// expired entries periodically; reads never return expired values either way.
type Store struct {
	entries       map[string]entry
	mu            sync.RWMutex
	stopChan      chan struct{}
	wg            sync.WaitGroup
	sweepInterval time.Duration
	once          sync.Once // prevent double-close panic on Stop
}

// NewStore creates an in-memory store with the default sweep interval.
func NewStore() *Store {
	return NewStoreWithSweepInterval(DefaultSweepInterval)
}

// NewStoreWithSweepInterval creates an in-memory store with a custom sweep interval.
func NewStoreWithSweepInterval(interval time.Duration) *Store {
	return &Store{
		entries:       make(map[string]entry),
		stopChan:      make(chan struct{}),
		sweepInterval: interval,
	}
}

// StartSweeper starts the background expiry sweeper.
// Call Stop to shut it down gracefully.
func (s *Store) StartSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	swept := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			swept++
		}
	}

	if swept > 0 {
		slog.Debug("swept expired keys", "count", swept)
	}
}

// Stop stops the sweeper goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *Store) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Get returns the value for key, or kv.ErrKeyNotFound if absent or expired.
// Expired entries are not deleted here; the sweeper handles deletion.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || e.expired(time.Now().UTC()) {
		return "", kv.ErrKeyNotFound
	}
	return e.value, nil
}

// Put stores value under key with no expiry.
func (s *Store) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: value}
	return nil
}

// PutTTL stores value under key, expiring after ttl.
func (s *Store) PutTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Put(ctx, key, value)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: value, expiresAt: time.Now().UTC().Add(ttl)}
	return nil
}

// Delete removes key. No-op if absent.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// ListPrefix returns all live keys starting with prefix.
func (s *Store) ListPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()
	out := make(map[string]string)
	for key, e := range s.entries {
		if strings.HasPrefix(key, prefix) && !e.expired(now) {
			out[key] = e.value
		}
	}
	return out, nil
}

// Size returns the number of entries currently stored, expired or not.
// Useful for testing sweeper behavior.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Compile-time interface verification.
var _ kv.Store = (*Store)(nil)

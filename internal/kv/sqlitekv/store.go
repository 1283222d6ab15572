// Package sqlitekv provides a SQLite-backed kv.Store for single-node
// durable deployments.
package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/khamel/linkgate/internal/kv"
)

// DefaultSweepInterval is how often expired rows are purged.
const DefaultSweepInterval = 1 * time.Minute

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
`

// Store implements kv.Store on a SQLite database.
// Expiry is a unix-seconds column: reads exclude expired rows, and a
// background sweeper purges them so the file doesn't grow unbounded.
type Store struct {
	db            *sql.DB
	stopChan      chan struct{}
	wg            sync.WaitGroup
	sweepInterval time.Duration
	once          sync.Once
}

// NewStore opens (creating if needed) the database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store in tests.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		db:            db,
		stopChan:      make(chan struct{}),
		sweepInterval: DefaultSweepInterval,
	}, nil
}

// StartSweeper starts the background purge of expired rows.
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
	res, err := s.db.Exec(`DELETE FROM kv WHERE expires_at > 0 AND expires_at <= ?`, time.Now().UTC().Unix())
	if err != nil {
		slog.Warn("failed to sweep expired keys", "error", err)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		slog.Debug("swept expired keys", "count", n)
	}
}

// Stop stops the sweeper and closes the database.
// Safe to call multiple times.
func (s *Store) Stop() error {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	return s.db.Close()
}

// Get returns the value for key, excluding expired rows.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, time.Now().UTC().Unix(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", kv.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite get: %w", err)
	}
	return value, nil
}

// Put stores value under key with no expiry, overwriting any existing row.
func (s *Store) Put(ctx context.Context, key, value string) error {
	return s.putExpiry(ctx, key, value, 0)
}

// PutTTL stores value under key, expiring ttl from now.
func (s *Store) PutTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Put(ctx, key, value)
	}
	return s.putExpiry(ctx, key, value, time.Now().UTC().Add(ttl).Unix())
}

func (s *Store) putExpiry(ctx context.Context, key, value string, expiresAt int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite put: %w", err)
	}
	return nil
}

// Delete removes key. No error if absent.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// ListPrefix returns all live keys starting with prefix.
func (s *Store) ListPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE key LIKE ? ESCAPE '\' AND (expires_at = 0 OR expires_at > ?)`,
		escapeLike(prefix)+"%", time.Now().UTC().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("sqlite list scan: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite list rows: %w", err)
	}
	return out, nil
}

// escapeLike escapes LIKE metacharacters so a literal prefix matches
// verbatim. Tenant names may legitimately contain underscores.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// Compile-time interface verification.
var _ kv.Store = (*Store)(nil)

package stores

import (
	"context"
	"time"

	"github.com/oarkflow/guard"
	"github.com/oarkflow/squealx"
)

// SQLCache implements guard.Cache over the kv_cache table. Expired rows are
// treated as absent and removed on read.
type SQLCache struct {
	db  *squealx.DB
	now guard.Clock
}

type SQLCacheOption func(*SQLCache)

// WithSQLCacheClock sets the clock used to judge expiry.
func WithSQLCacheClock(c guard.Clock) SQLCacheOption {
	return func(s *SQLCache) {
		if c != nil {
			s.now = c
		}
	}
}

func NewSQLCache(db *squealx.DB, opts ...SQLCacheOption) *SQLCache {
	s := &SQLCache{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	q := `SELECT value, expires_at FROM kv_cache WHERE key = :key`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"key": key})
	if err != nil {
		return nil, false, err
	}
	var (
		value      []byte
		expiresRaw any
		found      bool
	)
	for r.Next() {
		if err := r.Scan(&value, &expiresRaw); err != nil {
			r.Close()
			return nil, false, err
		}
		found = true
	}
	r.Close()
	if !found {
		return nil, false, nil
	}
	if exp := scanTime(expiresRaw); !exp.IsZero() && !s.now().Before(exp) {
		return nil, false, s.Delete(ctx, key)
	}
	return value, true, nil
}

// Set upserts the value; ttl <= 0 stores it without expiry.
func (s *SQLCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = s.now().Add(ttl)
	}
	q := `INSERT INTO kv_cache(key, value, expires_at) VALUES(:key, :value, :expires_at)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"key":        key,
		"value":      value,
		"expires_at": sqlNullTimeOrNil(expires),
	})
	return err
}

func (s *SQLCache) Delete(ctx context.Context, key string) error {
	q := `DELETE FROM kv_cache WHERE key = :key`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"key": key})
	return err
}

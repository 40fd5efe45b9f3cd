package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Ristretto sizing used when the config leaves a field at zero.
const (
	DefaultNumCounters = 1e5
	DefaultMaxCost     = 1 << 26
	DefaultBufferItems = 64
)

// RistrettoCache implements guard.Cache in process. Entries cost their byte
// length against MaxCost.
//
// Storage is best-effort: the admission policy may reject a write and
// eviction may drop any key, the persisted ACL rule map included. It suits
// permission overrides, which fall back to matrix defaults when lost. Use the
// redis or sqlite cache where rules must survive.
type RistrettoCache struct {
	cache  *ristretto.Cache
	prefix string
}

func NewRistrettoCache(numCounters, maxCost, bufferItems int64, prefix string) (*RistrettoCache, error) {
	if numCounters <= 0 {
		numCounters = DefaultNumCounters
	}
	if maxCost <= 0 {
		maxCost = DefaultMaxCost
	}
	if bufferItems <= 0 {
		bufferItems = DefaultBufferItems
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        numCounters,
		MaxCost:            maxCost,
		BufferItems:        bufferItems,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoCache{cache: c, prefix: prefix}, nil
}

func (r *RistrettoCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := r.cache.Get(r.prefix + key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, true, nil
}

// Set waits for the write to be applied, so a Get right after sees it.
func (r *RistrettoCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	dup := make([]byte, len(value))
	copy(dup, value)
	cost := int64(len(dup))
	if cost == 0 {
		cost = 1
	}
	if !r.cache.SetWithTTL(r.prefix+key, dup, cost, ttl) {
		return fmt.Errorf("ristretto rejected key %q", key)
	}
	r.cache.Wait()
	return nil
}

func (r *RistrettoCache) Delete(_ context.Context, key string) error {
	r.cache.Del(r.prefix + key)
	r.cache.Wait()
	return nil
}

func (r *RistrettoCache) Close() error {
	r.cache.Close()
	return nil
}

package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// RulesCacheKey is the single cache key holding the whole bucket map.
const RulesCacheKey = "acl_rules"

// RuleStore keeps resource buckets in memory and writes the full map through
// to the Cache after every mutation. The map is loaded once at construction.
type RuleStore struct {
	mu      sync.RWMutex
	cache   Cache
	key     string
	buckets map[string][]*Rule
}

// NewRuleStore loads the persisted bucket map from cache. A missing entry
// starts an empty store; an undecodable one is ErrCorruptRuleStore.
func NewRuleStore(ctx context.Context, cache Cache) (*RuleStore, error) {
	if cache == nil {
		cache = NewMemoryCache()
	}
	s := &RuleStore{cache: cache, key: RulesCacheKey, buckets: make(map[string][]*Rule)}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the in-memory map with the cached one.
func (s *RuleStore) Load(ctx context.Context) error {
	raw, ok, err := s.cache.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	buckets := make(map[string][]*Rule)
	if ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &buckets); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptRuleStore, err)
		}
	}
	for key, rules := range buckets {
		if len(rules) == 0 {
			delete(buckets, key)
			continue
		}
		for _, r := range rules {
			if r == nil {
				return fmt.Errorf("%w: nil rule in bucket %s", ErrCorruptRuleStore, key)
			}
			if err := r.Validate(); err != nil {
				return fmt.Errorf("%w: bucket %s: %v", ErrCorruptRuleStore, key, err)
			}
			r.compile()
		}
	}
	s.mu.Lock()
	s.buckets = buckets
	s.mu.Unlock()
	return nil
}

// Update applies fn to the bucket under the write lock and persists the
// result. An empty result removes the bucket. If persisting fails the
// previous bucket is restored.
func (s *RuleStore) Update(ctx context.Context, key string, fn func([]*Rule) []*Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.buckets[key]
	next := fn(prev)
	if len(next) == 0 {
		if !had {
			return nil
		}
		delete(s.buckets, key)
	} else {
		s.buckets[key] = next
	}
	if err := s.saveLocked(ctx); err != nil {
		if had {
			s.buckets[key] = prev
		} else {
			delete(s.buckets, key)
		}
		return err
	}
	return nil
}

// View runs fn over the bucket under the read lock. fn must not retain rules.
func (s *RuleStore) View(key string, fn func(rules []*Rule, exists bool)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules, ok := s.buckets[key]
	fn(rules, ok)
}

// Bucket returns copies of the rules stored under key.
func (s *RuleStore) Bucket(key string) []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := s.buckets[key]
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, *r.clone())
	}
	return out
}

// Keys lists bucket keys in sorted order.
func (s *RuleStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.buckets))
	for k := range s.buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of non-empty buckets.
func (s *RuleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}

func (s *RuleStore) saveLocked(ctx context.Context) error {
	data, err := json.Marshal(s.buckets)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	if err := s.cache.Set(ctx, s.key, data, 0); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	return nil
}

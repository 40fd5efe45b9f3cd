package guard

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oarkflow/guard/logger"
)

// PermissionCacheTTL is how long a per-user level override lives.
const PermissionCacheTTL = time.Hour

// ActorClassifier tells internal users from external ones.
type ActorClassifier interface {
	IsExternalUser(ctx context.Context, userID string) (bool, error)
}

// ActorClassifierFunc adapts a function to ActorClassifier.
type ActorClassifierFunc func(ctx context.Context, userID string) (bool, error)

func (f ActorClassifierFunc) IsExternalUser(ctx context.Context, userID string) (bool, error) {
	return f(ctx, userID)
}

// PermissionIsolation answers leveled permission questions. Each user's
// effective level per resource type lives in the cache under a TTL; a miss
// falls back to the actor-class default and writes it back.
type PermissionIsolation struct {
	cache      Cache
	classifier ActorClassifier
	matrix     PermissionMatrix
	ttl        time.Duration
	logger     logger.Logger
}

// IsolationOption configures a PermissionIsolation.
type IsolationOption func(*PermissionIsolation)

// WithPermissionMatrix replaces the default matrix.
func WithPermissionMatrix(m PermissionMatrix) IsolationOption {
	return func(p *PermissionIsolation) {
		if m != nil {
			p.matrix = m.Clone()
		}
	}
}

// WithPermissionTTL overrides PermissionCacheTTL.
func WithPermissionTTL(ttl time.Duration) IsolationOption {
	return func(p *PermissionIsolation) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithIsolationLogger sets the logger for cache and classifier failures.
func WithIsolationLogger(l logger.Logger) IsolationOption {
	return func(p *PermissionIsolation) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPermissionIsolation builds the isolation layer. A nil classifier treats
// everyone as internal.
func NewPermissionIsolation(cache Cache, classifier ActorClassifier, opts ...IsolationOption) *PermissionIsolation {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if classifier == nil {
		classifier = ActorClassifierFunc(func(context.Context, string) (bool, error) { return false, nil })
	}
	p := &PermissionIsolation{
		cache:      cache,
		classifier: classifier,
		matrix:     DefaultPermissionMatrix(),
		ttl:        PermissionCacheTTL,
		logger:     logger.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func permissionKey(userID, resource string) string {
	return fmt.Sprintf("permission_%s_%s", userID, resource)
}

// ActorClass classifies userID. A classifier failure yields ActorExternal so
// the user gets the narrower defaults.
func (p *PermissionIsolation) ActorClass(ctx context.Context, userID string) ActorClass {
	external, err := p.classifier.IsExternalUser(ctx, userID)
	if err != nil {
		p.logger.Error("actor classification failed", "user", userID, "error", err)
		return ActorExternal
	}
	if external {
		return ActorExternal
	}
	return ActorInternal
}

// CheckPermission reports whether userID holds at least required on resource.
func (p *PermissionIsolation) CheckPermission(ctx context.Context, userID, resource string, required PermissionLevel) bool {
	return p.EffectiveLevel(ctx, userID, resource).Satisfies(required)
}

// EffectiveLevel returns the cached override, or the class default which is
// then cached.
func (p *PermissionIsolation) EffectiveLevel(ctx context.Context, userID, resource string) PermissionLevel {
	return p.effectiveLevel(ctx, userID, resource, p.ActorClass(ctx, userID))
}

func (p *PermissionIsolation) effectiveLevel(ctx context.Context, userID, resource string, class ActorClass) PermissionLevel {
	key := permissionKey(userID, resource)
	raw, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.Error("permission cache read failed", "key", key, "error", err)
	} else if ok {
		if level, perr := decodeLevel(raw); perr == nil {
			return level
		}
		p.logger.Warn("discarding corrupt permission entry", "key", key, "value", string(raw))
	}
	level := p.matrix.Default(class, resource)
	if err := p.cache.Set(ctx, key, encodeLevel(level), p.ttl); err != nil {
		p.logger.Error("permission cache write failed", "key", key, "error", err)
	}
	return level
}

// SetPermission stores an override for userID on resource.
func (p *PermissionIsolation) SetPermission(ctx context.Context, userID, resource string, level PermissionLevel) error {
	if !level.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, int(level))
	}
	return p.cache.Set(ctx, permissionKey(userID, resource), encodeLevel(level), p.ttl)
}

// SetPermissions stores several overrides. It stops at the first failure.
func (p *PermissionIsolation) SetPermissions(ctx context.Context, userID string, levels map[string]PermissionLevel) error {
	for _, resource := range sortedKeys(levels) {
		if err := p.SetPermission(ctx, userID, resource, levels[resource]); err != nil {
			return fmt.Errorf("set %s permission for %s: %w", resource, userID, err)
		}
	}
	return nil
}

// GetUserPermissions returns the effective level for every resource type in
// the user's class defaults, caching defaults it had to fall back to.
func (p *PermissionIsolation) GetUserPermissions(ctx context.Context, userID string) map[string]PermissionLevel {
	class := p.ActorClass(ctx, userID)
	out := make(map[string]PermissionLevel)
	for _, resource := range p.matrix.ResourceTypes(class) {
		out[resource] = p.effectiveLevel(ctx, userID, resource, class)
	}
	return out
}

// ClearUserPermissions deletes the user's entry for every known resource type.
func (p *PermissionIsolation) ClearUserPermissions(ctx context.Context, userID string) error {
	var failed []string
	for _, resource := range p.matrix.AllResourceTypes() {
		if err := p.cache.Delete(ctx, permissionKey(userID, resource)); err != nil {
			p.logger.Error("permission cache delete failed", "user", userID, "resource", resource, "error", err)
			failed = append(failed, resource)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("clear permissions for %s: %s", userID, strings.Join(failed, ","))
	}
	return nil
}

// FilterAccessibleResources keeps the resources userID holds required on,
// preserving input order.
func (p *PermissionIsolation) FilterAccessibleResources(ctx context.Context, userID string, resources []string, required PermissionLevel) []string {
	class := p.ActorClass(ctx, userID)
	out := make([]string, 0, len(resources))
	for _, r := range resources {
		if p.effectiveLevel(ctx, userID, r, class).Satisfies(required) {
			out = append(out, r)
		}
	}
	return out
}

// Matrix returns a copy of the default matrix in use.
func (p *PermissionIsolation) Matrix() PermissionMatrix {
	return p.matrix.Clone()
}

func encodeLevel(l PermissionLevel) []byte {
	return []byte(strconv.Itoa(int(l)))
}

func decodeLevel(raw []byte) (PermissionLevel, error) {
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return LevelNone, err
	}
	l := PermissionLevel(n)
	if !l.Valid() {
		return LevelNone, fmt.Errorf("%w: %d", ErrInvalidLevel, n)
	}
	return l, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

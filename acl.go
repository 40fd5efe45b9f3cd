package guard

import (
	"context"
	"time"

	"github.com/oarkflow/guard/logger"
)

// DefaultResourcePolicies is the decision used for a resource that has no
// rule bucket at all. Types missing from the table deny.
var DefaultResourcePolicies = map[string]bool{
	ResourceAPI:     false,
	ResourceFile:    false,
	ResourceChat:    true,
	ResourceFeature: true,
}

// AccessControlList evaluates allow/deny rules per resource bucket.
// A matching deny always wins over a matching allow.
type AccessControlList struct {
	store    *RuleStore
	defaults map[string]bool
	now      Clock
	logger   logger.Logger
}

// ACLOption configures an AccessControlList.
type ACLOption func(*AccessControlList)

// WithDefaultPolicies overrides entries of the no-bucket fallback table.
func WithDefaultPolicies(defaults map[string]bool) ACLOption {
	return func(a *AccessControlList) {
		for k, v := range defaults {
			a.defaults[k] = v
		}
	}
}

// WithACLClock sets the clock used for rule timestamps.
func WithACLClock(c Clock) ACLOption {
	return func(a *AccessControlList) {
		if c != nil {
			a.now = c
		}
	}
}

// WithACLLogger sets the logger used for rule mutations.
func WithACLLogger(l logger.Logger) ACLOption {
	return func(a *AccessControlList) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAccessControlList loads rules from cache and returns a ready ACL.
func NewAccessControlList(ctx context.Context, cache Cache, opts ...ACLOption) (*AccessControlList, error) {
	store, err := NewRuleStore(ctx, cache)
	if err != nil {
		return nil, err
	}
	a := &AccessControlList{
		store:    store,
		defaults: make(map[string]bool, len(DefaultResourcePolicies)),
		now:      time.Now,
		logger:   logger.NewNullLogger(),
	}
	for k, v := range DefaultResourcePolicies {
		a.defaults[k] = v
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// AddRule inserts a rule or, when the bucket already holds one for the same
// principal and type, replaces its conditions and bumps UpdatedAt.
func (a *AccessControlList) AddRule(ctx context.Context, resourceType, resourceID, principal string, typ RuleType, conditions Conditions) error {
	rule := &Rule{Principal: principal, Type: typ, Conditions: conditions.clone()}
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.compile()
	now := a.now()
	key := ResourceKey(resourceType, resourceID)
	err := a.store.Update(ctx, key, func(rules []*Rule) []*Rule {
		return upsertRule(rules, rule, now)
	})
	if err != nil {
		return err
	}
	a.logger.Debug("acl rule added", "resource", key, "principal", principal, "type", string(typ))
	return nil
}

func upsertRule(rules []*Rule, rule *Rule, now time.Time) []*Rule {
	next := make([]*Rule, 0, len(rules)+1)
	replaced := false
	for _, r := range rules {
		if !replaced && r.Principal == rule.Principal && r.Type == rule.Type {
			dup := r.clone()
			dup.Conditions = rule.Conditions
			dup.UpdatedAt = now
			next = append(next, dup)
			replaced = true
			continue
		}
		next = append(next, r)
	}
	if !replaced {
		added := rule.clone()
		if added.CreatedAt.IsZero() {
			added.CreatedAt = now
		}
		next = append(next, added)
	}
	return next
}

// RemoveRule drops every rule, allow and deny, held by principal in the bucket.
func (a *AccessControlList) RemoveRule(ctx context.Context, resourceType, resourceID, principal string) error {
	key := ResourceKey(resourceType, resourceID)
	return a.store.Update(ctx, key, func(rules []*Rule) []*Rule {
		next := make([]*Rule, 0, len(rules))
		for _, r := range rules {
			if r.Principal != principal {
				next = append(next, r)
			}
		}
		return next
	})
}

// AccessDecision is CheckAccess with the reason it was reached.
type AccessDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Decision reasons reported by Explain.
const (
	ReasonDefaultPolicy = "default policy"
	ReasonDenyRule      = "deny rule matched"
	ReasonAllowRule     = "allow rule matched"
	ReasonNoMatch       = "no matching rule"
)

// CheckAccess decides whether userID may act on the resource.
//
// Without a bucket the resource type's default policy applies. With a bucket
// every rule is considered: any matching deny denies, otherwise any matching
// allow allows, and no match denies.
func (a *AccessControlList) CheckAccess(ctx context.Context, resourceType, resourceID, userID string, attrs Attrs) bool {
	return a.Explain(ctx, resourceType, resourceID, userID, attrs).Allowed
}

// Explain evaluates like CheckAccess and reports why.
func (a *AccessControlList) Explain(_ context.Context, resourceType, resourceID, userID string, attrs Attrs) AccessDecision {
	var allowed, denied, exists bool
	a.store.View(ResourceKey(resourceType, resourceID), func(rules []*Rule, ok bool) {
		exists = ok
		for _, r := range rules {
			if !r.Matches(userID, attrs) {
				continue
			}
			switch r.Type {
			case RuleAllow:
				allowed = true
			case RuleDeny:
				denied = true
			}
		}
	})
	switch {
	case !exists:
		return AccessDecision{Allowed: a.DefaultPolicy(resourceType), Reason: ReasonDefaultPolicy}
	case denied:
		return AccessDecision{Allowed: false, Reason: ReasonDenyRule}
	case allowed:
		return AccessDecision{Allowed: true, Reason: ReasonAllowRule}
	}
	return AccessDecision{Allowed: false, Reason: ReasonNoMatch}
}

// DefaultPolicy returns the no-bucket decision for a resource type.
func (a *AccessControlList) DefaultPolicy(resourceType string) bool {
	return a.defaults[resourceType]
}

// GetRules returns a copy of the bucket's rules in insertion order.
func (a *AccessControlList) GetRules(resourceType, resourceID string) []Rule {
	return a.store.Bucket(ResourceKey(resourceType, resourceID))
}

// SetRules replaces the bucket. Duplicate (principal, type) pairs collapse
// into the last one given; an empty list removes the bucket.
func (a *AccessControlList) SetRules(ctx context.Context, resourceType, resourceID string, rules []Rule) error {
	now := a.now()
	compiled := make([]*Rule, 0, len(rules))
	for i := range rules {
		r := rules[i].clone()
		if err := r.Validate(); err != nil {
			return err
		}
		r.compile()
		compiled = upsertRule(compiled, r, now)
	}
	return a.store.Update(ctx, ResourceKey(resourceType, resourceID), func([]*Rule) []*Rule {
		return compiled
	})
}

// ClearRules removes the bucket, restoring the default policy for the resource.
func (a *AccessControlList) ClearRules(ctx context.Context, resourceType, resourceID string) error {
	return a.store.Update(ctx, ResourceKey(resourceType, resourceID), func([]*Rule) []*Rule {
		return nil
	})
}

// Resources lists the keys of all resource buckets.
func (a *AccessControlList) Resources() []string {
	return a.store.Keys()
}

// Reload re-reads the rule map from the cache.
func (a *AccessControlList) Reload(ctx context.Context) error {
	return a.store.Load(ctx)
}

// Len returns the number of resource buckets.
func (a *AccessControlList) Len() int {
	return a.store.Len()
}

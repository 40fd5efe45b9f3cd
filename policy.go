package guard

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oarkflow/guard/logger"
	"github.com/oarkflow/guard/utils"
)

// PolicyType names a security policy and selects its evaluator.
type PolicyType string

const (
	PolicyDataAccess       PolicyType = "data_access"
	PolicyFileSharing      PolicyType = "file_sharing"
	PolicyMessageRetention PolicyType = "message_retention"
	PolicyIPWhitelist      PolicyType = "ip_whitelist"
	PolicyTimeRestriction  PolicyType = "time_restriction"
)

// Policy is a declarative security policy record.
type Policy struct {
	Type    PolicyType     `json:"type" yaml:"type"`
	Enabled bool           `json:"enabled" yaml:"enabled"`
	Params  map[string]any `json:"params" yaml:"params"`
}

// Clone returns a deep copy, so later mutation of either side never leaks.
func (p Policy) Clone() Policy {
	out := Policy{Type: p.Type, Enabled: p.Enabled, Params: make(map[string]any, len(p.Params))}
	for k, v := range p.Params {
		out.Params[k] = cloneValue(v)
	}
	return out
}

// Param returns a parameter value.
func (p Policy) Param(key string) (any, bool) {
	v, ok := p.Params[key]
	return v, ok
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	if list, ok := utils.AsList(v); ok {
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

// PolicyResult is an evaluator's verdict with a short reason.
type PolicyResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func allow(reason string) PolicyResult { return PolicyResult{Allowed: true, Reason: reason} }
func deny(reason string) PolicyResult  { return PolicyResult{Allowed: false, Reason: reason} }

// PolicyEnv gives evaluators the clock and logger of their registry.
type PolicyEnv struct {
	Now    time.Time
	Logger logger.Logger
}

// PolicyEvaluator decides one policy type against a request context.
type PolicyEvaluator func(p Policy, attrs Attrs, env PolicyEnv) PolicyResult

// PolicyRegistry maps policy types to evaluators and holds the active and
// default record for each type.
type PolicyRegistry struct {
	mu         sync.RWMutex
	evaluators map[PolicyType]PolicyEvaluator
	defaults   map[PolicyType]Policy
	active     map[PolicyType]Policy
	now        Clock
	logger     logger.Logger
}

// PolicyOption configures a PolicyRegistry.
type PolicyOption func(*PolicyRegistry)

// WithPolicyClock sets the clock the time restriction policy reads.
func WithPolicyClock(c Clock) PolicyOption {
	return func(r *PolicyRegistry) {
		if c != nil {
			r.now = c
		}
	}
}

// WithPolicyLogger sets the logger evaluators warn through.
func WithPolicyLogger(l logger.Logger) PolicyOption {
	return func(r *PolicyRegistry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPolicyDefaults overlays records onto the built-in defaults: Enabled is
// taken from the record and its params are merged over the built-in ones.
// The result becomes both default and active. Unregistered types are ignored.
func WithPolicyDefaults(policies ...Policy) PolicyOption {
	return func(r *PolicyRegistry) {
		for _, p := range policies {
			base, ok := r.defaults[p.Type]
			if !ok {
				continue
			}
			merged := base.Clone()
			merged.Enabled = p.Enabled
			for k, v := range p.Params {
				merged.Params[k] = cloneValue(v)
			}
			r.defaults[p.Type] = merged
			r.active[p.Type] = merged.Clone()
		}
	}
}

// NewPolicyRegistry returns a registry with the five built-in policies.
func NewPolicyRegistry(opts ...PolicyOption) *PolicyRegistry {
	r := &PolicyRegistry{
		evaluators: make(map[PolicyType]PolicyEvaluator),
		defaults:   make(map[PolicyType]Policy),
		active:     make(map[PolicyType]Policy),
		now:        time.Now,
		logger:     logger.NewNullLogger(),
	}
	for _, b := range builtinPolicies() {
		r.register(b.policy.Type, b.eval, b.policy)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterEvaluator adds or replaces a policy type. def becomes both the
// default and the active record.
func (r *PolicyRegistry) RegisterEvaluator(t PolicyType, eval PolicyEvaluator, def Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(t, eval, def)
}

func (r *PolicyRegistry) register(t PolicyType, eval PolicyEvaluator, def Policy) {
	def.Type = t
	r.evaluators[t] = eval
	r.defaults[t] = def.Clone()
	r.active[t] = def.Clone()
}

// CheckPolicy reports whether attrs pass the policy. Unknown types deny;
// disabled policies allow without running their evaluator.
func (r *PolicyRegistry) CheckPolicy(t PolicyType, attrs Attrs) bool {
	return r.Evaluate(t, attrs).Allowed
}

// Evaluate is CheckPolicy with the reason attached.
func (r *PolicyRegistry) Evaluate(t PolicyType, attrs Attrs) PolicyResult {
	r.mu.RLock()
	p, ok := r.active[t]
	eval := r.evaluators[t]
	r.mu.RUnlock()
	if !ok || eval == nil {
		return deny("unknown policy type")
	}
	if !p.Enabled {
		return allow("policy disabled")
	}
	return eval(p, attrs, PolicyEnv{Now: r.now(), Logger: r.logger})
}

// GetAllPolicies returns copies of every active record.
func (r *PolicyRegistry) GetAllPolicies() map[PolicyType]Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[PolicyType]Policy, len(r.active))
	for t, p := range r.active {
		out[t] = p.Clone()
	}
	return out
}

// GetPolicy returns a copy of the active record for t.
func (r *PolicyRegistry) GetPolicy(t PolicyType) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.active[t]
	if !ok {
		return Policy{}, false
	}
	return p.Clone(), true
}

// UpdatePolicy shallow-merges patch into the active record. The "enabled"
// key toggles the record; every other key replaces the parameter of the
// same name.
func (r *PolicyRegistry) UpdatePolicy(t PolicyType, patch map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.active[t]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicyType, t)
	}
	next := cur.Clone()
	for k, v := range patch {
		if k == "enabled" {
			next.Enabled = utils.Truthy(v)
			continue
		}
		next.Params[k] = cloneValue(v)
	}
	r.active[t] = next
	return nil
}

// ResetToDefault restores the given types, or every type when none is given,
// from a fresh copy of their default record.
func (r *PolicyRegistry) ResetToDefault(types ...PolicyType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(types) == 0 {
		for t, def := range r.defaults {
			r.active[t] = def.Clone()
		}
		return nil
	}
	for _, t := range types {
		if _, ok := r.defaults[t]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPolicyType, t)
		}
	}
	for _, t := range types {
		r.active[t] = r.defaults[t].Clone()
	}
	return nil
}

// Types lists the registered policy types in sorted order.
func (r *PolicyRegistry) Types() []PolicyType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PolicyType, 0, len(r.evaluators))
	for t := range r.evaluators {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Known reports whether t has a registered evaluator.
func (r *PolicyRegistry) Known(t PolicyType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.evaluators[t]
	return ok
}

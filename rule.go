package guard

import (
	"fmt"
	"time"
)

// RuleType is the effect of an ACL rule.
type RuleType string

const (
	RuleAllow RuleType = "allow"
	RuleDeny  RuleType = "deny"
)

// Built-in resource types. The set is open: any string works as a type.
const (
	ResourceChat    = "chat"
	ResourceFile    = "file"
	ResourceAPI     = "api"
	ResourceFeature = "feature"
)

// Rule is one entry in a resource bucket. Within a bucket there is at most
// one rule per (Principal, Type).
type Rule struct {
	Principal  string     `json:"principal" yaml:"principal"`
	Type       RuleType   `json:"type" yaml:"type"`
	Conditions Conditions `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at,omitzero" yaml:"updated_at,omitempty"`

	principal Principal
}

// Validate checks the fields every stored rule must carry.
func (r *Rule) Validate() error {
	if r.Principal == "" {
		return fmt.Errorf("%w: empty principal", ErrInvalidRule)
	}
	if r.Type != RuleAllow && r.Type != RuleDeny {
		return fmt.Errorf("%w: principal %q has type %q", ErrInvalidRule, r.Principal, r.Type)
	}
	return nil
}

func (r *Rule) compile() {
	r.principal = ParsePrincipal(r.Principal)
}

// Matches reports whether the rule applies to userID in attrs.
func (r *Rule) Matches(userID string, attrs Attrs) bool {
	return r.principal.Matches(userID, attrs) && r.Conditions.Evaluate(attrs)
}

// ParsedPrincipal returns the principal parsed when the rule was stored.
func (r *Rule) ParsedPrincipal() Principal {
	return r.principal
}

func (r *Rule) clone() *Rule {
	dup := *r
	dup.Conditions = r.Conditions.clone()
	return &dup
}

// ResourceKey joins a resource type and id into a bucket key.
func ResourceKey(resourceType, resourceID string) string {
	return resourceType + ":" + resourceID
}

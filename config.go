package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oarkflow/guard/utils"
	"gopkg.in/yaml.v3"
)

// Config is the complete declarative configuration of an engine and its backends.
type Config struct {
	Version     uint16            `json:"version" yaml:"version"`
	ACL         ACLConfig         `json:"acl" yaml:"acl"`
	Permissions PermissionsConfig `json:"permissions" yaml:"permissions"`
	Policies    []PolicyConfig    `json:"policies" yaml:"policies"`
	Compliance  *ComplianceConfig `json:"compliance,omitempty" yaml:"compliance,omitempty"`
	Cache       CacheConfig       `json:"cache" yaml:"cache"`
	Audit       AuditConfig       `json:"audit" yaml:"audit"`
	Actors      ActorsConfig      `json:"actors" yaml:"actors"`
	Memberships MembershipsConfig `json:"memberships" yaml:"memberships"`
}

type ACLConfig struct {
	DefaultPolicies map[string]bool `json:"default_policies,omitempty" yaml:"default_policies,omitempty"`
	Rules           []RuleConfig    `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// RuleConfig seeds one rule into a resource bucket.
type RuleConfig struct {
	ResourceType string         `json:"resource_type" yaml:"resource_type"`
	ResourceID   string         `json:"resource_id" yaml:"resource_id"`
	Principal    string         `json:"principal" yaml:"principal"`
	Type         RuleType       `json:"type" yaml:"type"`
	Conditions   map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

type PermissionsConfig struct {
	// Matrix maps actor class to resource type to level name.
	Matrix     map[string]map[string]string `json:"matrix,omitempty" yaml:"matrix,omitempty"`
	TTLSeconds int                          `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`
	Overrides  []PermissionOverride         `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

type PermissionOverride struct {
	UserID   string `json:"user_id" yaml:"user_id"`
	Resource string `json:"resource" yaml:"resource"`
	Level    string `json:"level" yaml:"level"`
}

// PolicyConfig overlays a built-in policy. A nil Enabled keeps the built-in flag.
type PolicyConfig struct {
	Type    PolicyType     `json:"type" yaml:"type"`
	Enabled *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Params  map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

type CacheConfig struct {
	Backend       string `json:"backend" yaml:"backend"`
	NumCounters   int64  `json:"num_counters,omitempty" yaml:"num_counters,omitempty"`
	MaxCost       int64  `json:"max_cost,omitempty" yaml:"max_cost,omitempty"`
	BufferItems   int64  `json:"buffer_items,omitempty" yaml:"buffer_items,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	Prefix        string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	SQLiteDSN     string `json:"sqlite_dsn,omitempty" yaml:"sqlite_dsn,omitempty"`
}

type AuditConfig struct {
	Backend   string `json:"backend" yaml:"backend"`
	SQLiteDSN string `json:"sqlite_dsn,omitempty" yaml:"sqlite_dsn,omitempty"`
	Buffer    int    `json:"buffer,omitempty" yaml:"buffer,omitempty"`
}

type ActorsConfig struct {
	Backend     string   `json:"backend" yaml:"backend"`
	External    []string `json:"external,omitempty" yaml:"external,omitempty"`
	RedisAddr   string   `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisSetKey string   `json:"redis_set_key,omitempty" yaml:"redis_set_key,omitempty"`
}

type MembershipsConfig struct {
	Backend   string                  `json:"backend" yaml:"backend"`
	RedisAddr string                  `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	Prefix    string                  `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	SQLiteDSN string                  `json:"sqlite_dsn,omitempty" yaml:"sqlite_dsn,omitempty"`
	Users     map[string]MemberConfig `json:"users,omitempty" yaml:"users,omitempty"`
}

type MemberConfig struct {
	Roles  []string `json:"roles,omitempty" yaml:"roles,omitempty"`
	Groups []string `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// Backend names accepted in Config.
const (
	BackendNone      = "none"
	BackendMemory    = "memory"
	BackendRistretto = "ristretto"
	BackendRedis     = "redis"
	BackendSQLite    = "sqlite"
)

// DefaultConfig returns a config that reproduces the built-in behavior on
// in-process backends.
func DefaultConfig() *Config {
	matrix := make(map[string]map[string]string)
	for class, row := range DefaultPermissionMatrix() {
		matrix[string(class)] = make(map[string]string, len(row))
		for res, lvl := range row {
			matrix[string(class)][res] = lvl.String()
		}
	}
	defaults := make(map[string]bool, len(DefaultResourcePolicies))
	for k, v := range DefaultResourcePolicies {
		defaults[k] = v
	}
	cc := DefaultComplianceConfig()
	return &Config{
		Version:     1,
		ACL:         ACLConfig{DefaultPolicies: defaults},
		Permissions: PermissionsConfig{Matrix: matrix, TTLSeconds: int(PermissionCacheTTL / time.Second)},
		Compliance:  &cc,
		Cache:       CacheConfig{Backend: BackendMemory},
		Audit:       AuditConfig{Backend: BackendMemory, Buffer: 1024},
		Actors:      ActorsConfig{Backend: BackendMemory},
	}
}

// ConfigLoader loads configuration from YAML or JSON.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile picks the decoder from the file extension; anything that is not
// .json is read as YAML.
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return l.LoadJSON(data)
	}
	return l.LoadYAML(data)
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate reports the first problem found, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	for i, rc := range c.ACL.Rules {
		if rc.ResourceType == "" || rc.ResourceID == "" {
			return invalid("acl rule %d: resource type and id are required", i)
		}
		r := Rule{Principal: rc.Principal, Type: rc.Type, Conditions: rc.Conditions}
		if err := r.Validate(); err != nil {
			return invalid("acl rule %d: %v", i, err)
		}
	}
	if _, err := c.permissionMatrix(); err != nil {
		return invalid("%v", err)
	}
	if c.Permissions.TTLSeconds < 0 {
		return invalid("permissions ttl_seconds must not be negative")
	}
	for i, o := range c.Permissions.Overrides {
		if o.UserID == "" || o.Resource == "" {
			return invalid("permission override %d: user_id and resource are required", i)
		}
		if _, err := ParsePermissionLevel(o.Level); err != nil {
			return invalid("permission override %d: %v", i, err)
		}
	}
	for i, pc := range c.Policies {
		if _, ok := defaultPolicyFor(pc.Type); !ok {
			return invalid("policy %d: %v %q", i, ErrUnknownPolicyType, pc.Type)
		}
		if pc.Type == PolicyIPWhitelist {
			if raw, ok := pc.Params["allowed_ips"]; ok {
				entries, _ := utils.ToStrings(raw)
				for _, entry := range entries {
					if !ValidIPEntry(entry) {
						return invalid("policy %d: bad ip entry %q", i, entry)
					}
				}
			}
		}
	}
	if cc := c.Compliance; cc != nil && cc.MinRetentionDays > 0 && cc.MaxRetentionDays > 0 &&
		cc.MinRetentionDays > cc.MaxRetentionDays {
		return invalid("compliance min_retention_days exceeds max_retention_days")
	}
	if !oneOf(c.Cache.Backend, "", BackendMemory, BackendRistretto, BackendRedis, BackendSQLite) {
		return invalid("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == BackendRedis && c.Cache.RedisAddr == "" {
		return invalid("redis cache requires redis_addr")
	}
	if !oneOf(c.Audit.Backend, "", BackendNone, BackendMemory, BackendSQLite) {
		return invalid("unknown audit backend %q", c.Audit.Backend)
	}
	if !oneOf(c.Actors.Backend, "", BackendMemory, BackendRedis) {
		return invalid("unknown actors backend %q", c.Actors.Backend)
	}
	if c.Actors.Backend == BackendRedis && c.Actors.RedisAddr == "" && c.Cache.RedisAddr == "" {
		return invalid("redis actor directory requires a redis address")
	}
	if !oneOf(c.Memberships.Backend, "", BackendNone, BackendMemory, BackendRedis, BackendSQLite) {
		return invalid("unknown memberships backend %q", c.Memberships.Backend)
	}
	if c.Memberships.Backend == BackendRedis && c.Memberships.RedisAddr == "" && c.Cache.RedisAddr == "" {
		return invalid("redis membership store requires a redis address")
	}
	return nil
}

// EngineOptions translates the construction-time sections (default policy
// table, permission matrix and TTL, policy defaults, compliance thresholds,
// audit buffer) into engine options.
func (c *Config) EngineOptions() ([]EngineOption, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var opts []EngineOption
	if len(c.ACL.DefaultPolicies) > 0 {
		opts = append(opts, WithACLOptions(WithDefaultPolicies(c.ACL.DefaultPolicies)))
	}
	matrix, _ := c.permissionMatrix()
	var iso []IsolationOption
	if matrix != nil {
		iso = append(iso, WithPermissionMatrix(matrix))
	}
	if c.Permissions.TTLSeconds > 0 {
		iso = append(iso, WithPermissionTTL(time.Duration(c.Permissions.TTLSeconds)*time.Second))
	}
	if len(iso) > 0 {
		opts = append(opts, WithIsolationOptions(iso...))
	}
	if len(c.Policies) > 0 {
		opts = append(opts, WithPolicyOptions(WithPolicyDefaults(c.policyRecords()...)))
	}
	if c.Compliance != nil {
		opts = append(opts, WithComplianceConfig(*c.Compliance))
	}
	if c.Audit.Buffer > 0 {
		opts = append(opts, WithAuditBuffer(c.Audit.Buffer))
	}
	return opts, nil
}

// ApplyConfig seeds runtime state: ACL rules, per-user permission overrides
// and active policy parameters. Construction-time sections are applied
// through Config.EngineOptions.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, rc := range cfg.ACL.Rules {
		if err := e.acl.AddRule(ctx, rc.ResourceType, rc.ResourceID, rc.Principal, rc.Type, Conditions(rc.Conditions)); err != nil {
			return fmt.Errorf("seed rule %s for %s: %w", rc.Principal, ResourceKey(rc.ResourceType, rc.ResourceID), err)
		}
	}
	for _, o := range cfg.Permissions.Overrides {
		lvl, _ := ParsePermissionLevel(o.Level)
		if err := e.isolation.SetPermission(ctx, o.UserID, o.Resource, lvl); err != nil {
			return fmt.Errorf("permission override %s/%s: %w", o.UserID, o.Resource, err)
		}
	}
	for _, pc := range cfg.Policies {
		patch := make(map[string]any, len(pc.Params)+1)
		for k, v := range pc.Params {
			patch[k] = v
		}
		if pc.Enabled != nil {
			patch["enabled"] = *pc.Enabled
		}
		if err := e.policies.UpdatePolicy(pc.Type, patch); err != nil {
			return fmt.Errorf("policy %s: %w", pc.Type, err)
		}
	}
	e.logger.Info("config applied",
		"rules", len(cfg.ACL.Rules),
		"overrides", len(cfg.Permissions.Overrides),
		"policies", len(cfg.Policies),
	)
	return nil
}

func (c *Config) permissionMatrix() (PermissionMatrix, error) {
	if len(c.Permissions.Matrix) == 0 {
		return nil, nil
	}
	m := DefaultPermissionMatrix()
	for class, row := range c.Permissions.Matrix {
		ac := ActorClass(class)
		if ac != ActorInternal && ac != ActorExternal {
			return nil, fmt.Errorf("unknown actor class %q", class)
		}
		for res, name := range row {
			lvl, err := ParsePermissionLevel(name)
			if err != nil {
				return nil, fmt.Errorf("matrix %s/%s: %w", class, res, err)
			}
			m[ac][res] = lvl
		}
	}
	return m, nil
}

func (c *Config) policyRecords() []Policy {
	out := make([]Policy, 0, len(c.Policies))
	for _, pc := range c.Policies {
		base, ok := defaultPolicyFor(pc.Type)
		if !ok {
			continue
		}
		p := Policy{Type: pc.Type, Enabled: base.Enabled, Params: pc.Params}
		if pc.Enabled != nil {
			p.Enabled = *pc.Enabled
		}
		out = append(out, p)
	}
	return out
}

func defaultPolicyFor(t PolicyType) (Policy, bool) {
	for _, b := range builtinPolicies() {
		if b.policy.Type == t {
			return b.policy, true
		}
	}
	return Policy{}, false
}

func oneOf(s string, options ...string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}

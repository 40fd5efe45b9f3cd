package guard

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oarkflow/guard/logger"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine) error

// WithClock sets the clock shared by the ACL, the policies and audit stamps.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) error {
		if c != nil {
			e.now = c
		}
		return nil
	}
}

// WithAuditBuffer sets how many audit entries may queue before new ones are dropped.
func WithAuditBuffer(n int) EngineOption {
	return func(e *Engine) error {
		if n > 0 {
			e.auditBuffer = n
		}
		return nil
	}
}

// WithACLOptions passes options through to the AccessControlList.
func WithACLOptions(opts ...ACLOption) EngineOption {
	return func(e *Engine) error {
		e.aclOpts = append(e.aclOpts, opts...)
		return nil
	}
}

// WithIsolationOptions passes options through to PermissionIsolation.
func WithIsolationOptions(opts ...IsolationOption) EngineOption {
	return func(e *Engine) error {
		e.isolationOpts = append(e.isolationOpts, opts...)
		return nil
	}
}

// WithPolicyOptions passes options through to the PolicyRegistry.
func WithPolicyOptions(opts ...PolicyOption) EngineOption {
	return func(e *Engine) error {
		e.policyOpts = append(e.policyOpts, opts...)
		return nil
	}
}

// WithComplianceConfig sets the compliance thresholds.
func WithComplianceConfig(cfg ComplianceConfig) EngineOption {
	return func(e *Engine) error {
		e.complianceCfg = cfg
		return nil
	}
}

// Engine is the calling layer over the decision components: it runs a check,
// logs the outcome and forwards it to the audit store asynchronously.
type Engine struct {
	acl        *AccessControlList
	isolation  *PermissionIsolation
	policies   *PolicyRegistry
	compliance *ComplianceChecker

	memberships MembershipStore

	auditStore  AuditStore
	auditMu     sync.RWMutex
	auditCh     chan AuditEntry
	auditDone   chan struct{}
	closed      bool
	auditBuffer int

	logger      logger.Logger
	traceIDFunc logger.TraceIDFunc
	now         Clock

	aclOpts       []ACLOption
	isolationOpts []IsolationOption
	policyOpts    []PolicyOption
	complianceCfg ComplianceConfig
}

// NewEngine wires the components over the given collaborators. audit may be
// nil, in which case decisions are only logged.
func NewEngine(ctx context.Context, cache Cache, classifier ActorClassifier, audit AuditStore, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		auditStore:    audit,
		auditBuffer:   1024,
		logger:        logger.NewPhusluLogger(),
		now:           time.Now,
		complianceCfg: DefaultComplianceConfig(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if cache == nil {
		cache = NewMemoryCache()
	}

	aclOpts := append([]ACLOption{WithACLClock(e.now), WithACLLogger(e.logger)}, e.aclOpts...)
	acl, err := NewAccessControlList(ctx, cache, aclOpts...)
	if err != nil {
		return nil, err
	}
	e.acl = acl
	e.isolation = NewPermissionIsolation(cache, classifier,
		append([]IsolationOption{WithIsolationLogger(e.logger)}, e.isolationOpts...)...)
	e.policies = NewPolicyRegistry(
		append([]PolicyOption{WithPolicyClock(e.now), WithPolicyLogger(e.logger)}, e.policyOpts...)...)
	e.compliance = NewComplianceChecker(e.policies, e.complianceCfg)

	if e.auditStore != nil {
		e.auditCh = make(chan AuditEntry, e.auditBuffer)
		e.auditDone = make(chan struct{})
		go e.drainAudit()
	}
	return e, nil
}

func (e *Engine) ACL() *AccessControlList         { return e.acl }
func (e *Engine) Isolation() *PermissionIsolation { return e.isolation }
func (e *Engine) Policies() *PolicyRegistry       { return e.policies }
func (e *Engine) Compliance() *ComplianceChecker  { return e.compliance }

// CheckAccess runs the ACL check and audits the outcome.
func (e *Engine) CheckAccess(ctx context.Context, resourceType, resourceID, userID string, attrs Attrs) bool {
	return e.ExplainAccess(ctx, resourceType, resourceID, userID, attrs).Allowed
}

// ExplainAccess is CheckAccess returning the decision reason.
func (e *Engine) ExplainAccess(ctx context.Context, resourceType, resourceID, userID string, attrs Attrs) AccessDecision {
	dec := e.acl.Explain(ctx, resourceType, resourceID, userID, e.enrich(ctx, userID, attrs))
	e.record(ctx, AuditEntry{
		Kind:      KindACL,
		SubjectID: userID,
		Resource:  ResourceKey(resourceType, resourceID),
		Allowed:   dec.Allowed,
		Reason:    dec.Reason,
	})
	return dec
}

// CheckPermission runs the leveled permission check and audits the outcome.
func (e *Engine) CheckPermission(ctx context.Context, userID, resource string, required PermissionLevel) bool {
	level := e.isolation.EffectiveLevel(ctx, userID, resource)
	allowed := level.Satisfies(required)
	reason := "level sufficient"
	if !allowed {
		reason = "level insufficient"
	}
	e.record(ctx, AuditEntry{
		Kind:      KindPermission,
		SubjectID: userID,
		Resource:  resource,
		Allowed:   allowed,
		Reason:    reason,
		Metadata:  map[string]any{"level": level.String(), "required": required.String()},
	})
	return allowed
}

// CheckPolicy runs a security policy and audits the outcome.
func (e *Engine) CheckPolicy(ctx context.Context, t PolicyType, attrs Attrs) bool {
	return e.EvaluatePolicy(ctx, t, attrs).Allowed
}

// EvaluatePolicy is CheckPolicy returning the reason. The audited subject is
// attrs["user_id"] when present.
func (e *Engine) EvaluatePolicy(ctx context.Context, t PolicyType, attrs Attrs) PolicyResult {
	res := e.policies.Evaluate(t, attrs)
	subject, _ := attrs.String("user_id")
	e.record(ctx, AuditEntry{
		Kind:      KindPolicy,
		SubjectID: subject,
		Resource:  string(t),
		Allowed:   res.Allowed,
		Reason:    res.Reason,
	})
	return res
}

// CheckCompliance runs every applicable compliance check and audits the report.
func (e *Engine) CheckCompliance(ctx context.Context, userID string, attrs Attrs) ComplianceReport {
	report := e.compliance.Run(attrs)
	var violations []string
	for _, r := range report.Results {
		violations = append(violations, r.Violations...)
	}
	e.record(ctx, AuditEntry{
		Kind:      KindCompliance,
		SubjectID: userID,
		Resource:  "compliance",
		Allowed:   report.Compliant,
		Reason:    joinReasons(violations),
	})
	return report
}

// AuditLog queries the audit store.
func (e *Engine) AuditLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	if e.auditStore == nil {
		return nil, ErrNoAuditStore
	}
	return e.auditStore.GetAccessLog(ctx, filter)
}

// Close stops accepting audit entries and waits for queued ones to be written.
func (e *Engine) Close() error {
	e.auditMu.Lock()
	if e.closed {
		e.auditMu.Unlock()
		return nil
	}
	e.closed = true
	if e.auditCh != nil {
		close(e.auditCh)
	}
	e.auditMu.Unlock()
	if e.auditDone != nil {
		<-e.auditDone
	}
	return nil
}

func (e *Engine) record(_ context.Context, entry AuditEntry) {
	entry.ID = uuid.NewString()
	entry.Timestamp = e.now()
	if e.traceIDFunc != nil {
		entry.TraceID = e.traceIDFunc()
	}
	e.logger.Info("audit decision",
		"kind", string(entry.Kind),
		"subject", entry.SubjectID,
		"resource", entry.Resource,
		"allowed", entry.Allowed,
		"reason", entry.Reason,
	)

	e.auditMu.RLock()
	defer e.auditMu.RUnlock()
	if e.auditCh == nil || e.closed {
		return
	}
	select {
	case e.auditCh <- entry:
	default:
		e.logger.Warn("audit queue full, dropping entry", "kind", string(entry.Kind), "subject", entry.SubjectID)
	}
}

func (e *Engine) drainAudit() {
	defer close(e.auditDone)
	bg := context.Background()
	for entry := range e.auditCh {
		if err := e.auditStore.LogDecision(bg, &entry); err != nil {
			e.logger.Error("audit write failed", "id", entry.ID, "error", err)
		}
	}
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "compliant"
	}
	return strings.Join(reasons, "; ")
}

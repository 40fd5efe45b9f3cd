package guard

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DecisionKind says which component produced an audited decision.
type DecisionKind string

const (
	KindACL        DecisionKind = "acl"
	KindPermission DecisionKind = "permission"
	KindPolicy     DecisionKind = "policy"
	KindCompliance DecisionKind = "compliance"
)

// AuditEntry records one decision.
type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      DecisionKind   `json:"kind"`
	SubjectID string         `json:"subject_id"`
	Resource  string         `json:"resource"`
	Allowed   bool           `json:"allowed"`
	Reason    string         `json:"reason"`
	TraceID   string         `json:"trace_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuditFilter selects entries from an AuditStore. Zero fields match anything.
type AuditFilter struct {
	SubjectID string
	Resource  string
	Kind      DecisionKind
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// Match reports whether e passes the filter, ignoring Limit.
func (f AuditFilter) Match(e *AuditEntry) bool {
	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	return true
}

// AuditStore is the write-mostly sink decisions are forwarded to.
type AuditStore interface {
	LogDecision(ctx context.Context, entry *AuditEntry) error
	GetAccessLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{entries: make([]*AuditEntry, 0)}
}

func (s *MemoryAuditStore) LogDecision(_ context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *entry
	s.entries = append(s.entries, &dup)
	return nil
}

// GetAccessLog returns matching entries oldest first.
func (s *MemoryAuditStore) GetAccessLog(_ context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*AuditEntry, 0)
	for _, entry := range s.entries {
		if !filter.Match(entry) {
			continue
		}
		dup := *entry
		result = append(result, &dup)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

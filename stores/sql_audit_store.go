package stores

import (
	"context"
	"encoding/json"

	"github.com/oarkflow/guard"
	"github.com/oarkflow/squealx"
)

// SQLAuditStore persists audit entries in SQL
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) (*SQLAuditStore, error) {
	return &SQLAuditStore{db: db}, nil
}

func (s *SQLAuditStore) LogDecision(ctx context.Context, entry *guard.AuditEntry) error {
	metaB, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	q := `INSERT INTO audit_log(id, timestamp, kind, subject_id, resource, allowed, reason, trace_id, metadata_json) VALUES(:id, :timestamp, :kind, :subject_id, :resource, :allowed, :reason, :trace_id, :metadata_json)`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            entry.ID,
		"timestamp":     entry.Timestamp.UTC(),
		"kind":          string(entry.Kind),
		"subject_id":    entry.SubjectID,
		"resource":      entry.Resource,
		"allowed":       boolToInt(entry.Allowed),
		"reason":        entry.Reason,
		"trace_id":      entry.TraceID,
		"metadata_json": string(metaB),
	})
	return err
}

// GetAccessLog returns matching entries oldest first.
func (s *SQLAuditStore) GetAccessLog(ctx context.Context, filter guard.AuditFilter) ([]*guard.AuditEntry, error) {
	q := `SELECT id, timestamp, kind, subject_id, resource, allowed, reason, trace_id, metadata_json FROM audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.SubjectID != "" {
		q += " AND subject_id = :subject_id"
		params["subject_id"] = filter.SubjectID
	}
	if filter.Resource != "" {
		q += " AND resource = :resource"
		params["resource"] = filter.Resource
	}
	if filter.Kind != "" {
		q += " AND kind = :kind"
		params["kind"] = string(filter.Kind)
	}
	if !filter.StartTime.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = filter.StartTime.UTC()
	}
	if !filter.EndTime.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = filter.EndTime.UTC()
	}
	q += " ORDER BY timestamp ASC, rowid ASC"
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*guard.AuditEntry, 0)
	for r.Next() {
		var id, kind, subject, resource, reason, traceID, metaJSON string
		var timestampRaw any
		var allowedInt int
		if err := r.Scan(&id, &timestampRaw, &kind, &subject, &resource, &allowedInt, &reason, &traceID, &metaJSON); err != nil {
			return nil, err
		}
		entry := &guard.AuditEntry{
			ID:        id,
			Timestamp: scanTime(timestampRaw),
			Kind:      guard.DecisionKind(kind),
			SubjectID: subject,
			Resource:  resource,
			Allowed:   allowedInt != 0,
			Reason:    reason,
			TraceID:   traceID,
		}
		_ = json.Unmarshal([]byte(metaJSON), &entry.Metadata)
		out = append(out, entry)
	}
	return out, nil
}

package stores

import (
	"context"

	"github.com/oarkflow/squealx"
)

const (
	memberKindRole  = "role"
	memberKindGroup = "group"
)

// SQLMembershipStore implements guard.MembershipStore over the memberships table.
type SQLMembershipStore struct {
	db *squealx.DB
}

func NewSQLMembershipStore(db *squealx.DB) *SQLMembershipStore {
	return &SQLMembershipStore{db: db}
}

func (s *SQLMembershipStore) AssignRole(ctx context.Context, userID, role string) error {
	return s.add(ctx, userID, memberKindRole, role)
}

func (s *SQLMembershipStore) RevokeRole(ctx context.Context, userID, role string) error {
	return s.remove(ctx, userID, memberKindRole, role)
}

func (s *SQLMembershipStore) AddToGroup(ctx context.Context, userID, group string) error {
	return s.add(ctx, userID, memberKindGroup, group)
}

func (s *SQLMembershipStore) RemoveFromGroup(ctx context.Context, userID, group string) error {
	return s.remove(ctx, userID, memberKindGroup, group)
}

func (s *SQLMembershipStore) ListRoles(ctx context.Context, userID string) ([]string, error) {
	return s.list(ctx, userID, memberKindRole)
}

func (s *SQLMembershipStore) ListGroups(ctx context.Context, userID string) ([]string, error) {
	return s.list(ctx, userID, memberKindGroup)
}

func (s *SQLMembershipStore) add(ctx context.Context, userID, kind, name string) error {
	q := `INSERT OR IGNORE INTO memberships(user_id, kind, name) VALUES(:user_id, :kind, :name)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "kind": kind, "name": name})
	return err
}

func (s *SQLMembershipStore) remove(ctx context.Context, userID, kind, name string) error {
	q := `DELETE FROM memberships WHERE user_id = :user_id AND kind = :kind AND name = :name`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "kind": kind, "name": name})
	return err
}

func (s *SQLMembershipStore) list(ctx context.Context, userID, kind string) ([]string, error) {
	out := make([]string, 0)
	q := `SELECT name FROM memberships WHERE user_id = :user_id AND kind = :kind ORDER BY name`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID, "kind": kind})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	for r.Next() {
		var name string
		if err := r.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

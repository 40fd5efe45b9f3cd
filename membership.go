package guard

import "context"

// MembershipStore resolves the roles and groups a user belongs to.
type MembershipStore interface {
	ListRoles(ctx context.Context, userID string) ([]string, error)
	ListGroups(ctx context.Context, userID string) ([]string, error)
}

// WithMembershipStore makes CheckAccess fill missing roles and groups
// attributes from ms.
func WithMembershipStore(ms MembershipStore) EngineOption {
	return func(e *Engine) error {
		e.memberships = ms
		return nil
	}
}

// enrich returns attrs with roles and groups resolved for userID. Keys the
// caller already set win, and the caller's map is left untouched.
func (e *Engine) enrich(ctx context.Context, userID string, attrs Attrs) Attrs {
	if e.memberships == nil {
		return attrs
	}
	_, hasRoles := attrs[AttrRoles]
	_, hasGroups := attrs[AttrGroups]
	if hasRoles && hasGroups {
		return attrs
	}
	out := make(Attrs, len(attrs)+2)
	for k, v := range attrs {
		out[k] = v
	}
	if !hasRoles {
		roles, err := e.memberships.ListRoles(ctx, userID)
		if err != nil {
			e.logger.Error("membership lookup failed", "user", userID, "kind", "roles", "error", err)
		} else {
			out[AttrRoles] = roles
		}
	}
	if !hasGroups {
		groups, err := e.memberships.ListGroups(ctx, userID)
		if err != nil {
			e.logger.Error("membership lookup failed", "user", userID, "kind", "groups", "error", err)
		} else {
			out[AttrGroups] = groups
		}
	}
	return out
}

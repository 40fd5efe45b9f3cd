package guard

import "strings"

// PrincipalKind identifies how a rule subject is matched.
type PrincipalKind uint8

const (
	PrincipalExact PrincipalKind = iota
	PrincipalRole
	PrincipalGroup
	PrincipalExternalAny
	PrincipalInternalAny
	PrincipalAny
	PrincipalNone
)

const (
	rolePrefix  = "role:"
	groupPrefix = "group:"
)

// Principal is a parsed rule subject specifier. Parse it once when the rule
// is created; Matches never re-parses the source string.
type Principal struct {
	Kind  PrincipalKind
	Value string
	raw   string
}

// ParsePrincipal parses a subject specifier: an exact user id, "role:<name>",
// "group:<name>", "external:*", "internal:*" or "*". Any other string,
// "external:foo" included, is an exact user id.
func ParsePrincipal(s string) Principal {
	p := parsePrincipalKind(s)
	p.raw = s
	return p
}

func parsePrincipalKind(s string) Principal {
	switch {
	case s == "*":
		return Principal{Kind: PrincipalAny}
	case s == "external:*":
		return Principal{Kind: PrincipalExternalAny}
	case s == "internal:*":
		return Principal{Kind: PrincipalInternalAny}
	case strings.HasPrefix(s, rolePrefix):
		if name := s[len(rolePrefix):]; name != "" {
			return Principal{Kind: PrincipalRole, Value: name}
		}
		return Principal{Kind: PrincipalNone}
	case strings.HasPrefix(s, groupPrefix):
		if name := s[len(groupPrefix):]; name != "" {
			return Principal{Kind: PrincipalGroup, Value: name}
		}
		return Principal{Kind: PrincipalNone}
	case s == "":
		return Principal{Kind: PrincipalNone}
	}
	return Principal{Kind: PrincipalExact, Value: s}
}

// Matches reports whether the principal covers userID in the given context.
// An exact match on the raw specifier always wins, whatever its kind.
func (p Principal) Matches(userID string, attrs Attrs) bool {
	if p.raw != "" && p.raw == userID {
		return true
	}
	switch p.Kind {
	case PrincipalAny:
		return true
	case PrincipalExact:
		return p.Value == userID
	case PrincipalRole:
		return containsString(attrs.Strings(AttrRoles), p.Value)
	case PrincipalGroup:
		return containsString(attrs.Strings(AttrGroups), p.Value)
	case PrincipalExternalAny:
		return attrs.Bool(AttrIsExternal)
	case PrincipalInternalAny:
		return !attrs.Bool(AttrIsExternal)
	}
	return false
}

// String renders the principal back to its specifier form.
func (p Principal) String() string {
	if p.raw != "" {
		return p.raw
	}
	switch p.Kind {
	case PrincipalAny:
		return "*"
	case PrincipalExternalAny:
		return "external:*"
	case PrincipalInternalAny:
		return "internal:*"
	case PrincipalRole:
		return rolePrefix + p.Value
	case PrincipalGroup:
		return groupPrefix + p.Value
	case PrincipalExact:
		return p.Value
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

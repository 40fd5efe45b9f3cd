package guard

import (
	"fmt"
	"strings"
)

// PermissionLevel is an ordered capability level. A user holding level L
// satisfies any requirement R with L >= R.
type PermissionLevel int

const (
	LevelNone PermissionLevel = iota
	LevelRead
	LevelWrite
	LevelAdmin
)

var levelNames = [...]string{
	LevelNone:  "none",
	LevelRead:  "read",
	LevelWrite: "write",
	LevelAdmin: "admin",
}

// Levels lists every defined level in ascending order.
func Levels() []PermissionLevel {
	return []PermissionLevel{LevelNone, LevelRead, LevelWrite, LevelAdmin}
}

// Valid reports whether l is one of the defined levels.
func (l PermissionLevel) Valid() bool {
	return l >= LevelNone && l <= LevelAdmin
}

// Satisfies reports whether l meets the required level.
func (l PermissionLevel) Satisfies(required PermissionLevel) bool {
	return l >= required
}

func (l PermissionLevel) String() string {
	return LevelName(l)
}

// LevelName returns the name of l, or "unknown" for undefined levels.
func LevelName(l PermissionLevel) string {
	if !l.Valid() {
		return "unknown"
	}
	return levelNames[l]
}

// LevelFromName maps a name back to its level; unknown names yield LevelNone.
func LevelFromName(name string) PermissionLevel {
	l, err := ParsePermissionLevel(name)
	if err != nil {
		return LevelNone
	}
	return l
}

// ParsePermissionLevel is the strict form of LevelFromName.
func ParsePermissionLevel(name string) (PermissionLevel, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range levelNames {
		if s == n {
			return PermissionLevel(i), nil
		}
	}
	return LevelNone, fmt.Errorf("%w: %q", ErrInvalidLevel, name)
}

// MarshalText encodes the level by name, so config files read "write", not 2.
func (l PermissionLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, int(l))
	}
	return []byte(levelNames[l]), nil
}

func (l *PermissionLevel) UnmarshalText(text []byte) error {
	parsed, err := ParsePermissionLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ActorClass separates users inside the organization from outside actors.
type ActorClass string

const (
	ActorInternal ActorClass = "internal"
	ActorExternal ActorClass = "external"
)

// PermissionMatrix holds the default level per actor class and resource type.
type PermissionMatrix map[ActorClass]map[string]PermissionLevel

// DefaultPermissionMatrix returns the built-in tiers: internal users write
// to collaborative resources, external users read at most.
func DefaultPermissionMatrix() PermissionMatrix {
	return PermissionMatrix{
		ActorInternal: {
			ResourceChat:    LevelWrite,
			ResourceFile:    LevelWrite,
			ResourceAPI:     LevelRead,
			ResourceFeature: LevelWrite,
		},
		ActorExternal: {
			ResourceChat:    LevelRead,
			ResourceFile:    LevelRead,
			ResourceAPI:     LevelNone,
			ResourceFeature: LevelNone,
		},
	}
}

// Default returns the level for class on resource, LevelNone if unlisted.
func (m PermissionMatrix) Default(class ActorClass, resource string) PermissionLevel {
	return m[class][resource]
}

// ResourceTypes returns the resource types listed for class, in a stable order.
func (m PermissionMatrix) ResourceTypes(class ActorClass) []string {
	return sortedKeys(m[class])
}

// AllResourceTypes returns every resource type listed for any class.
func (m PermissionMatrix) AllResourceTypes() []string {
	seen := make(map[string]PermissionLevel)
	for _, row := range m {
		for r := range row {
			seen[r] = LevelNone
		}
	}
	return sortedKeys(seen)
}

// Clone returns a deep copy of the matrix.
func (m PermissionMatrix) Clone() PermissionMatrix {
	out := make(PermissionMatrix, len(m))
	for class, row := range m {
		dup := make(map[string]PermissionLevel, len(row))
		for r, l := range row {
			dup[r] = l
		}
		out[class] = dup
	}
	return out
}

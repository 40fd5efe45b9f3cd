package guard

import "errors"

var (
	// ErrInvalidRule is returned when a rule is missing a principal or has an unknown type.
	ErrInvalidRule = errors.New("guard: invalid rule")

	// ErrCorruptRuleStore is returned when the persisted rule map cannot be decoded.
	ErrCorruptRuleStore = errors.New("guard: corrupt rule store")

	// ErrUnknownPolicyType is returned when a policy type has no registered evaluator.
	ErrUnknownPolicyType = errors.New("guard: unknown policy type")

	// ErrInvalidLevel is returned by ParsePermissionLevel for unknown level names.
	ErrInvalidLevel = errors.New("guard: invalid permission level")

	// ErrInvalidConfig is returned when a configuration file fails validation.
	ErrInvalidConfig = errors.New("guard: invalid configuration")
)

// ErrNoAuditStore is returned when audit queries run on an engine built without one.
var ErrNoAuditStore = errors.New("guard: audit store not configured")

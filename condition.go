package guard

import "github.com/oarkflow/guard/utils"

// Conditions are extra key/value constraints on a rule. A list value means
// "the context value must be one of these".
type Conditions map[string]any

// Evaluate reports whether every condition holds against attrs. Empty
// conditions match vacuously; a key missing from attrs fails.
func (c Conditions) Evaluate(attrs Attrs) bool {
	for key, expected := range c {
		actual, ok := attrs.Get(key)
		if !ok {
			return false
		}
		if list, isList := utils.AsList(expected); isList {
			if !utils.Contains(list, actual) {
				return false
			}
			continue
		}
		if !utils.StrictEqual(actual, expected) {
			return false
		}
	}
	return true
}

func (c Conditions) clone() Conditions {
	if c == nil {
		return Conditions{}
	}
	out := make(Conditions, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

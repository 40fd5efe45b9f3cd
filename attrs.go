package guard

import "github.com/oarkflow/guard/utils"

// Attrs carries the loosely-typed request context a decision is made against:
// roles, groups, is_external, data_classification, user_ip and so on.
type Attrs map[string]any

// Well-known attribute keys.
const (
	AttrRoles              = "roles"
	AttrGroups             = "groups"
	AttrIsExternal         = "is_external"
	AttrDataClassification = "data_classification"
	AttrHasApproval        = "has_approval"
	AttrFileSizeMB         = "file_size_mb"
	AttrFileType           = "file_type"
	AttrMalwareScanPassed  = "malware_scan_passed"
	AttrMessageAgeDays     = "message_age_days"
	AttrUserIP             = "user_ip"
)

// Get returns the value for key and whether it was present.
func (a Attrs) Get(key string) (any, bool) {
	if a == nil {
		return nil, false
	}
	v, ok := a[key]
	return v, ok
}

// Bool reports whether the value at key is truthy.
func (a Attrs) Bool(key string) bool {
	v, _ := a.Get(key)
	return utils.Truthy(v)
}

// Strings returns the string members of a list attribute. A missing or
// non-list value is treated as empty.
func (a Attrs) Strings(key string) []string {
	v, ok := a.Get(key)
	if !ok {
		return nil
	}
	s, _ := utils.ToStrings(v)
	return s
}

// String returns a scalar attribute rendered as a string.
func (a Attrs) String(key string) (string, bool) {
	v, ok := a.Get(key)
	if !ok {
		return "", false
	}
	return utils.ToString(v)
}

// Number returns a numeric attribute, accepting numeric strings.
func (a Attrs) Number(key string) (float64, bool) {
	v, ok := a.Get(key)
	if !ok {
		return 0, false
	}
	return utils.ToNumber(v)
}

package guard

import (
	"strings"
	"time"

	"github.com/oarkflow/guard/utils"
)

const (
	defaultWorkdayStart = "09:00"
	defaultWorkdayEnd   = "18:00"
)

type builtinPolicy struct {
	policy Policy
	eval   PolicyEvaluator
}

func builtinPolicies() []builtinPolicy {
	return []builtinPolicy{
		{
			policy: Policy{Type: PolicyDataAccess, Enabled: true, Params: map[string]any{
				"allowed_classifications": []any{"public", "internal"},
				"require_approval":        false,
			}},
			eval: evalDataAccess,
		},
		{
			policy: Policy{Type: PolicyFileSharing, Enabled: true, Params: map[string]any{
				"max_file_size_mb":   100,
				"allowed_file_types": []any{"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "txt", "csv", "png", "jpg", "jpeg"},
				"scan_for_malware":   true,
			}},
			eval: evalFileSharing,
		},
		{
			policy: Policy{Type: PolicyMessageRetention, Enabled: true, Params: map[string]any{
				"retention_days": 365,
			}},
			eval: evalMessageRetention,
		},
		{
			policy: Policy{Type: PolicyIPWhitelist, Enabled: false, Params: map[string]any{
				"allowed_ips": []any{},
			}},
			eval: evalIPWhitelist,
		},
		{
			policy: Policy{Type: PolicyTimeRestriction, Enabled: false, Params: map[string]any{
				"allowed_hours":  []any{defaultWorkdayStart, defaultWorkdayEnd},
				"timezone":       "UTC",
				"allow_weekends": false,
			}},
			eval: evalTimeRestriction,
		},
	}
}

func evalDataAccess(p Policy, attrs Attrs, _ PolicyEnv) PolicyResult {
	allowed, _ := utils.ToStrings(p.Params["allowed_classifications"])
	class, ok := stringAttr(attrs, AttrDataClassification)
	if !ok || !containsString(allowed, class) {
		return deny("data classification not permitted")
	}
	if utils.Truthy(p.Params["require_approval"]) && !attrs.Bool(AttrHasApproval) {
		return deny("approval required")
	}
	return allow("data access permitted")
}

func evalFileSharing(p Policy, attrs Attrs, _ PolicyEnv) PolicyResult {
	if limit, ok := utils.ToNumber(p.Params["max_file_size_mb"]); ok {
		if size, has := attrs.Number(AttrFileSizeMB); has && size > limit {
			return deny("file exceeds size limit")
		}
	}
	types, _ := utils.ToStrings(p.Params["allowed_file_types"])
	fileType, _ := stringAttr(attrs, AttrFileType)
	if !containsString(types, normalizeFileType(fileType)) {
		return deny("file type not permitted")
	}
	if utils.Truthy(p.Params["scan_for_malware"]) && !attrs.Bool(AttrMalwareScanPassed) {
		return deny("malware scan not passed")
	}
	return allow("file sharing permitted")
}

// stringAttr returns the attribute only when it holds a string, so numeric
// values never match string allow-lists.
func stringAttr(attrs Attrs, key string) (string, bool) {
	v, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func normalizeFileType(t string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
}

func evalMessageRetention(p Policy, attrs Attrs, _ PolicyEnv) PolicyResult {
	limit, ok := utils.ToNumber(p.Params["retention_days"])
	if !ok {
		return allow("no retention limit")
	}
	age, _ := attrs.Number(AttrMessageAgeDays)
	if age > limit {
		return deny("message older than retention window")
	}
	return allow("message within retention window")
}

func evalIPWhitelist(p Policy, attrs Attrs, _ PolicyEnv) PolicyResult {
	entries, _ := utils.ToStrings(p.Params["allowed_ips"])
	if len(entries) == 0 {
		return allow("no ip allow-list configured")
	}
	ip, _ := attrs.String(AttrUserIP)
	if !IPAllowed(ip, entries) {
		return deny("ip not in allow-list")
	}
	return allow("ip allow-listed")
}

func evalTimeRestriction(p Policy, _ Attrs, env PolicyEnv) PolicyResult {
	start, end, ok := workWindow(p.Params["allowed_hours"])
	if !ok {
		start, end = defaultWorkdayStart, defaultWorkdayEnd
		env.Logger.Warn("invalid allowed_hours, using default window",
			"value", p.Params["allowed_hours"], "start", start, "end", end)
	}
	loc := time.UTC
	if tz, _ := p.Params["timezone"].(string); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			env.Logger.Warn("unknown timezone, using UTC", "timezone", tz, "error", err)
		}
	}
	now := env.Now.In(loc)
	clock := now.Format("15:04")
	if clock < start || clock >= end {
		return deny("outside allowed hours")
	}
	weekend := now.Weekday() == time.Saturday || now.Weekday() == time.Sunday
	if weekend && !utils.Truthy(p.Params["allow_weekends"]) {
		return deny("weekend access not allowed")
	}
	return allow("within allowed hours")
}

// workWindow reads allowed_hours: exactly two strings, start then end.
func workWindow(raw any) (start, end string, ok bool) {
	list, ok := utils.AsList(raw)
	if !ok || len(list) != 2 {
		return "", "", false
	}
	start, okStart := list[0].(string)
	end, okEnd := list[1].(string)
	if !okStart || !okEnd {
		return "", "", false
	}
	return start, end, true
}

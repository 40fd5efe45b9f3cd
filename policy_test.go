package guard

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestPolicyUnknownTypeDenies(t *testing.T) {
	r := NewPolicyRegistry()
	res := r.Evaluate(PolicyType("geo_fence"), nil)
	if res.Allowed {
		t.Fatalf("unknown policy types must deny")
	}
	if err := r.UpdatePolicy(PolicyType("geo_fence"), map[string]any{"enabled": true}); !errors.Is(err, ErrUnknownPolicyType) {
		t.Fatalf("expected ErrUnknownPolicyType, got %v", err)
	}
}

func TestPolicyDisabledFailsOpen(t *testing.T) {
	r := NewPolicyRegistry()
	for _, typ := range r.Types() {
		if err := r.UpdatePolicy(typ, map[string]any{"enabled": false}); err != nil {
			t.Fatalf("disable %s: %v", typ, err)
		}
		if !r.CheckPolicy(typ, Attrs{"data_classification": "secret", "file_size_mb": 1e6}) {
			t.Fatalf("disabled %s should allow", typ)
		}
	}
}

func TestPolicyDataAccess(t *testing.T) {
	r := NewPolicyRegistry()
	if !r.CheckPolicy(PolicyDataAccess, Attrs{"data_classification": "internal"}) {
		t.Fatalf("internal data is allowed by default")
	}
	if r.CheckPolicy(PolicyDataAccess, Attrs{"data_classification": "confidential"}) {
		t.Fatalf("confidential data is not in the default list")
	}
	if r.CheckPolicy(PolicyDataAccess, nil) {
		t.Fatalf("missing classification denies")
	}
	_ = r.UpdatePolicy(PolicyDataAccess, map[string]any{"require_approval": true})
	if r.CheckPolicy(PolicyDataAccess, Attrs{"data_classification": "public"}) {
		t.Fatalf("approval now required")
	}
	if !r.CheckPolicy(PolicyDataAccess, Attrs{"data_classification": "public", "has_approval": true}) {
		t.Fatalf("approved access should pass")
	}
}

func TestPolicyFileSharing(t *testing.T) {
	r := NewPolicyRegistry()
	ok := Attrs{"file_size_mb": 10, "file_type": "pdf", "malware_scan_passed": true}
	if !r.CheckPolicy(PolicyFileSharing, ok) {
		t.Fatalf("small scanned pdf should pass")
	}
	cases := []Attrs{
		{"file_size_mb": 101, "file_type": "pdf", "malware_scan_passed": true},
		{"file_size_mb": 10, "file_type": "exe", "malware_scan_passed": true},
		{"file_size_mb": 10, "file_type": "pdf"},
	}
	for _, attrs := range cases {
		if r.CheckPolicy(PolicyFileSharing, attrs) {
			t.Fatalf("expected deny for %v", attrs)
		}
	}
	_ = r.UpdatePolicy(PolicyFileSharing, map[string]any{"scan_for_malware": false})
	if !r.CheckPolicy(PolicyFileSharing, Attrs{"file_size_mb": 100, "file_type": "PDF"}) {
		t.Fatalf("scan no longer required and size limit is inclusive")
	}
}

func TestPolicyMessageRetention(t *testing.T) {
	r := NewPolicyRegistry()
	if !r.CheckPolicy(PolicyMessageRetention, Attrs{"message_age_days": 365}) {
		t.Fatalf("age equal to the window is retained")
	}
	if r.CheckPolicy(PolicyMessageRetention, Attrs{"message_age_days": 366}) {
		t.Fatalf("older messages fall outside the window")
	}
}

func TestPolicyIPWhitelistCIDR(t *testing.T) {
	r := NewPolicyRegistry()
	if !r.CheckPolicy(PolicyIPWhitelist, Attrs{"user_ip": "10.0.0.1"}) {
		t.Fatalf("ip whitelist is disabled by default")
	}
	_ = r.UpdatePolicy(PolicyIPWhitelist, map[string]any{"enabled": true})
	if !r.CheckPolicy(PolicyIPWhitelist, Attrs{"user_ip": "10.0.0.1"}) {
		t.Fatalf("empty allow-list allows everyone")
	}
	_ = r.UpdatePolicy(PolicyIPWhitelist, map[string]any{"allowed_ips": []any{"192.168.1.0/24"}})
	if !r.CheckPolicy(PolicyIPWhitelist, Attrs{"user_ip": "192.168.1.100"}) {
		t.Fatalf("address inside the range should pass")
	}
	if r.CheckPolicy(PolicyIPWhitelist, Attrs{"user_ip": "192.168.2.100"}) {
		t.Fatalf("address outside the range should fail")
	}
	if r.CheckPolicy(PolicyIPWhitelist, nil) {
		t.Fatalf("missing ip should fail once a list is set")
	}
}

func TestPolicyTimeRestriction(t *testing.T) {
	// Wednesday
	now := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	r := NewPolicyRegistry(WithPolicyClock(func() time.Time { return now }))
	_ = r.UpdatePolicy(PolicyTimeRestriction, map[string]any{"enabled": true})

	if !r.CheckPolicy(PolicyTimeRestriction, nil) {
		t.Fatalf("10:30 on a weekday is inside 09:00-18:00")
	}
	now = time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC)
	if r.CheckPolicy(PolicyTimeRestriction, nil) {
		t.Fatalf("end of the window is exclusive")
	}
	now = time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC) // Saturday
	if r.CheckPolicy(PolicyTimeRestriction, nil) {
		t.Fatalf("weekends are not allowed by default")
	}
	_ = r.UpdatePolicy(PolicyTimeRestriction, map[string]any{"allow_weekends": true})
	if !r.CheckPolicy(PolicyTimeRestriction, nil) {
		t.Fatalf("weekends now allowed")
	}
}

func TestPolicyTimeRestrictionTimezone(t *testing.T) {
	// 08:00 UTC is 17:00 in Tokyo
	now := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)
	r := NewPolicyRegistry(WithPolicyClock(func() time.Time { return now }))
	_ = r.UpdatePolicy(PolicyTimeRestriction, map[string]any{"enabled": true, "timezone": "Asia/Tokyo"})
	if !r.CheckPolicy(PolicyTimeRestriction, nil) {
		t.Fatalf("17:00 in Tokyo is inside the window")
	}
	_ = r.UpdatePolicy(PolicyTimeRestriction, map[string]any{"timezone": "UTC"})
	if r.CheckPolicy(PolicyTimeRestriction, nil) {
		t.Fatalf("08:00 UTC is before the window")
	}
}

func TestPolicyTimeRestrictionBadConfigWarns(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	log := &recordingLogger{}
	r := NewPolicyRegistry(WithPolicyClock(func() time.Time { return now }), WithPolicyLogger(log))
	_ = r.UpdatePolicy(PolicyTimeRestriction, map[string]any{
		"enabled":       true,
		"allowed_hours": []any{"00:00"},
		"timezone":      "Mars/Olympus",
	})
	if !r.CheckPolicy(PolicyTimeRestriction, nil) {
		t.Fatalf("default window 09:00-18:00 UTC should apply at noon")
	}
	if log.count("warn") != 2 {
		t.Fatalf("expected warnings for hours and timezone, got %d", log.count("warn"))
	}
}

func TestPolicyTimeRestrictionRejectsMalformedWindow(t *testing.T) {
	evening := time.Date(2026, 3, 4, 20, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		hours any
	}{
		{"three members", []any{"00:00", 5, "23:59"}},
		{"non-string member", []any{"00:00", 2359}},
		{"not a list", "00:00-23:59"},
		{"missing", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log := &recordingLogger{}
			r := NewPolicyRegistry(WithPolicyClock(func() time.Time { return evening }), WithPolicyLogger(log))
			_ = r.UpdatePolicy(PolicyTimeRestriction, map[string]any{"enabled": true, "allowed_hours": tc.hours})
			if r.CheckPolicy(PolicyTimeRestriction, nil) {
				t.Fatalf("20:00 is outside the default 09:00-18:00 window")
			}
			if log.count("warn") != 1 {
				t.Fatalf("expected one warning, got %d", log.count("warn"))
			}
		})
	}
}

func TestPolicyStringAttributesAreTyped(t *testing.T) {
	r := NewPolicyRegistry()
	_ = r.UpdatePolicy(PolicyDataAccess, map[string]any{"allowed_classifications": []any{"1", "public"}})
	if r.CheckPolicy(PolicyDataAccess, Attrs{"data_classification": 1}) {
		t.Fatalf("numeric classification must not match the string \"1\"")
	}
	if !r.CheckPolicy(PolicyDataAccess, Attrs{"data_classification": "1"}) {
		t.Fatalf("string classification should match")
	}
	_ = r.UpdatePolicy(PolicyFileSharing, map[string]any{"allowed_file_types": []any{"7z"}, "scan_for_malware": false})
	if !r.CheckPolicy(PolicyFileSharing, Attrs{"file_type": "7z"}) {
		t.Fatalf("string file type should match")
	}
	_ = r.UpdatePolicy(PolicyFileSharing, map[string]any{"allowed_file_types": []any{"7"}})
	if r.CheckPolicy(PolicyFileSharing, Attrs{"file_type": 7}) {
		t.Fatalf("numeric file type must not match the string \"7\"")
	}
}

func TestPolicyResetCopiesDefaults(t *testing.T) {
	r := NewPolicyRegistry()
	_ = r.UpdatePolicy(PolicyMessageRetention, map[string]any{"retention_days": 7})
	if r.CheckPolicy(PolicyMessageRetention, Attrs{"message_age_days": 30}) {
		t.Fatalf("updated window should apply")
	}
	if err := r.ResetToDefault(PolicyMessageRetention); err != nil {
		t.Fatalf("reset: %v", err)
	}
	p, _ := r.GetPolicy(PolicyMessageRetention)
	if p.Params["retention_days"] != 365 {
		t.Fatalf("reset should restore 365, got %v", p.Params["retention_days"])
	}

	// mutating a returned copy must not leak into the registry
	p.Params["retention_days"] = 1
	again, _ := r.GetPolicy(PolicyMessageRetention)
	if again.Params["retention_days"] != 365 {
		t.Fatalf("GetPolicy returned shared params")
	}

	_ = r.UpdatePolicy(PolicyFileSharing, map[string]any{"allowed_file_types": []any{"txt"}})
	_ = r.UpdatePolicy(PolicyDataAccess, map[string]any{"enabled": false})
	if err := r.ResetToDefault(); err != nil {
		t.Fatalf("reset all: %v", err)
	}
	if !r.GetAllPolicies()[PolicyDataAccess].Enabled {
		t.Fatalf("reset all should re-enable data access")
	}
	if err := r.ResetToDefault(PolicyType("nope")); !errors.Is(err, ErrUnknownPolicyType) {
		t.Fatalf("expected ErrUnknownPolicyType, got %v", err)
	}
}

func TestPolicyUpdateDoesNotAliasCallerData(t *testing.T) {
	r := NewPolicyRegistry()
	ips := []any{"10.0.0.0/8"}
	_ = r.UpdatePolicy(PolicyIPWhitelist, map[string]any{"enabled": true, "allowed_ips": ips})
	ips[0] = "0.0.0.0/0"
	if r.CheckPolicy(PolicyIPWhitelist, Attrs{"user_ip": "8.8.8.8"}) {
		t.Fatalf("caller slice mutation leaked into the policy")
	}
}

func TestPolicyRegisterEvaluator(t *testing.T) {
	r := NewPolicyRegistry()
	geo := PolicyType("geo_fence")
	r.RegisterEvaluator(geo, func(p Policy, attrs Attrs, _ PolicyEnv) PolicyResult {
		country, _ := attrs.String("country")
		allowed, _ := p.Param("country")
		if country == allowed {
			return PolicyResult{Allowed: true, Reason: "home country"}
		}
		return PolicyResult{Reason: "foreign country"}
	}, Policy{Type: geo, Enabled: true, Params: map[string]any{"country": "DE"}})

	if !r.Known(geo) {
		t.Fatalf("registered type should be known")
	}
	if !r.CheckPolicy(geo, Attrs{"country": "DE"}) || r.CheckPolicy(geo, Attrs{"country": "FR"}) {
		t.Fatalf("custom evaluator not dispatched")
	}
	_ = r.UpdatePolicy(geo, map[string]any{"country": "FR"})
	_ = r.ResetToDefault(geo)
	if !r.CheckPolicy(geo, Attrs{"country": "DE"}) {
		t.Fatalf("reset should restore the registered default")
	}
}

func TestPolicyDefaultsOption(t *testing.T) {
	r := NewPolicyRegistry(WithPolicyDefaults(Policy{
		Type:    PolicyIPWhitelist,
		Enabled: true,
		Params:  map[string]any{"allowed_ips": []any{"10.1.2.3"}},
	}))
	if r.CheckPolicy(PolicyIPWhitelist, Attrs{"user_ip": "10.1.2.4"}) {
		t.Fatalf("configured default should be active")
	}
	_ = r.UpdatePolicy(PolicyIPWhitelist, map[string]any{"enabled": false})
	_ = r.ResetToDefault(PolicyIPWhitelist)
	if r.CheckPolicy(PolicyIPWhitelist, Attrs{"user_ip": "10.1.2.4"}) {
		t.Fatalf("reset should return to the configured default, not the built-in one")
	}
}

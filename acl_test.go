package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestACL(t *testing.T, cache Cache, opts ...ACLOption) *AccessControlList {
	t.Helper()
	acl, err := NewAccessControlList(context.Background(), cache, opts...)
	if err != nil {
		t.Fatalf("new acl: %v", err)
	}
	return acl
}

func TestACLDefaultPolicies(t *testing.T) {
	acl := newTestACL(t, nil)
	ctx := context.Background()
	want := map[string]bool{"api": false, "file": false, "chat": true, "feature": true, "wiki": false}
	for typ, allowed := range want {
		if got := acl.CheckAccess(ctx, typ, "x", "u1", nil); got != allowed {
			t.Fatalf("default for %s: got %v, want %v", typ, got, allowed)
		}
	}
}

func TestACLEndToEndDenyOverridesRole(t *testing.T) {
	acl := newTestACL(t, nil)
	ctx := context.Background()
	admin := Attrs{"roles": []string{"admin"}}

	if err := acl.AddRule(ctx, "chat", "c1", "role:admin", RuleAllow, nil); err != nil {
		t.Fatalf("add allow: %v", err)
	}
	if !acl.CheckAccess(ctx, "chat", "c1", "u9", admin) {
		t.Fatalf("expected allow via role")
	}
	if err := acl.AddRule(ctx, "chat", "c1", "u9", RuleDeny, nil); err != nil {
		t.Fatalf("add deny: %v", err)
	}
	if acl.CheckAccess(ctx, "chat", "c1", "u9", admin) {
		t.Fatalf("deny rule must override role allow")
	}
	// other admins are unaffected
	if !acl.CheckAccess(ctx, "chat", "c1", "u10", admin) {
		t.Fatalf("expected allow for another admin")
	}
}

func TestACLDenyOverridesAllowSamePrincipal(t *testing.T) {
	acl := newTestACL(t, nil)
	ctx := context.Background()
	_ = acl.AddRule(ctx, "file", "f1", "bob", RuleAllow, nil)
	_ = acl.AddRule(ctx, "file", "f1", "bob", RuleDeny, nil)
	if acl.CheckAccess(ctx, "file", "f1", "bob", nil) {
		t.Fatalf("deny must win over allow")
	}
	if len(acl.GetRules("file", "f1")) != 2 {
		t.Fatalf("allow and deny for the same principal are distinct rules")
	}
}

func TestACLNoMatchInExistingBucketDenies(t *testing.T) {
	acl := newTestACL(t, nil)
	ctx := context.Background()
	_ = acl.AddRule(ctx, "chat", "c2", "alice", RuleAllow, nil)

	dec := acl.Explain(ctx, "chat", "c2", "bob", nil)
	if dec.Allowed || dec.Reason != ReasonNoMatch {
		t.Fatalf("expected deny with no match, got %+v", dec)
	}
	if got := acl.Explain(ctx, "chat", "other", "bob", nil); !got.Allowed || got.Reason != ReasonDefaultPolicy {
		t.Fatalf("expected default allow for chat without bucket, got %+v", got)
	}
}

func TestACLUpsertKeepsSingleRule(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	acl := newTestACL(t, nil, WithACLClock(clock.Now))
	ctx := context.Background()

	_ = acl.AddRule(ctx, "file", "f1", "alice", RuleAllow, Conditions{"dept": "eng"})
	clock.Advance(time.Minute)
	_ = acl.AddRule(ctx, "file", "f1", "alice", RuleAllow, Conditions{"dept": "ops"})

	rules := acl.GetRules("file", "f1")
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule after upsert, got %d", len(rules))
	}
	r := rules[0]
	if r.Conditions["dept"] != "ops" {
		t.Fatalf("expected latest conditions, got %v", r.Conditions)
	}
	if !r.UpdatedAt.Equal(clock.Now()) || !r.CreatedAt.Before(r.UpdatedAt) {
		t.Fatalf("timestamps not maintained: created=%v updated=%v", r.CreatedAt, r.UpdatedAt)
	}
	if acl.CheckAccess(ctx, "file", "f1", "alice", Attrs{"dept": "eng"}) {
		t.Fatalf("old conditions should no longer match")
	}
	if !acl.CheckAccess(ctx, "file", "f1", "alice", Attrs{"dept": "ops"}) {
		t.Fatalf("new conditions should match")
	}
}

func TestACLWildcardPrincipals(t *testing.T) {
	acl := newTestACL(t, nil)
	ctx := context.Background()
	_ = acl.AddRule(ctx, "feature", "beta", "external:*", RuleAllow, nil)
	if !acl.CheckAccess(ctx, "feature", "beta", "anyone", Attrs{"is_external": true}) {
		t.Fatalf("external:* should match external users")
	}
	if acl.CheckAccess(ctx, "feature", "beta", "anyone", nil) {
		t.Fatalf("external:* should not match internal users")
	}

	_ = acl.AddRule(ctx, "feature", "gamma", "internal:*", RuleAllow, nil)
	if !acl.CheckAccess(ctx, "feature", "gamma", "anyone", nil) {
		t.Fatalf("internal:* should match when is_external is absent")
	}
}

func TestACLRemoveRuleDropsEmptyBucket(t *testing.T) {
	cache := NewMemoryCache()
	acl := newTestACL(t, cache)
	ctx := context.Background()

	_ = acl.AddRule(ctx, "api", "a1", "svc", RuleAllow, nil)
	_ = acl.AddRule(ctx, "api", "a1", "svc", RuleDeny, Conditions{"env": "prod"})
	if acl.Len() != 1 {
		t.Fatalf("expected one bucket")
	}
	if err := acl.RemoveRule(ctx, "api", "a1", "svc"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if acl.Len() != 0 || len(acl.Resources()) != 0 {
		t.Fatalf("empty bucket should be removed, have %v", acl.Resources())
	}
	// back to the api default
	if acl.CheckAccess(ctx, "api", "a1", "svc", nil) {
		t.Fatalf("api default is deny")
	}

	reloaded := newTestACL(t, cache)
	if reloaded.Len() != 0 {
		t.Fatalf("persisted map should not keep the empty bucket")
	}
}

func TestACLPersistsAndReloads(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()
	acl := newTestACL(t, cache)
	_ = acl.AddRule(ctx, "file", "f1", "role:editor", RuleAllow, Conditions{"level": 3, "region": []any{"eu", "us"}})

	reloaded := newTestACL(t, cache)
	attrs := Attrs{"roles": []string{"editor"}, "level": 3, "region": "eu"}
	if !reloaded.CheckAccess(ctx, "file", "f1", "u1", attrs) {
		t.Fatalf("rule should survive a round trip through the cache")
	}
	if reloaded.CheckAccess(ctx, "file", "f1", "u1", Attrs{"roles": []string{"editor"}, "level": "3", "region": "eu"}) {
		t.Fatalf("string level must not equal numeric condition")
	}
}

func TestACLSetAndClearRules(t *testing.T) {
	acl := newTestACL(t, nil)
	ctx := context.Background()
	err := acl.SetRules(ctx, "chat", "c1", []Rule{
		{Principal: "alice", Type: RuleAllow},
		{Principal: "alice", Type: RuleAllow, Conditions: Conditions{"x": 1}},
		{Principal: "bob", Type: RuleDeny},
	})
	if err != nil {
		t.Fatalf("set rules: %v", err)
	}
	rules := acl.GetRules("chat", "c1")
	if len(rules) != 2 {
		t.Fatalf("duplicates should collapse, got %d rules", len(rules))
	}
	if err := acl.SetRules(ctx, "chat", "c1", []Rule{{Principal: "", Type: RuleAllow}}); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
	if len(acl.GetRules("chat", "c1")) != 2 {
		t.Fatalf("failed SetRules must not change the bucket")
	}
	if err := acl.ClearRules(ctx, "chat", "c1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !acl.CheckAccess(ctx, "chat", "c1", "bob", nil) {
		t.Fatalf("cleared chat resource falls back to default allow")
	}
}

func TestACLRejectsInvalidRule(t *testing.T) {
	acl := newTestACL(t, nil)
	if err := acl.AddRule(context.Background(), "chat", "c1", "alice", RuleType("maybe"), nil); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}

func TestACLCorruptStoreFailsFast(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	_ = cache.Set(ctx, RulesCacheKey, []byte(`{"chat:c1": "not a list"}`), 0)
	if _, err := NewAccessControlList(ctx, cache); !errors.Is(err, ErrCorruptRuleStore) {
		t.Fatalf("expected ErrCorruptRuleStore, got %v", err)
	}

	_ = cache.Set(ctx, RulesCacheKey, []byte(`{"chat:c1": [{"principal": "", "type": "allow"}]}`), 0)
	if _, err := NewAccessControlList(ctx, cache); !errors.Is(err, ErrCorruptRuleStore) {
		t.Fatalf("expected ErrCorruptRuleStore for invalid rule, got %v", err)
	}
}

func TestACLSaveFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	cache := &failingCache{MemoryCache: NewMemoryCache()}
	acl := newTestACL(t, cache)
	_ = acl.AddRule(ctx, "file", "f1", "alice", RuleAllow, nil)

	cache.fail = true
	if err := acl.AddRule(ctx, "file", "f1", "bob", RuleAllow, nil); !errors.Is(err, errCacheDown) {
		t.Fatalf("expected cache error, got %v", err)
	}
	if acl.CheckAccess(ctx, "file", "f1", "bob", nil) {
		t.Fatalf("unsaved rule must not take effect")
	}
	if !acl.CheckAccess(ctx, "file", "f1", "alice", nil) {
		t.Fatalf("existing rules must survive a failed save")
	}
}

func TestACLCustomDefaults(t *testing.T) {
	acl := newTestACL(t, nil, WithDefaultPolicies(map[string]bool{"api": true, "wiki": true}))
	ctx := context.Background()
	if !acl.CheckAccess(ctx, "api", "a", "u", nil) || !acl.CheckAccess(ctx, "wiki", "w", "u", nil) {
		t.Fatalf("custom defaults not applied")
	}
	if acl.CheckAccess(ctx, "file", "f", "u", nil) {
		t.Fatalf("unchanged defaults must keep their value")
	}
}

func TestACLConcurrentWritersAndReaders(t *testing.T) {
	acl := newTestACL(t, nil)
	ctx := context.Background()
	const writers = 50

	var wg sync.WaitGroup
	errs := make(chan error, writers*2)
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if err := acl.AddRule(ctx, "chat", "c1", fmt.Sprintf("user-%d", i), RuleAllow, nil); err != nil {
				errs <- err
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			acl.CheckAccess(ctx, "chat", "c1", fmt.Sprintf("user-%d", i), nil)
			for _, r := range acl.GetRules("chat", "c1") {
				if r.Principal == "" || r.Type != RuleAllow {
					errs <- fmt.Errorf("partial rule observed: %+v", r)
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("%v", err)
	}

	if got := len(acl.GetRules("chat", "c1")); got != writers {
		t.Fatalf("bucket holds %d rules, want %d", got, writers)
	}
	for i := 0; i < writers; i++ {
		if !acl.CheckAccess(ctx, "chat", "c1", fmt.Sprintf("user-%d", i), nil) {
			t.Fatalf("user-%d should be allowed", i)
		}
	}
}

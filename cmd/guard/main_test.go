package main

import "testing"

func TestParseAttrs(t *testing.T) {
	attrs, err := parseAttrs([]string{"roles=[admin, dev]", "file_size_mb=12", "consent=true", "country=US", "note="})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := attrs.Strings("roles"); len(got) != 2 || got[0] != "admin" || got[1] != "dev" {
		t.Fatalf("roles = %v", got)
	}
	if n, ok := attrs.Number("file_size_mb"); !ok || n != 12 {
		t.Fatalf("file_size_mb = %v %v", n, ok)
	}
	if !attrs.Bool("consent") {
		t.Fatalf("consent should be true")
	}
	if s, _ := attrs.String("country"); s != "US" {
		t.Fatalf("country = %q", s)
	}
	if s, _ := attrs.String("note"); s != "" {
		t.Fatalf("empty value should stay an empty string, got %q", s)
	}
}

func TestParseAttrsRejectsBareWords(t *testing.T) {
	if _, err := parseAttrs([]string{"roles"}); err == nil {
		t.Fatalf("expected error for missing '='")
	}
	if _, err := parseAttrs([]string{"=x"}); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestPrintDecisionExitCodes(t *testing.T) {
	if printDecision(true, "ok") != 0 || printDecision(false, "no") != 2 {
		t.Fatalf("unexpected exit codes")
	}
}

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func TestSLogLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewSLogLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	l.Debug("hidden", "k", "v")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level")
	}
	l.Warn("cache failed", "key", "acl_rules", "attempt", 2, "error", errors.New("timeout"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["msg"] != "cache failed" || rec["level"] != "WARN" {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec["key"] != "acl_rules" || rec["attempt"] != float64(2) || rec["error"] != "timeout" {
		t.Fatalf("fields not carried: %v", rec)
	}
}

func TestNullLoggerDiscards(t *testing.T) {
	var l Logger = NewNullLogger()
	l.Debug("a")
	l.Info("b", "k", 1)
	l.Warn("c")
	l.Error("d", "error", errors.New("x"))
}

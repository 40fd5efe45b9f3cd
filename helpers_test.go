package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type logLine struct {
	level string
	msg   string
}

// recordingLogger keeps every line so tests can assert on warnings.
type recordingLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (r *recordingLogger) add(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, logLine{level: level, msg: msg})
}

func (r *recordingLogger) Debug(msg string, _ ...any) { r.add("debug", msg) }
func (r *recordingLogger) Info(msg string, _ ...any)  { r.add("info", msg) }
func (r *recordingLogger) Warn(msg string, _ ...any)  { r.add("warn", msg) }
func (r *recordingLogger) Error(msg string, _ ...any) { r.add("error", msg) }

func (r *recordingLogger) count(level string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.lines {
		if l.level == level {
			n++
		}
	}
	return n
}

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// failingCache fails every call after fail is set.
type failingCache struct {
	*MemoryCache
	fail bool
}

var errCacheDown = errors.New("cache down")

func (f *failingCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.fail {
		return nil, false, errCacheDown
	}
	return f.MemoryCache.Get(ctx, key)
}

func (f *failingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.fail {
		return fmt.Errorf("set %s: %w", key, errCacheDown)
	}
	return f.MemoryCache.Set(ctx, key, value, ttl)
}

func (f *failingCache) Delete(ctx context.Context, key string) error {
	if f.fail {
		return errCacheDown
	}
	return f.MemoryCache.Delete(ctx, key)
}

func externalUsers(ids ...string) ActorClassifier {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return ActorClassifierFunc(func(_ context.Context, userID string) (bool, error) {
		return set[userID], nil
	})
}

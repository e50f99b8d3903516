package ephemeral

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// DefaultSweepCron runs the expiry sweep every minute.
const DefaultSweepCron = "* * * * *"

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process Store. Expiry is checked on every read, so expired
// values are never returned; the sweeper only reclaims memory.
//
// Thread-safety: safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an empty store using the wall clock.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cp := make([]byte, len(value))
	copy(cp, value)

	m.mu.Lock()
	m.entries[key] = entry{value: cp, expires: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || !m.now().Before(e.expires) {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(e.value))
	copy(cp, e.value)
	return cp, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep removes expired entries and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on the cron schedule until ctx is cancelled.
// An empty expression uses DefaultSweepCron.
func (m *Memory) StartSweeper(ctx context.Context, cronExpr string) error {
	if cronExpr == "" {
		cronExpr = DefaultSweepCron
	}
	if !gronx.IsValid(cronExpr) {
		return fmt.Errorf("invalid sweep cron expression: %q", cronExpr)
	}

	go func() {
		slog.Info("ephemeral sweeper started", "cron", cronExpr)
		for {
			next, err := gronx.NextTickAfter(cronExpr, time.Now(), false)
			if err != nil {
				slog.Error("ephemeral sweeper next tick failed", "cron", cronExpr, "error", err)
				next = time.Now().Add(time.Minute)
			}

			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				slog.Info("ephemeral sweeper stopping")
				return
			case <-timer.C:
			}

			if n := m.Sweep(); n > 0 {
				slog.Debug("ephemeral sweep", "removed", n)
			}
		}
	}()
	return nil
}

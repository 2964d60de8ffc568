// Package testutil holds helpers shared by dispatchd's package tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"
)

const defaultTestTimeout = 5 * time.Second

// FakeClock is a manually advanced clock. Pass its Now method wherever a
// component accepts an injectable clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward. Safe to call concurrently with Now.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestContext returns a context that expires after five seconds and is
// cancelled when the test finishes, so a stuck goroutine fails the test
// instead of hanging the run.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	t.Cleanup(cancel)
	return ctx
}

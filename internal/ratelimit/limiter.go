// Package ratelimit bounds intent admission rates per relationship.
// Limits come from the trust policy (low-trust levels are throttled,
// high-trust levels are not) and are enforced over fixed windows.
package ratelimit

import (
	"sync"
	"time"

	"github.com/humotica/intentgate/internal/policy"
)

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Current  int
	Limit    int
}

type counter struct {
	windowStart time.Time
	count       int
}

// Limiter tracks admission counts per relationship over fixed windows.
// Counters are in-memory: a restart resets them, which errs on the
// permissive side rather than denying intents a fresh process cannot
// account for.
type Limiter struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// New returns an empty limiter.
func New() *Limiter {
	return &Limiter{counters: make(map[string]*counter)}
}

// Check tests the relationship against the policy's rate limit at the
// given instant and, when within bounds, counts the intent. A policy
// without a limit always passes and counts nothing. Exceeded checks do
// not consume from the window.
func (l *Limiter) Check(relationshipID string, limit policy.RateLimit, now time.Time) CheckResult {
	if !limit.Enabled() {
		return CheckResult{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.counters[relationshipID]
	if c == nil {
		c = &counter{windowStart: now}
		l.counters[relationshipID] = c
	}
	if now.Sub(c.windowStart) >= limit.Window {
		c.windowStart = now
		c.count = 0
	}

	if c.count >= limit.MaxIntents {
		return CheckResult{Exceeded: true, Current: c.count, Limit: limit.MaxIntents}
	}
	c.count++
	return CheckResult{Current: c.count, Limit: limit.MaxIntents}
}

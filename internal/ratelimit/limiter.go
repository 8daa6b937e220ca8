package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a fixed-window request counter keyed by client identity.
// Windows are evaluated at request time with O(1) lookups; there are no
// per-request timers to proliferate under load.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string]*entry
	sweepAt time.Time
	now     func() time.Time
}

type entry struct {
	count int
	start time.Time
}

func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  window,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Allow admits or rejects one request from key. A fresh window starts
// on the first request after the previous window elapsed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	e, ok := l.entries[key]
	if !ok || now.Sub(e.start) >= l.window {
		l.entries[key] = &entry{count: 1, start: now}
		return true
	}

	e.count++
	return e.count <= l.max
}

// Update applies reloaded limits. Existing windows keep counting
// against the new maximum.
func (l *Limiter) Update(max int, window time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.max = max
	l.window = window
}

// sweep drops elapsed windows, at most once per window. Caller holds
// the lock.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.sweepAt) < l.window {
		return
	}
	l.sweepAt = now
	for key, e := range l.entries {
		if now.Sub(e.start) >= l.window {
			delete(l.entries, key)
		}
	}
}

package metrics

import (
	"sync"
	"time"
)

// Presence is the tri-state liveness reading for a channel. Detection
// failure is reported as unknown instead of being collapsed into
// running, so dashboards can tell real uptime from a blind spot.
type Presence string

const (
	PresenceRunning    Presence = "running"
	PresenceNotRunning Presence = "not_running"
	PresenceUnknown    Presence = "unknown"
)

// Heartbeats tracks the last heartbeat seen per channel. A channel that
// has heartbeated within maxAge is running; one that heartbeated before
// that is not_running; one never seen at all is unknown.
type Heartbeats struct {
	mu     sync.RWMutex
	last   map[string]time.Time
	maxAge time.Duration
	now    func() time.Time
}

func NewHeartbeats(maxAge time.Duration) *Heartbeats {
	return &Heartbeats{
		last:   make(map[string]time.Time),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Touch records a heartbeat for channel.
func (h *Heartbeats) Touch(channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[channel] = h.now()
}

// SetMaxAge applies a reloaded staleness window.
func (h *Heartbeats) SetMaxAge(maxAge time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maxAge = maxAge
}

// Presence returns the tri-state liveness for channel.
func (h *Heartbeats) Presence(channel string) Presence {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen, ok := h.last[channel]
	if !ok {
		return PresenceUnknown
	}
	if h.now().Sub(seen) > h.maxAge {
		return PresenceNotRunning
	}
	return PresenceRunning
}

// LastSeen returns the last heartbeat time and whether one was ever
// recorded.
func (h *Heartbeats) LastSeen(channel string) (time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen, ok := h.last[channel]
	return seen, ok
}

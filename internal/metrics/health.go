package metrics

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/mfratelli/dualgate/internal/config"
)

// Alert is one advisory condition raised by a health check. Alerts do
// not block request processing; they flip the aggregate verdict for
// external monitors.
type Alert struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

const (
	AlertHighCPU     = "high_cpu"
	AlertHighMemory  = "high_memory"
	AlertChannelDown = "channel_down"
	AlertBridgeDown  = "bridge_down"
)

// HealthStatus is the aggregate verdict plus the evidence behind it.
type HealthStatus struct {
	Healthy      bool                `json:"healthy"`
	Status       string              `json:"status"` // healthy or degraded
	Alerts       []Alert             `json:"alerts"`
	BridgeStatus string              `json:"bridgeStatus"`
	Channels     map[string]Presence `json:"channels"`
}

// Bridge reports whether the always-on message bus is up.
type Bridge interface {
	Running() bool
	NumClients() int
}

// HealthChecker evaluates every alert condition independently on each
// check and folds them into one verdict.
type HealthChecker struct {
	beats    *Heartbeats
	sampler  SystemSampler
	bridge   Bridge
	channels []string

	mu  sync.RWMutex
	cfg config.AlertsConfig
}

func NewHealthChecker(beats *Heartbeats, sampler SystemSampler, bridge Bridge, channels []string, cfg config.AlertsConfig) *HealthChecker {
	return &HealthChecker{
		beats:    beats,
		sampler:  sampler,
		bridge:   bridge,
		channels: channels,
		cfg:      cfg,
	}
}

// UpdateThresholds applies reloaded alert thresholds.
func (c *HealthChecker) UpdateThresholds(cfg config.AlertsConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

func (c *HealthChecker) Check() HealthStatus {
	c.mu.RLock()
	cfg := c.cfg
	c.mu.RUnlock()

	status := HealthStatus{
		Alerts:   []Alert{},
		Channels: make(map[string]Presence, len(c.channels)),
	}

	if c.sampler != nil {
		sample, err := c.sampler.Sample()
		if err != nil {
			// No reading beats a false alert.
			slog.Debug("system sample unavailable", "error", err)
		} else {
			if sample.CPUPercent > cfg.CPUThreshold {
				status.Alerts = append(status.Alerts, Alert{
					Type:    AlertHighCPU,
					Message: fmt.Sprintf("cpu usage %.1f%% above threshold %.0f%%", sample.CPUPercent, cfg.CPUThreshold),
				})
			}
			if sample.MemoryPercent > cfg.MemoryThreshold {
				status.Alerts = append(status.Alerts, Alert{
					Type:    AlertHighMemory,
					Message: fmt.Sprintf("memory usage %.1f%% above threshold %.0f%%", sample.MemoryPercent, cfg.MemoryThreshold),
				})
			}
		}
	}

	for _, name := range c.channels {
		p := c.beats.Presence(name)
		status.Channels[name] = p
		// Only a positively stale heartbeat alerts; unknown is
		// reported but not alarmed.
		if p == PresenceNotRunning {
			status.Alerts = append(status.Alerts, Alert{
				Type:    AlertChannelDown,
				Message: fmt.Sprintf("channel %s heartbeat is stale", name),
			})
		}
	}

	status.BridgeStatus = "running"
	if c.bridge == nil || !c.bridge.Running() {
		status.BridgeStatus = "not_running"
		status.Alerts = append(status.Alerts, Alert{
			Type:    AlertBridgeDown,
			Message: "message bus is not running",
		})
	}

	status.Healthy = len(status.Alerts) == 0
	status.Status = "healthy"
	if !status.Healthy {
		status.Status = "degraded"
	}
	return status
}

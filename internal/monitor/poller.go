package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/mfratelli/dualgate/internal/config"
	"github.com/mfratelli/dualgate/internal/metrics"
	"github.com/mfratelli/dualgate/internal/natsbus"
)

// Status is what lands in the status file: the health verdict plus the
// metrics snapshot, for out-of-process inspection.
type Status struct {
	Timestamp time.Time            `json:"timestamp"`
	Health    metrics.HealthStatus `json:"health"`
	Metrics   metrics.Snapshot     `json:"metrics"`
}

// Poller periodically evaluates health, persists the status file, and
// broadcasts an event when the alert set changes.
type Poller struct {
	checker *metrics.HealthChecker
	tracker *metrics.Tracker
	events  *natsbus.Client

	mu         sync.Mutex
	schedule   string
	statusFile string
	lastAlerts string
	reloadCh   chan struct{}
}

func New(checker *metrics.HealthChecker, tracker *metrics.Tracker, events *natsbus.Client, cfg config.MonitorConfig) *Poller {
	return &Poller{
		checker:    checker,
		tracker:    tracker,
		events:     events,
		schedule:   cfg.Schedule,
		statusFile: cfg.StatusFile,
		reloadCh:   make(chan struct{}, 1),
	}
}

// UpdateConfig applies a reloaded monitor configuration and wakes the
// run loop so the new schedule takes effect.
func (p *Poller) UpdateConfig(cfg config.MonitorConfig) {
	p.mu.Lock()
	p.schedule = cfg.Schedule
	p.statusFile = cfg.StatusFile
	p.mu.Unlock()
	select {
	case p.reloadCh <- struct{}{}:
	default:
	}
}

func (p *Poller) Start(ctx context.Context) {
	slog.Info("status poller started", "schedule", p.currentSchedule())

	for {
		next, err := gronx.NextTick(p.currentSchedule(), false)
		if err != nil {
			slog.Error("invalid monitor schedule, poller stopped", "schedule", p.currentSchedule(), "error", err)
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("status poller stopped")
			return
		case <-p.reloadCh:
			timer.Stop()
			slog.Info("status poller config reloaded", "schedule", p.currentSchedule())
		case <-timer.C:
			if err := p.Poll(); err != nil {
				slog.Error("status poll failed", "error", err)
			}
		}
	}
}

func (p *Poller) currentSchedule() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.schedule
}

// Poll runs one health check, persists the status file, and publishes
// an alerts_changed event if the alert set differs from the last poll.
func (p *Poller) Poll() error {
	status := Status{
		Timestamp: time.Now().UTC(),
		Health:    p.checker.Check(),
		Metrics:   p.tracker.Snapshot(),
	}

	if err := p.WriteStatus(status); err != nil {
		return err
	}

	fingerprint := alertFingerprint(status.Health.Alerts)
	p.mu.Lock()
	changed := fingerprint != p.lastAlerts
	p.lastAlerts = fingerprint
	p.mu.Unlock()

	if changed && p.events != nil {
		event := map[string]any{
			"type":      "alerts_changed",
			"timestamp": status.Timestamp.Format(time.RFC3339),
			"data": map[string]any{
				"healthy": status.Health.Healthy,
				"alerts":  status.Health.Alerts,
			},
		}
		if err := p.events.PublishJSON(natsbus.TopicEventsMonitor, event); err != nil {
			slog.Debug("alerts event publish failed", "error", err)
		}
	}
	return nil
}

// WriteStatus persists a status snapshot atomically: write to a temp
// file in the same directory, then rename over the target.
func (p *Poller) WriteStatus(status Status) error {
	p.mu.Lock()
	path := p.statusFile
	p.mu.Unlock()
	if path == "" {
		return nil
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".status-*")
	if err != nil {
		return fmt.Errorf("create temp status file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close status file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}

func alertFingerprint(alerts []metrics.Alert) string {
	fp := ""
	for _, a := range alerts {
		fp += a.Type + ";"
	}
	return fp
}

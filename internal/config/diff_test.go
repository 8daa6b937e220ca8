package config

import (
	"testing"
	"time"
)

func TestDiffNoChanges(t *testing.T) {
	a := defaults()
	b := defaults()

	d := Diff(&a, &b)
	if d.HasChanges() {
		t.Error("expected no changes between identical configs")
	}
	if len(d.NonReloadable) != 0 {
		t.Errorf("expected no non-reloadable changes, got %v", d.NonReloadable)
	}
}

func TestDiffReloadable(t *testing.T) {
	a := defaults()
	b := defaults()
	b.Response.CombinationMethod = "prefer-deep"
	b.RateLimit.MaxRequests = 5
	b.Alerts.CPUThreshold = 90
	b.Channels.Surface.Timeout = 10 * time.Second

	d := Diff(&a, &b)
	if !d.HasChanges() {
		t.Fatal("expected changes")
	}
	if !d.ResponseChanged || d.NewResponse.CombinationMethod != "prefer-deep" {
		t.Error("expected response change detected")
	}
	if !d.RateLimitChanged || d.NewRateLimit.MaxRequests != 5 {
		t.Error("expected rate limit change detected")
	}
	if !d.AlertsChanged || d.NewAlerts.CPUThreshold != 90 {
		t.Error("expected alerts change detected")
	}
	if !d.ChannelsChanged || d.NewChannels.Surface.Timeout != 10*time.Second {
		t.Error("expected channels change detected")
	}
}

func TestDiffNonReloadable(t *testing.T) {
	a := defaults()
	b := defaults()
	b.Web.Port = 9999
	b.NATS.Port = 5222
	b.Orchestrator.MaxConcurrent = 3

	d := Diff(&a, &b)
	if d.HasChanges() {
		t.Error("port changes are not reloadable")
	}
	if len(d.NonReloadable) != 3 {
		t.Errorf("expected 3 non-reloadable warnings, got %v", d.NonReloadable)
	}
}

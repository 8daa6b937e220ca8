package config

import "reflect"

// ConfigDiff describes what changed between two configs on reload.
type ConfigDiff struct {
	ResponseChanged  bool
	NewResponse      ResponseConfig
	RateLimitChanged bool
	NewRateLimit     RateLimitConfig
	AlertsChanged    bool
	NewAlerts        AlertsConfig
	ChannelsChanged  bool
	NewChannels      ChannelsConfig
	MonitorChanged   bool
	NewMonitor       MonitorConfig

	// Non-reloadable fields that changed (log warnings only)
	NonReloadable []string
}

// HasChanges reports whether any reloadable field changed.
func (d *ConfigDiff) HasChanges() bool {
	return d.ResponseChanged ||
		d.RateLimitChanged ||
		d.AlertsChanged ||
		d.ChannelsChanged ||
		d.MonitorChanged
}

// Diff compares two configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if !reflect.DeepEqual(old.Response, new.Response) {
		d.ResponseChanged = true
		d.NewResponse = new.Response
	}
	if old.RateLimit != new.RateLimit {
		d.RateLimitChanged = true
		d.NewRateLimit = new.RateLimit
	}
	if old.Alerts != new.Alerts {
		d.AlertsChanged = true
		d.NewAlerts = new.Alerts
	}
	if old.Channels != new.Channels {
		d.ChannelsChanged = true
		d.NewChannels = new.Channels
	}
	if !reflect.DeepEqual(old.Monitor, new.Monitor) {
		d.MonitorChanged = true
		d.NewMonitor = new.Monitor
	}

	// Non-reloadable warnings
	if old.Web.Port != new.Web.Port {
		d.NonReloadable = append(d.NonReloadable, "web.port")
	}
	if old.Web.Auth != new.Web.Auth {
		d.NonReloadable = append(d.NonReloadable, "web.auth")
	}
	if old.NATS.Port != new.NATS.Port {
		d.NonReloadable = append(d.NonReloadable, "nats.port")
	}
	if old.Orchestrator.MaxConcurrent != new.Orchestrator.MaxConcurrent {
		d.NonReloadable = append(d.NonReloadable, "orchestrator.max_concurrent")
	}

	return d
}

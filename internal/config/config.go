package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	NATS         NATSConfig         `yaml:"nats"`
	Channels     ChannelsConfig     `yaml:"channels"`
	Response     ResponseConfig     `yaml:"response"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Alerts       AlertsConfig       `yaml:"alerts"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Web          WebConfig          `yaml:"web"`
	Monitor      MonitorConfig      `yaml:"monitor"`
}

type NATSConfig struct {
	Port int `yaml:"port"`
}

// ChannelConfig is the invocation policy for one backend channel.
type ChannelConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	TimeoutStrategy string        `yaml:"timeout_strategy"` // graceful-degradation or strict
}

type ChannelsConfig struct {
	Surface         ChannelConfig `yaml:"surface"`
	Deep            ChannelConfig `yaml:"deep"`
	HeartbeatMaxAge time.Duration `yaml:"heartbeat_max_age"`
}

type ResponseConfig struct {
	CombinationMethod string   `yaml:"combination_method"`
	PreferDeepDomains []string `yaml:"prefer_deep_domains"`
}

type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

type AlertsConfig struct {
	CPUThreshold    float64 `yaml:"cpu_threshold"`
	MemoryThreshold float64 `yaml:"memory_threshold"`
}

type OrchestratorConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"` // 0 = unbounded
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"` // bcrypt hash of the admin password
}

type MonitorConfig struct {
	Schedule   string `yaml:"schedule"` // cron expression for status polls
	StatusFile string `yaml:"status_file"`
}

func defaults() Config {
	return Config{
		NATS: NATSConfig{
			Port: 4222,
		},
		Channels: ChannelsConfig{
			Surface: ChannelConfig{
				Timeout:         120 * time.Second,
				TimeoutStrategy: "graceful-degradation",
			},
			Deep: ChannelConfig{
				Timeout:         120 * time.Second,
				TimeoutStrategy: "graceful-degradation",
			},
			HeartbeatMaxAge: 15 * time.Second,
		},
		Response: ResponseConfig{
			CombinationMethod: "concatenate",
			PreferDeepDomains: []string{"reasoning", "philosophy", "creativity"},
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 100,
			Window:      15 * time.Minute,
		},
		Alerts: AlertsConfig{
			CPUThreshold:    80,
			MemoryThreshold: 80,
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Monitor: MonitorConfig{
			Schedule:   "* * * * *",
			StatusFile: "data/status.json",
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("DUALGATE_CONFIG")
	if path == "" {
		path = "config/dualgate.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DUALGATE_WEB_PASSWORD_HASH"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("DUALGATE_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("DUALGATE_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("DUALGATE_STATUS_FILE"); v != "" {
		cfg.Monitor.StatusFile = v
	}
	if v := os.Getenv("DUALGATE_COMBINATION_METHOD"); v != "" {
		cfg.Response.CombinationMethod = v
	}
	if v := os.Getenv("DUALGATE_SURFACE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Channels.Surface.Timeout = d
		}
	}
	if v := os.Getenv("DUALGATE_DEEP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Channels.Deep.Timeout = d
		}
	}
	if v := os.Getenv("DUALGATE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.MaxConcurrent = n
		}
	}
}

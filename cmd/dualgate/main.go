package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mfratelli/dualgate/internal/channel"
	"github.com/mfratelli/dualgate/internal/combiner"
	"github.com/mfratelli/dualgate/internal/config"
	"github.com/mfratelli/dualgate/internal/metrics"
	"github.com/mfratelli/dualgate/internal/monitor"
	"github.com/mfratelli/dualgate/internal/natsbus"
	"github.com/mfratelli/dualgate/internal/orchestrator"
	"github.com/mfratelli/dualgate/internal/ratelimit"
	"github.com/mfratelli/dualgate/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("dualgate %s\n", version)
	case "gateway":
		if err := runGateway(); err != nil {
			slog.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: dualgate <command>\n\nCommands:\n  gateway    Start the dualgate gateway service\n  version    Print version\n")
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting dualgate gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", bus.Port())

	client, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer client.Close()

	// Prometheus registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	tracker := metrics.NewTracker(reg)

	// Channel liveness via heartbeats
	beats := metrics.NewHeartbeats(cfg.Channels.HeartbeatMaxAge)
	if _, err := channel.WatchHeartbeats(client, beats); err != nil {
		return fmt.Errorf("watch heartbeats: %w", err)
	}

	// Channel invokers
	surface := channel.NewInvoker("surface", client, cfg.Channels.Surface, tracker)
	deep := channel.NewInvoker("deep", client, cfg.Channels.Deep, tracker)

	// Rate limiter and response combiner
	limiter := ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	comb := combiner.New(cfg.Response, nil)

	// Orchestrator
	orch := orchestrator.New(surface, deep, limiter, comb, client, cfg.Orchestrator.MaxConcurrent)

	// Health checker and status poller
	checker := metrics.NewHealthChecker(beats, metrics.NewProcSampler(), bus, []string{"surface", "deep"}, cfg.Alerts)
	poller := monitor.New(checker, tracker, client, cfg.Monitor)
	go poller.Start(ctx)
	slog.Info("monitor started", "schedule", cfg.Monitor.Schedule)

	// SIGHUP config reload
	go watchReload(ctx, cfg, surface, deep, limiter, comb, checker, beats, poller)

	// Web API
	if cfg.Web.Enabled {
		srv := web.NewServer(orch, checker, tracker, poller, bus, reg, cfg, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()

	return nil
}

// watchReload re-reads the config on SIGHUP and applies the reloadable
// parts to the running components.
func watchReload(ctx context.Context, cur *config.Config, surface, deep *channel.Invoker, limiter *ratelimit.Limiter, comb *combiner.Combiner, checker *metrics.HealthChecker, beats *metrics.Heartbeats, poller *monitor.Poller) {
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hupCh:
		}

		next, err := config.Load()
		if err != nil {
			slog.Error("config reload failed, keeping current config", "error", err)
			continue
		}

		diff := config.Diff(cur, next)
		for _, field := range diff.NonReloadable {
			slog.Warn("config field requires restart", "field", field)
		}
		if !diff.HasChanges() {
			slog.Info("config reloaded, no reloadable changes")
			continue
		}

		if diff.ResponseChanged {
			comb.UpdateConfig(diff.NewResponse)
			slog.Info("response config reloaded", "combination_method", diff.NewResponse.CombinationMethod)
		}
		if diff.RateLimitChanged {
			limiter.Update(diff.NewRateLimit.MaxRequests, diff.NewRateLimit.Window)
			slog.Info("rate limit reloaded", "max_requests", diff.NewRateLimit.MaxRequests, "window", diff.NewRateLimit.Window)
		}
		if diff.AlertsChanged {
			checker.UpdateThresholds(diff.NewAlerts)
			slog.Info("alert thresholds reloaded")
		}
		if diff.ChannelsChanged {
			surface.UpdatePolicy(diff.NewChannels.Surface)
			deep.UpdatePolicy(diff.NewChannels.Deep)
			beats.SetMaxAge(diff.NewChannels.HeartbeatMaxAge)
			slog.Info("channel policies reloaded")
		}
		if diff.MonitorChanged {
			poller.UpdateConfig(diff.NewMonitor)
			slog.Info("monitor config reloaded", "schedule", diff.NewMonitor.Schedule)
		}

		*cur = *next
	}
}

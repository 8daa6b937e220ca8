// Command chansim is a simulated channel worker for local development.
// It answers invoke requests on the bus after a configurable delay, so
// timeout policies and combination strategies can be exercised without
// real backends.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfratelli/dualgate/internal/natsbus"
	"github.com/nats-io/nats.go"
)

type invokeRequest struct {
	RequestID string `json:"request_id"`
	Input     string `json:"input"`
	Agent     string `json:"agent"`
	UserID    string `json:"user_id"`
}

type invokeReply struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

type cancelMsg struct {
	RequestID string `json:"request_id"`
}

func main() {
	var (
		name      = flag.String("channel", "surface", "channel name to serve (surface or deep)")
		url       = flag.String("nats", nats.DefaultURL, "NATS server URL")
		delay     = flag.Duration("delay", 200*time.Millisecond, "simulated processing delay")
		fail      = flag.Bool("fail", false, "respond with an application error")
		heartbeat = flag.Duration("heartbeat", 5*time.Second, "heartbeat interval")
	)
	flag.Parse()

	if err := run(*name, *url, *delay, *fail, *heartbeat); err != nil {
		slog.Error("chansim failed", "error", err)
		os.Exit(1)
	}
}

func run(name, url string, delay time.Duration, fail bool, heartbeat time.Duration) error {
	client, err := natsbus.NewClientFromURL(url)
	if err != nil {
		return err
	}
	defer client.Close()

	slog.Info("chansim connected", "channel", name, "nats", url, "delay", delay, "fail", fail)

	_, err = client.Subscribe(natsbus.TopicChannelInvoke(name), func(msg *nats.Msg) {
		var req invokeRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.Warn("invalid invoke payload", "error", err)
			return
		}
		slog.Info("invoke received", "request", req.RequestID, "agent", req.Agent)

		go func() {
			time.Sleep(delay)

			var reply invokeReply
			if fail {
				reply = invokeReply{Success: false, Error: fmt.Sprintf("simulated %s failure", name)}
			} else {
				reply = invokeReply{
					Success: true,
					Output:  fmt.Sprintf("[%s] response to: %s", name, req.Input),
				}
			}
			data, _ := json.Marshal(reply)
			if err := msg.Respond(data); err != nil {
				slog.Warn("respond failed", "request", req.RequestID, "error", err)
			}
		}()
	})
	if err != nil {
		return fmt.Errorf("subscribe invoke: %w", err)
	}

	_, err = client.Subscribe(natsbus.TopicChannelCancel(name), func(msg *nats.Msg) {
		var c cancelMsg
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			return
		}
		slog.Info("cancel received", "request", c.RequestID)
	})
	if err != nil {
		return fmt.Errorf("subscribe cancel: %w", err)
	}

	// Heartbeat loop
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	beat := func() {
		if err := client.PublishJSON(natsbus.TopicChannelHeartbeat(name), map[string]any{
			"channel":   name,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			slog.Warn("heartbeat publish failed", "error", err)
		}
	}
	beat()

	for {
		select {
		case <-ticker.C:
			beat()
		case sig := <-sigCh:
			slog.Info("shutting down", "signal", sig)
			return nil
		}
	}
}

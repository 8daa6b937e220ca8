package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mfratelli/dualgate/internal/channel"
	"github.com/mfratelli/dualgate/internal/combiner"
	"github.com/mfratelli/dualgate/internal/metrics"
	"github.com/mfratelli/dualgate/internal/orchestrator"
)

type orchestrateRequest struct {
	Input       string `json:"input"`
	ActiveAgent string `json:"activeAgent"`
	UserID      string `json:"userId"`
}

type orchestrateResponse struct {
	combiner.CombinedResult
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	var req orchestrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		jsonError(w, "Input is required", http.StatusBadRequest)
		return
	}
	if req.ActiveAgent == "" {
		req.ActiveAgent = "orchestrator"
	}

	result, err := s.orch.Handle(r.Context(), clientKey(r), channel.Request{
		Input:     req.Input,
		AgentName: req.ActiveAgent,
		UserID:    req.UserID,
	})
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrRateLimited):
			jsonError(w, "Too many requests, please try again later", http.StatusTooManyRequests)
		case errors.Is(err, channel.ErrTimeout):
			jsonError(w, "Channel timed out", http.StatusGatewayTimeout)
		default:
			slog.Error("orchestration failed", "error", err)
			jsonError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	jsonResponse(w, orchestrateResponse{
		CombinedResult: result,
		SessionID:      uuid.NewString(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
}

type healthResponse struct {
	metrics.HealthStatus
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		HealthStatus: s.checker.Check(),
		Uptime:       formatUptime(time.Since(s.startedAt)),
	}
	if !resp.Healthy {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(resp)
		return
	}
	jsonResponse(w, resp)
}

type metricsResponse struct {
	Version string        `json:"version"`
	Uptime  string        `json:"uptime"`
	Metrics any           `json:"metrics"`
	Config  metricsConfig `json:"config"`
}

type metricsConfig struct {
	CombinationMethod string `json:"combination_method"`
	SurfaceTimeout    string `json:"surface_timeout"`
	DeepTimeout       string `json:"deep_timeout"`
	RateLimitRequests int    `json:"rate_limit_requests"`
	RateLimitWindow   string `json:"rate_limit_window"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	// Refresh the status file alongside serving the snapshot, so the
	// on-disk view never lags an operator poll.
	if s.poller != nil {
		if err := s.poller.Poll(); err != nil {
			slog.Warn("status poll failed", "error", err)
		}
	}

	jsonResponse(w, metricsResponse{
		Version: s.version,
		Uptime:  formatUptime(time.Since(s.startedAt)),
		Metrics: s.tracker.Snapshot(),
		Config: metricsConfig{
			CombinationMethod: s.cfgEcho.Response.CombinationMethod,
			SurfaceTimeout:    s.cfgEcho.Channels.Surface.Timeout.String(),
			DeepTimeout:       s.cfgEcho.Channels.Deep.Timeout.String(),
			RateLimitRequests: s.cfgEcho.RateLimit.MaxRequests,
			RateLimitWindow:   s.cfgEcho.RateLimit.Window.String(),
		},
	})
}

// clientKey identifies the caller for rate limiting. Proxy-forwarded
// addresses win over the socket peer.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

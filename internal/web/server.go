package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/mfratelli/dualgate/internal/channel"
	"github.com/mfratelli/dualgate/internal/combiner"
	"github.com/mfratelli/dualgate/internal/config"
	"github.com/mfratelli/dualgate/internal/metrics"
	"github.com/mfratelli/dualgate/internal/natsbus"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"
)

// RequestHandler runs one admitted request end to end. Satisfied by
// *orchestrator.Orchestrator.
type RequestHandler interface {
	Handle(ctx context.Context, clientKey string, req channel.Request) (combiner.CombinedResult, error)
}

// StatusPoller persists the current status snapshot. Satisfied by
// *monitor.Poller.
type StatusPoller interface {
	Poll() error
}

type Server struct {
	orch      RequestHandler
	checker   *metrics.HealthChecker
	tracker   *metrics.Tracker
	poller    StatusPoller
	bus       *natsbus.Bus
	nats      *natsbus.Client
	gatherer  prometheus.Gatherer
	hub       *Hub
	cfg       config.WebConfig
	cfgEcho   *config.Config
	version   string
	startedAt time.Time
}

func NewServer(orch RequestHandler, checker *metrics.HealthChecker, tracker *metrics.Tracker, poller StatusPoller, bus *natsbus.Bus, gatherer prometheus.Gatherer, cfg *config.Config, version string) *Server {
	return &Server{
		orch:      orch,
		checker:   checker,
		tracker:   tracker,
		poller:    poller,
		bus:       bus,
		gatherer:  gatherer,
		hub:       NewHub(),
		cfg:       cfg.Web,
		cfgEcho:   cfg,
		version:   version,
		startedAt: time.Now(),
	}
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	// Subscribe to NATS events and broadcast to WebSocket
	s.subscribeEvents()

	handler := s.Handler()
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	slog.Info("web server listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler builds the full middleware-wrapped route tree. Split out so
// tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/orchestrate", s.handleOrchestrate)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/ws", s.handleWebSocket)

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return gzhttp.GzipHandler(s.withMiddleware(mux))
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		// Unexpected handler errors become a generic 500; detail goes
		// to the log, never to the caller.
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("handler panic", "path", r.URL.Path, "panic", rec)
				jsonError(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		// Operator endpoints require the admin password when one is
		// configured; request and health endpoints stay open.
		if s.cfg.Auth != "" && isProtected(r.URL.Path) && !s.checkAuth(w, r) {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isProtected(path string) bool {
	return path == "/api/metrics" || strings.HasPrefix(path, "/api/ws")
}

// checkAuth validates Basic Auth against the configured bcrypt hash.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if _, pass, ok := r.BasicAuth(); ok {
		if bcrypt.CompareHashAndPassword([]byte(s.cfg.Auth), []byte(pass)) == nil {
			return true
		}
	}
	w.Header().Set("WWW-Authenticate", `Basic realm="dualgate"`)
	jsonError(w, "Unauthorized", http.StatusUnauthorized)
	return false
}

func (s *Server) subscribeEvents() {
	if s.bus == nil {
		return
	}
	client, err := natsbus.NewClient(s.bus)
	if err != nil {
		slog.Error("web server nats client failed", "error", err)
		return
	}
	s.nats = client

	// Forward all event topics to WebSocket clients
	_, _ = client.Subscribe(natsbus.TopicEventsAll, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("invalid NATS event payload", "error", err)
			return
		}
		s.hub.Broadcast(event)
	})
}

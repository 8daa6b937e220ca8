package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ChannelStats are the running aggregates kept per channel. No
// per-request history is retained.
type ChannelStats struct {
	Requests     int64   `json:"requests"`
	Successes    int64   `json:"successes"`
	Errors       int64   `json:"errors"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
	Pending      int64   `json:"pending"`
}

// Snapshot is the process-wide metrics view returned to monitoring
// endpoints.
type Snapshot struct {
	Channels     map[string]ChannelStats `json:"channels"`
	Total        int64                   `json:"total"`
	Success      int64                   `json:"success"`
	Error        int64                   `json:"error"`
	AvgLatencyMs float64                 `json:"avgLatencyMs"`
	StartedAt    time.Time               `json:"startedAt"`
}

// Tracker aggregates request outcomes. It is constructed once and
// injected wherever metrics are recorded; there is no package-level
// singleton.
type Tracker struct {
	mu        sync.Mutex
	channels  map[string]*ChannelStats
	total     int64
	success   int64
	errors    int64
	avgMs     float64
	startedAt time.Time

	promRequests *prometheus.CounterVec
	promPending  *prometheus.GaugeVec
	promLatency  *prometheus.HistogramVec
}

// NewTracker registers the Prometheus collectors on reg. Pass
// prometheus.NewRegistry() in tests to keep them isolated.
func NewTracker(reg prometheus.Registerer) *Tracker {
	t := &Tracker{
		channels:  make(map[string]*ChannelStats),
		startedAt: time.Now(),
		promRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dualgate_channel_requests_total",
			Help: "Channel invocations by outcome.",
		}, []string{"channel", "outcome"}),
		promPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dualgate_channel_pending",
			Help: "In-flight channel invocations.",
		}, []string{"channel"}),
		promLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dualgate_channel_latency_seconds",
			Help:    "Channel invocation latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"channel"}),
	}
	if reg != nil {
		reg.MustRegister(t.promRequests, t.promPending, t.promLatency)
	}
	return t
}

func (t *Tracker) channelStats(channel string) *ChannelStats {
	s, ok := t.channels[channel]
	if !ok {
		s = &ChannelStats{}
		t.channels[channel] = s
	}
	return s
}

// Track records one completed channel invocation.
func (t *Tracker) Track(channel string, success bool, latencyMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.channelStats(channel)
	s.Requests++
	if success {
		s.Successes++
	} else {
		s.Errors++
	}
	// Running mean, never recomputed from scratch.
	s.AvgLatencyMs += (float64(latencyMs) - s.AvgLatencyMs) / float64(s.Requests)

	t.total++
	if success {
		t.success++
	} else {
		t.errors++
	}
	t.avgMs += (float64(latencyMs) - t.avgMs) / float64(t.total)

	outcome := "success"
	if !success {
		outcome = "error"
	}
	t.promRequests.WithLabelValues(channel, outcome).Inc()
	t.promLatency.WithLabelValues(channel).Observe(float64(latencyMs) / 1000)
}

// PendingAdd marks one in-flight invocation for channel.
func (t *Tracker) PendingAdd(channel string) {
	t.mu.Lock()
	t.channelStats(channel).Pending++
	t.mu.Unlock()
	t.promPending.WithLabelValues(channel).Inc()
}

// PendingDone is the exactly-once counterpart of PendingAdd.
func (t *Tracker) PendingDone(channel string) {
	t.mu.Lock()
	t.channelStats(channel).Pending--
	t.mu.Unlock()
	t.promPending.WithLabelValues(channel).Dec()
}

// Pending returns the in-flight count for channel.
func (t *Tracker) Pending(channel string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channelStats(channel).Pending
}

// Snapshot returns a copy of all aggregates.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	channels := make(map[string]ChannelStats, len(t.channels))
	for name, s := range t.channels {
		channels[name] = *s
	}
	return Snapshot{
		Channels:     channels,
		Total:        t.total,
		Success:      t.success,
		Error:        t.errors,
		AvgLatencyMs: t.avgMs,
		StartedAt:    t.startedAt,
	}
}

package channel

import "time"

// Request is one inbound request as seen by a channel. It is owned by
// the orchestrator invocation that created it and never shared across
// requests.
type Request struct {
	ID          string    `json:"id"`
	Input       string    `json:"input"`
	AgentName   string    `json:"agentName"`
	UserID      string    `json:"userId"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Result statuses. Timeouts and application errors both settle with
// Success=false; the status tag is how the combiner tells them apart.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Timeout degradation policies.
const (
	StrategyGraceful = "graceful-degradation"
	StrategyStrict   = "strict"
)

// Result is the normalized outcome of one channel invocation. Produced
// exactly once per Invoke call.
type Result struct {
	Channel      string `json:"channelName"`
	Success      bool   `json:"success"`
	Payload      string `json:"payload"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Status       string `json:"status"`
	LatencyMs    int64  `json:"latencyMs"`
}

// Metrics receives invocation lifecycle callbacks. Satisfied by
// *metrics.Tracker.
type Metrics interface {
	Track(channel string, success bool, latencyMs int64)
	PendingAdd(channel string)
	PendingDone(channel string)
}

// envelope is the structured request sent over the channel boundary.
type envelope struct {
	RequestID string `json:"request_id"`
	Input     string `json:"input"`
	Agent     string `json:"agent"`
	UserID    string `json:"user_id"`
}

// cancelMsg asks a channel worker to abandon an in-flight request.
// Delivery is best-effort; the invoker has already settled.
type cancelMsg struct {
	RequestID string `json:"request_id"`
}

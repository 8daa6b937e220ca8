package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mfratelli/dualgate/internal/config"
	"github.com/mfratelli/dualgate/internal/natsbus"
	"github.com/nats-io/nats.go"
)

// ErrTimeout is returned (wrapped) by Invoke when the strict policy is
// configured and the channel missed its deadline.
var ErrTimeout = errors.New("channel invocation timed out")

// Invoker executes requests against one backend channel over the bus,
// enforcing the channel's timeout policy and normalizing whatever comes
// back into a Result.
type Invoker struct {
	name    string
	client  *natsbus.Client
	metrics Metrics

	mu       sync.RWMutex
	timeout  time.Duration
	strategy string
}

func NewInvoker(name string, client *natsbus.Client, cfg config.ChannelConfig, m Metrics) *Invoker {
	strategy := cfg.TimeoutStrategy
	if strategy == "" {
		strategy = StrategyGraceful
	}
	return &Invoker{
		name:     name,
		client:   client,
		timeout:  cfg.Timeout,
		strategy: strategy,
		metrics:  m,
	}
}

func (iv *Invoker) Name() string {
	return iv.name
}

// UpdatePolicy applies a reloaded timeout policy to future invocations.
func (iv *Invoker) UpdatePolicy(cfg config.ChannelConfig) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	iv.timeout = cfg.Timeout
	if cfg.TimeoutStrategy != "" {
		iv.strategy = cfg.TimeoutStrategy
	}
}

// policy snapshots the current timeout settings for one invocation.
func (iv *Invoker) policy() (time.Duration, string) {
	iv.mu.RLock()
	defer iv.mu.RUnlock()
	return iv.timeout, iv.strategy
}

// Invoke dispatches req to the channel and waits for the reply or the
// timeout, whichever comes first. The returned Result is settled
// exactly once; a reply arriving after the deadline is discarded by the
// bus client. The error is non-nil only under the strict policy, for a
// timeout the orchestrator must surface immediately.
func (iv *Invoker) Invoke(ctx context.Context, req Request) (Result, error) {
	iv.metrics.PendingAdd(iv.name)
	defer iv.metrics.PendingDone(iv.name)

	timeout, strategy := iv.policy()
	start := time.Now()
	data, err := json.Marshal(envelope{
		RequestID: req.ID,
		Input:     req.Input,
		Agent:     req.AgentName,
		UserID:    req.UserID,
	})
	if err != nil {
		return iv.settle(req, Result{
			Status:       StatusError,
			ErrorMessage: fmt.Sprintf("encode request: %v", err),
		}, start), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := iv.client.RequestContext(callCtx, natsbus.TopicChannelInvoke(iv.name), data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
			iv.cancelInFlight(req.ID)
			res := iv.settle(req, Result{
				Status:       StatusTimeout,
				ErrorMessage: fmt.Sprintf("channel %s did not respond within %s", iv.name, timeout),
			}, start)
			if strategy == StrategyStrict {
				return res, fmt.Errorf("channel %s: %w", iv.name, ErrTimeout)
			}
			return res, nil
		}
		if errors.Is(err, nats.ErrNoResponders) {
			return iv.settle(req, Result{
				Status:       StatusError,
				ErrorMessage: fmt.Sprintf("channel %s has no responder", iv.name),
			}, start), nil
		}
		return iv.settle(req, Result{
			Status:       StatusError,
			ErrorMessage: fmt.Sprintf("channel %s request failed: %v", iv.name, err),
		}, start), nil
	}

	return iv.settle(req, parseReply(msg.Data), start), nil
}

// settle stamps the result, reports it to the metrics tracker, and
// returns it. Every Invoke path funnels through here exactly once.
func (iv *Invoker) settle(req Request, res Result, start time.Time) Result {
	res.Channel = iv.name
	res.LatencyMs = time.Since(start).Milliseconds()
	if res.Status == StatusOK {
		res.Success = true
	}
	iv.metrics.Track(iv.name, res.Success, res.LatencyMs)

	if !res.Success {
		slog.Warn("channel invocation failed",
			"channel", iv.name, "request", req.ID,
			"status", res.Status, "error", res.ErrorMessage)
	}
	return res
}

// cancelInFlight asks the worker to abandon the request. Best effort:
// if the publish fails the call is simply left to die on its own.
func (iv *Invoker) cancelInFlight(requestID string) {
	data, _ := json.Marshal(cancelMsg{RequestID: requestID})
	if err := iv.client.Publish(natsbus.TopicChannelCancel(iv.name), data); err != nil {
		slog.Debug("cancel publish failed", "channel", iv.name, "request", requestID, "error", err)
	}
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mfratelli/dualgate/internal/channel"
	"github.com/mfratelli/dualgate/internal/combiner"
	"github.com/mfratelli/dualgate/internal/natsbus"
	"github.com/mfratelli/dualgate/internal/ratelimit"
)

// ErrRateLimited is returned when admission fails. The request never
// reaches the channels and is not counted in channel metrics.
var ErrRateLimited = errors.New("rate limit exceeded")

// Invoker executes one request against one backend channel. Satisfied
// by *channel.Invoker.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, req channel.Request) (channel.Result, error)
}

// Orchestrator fans one admitted request out to both channels, waits
// for both outcomes, and hands them to the combiner. It keeps no state
// between requests.
type Orchestrator struct {
	surface  Invoker
	deep     Invoker
	limiter  *ratelimit.Limiter
	combiner *combiner.Combiner
	events   *natsbus.Client
	gate     *gate
}

// New wires an orchestrator. events may be nil; maxConcurrent <= 0
// means unbounded.
func New(surface, deep Invoker, limiter *ratelimit.Limiter, comb *combiner.Combiner, events *natsbus.Client, maxConcurrent int) *Orchestrator {
	o := &Orchestrator{
		surface:  surface,
		deep:     deep,
		limiter:  limiter,
		combiner: comb,
		events:   events,
	}
	if maxConcurrent > 0 {
		o.gate = newGate(maxConcurrent)
	}
	return o
}

type outcome struct {
	res channel.Result
	err error
}

// Handle runs one request through admission, dispatch, join, and
// combination. Every admitted request yields exactly one
// CombinedResult unless the strict timeout policy aborts it.
func (o *Orchestrator) Handle(ctx context.Context, clientKey string, req channel.Request) (combiner.CombinedResult, error) {
	if !o.limiter.Allow(clientKey) {
		slog.Info("request rejected by rate limiter", "client", clientKey)
		return combiner.CombinedResult{}, ErrRateLimited
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}

	if err := o.gate.acquire(ctx); err != nil {
		return combiner.CombinedResult{}, fmt.Errorf("acquire slot: %w", err)
	}
	defer o.gate.release()

	o.publishEvent(req.ID, "request_started", map[string]any{
		"agent": req.AgentName,
	})

	start := time.Now()

	// Caller-side cancellation is not supported: once dispatched, both
	// invocations run to their own settle even if the caller goes away.
	callCtx := context.WithoutCancel(ctx)
	results := make(chan outcome, 2)
	o.dispatch(callCtx, o.surface, req, results)
	o.dispatch(callCtx, o.deep, req, results)

	var surfaceRes, deepRes channel.Result
	for settled := 0; settled < 2; settled++ {
		oc := <-results
		if oc.err != nil {
			if errors.Is(oc.err, channel.ErrTimeout) {
				// Strict policy: surface the hard failure without
				// waiting for the other channel.
				o.publishEvent(req.ID, "request_aborted", map[string]any{
					"reason": oc.err.Error(),
				})
				return combiner.CombinedResult{}, oc.err
			}
			// Anything else unexpected becomes a failed result; an
			// admitted request always reaches combination.
			oc.res = channel.Result{
				Channel:      oc.res.Channel,
				Status:       channel.StatusError,
				ErrorMessage: oc.err.Error(),
			}
		}
		o.publishEvent(req.ID, "channel_resolved", map[string]any{
			"channel":    oc.res.Channel,
			"success":    oc.res.Success,
			"status":     oc.res.Status,
			"latency_ms": oc.res.LatencyMs,
		})
		if oc.res.Channel == o.surface.Name() {
			surfaceRes = oc.res
		} else {
			deepRes = oc.res
		}
	}

	combined := o.combiner.Combine(req.Input, surfaceRes, deepRes, time.Since(start).Milliseconds())

	o.publishEvent(req.ID, "request_completed", map[string]any{
		"success":          combined.Success,
		"method":           combined.CombinationMethod,
		"total_latency_ms": combined.TotalLatencyMs,
	})
	slog.Info("request combined",
		"request", req.ID,
		"success", combined.Success,
		"method", combined.CombinationMethod,
		"latency_ms", combined.TotalLatencyMs)

	return combined, nil
}

// dispatch starts one invocation. An invoker panic is converted into a
// failed result so the join always sees two outcomes.
func (o *Orchestrator) dispatch(ctx context.Context, iv Invoker, req channel.Request, results chan<- outcome) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- outcome{res: channel.Result{
					Channel:      iv.Name(),
					Status:       channel.StatusError,
					ErrorMessage: fmt.Sprintf("invoker panic: %v", r),
				}}
			}
		}()
		res, err := iv.Invoke(ctx, req)
		res.Channel = iv.Name()
		results <- outcome{res: res, err: err}
	}()
}

func (o *Orchestrator) publishEvent(requestID, eventType string, data map[string]any) {
	if o.events == nil {
		return
	}

	event := map[string]any{
		"type":       eventType,
		"request_id": requestID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"data":       data,
	}
	if err := o.events.PublishJSON(natsbus.TopicEventsRequest(requestID), event); err != nil {
		slog.Debug("event publish failed", "type", eventType, "error", err)
	}
}

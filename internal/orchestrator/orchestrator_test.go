package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mfratelli/dualgate/internal/channel"
	"github.com/mfratelli/dualgate/internal/combiner"
	"github.com/mfratelli/dualgate/internal/config"
	"github.com/mfratelli/dualgate/internal/ratelimit"
)

type fakeInvoker struct {
	name   string
	res    channel.Result
	err    error
	delay  time.Duration
	panics bool
	calls  atomic.Int64
}

func (f *fakeInvoker) Name() string { return f.name }

func (f *fakeInvoker) Invoke(ctx context.Context, req channel.Request) (channel.Result, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics {
		panic("invoker exploded")
	}
	res := f.res
	res.Channel = f.name
	return res, f.err
}

func okInvoker(name, payload string) *fakeInvoker {
	return &fakeInvoker{name: name, res: channel.Result{
		Success: true, Status: channel.StatusOK, Payload: payload,
	}}
}

func failInvoker(name, msg string) *fakeInvoker {
	return &fakeInvoker{name: name, res: channel.Result{
		Success: false, Status: channel.StatusError, ErrorMessage: msg,
	}}
}

func testCombiner() *combiner.Combiner {
	return combiner.New(config.ResponseConfig{CombinationMethod: combiner.MethodConcatenate}, nil)
}

func testLimiter() *ratelimit.Limiter {
	return ratelimit.New(1000, time.Minute)
}

func TestHandleBothSucceed(t *testing.T) {
	o := New(okInvoker("surface", "s"), okInvoker("deep", "d"), testLimiter(), testCombiner(), nil, 0)

	out, err := o.Handle(context.Background(), "client", channel.Request{Input: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.CombinationMethod != combiner.MethodConcatenate {
		t.Errorf("expected concatenate, got %s", out.CombinationMethod)
	}
	if out.PerChannel.Surface.Payload != "s" || out.PerChannel.Deep.Payload != "d" {
		t.Errorf("unexpected per-channel results: %+v", out.PerChannel)
	}
}

func TestHandleSurfaceFails(t *testing.T) {
	o := New(failInvoker("surface", "boom"), okInvoker("deep", "d"), testLimiter(), testCombiner(), nil, 0)

	out, err := o.Handle(context.Background(), "client", channel.Request{Input: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.CombinationMethod != combiner.MethodDeepOnly {
		t.Errorf("expected deep-only, got %s", out.CombinationMethod)
	}
	if out.MergedPayload != "d" {
		t.Errorf("expected deep payload, got %q", out.MergedPayload)
	}
}

func TestHandleDualFailure(t *testing.T) {
	o := New(failInvoker("surface", "s boom"), failInvoker("deep", "d boom"), testLimiter(), testCombiner(), nil, 0)

	out, err := o.Handle(context.Background(), "client", channel.Request{Input: "hi"})
	if err != nil {
		t.Fatalf("dual failure must still combine, got error %v", err)
	}
	if out.Success {
		t.Fatal("expected combined failure")
	}
	if out.PerChannel.Surface.ErrorMessage != "s boom" || out.PerChannel.Deep.ErrorMessage != "d boom" {
		t.Error("expected both error messages present")
	}
}

func TestHandleInvokerPanic(t *testing.T) {
	o := New(&fakeInvoker{name: "surface", panics: true}, okInvoker("deep", "d"), testLimiter(), testCombiner(), nil, 0)

	out, err := o.Handle(context.Background(), "client", channel.Request{Input: "hi"})
	if err != nil {
		t.Fatalf("a panicking invoker must not abort the request, got %v", err)
	}
	if out.CombinationMethod != combiner.MethodDeepOnly {
		t.Errorf("expected deep-only after surface panic, got %s", out.CombinationMethod)
	}
	if out.PerChannel.Surface.Success {
		t.Error("expected surface marked failed")
	}
}

func TestHandleStrictTimeoutAborts(t *testing.T) {
	strict := &fakeInvoker{
		name: "surface",
		res:  channel.Result{Status: channel.StatusTimeout, ErrorMessage: "deadline"},
		err:  fmt.Errorf("channel surface: %w", channel.ErrTimeout),
	}
	slow := &fakeInvoker{name: "deep", delay: 200 * time.Millisecond, res: channel.Result{
		Success: true, Status: channel.StatusOK, Payload: "late",
	}}
	o := New(strict, slow, testLimiter(), testCombiner(), nil, 0)

	start := time.Now()
	_, err := o.Handle(context.Background(), "client", channel.Request{Input: "hi"})
	if !errors.Is(err, channel.ErrTimeout) {
		t.Fatalf("expected strict timeout to surface, got %v", err)
	}
	if time.Since(start) >= 200*time.Millisecond {
		t.Error("strict abort must not wait for the other channel")
	}
}

func TestHandleRateLimited(t *testing.T) {
	limiter := ratelimit.New(1, time.Minute)
	surface := okInvoker("surface", "s")
	deep := okInvoker("deep", "d")
	o := New(surface, deep, limiter, testCombiner(), nil, 0)

	if _, err := o.Handle(context.Background(), "client", channel.Request{Input: "one"}); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	_, err := o.Handle(context.Background(), "client", channel.Request{Input: "two"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if surface.calls.Load() != 1 || deep.calls.Load() != 1 {
		t.Error("rejected request must never reach the channels")
	}
}

func TestHandleAssignsRequestID(t *testing.T) {
	var seen atomic.Value
	capture := invokerFunc{name: "surface", fn: func(ctx context.Context, req channel.Request) (channel.Result, error) {
		seen.Store(req.ID)
		return channel.Result{Success: true, Status: channel.StatusOK, Channel: "surface"}, nil
	}}
	o := New(capture, okInvoker("deep", "d"), testLimiter(), testCombiner(), nil, 0)

	if _, err := o.Handle(context.Background(), "client", channel.Request{Input: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id, _ := seen.Load().(string); id == "" {
		t.Error("expected a generated request id")
	}
}

type invokerFunc struct {
	name string
	fn   func(context.Context, channel.Request) (channel.Result, error)
}

func (f invokerFunc) Name() string { return f.name }
func (f invokerFunc) Invoke(ctx context.Context, req channel.Request) (channel.Result, error) {
	return f.fn(ctx, req)
}

func TestGateFIFO(t *testing.T) {
	g := newGate(1)

	if err := g.acquire(context.Background()); err != nil {
		t.Fatalf("first acquire should succeed: %v", err)
	}

	order := make(chan int, 2)
	secondQueued := make(chan struct{})
	go func() {
		close(secondQueued)
		_ = g.acquire(context.Background())
		order <- 2
	}()
	<-secondQueued
	time.Sleep(20 * time.Millisecond) // let the second waiter enqueue first

	go func() {
		_ = g.acquire(context.Background())
		order <- 3
	}()
	time.Sleep(20 * time.Millisecond)

	g.release()
	g.release()

	first := <-order
	second := <-order
	if first != 2 || second != 3 {
		t.Errorf("expected FIFO release order 2,3; got %d,%d", first, second)
	}
}

func TestGateAbandonOnContextCancel(t *testing.T) {
	g := newGate(1)
	if err := g.acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.acquire(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not give up on cancel")
	}

	// The slot must still be usable.
	g.release()
	if err := g.acquire(context.Background()); err != nil {
		t.Errorf("slot leaked after abandoned waiter: %v", err)
	}
}

func TestHandleConcurrentRequests(t *testing.T) {
	o := New(okInvoker("surface", "s"), okInvoker("deep", "d"), testLimiter(), testCombiner(), nil, 4)

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func(n int) {
			_, err := o.Handle(context.Background(), fmt.Sprintf("client-%d", n), channel.Request{Input: "hi"})
			done <- err
		}(i)
	}
	for i := 0; i < 20; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("request failed: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for concurrent requests")
		}
	}
}

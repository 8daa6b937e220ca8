package natsbus

import (
	"context"
	"testing"
	"time"

	"github.com/mfratelli/dualgate/internal/config"
	"github.com/nats-io/nats.go"
)

func TestBusStartStop(t *testing.T) {
	bus, err := New(config.NATSConfig{Port: 0}) // random port
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	defer bus.Close()

	if url := bus.ClientURL(); url == "" {
		t.Fatal("expected non-empty client URL")
	}
	if !bus.Running() {
		t.Fatal("expected bus to report running")
	}
}

func TestPubSub(t *testing.T) {
	bus, err := New(config.NATSConfig{Port: 0})
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	defer bus.Close()

	client, err := NewClient(bus)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	received := make(chan string, 1)
	_, err = client.Subscribe("test.topic", func(msg *nats.Msg) {
		received <- string(msg.Data)
	})
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	if err := client.Publish("test.topic", []byte("hello")); err != nil {
		t.Fatalf("publish error: %v", err)
	}
	client.Flush()

	select {
	case data := <-received:
		if data != "hello" {
			t.Errorf("expected 'hello', got '%s'", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestRequestContext(t *testing.T) {
	bus, err := New(config.NATSConfig{Port: 0})
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	defer bus.Close()

	responder, err := NewClient(bus)
	if err != nil {
		t.Fatalf("failed to create responder: %v", err)
	}
	defer responder.Close()

	_, err = responder.Subscribe("test.echo", func(msg *nats.Msg) {
		_ = msg.Respond(msg.Data)
	})
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}
	responder.Flush()

	client, err := NewClient(bus)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg, err := client.RequestContext(ctx, "test.echo", []byte("ping"))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if string(msg.Data) != "ping" {
		t.Errorf("expected 'ping', got '%s'", msg.Data)
	}
}

func TestRequestContextDeadline(t *testing.T) {
	bus, err := New(config.NATSConfig{Port: 0})
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	defer bus.Close()

	client, err := NewClient(bus)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.RequestContext(ctx, "test.nobody", []byte("ping"))
	if err == nil {
		t.Fatal("expected error for unanswered request")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected deadline to fire promptly, took %v", elapsed)
	}
}

func TestTopicNames(t *testing.T) {
	if got := TopicChannelInvoke("surface"); got != "channel.surface.invoke" {
		t.Errorf("expected channel.surface.invoke, got %s", got)
	}
	if got := TopicChannelCancel("deep"); got != "channel.deep.cancel" {
		t.Errorf("expected channel.deep.cancel, got %s", got)
	}
	if got := TopicChannelHeartbeat("surface"); got != "channel.surface.heartbeat" {
		t.Errorf("expected channel.surface.heartbeat, got %s", got)
	}
	if got := TopicEventsRequest("r1"); got != "events.request.r1" {
		t.Errorf("expected events.request.r1, got %s", got)
	}
}

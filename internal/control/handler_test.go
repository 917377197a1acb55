package control

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/care/painter/internal/transport"
)

type fakeBroker struct {
	mu        sync.Mutex
	handlers  map[string]transport.Handler
	published [][]byte
	got       chan Response
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		handlers: make(map[string]transport.Handler),
		got:      make(chan Response, 16),
	}
}

func (b *fakeBroker) Subscribe(topic string, qos byte, handler transport.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

func (b *fakeBroker) Publish(topic string, qos byte, payload []byte) error {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return err
	}
	b.mu.Lock()
	b.published = append(b.published, payload)
	b.mu.Unlock()
	b.got <- resp
	return nil
}

func (b *fakeBroker) send(t *testing.T, topic string, payload string) {
	t.Helper()
	b.mu.Lock()
	h := b.handlers[topic]
	b.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler for %s", topic)
	}
	h(topic, []byte(payload))
}

func (b *fakeBroker) next(t *testing.T) Response {
	t.Helper()
	select {
	case resp := <-b.got:
		return resp
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for response")
		return Response{}
	}
}

func testConfig() Config {
	return Config{
		CommandTopic: "painter/control/test",
		StatusTopic:  "painter/status/test",
		ShutdownWait: time.Millisecond,
	}
}

func startHandler(t *testing.T, cb CommandCallbacks) (*Handler, *fakeBroker) {
	t.Helper()
	broker := newFakeBroker()
	h := NewHandler(testConfig(), broker, cb)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	return h, broker
}

func TestGetStatus(t *testing.T) {
	_, broker := startHandler(t, CommandCallbacks{
		OnGetStatus: func() map[string]interface{} {
			return map[string]interface{}{"state": "painting", "painted": 3}
		},
	})

	broker.send(t, "painter/control/test", `{"command":"get_status"}`)
	resp := broker.next(t)

	if resp.CommandAck != "get_status" || resp.Status != "success" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Data["state"] != "painting" || resp.Data["painted"] != float64(3) {
		t.Errorf("unexpected data %v", resp.Data)
	}
	if resp.Timestamp == "" {
		t.Error("missing timestamp")
	}
}

func TestPauseResume(t *testing.T) {
	paused := false
	_, broker := startHandler(t, CommandCallbacks{
		OnPause: func() error {
			if paused {
				return errors.New("already paused")
			}
			paused = true
			return nil
		},
		OnResume: func() error {
			paused = false
			return nil
		},
	})

	broker.send(t, "painter/control/test", `{"command":"pause_painting"}`)
	if resp := broker.next(t); resp.Status != "paused" {
		t.Errorf("pause status = %q, want paused", resp.Status)
	}

	broker.send(t, "painter/control/test", `{"command":"pause_painting"}`)
	if resp := broker.next(t); resp.Status != "error" || resp.Error != "already paused" {
		t.Errorf("second pause = %+v, want error", resp)
	}

	broker.send(t, "painter/control/test", `{"command":"resume_painting"}`)
	if resp := broker.next(t); resp.Status != "success" || resp.Data["painting_active"] != true {
		t.Errorf("resume = %+v", resp)
	}
}

func TestInvalidAndUnknownCommands(t *testing.T) {
	_, broker := startHandler(t, CommandCallbacks{})

	broker.send(t, "painter/control/test", `not json`)
	if resp := broker.next(t); resp.CommandAck != "unknown" || resp.Error != "invalid JSON" {
		t.Errorf("invalid JSON response = %+v", resp)
	}

	broker.send(t, "painter/control/test", `{"command":"paint_faster"}`)
	if resp := broker.next(t); resp.Status != "error" || resp.Error != "unknown command: paint_faster" {
		t.Errorf("unknown command response = %+v", resp)
	}

	broker.send(t, "painter/control/test", `{"command":"get_status"}`)
	if resp := broker.next(t); resp.Error != "get_status not implemented" {
		t.Errorf("missing callback response = %+v", resp)
	}
}

// TestShutdownAcksFirst validates the response is published before the
// shutdown callback runs.
func TestShutdownAcksFirst(t *testing.T) {
	broker := newFakeBroker()
	called := make(chan int, 1)

	h := NewHandler(testConfig(), broker, CommandCallbacks{
		OnShutdown: func() error {
			broker.mu.Lock()
			n := len(broker.published)
			broker.mu.Unlock()
			called <- n
			return nil
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	broker.send(t, "painter/control/test", `{"command":"shutdown"}`)
	if resp := broker.next(t); resp.Data["shutdown_initiated"] != true {
		t.Errorf("shutdown response = %+v", resp)
	}

	select {
	case n := <-called:
		if n != 1 {
			t.Errorf("responses before shutdown = %d, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatal("shutdown callback not called")
	}
}

func TestStopIdempotent(t *testing.T) {
	h, broker := startHandler(t, CommandCallbacks{})

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("second Stop() failed: %v", err)
	}

	// Late messages after Stop are ignored, not a send on a closed channel
	h.messageHandler("painter/control/test", []byte(`{"command":"get_status"}`))

	broker.mu.Lock()
	defer broker.mu.Unlock()
	if len(broker.handlers) != 0 {
		t.Errorf("handlers = %d after Stop, want 0", len(broker.handlers))
	}
}

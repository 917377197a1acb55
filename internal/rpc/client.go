// Package rpc implements request/response calls over a publish/subscribe
// broker. Requests are msgpack envelopes published to "<prefix>/<method>";
// the remote service answers on the caller's reply topic, matched back to
// the pending call by correlation ID.
package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Publisher sends a payload to a broker topic
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// Request is the envelope published for every call
type Request struct {
	ID      string             `msgpack:"id"`
	ReplyTo string             `msgpack:"reply_to"`
	Method  string             `msgpack:"method"`
	Body    msgpack.RawMessage `msgpack:"body,omitempty"`
}

// Response is the envelope a service publishes on the reply topic
type Response struct {
	ID    string             `msgpack:"id"`
	OK    bool               `msgpack:"ok"`
	Error string             `msgpack:"error,omitempty"`
	Body  msgpack.RawMessage `msgpack:"body,omitempty"`
}

// Config contains client settings
type Config struct {
	ReplyTopic string // topic this client listens on for responses
	QoS        byte
}

// Client correlates requests with responses
type Client struct {
	pub Publisher
	cfg Config

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool

	calls    atomic.Uint64
	failures atomic.Uint64
	orphans  atomic.Uint64
}

// Stats contains client statistics
type Stats struct {
	Calls    uint64
	Failures uint64
	Orphans  uint64 // replies with no pending call (late or duplicate)
	Pending  int
}

// NewClient creates a client publishing through pub. The caller must route
// messages received on cfg.ReplyTopic to HandleReply.
func NewClient(pub Publisher, cfg Config) *Client {
	return &Client{
		pub:     pub,
		cfg:     cfg,
		pending: make(map[string]chan Response),
	}
}

// ReplyTopic returns the topic responses are expected on
func (c *Client) ReplyTopic() string {
	return c.cfg.ReplyTopic
}

// Call publishes method to topic and blocks until the reply arrives or ctx ends.
// req may be nil; resp may be nil when the reply body is ignored.
func (c *Client) Call(ctx context.Context, topic, method string, req, resp any) error {
	c.calls.Add(1)
	err := c.call(ctx, topic, method, req, resp)
	if err != nil {
		c.failures.Add(1)
	}
	return err
}

func (c *Client) call(ctx context.Context, topic, method string, req, resp any) error {
	env := Request{
		ID:      uuid.NewString(),
		ReplyTo: c.cfg.ReplyTopic,
		Method:  method,
	}
	if req != nil {
		body, err := msgpack.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", method, err)
		}
		env.Body = body
	}

	payload, err := msgpack.Marshal(&env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s envelope: %w", method, err)
	}

	ch := make(chan Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[env.ID] = ch
	c.mu.Unlock()
	defer c.forget(env.ID)

	if err := c.pub.Publish(topic, c.cfg.QoS, payload); err != nil {
		return &TransportError{Method: method, Err: err}
	}

	slog.Debug("rpc request sent", "method", method, "topic", topic, "id", env.ID)

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s: %w", method, ErrTimeout)
		}
		return ctx.Err()
	case r, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if !r.OK {
			return &RemoteError{Method: method, Message: r.Error}
		}
		if resp != nil && len(r.Body) > 0 {
			if err := msgpack.Unmarshal(r.Body, resp); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", method, err)
			}
		}
		return nil
	}
}

// HandleReply routes a reply payload to its pending call
func (c *Client) HandleReply(payload []byte) {
	var r Response
	if err := msgpack.Unmarshal(payload, &r); err != nil {
		slog.Error("failed to parse rpc reply", "error", err, "size", len(payload))
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[r.ID]
	if ok {
		delete(c.pending, r.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.orphans.Add(1)
		slog.Warn("rpc reply without pending call", "id", r.ID)
		return
	}

	// Buffered with capacity 1 and removed from the map above: never blocks
	ch <- r
}

// Close fails every pending call with ErrClosed
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Stats returns client statistics
func (c *Client) Stats() Stats {
	c.mu.Lock()
	pending := len(c.pending)
	c.mu.Unlock()

	return Stats{
		Calls:    c.calls.Load(),
		Failures: c.failures.Load(),
		Orphans:  c.orphans.Load(),
		Pending:  pending,
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

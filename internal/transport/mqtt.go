// Package transport owns the MQTT connection shared by the RPC client and
// the control plane.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler receives messages for a subscribed topic
type Handler func(topic string, payload []byte)

// Config contains connection settings
type Config struct {
	Broker   string
	ClientID string
}

// MQTTConn is an auto-reconnecting MQTT connection
type MQTTConn struct {
	cfg    Config
	client mqtt.Client

	mu        sync.RWMutex
	subs      map[string]subscription // re-established on reconnect
	published map[string]uint64       // count per topic
	errors    uint64
	connected bool
}

type subscription struct {
	qos     byte
	handler Handler
}

// Stats contains connection statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// NewMQTTConn creates a connection; call Connect before use
func NewMQTTConn(cfg Config) *MQTTConn {
	return &MQTTConn{
		cfg:       cfg,
		subs:      make(map[string]subscription),
		published: make(map[string]uint64),
	}
}

// Connect establishes connection to MQTT broker
func (c *MQTTConn) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", c.cfg.Broker))
	opts.SetClientID(c.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOrderMatters(false)

	opts.OnConnect = func(client mqtt.Client) {
		c.mu.Lock()
		c.connected = true
		subs := make(map[string]subscription, len(c.subs))
		for topic, s := range c.subs {
			subs[topic] = s
		}
		c.mu.Unlock()

		slog.Info("mqtt connection established",
			"broker", c.cfg.Broker,
			"client_id", c.cfg.ClientID,
			"subscriptions", len(subs))

		// Clean sessions drop subscriptions across reconnects
		for topic, s := range subs {
			client.Subscribe(topic, s.qos, wrap(s.handler))
		}
	}

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", c.cfg.Broker)
	}

	c.client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", c.cfg.Broker)

	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	return nil
}

// Publish publishes a payload and waits for the broker to accept it
func (c *MQTTConn) Publish(topic string, qos byte, payload []byte) error {
	if !c.IsConnected() {
		c.countError()
		return fmt.Errorf("mqtt not connected")
	}

	token := c.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		c.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		c.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	c.mu.Lock()
	c.published[topic]++
	c.mu.Unlock()

	return nil
}

// Subscribe registers handler for topic
func (c *MQTTConn) Subscribe(topic string, qos byte, handler Handler) error {
	if c.client == nil {
		return fmt.Errorf("mqtt not connected")
	}

	token := c.client.Subscribe(topic, qos, wrap(handler))
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscription to %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscription to %s failed: %w", topic, err)
	}

	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	slog.Info("mqtt subscribed", "topic", topic, "qos", qos)
	return nil
}

// Unsubscribe removes the subscription for topic
func (c *MQTTConn) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()

	if c.client == nil || !c.client.IsConnected() {
		return nil
	}
	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("unsubscribe from %s timeout", topic)
	}
	return token.Error()
}

// Disconnect closes the MQTT connection
func (c *MQTTConn) Disconnect() error {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250) // 250ms grace period
		slog.Info("mqtt disconnected")
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	return nil
}

// IsConnected returns connection status
func (c *MQTTConn) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Stats returns connection statistics
func (c *MQTTConn) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	published := make(map[string]uint64, len(c.published))
	for k, v := range c.published {
		published[k] = v
	}

	return Stats{
		Connected: c.connected,
		Published: published,
		Errors:    c.errors,
	}
}

func (c *MQTTConn) countError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

func wrap(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	}
}

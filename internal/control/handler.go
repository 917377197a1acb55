// Package control implements the MQTT control plane of a painting session.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/care/painter/internal/transport"
)

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Broker is the slice of the MQTT connection the handler needs
type Broker interface {
	Subscribe(topic string, qos byte, handler transport.Handler) error
	Unsubscribe(topic string) error
	Publish(topic string, qos byte, payload []byte) error
}

// Config contains the control plane topics
type Config struct {
	CommandTopic string
	StatusTopic  string
	CommandQoS   byte
	StatusQoS    byte
	QueueSize    int
	ShutdownWait time.Duration // delay between acknowledging shutdown and acting on it
}

// CommandCallbacks contains callback functions for commands
type CommandCallbacks struct {
	OnGetStatus func() map[string]interface{}
	OnPause     func() error
	OnResume    func() error
	OnShutdown  func() error
}

// Handler handles control plane commands
type Handler struct {
	cfg      Config
	broker   Broker
	commands chan Command

	mu        sync.Mutex
	stopped   bool
	callbacks CommandCallbacks
}

// NewHandler creates a new control plane handler
func NewHandler(cfg Config, broker Broker, callbacks CommandCallbacks) *Handler {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10
	}
	if cfg.ShutdownWait <= 0 {
		cfg.ShutdownWait = 500 * time.Millisecond
	}
	return &Handler{
		cfg:       cfg,
		broker:    broker,
		commands:  make(chan Command, cfg.QueueSize),
		callbacks: callbacks,
	}
}

// Start subscribes to the command topic and processes commands until ctx is
// done or Stop is called.
func (h *Handler) Start(ctx context.Context) error {
	slog.Info("subscribing to control plane", "topic", h.cfg.CommandTopic, "qos", h.cfg.CommandQoS)

	if err := h.broker.Subscribe(h.cfg.CommandTopic, h.cfg.CommandQoS, h.messageHandler); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	slog.Info("control plane handler started")

	go h.processCommands(ctx)

	return nil
}

// Stop unsubscribes and ends command processing. Idempotent.
func (h *Handler) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true

	if err := h.broker.Unsubscribe(h.cfg.CommandTopic); err != nil {
		slog.Warn("control plane unsubscribe failed", "error", err)
	}
	close(h.commands)

	slog.Info("control plane handler stopped")
	return nil
}

// messageHandler is called when a control message is received
func (h *Handler) messageHandler(topic string, payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control command received", "command", cmd.Command)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

// processCommands processes commands from the queue
func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.handleCommand(cmd)
		}
	}
}

// handleCommand executes a command
func (h *Handler) handleCommand(cmd Command) {
	var resp Response
	resp.CommandAck = cmd.Command

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus != nil {
			resp.Status = "success"
			resp.Data = h.callbacks.OnGetStatus()
		} else {
			resp.Status = "error"
			resp.Error = "get_status not implemented"
		}

	case "pause_painting":
		if h.callbacks.OnPause != nil {
			if err := h.callbacks.OnPause(); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "paused"
				resp.Data = map[string]interface{}{
					"painting_active": false,
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "pause not implemented"
		}

	case "resume_painting":
		if h.callbacks.OnResume != nil {
			if err := h.callbacks.OnResume(); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "success"
				resp.Data = map[string]interface{}{
					"painting_active": true,
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "resume not implemented"
		}

	case "shutdown":
		if h.callbacks.OnShutdown != nil {
			slog.Warn("shutdown command received via MQTT control plane")
			resp.Status = "success"
			resp.Data = map[string]interface{}{
				"shutdown_initiated": true,
				"message":            "graceful shutdown in progress",
			}
			// Acknowledge before the connection goes away
			h.sendResponse(resp)

			go func() {
				time.Sleep(h.cfg.ShutdownWait)
				if err := h.callbacks.OnShutdown(); err != nil {
					slog.Error("shutdown callback failed", "error", err)
				}
			}()
			return
		}
		resp.Status = "error"
		resp.Error = "shutdown not implemented"

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	h.sendResponse(resp)
}

// sendResponse publishes a response on the status topic
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	if err := h.broker.Publish(h.cfg.StatusTopic, h.cfg.StatusQoS, payload); err != nil {
		slog.Error("failed to publish response", "error", err)
		return
	}

	slog.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}

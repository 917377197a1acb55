package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/care/painter/internal/brush"
	"github.com/care/painter/internal/config"
	"github.com/care/painter/internal/control"
	"github.com/care/painter/internal/markerbus"
	"github.com/care/painter/internal/motion"
	"github.com/care/painter/internal/progress"
	"github.com/care/painter/internal/retry"
	"github.com/care/painter/internal/rpc"
	"github.com/care/painter/internal/sequencer"
	"github.com/care/painter/internal/transport"
	"github.com/care/painter/internal/types"
	"github.com/care/painter/internal/viewer"
	"github.com/care/painter/internal/vision"
)

// Session phases reported by status and health
const (
	PhaseIdle       = "idle"
	PhaseHoming     = "homing"
	PhaseSetup      = "setup"
	PhaseTesting    = "testing"
	PhasePreviewing = "previewing"
	PhasePainting   = "painting"
	PhaseStalled    = "stalled"
	PhaseDone       = "done"
	PhaseFailed     = "failed"
	PhaseDeclined   = "declined"
)

// Painter is the main service orchestrator
type Painter struct {
	cfg *config.Config

	// Core components
	conn           *transport.MQTTConn
	rpcClient      *rpc.Client
	vision         VisionService
	motion         MotionService
	brush          *brush.Brush
	markers        *markerbus.Bus
	viewers        *viewer.Server
	controlHandler *control.Handler
	healthServer   *http.Server
	mdnsServer     *mdns.Server

	// Prompter is consulted before the session starts; nil starts unattended
	Prompter Prompter

	// Session state
	sequencer  *sequencer.Sequencer
	visualizer *progress.Visualizer
	mode       types.Mode
	phase      string
	lastError  string
	stalledAt  int
	resumeCh   chan struct{}

	// Lifecycle management
	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	cancelCtx context.CancelFunc // For MQTT shutdown command
}

// NewPainter loads the configuration and creates a painter
func NewPainter(configPath string) (*Painter, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"broker", cfg.MQTT.Broker,
	)

	return New(cfg), nil
}

// New creates a painter from a validated configuration
func New(cfg *config.Config) *Painter {
	markers := markerbus.New()
	return &Painter{
		cfg:      cfg,
		markers:  markers,
		viewers:  viewer.NewServer(markers),
		phase:    PhaseIdle,
		resumeCh: make(chan struct{}, 1),
	}
}

// ShutdownTimeout returns the configured graceful shutdown timeout
func (p *Painter) ShutdownTimeout() time.Duration {
	return p.cfg.ShutdownTimeout()
}

// Run connects to the broker, starts the control plane and the health
// server, then executes one session. mode 0 asks the Prompter.
func (p *Painter) Run(ctx context.Context, mode types.Mode) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	p.isRunning = true
	p.started = time.Now()
	p.mu.Unlock()

	// Create cancellable context for MQTT shutdown command
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.mu.Lock()
	p.cancelCtx = cancel
	p.mu.Unlock()

	slog.Info("painter service starting", "instance_id", p.cfg.InstanceID)

	if err := p.connect(ctx); err != nil {
		return err
	}

	p.controlHandler = control.NewHandler(control.Config{
		CommandTopic: p.cfg.MQTT.Topics.Control,
		StatusTopic:  p.cfg.MQTT.Topics.Status,
		CommandQoS:   p.cfg.MQTT.QoS["control"],
		StatusQoS:    p.cfg.MQTT.QoS["status"],
	}, p.conn, control.CommandCallbacks{
		OnGetStatus: p.getStatus,
		OnPause:     p.pausePainting,
		OnResume:    p.resumePainting,
		OnShutdown:  p.shutdownViaControl,
	})
	if err := p.controlHandler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}

	if err := p.StartHealthServer(p.cfg.HealthPort); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}

	if p.cfg.Discovery.MDNS {
		port, err := strconv.Atoi(p.cfg.HealthPort)
		if err != nil {
			return fmt.Errorf("discovery needs a numeric health_port: %w", err)
		}
		server, err := viewer.Advertise(p.cfg.Discovery.Service, port)
		if err != nil {
			// Viewers can still connect by address
			slog.Warn("mdns advertisement failed", "error", err)
		} else {
			p.mdnsServer = server
		}
	}

	err := p.runSession(ctx, mode)

	slog.Info("painter service run loop exiting", "phase", p.Phase())
	return err
}

// connect wires the MQTT connection, the RPC client and the service clients
func (p *Painter) connect(ctx context.Context) error {
	p.conn = transport.NewMQTTConn(transport.Config{
		Broker:   p.cfg.MQTT.Broker,
		ClientID: "painter-" + p.cfg.InstanceID,
	})
	if err := p.conn.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect mqtt: %w", err)
	}

	rpcQoS := p.cfg.MQTT.QoS["rpc"]
	p.rpcClient = rpc.NewClient(p.conn, rpc.Config{
		ReplyTopic: p.cfg.MQTT.Topics.Replies,
		QoS:        rpcQoS,
	})

	err := p.conn.Subscribe(p.rpcClient.ReplyTopic(), rpcQoS, func(_ string, payload []byte) {
		p.rpcClient.HandleReply(payload)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to replies: %w", err)
	}

	svc := p.cfg.Services
	p.setServices(
		vision.NewClient(p.rpcClient, vision.Config{
			Prefix:  svc.VisionPrefix,
			Timeout: svc.RequestTimeout(),
			Retry: retry.Policy{
				Delay:    svc.RetryDelay(),
				MaxDelay: svc.MaxRetryDelay(),
			},
		}),
		motion.NewClient(p.rpcClient, motion.Config{
			Prefix:  svc.MotionPrefix,
			Timeout: svc.MoveTimeout(),
			Debug:   svc.Debug,
		}),
	)

	slog.Info("service clients ready",
		"vision", svc.VisionPrefix,
		"motion", svc.MotionPrefix,
		"replies", p.rpcClient.ReplyTopic(),
	)
	return nil
}

// setServices installs the vision and motion clients and builds the brush
func (p *Painter) setServices(v VisionService, m MotionService) {
	p.vision = v
	p.motion = m
	p.brush = brush.New(m, p.cfg.Painting.Geometry)
}

// Shutdown performs graceful shutdown of all components
func (p *Painter) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	slog.Info("shutting down painter service")

	// 1. Stop control plane (no more commands)
	if p.controlHandler != nil {
		slog.Info("stopping control handler")
		if err := p.controlHandler.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}

	// 2. Release viewers and the visualizer
	p.markers.Close()
	if p.mdnsServer != nil {
		if err := p.mdnsServer.Shutdown(); err != nil {
			slog.Error("failed to stop mdns server", "error", err)
		}
	}
	if p.healthServer != nil {
		if err := p.healthServer.Shutdown(ctx); err != nil {
			slog.Error("failed to stop health server", "error", err)
		}
	}

	// 3. Wait for goroutines to finish (without holding the lock)
	slog.Info("waiting for goroutines to finish")
	p.wg.Wait()
	slog.Info("all goroutines finished")

	// 4. Fail in-flight calls, then disconnect MQTT
	if p.rpcClient != nil {
		p.rpcClient.Close()
	}
	if p.conn != nil {
		if err := p.conn.Disconnect(); err != nil {
			slog.Error("failed to disconnect mqtt", "error", err)
		}
	}

	p.mu.Lock()
	uptime := time.Since(p.started)
	p.isRunning = false
	p.mu.Unlock()

	slog.Info("painter service shutdown complete", "uptime", uptime)
	return nil
}

// Phase returns the current session phase
func (p *Painter) Phase() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.phase
}

func (p *Painter) setPhase(phase string) {
	p.mu.Lock()
	prev := p.phase
	p.phase = phase
	p.mu.Unlock()

	if prev != phase {
		slog.Info("session phase changed", "from", prev, "to", phase)
	}
}

package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Match failure policies
const (
	MatchFailureSkip  = "skip"
	MatchFailureAbort = "abort"
)

// Validate checks if the configuration is valid and fills defaults
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}
	if cfg.HealthPort == "" {
		cfg.HealthPort = "8080"
	}

	// Validate MQTT broker
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}

	// Set default topics if not provided
	if cfg.MQTT.Topics.Control == "" {
		cfg.MQTT.Topics.Control = fmt.Sprintf("painter/control/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Status == "" {
		cfg.MQTT.Topics.Status = fmt.Sprintf("painter/status/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Replies == "" {
		cfg.MQTT.Topics.Replies = fmt.Sprintf("painter/replies/%s", cfg.InstanceID)
	}

	// Set default QoS if not provided
	if cfg.MQTT.QoS == nil {
		cfg.MQTT.QoS = map[string]byte{
			"control": 1,
			"status":  0,
			"rpc":     1,
		}
	}

	if err := validateServices(&cfg.Services); err != nil {
		return fmt.Errorf("services: %w", err)
	}
	if err := validatePainting(&cfg.Painting); err != nil {
		return fmt.Errorf("painting: %w", err)
	}
	if err := validateVisualizer(&cfg.Visualizer); err != nil {
		return fmt.Errorf("visualizer: %w", err)
	}

	if cfg.Discovery.Service == "" {
		cfg.Discovery.Service = "_painter-markers._tcp"
	}

	return nil
}

func validateServices(s *ServicesConfig) error {
	if s.VisionPrefix == "" {
		s.VisionPrefix = "painter/vision"
	}
	if s.MotionPrefix == "" {
		s.MotionPrefix = "painter/motion"
	}
	if s.RequestTimeoutMS <= 0 {
		s.RequestTimeoutMS = 5000
	}
	if s.MoveTimeoutMS <= 0 {
		s.MoveTimeoutMS = 30000
	}
	if s.RetryDelayMS <= 0 {
		s.RetryDelayMS = 1000
	}
	if s.MaxRetryDelayMS <= 0 {
		s.MaxRetryDelayMS = 30000
	}
	if s.MaxRetryDelayMS < s.RetryDelayMS {
		return fmt.Errorf("max_retry_delay_ms (%d) must be >= retry_delay_ms (%d)",
			s.MaxRetryDelayMS, s.RetryDelayMS)
	}
	if s.HomeTarget == "" {
		s.HomeTarget = "home"
	}
	return nil
}

func validatePainting(p *PaintingConfig) error {
	if p.AliveTime < 0 {
		return fmt.Errorf("alive_time must be > 0, got %d", p.AliveTime)
	}
	if p.AliveTime == 0 {
		p.AliveTime = 2
	}
	if p.BrushCoeff < 0 {
		return fmt.Errorf("brush_coeff must be >= 0, got %v", p.BrushCoeff)
	}
	if p.BrushCoeff == 0 {
		p.BrushCoeff = 1
	}

	switch p.MatchFailure {
	case "":
		p.MatchFailure = MatchFailureSkip
	case MatchFailureSkip, MatchFailureAbort:
	default:
		return fmt.Errorf("unknown match_failure '%s' (must be '%s' or '%s')",
			p.MatchFailure, MatchFailureSkip, MatchFailureAbort)
	}

	if p.StrokeIntervalMS < 0 {
		return fmt.Errorf("stroke_interval_ms must be >= 0")
	}

	g := &p.Geometry
	if g.BottleHeight == 0 {
		g.BottleHeight = 0.06
	}
	if g.PaintHeight == 0 {
		g.PaintHeight = 0.045
	}
	if g.BrushHeight == 0 {
		g.BrushHeight = 0.01
	}
	if g.BrushWidth == 0 {
		g.BrushWidth = 0.01
	}
	if g.Clearance == 0 {
		g.Clearance = 0.02
	}
	if g.PaintHeight > g.BottleHeight {
		return fmt.Errorf("geometry.paint_height (%v) exceeds bottle_height (%v)",
			g.PaintHeight, g.BottleHeight)
	}
	return nil
}

func validateVisualizer(v *VisualizerConfig) error {
	if v.RateHz < 0 {
		return fmt.Errorf("rate_hz must be > 0")
	}
	if v.RateHz == 0 {
		v.RateHz = 3
	}
	if v.FrameID == "" {
		v.FrameID = "canvas_link"
	}
	if v.Namespace == "" {
		v.Namespace = "basic_shapes"
	}
	if v.Scale <= 0 {
		v.Scale = 0.01
	}
	if v.LifetimeMS <= 0 {
		v.LifetimeMS = 1000
	}
	if v.PollIntervalMS <= 0 {
		v.PollIntervalMS = 1000
	}
	if v.Preview.Resolution <= 0 {
		v.Preview.Resolution = 0.01
	}
	if v.Preview.Scale <= 0 {
		v.Preview.Scale = 8
	}
	return nil
}

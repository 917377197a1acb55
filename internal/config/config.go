package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete painter configuration
type Config struct {
	InstanceID       string           `yaml:"instance_id"`
	ShutdownTimeoutS int              `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	HealthPort       string           `yaml:"health_port"`
	MQTT             MQTTConfig       `yaml:"mqtt"`
	Services         ServicesConfig   `yaml:"services"`
	Painting         PaintingConfig   `yaml:"painting"`
	Visualizer       VisualizerConfig `yaml:"visualizer"`
	Discovery        DiscoveryConfig  `yaml:"discovery"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic names
type MQTTTopics struct {
	Control string `yaml:"control"`
	Status  string `yaml:"status"`
	Replies string `yaml:"replies"` // RPC replies for this instance
}

// ServicesConfig describes how to reach the vision and motion services
type ServicesConfig struct {
	VisionPrefix     string `yaml:"vision_prefix"`      // e.g. painter/vision
	MotionPrefix     string `yaml:"motion_prefix"`      // e.g. painter/motion
	RequestTimeoutMS int    `yaml:"request_timeout_ms"` // vision queries
	MoveTimeoutMS    int    `yaml:"move_timeout_ms"`    // a single arm move
	RetryDelayMS     int    `yaml:"retry_delay_ms"`     // setup retry initial delay
	MaxRetryDelayMS  int    `yaml:"max_retry_delay_ms"` // setup retry delay cap
	HomeTarget       string `yaml:"home_target"`        // named pose reached before a session
	Debug            bool   `yaml:"debug"`              // forwarded with every move
}

// PaintingConfig holds the brush model and stroke geometry
type PaintingConfig struct {
	AliveTime        int      `yaml:"alive_time"`  // strokes per dip for the reference brush
	BrushCoeff       float64  `yaml:"brush_coeff"` // non-ideal brush factor (stored, not applied)
	MatchFailure     string   `yaml:"match_failure"`
	StrokeIntervalMS int      `yaml:"stroke_interval_ms"`
	Geometry         Geometry `yaml:"geometry"`
}

// Geometry contains the physical constants of wells and brush, in meters
type Geometry struct {
	BottleHeight float64 `yaml:"bottle_height"`
	PaintHeight  float64 `yaml:"paint_height"`
	BrushHeight  float64 `yaml:"brush_height"`
	BrushWidth   float64 `yaml:"brush_width"`
	Clearance    float64 `yaml:"clearance"` // added on top of bottle - paint when hovering
}

// HeightOffset is the hover height above a target before descending
func (g Geometry) HeightOffset() float64 {
	return g.BottleHeight - g.PaintHeight + g.Clearance
}

// VisualizerConfig controls the progress marker publisher
type VisualizerConfig struct {
	RateHz         float64       `yaml:"rate_hz"`
	FrameID        string        `yaml:"frame_id"`
	Namespace      string        `yaml:"namespace"`
	Scale          float64       `yaml:"scale"`
	LifetimeMS     int           `yaml:"lifetime_ms"`
	PollIntervalMS int           `yaml:"poll_interval_ms"` // subscriber polling while nobody listens
	Preview        PreviewConfig `yaml:"preview"`
}

// PreviewConfig controls the optional PNG snapshot
type PreviewConfig struct {
	Path       string  `yaml:"path"`
	Resolution float64 `yaml:"resolution"` // meters per raster cell
	Scale      int     `yaml:"scale"`      // output pixels per cell
}

// DiscoveryConfig controls mDNS advertisement of the marker endpoint
type DiscoveryConfig struct {
	MDNS    bool   `yaml:"mdns"`
	Service string `yaml:"service"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ShutdownTimeout returns the graceful shutdown timeout
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// RequestTimeout returns the vision query timeout
func (s ServicesConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutMS) * time.Millisecond
}

// MoveTimeout returns the timeout for one arm move
func (s ServicesConfig) MoveTimeout() time.Duration {
	return time.Duration(s.MoveTimeoutMS) * time.Millisecond
}

// RetryDelay returns the initial setup retry delay
func (s ServicesConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMS) * time.Millisecond
}

// MaxRetryDelay returns the setup retry delay cap
func (s ServicesConfig) MaxRetryDelay() time.Duration {
	return time.Duration(s.MaxRetryDelayMS) * time.Millisecond
}

// StrokeInterval returns the pause inserted after every stroke
func (p PaintingConfig) StrokeInterval() time.Duration {
	return time.Duration(p.StrokeIntervalMS) * time.Millisecond
}

// Period returns the visualizer tick period
func (v VisualizerConfig) Period() time.Duration {
	return time.Duration(float64(time.Second) / v.RateHz)
}

// Lifetime returns the marker TTL
func (v VisualizerConfig) Lifetime() time.Duration {
	return time.Duration(v.LifetimeMS) * time.Millisecond
}

// PollInterval returns the subscriber polling period
func (v VisualizerConfig) PollInterval() time.Duration {
	return time.Duration(v.PollIntervalMS) * time.Millisecond
}

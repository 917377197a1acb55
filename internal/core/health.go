package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/care/painter/internal/viewer"
)

// HealthStatus represents the health state of the painter service
type HealthStatus struct {
	Status        string `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds int64  `json:"uptime_seconds"`
	Phase         string `json:"phase"`
	Mode          string `json:"mode,omitempty"`
	Painted       int    `json:"painted"`
	Total         int    `json:"total"`
	Paused        bool   `json:"paused"`
	Stalled       bool   `json:"stalled"`
	MQTTConnected bool   `json:"mqtt_connected"`
	Viewers       int    `json:"viewers"`
	LastError     string `json:"last_error,omitempty"`
}

// HealthCheck returns the current health status of the service
func (p *Painter) HealthCheck() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := HealthStatus{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(p.started).Seconds()),
		Phase:         p.phase,
		Mode:          modeName(p),
		Stalled:       p.phase == PhaseStalled,
		Viewers:       p.viewers.Viewers(),
		LastError:     p.lastError,
	}

	if p.conn != nil && p.conn.IsConnected() {
		status.MQTTConnected = true
	}

	if p.sequencer != nil {
		status.Painted = p.sequencer.PaintedCount()
		status.Total = p.sequencer.Total()
		status.Paused = p.sequencer.IsPaused()
	}

	// Determine overall health status
	if !p.isRunning {
		status.Status = "unhealthy"
	} else if !status.MQTTConnected || status.Stalled || p.phase == PhaseFailed {
		status.Status = "degraded"
	}

	return status
}

// LivenessHandler handles /health endpoint (simple liveness check)
func (p *Painter) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(p.startedAt()).Seconds()),
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ReadinessHandler handles /readiness endpoint (detailed readiness check)
// Returns 200 unless the service is stopped
func (p *Painter) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := p.HealthCheck()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// MetricsHandler handles /metrics endpoint in text exposition format
func (p *Painter) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	p.mu.RLock()
	seq := p.sequencer
	vis := p.visualizer
	started := p.started
	p.mu.RUnlock()

	instance := p.cfg.InstanceID
	metric := func(name string, value any) {
		fmt.Fprintf(w, "painter_%s{instance=%q} %v\n", name, instance, value)
	}

	metric("uptime_seconds", int64(time.Since(started).Seconds()))
	if seq != nil {
		s := seq.Stats()
		metric("painted_pixels", s.Painted)
		metric("total_pixels", s.Total)
		metric("strokes_total", s.Strokes)
		metric("reloads_total", s.Reloads)
		metric("skipped_pixels", s.Skipped)
	}
	if vis != nil {
		v := vis.Stats()
		metric("markers_published_total", v.Published)
		metric("markers_withheld_total", v.Withheld)
		metric("cursor_desyncs_total", v.Desyncs)
	}
	metric("viewers", p.viewers.Viewers())
}

func (p *Painter) startedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

// Handler returns the mux serving health, metrics and marker viewers
func (p *Painter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", p.LivenessHandler)
	mux.HandleFunc("/readiness", p.ReadinessHandler)
	mux.HandleFunc("/metrics", p.MetricsHandler)
	mux.Handle(viewer.Path, p.viewers)
	return mux
}

// StartHealthServer starts the HTTP server on the given port
// This runs in a separate goroutine and does not block
func (p *Painter) StartHealthServer(port string) error {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      p.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	p.mu.Lock()
	p.healthServer = server
	p.mu.Unlock()

	slog.Info("starting health check server",
		"port", port,
		"endpoints", []string{"/health", "/readiness", "/metrics", viewer.Path},
	)

	// Start server in goroutine (non-blocking)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health check server failed", "error", err)
		}
	}()

	return nil
}

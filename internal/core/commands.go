package core

import (
	"fmt"
	"log/slog"
	"time"
)

// getStatus returns the current service status
func (p *Painter) getStatus() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := map[string]interface{}{
		"instance_id": p.cfg.InstanceID,
		"uptime_s":    time.Since(p.started).Seconds(),
		"running":     p.isRunning,
		"phase":       p.phase,
		"mode":        modeName(p),
		"viewers":     p.viewers.Viewers(),
		"config": map[string]interface{}{
			"alive_time":    p.cfg.Painting.AliveTime,
			"match_failure": p.cfg.Painting.MatchFailure,
			"vision_prefix": p.cfg.Services.VisionPrefix,
			"motion_prefix": p.cfg.Services.MotionPrefix,
		},
	}

	if p.lastError != "" {
		status["last_error"] = p.lastError
	}
	if p.phase == PhaseStalled {
		status["stalled_at"] = p.stalledAt
	}

	if p.sequencer != nil {
		s := p.sequencer.Stats()
		status["painting"] = map[string]interface{}{
			"state":   s.State,
			"painted": s.Painted,
			"total":   s.Total,
			"strokes": s.Strokes,
			"reloads": s.Reloads,
			"skipped": s.Skipped,
			"paused":  s.Paused,
		}
	}

	if p.visualizer != nil {
		v := p.visualizer.Stats()
		status["visualizer"] = map[string]interface{}{
			"published": v.Published,
			"withheld":  v.Withheld,
			"desyncs":   v.Desyncs,
			"points":    v.Points,
		}
	}

	busStats := p.markers.Stats()
	status["markerbus"] = map[string]interface{}{
		"total_published": busStats.TotalPublished,
		"total_sent":      busStats.TotalSent,
		"total_dropped":   busStats.TotalDropped,
	}

	if p.conn != nil {
		connStats := p.conn.Stats()
		status["mqtt"] = map[string]interface{}{
			"connected": connStats.Connected,
			"published": connStats.Published,
			"errors":    connStats.Errors,
		}
	}

	if p.rpcClient != nil {
		rpcStats := p.rpcClient.Stats()
		status["rpc"] = map[string]interface{}{
			"calls":    rpcStats.Calls,
			"failures": rpcStats.Failures,
			"orphans":  rpcStats.Orphans,
			"pending":  rpcStats.Pending,
		}
	}

	return status
}

// modeName expects p.mu held
func modeName(p *Painter) string {
	if p.mode == 0 {
		return ""
	}
	return p.mode.String()
}

// pausePainting gates the stroke loop before the next stroke
func (p *Painter) pausePainting() error {
	p.mu.RLock()
	seq := p.sequencer
	p.mu.RUnlock()

	if seq == nil {
		return fmt.Errorf("not painting")
	}
	if err := seq.Pause(); err != nil {
		return err
	}

	slog.Info("painting paused via control plane", "painted", seq.PaintedCount())
	return nil
}

// resumePainting retries a stalled stroke or releases a paused run
func (p *Painter) resumePainting() error {
	p.mu.RLock()
	seq := p.sequencer
	stalled := p.phase == PhaseStalled
	p.mu.RUnlock()

	if stalled {
		select {
		case p.resumeCh <- struct{}{}:
		default:
			// A retry is already queued
		}
		slog.Info("stalled painting resumed via control plane")
		return nil
	}

	if seq == nil {
		return fmt.Errorf("not painting")
	}
	return seq.Resume()
}

// shutdownViaControl cancels the run context
func (p *Painter) shutdownViaControl() error {
	slog.Info("shutdown requested via control plane")

	p.mu.RLock()
	cancel := p.cancelCtx
	p.mu.RUnlock()

	if cancel == nil {
		return fmt.Errorf("service is not running")
	}
	cancel()
	return nil
}

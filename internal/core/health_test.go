package core

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/care/painter/internal/types"
)

func TestReadinessUnavailableWhenStopped(t *testing.T) {
	p, _, _ := testPainter(t)

	rec := httptest.NewRecorder()
	p.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestReadinessReportsProgress(t *testing.T) {
	p, _, _ := testPainter(t)
	if err := p.runSession(context.Background(), types.ModePaint); err != nil {
		t.Fatalf("runSession() failed: %v", err)
	}
	p.mu.Lock()
	p.isRunning = true
	p.mu.Unlock()

	rec := httptest.NewRecorder()
	p.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))

	// No MQTT connection in tests, so the service is degraded but ready
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var health HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode readiness: %v", err)
	}
	if health.Status != "degraded" {
		t.Errorf("status = %q, want degraded", health.Status)
	}
	if health.Phase != PhaseDone || health.Mode != "paint" {
		t.Errorf("phase/mode = %q/%q, want %q/paint", health.Phase, health.Mode, PhaseDone)
	}
	if health.Painted != 3 || health.Total != 3 {
		t.Errorf("painted/total = %d/%d, want 3/3", health.Painted, health.Total)
	}
}

func TestMetricsExposition(t *testing.T) {
	p, _, _ := testPainter(t)
	if err := p.runSession(context.Background(), types.ModePaint); err != nil {
		t.Fatalf("runSession() failed: %v", err)
	}

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	body := string(data)

	for _, want := range []string{
		`painter_painted_pixels{instance="easel-test"} 3`,
		`painter_total_pixels{instance="easel-test"} 3`,
		`painter_reloads_total{instance="easel-test"} 2`,
		`painter_cursor_desyncs_total{instance="easel-test"} 0`,
		`painter_viewers{instance="easel-test"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestLiveness(t *testing.T) {
	p, _, _ := testPainter(t)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

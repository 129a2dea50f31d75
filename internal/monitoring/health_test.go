package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHandleHealthHealthy(t *testing.T) {
	hm := NewHealthMonitor("0.1.0")

	w := httptest.NewRecorder()
	hm.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %q", body["status"])
	}
}

func TestHandleHealthDegradedOnCriticalAlert(t *testing.T) {
	hm := NewHealthMonitor("0.1.0")
	hm.AddAlert("critical", "remote", "model server unreachable")

	w := httptest.NewRecorder()
	hm.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestResolveAlertRestoresHealth(t *testing.T) {
	hm := NewHealthMonitor("0.1.0")
	hm.AddAlert("critical", "remote", "model server unreachable")
	hm.ResolveAlert(0)

	status := hm.getHealthStatus()
	if status.Status != "healthy" {
		t.Errorf("expected healthy after resolving, got %q", status.Status)
	}
}

func TestHandleStatusIncludesModel(t *testing.T) {
	hm := NewHealthMonitor("0.1.0")
	hm.SetModel(ModelInfo{
		Loaded:   true,
		Dir:      "/models/nova-d48w1024",
		Pipeline: "NOVAPipeline",
	})
	hm.RecordGeneration(64, 3*time.Second)

	w := httptest.NewRecorder()
	hm.handleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Model.Loaded || status.Model.Pipeline != "NOVAPipeline" {
		t.Errorf("unexpected model info: %+v", status.Model)
	}
	if status.Performance.GenerationsTotal != 1 {
		t.Errorf("expected 1 generation recorded, got %d", status.Performance.GenerationsTotal)
	}
	if status.Version != "0.1.0" {
		t.Errorf("expected version 0.1.0, got %q", status.Version)
	}
}

func TestHandleClearAlerts(t *testing.T) {
	hm := NewHealthMonitor("0.1.0")
	hm.AddAlert("warning", "pipeline", "slow generation")

	w := httptest.NewRecorder()
	hm.handleClearAlerts(w, httptest.NewRequest(http.MethodPost, "/admin/clear-alerts", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	hm.handleAlerts(w, httptest.NewRequest(http.MethodGet, "/admin/alerts", nil))
	var alerts []Alert
	if err := json.Unmarshal(w.Body.Bytes(), &alerts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected no alerts after clearing, got %d", len(alerts))
	}
}

func TestHandleClearAlertsRequiresPost(t *testing.T) {
	hm := NewHealthMonitor("0.1.0")
	w := httptest.NewRecorder()
	hm.handleClearAlerts(w, httptest.NewRequest(http.MethodGet, "/admin/clear-alerts", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestSlowGenerationRaisesAlert(t *testing.T) {
	hm := NewHealthMonitor("0.1.0")
	hm.RecordGeneration(64, 11*time.Minute)

	status := hm.getHealthStatus()
	if len(status.Alerts) == 0 {
		t.Fatal("expected a slow-generation alert")
	}
	if status.Alerts[0].Component != "pipeline" {
		t.Errorf("expected pipeline alert, got %q", status.Alerts[0].Component)
	}
}

// Package monitoring serves the operational endpoints of the generation
// service: liveness, Prometheus metrics, detailed status and alerts.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novagen-ai/novagen/internal/logger"
)

// HealthStatus is the full status document served at /status.
type HealthStatus struct {
	Status      string          `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     string          `json:"version"`
	Uptime      time.Duration   `json:"uptime"`
	System      SystemInfo      `json:"system"`
	Model       ModelInfo       `json:"model"`
	Performance PerformanceInfo `json:"performance"`
	Alerts      []Alert         `json:"alerts"`
}

// SystemInfo contains process-level information.
type SystemInfo struct {
	GoVersion      string  `json:"go_version"`
	OS             string  `json:"os"`
	Arch           string  `json:"arch"`
	NumCPU         int     `json:"num_cpu"`
	MemoryMB       int     `json:"memory_mb"`
	MemoryUsedMB   int     `json:"memory_used_mb"`
	MemoryUsagePct float64 `json:"memory_usage_pct"`
}

// ModelInfo describes the resolved model behind the service.
type ModelInfo struct {
	Loaded     bool              `json:"loaded"`
	Dir        string            `json:"dir"`
	Pipeline   string            `json:"pipeline"`
	Components map[string]string `json:"components,omitempty"`
}

// PerformanceInfo aggregates the recent generation history.
type PerformanceInfo struct {
	GenerationsTotal int       `json:"generations_total"`
	AvgLatencyMs     float64   `json:"avg_latency_ms"`
	P95LatencyMs     float64   `json:"p95_latency_ms"`
	StepsPerSecond   float64   `json:"steps_per_second"`
	LastGeneration   time.Time `json:"last_generation"`
}

// Alert is an operational alert surfaced at /admin/alerts.
type Alert struct {
	Level      string     `json:"level"`     // info, warning, error, critical
	Component  string     `json:"component"` // pipeline, remote, memory, system
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// HealthMonitor tracks generation performance and serves the operational
// endpoints.
type HealthMonitor struct {
	startTime time.Time
	version   string
	server    *http.Server
	log       *logger.Logger

	mu          sync.RWMutex
	model       ModelInfo
	alerts      []Alert
	lastGen     time.Time
	perfHistory []perfPoint
}

type perfPoint struct {
	timestamp time.Time
	steps     int
	duration  time.Duration
}

func NewHealthMonitor(version string) *HealthMonitor {
	return &HealthMonitor{
		startTime: time.Now(),
		version:   version,
		log:       logger.Log.Component("monitoring"),
	}
}

// SetModel records the resolved model served by this process.
func (hm *HealthMonitor) SetModel(info ModelInfo) {
	hm.mu.Lock()
	hm.model = info
	hm.mu.Unlock()
}

// Start serves the monitoring endpoints until Stop or listener failure.
func (hm *HealthMonitor) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", hm.handleHealth)
	mux.HandleFunc("/healthz", hm.handleHealth) // Kubernetes compatibility
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", hm.handleStatus)
	mux.HandleFunc("/admin/alerts", hm.handleAlerts)
	mux.HandleFunc("/admin/clear-alerts", hm.handleClearAlerts)

	hm.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	hm.log.Info("monitoring endpoints starting", "addr", addr)
	return hm.server.ListenAndServe()
}

func (hm *HealthMonitor) Stop(ctx context.Context) error {
	if hm.server != nil {
		return hm.server.Shutdown(ctx)
	}
	return nil
}

// RecordGeneration feeds one finished generation into the performance
// history. steps is the number of autoregressive steps run.
func (hm *HealthMonitor) RecordGeneration(steps int, duration time.Duration) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	now := time.Now()
	hm.lastGen = now
	hm.perfHistory = append(hm.perfHistory, perfPoint{timestamp: now, steps: steps, duration: duration})
	if len(hm.perfHistory) > 1000 {
		hm.perfHistory = hm.perfHistory[1:]
	}

	if duration > 10*time.Minute {
		hm.addAlertLocked("warning", "pipeline",
			fmt.Sprintf("slow generation: %.1fs for %d steps", duration.Seconds(), steps))
	}
}

// AddAlert records a new operational alert.
func (hm *HealthMonitor) AddAlert(level, component, message string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.addAlertLocked(level, component, message)
}

func (hm *HealthMonitor) addAlertLocked(level, component, message string) {
	hm.alerts = append(hm.alerts, Alert{
		Level:     level,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	})
	if len(hm.alerts) > 100 {
		hm.alerts = hm.alerts[1:]
	}
	hm.log.Warn("alert", "level", level, "component", component, "message", message)
}

// ResolveAlert marks an alert resolved by index.
func (hm *HealthMonitor) ResolveAlert(index int) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if index >= 0 && index < len(hm.alerts) {
		now := time.Now()
		hm.alerts[index].Resolved = true
		hm.alerts[index].ResolvedAt = &now
	}
}

func (hm *HealthMonitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := hm.getHealthStatus()
	if status.Status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]string{
		"status":    status.Status,
		"timestamp": status.Timestamp.Format(time.RFC3339),
	})
}

func (hm *HealthMonitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hm.getHealthStatus())
}

func (hm *HealthMonitor) handleAlerts(w http.ResponseWriter, r *http.Request) {
	hm.mu.RLock()
	alerts := make([]Alert, len(hm.alerts))
	copy(alerts, hm.alerts)
	hm.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}

func (hm *HealthMonitor) handleClearAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hm.mu.Lock()
	hm.alerts = hm.alerts[:0]
	hm.mu.Unlock()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "alerts cleared"})
}

func (hm *HealthMonitor) getHealthStatus() HealthStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := "healthy"
	for _, alert := range hm.alerts {
		if alert.Level == "critical" && !alert.Resolved {
			status = "critical"
			break
		} else if alert.Level == "error" && !alert.Resolved {
			status = "degraded"
		}
	}

	return HealthStatus{
		Status:      status,
		Timestamp:   time.Now(),
		Version:     hm.version,
		Uptime:      time.Since(hm.startTime),
		System:      systemInfo(),
		Model:       hm.model,
		Performance: hm.performanceInfo(),
		Alerts:      hm.alerts,
	}
}

func systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemInfo{
		GoVersion:      runtime.Version(),
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
		NumCPU:         runtime.NumCPU(),
		MemoryMB:       int(m.Sys / 1024 / 1024),
		MemoryUsedMB:   int(m.Alloc / 1024 / 1024),
		MemoryUsagePct: float64(m.Alloc) / float64(m.Sys) * 100,
	}
}

func (hm *HealthMonitor) performanceInfo() PerformanceInfo {
	if len(hm.perfHistory) == 0 {
		return PerformanceInfo{LastGeneration: hm.lastGen}
	}

	var totalSteps int
	var totalDuration time.Duration
	latencies := make([]float64, 0, len(hm.perfHistory))
	for _, p := range hm.perfHistory {
		totalSteps += p.steps
		totalDuration += p.duration
		latencies = append(latencies, float64(p.duration.Nanoseconds())/1e6)
	}

	for i := range latencies {
		for j := i + 1; j < len(latencies); j++ {
			if latencies[i] > latencies[j] {
				latencies[i], latencies[j] = latencies[j], latencies[i]
			}
		}
	}
	p95Index := int(float64(len(latencies)) * 0.95)
	if p95Index >= len(latencies) {
		p95Index = len(latencies) - 1
	}

	return PerformanceInfo{
		GenerationsTotal: len(hm.perfHistory),
		AvgLatencyMs:     float64(totalDuration.Nanoseconds()) / float64(len(hm.perfHistory)) / 1e6,
		P95LatencyMs:     latencies[p95Index],
		StepsPerSecond:   float64(totalSteps) / totalDuration.Seconds(),
		LastGeneration:   hm.lastGen,
	}
}

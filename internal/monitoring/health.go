package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/23skdu/longbow-amreval/internal/logger"
)

// Version is reported by the status endpoints.
var Version = "dev"

// HealthStatus represents the health status of the process
type HealthStatus struct {
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Version    string         `json:"version"`
	Uptime     time.Duration  `json:"uptime"`
	System     SystemInfo     `json:"system"`
	Evaluation EvaluationInfo `json:"evaluation"`
	Alerts     []Alert        `json:"alerts"`
}

// SystemInfo contains system-level information
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	MemoryMB     int    `json:"memory_mb"`
	MemoryUsedMB int    `json:"memory_used_mb"`
}

// EvaluationInfo summarizes the runs seen by this process
type EvaluationInfo struct {
	Runs        int       `json:"runs"`
	Examples    int       `json:"examples"`
	LastMode    string    `json:"last_mode,omitempty"`
	LastRun     time.Time `json:"last_run"`
	LastRunTime float64   `json:"last_run_seconds"`
	Failures    int       `json:"failures"`
}

// Alert represents a recorded problem
type Alert struct {
	Level     string    `json:"level"`     // warning, error, critical
	Component string    `json:"component"` // pipeline, scoring, transport
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

const maxAlerts = 100

// HealthMonitor serves /metrics and health endpoints for a long evaluation
// run.
type HealthMonitor struct {
	startTime time.Time
	server    *http.Server
	listener  net.Listener

	mu     sync.RWMutex
	alerts []Alert
	eval   EvaluationInfo
}

func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{startTime: time.Now()}
}

// Handler returns the endpoint mux.
func (hm *HealthMonitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hm.handleHealth)
	mux.HandleFunc("/healthz", hm.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", hm.handleDetailedStatus)
	return mux
}

// Start listens on addr and serves in the background.
func (hm *HealthMonitor) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	hm.listener = ln
	hm.server = &http.Server{
		Handler:      hm.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := hm.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("health monitor stopped", "error", err)
		}
	}()
	logger.Log.Info("health monitor listening", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound address once started.
func (hm *HealthMonitor) Addr() string {
	if hm.listener == nil {
		return ""
	}
	return hm.listener.Addr().String()
}

func (hm *HealthMonitor) Stop(ctx context.Context) error {
	if hm.server != nil {
		return hm.server.Shutdown(ctx)
	}
	return nil
}

// RecordRun notes a finished pipeline or scoring run.
func (hm *HealthMonitor) RecordRun(mode string, examples int, duration time.Duration, err error) {
	hm.mu.Lock()
	hm.eval.Runs++
	hm.eval.Examples += examples
	hm.eval.LastMode = mode
	hm.eval.LastRun = time.Now()
	hm.eval.LastRunTime = duration.Seconds()
	if err != nil {
		hm.eval.Failures++
	}
	hm.mu.Unlock()

	if err != nil {
		hm.AddAlert("error", "pipeline", mode+": "+err.Error())
	}
}

func (hm *HealthMonitor) AddAlert(level, component, message string) {
	hm.mu.Lock()
	hm.alerts = append(hm.alerts, Alert{
		Level:     level,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	})
	if len(hm.alerts) > maxAlerts {
		hm.alerts = hm.alerts[1:]
	}
	hm.mu.Unlock()

	logger.Log.Warn("alert", "level", level, "component", component, "message", message)
}

func (hm *HealthMonitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := hm.Status()
	w.Header().Set("Content-Type", "application/json")
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

func (hm *HealthMonitor) handleDetailedStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hm.Status())
}

// Status computes the current health: critical alerts make the process
// critical, error alerts make it degraded.
func (hm *HealthMonitor) Status() HealthStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := "healthy"
	for _, a := range hm.alerts {
		if a.Level == "critical" {
			status = "critical"
			break
		}
		if a.Level == "error" {
			status = "degraded"
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Version:   Version,
		Uptime:    time.Since(hm.startTime),
		System: SystemInfo{
			GoVersion:    runtime.Version(),
			OS:           runtime.GOOS,
			Arch:         runtime.GOARCH,
			NumCPU:       runtime.NumCPU(),
			MemoryMB:     int(m.Sys / 1024 / 1024),
			MemoryUsedMB: int(m.Alloc / 1024 / 1024),
		},
		Evaluation: hm.eval,
		Alerts:     append([]Alert(nil), hm.alerts...),
	}
}

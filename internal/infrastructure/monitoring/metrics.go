package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so domain components can be built without monitoring in tests.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionLaunches *prometheus.CounterVec
	LaunchDuration  *prometheus.HistogramVec
	InjectionErrors *prometheus.CounterVec
	SessionsStopped prometheus.Counter

	// Proxy metrics
	ProxyChecks       *prometheus.CounterVec
	ProxyCheckLatency prometheus.Histogram

	// Workflow metrics
	Executions        *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	ExecutionsQueued  prometheus.Gauge
	ActionErrors      *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON health endpoint.
type Snapshot struct {
	TotalRequests      int64 `json:"totalRequests"`
	ActiveSessions     int64 `json:"activeSessions"`
	LaunchFailures     int64 `json:"launchFailures"`
	ExecutionsFinished int64 `json:"executionsFinished"`
	ExecutionsFailed   int64 `json:"executionsFailed"`
}

// NewMetrics registers all collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_sessions_active",
				Help: "Number of live browser sessions",
			},
		),
		SessionLaunches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_session_launches_total",
				Help: "Browser launch attempts by engine and outcome",
			},
			[]string{"engine", "status"},
		),
		LaunchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_session_launch_duration_seconds",
				Help:    "Time to launch a browser per engine",
				Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"engine"},
		),
		InjectionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_injection_errors_total",
				Help: "Fingerprint surfaces that failed to apply",
			},
			[]string{"surface"},
		),
		SessionsStopped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fleet_sessions_superseded_total",
				Help: "Running sessions stopped because a new one started for the same profile",
			},
		),

		ProxyChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_proxy_checks_total",
				Help: "Proxy health checks by verdict",
			},
			[]string{"type", "status"},
		),
		ProxyCheckLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fleet_proxy_check_latency_seconds",
				Help:    "Latency of successful proxy probes",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_executions_total",
				Help: "Workflow executions by terminal status",
			},
			[]string{"status"},
		),
		ExecutionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fleet_execution_duration_seconds",
				Help:    "Workflow execution wall time",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		ExecutionsQueued: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_executions_queued",
				Help: "Executions waiting for a worker",
			},
		),
		ActionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_action_errors_total",
				Help: "Workflow node actions that failed",
			},
			[]string{"node_type"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_ws_connections",
				Help: "Number of execution stream subscribers",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.mu.Unlock()
}

// RecordLaunch records one launch attempt through an engine
func (m *Metrics) RecordLaunch(engine string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		m.mu.Lock()
		m.snapshot.LaunchFailures++
		m.mu.Unlock()
	}
	m.SessionLaunches.WithLabelValues(engine, status).Inc()
	m.LaunchDuration.WithLabelValues(engine).Observe(duration.Seconds())
}

// RecordInjectionError records a fingerprint surface that could not be applied
func (m *Metrics) RecordInjectionError(surface string) {
	if m == nil {
		return
	}
	m.InjectionErrors.WithLabelValues(surface).Inc()
}

// IncSuperseded counts a session stopped by exclusivity enforcement
func (m *Metrics) IncSuperseded() {
	if m == nil {
		return
	}
	m.SessionsStopped.Inc()
}

// SetSessionsActive sets the number of live sessions
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// RecordProxyCheck records a health check verdict
func (m *Metrics) RecordProxyCheck(proxyType, status string, latency time.Duration) {
	if m == nil {
		return
	}
	m.ProxyChecks.WithLabelValues(proxyType, status).Inc()
	if latency > 0 {
		m.ProxyCheckLatency.Observe(latency.Seconds())
	}
}

// RecordExecution records a finished execution
func (m *Metrics) RecordExecution(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(status).Inc()
	if duration > 0 {
		m.ExecutionDuration.Observe(duration.Seconds())
	}

	m.mu.Lock()
	m.snapshot.ExecutionsFinished++
	if status == "failed" {
		m.snapshot.ExecutionsFailed++
	}
	m.mu.Unlock()
}

// RecordActionError records a failed workflow action
func (m *Metrics) RecordActionError(nodeType string) {
	if m == nil {
		return
	}
	m.ActionErrors.WithLabelValues(nodeType).Inc()
}

// AddQueued adjusts the queued executions gauge
func (m *Metrics) AddQueued(delta int) {
	if m == nil {
		return
	}
	m.ExecutionsQueued.Add(float64(delta))
}

// IncWSConnections increments stream subscribers
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements stream subscribers
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// GetSnapshot returns the current snapshot values
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

package metrics

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one process. Each instance registers on its own registry,
// so tests can build as many as they like.
type Metrics struct {
	startTime time.Time

	commandsTotal     *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	dosesRecorded     *prometheus.CounterVec
	validationIssues  *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	restockGauge      *prometheus.GaugeVec
	sweepRuns         *prometheus.CounterVec

	commands       atomic.Int64
	commandsFailed atomic.Int64
	doses          atomic.Int64
	httpRequests   atomic.Int64
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		startTime: time.Now(),

		commandsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medicamenta_commands_total",
			Help: "Commands handled by command and result",
		}, []string{"command", "result"}),

		commandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medicamenta_command_duration_seconds",
			Help:    "Duration of command handling",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),

		dosesRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medicamenta_doses_recorded_total",
			Help: "Doses recorded by status",
		}, []string{"status"}),

		validationIssues: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medicamenta_validation_issues_total",
			Help: "Validation issues reported by severity and code",
		}, []string{"severity", "code"}),

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medicamenta_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medicamenta_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		restockGauge: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "medicamenta_restock_recommendations",
			Help: "Restock recommendations found by the last sweep, by urgency",
		}, []string{"urgency"}),

		sweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medicamenta_sweep_runs_total",
			Help: "Restock sweep runs by result",
		}, []string{"result"}),
	}
}

// ObserveCommand records one handled command. A nil error counts as success.
func (m *Metrics) ObserveCommand(command string, err error, d time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
		m.commandsFailed.Add(1)
	}
	m.commands.Add(1)
	m.commandsTotal.WithLabelValues(command, result).Inc()
	m.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

func (m *Metrics) RecordDose(status string) {
	m.doses.Add(1)
	m.dosesRecorded.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordValidationIssue(severity, code string) {
	m.validationIssues.WithLabelValues(severity, code).Inc()
}

// ObserveHTTPRequest records an HTTP request metric
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, d time.Duration) {
	code := strconv.Itoa(status)
	m.httpRequests.Add(1)
	m.httpRequestsTotal.WithLabelValues(method, path, code).Inc()
	m.httpDuration.WithLabelValues(method, path, code).Observe(d.Seconds())
}

// SetRestockRecommendations replaces the gauge values; urgencies missing from counts drop to zero.
func (m *Metrics) SetRestockRecommendations(counts map[string]int, urgencies []string) {
	for _, u := range urgencies {
		m.restockGauge.WithLabelValues(u).Set(float64(counts[u]))
	}
}

func (m *Metrics) RecordSweep(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.sweepRuns.WithLabelValues(result).Inc()
}

type Snapshot struct {
	Uptime         time.Duration `json:"uptime"`
	CommandsTotal  int64         `json:"commands_total"`
	CommandsFailed int64         `json:"commands_failed"`
	DosesRecorded  int64         `json:"doses_recorded"`
	HTTPRequests   int64         `json:"http_requests"`
	SuccessRate    float64       `json:"success_rate"`
}

// Snapshot summarizes the counters for the health endpoint.
func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Uptime:         time.Since(m.startTime),
		CommandsTotal:  m.commands.Load(),
		CommandsFailed: m.commandsFailed.Load(),
		DosesRecorded:  m.doses.Load(),
		HTTPRequests:   m.httpRequests.Load(),
	}
	if s.CommandsTotal > 0 {
		s.SuccessRate = float64(s.CommandsTotal-s.CommandsFailed) / float64(s.CommandsTotal) * 100
	}
	return s
}

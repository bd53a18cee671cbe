package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	evaluationsTotal       *prometheus.CounterVec
	evaluationDuration     prometheus.Histogram
	monitorConnections     prometheus.Gauge
	monitorMessagesTotal   *prometheus.CounterVec
	monitorBroadcastsTotal prometheus.Counter
	violationsTotal        *prometheus.CounterVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestLatency     *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors for the judge and
// proctoring pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_evaluations_total",
			Help: "Total number of submissions graded, by verdict.",
		}, []string{"status"})

		evaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "judge_evaluation_duration_seconds",
			Help:    "Wall time spent grading one submission across all test cases.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		})

		monitorConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_connections",
			Help: "Currently open live-monitoring websocket connections.",
		})

		monitorMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_messages_total",
			Help: "Inbound monitor messages handled, by type.",
		}, []string{"type"})

		monitorBroadcastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_broadcasts_total",
			Help: "Lab snapshot broadcasts fanned out to observers.",
		})

		violationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proctoring_violations_total",
			Help: "Proctoring violations recorded, by type and severity.",
		}, []string{"type", "severity"})

		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"})

		httpRequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		prometheus.MustRegister(
			evaluationsTotal,
			evaluationDuration,
			monitorConnections,
			monitorMessagesTotal,
			monitorBroadcastsTotal,
			violationsTotal,
			httpRequestsTotal,
			httpRequestLatency,
		)
	})
}

// EvaluationsTotal exposes the verdict counter.
func EvaluationsTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsTotal
}

// EvaluationDuration exposes the grading duration histogram.
func EvaluationDuration() prometheus.Histogram {
	RegisterMetrics()
	return evaluationDuration
}

// MonitorConnections exposes the open connection gauge.
func MonitorConnections() prometheus.Gauge {
	RegisterMetrics()
	return monitorConnections
}

// MonitorMessages exposes the inbound message counter.
func MonitorMessages() *prometheus.CounterVec {
	RegisterMetrics()
	return monitorMessagesTotal
}

// MonitorBroadcasts exposes the broadcast counter.
func MonitorBroadcasts() prometheus.Counter {
	RegisterMetrics()
	return monitorBroadcastsTotal
}

// ViolationsTotal exposes the violation counter.
func ViolationsTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return violationsTotal
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpRequestLatency
}

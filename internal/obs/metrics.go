package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/worklens/worklens/internal/compliance"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	checkRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_check_runs_total",
			Help: "Total number of compliance check runs by outcome.",
		},
		[]string{"status"},
	)

	checkRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "compliance_check_run_duration_seconds",
		Help:    "Duration of compliance check runs in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	violationsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_violations_created_total",
			Help: "Total number of violations created by rule kind.",
		},
		[]string{"kind"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		checkRunsTotal,
		checkRunDuration,
		violationsCreatedTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument measures request rate, latency and in-flight count.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// RunMetrics reports compliance run outcomes to Prometheus.
type RunMetrics struct{}

var _ compliance.RunMetrics = RunMetrics{}

func (RunMetrics) RunStarted() {
	checkRunsTotal.WithLabelValues("started").Inc()
}

func (RunMetrics) RunFinished(status string, duration time.Duration) {
	checkRunsTotal.WithLabelValues(status).Inc()
	checkRunDuration.Observe(duration.Seconds())
}

func (RunMetrics) ViolationsCreated(kind string, count int) {
	violationsCreatedTotal.WithLabelValues(kind).Add(float64(count))
}

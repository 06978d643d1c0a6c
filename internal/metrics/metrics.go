package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agrosense"

// Prediction outcomes.
const (
	PredictionApplied     = "applied"
	PredictionUnavailable = "unavailable"
	PredictionStale       = "stale"
)

// Metrics owns the Prometheus registry and the lifecycle collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	harvests        prometheus.Counter
	predictions     *prometheus.CounterVec
	sweeps          *prometheus.CounterVec
	expiredBatches  prometheus.Gauge
	expiringBatches prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Stage transitions applied, by target stage",
		}, []string{"to"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_rejected_total",
			Help:      "Stage transitions rejected, by reason",
		}, []string{"reason"}),
		harvests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "harvests_recorded_total",
			Help:      "Harvests recorded",
		}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Harvest prediction requests, by outcome",
		}, []string{"outcome"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_sweeps_total",
			Help:      "Expiry sweeps run, by result",
		}, []string{"result"}),
		expiredBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batches_expired",
			Help:      "Batches derived expired at the last sweep",
		}),
		expiringBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batches_expiring_soon",
			Help:      "Batches expiring soon at the last sweep",
		}),
	}

	registry.MustRegister(
		m.requestDuration,
		m.requestTotal,
		m.transitions,
		m.rejected,
		m.harvests,
		m.predictions,
		m.sweeps,
		m.expiredBatches,
		m.expiringBatches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// StageTransition counts an applied transition.
func (m *Metrics) StageTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

// TransitionRejected counts a rejected transition.
func (m *Metrics) TransitionRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// HarvestRecorded counts a stored harvest.
func (m *Metrics) HarvestRecorded() {
	if m == nil {
		return
	}
	m.harvests.Inc()
}

// Prediction counts a prediction request by outcome.
func (m *Metrics) Prediction(outcome string) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(outcome).Inc()
}

// Sweep records an expiry sweep and the batch counts it observed.
func (m *Metrics) Sweep(err error, expired, expiring int) {
	if m == nil {
		return
	}
	if err != nil {
		m.sweeps.WithLabelValues("error").Inc()
		return
	}
	m.sweeps.WithLabelValues("ok").Inc()
	m.expiredBatches.Set(float64(expired))
	m.expiringBatches.Set(float64(expiring))
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prediction outcomes used as the "outcome" label.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Transports used as the "transport" label.
const (
	TransportHTTP   = "http"
	TransportStream = "stream"
	TransportGRPC   = "grpc"
)

// Metrics holds the server's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	predictions     *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	lastPrediction  prometheus.Gauge
	streamClients   prometheus.Gauge
	artifactChanges prometheus.Counter
	modelInfo       *prometheus.GaugeVec
}

// New registers all collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		predictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rulstack_predictions_total",
			Help: "Prediction requests by transport and outcome.",
		}, []string{"transport", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rulstack_prediction_duration_seconds",
			Help:    "Time spent parsing, scaling and running the model.",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05},
		}, []string{"transport"}),
		lastPrediction: f.NewGauge(prometheus.GaugeOpts{
			Name: "rulstack_last_predicted_rul",
			Help: "Most recent successful RUL prediction.",
		}),
		streamClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "rulstack_stream_clients",
			Help: "Connected WebSocket prediction stream clients.",
		}),
		artifactChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "rulstack_artifact_changes_total",
			Help: "On-disk changes to the model artifacts seen since start. A restart is required to apply them.",
		}),
		modelInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rulstack_model_info",
			Help: "Loaded model name and scaler kind; always 1.",
		}, []string{"model", "scaler"}),
	}
}

// ObservePrediction records one prediction attempt.
func (m *Metrics) ObservePrediction(transport, outcome string, elapsed time.Duration, rul float64) {
	m.predictions.WithLabelValues(transport, outcome).Inc()
	m.duration.WithLabelValues(transport).Observe(elapsed.Seconds())
	if outcome == OutcomeOK {
		m.lastPrediction.Set(rul)
	}
}

// StreamConnected adjusts the stream client gauge by delta (+1 / -1).
func (m *Metrics) StreamConnected(delta int) {
	m.streamClients.Add(float64(delta))
}

// ArtifactChanged counts one on-disk artifact change.
func (m *Metrics) ArtifactChanged() {
	m.artifactChanges.Inc()
}

// SetModelInfo publishes the loaded artifact identity.
func (m *Metrics) SetModelInfo(model, scaler string) {
	m.modelInfo.Reset()
	m.modelInfo.WithLabelValues(model, scaler).Set(1)
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

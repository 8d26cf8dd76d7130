package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metric names exported by rulstack-server.
const (
	metricPredictions     = "rulstack_predictions_total"
	metricDuration        = "rulstack_prediction_duration_seconds"
	metricLastRUL         = "rulstack_last_predicted_rul"
	metricStreamClients   = "rulstack_stream_clients"
	metricArtifactChanges = "rulstack_artifact_changes_total"
	metricModelInfo       = "rulstack_model_info"
)

// Stats is a point-in-time summary of a server's prediction activity.
type Stats struct {
	Model  string `json:"model"`
	Scaler string `json:"scaler"`

	// Predictions counts requests per transport and outcome
	// (ok | invalid | error).
	Predictions map[string]map[string]float64 `json:"predictions"`

	// MeanLatency is the mean prediction latency per transport.
	MeanLatency map[string]time.Duration `json:"mean_latency"`

	LastRUL         float64 `json:"last_predicted_rul"`
	StreamClients   float64 `json:"stream_clients"`
	ArtifactChanges float64 `json:"artifact_changes"`
}

// Transports returns the transports present in s.Predictions, sorted.
func (s Stats) Transports() []string {
	out := make([]string, 0, len(s.Predictions))
	for t := range s.Predictions {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Total returns the number of predictions with the given outcome across all
// transports. An empty outcome counts every request.
func (s Stats) Total(outcome string) float64 {
	var n float64
	for _, byOutcome := range s.Predictions {
		for o, v := range byOutcome {
			if outcome == "" || o == outcome {
				n += v
			}
		}
	}
	return n
}

// Fetch scrapes url and summarises the result.
func Fetch(ctx context.Context, client *http.Client, url string) (Stats, error) {
	mfs, err := fetchMetrics(ctx, client, url)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(mfs), nil
}

// Summarize extracts Stats from parsed metric families. Missing families
// leave their fields at zero.
func Summarize(mfs map[string]*dto.MetricFamily) Stats {
	s := Stats{
		Predictions: make(map[string]map[string]float64),
		MeanLatency: make(map[string]time.Duration),
	}

	if mf := mfs[metricPredictions]; mf != nil {
		for _, m := range mf.GetMetric() {
			transport, outcome := label(m, "transport"), label(m, "outcome")
			if s.Predictions[transport] == nil {
				s.Predictions[transport] = make(map[string]float64)
			}
			s.Predictions[transport][outcome] += m.GetCounter().GetValue()
		}
	}

	if mf := mfs[metricDuration]; mf != nil {
		for _, m := range mf.GetMetric() {
			h := m.GetHistogram()
			if h.GetSampleCount() == 0 {
				continue
			}
			mean := h.GetSampleSum() / float64(h.GetSampleCount())
			s.MeanLatency[label(m, "transport")] = time.Duration(mean * float64(time.Second))
		}
	}

	if mf := mfs[metricModelInfo]; mf != nil && len(mf.GetMetric()) > 0 {
		m := mf.GetMetric()[0]
		s.Model, s.Scaler = label(m, "model"), label(m, "scaler")
	}

	s.LastRUL = sumFamily(mfs[metricLastRUL])
	s.StreamClients = sumFamily(mfs[metricStreamClients])
	s.ArtifactChanges = sumFamily(mfs[metricArtifactChanges])
	return s
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil (metric not present in the scrape).
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

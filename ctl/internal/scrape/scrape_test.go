package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// serverMetrics is a trimmed rulstack-server /metrics page.
const serverMetrics = `
# HELP rulstack_predictions_total Prediction requests by transport and outcome.
# TYPE rulstack_predictions_total counter
rulstack_predictions_total{outcome="ok",transport="http"} 40
rulstack_predictions_total{outcome="invalid",transport="http"} 3
rulstack_predictions_total{outcome="ok",transport="grpc"} 7
rulstack_predictions_total{outcome="error",transport="grpc"} 1

# HELP rulstack_prediction_duration_seconds Time spent parsing, scaling and running the model.
# TYPE rulstack_prediction_duration_seconds histogram
rulstack_prediction_duration_seconds_bucket{transport="http",le="0.05"} 4
rulstack_prediction_duration_seconds_bucket{transport="http",le="+Inf"} 4
rulstack_prediction_duration_seconds_sum{transport="http"} 0.125
rulstack_prediction_duration_seconds_count{transport="http"} 4
rulstack_prediction_duration_seconds_bucket{transport="grpc",le="+Inf"} 0
rulstack_prediction_duration_seconds_sum{transport="grpc"} 0
rulstack_prediction_duration_seconds_count{transport="grpc"} 0

# HELP rulstack_last_predicted_rul Most recent successful RUL prediction.
# TYPE rulstack_last_predicted_rul gauge
rulstack_last_predicted_rul 812.5

# HELP rulstack_stream_clients Connected WebSocket prediction stream clients.
# TYPE rulstack_stream_clients gauge
rulstack_stream_clients 2

# HELP rulstack_artifact_changes_total On-disk changes to the model artifacts.
# TYPE rulstack_artifact_changes_total counter
rulstack_artifact_changes_total 1

# HELP rulstack_model_info Loaded model name and scaler kind; always 1.
# TYPE rulstack_model_info gauge
rulstack_model_info{model="rul-dnn",scaler="standard"} 1
`

func TestSummarize(t *testing.T) {
	mfs, err := parseMetrics(strings.NewReader(serverMetrics))
	if err != nil {
		t.Fatalf("parseMetrics: %v", err)
	}
	s := Summarize(mfs)

	if s.Model != "rul-dnn" || s.Scaler != "standard" {
		t.Errorf("model info: got %q/%q", s.Model, s.Scaler)
	}
	if got := s.Predictions["http"]["ok"]; got != 40 {
		t.Errorf("http ok: got %v, want 40", got)
	}
	if got := s.Total(""); got != 51 {
		t.Errorf("Total(all): got %v, want 51", got)
	}
	if got := s.Total("ok"); got != 47 {
		t.Errorf("Total(ok): got %v, want 47", got)
	}
	if got := s.MeanLatency["http"]; got != 31250*time.Microsecond {
		t.Errorf("http mean latency: got %v, want 31.25ms", got)
	}
	if _, ok := s.MeanLatency["grpc"]; ok {
		t.Error("grpc mean latency should be absent with zero samples")
	}
	if s.LastRUL != 812.5 || s.StreamClients != 2 || s.ArtifactChanges != 1 {
		t.Errorf("gauges: got %+v", s)
	}
	if ts := s.Transports(); len(ts) != 2 || ts[0] != "grpc" || ts[1] != "http" {
		t.Errorf("Transports: got %v", ts)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Total("") != 0 || s.Model != "" || len(s.Transports()) != 0 {
		t.Errorf("empty summary: got %+v", s)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(serverMetrics))
	}))
	defer srv.Close()

	s, err := Fetch(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if s.Total("invalid") != 3 {
		t.Errorf("invalid total: got %v, want 3", s.Total("invalid"))
	}
}

func TestFetch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := Fetch(context.Background(), srv.Client(), srv.URL); err == nil {
		t.Error("expected error for 503")
	}
}

func TestParseMetrics_Garbage(t *testing.T) {
	if _, err := parseMetrics(strings.NewReader("{not prometheus")); err == nil {
		t.Error("expected parse error")
	}
}

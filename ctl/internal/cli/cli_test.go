package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/grpc"

	"github.com/rulstack/rulstack/pkg/model/modeltest"
	"github.com/rulstack/rulstack/pkg/rulrpc"
	"github.com/rulstack/rulstack/pkg/types"
)

// --- helpers ----------------------------------------------------------------

// run executes rulctl with args and returns what it wrote to stdout.
func run(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir()) // keep a real ~/.rulctl.yaml out of the test

	var out, errOut bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	if stdin != nil {
		root.SetIn(stdin)
	}
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func sampleJSON(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(modeltest.SampleReading())
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// predictServer answers /predict with the given payload and records the body.
func predictServer(t *testing.T, payload string) (*httptest.Server, *[]byte) {
	t.Helper()
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

type fixedPredictor struct{ rul float64 }

func (f fixedPredictor) Predict(context.Context, *json.RawMessage) (*types.Prediction, error) {
	return &types.Prediction{PredictedRUL: f.rul}, nil
}

// --- predict ----------------------------------------------------------------

func TestPredict_FileOverHTTP(t *testing.T) {
	srv, body := predictServer(t, `{"predicted_rul": 812.5}`)
	path := writeFile(t, "reading.json", sampleJSON(t))

	out, err := run(t, nil, "predict", "--server", srv.URL, "-f", path)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if out != "predicted_rul: 812.50\n" {
		t.Errorf("output: got %q", out)
	}
	if !bytes.Equal(*body, sampleJSON(t)) {
		t.Errorf("sent body: got %s", *body)
	}
}

func TestPredict_StdinJSONOutput(t *testing.T) {
	srv, _ := predictServer(t, `{"predicted_rul": 3}`)

	out, err := run(t, bytes.NewReader(sampleJSON(t)), "predict", "--server", srv.URL, "-f", "-", "-o", "json")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if strings.TrimSpace(out) != `{"predicted_rul":3}` {
		t.Errorf("output: got %q", out)
	}
}

func TestPredict_ServerEnv(t *testing.T) {
	srv, _ := predictServer(t, `{"predicted_rul": 1}`)
	t.Setenv("RULCTL_SERVER", srv.URL)
	path := writeFile(t, "reading.json", sampleJSON(t))

	if _, err := run(t, nil, "predict", "-f", path); err != nil {
		t.Fatalf("predict with RULCTL_SERVER: %v", err)
	}
}

func TestPredict_Rejected(t *testing.T) {
	srv, _ := predictServer(t, `{"error": "invalid reading: missing field \"decrement\""}`)
	path := writeFile(t, "reading.json", []byte(`{"cycle_index": 1}`))

	_, err := run(t, nil, "predict", "--server", srv.URL, "-f", path)
	if err == nil || !strings.Contains(err.Error(), `missing field "decrement"`) {
		t.Errorf("err: got %v", err)
	}
}

func TestPredict_Flags(t *testing.T) {
	srv, body := predictServer(t, `{"predicted_rul": 36}`)

	args := []string{"predict", "--server", srv.URL}
	for i, name := range types.FeatureNames {
		args = append(args, "--"+flagName(name), fmt.Sprint(10+i))
	}
	if _, err := run(t, nil, args...); err != nil {
		t.Fatalf("predict: %v", err)
	}

	r, err := types.ParseReading(*body)
	if err != nil {
		t.Fatalf("server received an unparsable reading: %v", err)
	}
	if r.CycleIndex != 10 || r.ChargingTime != 17 {
		t.Errorf("reading: got %+v", r)
	}
}

func TestPredict_MissingFlags(t *testing.T) {
	_, err := run(t, nil, "predict", "--cycle-index", "3")
	if err == nil || !strings.Contains(err.Error(), "--charging-time") {
		t.Errorf("err: got %v", err)
	}

	_, err = run(t, nil, "predict")
	if err == nil || !strings.Contains(err.Error(), "no reading given") {
		t.Errorf("err: got %v", err)
	}
}

func TestPredict_OverGRPC(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gs := grpc.NewServer()
	rulrpc.RegisterPredictorServer(gs, fixedPredictor{rul: 99.5})
	go gs.Serve(lis) //nolint:errcheck
	t.Cleanup(gs.Stop)

	path := writeFile(t, "reading.json", sampleJSON(t))
	out, err := run(t, nil, "predict", "--transport", "grpc", "--grpc-addr", lis.Addr().String(), "-f", path)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if out != "predicted_rul: 99.50\n" {
		t.Errorf("output: got %q", out)
	}
}

func TestPredict_BadTransport(t *testing.T) {
	path := writeFile(t, "reading.json", sampleJSON(t))
	_, err := run(t, nil, "predict", "--transport", "carrier-pigeon", "-f", path)
	if err == nil || !strings.Contains(err.Error(), "unknown transport") {
		t.Errorf("err: got %v", err)
	}
}

// --- stats ------------------------------------------------------------------

func TestStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metrics" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`# TYPE rulstack_predictions_total counter
rulstack_predictions_total{outcome="ok",transport="http"} 5
rulstack_predictions_total{outcome="invalid",transport="http"} 2
# TYPE rulstack_model_info gauge
rulstack_model_info{model="rul-dnn",scaler="robust"} 1
`)) //nolint:errcheck
	}))
	defer srv.Close()

	out, err := run(t, nil, "stats", "--server", srv.URL)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	for _, want := range []string{"rul-dnn (robust scaler)", "7 (5 ok)", "TRANSPORT", "http"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// --- inspect ----------------------------------------------------------------

func TestInspect(t *testing.T) {
	modelPath, scalerPath := modeltest.WriteArtifacts(t, t.TempDir(), modeltest.SumNetwork(), modeltest.IdentityScaler())
	readingPath := writeFile(t, "reading.json", []byte(`{"cycle_index":1,"discharge_time":2,"decrement":3,
		"max_voltage_discharge":4,"min_voltage_dcharge":5,"time_at_4_15":6,"time_constant_current":7,"charging_time":8}`))

	out, err := run(t, nil, "inspect", "--model", modelPath, "--scaler", scalerPath, "-r", readingPath)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"sum", "standard", "cycle_index", "dense", "predicted_rul:", "36.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestInspect_JSON(t *testing.T) {
	modelPath, scalerPath := modeltest.WriteArtifacts(t, t.TempDir(), modeltest.SumNetwork(), modeltest.IdentityScaler())

	out, err := run(t, nil, "inspect", "--model", modelPath, "--scaler", scalerPath, "-o", "json")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var res map[string]interface{}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out)
	}
	if res["model"] != "sum" || res["input_dim"] != float64(8) {
		t.Errorf("result: got %v", res)
	}
	if _, ok := res["predicted_rul"]; ok {
		t.Error("predicted_rul present without --reading")
	}
}

func TestInspect_MissingArtifacts(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, nil, "inspect", "--model", filepath.Join(dir, "nope.json"), "--scaler", filepath.Join(dir, "nope2.json"))
	if err == nil {
		t.Error("expected error for missing artifacts")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, nil, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "rulctl dev\n") {
		t.Errorf("output: got %q", out)
	}
}

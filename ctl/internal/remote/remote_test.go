package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rulstack/rulstack/pkg/rulrpc"
	"github.com/rulstack/rulstack/pkg/types"
)

var sample = json.RawMessage(`{"cycle_index": 1}`)

// --- HTTP -------------------------------------------------------------------

func TestHTTPClient_Predict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict" {
			t.Errorf("request: got %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type: got %q", ct)
		}
		w.Write([]byte(`{"predicted_rul": 421.5}`)) //nolint:errcheck
	}))
	defer srv.Close()

	rul, err := NewHTTPClient(srv.URL+"/", time.Second).Predict(context.Background(), sample)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if rul != 421.5 {
		t.Errorf("rul: got %v, want 421.5", rul)
	}
}

func TestHTTPClient_ErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error": "invalid reading: missing field \"decrement\""}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).Predict(context.Background(), sample)
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("err: got %v, want *RejectedError", err)
	}
	if rej.Message != `invalid reading: missing field "decrement"` {
		t.Errorf("message: got %q", rej.Message)
	}
}

func TestHTTPClient_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).Predict(context.Background(), sample)
	var rej *RejectedError
	if err == nil || errors.As(err, &rej) {
		t.Errorf("err: got %v, want transport error", err)
	}
}

func TestHTTPClient_MetricsURL(t *testing.T) {
	c := NewHTTPClient("http://localhost:3000/", time.Second)
	if got := c.MetricsURL(); got != "http://localhost:3000/metrics" {
		t.Errorf("MetricsURL: got %q", got)
	}
}

// --- gRPC -------------------------------------------------------------------

// mockPredictor fails the first failN calls with code, then succeeds.
type mockPredictor struct {
	mu    sync.Mutex
	calls int
	failN int
	code  codes.Code
}

func (m *mockPredictor) Predict(_ context.Context, in *json.RawMessage) (*types.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failN {
		return nil, status.Error(m.code, fmt.Sprintf("mock failure %d", m.calls))
	}
	return &types.Prediction{PredictedRUL: float64(len(*in))}, nil
}

func (m *mockPredictor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// startTestServer starts an in-process gRPC server and returns its address.
func startTestServer(t *testing.T, srv rulrpc.PredictorServer) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	gs := grpc.NewServer()
	rulrpc.RegisterPredictorServer(gs, srv)

	go gs.Serve(lis) //nolint:errcheck
	t.Cleanup(gs.Stop)

	return lis.Addr().String()
}

func dialTest(t *testing.T, addr string, opts ...GRPCOption) *GRPCClient {
	t.Helper()
	opts = append([]GRPCOption{WithBackoff(time.Millisecond)}, opts...)
	c, err := DialGRPC(addr, time.Second, opts...)
	if err != nil {
		t.Fatalf("DialGRPC: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGRPCClient_Predict(t *testing.T) {
	m := &mockPredictor{}
	c := dialTest(t, startTestServer(t, m))

	rul, err := c.Predict(context.Background(), sample)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if rul != float64(len(sample)) {
		t.Errorf("rul: got %v, want %d", rul, len(sample))
	}
}

func TestGRPCClient_RetriesUnavailable(t *testing.T) {
	m := &mockPredictor{failN: 2, code: codes.Unavailable}
	c := dialTest(t, startTestServer(t, m))

	if _, err := c.Predict(context.Background(), sample); err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if n := m.callCount(); n != 3 {
		t.Errorf("calls: got %d, want 3", n)
	}
}

func TestGRPCClient_GivesUp(t *testing.T) {
	m := &mockPredictor{failN: 10, code: codes.Unavailable}
	c := dialTest(t, startTestServer(t, m), WithAttempts(3))

	_, err := c.Predict(context.Background(), sample)
	if status.Code(errors.Unwrap(err)) != codes.Unavailable {
		t.Errorf("err: got %v", err)
	}
	if n := m.callCount(); n != 3 {
		t.Errorf("calls: got %d, want 3", n)
	}
}

func TestGRPCClient_InvalidArgumentNotRetried(t *testing.T) {
	m := &mockPredictor{failN: 10, code: codes.InvalidArgument}
	c := dialTest(t, startTestServer(t, m))

	_, err := c.Predict(context.Background(), sample)
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("err: got %v, want *RejectedError", err)
	}
	if rej.Message != "mock failure 1" {
		t.Errorf("message: got %q", rej.Message)
	}
	if n := m.callCount(); n != 1 {
		t.Errorf("calls: got %d, want 1", n)
	}
}

func TestGRPCClient_ContextCancelStopsRetry(t *testing.T) {
	m := &mockPredictor{failN: 100, code: codes.Unavailable}
	c := dialTest(t, startTestServer(t, m), WithBackoff(time.Hour), WithAttempts(100))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Predict(ctx, sample)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err: got %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Predict did not stop on context cancel")
	}
}

// --- backoff ----------------------------------------------------------------

func TestBackoff_DoublesWithJitter(t *testing.T) {
	b := newBackoff(backoffInitial)
	for i, want := range []time.Duration{backoffInitial, 2 * backoffInitial, 4 * backoffInitial} {
		d := b.next()
		if d < want*3/4 || d > want*5/4 {
			t.Errorf("step %d: got %v, want %v ±25%%", i, d, want)
		}
	}
}

func TestBackoff_NeverExceedsMax(t *testing.T) {
	b := newBackoff(backoffInitial)
	for i := 0; i < 20; i++ {
		if d := b.next(); d > backoffMax*5/4 {
			t.Fatalf("step %d: got %v, exceeds max with jitter", i, d)
		}
	}
}

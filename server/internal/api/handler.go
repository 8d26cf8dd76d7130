package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/cors"

	"github.com/rulstack/rulstack/pkg/types"
	"github.com/rulstack/rulstack/server/internal/alerts"
	"github.com/rulstack/rulstack/server/internal/inference"
	"github.com/rulstack/rulstack/server/internal/metrics"
)

// Options configures the optional parts of the HTTP surface.
type Options struct {
	// MaxBodyBytes caps POST /predict bodies. Zero means 1 MiB.
	MaxBodyBytes int64

	// AllowedOrigins is passed to the CORS layer. Empty means "*".
	AllowedOrigins []string

	// Metrics is mounted on GET /metrics when non-nil.
	Metrics http.Handler

	// Stream is mounted on GET /ws/predict when non-nil.
	Stream http.Handler

	// UIDir, when set, is served under /ui/. Unknown paths fall back to
	// index.html so client-side routes resolve.
	UIDir string
}

// Handler serves the prediction API.
type Handler struct {
	svc     *inference.Service
	alerts  *alerts.Engine
	maxBody int64
	mux     *http.ServeMux
}

// New creates the API handler and registers all routes. The returned handler
// is wrapped with request IDs, access logging and CORS.
func New(svc *inference.Service, al *alerts.Engine, opts Options) http.Handler {
	h := &Handler{svc: svc, alerts: al, maxBody: opts.MaxBodyBytes, mux: http.NewServeMux()}
	if h.maxBody <= 0 {
		h.maxBody = 1 << 20
	}

	h.mux.HandleFunc("/", h.root)
	h.mux.HandleFunc("/predict", h.predict)
	h.mux.HandleFunc("/healthz", h.health)
	h.mux.HandleFunc("/api/v1/model", h.model)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	if opts.Metrics != nil {
		h.mux.Handle("/metrics", getOnly(opts.Metrics))
	}
	if opts.Stream != nil {
		h.mux.Handle("/ws/predict", opts.Stream)
	}
	if opts.UIDir != "" {
		h.mux.Handle("/ui/", http.StripPrefix("/ui", staticUI(opts.UIDir)))
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{requestIDHeader},
	})

	return withRequestID(withAccessLog(c.Handler(h.mux)))
}

// --- route handlers ---------------------------------------------------------

// staticUI serves a pre-built web client from dir.
func staticUI(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		p := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if _, err := os.Stat(p); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	})
}

// root returns GET / as plain text.
func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, rootText) //nolint:errcheck
}

// predict returns POST /predict. Every failure is reported as
// {"error": "..."} with status 200; callers distinguish by payload shape.
func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		h.svc.Reject(r.Context(), metrics.TransportHTTP, err)
		jsonResp(w, http.StatusOK, types.ErrorResponse{Error: err.Error()})
		return
	}

	rul, err := h.svc.PredictJSON(r.Context(), metrics.TransportHTTP, body)
	if err != nil {
		jsonResp(w, http.StatusOK, types.ErrorResponse{Error: err.Error()})
		return
	}
	jsonResp(w, http.StatusOK, types.Prediction{PredictedRUL: rul})
}

// health returns GET /healthz. Artifacts are loaded before the listener
// starts, so a responding server is always ready.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	info := h.svc.Info()
	jsonResp(w, http.StatusOK, HealthResponse{Status: "ok", Model: info.Model, Scaler: info.Scaler})
}

// model returns GET /api/v1/model: a summary of the loaded artifacts.
func (h *Handler) model(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.svc.Info())
}

// listAlerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []*alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// --- helpers ----------------------------------------------------------------

func getOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response", "err", err)
	}
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, types.ErrorResponse{Error: msg})
}

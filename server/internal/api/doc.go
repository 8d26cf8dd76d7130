// Package api implements the HTTP surface of rulstack-server.
//
// New(svc, alerts, opts) returns an http.Handler that serves:
//
//	GET  /                "helloworld" (text/plain), used by clients as a wake-up ping
//	POST /predict         reading JSON in, {"predicted_rul": x} out
//	GET  /healthz         {"status":"ok"} plus the loaded model name
//	GET  /api/v1/model    artifact summary (layers, params, scaler kind)
//	GET  /api/v1/alerts   firing and recently resolved alerts
//	GET  /metrics         Prometheus exposition (when Options.Metrics is set)
//	GET  /ws/predict      WebSocket prediction stream (when Options.Stream is set)
//
// POST /predict never uses a distinct status code for failures: a missing
// field, a non-numeric value or a model error all answer 200 with
// {"error": "..."}. Other routes answer 405/404 with a JSON error body.
//
// Every response carries X-Request-ID and passes through the CORS layer
// (github.com/rs/cors); one access log line is written per request.
package api

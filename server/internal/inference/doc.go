// Package inference is the single prediction path shared by the HTTP,
// WebSocket and gRPC transports. It parses readings, runs the model engine,
// records Prometheus metrics and feeds successful predictions to the alert
// rules.
package inference

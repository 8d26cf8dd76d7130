// Package metrics instruments rulstack-server with Prometheus collectors.
//
// All collectors live on a private registry served by Handler() on
// GET /metrics. Prediction counters are labelled by transport
// (http | stream | grpc) and outcome (ok | invalid | error).
package metrics

// Package remote sends readings to a running rulstack-server.
//
// HTTPClient posts to /predict. GRPCClient calls rulstack.v1.Predictor/Predict
// and retries transient failures with truncated exponential backoff (1s
// doubling to 60s, ±25% jitter). A reading the server rejects is never
// retried; both clients report it as a *RejectedError.
package remote

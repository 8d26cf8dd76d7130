// Package rpc serves predictions over gRPC.
//
// Server implements rulrpc.PredictorServer on top of the shared inference
// service. A reading that fails validation returns codes.InvalidArgument with
// the same message POST /predict would put in its "error" field; a model
// failure returns codes.Internal.
//
// NewGRPCServer(svc) builds a *grpc.Server with the Predictor and the standard
// grpc.health.v1.Health service registered, and the Recovery and Logging
// unary interceptors installed.
package rpc

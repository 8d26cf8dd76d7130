package rpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/rulstack/rulstack/pkg/rulrpc"
	"github.com/rulstack/rulstack/pkg/types"
	"github.com/rulstack/rulstack/server/internal/inference"
	"github.com/rulstack/rulstack/server/internal/metrics"
)

// Server implements rulrpc.PredictorServer.
type Server struct {
	svc *inference.Service
}

// New creates a Server that predicts with svc.
func New(svc *inference.Service) *Server {
	return &Server{svc: svc}
}

// Predict is the unary RPC handler for rulstack.v1.Predictor/Predict.
func (s *Server) Predict(ctx context.Context, in *json.RawMessage) (*types.Prediction, error) {
	var body []byte
	if in != nil {
		body = *in
	}
	rul, err := s.svc.PredictJSON(ctx, metrics.TransportGRPC, body)
	if err != nil {
		if inference.IsInvalidReading(err) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &types.Prediction{PredictedRUL: rul}, nil
}

// NewGRPCServer returns a gRPC server with the Predictor and health services
// registered. Both report SERVING; callers flip the health server to
// NOT_SERVING with Shutdown before stopping.
func NewGRPCServer(svc *inference.Service, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(Recovery(), Logging()),
	}, opts...)
	srv := grpc.NewServer(opts...)

	rulrpc.RegisterPredictorServer(srv, New(svc))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(rulrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv, hs
}

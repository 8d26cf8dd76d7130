package rpc

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Recovery returns a UnaryServerInterceptor that turns a panic in the handler
// into codes.Internal instead of crashing the process.
func Recovery() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if p := recover(); p != nil {
				slog.ErrorContext(ctx, "rpc: handler panic",
					"method", info.FullMethod,
					"panic", p,
					"stack", string(debug.Stack()),
				)
				resp, err = nil, status.Errorf(codes.Internal, "internal error: %v", p)
			}
		}()
		return handler(ctx, req)
	}
}

// Logging returns a UnaryServerInterceptor that logs one line per call.
// Server-side failures log at warn, everything else at debug.
func Logging() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		level := slog.LevelDebug
		switch code {
		case codes.Internal, codes.Unknown, codes.Unavailable, codes.DataLoss:
			level = slog.LevelWarn
		}
		attrs := []any{
			"method", info.FullMethod,
			"code", code.String(),
			"elapsed", time.Since(start),
		}
		if err != nil {
			attrs = append(attrs, "err", status.Convert(err).Message())
		}
		slog.Log(ctx, level, "rpc: call", attrs...)
		return resp, err
	}
}

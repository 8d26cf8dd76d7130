package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/rulstack/rulstack/pkg/model"
	"github.com/rulstack/rulstack/server/internal/alerts"
	"github.com/rulstack/rulstack/server/internal/api"
	"github.com/rulstack/rulstack/server/internal/config"
	"github.com/rulstack/rulstack/server/internal/inference"
	"github.com/rulstack/rulstack/server/internal/metrics"
	"github.com/rulstack/rulstack/server/internal/rpc"
	"github.com/rulstack/rulstack/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file; empty uses built-in defaults")
	logLevel := flag.String("log-level", "", "override log.level (debug | info | warn | error)")
	uiDir := flag.String("ui-dir", "", "serve a pre-built web client from this directory under /ui/; leave empty to disable")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	slog.Info("rulstack-server starting", "config", *configPath)

	paths, err := cfg.Model.Resolve()
	if err != nil {
		slog.Error("failed to resolve artifact paths", "err", err)
		os.Exit(1)
	}

	// Artifacts are loaded once and kept for the life of the process.
	engine, err := model.Load(paths.Path, paths.ScalerPath)
	if err != nil {
		slog.Error("failed to load model artifacts",
			"model", paths.Path, "scaler", paths.ScalerPath, "err", err)
		os.Exit(1)
	}
	info := engine.Info()
	slog.Info("model artifacts loaded",
		"model", info.Model,
		"scaler", info.Scaler,
		"params", info.Params,
		"layers", len(info.Layers),
	)

	m := metrics.New()
	m.SetModelInfo(info.Model, info.Scaler)

	alertEngine, err := alerts.New(cfg.Alerts)
	if err != nil {
		slog.Error("invalid alert rules", "err", err)
		os.Exit(1)
	}

	svc := inference.New(engine, alertEngine, m)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Model.Watch {
		go watchArtifacts(ctx, paths, m)
	}

	// A listener failure ends the process with a non-zero status once
	// shutdown has run.
	errc := make(chan error, 2)

	// gRPC predictor, disabled with grpc_port: 0.
	var (
		grpcSrv   *grpc.Server
		healthSrv *health.Server
	)
	if cfg.Server.GRPCPort != 0 {
		grpcSrv, healthSrv = rpc.NewGRPCServer(svc)
		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort))
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			slog.Error("failed to listen on gRPC port", "addr", addr, "err", err)
			os.Exit(1)
		}
		go func() {
			slog.Info("gRPC predictor listening", "addr", addr)
			if err := grpcSrv.Serve(lis); err != nil {
				errc <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	opts := api.Options{
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		Metrics:        m.Handler(),
		UIDir:          *uiDir,
	}
	if cfg.Server.Stream {
		hub := ws.New(svc, m, ws.WithAllowedOrigins(cfg.Server.CORS.AllowedOrigins))
		go hub.Run(ctx)
		opts.Stream = hub
	}

	if *uiDir != "" {
		slog.Info("serving web client", "dir", *uiDir, "path", "/ui/")
	}

	httpSrv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.HTTPPort)),
		Handler: api.New(svc, alertEngine, opts),
	}
	serveHTTP(httpSrv, errc)

	failed := false
	select {
	case <-ctx.Done():
	case err := <-errc:
		slog.Error("listener failed", "err", err)
		failed = true
		cancel()
	}
	slog.Info("rulstack-server shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()

	if grpcSrv != nil {
		healthSrv.Shutdown()
		grpcSrv.GracefulStop()
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "err", err)
	}
	// Stream handlers are hijacked and outlive Shutdown; Wait stops new
	// webhook deliveries before draining the in-flight ones.
	alertEngine.Wait()

	if failed {
		stop()
		os.Exit(1)
	}
}

// serveHTTP runs srv in the background. Any error other than a clean
// shutdown is sent on errc.
func serveHTTP(srv *http.Server, errc chan<- error) {
	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
}

// newLogger builds the process logger from the log section of the config.
func newLogger(lc config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lc.SlogLevel()}
	if lc.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// watchArtifacts reports on-disk changes to the loaded artifacts. The running
// process keeps serving the copies it loaded at startup.
func watchArtifacts(ctx context.Context, paths config.ModelConfig, m *metrics.Metrics) {
	err := config.WatchArtifacts(ctx, []string{paths.Path, paths.ScalerPath}, func(path string) {
		m.ArtifactChanged()
		slog.Warn("model artifact changed on disk; restart to serve it", "path", path)
	})
	if err != nil {
		slog.Error("artifact watcher stopped", "err", err)
	}
}

package inference

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rulstack/rulstack/pkg/model"
	"github.com/rulstack/rulstack/pkg/types"
	"github.com/rulstack/rulstack/server/internal/alerts"
	"github.com/rulstack/rulstack/server/internal/metrics"
)

// Service runs predictions for every transport and records their outcome.
// It holds the artifacts loaded at startup for the life of the process.
type Service struct {
	engine  *model.Engine
	alerts  *alerts.Engine
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a Service. al may be nil when no alert rules are configured.
func New(eng *model.Engine, al *alerts.Engine, m *metrics.Metrics) *Service {
	return &Service{engine: eng, alerts: al, metrics: m, now: time.Now}
}

// Info describes the loaded artifacts.
func (s *Service) Info() model.Info {
	return s.engine.Info()
}

// PredictJSON parses a reading from a JSON object and predicts its RUL.
// Parse failures wrap types.ErrInvalidReading.
func (s *Service) PredictJSON(ctx context.Context, transport string, body []byte) (float64, error) {
	start := s.now()
	r, err := types.ParseReading(body)
	if err != nil {
		s.reject(ctx, transport, err, s.now().Sub(start))
		return 0, err
	}
	return s.predict(ctx, transport, r, start)
}

// Reject records a request that failed before a reading could be parsed,
// such as an unreadable or oversized body.
func (s *Service) Reject(ctx context.Context, transport string, err error) {
	s.reject(ctx, transport, err, 0)
}

func (s *Service) reject(ctx context.Context, transport string, err error, elapsed time.Duration) {
	s.metrics.ObservePrediction(transport, metrics.OutcomeInvalid, elapsed, 0)
	slog.DebugContext(ctx, "inference: rejected reading", "transport", transport, "err", err)
}

// Predict predicts the RUL of an already decoded reading.
func (s *Service) Predict(ctx context.Context, transport string, r types.Reading) (float64, error) {
	return s.predict(ctx, transport, r, s.now())
}

func (s *Service) predict(ctx context.Context, transport string, r types.Reading, start time.Time) (float64, error) {
	rul, err := s.engine.PredictReading(r)
	elapsed := s.now().Sub(start)
	if err != nil {
		s.metrics.ObservePrediction(transport, metrics.OutcomeError, elapsed, 0)
		slog.WarnContext(ctx, "inference: prediction failed", "transport", transport, "err", err)
		return 0, err
	}
	s.metrics.ObservePrediction(transport, metrics.OutcomeOK, elapsed, rul)
	slog.DebugContext(ctx, "inference: predicted",
		"transport", transport,
		"cycle_index", r.CycleIndex,
		"predicted_rul", rul,
		"elapsed", elapsed,
	)
	if s.alerts != nil {
		s.alerts.Evaluate(r, rul)
	}
	return rul, nil
}

// IsInvalidReading reports whether err was caused by the caller's input
// rather than by the model.
func IsInvalidReading(err error) bool {
	return errors.Is(err, types.ErrInvalidReading)
}

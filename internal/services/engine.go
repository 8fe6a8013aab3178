// Package services fronts the remediation engine. Callers hand in raw alerts;
// the facade normalizes them, resolves the autonomy mode and returns the
// finished execution report.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/engine"
	"github.com/SkySingh04/DreamOps-sub000/internal/models"
	"github.com/SkySingh04/DreamOps-sub000/internal/signal"
	"github.com/SkySingh04/DreamOps-sub000/internal/utils"
)

// ErrNotConfigured marks a facade constructed without a pipeline.
var ErrNotConfigured = errors.New("remediation pipeline not configured")

// Engine is the submission facade over the remediation pipeline.
type Engine struct {
	logger      *slog.Logger
	normalizer  *signal.Normalizer
	pipeline    *engine.Pipeline
	defaultMode models.AutonomyMode
	latencies   *utils.LatencyTracker
}

// NewEngine constructs the engine facade. defaultMode applies to submissions
// that do not carry their own mode; empty falls back to approval.
func NewEngine(logger *slog.Logger, pipeline *engine.Pipeline, defaultMode models.AutonomyMode) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultMode == "" {
		defaultMode = models.ModeApproval
	}
	return &Engine{
		logger:      logger,
		normalizer:  signal.NewNormalizer(),
		pipeline:    pipeline,
		defaultMode: defaultMode,
		latencies:   utils.NewLatencyTracker(1024),
	}
}

// Submit runs one alert through the engine. Malformed alerts and unknown
// modes fail before a run starts; once the pipeline takes over, failures are
// recorded inside the report instead of returned.
func (e *Engine) Submit(ctx context.Context, req models.SubmitRequest) (models.ExecutionReport, error) {
	if e == nil || e.pipeline == nil {
		return models.ExecutionReport{}, ErrNotConfigured
	}

	sig, err := e.normalizer.Normalize(req.Alert)
	if err != nil {
		return models.ExecutionReport{}, err
	}

	mode := req.Mode
	if mode == "" {
		mode = e.defaultMode
	}
	parsed, err := models.ParseAutonomyMode(string(mode))
	if err != nil {
		return models.ExecutionReport{}, fmt.Errorf("submit %s: %w", sig.ID, err)
	}

	correlation := req.CorrelationKey
	if correlation == "" {
		correlation = req.Alert.CorrelationKey
	}

	e.logger.Debug("incident submitted",
		slog.String("signal_id", sig.ID), slog.String("mode", string(parsed)))

	start := time.Now()
	report := e.pipeline.Run(ctx, engine.RunRequest{
		Signal:         sig,
		Mode:           parsed,
		CorrelationKey: correlation,
	})
	duration := time.Since(start)

	e.latencies.Observe(duration)
	if count := e.latencies.Count(); count >= 20 && count%20 == 0 {
		e.logger.Info("submit latency",
			slog.Duration("p95", e.latencies.Percentile(95)),
			slog.Duration("avg", e.latencies.Average()),
			slog.Int("samples", count))
	}

	return report, nil
}

// LatencyP95 returns the current p95 end-to-end submit latency.
func (e *Engine) LatencyP95() time.Duration {
	if e == nil || e.latencies == nil {
		return 0
	}
	return e.latencies.Percentile(95)
}

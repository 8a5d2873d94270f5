package engine

import (
	"context"
	"log/slog"
	"time"
)

// Retrainer periodically rebuilds the pipeline's outlier model. It runs
// concurrently with scoring; the two meet only at the atomic model swap
// inside Pipeline.Retrain.
type Retrainer struct {
	logger   *slog.Logger
	pipeline *Pipeline
	interval time.Duration
}

// NewRetrainer constructs a retrainer. A zero interval means the pipeline
// retrains per ingestion cycle and Run exits immediately.
func NewRetrainer(logger *slog.Logger, pipeline *Pipeline, interval time.Duration) *Retrainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrainer{logger: logger, pipeline: pipeline, interval: interval}
}

// Run ticks until the context is cancelled.
func (r *Retrainer) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("retrainer in per-cycle mode, timer disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("retrainer stopped")
			return
		case <-ticker.C:
			if err := r.pipeline.Retrain(ctx); err != nil {
				r.logger.Error("retrain failed", slog.Any("error", err))
			}
		}
	}
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pulsestack/pulse-sentinel/internal/alerting"
	"github.com/pulsestack/pulse-sentinel/internal/config"
	"github.com/pulsestack/pulse-sentinel/internal/features"
	"github.com/pulsestack/pulse-sentinel/internal/forest"
	"github.com/pulsestack/pulse-sentinel/internal/metrics"
	"github.com/pulsestack/pulse-sentinel/internal/models"
	"github.com/pulsestack/pulse-sentinel/internal/store"
)

// Pipeline runs the synchronous per-sample chain: feature extraction,
// scoring, classification, dispatch. The live outlier model is an atomically
// replaceable snapshot; scoring loads the pointer once per call and retraining
// publishes a fully built replacement, so readers never observe a mix of old
// and new trees.
type Pipeline struct {
	logger     *slog.Logger
	extractor  *features.Extractor
	classifier *SeverityClassifier
	dispatcher *alerting.Dispatcher
	events     *store.EventStore

	model     atomic.Pointer[forest.Model]
	retrainMu sync.Mutex

	forestOpts forest.Options
	minTrain   int
	perCycle   bool
}

// NewPipeline wires the scoring path together. events may be nil when
// persistence is disabled.
func NewPipeline(
	logger *slog.Logger,
	extractor *features.Extractor,
	classifier *SeverityClassifier,
	dispatcher *alerting.Dispatcher,
	events *store.EventStore,
	cfg config.DetectorConfig,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	minTrain := cfg.MinTrainSamples
	if minTrain <= 0 {
		minTrain = cfg.MaxSamples
	}
	return &Pipeline{
		logger:     logger,
		extractor:  extractor,
		classifier: classifier,
		dispatcher: dispatcher,
		events:     events,
		forestOpts: forest.Options{
			NumTrees:   cfg.NumTrees,
			SampleSize: cfg.MaxSamples,
			MaxDepth:   cfg.MaxTreeDepth,
		},
		minTrain: minTrain,
		perCycle: cfg.RetrainInterval == 0,
	}
}

// Submit scores one measurement and routes the resulting event through the
// dispatcher. It never fails the caller: insufficient history yields a
// low-confidence vector, a missing model yields an Unknown-tier event.
func (p *Pipeline) Submit(ctx context.Context, sample models.MeasurementSample) models.AnomalyEvent {
	metrics.ObserveSample(sample.Source)

	vec := p.extractor.Ingest(sample)

	score := 0.0
	severity := models.SeverityUnknown
	if model := p.model.Load(); model != nil {
		score = model.Score(vec.Values())
		severity = p.classifier.Classify(score)
	}

	event := models.AnomalyEvent{
		ID:        uuid.NewString(),
		Source:    sample.Source,
		Timestamp: sample.Timestamp,
		LatencyMs: sample.LatencyMs,
		Score:     score,
		Severity:  severity,
		Details:   describe(vec),
	}

	metrics.ObserveEvent(severity.String())
	p.dispatcher.Handle(ctx, event, sample.Success)
	p.persistEvent(ctx, event)

	if p.perCycle {
		if err := p.Retrain(ctx); err != nil {
			p.logger.Error("per-cycle retrain failed", slog.Any("error", err))
		}
	}

	return event
}

// Retrain rebuilds the ensemble from the trailing window of full-confidence
// feature vectors and swaps it in atomically. A window smaller than the
// configured minimum defers the update and keeps the previous snapshot live;
// that is a skip, not an error.
func (p *Pipeline) Retrain(ctx context.Context) error {
	p.retrainMu.Lock()
	defer p.retrainMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	window := p.extractor.TrainingWindow(true)
	if len(window) < p.minTrain {
		p.logger.Warn("retrain skipped, insufficient samples",
			slog.Int("have", len(window)), slog.Int("need", p.minTrain))
		metrics.ObserveRetrain(0, metrics.OutcomeSkipped)
		return nil
	}

	vectors := make([][]float64, len(window))
	for i, v := range window {
		vectors[i] = v.Values()
	}

	start := time.Now()
	model, err := forest.Train(vectors, p.forestOpts)
	if err != nil {
		metrics.ObserveRetrain(0, metrics.OutcomeError)
		return fmt.Errorf("train model: %w", err)
	}

	p.model.Store(model)
	duration := time.Since(start)
	metrics.ObserveRetrain(duration, metrics.OutcomeSuccess)
	metrics.SetModelTrainedAt(model.TrainedAt())
	p.logger.Info("model retrained",
		slog.Int("vectors", len(vectors)),
		slog.Int("trees", model.NumTrees()),
		slog.Duration("took", duration))
	return nil
}

// Model returns the live snapshot, or nil before the first successful train.
func (p *Pipeline) Model() *forest.Model {
	return p.model.Load()
}

// Extractor exposes the feature extractor for status surfaces.
func (p *Pipeline) Extractor() *features.Extractor {
	return p.extractor
}

func (p *Pipeline) persistEvent(ctx context.Context, event models.AnomalyEvent) {
	if p.events == nil || !p.events.Enabled() {
		return
	}
	// Only anomalous events are worth the write: None-tier traffic dominates.
	if event.Severity.Rank() < models.SeverityMedium.Rank() {
		return
	}
	if err := p.events.AppendEvent(ctx, event); err != nil {
		p.logger.Warn("persist event failed", slog.String("source", event.Source), slog.Any("error", err))
	}
}

func describe(vec models.FeatureVector) string {
	return fmt.Sprintf("Response: %.0fms, Expected: %.0fms, Deviation: %.1f%%, Z-score: %.2f",
		vec.LatencyMs, vec.ShortMean, vec.PctDeviation, vec.ZScore)
}

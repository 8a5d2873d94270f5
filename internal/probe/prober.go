// Package probe ships a thin measurement producer: it pings configured HTTP
// endpoints on an interval and submits the results to the scoring pipeline.
// The engine never depends on it; external probers can push samples through
// the ingest API instead.
package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pulsestack/pulse-sentinel/internal/config"
	"github.com/pulsestack/pulse-sentinel/internal/models"
	"github.com/pulsestack/pulse-sentinel/internal/utils"
)

// Submitter is the pipeline boundary the prober feeds.
type Submitter interface {
	Submit(ctx context.Context, sample models.MeasurementSample) models.AnomalyEvent
}

// Prober measures configured targets on a fixed interval.
type Prober struct {
	logger     *slog.Logger
	submitter  Submitter
	targets    []config.ProbeTarget
	interval   time.Duration
	httpClient *http.Client
}

// NewProber constructs a prober from config.
func NewProber(logger *slog.Logger, submitter Submitter, cfg config.ProbesConfig) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Prober{
		logger:     logger,
		submitter:  submitter,
		targets:    cfg.Targets,
		interval:   interval,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Run probes all targets once per interval until the context is cancelled.
// Targets within one round are probed concurrently.
func (p *Prober) Run(ctx context.Context) {
	if len(p.targets) == 0 {
		p.logger.Info("prober has no targets, exiting")
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.round(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("prober stopped")
			return
		case <-ticker.C:
			p.round(ctx)
		}
	}
}

func (p *Prober) round(ctx context.Context) {
	var wg sync.WaitGroup
	for _, target := range p.targets {
		wg.Add(1)
		go func(target config.ProbeTarget) {
			defer wg.Done()
			sample := p.measure(ctx, target)
			if ctx.Err() != nil {
				return
			}
			event := p.submitter.Submit(ctx, sample)
			p.logger.Debug("probe scored",
				slog.String("source", sample.Source),
				slog.Float64("latency_ms", sample.LatencyMs),
				slog.String("severity", event.Severity.String()))
		}(target)
	}
	wg.Wait()
}

func (p *Prober) measure(ctx context.Context, target config.ProbeTarget) models.MeasurementSample {
	sample := models.MeasurementSample{
		Source:    target.Name,
		Timestamp: time.Now().UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		sample.ErrorMessage = fmt.Sprintf("build request: %v", err)
		return sample
	}

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	sample.LatencyMs = utils.SinceMs(start)
	if err != nil {
		sample.ErrorMessage = err.Error()
		return sample
	}
	defer resp.Body.Close()

	size, _ := io.Copy(io.Discard, resp.Body)
	sample.ResponseSize = size
	sample.StatusCode = resp.StatusCode
	sample.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !sample.Success {
		sample.ErrorMessage = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return sample
}

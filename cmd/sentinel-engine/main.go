package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsestack/pulse-sentinel/internal/alerting"
	"github.com/pulsestack/pulse-sentinel/internal/api"
	"github.com/pulsestack/pulse-sentinel/internal/config"
	"github.com/pulsestack/pulse-sentinel/internal/engine"
	"github.com/pulsestack/pulse-sentinel/internal/features"
	"github.com/pulsestack/pulse-sentinel/internal/metrics"
	"github.com/pulsestack/pulse-sentinel/internal/notify"
	"github.com/pulsestack/pulse-sentinel/internal/probe"
	"github.com/pulsestack/pulse-sentinel/internal/store"
	"github.com/pulsestack/pulse-sentinel/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting pulse-sentinel", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var provider store.Provider = store.NoopProvider{}
	if cfg.Store.Enabled && cfg.Store.Addr != "" {
		valkey, err := store.NewValkeyProvider(store.ValkeyConfig{
			Addr:         cfg.Store.Addr,
			Username:     cfg.Store.Username,
			Password:     cfg.Store.Password,
			DB:           cfg.Store.DB,
			DialTimeout:  cfg.Store.DialTimeout,
			ReadTimeout:  cfg.Store.ReadTimeout,
			WriteTimeout: cfg.Store.WriteTimeout,
			MaxRetries:   cfg.Store.MaxRetries,
			TLS:          cfg.Store.TLS,
		})
		if err != nil {
			logger.Warn("event store unavailable, persistence disabled", slog.Any("error", err))
		} else {
			provider = valkey
		}
	}
	events := store.NewEventStore(provider, cfg.Store.RecentEvents, cfg.Store.EventTTL)
	defer events.Close()

	sender, err := buildSender(cfg, logger)
	if err != nil {
		logger.Error("failed to build notification transport", slog.Any("error", err))
		os.Exit(1)
	}
	asyncSender := notify.NewAsync(sender, logger,
		cfg.Alerting.QueueSize, cfg.Alerting.SendTimeout, cfg.Alerting.RetryBackoff)
	defer asyncSender.Close()

	classifier, err := engine.NewSeverityClassifier(cfg.Severity.CriticalThreshold, cfg.Severity.HighThreshold)
	if err != nil {
		logger.Error("invalid severity configuration", slog.Any("error", err))
		os.Exit(1)
	}

	dispatcher := alerting.NewDispatcher(logger, asyncSender, events, cfg.Alerting.Cooldown, cfg.Alerting.Recipients)
	restoreAlertState(dispatcher, events, cfg, logger)

	extractor := features.NewExtractor(cfg.Detector.ShortWindow, cfg.Detector.LongWindow, 0)
	pipeline := engine.NewPipeline(logger, extractor, classifier, dispatcher, events, cfg.Detector)
	retrainer := engine.NewRetrainer(logger, pipeline, cfg.Detector.RetrainInterval)
	reporter := alerting.NewReporter(logger, dispatcher, asyncSender, cfg.Alerting.DigestInterval, cfg.Alerting.Recipients)

	handlers := api.NewHandlers(logger, pipeline, dispatcher, events)
	server, err := api.NewServer(cfg.Server, handlers)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	var tasks sync.WaitGroup
	tasks.Add(2)
	go func() {
		defer tasks.Done()
		retrainer.Run(ctx)
	}()
	go func() {
		defer tasks.Done()
		reporter.Run(ctx)
	}()

	if cfg.Probes.Enabled {
		tasks.Add(1)
		go func() {
			defer tasks.Done()
			prober := probe.NewProber(logger, pipeline, cfg.Probes)
			prober.Run(ctx)
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	tasks.Wait()

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("pulse-sentinel stopped")
}

func buildSender(cfg *config.Config, logger *slog.Logger) (notify.Sender, error) {
	switch cfg.Notify.Kind {
	case "webhook":
		return notify.NewWebhookSender(cfg.Notify.Webhook.URL, cfg.Notify.Webhook.Headers, cfg.Notify.Webhook.Timeout), nil
	case "smtp":
		return notify.NewSMTPSender(
			cfg.Notify.SMTP.Host,
			cfg.Notify.SMTP.Port,
			cfg.Notify.SMTP.Username,
			cfg.Notify.SMTP.Password,
			cfg.Notify.SMTP.From,
		), nil
	default:
		logger.Info("using stdout notification transport")
		return notify.NewStdoutSender(nil), nil
	}
}

// restoreAlertState reloads cooldown state for configured probe targets so a
// restart does not re-alert inside an open cooldown window.
func restoreAlertState(dispatcher *alerting.Dispatcher, events *store.EventStore, cfg *config.Config, logger *slog.Logger) {
	if !events.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, target := range cfg.Probes.Targets {
		rec, err := events.LoadAlertState(ctx, target.Name)
		if err != nil {
			if !store.IsNotFound(err) {
				logger.Warn("load alert state failed", slog.String("source", target.Name), slog.Any("error", err))
			}
			continue
		}
		dispatcher.RestoreAlertState(rec)
	}
}

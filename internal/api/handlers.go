package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/pulsestack/pulse-sentinel/internal/alerting"
	"github.com/pulsestack/pulse-sentinel/internal/engine"
	"github.com/pulsestack/pulse-sentinel/internal/models"
	"github.com/pulsestack/pulse-sentinel/internal/store"
	"github.com/pulsestack/pulse-sentinel/internal/utils"
)

// Handlers bundles the HTTP endpoints over the pipeline and its collaborators.
type Handlers struct {
	logger     *slog.Logger
	pipeline   *engine.Pipeline
	dispatcher *alerting.Dispatcher
	events     *store.EventStore
}

// NewHandlers constructs the HTTP handler set.
func NewHandlers(logger *slog.Logger, pipeline *engine.Pipeline, dispatcher *alerting.Dispatcher, events *store.EventStore) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		logger:     logger,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		events:     events,
	}
}

// SubmitSample accepts one measurement from an external prober and runs it
// through the scoring pipeline.
func (h *Handlers) SubmitSample(w http.ResponseWriter, r *http.Request) {
	var sample models.MeasurementSample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		writeError(w, http.StatusBadRequest, "invalid sample payload")
		return
	}
	if sample.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}
	if sample.LatencyMs < 0 {
		writeError(w, http.StatusBadRequest, "latency_ms must not be negative")
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}

	event := h.pipeline.Submit(r.Context(), sample)
	writeJSON(w, http.StatusAccepted, event)
}

type sourceStatus struct {
	Source        string     `json:"source"`
	BufferedCount int        `json:"buffered_samples"`
	LastAlertTime *time.Time `json:"last_alert_time,omitempty"`
	Suppressed    int        `json:"suppressed"`
}

// ListSources reports every tracked source with its buffer depth and
// cooldown state.
func (h *Handlers) ListSources(w http.ResponseWriter, r *http.Request) {
	names := h.pipeline.Extractor().Sources()
	sort.Strings(names)

	sources := make([]sourceStatus, 0, len(names))
	for _, name := range names {
		status := sourceStatus{
			Source:        name,
			BufferedCount: h.pipeline.Extractor().SampleCount(name),
		}
		if lastAlert, suppressed, ok := h.dispatcher.AlertState(name); ok {
			if !lastAlert.IsZero() {
				status.LastAlertTime = &lastAlert
			}
			status.Suppressed = suppressed
		}
		sources = append(sources, status)
	}

	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

// RecentAnomalies lists persisted anomaly events, newest first. An optional
// since parameter (RFC3339) drops older events. Without a backing store the
// list is empty.
func (h *Handlers) RecentAnomalies(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := utils.ParseRFC3339(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		since = t
	}

	events, err := h.events.RecentEvents(r.Context(), limit)
	if err != nil {
		h.logger.Error("list recent anomalies failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list anomalies")
		return
	}
	if !since.IsZero() {
		filtered := events[:0]
		for _, event := range events {
			if event.Timestamp.Before(since) {
				continue
			}
			filtered = append(filtered, event)
		}
		events = filtered
	}
	if events == nil {
		events = []models.AnomalyEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events":      events,
		"persistence": h.events.Enabled(),
	})
}

type statusResponse struct {
	ModelTrained   bool       `json:"model_trained"`
	ModelTrainedAt *time.Time `json:"model_trained_at,omitempty"`
	Trees          int        `json:"trees,omitempty"`
	SampleSize     int        `json:"sample_size,omitempty"`
	Sources        int        `json:"sources"`
}

// Status reports the live model snapshot and tracked-source count.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Sources: len(h.pipeline.Extractor().Sources())}
	if model := h.pipeline.Model(); model != nil {
		trainedAt := model.TrainedAt()
		resp.ModelTrained = true
		resp.ModelTrainedAt = &trainedAt
		resp.Trees = model.NumTrees()
		resp.SampleSize = model.SampleSize()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

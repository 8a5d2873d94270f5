package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pulsestack/pulse-sentinel/internal/alerting"
	"github.com/pulsestack/pulse-sentinel/internal/config"
	"github.com/pulsestack/pulse-sentinel/internal/engine"
	"github.com/pulsestack/pulse-sentinel/internal/features"
	"github.com/pulsestack/pulse-sentinel/internal/models"
	"github.com/pulsestack/pulse-sentinel/internal/store"
)

type nullSender struct {
	mu   sync.Mutex
	sent int
}

func (s *nullSender) Send(context.Context, models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return nil
}

func (s *nullSender) Close() error { return nil }

func newTestHandlers(t *testing.T) (*Handlers, *engine.Pipeline) {
	t.Helper()
	classifier, err := engine.NewSeverityClassifier(-0.15, -0.05)
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	events := store.NewEventStore(store.NoopProvider{}, 10, 0)
	dispatcher := alerting.NewDispatcher(nil, &nullSender{}, events, 600*time.Second, nil)
	extractor := features.NewExtractor(10, 60, 0)
	pipeline := engine.NewPipeline(nil, extractor, classifier, dispatcher, events, config.DetectorConfig{
		NumTrees:        50,
		MaxSamples:      64,
		ShortWindow:     10,
		LongWindow:      60,
		MinTrainSamples: 20,
		RetrainInterval: time.Minute,
	})
	return NewHandlers(nil, pipeline, dispatcher, events), pipeline
}

func TestSubmitSampleAccepted(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	body := `{"source":"api-a","latency_ms":120,"status_code":200,"success":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/samples", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handlers.SubmitSample(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var event models.AnomalyEvent
	if err := json.NewDecoder(rec.Body).Decode(&event); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if event.Source != "api-a" || event.ID == "" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Severity != models.SeverityUnknown {
		t.Fatalf("expected unknown tier before first train, got %s", event.Severity)
	}
	if event.Timestamp.IsZero() {
		t.Fatalf("missing timestamp must default to now")
	}
}

func TestSubmitSampleRejectsBadInput(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{not json`},
		{"missing source", `{"latency_ms":120}`},
		{"negative latency", `{"source":"api-a","latency_ms":-5}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/samples", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			handlers.SubmitSample(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestListSources(t *testing.T) {
	handlers, pipeline := newTestHandlers(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		pipeline.Submit(context.Background(), models.MeasurementSample{
			Source: "api-b", Timestamp: base.Add(time.Duration(i) * time.Second), LatencyMs: 100,
		})
	}
	pipeline.Submit(context.Background(), models.MeasurementSample{
		Source: "api-a", Timestamp: base, LatencyMs: 100,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sources", nil)
	rec := httptest.NewRecorder()
	handlers.ListSources(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Sources []struct {
			Source        string `json:"source"`
			BufferedCount int    `json:"buffered_samples"`
		} `json:"sources"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(resp.Sources))
	}
	if resp.Sources[0].Source != "api-a" || resp.Sources[1].Source != "api-b" {
		t.Fatalf("sources must be sorted: %+v", resp.Sources)
	}
	if resp.Sources[1].BufferedCount != 5 {
		t.Fatalf("expected 5 buffered samples for api-b, got %d", resp.Sources[1].BufferedCount)
	}
}

func TestRecentAnomalies(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/anomalies/recent", nil)
	rec := httptest.NewRecorder()
	handlers.RecentAnomalies(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Events      []models.AnomalyEvent `json:"events"`
		Persistence bool                  `json:"persistence"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Persistence {
		t.Fatalf("noop store must report persistence disabled")
	}
	if resp.Events == nil {
		t.Fatalf("events must encode as an empty list, not null")
	}
}

func TestRecentAnomaliesRejectsBadParams(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	for _, query := range []string{"limit=abc", "limit=0", "limit=-3", "since=yesterday"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/anomalies/recent?"+query, nil)
		rec := httptest.NewRecorder()
		handlers.RecentAnomalies(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, rec.Code)
		}
	}
}

func TestStatus(t *testing.T) {
	handlers, pipeline := newTestHandlers(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	handlers.Status(rec, req)

	var before struct {
		ModelTrained bool `json:"model_trained"`
		Sources      int  `json:"sources"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&before); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if before.ModelTrained {
		t.Fatalf("model must not report trained before first retrain")
	}

	for i := 0; i < 40; i++ {
		pipeline.Submit(context.Background(), models.MeasurementSample{
			Source:    "api-a",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			LatencyMs: 100 + float64(i%7),
		})
	}
	if err := pipeline.Retrain(context.Background()); err != nil {
		t.Fatalf("retrain: %v", err)
	}

	rec = httptest.NewRecorder()
	handlers.Status(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	var after struct {
		ModelTrained bool `json:"model_trained"`
		Trees        int  `json:"trees"`
		Sources      int  `json:"sources"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&after); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !after.ModelTrained || after.Trees != 50 || after.Sources != 1 {
		t.Fatalf("unexpected status after retrain: %+v", after)
	}
}

func TestHealth(t *testing.T) {
	handlers, _ := newTestHandlers(t)
	rec := httptest.NewRecorder()
	handlers.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

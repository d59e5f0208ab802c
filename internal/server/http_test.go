package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fenlow/streampulse/internal/aggregate"
	"github.com/fenlow/streampulse/internal/engine"
	"github.com/fenlow/streampulse/internal/forward"
	"github.com/fenlow/streampulse/internal/model"
)

type nopForwarder struct{}

func (nopForwarder) Enqueue(*forward.Record) {}

func newTestServer() (*Server, *engine.Engine) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(aggregate.New(), nopForwarder{}, logger)
	return New(eng, logger), eng
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer()
	w := doRequest(t, srv.NewHTTPHandler(), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody[map[string]string](t, w)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleStats_Empty(t *testing.T) {
	srv, _ := newTestServer()
	w := doRequest(t, srv.NewHTTPHandler(), http.MethodGet, "/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	stats := decodeBody[statsResponse](t, w)
	if stats.TotalReceived != 0 || stats.SuccessRate != 0 {
		t.Errorf("empty stats = %+v", stats)
	}
}

func TestHandleStats_AfterProcessing(t *testing.T) {
	srv, eng := newTestServer()
	h := srv.NewHTTPHandler()

	eng.Process(&model.TelemetryEvent{
		UserID: "u1", SessionID: "s1", Feature: "checkout",
		Metrics: model.NewMetricsBag(map[string]any{"errorCount": 5, "clickCount": 0}),
	})
	eng.ProcessPayload([]byte(`garbage`), engine.Meta{})

	stats := decodeBody[statsResponse](t, doRequest(t, h, http.MethodGet, "/stats", ""))
	if stats.ProcessedCount != 1 || stats.DecodeErrorCount != 1 {
		t.Errorf("counters = %+v", stats)
	}
	if stats.TotalReceived != 2 {
		t.Errorf("TotalReceived = %d, want 2", stats.TotalReceived)
	}
	if stats.SuccessRate != 0.5 {
		t.Errorf("SuccessRate = %v, want 0.5", stats.SuccessRate)
	}
	// errorCount 5 fires HIGH_ERROR_RATE and LOW_ENGAGEMENT.
	if stats.AnomalyCount != 2 {
		t.Errorf("AnomalyCount = %d, want 2", stats.AnomalyCount)
	}
	if stats.FeatureAnomalyTally["checkout"] != 2 {
		t.Errorf("feature tally = %v", stats.FeatureAnomalyTally)
	}
}

func TestHandleEngagementHistory(t *testing.T) {
	srv, eng := newTestServer()
	h := srv.NewHTTPHandler()

	eng.Process(&model.TelemetryEvent{
		UserID: "u1", SessionID: "s1", Feature: "checkout",
		Metrics: model.NewMetricsBag(map[string]any{"clickCount": 5}),
	})
	eng.Process(&model.TelemetryEvent{
		UserID: "u2", SessionID: "s1", Feature: "search",
		Metrics: model.NewMetricsBag(map[string]any{}),
	})

	hist := decodeBody[map[string][]*model.EngagementRecord](t,
		doRequest(t, h, http.MethodGet, "/engagement/u1", ""))
	if len(hist) != 1 || len(hist["u1_s1"]) != 1 {
		t.Errorf("history = %v", hist)
	}

	empty := decodeBody[map[string][]*model.EngagementRecord](t,
		doRequest(t, h, http.MethodGet, "/engagement/nobody", ""))
	if len(empty) != 0 {
		t.Errorf("expected empty history, got %v", empty)
	}
}

func TestHandleAnomalyHistory(t *testing.T) {
	srv, eng := newTestServer()
	h := srv.NewHTTPHandler()

	eng.Process(&model.TelemetryEvent{
		UserID: "u1", SessionID: "s1", Feature: "checkout",
		Metrics: model.NewMetricsBag(map[string]any{"clickCount": 30}),
	})

	hist := decodeBody[map[string][]*model.AnomalyRecord](t,
		doRequest(t, h, http.MethodGet, "/anomalies/u1", ""))
	recs := hist["u1_s1"]
	if len(recs) != 1 {
		t.Fatalf("anomaly history = %v", hist)
	}
	if recs[0].AnomalyType != model.AnomalyUnusualClickPattern {
		t.Errorf("anomaly type = %s", recs[0].AnomalyType)
	}
}

func TestHandleFeatureEngagement(t *testing.T) {
	srv, eng := newTestServer()
	h := srv.NewHTTPHandler()

	eng.Process(&model.TelemetryEvent{
		UserID: "u1", SessionID: "s1", Feature: "checkout",
		Metrics: model.NewMetricsBag(map[string]any{"clickCount": 5}),
	})

	body := decodeBody[map[string]json.RawMessage](t,
		doRequest(t, h, http.MethodGet, "/features/engagement", ""))
	if _, ok := body["featureEngagementScores"]; !ok {
		t.Error("missing featureEngagementScores")
	}
	if _, ok := body["featureAnomalyTallies"]; !ok {
		t.Error("missing featureAnomalyTallies")
	}
}

func TestHandleTestAnomaly_Defaults(t *testing.T) {
	srv, eng := newTestServer()
	h := srv.NewHTTPHandler()

	w := doRequest(t, h, http.MethodPost, "/test-anomaly", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeBody[map[string]string](t, w)
	if !strings.HasPrefix(resp["sessionId"], "ev-") {
		t.Errorf("sessionId = %q, want generated ev- id", resp["sessionId"])
	}

	// The default payload drives all four anomaly rules.
	counters := eng.Store().Counters()
	if counters.Processed != 1 {
		t.Errorf("Processed = %d, want 1", counters.Processed)
	}
	if counters.Anomalies != 4 {
		t.Errorf("Anomalies = %d, want 4", counters.Anomalies)
	}
	hist := eng.Store().EngagementHistory("test-user")
	if len(hist) != 1 {
		t.Errorf("expected one session history for test-user, got %v", hist)
	}
}

func TestHandleTestAnomaly_CustomBody(t *testing.T) {
	srv, eng := newTestServer()
	h := srv.NewHTTPHandler()

	w := doRequest(t, h, http.MethodPost, "/test-anomaly", `{
		"userId": "alice", "sessionId": "sess-9", "feature": "billing",
		"metrics": {"clickCount": 2}
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	counters := eng.Store().Counters()
	if counters.Anomalies != 0 {
		t.Errorf("benign metrics produced %d anomalies", counters.Anomalies)
	}
	hist := eng.Store().EngagementHistory("alice")
	if len(hist["alice_sess-9"]) != 1 {
		t.Errorf("history = %v", hist)
	}
}

func TestHandleTestAnomaly_InvalidBody(t *testing.T) {
	srv, _ := newTestServer()
	h := srv.NewHTTPHandler()

	w := doRequest(t, h, http.MethodPost, "/test-anomaly", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer()
	w := doRequest(t, srv.NewHTTPHandler(), http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "streampulse_processed_total") {
		t.Error("exposition missing streampulse_processed_total")
	}
}

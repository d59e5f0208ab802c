package server

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fenlow/streampulse/internal/idgen"
	"github.com/fenlow/streampulse/internal/model"
)

// NewHTTPHandler returns an http.Handler with all control-surface routes
// registered.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /engagement/{userId}", s.handleEngagementHistory)
	mux.HandleFunc("GET /anomalies/{userId}", s.handleAnomalyHistory)
	mux.HandleFunc("GET /features/engagement", s.handleFeatureEngagement)
	mux.HandleFunc("POST /test-anomaly", s.handleTestAnomaly)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statsResponse is the GET /stats payload. Counter values are reported
// verbatim; totalReceived and successRate are derived.
type statsResponse struct {
	ProcessedCount      int64              `json:"processedCount"`
	DecodeErrorCount    int64              `json:"decodeErrorCount"`
	AnomalyCount        int64              `json:"anomalyCount"`
	TotalReceived       int64              `json:"totalReceived"`
	SuccessRate         float64            `json:"successRate"`
	FeatureEngagement   map[string]float64 `json:"featureEngagementScores"`
	FeatureAnomalyTally map[string]int     `json:"featureAnomalyTallies"`
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	store := s.proc.Store()
	counters := store.Counters()
	scores, tally := store.FeatureAggregates()

	resp := statsResponse{
		ProcessedCount:      counters.Processed,
		DecodeErrorCount:    counters.DecodeErrors,
		AnomalyCount:        counters.Anomalies,
		TotalReceived:       counters.Processed + counters.DecodeErrors,
		FeatureEngagement:   scores,
		FeatureAnomalyTally: tally,
	}
	if resp.TotalReceived > 0 {
		resp.SuccessRate = float64(counters.Processed) / float64(resp.TotalReceived)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEngagementHistory handles GET /engagement/{userId}.
func (s *Server) handleEngagementHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	writeJSON(w, http.StatusOK, s.proc.Store().EngagementHistory(userID))
}

// handleAnomalyHistory handles GET /anomalies/{userId}.
func (s *Server) handleAnomalyHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	writeJSON(w, http.StatusOK, s.proc.Store().AnomalyHistory(userID))
}

// handleFeatureEngagement handles GET /features/engagement.
func (s *Server) handleFeatureEngagement(w http.ResponseWriter, _ *http.Request) {
	scores, tally := s.proc.Store().FeatureAggregates()
	writeJSON(w, http.StatusOK, map[string]any{
		"featureEngagementScores": scores,
		"featureAnomalyTallies":   tally,
	})
}

// testAnomalyInput is the optional POST /test-anomaly body. Absent fields
// fall back to defaults that drive all four anomaly rules.
type testAnomalyInput struct {
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId"`
	Feature   string         `json:"feature"`
	Action    string         `json:"action"`
	Metrics   map[string]any `json:"metrics"`
}

// handleTestAnomaly handles POST /test-anomaly. It injects one synthetic
// event directly into the processing pipeline, bypassing the queue.
func (s *Server) handleTestAnomaly(w http.ResponseWriter, r *http.Request) {
	in := testAnomalyInput{
		UserID:  "test-user",
		Feature: "test-feature",
		Action:  "test-action",
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if in.SessionID == "" {
		id, err := idgen.Generate()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		in.SessionID = id
	}
	if in.Metrics == nil {
		in.Metrics = map[string]any{
			"responseTime":    6000.0,
			"errorCount":      5,
			"clickCount":      25,
			"sessionDuration": 10.0,
		}
	}

	ev := &model.TelemetryEvent{
		UserID:    in.UserID,
		SessionID: in.SessionID,
		Feature:   in.Feature,
		Action:    in.Action,
		Metrics:   model.NewMetricsBag(in.Metrics),
	}
	s.proc.Process(ev)
	s.logger.Info("injected synthetic event",
		"user_id", ev.UserID, "session_id", ev.SessionID, "feature", ev.Feature)

	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "test anomaly data processed",
		"sessionId":  ev.SessionID,
		"checkStats": "use /stats to see the anomaly count",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

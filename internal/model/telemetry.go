// Package model defines the telemetry event and derived record types shared
// across the processing pipeline.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SessionKeySeparator joins userId and sessionId into a compound history key.
const SessionKeySeparator = "_"

// TelemetryEvent is one decoded queue message. It is immutable once decoded
// and lives only for the duration of processing that message.
type TelemetryEvent struct {
	UserID    string
	SessionID string
	Feature   string
	Action    string
	Metrics   MetricsBag
}

// SessionKey returns the compound key indexing per-session history.
func (e *TelemetryEvent) SessionKey() string {
	return SessionKey(e.UserID, e.SessionID)
}

// SessionKey builds the compound history key for a user/session pair.
func SessionKey(userID, sessionID string) string {
	return userID + SessionKeySeparator + sessionID
}

// HasSessionPrefix reports whether a compound key belongs to the given user.
func HasSessionPrefix(key, userID string) bool {
	return strings.HasPrefix(key, userID+SessionKeySeparator)
}

// MetricsBag is the normalized view over an event's dynamic metrics mapping.
// Known keys are extracted with type coercion; non-numeric values count as
// absent. The raw mapping is retained untouched for downstream forwarding.
type MetricsBag struct {
	raw map[string]any
}

// Wire-format metric keys. The producer contract is fixed: responseTime is
// milliseconds, sessionDuration is seconds.
const (
	keyResponseTime    = "responseTime"
	keyErrorCount      = "errorCount"
	keyClickCount      = "clickCount"
	keySessionDuration = "sessionDuration"
)

// NewMetricsBag wraps a raw metrics mapping. The caller must not mutate the
// map afterwards.
func NewMetricsBag(raw map[string]any) MetricsBag {
	return MetricsBag{raw: raw}
}

// Raw returns the underlying mapping, unknown keys included. Read-only.
func (b MetricsBag) Raw() map[string]any {
	return b.raw
}

// ResponseTimeMs returns the response time in milliseconds, 0 when absent.
func (b MetricsBag) ResponseTimeMs() float64 {
	return b.floatValue(keyResponseTime, 0)
}

// ErrorCount returns the cumulative error count reported by the producer,
// 0 when absent. The engine never accumulates this itself.
func (b MetricsBag) ErrorCount() int {
	return b.intValue(keyErrorCount, 0)
}

// ClickCount returns the click count with the given default. The scorer
// defaults to 1, the click-burst rule and the forwarded payload to 0.
func (b MetricsBag) ClickCount(def int) int {
	return b.intValue(keyClickCount, def)
}

// SessionDurationSec returns the session duration in seconds, 0 when absent.
func (b MetricsBag) SessionDurationSec() float64 {
	return b.floatValue(keySessionDuration, 0)
}

func (b MetricsBag) floatValue(key string, def float64) float64 {
	switch v := b.raw[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

func (b MetricsBag) intValue(key string, def int) int {
	switch v := b.raw[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	}
	return def
}

// DecodeError is returned when a queue payload cannot be turned into a
// TelemetryEvent. The message is dropped and counted; the pipeline continues.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode telemetry event: %s: %v", e.Reason, e.Err)
	}
	return "decode telemetry event: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// rawEvent matches the queue wire format. Identity fields are optional at
// decode time; only the metrics field can fail a message.
type rawEvent struct {
	UserID    string          `json:"userId"`
	SessionID string          `json:"sessionId"`
	Feature   string          `json:"feature"`
	Action    string          `json:"action"`
	Metrics   json.RawMessage `json:"metrics"`
}

// DecodeEvent parses one raw queue payload into a TelemetryEvent.
//
// The metrics field may be a nested JSON object or a JSON string that itself
// encodes an object. Any other shape (number, array, null, absent, or an
// unparseable string) is a DecodeError.
func DecodeEvent(payload []byte) (*TelemetryEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &DecodeError{Reason: "malformed payload", Err: err}
	}

	metrics, err := parseMetrics(raw.Metrics)
	if err != nil {
		return nil, err
	}

	return &TelemetryEvent{
		UserID:    raw.UserID,
		SessionID: raw.SessionID,
		Feature:   raw.Feature,
		Action:    raw.Action,
		Metrics:   NewMetricsBag(metrics),
	}, nil
}

func parseMetrics(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, &DecodeError{Reason: "missing metrics field"}
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &DecodeError{Reason: "malformed metrics field", Err: err}
	}

	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case string:
		// Some producers double-encode metrics as a JSON string.
		var nested map[string]any
		if err := json.Unmarshal([]byte(m), &nested); err != nil {
			return nil, &DecodeError{Reason: "metrics string is not a JSON object", Err: err}
		}
		return nested, nil
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("metrics has unsupported type %T", v)}
	}
}

// Severity classifies an anomaly record.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// AnomalyType is the fixed enumeration of detection rules.
type AnomalyType string

const (
	AnomalyHighResponseTime    AnomalyType = "HIGH_RESPONSE_TIME"
	AnomalyHighErrorRate       AnomalyType = "HIGH_ERROR_RATE"
	AnomalyLowEngagement       AnomalyType = "LOW_ENGAGEMENT"
	AnomalyUnusualClickPattern AnomalyType = "UNUSUAL_CLICK_PATTERN"
)

// EngagementRecord is the per-event scoring result appended to the
// (user, session) history. Never mutated after creation.
type EngagementRecord struct {
	UserID             string    `json:"userId"`
	SessionID          string    `json:"sessionId"`
	Feature            string    `json:"feature"`
	EngagementScore    float64   `json:"engagementScore"`
	ResponseTimeMs     float64   `json:"responseTimeMs"`
	ClickCount         int       `json:"clickCount"`
	ErrorCount         int       `json:"errorCount"`
	SessionDurationSec float64   `json:"sessionDurationSec"`
	Timestamp          time.Time `json:"timestamp"`
}

// AnomalyRecord is one flagged rule violation. An event may yield several.
type AnomalyRecord struct {
	UserID      string      `json:"userId"`
	SessionID   string      `json:"sessionId"`
	Feature     string      `json:"feature"`
	AnomalyType AnomalyType `json:"anomalyType"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	Threshold   float64     `json:"threshold"`
	ActualValue float64     `json:"actualValue"`
	Timestamp   time.Time   `json:"timestamp"`
}

// FeatureAggregate holds the running per-feature values. The engagement
// score is a two-point recency-biased blend, not an arithmetic mean.
type FeatureAggregate struct {
	EngagementScore float64 `json:"engagementScore"`
	AnomalyTally    int     `json:"anomalyTally"`
}

package engine

import (
	"time"

	"github.com/fenlow/streampulse/internal/model"
)

// Detection thresholds. All latency comparisons are in seconds.
const (
	highResponseThresholdSec = 5.0
	highErrorThreshold       = 3
	lowEngagementThreshold   = 30.0
	clickBurstThreshold      = 20
)

// Detect evaluates every anomaly rule against the raw metrics bag and
// returns the violations in rule order. The rules are independent: none
// short-circuits another, and each reads the bag directly.
func Detect(ev *model.TelemetryEvent, now time.Time) []*model.AnomalyRecord {
	var out []*model.AnomalyRecord
	m := ev.Metrics

	record := func(typ model.AnomalyType, sev model.Severity, desc string, threshold, actual float64) {
		out = append(out, &model.AnomalyRecord{
			UserID:      ev.UserID,
			SessionID:   ev.SessionID,
			Feature:     ev.Feature,
			AnomalyType: typ,
			Severity:    sev,
			Description: desc,
			Threshold:   threshold,
			ActualValue: actual,
			Timestamp:   now,
		})
	}

	if seconds := m.ResponseTimeMs() / 1000; seconds > highResponseThresholdSec {
		record(model.AnomalyHighResponseTime, model.SeverityWarning,
			"Response time exceeds 5 seconds", highResponseThresholdSec, seconds)
	}

	if errors := m.ErrorCount(); errors > highErrorThreshold {
		record(model.AnomalyHighErrorRate, model.SeverityError,
			"Error count exceeds 3", highErrorThreshold, float64(errors))
	}

	if score := Score(m); score < lowEngagementThreshold {
		record(model.AnomalyLowEngagement, model.SeverityWarning,
			"User engagement is very low", lowEngagementThreshold, score)
	}

	// The click-burst rule defaults an absent clickCount to 0, unlike the
	// scorer's default of 1.
	if clicks := m.ClickCount(0); clicks > clickBurstThreshold {
		record(model.AnomalyUnusualClickPattern, model.SeverityInfo,
			"Unusually high click count detected", clickBurstThreshold, float64(clicks))
	}

	return out
}

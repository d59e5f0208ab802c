package engine

import "github.com/fenlow/streampulse/internal/model"

// Scoring constants. Response time only penalizes past a 2-second comfort
// threshold; positive signals are capped so neither can dominate the range.
const (
	baseScore               = 100.0
	responseComfortSec      = 2.0
	responsePenaltyPerSec   = 10.0
	errorPenalty            = 15.0
	clickRewardPerClick     = 2.0
	clickRewardCap          = 20.0
	durationRewardPerMinute = 5.0
	durationRewardCap       = 15.0
)

// Score derives the 0-100 engagement score from a metrics bag. Deterministic
// and side-effect free; the clamp is applied last and is the only
// bound-enforcing step.
func Score(m model.MetricsBag) float64 {
	score := baseScore

	seconds := m.ResponseTimeMs() / 1000
	if seconds > responseComfortSec {
		score -= (seconds - responseComfortSec) * responsePenaltyPerSec
	}

	score -= float64(m.ErrorCount()) * errorPenalty

	score += min(float64(m.ClickCount(1))*clickRewardPerClick, clickRewardCap)
	score += min(m.SessionDurationSec()/60*durationRewardPerMinute, durationRewardCap)

	return clamp(score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package aggregate

import (
	"time"

	"github.com/fenlow/streampulse/internal/model"
)

// Snapshot is a full point-in-time copy of the store, used by the periodic
// export. It is never read back into a store; state stays process-scoped.
type Snapshot struct {
	TakenAt          time.Time                              `json:"takenAt"`
	Counters         Counters                               `json:"counters"`
	FeatureScores    map[string]float64                     `json:"featureEngagementScores"`
	FeatureAnomalies map[string]int                         `json:"featureAnomalyTallies"`
	Engagement       map[string][]*model.EngagementRecord   `json:"engagement"`
	Anomalies        map[string][]*model.AnomalyRecord      `json:"anomalies"`
}

// Snapshot copies the entire store. Each history is copied under its own
// lock, so the snapshot is per-key consistent without stopping writers.
func (s *Store) Snapshot(now time.Time) *Snapshot {
	scores, tally := s.FeatureAggregates()

	s.mu.RLock()
	eng := make(map[string]*history[*model.EngagementRecord], len(s.engagement))
	for k, h := range s.engagement {
		eng[k] = h
	}
	ano := make(map[string]*history[*model.AnomalyRecord], len(s.anomalies))
	for k, h := range s.anomalies {
		ano[k] = h
	}
	s.mu.RUnlock()

	snap := &Snapshot{
		TakenAt:          now,
		Counters:         s.Counters(),
		FeatureScores:    scores,
		FeatureAnomalies: tally,
		Engagement:       make(map[string][]*model.EngagementRecord, len(eng)),
		Anomalies:        make(map[string][]*model.AnomalyRecord, len(ano)),
	}
	for k, h := range eng {
		snap.Engagement[k] = h.snapshot()
	}
	for k, h := range ano {
		snap.Anomalies[k] = h.snapshot()
	}
	return snap
}

// Package aggregate holds the engine's shared in-memory state: per-session
// engagement and anomaly histories, per-feature running aggregates, and the
// process-wide counters. State lives for the life of the process; there is
// no eviction and no bound on history size.
package aggregate

import (
	"sync"
	"sync/atomic"

	"github.com/fenlow/streampulse/internal/model"
)

// history is an append-only record list with its own lock, so concurrent
// appends for unrelated session keys never contend.
type history[T any] struct {
	mu      sync.Mutex
	records []T
}

func (h *history[T]) append(rec T) {
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
}

func (h *history[T]) snapshot() []T {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]T, len(h.records))
	copy(out, h.records)
	return out
}

// Store is the single shared mutable resource of the engine. Writers (event
// processing) and readers (the query facade) run concurrently; readers only
// ever see snapshot copies.
type Store struct {
	mu         sync.RWMutex
	engagement map[string]*history[*model.EngagementRecord]
	anomalies  map[string]*history[*model.AnomalyRecord]

	featMu        sync.RWMutex
	featureScores map[string]float64
	featureTally  map[string]int

	processed    atomic.Int64
	decodeErrors atomic.Int64
	anomalyTotal atomic.Int64
}

// New returns an empty store. Its lifetime is tied to the process; callers
// inject it rather than reaching for a package-level singleton.
func New() *Store {
	return &Store{
		engagement:    make(map[string]*history[*model.EngagementRecord]),
		anomalies:     make(map[string]*history[*model.AnomalyRecord]),
		featureScores: make(map[string]float64),
		featureTally:  make(map[string]int),
	}
}

// lookupHistory returns the history for key, creating it on first use. The
// outer lock covers only map lookup and insert; appends happen under the
// per-key lock.
func lookupHistory[T any](mu *sync.RWMutex, m map[string]*history[T], key string) *history[T] {
	mu.RLock()
	h, ok := m[key]
	mu.RUnlock()
	if ok {
		return h
	}

	mu.Lock()
	defer mu.Unlock()
	if h, ok = m[key]; ok {
		return h
	}
	h = &history[T]{}
	m[key] = h
	return h
}

// AppendEngagement appends one engagement record to its session history.
func (s *Store) AppendEngagement(rec *model.EngagementRecord) {
	key := model.SessionKey(rec.UserID, rec.SessionID)
	lookupHistory(&s.mu, s.engagement, key).append(rec)
}

// AppendAnomaly appends one anomaly record to its session history and bumps
// the process-wide anomaly counter.
func (s *Store) AppendAnomaly(rec *model.AnomalyRecord) {
	key := model.SessionKey(rec.UserID, rec.SessionID)
	lookupHistory(&s.mu, s.anomalies, key).append(rec)
	s.anomalyTotal.Add(1)
}

// BlendFeatureScore folds an incoming engagement score into the feature's
// running value: the first score is stored verbatim, every later one becomes
// (old+new)/2. This is an intentional recency-biased two-point blend, not a
// true running average.
func (s *Store) BlendFeatureScore(feature string, score float64) {
	s.featMu.Lock()
	defer s.featMu.Unlock()
	if old, ok := s.featureScores[feature]; ok {
		s.featureScores[feature] = (old + score) / 2
	} else {
		s.featureScores[feature] = score
	}
}

// TallyFeatureAnomaly increments the feature's anomaly tally by one. Called
// once per anomaly record, so an event with three anomalies adds three.
func (s *Store) TallyFeatureAnomaly(feature string) {
	s.featMu.Lock()
	s.featureTally[feature]++
	s.featMu.Unlock()
}

// MarkProcessed bumps the processed-message counter.
func (s *Store) MarkProcessed() { s.processed.Add(1) }

// MarkDecodeError bumps the decode-failure counter.
func (s *Store) MarkDecodeError() { s.decodeErrors.Add(1) }

// Counters is a point-in-time read of the process-wide counters. All three
// are monotonically non-decreasing and never reset.
type Counters struct {
	Processed    int64
	DecodeErrors int64
	Anomalies    int64
}

// Counters returns the current counter values.
func (s *Store) Counters() Counters {
	return Counters{
		Processed:    s.processed.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		Anomalies:    s.anomalyTotal.Load(),
	}
}

// FeatureAggregates returns snapshot copies of both per-feature maps.
func (s *Store) FeatureAggregates() (scores map[string]float64, tally map[string]int) {
	s.featMu.RLock()
	defer s.featMu.RUnlock()
	scores = make(map[string]float64, len(s.featureScores))
	for k, v := range s.featureScores {
		scores[k] = v
	}
	tally = make(map[string]int, len(s.featureTally))
	for k, v := range s.featureTally {
		tally[k] = v
	}
	return scores, tally
}

// EngagementHistory returns all engagement histories whose compound key
// belongs to the given user, as snapshot copies keyed by compound key.
func (s *Store) EngagementHistory(userID string) map[string][]*model.EngagementRecord {
	s.mu.RLock()
	matched := make(map[string]*history[*model.EngagementRecord])
	for key, h := range s.engagement {
		if model.HasSessionPrefix(key, userID) {
			matched[key] = h
		}
	}
	s.mu.RUnlock()

	out := make(map[string][]*model.EngagementRecord, len(matched))
	for key, h := range matched {
		out[key] = h.snapshot()
	}
	return out
}

// AnomalyHistory returns all anomaly histories whose compound key belongs to
// the given user, as snapshot copies keyed by compound key.
func (s *Store) AnomalyHistory(userID string) map[string][]*model.AnomalyRecord {
	s.mu.RLock()
	matched := make(map[string]*history[*model.AnomalyRecord])
	for key, h := range s.anomalies {
		if model.HasSessionPrefix(key, userID) {
			matched[key] = h
		}
	}
	s.mu.RUnlock()

	out := make(map[string][]*model.AnomalyRecord, len(matched))
	for key, h := range matched {
		out[key] = h.snapshot()
	}
	return out
}

// Package engine implements the per-message processing pipeline: decode,
// score, detect, update aggregate state, forward downstream. The unit of
// failure isolation is one message; nothing that happens while processing a
// single message may end the consumer.
package engine

import (
	"log/slog"
	"time"

	"github.com/fenlow/streampulse/internal/aggregate"
	"github.com/fenlow/streampulse/internal/forward"
	"github.com/fenlow/streampulse/internal/model"
)

// Meta carries queue delivery metadata. It is used only for logging; no
// business logic depends on it.
type Meta struct {
	Topic     string
	Partition int
	Offset    uint64
}

// Enqueuer is the forwarder-facing half of the pipeline. Enqueue must never
// block.
type Enqueuer interface {
	Enqueue(rec *forward.Record)
}

// Engine ties the pure scoring/detection functions to the aggregate store
// and the downstream forwarder.
type Engine struct {
	store     *aggregate.Store
	forwarder Enqueuer
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an engine over the given store and forwarder.
func New(store *aggregate.Store, forwarder Enqueuer, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		forwarder: forwarder,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessPayload runs one raw queue payload through the full pipeline. A
// decode failure or an unexpected fault drops the message, bumps the
// decode-error counter, and returns; the caller's consume loop continues.
func (e *Engine) ProcessPayload(payload []byte, meta Meta) {
	defer func() {
		if r := recover(); r != nil {
			e.store.MarkDecodeError()
			e.logger.Error("panic processing message",
				"topic", meta.Topic, "partition", meta.Partition, "offset", meta.Offset,
				"panic", r)
		}
	}()

	ev, err := model.DecodeEvent(payload)
	if err != nil {
		e.store.MarkDecodeError()
		e.logger.Warn("dropping undecodable message",
			"topic", meta.Topic, "partition", meta.Partition, "offset", meta.Offset,
			"err", err)
		return
	}

	e.Process(ev)
}

// Process runs one decoded event through scoring, detection, the aggregate
// store, and the forwarder. The store update always happens before the
// forward attempt, and the forward handoff never blocks.
func (e *Engine) Process(ev *model.TelemetryEvent) {
	now := e.now()
	m := ev.Metrics

	score := Score(m)
	rec := &model.EngagementRecord{
		UserID:             ev.UserID,
		SessionID:          ev.SessionID,
		Feature:            ev.Feature,
		EngagementScore:    score,
		ResponseTimeMs:     m.ResponseTimeMs(),
		ClickCount:         m.ClickCount(1),
		ErrorCount:         m.ErrorCount(),
		SessionDurationSec: m.SessionDurationSec(),
		Timestamp:          now,
	}
	e.store.AppendEngagement(rec)
	e.store.BlendFeatureScore(ev.Feature, score)

	for _, anomaly := range Detect(ev, now) {
		e.store.AppendAnomaly(anomaly)
		e.store.TallyFeatureAnomaly(ev.Feature)
		e.logger.Warn("anomaly detected",
			"type", anomaly.AnomalyType, "severity", anomaly.Severity,
			"user_id", ev.UserID, "feature", ev.Feature,
			"threshold", anomaly.Threshold, "actual", anomaly.ActualValue)
	}

	e.forwarder.Enqueue(&forward.Record{
		UserID:          ev.UserID,
		SessionID:       ev.SessionID,
		Feature:         ev.Feature,
		Action:          ev.Action,
		Metrics:         m.Raw(),
		EngagementScore: score,
		ResponseTime:    m.ResponseTimeMs(),
		ClickCount:      m.ClickCount(0),
		ErrorCount:      m.ErrorCount(),
		SessionDuration: m.SessionDurationSec(),
		Timestamp:       now,
	})

	e.store.MarkProcessed()
}

// Store exposes the aggregate state for the query facade.
func (e *Engine) Store() *aggregate.Store { return e.store }

// Package forward pushes per-event processed records to the external sinks.
// Forwarding is strictly fire-and-forget: the consume path hands a record to
// a bounded queue and moves on; sink failures are logged and dropped.
package forward

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record is the processed-event payload written to every sink. Metrics is
// the raw wire mapping, unknown keys included; the normalized fields mirror
// what scoring consumed (clickCount defaults to 0 here).
type Record struct {
	UserID          string         `json:"userId"`
	SessionID       string         `json:"sessionId"`
	Feature         string         `json:"feature"`
	Action          string         `json:"action"`
	Metrics         map[string]any `json:"metrics"`
	EngagementScore float64        `json:"engagementScore"`
	ResponseTime    float64        `json:"responseTime"`
	ClickCount      int            `json:"clickCount"`
	ErrorCount      int            `json:"errorCount"`
	SessionDuration float64        `json:"sessionDuration"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Sink is one downstream destination for processed records.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string
	// Write delivers one record. The context carries the per-attempt timeout.
	Write(ctx context.Context, rec *Record) error
}

var (
	forwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streampulse_forwarded_total",
		Help: "Records successfully written per downstream sink.",
	}, []string{"sink"})
	forwardErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streampulse_forward_errors_total",
		Help: "Failed sink writes. Failures are dropped, never retried.",
	}, []string{"sink"})
	forwardDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streampulse_forward_dropped_total",
		Help: "Records dropped because the forward queue was full.",
	})
)

// Forwarder drains a bounded queue of records into one or more sinks.
type Forwarder struct {
	sinks   []Sink
	queue   chan *Record
	timeout time.Duration
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a forwarder with the given queue capacity and per-write
// timeout. Call Start before enqueueing and Stop on shutdown.
func New(sinks []Sink, buffer int, timeout time.Duration, logger *slog.Logger) *Forwarder {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Forwarder{
		sinks:   sinks,
		queue:   make(chan *Record, buffer),
		timeout: timeout,
		logger:  logger,
	}
}

// Start launches the single drain worker. One worker is enough: sink writes
// carry their own timeout and ordering across sinks is not required.
func (f *Forwarder) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.run(ctx)
	}()
}

// Stop cancels the worker and waits for the in-flight write, if any, to
// finish. Queued records that were never drained are discarded.
func (f *Forwarder) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
}

// Enqueue hands a record to the forward queue without blocking. When the
// queue is full the record is dropped and counted; consumption must never
// be throttled by sink latency.
func (f *Forwarder) Enqueue(rec *Record) {
	select {
	case f.queue <- rec:
	default:
		forwardDroppedTotal.Inc()
		f.logger.Warn("forward queue full, dropping record",
			"user_id", rec.UserID, "feature", rec.Feature)
	}
}

func (f *Forwarder) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-f.queue:
			f.writeAll(ctx, rec)
		}
	}
}

func (f *Forwarder) writeAll(ctx context.Context, rec *Record) {
	for _, sink := range f.sinks {
		attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
		err := sink.Write(attemptCtx, rec)
		cancel()
		if err != nil {
			forwardErrorsTotal.WithLabelValues(sink.Name()).Inc()
			f.logger.Warn("forward write failed",
				"sink", sink.Name(), "user_id", rec.UserID, "err", err)
			continue
		}
		forwardedTotal.WithLabelValues(sink.Name()).Inc()
	}
}

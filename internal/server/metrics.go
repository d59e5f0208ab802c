package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fenlow/streampulse/internal/aggregate"
)

// registerCounterMetrics exposes the store's atomic counters on the default
// Prometheus registry. Registration errors (duplicate registration in tests)
// are ignored.
func registerCounterMetrics(store *aggregate.Store) {
	_ = prometheus.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "streampulse_processed_total",
		Help: "Messages fully processed through the pipeline.",
	}, func() float64 { return float64(store.Counters().Processed) }))

	_ = prometheus.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "streampulse_decode_errors_total",
		Help: "Messages dropped at the decode boundary.",
	}, func() float64 { return float64(store.Counters().DecodeErrors) }))

	_ = prometheus.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "streampulse_anomalies_total",
		Help: "Anomaly records produced across all features.",
	}, func() float64 { return float64(store.Counters().Anomalies) }))
}

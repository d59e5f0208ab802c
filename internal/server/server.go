// Package server exposes the engine's read-only query facade and the manual
// test-injection endpoint over HTTP.
package server

import (
	"log/slog"

	"github.com/fenlow/streampulse/internal/aggregate"
	"github.com/fenlow/streampulse/internal/model"
)

// Processor is the engine-facing interface the control surface needs: one
// injection path and the aggregate state behind the query facade.
type Processor interface {
	Process(ev *model.TelemetryEvent)
	Store() *aggregate.Store
}

// Server handles the HTTP control surface. All reads return snapshot copies
// and are safe to serve concurrently with ingestion.
type Server struct {
	proc   Processor
	logger *slog.Logger
}

// New returns a Server over the given processor and registers the engine
// counter metrics.
func New(proc Processor, logger *slog.Logger) *Server {
	registerCounterMetrics(proc.Store())
	return &Server{proc: proc, logger: logger}
}

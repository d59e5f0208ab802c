package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenlow/streampulse/internal/aggregate"
	"github.com/fenlow/streampulse/internal/config"
	"github.com/fenlow/streampulse/internal/engine"
	"github.com/fenlow/streampulse/internal/events"
	"github.com/fenlow/streampulse/internal/forward"
	"github.com/fenlow/streampulse/internal/server"
	"github.com/fenlow/streampulse/internal/snapshot"
	"github.com/fenlow/streampulse/internal/store/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stream-processing engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Downstream sinks. The time-series sink is always on; the summary
		// sink only when a database is configured.
		sinks := []forward.Sink{forward.NewHTTPSink(cfg.TimeSeriesURL)}
		var summary *postgres.SummarySink
		if cfg.DatabaseURL != "" {
			summary, err = postgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			sinks = append(sinks, summary)
			logger.Info("summary sink enabled")
		} else {
			logger.Info("summary sink disabled (STREAMPULSE_DATABASE_URL not set)")
		}

		store := aggregate.New()
		forwarder := forward.New(sinks, cfg.ForwardBuffer, cfg.ForwardTimeout, logger)
		forwarder.Start()

		eng := engine.New(store, forwarder, logger)

		consumer, err := events.NewNATSConsumer(cfg.NATSURL, cfg.SubjectPrefix, cfg.Partitions, cfg.ConsumerGroup)
		if err != nil {
			forwarder.Stop()
			if summary != nil {
				summary.Close()
			}
			return err
		}

		consumeCtx, stopConsumer := context.WithCancel(context.Background())
		consumeDone := make(chan struct{})
		go func() {
			defer close(consumeDone)
			err := consumer.Run(consumeCtx, func(_ context.Context, msg events.Message) {
				eng.ProcessPayload(msg.Data, engine.Meta{
					Topic:     msg.Subject,
					Partition: msg.Partition,
					Offset:    msg.Seq,
				})
			})
			if err != nil {
				logger.Error("consumer error", "err", err)
			}
		}()
		logger.Info("consumer started",
			"nats_url", cfg.NATSURL, "subject_prefix", cfg.SubjectPrefix,
			"partitions", cfg.Partitions, "group", cfg.ConsumerGroup)

		// Control surface.
		srv := server.New(eng, logger)
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: srv.NewHTTPHandler(),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Snapshot export.
		var scheduler *snapshot.Scheduler
		if cfg.SnapshotInterval > 0 && cfg.SnapshotS3Bucket != "" {
			dest, err := snapshot.NewS3Destination(
				context.Background(),
				cfg.SnapshotS3Bucket,
				cfg.SnapshotS3Key,
				cfg.SnapshotS3Region,
				cfg.SnapshotS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 snapshot destination", "err", err)
			} else {
				scheduler = snapshot.NewScheduler(store, []snapshot.Destination{dest}, cfg.SnapshotInterval, logger)
				scheduler.Start()
				logger.Info("snapshot export started",
					"bucket", cfg.SnapshotS3Bucket, "key", cfg.SnapshotS3Key,
					"interval", cfg.SnapshotInterval)
			}
		}

		logger.Info("streampulse started", "http_addr", cfg.HTTPAddr)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Stop intake first so state stops changing, then drain the rest.
		stopConsumer()
		<-consumeDone
		consumer.Close()
		logger.Info("consumer stopped")

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("snapshot export stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		forwarder.Stop()
		if summary != nil {
			if err := summary.Close(); err != nil {
				logger.Error("error closing summary sink", "err", err)
			}
		}

		logger.Info("shutdown complete")
		return nil
	},
}

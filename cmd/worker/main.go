// cmd/worker/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/voiceops-backend/internal/app"
	"github.com/unclebandit/voiceops-backend/internal/config"
	"github.com/unclebandit/voiceops-backend/internal/logger"
	"github.com/unclebandit/voiceops-backend/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zl.Sync()
	zl = zl.With(zap.String("process", "worker"))

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			zl.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to start", zap.Error(err))
	}
	defer a.Close()

	worker := a.Worker()
	if err := worker.Schedule(ctx, a.Schedule()); err != nil {
		zl.Fatal("invalid cron schedule", zap.Error(err))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Start()
		zl.Info("worker running, waiting for jobs")
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		worker.Stop(stopCtx)
		return nil
	})

	// with rabbitmq the enrichment consumer lives here; the in-memory queue
	// is already consumed inside whichever process publishes to it
	if cfg.AMQP.URL != "" {
		g.Go(func() error {
			if err := a.Queue.Subscribe(queue.TopicCallEnrichment, a.Enricher.Handle); err != nil {
				return err
			}
			zl.Info("consuming enrichment events", zap.String("topic", queue.TopicCallEnrichment))
			<-ctx.Done()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		zl.Error("worker stopped with error", zap.Error(err))
	}
	zl.Info("worker stopped")
}

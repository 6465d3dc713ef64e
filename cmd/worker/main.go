package main

// The worker drains pipeline stages from SQS or asynq and runs the hourly
// agent-session purge. With QUEUE_BACKEND=memory the API processes stages
// itself and this binary only purges.

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"stackdocs-backend/internal/bootstrap"
	"stackdocs-backend/internal/shared/config"
	"stackdocs-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.ServiceName+"-worker", cfg.Version, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	purger, err := startSessionPurge(app.Sessions, cfg.SessionPurgeInterval)
	if err != nil {
		return err
	}
	defer purger.Stop()

	telemetry.Info("worker.started", map[string]any{
		"queue":       cfg.QueueBackend,
		"concurrency": cfg.WorkerConcurrency,
		"purge_every": cfg.SessionPurgeInterval.String(),
	})

	switch cfg.QueueBackend {
	case "sqs":
		return runSQS(ctx, app, cfg.WorkerConcurrency, int(cfg.SQSVisibilityTimeout.Seconds()), cfg.WorkerShutdownTimeout)
	case "asynq":
		return runAsynq(ctx, app, cfg, cfg.WorkerShutdownTimeout)
	default:
		<-ctx.Done()
		return nil
	}
}

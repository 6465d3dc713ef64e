package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"stackdocs-backend/internal/bootstrap"
	"stackdocs-backend/internal/queue"
	"stackdocs-backend/internal/shared/config"
	"stackdocs-backend/internal/shared/metrics"
	"stackdocs-backend/internal/shared/telemetry"
	"stackdocs-backend/internal/workerproc"
)

// runAsynq serves pipeline tasks from Redis until ctx is canceled.
func runAsynq(ctx context.Context, app *bootstrap.App, cfg config.Config, shutdownTimeout time.Duration) error {
	srv := asynq.NewServer(
		queue.RedisOpt(cfg.RedisAddr, cfg.RedisPassword),
		asynq.Config{
			Concurrency:     max(1, cfg.WorkerConcurrency),
			Queues:          map[string]int{queue.AsynqQueue: 1},
			ShutdownTimeout: shutdownTimeout,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				telemetry.Error("worker.task.failed", map[string]any{
					"task_type": task.Type(),
					"error":     err.Error(),
				})
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(queue.TaskPipelineStage, queue.AsynqHandler(func(ctx context.Context, body string) error {
		job, err := workerproc.Decode(body)
		if err != nil {
			// Returning nil acks the task; asynq would otherwise retry it.
			telemetry.Error("worker.task.dropped", telemetry.Merge(job.Fields(), map[string]any{"error": err.Error()}))
			metrics.IncPipelineJobsDropped()
			return nil
		}
		return workerproc.Run(ctx, app.Processor, job)
	}))

	if err := srv.Start(mux); err != nil {
		return err
	}
	telemetry.Info("worker.asynq.serving", map[string]any{"redis": cfg.RedisAddr, "queue": queue.AsynqQueue})

	<-ctx.Done()
	telemetry.Info("worker.draining", map[string]any{"timeout": shutdownTimeout.String()})
	srv.Shutdown()
	return nil
}

package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker
//
// The event source mapping must enable ReportBatchItemFailures so that only
// the records listed in the response are redelivered.

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.opentelemetry.io/otel/attribute"

	"stackdocs-backend/internal/bootstrap"
	"stackdocs-backend/internal/shared/config"
	"stackdocs-backend/internal/shared/metrics"
	"stackdocs-backend/internal/shared/telemetry"
	"stackdocs-backend/internal/workerproc"
)

// deadlineReserve is left unused at the end of an invocation so the batch
// response is returned before Lambda times out.
const deadlineReserve = 5 * time.Second

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	built, err := bootstrap.Build(config.Load())
	if err != nil {
		initErr = err
		return
	}
	app = built
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": initErr.Error()})
		return events.SQSEventResponse{BatchItemFailures: failAll(event.Records)}, initErr
	}
	return processBatch(ctx, app.Processor, event), nil
}

// processBatch runs records in order and reports only retryable failures.
// Undecodable records are acknowledged so they do not cycle through the
// queue. Records not reached before the deadline reserve are reported as
// failures untouched.
func processBatch(ctx context.Context, p workerproc.Processor, event events.SQSEvent) events.SQSEventResponse {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.batch", attribute.Int("batch.size", len(event.Records)))
	defer span.End()

	failures := make([]events.SQSBatchItemFailure, 0)
	for i, record := range event.Records {
		if outOfTime(ctx) {
			telemetry.Error("lambda.pipeline.deadline", map[string]any{"remaining": len(event.Records) - i})
			failures = append(failures, failAll(event.Records[i:])...)
			break
		}

		job, err := workerproc.Decode(record.Body)
		fields := telemetry.Merge(job.Fields(), map[string]any{
			"sqs_message_id": record.MessageId,
			"receive_count":  receiveCount(record),
		})
		if err != nil {
			metrics.IncPipelineJobsDropped()
			telemetry.Error("lambda.pipeline.dropped", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
			continue
		}
		if err := workerproc.Run(ctx, p, job); err != nil {
			telemetry.Error("lambda.pipeline.failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	span.SetAttributes(attribute.Int("batch.failures", len(failures)))
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func outOfTime(ctx context.Context) bool {
	deadline, ok := ctx.Deadline()
	return ok && time.Until(deadline) < deadlineReserve
}

func failAll(records []events.SQSMessage) []events.SQSBatchItemFailure {
	out := make([]events.SQSBatchItemFailure, 0, len(records))
	for _, r := range records {
		out = append(out, events.SQSBatchItemFailure{ItemIdentifier: r.MessageId})
	}
	return out
}

func receiveCount(record events.SQSMessage) int {
	n, _ := strconv.Atoi(record.Attributes["ApproximateReceiveCount"])
	return n
}

func main() {
	lambda.Start(handler)
}

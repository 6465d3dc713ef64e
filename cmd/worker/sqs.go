package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"stackdocs-backend/internal/bootstrap"
	"stackdocs-backend/internal/queue"
	"stackdocs-backend/internal/shared/metrics"
	"stackdocs-backend/internal/shared/telemetry"
	"stackdocs-backend/internal/workerproc"
)

// receiveBackoff spaces out ReceiveMessage retries after an API error.
const receiveBackoff = 2 * time.Second

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// runSQS long-polls the pipeline queue until ctx is canceled, then waits up
// to shutdownTimeout for in-flight messages.
func runSQS(ctx context.Context, app *bootstrap.App, concurrency, visibilitySeconds int, shutdownTimeout time.Duration) error {
	sqsQueue, ok := app.Queue.(*queue.SQSClient)
	if !ok {
		return fmt.Errorf("QUEUE_BACKEND=sqs but the queue client is %T", app.Queue)
	}
	var client sqsAPI = sqsQueue.API()
	queueURL := sqsQueue.QueueURL()

	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup

	telemetry.Info("worker.sqs.polling", map[string]any{"queue_url": queueURL, "visibility_seconds": visibilitySeconds})

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Error("worker.sqs.receive_failed", map[string]any{"error": err.Error()})
			select {
			case <-ctx.Done():
				break pollLoop
			case <-time.After(receiveBackoff):
			}
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				// In-flight stages finish even after shutdown starts.
				handleMessage(context.WithoutCancel(ctx), client, queueURL, app.Processor, m)
			}(msg)
		}
	}

	telemetry.Info("worker.draining", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.drain_timeout", map[string]any{"timeout": shutdownTimeout.String()})
	}
	return nil
}

// handleMessage processes one SQS message. Undecodable and processed
// messages are deleted; stage failures stay for redelivery.
func handleMessage(ctx context.Context, client sqsAPI, queueURL string, p workerproc.Processor, msg sqstypes.Message) {
	job, err := workerproc.Decode(aws.ToString(msg.Body))
	fields := telemetry.Merge(job.Fields(), map[string]any{
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	})
	if err != nil {
		telemetry.Error("worker.pipeline.unparseable", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
		if deleteMessage(ctx, client, queueURL, msg, fields) {
			metrics.IncPipelineJobsDropped()
		}
		return
	}

	telemetry.Info("worker.pipeline.received", fields)
	if err := workerproc.Run(ctx, p, job); err != nil {
		cause := err
		var stageErr *workerproc.StageError
		if errors.As(err, &stageErr) {
			cause = stageErr.Err
		}
		telemetry.Error("worker.pipeline.failed", telemetry.Merge(fields, map[string]any{"error": cause.Error()}))
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, fields) {
		telemetry.Info("worker.pipeline.completed", fields)
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, fields map[string]any) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		telemetry.Error("worker.pipeline.delete_failed", telemetry.Merge(fields, map[string]any{"error": "missing receipt handle"}))
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		telemetry.Error("worker.pipeline.delete_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
		return false
	}
	return true
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

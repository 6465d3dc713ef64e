package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"stackdocs-backend/internal/queue"
)

type stubProcessor struct {
	failFor string
}

func (s stubProcessor) Process(ctx context.Context, msg queue.Message) error {
	_ = ctx
	if msg.DocumentID == s.failFor {
		return errors.New("store unavailable")
	}
	return nil
}

func body(t *testing.T, documentID string) string {
	t.Helper()
	raw, err := queue.EncodeMessage(queue.NewMessage(documentID, "user-1", "queued_ocr", ""))
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	return string(raw)
}

func TestProcessBatchReportsOnlyRetryableFailures(t *testing.T) {
	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "ok", Body: body(t, "doc-1")},
		{MessageId: "retry", Body: body(t, "doc-2")},
		{MessageId: "garbage", Body: "{not json"},
	}}

	resp := processBatch(context.Background(), stubProcessor{failFor: "doc-2"}, event)

	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "retry" {
		t.Fatalf("unexpected failures: %+v", resp.BatchItemFailures)
	}
}

func TestProcessBatchFailsRemainingRecordsPastDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(time.Second))
	defer cancel()

	calls := 0
	p := countingProcessor{calls: &calls}
	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "a", Body: body(t, "doc-1")},
		{MessageId: "b", Body: body(t, "doc-2")},
	}}

	resp := processBatch(ctx, p, event)

	if calls != 0 {
		t.Fatalf("expected no records processed, got %d", calls)
	}
	if len(resp.BatchItemFailures) != 2 {
		t.Fatalf("expected both records reported, got %+v", resp.BatchItemFailures)
	}
}

func TestReceiveCount(t *testing.T) {
	rec := events.SQSMessage{Attributes: map[string]string{"ApproximateReceiveCount": "3"}}
	if got := receiveCount(rec); got != 3 {
		t.Fatalf("receiveCount = %d", got)
	}
	if got := receiveCount(events.SQSMessage{}); got != 0 {
		t.Fatalf("receiveCount without attribute = %d", got)
	}
}

type countingProcessor struct {
	calls *int
}

func (c countingProcessor) Process(ctx context.Context, msg queue.Message) error {
	*c.calls++
	return nil
}

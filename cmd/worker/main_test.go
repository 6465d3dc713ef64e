package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"stackdocs-backend/internal/agent"
	"stackdocs-backend/internal/queue"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	_ = ctx
	_ = params
	_ = optFns
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	_ = ctx
	_ = optFns
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeProcessor struct {
	err   error
	calls *[]queue.Message
}

func (f fakeProcessor) Process(ctx context.Context, msg queue.Message) error {
	_ = ctx
	if f.calls != nil {
		*f.calls = append(*f.calls, msg)
	}
	return f.err
}

func encoded(t *testing.T, msg queue.Message) *string {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	return aws.String(string(body))
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	var calls []queue.Message
	msg := sqstypes.Message{
		MessageId:     aws.String("m1"),
		ReceiptHandle: aws.String("r1"),
		Body:          encoded(t, queue.NewMessage("doc-1", "user-1", "queued_ocr", "req-1")),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}

	handleMessage(context.Background(), client, "queue", fakeProcessor{calls: &calls}, msg)

	if len(client.deleted) != 1 || client.deleted[0] != "r1" {
		t.Fatalf("expected delete of r1, got %v", client.deleted)
	}
	if len(calls) != 1 || calls[0].DocumentID != "doc-1" || calls[0].Stage != "queued_ocr" {
		t.Fatalf("unexpected processor calls: %+v", calls)
	}
}

func TestWorkerDoesNotDeleteOnFailure(t *testing.T) {
	client := &fakeSQS{}
	msg := sqstypes.Message{
		MessageId:     aws.String("m2"),
		ReceiptHandle: aws.String("r2"),
		Body:          encoded(t, queue.NewMessage("doc-2", "user-1", "queued_ocr", "req-2")),
	}

	handleMessage(context.Background(), client, "queue", fakeProcessor{err: errors.New("boom")}, msg)

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesUnparseableMessages(t *testing.T) {
	tests := []struct {
		name string
		body *string
	}{
		{name: "invalid json", body: aws.String("{bad-json")},
		{name: "empty body", body: aws.String("")},
		{name: "missing stage", body: encoded(t, queue.Message{DocumentID: "doc-3", UserID: "user-1"})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeSQS{}
			var calls []queue.Message
			msg := sqstypes.Message{
				MessageId:     aws.String("m3"),
				ReceiptHandle: aws.String("r3"),
				Body:          tc.body,
			}

			handleMessage(context.Background(), client, "queue", fakeProcessor{calls: &calls}, msg)

			if len(client.deleted) != 1 {
				t.Fatalf("expected delete, got %d", len(client.deleted))
			}
			if len(calls) != 0 {
				t.Fatalf("expected processor not to run, got %d calls", len(calls))
			}
		})
	}
}

func TestPurgeSessionsRemovesExpired(t *testing.T) {
	store := agent.NewMemorySessionStore()
	ctx := context.Background()
	past := time.Now().UTC().Add(-2 * time.Hour)
	if err := store.Save(ctx, agent.Session{ID: "old", UserID: "user-1", CreatedAt: past, UpdatedAt: past, ExpiresAt: past.Add(time.Hour)}); err != nil {
		t.Fatalf("Save old: %v", err)
	}
	future := time.Now().UTC().Add(time.Hour)
	if err := store.Save(ctx, agent.Session{ID: "live", UserID: "user-1", CreatedAt: past, UpdatedAt: past, ExpiresAt: future}); err != nil {
		t.Fatalf("Save live: %v", err)
	}

	if removed := purgeSessions(store); removed != 1 {
		t.Fatalf("expected 1 purged session, got %d", removed)
	}

	if _, err := store.Get(ctx, "user-1", "old"); !errors.Is(err, agent.ErrSessionNotFound) {
		t.Fatalf("expected expired session to be purged, got %v", err)
	}
	if _, err := store.Get(ctx, "user-1", "live"); err != nil {
		t.Fatalf("expected live session to remain: %v", err)
	}
}

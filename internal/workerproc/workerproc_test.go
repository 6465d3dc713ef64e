package workerproc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"stackdocs-backend/internal/queue"
)

type processorFunc func(ctx context.Context, msg queue.Message) error

func (f processorFunc) Process(ctx context.Context, msg queue.Message) error { return f(ctx, msg) }

func TestDecode(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		reason string
	}{
		{name: "empty", body: "  ", reason: "empty body"},
		{name: "bad json", body: "{", reason: "invalid json"},
		{name: "missing document", body: `{"userId":"u","stage":"queued_ocr"}`, reason: "missing document id"},
		{name: "missing user", body: `{"documentId":"d","stage":"queued_ocr"}`, reason: "missing user id"},
		{name: "missing stage", body: `{"documentId":"d","userId":"u"}`, reason: "missing stage"},
		{name: "future version", body: `{"documentId":"d","userId":"u","stage":"queued_ocr","version":99}`, reason: "unsupported version 99"},
		{name: "valid", body: `{"documentId":"d","userId":"u","stage":"queued_ocr","version":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job, err := Decode(tc.body)
			if job.BodyLen != len(tc.body) || len(job.BodySHA) != 64 {
				t.Fatalf("unexpected fingerprint %+v", job)
			}
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				if job.Message.DocumentID != "d" {
					t.Fatalf("unexpected message %+v", job.Message)
				}
				return
			}
			var drop *DropError
			if !errors.As(err, &drop) || drop.Reason != tc.reason {
				t.Fatalf("expected drop %q, got %v", tc.reason, err)
			}
			if !Permanent(err) {
				t.Fatalf("expected permanent")
			}
		})
	}
}

func TestHandleMessageWrapsStageErrors(t *testing.T) {
	boom := errors.New("boom")
	var got queue.Message
	p := processorFunc(func(ctx context.Context, msg queue.Message) error {
		got = msg
		return boom
	})

	err := HandleMessage(context.Background(), p, `{"documentId":"d","userId":"u","stage":"queued_metadata","requestId":"r"}`)
	var stageErr *StageError
	if !errors.As(err, &stageErr) || !errors.Is(err, boom) {
		t.Fatalf("expected StageError wrapping boom, got %v", err)
	}
	if stageErr.Stage != "queued_metadata" || got.RequestID != "r" {
		t.Fatalf("unexpected stage error %+v / %+v", stageErr, got)
	}
	if Permanent(err) {
		t.Fatalf("stage errors are retryable")
	}
}

func TestRunWithoutProcessor(t *testing.T) {
	err := Run(context.Background(), nil, Job{})
	if err == nil || Permanent(err) {
		t.Fatalf("expected retryable configuration error, got %v", err)
	}
}

func TestJobFieldsOmitRawBody(t *testing.T) {
	job, err := Decode(`{"documentId":"d","userId":"secret-user","stage":"queued_ocr","requestId":"r"}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	fields := job.Fields()
	if fields["document_id"] != "d" || fields["request_id"] != "r" {
		t.Fatalf("unexpected fields %+v", fields)
	}
	for _, v := range fields {
		if s, ok := v.(string); ok && strings.Contains(s, "secret-user") {
			t.Fatalf("fields leak payload: %+v", fields)
		}
	}
}

// Package workerproc is the transport-neutral half of a pipeline consumer:
// every queue backend hands raw bodies here and decides ack or redeliver
// from the returned error.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"stackdocs-backend/internal/queue"
)

// Processor runs one pipeline stage.
type Processor interface {
	Process(ctx context.Context, msg queue.Message) error
}

// Job is a decoded queue body plus a fingerprint for logs, so raw payloads
// never need to be logged.
type Job struct {
	Message queue.Message
	BodyLen int
	BodySHA string
}

// Fields returns the log fields identifying the job.
func (j Job) Fields() map[string]any {
	fields := map[string]any{
		"document_id": j.Message.DocumentID,
		"stage":       j.Message.Stage,
		"body_len":    j.BodyLen,
	}
	if j.BodySHA != "" {
		fields["body_sha256"] = j.BodySHA
	}
	if j.Message.RequestID != "" {
		fields["request_id"] = j.Message.RequestID
	}
	return fields
}

// DropError marks a body that can never be processed. Consumers delete it
// instead of redelivering.
type DropError struct {
	Reason string
	Err    error
}

func (e *DropError) Error() string {
	if e.Err == nil {
		return "drop message: " + e.Reason
	}
	return "drop message: " + e.Reason + ": " + e.Err.Error()
}

func (e *DropError) Unwrap() error { return e.Err }

// StageError wraps a processor failure; the message should be redelivered.
type StageError struct {
	DocumentID string
	Stage      string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s for document %s: %v", e.Stage, e.DocumentID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Decode fingerprints and validates body. The returned Job is populated as
// far as decoding got, even on error.
func Decode(body string) (Job, error) {
	job := Job{BodyLen: len(body)}
	if body != "" {
		sum := sha256.Sum256([]byte(body))
		job.BodySHA = hex.EncodeToString(sum[:])
	}
	if strings.TrimSpace(body) == "" {
		return job, &DropError{Reason: "empty body"}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return job, &DropError{Reason: "invalid json", Err: err}
	}
	job.Message = msg

	switch {
	case strings.TrimSpace(msg.DocumentID) == "":
		return job, &DropError{Reason: "missing document id"}
	case strings.TrimSpace(msg.UserID) == "":
		return job, &DropError{Reason: "missing user id"}
	case strings.TrimSpace(msg.Stage) == "":
		return job, &DropError{Reason: "missing stage"}
	case msg.Version > queue.MessageVersion:
		return job, &DropError{Reason: fmt.Sprintf("unsupported version %d", msg.Version)}
	}
	return job, nil
}

// Run hands a decoded job to p.
func Run(ctx context.Context, p Processor, job Job) error {
	if p == nil {
		return errors.New("pipeline processor not configured")
	}
	if err := p.Process(ctx, job.Message); err != nil {
		return &StageError{DocumentID: job.Message.DocumentID, Stage: job.Message.Stage, Err: err}
	}
	return nil
}

// HandleMessage decodes body and runs it.
func HandleMessage(ctx context.Context, p Processor, body string) error {
	job, err := Decode(body)
	if err != nil {
		return err
	}
	return Run(ctx, p, job)
}

// Permanent reports whether redelivering the message cannot help.
func Permanent(err error) bool {
	var drop *DropError
	return errors.As(err, &drop)
}

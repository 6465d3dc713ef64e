// Package pipeline runs the background stages that follow an upload:
// OCR, then metadata generation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"stackdocs-backend/internal/agent"
	"stackdocs-backend/internal/documents"
	"stackdocs-backend/internal/ocr"
	"stackdocs-backend/internal/queue"
	"stackdocs-backend/internal/shared/metrics"
	"stackdocs-backend/internal/shared/storage/object"
	"stackdocs-backend/internal/shared/telemetry"
)

const signedURLTTL = 3600 * time.Second

// UsageCounter records a processed document against a user's quota.
type UsageCounter interface {
	Increment(ctx context.Context, userID string) error
}

// MetadataRunner generates document metadata.
type MetadataRunner interface {
	Generate(ctx context.Context, userID, documentID string, emit func(agent.Event))
}

// Processor executes pipeline stages and enqueues their successors.
type Processor struct {
	Documents documents.DocumentsRepo
	Store     object.ObjectStore
	Provider  ocr.Provider
	OCR       ocr.Repo
	Usage     UsageCounter
	Metadata  MetadataRunner
	Queue     queue.Client
}

// ScheduleOCR enqueues the OCR stage for a freshly stored document.
func (p *Processor) ScheduleOCR(ctx context.Context, doc documents.Document, requestID string) error {
	return p.Queue.Send(ctx, queue.NewMessage(doc.ID, doc.UserID, string(documents.StageQueuedOCR), requestID))
}

// Process runs the stage named by msg. Stage failures are recorded on the
// document and reported as success so the message is not redelivered.
func (p *Processor) Process(ctx context.Context, msg queue.Message) error {
	metrics.IncPipelineJobsReceived()
	ctx, span := telemetry.StartSpan(ctx, "pipeline.stage",
		attribute.String("document.id", msg.DocumentID),
		attribute.String("pipeline.stage", msg.Stage),
	)
	defer span.End()

	fields := map[string]any{
		"document_id": msg.DocumentID,
		"user_id":     msg.UserID,
		"stage":       msg.Stage,
		"request_id":  msg.RequestID,
	}

	doc, err := p.Documents.GetByID(ctx, msg.UserID, msg.DocumentID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			metrics.IncPipelineJobsDropped()
			telemetry.Warn("pipeline.document_missing", fields)
			return nil
		}
		metrics.IncPipelineJobsFailed()
		return fmt.Errorf("load document: %w", err)
	}

	switch documents.Stage(msg.Stage) {
	case documents.StageQueuedOCR:
		p.runOCR(ctx, doc, msg.RequestID, fields)
	case documents.StageQueuedMetadata:
		p.runMetadata(ctx, doc, fields)
	default:
		metrics.IncPipelineJobsDropped()
		telemetry.Warn("pipeline.unknown_stage", fields)
		return nil
	}
	metrics.IncPipelineJobsCompleted()
	return nil
}

func (p *Processor) runOCR(ctx context.Context, doc documents.Document, requestID string, fields map[string]any) {
	start := time.Now()
	telemetry.Info("pipeline.ocr_started", fields)

	if err := p.ocr(ctx, doc); err != nil {
		metrics.IncOCRFailed()
		telemetry.Error("pipeline.ocr_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
		p.markFailed(ctx, doc, fields)
		return
	}
	telemetry.Info("pipeline.ocr_completed", telemetry.Merge(fields, map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
	}))

	if err := p.Documents.UpdateStage(ctx, doc.UserID, doc.ID, documents.StageQueuedMetadata); err != nil {
		telemetry.Error("pipeline.stage_update_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
		return
	}
	next := queue.NewMessage(doc.ID, doc.UserID, string(documents.StageQueuedMetadata), requestID)
	if err := p.Queue.Send(ctx, next); err != nil {
		telemetry.Error("pipeline.enqueue_failed", telemetry.Merge(fields, map[string]any{
			"next_stage": next.Stage,
			"error":      err.Error(),
		}))
	}
}

func (p *Processor) ocr(ctx context.Context, doc documents.Document) error {
	if err := p.Documents.UpdateStatus(ctx, doc.UserID, doc.ID, documents.StatusProcessing); err != nil {
		return fmt.Errorf("set processing: %w", err)
	}

	src := ocr.Source{MimeType: doc.MimeType, FileName: doc.FileName}
	url, err := p.Store.SignedURL(ctx, doc.StorageKey, signedURLTTL)
	switch {
	case err == nil:
		src.URL = url
	case errors.Is(err, object.ErrSignedURLUnsupported):
		key := doc.StorageKey
		src.Open = func(ctx context.Context) (io.ReadCloser, error) {
			return p.Store.Open(ctx, key)
		}
	default:
		return fmt.Errorf("signed url: %w", err)
	}

	res, err := p.Provider.Process(ctx, src)
	if err != nil {
		return err
	}
	res.DocumentID = doc.ID
	res.UserID = doc.UserID
	if err := p.OCR.Upsert(ctx, res); err != nil {
		return fmt.Errorf("save ocr result: %w", err)
	}

	if err := p.Documents.UpdateStatus(ctx, doc.UserID, doc.ID, documents.StatusOCRComplete); err != nil {
		return fmt.Errorf("set ocr_complete: %w", err)
	}
	if p.Usage != nil {
		if err := p.Usage.Increment(ctx, doc.UserID); err != nil {
			// OCR output is saved; the quota miss is only logged.
			telemetry.Error("pipeline.usage_increment_failed", map[string]any{
				"document_id": doc.ID,
				"user_id":     doc.UserID,
				"error":       err.Error(),
			})
		}
	}
	return nil
}

func (p *Processor) markFailed(ctx context.Context, doc documents.Document, fields map[string]any) {
	ctx = context.WithoutCancel(ctx)
	if err := p.Documents.UpdateStatus(ctx, doc.UserID, doc.ID, documents.StatusFailed); err != nil {
		telemetry.Error("pipeline.mark_failed_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
	}
	if err := p.Documents.UpdateStage(ctx, doc.UserID, doc.ID, documents.StageFailed); err != nil {
		telemetry.Error("pipeline.mark_failed_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
	}
}

func (p *Processor) runMetadata(ctx context.Context, doc documents.Document, fields map[string]any) {
	if p.Metadata != nil {
		p.Metadata.Generate(ctx, doc.UserID, doc.ID, func(ev agent.Event) {
			switch ev.Type {
			case agent.EventError:
				telemetry.Warn("pipeline.metadata_failed", telemetry.Merge(fields, map[string]any{"error": ev.Error}))
			case agent.EventTool:
				telemetry.Info("pipeline.metadata_tool", telemetry.Merge(fields, map[string]any{"tool": ev.Tool}))
			case agent.EventComplete:
				telemetry.Info("pipeline.metadata_completed", fields)
			}
		})
	}
	if err := p.Documents.UpdateStage(ctx, doc.UserID, doc.ID, documents.StageDone); err != nil {
		telemetry.Error("pipeline.stage_update_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
	}
}

var _ documents.OCRScheduler = (*Processor)(nil)

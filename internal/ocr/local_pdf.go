package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"stackdocs-backend/internal/shared/metrics"
)

const localModel = "local-pdf-text"

// LocalPDFProvider reads the embedded text layer of PDFs. Development only:
// scanned pages and images yield nothing.
type LocalPDFProvider struct{}

// Name identifies the provider in logs.
func (LocalPDFProvider) Name() string { return "local" }

// Process extracts text from each PDF page.
func (LocalPDFProvider) Process(ctx context.Context, src Source) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()
	metrics.IncOCRStarted()

	res, err := processLocal(ctx, src)
	if err != nil {
		metrics.IncOCRFailed()
		return Result{}, fmt.Errorf("OCR processing failed: %w", err)
	}
	res.ProcessingTimeMS = time.Since(start).Milliseconds()
	metrics.IncOCRCompleted()
	metrics.ObserveOCRDurationMs(float64(res.ProcessingTimeMS))
	return res, nil
}

func processLocal(ctx context.Context, src Source) (Result, error) {
	mimeType := strings.ToLower(strings.TrimSpace(strings.Split(src.MimeType, ";")[0]))
	if mimeType != "application/pdf" {
		return Result{}, fmt.Errorf("unsupported mime type: %s", mimeType)
	}
	if src.Open == nil {
		return Result{}, errors.New("no document reader")
	}

	body, err := src.Open(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("open document: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return Result{}, fmt.Errorf("read document: %w", err)
	}

	pages, err := extractPDFPages(data)
	if err != nil {
		return Result{}, err
	}
	if len(pages) == 0 {
		return Result{}, errors.New("OCR returned no pages")
	}

	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		if t := strings.TrimSpace(p); t != "" {
			texts = append(texts, t)
		}
	}
	text := strings.Join(texts, "\n\n")
	if text == "" {
		return Result{}, errors.New("OCR returned empty text from all pages")
	}

	return Result{
		RawText:   text,
		PageCount: len(pages),
		Model:     localModel,
		UsageInfo: UsageInfo{PagesProcessed: len(pages), DocSizeBytes: int64(len(data))},
	}, nil
}

func extractPDFPages(data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	fonts := make(map[string]*pdf.Font)
	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

var _ Provider = LocalPDFProvider{}

package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"stackdocs-backend/internal/shared/metrics"
	"stackdocs-backend/internal/shared/telemetry"
)

const (
	defaultMistralBaseURL = "https://api.mistral.ai"
	defaultMistralModel   = "mistral-ocr-latest"
	imageContentHeader    = "--- Image Content ---"
)

// MistralClient calls the Mistral OCR endpoint.
type MistralClient struct {
	baseURL string
	model   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewMistralClient builds a client authenticated with a static bearer token.
func NewMistralClient(apiKey, baseURL, model string, timeout time.Duration) *MistralClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultMistralBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = defaultMistralModel
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: apiKey,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = timeout

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "MistralOCR",
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &MistralClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    httpClient,
		breaker: breaker,
	}
}

// Name identifies the provider in logs.
func (c *MistralClient) Name() string { return "mistral" }

type mistralDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type mistralRequest struct {
	Model              string          `json:"model"`
	Document           mistralDocument `json:"document"`
	TableFormat        string          `json:"table_format"`
	IncludeImageBase64 bool            `json:"include_image_base64"`
}

type mistralImage struct {
	ID              string   `json:"id"`
	TopLeftX        *float64 `json:"top_left_x,omitempty"`
	TopLeftY        *float64 `json:"top_left_y,omitempty"`
	BottomRightX    *float64 `json:"bottom_right_x,omitempty"`
	BottomRightY    *float64 `json:"bottom_right_y,omitempty"`
	ImageAnnotation string   `json:"image_annotation,omitempty"`
}

type mistralDimensions struct {
	DPI    int `json:"dpi"`
	Height int `json:"height"`
	Width  int `json:"width"`
}

type mistralTable struct {
	ID      string `json:"id"`
	Format  string `json:"format"`
	Content string `json:"content"`
}

type mistralPage struct {
	Index      int                `json:"index"`
	Markdown   string             `json:"markdown"`
	Text       string             `json:"text"`
	Images     []mistralImage     `json:"images"`
	Dimensions *mistralDimensions `json:"dimensions"`
	Tables     []mistralTable     `json:"tables"`
}

type mistralResponse struct {
	Pages     []mistralPage `json:"pages"`
	Model     string        `json:"model"`
	UsageInfo *UsageInfo    `json:"usage_info"`
}

// Process sends the document to Mistral OCR and assembles the page text.
func (c *MistralClient) Process(ctx context.Context, src Source) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "ocr.mistral",
		attribute.String("ocr.model", c.model),
		attribute.String("ocr.mime_type", src.MimeType),
	)
	defer span.End()

	start := time.Now()
	metrics.IncOCRStarted()

	doc, err := c.documentFor(ctx, src)
	if err != nil {
		metrics.IncOCRFailed()
		return Result{}, fmt.Errorf("OCR processing failed: %w", err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.call(ctx, doc)
	})
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		metrics.IncOCRFailed()
		return Result{}, fmt.Errorf("OCR processing failed: %w", err)
	}

	res, err := assemble(out.(*mistralResponse), c.model)
	if err != nil {
		span.RecordError(err)
		metrics.IncOCRFailed()
		return Result{}, fmt.Errorf("OCR processing failed: %w", err)
	}
	res.ProcessingTimeMS = elapsed.Milliseconds()

	metrics.IncOCRCompleted()
	metrics.ObserveOCRDurationMs(float64(res.ProcessingTimeMS))
	span.SetAttributes(attribute.Int("ocr.page_count", res.PageCount))
	return res, nil
}

func (c *MistralClient) documentFor(ctx context.Context, src Source) (mistralDocument, error) {
	url := src.URL
	if url == "" {
		if src.Open == nil {
			return mistralDocument{}, errors.New("no document url or reader")
		}
		body, err := src.Open(ctx)
		if err != nil {
			return mistralDocument{}, fmt.Errorf("open document: %w", err)
		}
		defer body.Close()
		raw, err := io.ReadAll(body)
		if err != nil {
			return mistralDocument{}, fmt.Errorf("read document: %w", err)
		}
		url = "data:" + src.MimeType + ";base64," + base64.StdEncoding.EncodeToString(raw)
	}
	if strings.HasPrefix(src.MimeType, "image/") {
		return mistralDocument{Type: "image_url", ImageURL: url}, nil
	}
	return mistralDocument{Type: "document_url", DocumentURL: url}, nil
}

func (c *MistralClient) call(ctx context.Context, doc mistralDocument) (*mistralResponse, error) {
	payload, err := json.Marshal(mistralRequest{
		Model:              c.model,
		Document:           doc,
		TableFormat:        "html",
		IncludeImageBase64: false,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ocr", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mistral ocr status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var parsed mistralResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &parsed, nil
}

func assemble(resp *mistralResponse, fallbackModel string) (Result, error) {
	if len(resp.Pages) == 0 {
		return Result{}, errors.New("OCR returned no pages")
	}

	var (
		texts       []string
		annotations []string
		tables      []string
		layoutPages []any
	)
	for _, page := range resp.Pages {
		text := page.Markdown
		if text == "" {
			text = page.Text
		}
		if text != "" {
			texts = append(texts, text)
		}
		for _, img := range page.Images {
			if img.ImageAnnotation != "" {
				annotations = append(annotations, "[Image content: "+img.ImageAnnotation+"]")
			}
		}
		for _, tbl := range page.Tables {
			if tbl.Content != "" {
				tables = append(tables, tbl.Content)
			}
		}
		if layout := pageLayout(page); len(layout) > 0 {
			layoutPages = append(layoutPages, layout)
		}
	}

	text := strings.Join(texts, "\n\n")
	if len(annotations) > 0 {
		text += "\n\n" + imageContentHeader + "\n" + strings.Join(annotations, "\n")
	}
	if text == "" {
		return Result{}, errors.New("OCR returned empty text from all pages")
	}

	model := resp.Model
	if model == "" {
		model = fallbackModel
	}
	res := Result{
		RawText:    text,
		HTMLTables: tables,
		PageCount:  len(resp.Pages),
		Model:      model,
	}
	if resp.UsageInfo != nil {
		res.UsageInfo = *resp.UsageInfo
	}
	if len(layoutPages) > 0 {
		res.LayoutData = map[string]any{"pages": layoutPages}
	}
	return res, nil
}

func pageLayout(page mistralPage) map[string]any {
	layout := map[string]any{"index": page.Index}
	if len(page.Images) > 0 {
		layout["images"] = page.Images
	}
	if page.Dimensions != nil {
		layout["dimensions"] = page.Dimensions
	}
	return layout
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Provider = (*MistralClient)(nil)

package ocr

import (
	"context"
	"io"
)

// Source points a provider at a stored document. URL is empty when the
// store cannot mint a URL the provider can reach; Open is then used.
type Source struct {
	URL      string
	MimeType string
	FileName string
	Open     func(ctx context.Context) (io.ReadCloser, error)
}

// Provider turns a document into text. DocumentID and UserID on the
// returned Result are left for the caller to fill.
type Provider interface {
	Process(ctx context.Context, src Source) (Result, error)
	Name() string
}

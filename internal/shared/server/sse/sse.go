// Package sse writes server-sent event streams over gin.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrStreamingUnsupported is returned when the writer cannot flush.
var ErrStreamingUnsupported = errors.New("stream not supported")

// Writer emits JSON payloads as `data:` frames.
type Writer struct {
	w        gin.ResponseWriter
	flusher  http.Flusher
	buffered bool
}

// Start sets the event-stream headers and returns a writer for c.
func Start(c *gin.Context) (*Writer, error) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	s := &Writer{w: c.Writer, flusher: flusher}
	s.flush()
	return s, nil
}

// Buffered reports whether frames are held until the handler returns.
func (s *Writer) Buffered() bool { return s.buffered }

// Send writes one event and flushes it.
func (s *Writer) Send(payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", encoded); err != nil {
		return err
	}
	s.flush()
	return nil
}

// flush pushes pending frames to the client. gin's writer always claims to
// flush but panics when the writer underneath cannot, as with the Lambda
// proxy; such responses are delivered whole once the handler returns.
func (s *Writer) flush() {
	if s.buffered {
		return
	}
	defer func() {
		if recover() != nil {
			s.buffered = true
		}
	}()
	s.flusher.Flush()
}

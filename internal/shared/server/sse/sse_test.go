package sse

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSendFramesJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	w, err := Start(c)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Send(map[string]string{"text": "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := w.Send(map[string]bool{"complete": true}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rec.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Fatalf("unexpected buffering header %q", got)
	}
	want := "data: {\"text\":\"hi\"}\n\ndata: {\"complete\":true}\n\n"
	if rec.Body.String() != want {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

// bufferedWriter has no Flush, like the Lambda proxy writer.
type bufferedWriter struct {
	header http.Header
	body   []byte
	code   int
}

func (b *bufferedWriter) Header() http.Header {
	if b.header == nil {
		b.header = http.Header{}
	}
	return b.header
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.code == 0 {
		b.code = http.StatusOK
	}
	b.body = append(b.body, p...)
	return len(p), nil
}

func (b *bufferedWriter) WriteHeader(code int) { b.code = code }

func TestSendWithoutUnderlyingFlusher(t *testing.T) {
	gin.SetMode(gin.TestMode)
	out := &bufferedWriter{}
	r := gin.New()
	r.GET("/stream", func(c *gin.Context) {
		w, err := Start(c)
		if err != nil {
			t.Errorf("Start: %v", err)
			return
		}
		if !w.Buffered() {
			t.Errorf("expected buffered writer")
		}
		_ = w.Send(map[string]string{"text": "hi"})
		_ = w.Send(map[string]bool{"complete": true})
	})
	r.ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/stream", nil))

	if out.code != http.StatusOK {
		t.Fatalf("status = %d", out.code)
	}
	want := "data: {\"text\":\"hi\"}\n\ndata: {\"complete\":true}\n\n"
	if string(out.body) != want {
		t.Fatalf("unexpected body %q", out.body)
	}
}

package metrics

import (
	"strings"
	"testing"
)

func TestHistogramBucketsAreCumulative(t *testing.T) {
	h := newHistogram([]float64{10, 100})
	h.Observe(5)
	h.Observe(50)
	h.Observe(500)

	var b strings.Builder
	snap := h.Snapshot()
	var cumulative uint64
	for i := range snap.buckets {
		cumulative += snap.counts[i]
		b.WriteString(formatFloat(snap.buckets[i]))
		b.WriteString(":")
		b.WriteString(formatFloat(float64(cumulative)))
		b.WriteString(" ")
	}
	if got := b.String(); got != "10:1 100:2 " {
		t.Fatalf("unexpected cumulative buckets %q", got)
	}
	if snap.count != 3 || snap.sum != 555 {
		t.Fatalf("unexpected totals count=%d sum=%v", snap.count, snap.sum)
	}
}

func TestRenderIncludesAgentRuns(t *testing.T) {
	IncAgentRun("extraction", "completed")
	IncAgentRun("extraction", "completed")

	out := Render()
	if !strings.Contains(out, `agent_runs_total{workflow="extraction",outcome="completed"}`) {
		t.Fatalf("agent run counter missing:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE ocr_duration_ms histogram") {
		t.Fatalf("ocr histogram missing:\n%s", out)
	}
}

func TestIncHTTPRequestGroupsByStatusClass(t *testing.T) {
	IncHTTPRequest("/api/documents/:id", 404)
	IncHTTPRequest("", 200)

	out := Render()
	for _, want := range []string{
		`http_requests_total{route="/api/documents/:id",code="4xx"}`,
		`http_requests_total{route="unmatched",code="2xx"}`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in:\n%s", want, out)
		}
	}
}

package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	documentsUploadedTotal atomic.Uint64
	ocrStartedTotal        atomic.Uint64
	ocrCompletedTotal      atomic.Uint64
	ocrFailedTotal         atomic.Uint64
	pipelineJobsReceived   atomic.Uint64
	pipelineJobsCompleted  atomic.Uint64
	pipelineJobsFailed     atomic.Uint64
	pipelineJobsDropped    atomic.Uint64
	httpPanicsTotal        atomic.Uint64

	agentRuns    = newLabeledCounter()
	httpRequests = newLabeledCounter()

	ocrDuration   = newHistogram([]float64{500, 1000, 2500, 5000, 10000, 30000, 60000, 120000})
	agentDuration = newHistogram([]float64{1000, 2500, 5000, 10000, 30000, 60000, 120000, 300000})
)

// IncDocumentsUploaded counts accepted uploads.
func IncDocumentsUploaded() { documentsUploadedTotal.Add(1) }

// IncOCRStarted counts OCR stage starts.
func IncOCRStarted() { ocrStartedTotal.Add(1) }

// IncOCRCompleted counts successful OCR stages.
func IncOCRCompleted() { ocrCompletedTotal.Add(1) }

// IncOCRFailed counts failed OCR stages.
func IncOCRFailed() { ocrFailedTotal.Add(1) }

// IncPipelineJobsReceived counts queue messages picked up by a worker.
func IncPipelineJobsReceived() { pipelineJobsReceived.Add(1) }

// IncPipelineJobsCompleted counts acknowledged queue messages.
func IncPipelineJobsCompleted() { pipelineJobsCompleted.Add(1) }

// IncPipelineJobsFailed counts messages left for redelivery.
func IncPipelineJobsFailed() { pipelineJobsFailed.Add(1) }

// IncPipelineJobsDropped counts unparseable messages deleted without processing.
func IncPipelineJobsDropped() { pipelineJobsDropped.Add(1) }

// IncAgentRun counts an agent run by workflow and outcome.
func IncAgentRun(workflow, outcome string) {
	agentRuns.Inc(fmt.Sprintf("workflow=%q,outcome=%q", workflow, outcome))
}

// IncHTTPRequest counts a served request by route template and status class.
func IncHTTPRequest(route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.Inc(fmt.Sprintf("route=%q,code=%q", route, strconv.Itoa(status/100)+"xx"))
}

// IncHTTPPanic counts handler panics turned into 500s.
func IncHTTPPanic() { httpPanicsTotal.Add(1) }

// ObserveOCRDurationMs records an OCR duration in milliseconds.
func ObserveOCRDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	ocrDuration.Observe(value)
}

// ObserveAgentDurationMs records an agent run duration in milliseconds.
func ObserveAgentDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	agentDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "documents_uploaded_total", "Total documents accepted for processing", documentsUploadedTotal.Load())
	writeCounter(&buf, "ocr_started_total", "Total OCR stages started", ocrStartedTotal.Load())
	writeCounter(&buf, "ocr_completed_total", "Total OCR stages completed", ocrCompletedTotal.Load())
	writeCounter(&buf, "ocr_failed_total", "Total OCR stages failed", ocrFailedTotal.Load())
	writeCounter(&buf, "pipeline_jobs_received_total", "Total pipeline jobs received", pipelineJobsReceived.Load())
	writeCounter(&buf, "pipeline_jobs_completed_total", "Total pipeline jobs acknowledged", pipelineJobsCompleted.Load())
	writeCounter(&buf, "pipeline_jobs_failed_total", "Total pipeline jobs left for redelivery", pipelineJobsFailed.Load())
	writeCounter(&buf, "pipeline_jobs_dropped_total", "Total unparseable pipeline jobs dropped", pipelineJobsDropped.Load())
	writeCounter(&buf, "http_panics_total", "Total recovered handler panics", httpPanicsTotal.Load())
	writeLabeledCounter(&buf, "http_requests_total", "Total HTTP requests by route and status class", httpRequests.Snapshot())
	writeLabeledCounter(&buf, "agent_runs_total", "Total agent runs by workflow and outcome", agentRuns.Snapshot())
	writeHistogram(&buf, "ocr_duration_ms", "OCR duration in milliseconds", ocrDuration.Snapshot())
	writeHistogram(&buf, "agent_run_duration_ms", "Agent run duration in milliseconds", agentDuration.Snapshot())
	return buf.String()
}

type labeledCounter struct {
	mu     sync.Mutex
	values map[string]uint64
}

func newLabeledCounter() *labeledCounter {
	return &labeledCounter{values: make(map[string]uint64)}
}

func (l *labeledCounter) Inc(labels string) {
	l.mu.Lock()
	l.values[labels]++
	l.mu.Unlock()
}

func (l *labeledCounter) Snapshot() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.values))
	for k, v := range l.values {
		out[k] = v
	}
	return out
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeLabeledCounter(buf *bytes.Buffer, name, help string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s} %d\n", name, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

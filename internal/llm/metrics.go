package llm

import (
	"sync"
	"time"
)

// Metrics is a snapshot of request statistics for one provider
type Metrics struct {
	TotalRequests  int64         `json:"total_requests"`
	FailedRequests int64         `json:"failed_requests"`
	AverageLatency time.Duration `json:"average_latency"`
	LastLatency    time.Duration `json:"last_latency"`
	LastRequestAt  time.Time     `json:"last_request_at"`
}

// ErrorRate returns the share of failed requests
func (m Metrics) ErrorRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.FailedRequests) / float64(m.TotalRequests)
}

type metricsRecorder struct {
	mu           sync.Mutex
	snapshot     Metrics
	totalLatency time.Duration
}

func (r *metricsRecorder) record(latency time.Duration, isError bool) Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshot.TotalRequests++
	if isError {
		r.snapshot.FailedRequests++
	}
	r.totalLatency += latency
	r.snapshot.LastLatency = latency
	r.snapshot.AverageLatency = r.totalLatency / time.Duration(r.snapshot.TotalRequests)
	r.snapshot.LastRequestAt = time.Now()
	return r.snapshot
}

func (r *metricsRecorder) get() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

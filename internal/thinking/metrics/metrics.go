// Package metrics tracks process-wide request and thought counters using
// atomic counters, following the same single-writer-tolerant, snapshot-read
// pattern as the teacher repo's observability registry.
package metrics

import (
	"sync/atomic"
	"time"
)

// Counters holds the atomic process-wide counters named in the resource
// model: total/successful/failed requests and total thoughts recorded.
type Counters struct {
	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64
	totalThoughts      atomic.Int64
	totalLatencyNanos  atomic.Int64
}

// Snapshot is a consistent-enough point-in-time read of the counters.
// Readers may observe slightly stale values if a writer is mid-update;
// no counter is ever observed decreasing or going negative.
type Snapshot struct {
	TotalRequests      int64   `json:"totalRequests"`
	SuccessfulRequests int64   `json:"successfulRequests"`
	FailedRequests     int64   `json:"failedRequests"`
	TotalThoughts      int64   `json:"totalThoughts"`
	AvgLatencyMillis   float64 `json:"avgLatencyMillis"`
}

// New returns a zeroed counter set.
func New() *Counters {
	return &Counters{}
}

// RecordSuccess marks one successful processThought call and the elapsed
// wall-clock duration it took.
func (c *Counters) RecordSuccess(elapsed time.Duration) {
	c.totalRequests.Add(1)
	c.successfulRequests.Add(1)
	c.totalThoughts.Add(1)
	c.totalLatencyNanos.Add(elapsed.Nanoseconds())
}

// RecordFailure marks one failed call inside the pipeline. Shape,
// business-logic and session-id validation failures do not call this;
// failures from the security gate onward do.
func (c *Counters) RecordFailure() {
	c.totalRequests.Add(1)
	c.failedRequests.Add(1)
}

// Snapshot reads every counter without blocking writers.
func (c *Counters) Snapshot() Snapshot {
	total := c.totalRequests.Load()
	success := c.successfulRequests.Load()
	failed := c.failedRequests.Load()
	thoughts := c.totalThoughts.Load()
	latency := c.totalLatencyNanos.Load()

	var avgMillis float64
	if success > 0 {
		avgMillis = float64(latency) / float64(success) / float64(time.Millisecond)
	}

	return Snapshot{
		TotalRequests:      total,
		SuccessfulRequests: success,
		FailedRequests:     failed,
		TotalThoughts:      thoughts,
		AvgLatencyMillis:   avgMillis,
	}
}

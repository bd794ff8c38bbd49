package authflow

import "sync"

// Metric event names recorded by the authorization flow and the publisher.
const (
	MetricLinkIssued      = "auth.link_issued"
	MetricCallbackSuccess = "auth.callback.success"
	MetricCallbackFailure = "auth.callback.failure"
	MetricRefreshSuccess  = "auth.refresh.success"
	MetricRefreshFailure  = "auth.refresh.failure"
	MetricPublishSuccess  = "post.publish.success"
	MetricPublishFailure  = "post.publish.failure"
)

// MetricsRecorder increments counters for auth and publish events.
type MetricsRecorder interface {
	Increment(event string)
}

// CounterMetrics implements MetricsRecorder with in-memory counts.
type CounterMetrics struct {
	mutex  sync.Mutex
	counts map[string]int64
}

// NewCounterMetrics constructs an in-memory metrics recorder.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{counts: make(map[string]int64)}
}

// Increment increases the counter for the given event.
func (recorder *CounterMetrics) Increment(event string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.counts[event]++
}

// Count returns the current value for the given event.
func (recorder *CounterMetrics) Count(event string) int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return recorder.counts[event]
}

// Snapshot returns a copy of all recorded counters.
func (recorder *CounterMetrics) Snapshot() map[string]int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	clone := make(map[string]int64, len(recorder.counts))
	for key, value := range recorder.counts {
		clone[key] = value
	}
	return clone
}

// NopMetrics discards every event.
type NopMetrics struct{}

// Increment does nothing.
func (NopMetrics) Increment(string) {}

func metricsOrNoop(recorder MetricsRecorder) MetricsRecorder {
	if recorder == nil {
		return NopMetrics{}
	}
	return recorder
}

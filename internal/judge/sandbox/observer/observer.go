// Package observer defines logging and metrics hooks for sandbox execution.
package observer

import "context"

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, language string, ok bool, timeMs int64)
	ObserveRun(ctx context.Context, language string, verdict string, timeMs int64, memoryKB int64)
}

// NoopMetricsRecorder drops every observation.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveCompile(ctx context.Context, language string, ok bool, timeMs int64) {
}

func (NoopMetricsRecorder) ObserveRun(ctx context.Context, language string, verdict string, timeMs int64, memoryKB int64) {
}

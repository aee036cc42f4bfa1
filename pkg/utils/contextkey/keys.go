package contextkey

import "context"

// key is a private type to avoid context key collisions across packages.
type key string

const (
	TraceID   key = "trace_id"
	RequestID key = "request_id"
	UserID    key = "user_id"
	RunID     key = "run_id"
	StepID    key = "step_id"
	TestID    key = "test_id"
)

// LogFields lists the keys the logger copies into every entry.
var LogFields = []key{TraceID, RequestID, UserID, RunID, StepID, TestID}

// With returns ctx carrying value under k. Empty values leave ctx unchanged.
func With(ctx context.Context, k key, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, k, value)
}

// Value returns the string stored under k, or "".
func Value(ctx context.Context, k key) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(k).(string)
	return v
}

package contextkey

import (
	"context"
	"testing"
)

func TestWithAndValue(t *testing.T) {
	ctx := With(context.Background(), RunID, "run-1")
	ctx = With(ctx, StepID, "")

	if got := Value(ctx, RunID); got != "run-1" {
		t.Fatalf("expected run-1, got %q", got)
	}
	if got := Value(ctx, StepID); got != "" {
		t.Fatalf("expected empty step id, got %q", got)
	}
	if got := Value(nil, RunID); got != "" {
		t.Fatalf("expected empty value for nil ctx, got %q", got)
	}
}

package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, ok := RunID(ctx); ok {
		t.Fatalf("empty context should carry no run ID")
	}

	ctx = WithRunID(ctx, "run")
	if got, ok := RunID(ctx); !ok || got != "run" {
		t.Fatalf("RunID mismatch: %v %v", got, ok)
	}

	ctx = WithStage(ctx, "navigator")
	if got, ok := Stage(ctx); !ok || got != "navigator" {
		t.Fatalf("Stage mismatch: %v %v", got, ok)
	}

	ctx = WithStage(ctx, "")
	if _, ok := Stage(ctx); ok {
		t.Fatalf("empty stage should not be reported")
	}
}

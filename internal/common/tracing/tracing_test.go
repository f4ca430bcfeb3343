package tracing

import (
	"context"
	"errors"
	"testing"
)

func TestBegin_WithoutParentSegment(t *testing.T) {
	ctx := context.Background()

	got, span := Begin(ctx, "NoParent")
	if got != ctx {
		t.Error("Begin() without parent segment should return the same context")
	}

	// 親セグメントがなくてもパニックしないこと
	span.AddMetadata("key", "value")
	span.End(errors.New("boom"))
	span.End(nil)
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "canceled", err: context.Canceled, want: KindCanceled},
		{name: "empty", err: ErrEmptyOutput, want: KindEmpty},
		{name: "network", err: errors.New("dial tcp: connection refused"), want: KindUnavailable},
		{name: "wrapped call error", err: fmt.Errorf("stage: %w", &CallError{Op: "x", Kind: KindRejected}), want: KindRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap("op", nil))

	err := Wrap("chat completion", context.DeadlineExceeded)
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, KindTimeout, ce.Kind)
	require.Equal(t, "chat completion", ce.Op)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Same(t, err, Wrap("other", err))
}

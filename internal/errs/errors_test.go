package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("status 429")
	err := Wrap(cause, SynthesisFailed, "segment exhausted retries").
		With("segment", 4).
		With("attempts", 3)

	assert.Equal(t,
		"[SynthesisFailed] segment exhausted retries | context: attempts=3, segment=4 | cause: status 429",
		err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: Unknown},
		{name: "direct", err: New(NotFound, "gone"), want: NotFound},
		{name: "wrapped with fmt", err: fmt.Errorf("fetch: %w", New(Unsupported, "tiktok")), want: Unsupported},
		{name: "context canceled", err: fmt.Errorf("stage: %w", context.Canceled), want: Canceled},
		{name: "plain", err: errors.New("boom"), want: Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsKindAndFatal(t *testing.T) {
	err := fmt.Errorf("wrap: %w", New(InvalidTimestamp, "end before start"))
	assert.True(t, IsKind(err, InvalidTimestamp))
	assert.False(t, IsKind(err, InvalidSegment))

	assert.False(t, SynthesisFailed.Fatal())
	assert.False(t, StyleAnalysisFailed.Fatal())
	assert.False(t, InvalidTimestamp.Fatal())
	assert.True(t, TranscriptionFailed.Fatal())
	assert.True(t, MixInputMismatch.Fatal())
}

func TestAdviceCoversKinds(t *testing.T) {
	for k := Unknown; k <= StyleAnalysisFailed; k++ {
		assert.NotEmpty(t, Advice(New(k, "x")), k.String())
	}
}

package synth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/llm"
)

type recordingSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.slept = append(r.slept, d)
	r.mu.Unlock()
	return ctx.Err()
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 16 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 16 * time.Second},
		{60, 16 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
	assert.Zero(t, Backoff{}.Delay(3))
}

func TestRetrierRetriesThenSucceeds(t *testing.T) {
	sleeper := &recordingSleeper{}
	r := NewRetrier(3, time.Second, Backoff{Base: 100 * time.Millisecond, Max: time.Second})
	r.Sleep = sleeper.Sleep

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline, "each attempt runs under a timeout")
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeper.slept)
}

func TestRetrierExhausted(t *testing.T) {
	sleeper := &recordingSleeper{}
	r := NewRetrier(2, 0, DefaultBackoff())
	r.Sleep = sleeper.Sleep

	err := r.Do(context.Background(), func(context.Context) error { return errors.New("boom") })
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.SynthesisFailed))
	assert.Len(t, sleeper.slept, 1)
}

func TestRetrierDoAsUsesCallerKind(t *testing.T) {
	r := NewRetrier(2, 0, DefaultBackoff())
	r.Sleep = (&recordingSleeper{}).Sleep

	err := r.DoAs(context.Background(), errs.TranslationFailed, "batch translation", func(context.Context) error {
		return errors.New("boom")
	})
	assert.Equal(t, errs.TranslationFailed, errs.KindOf(err))
	assert.Contains(t, err.Error(), "batch translation failed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.DoAs(ctx, errs.TranslationFailed, "batch translation", func(context.Context) error { return nil })
	assert.Equal(t, errs.Canceled, errs.KindOf(err))
	assert.Contains(t, err.Error(), "batch translation canceled")
}

func TestRetrierPermanentErrors(t *testing.T) {
	for _, perm := range []error{
		Permanent(errors.New("empty text")),
		&llm.StatusError{StatusCode: 400, Body: "bad voice"},
	} {
		r := NewRetrier(5, 0, DefaultBackoff())
		r.Sleep = (&recordingSleeper{}).Sleep

		calls := 0
		err := r.Do(context.Background(), func(context.Context) error {
			calls++
			return perm
		})
		assert.True(t, errs.IsKind(err, errs.SynthesisFailed))
		assert.Equal(t, 1, calls)
	}
}

func TestRetrierRateLimitPushesSharedGate(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sleeper := &recordingSleeper{}
	r := NewRetrier(2, 0, Backoff{Base: 2 * time.Second, Max: 10 * time.Second})
	r.Gate.now = func() time.Time { return now }
	r.Sleep = sleeper.Sleep

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &llm.StatusError{StatusCode: 429, Body: "quota"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.slept, "second attempt waits on the gate")
	assert.Equal(t, 2*time.Second, r.Gate.Remaining())
}

func TestGatePushKeepsLatestDeadline(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewGate()
	g.now = func() time.Time { return now }

	g.Push(5 * time.Second)
	g.Push(time.Second)
	assert.Equal(t, 5*time.Second, g.Remaining())
}

func TestRetrierCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier(5, 0, DefaultBackoff())
	r.Sleep = (&recordingSleeper{}).Sleep

	calls := 0
	err := r.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("interrupted")
	})
	assert.True(t, errs.IsKind(err, errs.Canceled))
	assert.Equal(t, 1, calls)
}

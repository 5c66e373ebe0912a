package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func succeed(_ context.Context, job *DubbingJob) (Outcome, error) {
	return Outcome{OutputPath: "/out/" + job.ID + ".mp4", Segments: 3}, nil
}

func TestQueue_Enqueue_DeduplicatesSameKey(t *testing.T) {
	q := NewQueue(2, nil)

	key := DedupeKey("https://x.com/a/status/1", "Japanese")
	jobA, createdA := q.Enqueue(EnqueueRequest{Source: "cli", DedupeKey: key})
	jobB, createdB := q.Enqueue(EnqueueRequest{Source: "redis", DedupeKey: key})

	require.True(t, createdA)
	require.False(t, createdB)
	require.NotNil(t, jobA)
	require.NotNil(t, jobB)
	assert.Equal(t, jobA.ID, jobB.ID)
	assert.Equal(t, "cli", jobB.Source)
}

func TestQueue_Enqueue_AllowsRetryAfterFailure(t *testing.T) {
	q := NewQueue(1, nil)

	var attempts atomic.Int32
	q.Start(context.Background(), func(_ context.Context, _ *DubbingJob) (Outcome, error) {
		if attempts.Add(1) == 1 {
			return Outcome{}, assert.AnError
		}
		return Outcome{}, nil
	})
	defer q.Stop()

	first, created := q.Enqueue(EnqueueRequest{Source: "cli", DedupeKey: "retry-key"})
	require.True(t, created)

	require.Eventually(t, func() bool {
		got, ok := q.Get(first.ID)
		return ok && got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	got, _ := q.Get(first.ID)
	assert.Equal(t, assert.AnError.Error(), got.Error)

	second, created := q.Enqueue(EnqueueRequest{Source: "cli", DedupeKey: "retry-key"})
	require.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)

	require.Eventually(t, func() bool {
		got, ok := q.Get(second.ID)
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_SkippedJobs(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(context.Background(), func(_ context.Context, _ *DubbingJob) (Outcome, error) {
		return Outcome{}, Skip(errors.New("unsupported url"))
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: "batch", DedupeKey: "k"})
	require.NoError(t, q.Wait(context.Background()))

	got, ok := q.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, got.Status)
	assert.Contains(t, got.Error, "unsupported url")
}

func TestQueue_WaitForBatch(t *testing.T) {
	q := NewQueue(3, nil)
	for _, url := range []string{"a", "b", "c", "d", "e"} {
		q.Enqueue(EnqueueRequest{Source: "batch", DedupeKey: DedupeKey(url, "Japanese"), Payload: Payload{URL: url}})
	}

	var ran atomic.Int32
	q.Start(context.Background(), func(ctx context.Context, job *DubbingJob) (Outcome, error) {
		ran.Add(1)
		return succeed(ctx, job)
	})
	defer q.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))
	assert.EqualValues(t, 5, ran.Load())

	list := q.List()
	require.Len(t, list, 5)
	for i, job := range list {
		assert.Equal(t, StatusSuccess, job.Status)
		assert.Equal(t, "/out/"+job.ID+".mp4", job.Outcome.OutputPath)
		if i > 0 {
			assert.Less(t, jobNumber(list[i-1].ID), jobNumber(job.ID), "oldest first")
		}
	}
}

func TestQueue_WaitHonoursContext(t *testing.T) {
	q := NewQueue(1, nil)
	q.Enqueue(EnqueueRequest{Source: "cli", DedupeKey: "never-started"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)
}

func TestQueue_StopLeavesInterruptedJobPending(t *testing.T) {
	store := newMemoryStore()
	q := NewQueue(1, store)

	started := make(chan struct{})
	q.Start(context.Background(), func(ctx context.Context, _ *DubbingJob) (Outcome, error) {
		close(started)
		<-ctx.Done()
		return Outcome{}, ctx.Err()
	})

	job, _ := q.Enqueue(EnqueueRequest{Source: "redis", DedupeKey: "long"})
	<-started
	q.Stop()

	got, ok := q.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, StatusPending, store.get(job.ID).Status)
}

package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
)

// fakeRedis keeps one list and one set in memory.
type fakeRedis struct {
	mu      sync.Mutex
	list    []string
	set     map[string]bool
	pushErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{set: make(map[string]bool)}
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) SAdd(_ context.Context, _ string, members ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range members {
		k := m.(string)
		if !f.set[k] {
			f.set[k] = true
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) SRem(_ context.Context, _ string, members ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range members {
		if f.set[m.(string)] {
			delete(f.set, m.(string))
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) SCard(context.Context, string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return redis.NewIntResult(int64(len(f.set)), nil)
}

func (f *fakeRedis) RPush(_ context.Context, _ string, values ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return redis.NewIntResult(0, f.pushErr)
	}
	for _, v := range values {
		f.list = append(f.list, v.(string))
	}
	return redis.NewIntResult(int64(len(f.list)), nil)
}

func (f *fakeRedis) BLPop(ctx context.Context, _ time.Duration, keys ...string) *redis.StringSliceCmd {
	if err := ctx.Err(); err != nil {
		return redis.NewStringSliceResult(nil, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.list) == 0 {
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
	v := f.list[0]
	f.list = f.list[1:]
	return redis.NewStringSliceResult([]string{keys[0], v}, nil)
}

func (f *fakeRedis) LLen(context.Context, string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return redis.NewIntResult(int64(len(f.list)), nil)
}

func TestSubmitDeduplicates(t *testing.T) {
	fake := newFakeRedis()
	in := New(fake, "vt:queue", "vt:seen")
	ctx := context.Background()

	added, err := in.Submit(ctx, Request{URL: "https://x.com/user/status/42?s=20", Target: "Japanese"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = in.Submit(ctx, Request{URL: "https://x.com/user/status/42", Target: "japanese"})
	require.NoError(t, err)
	assert.False(t, added, "same video and language")

	added, err = in.Submit(ctx, Request{URL: "https://x.com/user/status/42", Target: "English"})
	require.NoError(t, err)
	assert.True(t, added, "another language is a new request")

	queued, seen, err := in.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, queued)
	assert.EqualValues(t, 2, seen)
}

func TestSubmitRejectsUnsupportedURL(t *testing.T) {
	in := New(newFakeRedis(), "q", "s")
	_, err := in.Submit(context.Background(), Request{URL: "https://example.com/video"})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Unsupported))
}

func TestSubmitPushFailureForgetsKey(t *testing.T) {
	fake := newFakeRedis()
	fake.pushErr = errors.New("READONLY")
	in := New(fake, "q", "s")

	_, err := in.Submit(context.Background(), Request{URL: "https://youtu.be/abcdef1"})
	assert.ErrorContains(t, err, "READONLY")
	assert.Empty(t, fake.set)
}

func TestNext(t *testing.T) {
	fake := newFakeRedis()
	in := New(fake, "q", "s")
	ctx := context.Background()

	_, ok, err := in.Next(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "empty queue")

	fake.list = append(fake.list, "{not json", `{"url":"https://youtu.be/abcdef1","target":"Korean","skip_synthesis":true}`)

	_, ok, err = in.Next(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "malformed entry is dropped")

	req, ok, err := in.Next(ctx, time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Request{URL: "https://youtu.be/abcdef1", Target: "Korean", SkipSynthesis: true}, req)
}

func TestForget(t *testing.T) {
	fake := newFakeRedis()
	in := New(fake, "q", "s")
	ctx := context.Background()

	req := Request{URL: "https://youtu.be/abcdef1", Target: "Japanese"}
	added, err := in.Submit(ctx, req)
	require.NoError(t, err)
	require.True(t, added)

	require.NoError(t, in.Forget(ctx, req))
	added, err = in.Submit(ctx, req)
	require.NoError(t, err)
	assert.True(t, added)
}

func TestPump(t *testing.T) {
	fake := newFakeRedis()
	in := New(fake, "q", "s")
	for _, u := range []string{"https://youtu.be/video-a1", "https://youtu.be/video-b2", "https://youtu.be/video-c3"} {
		_, err := in.Submit(context.Background(), Request{URL: u})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	err := in.Pump(ctx, time.Millisecond, func(r Request) {
		got = append(got, r.URL)
		if len(got) == 3 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"https://youtu.be/video-a1", "https://youtu.be/video-b2", "https://youtu.be/video-c3"}, got)
}

func TestCloseWithoutConnection(t *testing.T) {
	assert.NoError(t, New(newFakeRedis(), "q", "s").Close())
}

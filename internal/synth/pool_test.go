package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noricha-vr/twitter-video-translator/internal/assemble"
	"github.com/noricha-vr/twitter-video-translator/internal/audio"
	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/timeline"
	"github.com/noricha-vr/twitter-video-translator/internal/workspace"
)

const testRate = 8000

func silentClip(sec float64) *audio.Clip {
	n := int(sec * testRate)
	frames := make(audio.Frames, n)
	for i := range frames {
		frames[i] = [2]float64{0.25, 0.25}
	}
	return &audio.Clip{Frames: frames, Format: audio.Format{SampleRate: testRate, Channels: 1}}
}

func tenSegmentTimeline(t *testing.T) *timeline.Timeline {
	t.Helper()
	raw := make([]timeline.Raw, 10)
	for i := range raw {
		raw[i] = timeline.Raw{Start: float64(i), End: float64(i) + 0.8, Text: fmt.Sprintf("line %d", i)}
	}
	tl, err := timeline.New(raw, 10)
	require.NoError(t, err)
	for i := 0; i < tl.Len(); i++ {
		require.NoError(t, tl.SetTranslation(i, fmt.Sprintf("行 %d", i)))
	}
	return tl
}

func TestPoolTenSegmentsTwoFailures(t *testing.T) {
	tl := tenSegmentTimeline(t)

	ws, err := workspace.NewManager(t.TempDir()).Open("pool")
	require.NoError(t, err)
	defer ws.Close()

	var inFlight, peak atomic.Int32
	fake := SynthesizerFunc(func(ctx context.Context, text string, _ *timeline.StyleHint, voice string) (*audio.Clip, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		if text == "行 3" || text == "行 7" {
			return nil, Permanent(errors.New("voice refused"))
		}
		return silentClip(0.5), nil
	})

	var progress atomic.Int32
	retry := NewRetrier(3, time.Second, DefaultBackoff())
	retry.Sleep = (&recordingSleeper{}).Sleep
	pool := &Pool{
		Synth:    fake,
		Retry:    retry,
		Workers:  3,
		Progress: func(done, total int) { progress.Store(int32(done)); assert.Equal(t, 10, total) },
	}

	result, err := pool.Run(context.Background(), tl, "Aoede", ws)
	require.NoError(t, err)

	assert.Equal(t, 8, result.Synthesized)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, 3, result.Failures[0].Index)
	assert.Equal(t, 7, result.Failures[1].Index)
	assert.True(t, errs.IsKind(result.Failures[0].Err, errs.SynthesisFailed))
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, int32(10), progress.Load())

	for i, seg := range tl.Segments() {
		if i == 3 || i == 7 {
			assert.Nil(t, seg.Clip, "failed segment %d has no fallback audio", i)
			continue
		}
		require.NotNil(t, seg.Clip)
		_, err := os.Stat(ws.SegmentClipPath(seg.Index))
		assert.NoError(t, err)
	}

	track, report, err := assemble.Assemble(tl, audio.Format{SampleRate: testRate, Channels: 1})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, track.Seconds(), 10.0)
	assert.Len(t, report.Gaps, 2)
}

func TestPoolSkipsUntranslated(t *testing.T) {
	tl, err := timeline.New([]timeline.Raw{{Start: 0, End: 1, Text: "a"}, {Start: 1, End: 2, Text: "b"}}, 2)
	require.NoError(t, err)
	require.NoError(t, tl.SetTranslation(1, "び"))

	pool := &Pool{Synth: SynthesizerFunc(func(context.Context, string, *timeline.StyleHint, string) (*audio.Clip, error) {
		return silentClip(0.2), nil
	}), Workers: 2}

	result, err := pool.Run(context.Background(), tl, "Aoede", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synthesized)
	assert.Equal(t, 1, result.Skipped)
}

func TestPoolCanceled(t *testing.T) {
	tl := tenSegmentTimeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := &Pool{Synth: SynthesizerFunc(func(context.Context, string, *timeline.StyleHint, string) (*audio.Clip, error) {
		return silentClip(0.2), nil
	}), Workers: 2}

	_, err := pool.Run(ctx, tl, "Aoede", nil)
	assert.True(t, errs.IsKind(err, errs.Canceled))
}

package subtitle

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/timeline"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{in: 0, want: "00:00:00,000"},
		{in: 1.5, want: "00:00:01,500"},
		{in: 61.0004, want: "00:01:01,000"},
		{in: 59.9996, want: "00:01:00,000"},
		{in: 3725.123, want: "01:02:05,123"},
		{in: -3, want: "00:00:00,000"},
		{in: math.NaN(), want: "00:00:00,000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimestamp(tt.in), "%v", tt.in)
	}
}

func sampleTimeline(t *testing.T) *timeline.Timeline {
	t.Helper()
	tl, err := timeline.New([]timeline.Raw{
		{Start: 0, End: 2, Text: "hi"},
		{Start: 2, End: 5.25, Text: "world"},
		{Start: 6.1, End: 7.999, Text: "bye"},
	}, 8)
	require.NoError(t, err)
	require.NoError(t, tl.SetTranslation(0, "やあ"))
	require.NoError(t, tl.SetTranslation(1, "世界"))
	return tl
}

func TestEncodeOrdinalsAndFallback(t *testing.T) {
	var cues []Cue
	for cue, err := range Encode(sampleTimeline(t), Translated) {
		require.NoError(t, err)
		cues = append(cues, cue)
	}

	require.Len(t, cues, 3)
	for i, c := range cues {
		assert.Equal(t, i+1, c.Ordinal)
	}
	assert.Equal(t, "やあ", cues[0].Text)
	assert.Equal(t, "bye", cues[2].Text, "missing translation falls back to the source text")
	assert.Equal(t, "2\n00:00:02,000 --> 00:00:05,250\n世界\n", cues[1].String())
}

func TestEncodeIsRestartable(t *testing.T) {
	seq := Encode(sampleTimeline(t), Source)

	collect := func() []string {
		var out []string
		for cue, err := range seq {
			require.NoError(t, err)
			out = append(out, cue.Text)
		}
		return out
	}
	assert.Equal(t, collect(), collect())
	assert.Equal(t, []string{"hi", "world", "bye"}, collect())

	// stopping early must not break the next pass
	for range seq {
		break
	}
	assert.Len(t, collect(), 3)
}

func TestEncodeClampsAndRejectsInvalid(t *testing.T) {
	segments := []timeline.Segment{
		{Index: 0, Start: math.NaN(), End: 1, SourceText: "a"},
		{Index: 1, Start: -2, End: -1, SourceText: "b"},
		{Index: 2, Start: 3, End: 2, SourceText: "c"},
		{Index: 3, Start: 4, End: 5, SourceText: "d"},
	}

	var cues []Cue
	var failures []error
	for cue, err := range EncodeSegments(segments, Source) {
		if err != nil {
			failures = append(failures, err)
			continue
		}
		cues = append(cues, cue)
	}

	require.Len(t, cues, 2)
	assert.Equal(t, 0.0, cues[0].Start)
	assert.Equal(t, 1, cues[0].Ordinal)
	assert.Equal(t, 2, cues[1].Ordinal)
	assert.Equal(t, 3, cues[1].Segment)

	require.Len(t, failures, 2)
	for _, err := range failures {
		assert.True(t, errs.IsKind(err, errs.InvalidTimestamp), err.Error())
	}
}

func TestEncodeRejectsCueThatRoundsToZeroLength(t *testing.T) {
	tests := []struct {
		name       string
		start, end float64
		wantErr    bool
	}{
		{name: "sub-millisecond span", start: 1.0001, end: 1.0004, wantErr: true},
		{name: "rounds onto the same millisecond", start: 2.0004, end: 2.0005 - 1e-9, wantErr: true},
		{name: "one millisecond", start: 3.0, end: 3.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments := []timeline.Segment{{Index: 4, Start: tt.start, End: tt.end, SourceText: "x"}}
			var buf bytes.Buffer
			written, dropped, err := WriteSRT(&buf, EncodeSegments(segments, Source))
			require.NoError(t, err)
			if !tt.wantErr {
				assert.Equal(t, 1, written)
				assert.Empty(t, dropped)
				return
			}
			assert.Equal(t, 0, written)
			require.Len(t, dropped, 1)
			assert.True(t, errs.IsKind(dropped[0], errs.InvalidTimestamp))
			assert.Empty(t, buf.String())
		})
	}
}

func TestWriteThenParseRoundTrip(t *testing.T) {
	tl := sampleTimeline(t)

	var buf bytes.Buffer
	written, dropped, err := WriteSRT(&buf, Encode(tl, Translated))
	require.NoError(t, err)
	assert.Equal(t, 3, written)
	assert.Empty(t, dropped)

	file, err := ReadSRTBytes(buf.Bytes(), "roundtrip.srt")
	require.NoError(t, err)
	require.Len(t, file.Lines, 3)

	for i, seg := range tl.Segments() {
		line := file.Lines[i]
		assert.Equal(t, i+1, line.Index)
		assert.Equal(t, Translated(seg), line.Text)
		assert.InDelta(t, seg.Start, line.StartTime.Seconds(), float64(time.Millisecond)/float64(time.Second))
		assert.InDelta(t, seg.End, line.EndTime.Seconds(), float64(time.Millisecond)/float64(time.Second))
	}
}

func TestWriteFileReportsDropped(t *testing.T) {
	path := t.TempDir() + "/out/subtitles.srt"
	segments := []timeline.Segment{
		{Index: 0, Start: 1, End: 1, SourceText: "zero"},
		{Index: 1, Start: 1, End: 2, SourceText: "ok"},
	}
	written, dropped, err := WriteFile(path, EncodeSegments(segments, Source))
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Len(t, dropped, 1)

	file, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, file.Lines, 1)
	assert.Equal(t, 1, file.Lines[0].Index)
}

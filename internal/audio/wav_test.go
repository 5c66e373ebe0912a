package audio

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n, rate int, freq, amp float64) Frames {
	frames := make(Frames, n)
	for i := range frames {
		v := amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		frames[i] = [2]float64{v, v}
	}
	return frames
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segments", "segment_0000.wav")
	format := Format{SampleRate: 24000, Channels: 1}
	frames := sine(2400, 24000, 440, 0.5)

	require.NoError(t, WriteWAV(path, frames, format))

	clip, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, format, clip.Format)
	assert.Equal(t, path, clip.Path)
	require.Len(t, clip.Frames, len(frames))
	for i := range frames {
		assert.InDelta(t, frames[i][0], clip.Frames[i][0], 1.0/16384, "frame %d", i)
	}
	assert.InDelta(t, 0.1, clip.Seconds(), 1e-9)
}

func TestWriteWAVHardClips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loud.wav")
	format := Format{SampleRate: 8000, Channels: 2}
	require.NoError(t, WriteWAV(path, Frames{{1.7, -2.5}, {0.25, -0.25}}, format))

	clip, err := ReadWAV(path)
	require.NoError(t, err)
	require.Len(t, clip.Frames, 2)
	assert.InDelta(t, 1.0, clip.Frames[0][0], 1e-3)
	assert.InDelta(t, -1.0, clip.Frames[0][1], 1e-3)
	assert.InDelta(t, 0.25, clip.Frames[1][0], 1e-3)
}

func TestReadWAVMissingFile(t *testing.T) {
	_, err := ReadWAV(filepath.Join(t.TempDir(), "absent.wav"))
	require.Error(t, err)
}

func TestDecodePCM16(t *testing.T) {
	data := make([]byte, 7)
	binary.LittleEndian.PutUint16(data[0:], uint16(16384))
	v := int16(-32768)
	binary.LittleEndian.PutUint16(data[2:], uint16(v))
	binary.LittleEndian.PutUint16(data[4:], 0)

	clip, err := DecodePCM16(data, 24000)
	require.NoError(t, err)
	require.Len(t, clip.Frames, 3)
	assert.InDelta(t, 0.5, clip.Frames[0][0], 1e-9)
	assert.InDelta(t, -1.0, clip.Frames[1][1], 1e-9)
	assert.Equal(t, 1, clip.Format.Channels)

	_, err = DecodePCM16(data, 0)
	assert.Error(t, err)
}

func TestRateFromMIME(t *testing.T) {
	tests := []struct {
		mime string
		want int
	}{
		{mime: "audio/L16;codec=pcm;rate=24000", want: 24000},
		{mime: "audio/L16; rate=16000", want: 16000},
		{mime: "audio/L16", want: 22050},
		{mime: "not a mime;;", want: 22050},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, RateFromMIME(tt.mime, 22050))
		})
	}
}

func TestResampleKeepsDuration(t *testing.T) {
	frames := sine(16000, 16000, 220, 0.3)
	out, err := Resample(frames, 16000, 24000)
	require.NoError(t, err)
	assert.InDelta(t, 24000, len(out), 64)

	same, err := Resample(frames, 16000, 16000)
	require.NoError(t, err)
	assert.Len(t, same, len(frames))
}

func TestTrackGrowNeverShrinks(t *testing.T) {
	tr := NewTrack(Format{SampleRate: 10, Channels: 1}, 5)
	tr.Frames[4] = [2]float64{0.5, 0.5}

	tr.Grow(3)
	assert.Equal(t, 5, tr.Len())

	tr.Grow(12)
	assert.Equal(t, 12, tr.Len())
	assert.Equal(t, 0.5, tr.Frames[4][0])
	assert.Equal(t, [2]float64{}, tr.Frames[11])
	assert.InDelta(t, 1.2, tr.Seconds(), 1e-9)
}

func TestFormatOffsets(t *testing.T) {
	f := Format{SampleRate: 24000}
	assert.Equal(t, 48000, f.Offset(2.0))
	assert.Equal(t, 0, f.Offset(-1))
	assert.Equal(t, 0, f.Offset(math.NaN()))
	assert.Equal(t, 120001, f.FramesFor(5.00001))
}

func TestClipSlice(t *testing.T) {
	clip := &Clip{Frames: make(Frames, 100), Format: Format{SampleRate: 10, Channels: 1}}
	for i := range clip.Frames {
		clip.Frames[i] = [2]float64{float64(i), float64(i)}
	}

	s := clip.Slice(1, 2.5)
	require.Equal(t, 15, s.Len())
	assert.Equal(t, 10.0, s.Frames[0][0])

	s.Frames[0][0] = -1
	assert.Equal(t, 10.0, clip.Frames[10][0], "slice copies")

	assert.Equal(t, 0, clip.Slice(20, 30).Len())
	assert.Equal(t, 5, clip.Slice(9.5, 30).Len())
}

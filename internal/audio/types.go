// Package audio holds in-memory PCM buffers and the WAV codec used for
// every intermediate file of a job.
package audio

import (
	"math"
	"time"

	"github.com/gopxl/beep"
)

// Frames are stereo float samples in [-1, 1]. Mono sources are stored with
// both channels equal, which is how the beep decoders deliver them.
type Frames = [][2]float64

type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) beep() beep.Format {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return beep.Format{SampleRate: beep.SampleRate(f.SampleRate), NumChannels: ch, Precision: 2}
}

// FramesFor returns the frame count covering sec seconds, rounded up.
func (f Format) FramesFor(sec float64) int {
	if sec <= 0 || math.IsNaN(sec) {
		return 0
	}
	return int(math.Ceil(sec * float64(f.SampleRate)))
}

// Offset returns the frame offset of a timestamp, rounded to nearest.
func (f Format) Offset(sec float64) int {
	if sec <= 0 || math.IsNaN(sec) {
		return 0
	}
	return int(math.Round(sec * float64(f.SampleRate)))
}

// Clip is one synthesized utterance.
type Clip struct {
	Frames Frames
	Format Format
	// Path is the WAV file backing the clip inside the job workspace, if any.
	Path string
}

func (c *Clip) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Frames)
}

func (c *Clip) Seconds() float64 {
	if c == nil || c.Format.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Frames)) / float64(c.Format.SampleRate)
}

func (c *Clip) Duration() time.Duration {
	return time.Duration(c.Seconds() * float64(time.Second))
}

// Track is a buffer spanning a whole timeline.
type Track struct {
	Frames Frames
	Format Format
}

// NewTrack allocates n frames of silence.
func NewTrack(format Format, n int) *Track {
	return &Track{Frames: make(Frames, n), Format: format}
}

func (t *Track) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Frames)
}

func (t *Track) Seconds() float64 {
	if t == nil || t.Format.SampleRate <= 0 {
		return 0
	}
	return float64(len(t.Frames)) / float64(t.Format.SampleRate)
}

// Grow extends the track with silence up to n frames. It never shrinks.
func (t *Track) Grow(n int) {
	if n <= len(t.Frames) {
		return
	}
	if n <= cap(t.Frames) {
		old := len(t.Frames)
		t.Frames = t.Frames[:n]
		clear(t.Frames[old:])
		return
	}
	grown := make(Frames, n, n+n/4)
	copy(grown, t.Frames)
	t.Frames = grown
}

// Peak returns the largest absolute sample value.
func (t *Track) Peak() float64 {
	return peak(t.Frames)
}

// RMS returns the root mean square over both channels.
func (t *Track) RMS() float64 {
	return rms(t.Frames)
}

// Clone returns a deep copy.
func (t *Track) Clone() *Track {
	out := &Track{Frames: make(Frames, len(t.Frames)), Format: t.Format}
	copy(out.Frames, t.Frames)
	return out
}

func (c *Clip) Peak() float64 {
	if c == nil {
		return 0
	}
	return peak(c.Frames)
}

func peak(frames Frames) float64 {
	var p float64
	for _, f := range frames {
		p = max(p, math.Abs(f[0]), math.Abs(f[1]))
	}
	return p
}

func rms(frames Frames) float64 {
	if len(frames) == 0 {
		return 0
	}
	var sum float64
	for _, f := range frames {
		sum += f[0]*f[0] + f[1]*f[1]
	}
	return math.Sqrt(sum / float64(2*len(frames)))
}

// DBFS converts a linear amplitude to decibels relative to full scale.
func DBFS(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}

// FromDB converts decibels to a linear gain.
func FromDB(db float64) float64 {
	return math.Pow(10, db/20)
}

// Slice copies the frames between two timestamps. Bounds are clamped to
// the clip.
func (c *Clip) Slice(start, end float64) *Clip {
	from := min(c.Format.Offset(start), len(c.Frames))
	to := min(c.Format.Offset(end), len(c.Frames))
	if to < from {
		to = from
	}
	frames := make(Frames, to-from)
	copy(frames, c.Frames[from:to])
	return &Clip{Frames: frames, Format: c.Format}
}

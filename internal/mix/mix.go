// Package mix sums clips into tracks and blends the dubbed track with the
// original audio. Nothing here rescales by the number of inputs: every gain
// is explicit and fixed for the whole track.
package mix

import (
	"fmt"

	"github.com/noricha-vr/twitter-video-translator/internal/audio"
	"github.com/noricha-vr/twitter-video-translator/internal/errs"
)

const (
	DefaultOriginalVolume   = 0.15
	DefaultTranslatedVolume = 1.8

	MinOriginalVolume   = 0.0
	MaxOriginalVolume   = 1.0
	MinTranslatedVolume = 0.5
	MaxTranslatedVolume = 3.0
)

// Placement is one clip positioned on a track.
type Placement struct {
	Frames audio.Frames
	Offset int
	Gain   float64
}

// SumInto adds src*gain into dst starting at offset, growing dst when src
// runs past its end. Negative offsets drop the leading part of src.
func SumInto(dst *audio.Track, src audio.Frames, offset int, gain float64) {
	if offset < 0 {
		if -offset >= len(src) {
			return
		}
		src = src[-offset:]
		offset = 0
	}
	dst.Grow(offset + len(src))
	out := dst.Frames[offset : offset+len(src)]
	for i, f := range src {
		out[i][0] += f[0] * gain
		out[i][1] += f[1] * gain
	}
}

// SumAll places every clip on a silent track of at least length frames.
// The result does not depend on the order of placements beyond float
// rounding of the additions.
func SumAll(format audio.Format, length int, placements []Placement) *audio.Track {
	end := length
	for _, p := range placements {
		end = max(end, p.Offset+len(p.Frames))
	}
	track := audio.NewTrack(format, end)
	for _, p := range placements {
		SumInto(track, p.Frames, p.Offset, p.Gain)
	}
	return track
}

// Levels are the fixed gains of the final mix.
type Levels struct {
	Original   float64
	Translated float64
}

func DefaultLevels() Levels {
	return Levels{Original: DefaultOriginalVolume, Translated: DefaultTranslatedVolume}
}

func (l Levels) Validate() error {
	if l.Original < MinOriginalVolume || l.Original > MaxOriginalVolume {
		return errs.Newf(errs.Config, "original volume %.2f outside [%.1f, %.1f]",
			l.Original, MinOriginalVolume, MaxOriginalVolume)
	}
	if l.Translated < MinTranslatedVolume || l.Translated > MaxTranslatedVolume {
		return errs.Newf(errs.Config, "translated volume %.2f outside [%.1f, %.1f]",
			l.Translated, MinTranslatedVolume, MaxTranslatedVolume)
	}
	return nil
}

// Final blends original*Original with translated*Translated. The output is
// as long as the longer input; the shorter one counts as silence past its
// end. The original is resampled to the translated rate when they differ.
func Final(original, translated *audio.Track, levels Levels) (*audio.Track, error) {
	if err := levels.Validate(); err != nil {
		return nil, err
	}
	if original == nil || translated == nil {
		return nil, errs.New(errs.MixInputMismatch, "final mix needs both the original and the translated track")
	}
	if original.Format.SampleRate <= 0 || translated.Format.SampleRate <= 0 {
		return nil, errs.New(errs.MixInputMismatch, "final mix input has no sample rate").
			With("original_rate", original.Format.SampleRate).
			With("translated_rate", translated.Format.SampleRate)
	}

	origFrames := original.Frames
	if original.Format.SampleRate != translated.Format.SampleRate {
		resampled, err := audio.Resample(origFrames, original.Format.SampleRate, translated.Format.SampleRate)
		if err != nil {
			return nil, errs.Wrap(err, errs.MixInputMismatch, "resample original track")
		}
		origFrames = resampled
	}

	format := audio.Format{
		SampleRate: translated.Format.SampleRate,
		Channels:   max(original.Format.Channels, translated.Format.Channels),
	}
	out := SumAll(format, 0, []Placement{
		{Frames: origFrames, Gain: levels.Original},
		{Frames: translated.Frames, Gain: levels.Translated},
	})
	return out, nil
}

// String is used in job logs.
func (l Levels) String() string {
	return fmt.Sprintf("original=%.2f translated=%.2f", l.Original, l.Translated)
}

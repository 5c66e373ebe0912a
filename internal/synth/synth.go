// Package synth turns translated segment text into speech clips.
package synth

import (
	"context"

	"github.com/noricha-vr/twitter-video-translator/internal/audio"
	"github.com/noricha-vr/twitter-video-translator/internal/timeline"
)

// Synthesizer produces one clip for one utterance. The clip is returned at
// its natural length; callers never stretch it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, style *timeline.StyleHint, voice string) (*audio.Clip, error)
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, text string, style *timeline.StyleHint, voice string) (*audio.Clip, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, text string, style *timeline.StyleHint, voice string) (*audio.Clip, error) {
	return f(ctx, text, style, voice)
}

// Prompt prefixes text with the speaking directive of style, if any.
func Prompt(text string, style *timeline.StyleHint) string {
	if d := style.Directive(); d != "" {
		return d + ": " + text
	}
	return text
}

// Package timeline models the ordered segments of one job.
package timeline

import (
	"fmt"
	"strings"

	"github.com/noricha-vr/twitter-video-translator/internal/audio"
)

// StyleHint describes how a segment was spoken in the source audio.
type StyleHint struct {
	Emotion    string `json:"emotion"`
	Speed      string `json:"speed"`
	Tone       string `json:"tone"`
	Intonation string `json:"intonation"`
	Notes      string `json:"notes,omitempty"`
}

func DefaultStyle() *StyleHint {
	return &StyleHint{
		Emotion:    "neutral",
		Speed:      "normal",
		Tone:       "neutral",
		Intonation: "natural",
	}
}

// Directive renders the hint as a speaking instruction for a TTS prompt.
// A nil hint renders as the empty string.
func (h *StyleHint) Directive() string {
	if h == nil {
		return ""
	}
	var parts []string
	if h.Emotion != "" && h.Emotion != "neutral" {
		parts = append(parts, h.Emotion)
	}
	if h.Tone != "" && h.Tone != "neutral" {
		parts = append(parts, fmt.Sprintf("in a %s tone", h.Tone))
	}
	switch h.Speed {
	case "fast":
		parts = append(parts, "at a quick pace")
	case "slow":
		parts = append(parts, "slowly")
	}
	if h.Intonation != "" && h.Intonation != "natural" {
		parts = append(parts, fmt.Sprintf("with %s intonation", h.Intonation))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Say " + strings.Join(parts, ", ")
}

// Raw is a segment as produced by a transcriber.
type Raw struct {
	Start float64
	End   float64
	Text  string
}

type Segment struct {
	// Index is the 0-based transcription order, used in reports and
	// workspace file names.
	Index          int
	Start          float64
	End            float64
	SourceText     string
	TranslatedText string
	Clip           *audio.Clip
	Style          *StyleHint
}

func (s Segment) Duration() float64 {
	return s.End - s.Start
}

func (s Segment) HasTranslation() bool {
	return strings.TrimSpace(s.TranslatedText) != ""
}

// Package transcribe turns the extracted source audio into timed raw
// segments.
package transcribe

import (
	"context"
	"strings"

	"golang.org/x/text/language"

	lang "github.com/noricha-vr/twitter-video-translator/internal/language"
	"github.com/noricha-vr/twitter-video-translator/internal/subtitle"
	"github.com/noricha-vr/twitter-video-translator/internal/timeline"
)

type Result struct {
	Language language.Tag
	Text     string
	Duration float64
	Segments []timeline.Raw
}

// Texts returns the segment texts in order.
func (r Result) Texts() []string {
	out := make([]string, len(r.Segments))
	for i, s := range r.Segments {
		out[i] = s.Text
	}
	return out
}

// ChunkStore is where oversized audio is split.
type ChunkStore interface {
	ChunkDir() string
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, store ChunkStore) (Result, error)
}

// resolveLanguage reads the language reported by the API, which may be a
// code ("en") or a lowercase name ("english"). Text detection is the
// fallback.
func resolveLanguage(reported string, texts []string) language.Tag {
	reported = strings.TrimSpace(reported)
	if reported != "" {
		if l, err := lang.Lookup(reported); err == nil {
			base, _ := l.Tag.Base()
			return language.Make(base.String())
		}
		if tag, err := language.Parse(reported); err == nil {
			return tag
		}
	}
	return subtitle.DetectLanguage(texts...)
}

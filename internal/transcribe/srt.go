package transcribe

import (
	"context"

	"golang.org/x/text/language"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/subtitle"
	"github.com/noricha-vr/twitter-video-translator/internal/timeline"
)

// SRTFile uses an existing subtitle file in place of speech recognition.
type SRTFile struct {
	Path string
	// Language overrides the detected language when set.
	Language language.Tag
}

func (s SRTFile) Transcribe(ctx context.Context, _ string, _ ChunkStore) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, errs.Wrap(err, errs.Canceled, "transcription canceled")
	}
	f, err := subtitle.ParseFile(s.Path)
	if err != nil {
		return Result{}, errs.Wrap(err, errs.TranscriptionFailed, "read subtitle file").With("path", s.Path)
	}

	result := Result{Language: f.Language}
	if s.Language != language.Und {
		result.Language = s.Language
	}
	for _, line := range f.Lines {
		raw := timeline.Raw{Start: line.StartTime.Seconds(), End: line.EndTime.Seconds(), Text: line.Text}
		result.Segments = append(result.Segments, raw)
		result.Duration = max(result.Duration, raw.End)
	}
	return result, nil
}

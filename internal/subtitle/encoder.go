package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/timeline"
)

// TextSource picks the caption text of a segment.
type TextSource func(timeline.Segment) string

// Translated uses the translation and falls back to the source text.
func Translated(s timeline.Segment) string {
	if s.HasTranslation() {
		return s.TranslatedText
	}
	return s.SourceText
}

// Source uses the transcribed text.
func Source(s timeline.Segment) string {
	return s.SourceText
}

// Encode returns the cues of a timeline in timeline order. The sequence
// is lazy and can be ranged over any number of times. Negative and NaN
// timestamps are clamped to zero; an entry whose end does not round to a
// later millisecond than its start yields an InvalidTimestamp error and no
// ordinal is spent on it.
func Encode(tl *timeline.Timeline, text TextSource) iter.Seq2[Cue, error] {
	return EncodeSegments(tl.Segments(), text)
}

// EncodeSegments is Encode over an explicit segment list.
func EncodeSegments(segments []timeline.Segment, text TextSource) iter.Seq2[Cue, error] {
	if text == nil {
		text = Translated
	}
	return func(yield func(Cue, error) bool) {
		ordinal := 0
		for _, seg := range segments {
			start, end := clamp(seg.Start), clamp(seg.End)
			if millis(end) <= millis(start) {
				err := errs.Newf(errs.InvalidTimestamp, "caption for segment %d ends at or before its start", seg.Index).
					With("segment", seg.Index).With("start", start).With("end", end)
				if !yield(Cue{Segment: seg.Index, Start: start, End: end}, err) {
					return
				}
				continue
			}

			ordinal++
			cue := Cue{
				Ordinal: ordinal,
				Segment: seg.Index,
				Start:   start,
				End:     end,
				Text:    strings.TrimSpace(text(seg)),
			}
			if !yield(cue, nil) {
				return
			}
		}
	}
}

func clamp(sec float64) float64 {
	if math.IsNaN(sec) || sec < 0 {
		return 0
	}
	return sec
}

// millis is the millisecond a timestamp is written as.
func millis(sec float64) int64 {
	return int64(math.Round(clamp(sec) * 1000))
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm rounded to the millisecond.
func FormatTimestamp(sec float64) string {
	ms := millis(sec)
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

func (c Cue) String() string {
	return fmt.Sprintf("%d\n%s --> %s\n%s\n", c.Ordinal, FormatTimestamp(c.Start), FormatTimestamp(c.End), c.Text)
}

// WriteSRT writes every valid cue and returns the errors of dropped ones.
func WriteSRT(w io.Writer, cues iter.Seq2[Cue, error]) (written int, dropped []error, err error) {
	bw := bufio.NewWriter(w)
	for cue, cueErr := range cues {
		if cueErr != nil {
			dropped = append(dropped, cueErr)
			continue
		}
		if written > 0 {
			if _, err := bw.WriteString("\n"); err != nil {
				return written, dropped, err
			}
		}
		if _, err := bw.WriteString(cue.String()); err != nil {
			return written, dropped, err
		}
		written++
	}
	return written, dropped, bw.Flush()
}

// WriteFile writes cues as an SRT file at path.
func WriteFile(path string, cues iter.Seq2[Cue, error]) (int, []error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, nil, fmt.Errorf("create subtitle dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, nil, fmt.Errorf("create subtitle file: %w", err)
	}
	written, dropped, err := WriteSRT(f, cues)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return written, dropped, err
}

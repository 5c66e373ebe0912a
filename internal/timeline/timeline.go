package timeline

import (
	"math"
	"slices"

	"github.com/noricha-vr/twitter-video-translator/internal/audio"
	"github.com/noricha-vr/twitter-video-translator/internal/errs"
)

// Timeline owns the segments of one job ordered by start time.
// Positions passed to At, SetTranslation, AttachClip and SetStyle are
// timeline positions. Writes to distinct positions may run concurrently;
// the slice itself is never resized after construction.
type Timeline struct {
	segments       []Segment
	sourceDuration float64
}

// New builds a timeline and rejects the whole input if any raw segment is
// invalid.
func New(raw []Raw, sourceDuration float64) (*Timeline, error) {
	for i, r := range raw {
		if err := validate(i, r); err != nil {
			return nil, err
		}
	}
	tl, _ := Build(raw, sourceDuration)
	return tl, nil
}

// Build keeps the valid raw segments and returns one InvalidSegment error
// per dropped entry. Kept segments are renumbered in transcription order.
func Build(raw []Raw, sourceDuration float64) (*Timeline, []error) {
	var dropped []error
	segments := make([]Segment, 0, len(raw))
	for i, r := range raw {
		if err := validate(i, r); err != nil {
			dropped = append(dropped, err)
			continue
		}
		segments = append(segments, Segment{
			Index:      len(segments),
			Start:      r.Start,
			End:        r.End,
			SourceText: r.Text,
		})
	}

	slices.SortStableFunc(segments, func(a, b Segment) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})

	if math.IsNaN(sourceDuration) || sourceDuration < 0 {
		sourceDuration = 0
	}
	return &Timeline{segments: segments, sourceDuration: sourceDuration}, dropped
}

func validate(i int, r Raw) error {
	var err *errs.Error
	switch {
	case math.IsNaN(r.Start) || math.IsNaN(r.End) || math.IsInf(r.Start, 0) || math.IsInf(r.End, 0):
		err = errs.Newf(errs.InvalidSegment, "segment %d has a non-finite timestamp", i).
			With("start", r.Start).With("end", r.End)
	case r.Start < 0:
		err = errs.Newf(errs.InvalidSegment, "segment %d starts before zero", i).
			With("start", r.Start)
	case r.End <= r.Start:
		err = errs.Newf(errs.InvalidSegment, "segment %d ends at or before its start", i).
			With("start", r.Start).With("end", r.End)
	default:
		return nil
	}
	return err.With("index", i)
}

func (t *Timeline) Len() int {
	return len(t.segments)
}

// At returns a copy of the segment at position i.
func (t *Timeline) At(i int) (Segment, error) {
	if err := t.check(i); err != nil {
		return Segment{}, err
	}
	return t.segments[i], nil
}

// Segments returns a copy of all segments in timeline order.
func (t *Timeline) Segments() []Segment {
	return slices.Clone(t.segments)
}

// Texts returns the source texts in timeline order.
func (t *Timeline) Texts() []string {
	texts := make([]string, len(t.segments))
	for i, s := range t.segments {
		texts[i] = s.SourceText
	}
	return texts
}

// Translations returns the translated texts in timeline order.
func (t *Timeline) Translations() []string {
	texts := make([]string, len(t.segments))
	for i, s := range t.segments {
		texts[i] = s.TranslatedText
	}
	return texts
}

// SourceDuration is the probed length of the source media.
func (t *Timeline) SourceDuration() float64 {
	return t.sourceDuration
}

// Duration is the larger of the last segment end and the source length.
func (t *Timeline) Duration() float64 {
	d := t.sourceDuration
	for _, s := range t.segments {
		d = max(d, s.End)
	}
	return d
}

func (t *Timeline) SetTranslation(i int, text string) error {
	if err := t.check(i); err != nil {
		return err
	}
	t.segments[i].TranslatedText = text
	return nil
}

// AttachClip sets or replaces the clip of position i. A nil clip clears it.
func (t *Timeline) AttachClip(i int, clip *audio.Clip) error {
	if err := t.check(i); err != nil {
		return err
	}
	t.segments[i].Clip = clip
	return nil
}

func (t *Timeline) SetStyle(i int, hint *StyleHint) error {
	if err := t.check(i); err != nil {
		return err
	}
	t.segments[i].Style = hint
	return nil
}

func (t *Timeline) check(i int) error {
	if i < 0 || i >= len(t.segments) {
		return errs.Newf(errs.IndexOutOfRange, "position %d outside timeline of %d segments", i, len(t.segments))
	}
	return nil
}

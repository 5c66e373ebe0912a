// Package assemble places synthesized clips on one continuous track.
package assemble

import (
	"github.com/noricha-vr/twitter-video-translator/internal/audio"
	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/mix"
	"github.com/noricha-vr/twitter-video-translator/internal/timeline"
	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

// Gap is a segment that had no clip and stays silent.
type Gap struct {
	Index int
	Start float64
	End   float64
}

// Overlap records a clip running into the next segment's start.
type Overlap struct {
	Index   int
	Seconds float64
}

type Report struct {
	Placed   int
	Gaps     []Gap
	Overlaps []Overlap
	// Overrun is the time the track extends past the timeline duration.
	Overrun float64
}

// Assemble allocates a silent track spanning the timeline and sums each
// clip at its segment start. Clips are never stretched or truncated; a clip
// longer than its slot runs into whatever follows and overlapping audio is
// summed. The track grows when the last clip runs past the timeline end.
func Assemble(tl *timeline.Timeline, format audio.Format) (*audio.Track, Report, error) {
	var report Report
	if format.SampleRate <= 0 {
		return nil, report, errs.Newf(errs.MixInputMismatch, "invalid track sample rate %d", format.SampleRate)
	}

	track := audio.NewTrack(format, format.FramesFor(tl.Duration()))
	segments := tl.Segments()

	for pos, seg := range segments {
		if seg.Clip == nil || seg.Clip.Len() == 0 {
			report.Gaps = append(report.Gaps, Gap{Index: seg.Index, Start: seg.Start, End: seg.End})
			continue
		}

		clip, err := seg.Clip.ResampleTo(format.SampleRate)
		if err != nil {
			return nil, report, errs.Wrap(err, errs.MixInputMismatch, "resample segment clip").
				With("segment", seg.Index)
		}

		offset := format.Offset(seg.Start)
		mix.SumInto(track, clip.Frames, offset, 1.0)
		report.Placed++

		clipEnd := seg.Start + clip.Seconds()
		if pos+1 < len(segments) && clipEnd > segments[pos+1].Start {
			report.Overlaps = append(report.Overlaps, Overlap{Index: seg.Index, Seconds: clipEnd - segments[pos+1].Start})
		}
		log.Debug("Placed segment %d at %.3fs (%.3fs clip, %.3fs slot)",
			seg.Index, seg.Start, clip.Seconds(), seg.Duration())
	}

	if extra := track.Seconds() - tl.Duration(); extra > 0 {
		report.Overrun = extra
	}
	if len(report.Gaps) > 0 {
		log.Warn("%d of %d segments have no audio and stay silent", len(report.Gaps), len(segments))
	}
	return track, report, nil
}

package synth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/timeline"
	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

// ClipStore names the files clips are written to.
type ClipStore interface {
	SegmentClipPath(index int) string
}

type Failure struct {
	Index int
	Err   error
}

type Result struct {
	Synthesized int
	Skipped     int
	Failures    []Failure
}

// Pool synthesizes every translated segment of a timeline with bounded
// concurrency. Each worker owns one timeline position at a time.
type Pool struct {
	Synth   Synthesizer
	Retry   *Retrier
	Workers int
	// Progress is called after every finished segment.
	Progress func(done, total int)
}

// Run attaches a clip to every segment it could synthesize. Failed
// segments are left without a clip and listed in Result.Failures. The
// returned error is non-nil only when ctx ends the run.
func (p *Pool) Run(ctx context.Context, tl *timeline.Timeline, voice string, store ClipStore) (Result, error) {
	var (
		result Result
		mu     sync.Mutex
		done   atomic.Int64
	)

	retry := p.Retry
	if retry == nil {
		retry = NewRetrier(3, 0, DefaultBackoff())
	}

	todo := make([]int, 0, tl.Len())
	for i, seg := range tl.Segments() {
		if seg.HasTranslation() {
			todo = append(todo, i)
		} else {
			result.Skipped++
		}
	}
	total := len(todo)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.Workers, 1))

	for _, pos := range todo {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seg, err := tl.At(pos)
			if err != nil {
				return err
			}

			err = p.synthesizeOne(gctx, retry, tl, pos, seg, voice, store)
			if err != nil && errs.KindOf(err) == errs.Canceled {
				return err
			}

			mu.Lock()
			if err != nil {
				log.Warn("Segment %d: %v", seg.Index, err)
				result.Failures = append(result.Failures, Failure{Index: seg.Index, Err: err})
			} else {
				result.Synthesized++
			}
			mu.Unlock()

			if p.Progress != nil {
				p.Progress(int(done.Add(1)), total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, errs.Wrap(err, errs.Canceled, "synthesis aborted")
	}

	sort.Slice(result.Failures, func(i, j int) bool { return result.Failures[i].Index < result.Failures[j].Index })
	log.Info("Synthesized %d/%d segments (%d failed)", result.Synthesized, total, len(result.Failures))
	return result, nil
}

func (p *Pool) synthesizeOne(ctx context.Context, retry *Retrier, tl *timeline.Timeline, pos int, seg timeline.Segment, voice string, store ClipStore) error {
	err := retry.Do(ctx, func(ctx context.Context) error {
		clip, err := p.Synth.Synthesize(ctx, seg.TranslatedText, seg.Style, voice)
		if err != nil {
			return err
		}
		if store != nil {
			if err := clip.Save(store.SegmentClipPath(seg.Index)); err != nil {
				return Permanent(err)
			}
		}
		return tl.AttachClip(pos, clip)
	})
	var e *errs.Error
	if errors.As(err, &e) {
		e.With("segment", seg.Index)
	}
	return err
}

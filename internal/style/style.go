// Package style describes how each source segment was spoken so the
// synthesized voice can follow it.
package style

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/noricha-vr/twitter-video-translator/internal/audio"
	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/llm"
	"github.com/noricha-vr/twitter-video-translator/internal/synth"
	"github.com/noricha-vr/twitter-video-translator/internal/timeline"
	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

const DefaultModel = "gemini-2.0-flash"

// Analyzer returns the speaking style of one audio file.
type Analyzer interface {
	Analyze(ctx context.Context, clipPath, sourceText string, target language.Tag) (*timeline.StyleHint, error)
}

type generator interface {
	GenerateContent(ctx context.Context, model string, req llm.GenerateRequest) (*llm.GenerateResponse, error)
}

type Gemini struct {
	client generator
	model  string
}

func NewGemini(client generator, model string) *Gemini {
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{client: client, model: model}
}

func (g *Gemini) Analyze(ctx context.Context, clipPath, sourceText string, target language.Tag) (*timeline.StyleHint, error) {
	data, err := os.ReadFile(clipPath)
	if err != nil {
		return nil, fmt.Errorf("read style clip: %w", err)
	}

	temperature := 0.3
	resp, err := g.client.GenerateContent(ctx, g.model, llm.GenerateRequest{
		Contents: []llm.Content{{
			Role: "user",
			Parts: []llm.Part{
				{Text: buildPrompt(sourceText)},
				{InlineData: &llm.InlineData{MimeType: "audio/wav", Data: base64.StdEncoding.EncodeToString(data)}},
			},
		}},
		GenerationConfig: llm.GenerationConfig{
			ResponseMimeType: "application/json",
			Temperature:      &temperature,
		},
	})
	if err != nil {
		return nil, err
	}
	return parseHint(resp.Text())
}

func buildPrompt(sourceText string) string {
	var b strings.Builder
	b.WriteString("Analyze how the speaker in this audio talks.\n")
	b.WriteString(fmt.Sprintf("Transcript: %q\n\n", sourceText))
	b.WriteString("Return ONLY a JSON object with these string fields:\n")
	b.WriteString(`- "emotion": one of happy, sad, angry, fear, surprise, disgust, excited, neutral` + "\n")
	b.WriteString(`- "speed": one of slow, normal, fast` + "\n")
	b.WriteString(`- "tone": a short phrase such as "bright and casual" or "calm"` + "\n")
	b.WriteString(`- "intonation": one of flat, natural, expressive` + "\n")
	b.WriteString(`- "notes": anything notable about pauses or emphasis, or an empty string` + "\n")
	return b.String()
}

func parseHint(content string) (*timeline.StyleHint, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("empty style analysis")
	}

	var hint timeline.StyleHint
	if err := json.Unmarshal([]byte(content), &hint); err != nil {
		return nil, fmt.Errorf("parse style analysis: %w", err)
	}

	def := timeline.DefaultStyle()
	hint.Emotion = orDefault(strings.ToLower(hint.Emotion), def.Emotion)
	hint.Tone = orDefault(strings.ToLower(hint.Tone), def.Tone)
	hint.Intonation = orDefault(strings.ToLower(hint.Intonation), def.Intonation)
	hint.Speed = normalizeSpeed(hint.Speed)
	return &hint, nil
}

func normalizeSpeed(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(s, "fast"), strings.Contains(s, "quick"):
		return "fast"
	case strings.Contains(s, "slow"):
		return "slow"
	default:
		return "normal"
	}
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

// ClipStore names the files segment excerpts are written to.
type ClipStore interface {
	StyleClipPath(index int) string
}

// Runner analyzes every segment of a timeline. A failed analysis leaves
// the segment with the default style.
type Runner struct {
	Analyzer Analyzer
	Retry    *synth.Retrier
	Workers  int
}

// Run cuts each segment out of source, stores it under store, and
// attaches the analyzed hint. It returns the number of segments that fell
// back to the default style.
func (r *Runner) Run(ctx context.Context, tl *timeline.Timeline, source *audio.Clip, target language.Tag, store ClipStore) (int, error) {
	var fallbacks atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.Workers, 1))

	for pos, seg := range tl.Segments() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			hint, err := r.analyzeOne(gctx, seg, source, target, store)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("Style analysis for segment %d failed, using default: %v", seg.Index, err)
				fallbacks.Add(1)
				hint = timeline.DefaultStyle()
			}
			return tl.SetStyle(pos, hint)
		})
	}

	if err := g.Wait(); err != nil {
		return int(fallbacks.Load()), err
	}
	log.Info("Analyzed speaking style of %d segments (%d defaulted)", tl.Len(), fallbacks.Load())
	return int(fallbacks.Load()), nil
}

func (r *Runner) analyzeOne(ctx context.Context, seg timeline.Segment, source *audio.Clip, target language.Tag, store ClipStore) (*timeline.StyleHint, error) {
	path := store.StyleClipPath(seg.Index)
	if err := source.Slice(seg.Start, seg.End).Save(path); err != nil {
		return nil, err
	}

	var hint *timeline.StyleHint
	call := func(ctx context.Context) error {
		h, err := r.Analyzer.Analyze(ctx, path, seg.SourceText, target)
		if err != nil {
			return err
		}
		hint = h
		return nil
	}

	var err error
	if r.Retry == nil {
		err = call(ctx)
	} else {
		err = r.Retry.DoAs(ctx, errs.StyleAnalysisFailed, "style analysis", call)
	}
	return hint, err
}

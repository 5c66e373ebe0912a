// Package pipeline runs one dubbing job from a URL to a finished video.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/language"

	"github.com/noricha-vr/twitter-video-translator/internal/assemble"
	"github.com/noricha-vr/twitter-video-translator/internal/audio"
	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/fetch"
	"github.com/noricha-vr/twitter-video-translator/internal/media"
	"github.com/noricha-vr/twitter-video-translator/internal/mix"
	"github.com/noricha-vr/twitter-video-translator/internal/style"
	"github.com/noricha-vr/twitter-video-translator/internal/subtitle"
	"github.com/noricha-vr/twitter-video-translator/internal/synth"
	"github.com/noricha-vr/twitter-video-translator/internal/timeline"
	"github.com/noricha-vr/twitter-video-translator/internal/transcribe"
	"github.com/noricha-vr/twitter-video-translator/internal/translator"
	"github.com/noricha-vr/twitter-video-translator/internal/workspace"
	"github.com/noricha-vr/twitter-video-translator/pkg/file"
	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

const (
	DefaultExtractRate = 16000
	DefaultTrackRate   = 24000

	audioFile    = "audio.wav"
	subtitleFile = "subtitles.srt"
	mixedFile    = "mixed.wav"
)

// VideoOptions are the encoder settings of the deliverable.
type VideoOptions struct {
	Codec        string
	AudioCodec   string
	CRF          int
	AudioBitrate string
	Font         string
	FontSize     int
}

// Driver sequences the stages of a job. A Driver is safe for concurrent
// Run calls as long as its collaborators are.
type Driver struct {
	Workspaces  *workspace.Manager
	Fetcher     Fetcher
	Media       Media
	Transcriber transcribe.Transcriber
	Translator  translator.Translator
	Synth       *synth.Pool
	// Style is optional; nil disables style analysis.
	Style *style.Runner
	Post  mix.Chain
	Video VideoOptions

	ExtractRate int
	TrackRate   int
}

// Run executes the job. Per-segment failures are collected in the result;
// any other failure aborts before an output is produced.
func (d *Driver) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()

	if req.Levels == (mix.Levels{}) {
		req.Levels = mix.DefaultLevels()
	}
	if err := req.Levels.Validate(); err != nil {
		return nil, err
	}
	if req.Target.Name == "" {
		return nil, errs.New(errs.Config, "no target language")
	}

	ws, err := d.Workspaces.Open(req.JobID)
	if err != nil {
		return nil, err
	}
	if req.KeepWorkspace {
		ws.Keep()
	}
	defer func() {
		if err := ws.Close(); err != nil {
			log.Warn("Failed to clean up workspace: %v", err)
		}
	}()

	job := &job{d: d, req: &req, ws: ws, result: &Result{
		JobID:          ws.ID,
		SourceURL:      req.URL,
		TargetLanguage: req.Target.Name,
	}}
	if req.KeepWorkspace {
		job.result.WorkspaceDir = ws.Dir()
	}

	if err := job.run(ctx); err != nil {
		if ctx.Err() != nil && errs.KindOf(err) != errs.Canceled {
			err = errs.Wrap(err, errs.Canceled, "job canceled")
		}
		log.Error("Job %s failed: %v", ws.ID, err)
		return nil, err
	}

	job.result.Duration = time.Since(started)
	log.Info("Job %s finished in %s: %s (%d segments, %d warnings)",
		ws.ID, job.result.Duration.Round(time.Millisecond), job.result.OutputPath,
		job.result.Segments, job.result.Warnings)
	return job.result, nil
}

type job struct {
	d      *Driver
	req    *Request
	ws     *workspace.Workspace
	result *Result

	video    fetch.Video
	duration float64
	source   language.Tag
	tl       *timeline.Timeline
}

func (j *job) run(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StageFetch, j.fetch},
		{StageExtract, j.extract},
		{StageTranscribe, j.transcribe},
		{StageTranslate, j.translate},
		{StageSubtitles, j.subtitles},
		{StageSynthesize, j.dub},
		{StageMux, j.mux},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(err, errs.Canceled, "job canceled").With("stage", step.name)
		}
		if err := step.fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// segmentOf reads the segment number a per-segment error carries under key.
func segmentOf(err error, key string) int {
	var e *errs.Error
	if errors.As(err, &e) {
		if i, ok := e.Context[key].(int); ok {
			return i
		}
	}
	return -1
}

func (j *job) warn(index int, stage string, err error) {
	j.result.Failures = append(j.result.Failures, SegmentFailure{Index: index, Stage: stage, Err: err})
	j.result.Warnings++
}

// warnDropped records a transcription segment that never made it into the
// timeline. index is its position in the transcription.
func (j *job) warnDropped(index int, err error) {
	j.result.Failures = append(j.result.Failures, SegmentFailure{Index: index, Stage: StageTranscribe, Dropped: true, Err: err})
	j.result.Warnings++
}

func (j *job) fetch(ctx context.Context) error {
	j.req.progress(StageFetch, 0, 1)
	defer j.req.progress(StageFetch, 1, 1)

	if j.req.VideoPath != "" {
		j.video = fetch.Video{Path: j.req.VideoPath, Title: file.Stem(j.req.VideoPath)}
	} else {
		if j.d.Fetcher == nil {
			return errs.New(errs.Config, "no fetcher configured")
		}
		video, err := j.d.Fetcher.Fetch(ctx, j.req.URL, j.ws.Path("download"))
		if err != nil {
			return err
		}
		j.video = video
		j.result.SourceURL = video.URL
	}
	j.result.Title = j.video.Title
	return nil
}

func (j *job) extract(ctx context.Context) error {
	j.req.progress(StageExtract, 0, 1)

	rate := j.d.ExtractRate
	if rate <= 0 {
		rate = DefaultExtractRate
	}
	if err := j.d.Media.ExtractAudio(ctx, j.video.Path, j.ws.Path(audioFile), rate); err != nil {
		return errs.Wrap(err, errs.MixInputMismatch, "extract audio from video").With("video", j.video.Path)
	}

	j.duration = j.video.Duration
	if info, err := j.d.Media.Probe(ctx, j.video.Path); err == nil && info.Duration > 0 {
		j.duration = info.Duration
	} else if err != nil {
		log.Debug("Probe of %s failed, using reported duration: %v", j.video.Path, err)
	}

	j.req.progress(StageExtract, 1, 1)
	return nil
}

func (j *job) transcribe(ctx context.Context) error {
	j.req.progress(StageTranscribe, 0, 1)

	res, err := j.d.Transcriber.Transcribe(ctx, j.ws.Path(audioFile), j.ws)
	if err != nil {
		if errs.KindOf(err) == errs.Unknown {
			err = errs.Wrap(err, errs.TranscriptionFailed, "transcription failed")
		}
		return err
	}
	if len(res.Segments) == 0 {
		return errs.New(errs.TranscriptionFailed, "no speech found in the video")
	}
	j.source = res.Language
	j.result.SourceLanguage = res.Language.String()
	j.duration = max(j.duration, res.Duration)

	tl, dropped := timeline.Build(res.Segments, j.duration)
	for _, e := range dropped {
		j.warnDropped(segmentOf(e, "index"), e)
	}
	if tl.Len() == 0 {
		return errs.New(errs.InvalidSegment, "no valid segments after transcription")
	}
	j.tl = tl
	j.result.Segments = tl.Len()

	j.req.progress(StageTranscribe, 1, 1)
	return nil
}

func (j *job) translate(ctx context.Context) error {
	total := j.tl.Len()
	j.req.progress(StageTranslate, 0, total)

	texts, err := j.d.Translator.Translate(ctx, j.tl.Texts(), j.source, j.req.Target.Tag)
	if err != nil {
		if errs.KindOf(err) == errs.Unknown {
			err = errs.Wrap(err, errs.TranslationFailed, "translation failed")
		}
		return err
	}
	if len(texts) != total {
		return errs.Newf(errs.TranslationFailed, "translator returned %d texts for %d segments", len(texts), total)
	}
	for i, text := range texts {
		if err := j.tl.SetTranslation(i, text); err != nil {
			return err
		}
	}

	j.req.progress(StageTranslate, total, total)
	return nil
}

func (j *job) subtitles(context.Context) error {
	path := j.ws.Path(subtitleFile)
	written, dropped, err := subtitle.WriteFile(path, subtitle.Encode(j.tl, subtitle.Translated))
	if err != nil {
		return err
	}
	for _, e := range dropped {
		j.warn(segmentOf(e, "segment"), StageSubtitles, e)
	}
	j.result.SubtitlePath = path
	log.Info("Wrote %d subtitle entries (%d dropped)", written, len(dropped))
	j.req.progress(StageSubtitles, 1, 1)
	return nil
}

// dub synthesizes, assembles and mixes the translated track. It leaves
// mixed.wav in the workspace, or nothing when dubbing is off.
func (j *job) dub(ctx context.Context) error {
	switch {
	case j.req.SkipSynthesis:
		log.Info("Speech synthesis skipped")
		return nil
	case !j.req.Target.Speech:
		log.Warn("%s is subtitle-only, speech synthesis skipped", j.req.Target.Name)
		j.result.Warnings++
		return nil
	case j.d.Synth == nil:
		return errs.New(errs.Config, "no synthesizer configured")
	}

	original, err := audio.ReadWAV(j.ws.Path(audioFile))
	if err != nil {
		return errs.Wrap(err, errs.MixInputMismatch, "read extracted audio")
	}

	if j.req.AnalyzeStyle && j.d.Style != nil {
		j.req.progress(StageStyle, 0, 1)
		if _, err := j.d.Style.Run(ctx, j.tl, original, j.req.Target.Tag, j.ws); err != nil {
			return errs.Wrap(err, errs.Canceled, "style analysis aborted")
		}
		j.req.progress(StageStyle, 1, 1)
	}

	pool := *j.d.Synth
	pool.Progress = func(done, total int) { j.req.progress(StageSynthesize, done, total) }
	synthesized, err := pool.Run(ctx, j.tl, j.req.Voice, j.ws)
	if err != nil {
		return err
	}
	j.result.Synthesized = synthesized.Synthesized
	failed := lo.SliceToMap(synthesized.Failures, func(f synth.Failure) (int, bool) { return f.Index, true })
	for _, f := range synthesized.Failures {
		j.warn(f.Index, StageSynthesize, f.Err)
	}

	j.req.progress(StageMix, 0, 1)
	rate := j.d.TrackRate
	if rate <= 0 {
		rate = DefaultTrackRate
	}
	translated, report, err := assemble.Assemble(j.tl, audio.Format{SampleRate: rate, Channels: 1})
	if err != nil {
		return err
	}
	for _, g := range report.Gaps {
		if failed[g.Index] {
			continue
		}
		j.warn(g.Index, StageSynthesize, errs.New(errs.SynthesisFailed, "segment has no translated text and stays silent").
			With("segment", g.Index).
			With("start", g.Start))
	}
	for _, o := range report.Overlaps {
		log.Debug("Segment %d runs %.2fs into the next one", o.Index, o.Seconds)
	}

	mixed, err := mix.Final(&audio.Track{Frames: original.Frames, Format: original.Format}, translated, j.req.Levels)
	if err != nil {
		return err
	}
	if err := j.d.Post.Apply(mixed); err != nil {
		return fmt.Errorf("post-process mix: %w", err)
	}
	if err := mixed.Save(j.ws.Path(mixedFile)); err != nil {
		return errs.Wrap(err, errs.MixInputMismatch, "write mixed track")
	}
	log.Info("Mixed %d clips (%s), %d gaps, %.2fs overrun", report.Placed, j.req.Levels, len(report.Gaps), report.Overrun)

	j.result.Dubbed = true
	j.req.progress(StageMix, 1, 1)
	return nil
}

func (j *job) mux(ctx context.Context) error {
	j.req.progress(StageMux, 0, 1)

	output := j.req.Output
	if output == "" {
		output = filepath.Join(j.req.OutputDir, OutputName(j.video, j.req.Target.Code))
	}

	mux := media.MuxRequest{
		Video:            j.video.Path,
		Subtitles:        j.result.SubtitlePath,
		Output:           output,
		BurnSubtitles:    j.req.BurnSubtitles,
		SubtitleLanguage: j.req.Target.Tag,
		Font:             j.d.Video.Font,
		FontSize:         j.d.Video.FontSize,
		VideoCodec:       j.d.Video.Codec,
		AudioCodec:       j.d.Video.AudioCodec,
		CRF:              j.d.Video.CRF,
		AudioBitrate:     j.d.Video.AudioBitrate,
	}
	if j.result.Dubbed {
		mux.Audio = j.ws.Path(mixedFile)
	}
	if err := j.d.Media.Mux(ctx, mux); err != nil {
		if ctx.Err() != nil {
			return errs.Wrap(ctx.Err(), errs.Canceled, "mux canceled")
		}
		return fmt.Errorf("mux output video: %w", err)
	}

	j.result.OutputPath = output

	// The workspace copy goes away with the job; keep one next to the video.
	sidecar := file.ReplaceExt(output, ".srt")
	if err := copyFile(j.result.SubtitlePath, sidecar); err != nil {
		log.Warn("Failed to write subtitle file %s: %v", sidecar, err)
		j.result.SubtitlePath = ""
	} else {
		j.result.SubtitlePath = sidecar
	}
	j.req.progress(StageMux, 1, 1)
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// OutputName is "<title>_<code>.mp4", falling back to the video file name
// when the title has no usable characters.
func OutputName(video fetch.Video, code string) string {
	name := video.SafeTitle()
	if name == "" {
		name = file.Stem(video.Path)
	}
	if name == "" || name == "." {
		name = "video"
	}
	return name + "_" + code + ".mp4"
}

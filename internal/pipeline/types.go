package pipeline

import (
	"context"
	"time"

	"github.com/noricha-vr/twitter-video-translator/internal/fetch"
	lang "github.com/noricha-vr/twitter-video-translator/internal/language"
	"github.com/noricha-vr/twitter-video-translator/internal/media"
	"github.com/noricha-vr/twitter-video-translator/internal/mix"
)

// Fetcher downloads the source video of a URL into dir.
type Fetcher interface {
	Fetch(ctx context.Context, url, dir string) (fetch.Video, error)
}

// Media is the ffmpeg surface the driver needs.
type Media interface {
	Probe(ctx context.Context, path string) (media.Info, error)
	ExtractAudio(ctx context.Context, video, output string, sampleRate int) error
	Mux(ctx context.Context, req media.MuxRequest) error
}

// Stage names passed to Request.Progress.
const (
	StageFetch      = "fetch"
	StageExtract    = "extract"
	StageTranscribe = "transcribe"
	StageTranslate  = "translate"
	StageSubtitles  = "subtitles"
	StageStyle      = "style"
	StageSynthesize = "synthesize"
	StageMix        = "mix"
	StageMux        = "mux"
)

type Request struct {
	// URL is fetched unless VideoPath names a local file.
	URL       string
	VideoPath string
	JobID     string

	// Output is the deliverable path; when empty it is derived from the
	// video title inside OutputDir.
	Output    string
	OutputDir string

	Target lang.Language
	Voice  string
	Levels mix.Levels

	SkipSynthesis bool
	AnalyzeStyle  bool
	BurnSubtitles bool
	KeepWorkspace bool

	Progress func(stage string, done, total int)
}

func (r *Request) progress(stage string, done, total int) {
	if r.Progress != nil {
		r.Progress(stage, done, total)
	}
}

// SegmentFailure is a per-segment problem that did not stop the job.
// Index is the timeline Segment.Index, unless Dropped is set: then the
// segment never entered the timeline and Index is its transcription position.
type SegmentFailure struct {
	Index   int
	Stage   string
	Dropped bool
	Err     error
}

type Result struct {
	JobID        string
	Title        string
	SourceURL    string
	OutputPath   string
	SubtitlePath string
	// WorkspaceDir is only meaningful when the workspace was kept.
	WorkspaceDir string

	SourceLanguage string
	TargetLanguage string

	Segments    int
	Synthesized int
	Failures    []SegmentFailure
	Warnings    int
	// Dubbed is false when synthesis was skipped.
	Dubbed   bool
	Duration time.Duration
}

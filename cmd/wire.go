package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/noricha-vr/twitter-video-translator/internal/config"
	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/fetch"
	"github.com/noricha-vr/twitter-video-translator/internal/jobs"
	lang "github.com/noricha-vr/twitter-video-translator/internal/language"
	"github.com/noricha-vr/twitter-video-translator/internal/llm"
	"github.com/noricha-vr/twitter-video-translator/internal/media"
	"github.com/noricha-vr/twitter-video-translator/internal/mix"
	"github.com/noricha-vr/twitter-video-translator/internal/pipeline"
	"github.com/noricha-vr/twitter-video-translator/internal/style"
	"github.com/noricha-vr/twitter-video-translator/internal/synth"
	"github.com/noricha-vr/twitter-video-translator/internal/transcribe"
	"github.com/noricha-vr/twitter-video-translator/internal/translator"
	"github.com/noricha-vr/twitter-video-translator/internal/workspace"
)

// newDriver wires the production collaborators from cfg. A nil transcriber
// means Groq Whisper.
func newDriver(cfg *config.Config, transcriber transcribe.Transcriber) (*pipeline.Driver, error) {
	ops := media.NewOperator()

	if transcriber == nil {
		groq, err := transcribe.NewGroq(transcribe.Config{
			APIURL:         cfg.Transcribe.APIURL,
			APIKey:         cfg.API.GroqAPIKey,
			Model:          cfg.Transcribe.Model,
			Language:       cfg.Transcribe.Language,
			MaxUploadBytes: int64(cfg.Transcribe.MaxUploadMB) << 20,
			ChunkSeconds:   cfg.Transcribe.ChunkSeconds,
			Timeout:        seconds(cfg.Transcribe.TimeoutSeconds),
		}, ops)
		if err != nil {
			return nil, err
		}
		transcriber = groq
	}

	chat, err := llm.NewClient(&llm.Config{
		APIKey:      cfg.Translate.APIKey,
		APIURL:      cfg.Translate.APIURL,
		Model:       cfg.Translate.Model,
		MaxTokens:   cfg.Translate.MaxTokens,
		Temperature: cfg.Translate.Temperature,
		Timeout:     cfg.Translate.TimeoutSeconds,
		AppName:     "video-translator",
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.Config, "translation client")
	}

	d := &pipeline.Driver{
		Workspaces:  workspace.NewManager(cfg.Paths.TempDir),
		Fetcher:     fetch.NewYtDlp(),
		Media:       ops,
		Transcriber: transcriber,
		Translator:  translator.NewLLMTranslator(chat, cfg.Translate.BatchSize),
		Post:        postChain(cfg.Mix),
		Video: pipeline.VideoOptions{
			Codec:        cfg.Video.Codec,
			AudioCodec:   cfg.Video.AudioCodec,
			CRF:          cfg.Video.CRF,
			AudioBitrate: cfg.Video.AudioBitrate,
			Font:         cfg.Video.SubtitleFont,
			FontSize:     cfg.Video.SubtitleFontSize,
		},
		TrackRate: cfg.Synth.SampleRate,
	}
	if cfg.Synth.Skip {
		return d, nil
	}

	timeout := seconds(cfg.Synth.TimeoutSeconds)
	tts, err := synth.NewGeminiTTS(synth.GeminiConfig{
		APIURL:     cfg.Synth.APIURL,
		APIKey:     cfg.API.GeminiAPIKey,
		Model:      cfg.Synth.Model,
		SampleRate: cfg.Synth.SampleRate,
		Timeout:    timeout,
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.Config, "speech synthesis client")
	}
	// style analysis shares the retrier, so both back off on one rate limit
	retry := synth.NewRetrier(cfg.Synth.RetryAttempts, timeout, synth.Backoff{
		Base: time.Duration(cfg.Synth.RetryBaseDelayMS) * time.Millisecond,
		Max:  time.Duration(cfg.Synth.RetryMaxDelayMS) * time.Millisecond,
	})
	d.Synth = &synth.Pool{Synth: tts, Retry: retry, Workers: cfg.Synth.Workers}

	if cfg.Synth.AnalyzeStyle {
		gemini, err := llm.NewGeminiClient(cfg.API.GeminiAPIKey, cfg.Synth.APIURL, timeout)
		if err != nil {
			return nil, errs.Wrap(err, errs.Config, "style analysis client")
		}
		d.Style = &style.Runner{
			Analyzer: style.NewGemini(gemini, cfg.Synth.StyleModel),
			Retry:    retry,
			Workers:  cfg.Synth.Workers,
		}
	}
	return d, nil
}

func postChain(cfg config.MixConfig) mix.Chain {
	var chain mix.Chain
	if cfg.Compressor {
		chain = append(chain, mix.DefaultCompressor())
	}
	if cfg.LoudnessTarget != 0 {
		chain = append(chain, mix.LoudnessNormalizer{TargetDBFS: cfg.LoudnessTarget, CeilingDBFS: -1})
	}
	return chain
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// newRequest turns a job payload into a pipeline request. Payload fields
// override the configuration.
func newRequest(cfg *config.Config, jobID string, payload jobs.Payload) (pipeline.Request, error) {
	targetName := payload.Target
	if targetName == "" {
		targetName = cfg.Translate.TargetLanguage
	}
	target, err := lang.Lookup(targetName)
	if err != nil {
		return pipeline.Request{}, err
	}

	voice, err := lang.LookupVoice(firstNonEmpty(payload.Voice, cfg.Synth.Voice))
	if err != nil {
		return pipeline.Request{}, err
	}

	req := pipeline.Request{
		JobID:         jobID,
		Output:        payload.Output,
		OutputDir:     cfg.Paths.OutputDir,
		Target:        target,
		Voice:         voice.Name,
		Levels:        mix.Levels{Original: cfg.Mix.OriginalVolume, Translated: cfg.Mix.TranslatedVolume},
		SkipSynthesis: cfg.Synth.Skip || payload.SkipSynthesis,
		AnalyzeStyle:  cfg.Synth.AnalyzeStyle,
		BurnSubtitles: cfg.Video.BurnSubtitles,
		KeepWorkspace: cfg.Jobs.KeepWorkspace,
	}

	if info, err := os.Stat(payload.URL); err == nil && !info.IsDir() {
		req.VideoPath = payload.URL
		return req, nil
	}
	url, err := fetch.Validate(payload.URL)
	if err != nil {
		return pipeline.Request{}, err
	}
	req.URL = url
	return req, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// runner runs dubbing jobs against one driver.
type runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// jobExecutor adapts a runner to the job queue. Jobs for URLs that cannot
// be fetched are recorded as skipped.
func jobExecutor(cfg *config.Config, r runner) jobs.Executor {
	return func(ctx context.Context, job *jobs.DubbingJob) (jobs.Outcome, error) {
		req, err := newRequest(cfg, job.ID, job.Payload)
		if err != nil {
			return jobs.Outcome{}, jobs.Skip(err)
		}
		res, err := r.Run(ctx, req)
		if err != nil {
			if errs.IsKind(err, errs.NotFound) || errs.IsKind(err, errs.Unsupported) {
				return jobs.Outcome{}, jobs.Skip(err)
			}
			return jobs.Outcome{}, err
		}
		return outcomeOf(res), nil
	}
}

func outcomeOf(res *pipeline.Result) jobs.Outcome {
	return jobs.Outcome{
		OutputPath: res.OutputPath,
		Title:      res.Title,
		Segments:   res.Segments,
		Warnings:   res.Warnings,
	}
}

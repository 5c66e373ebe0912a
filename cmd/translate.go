package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/noricha-vr/twitter-video-translator/internal/config"
	"github.com/noricha-vr/twitter-video-translator/internal/jobs"
	"github.com/noricha-vr/twitter-video-translator/internal/pipeline"
	"github.com/noricha-vr/twitter-video-translator/internal/transcribe"
	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

type translateFlags struct {
	output           string
	target           string
	voice            string
	originalVolume   float64
	translatedVolume float64
	noTTS            bool
	analyzeStyle     bool
	softSubs         bool
	keepWorkspace    bool
	srt              string
	outputDir        string
}

func newTranslateCommand(ctx *commandContext) *cobra.Command {
	var flags translateFlags

	cmd := &cobra.Command{
		Use:   "translate <url|video-file>",
		Short: "Translate and dub one video",
		Example: `  video-translator translate https://x.com/user/status/1234567890
  video-translator translate https://youtu.be/dQw4w9WgXcQ -l English -v Kore
  video-translator translate ./clip.mp4 --no-tts --srt ./clip.srt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(flags.options(cmd)...)
			if err != nil {
				return err
			}
			var transcript transcribe.Transcriber
			if flags.srt != "" {
				transcript = transcribe.SRTFile{Path: flags.srt}
			}
			if err := cfg.RequireKeys(transcript == nil, !cfg.Synth.Skip); err != nil {
				return err
			}

			driver, err := newDriver(cfg, transcript)
			if err != nil {
				return err
			}

			store, err := ctx.openStore()
			if err != nil {
				log.Warn("History disabled: %v", err)
			} else {
				defer store.Close()
			}

			job := &jobs.DubbingJob{
				ID:        "cli-" + uuid.NewString()[:8],
				Source:    jobs.SourceCLI,
				Payload:   jobs.Payload{URL: args[0], Target: cfg.Translate.TargetLanguage, Voice: cfg.Synth.Voice, Output: flags.output, SkipSynthesis: cfg.Synth.Skip},
				Status:    jobs.StatusRunning,
				CreatedAt: time.Now(),
			}
			job.DedupeKey = jobs.DedupeKey(args[0], cfg.Translate.TargetLanguage)
			record := func() {
				if store == nil {
					return
				}
				job.UpdatedAt = time.Now()
				if err := store.UpsertJob(context.Background(), job); err != nil {
					log.Warn("Failed to record history: %v", err)
				}
			}
			record()

			res, err := runTranslate(cmd.Context(), cfg, driver, job, cmd.ErrOrStderr())
			if err != nil {
				job.Status, job.Error = jobs.StatusFailed, err.Error()
				record()
				return err
			}
			job.Status, job.Outcome = jobs.StatusSuccess, outcomeOf(res)
			record()
			return writeSummary(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
		},
	}

	flags.register(cmd)
	return cmd
}

func (f *translateFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.output, "output", "o", "", "Output video path (default: <output-dir>/<title>_<lang>.mp4)")
	fs.StringVarP(&f.target, "lang", "l", "", "Target language name, code or BCP 47 tag")
	fs.StringVarP(&f.voice, "voice", "v", "", "Speech voice, see the voices command")
	fs.Float64Var(&f.originalVolume, "original-volume", 0, "Gain of the original audio (0.0-1.0)")
	fs.Float64Var(&f.translatedVolume, "translated-volume", 0, "Gain of the translated speech (0.5-3.0)")
	fs.BoolVar(&f.noTTS, "no-tts", false, "Only produce subtitles, keep the original audio")
	fs.BoolVar(&f.analyzeStyle, "analyze-style", false, "Match the speaking style of each source segment")
	fs.BoolVar(&f.softSubs, "soft-subs", false, "Attach subtitles as a track instead of burning them in")
	fs.BoolVar(&f.keepWorkspace, "keep-workspace", false, "Keep intermediate files")
	fs.StringVar(&f.srt, "srt", "", "Use an existing SRT file instead of transcribing")
	fs.StringVar(&f.outputDir, "output-dir", "", "Directory for derived output names")
}

// options turns the flags the user actually set into config overrides.
func (f *translateFlags) options(cmd *cobra.Command) []config.Option {
	changed := cmd.Flags().Changed
	opts := []config.Option{
		config.WithTargetLanguage(f.target),
		config.WithVoice(f.voice),
		config.WithOutputDir(f.outputDir),
	}
	if changed("original-volume") {
		opts = append(opts, config.WithOriginalVolume(f.originalVolume))
	}
	if changed("translated-volume") {
		opts = append(opts, config.WithTranslatedVolume(f.translatedVolume))
	}
	if changed("no-tts") {
		opts = append(opts, config.WithSkipSynthesis(f.noTTS))
	}
	if changed("analyze-style") {
		opts = append(opts, config.WithAnalyzeStyle(f.analyzeStyle))
	}
	if changed("soft-subs") {
		opts = append(opts, config.WithBurnSubtitles(!f.softSubs))
	}
	if changed("keep-workspace") {
		opts = append(opts, config.WithKeepWorkspace(f.keepWorkspace))
	}
	return opts
}

func runTranslate(ctx context.Context, cfg *config.Config, r runner, job *jobs.DubbingJob, progress io.Writer) (*pipeline.Result, error) {
	req, err := newRequest(cfg, job.ID, job.Payload)
	if err != nil {
		return nil, err
	}

	var bar *progressbar.ProgressBar
	stage := ""
	req.Progress = func(name string, done, total int) {
		if name != stage {
			if bar != nil {
				_ = bar.Finish()
			}
			stage = name
			bar = nil
			if total <= 0 {
				log.Info("Stage: %s", name)
				return
			}
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(progress),
				progressbar.OptionSetDescription(name),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		if bar != nil {
			_ = bar.Set(done)
		}
	}
	defer func() {
		if bar != nil {
			_ = bar.Finish()
		}
	}()

	return r.Run(ctx, req)
}

func writeSummary(w, errw io.Writer, res *pipeline.Result) error {
	rows := [][]string{
		{"Output", res.OutputPath},
		{"Subtitles", res.SubtitlePath},
		{"Title", res.Title},
		{"Languages", fmt.Sprintf("%s -> %s", res.SourceLanguage, res.TargetLanguage)},
		{"Segments", fmt.Sprintf("%d (%d synthesized)", res.Segments, res.Synthesized)},
		{"Dubbed", fmt.Sprintf("%t", res.Dubbed)},
		{"Warnings", fmt.Sprintf("%d", res.Warnings)},
		{"Elapsed", res.Duration.Round(time.Second).String()},
	}
	if res.WorkspaceDir != "" {
		rows = append(rows, []string{"Workspace", res.WorkspaceDir})
	}
	if err := writeTable(w, []string{"Field", "Value"}, rows, nil); err != nil {
		return err
	}
	if len(res.Failures) == 0 {
		return nil
	}

	failures := lo.Map(res.Failures, func(f pipeline.SegmentFailure, _ int) []string {
		index := fmt.Sprintf("%d", f.Index)
		if f.Dropped {
			index = fmt.Sprintf("raw %d", f.Index)
		}
		return []string{index, f.Stage, strings.TrimSpace(f.Err.Error())}
	})
	fmt.Fprintln(errw, "Segments with problems:")
	return writeTable(errw, []string{"Segment", "Stage", "Error"}, failures, []columnAlignment{alignRight})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/noricha-vr/twitter-video-translator/internal/config"
	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/intake"
	"github.com/noricha-vr/twitter-video-translator/internal/jobs"
	"github.com/noricha-vr/twitter-video-translator/internal/workspace"
	"github.com/noricha-vr/twitter-video-translator/pkg/icron"
	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

const intakePoll = 5 * time.Second

type cronEngine interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
	Start()
	Stop() context.Context
}

type requestSource interface {
	Pump(ctx context.Context, poll time.Duration, handle func(intake.Request)) error
	Forget(ctx context.Context, req intake.Request) error
}

type sweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) workspace.SweepResult
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Dub videos submitted to the Redis queue until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				return errs.New(errs.Config, "redis.addr (REDIS_ADDR) is required to serve")
			}
			if err := cfg.RequireKeys(true, !cfg.Synth.Skip); err != nil {
				return err
			}

			runCtx := cmd.Context()
			source, err := intake.Connect(runCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Queue, cfg.Redis.SeenSet)
			if err != nil {
				return err
			}
			defer source.Close()

			driver, err := newDriver(cfg, nil)
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			queue := jobs.NewQueue(cfg.Jobs.Workers, store)
			engine := cron.New(cron.WithParser(icron.Parser))
			log.Info("Serving %s on %s (%d workers)", cfg.Redis.Queue, cfg.Redis.Addr, cfg.Jobs.Workers)
			return runServe(runCtx, cfg, source, queue, jobExecutor(cfg, driver), engine, driver.Workspaces)
		},
	}
}

// runServe feeds intake requests into the queue until ctx ends. A failed
// job is forgotten by the intake so the same request can be sent again.
func runServe(ctx context.Context, cfg *config.Config, source requestSource, queue *jobs.Queue, exec jobs.Executor, engine cronEngine, sw sweeper) error {
	if cfg.Jobs.SweepCron != "" {
		maxAge := time.Duration(cfg.Jobs.SweepAfterHours) * time.Hour
		if _, err := engine.AddFunc(cfg.Jobs.SweepCron, func() {
			res := sw.Sweep(ctx, maxAge)
			log.Info("Workspace sweep removed %d, skipped %d, failed %d", len(res.Removed), len(res.Skipped), len(res.Errors))
		}); err != nil {
			return errs.Wrap(err, errs.Config, "invalid jobs.sweep_cron").With("value", cfg.Jobs.SweepCron)
		}
		if info, err := icron.GetTriggerInfo(cfg.Jobs.SweepCron, time.Now()); err == nil {
			log.Info("Workspace sweep %q, next run at %s", cfg.Jobs.SweepCron, info.Next.Format(time.DateTime))
		}
		engine.Start()
		defer func() { <-engine.Stop().Done() }()
	}

	queue.Start(ctx, func(jobCtx context.Context, job *jobs.DubbingJob) (jobs.Outcome, error) {
		outcome, err := exec(jobCtx, job)
		if err != nil && !errors.Is(err, jobs.ErrSkipped) && jobCtx.Err() == nil {
			req := intake.Request{URL: job.Payload.URL, Target: job.Payload.Target}
			if ferr := source.Forget(context.WithoutCancel(jobCtx), req); ferr != nil {
				log.Warn("Failed to release %s for resubmission: %v", job.Payload.URL, ferr)
			}
		}
		return outcome, err
	})
	defer queue.Stop()

	err := source.Pump(ctx, intakePoll, func(req intake.Request) {
		payload := jobs.Payload{URL: req.URL, Target: req.Target, Voice: req.Voice, SkipSynthesis: req.SkipSynthesis}
		target := firstNonEmpty(req.Target, cfg.Translate.TargetLanguage)
		job, created := queue.Enqueue(jobs.EnqueueRequest{
			Source:    jobs.SourceRedis,
			DedupeKey: jobs.DedupeKey(req.URL, target),
			Payload:   payload,
		})
		if created {
			log.Info("Queued %s as %s (%s)", req.URL, job.ID, target)
		} else {
			log.Info("%s is already %s as %s", req.URL, job.Status, job.ID)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var req intake.Request
	var stats bool

	cmd := &cobra.Command{
		Use:   "submit [url...]",
		Short: "Queue URLs for a running serve instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				return errs.New(errs.Config, "redis.addr (REDIS_ADDR) is required to submit")
			}
			source, err := intake.Connect(cmd.Context(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Queue, cfg.Redis.SeenSet)
			if err != nil {
				return err
			}
			defer source.Close()

			out := cmd.OutOrStdout()
			for _, url := range args {
				r := req
				r.URL = url
				added, err := source.Submit(cmd.Context(), r)
				switch {
				case err != nil:
					return err
				case added:
					fmt.Fprintf(out, "queued\t%s\n", url)
				default:
					fmt.Fprintf(out, "seen\t%s\n", url)
				}
			}
			if stats || len(args) == 0 {
				queued, seen, err := source.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "waiting\t%d\nseen\t%d\n", queued, seen)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Target, "lang", "l", "", "Target language (default: the server's)")
	cmd.Flags().StringVarP(&req.Voice, "voice", "v", "", "Speech voice")
	cmd.Flags().BoolVar(&req.SkipSynthesis, "no-tts", false, "Only produce subtitles")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print the queue length and seen count")
	return cmd
}

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/noricha-vr/twitter-video-translator/internal/config"
	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/fetch"
	"github.com/noricha-vr/twitter-video-translator/internal/jobs"
	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var target, voice string
	var workers int
	var noTTS bool

	cmd := &cobra.Command{
		Use:   "batch <url-file>",
		Short: "Dub every URL listed in a file (\"-\" reads stdin)",
		Long: `batch reads one URL per line, skipping blank lines and lines starting
with #. Jobs are recorded in the history database; unfinished jobs from an
interrupted batch are resumed first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []config.Option{config.WithTargetLanguage(target), config.WithVoice(voice)}
			if cmd.Flags().Changed("no-tts") {
				opts = append(opts, config.WithSkipSynthesis(noTTS))
			}
			cfg, err := ctx.ensureConfig(opts...)
			if err != nil {
				return err
			}
			if err := cfg.RequireKeys(true, !cfg.Synth.Skip); err != nil {
				return err
			}
			if workers <= 0 {
				workers = cfg.Jobs.Workers
			}

			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return errs.Wrap(err, errs.NotFound, "open URL list").With("path", args[0])
				}
				defer f.Close()
				in = f
			}
			urls, invalid, err := readURLList(in)
			if err != nil {
				return err
			}
			for _, line := range invalid {
				log.Warn("Skipping %s", line)
			}
			if len(urls) == 0 && len(invalid) > 0 {
				return errs.New(errs.Unsupported, "no supported URLs in the list")
			}

			driver, err := newDriver(cfg, nil)
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			queue := jobs.NewQueue(workers, store)
			for _, url := range urls {
				payload := jobs.Payload{URL: url, Target: cfg.Translate.TargetLanguage, Voice: cfg.Synth.Voice, SkipSynthesis: cfg.Synth.Skip}
				if _, created := queue.Enqueue(jobs.EnqueueRequest{
					Source:    jobs.SourceBatch,
					DedupeKey: jobs.DedupeKey(url, payload.Target),
					Payload:   payload,
				}); !created {
					log.Info("Already queued: %s", url)
				}
			}

			queue.Start(cmd.Context(), jobExecutor(cfg, driver))
			waitErr := queue.Wait(cmd.Context())
			queue.Stop()
			if waitErr != nil {
				return errs.Wrap(waitErr, errs.Canceled, "batch interrupted")
			}

			list := queue.List()
			if err := writeJobTable(cmd.OutOrStdout(), list); err != nil {
				return err
			}
			if failed := countStatus(list, jobs.StatusFailed); failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", failed, len(list))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "lang", "l", "", "Target language")
	cmd.Flags().StringVarP(&voice, "voice", "v", "", "Speech voice")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent jobs (default: jobs.workers)")
	cmd.Flags().BoolVar(&noTTS, "no-tts", false, "Only produce subtitles")
	return cmd
}

// readURLList returns the normalized supported URLs in file order, without
// duplicates, and the lines that could not be used.
func readURLList(r io.Reader) (urls, invalid []string, err error) {
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		url, verr := fetch.Validate(line)
		if verr != nil {
			invalid = append(invalid, line)
			continue
		}
		if seen[url] {
			continue
		}
		seen[url] = true
		urls = append(urls, url)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read URL list: %w", err)
	}
	return urls, invalid, nil
}

func writeJobTable(w io.Writer, list []*jobs.DubbingJob) error {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		detail := job.Outcome.OutputPath
		if job.Error != "" {
			detail = job.Error
		}
		rows = append(rows, []string{
			job.ID,
			string(job.Status),
			job.Payload.Target,
			job.Payload.URL,
			fmt.Sprintf("%d", job.Outcome.Segments),
			detail,
		})
	}
	return writeTable(w, []string{"ID", "Status", "Target", "URL", "Segments", "Output / Error"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
}

func countStatus(list []*jobs.DubbingJob, status jobs.Status) int {
	return lo.CountBy(list, func(job *jobs.DubbingJob) bool { return job.Status == status })
}

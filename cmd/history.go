package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/jobs"
	"github.com/noricha-vr/twitter-video-translator/internal/persistence"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var status string
	var prune time.Duration

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent dubbing jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if prune > 0 {
				n, err := store.PruneHistory(cmd.Context(), time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d finished job(s)\n", n)
				return nil
			}

			filter := persistence.HistoryFilter{Limit: limit}
			if status != "" {
				filter.Status = jobs.Status(status)
				switch filter.Status {
				case jobs.StatusPending, jobs.StatusRunning, jobs.StatusSuccess, jobs.StatusFailed, jobs.StatusSkipped:
				default:
					return errs.Newf(errs.Config, "unknown status %q", status)
				}
			}
			list, err := store.History(cmd.Context(), filter)
			if err != nil {
				return err
			}

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
					humanize.Time(job.UpdatedAt),
					job.Payload.URL,
					detail,
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"ID", "Status", "Target", "Updated", "URL", "Output / Error"}, rows, nil)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of jobs to show")
	cmd.Flags().StringVar(&status, "status", "", "Only jobs in this state (pending, running, success, failed, skipped)")
	cmd.Flags().DurationVar(&prune, "prune", 0, "Delete finished jobs older than this instead of listing")
	return cmd
}

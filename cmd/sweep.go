package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/noricha-vr/twitter-video-translator/internal/workspace"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var list bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove job workspaces left behind by interrupted runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			manager := workspace.NewManager(cfg.Paths.TempDir)
			out := cmd.OutOrStdout()

			if list {
				dirs, err := manager.List()
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(dirs))
				for _, d := range dirs {
					rows = append(rows, []string{d.Name, humanize.Time(d.ModTime), humanize.Bytes(uint64(d.Size))})
				}
				return writeTable(out, []string{"Workspace", "Modified", "Size"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight})
			}

			if !cmd.Flags().Changed("older-than") {
				olderThan = time.Duration(cfg.Jobs.SweepAfterHours) * time.Hour
			}
			res := manager.Sweep(cmd.Context(), olderThan)
			for _, dir := range res.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "in use: %s\n", dir)
			}
			for _, e := range res.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s: %v\n", e.Path, e.Error)
			}
			fmt.Fprintf(out, "Removed %d workspace(s) older than %s\n", len(res.Removed), olderThan)
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d workspace(s) could not be removed", len(res.Errors))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Minimum age of removed workspaces (default: jobs.sweep_after_hours)")
	cmd.Flags().BoolVar(&list, "list", false, "List workspaces instead of removing them")
	return cmd
}

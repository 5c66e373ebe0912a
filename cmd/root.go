package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var logLevelFlag string

	ctx := newCommandContext(&configFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:   "video-translator",
		Short: "Dub and subtitle X/Twitter and YouTube videos into another language",
		Long: `video-translator downloads a video, transcribes its speech, translates
the transcript, synthesizes the translation and muxes it back over the
original with subtitles.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default: $VT_CONFIG or ./video-translator.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Console log level: debug, info, warn, error")

	rootCmd.AddCommand(newTranslateCommand(ctx))
	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newSweepCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newVoicesCommand())
	rootCmd.AddCommand(newLanguagesCommand())

	return rootCmd
}

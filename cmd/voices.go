package main

import (
	"slices"

	"github.com/spf13/cobra"

	lang "github.com/noricha-vr/twitter-video-translator/internal/language"
)

func newVoicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the speech voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(lang.Voices))
			for _, v := range lang.Voices {
				note := ""
				if v.Name == lang.DefaultVoice {
					note = "default"
				} else if slices.Contains(lang.RecommendedJapanese, v.Name) {
					note = "recommended for Japanese"
				}
				rows = append(rows, []string{v.Name, v.Description, note})
			}
			return writeTable(cmd.OutOrStdout(), []string{"Voice", "Character", "Note"}, rows, nil)
		},
	}
}

func newLanguagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the target languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := lang.Names()
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				l, err := lang.Lookup(name)
				if err != nil {
					return err
				}
				output := "dubbed"
				if !l.Speech {
					output = "subtitles only"
				}
				rows = append(rows, []string{l.Name, l.Code, l.Tag.String(), l.DisplayName(), output})
			}
			return writeTable(cmd.OutOrStdout(), []string{"Name", "Code", "Tag", "Language", "Output"}, rows, nil)
		},
	}
}

package cmd

import (
	"fmt"

	"github.com/longkey1/flowchat/internal/flowchat/speech"
	"github.com/spf13/cobra"
)

// settingsCmd represents the settings command
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change user preferences",
}

var settingsLanguageCmd = &cobra.Command{
	Use:   "language [locale]",
	Short: "Show or set the speech language",
	Long: `Show or set the speech language as a BCP 47 locale.

Supported: en-US (English), hi-IN (Hindi), gu-IN (Gujarati). Default: en-US.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAuthedApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			locale, err := speech.LoadLanguage(a.Storage)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s)\n", locale, speech.LanguageName(locale))
			return nil
		}

		locale, err := speech.SaveLanguage(a.Storage, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Speech language set to %s (%s).\n", locale, speech.LanguageName(locale))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsLanguageCmd)
}

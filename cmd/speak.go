package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/longkey1/flowchat/internal/flowchat/app"
	"github.com/longkey1/flowchat/internal/flowchat/flow"
	"github.com/longkey1/flowchat/internal/flowchat/speech"
	"github.com/spf13/cobra"
)

var speakOut string

// speakCmd represents the speak command
var speakCmd = &cobra.Command{
	Use:   "speak [text]",
	Short: "Synthesize speech from text",
	Long: `Synthesize speech with the configured speech model and voice, then play it
or write it to a WAV file with --out.

If no text is provided as an argument, it reads from stdin.

Examples:
  flowchat speak "Hello there"
  echo "Hello there" | flowchat speak --out hello.wav`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readMessage(args)
		if err != nil {
			return err
		}

		a, err := openAuthedApp(app.WithoutPlayback())
		if err != nil {
			return err
		}
		defer a.Close()

		var player speech.Player
		if speakOut == "" {
			// Fail before the request when nothing can play the result.
			player, err = speech.NewCommandPlayer(a.Config.SpeechPlayer)
			if err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		done := startSpinner("Synthesizing speech...")
		out, err := a.Flows.SynthesizeSpeech(ctx, flow.SpeechInput{Text: text})
		done()
		if err != nil {
			return err
		}

		if speakOut != "" {
			if err := os.WriteFile(speakOut, out.Audio, 0644); err != nil {
				return fmt.Errorf("writing audio: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Wrote %s (%s, %d bytes)\n", speakOut, out.MIMEType, len(out.Audio))
			return nil
		}
		return player.Play(ctx, out.Audio)
	},
}

func init() {
	rootCmd.AddCommand(speakCmd)
	speakCmd.Flags().StringVarP(&speakOut, "out", "o", "", "Write the audio to a file instead of playing it")
}

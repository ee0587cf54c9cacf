/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"

	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/longkey1/flowchat/internal/flowchat/app"
	"github.com/longkey1/flowchat/internal/flowchat/chat"
	"github.com/longkey1/flowchat/internal/flowchat/flow"
	"github.com/longkey1/flowchat/internal/flowchat/prompt"
	"github.com/spf13/cobra"
)

var (
	model      string
	argFlags   []string
	useEditor  bool
	chatFile   string
	newChat    bool
	speak      bool
	openAction bool
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message to the assistant",
	Long: `Send a message to the assistant and print the answer.
The message is added to the active conversation, or starts a new one.

If no message is provided as an argument, it reads from stdin.
If --editor flag is set, it opens the default editor (from EDITOR environment variable) to compose the message.

The message is routed to a flow:
  - with --file, instructions that mention "apk" get APK conversion guidance
    and any other instructions get a file analysis
  - a coding request goes to the code generator
  - everything else gets a general answer in the language of the message

Files are limited to 5 MB and need instructions.

Examples:
  flowchat chat "What is the capital of France?"
  flowchat chat --new "Write an HTML page with a button"
  flowchat chat --file report.pdf "Summarize this report"
  flowchat chat --speak --arg tone:friendly "Tell me a joke"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("model") {
			if _, _, err := flowchat.ParseModelString(model); err != nil {
				return fmt.Errorf("invalid model from flag: %w", err)
			}
			cfg.Model = model
		}
		if cmd.Flags().Changed("speak") {
			cfg.SpeechEnabled = speak
		}

		vars, err := prompt.ParseArgs(argFlags, flow.ReservedVariables...)
		if err != nil {
			return err
		}

		message, err := readMessage(args)
		if err != nil {
			return err
		}

		a, err := openApp(cfg, app.WithVariables(vars))
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.Auth.Require(); err != nil {
			return err
		}

		in := chat.Input{Text: message}
		if chatFile != "" {
			in.Attachment, err = chat.LoadAttachment(chatFile)
			if err != nil {
				return err
			}
		}

		if newChat {
			if err := a.Conversations.NewChat(); err != nil {
				return err
			}
		}

		r, err := newTerminalRenderer()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		res, err := submit(ctx, a, in)
		if err != nil {
			return err
		}
		printResult(r, res, openAction)

		// First turn of a conversation
		if conv, err := a.Conversations.Get(res.ConversationID); err == nil && conv.MessageCount() == 2 {
			fmt.Fprintf(os.Stderr, "\nConversation created: %s\n", conv.GetShortID())
			fmt.Fprintf(os.Stderr, "For interactive mode, use:\n  flowchat conversations start %s\n", conv.GetShortID())
		}
		return nil
	},
}

// submit runs one turn behind a spinner.
func submit(ctx context.Context, a *app.App, in chat.Input) (*chat.Result, error) {
	stop := startSpinner("Waiting for response...")
	res, err := a.Chat.Submit(ctx, in)
	stop()
	return res, err
}

// readMessage takes the message from the editor, the arguments or stdin.
func readMessage(args []string) (string, error) {
	if useEditor {
		message, err := getMessageFromEditor()
		if err != nil {
			return "", fmt.Errorf("getting message from editor: %w", err)
		}
		return message, nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading from stdin: %w", err)
	}
	return strings.TrimSpace(string(input)), nil
}

// getMessageFromEditor opens the default editor and returns the edited message
func getMessageFromEditor() (string, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		return "", fmt.Errorf("EDITOR environment variable is not set")
	}

	tmpFile, err := os.CreateTemp("", "flowchat-*.md")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %v", err)
	}
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	cmd := exec.Command(editor, tmpFile.Name())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to open editor: %v", err)
	}

	content, err := os.ReadFile(tmpFile.Name())
	if err != nil {
		return "", fmt.Errorf("failed to read edited content: %v", err)
	}

	return strings.TrimSpace(string(content)), nil
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&model, "model", "m", "", "Model to use (format: provider:model, e.g., gemini:gemini-2.5-flash)")
	chatCmd.Flags().StringArrayVar(&argFlags, "arg", []string{}, "Key-value pairs for flow templates (format: key:value)")
	chatCmd.Flags().BoolVarP(&useEditor, "editor", "e", false, "Use default editor (from EDITOR environment variable) to compose message")
	chatCmd.Flags().StringVarP(&chatFile, "file", "f", "", "Attach a file (max 5 MB); mention \"apk\" in the message for APK guidance")
	chatCmd.Flags().BoolVarP(&newChat, "new", "n", false, "Start a new conversation")
	chatCmd.Flags().BoolVar(&speak, "speak", false, "Speak the answer aloud (overrides speech_enabled)")
	chatCmd.Flags().BoolVar(&openAction, "open", false, "Open a link suggested by the assistant")
}

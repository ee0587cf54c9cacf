package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"
	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/longkey1/flowchat/internal/flowchat/app"
	"github.com/longkey1/flowchat/internal/flowchat/chat"
	"github.com/longkey1/flowchat/internal/flowchat/conversation"
	"github.com/longkey1/flowchat/internal/flowchat/render"
	"github.com/spf13/cobra"
)

// conversationsCmd represents the conversations command
var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
	Long: `Manage conversations including listing, viewing, selecting and deleting them.

The active conversation receives the next chat message. After 'new' there is
no active conversation until the next message starts one.

IDs can be a short ID (minimum 4 characters), the full UUID, or "latest" for the
most recently updated conversation.`,
}

// conversationsListCmd represents the conversations list command
var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all conversations",
	Long:  `List all conversations sorted by most recently updated. The active one is marked with *.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAuthedApp()
		if err != nil {
			return err
		}
		defer a.Close()

		conversations := a.Conversations.List()
		if len(conversations) == 0 {
			fmt.Println("No conversations found.")
			fmt.Println("\nStart one with:")
			fmt.Println("  flowchat chat \"your message\"")
			return nil
		}

		activeID := a.Conversations.ActiveID()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, " \tID\tUPDATED\tMESSAGES\tTITLE")
		fmt.Fprintln(w, " \t--\t-------\t--------\t-----")
		for _, c := range conversations {
			mark := " "
			if c.ID == activeID {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				mark,
				c.GetShortID(),
				c.Timestamp.Local().Format("2006-01-02 15:04"),
				c.MessageCount(),
				c.Title,
			)
		}
		w.Flush()

		fmt.Println("\nUse 'flowchat conversations show <id>' to view a conversation.")
		return nil
	},
}

// conversationsShowCmd represents the conversations show command
var conversationsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a conversation and its messages",
	Long: `Show a conversation with all of its messages. Code blocks are numbered for
'flowchat blocks copy' and 'flowchat blocks preview'.

Without an ID, the active conversation is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAuthedApp()
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := findConversation(a, args)
		if err != nil {
			return err
		}
		r, err := newTerminalRenderer()
		if err != nil {
			return err
		}

		fmt.Printf("Conversation: %s\n", conv.ID)
		fmt.Printf("Title: %s\n", conv.Title)
		fmt.Printf("Created: %s\n", conv.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Updated: %s\n", conv.Timestamp.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Messages: %d\n", conv.MessageCount())

		if len(conv.Messages) == 0 {
			fmt.Println("\nNo messages in this conversation.")
			return nil
		}
		for i, msg := range conv.Messages {
			fmt.Printf("\n[%d] %s\n", i+1, msg.Timestamp.Local().Format("15:04:05"))
			fmt.Print(r.RenderMessage(msg))
		}
		return nil
	},
}

// conversationsSelectCmd represents the conversations select command
var conversationsSelectCmd = &cobra.Command{
	Use:   "select <id>",
	Short: "Make a conversation active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAuthedApp()
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := a.Conversations.Find(args[0])
		if err != nil {
			return fmt.Errorf("finding conversation: %w", err)
		}
		if err := a.Conversations.Select(conv.ID); err != nil {
			return err
		}
		fmt.Printf("Active conversation: %s (%s)\n", conv.GetShortID(), conv.Title)
		return nil
	},
}

// conversationsNewCmd represents the conversations new command
var conversationsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new chat",
	Long:  `Clear the active conversation. The next chat message starts a new one.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAuthedApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Conversations.NewChat(); err != nil {
			return err
		}
		fmt.Println("Started a new chat.")
		return nil
	},
}

// conversationsDeleteCmd represents the conversations delete command
var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Long: `Delete a conversation permanently.

When the active conversation is deleted, the delete_policy setting decides what
becomes active: "clear" (a new chat) or "most_recent".

Warning: This action cannot be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAuthedApp()
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := a.Conversations.Find(args[0])
		if err != nil {
			return fmt.Errorf("finding conversation: %w", err)
		}

		if !confirm(fmt.Sprintf("Are you sure you want to delete conversation %s (%s)?", conv.GetShortID(), conv.Title)) {
			fmt.Println("Deletion cancelled.")
			return nil
		}
		if err := a.Conversations.Delete(conv.ID); err != nil {
			return fmt.Errorf("deleting conversation: %w", err)
		}

		fmt.Printf("Conversation %s deleted successfully.\n", conv.GetShortID())
		if active := a.Conversations.ActiveID(); active != "" {
			fmt.Printf("Active conversation: %s\n", active[:8])
		}
		return nil
	},
}

// conversationsRenameCmd represents the conversations rename command
var conversationsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAuthedApp()
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := a.Conversations.Find(args[0])
		if err != nil {
			return fmt.Errorf("finding conversation: %w", err)
		}
		title := strings.Join(args[1:], " ")
		if err := a.Conversations.Rename(conv.ID, title); err != nil {
			return err
		}
		fmt.Printf("Conversation %s renamed to %q.\n", conv.GetShortID(), strings.TrimSpace(title))
		return nil
	},
}

// conversationsClearCmd represents the conversations clear command
var conversationsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all or old conversations",
	Long: `Delete conversations permanently.

Without --before, every conversation is deleted. With --before, only the ones
last updated before the given date.

Warning: This action cannot be undone.

Examples:
  flowchat conversations clear                      # Delete all conversations
  flowchat conversations clear --before 2025-01-01  # Delete conversations not updated since 2025-01-01
  flowchat conversations clear --before 2025-06     # Delete conversations not updated since 2025-06-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		beforeDateStr, _ := cmd.Flags().GetString("before")

		a, err := openAuthedApp()
		if err != nil {
			return err
		}
		defer a.Close()

		conversations := a.Conversations.List()
		if len(conversations) == 0 {
			fmt.Println("No conversations to delete.")
			return nil
		}

		if beforeDateStr == "" {
			if !confirm(fmt.Sprintf("Are you sure you want to delete all %d conversations?", len(conversations))) {
				fmt.Println("Deletion cancelled.")
				return nil
			}
			if err := a.Conversations.Clear(); err != nil {
				return fmt.Errorf("clearing conversations: %w", err)
			}
			fmt.Printf("Deleted %d conversations.\n", len(conversations))
			return nil
		}

		beforeDate, err := parseDate(beforeDateStr)
		if err != nil {
			return fmt.Errorf("parsing date: %w", err)
		}
		var toDelete []conversation.Conversation
		for _, c := range conversations {
			if c.Timestamp.Before(beforeDate) {
				toDelete = append(toDelete, c)
			}
		}
		if len(toDelete) == 0 {
			fmt.Printf("No conversations updated before %s.\n", beforeDate.Format("2006-01-02"))
			return nil
		}

		if !confirm(fmt.Sprintf("Are you sure you want to delete %d conversations updated before %s?",
			len(toDelete), beforeDate.Format("2006-01-02"))) {
			fmt.Println("Deletion cancelled.")
			return nil
		}

		deleted, failed := 0, 0
		for _, c := range toDelete {
			if err := a.Conversations.Delete(c.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to delete conversation %s: %v\n", c.GetShortID(), err)
				failed++
			} else {
				deleted++
			}
		}
		fmt.Printf("Deleted %d conversations.", deleted)
		if failed > 0 {
			fmt.Printf(" %d failed.", failed)
		}
		fmt.Println()
		return nil
	},
}

// parseDate parses YYYY-MM-DD or YYYY-MM (first day of the month) in local time
func parseDate(dateStr string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", dateStr, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01", dateStr, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date format: %s (expected YYYY-MM-DD or YYYY-MM)", dateStr)
}

// conversationsExportCmd represents the conversations export command
var conversationsExportCmd = &cobra.Command{
	Use:   "export [id]",
	Short: "Export a conversation",
	Long: `Export a conversation as JSON, YAML or Markdown.
Without an ID, the active conversation is exported.

Examples:
  flowchat conversations export                         # Active conversation as Markdown on stdout
  flowchat conversations export 550e8400 --format json
  flowchat conversations export latest --out chat.md`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		format, err := conversation.ParseFormat(formatName)
		if err != nil {
			return err
		}

		a, err := openAuthedApp()
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := findConversation(a, args)
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := conversation.Export(w, conv, format); err != nil {
			return fmt.Errorf("exporting conversation: %w", err)
		}
		if out != "" {
			fmt.Fprintf(os.Stderr, "Conversation %s exported to %s\n", conv.GetShortID(), out)
		}
		return nil
	},
}

// findConversation resolves an optional ID argument, defaulting to the
// active conversation.
func findConversation(a *app.App, args []string) (*conversation.Conversation, error) {
	if len(args) > 0 {
		conv, err := a.Conversations.Find(args[0])
		if err != nil {
			return nil, fmt.Errorf("finding conversation: %w", err)
		}
		return conv, nil
	}
	conv := a.Conversations.Active()
	if conv == nil {
		return nil, errors.New("no active conversation: pass an ID or use 'flowchat conversations select <id>'")
	}
	return conv, nil
}

// conversationsStartCmd represents the conversations start command
var conversationsStartCmd = &cobra.Command{
	Use:   "start [id]",
	Short: "Start an interactive chat",
	Long: `Start an interactive chat with continuous conversation.

Without an ID the active conversation is continued, or a new one is started
with the first message.

Examples:
  flowchat conversations start           # Continue the active conversation
  flowchat conversations start 550e8400  # Continue conversation 550e8400
  flowchat conversations start latest    # Continue the latest conversation`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAuthedApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) > 0 {
			conv, err := a.Conversations.Find(args[0])
			if err != nil {
				return fmt.Errorf("finding conversation: %w", err)
			}
			if err := a.Conversations.Select(conv.ID); err != nil {
				return err
			}
		}

		r, err := newTerminalRenderer()
		if err != nil {
			return err
		}
		return runInteractiveMode(cmd.Context(), a, r)
	},
}

const interactiveHelp = `
Available commands:
  /help, /h          - Show this help message
  /info, /i          - Show conversation information
  /new, /n           - Start a new chat
  /file <path> <msg> - Send a file with instructions
  /copy <n>          - Copy code block n of the last answer
  /preview <n>       - Preview HTML/SVG code block n of the last answer
  /clear, /c         - Clear screen
  /exit, /quit       - Exit interactive mode
  Ctrl+D             - Exit interactive mode
`

// runInteractiveMode reads messages until EOF or /exit.
func runInteractiveMode(ctx context.Context, a *app.App, r *render.Renderer) error {
	rlCfg := &readline.Config{
		Prompt:          "You> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          os.Stderr,
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("/help"), readline.PcItem("/info"), readline.PcItem("/new"),
			readline.PcItem("/file"), readline.PcItem("/copy"), readline.PcItem("/preview"),
			readline.PcItem("/clear"), readline.PcItem("/exit"),
		),
	}
	if dir, err := a.Config.GetDataDir(); err == nil {
		rlCfg.HistoryFile = filepath.Join(dir, "history")
	}
	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return fmt.Errorf("interactive mode: %w", err)
	}
	defer rl.Close()

	header := "new chat"
	if conv := a.Conversations.Active(); conv != nil {
		header = conv.GetShortID() + " " + conv.Title
	}
	fmt.Fprintf(os.Stderr, "\n=== Interactive Chat [%s] ===\n", header)
	fmt.Fprintf(os.Stderr, "Backend: %s\n", a.Backend.Name())
	fmt.Fprintf(os.Stderr, "Type '/help' for commands, '/exit' or 'Ctrl+D' to quit\n\n")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(os.Stderr, "Goodbye!")
			return nil
		}
		if err != nil {
			return fmt.Errorf("input error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		in := chat.Input{Text: input}
		if strings.HasPrefix(input, "/") {
			if !strings.HasPrefix(strings.ToLower(input), "/file ") {
				if !handleSpecialCommand(input, a) {
					return nil
				}
				continue
			}
			path, text, _ := strings.Cut(strings.TrimSpace(input[len("/file "):]), " ")
			att, err := chat.LoadAttachment(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			in = chat.Input{Text: text, Attachment: att}
		}

		turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		res, err := submit(turnCtx, a, in)
		stop()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Println()
		printResult(r, res, false)
		fmt.Println()
	}
}

// handleSpecialCommand processes special commands in interactive mode
// Returns true to continue the loop, false to exit
func handleSpecialCommand(command string, a *app.App) bool {
	name, arg, _ := strings.Cut(strings.TrimSpace(command), " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)

	switch name {
	case "/help", "/h":
		fmt.Fprint(os.Stderr, interactiveHelp)
	case "/info", "/i":
		conv := a.Conversations.Active()
		if conv == nil {
			fmt.Fprintln(os.Stderr, "\nNo active conversation; the next message starts one.")
			return true
		}
		fmt.Fprintf(os.Stderr, "\nConversation: %s\n", conv.ID)
		fmt.Fprintf(os.Stderr, "Title: %s\n", conv.Title)
		fmt.Fprintf(os.Stderr, "Messages: %d\n", conv.MessageCount())
		fmt.Fprintf(os.Stderr, "Created: %s\n", conv.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	case "/new", "/n":
		if err := a.Conversations.NewChat(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return true
		}
		fmt.Fprintln(os.Stderr, "Started a new chat.")
	case "/copy", "/preview":
		blocks, err := lastAnswerBlocks(a.Conversations.Active())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return true
		}
		b, err := pickBlock(blocks, arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return true
		}
		if name == "/copy" {
			err = copyBlock(b)
		} else {
			err = previewBlock(b)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	case "/clear", "/c":
		fmt.Fprint(os.Stderr, "\033[H\033[2J")
	case "/exit", "/quit", "/q":
		fmt.Fprintln(os.Stderr, "Goodbye!")
		return false
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s (type /help for available commands)\n", name)
	}
	return true
}

// lastAnswerBlocks returns the code blocks of the last assistant message.
func lastAnswerBlocks(conv *conversation.Conversation) ([]render.Block, error) {
	if conv == nil {
		return nil, errors.New("no active conversation")
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == flowchat.RoleAssistant {
			return render.Blocks(conv.Messages[i].Content), nil
		}
	}
	return nil, errors.New("no assistant answer yet")
}

// pickBlock selects a block by its 0-based index; an empty arg means the
// only block.
func pickBlock(blocks []render.Block, arg string) (render.Block, error) {
	if len(blocks) == 0 {
		return render.Block{}, errors.New("the answer has no code blocks")
	}
	if arg == "" {
		if len(blocks) > 1 {
			return render.Block{}, fmt.Errorf("the answer has %d code blocks: give an index from 0 to %d", len(blocks), len(blocks)-1)
		}
		return blocks[0], nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 || n >= len(blocks) {
		return render.Block{}, fmt.Errorf("invalid block index %q (expected 0 to %d)", arg, len(blocks)-1)
	}
	return blocks[n], nil
}

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsSelectCmd)
	conversationsCmd.AddCommand(conversationsNewCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	conversationsCmd.AddCommand(conversationsRenameCmd)
	conversationsCmd.AddCommand(conversationsClearCmd)
	conversationsCmd.AddCommand(conversationsExportCmd)
	conversationsCmd.AddCommand(conversationsStartCmd)

	conversationsClearCmd.Flags().String("before", "", "Delete conversations last updated before this date (YYYY-MM-DD or YYYY-MM)")
	conversationsExportCmd.Flags().String("format", "markdown", "Export format: json, yaml or markdown")
	conversationsExportCmd.Flags().StringP("out", "o", "", "Write to a file instead of stdout")
}

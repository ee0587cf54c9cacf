package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/longkey1/flowchat/internal/flowchat/app"
	"github.com/longkey1/flowchat/internal/flowchat/render"
	"github.com/spf13/cobra"
)

var blocksConversation string

// blocksCmd represents the blocks command
var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Work with code blocks of the last answer",
	Long: `List, copy or preview the fenced code blocks of the last assistant answer.

Blocks are numbered from 0 in order of appearance. HTML and SVG blocks can be
previewed in the browser inside a sandboxed frame.

By default the active conversation is used; pick another with --conversation.`,
}

var blocksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List code blocks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		blocks, err := loadBlocks()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tLANGUAGE\tLINES\tPREVIEW\tFIRST LINE")
		fmt.Fprintln(w, "-----\t--------\t-----\t-------\t----------")
		for _, b := range blocks {
			preview := ""
			if b.CanPreview() {
				preview = "Yes"
			}
			first, _, _ := strings.Cut(strings.TrimSpace(b.Code), "\n")
			if len(first) > 50 {
				first = first[:47] + "..."
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", b.Index, b.Language, strings.Count(b.Code, "\n")+1, preview, first)
		}
		w.Flush()
		return nil
	},
}

var blocksCopyCmd = &cobra.Command{
	Use:   "copy [index]",
	Short: "Copy a code block to the clipboard",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBlock(args)
		if err != nil {
			return err
		}
		return copyBlock(b)
	},
}

var blocksPreviewCmd = &cobra.Command{
	Use:   "preview [index]",
	Short: "Preview an HTML or SVG code block in the browser",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBlock(args)
		if err != nil {
			return err
		}
		return previewBlock(b)
	},
}

func loadBlocks() ([]render.Block, error) {
	a, err := openAuthedApp()
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return answerBlocks(a)
}

func answerBlocks(a *app.App) ([]render.Block, error) {
	conv := a.Conversations.Active()
	if blocksConversation != "" {
		var err error
		conv, err = a.Conversations.Find(blocksConversation)
		if err != nil {
			return nil, fmt.Errorf("finding conversation: %w", err)
		}
	}
	blocks, err := lastAnswerBlocks(conv)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, errors.New("the answer has no code blocks")
	}
	return blocks, nil
}

func loadBlock(args []string) (render.Block, error) {
	blocks, err := loadBlocks()
	if err != nil {
		return render.Block{}, err
	}
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	return pickBlock(blocks, arg)
}

func copyBlock(b render.Block) error {
	if err := render.CopyToClipboard(b); err != nil {
		return fmt.Errorf("copying block %d: %w", b.Index, err)
	}
	fmt.Fprintf(os.Stderr, "Copied block %d (%s) to the clipboard.\n", b.Index, b.Language)
	return nil
}

// previewBlock writes the sandboxed preview page to a temporary file and
// opens it. The file is left for the browser to read.
func previewBlock(b render.Block) error {
	page, err := render.PreviewPage(b)
	if err != nil {
		return err
	}
	f, err := os.CreateTemp("", "flowchat-preview-*.html")
	if err != nil {
		return fmt.Errorf("failed to create preview file: %w", err)
	}
	if _, err := f.WriteString(page); err != nil {
		f.Close()
		return fmt.Errorf("failed to write preview file: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := openBrowser(f.Name()); err != nil {
		return fmt.Errorf("opening preview: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Preview of block %d opened: %s\n", b.Index, f.Name())
	return nil
}

func init() {
	rootCmd.AddCommand(blocksCmd)
	blocksCmd.AddCommand(blocksListCmd)
	blocksCmd.AddCommand(blocksCopyCmd)
	blocksCmd.AddCommand(blocksPreviewCmd)

	blocksCmd.PersistentFlags().StringVarP(&blocksConversation, "conversation", "c", "", "Conversation ID (default: the active conversation)")
}

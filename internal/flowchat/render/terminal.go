package render

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/longkey1/flowchat/internal/flowchat"
	"golang.org/x/term"
)

// ErrClipboardUnavailable is returned when the system has no clipboard utility.
var ErrClipboardUnavailable = errors.New("clipboard is not available on this system")

// ColorEnabled reports whether f is a terminal that should get colour output.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of f, or fallback when it is not a terminal.
func TerminalWidth(f *os.File, fallback int) int {
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}

// Renderer formats messages for terminal output
type Renderer struct {
	width    int
	color    bool
	markdown *glamour.TermRenderer
}

// NewRenderer creates a renderer wrapping prose at width columns.
func NewRenderer(width int, color bool) (*Renderer, error) {
	if width < 20 {
		width = 20
	}
	style := glamour.WithStandardStyle("notty")
	if color {
		style = glamour.WithAutoStyle()
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil, err
	}
	return &Renderer{width: width, color: color, markdown: md}, nil
}

// RenderMessage renders a message with a role header.
func (r *Renderer) RenderMessage(msg flowchat.Message) string {
	label := "You"
	labelColor := lipgloss.Color("39")
	if msg.Role == flowchat.RoleAssistant {
		label = "Assistant"
		labelColor = lipgloss.Color("170")
	}
	header := label
	if r.color {
		header = lipgloss.NewStyle().Bold(true).Foreground(labelColor).Render(label)
	}
	return header + "\n" + r.RenderContent(msg.Content)
}

// RenderContent renders prose as markdown and code blocks with highlighting.
func (r *Renderer) RenderContent(content string) string {
	var parts []string
	blockIndex := 0
	for _, seg := range Split(content) {
		switch seg.Kind {
		case SegmentCode:
			parts = append(parts, r.RenderBlock(Block{Index: blockIndex, Language: seg.Language, Code: seg.Text}))
			blockIndex++
		default:
			if strings.TrimSpace(seg.Text) == "" {
				continue
			}
			out, err := r.markdown.Render(seg.Text)
			if err != nil {
				out = seg.Text
			}
			parts = append(parts, strings.Trim(out, "\n"))
		}
	}
	return strings.Join(parts, "\n\n") + "\n"
}

// RenderBlock renders a code block under a "[n] LANGUAGE" header.
func (r *Renderer) RenderBlock(b Block) string {
	label := "[" + strconv.Itoa(b.Index) + "] " + strings.ToUpper(b.Language)
	if b.CanPreview() {
		label += " (preview)"
	}
	if !r.color {
		return "--- " + label + " ---\n" + b.Code + "\n---"
	}

	header := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250")).
		Background(lipgloss.Color("236")).
		Padding(0, 1).
		Bold(true).
		Render(label)
	body := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		MaxWidth(r.width).
		Render(highlight(b.Code, b.Language))
	return header + "\n" + body
}

// highlight applies chroma syntax highlighting, returning code unchanged on failure.
func highlight(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// CopyToClipboard copies the block's code to the system clipboard.
func CopyToClipboard(b Block) error {
	if clipboard.Unsupported {
		return ErrClipboardUnavailable
	}
	return clipboard.WriteAll(b.Code)
}

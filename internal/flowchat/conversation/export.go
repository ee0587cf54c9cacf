package conversation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is an export format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts json, yaml/yml and markdown/md.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (expected json, yaml or markdown)", s)
	}
}

// Export writes the conversation to w in the given format.
func Export(w io.Writer, conv *Conversation, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(conv)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(conv); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatMarkdown:
		return exportMarkdown(w, conv)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func exportMarkdown(w io.Writer, conv *Conversation) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Title)
	fmt.Fprintf(&b, "- ID: %s\n", conv.ID)
	fmt.Fprintf(&b, "- Created: %s\n", conv.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- Updated: %s\n", conv.Timestamp.Format("2006-01-02 15:04:05"))
	for _, msg := range conv.Messages {
		fmt.Fprintf(&b, "\n## %s (%s)\n\n", strings.ToUpper(string(msg.Role)), msg.Timestamp.Format("15:04:05"))
		b.WriteString(strings.TrimRight(msg.Content, "\n"))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

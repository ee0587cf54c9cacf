// Package conversation keeps the chat history: an ordered list of
// conversations, each an append-only list of messages, plus the pointer to
// the active one.
package conversation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/longkey1/flowchat/internal/flowchat"
)

// PlaceholderTitle names conversations whose first message is not from the user.
const PlaceholderTitle = "New Chat"

// titleLength is the number of runes kept from the first message.
const titleLength = 30

// Conversation represents a titled list of messages
type Conversation struct {
	ID        string             `json:"id" yaml:"id"` // UUID v4
	Title     string             `json:"title" yaml:"title"`
	Messages  []flowchat.Message `json:"messages" yaml:"messages"`
	CreatedAt time.Time          `json:"created_at" yaml:"created_at"`
	Timestamp time.Time          `json:"timestamp" yaml:"timestamp"` // last modified
}

// GetShortID returns the shortened conversation ID (first 8 characters)
func (c *Conversation) GetShortID() string {
	if len(c.ID) >= 8 {
		return c.ID[:8]
	}
	return c.ID
}

// MessageCount returns the number of messages in the conversation
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// LastMessage returns the most recent message, if any.
func (c *Conversation) LastMessage() (flowchat.Message, bool) {
	if len(c.Messages) == 0 {
		return flowchat.Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

func (c *Conversation) clone() Conversation {
	cp := *c
	cp.Messages = append([]flowchat.Message(nil), c.Messages...)
	return cp
}

// DeriveTitle builds a conversation title from the first message: the first
// 30 characters with whitespace collapsed, followed by "..." when cut.
func DeriveTitle(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	if collapsed == "" {
		return PlaceholderTitle
	}
	if utf8.RuneCountInString(collapsed) <= titleLength {
		return collapsed
	}
	runes := []rune(collapsed)
	return strings.TrimSpace(string(runes[:titleLength])) + "..."
}

// AmbiguousIDError is returned when multiple conversations match a prefix
type AmbiguousIDError struct {
	Prefix  string
	Matches []Conversation
}

func (e *AmbiguousIDError) Error() string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Ambiguous conversation ID %q. Multiple matches found:", e.Prefix))
	for _, match := range e.Matches {
		lines = append(lines, fmt.Sprintf("- %s (%s, %s, %d messages)",
			match.GetShortID(),
			match.Title,
			match.Timestamp.Format("2006-01-02"),
			match.MessageCount()))
	}
	lines = append(lines, "")
	lines = append(lines, "Please use a longer prefix or run 'flowchat conversations list'.")
	return strings.Join(lines, "\n")
}

package flowchat

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message represents a single message in a conversation
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`       // "user" or "assistant"
	Content   string    `json:"content" yaml:"content"` // may embed fenced code blocks
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

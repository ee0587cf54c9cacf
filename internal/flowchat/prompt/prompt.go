package prompt

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Prompt represents the structure of a TOML flow template
type Prompt struct {
	System string  `toml:"system"`
	User   string  `toml:"user"`
	Model  *string `toml:"model,omitempty"` // "provider:model"; provider must match the configured backend
}

// LoadPrompt loads a prompt file and returns its contents
func LoadPrompt(filePath string) (*Prompt, error) {
	var prompt Prompt
	if _, err := toml.DecodeFile(filePath, &prompt); err != nil {
		return nil, fmt.Errorf("error decoding prompt file: %w", err)
	}
	return &prompt, nil
}

// DecodePrompt parses a prompt template from TOML text
func DecodePrompt(data string) (*Prompt, error) {
	var prompt Prompt
	if _, err := toml.Decode(data, &prompt); err != nil {
		return nil, fmt.Errorf("error decoding prompt: %w", err)
	}
	return &prompt, nil
}

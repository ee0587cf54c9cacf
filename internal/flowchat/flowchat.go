// Package flowchat provides the core abstractions shared by the flow client,
// the conversation store and the generative backends.
// This package defines the Backend interface that all provider implementations
// (gemini, openai, anthropic) must implement.
package flowchat

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ModelInfo represents information about an available model from a provider.
type ModelInfo struct {
	ID          string // Model identifier (e.g., "gemini-2.5-flash")
	Description string // Human-readable description of the model
	IsDefault   bool   // Whether this is the configured default model
}

// Media is an inline attachment sent alongside a prompt.
type Media struct {
	MIMEType string
	Data     []byte
}

// GenerateRequest is a single prompt sent to a backend.
type GenerateRequest struct {
	// Model overrides the backend's configured model (name only, no provider prefix).
	Model  string
	System string
	Prompt string
	Media  []Media
	// Schema requests a JSON object response matching the schema. Nil means free text.
	Schema *Schema
}

// Audio is playable audio returned by a backend.
type Audio struct {
	MIMEType string
	Data     []byte
}

// Backend defines the interface for hosted generative-AI providers.
//
// Example usage:
//
//	backend, err := gemini.NewBackend(ctx, cfg)
//	text, err := backend.Generate(ctx, flowchat.GenerateRequest{Prompt: "Hello"})
type Backend interface {
	// Name returns the provider name (e.g. "gemini").
	Name() string

	// Generate sends one prompt and returns the raw response text.
	// When req.Schema is set the text is expected to be a JSON object.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// Speak converts text to audio using the given model and voice.
	// Providers without speech support return ErrSpeechUnsupported.
	Speak(ctx context.Context, model, voice, text string) (*Audio, error)

	// ListModels returns a list of available models for the provider.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// SetDebug enables or disables debug output.
	SetDebug(enabled bool)
}

// ErrSpeechUnsupported is returned by backends that cannot synthesize speech.
var ErrSpeechUnsupported = errors.New("speech synthesis is not supported by this provider")

// ParseModelString parses a model string in "provider:model" format.
// Returns (provider, model, error).
//
// Example:
//
//	provider, model, err := ParseModelString("gemini:gemini-2.5-flash")
//	// provider = "gemini", model = "gemini-2.5-flash"
func ParseModelString(modelStr string) (string, string, error) {
	parts := strings.SplitN(modelStr, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid model format: %s (expected format: provider:model, e.g., gemini:gemini-2.5-flash)", modelStr)
	}

	provider := strings.TrimSpace(parts[0])
	model := strings.TrimSpace(parts[1])

	if provider == "" || model == "" {
		return "", "", fmt.Errorf("provider and model cannot be empty")
	}

	return provider, model, nil
}

// FormatModelString formats provider and model into "provider:model" format.
func FormatModelString(provider, model string) string {
	return fmt.Sprintf("%s:%s", provider, model)
}

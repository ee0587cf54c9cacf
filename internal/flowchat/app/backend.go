package app

import (
	"fmt"

	"github.com/longkey1/flowchat/internal/anthropic"
	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/longkey1/flowchat/internal/flowchat/config"
	"github.com/longkey1/flowchat/internal/gemini"
	"github.com/longkey1/flowchat/internal/openai"
)

// Providers lists the supported backend names
var Providers = []string{gemini.ProviderName, openai.ProviderName, anthropic.ProviderName}

// NewBackend creates the backend for provider
func NewBackend(cfg *config.Config, provider string) (flowchat.Backend, error) {
	switch provider {
	case gemini.ProviderName:
		return gemini.NewBackend(cfg), nil
	case openai.ProviderName:
		return openai.NewBackend(cfg), nil
	case anthropic.ProviderName:
		return anthropic.NewBackend(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// speechModel picks the speech model for backend. A configured model for a
// different provider cannot be used; the backend default applies instead.
func speechModel(cfg *config.Config, backend flowchat.Backend) (string, bool) {
	provider, model, err := flowchat.ParseModelString(cfg.GetSpeechModel())
	if err != nil || provider != backend.Name() {
		return "", false
	}
	return model, true
}

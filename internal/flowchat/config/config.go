package config

import (
	"fmt"
	"time"

	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/spf13/viper"
)

// Storage backends
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Delete policies applied when the active conversation is deleted
const (
	DeletePolicyClear      = "clear"
	DeletePolicyMostRecent = "most_recent"
)

// Config holds the configuration for flowchat
type Config struct {
	Model            string        `toml:"model" mapstructure:"model"`               // Format: "provider:model" (e.g., "gemini:gemini-2.5-flash")
	SpeechModel      string        `toml:"speech_model" mapstructure:"speech_model"` // Format: "provider:model"
	SpeechVoice      string        `toml:"speech_voice" mapstructure:"speech_voice"`
	SpeechEnabled    bool          `toml:"speech_enabled" mapstructure:"speech_enabled"`
	SpeechPlayer     string        `toml:"speech_player" mapstructure:"speech_player"` // empty = detect
	OpenAIBaseURL    string        `toml:"openai_base_url" mapstructure:"openai_base_url"`
	OpenAIToken      string        `toml:"openai_token" mapstructure:"openai_token"`
	GeminiBaseURL    string        `toml:"gemini_base_url" mapstructure:"gemini_base_url"`
	GeminiToken      string        `toml:"gemini_token" mapstructure:"gemini_token"`
	AnthropicBaseURL string        `toml:"anthropic_base_url" mapstructure:"anthropic_base_url"`
	AnthropicToken   string        `toml:"anthropic_token" mapstructure:"anthropic_token"`
	PromptDirs       []string      `toml:"prompt_dirs" mapstructure:"prompt_dirs"`
	Storage          string        `toml:"storage" mapstructure:"storage"`   // "file" or "sqlite"
	DataDir          string        `toml:"data_dir" mapstructure:"data_dir"` // empty = next to the config file
	RequestTimeout   time.Duration `toml:"request_timeout" mapstructure:"request_timeout"`
	DeletePolicy     string        `toml:"delete_policy" mapstructure:"delete_policy"`
	ServerAddr       string        `toml:"server_addr" mapstructure:"server_addr"`
	ServerRateLimit  float64       `toml:"server_rate_limit" mapstructure:"server_rate_limit"` // requests per second per client
	ServerBurst      int           `toml:"server_burst" mapstructure:"server_burst"`
}

// GetModel returns the model name
func (c *Config) GetModel() string {
	return c.Model
}

// GetProvider extracts provider name from the model string
func (c *Config) GetProvider() (string, error) {
	provider, _, err := flowchat.ParseModelString(c.Model)
	return provider, err
}

// GetModelName extracts model name from the model string
func (c *Config) GetModelName() (string, error) {
	_, model, err := flowchat.ParseModelString(c.Model)
	return model, err
}

// GetSpeechModel returns the speech model string, falling back to the chat model
func (c *Config) GetSpeechModel() string {
	if c.SpeechModel != "" {
		return c.SpeechModel
	}
	return c.Model
}

// NewDefaultConfig returns a new Config with default values
func NewDefaultConfig(promptDir string) *Config {
	return &Config{
		Model:            "gemini:gemini-2.5-flash",
		SpeechModel:      "gemini:gemini-2.5-flash-preview-tts",
		SpeechVoice:      "Algenib",
		SpeechEnabled:    false,
		SpeechPlayer:     "",
		OpenAIBaseURL:    "https://api.openai.com/v1",
		OpenAIToken:      "$OPENAI_API_KEY", // Default to env var
		GeminiBaseURL:    "https://generativelanguage.googleapis.com/",
		GeminiToken:      "$GEMINI_API_KEY",
		AnthropicBaseURL: "https://api.anthropic.com/v1",
		AnthropicToken:   "$ANTHROPIC_API_KEY",
		PromptDirs:       []string{promptDir},
		Storage:          StorageFile,
		DataDir:          "",
		RequestTimeout:   60 * time.Second,
		DeletePolicy:     DeletePolicyClear,
		ServerAddr:       "127.0.0.1:8080",
		ServerRateLimit:  5,
		ServerBurst:      10,
	}
}

// LoadConfig loads configuration from viper
func LoadConfig() (*Config, error) {
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Convert prompt directories to absolute paths
	for i, promptDir := range config.PromptDirs {
		absPath, err := ResolvePath(promptDir)
		if err != nil {
			return nil, fmt.Errorf("error resolving prompt directory path '%s': %w", promptDir, err)
		}
		config.PromptDirs[i] = absPath
	}

	// Expand $VAR references in tokens and base URLs
	for _, field := range []*string{
		&config.OpenAIToken, &config.GeminiToken, &config.AnthropicToken,
		&config.OpenAIBaseURL, &config.GeminiBaseURL, &config.AnthropicBaseURL,
	} {
		expanded, err := expandEnvVar(*field)
		if err != nil {
			return nil, err
		}
		*field = expanded
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	if _, _, err := flowchat.ParseModelString(c.Model); err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}
	switch c.Storage {
	case StorageFile, StorageSQLite:
	default:
		return fmt.Errorf("unsupported storage: %s (expected %s or %s)", c.Storage, StorageFile, StorageSQLite)
	}
	switch c.DeletePolicy {
	case DeletePolicyClear, DeletePolicyMostRecent:
	default:
		return fmt.Errorf("unsupported delete_policy: %s (expected %s or %s)", c.DeletePolicy, DeletePolicyClear, DeletePolicyMostRecent)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout cannot be negative")
	}
	return nil
}

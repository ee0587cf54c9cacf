package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// expandEnvVar resolves a "$VAR" or "${VAR}" reference. Other values are
// returned unchanged; an unset variable expands to "".
func expandEnvVar(value string) (string, error) {
	if !strings.HasPrefix(value, "$") {
		return value, nil
	}

	name := strings.TrimPrefix(value, "$")
	if braced, ok := strings.CutPrefix(name, "{"); ok {
		name, ok = strings.CutSuffix(braced, "}")
		if !ok {
			return "", fmt.Errorf("unterminated environment variable reference: %q", value)
		}
	}
	if name == "" {
		return "", fmt.Errorf("empty environment variable reference: %q", value)
	}
	return os.Getenv(name), nil
}

// providerSettings are the connection settings of one backend, already
// env-expanded by LoadConfig.
type providerSettings struct {
	baseURL string
	token   string
}

func (c *Config) provider(name string) (providerSettings, error) {
	switch name {
	case "openai":
		return providerSettings{baseURL: c.OpenAIBaseURL, token: c.OpenAIToken}, nil
	case "gemini":
		return providerSettings{baseURL: c.GeminiBaseURL, token: c.GeminiToken}, nil
	case "anthropic":
		return providerSettings{baseURL: c.AnthropicBaseURL, token: c.AnthropicToken}, nil
	}
	return providerSettings{}, fmt.Errorf("unsupported provider: %s", name)
}

// notConfigured names both places a missing setting can be supplied.
func notConfigured(provider, label, key string) error {
	return fmt.Errorf("%s %s is not configured. Set it in config file (%s_%s) or environment variable (FLOWCHAT_%s_%s)",
		provider, label, provider, key, strings.ToUpper(provider), strings.ToUpper(key))
}

// GetBaseURL returns the API base URL of a provider.
func (c *Config) GetBaseURL(provider string) (string, error) {
	p, err := c.provider(provider)
	if err != nil {
		return "", err
	}
	if p.baseURL == "" {
		return "", notConfigured(provider, "base URL", "base_url")
	}
	return p.baseURL, nil
}

// GetToken returns the API token of a provider.
func (c *Config) GetToken(provider string) (string, error) {
	p, err := c.provider(provider)
	if err != nil {
		return "", err
	}
	if p.token == "" {
		return "", notConfigured(provider, "token", "token")
	}
	return p.token, nil
}

// GetDataDir returns the directory where persisted state lives.
// An explicit data_dir wins. Otherwise, if a config file is used, state is stored
// in a "data" directory next to it. Defaults to $HOME/.config/flowchat/data.
func (c *Config) GetDataDir() (string, error) {
	if c.DataDir != "" {
		return ResolvePath(c.DataDir)
	}

	dir, ok, err := configDir()
	if err != nil {
		return "", err
	}
	if ok {
		return filepath.Join(dir, "data"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "flowchat", "data"), nil
}

// ResolvePath makes path absolute, relative to the config file's directory
// or, without a config file, to the working directory.
func ResolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}

	base, ok, err := configDir()
	if err != nil {
		return "", err
	}
	if !ok {
		if base, err = os.Getwd(); err != nil {
			return "", fmt.Errorf("error getting current working directory: %w", err)
		}
	}
	return filepath.Join(base, path), nil
}

// configDir returns the absolute directory of the config file in use.
func configDir() (string, bool, error) {
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		return "", false, nil
	}
	dir, err := filepath.Abs(filepath.Dir(configFile))
	if err != nil {
		return "", false, fmt.Errorf("error getting current working directory: %w", err)
	}
	return dir, true, nil
}

/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/longkey1/flowchat/internal/flowchat/app"
	"github.com/longkey1/flowchat/internal/flowchat/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flowchat",
	Short: "A chat assistant backed by generative AI flows",
	Long: `flowchat is a chat assistant that routes each message to a generative AI flow:
general answers, code generation, file analysis and APK conversion guidance.
Answers can be spoken aloud, code blocks can be copied or previewed,
and conversations are kept locally.

It supports multiple providers (gemini, openai, anthropic).
You can configure the tool using a TOML configuration file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/flowchat/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetEnvPrefix("FLOWCHAT")
	viper.AutomaticEnv()

	home, err := os.UserHomeDir()
	cobra.CheckErr(err)
	userConfigDir := filepath.Join(home, ".config", "flowchat")

	// Later directories take precedence over earlier ones
	defaultPromptDirs := []string{
		"/usr/share/flowchat/prompts",
		"/usr/local/share/flowchat/prompts",
		filepath.Join(userConfigDir, "prompts"),
	}
	defaultConfig := config.NewDefaultConfig(filepath.Join(userConfigDir, "prompts"))

	viper.SetDefault("model", defaultConfig.Model)
	viper.SetDefault("speech_model", defaultConfig.SpeechModel)
	viper.SetDefault("speech_voice", defaultConfig.SpeechVoice)
	viper.SetDefault("speech_enabled", defaultConfig.SpeechEnabled)
	viper.SetDefault("speech_player", defaultConfig.SpeechPlayer)
	viper.SetDefault("openai_base_url", defaultConfig.OpenAIBaseURL)
	viper.SetDefault("openai_token", defaultConfig.OpenAIToken)
	viper.SetDefault("gemini_base_url", defaultConfig.GeminiBaseURL)
	viper.SetDefault("gemini_token", defaultConfig.GeminiToken)
	viper.SetDefault("anthropic_base_url", defaultConfig.AnthropicBaseURL)
	viper.SetDefault("anthropic_token", defaultConfig.AnthropicToken)
	viper.SetDefault("prompt_dirs", defaultPromptDirs)
	viper.SetDefault("storage", defaultConfig.Storage)
	viper.SetDefault("data_dir", defaultConfig.DataDir)
	viper.SetDefault("request_timeout", defaultConfig.RequestTimeout)
	viper.SetDefault("delete_policy", defaultConfig.DeletePolicy)
	viper.SetDefault("server_addr", defaultConfig.ServerAddr)
	viper.SetDefault("server_rate_limit", defaultConfig.ServerRateLimit)
	viper.SetDefault("server_burst", defaultConfig.ServerBurst)

	viper.BindEnv("openai_base_url", "FLOWCHAT_OPENAI_BASE_URL")
	viper.BindEnv("openai_token", "FLOWCHAT_OPENAI_TOKEN")
	viper.BindEnv("gemini_base_url", "FLOWCHAT_GEMINI_BASE_URL")
	viper.BindEnv("gemini_token", "FLOWCHAT_GEMINI_TOKEN")
	viper.BindEnv("anthropic_base_url", "FLOWCHAT_ANTHROPIC_BASE_URL")
	viper.BindEnv("anthropic_token", "FLOWCHAT_ANTHROPIC_TOKEN")
	viper.BindEnv("speech_enabled", "FLOWCHAT_SPEECH_ENABLED")
	viper.BindEnv("data_dir", "FLOWCHAT_DATA_DIR")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	} else {
		// System-wide config first (lower priority)
		for _, path := range []string{"/etc/flowchat", "/usr/local/etc/flowchat"} {
			viper.AddConfigPath(path)
		}
		viper.SetConfigType("toml")
		viper.SetConfigName("config")

		systemConfigLoaded := false
		if err := viper.ReadInConfig(); err == nil {
			systemConfigLoaded = true
			if verbose {
				fmt.Fprintln(os.Stderr, "Loaded system-wide config:", viper.ConfigFileUsed())
			}
		}

		// User config merged on top
		viper.AddConfigPath(userConfigDir)
		if systemConfigLoaded {
			if err := viper.MergeInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					fmt.Fprintf(os.Stderr, "Error merging user config file: %v\n", err)
				}
			} else if verbose {
				fmt.Fprintln(os.Stderr, "Merged user config:", viper.ConfigFileUsed())
			}
		} else if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			}
		}
	}

	if verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		fmt.Fprintln(os.Stderr, "Environment variables:")
		fmt.Fprintln(os.Stderr, "  FLOWCHAT_MODEL:", viper.GetString("model"))
		fmt.Fprintln(os.Stderr, "  FLOWCHAT_SPEECH_MODEL:", viper.GetString("speech_model"))
		fmt.Fprintln(os.Stderr, "  FLOWCHAT_SPEECH_ENABLED:", viper.GetBool("speech_enabled"))
		fmt.Fprintln(os.Stderr, "  FLOWCHAT_STORAGE:", viper.GetString("storage"))
		fmt.Fprintln(os.Stderr, "  FLOWCHAT_PROMPT_DIRS:", viper.GetStringSlice("prompt_dirs"))
	}
}

// newLogger writes warnings to stderr, or everything with --verbose.
func newLogger() *zap.Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.DisableStacktrace = !verbose
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// loadConfig loads the configuration from viper.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// openApp opens the application state described by cfg.
func openApp(cfg *config.Config, opts ...app.Option) (*app.App, error) {
	opts = append([]app.Option{app.WithDebug(verbose)}, opts...)
	a, err := app.New(cfg, newLogger(), opts...)
	if err != nil {
		return nil, fmt.Errorf("opening flowchat: %w", err)
	}
	return a, nil
}

// openAuthedApp loads the configuration and opens the application state
// for commands that need a signed-in user.
func openAuthedApp(opts ...app.Option) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := openApp(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.Auth.Require(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// confirm asks a y/N question on stdout.
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "Y"
}

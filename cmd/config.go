package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/longkey1/flowchat/internal/flowchat/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const configFields = "configfile, model, speech_model, speech_voice, speech_enabled, speech_player, " +
	"openai_base_url, openai_token, gemini_base_url, gemini_token, anthropic_base_url, anthropic_token, " +
	"promptdirs, storage, data_dir, request_timeout, delete_policy, server_addr, server_rate_limit, server_burst"

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config [field]",
	Short: "Display current configuration",
	Long: `Display the current configuration values.
This command shows all configuration values loaded from the config file and environment variables.

If a field name is specified, only that field's value is displayed.
Available fields: ` + configFields + `

Examples:
  flowchat config                 # Show all configuration
  flowchat config model           # Show only model
  flowchat config gemini_token    # Show only Gemini token (masked)
  flowchat config data_dir        # Show only the data directory`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if len(args) > 0 {
			value, ok := configField(cfg, strings.ToLower(args[0]))
			if !ok {
				fmt.Fprintf(os.Stderr, "Unknown field: %s\n", args[0])
				fmt.Fprintf(os.Stderr, "Available fields: %s\n", configFields)
				return fmt.Errorf("unknown field: %s", args[0])
			}
			fmt.Println(value)
			return nil
		}

		dataDir, _ := configField(cfg, "data_dir")
		fmt.Printf("ConfigFile: %s\n", viper.ConfigFileUsed())
		fmt.Printf("Model: %s\n", cfg.Model)
		fmt.Printf("SpeechModel: %s\n", cfg.GetSpeechModel())
		fmt.Printf("SpeechVoice: %s\n", cfg.SpeechVoice)
		fmt.Printf("SpeechEnabled: %v\n", cfg.SpeechEnabled)
		fmt.Printf("SpeechPlayer: %s\n", cfg.SpeechPlayer)
		fmt.Printf("OpenAIBaseURL: %s\n", cfg.OpenAIBaseURL)
		fmt.Printf("OpenAIToken: %s\n", maskToken(cfg.OpenAIToken))
		fmt.Printf("GeminiBaseURL: %s\n", cfg.GeminiBaseURL)
		fmt.Printf("GeminiToken: %s\n", maskToken(cfg.GeminiToken))
		fmt.Printf("AnthropicBaseURL: %s\n", cfg.AnthropicBaseURL)
		fmt.Printf("AnthropicToken: %s\n", maskToken(cfg.AnthropicToken))
		fmt.Printf("PromptDirectories: %s\n", strings.Join(cfg.PromptDirs, ","))
		fmt.Printf("Storage: %s\n", cfg.Storage)
		fmt.Printf("DataDir: %s\n", dataDir)
		fmt.Printf("RequestTimeout: %s\n", cfg.RequestTimeout)
		fmt.Printf("DeletePolicy: %s\n", cfg.DeletePolicy)
		fmt.Printf("ServerAddr: %s\n", cfg.ServerAddr)
		fmt.Printf("ServerRateLimit: %v\n", cfg.ServerRateLimit)
		fmt.Printf("ServerBurst: %d\n", cfg.ServerBurst)
		return nil
	},
}

// configField returns the display value of a single field. Tokens are masked.
func configField(cfg *config.Config, field string) (string, bool) {
	switch field {
	case "configfile":
		return viper.ConfigFileUsed(), true
	case "model":
		return cfg.Model, true
	case "speech_model", "speechmodel":
		return cfg.GetSpeechModel(), true
	case "speech_voice", "speechvoice":
		return cfg.SpeechVoice, true
	case "speech_enabled", "speechenabled":
		return fmt.Sprint(cfg.SpeechEnabled), true
	case "speech_player", "speechplayer":
		return cfg.SpeechPlayer, true
	case "openai_base_url", "openaibaseurl":
		return cfg.OpenAIBaseURL, true
	case "openai_token", "openaitoken":
		return maskToken(cfg.OpenAIToken), true
	case "gemini_base_url", "geminibaseurl":
		return cfg.GeminiBaseURL, true
	case "gemini_token", "geminitoken":
		return maskToken(cfg.GeminiToken), true
	case "anthropic_base_url", "anthropicbaseurl":
		return cfg.AnthropicBaseURL, true
	case "anthropic_token", "anthropictoken":
		return maskToken(cfg.AnthropicToken), true
	case "promptdirs", "prompt_dirs":
		return strings.Join(cfg.PromptDirs, ","), true
	case "storage":
		return cfg.Storage, true
	case "data_dir", "datadir":
		dir, err := cfg.GetDataDir()
		if err != nil {
			return err.Error(), true
		}
		return dir, true
	case "request_timeout", "requesttimeout":
		return cfg.RequestTimeout.String(), true
	case "delete_policy", "deletepolicy":
		return cfg.DeletePolicy, true
	case "server_addr", "serveraddr":
		return cfg.ServerAddr, true
	case "server_rate_limit", "serverratelimit":
		return fmt.Sprint(cfg.ServerRateLimit), true
	case "server_burst", "serverburst":
		return fmt.Sprint(cfg.ServerBurst), true
	default:
		return "", false
	}
}

// maskToken returns a masked version of the token for security
func maskToken(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func init() {
	rootCmd.AddCommand(configCmd)
}

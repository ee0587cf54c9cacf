/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/longkey1/flowchat/internal/flowchat/prompt"
	"github.com/spf13/cobra"
)

var withDir bool

// flowsCmd represents the flows command
var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "List available flow templates",
	Long: `List the flow templates: the built-in ones and any found in the configured
prompt directories. A template in a prompt directory overrides the built-in one
of the same name; later directories take precedence over earlier ones.

The template files are TOML with the following structure:
system = "System prompt with optional {{placeholder}} variables"
user = "User prompt, e.g. {{query}} or {{instructions}}"
model = "optional-model-name"  # Optional: overrides the model for this flow

Values passed with 'flowchat chat --arg key:value' fill extra placeholders.

If you want to see where each template comes from, use the --with-dir option.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		registry := prompt.NewRegistry(cfg.PromptDirs, newLogger())
		entries, err := registry.List()
		if err != nil {
			return fmt.Errorf("listing flow templates: %w", err)
		}

		fmt.Printf("Available flow templates (%d found):\n\n", len(entries))
		for _, e := range entries {
			if withDir {
				fmt.Printf("  %s (from %s)\n", e.Name, e.Source)
			} else {
				fmt.Printf("  %s\n", e.Name)
			}
		}

		fmt.Println("\nOverride a template by creating <name>.toml in one of:")
		for _, dir := range cfg.PromptDirs {
			fmt.Printf("  - %s\n", dir)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flowsCmd)
	flowsCmd.Flags().BoolVar(&withDir, "with-dir", false, "Show the directory each template was found in")
}

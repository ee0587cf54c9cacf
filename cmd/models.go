/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/longkey1/flowchat/internal/flowchat/app"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// modelsCmd represents the models command
var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List available models for the specified provider(s)",
	Long: `List all available models for the specified provider.
Fetches the latest model information directly from the provider's API.

Supported providers: ` + strings.Join(app.Providers, ", ") + `

If no provider is specified, lists models from all providers.

Example:
  flowchat models           # List models from all providers
  flowchat models gemini    # List Gemini models
  flowchat models openai    # List OpenAI models`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		providers := app.Providers
		if len(args) > 0 {
			if !slices.Contains(app.Providers, args[0]) {
				return fmt.Errorf("unsupported provider '%s'\nSupported providers: %s", args[0], strings.Join(app.Providers, ", "))
			}
			providers = []string{args[0]}
		}

		type providerResult struct {
			provider string
			models   []flowchat.ModelInfo
			err      error
		}
		results := make([]providerResult, len(providers))

		// Providers are queried concurrently; a failure is reported, not fatal.
		var g errgroup.Group
		for i, provider := range providers {
			g.Go(func() error {
				results[i].provider = provider
				if verbose {
					fmt.Fprintf(os.Stderr, "Listing models for provider: %s\n", provider)
				}
				backend, err := app.NewBackend(cfg, provider)
				if err != nil {
					results[i].err = err
					return nil
				}
				backend.SetDebug(verbose)
				models, err := backend.ListModels(cmd.Context())
				switch {
				case err != nil:
					results[i].err = fmt.Errorf("failed to list models: %w", err)
				case len(models) == 0:
					results[i].err = fmt.Errorf("no models returned from API")
				default:
					results[i].models = models
				}
				return nil
			})
		}
		g.Wait()

		successCount := 0
		for _, result := range results {
			if result.err != nil {
				continue
			}
			if successCount > 0 {
				fmt.Println()
			}
			successCount++

			fmt.Printf("Available models for %s:\n\n", result.provider)

			maxModelWidth := 15
			maxModelIDWidth := 15
			for _, m := range result.models {
				maxModelWidth = max(maxModelWidth, len(flowchat.FormatModelString(result.provider, m.ID)))
				maxModelIDWidth = max(maxModelIDWidth, len(m.ID))
			}

			fmt.Printf("%-*s  %-*s  %-10s  %s\n", maxModelWidth, "MODEL", maxModelIDWidth, "MODEL ID", "DEFAULT", "DESCRIPTION")
			fmt.Printf("%s  %s  %s  %s\n",
				strings.Repeat("-", maxModelWidth),
				strings.Repeat("-", maxModelIDWidth),
				strings.Repeat("-", 10),
				strings.Repeat("-", 50))

			for _, m := range result.models {
				defaultMark := ""
				if m.IsDefault {
					defaultMark = "Yes"
				}
				fmt.Printf("%-*s  %-*s  %-10s  %s\n",
					maxModelWidth, flowchat.FormatModelString(result.provider, m.ID),
					maxModelIDWidth, m.ID,
					defaultMark,
					m.Description)
			}

			fmt.Printf("\nUse a model with: flowchat chat --model <model> [message]\n")
		}

		errorCount := 0
		for _, result := range results {
			if result.err == nil {
				continue
			}
			if errorCount == 0 && successCount > 0 {
				fmt.Println()
			}
			errorCount++
			fmt.Fprintf(os.Stderr, "Warning: Skipping %s - %v\n", result.provider, result.err)
		}
		if successCount == 0 {
			return fmt.Errorf("no models could be listed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

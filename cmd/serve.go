package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/longkey1/flowchat/internal/flowchat/app"
	"github.com/longkey1/flowchat/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat over an HTTP JSON API",
	Long: `Serve the chat over an HTTP JSON API for a browser front-end.

Every /api route except /api/login and /api/signup requires the session token
as "Authorization: Bearer <token>". Requests are rate limited per client
(server_rate_limit, server_burst). Speech is returned as a data URI instead of
being played.

Flow templates are reloaded when files in the prompt directories change.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.ServerAddr = serveAddr
		}

		a, err := openApp(cfg, app.WithoutPlayback())
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(os.Stderr, "Listening on http://%s\n", cfg.ServerAddr)
		return server.New(a, server.Options{
			Addr:      cfg.ServerAddr,
			RateLimit: cfg.ServerRateLimit,
			Burst:     cfg.ServerBurst,
		}).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", server.DefaultAddr, "Address to listen on (overrides server_addr)")
}

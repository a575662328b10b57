package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kerbaras/audiobooks/pkg/app"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "audiobooks",
	Short: "An audiobook library with offline downloads",
	Long:  "Browse sources, keep an audiobook library and download chapters for offline listening, from a TUI or the command line",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			if err := a.startDownloads(ctx); err != nil {
				return err
			}
			return app.NewApp(a.ctrl, a.manager, a.sourceIDs()).Run(ctx)
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/audiobooks/config.toml)")
	rootCmd.SilenceUsage = true
}

// withApp runs fn with a wired appContext and a context cancelled on SIGINT or
// SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *appContext) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newAppContext(ctx, configPath)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

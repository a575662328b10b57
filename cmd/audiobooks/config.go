package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/kerbaras/audiobooks/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		path := configPath
		if path == "" {
			var err error
			if path, err = config.DefaultConfigPath(); err != nil {
				return err
			}
		}
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		if err := config.CreateSample(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, exists, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if !exists {
			path += " (not found, using defaults)"
		}
		fmt.Printf("config:      %s\n", path)
		fmt.Printf("downloads:   %s\n", cfg.Paths.DownloadsDir)
		fmt.Printf("database:    %s\n", cfg.Paths.Database)
		fmt.Printf("exports:     %s\n", cfg.Paths.ExportDir)
		fmt.Printf("workers:     %d (segments: %d)\n", cfg.Downloads.Workers, cfg.Downloads.SegmentWorkers)
		fmt.Printf("retry:       %d attempts\n", cfg.Retry.Attempts)
		for _, s := range cfg.Sources {
			fmt.Printf("source:      %s (%s) %s\n", s.ID, s.Name, s.BaseURL)
		}
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

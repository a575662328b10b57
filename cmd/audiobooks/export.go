package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <entry>",
	Short: "Bundle downloaded chapters into an EPUB",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			entry, err := a.findEntry(args[0])
			if err != nil {
				return err
			}
			path, err := a.ctrl.Export(entry.ID)
			if err != nil {
				return err
			}
			fmt.Printf("EPUB created: %s\n", path)
			return nil
		})
	},
}

var coverCmd = &cobra.Command{
	Use:   "cover <entry> <image>",
	Short: "Set a custom cover for an audiobook",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			entry, err := a.findEntry(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			return a.ctrl.SetCustomCover(entry.ID, f)
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, coverCmd)
}

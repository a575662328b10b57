package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kerbaras/audiobooks/pkg/library"
	"github.com/spf13/cobra"
)

var errNoFlags = errors.New("no migration flag applies")

var migrateCmd = &cobra.Command{
	Use:   "migrate <from-entry> <to-entry>",
	Short: "Move listening state to another copy of an audiobook",
	Long:  "Copy listening progress, categories and the custom cover from one library entry to another, usually the same title from a different source.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, _ := cmd.Flags().GetStringSlice("flags")
		replace, _ := cmd.Flags().GetBool("replace")
		requested, err := library.ParseMigrationFlags(names)
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			from, err := a.findEntry(args[0])
			if err != nil {
				return err
			}
			to, err := a.findEntry(args[1])
			if err != nil {
				return err
			}

			available, err := a.ctrl.MigrationFlags(from.ID)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				requested = available
			}
			if requested&available == 0 {
				return fmt.Errorf("%w (available: %s)", errNoFlags, available)
			}

			if err := a.ctrl.Migrate(ctx, from.ID, to.ID, requested, replace); err != nil {
				return err
			}
			fmt.Printf("Migrated %s from '%s' to '%s'\n", requested&available, from.Title, to.Title)
			return nil
		})
	},
}

func init() {
	migrateCmd.Flags().StringSlice("flags", nil, "what to migrate: chapters, categories, cover, delete-downloaded (default: all that apply)")
	migrateCmd.Flags().Bool("replace", false, "drop the old entry from favorites")

	rootCmd.AddCommand(migrateCmd)
}

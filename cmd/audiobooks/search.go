package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <source> <query>",
	Short: "Search a source for audiobooks",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			query := strings.Join(args[1:], " ")
			results, err := a.ctrl.Search(ctx, args[0], query)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if len(results) == 0 {
				fmt.Println("No results found.")
				return nil
			}
			for _, e := range results {
				author := e.Author
				if author == "" {
					author = "unknown author"
				}
				fmt.Printf("%-20s %s (%s)\n", e.ID, e.Title, author)
			}
			fmt.Printf("\nAdd one with: audiobooks add %s <id>\n", args[0])
			return nil
		})
	},
}

var addCmd = &cobra.Command{
	Use:   "add <source> <entry-id>",
	Short: "Add an audiobook to your library",
	Long:  "Fetch an audiobook and its chapter list from a source and save them to the library. Nothing is downloaded.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			entry, chapters, err := a.ctrl.AddEntry(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Added '%s' with %d chapters\n", entry.Title, len(chapters))
			fmt.Printf("To download it: audiobooks download %s\n", entry.ID)
			return nil
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <entry>",
	Short: "Reload the chapter list of an audiobook from its source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			entry, err := a.findEntry(args[0])
			if err != nil {
				return err
			}
			chapters, err := a.ctrl.RefreshChapters(ctx, entry)
			if err != nil {
				return err
			}
			fmt.Printf("'%s' has %d chapters\n", entry.Title, len(chapters))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(searchCmd, addCmd, refreshCmd)
}

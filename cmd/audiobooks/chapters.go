package cmd

import (
	"context"
	"fmt"

	"github.com/kerbaras/audiobooks/pkg/library"
	"github.com/spf13/cobra"
)

var chaptersCmd = &cobra.Command{
	Use:   "chapters <entry>",
	Short: "List the chapters of an audiobook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefs, err := chapterPreferences(cmd)
		if err != nil {
			return err
		}
		next, _ := cmd.Flags().GetBool("next")

		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			entry, err := a.findEntry(args[0])
			if err != nil {
				return err
			}

			if next {
				ch, err := a.ctrl.NextUnread(entry.ID, prefs)
				if err != nil {
					return err
				}
				if ch == nil {
					fmt.Println("Everything has been listened to.")
					return nil
				}
				fmt.Printf("%s\t%s\n", ch.ID, ch.Name)
				return nil
			}

			_, chapters, err := a.ctrl.Chapters(entry.ID, prefs)
			if err != nil {
				return err
			}
			for _, ch := range chapters {
				marks := ""
				if a.ctrl.IsDownloaded(entry, ch) {
					marks += "↓"
				}
				if ch.Read {
					marks += "✓"
				}
				if ch.Bookmark {
					marks += "★"
				}
				fmt.Printf("%-3s %-20s %6.1f  %s\n", marks, ch.ID, ch.Number, ch.Name)
			}
			return nil
		})
	},
}

func chapterPreferences(cmd *cobra.Command) (library.Preferences, error) {
	var prefs library.Preferences
	tri := []struct {
		flag string
		dst  *library.TriState
	}{
		{"unread", &prefs.Unread},
		{"downloaded", &prefs.Downloaded},
		{"bookmarked", &prefs.Bookmarked},
	}
	for _, t := range tri {
		value, _ := cmd.Flags().GetString(t.flag)
		state, err := library.ParseTriState(value)
		if err != nil {
			return prefs, fmt.Errorf("--%s: %w", t.flag, err)
		}
		*t.dst = state
	}

	sortBy, _ := cmd.Flags().GetString("sort")
	key, err := library.ParseSortKey(sortBy)
	if err != nil {
		return prefs, fmt.Errorf("--sort: %w", err)
	}
	prefs.SortBy = key
	prefs.Descending, _ = cmd.Flags().GetBool("desc")
	return prefs, nil
}

var markCmd = &cobra.Command{
	Use:   "mark <chapter-id>...",
	Short: "Mark chapters as listened",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unread, _ := cmd.Flags().GetBool("unread")
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			for _, id := range args {
				if err := a.ctrl.MarkRead(id, !unread); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

func init() {
	f := chaptersCmd.Flags()
	f.String("unread", "", "filter on unread chapters: is, not or off")
	f.String("downloaded", "", "filter on downloaded chapters: is, not or off")
	f.String("bookmarked", "", "filter on bookmarked chapters: is, not or off")
	f.String("sort", "source", "sort by source, number, date or name")
	f.Bool("desc", false, "sort descending")
	f.Bool("next", false, "print only the next chapter to listen to")

	markCmd.Flags().Bool("unread", false, "mark as not listened instead")

	rootCmd.AddCommand(chaptersCmd, markCmd)
}

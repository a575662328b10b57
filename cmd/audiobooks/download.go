package cmd

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/kerbaras/audiobooks/pkg/download"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download <entry> [chapter-id...]",
	Short: "Download chapters of an audiobook",
	Long:  "Download the given chapters of an audiobook, or all of them, and wait until the queue is empty. Interrupted downloads resume on the next run.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			entry, err := a.findEntry(args[0])
			if err != nil {
				return err
			}
			if err := a.startDownloads(ctx); err != nil {
				return err
			}

			sub := a.manager.Subscribe()
			defer sub.Close()

			n, err := a.ctrl.DownloadChapters(entry.ID, args[1:])
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Printf("Nothing to download for '%s'.\n", entry.Title)
				return nil
			}
			fmt.Printf("Downloading %d chapters of '%s'\n", n, entry.Title)
			if err := awaitDownloads(ctx, a.manager.Pending, sub.Updates()); err != nil {
				return err
			}
			fmt.Println("All downloads complete.")
			return nil
		})
	},
}

// awaitDownloads prints snapshots until nothing is pending. An interrupted
// wait returns the context error so the command exits non-zero.
func awaitDownloads(ctx context.Context, pending func() int, updates <-chan download.Snapshot) error {
	failed := 0
	for pending() > 0 {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted, partial downloads are kept.")
			return fmt.Errorf("download interrupted: %w", ctx.Err())
		case s, ok := <-updates:
			if !ok {
				return nil
			}
			if s.State == download.StateError && !s.Removed {
				failed++
			}
			printSnapshot(s)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d chapters failed to download", failed)
	}
	return nil
}

func printSnapshot(s download.Snapshot) {
	switch {
	case s.Removed:
		fmt.Printf("  %s: cancelled\n", s.ChapterName)
	case s.State == download.StateDownloading:
		fmt.Printf("  %s: %3d%% %s\n", s.ChapterName, s.Progress, humanize.Bytes(uint64(s.BytesWritten)))
	case s.State == download.StateError:
		fmt.Printf("  %s: failed: %v\n", s.ChapterName, s.Err)
	default:
		fmt.Printf("  %s: %s\n", s.ChapterName, s.State)
	}
}

var deleteCmd = &cobra.Command{
	Use:   "delete <entry> [chapter-id...]",
	Short: "Delete downloaded chapters",
	Long:  "Delete the downloaded files of the given chapters, or of every chapter of the audiobook. Running downloads of those chapters are cancelled.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			entry, err := a.findEntry(args[0])
			if err != nil {
				return err
			}
			report, err := a.ctrl.DeleteDownloads(entry.ID, args[1:])
			for _, ch := range report.Removed {
				fmt.Printf("  deleted %s\n", ch.Name)
			}
			if len(report.Skipped) > 0 {
				fmt.Printf("  %d chapters were not downloaded\n", len(report.Skipped))
			}
			if err != nil {
				return fmt.Errorf("%d chapters could not be deleted: %w", len(report.Failed), err)
			}
			return nil
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <entry>",
	Short: "Remove an audiobook from the library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deleteDownloads, _ := cmd.Flags().GetBool("delete-downloads")
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			entry, err := a.findEntry(args[0])
			if err != nil {
				return err
			}
			if err := a.ctrl.RemoveEntry(entry.ID, deleteDownloads); err != nil {
				return err
			}
			fmt.Printf("Removed '%s'\n", entry.Title)
			return nil
		})
	},
}

func init() {
	removeCmd.Flags().Bool("delete-downloads", false, "also delete downloaded chapters")

	rootCmd.AddCommand(downloadCmd, deleteCmd, removeCmd)
}

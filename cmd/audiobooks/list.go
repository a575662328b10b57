package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the audiobooks in your library",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			summaries, err := a.ctrl.ListEntries()
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No audiobooks in library. Use 'audiobooks search' to find some.")
				return nil
			}

			columns := []table.Column{
				{Title: "ID", Width: 16},
				{Title: "Title", Width: 36},
				{Title: "Source", Width: 10},
				{Title: "Listened", Width: 10},
				{Title: "Downloaded", Width: 10},
			}
			rows := make([]table.Row, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, table.Row{
					truncateString(s.Entry.ID, 16),
					truncateString(s.Entry.Title, 36),
					s.Entry.Source,
					fmt.Sprintf("%d/%d", s.Read, s.Chapters),
					fmt.Sprintf("%d", s.Downloaded),
				})
			}

			t := table.New(
				table.WithColumns(columns),
				table.WithRows(rows),
				table.WithFocused(false),
				table.WithHeight(len(rows)),
			)
			st := table.DefaultStyles()
			st.Header = st.Header.
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240")).
				BorderBottom(true).
				Bold(true)
			st.Selected = st.Selected.
				Foreground(lipgloss.NoColor{}).
				Bold(false)
			t.SetStyles(st)

			fmt.Printf("\nLibrary (%d audiobooks)\n\n", len(summaries))
			fmt.Println(t.View())
			return nil
		})
	},
}

func truncateString(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	rootCmd.AddCommand(listCmd)
}

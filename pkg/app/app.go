package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kerbaras/audiobooks/pkg/app/screens"
	"github.com/kerbaras/audiobooks/pkg/services"
)

type App struct {
	ctrl      *services.LibraryController
	queue     screens.DownloadQueue
	sourceIDs []string
}

func NewApp(ctrl *services.LibraryController, queue screens.DownloadQueue, sourceIDs []string) *App {
	return &App{ctrl: ctrl, queue: queue, sourceIDs: sourceIDs}
}

// Run blocks until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	model := screens.NewRootScreen(a.ctrl, a.queue, a.sourceIDs)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

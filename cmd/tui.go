package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/offbeat/internal/shared"
	"github.com/desertthunder/offbeat/internal/tasks"
	"github.com/desertthunder/offbeat/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive player with background sync.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/offbeat-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, shared.ParseLogLevel(r.config.Log.Level))
	r.SetLogger(fileLogger)

	progress := make(chan tasks.ProgressUpdate, 16)
	a, err := r.open(ctx, progress)
	if err != nil {
		return err
	}
	defer a.Close()

	tracks, err := r.resolveTracks(ctx, a, cmd.Args().Slice())
	if err != nil {
		return err
	}

	engine := r.engine(a)
	defer engine.Close()

	a.probe.Start()
	a.sync.Start(ctx)

	model := ui.NewModel(ctx, ui.Options{
		Player:        engine,
		Library:       a.library,
		Pending:       a.queue,
		Syncer:        a.sync,
		Notifications: a.notifications,
		Progress:      progress,
	})
	defer model.Close()

	if len(tracks) > 0 {
		engine.Play(ctx, tracks...)
	}

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

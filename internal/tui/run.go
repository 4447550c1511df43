package tui

import (
	"context"
	"errors"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/idilsaglam/dwntodo/internal/logging"
	"github.com/idilsaglam/dwntodo/internal/todo"
)

// RunOptions configures Run.
type RunOptions struct {
	DID string
	// LogHandler also receives every record, typically a file handler.
	// Nil means records only reach the status line.
	LogHandler slog.Handler
	// StatusLevel is the lowest level shown in the status line.
	StatusLevel slog.Level
}

// Run takes over the terminal and blocks until the user quits or ctx is
// cancelled.
func Run(ctx context.Context, backend todo.Backend, opts RunOptions) error {
	statusHandler := NewLogHandler(opts.StatusLevel)
	var handler slog.Handler = statusHandler
	if opts.LogHandler != nil {
		handler = logging.Fanout{statusHandler, opts.LogHandler}
	}
	logger := slog.New(handler)

	m := NewModel(ctx, backend, Options{DID: opts.DID, Logger: logger})
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	statusHandler.SetProgram(program)

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

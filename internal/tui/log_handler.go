package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// logRecordMsg delivers a slog record to the model for display in the
// status line.
type logRecordMsg struct {
	Summary string
	Level   slog.Level
}

// logRecordFadeMsg clears the status line unless a newer record arrived.
type logRecordFadeMsg struct{ seq int }

// logRecordFadeDelay is how long a record stays in the status line.
const logRecordFadeDelay = 5 * time.Second

// LogHandler is a slog.Handler that routes records into a running
// bubbletea program as messages. Records below the level are dropped,
// and so is everything before SetProgram is called.
//
// Handle calls program.Send, which blocks until the event loop reads the
// message, so only log through it from commands, never from Update.
type LogHandler struct {
	level   slog.Level
	program *atomic.Pointer[tea.Program]
	attrs   []slog.Attr
}

// NewLogHandler creates a handler for records at or above level.
func NewLogHandler(level slog.Level) *LogHandler {
	return &LogHandler{
		level:   level,
		program: &atomic.Pointer[tea.Program]{},
	}
}

// SetProgram sets the program that receives records. Handlers derived
// with WithAttrs share the pointer.
func (handler *LogHandler) SetProgram(program *tea.Program) {
	handler.program.Store(program)
}

func (handler *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.level
}

func (handler *LogHandler) Handle(_ context.Context, record slog.Record) error {
	program := handler.program.Load()
	if program == nil {
		return nil
	}
	program.Send(logRecordMsg{Summary: handler.summary(record), Level: record.Level})
	return nil
}

// summary renders "message (key=value, ...)".
func (handler *LogHandler) summary(record slog.Record) string {
	var parts []string
	for _, attr := range handler.attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, attr.Value))
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, attr.Value))
		return true
	})
	if len(parts) == 0 {
		return record.Message
	}
	return record.Message + " (" + strings.Join(parts, ", ") + ")"
}

func (handler *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{
		level:   handler.level,
		program: handler.program,
		attrs:   append(append([]slog.Attr(nil), handler.attrs...), attrs...),
	}
}

// WithGroup is accepted but groups are flattened in the status line.
func (handler *LogHandler) WithGroup(string) slog.Handler {
	return handler
}

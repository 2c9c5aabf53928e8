// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging builds the [*slog.Logger] instances used by sockpipe
// programs from a single [Config].
//
// Console sinks render text with [github.com/lmittmann/tint] or JSON lines
// with [slog.JSONHandler]. File sinks always append JSON lines. Any logger
// can be made asynchronous, in which case a dedicated goroutine does the
// writing and [*Logger.Close] drains what is still queued.
//
// Named loggers can be shared through a [*Registry].
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// Logger is a [*slog.Logger] owning its output.
//
// Call [*Logger.Close] when done.
type Logger struct {
	*slog.Logger

	closers []func() error
	once    sync.Once
	err     error
}

// New creates a [*Logger] from cfg.
func New(cfg *Config) (*Logger, error) {
	logger := &Logger{}
	if cfg.Level == LevelOff || cfg.Sink == SinkNull {
		logger.Logger = slog.New(slog.DiscardHandler)
		return logger, nil
	}

	var handler slog.Handler
	switch cfg.Sink {
	case SinkStdout:
		handler = newConsoleHandler(os.Stdout, cfg)

	case SinkStderr:
		handler = newConsoleHandler(os.Stderr, cfg)

	case SinkFile:
		if cfg.Path == "" {
			return nil, errors.New("logging: file sink without path")
		}
		filep, err := os.OpenFile(cfg.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		handler = &flushHandler{
			Handler: newJSONHandler(filep, cfg.Level),
			file:    filep,
			level:   cfg.FlushOn.Slog(),
		}
		logger.closers = append(logger.closers, filep.Close)

	default:
		return nil, errors.New("logging: unknown sink")
	}

	if cfg.Async {
		async := newAsyncHandler(handler, cfg.QueueSize, cfg.Overflow)
		handler = async
		// the queue must drain before the file closes
		logger.closers = append([]func() error{async.Close}, logger.closers...)
	}

	logger.Logger = slog.New(handler)
	return logger, nil
}

// Close flushes and releases the output. It is idempotent.
func (l *Logger) Close() error {
	l.once.Do(func() {
		var errs []error
		for _, fn := range l.closers {
			errs = append(errs, fn())
		}
		l.err = errors.Join(errs...)
	})
	return l.err
}

// Trace logs at the trace severity.
func (l *Logger) Trace(msg string, args ...any) {
	l.Log(context.Background(), SlogLevelTrace, msg, args...)
}

// Critical logs at the critical severity.
func (l *Logger) Critical(msg string, args ...any) {
	l.Log(context.Background(), SlogLevelCritical, msg, args...)
}

func newConsoleHandler(w io.Writer, cfg *Config) slog.Handler {
	if cfg.JSON {
		return newJSONHandler(w, cfg.Level)
	}
	return tint.NewHandler(w, &tint.Options{
		Level:       cfg.Level.Slog(),
		NoColor:     !cfg.Color,
		ReplaceAttr: replaceLevel,
		TimeFormat:  time.StampMilli,
	})
}

func newJSONHandler(w io.Writer, level Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level.Slog(),
		ReplaceAttr: replaceLevel,
	})
}

// replaceLevel names the severities that [slog.Level] lacks.
func replaceLevel(groups []string, attr slog.Attr) slog.Attr {
	if attr.Key != slog.LevelKey || len(groups) > 0 {
		return attr
	}
	level, ok := attr.Value.Any().(slog.Level)
	if !ok {
		return attr
	}
	switch {
	case level < slog.LevelDebug:
		attr.Value = slog.StringValue("TRACE")
	case level > slog.LevelError:
		attr.Value = slog.StringValue("CRIT")
	}
	return attr
}

// flushHandler syncs file after records at or above level.
type flushHandler struct {
	slog.Handler
	file  *os.File
	level slog.Level
}

// Handle implements [slog.Handler].
func (h *flushHandler) Handle(ctx context.Context, record slog.Record) error {
	if err := h.Handler.Handle(ctx, record); err != nil {
		return err
	}
	if record.Level >= h.level {
		return h.file.Sync()
	}
	return nil
}

// WithAttrs implements [slog.Handler].
func (h *flushHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &flushHandler{Handler: h.Handler.WithAttrs(attrs), file: h.file, level: h.level}
}

// WithGroup implements [slog.Handler].
func (h *flushHandler) WithGroup(name string) slog.Handler {
	return &flushHandler{Handler: h.Handler.WithGroup(name), file: h.file, level: h.level}
}

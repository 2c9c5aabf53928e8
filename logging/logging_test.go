// SPDX-License-Identifier: GPL-3.0-or-later

package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readJSONLines decodes every line of the file at path.
func readJSONLines(t *testing.T, path string) []map[string]any {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		out = append(out, entry)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, SinkStderr, cfg.Sink)
	assert.Equal(t, LevelInfo, cfg.Level)
	assert.True(t, cfg.Color)
	assert.False(t, cfg.Async)
	assert.Equal(t, DefaultQueueSize, cfg.QueueSize)
	assert.Equal(t, OverflowBlock, cfg.Overflow)
	assert.Equal(t, LevelError, cfg.FlushOn)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		// input is the string to parse.
		input string

		// want is the expected level.
		want Level

		// wantErr indicates whether we expect an error.
		wantErr bool
	}{
		{input: "trace", want: LevelTrace},
		{input: "DEBUG", want: LevelDebug},
		{input: " info ", want: LevelInfo},
		{input: "warning", want: LevelWarn},
		{input: "critical", want: LevelCritical},
		{input: "off", want: LevelOff},
		{input: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, func() Level {
				again, _ := ParseLevel(got.String())
				return again
			}())
		})
	}
}

// Levels map onto strictly increasing slog levels.
func TestLevelSlog(t *testing.T) {
	for level := LevelTrace; level < LevelOff; level++ {
		assert.Less(t, level.Slog(), (level + 1).Slog(), level.String())
	}
	assert.Equal(t, slog.LevelInfo, LevelInfo.Slog())
	assert.Equal(t, "Level(42)", Level(42).String())
}

// File sinks write JSON lines filtered by level with custom level names.
func TestNewFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sockpipe.log")
	cfg := NewConfig()
	cfg.Sink = SinkFile
	cfg.Path = path
	cfg.Level = LevelTrace

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Trace("traceEvent", slog.Int("fd", 3))
	logger.Info("infoEvent")
	logger.Critical("criticalEvent")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	entries := readJSONLines(t, path)
	require.Len(t, entries, 3)
	assert.Equal(t, "traceEvent", entries[0]["msg"])
	assert.Equal(t, "TRACE", entries[0]["level"])
	assert.Equal(t, float64(3), entries[0]["fd"])
	assert.Equal(t, "INFO", entries[1]["level"])
	assert.Equal(t, "CRIT", entries[2]["level"])
}

// Records below the configured level are dropped.
func TestNewLevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sockpipe.log")
	cfg := NewConfig()
	cfg.Sink = SinkFile
	cfg.Path = path
	cfg.Level = LevelWarn

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Debug("debugEvent")
	logger.Info("infoEvent")
	logger.Warn("warnEvent")
	require.NoError(t, logger.Close())

	entries := readJSONLines(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "warnEvent", entries[0]["msg"])
}

// Opening the file appends to existing content.
func TestNewFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sockpipe.log")
	cfg := NewConfig()
	cfg.Sink = SinkFile
	cfg.Path = path

	for _, msg := range []string{"first", "second"} {
		logger, err := New(cfg)
		require.NoError(t, err)
		logger.Info(msg)
		require.NoError(t, logger.Close())
	}

	entries := readJSONLines(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0]["msg"])
	assert.Equal(t, "second", entries[1]["msg"])
}

// The async file sink writes everything before Close returns.
func TestNewAsyncFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sockpipe.log")
	cfg := NewConfig()
	cfg.Sink = SinkFile
	cfg.Path = path
	cfg.Async = true
	cfg.QueueSize = 4

	logger, err := New(cfg)
	require.NoError(t, err)
	child := logger.With(slog.String("spanID", "x"))
	for range 100 {
		child.Info("event")
	}
	require.NoError(t, logger.Close())

	entries := readJSONLines(t, path)
	require.Len(t, entries, 100)
	assert.Equal(t, "x", entries[99]["spanID"])
}

func TestNewErrors(t *testing.T) {
	t.Run("file sink without path", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Sink = SinkFile

		_, err := New(cfg)

		require.Error(t, err)
	})

	t.Run("unwritable path", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Sink = SinkFile
		cfg.Path = filepath.Join(t.TempDir(), "missing", "sockpipe.log")

		_, err := New(cfg)

		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("unknown sink", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Sink = Sink(42)

		_, err := New(cfg)

		require.Error(t, err)
	})
}

// Null sinks and the off level discard everything.
func TestNewDiscard(t *testing.T) {
	for _, cfg := range []*Config{
		{Sink: SinkNull, Level: LevelTrace},
		{Sink: SinkStderr, Level: LevelOff},
	} {
		logger, err := New(cfg)
		require.NoError(t, err)
		assert.False(t, logger.Handler().Enabled(context.Background(), SlogLevelCritical))
		require.NoError(t, logger.Close())
	}
}

// Console handlers honor the level and the JSON switch.
func TestNewConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewConfig()
	cfg.JSON = true
	cfg.Level = LevelDebug

	slog.New(newConsoleHandler(&buf, cfg)).Debug("debugEvent")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debugEvent", entry["msg"])

	buf.Reset()
	cfg.JSON = false
	cfg.Color = false

	slog.New(newConsoleHandler(&buf, cfg)).Log(context.Background(), SlogLevelTrace, "traceEvent")
	assert.Empty(t, buf.String())

	slog.New(newConsoleHandler(&buf, cfg)).Info("infoEvent", slog.Int("fd", 3))
	assert.Contains(t, buf.String(), "infoEvent")
	assert.Contains(t, buf.String(), "fd=3")
	assert.NotContains(t, buf.String(), "\x1b[")
}

// SPDX-License-Identifier: GPL-3.0-or-later

package logging

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// Sink is the destination of log records.
type Sink int

const (
	// SinkNull discards every record.
	SinkNull Sink = iota

	// SinkStdout writes to the standard output.
	SinkStdout

	// SinkStderr writes to the standard error.
	SinkStderr

	// SinkFile appends JSON lines to [Config.Path].
	SinkFile
)

// Level is a severity threshold. It extends [slog.Level] with trace,
// critical and off.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

// Severities below [slog.LevelDebug] and above [slog.LevelError].
const (
	SlogLevelTrace    = slog.LevelDebug - 4
	SlogLevelCritical = slog.LevelError + 4
	slogLevelOff      = slog.Level(math.MaxInt32)
)

var levelNames = [...]string{
	LevelTrace:    "trace",
	LevelDebug:    "debug",
	LevelInfo:     "info",
	LevelWarn:     "warn",
	LevelError:    "error",
	LevelCritical: "critical",
	LevelOff:      "off",
}

// String implements [fmt.Stringer].
func (l Level) String() string {
	if l < LevelTrace || l > LevelOff {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Slog returns the [slog.Level] corresponding to l.
func (l Level) Slog() slog.Level {
	switch l {
	case LevelTrace:
		return SlogLevelTrace
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelCritical:
		return SlogLevelCritical
	default:
		return slogLevelOff
	}
}

// ParseLevel parses a level name such as "debug" or "off". Matching is
// case insensitive and "warning" is accepted as an alias of "warn".
func ParseLevel(name string) (Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		return LevelWarn, nil
	}
	for idx, candidate := range levelNames {
		if candidate == name {
			return Level(idx), nil
		}
	}
	return LevelOff, fmt.Errorf("logging: unknown level %q", name)
}

// Overflow selects what an asynchronous logger does with a full queue.
type Overflow int

const (
	// OverflowBlock makes the logging goroutine wait for room.
	OverflowBlock Overflow = iota

	// OverflowOverrunOldest drops the oldest queued record.
	OverflowOverrunOldest
)

// DefaultQueueSize is the default capacity of the asynchronous queue.
const DefaultQueueSize = 8192

// Config contains the configuration of a [*Logger].
//
// Construct using [NewConfig] to get sensible defaults.
type Config struct {
	// Sink is where records go.
	//
	// Set by [NewConfig] to [SinkStderr].
	Sink Sink

	// Path is the file used by [SinkFile].
	Path string

	// Level is the minimum severity that is logged.
	//
	// Set by [NewConfig] to [LevelInfo].
	Level Level

	// Color enables ANSI colors for the text format.
	//
	// Set by [NewConfig] to true.
	Color bool

	// JSON selects JSON lines for [SinkStdout] and [SinkStderr]. [SinkFile]
	// always writes JSON lines.
	JSON bool

	// Async queues records and writes them from a dedicated goroutine.
	Async bool

	// QueueSize is the capacity of the asynchronous queue.
	//
	// Set by [NewConfig] to [DefaultQueueSize].
	QueueSize int

	// Overflow is the policy applied when the asynchronous queue is full.
	//
	// Set by [NewConfig] to [OverflowBlock].
	Overflow Overflow

	// FlushOn is the severity at or above which [SinkFile] syncs the file
	// after writing a record.
	//
	// Set by [NewConfig] to [LevelError].
	FlushOn Level
}

// NewConfig returns a new [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Sink:      SinkStderr,
		Level:     LevelInfo,
		Color:     true,
		QueueSize: DefaultQueueSize,
		Overflow:  OverflowBlock,
		FlushOn:   LevelError,
	}
}

// SPDX-License-Identifier: GPL-3.0-or-later

package logging

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bassosimone/runtimex"
)

// ErrExists indicates that a name is already registered.
var ErrExists = errors.New("logging: logger already registered")

// ErrNotFound indicates that a name is not registered.
var ErrNotFound = errors.New("logging: logger not registered")

// Registry maps names to loggers. The zero value is not usable: construct
// using [NewRegistry]. A Registry is safe for concurrent use.
type Registry struct {
	loggers map[string]*Logger
	mu      sync.Mutex
}

// NewRegistry returns an empty [*Registry].
func NewRegistry() *Registry {
	return &Registry{loggers: make(map[string]*Logger)}
}

// Register adds logger under name or fails with [ErrExists].
//
// This method panics if logger is nil.
func (r *Registry) Register(name string, logger *Logger) error {
	runtimex.Assert(logger != nil)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.loggers[name]; found {
		return fmt.Errorf("%w: %q", ErrExists, name)
	}
	r.loggers[name] = logger
	return nil
}

// Get returns the logger registered under name.
func (r *Registry) Get(name string) (*Logger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logger, found := r.loggers[name]
	return logger, found
}

// Drop removes and closes the logger registered under name.
func (r *Registry) Drop(name string) error {
	r.mu.Lock()
	logger, found := r.loggers[name]
	delete(r.loggers, name)
	r.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return logger.Close()
}

// Close drops every logger and returns the joined close errors.
func (r *Registry) Close() error {
	r.mu.Lock()
	names := make([]string, 0, len(r.loggers))
	for name := range r.loggers {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	var errs []error
	for _, name := range names {
		if err := r.Drop(name); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

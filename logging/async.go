// SPDX-License-Identifier: GPL-3.0-or-later

package logging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// asyncEntry is a record waiting to be written by handler.
type asyncEntry struct {
	ctx     context.Context
	handler slog.Handler
	record  slog.Record
}

// asyncQueue is shared by an [*asyncHandler] and its derived handlers.
type asyncQueue struct {
	// mu protects closed; senders hold it for reading while sending.
	mu      sync.RWMutex
	closed  bool
	entries chan asyncEntry

	done     chan struct{}
	dropped  atomic.Int64
	overflow Overflow
}

func newAsyncQueue(size int, overflow Overflow) *asyncQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &asyncQueue{
		entries:  make(chan asyncEntry, size),
		done:     make(chan struct{}),
		overflow: overflow,
	}
	go q.loop()
	return q
}

func (q *asyncQueue) loop() {
	defer close(q.done)
	for entry := range q.entries {
		// A logger has nowhere to report its own write errors.
		_ = entry.handler.Handle(entry.ctx, entry.record)
	}
}

func (q *asyncQueue) push(entry asyncEntry) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return
	}
	if q.overflow == OverflowBlock {
		q.entries <- entry
		return
	}
	for {
		select {
		case q.entries <- entry:
			return
		default:
		}
		select {
		case <-q.entries:
			q.dropped.Add(1)
		default:
		}
	}
}

// close stops accepting records and waits for the queued ones.
func (q *asyncQueue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.entries)
	}
	q.mu.Unlock()
	<-q.done
}

// asyncHandler is a [slog.Handler] deferring Handle to a goroutine.
type asyncHandler struct {
	inner slog.Handler
	queue *asyncQueue
}

var _ slog.Handler = &asyncHandler{}

// newAsyncHandler starts the goroutine writing to inner.
func newAsyncHandler(inner slog.Handler, size int, overflow Overflow) *asyncHandler {
	return &asyncHandler{inner: inner, queue: newAsyncQueue(size, overflow)}
}

// Enabled implements [slog.Handler].
func (h *asyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements [slog.Handler].
func (h *asyncHandler) Handle(ctx context.Context, record slog.Record) error {
	h.queue.push(asyncEntry{
		ctx:     context.WithoutCancel(ctx),
		handler: h.inner,
		record:  record.Clone(),
	})
	return nil
}

// WithAttrs implements [slog.Handler].
func (h *asyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &asyncHandler{inner: h.inner.WithAttrs(attrs), queue: h.queue}
}

// WithGroup implements [slog.Handler].
func (h *asyncHandler) WithGroup(name string) slog.Handler {
	return &asyncHandler{inner: h.inner.WithGroup(name), queue: h.queue}
}

// Dropped returns the number of records lost to overflow or to logging
// after close.
func (h *asyncHandler) Dropped() int64 {
	return h.queue.dropped.Load()
}

// Close drains the queue and stops the goroutine.
func (h *asyncHandler) Close() error {
	h.queue.close()
	return nil
}

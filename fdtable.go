// SPDX-License-Identifier: GPL-3.0-or-later

package sockpipe

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bassosimone/sockpipe/sockerr"
)

// firstHandle is the first handle a [*Table] allocates; 0, 1 and 2
// conventionally belong to the standard streams.
const firstHandle = 3

// nonblockWait bounds how long a non-blocking Read or Write may wait for
// the transport. A deadline already in the past would fail the call before
// any pending data is looked at.
const nonblockWait = time.Millisecond

// Table maps integer handles to pipe ends, providing the descriptor-based
// pipe, read, write and close calls that POSIX-oriented code expects.
//
// A Table owns every connection it hands out a handle for. The owner of the
// Table must call [*Table.CloseAll] when done. Handles are never reused
// during the lifetime of a Table.
//
// A Table is safe for concurrent use. I/O runs outside of the table lock,
// so a blocking Read on one handle does not prevent operations on others.
type Table struct {
	conns map[int]*tableEntry
	mu    sync.Mutex
	next  int
	pipe  Func[Unit, *Pipe]
}

type tableEntry struct {
	conn     net.Conn
	nonblock bool
}

// NewTable returns an empty [*Table] creating observed pipes with
// [*PipeFunc] and [*ObservePipeFunc].
//
// The cfg argument contains the common configuration for sockpipe operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewTable(cfg *Config, logger SLogger) *Table {
	return NewTableFunc(Compose2(NewPipeFunc(cfg, logger), NewObservePipeFunc(cfg, logger)))
}

// NewTableFunc returns an empty [*Table] creating pipes with fn.
func NewTableFunc(fn Func[Unit, *Pipe]) *Table {
	return &Table{
		conns: make(map[int]*tableEntry),
		next:  firstHandle,
		pipe:  fn,
	}
}

// Pipe creates a new pipe and returns the handles of its two ends.
//
// Handle [0] refers to the read-favored end and handle [1] to the
// write-favored end, though both are full duplex. On failure no handle is
// allocated and no socket is left open.
func (t *Table) Pipe(ctx context.Context) ([2]int, error) {
	pipe, err := t.pipe.Call(ctx, Unit{})
	if err != nil {
		return [2]int{-1, -1}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	var fds [2]int
	for idx, conn := range pipe.Conns {
		fds[idx] = t.next
		t.conns[t.next] = &tableEntry{conn: conn}
		t.next++
	}
	return fds, nil
}

// Conn returns the connection behind fd.
func (t *Table) Conn(fd int) (net.Conn, error) {
	conn, _, err := t.lookup("lookup", fd)
	return conn, err
}

// SetNonblock toggles non-blocking mode for fd, like O_NONBLOCK.
//
// In non-blocking mode, Read and Write fail with [ErrWouldBlock] instead of
// waiting when the transport has no data or no room. A Write that manages
// to send part of its buffer returns the partial count and no error.
// Handles start in blocking mode.
func (t *Table) SetNonblock(fd int, on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, found := t.conns[fd]
	if !found {
		return newOpError("setNonblock", ErrInvalidHandle, nil)
	}
	entry.nonblock = on
	return nil
}

// Read reads up to len(buf) bytes from fd.
//
// Like read(2) on a pipe, it returns (0, nil) at end of stream. A connection
// reset by the peer also counts as end of stream. Partial reads are normal:
// callers wanting an exact amount must loop. Reading from an end that a
// concurrent Close released fails with [ErrInvalidHandle].
func (t *Table) Read(fd int, buf []byte) (int, error) {
	conn, nonblock, err := t.lookup("read", fd)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if nonblock {
		if err := conn.SetReadDeadline(time.Now().Add(nonblockWait)); err != nil {
			return 0, t.ioError("read", err)
		}
		defer conn.SetReadDeadline(time.Time{})
	}
	count, err := conn.Read(buf)
	switch {
	case err == nil:
		return count, nil
	case errors.Is(err, io.EOF) || sockerr.IsConnReset(err):
		return count, nil
	case nonblock && errors.Is(err, os.ErrDeadlineExceeded) && count > 0:
		return count, nil
	case nonblock && errors.Is(err, os.ErrDeadlineExceeded):
		return 0, newOpError("read", ErrWouldBlock, err)
	default:
		return count, t.ioError("read", err)
	}
}

// Write writes data to fd.
//
// On success the whole buffer has been accepted by the transport. On
// failure the count is the number of bytes accepted before the failure.
// Writing to an end that a concurrent Close released fails with
// [ErrInvalidHandle].
func (t *Table) Write(fd int, data []byte) (int, error) {
	conn, nonblock, err := t.lookup("write", fd)
	if err != nil {
		return 0, err
	}
	if nonblock {
		if err := conn.SetWriteDeadline(time.Now().Add(nonblockWait)); err != nil {
			return 0, t.ioError("write", err)
		}
		defer conn.SetWriteDeadline(time.Time{})
	}
	count, err := conn.Write(data)
	switch {
	case err == nil:
		return count, nil
	case nonblock && errors.Is(err, os.ErrDeadlineExceeded) && count > 0:
		return count, nil
	case nonblock && errors.Is(err, os.ErrDeadlineExceeded):
		return 0, newOpError("write", ErrWouldBlock, err)
	default:
		return count, t.ioError("write", err)
	}
}

// ioError wraps an I/O failure, telling a released end apart from a
// transport error.
func (t *Table) ioError(op string, err error) error {
	if errors.Is(err, net.ErrClosed) {
		return newOpError(op, ErrInvalidHandle, err)
	}
	return newOpError(op, ErrIO, err)
}

// Close releases fd after an orderly [Shutdown] of its connection.
func (t *Table) Close(fd int) error {
	t.mu.Lock()
	entry, found := t.conns[fd]
	delete(t.conns, fd)
	t.mu.Unlock()

	if !found {
		return newOpError("close", ErrInvalidHandle, nil)
	}
	if err := Shutdown(entry.conn); err != nil {
		return newOpError("close", ErrIO, err)
	}
	return nil
}

// Len returns the number of open handles.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// CloseAll closes every open handle and returns the joined errors.
func (t *Table) CloseAll() error {
	t.mu.Lock()
	fds := make([]int, 0, len(t.conns))
	for fd := range t.conns {
		fds = append(fds, fd)
	}
	t.mu.Unlock()

	sort.Ints(fds)
	var errs []error
	for _, fd := range fds {
		// A concurrent Close may win the race for fd: that is fine.
		if err := t.Close(fd); err != nil && !errors.Is(err, ErrInvalidHandle) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Table) lookup(op string, fd int) (net.Conn, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, found := t.conns[fd]
	if !found {
		return nil, false, newOpError(op, ErrInvalidHandle, nil)
	}
	return entry.conn, entry.nonblock, nil
}

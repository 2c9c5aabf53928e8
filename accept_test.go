// SPDX-License-Identifier: GPL-3.0-or-later

package sockpipe

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewAcceptFunc populates all fields from Config and the provided logger.
func TestNewAcceptFunc(t *testing.T) {
	fn := NewAcceptFunc(NewConfig(), DefaultSLogger())

	require.NotNil(t, fn)
	assert.NotNil(t, fn.ErrClassifier)
	assert.NotNil(t, fn.Logger)
	assert.NotNil(t, fn.TimeNow)
}

// Call returns the connection coming from the expected peer.
func TestAcceptFunc(t *testing.T) {
	peer := mustTCPAddr("127.0.0.1:40000")
	stranger := newAddrConn("127.0.0.1:60001", "127.0.0.1:41000")
	strangerClosed := false
	stranger.CloseFunc = func() error {
		strangerClosed = true
		return nil
	}

	tests := []struct {
		// name describes what this test case verifies.
		name string

		// queue is the sequence of connections the listener returns.
		queue []net.Conn

		// peer is the expected peer.
		peer net.Addr

		// wantRemote is the expected remote address of the result.
		wantRemote string

		// wantStrangerClosed indicates whether the stranger must be closed.
		wantStrangerClosed bool
	}{
		{
			name:       "peer is first",
			queue:      []net.Conn{newAddrConn("127.0.0.1:60001", "127.0.0.1:40000")},
			peer:       peer,
			wantRemote: "127.0.0.1:40000",
		},

		{
			name:               "stranger is rejected",
			queue:              []net.Conn{stranger, newAddrConn("127.0.0.1:60001", "127.0.0.1:40000")},
			peer:               peer,
			wantRemote:         "127.0.0.1:40000",
			wantStrangerClosed: true,
		},

		{
			name:       "nil peer accepts anyone",
			queue:      []net.Conn{newAddrConn("127.0.0.1:60001", "127.0.0.1:41000")},
			peer:       nil,
			wantRemote: "127.0.0.1:41000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strangerClosed = false
			queue := tt.queue
			listener := newStubListener("127.0.0.1:60001")
			listener.AcceptFunc = func() (net.Conn, error) {
				if len(queue) <= 0 {
					return nil, errors.New("empty queue")
				}
				conn := queue[0]
				queue = queue[1:]
				return conn, nil
			}

			fn := NewAcceptFunc(NewConfig(), DefaultSLogger())
			conn, err := fn.Call(context.Background(), listener, tt.peer)

			require.NoError(t, err)
			assert.Equal(t, tt.wantRemote, conn.RemoteAddr().String())
			assert.Equal(t, tt.wantStrangerClosed, strangerClosed)
		})
	}
}

// Call wraps accept failures with ErrAcceptFailed.
func TestAcceptFuncError(t *testing.T) {
	wantErr := errors.New("mocked error")
	listener := newStubListener("127.0.0.1:60001")
	listener.AcceptFunc = func() (net.Conn, error) {
		return nil, wantErr
	}

	fn := NewAcceptFunc(NewConfig(), DefaultSLogger())
	conn, err := fn.Call(context.Background(), listener, nil)

	require.ErrorIs(t, err, ErrAcceptFailed)
	require.ErrorIs(t, err, wantErr)
	assert.Nil(t, conn)
}

// Call closes the listener to unblock Accept when the context is done.
func TestAcceptFuncContextDone(t *testing.T) {
	closed := make(chan struct{})
	listener := newStubListener("127.0.0.1:60001")
	listener.AcceptFunc = func() (net.Conn, error) {
		<-closed
		return nil, net.ErrClosed
	}
	listener.CloseFunc = func() error {
		close(closed)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	fn := NewAcceptFunc(NewConfig(), DefaultSLogger())
	conn, err := fn.Call(ctx, listener, nil)

	require.ErrorIs(t, err, ErrAcceptFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, conn)
}

// Call emits acceptStart/acceptReject/acceptDone log events.
func TestAcceptFuncLogging(t *testing.T) {
	logger, records := newCapturingLogger()

	queue := []net.Conn{
		newAddrConn("127.0.0.1:60001", "127.0.0.1:41000"),
		newAddrConn("127.0.0.1:60001", "127.0.0.1:40000"),
	}
	listener := newStubListener("127.0.0.1:60001")
	listener.AcceptFunc = func() (net.Conn, error) {
		conn := queue[0]
		queue = queue[1:]
		return conn, nil
	}

	fn := NewAcceptFunc(NewConfig(), logger)
	_, err := fn.Call(context.Background(), listener, mustTCPAddr("127.0.0.1:40000"))
	require.NoError(t, err)

	assert.Equal(t, []string{"acceptStart", "acceptReject", "acceptDone"}, messages(*records))
}

// Call skips a real stranger that connected to the listener first.
func TestAcceptFuncLoopbackStranger(t *testing.T) {
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	stranger, err := net.Dial("tcp4", listener.Addr().String())
	require.NoError(t, err)
	defer stranger.Close()

	client, err := net.Dial("tcp4", listener.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	fn := NewAcceptFunc(NewConfig(), DefaultSLogger())
	server, err := fn.Call(context.Background(), listener, client.LocalAddr())
	require.NoError(t, err)
	defer server.Close()

	assert.Equal(t, client.LocalAddr().String(), server.RemoteAddr().String())

	// the stranger has been closed by the accepting side
	stranger.SetReadDeadline(time.Now().Add(5 * time.Second))
	count, err := stranger.Read(make([]byte, 1))
	assert.Equal(t, 0, count)
	assert.Error(t, err)
}

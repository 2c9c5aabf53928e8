// SPDX-License-Identifier: GPL-3.0-or-later

// Package sockpipe emulates anonymous pipes using TCP connections over the
// loopback interface, for code written against pipe(2) that must run where
// only a sockets API is available.
//
// # Core Abstraction
//
// Like its sibling packages, sockpipe is built around a single interface:
//
//	type Func[A, B any] interface {
//		Call(ctx context.Context, input A) (B, error)
//	}
//
// Each Func is one step with exactly one success mode and one failure mode.
//
// # Available Primitives
//
// Pipe construction:
//   - [BindFunc]: listens on a random port in [60000, 60999) over 127.0.0.1,
//     retrying a bounded number of times
//   - [ConnectFunc]: dials the listener to obtain the client end
//   - [AcceptFunc]: accepts the server end, rejecting strangers
//   - [PipeFunc]: chains the above and always closes the listener
//   - [ObservePipeFunc]: logs the I/O of both ends (see [ObserveConnFunc])
//
// Descriptor emulation:
//   - [Table]: maps integer handles to pipe ends and provides Pipe, Read,
//     Write and Close with pipe(2)-like semantics
//   - [Shutdown]: orderly close of one end
//   - [Clock]: clock_gettime(2) for realtime and monotonic clocks
//
// # Errors
//
// Every failure is an [*OpError] matching one of [ErrBindExhausted],
// [ErrConnectFailed], [ErrAcceptFailed], [ErrIO] or [ErrInvalidHandle] with
// [errors.Is], as well as the underlying cause. A clean end of stream,
// including a connection reset by the peer, is not an error: [*Table.Read]
// returns zero bytes.
//
// # Observability
//
// All primitives support structured logging via [SLogger] (compatible with
// [log/slog]). By default, logging is disabled. Construction events are
// logged at [slog.LevelInfo] and carry the spanID returned by [NewSpanID];
// bind attempts and per-I/O events are logged at [slog.LevelDebug].
// Completion events (*Done) include t0, t, err and errClass, the latter
// computed by the configured [ErrClassifier].
//
// # Timeouts
//
// The bind loop is bounded by [Config.MaxBindAttempts] and the connect and
// accept steps by [Config.HandshakeTimeout]. The caller's context applies
// on top of both.
package sockpipe

// SPDX-License-Identifier: GPL-3.0-or-later

// Package evhttp implements an event-driven, single-request HTTP/1.1 client
// over plain TCP or TLS.
//
// # Request Lifecycle
//
// The caller builds a [*Client] with [NewPlainClient] or [NewTLSClient],
// writes the raw request through [*Client.Append], [*Client.AppendRequestLine],
// [*Client.AppendHeader], or the [io.Writer] interface, and then calls
// [*Client.Finalize]. Finalize terminates the header block and starts the
// state machine:
//
//	INIT -> RESOLVING -> CONNECTING -> [HANDSHAKING] -> WRITING
//	     -> READING_STATUS -> READING_HEADERS -> READING_BODY -> DONE
//
// Any step may end in FAILED. The HANDSHAKING step only exists when the
// socket type implements [Handshaker], which [*TLSSocket] does.
//
// Only a "200" status is accepted. The header block, including the final
// empty line, is passed to the [HeaderSink] exactly once. Each body chunk is
// passed to the [ContentSink]. The body ends when the peer closes the
// connection in a way the socket considers benign (see [Socket]).
//
// # Reactor
//
// Blocking steps run on background goroutines through [AsyncCall], while
// their continuations run on the goroutine calling [*Reactor.Run]. Many
// clients may share a reactor. Each client keeps exactly one operation in
// flight, so its state is only touched by continuations.
//
// # Composable Primitives
//
// Connection establishment reuses [Func] pipelines chained with [Compose2],
// [Compose3], and [Compose4]:
//
//   - [ConnectFunc] dials TCP or UDP endpoints
//   - [ObserveConnFunc] logs the I/O operations of a connection
//   - [CancelWatchFunc] closes the connection when the context is done
//   - [TLSHandshakeFunc] performs the TLS handshake with a pluggable [TLSEngine]
//
// # Resolution
//
// A [Resolver] maps a [Query] to candidate endpoints, tried in order. The
// default [*SystemResolver] uses [net.Resolver]. A [*DNSResolver] sends A and
// AAAA queries over DNS-over-UDP, DNS-over-TCP, DNS-over-TLS, or
// DNS-over-HTTPS through a [*DNSConn].
//
// # Observability
//
// All components log through [SLogger], which [*slog.Logger] satisfies. By
// default nothing is logged. Operations emit span events (*Start/*Done
// pairs) carrying t0, t, err, errClass, localAddr, remoteAddr, and protocol.
// Per-I/O events are emitted at [slog.LevelDebug]. Use [NewSpanID] with
// [*slog.Logger.With] to correlate the events of a single request.
//
// # Timeouts
//
// The client never enforces timeouts. The context passed to Finalize
// governs the whole lifecycle: [CancelWatchFunc] closes the connection when
// it is done, so any pending I/O fails and the client reaches FAILED.
package evhttp

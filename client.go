// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"
)

// readBufferSize is the size of the buffer used for each socket read.
const readBufferSize = 4096

// NewClient returns a new [*Client] driving the given socket.
//
// The client takes ownership of the socket and closes it when reaching a
// terminal state. The resolver is taken from [Config.Resolver].
//
// Both sinks must not be nil. They run on the reactor goroutine.
func NewClient[S Socket](cfg *Config, reactor *Reactor, socket S,
	query Query, headers HeaderSink, content ContentSink, logger SLogger) *Client[S] {
	runtimex.Assert(reactor != nil)
	runtimex.Assert(headers != nil)
	runtimex.Assert(content != nil)
	return &Client[S]{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
		content:       content,
		ctx:           context.Background(),
		done:          make(chan struct{}),
		headers:       headers,
		query:         query,
		reactor:       reactor,
		readbuf:       make([]byte, readBufferSize),
		resolver:      cfg.Resolver,
		socket:        socket,
		state:         StateInit,
	}
}

// NewPlainClient returns a [*Client] speaking HTTP over a new [*TCPSocket].
func NewPlainClient(cfg *Config, reactor *Reactor, query Query,
	headers HeaderSink, content ContentSink, logger SLogger) *Client[*TCPSocket] {
	return NewClient(cfg, reactor, NewTCPSocket(cfg, logger), query, headers, content, logger)
}

// NewTLSClient returns a [*Client] speaking HTTPS over a new [*TLSSocket].
//
// When tlsConfig does not set ServerName, the query host is used.
func NewTLSClient(cfg *Config, reactor *Reactor, query Query, tlsConfig *tls.Config,
	headers HeaderSink, content ContentSink, logger SLogger) *Client[*TLSSocket] {
	runtimex.Assert(tlsConfig != nil)
	if tlsConfig.ServerName == "" {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.ServerName = query.Host()
	}
	return NewClient(cfg, reactor, NewTLSSocket(cfg, tlsConfig, logger), query, headers, content, logger)
}

// Client performs a single HTTP request and streams the response to sinks.
//
// Use it in three steps:
//
//  1. accumulate the request line and headers with [*Client.Write],
//     [*Client.Append], [*Client.AppendRequestLine], or [*Client.AppendHeader];
//
//  2. call [*Client.Finalize], which terminates the header block and starts
//     name resolution;
//
//  3. call [*Reactor.Run] to drive the client to [StateDone] or [StateFailed].
//
// Each step of the exchange runs as a continuation on the [*Reactor] and
// issues at most one I/O operation. The header sink is invoked once with the
// header block, then the content sink once per body chunk until the server
// closes the connection.
//
// Any status code other than [ExpectedStatusCode] is a failure and neither
// sink is invoked. A client is never reused after reaching a terminal state.
//
// The exported fields are safe to modify before Finalize.
type Client[S Socket] struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// OnComplete, when not nil, is invoked on the reactor goroutine once
	// the client reaches a terminal state, with the same value as [*Client.Err].
	OnComplete func(err error)

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time

	content  ContentSink
	ctx      context.Context
	done     chan struct{}
	err      error
	headers  HeaderSink
	mu       sync.Mutex
	query    Query
	reactor  *Reactor
	readbuf  []byte
	request  bytes.Buffer
	resolver Resolver
	response bytes.Buffer
	socket   S
	state    State
	t0       time.Time
}

// State returns the current state.
func (c *Client[S]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns nil while the client is running or after [StateDone], and the
// failure cause after [StateFailed].
func (c *Client[S]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done returns a channel closed when the client reaches a terminal state.
func (c *Client[S]) Done() <-chan struct{} {
	return c.done
}

// Socket returns the socket driven by the client.
func (c *Client[S]) Socket() S {
	return c.socket
}

func (c *Client[S]) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// start runs on the caller goroutine from Finalize.
func (c *Client[S]) start(ctx context.Context) {
	c.ctx = ctx
	c.t0 = c.TimeNow()
	c.Logger.Info(
		"httpClientStart",
		slog.String("httpHost", c.query.Host()),
		slog.Int("httpRequestSize", c.request.Len()),
		slog.String("httpService", c.query.Service()),
		slog.Time("t", c.t0),
	)
	c.resolve()
}

func (c *Client[S]) resolve() {
	t0 := c.TimeNow()
	c.Logger.Info(
		"resolveStart",
		slog.String("httpHost", c.query.Host()),
		slog.String("httpService", c.query.Service()),
		slog.Time("t", t0),
	)
	resolve := FuncAdapter[Query, []netip.AddrPort](c.resolver.Resolve)
	AsyncCall(c.reactor, c.ctx, resolve, c.query, func(endpoints []netip.AddrPort, err error) {
		if err == nil && len(endpoints) <= 0 {
			err = ErrNoEndpoints
		}
		c.Logger.Info(
			"resolveDone",
			slog.Any("endpoints", endpoints),
			slog.Any("err", err),
			slog.String("errClass", c.ErrClassifier.Classify(err)),
			slog.String("httpHost", c.query.Host()),
			slog.String("httpService", c.query.Service()),
			slog.Time("t0", t0),
			slog.Time("t", c.TimeNow()),
		)
		if err != nil {
			c.fail(ErrResolve, err)
			return
		}
		c.connect(endpoints)
	})
}

func (c *Client[S]) connect(endpoints []netip.AddrPort) {
	c.setState(StateConnecting)
	lowest := c.socket.LowestLayer()
	c.do(func(ctx context.Context) error {
		return lowest.Connect(ctx, endpoints)
	}, func(err error) {
		if err != nil {
			c.fail(ErrConnect, err)
			return
		}
		if hs, ok := any(c.socket).(Handshaker); ok {
			c.handshake(hs)
			return
		}
		c.write()
	})
}

func (c *Client[S]) handshake(hs Handshaker) {
	c.setState(StateHandshaking)
	c.do(hs.Handshake, func(err error) {
		if err != nil {
			c.fail(ErrHandshake, err)
			return
		}
		c.write()
	})
}

func (c *Client[S]) write() {
	c.setState(StateWriting)
	data := c.request.Bytes()
	t0 := c.TimeNow()
	c.Logger.Info("httpWriteRequestStart", c.connAttrs(
		slog.Int("httpRequestSize", len(data)),
		slog.Time("t", t0),
	)...)
	c.do(func(ctx context.Context) error {
		_, err := c.socket.Write(data)
		return err
	}, func(err error) {
		c.Logger.Info("httpWriteRequestDone", c.connAttrs(
			slog.Any("err", err),
			slog.String("errClass", c.ErrClassifier.Classify(err)),
			slog.Int("httpRequestSize", len(data)),
			slog.Time("t0", t0),
			slog.Time("t", c.TimeNow()),
		)...)
		if err != nil {
			c.fail(ErrWrite, err)
			return
		}
		c.request.Reset()
		c.readStatus()
	})
}

func (c *Client[S]) readStatus() {
	c.setState(StateReadingStatus)
	c.readUntil(findLineEnd, ErrStatusLine, func(end int) {
		line := string(c.response.Next(end))
		status, err := parseStatusLine(line, ExpectedStatusCode)
		c.Logger.Info("httpStatusLine", c.connAttrs(
			slog.Any("err", err),
			slog.Int("httpResponseStatusCode", status.Code),
			slog.String("httpResponseVersion", status.Version),
			slog.Time("t", c.TimeNow()),
		)...)
		if err != nil {
			c.fail(ErrStatusLine, err)
			return
		}
		c.readHeaders()
	})
}

func (c *Client[S]) readHeaders() {
	c.setState(StateReadingHeaders)
	c.readUntil(findHeaderBlockEnd, ErrHeaderRead, func(end int) {
		block := c.response.Next(end)
		c.Logger.Info("httpResponseHeaders", c.connAttrs(
			slog.Int("httpHeaderBlockSize", len(block)),
			slog.Time("t", c.TimeNow()),
		)...)
		if err := c.headers(bytes.NewReader(block)); err != nil {
			c.fail(ErrSink, err)
			return
		}
		c.setState(StateReadingBody)
		c.readBody()
	})
}

func (c *Client[S]) readBody() {
	if err := c.flushBody(); err != nil {
		c.fail(ErrSink, err)
		return
	}
	c.read(func(err error) {
		if err == nil {
			c.readBody()
			return
		}
		if ferr := c.flushBody(); ferr != nil {
			c.fail(ErrSink, ferr)
			return
		}
		if !c.socket.IsBenignClose(err) {
			c.fail(ErrBodyRead, err)
			return
		}
		c.complete(nil)
	})
}

// flushBody hands any buffered body bytes to the content sink.
func (c *Client[S]) flushBody() error {
	if c.response.Len() <= 0 {
		return nil
	}
	chunk := c.response.Next(c.response.Len())
	c.Logger.Debug("httpBodyChunk", c.connAttrs(
		slog.Int("httpBodyChunkSize", len(chunk)),
		slog.Time("t", c.TimeNow()),
	)...)
	return c.content(bytes.NewReader(chunk))
}

// readUntil reads until find locates the end of a token in the response
// buffer and then invokes k with the token length.
func (c *Client[S]) readUntil(find func([]byte) int, step error, k func(end int)) {
	if end := find(c.response.Bytes()); end >= 0 {
		k(end)
		return
	}
	c.read(func(err error) {
		if err != nil {
			c.fail(step, err)
			return
		}
		c.readUntil(find, step, k)
	})
}

// read issues a single socket read and appends what it got to the response
// buffer. The continuation only sees an error if the read returned no data:
// errors that come with data are reported again by the next read.
func (c *Client[S]) read(k func(err error)) {
	buf := c.readbuf
	fn := FuncAdapter[[]byte, int](func(ctx context.Context, b []byte) (int, error) {
		return c.socket.Read(b)
	})
	AsyncCall(c.reactor, c.ctx, fn, buf, func(count int, err error) {
		if count > 0 {
			c.response.Write(buf[:count])
			err = nil
		}
		k(err)
	})
}

// do runs op as the single in-flight operation and passes its error to k.
func (c *Client[S]) do(op func(ctx context.Context) error, k func(err error)) {
	fn := FuncAdapter[Unit, Unit](func(ctx context.Context, _ Unit) (Unit, error) {
		return Unit{}, op(ctx)
	})
	AsyncCall(c.reactor, c.ctx, fn, Unit{}, func(_ Unit, err error) {
		k(err)
	})
}

func (c *Client[S]) fail(step, cause error) {
	if !errors.Is(cause, step) {
		cause = stepError(step, cause)
	}
	c.complete(cause)
}

// complete closes the socket and then moves to the terminal state.
func (c *Client[S]) complete(err error) {
	c.do(func(ctx context.Context) error {
		return c.socket.Close()
	}, func(_ error) {
		state := StateDone
		if err != nil {
			state = StateFailed
		}
		c.mu.Lock()
		c.state = state
		c.err = err
		c.mu.Unlock()

		c.Logger.Info("httpClientDone", c.connAttrs(
			slog.Any("err", err),
			slog.String("errClass", c.ErrClassifier.Classify(err)),
			slog.String("httpClientState", state.String()),
			slog.String("httpHost", c.query.Host()),
			slog.Time("t0", c.t0),
			slog.Time("t", c.TimeNow()),
		)...)

		close(c.done)
		if c.OnComplete != nil {
			c.OnComplete(err)
		}
	})
}

func (c *Client[S]) connAttrs(extra ...any) []any {
	conn := c.socket.LowestLayer().Conn()
	return append(extra,
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
	)
}

// findLineEnd returns the length of the first CRLF-terminated line or -1.
func findLineEnd(data []byte) int {
	if idx := bytes.Index(data, []byte("\r\n")); idx >= 0 {
		return idx + 2
	}
	return -1
}

// findHeaderBlockEnd returns the length of the header block, including
// the terminating blank line, or -1 if the block is incomplete.
func findHeaderBlockEnd(data []byte) int {
	if bytes.HasPrefix(data, []byte("\r\n")) {
		return 2
	}
	if idx := bytes.Index(data, []byte("\r\n\r\n")); idx >= 0 {
		return idx + 4
	}
	return -1
}

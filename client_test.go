// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"testing"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// responseRecorder collects what a [*Client] passes to its sinks.
type responseRecorder struct {
	headerCalls  int
	headerBlock  string
	contentCalls int
	body         strings.Builder
}

func (rr *responseRecorder) headers(block io.Reader) error {
	rr.headerCalls++
	data, err := io.ReadAll(block)
	rr.headerBlock = string(data)
	return err
}

func (rr *responseRecorder) content(chunk io.Reader) error {
	rr.contentCalls++
	data, err := io.ReadAll(chunk)
	if len(data) <= 0 {
		return errors.New("empty chunk")
	}
	rr.body.Write(data)
	return err
}

// respondAndClose returns a server handler writing response and closing.
func respondAndClose(response string) func(conn net.Conn) {
	return func(conn net.Conn) {
		conn.Write([]byte(response))
	}
}

func appendGET[S Socket](client *Client[S], host string) {
	client.AppendRequestLine("GET", "/").
		AppendHeader("Host", host).
		AppendHeader("Connection", "close")
}

func TestPlainClient(t *testing.T) {
	tests := []struct {
		// name describes the scenario.
		name string

		// response is what the server sends before closing.
		response string

		// wantState is the expected terminal state.
		wantState State

		// wantErr is the expected error, if any.
		wantErr error

		// wantHeaders is the expected header block.
		wantHeaders string

		// wantBody is the expected body.
		wantBody string
	}{
		{
			name:        "200 with body",
			response:    "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello",
			wantState:   StateDone,
			wantHeaders: "Content-Type: text/plain\r\nContent-Length: 5\r\n\r\n",
			wantBody:    "hello",
		},
		{
			name:        "200 with empty body",
			response:    "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n",
			wantState:   StateDone,
			wantHeaders: "Content-Length: 0\r\n\r\n",
		},
		{
			name:        "200 without headers",
			response:    "HTTP/1.0 200 OK\r\n\r\nbody",
			wantState:   StateDone,
			wantHeaders: "\r\n",
			wantBody:    "body",
		},
		{
			name:      "403 is a failure",
			response:  "HTTP/1.1 403 Forbidden\r\nContent-Length: 9\r\n\r\nForbidden",
			wantState: StateFailed,
			wantErr:   ErrStatusLine,
		},
		{
			name:      "not HTTP",
			response:  "ICY 200 OK\r\n\r\n",
			wantState: StateFailed,
			wantErr:   ErrStatusLine,
		},
		{
			name:      "EOF before status line",
			response:  "",
			wantState: StateFailed,
			wantErr:   ErrStatusLine,
		},
		{
			name:      "EOF inside header block",
			response:  "HTTP/1.1 200 OK\r\nServer: test\r\n",
			wantState: StateFailed,
			wantErr:   ErrHeaderRead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, requests := startLoopbackServer(t, nil, respondAndClose(tt.response))
			cfg := NewConfig()
			cfg.Resolver = newFixedResolver(addr)
			reactor := NewReactor()
			rr := &responseRecorder{}

			client := NewPlainClient(cfg, reactor, NewQuery("www.example.com", "80"),
				rr.headers, rr.content, DefaultSLogger())
			appendGET(client, "www.example.com")
			require.NoError(t, client.Finalize(context.Background()))
			reactor.Run()

			assert.Equal(t, tt.wantState, client.State())
			assert.Equal(t, "GET / HTTP/1.1\r\nHost: www.example.com\r\nConnection: close\r\n\r\n", <-requests)

			if tt.wantErr != nil {
				require.ErrorIs(t, client.Err(), tt.wantErr)
				assert.Equal(t, 0, rr.headerCalls)
				assert.Equal(t, 0, rr.contentCalls)
				return
			}

			require.NoError(t, client.Err())
			assert.Equal(t, 1, rr.headerCalls)
			assert.Equal(t, tt.wantHeaders, rr.headerBlock)
			assert.Equal(t, tt.wantBody, rr.body.String())
			if tt.wantBody == "" {
				assert.Equal(t, 0, rr.contentCalls)
			}
		})
	}
}

func TestTLSClient(t *testing.T) {
	cert, pool := newSelfSignedCert(t)
	serverConfig := &tls.Config{Certificates: []tls.Certificate{cert}}

	t.Run("truncated close after body is benign", func(t *testing.T) {
		addr, _ := startLoopbackServer(t, serverConfig,
			respondAndClose("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"))
		cfg := NewConfig()
		cfg.Resolver = newFixedResolver(addr)
		reactor := NewReactor()
		rr := &responseRecorder{}

		client := NewTLSClient(cfg, reactor, NewQuery("localhost", "443"), &tls.Config{RootCAs: pool},
			rr.headers, rr.content, DefaultSLogger())
		appendGET(client, "localhost")
		require.NoError(t, client.Finalize(context.Background()))
		reactor.Run()

		require.NoError(t, client.Err())
		assert.Equal(t, StateDone, client.State())
		assert.Equal(t, "Content-Length: 5\r\n\r\n", rr.headerBlock)
		assert.Equal(t, "hello", rr.body.String())
		assert.True(t, client.Socket().ConnectionState().HandshakeComplete)
	})

	t.Run("untrusted certificate fails the handshake", func(t *testing.T) {
		addr, _ := startLoopbackServer(t, serverConfig, respondAndClose(""))
		cfg := NewConfig()
		cfg.Resolver = newFixedResolver(addr)
		reactor := NewReactor()
		rr := &responseRecorder{}

		client := NewTLSClient(cfg, reactor, NewQuery("localhost", "443"), &tls.Config{},
			rr.headers, rr.content, DefaultSLogger())
		appendGET(client, "localhost")
		require.NoError(t, client.Finalize(context.Background()))
		reactor.Run()

		assert.Equal(t, StateFailed, client.State())
		require.ErrorIs(t, client.Err(), ErrHandshake)
		assert.Equal(t, 0, rr.headerCalls)
	})
}

func TestClientResolveFailure(t *testing.T) {
	dialed := false
	cfg := NewConfig()
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialed = true
			return nil, errors.New("unexpected dial")
		},
	}
	cfg.Resolver = newFixedResolver()
	reactor := NewReactor()

	var completed []error
	client := NewPlainClient(cfg, reactor, NewQuery("nonexistent.invalid", "80"),
		DiscardHeaders, discardContent, DefaultSLogger())
	client.OnComplete = func(err error) {
		completed = append(completed, err)
	}
	appendGET(client, "nonexistent.invalid")
	require.NoError(t, client.Finalize(context.Background()))
	reactor.Run()

	assert.Equal(t, StateFailed, client.State())
	require.ErrorIs(t, client.Err(), ErrResolve)
	require.ErrorIs(t, client.Err(), ErrNoEndpoints)
	assert.False(t, dialed)
	require.Len(t, completed, 1)
	assert.Equal(t, client.Err(), completed[0])

	select {
	case <-client.Done():
	default:
		t.Fatal("Done channel not closed")
	}
}

func TestClientConnectFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := netip.MustParseAddrPort(listener.Addr().String())
	listener.Close()

	cfg := NewConfig()
	cfg.Resolver = newFixedResolver(addr)
	reactor := NewReactor()

	client := NewPlainClient(cfg, reactor, NewQuery("localhost", "80"),
		DiscardHeaders, discardContent, DefaultSLogger())
	appendGET(client, "localhost")
	require.NoError(t, client.Finalize(context.Background()))
	reactor.Run()

	assert.Equal(t, StateFailed, client.State())
	require.ErrorIs(t, client.Err(), ErrConnect)
}

func TestClientSinkFailure(t *testing.T) {
	wantErr := errors.New("sink error")
	addr, _ := startLoopbackServer(t, nil, respondAndClose("HTTP/1.1 200 OK\r\n\r\nhello"))
	cfg := NewConfig()
	cfg.Resolver = newFixedResolver(addr)
	reactor := NewReactor()

	client := NewPlainClient(cfg, reactor, NewQuery("localhost", "80"),
		DiscardHeaders, func(chunk io.Reader) error { return wantErr }, DefaultSLogger())
	appendGET(client, "localhost")
	require.NoError(t, client.Finalize(context.Background()))
	reactor.Run()

	assert.Equal(t, StateFailed, client.State())
	require.ErrorIs(t, client.Err(), ErrSink)
	require.ErrorIs(t, client.Err(), wantErr)
}

func TestClientCancelWhileReadingBody(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	addr, _ := startLoopbackServer(t, nil, func(conn net.Conn) {
		conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\npartial"))
		<-release
	})
	cfg := NewConfig()
	cfg.Resolver = newFixedResolver(addr)
	reactor := NewReactor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rr := &responseRecorder{}

	client := NewPlainClient(cfg, reactor, NewQuery("localhost", "80"), rr.headers,
		func(chunk io.Reader) error {
			cancel()
			return rr.content(chunk)
		}, DefaultSLogger())
	appendGET(client, "localhost")
	require.NoError(t, client.Finalize(ctx))
	reactor.Run()

	assert.Equal(t, StateFailed, client.State())
	require.ErrorIs(t, client.Err(), ErrBodyRead)
	assert.Equal(t, "partial", rr.body.String())
}

func TestClientsShareReactor(t *testing.T) {
	reactor := NewReactor()
	var clients []*Client[*TCPSocket]
	var bodies []*responseRecorder
	for _, body := range []string{"first", "second", "third"} {
		addr, _ := startLoopbackServer(t, nil, respondAndClose("HTTP/1.1 200 OK\r\n\r\n"+body))
		cfg := NewConfig()
		cfg.Resolver = newFixedResolver(addr)
		rr := &responseRecorder{}
		client := NewPlainClient(cfg, reactor, NewQuery("localhost", "80"), rr.headers, rr.content, DefaultSLogger())
		appendGET(client, "localhost")
		require.NoError(t, client.Finalize(context.Background()))
		clients = append(clients, client)
		bodies = append(bodies, rr)
	}

	reactor.Run()

	for idx, want := range []string{"first", "second", "third"} {
		assert.Equal(t, StateDone, clients[idx].State())
		assert.Equal(t, want, bodies[idx].body.String())
	}
}

func TestClientLogging(t *testing.T) {
	addr, _ := startLoopbackServer(t, nil, respondAndClose("HTTP/1.1 200 OK\r\n\r\nhello"))
	cfg := NewConfig()
	cfg.Resolver = newFixedResolver(addr)
	reactor := NewReactor()
	logger, records := newCapturingLogger()

	client := NewPlainClient(cfg, reactor, NewQuery("localhost", "80"), DiscardHeaders, discardContent, logger)
	appendGET(client, "localhost")
	require.NoError(t, client.Finalize(context.Background()))
	reactor.Run()
	require.NoError(t, client.Err())

	var events []string
	for _, record := range *records {
		if record.Level == slog.LevelInfo {
			events = append(events, record.Message)
		}
	}
	assert.Equal(t, []string{
		"httpClientStart",
		"resolveStart",
		"resolveDone",
		"connectStart",
		"connectDone",
		"httpWriteRequestStart",
		"httpWriteRequestDone",
		"httpStatusLine",
		"httpResponseHeaders",
		"closeStart",
		"closeDone",
		"httpClientDone",
	}, events)
}

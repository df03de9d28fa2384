// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/dnsoverhttps"
	"github.com/bassosimone/dnsoverstream"
	"github.com/bassosimone/minest"
	"github.com/bassosimone/safeconn"
)

// dnsExchangeFunc performs a single DNS exchange, invoking the observers
// with the raw query and the raw response.
type dnsExchangeFunc func(ctx context.Context, query *dnscodec.Query,
	observeQuery, observeResponse func([]byte)) (*dnscodec.Response, error)

// DNSConn owns a connection and performs DNS exchanges over it.
//
// The caller must call Close when done. Construct using one of
// [NewDNSOverUDPConnFunc], [NewDNSOverTCPConnFunc], [NewDNSOverTLSConnFunc],
// or [NewDNSOverHTTPSConnFunc].
type DNSConn struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time

	closer         io.Closer
	conn           net.Conn
	exchange       dnsExchangeFunc
	serverProtocol string
}

// Close closes the owned connection.
func (c *DNSConn) Close() error {
	return c.closer.Close()
}

// Conn returns the underlying [net.Conn] for logging purposes.
func (c *DNSConn) Conn() net.Conn {
	return c.conn
}

// ServerProtocol returns "udp", "tcp", "dot", or "doh".
func (c *DNSConn) ServerProtocol() string {
	return c.serverProtocol
}

// Exchange sends query and returns the matching response.
//
// It emits dnsExchangeStart/dnsExchangeDone span events along with
// dnsQuery and dnsResponse wire observations.
func (c *DNSConn) Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	t0 := c.TimeNow()
	deadline, _ := ctx.Deadline()
	var rawQuery []byte

	c.Logger.Info("dnsExchangeStart", c.attrs(slog.Time("deadline", deadline), slog.Time("t", t0))...)

	observeQuery := func(raw []byte) {
		rawQuery = raw
		c.Logger.Info("dnsQuery", c.attrs(slog.Any("dnsRawQuery", raw), slog.Time("t", t0))...)
	}
	observeResponse := func(raw []byte) {
		c.Logger.Info("dnsResponse", c.attrs(
			slog.Any("dnsRawQuery", rawQuery),
			slog.Any("dnsRawResponse", raw),
			slog.Time("t0", t0),
			slog.Time("t", c.TimeNow()),
		)...)
	}
	resp, err := c.exchange(ctx, query, observeQuery, observeResponse)

	c.Logger.Info("dnsExchangeDone", c.attrs(
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", c.ErrClassifier.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", c.TimeNow()),
	)...)
	return resp, err
}

func (c *DNSConn) attrs(extra ...any) []any {
	return append(extra,
		slog.String("localAddr", safeconn.LocalAddr(c.conn)),
		slog.String("protocol", safeconn.Network(c.conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(c.conn)),
		slog.String("serverProtocol", c.serverProtocol),
	)
}

// DNSConnFunc wraps a connection of type T into a [*DNSConn].
//
// All fields are safe to modify after construction but before first use.
type DNSConnFunc[T any] struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time

	wrap func(input T) *DNSConn
}

// Call implements [Func].
func (op *DNSConnFunc[T]) Call(ctx context.Context, input T) (*DNSConn, error) {
	dc := op.wrap(input)
	dc.ErrClassifier = op.ErrClassifier
	dc.Logger = op.Logger
	dc.TimeNow = op.TimeNow
	return dc, nil
}

func newDNSConnFunc[T any](cfg *Config, logger SLogger, wrap func(T) *DNSConn) *DNSConnFunc[T] {
	return &DNSConnFunc[T]{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
		wrap:          wrap,
	}
}

// unusedServer is the server address given to transports that never dial.
var unusedServer = netip.AddrPortFrom(netip.IPv4Unspecified(), 0)

// NewDNSOverUDPConnFunc returns a [*DNSConnFunc] for DNS-over-UDP.
func NewDNSOverUDPConnFunc(cfg *Config, logger SLogger) *DNSConnFunc[net.Conn] {
	return newDNSConnFunc(cfg, logger, func(conn net.Conn) *DNSConn {
		exchange := func(ctx context.Context, query *dnscodec.Query,
			oq, or func([]byte)) (*dnscodec.Response, error) {
			txp := minest.NewDNSOverUDPTransport(dnsUnusedDialer{}, unusedServer)
			txp.ObserveRawQuery = oq
			txp.ObserveRawResponse = or
			return txp.ExchangeWithConn(ctx, conn, query)
		}
		return &DNSConn{closer: conn, conn: conn, exchange: exchange, serverProtocol: "udp"}
	})
}

// NewDNSOverTCPConnFunc returns a [*DNSConnFunc] for DNS-over-TCP.
func NewDNSOverTCPConnFunc(cfg *Config, logger SLogger) *DNSConnFunc[net.Conn] {
	return newDNSConnFunc(cfg, logger, func(conn net.Conn) *DNSConn {
		exchange := func(ctx context.Context, query *dnscodec.Query,
			oq, or func([]byte)) (*dnscodec.Response, error) {
			txp := dnsoverstream.NewTransport(dnsoverstream.NewStreamOpenerDialerTCP(dnsUnusedDialer{}), unusedServer)
			txp.ObserveRawQuery = oq
			txp.ObserveRawResponse = or
			return txp.ExchangeWithStreamOpener(ctx, dnsoverstream.NewTCPStreamOpener(conn), query)
		}
		return &DNSConn{closer: conn, conn: conn, exchange: exchange, serverProtocol: "tcp"}
	})
}

// NewDNSOverTLSConnFunc returns a [*DNSConnFunc] for DNS-over-TLS.
func NewDNSOverTLSConnFunc(cfg *Config, logger SLogger) *DNSConnFunc[TLSConn] {
	return newDNSConnFunc(cfg, logger, func(conn TLSConn) *DNSConn {
		exchange := func(ctx context.Context, query *dnscodec.Query,
			oq, or func([]byte)) (*dnscodec.Response, error) {
			txp := dnsoverstream.NewTransport(dnsoverstream.NewStreamOpenerDialerTCP(dnsUnusedDialer{}), unusedServer)
			txp.ObserveRawQuery = oq
			txp.ObserveRawResponse = or
			return txp.ExchangeWithStreamOpener(ctx, dnsoverstream.NewTLSStreamOpener(conn), query)
		}
		return &DNSConn{closer: conn, conn: conn, exchange: exchange, serverProtocol: "dot"}
	})
}

// NewDNSOverHTTPSConnFunc returns a [*DNSConnFunc] for DNS-over-HTTPS
// using the given endpoint URL (e.g., "https://dns.google/dns-query").
func NewDNSOverHTTPSConnFunc(cfg *Config, URL string, logger SLogger) *DNSConnFunc[*HTTPConn] {
	return newDNSConnFunc(cfg, logger, func(hc *HTTPConn) *DNSConn {
		exchange := func(ctx context.Context, query *dnscodec.Query,
			oq, or func([]byte)) (*dnscodec.Response, error) {
			req, queryMsg, err := dnsoverhttps.NewRequestWithHook(ctx, query, URL, oq)
			if err != nil {
				return nil, err
			}
			httpResp, err := hc.RoundTrip(req)
			if err != nil {
				return nil, err
			}
			defer httpResp.Body.Close()
			return dnsoverhttps.ReadResponseWithHook(ctx, httpResp, queryMsg, or)
		}
		return &DNSConn{closer: hc, conn: hc.Conn(), exchange: exchange, serverProtocol: "doh"}
	})
}

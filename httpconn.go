// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bassosimone/safeconn"
	"github.com/bassosimone/sud"
	"golang.org/x/net/http2"
)

// HTTPConn is an HTTP transport bound to a single established TLS connection.
//
// It is what the DNS-over-HTTPS resolver exchanges over. The caller must
// call [HTTPConn.Close] when done.
type HTTPConn struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time

	closeIdle func()
	conn      net.Conn
	txp       http.RoundTripper
}

// RoundTrip implements [http.RoundTripper].
func (hc *HTTPConn) RoundTrip(req *http.Request) (*http.Response, error) {
	t0 := hc.TimeNow()
	deadline, _ := req.Context().Deadline()
	hc.Logger.Info("httpRoundTripStart", hc.attrs(req,
		slog.Time("deadline", deadline),
		slog.Time("t", t0),
	)...)

	resp, err := hc.txp.RoundTrip(req)

	var statusCode int
	if resp != nil {
		statusCode = resp.StatusCode
	}
	hc.Logger.Info("httpRoundTripDone", hc.attrs(req,
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", hc.ErrClassifier.Classify(err)),
		slog.Int("httpResponseStatusCode", statusCode),
		slog.Time("t0", t0),
		slog.Time("t", hc.TimeNow()),
	)...)
	return resp, err
}

func (hc *HTTPConn) attrs(req *http.Request, extra ...any) []any {
	return append(extra,
		slog.String("httpMethod", req.Method),
		slog.String("httpUrl", req.URL.String()),
		slog.String("localAddr", safeconn.LocalAddr(hc.conn)),
		slog.String("protocol", safeconn.Network(hc.conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(hc.conn)),
	)
}

// Close closes idle transport connections and the underlying connection.
func (hc *HTTPConn) Close() error {
	hc.closeIdle()
	return hc.conn.Close()
}

// Conn returns the underlying [net.Conn] for logging purposes.
func (hc *HTTPConn) Conn() net.Conn {
	return hc.conn
}

// HTTPConnFunc wraps a [TLSConn] into an [*HTTPConn], selecting HTTP/2
// when ALPN negotiated "h2" and HTTP/1.1 otherwise.
type HTTPConnFunc struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

// NewHTTPConnFunc returns a new [*HTTPConnFunc].
func NewHTTPConnFunc(cfg *Config, logger SLogger) *HTTPConnFunc {
	return &HTTPConnFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

var _ Func[TLSConn, *HTTPConn] = &HTTPConnFunc{}

// Call implements [Func].
func (op *HTTPConnFunc) Call(ctx context.Context, conn TLSConn) (*HTTPConn, error) {
	dialer := sud.NewSingleUseDialer(conn)
	hc := &HTTPConn{
		ErrClassifier: op.ErrClassifier,
		Logger:        op.Logger,
		TimeNow:       op.TimeNow,
		conn:          conn,
	}
	switch conn.ConnectionState().NegotiatedProtocol {
	case "h2":
		txp := &http2.Transport{DialTLSContext: dialer.DialTLSContext}
		hc.txp, hc.closeIdle = txp, txp.CloseIdleConnections
	default:
		txp := &http.Transport{
			DialContext:       dialer.DialContext,
			DialTLSContext:    dialer.DialContext,
			DisableKeepAlives: true,
		}
		hc.txp, hc.closeIdle = txp, txp.CloseIdleConnections
	}
	return hc, nil
}

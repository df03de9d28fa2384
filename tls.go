//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/tlsdialer.go
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/tls.go
//

package evhttp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"
)

// TLSEngine is the engine to create a new [TLSConn].
//
// An engine whose connections report the end of a session differently from
// [crypto/tls] should also implement [BenignCloser].
type TLSEngine interface {
	// Client builds a new client [TLSConn].
	Client(conn net.Conn, config *tls.Config) TLSConn

	// Name returns the engine name.
	Name() string

	// Parrot returns the configured parrot or an empty string.
	Parrot() string
}

// BenignCloser decides whether a read error marks a benign end of stream.
type BenignCloser interface {
	IsBenignClose(err error) bool
}

// TLSEngineStdlib implements [TLSEngine] using [crypto/tls].
//
// The zero value is ready to use.
type TLSEngineStdlib struct{}

var (
	_ TLSEngine    = TLSEngineStdlib{}
	_ BenignCloser = TLSEngineStdlib{}
)

// Client implements [TLSEngine].
func (TLSEngineStdlib) Client(conn net.Conn, config *tls.Config) TLSConn {
	return tls.Client(conn, config)
}

// Name implements [TLSEngine].
func (TLSEngineStdlib) Name() string {
	return "stdlib"
}

// Parrot implements [TLSEngine].
func (TLSEngineStdlib) Parrot() string {
	return ""
}

// IsBenignClose implements [BenignCloser].
//
// When the peer drops the TCP connection at a record boundary without
// sending close_notify, [*tls.Conn] returns [io.EOF]. This is the short
// read at close that most HTTPS servers produce. A truncation in the middle
// of a record yields [io.ErrUnexpectedEOF] instead, which is not benign.
func (TLSEngineStdlib) IsBenignClose(err error) bool {
	return errors.Is(err, io.EOF)
}

// TLSConn abstracts over [*tls.Conn].
type TLSConn interface {
	// ConnectionState returns the connection state.
	ConnectionState() tls.ConnectionState

	// HandshakeContext performs the handshake unless interrupted by the context.
	HandshakeContext(ctx context.Context) error

	net.Conn
}

// NewTLSHandshakeFunc returns a new [*TLSHandshakeFunc] using the given [*tls.Config].
func NewTLSHandshakeFunc(cfg *Config, tlsConfig *tls.Config, logger SLogger) *TLSHandshakeFunc {
	runtimex.Assert(tlsConfig != nil)
	return &TLSHandshakeFunc{
		Config:        tlsConfig,
		Engine:        TLSEngineStdlib{},
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// TLSHandshakeFunc performs a client-role TLS handshake over an existing [net.Conn].
//
// Returns either a valid [TLSConn] or an error, never both. On error, the
// connection is closed.
//
// All fields are safe to modify after construction but before first use.
type TLSHandshakeFunc struct {
	// Config is the [*tls.Config] to use. It is cloned before each handshake.
	Config *tls.Config

	// Engine is the [TLSEngine] to use.
	//
	// Set by [NewTLSHandshakeFunc] to [TLSEngineStdlib].
	Engine TLSEngine

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

var _ Func[net.Conn, TLSConn] = &TLSHandshakeFunc{}

// Call implements [Func].
func (op *TLSHandshakeFunc) Call(ctx context.Context, conn net.Conn) (TLSConn, error) {
	runtimex.Assert(op.Config != nil)
	config := op.Config.Clone()
	config.Time = op.TimeNow

	tconn := op.Engine.Client(conn, config)
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.Logger.Info("tlsHandshakeStart", op.attrs(conn, config, slog.Time("deadline", deadline), slog.Time("t", t0))...)

	err := tconn.HandshakeContext(ctx)
	state := tconn.ConnectionState()

	op.Logger.Info("tlsHandshakeDone", op.attrs(
		conn, config,
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
		slog.String("tlsCipherSuite", tls.CipherSuiteName(state.CipherSuite)),
		slog.String("tlsNegotiatedProtocol", state.NegotiatedProtocol),
		slog.Any("tlsPeerCerts", tlsPeerCerts(state, err)),
		slog.String("tlsVersion", tls.VersionName(state.Version)),
	)...)

	if err != nil {
		tconn.Close()
		return nil, err
	}
	return tconn, nil
}

func (op *TLSHandshakeFunc) attrs(conn net.Conn, config *tls.Config, extra ...any) []any {
	return append(extra,
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.String("tlsEngineName", op.Engine.Name()),
		slog.String("tlsParrot", op.Engine.Parrot()),
		slog.Any("tlsOfferedProtocols", config.NextProtos),
		slog.String("tlsServerName", config.ServerName),
		slog.Bool("tlsSkipVerify", config.InsecureSkipVerify),
	)
}

// tlsPeerCerts returns the raw peer certificates, preferring the one
// carried by a certificate verification error when there is one.
func tlsPeerCerts(state tls.ConnectionState, err error) [][]byte {
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) && hostnameErr.Certificate != nil {
		return [][]byte{hostnameErr.Certificate.Raw}
	}
	var authorityErr x509.UnknownAuthorityError
	if errors.As(err, &authorityErr) && authorityErr.Cert != nil {
		return [][]byte{authorityErr.Cert.Raw}
	}
	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &invalidErr) && invalidErr.Cert != nil {
		return [][]byte{invalidErr.Cert.Raw}
	}
	out := [][]byte{}
	for _, cert := range state.PeerCertificates {
		out = append(out, cert.Raw)
	}
	return out
}

// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"errors"
	"fmt"
)

// Errors identifying the step at which a [*Client] failed.
//
// The error returned by [*Client.Err] wraps exactly one of these together
// with the underlying cause, so both can be tested with [errors.Is].
var (
	// ErrResolve indicates that name resolution failed.
	ErrResolve = errors.New("evhttp: resolve failed")

	// ErrConnect indicates that no candidate endpoint accepted the connection.
	ErrConnect = errors.New("evhttp: connect failed")

	// ErrHandshake indicates that the TLS handshake failed.
	ErrHandshake = errors.New("evhttp: TLS handshake failed")

	// ErrWrite indicates that sending the request failed.
	ErrWrite = errors.New("evhttp: write failed")

	// ErrStatusLine indicates a malformed status line or a status code other
	// than [ExpectedStatusCode]. The actual code is deliberately not exposed.
	ErrStatusLine = errors.New("evhttp: bad status line")

	// ErrHeaderRead indicates that reading the header block failed.
	ErrHeaderRead = errors.New("evhttp: header read failed")

	// ErrBodyRead indicates that reading the body failed for a reason other
	// than a benign end of stream.
	ErrBodyRead = errors.New("evhttp: body read failed")

	// ErrSink indicates that the header sink or the content sink returned an error.
	ErrSink = errors.New("evhttp: sink failed")
)

var (
	// ErrFinalized is returned when appending to or finalizing a request
	// that has already been finalized.
	ErrFinalized = errors.New("evhttp: request already finalized")

	// ErrNoEndpoints is returned by a [Resolver] that found no candidate endpoints.
	ErrNoEndpoints = errors.New("evhttp: no candidate endpoints")

	// ErrNotConnected is returned when using a socket before it is connected.
	ErrNotConnected = errors.New("evhttp: socket not connected")
)

// stepError joins a step sentinel with its cause.
func stepError(step, cause error) error {
	return fmt.Errorf("%w: %w", step, cause)
}

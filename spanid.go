// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 identifying a span.
//
// Attach it to the logger passed to [NewPlainClient] or [NewTLSClient]
// using [*slog.Logger.With] so that every event emitted while fetching
// a single resource can be correlated.
//
// This function panics if the system random number generator fails.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}

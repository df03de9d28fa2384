// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"bufio"
	"io"
	"net/http"
	"net/textproto"
)

// HeaderSink consumes the response header block.
//
// The reader yields exactly the header lines followed by the terminating
// blank line. The sink is invoked at most once per [*Client]. Returning an
// error moves the client to [StateFailed] with [ErrSink].
type HeaderSink func(block io.Reader) error

// ContentSink consumes one chunk of the response body.
//
// The reader yields at least one byte. The sink is invoked once per chunk,
// zero or more times. Returning an error moves the client to [StateFailed]
// with [ErrSink].
type ContentSink func(chunk io.Reader) error

// DiscardHeaders is a [HeaderSink] that reads through the header block
// and ignores it.
func DiscardHeaders(block io.Reader) error {
	_, err := io.Copy(io.Discard, block)
	return err
}

// ParseHeaderBlock parses a header block, as passed to a [HeaderSink],
// into an [http.Header] with canonicalized keys.
func ParseHeaderBlock(block io.Reader) (http.Header, error) {
	tp := textproto.NewReader(bufio.NewReader(block))
	mh, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, err
	}
	return http.Header(mh), nil
}

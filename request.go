// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"context"
	"io"
)

var _ io.Writer = &Client[*TCPSocket]{}

// Write appends data to the request buffer without performing any I/O.
//
// Returns [ErrFinalized] once [*Client.Finalize] has been called.
func (c *Client[S]) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInit {
		return 0, ErrFinalized
	}
	return c.request.Write(data)
}

// Append appends s to the request buffer and returns the client, so that
// calls can be chained.
//
// Appending after [*Client.Finalize] is a programming error and panics
// with [ErrFinalized].
func (c *Client[S]) Append(s string) *Client[S] {
	if _, err := io.WriteString(c, s); err != nil {
		panic(err)
	}
	return c
}

// AppendRequestLine appends "<method> <path> HTTP/1.1\r\n".
func (c *Client[S]) AppendRequestLine(method, path string) *Client[S] {
	return c.Append(method + " " + path + " HTTP/1.1\r\n")
}

// AppendHeader appends "<key>: <value>\r\n".
//
// Header lines are not validated.
func (c *Client[S]) AppendHeader(key, value string) *Client[S] {
	return c.Append(key + ": " + value + "\r\n")
}

// Finalize appends the blank line terminating the request and starts
// resolving the [Query]. This is the only way to start the client; the
// exchange then proceeds as the [*Reactor] runs.
//
// The context governs the whole exchange. When it is done, the connection is
// closed and the pending operation fails. Returns [ErrFinalized] if called
// more than once.
func (c *Client[S]) Finalize(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInit {
		c.mu.Unlock()
		return ErrFinalized
	}
	c.request.WriteString("\r\n")
	c.state = StateResolving
	c.mu.Unlock()
	c.start(ctx)
	return nil
}

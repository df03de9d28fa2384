// SPDX-License-Identifier: GPL-3.0-or-later

// Package urlsplit splits the loosely formatted URLs accepted on the
// command line into the parts needed to build a request.
package urlsplit

import (
	"errors"
	"strings"
)

// URL is the result of [Split].
type URL struct {
	// Scheme is "http" when no scheme or port is present. Without a
	// "://" separator, the port (e.g., "443") acts as the scheme.
	Scheme string

	// Host is the domain name or IP address.
	Host string

	// Port is the explicit port following the host, if any.
	Port string

	// Path is the path and query, and is never empty.
	Path string
}

// ErrEmptyHost is returned when the URL does not contain a host.
var ErrEmptyHost = errors.New("urlsplit: empty host")

// Split splits rawURL into scheme, host, port, and path.
//
// Accepted forms include "https://www.example.com/a?b", "www.example.com",
// and "www.example.com:443/a". Bracketed IPv6 literals are not supported.
func Split(rawURL string) (URL, error) {
	var u URL
	rest := rawURL
	if scheme, after, found := strings.Cut(rest, "://"); found {
		u.Scheme, rest = scheme, after
	}

	end := strings.IndexAny(rest, "/?")
	if end < 0 {
		end = len(rest)
	}
	authority := rest[:end]
	u.Host, u.Port, _ = strings.Cut(authority, ":")
	if u.Host == "" {
		return URL{}, ErrEmptyHost
	}

	switch {
	case u.Scheme != "":
	case u.Port != "":
		u.Scheme = u.Port
	default:
		u.Scheme = "http"
	}

	u.Path = rest[end:]
	switch {
	case u.Path == "":
		u.Path = "/"
	case strings.HasPrefix(u.Path, "?"):
		u.Path = "/" + u.Path
	}
	return u, nil
}

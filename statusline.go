// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// ExpectedStatusCode is the only status code a [*Client] accepts.
const ExpectedStatusCode = 200

// StatusLine is the validated first line of an HTTP response.
//
// The reason phrase is discarded.
type StatusLine struct {
	Version string
	Code    int
}

// ReadStatusLine consumes exactly one line from r and validates it.
//
// The line is split on whitespace into a version token, a numeric status
// code, and a remainder that is discarded. Validation succeeds iff both
// tokens are present, the version starts with "HTTP/", and the code equals
// expected. Errors wrap [ErrStatusLine].
//
// Nothing past the first '\n' is read from r.
func ReadStatusLine(r *bufio.Reader, expected int) (StatusLine, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return StatusLine{}, stepError(ErrStatusLine, err)
	}
	return parseStatusLine(line, expected)
}

// parseStatusLine is like [ReadStatusLine] but operates on a line that was
// already read, with or without its line terminator.
func parseStatusLine(line string, expected int) (StatusLine, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return StatusLine{}, fmt.Errorf("%w: %q", ErrStatusLine, strings.TrimSpace(line))
	}
	version := fields[0]
	if len(version) < 5 || version[:5] != "HTTP/" {
		return StatusLine{}, fmt.Errorf("%w: invalid version %q", ErrStatusLine, version)
	}
	code, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return StatusLine{}, fmt.Errorf("%w: invalid code %q", ErrStatusLine, fields[1])
	}
	if int(code) != expected {
		return StatusLine{}, fmt.Errorf("%w: unexpected code", ErrStatusLine)
	}
	return StatusLine{Version: version, Code: int(code)}, nil
}

// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

// State is the state of a [*Client].
type State int

const (
	// StateInit is the initial state: the request is being accumulated.
	StateInit State = iota

	// StateResolving means the [Query] is being resolved.
	StateResolving

	// StateConnecting means the socket is connecting to the candidate endpoints.
	StateConnecting

	// StateHandshaking means the TLS handshake is in progress.
	StateHandshaking

	// StateWriting means the request buffer is being written.
	StateWriting

	// StateReadingStatus means the client is waiting for the status line.
	StateReadingStatus

	// StateReadingHeaders means the client is waiting for the blank line
	// terminating the header block.
	StateReadingHeaders

	// StateReadingBody means the client is streaming the body to the content sink.
	StateReadingBody

	// StateDone is the terminal success state.
	StateDone

	// StateFailed is the terminal failure state.
	StateFailed
)

var stateNames = [...]string{
	StateInit:           "INIT",
	StateResolving:      "RESOLVING",
	StateConnecting:     "CONNECTING",
	StateHandshaking:    "HANDSHAKING",
	StateWriting:        "WRITING",
	StateReadingStatus:  "READING_STATUS",
	StateReadingHeaders: "READING_HEADERS",
	StateReadingBody:    "READING_BODY",
	StateDone:           "DONE",
	StateFailed:         "FAILED",
}

// String implements [fmt.Stringer].
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal returns whether s is [StateDone] or [StateFailed].
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservedConnIO(t *testing.T) {
	wantErr := errors.New("mocked error")

	tests := []struct {
		// name describes the scenario.
		name string

		// do performs the operation on the observed conn.
		do func(conn net.Conn) (int, error)

		// wantEvents are the expected debug events.
		wantEvents []string

		// wantCount is the expected byte count.
		wantCount int

		// wantErr is the expected error.
		wantErr error
	}{
		{
			name: "read",
			do: func(conn net.Conn) (int, error) {
				return conn.Read(make([]byte, 16))
			},
			wantEvents: []string{"readStart", "readDone"},
			wantCount:  5,
		},
		{
			name: "write",
			do: func(conn net.Conn) (int, error) {
				return conn.Write([]byte("GET /"))
			},
			wantEvents: []string{"writeStart", "writeDone"},
			wantCount:  5,
		},
		{
			name: "read error",
			do: func(conn net.Conn) (int, error) {
				return conn.Read(make([]byte, 16))
			},
			wantEvents: []string{"readStart", "readDone"},
			wantErr:    wantErr,
		},
		{
			name: "write error",
			do: func(conn net.Conn) (int, error) {
				return conn.Write([]byte("GET /"))
			},
			wantEvents: []string{"writeStart", "writeDone"},
			wantErr:    wantErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockConn := newMinimalConn()
			mockConn.ReadFunc = func(b []byte) (int, error) {
				if tt.wantErr != nil {
					return 0, tt.wantErr
				}
				return copy(b, "hello"), nil
			}
			mockConn.WriteFunc = func(b []byte) (int, error) {
				if tt.wantErr != nil {
					return 0, tt.wantErr
				}
				return len(b), nil
			}
			logger, records := newCapturingLogger()

			conn, err := NewObserveConnFunc(NewConfig(), logger).Call(context.Background(), mockConn)
			require.NoError(t, err)

			count, err := tt.do(conn)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantCount, count)

			var events []string
			for _, r := range *records {
				events = append(events, r.Message)
			}
			assert.Equal(t, tt.wantEvents, events)
		})
	}
}

func TestObservedConnDeadlines(t *testing.T) {
	var got []time.Time
	mockConn := newMinimalConn()
	mockConn.SetDeadlineFunc = func(t time.Time) error {
		got = append(got, t)
		return nil
	}
	mockConn.SetReadDeadFunc = func(t time.Time) error {
		got = append(got, t)
		return nil
	}
	mockConn.SetWriteDeaFunc = func(t time.Time) error {
		got = append(got, t)
		return nil
	}
	logger, records := newCapturingLogger()

	conn, err := NewObserveConnFunc(NewConfig(), logger).Call(context.Background(), mockConn)
	require.NoError(t, err)

	deadline := time.Now().Add(time.Hour)
	require.NoError(t, conn.SetDeadline(deadline))
	require.NoError(t, conn.SetReadDeadline(deadline))
	require.NoError(t, conn.SetWriteDeadline(deadline))

	assert.Equal(t, []time.Time{deadline, deadline, deadline}, got)
	require.Len(t, *records, 3)
	assert.Equal(t, "setDeadline", (*records)[0].Message)
	assert.Equal(t, "setReadDeadline", (*records)[1].Message)
	assert.Equal(t, "setWriteDeadline", (*records)[2].Message)
}

func TestObservedConnCloseOnce(t *testing.T) {
	closeCount := 0
	mockConn := newMinimalConn()
	mockConn.CloseFunc = func() error {
		closeCount++
		return nil
	}
	logger, records := newCapturingLogger()

	conn, err := NewObserveConnFunc(NewConfig(), logger).Call(context.Background(), mockConn)
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.ErrorIs(t, conn.Close(), net.ErrClosed)
	assert.Equal(t, 1, closeCount)

	require.Len(t, *records, 2)
	assert.Equal(t, "closeStart", (*records)[0].Message)
	assert.Equal(t, "closeDone", (*records)[1].Message)
}

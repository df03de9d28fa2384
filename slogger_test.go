// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSLogger(t *testing.T) {
	logger := DefaultSLogger()
	assert.NotNil(t, logger)

	// Discards output without panicking
	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", 42)
}

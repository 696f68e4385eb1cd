package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamhq/beam/pkg/logging"
)

func TestGetLoggerSingleton(t *testing.T) {
	first := logging.GetLogger()
	second := logging.GetLogger()
	require.NotNil(t, first)
	assert.Same(t, first, second)
}

func TestTestLoggerCapturesOutput(t *testing.T) {
	logger := logging.NewTestLogger()

	logger.Info("upload assembled", "session", "abc123")
	logger.Debug("debug detail")

	out := logger.GetOutput()
	assert.Contains(t, out, "upload assembled")
	assert.Contains(t, out, "abc123")
	// Test loggers run at debug level.
	assert.Contains(t, out, "debug detail")
}

func TestGetOutputWithoutBuffer(t *testing.T) {
	assert.Equal(t, "", logging.GetLogger().GetOutput())
}

package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConsoleLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{Service: "scribed"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.False(t, logger.Core().Enabled(-1)) // debug disabled by default
}

func TestNewVerboseJSONLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{Verbose: true, JSON: true})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(-1))
}

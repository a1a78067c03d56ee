package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringWithoutCommit(t *testing.T) {
	old := Commit
	defer func() { Commit = old }()

	Commit = "unknown"
	require.Equal(t, Version, String())
}

func TestStringWithCommit(t *testing.T) {
	old := Commit
	defer func() { Commit = old }()

	Commit = "abcdef1234567890"
	require.Equal(t, Version+"+abcdef1", String())
}

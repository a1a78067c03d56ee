package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "scribed v")
}

func TestRootHasServeCommand(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	require.Equal(t, "serve", serve.Name())
}

func TestRootFlags(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	for _, name := range []string{"config", "verbose", "json", "no-progress"} {
		require.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag %s", name)
	}
}

package cli

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// chdir replicates (*testing.T).Chdir for Go toolchains older than 1.24:
// change into dir and restore the previous working directory on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restoring working directory: %v", err)
		}
	})
}

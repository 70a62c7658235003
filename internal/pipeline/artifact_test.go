package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintFile_Missing(t *testing.T) {
	fp, ok := FingerprintFile(filepath.Join(t.TempDir(), "nope.bam"))
	assert.False(t, ok)
	assert.Equal(t, Fingerprint{}, fp)
}

func TestFingerprintFile_DetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.bam")
	require.NoError(t, os.WriteFile(path, []byte("aligned"), 0o644))

	before, ok := FingerprintFile(path)
	require.True(t, ok)
	assert.Equal(t, int64(7), before.Size)

	require.NoError(t, os.WriteFile(path, []byte("aligned-differently"), 0o644))
	after, ok := FingerprintFile(path)
	require.True(t, ok)
	assert.NotEqual(t, before, after)
}

func TestFingerprintAll_ReportsMissing(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "a.vcf")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o644))

	fps, ok := FingerprintAll([]string{present, filepath.Join(dir, "b.vcf")})
	assert.False(t, ok)
	assert.Contains(t, fps, present)
	assert.Len(t, fps, 1)
}

func TestFingerprintFile_Directory(t *testing.T) {
	_, ok := FingerprintFile(t.TempDir())
	assert.False(t, ok, "directories are not artifacts")
}

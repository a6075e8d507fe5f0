package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialRotator_RotatesPastMaxSize(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "2026-01-01.log")

	r := NewSequentialRotator(filename, 1, 0, 0)
	r.maxSize = 16

	line := []byte(strings.Repeat("x", 10) + "\n")
	for i := 0; i < 3; i++ {
		_, err := r.Write(line)
		require.NoError(t, err)
	}
	require.NoError(t, r.Close())

	_, err := os.Stat(filepath.Join(dir, "2026-01-01.1.log"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "2026-01-01.2.log"))
	assert.NoError(t, err)

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, line, data)
}

func TestSequentialRotator_PrunesBackups(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "app.log")

	r := NewSequentialRotator(filename, 1, 0, 2)
	r.maxSize = 4

	for i := 0; i < 6; i++ {
		_, err := r.Write([]byte("abcd"))
		require.NoError(t, err)
	}
	require.NoError(t, r.Close())

	backups := r.backups()
	require.Len(t, backups, 2)
	assert.Equal(t, 5, backups[0].seq)
	assert.Equal(t, 4, backups[1].seq)
}

func TestSequentialRotator_CloseIdempotent(t *testing.T) {
	r := NewSequentialRotator(filepath.Join(t.TempDir(), "a.log"), 1, 0, 0)
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Sync())
}

package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/samplo/internal/loader"
	"github.com/cbegin/samplo/internal/logger"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestScanOneLevelDeepSorted(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "strings.sfz"))
	touch(t, filepath.Join(dir, "Bass.json"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "piano", "grand.sfz"))
	touch(t, filepath.Join(dir, "piano", "samples", "deep.sfz"))
	touch(t, filepath.Join(dir, "gm", "bank.sf2"))
	touch(t, filepath.Join(dir, ".hidden", "skip.sfz"))

	lib, err := Scan(logger.Discard(), dir)
	require.NoError(t, err)

	var got []string
	for _, e := range lib.Entries() {
		rel, err := filepath.Rel(dir, e.Path)
		require.NoError(t, err)
		got = append(got, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"Bass.json", "gm/bank.sf2", "piano/grand.sfz", "strings.sfz"}, got)
	assert.Equal(t, "grand", lib.At(2).Name)
	assert.Equal(t, loader.FormatSF2, lib.At(1).Format)
}

func TestAtClamps(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.sfz"))
	touch(t, filepath.Join(dir, "b.sfz"))
	lib, err := Scan(logger.Discard(), dir)
	require.NoError(t, err)

	assert.Equal(t, "a", lib.At(-5).Name)
	assert.Equal(t, "b", lib.At(99).Name)
	assert.Equal(t, 1, lib.Clamp(2))
	assert.Equal(t, 1, lib.Find("B"))
	assert.Equal(t, -1, lib.Find("c"))
}

func TestScanEmpty(t *testing.T) {
	_, err := Scan(logger.Discard(), t.TempDir())
	assert.True(t, errors.Is(err, ErrEmpty))

	_, err = Scan(logger.Discard(), filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestScanMergesDirectories(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	touch(t, filepath.Join(a, "one.sfz"))
	touch(t, filepath.Join(b, "two.json"))
	lib, err := Scan(logger.Discard(), a, b, a)
	require.NoError(t, err)
	assert.Equal(t, 2, lib.Len())
}

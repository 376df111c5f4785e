package runctx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAndIncrementStartsAtZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runfile.dat")
	n, err := LoadAndIncrement(path)
	require.NoError(t, err)
	require.Equal(t, uint32(0), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "1", string(data))
}

func TestLoadAndIncrementAdvances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runfile.dat")
	n1, err := LoadAndIncrement(path)
	require.NoError(t, err)
	n2, err := LoadAndIncrement(path)
	require.NoError(t, err)
	require.Equal(t, n1+1, n2)
}

func TestOutputDir(t *testing.T) {
	require.Equal(t, filepath.Join("/data", "run42"), OutputDir("/data", 42))
}

func TestReserveOutputDirIncrementsOnCollision(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(OutputDir(base, 5), 0o755))

	n, dir := ReserveOutputDir(base, 5, false)
	require.Equal(t, uint32(6), n)
	require.Equal(t, OutputDir(base, 6), dir)
}

func TestReserveOutputDirAllowOverwrite(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(OutputDir(base, 5), 0o755))

	n, dir := ReserveOutputDir(base, 5, true)
	require.Equal(t, uint32(5), n)
	require.Equal(t, OutputDir(base, 5), dir)
}

func TestMakeTreeCreatesSubdirs(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "run1")
	require.NoError(t, MakeTree(dir))
	for _, sub := range Subdirs {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

package pedestal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubtractAppliesOffsets(t *testing.T) {
	table := New(2, 4)
	table.SetChannel(0, []float64{1, 1, 1, 1})

	wave := []float64{10, 20, 30, 40}
	table.Subtract(0, wave)
	require.Equal(t, []float64{9, 19, 29, 39}, wave)
}

func TestLoadOrNewPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pedestals.dat")

	table, mapping, err := LoadOrNew(path, 2, 4)
	require.NoError(t, err)
	table.SetChannel(1, []float64{0.5, 0.25, 0.125, 0.0625})
	require.NoError(t, mapping.Flush(table))
	require.NoError(t, mapping.Close())

	table2, mapping2, err := LoadOrNew(path, 2, 4)
	require.NoError(t, err)
	defer mapping2.Close()

	require.Equal(t, 0.5, table2.Get(1, 0))
	require.Equal(t, 0.0625, table2.Get(1, 3))
}

func TestLoadOrNewShapeMismatchStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pedestals.dat")

	table, mapping, err := LoadOrNew(path, 2, 4)
	require.NoError(t, err)
	table.SetChannel(0, []float64{9, 9, 9, 9})
	require.NoError(t, mapping.Flush(table))
	require.NoError(t, mapping.Close())

	table2, mapping2, err := LoadOrNew(path, 3, 4)
	require.NoError(t, err)
	defer mapping2.Close()

	require.Equal(t, 0.0, table2.Get(0, 0))
}

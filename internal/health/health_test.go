package health

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStoreStartsInStarting(t *testing.T) {
	s := NewStore()
	require.Equal(t, StateStarting, s.Get().State)
}

func TestMutateUpdatesTextToo(t *testing.T) {
	s := NewStore()
	s.Mutate(func(r *Record) {
		r.State = StateRunning
		r.NumEvents = 5
	})

	require.Equal(t, StateRunning, s.Get().State)

	var decoded Record
	require.NoError(t, json.Unmarshal(s.Text(), &decoded))
	require.Equal(t, uint64(5), decoded.NumEvents)
	require.Equal(t, StateRunning, decoded.State)
}

func TestWriteAtomicPublishesFile(t *testing.T) {
	s := NewStore()
	s.Mutate(func(r *Record) { r.CurrentRun = 7 })

	path := filepath.Join(t.TempDir(), "daqstate.json")
	require.NoError(t, s.WriteAtomic(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, uint32(7), decoded.CurrentRun)
}

package daqstatus

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreUpdateRadiantIsIsolated(t *testing.T) {
	s := NewStore(1234)
	r := RadiantStatus{}
	r.Scalers[0] = 42
	s.UpdateRadiant(r)

	got := s.Get()
	require.Equal(t, uint32(42), got.Radiant.Scalers[0])
	require.Equal(t, uint16(1234), got.StationID)
}

func TestStoreConcurrentReadWrite(t *testing.T) {
	s := NewStore(1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			var r RadiantStatus
			r.Scalers[0] = uint32(i)
			s.UpdateRadiant(r)
		}
		close(done)
	}()
	for i := 0; i < 1000; i++ {
		_ = s.Get()
	}
	<-done
}

func TestSharedFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daqstatus.dat")
	sf, err := OpenSharedFile(path)
	require.NoError(t, err)
	defer sf.Close()

	st := Status{StationID: 7}
	st.Radiant.Scalers[3] = 99
	st.Radiant.Thresholds[3] = 1.25
	st.Flower.FastScalers[1] = 5
	st.Flower.FirmwareMajor = 1

	sf.Write(st)
	require.NoError(t, sf.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, recordSize)
	require.Equal(t, uint16(7), binary.LittleEndian.Uint16(data[0:2]))
	require.Equal(t, uint32(99), binary.LittleEndian.Uint32(data[16+3*4:16+4*4]))
	thrOff := 16 + NumRadiantChannels*4 + 3*8
	require.Equal(t, 1.25, math.Float64frombits(binary.LittleEndian.Uint64(data[thrOff:thrOff+8])))
}

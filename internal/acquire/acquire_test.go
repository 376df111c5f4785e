package acquire

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rno-g/rno-g-acq/internal/daq"
	"github.com/rno-g/rno-g-acq/internal/daqconfig"
	"github.com/rno-g/rno-g-acq/internal/device/simdevice"
	"github.com/rno-g/rno-g-acq/internal/logging"
	"github.com/rno-g/rno-g-acq/internal/ringqueue"
)

func TestLoopEnqueuesOneEventPerTrigger(t *testing.T) {
	cfg := daqconfig.Default()
	cfg.Radiant.Readout.PollMS = 1
	store := daqconfig.NewStore(cfg, "", "", "")

	primary := simdevice.NewPrimary()
	primary.Trigger(3)

	q := ringqueue.New[daq.EventItem](8)

	var cfgMu, priMu, auxMu sync.RWMutex
	var quit atomic.Bool

	deps := Deps{
		ConfigMu:  &cfgMu,
		Config:    store,
		PrimaryMu: &priMu,
		Primary:   primary,
		AuxiliaryMu: &auxMu,
		Auxiliary: nil,
		Queue:     q,
		RunNumber: 5,
		StationID: 11,
		Log:       logging.Discard(),
	}

	done := make(chan struct{})
	go func() {
		Loop(deps, &quit)
		close(done)
	}()

	require.Eventually(t, func() bool { return q.Occupancy() == 3 }, time.Second, time.Millisecond)
	quit.Store(true)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after quit")
	}

	var item daq.EventItem
	require.True(t, q.Pop(&item, nil, nil))
	require.Equal(t, uint32(5), item.Header.RunNumber)
	require.Equal(t, uint16(11), item.Header.StationID)
}

package monitor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rno-g/rno-g-acq/internal/daq"
	"github.com/rno-g/rno-g-acq/internal/daqconfig"
	"github.com/rno-g/rno-g-acq/internal/daqstatus"
	"github.com/rno-g/rno-g-acq/internal/device"
	"github.com/rno-g/rno-g-acq/internal/device/simdevice"
	"github.com/rno-g/rno-g-acq/internal/logging"
	"github.com/rno-g/rno-g-acq/internal/ringqueue"
	"github.com/rno-g/rno-g-acq/internal/servo"
)

func TestLoopPublishesStatusOnCadence(t *testing.T) {
	cfg := daqconfig.Default()
	store := daqconfig.NewStore(cfg, "", "", "")

	primary := simdevice.NewPrimary()
	primary.SetScalers(device.RadiantScalers{})

	statusStore := daqstatus.NewStore(1)
	statusQueue := ringqueue.New[daq.StatusItem](4)

	var cfgMu, priMu, auxMu sync.RWMutex

	var active [24]bool
	pservo := servo.NewPrimaryServo(servo.PrimaryConfig{
		NPeriodsPerPeriod: [3]int{1, 1, 1},
		PeriodWeights:     [3]float64{1, 0, 0},
		MaxSumErr:         1e6,
		MinVolts:          0,
		MaxVolts:          2.5,
	}, [24]float64{}, active)

	cadences := NewCadences(time.Millisecond, 0, 0, 0, time.Millisecond)

	deps := Deps{
		ConfigMu:     &cfgMu,
		Config:       store,
		PrimaryMu:    &priMu,
		Primary:      primary,
		AuxiliaryMu:  &auxMu,
		Auxiliary:    nil,
		Status:       statusStore,
		StatusQueue:  statusQueue,
		PrimaryServo: pservo,
		Log:          logging.Discard(),
	}

	var quit atomic.Bool
	done := make(chan struct{})
	go func() {
		Loop(deps, cadences, &quit)
		close(done)
	}()

	require.Eventually(t, func() bool { return statusQueue.Occupancy() > 0 }, time.Second, time.Millisecond)
	quit.Store(true)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit")
	}
}

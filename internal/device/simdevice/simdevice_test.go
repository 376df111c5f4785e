package simdevice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rno-g/rno-g-acq/internal/daq"
	"github.com/rno-g/rno-g-acq/internal/device"
)

func TestPrimaryPollTriggerReadyConsumesOnePerCall(t *testing.T) {
	p := NewPrimary()
	p.Trigger(2)

	ready, err := p.PollTriggerReady(time.Millisecond)
	require.NoError(t, err)
	require.True(t, ready)

	ready, err = p.PollTriggerReady(time.Millisecond)
	require.NoError(t, err)
	require.True(t, ready)

	ready, err = p.PollTriggerReady(time.Millisecond)
	require.NoError(t, err)
	require.False(t, ready)
}

func TestPrimaryReadEventIncrementsNumber(t *testing.T) {
	p := NewPrimary()
	var e1, e2 daq.EventItem
	require.NoError(t, p.ReadEvent(&e1))
	require.NoError(t, p.ReadEvent(&e2))
	require.Equal(t, e1.Header.EventNumber+1, e2.Header.EventNumber)
}

func TestPrimaryWriteThresholdsRoundTrips(t *testing.T) {
	p := NewPrimary()
	var want [24]float64
	want[0] = 1.23
	require.NoError(t, p.WriteThresholds(want))
	require.Equal(t, want, p.Thresholds())
}

func TestPrimaryCloseIsObservable(t *testing.T) {
	p := NewPrimary()
	require.False(t, p.Closed())
	require.NoError(t, p.Close())
	require.True(t, p.Closed())
}

func TestAuxiliaryFirmwareVersionBeforeCutoff(t *testing.T) {
	a := NewAuxiliary(device.FirmwareVersion{Major: 0, Minor: 0, Rev: 3})
	v, err := a.FirmwareVersion()
	require.NoError(t, err)
	require.True(t, v.Before(device.FirmwareVersion{Major: 0, Minor: 0, Rev: 6}))
}

package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCadenceDueFiresOncePerInterval(t *testing.T) {
	c := newCadence(10 * time.Millisecond)
	start := time.Now()

	require.True(t, c.due(start))
	require.False(t, c.due(start.Add(time.Millisecond)))
	require.True(t, c.due(start.Add(11*time.Millisecond)))
}

func TestCadenceZeroIntervalNeverDue(t *testing.T) {
	c := newCadence(0)
	require.False(t, c.due(time.Now()))
}

func TestSoftTriggerSchedulerUniformDue(t *testing.T) {
	start := time.Now()
	s := NewSoftTriggerScheduler(true, false, 10*time.Millisecond, 0, 1, start)

	require.False(t, s.Due(start))
	require.True(t, s.Due(start.Add(11*time.Millisecond)))
}

func TestSoftTriggerSchedulerDisabledNeverDue(t *testing.T) {
	s := NewSoftTriggerScheduler(false, false, 10*time.Millisecond, 0, 1, time.Now())
	require.False(t, s.Due(time.Now().Add(time.Hour)))
}

func TestSoftTriggerSchedulerDeterministicWithSeed(t *testing.T) {
	start := time.Now()
	s1 := NewSoftTriggerScheduler(true, true, 10*time.Millisecond, 0, 42, start)
	s2 := NewSoftTriggerScheduler(true, true, 10*time.Millisecond, 0, 42, start)
	require.Equal(t, s1.nextTrigger, s2.nextTrigger)
}

func TestSleepDurationCapsAtMaxSleep(t *testing.T) {
	require.Equal(t, MaxSleep, sleepDuration(time.Hour))
}

func TestSleepDurationUsesThreeQuarters(t *testing.T) {
	got := sleepDuration(40 * time.Millisecond)
	require.Equal(t, 30*time.Millisecond, got)
}

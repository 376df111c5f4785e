package servo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func baseConfig() PrimaryConfig {
	var cfg PrimaryConfig
	cfg.NPeriodsPerPeriod = [3]int{1, 10, 60}
	cfg.PeriodWeights = [3]float64{1, 0, 0}
	cfg.MaxSumErr = 1e6
	cfg.MinVolts = 0
	cfg.MaxVolts = 2.5
	cfg.MaxThreshChangeVolts = DACFullScaleVolts // effectively unclamped in DAC terms
	return cfg
}

func TestVoltsToDACRoundTrip(t *testing.T) {
	dac := VoltsToDAC(1.2)
	require.Equal(t, math.Round(1.2*DACMax/2.5), dac)
}

func TestPrimaryServoMonotonicUnderConstantError(t *testing.T) {
	cfg := baseConfig()
	cfg.P = 0.5
	cfg.I = 0
	cfg.D = 0
	cfg.ScalerGoals[0] = 100
	cfg.MaxThreshChangeVolts = 1000 * DACFullScaleVolts / DACMax // 1000 DAC units
	cfg.MinVolts = -10 // keep the floor out of the way; clamping is tested separately

	var active [24]bool
	active[0] = true
	var initial [24]float64
	initial[0] = DACToVolts(10000)

	s := NewPrimaryServo(cfg, initial, active)

	for step := 0; step < 3; step++ {
		var counts [24]uint32
		counts[0] = 200 // constant positive error of 100
		s.UpdateScalers(counts)

		before := s.channels[0].thresholdDAC
		out := s.Step()
		after := VoltsToDAC(out[0])

		require.InDelta(t, before-50, after, 0.51)
	}
}

func TestPrimaryServoPIDStepScenario(t *testing.T) {
	cfg := baseConfig()
	cfg.P = 0.5
	cfg.ScalerGoals[0] = 100
	cfg.MaxThreshChangeVolts = 1000 * DACFullScaleVolts / DACMax

	var active [24]bool
	active[0] = true
	var initial [24]float64
	initial[0] = DACToVolts(10000)

	s := NewPrimaryServo(cfg, initial, active)

	var counts [24]uint32
	counts[0] = 200
	s.UpdateScalers(counts)

	out := s.Step()
	gotDAC := VoltsToDAC(out[0])
	require.InDelta(t, 10000-50, gotDAC, 0.51)
}

func TestPrimaryServoSumErrClamp(t *testing.T) {
	cfg := baseConfig()
	cfg.P = 0
	cfg.I = 1
	cfg.D = 0
	cfg.MaxSumErr = 10
	cfg.ScalerGoals[0] = 0
	cfg.MaxThreshChangeVolts = 1e9 * DACFullScaleVolts / DACMax

	var active [24]bool
	active[0] = true
	var initial [24]float64
	s := NewPrimaryServo(cfg, initial, active)

	for i := 0; i < 100; i++ {
		var counts [24]uint32
		counts[0] = 1000
		s.UpdateScalers(counts)
		s.Step()
		require.LessOrEqual(t, math.Abs(s.channels[0].sumErr), cfg.MaxSumErr+1e-9)
	}
}

func TestPrimaryServoInactiveChannelDoesNotMove(t *testing.T) {
	cfg := baseConfig()
	cfg.P = 1
	cfg.ScalerGoals[1] = 0

	var active [24]bool // channel 1 inactive
	var initial [24]float64
	initial[1] = 1.0
	s := NewPrimaryServo(cfg, initial, active)

	var counts [24]uint32
	counts[1] = 500
	s.UpdateScalers(counts)
	out := s.Step()
	require.InDelta(t, 1.0, out[1], 1e-9)
}

func TestRollingWindowResizePreservesHistory(t *testing.T) {
	w := newRollingWindow(3)
	w.push(1)
	w.push(2)
	w.push(3)
	require.Equal(t, 2.0, w.mean())

	w.resize(5)
	require.Equal(t, []float64{1, 2, 3}, w.orderedSamples())
	w.push(4)
	require.Equal(t, []float64{1, 2, 3, 4}, w.orderedSamples())
}

func TestRollingWindowResizeShrinkKeepsNewest(t *testing.T) {
	w := newRollingWindow(4)
	w.push(1)
	w.push(2)
	w.push(3)
	w.push(4)

	w.resize(2)
	require.Equal(t, []float64{3, 4}, w.orderedSamples())
}

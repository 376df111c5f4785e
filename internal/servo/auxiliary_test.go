package servo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsFirmwareOldCutoff(t *testing.T) {
	require.True(t, IsFirmwareOld(0, 0, 5))
	require.False(t, IsFirmwareOld(0, 0, 6))
	require.False(t, IsFirmwareOld(0, 1, 0))
	require.False(t, IsFirmwareOld(1, 0, 0))
}

func auxBaseConfig() AuxConfig {
	return AuxConfig{
		FastWeight:      1,
		SlowWeight:      1,
		MaxSumErr:       1e6,
		MaxThreshChange: 1e6,
		ThreshFrac:      1,
	}
}

func TestAuxiliaryServoFastFactorMemoized(t *testing.T) {
	cfg := auxBaseConfig()
	s := NewAuxiliaryServo(cfg, true, [4]float64{})
	require.Equal(t, FastFactorOld, s.fastFactor)

	s2 := NewAuxiliaryServo(cfg, false, [4]float64{})
	require.Equal(t, FastFactorNew, s2.fastFactor)
}

func TestAuxiliaryServoStepReducesErrorSign(t *testing.T) {
	cfg := auxBaseConfig()
	cfg.P = 0.01
	cfg.ScalerGoals[0] = 0

	s := NewAuxiliaryServo(cfg, false, [4]float64{50, 50, 50, 50})
	before := s.channels[0].servoThresh

	s.Step([4]uint32{10, 0, 0, 0}, [4]uint32{}, [4]uint32{})
	after := s.channels[0].servoThresh

	require.Less(t, after, before)
}

func TestAuxiliaryServoSubtractGated(t *testing.T) {
	cfg := auxBaseConfig()
	cfg.SubtractGated = true
	cfg.P = 1

	s := NewAuxiliaryServo(cfg, false, [4]float64{0, 0, 0, 0})
	s.Step([4]uint32{}, [4]uint32{100, 0, 0, 0}, [4]uint32{40, 0, 0, 0})

	// value = slow - gated = 60; e = 60; delta = round(60) = 60
	require.InDelta(t, -60, s.channels[0].servoThresh, 1e-9)
}

func TestAuxiliaryServoTriggerThresholdClamped(t *testing.T) {
	cfg := auxBaseConfig()
	s := NewAuxiliaryServo(cfg, false, [4]float64{1000, 0, 0, 0})
	require.Equal(t, 120.0, s.TriggerThresholdVolts(0))

	s2 := NewAuxiliaryServo(cfg, false, [4]float64{-1000, 0, 0, 0})
	require.Equal(t, 4.0, s2.TriggerThresholdVolts(0))
}

package servo

import (
	"math"
)

// PrimaryConfig is the subset of daqconfig.RadiantServoConfig a
// PrimaryServo needs, kept separate so this package stays free of a
// dependency on daqconfig.
type PrimaryConfig struct {
	NPeriodsPerPeriod [3]int
	PeriodWeights     [3]float64

	ScalerGoals [24]float64

	LogTransform bool
	LogOffset    float64

	P, I, D float64

	MaxThreshChangeVolts float64
	MaxSumErr            float64

	MinVolts, MaxVolts float64
}

type primaryChannelState struct {
	windows    [3]*rollingWindow
	thresholdDAC float64
	sumErr     float64
	prevErr    float64
	active     bool
}

// PrimaryServo is the 24-channel primary-board (radiant) PID controller
// (design §4.4 "Primary-device servo"), grounded on rno-g-acq.c's
// radiant_servo_state_t / update_radiant_servo_state.
type PrimaryServo struct {
	cfg      PrimaryConfig
	channels [24]primaryChannelState
}

// NewPrimaryServo builds a servo with thresholds initialized from
// initialVolts (design §4.9 step 6: "from shared status if present else
// from configuration") and windows sized per cfg.
func NewPrimaryServo(cfg PrimaryConfig, initialVolts [24]float64, active [24]bool) *PrimaryServo {
	s := &PrimaryServo{cfg: cfg}
	for ch := range s.channels {
		cs := &s.channels[ch]
		for p := 0; p < 3; p++ {
			cs.windows[p] = newRollingWindow(cfg.NPeriodsPerPeriod[p])
		}
		cs.thresholdDAC = VoltsToDAC(initialVolts[ch])
		cs.active = active[ch]
	}
	return s
}

// Reconfigure applies a new PrimaryConfig, resizing each channel's rolling
// windows (preserving history, per the Open Question resolution in
// DESIGN.md) without resetting thresholds, sum-error, or active flags.
func (s *PrimaryServo) Reconfigure(cfg PrimaryConfig) {
	s.cfg = cfg
	for ch := range s.channels {
		cs := &s.channels[ch]
		for p := 0; p < 3; p++ {
			cs.windows[p].resize(cfg.NPeriodsPerPeriod[p])
		}
	}
}

// SetThresholdsVolts overwrites every channel's current threshold from
// volts, without touching integrator state or rolling windows — used
// when a configuration reload supplies new radiant.thresholds.initial
// values that must reach hardware immediately (design §4.3 step 6).
func (s *PrimaryServo) SetThresholdsVolts(volts [24]float64) {
	for ch := range s.channels {
		s.channels[ch].thresholdDAC = VoltsToDAC(volts[ch])
	}
}

// SetActive marks which channels participate in at least one enabled RF
// trigger mask (design §4.4: "only channels participating ... are
// servoed").
func (s *PrimaryServo) SetActive(active [24]bool) {
	for ch := range s.channels {
		s.channels[ch].active = active[ch]
	}
}

// ThresholdVolts returns channel ch's current threshold in volts.
func (s *PrimaryServo) ThresholdVolts(ch int) float64 {
	return DACToVolts(s.channels[ch].thresholdDAC)
}

// UpdateScalers feeds one new scaler sample per channel into every
// period's rolling window, without computing a servo step (design's
// "scaler update" cadence, distinct from the "servo update" cadence).
func (s *PrimaryServo) UpdateScalers(counts [24]uint32) {
	for ch := 0; ch < 24; ch++ {
		cs := &s.channels[ch]
		for p := 0; p < 3; p++ {
			cs.windows[p].push(float64(counts[ch]))
		}
	}
}

// Step computes and applies one servo update for every active channel,
// returning the new per-channel thresholds in volts so the caller can
// write them to hardware in the same order they're computed (design §3
// invariant: "thresholds written to hardware equal the thresholds
// recorded in the status snapshot after each servo step").
func (s *PrimaryServo) Step() [24]float64 {
	var out [24]float64
	for ch := 0; ch < 24; ch++ {
		cs := &s.channels[ch]
		out[ch] = DACToVolts(cs.thresholdDAC)
		if !cs.active {
			continue
		}

		var value float64
		for p := 0; p < 3; p++ {
			value += s.cfg.PeriodWeights[p] * cs.windows[p].mean()
		}
		if s.cfg.LogTransform {
			value = math.Log10(s.cfg.LogOffset + value)
		}

		e := value - s.cfg.ScalerGoals[ch]

		cs.sumErr = clamp(cs.sumErr+e, -s.cfg.MaxSumErr, s.cfg.MaxSumErr)
		delta := math.Round(s.cfg.P*e + s.cfg.I*cs.sumErr + s.cfg.D*(e-cs.prevErr))
		cs.prevErr = e

		maxDelta := VoltsToDAC(s.cfg.MaxThreshChangeVolts)
		delta = clamp(delta, -maxDelta, maxDelta)

		newThreshDAC := cs.thresholdDAC - delta
		newThreshVolts := clamp(DACToVolts(newThreshDAC), s.cfg.MinVolts, s.cfg.MaxVolts)
		cs.thresholdDAC = VoltsToDAC(newThreshVolts)

		out[ch] = newThreshVolts
	}
	return out
}

package servo

import "math"

// FastFactorOld and FastFactorNew are the fast-scaler multipliers:
// FastFactorOld applies to firmware older than the cutoff, FastFactorNew
// otherwise (design §4.4: "1000 when
// the board firmware revision is older than a known cutoff (major=0,
// minor=0, rev<6)").
const (
	FastFactorOld = 1000.0
	FastFactorNew = 100.0
)

// AuxConfig is the subset of daqconfig.FlowerServoConfig an
// AuxiliaryServo needs.
type AuxConfig struct {
	FastWeight, SlowWeight float64
	SubtractGated          bool

	ScalerGoals [4]float64

	P, I, D float64

	MaxThreshChange float64 // servo-domain units, not volts
	MaxSumErr       float64

	ThreshOffset float64
	ThreshFrac   float64
}

// FastFactorCutoffMajor/Minor/Rev is the firmware version below which
// FastFactorOld applies.
const (
	FastFactorCutoffMajor = 0
	FastFactorCutoffMinor = 0
	FastFactorCutoffRev   = 6
)

// IsFirmwareOld reports whether (major, minor, rev) is strictly earlier
// than the fast_factor cutoff version.
func IsFirmwareOld(major, minor, rev uint8) bool {
	if major != FastFactorCutoffMajor {
		return major < FastFactorCutoffMajor
	}
	if minor != FastFactorCutoffMinor {
		return minor < FastFactorCutoffMinor
	}
	return rev < FastFactorCutoffRev
}

type auxChannelState struct {
	servoThresh float64
	sumErr      float64
	prevErr     float64
}

// AuxiliaryServo is the 4-channel auxiliary-board (flower) PID
// controller (design §4.4 "Auxiliary-device servo"), grounded on
// rno-g-acq.c's flower_servo_state_t / update_flower_servo_state.
type AuxiliaryServo struct {
	cfg        AuxConfig
	fastFactor float64
	channels   [4]auxChannelState
}

// NewAuxiliaryServo builds a servo with fastFactor memoized once from the
// device's firmware revision (design §4.4), and per-channel servo
// thresholds derived from the initial trigger thresholds by inverting the
// trigger = (servo-offset)/frac relation.
func NewAuxiliaryServo(cfg AuxConfig, firmwareOld bool, initialTrigger [4]float64) *AuxiliaryServo {
	s := &AuxiliaryServo{cfg: cfg}
	if firmwareOld {
		s.fastFactor = FastFactorOld
	} else {
		s.fastFactor = FastFactorNew
	}
	for ch := range s.channels {
		s.channels[ch].servoThresh = initialTrigger[ch]*cfg.ThreshFrac + cfg.ThreshOffset
	}
	return s
}

// Reconfigure applies a new AuxConfig. Unlike PrimaryServo, the auxiliary
// servo carries no rolling window to resize: its value is an instantaneous
// weighted mix of the latest scaler read (design §4.4), so reconfigure is
// just a parameter swap.
func (s *AuxiliaryServo) Reconfigure(cfg AuxConfig) {
	s.cfg = cfg
}

// SetTriggerThresholdsVolts re-derives each channel's internal servo
// threshold from newly supplied hardware trigger thresholds — used when
// a configuration reload supplies new flower.trigger.thresholds values
// that must reach hardware immediately (design §4.3 step 6).
func (s *AuxiliaryServo) SetTriggerThresholdsVolts(trigger [4]float64) {
	for ch := range s.channels {
		s.channels[ch].servoThresh = trigger[ch]*s.cfg.ThreshFrac + s.cfg.ThreshOffset
	}
}

// TriggerThresholdVolts returns channel ch's current hardware trigger
// threshold, derived from the servo threshold by the affine transform
// trigger = (servo-offset)/frac, clamped to [4, 120] (design §4.4).
func (s *AuxiliaryServo) TriggerThresholdVolts(ch int) float64 {
	t := (s.channels[ch].servoThresh - s.cfg.ThreshOffset) / s.cfg.ThreshFrac
	return clamp(t, 4, 120)
}

// Step computes one servo update from a fast/slow/gated-slow scaler
// reading, returning the new per-channel trigger thresholds to write to
// hardware.
func (s *AuxiliaryServo) Step(fast, slow, gatedSlow [4]uint32) [4]float64 {
	var out [4]float64
	for ch := 0; ch < 4; ch++ {
		cs := &s.channels[ch]

		slowTerm := float64(slow[ch])
		if s.cfg.SubtractGated {
			slowTerm -= float64(gatedSlow[ch])
		}
		value := s.cfg.FastWeight*s.fastFactor*float64(fast[ch]) + s.cfg.SlowWeight*slowTerm

		e := value - s.cfg.ScalerGoals[ch]
		cs.sumErr = clamp(cs.sumErr+e, -s.cfg.MaxSumErr, s.cfg.MaxSumErr)
		delta := math.Round(s.cfg.P*e + s.cfg.I*cs.sumErr + s.cfg.D*(e-cs.prevErr))
		cs.prevErr = e

		delta = clamp(delta, -s.cfg.MaxThreshChange, s.cfg.MaxThreshChange)
		cs.servoThresh -= delta

		out[ch] = s.TriggerThresholdVolts(ch)
	}
	return out
}

// Package device declares the opaque hardware-device interfaces consumed
// by the acquire, monitor, and daemon packages. Concrete drivers for the
// primary and auxiliary digitizer boards are out of scope (design §1); a
// simdevice fake implements both interfaces for tests, mirroring the
// teacher's backend.Memory fake behind ublk's Backend interface.
package device

import (
	"time"

	"github.com/rno-g/rno-g-acq/internal/daq"
)

// FirmwareVersion identifies a device's firmware revision, used to derive
// the auxiliary servo's fast_factor (design §4.4).
type FirmwareVersion struct {
	Major uint8
	Minor uint8
	Rev   uint8
}

// Before reports whether v is strictly earlier than other.
func (v FirmwareVersion) Before(other FirmwareVersion) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Rev < other.Rev
}

// RadiantScalers is the primary board's per-channel scaler read, plus the
// PPS cycle counter used by the monitor thread's clock refinement.
type RadiantScalers struct {
	Counts   [24]uint32
	PPSCount uint32
}

// FlowerScalers is the auxiliary board's scaler read (design §3
// "fast"/"slow"/gated-slow windows).
type FlowerScalers struct {
	Fast       [4]uint32
	Slow       [4]uint32
	GatedSlow  [4]uint32
	CycleCount uint64
}

// TriggerGroupConfig configures one RF trigger coincidence group.
type TriggerGroupConfig struct {
	Enabled         bool
	ChannelMask     uint32
	Window          time.Duration
	NumCoincidences int
}

// Primary is the multi-channel waveform digitizer's command set (design
// Glossary "Primary device").
type Primary interface {
	// PollTriggerReady blocks up to timeout for a triggered event,
	// returning false on timeout (not an error).
	PollTriggerReady(timeout time.Duration) (ready bool, err error)

	// ReadEvent fills item's header and waveform fields for the event
	// that made PollTriggerReady return true.
	ReadEvent(item *daq.EventItem) error

	// ReadScalers returns the current per-channel scaler counts.
	ReadScalers() (RadiantScalers, error)

	// WriteThresholds pushes new per-channel thresholds (volts) to
	// hardware.
	WriteThresholds(thresholds [24]float64) error

	// StopLabs halts the analog sampling pipeline ahead of
	// reconfiguration.
	StopLabs() error

	// ApplyLab4Vbias sets the two LAB4 bias voltages.
	ApplyLab4Vbias(bias [2]float64) error

	// ApplyDiodeVbias sets per-channel diode bias voltages.
	ApplyDiodeVbias(bias [24]float64) error

	// ApplyAttenuations sets per-channel digitization and trigger-path
	// attenuation.
	ApplyAttenuations(digi, trig [24]float64) error

	// CapturePedestals triggers an internal pedestal-computation cycle
	// using nTriggers readouts and returns the resulting per-channel,
	// per-sample offsets.
	CapturePedestals(nTriggers int) ([][]float64, error)

	// ConfigureTriggerGroups applies the RF trigger group configuration.
	ConfigureTriggerGroups(groups [2]TriggerGroupConfig) error

	// SetSoftTriggerEnabled toggles whether software triggers are
	// accepted by the readout path.
	SetSoftTriggerEnabled(enabled bool) error

	// SetPPSEnabled toggles PPS-driven triggering/output.
	SetPPSEnabled(triggerEnabled, outputEnabled bool) error

	// SetExtTriggerEnabled toggles the external trigger input.
	SetExtTriggerEnabled(enabled bool) error

	// IssueSoftTrigger forces a software-triggered event.
	IssueSoftTrigger() error

	Close() error
}

// Auxiliary is the low-threshold trigger board's command set (design
// Glossary "Auxiliary device").
type Auxiliary interface {
	// ReadScalers returns the current fast/slow/gated scaler counts and
	// cycle counter.
	ReadScalers() (FlowerScalers, error)

	// WriteThresholds pushes new per-channel trigger thresholds to
	// hardware.
	WriteThresholds(thresholds [4]float64) error

	// FillHeaderFields populates the auxiliary portion of an event
	// header for an event read from the primary device.
	FillHeaderFields(item *daq.EventItem) error

	// FirmwareVersion returns the board's firmware revision, used once
	// to memoize the servo's fast_factor.
	FirmwareVersion() (FirmwareVersion, error)

	// SetGainCodes applies per-channel gain codes.
	SetGainCodes(codes [4]int) error

	Close() error
}

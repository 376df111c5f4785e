// Package simdevice provides software fakes of device.Primary and
// device.Auxiliary for tests, mirroring the teacher's backend.Memory fake
// standing in for a real ublk.Backend.
package simdevice

import (
	"sync"
	"time"

	"github.com/rno-g/rno-g-acq/internal/daq"
	"github.com/rno-g/rno-g-acq/internal/device"
)

// Primary is an in-memory fake of device.Primary. A test injects trigger
// readiness via Trigger(); PollTriggerReady consumes one pending trigger
// per call.
type Primary struct {
	mu sync.Mutex

	pending     int
	eventNumber uint64

	scalers    device.RadiantScalers
	thresholds [24]float64

	closed bool
}

// NewPrimary creates a fake primary device with zeroed scalers and
// thresholds.
func NewPrimary() *Primary {
	return &Primary{}
}

// Trigger queues n soft/RF trigger events for the next PollTriggerReady
// calls to observe, the acquire-thread test hook described by design §8
// scenario 1.
func (p *Primary) Trigger(n int) {
	p.mu.Lock()
	p.pending += n
	p.mu.Unlock()
}

func (p *Primary) PollTriggerReady(timeout time.Duration) (bool, error) {
	p.mu.Lock()
	if p.pending > 0 {
		p.pending--
		p.mu.Unlock()
		return true, nil
	}
	p.mu.Unlock()
	time.Sleep(timeout)
	return false, nil
}

func (p *Primary) ReadEvent(item *daq.EventItem) error {
	p.mu.Lock()
	p.eventNumber++
	n := p.eventNumber
	p.mu.Unlock()

	item.Header.EventNumber = n
	item.Header.ReadoutTime = time.Now()
	if cap(item.Waveform) == 0 {
		item.Waveform = make([]byte, 0, 1024)
	}
	item.Waveform = item.Waveform[:cap(item.Waveform)]
	return nil
}

func (p *Primary) ReadScalers() (device.RadiantScalers, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scalers, nil
}

// SetScalers lets a test fix the scaler values the next ReadScalers
// call(s) return.
func (p *Primary) SetScalers(s device.RadiantScalers) {
	p.mu.Lock()
	p.scalers = s
	p.mu.Unlock()
}

func (p *Primary) WriteThresholds(thresholds [24]float64) error {
	p.mu.Lock()
	p.thresholds = thresholds
	p.mu.Unlock()
	return nil
}

// Thresholds returns the thresholds most recently written, for test
// assertions.
func (p *Primary) Thresholds() [24]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.thresholds
}

func (p *Primary) StopLabs() error                               { return nil }
func (p *Primary) ApplyLab4Vbias(bias [2]float64) error           { return nil }
func (p *Primary) ApplyDiodeVbias(bias [24]float64) error         { return nil }
func (p *Primary) ApplyAttenuations(digi, trig [24]float64) error { return nil }

func (p *Primary) CapturePedestals(nTriggers int) ([][]float64, error) {
	out := make([][]float64, 24)
	for i := range out {
		out[i] = make([]float64, 2048)
	}
	return out, nil
}

func (p *Primary) ConfigureTriggerGroups(groups [2]device.TriggerGroupConfig) error { return nil }
func (p *Primary) SetSoftTriggerEnabled(enabled bool) error                        { return nil }
func (p *Primary) SetPPSEnabled(triggerEnabled, outputEnabled bool) error           { return nil }
func (p *Primary) SetExtTriggerEnabled(enabled bool) error                         { return nil }

func (p *Primary) IssueSoftTrigger() error {
	p.Trigger(1)
	return nil
}

func (p *Primary) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Closed reports whether Close was called, for teardown assertions.
func (p *Primary) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Auxiliary is an in-memory fake of device.Auxiliary.
type Auxiliary struct {
	mu sync.Mutex

	scalers    device.FlowerScalers
	thresholds [4]float64
	firmware   device.FirmwareVersion
	gainCodes  [4]int
	closed     bool
}

// NewAuxiliary creates a fake auxiliary device reporting the given
// firmware version (affects the auxiliary servo's fast_factor selection).
func NewAuxiliary(firmware device.FirmwareVersion) *Auxiliary {
	return &Auxiliary{firmware: firmware}
}

func (a *Auxiliary) ReadScalers() (device.FlowerScalers, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scalers, nil
}

// SetScalers lets a test fix the scaler values ReadScalers returns.
func (a *Auxiliary) SetScalers(s device.FlowerScalers) {
	a.mu.Lock()
	a.scalers = s
	a.mu.Unlock()
}

func (a *Auxiliary) WriteThresholds(thresholds [4]float64) error {
	a.mu.Lock()
	a.thresholds = thresholds
	a.mu.Unlock()
	return nil
}

// Thresholds returns the thresholds most recently written.
func (a *Auxiliary) Thresholds() [4]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thresholds
}

func (a *Auxiliary) FillHeaderFields(item *daq.EventItem) error { return nil }

func (a *Auxiliary) FirmwareVersion() (device.FirmwareVersion, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.firmware, nil
}

func (a *Auxiliary) SetGainCodes(codes [4]int) error {
	a.mu.Lock()
	a.gainCodes = codes
	a.mu.Unlock()
	return nil
}

func (a *Auxiliary) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (a *Auxiliary) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

var (
	_ device.Primary   = (*Primary)(nil)
	_ device.Auxiliary = (*Auxiliary)(nil)
)

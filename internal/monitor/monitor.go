package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rno-g/rno-g-acq/internal/daq"
	"github.com/rno-g/rno-g-acq/internal/daqconfig"
	"github.com/rno-g/rno-g-acq/internal/daqstatus"
	"github.com/rno-g/rno-g-acq/internal/device"
	"github.com/rno-g/rno-g-acq/internal/logging"
	"github.com/rno-g/rno-g-acq/internal/metrics"
	"github.com/rno-g/rno-g-acq/internal/ringqueue"
	"github.com/rno-g/rno-g-acq/internal/servo"
)

// Deps bundles the monitor thread's collaborators.
type Deps struct {
	ConfigMu *sync.RWMutex
	Config   *daqconfig.Store

	PrimaryMu *sync.RWMutex
	Primary   device.Primary

	AuxiliaryMu *sync.RWMutex
	Auxiliary   device.Auxiliary // nil if absent

	Status *daqstatus.Store
	Shared *daqstatus.SharedFile // may be nil

	StatusQueue *ringqueue.Queue[daq.StatusItem]

	PrimaryServo   *servo.PrimaryServo
	AuxiliaryServo *servo.AuxiliaryServo // nil if auxiliary absent

	Sweep *CalpulserSweep // nil if the calibration-pulser sweep is disabled

	SoftTrigger *SoftTriggerScheduler

	// Metrics collects scaler-read and threshold-write counts and
	// latency; nil disables collection.
	Metrics *metrics.Metrics

	Log *logging.Logger
}

// Cadences bundles the independently-configurable interval trackers
// (design §4.6: scaler-update and servo-update cadences per device, plus
// status-output cadence).
type Cadences struct {
	PrimaryScaler cadence
	PrimaryServo  cadence
	AuxScaler     cadence
	AuxServo      cadence
	StatusOutput  cadence
}

// NewCadences builds a Cadences from the configured interval durations.
func NewCadences(primaryScaler, primaryServo, auxScaler, auxServo, statusOutput time.Duration) *Cadences {
	return &Cadences{
		PrimaryScaler: newCadence(primaryScaler),
		PrimaryServo:  newCadence(primaryServo),
		AuxScaler:     newCadence(auxScaler),
		AuxServo:      newCadence(auxServo),
		StatusOutput:  newCadence(statusOutput),
	}
}

// runtimeState holds per-cycle values threaded between cadence steps that
// don't belong in the shared Deps (e.g. the most recent auxiliary scaler
// read, consumed by the auxiliary servo step on its own cadence).
type runtimeState struct {
	lastAuxScalers device.FlowerScalers
}

// Loop runs the monitor thread until quit is set (design §4.6).
func Loop(d Deps, c *Cadences, quit *atomic.Bool) {
	log := d.Log.With("monitor")
	var state runtimeState

	for !quit.Load() {
		now := time.Now()

		if c.PrimaryScaler.due(now) {
			runPrimaryScalerCycle(d, log)
		}
		if c.PrimaryServo.due(now) {
			runPrimaryServoCycle(d, log)
		}
		if d.Auxiliary != nil {
			if c.AuxScaler.due(now) {
				runAuxScalerCycle(d, &state, log)
			}
			if c.AuxServo.due(now) {
				runAuxServoCycle(d, &state)
			}
		}
		if c.StatusOutput.due(now) {
			publishStatus(d)
		}
		if d.Sweep != nil {
			d.Sweep.Advance(now)
		}
		if d.SoftTrigger != nil && d.SoftTrigger.Due(now) {
			issueSoftTrigger(d, log)
		}

		sleep := MaxSleep
		if d.SoftTrigger != nil {
			sleep = sleepDuration(d.SoftTrigger.TimeToNext(time.Now()))
		}
		time.Sleep(sleep)
	}
}

// runPrimaryScalerCycle reads the primary device's scalers twice,
// requiring agreement before accepting, per design §4.6.
func runPrimaryScalerCycle(d Deps, log *logging.Logger) {
	d.PrimaryMu.RLock()
	defer d.PrimaryMu.RUnlock()

	const maxRetries = 5
	for attempt := 0; attempt < maxRetries; attempt++ {
		start := time.Now()
		first, err := d.Primary.ReadScalers()
		if d.Metrics != nil {
			d.Metrics.RecordScalerRead(time.Since(start), err)
		}
		if err != nil {
			log.Error("primary scaler read failed", "error", err)
			return
		}
		start = time.Now()
		second, err := d.Primary.ReadScalers()
		if d.Metrics != nil {
			d.Metrics.RecordScalerRead(time.Since(start), err)
		}
		if err != nil {
			log.Error("primary scaler read failed", "error", err)
			return
		}
		if first.Counts == second.Counts {
			d.PrimaryServo.UpdateScalers(first.Counts)

			st := d.Status.Get()
			st.Radiant.Scalers = first.Counts
			st.Radiant.PPSCount = first.PPSCount
			d.Status.UpdateRadiant(st.Radiant)
			return
		}
		log.Warn("scaler read disagreement, retrying", "attempt", attempt)
	}
	log.Error("scaler read never agreed, giving up this cycle")
}

func runPrimaryServoCycle(d Deps, log *logging.Logger) {
	newThresholds := d.PrimaryServo.Step()

	d.PrimaryMu.RLock()
	start := time.Now()
	err := d.Primary.WriteThresholds(newThresholds)
	if d.Metrics != nil {
		d.Metrics.RecordThresholdWrite(time.Since(start), err)
	}
	d.PrimaryMu.RUnlock()
	if err != nil {
		log.Error("primary threshold write failed", "error", err)
		return
	}

	st := d.Status.Get()
	st.Radiant.Thresholds = newThresholds
	d.Status.UpdateRadiant(st.Radiant)
}

func runAuxScalerCycle(d Deps, state *runtimeState, log *logging.Logger) {
	d.AuxiliaryMu.RLock()
	scalers, err := d.Auxiliary.ReadScalers()
	d.AuxiliaryMu.RUnlock()
	if err != nil {
		log.Error("auxiliary scaler read failed", "error", err)
		return
	}

	state.lastAuxScalers = scalers

	st := d.Status.Get()
	st.Flower.FastScalers = scalers.Fast
	st.Flower.SlowScalers = scalers.Slow
	st.Flower.GatedSlowScalers = scalers.GatedSlow
	d.Status.UpdateFlower(st.Flower)

	if _, ok := RefinePPSClock(scalers.CycleCount); ok {
		// The refined estimate is not stored or forwarded; only the
		// in-range cycle count is logged.
		log.Debug("pps clock refined", "cycle_count", scalers.CycleCount)
	}
}

func runAuxServoCycle(d Deps, state *runtimeState) {
	scalers := state.lastAuxScalers
	newThresholds := d.AuxiliaryServo.Step(scalers.Fast, scalers.Slow, scalers.GatedSlow)

	d.AuxiliaryMu.RLock()
	_ = d.Auxiliary.WriteThresholds(newThresholds)
	d.AuxiliaryMu.RUnlock()

	st := d.Status.Get()
	st.Flower.Thresholds = newThresholds
	d.Status.UpdateFlower(st.Flower)
}

func publishStatus(d Deps) {
	st := d.Status.Get()
	slot := d.StatusQueue.GetWriteSlot()
	slot.Status = st
	d.StatusQueue.Commit()

	if d.Shared != nil {
		d.Shared.Write(st)
	}
}

func issueSoftTrigger(d Deps, log *logging.Logger) {
	d.PrimaryMu.RLock()
	defer d.PrimaryMu.RUnlock()
	if err := d.Primary.IssueSoftTrigger(); err != nil {
		log.Error("soft trigger failed", "error", err)
	}
}

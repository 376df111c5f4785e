// Package acquire implements the acquire thread (design §4.5): poll the
// primary device for a triggered event, claim a queue slot, fill it from
// both devices, stamp identifiers, and publish it to the writer.
package acquire

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rno-g/rno-g-acq/internal/arena"
	"github.com/rno-g/rno-g-acq/internal/daq"
	"github.com/rno-g/rno-g-acq/internal/daqconfig"
	"github.com/rno-g/rno-g-acq/internal/device"
	"github.com/rno-g/rno-g-acq/internal/logging"
	"github.com/rno-g/rno-g-acq/internal/metrics"
	"github.com/rno-g/rno-g-acq/internal/ringqueue"
)

// Deps bundles the shared, lock-guarded collaborators the acquire thread
// reads on every cycle (design §5: configuration, primary, and auxiliary
// locks held as reader in that order).
type Deps struct {
	ConfigMu *sync.RWMutex
	Config   *daqconfig.Store

	PrimaryMu *sync.RWMutex
	Primary   device.Primary

	AuxiliaryMu *sync.RWMutex
	Auxiliary   device.Auxiliary // nil if the auxiliary device is absent

	Queue *ringqueue.Queue[daq.EventItem]

	// WaveformArena hands out the fixed-size buffers event waveforms are
	// read into, bounding outstanding waveform memory to its slot count
	// regardless of queue depth (design §4.2). Nil falls back to letting
	// the device allocate its own waveform buffer per event.
	WaveformArena *arena.Arena

	// Metrics collects event-read counts, byte totals, and latency; nil
	// disables collection.
	Metrics *metrics.Metrics

	RunNumber uint32
	StationID uint16

	Log *logging.Logger
}

// Loop runs the acquire thread until quit is set, per the loop described
// in design §4.5. It is the exported entry point cmd/rno-g-acq's daemon
// setup starts as a goroutine.
func Loop(d Deps, quit *atomic.Bool) {
	log := d.Log.With("acquire")
	for !quit.Load() {
		d.ConfigMu.RLock()
		cfg := d.Config.Get()
		pollTimeout := time.Duration(cfg.Radiant.Readout.PollMS) * time.Millisecond
		d.ConfigMu.RUnlock()

		d.PrimaryMu.RLock()
		ready, err := d.Primary.PollTriggerReady(pollTimeout)
		if err != nil {
			d.PrimaryMu.RUnlock()
			log.Error("poll failed", "error", err)
			continue
		}
		if !ready {
			d.PrimaryMu.RUnlock()
			continue
		}

		slot := d.Queue.GetWriteSlot()
		slot.Reset()
		if d.WaveformArena != nil && slot.Waveform == nil {
			slot.Waveform = d.WaveformArena.GetSlice()[:0]
		}

		readStart := time.Now()
		err = d.Primary.ReadEvent(slot)
		if d.Metrics != nil {
			d.Metrics.RecordEventRead(uint64(len(slot.Waveform)), time.Since(readStart), err)
		}
		if err != nil {
			d.PrimaryMu.RUnlock()
			log.Error("read event failed", "error", err)
			d.Queue.Commit() // publish the zeroed slot rather than stall the ring
			continue
		}
		d.PrimaryMu.RUnlock()
		if d.Metrics != nil {
			d.Metrics.RecordQueueDepth(d.Queue.Occupancy())
		}

		if d.Auxiliary != nil {
			d.AuxiliaryMu.RLock()
			if err := d.Auxiliary.FillHeaderFields(slot); err != nil {
				log.Error("auxiliary header fill failed", "error", err)
			}
			d.AuxiliaryMu.RUnlock()
		}

		slot.Header.RunNumber = d.RunNumber
		slot.Header.StationID = d.StationID

		d.Queue.Commit()
	}
}

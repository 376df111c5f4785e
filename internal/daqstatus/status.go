// Package daqstatus holds the device-status record (design §3): a flat,
// fixed-size snapshot of scalers, thresholds, and calibration-pulser state
// shared between the monitor thread (the sole writer) and any reader,
// including other processes mapping the backing file read-only.
package daqstatus

import (
	"sync"
	"time"
)

// NumRadiantChannels mirrors daqconfig.NumRadiantChannels; duplicated here
// (rather than imported) to keep this package free of a dependency on the
// configuration tree, since other processes map the status file without
// linking the configuration package.
const NumRadiantChannels = 24

// NumFlowerChannels mirrors daqconfig.NumFlowerChannels.
const NumFlowerChannels = 4

// RadiantStatus is the primary board's scaler/threshold snapshot.
type RadiantStatus struct {
	Scalers    [NumRadiantChannels]uint32
	Thresholds [NumRadiantChannels]float64 // volts
	PPSCount   uint32
}

// FlowerStatus is the auxiliary board's scaler/threshold snapshot. Scalers
// are grouped by timebase per design §3: "fast" (~100 Hz), "slow" (~1 Hz),
// and a gated companion to the slow window.
type FlowerStatus struct {
	FastScalers     [NumFlowerChannels]uint32
	SlowScalers     [NumFlowerChannels]uint32
	GatedSlowScalers [NumFlowerChannels]uint32
	Thresholds      [NumFlowerChannels]float64 // volts, trigger-domain
	FirmwareMajor   uint8
	FirmwareMinor   uint8
	FirmwareRev     uint8
}

// CalpulserStatus records the calibration pulser's live state.
type CalpulserStatus struct {
	Enabled     bool
	Channel     int
	Attenuation float64
}

// Status is the full device-status record (design §3). It is copied by
// value into daq.StatusItem at the configured cadence, and separately
// mirrored into the shared-memory file by SharedFile.
type Status struct {
	StationID uint16
	Timestamp time.Time

	Radiant  RadiantStatus
	Flower   FlowerStatus
	Calpulser CalpulserStatus
}

// Store guards a live Status behind a reader/writer lock: the monitor
// thread is the sole writer; the writer thread and the HTTP responder
// take brief reader locks to snapshot (design §5 "Device-status lock").
type Store struct {
	mu  sync.RWMutex
	cur Status
}

// NewStore creates a Store seeded with a zero-value Status bearing the
// given station ID.
func NewStore(stationID uint16) *Store {
	return &Store{cur: Status{StationID: stationID}}
}

// Get returns a copy of the current status snapshot.
func (s *Store) Get() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update replaces the current status wholesale under the writer lock.
func (s *Store) Update(next Status) {
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
}

// UpdateRadiant replaces only the primary-board subtree, for the monitor
// thread's per-scaler-cycle updates.
func (s *Store) UpdateRadiant(r RadiantStatus) {
	s.mu.Lock()
	s.cur.Radiant = r
	s.cur.Timestamp = time.Now()
	s.mu.Unlock()
}

// UpdateFlower replaces only the auxiliary-board subtree.
func (s *Store) UpdateFlower(f FlowerStatus) {
	s.mu.Lock()
	s.cur.Flower = f
	s.cur.Timestamp = time.Now()
	s.mu.Unlock()
}

// UpdateCalpulser replaces only the calibration-pulser subtree.
func (s *Store) UpdateCalpulser(c CalpulserStatus) {
	s.mu.Lock()
	s.cur.Calpulser = c
	s.mu.Unlock()
}

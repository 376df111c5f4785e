// Package health holds the structured health snapshot published to the
// HTTP status responder (design §6 "Health endpoint"), distinct from
// daqstatus.Status: this tracks daemon/run liveness and host resource
// metrics, not device scalers.
package health

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rno-g/rno-g-acq/internal/daqerr"
)

// State is the daemon's coarse lifecycle state, included in the health
// record's "state" field.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// Record is the full health snapshot (design §6 field list).
type Record struct {
	State State `json:"state"`

	RunStart       time.Time `json:"run_start"`
	SysLastUpdated time.Time `json:"sys_last_updated"`
	EventLastUpdated time.Time `json:"event_last_updated"`

	CurrentRun      uint32 `json:"current_run"`
	NumEvents       uint64 `json:"num_events"`
	NumLastCycle    uint64 `json:"num_last_cycle"`
	LastCycleLength float64 `json:"last_cycle_length_seconds"`
	NumForceEvents  uint64 `json:"num_force_events"`

	FreeSpaceMB   float64 `json:"free_space_mb"`
	MemoryFreeMB  float64 `json:"memory_free_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`

	LoadAverage1  float64 `json:"load_average_1m"`
	LoadAverage5  float64 `json:"load_average_5m"`
	LoadAverage15 float64 `json:"load_average_15m"`

	ProcessCount int           `json:"process_count"`
	UptimeSeconds float64      `json:"uptime_seconds"`
}

// Store holds the live Record behind one lock, and its serialized JSON
// text behind a second ("health-status" vs "health-status-text" per
// design §5), so a concurrent JSON re-encode never blocks a writer of
// the structured record, and vice versa.
type Store struct {
	recMu sync.RWMutex
	rec   Record

	textMu sync.RWMutex
	text   []byte
}

// NewStore creates a Store with a zero-value Record in StateStarting.
func NewStore() *Store {
	s := &Store{rec: Record{State: StateStarting}}
	s.refreshText()
	return s
}

// Get returns a copy of the current structured record.
func (s *Store) Get() Record {
	s.recMu.RLock()
	defer s.recMu.RUnlock()
	return s.rec
}

// Update replaces the record wholesale and refreshes the cached JSON text.
func (s *Store) Update(rec Record) {
	s.recMu.Lock()
	s.rec = rec
	s.recMu.Unlock()
	s.refreshText()
}

// Mutate applies fn to the stored record in place under the record lock,
// then refreshes the cached text, for incremental updates (e.g. bumping
// NumEvents) without a read-modify-write race between callers.
func (s *Store) Mutate(fn func(*Record)) {
	s.recMu.Lock()
	fn(&s.rec)
	s.recMu.Unlock()
	s.refreshText()
}

func (s *Store) refreshText() {
	rec := s.Get()
	b, err := json.Marshal(rec)
	if err != nil {
		b = []byte(`{"error":"health record encode failed"}`)
	}
	s.textMu.Lock()
	s.text = b
	s.textMu.Unlock()
}

// Text returns the cached JSON encoding of the current record, the form
// served directly by the HTTP responder's default handler.
func (s *Store) Text() []byte {
	s.textMu.RLock()
	defer s.textMu.RUnlock()
	out := make([]byte, len(s.text))
	copy(out, s.text)
	return out
}

// WriteAtomic serializes the current record to path via a ".tmp" suffix
// and rename, matching the "every artifact atomically published" rule
// (design §9).
func (s *Store) WriteAtomic(path string) error {
	data := s.Text()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return daqerr.Wrap("health.WriteAtomic", daqerr.KindDeviceIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return daqerr.Wrap("health.WriteAtomic", daqerr.KindDeviceIO, err)
	}
	return nil
}

// Package writer implements the writer thread (design §4.7): drains both
// ring queues, rotates gzip-wrapped output files on byte/record/time
// caps, mirrors status into shared memory, and publishes the health
// record and process-supervisor heartbeat.
package writer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sys/unix"

	"github.com/rno-g/rno-g-acq/internal/arena"
	"github.com/rno-g/rno-g-acq/internal/daq"
	"github.com/rno-g/rno-g-acq/internal/daqconfig"
	"github.com/rno-g/rno-g-acq/internal/daqerr"
	"github.com/rno-g/rno-g-acq/internal/daqstatus"
	"github.com/rno-g/rno-g-acq/internal/health"
	"github.com/rno-g/rno-g-acq/internal/logging"
	"github.com/rno-g/rno-g-acq/internal/ringqueue"
)

// idleSleep is how long the writer naps when neither queue has anything
// to drain (design §4.7: "at most one event and one status item per
// cycle; sleep briefly if both were empty").
const idleSleep = 50 * time.Millisecond

// heartbeatInterval bounds how often SdNotify WATCHDOG=1 is sent, per
// design §9's "process supervisor heartbeat every <=10s".
const heartbeatInterval = 5 * time.Second

// Deps bundles the writer thread's collaborators: the two drain queues,
// the rotating output streams, the shared-status mirror, and the health
// publication path.
type Deps struct {
	ConfigMu *sync.RWMutex
	Config   *daqconfig.Store

	EventQueue  *ringqueue.Queue[daq.EventItem]
	StatusQueue *ringqueue.Queue[daq.StatusItem]

	// WaveformArena is the pool acquire's event waveform buffers were
	// carved from; the writer returns each slot once it has serialized
	// the waveform, closing the loop acquire started (design §4.2).
	WaveformArena *arena.Arena

	Status *daqstatus.Store
	Shared *daqstatus.SharedFile

	Health     *health.Store
	HealthPath string

	RunDir string

	Log *logging.Logger
}

// streams holds the per-kind RotatingStream instances, opened lazily the
// first time each kind has a record to write so a run that never
// produces one kind (e.g. no auxiliary header) doesn't create an empty
// file.
type streams struct {
	mu     sync.Mutex
	byExt  map[string]*RotatingStream
	dir    string
	limits RotationLimits
}

func newStreams(dir string, limits RotationLimits) *streams {
	return &streams{byExt: make(map[string]*RotatingStream), dir: dir, limits: limits}
}

// subdirFor maps a stream's file extension to its run-directory
// subdirectory (design §6 on-disk layout: waveforms/, header/, daqstatus/).
func subdirFor(ext string) string {
	switch ext {
	case ".wf.dat.gz":
		return "waveforms"
	case ".hd.dat.gz":
		return "header"
	case ".ds.dat.gz":
		return "daqstatus"
	default:
		return ""
	}
}

func (s *streams) forExt(ext string) *RotatingStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.byExt[ext]
	if !ok {
		rs = NewRotatingStream(filepath.Join(s.dir, subdirFor(ext)), ext, s.limits)
		s.byExt[ext] = rs
	}
	return rs
}

// write appends record to the stream for ext, appending any file that
// rotation just finalized to the run's file list under an advisory lock.
func (s *streams) write(ext string, record []byte, now time.Time) error {
	rs := s.forExt(ext)
	finalized, err := rs.Write(record, now)
	if err != nil {
		return err
	}
	if finalized != "" {
		s.appendFileList(finalized)
	}
	return nil
}

// closeAll finalizes every open stream, for teardown.
func (s *streams) closeAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var finalized []string
	for _, rs := range s.byExt {
		if final, err := rs.Close(); err == nil && final != "" {
			finalized = append(finalized, final)
			s.appendFileList(final)
		}
	}
	return finalized
}

// appendFileList records a finalized output path, relative to the run
// directory (e.g. "waveforms/000001.wf.dat.gz"), in the run's file-list
// manifest under an advisory exclusive lock (design §4.7 step 5: "append
// under advisory flock"; design §6 fixes the manifest at
// "aux/acq-file-list.txt"), since the status-serve or an external tailer
// may read the list concurrently.
func (s *streams) appendFileList(path string) {
	listPath := filepath.Join(s.dir, "aux", "acq-file-list.txt")
	f, err := os.OpenFile(listPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	rel, err := filepath.Rel(s.dir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	f.WriteString(rel + "\n")
}

// Loop runs the writer thread until quit is set. It drains at most one
// event item and one status item per cycle, writes each to its rotating
// stream, mirrors status into shared memory, and periodically publishes
// the health record and a watchdog heartbeat (design §4.7).
func Loop(d Deps, quit *atomic.Bool) {
	log := d.Log.With("writer")

	d.ConfigMu.RLock()
	cfg := d.Config.Get()
	d.ConfigMu.RUnlock()

	limits := RotationLimits{
		MaxBytes:   cfg.Output.MaxKBPerFile * 1024,
		MaxRecords: cfg.Output.MaxRecordsPerFile,
		MaxAge:     cfg.Output.MaxSecondsPerFile,
	}
	st := newStreams(d.RunDir, limits)

	printInterval := cfg.Output.PrintInterval
	lastPrint := time.Time{}
	lastHeartbeat := time.Time{}

	var numEvents uint64

	for !quit.Load() {
		now := time.Now()
		wrote := false

		if item, ok := drainEvent(d.EventQueue); ok {
			if err := writeEvent(st, item, now); err != nil {
				log.Error("event write failed", "error", err)
			} else {
				numEvents++
				wrote = true
			}
			if d.WaveformArena != nil {
				d.WaveformArena.FreeSlice(item.Waveform,
					func() { log.Error("waveform buffer did not belong to its arena") },
					func() { log.Error("waveform buffer freed twice") })
			}
		}

		if item, ok := drainStatus(d.StatusQueue); ok {
			if err := writeStatus(st, item, now); err != nil {
				log.Error("status write failed", "error", err)
			}
			d.Status.Update(item.Status)
			if d.Shared != nil {
				d.Shared.Write(item.Status)
				if err := d.Shared.Sync(); err != nil {
					log.Error("shared status sync failed", "error", err)
				}
			}
			wrote = true
		}

		if printInterval > 0 && now.Sub(lastPrint) >= printInterval {
			publishHealth(d, numEvents, log)
			lastPrint = now
		}

		if now.Sub(lastHeartbeat) >= heartbeatInterval {
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Debug("systemd watchdog notify failed", "error", err)
			}
			lastHeartbeat = now
		}

		if !wrote {
			time.Sleep(idleSleep)
		}
	}

	for _, final := range st.closeAll() {
		log.Info("finalized output file", "path", final)
	}
	d.Health.Mutate(func(r *health.Record) { r.State = health.StateStopped })
	publishHealth(d, numEvents, log)
}

func drainEvent(q *ringqueue.Queue[daq.EventItem]) (daq.EventItem, bool) {
	var item daq.EventItem
	ok := q.Pop(&item, nil, nil)
	return item, ok
}

func drainStatus(q *ringqueue.Queue[daq.StatusItem]) (daq.StatusItem, bool) {
	var item daq.StatusItem
	ok := q.Pop(&item, nil, nil)
	return item, ok
}

// writeEvent serializes the event header as JSON (the on-wire waveform
// format is out of scope per design §1) into the header stream, and the
// raw waveform bytes into the waveform stream.
func writeEvent(st *streams, item daq.EventItem, now time.Time) error {
	hdr, err := json.Marshal(item.Header)
	if err != nil {
		return daqerr.Wrap("writer.writeEvent", daqerr.KindDeviceIO, err)
	}
	if err := st.write(".hd.dat.gz", append(hdr, '\n'), now); err != nil {
		return err
	}
	return st.write(".wf.dat.gz", item.Waveform, now)
}

func writeStatus(st *streams, item daq.StatusItem, now time.Time) error {
	b, err := json.Marshal(item.Status)
	if err != nil {
		return daqerr.Wrap("writer.writeStatus", daqerr.KindDeviceIO, err)
	}
	return st.write(".ds.dat.gz", append(b, '\n'), now)
}

// publishHealth updates the cycle-local fields of the health record and
// atomically publishes both the in-memory text and the on-disk file, per
// design §9's "every artifact atomically published".
func publishHealth(d Deps, numEvents uint64, log *logging.Logger) {
	d.Health.Mutate(func(r *health.Record) {
		r.NumEvents = numEvents
		r.EventLastUpdated = time.Now()
		if r.State == health.StateStarting {
			r.State = health.StateRunning
		}
	})
	if d.HealthPath == "" {
		return
	}
	if err := d.Health.WriteAtomic(d.HealthPath); err != nil {
		log.Error("health publish failed", "error", err)
	}
}

// Package pedestal holds the per-channel DC-offset table subtracted from
// waveforms (design §3 "Pedestal record", Glossary "Pedestal"), optionally
// persisted to a memory-mapped file so a restart can reuse a prior
// capture instead of recomputing it.
package pedestal

import (
	"encoding/binary"
	"math"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/rno-g/rno-g-acq/internal/daqerr"
)

// Table is a per-channel, per-sample DC-offset table for one device.
// Samples indexes the digitizer's per-channel sample buffer (e.g. the
// primary board's 2048-sample LAB4 window).
type Table struct {
	mu       sync.RWMutex
	channels int
	samples  int
	offsets  [][]float64 // [channel][sample]
}

// New allocates a zeroed pedestal table for the given channel and
// per-channel sample counts.
func New(channels, samples int) *Table {
	offsets := make([][]float64, channels)
	for i := range offsets {
		offsets[i] = make([]float64, samples)
	}
	return &Table{channels: channels, samples: samples, offsets: offsets}
}

// Get returns the offset for a single (channel, sample) pair.
func (t *Table) Get(channel, sample int) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.offsets[channel][sample]
}

// SetChannel replaces an entire channel's offset row, e.g. after a
// pedestal computation cycle.
func (t *Table) SetChannel(channel int, row []float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	copy(t.offsets[channel], row)
}

// Subtract applies the pedestal table in place to a raw waveform sample
// slice for one channel.
func (t *Table) Subtract(channel int, waveform []float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row := t.offsets[channel]
	n := len(waveform)
	if n > len(row) {
		n = len(row)
	}
	for i := 0; i < n; i++ {
		waveform[i] -= row[i]
	}
}

// headerSize is the fixed prefix (channel count, sample count) before the
// flattened float64 offset data in a persisted pedestal file.
const headerSize = 8

// LoadOrNew mmaps path, reusing its contents as the initial table if the
// file already holds a table of the matching shape; otherwise it creates
// a fresh zeroed table backed by a newly sized mapping.
func LoadOrNew(path string, channels, samples int) (*Table, *Mapping, error) {
	size := int64(headerSize + channels*samples*8)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, daqerr.Wrap("pedestal.LoadOrNew", daqerr.KindDeviceIO, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, daqerr.Wrap("pedestal.LoadOrNew", daqerr.KindDeviceIO, err)
	}
	reuse := info.Size() == size

	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, nil, daqerr.Wrap("pedestal.LoadOrNew", daqerr.KindDeviceIO, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, daqerr.Wrap("pedestal.LoadOrNew", daqerr.KindDeviceIO, err)
	}

	table := New(channels, samples)
	m := &Mapping{f: f, data: data}

	if reuse {
		storedChannels := int(binary.LittleEndian.Uint32(data[0:4]))
		storedSamples := int(binary.LittleEndian.Uint32(data[4:8]))
		if storedChannels == channels && storedSamples == samples {
			off := headerSize
			for c := 0; c < channels; c++ {
				for s := 0; s < samples; s++ {
					table.offsets[c][s] = math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
					off += 8
				}
			}
		}
	}

	return table, m, nil
}

// Mapping is the live memory mapping backing a persisted Table, kept
// synchronized by Flush.
type Mapping struct {
	f    *os.File
	data []byte
}

// Flush writes table's current contents into the mapping and asynchronously
// syncs it to disk.
func (m *Mapping) Flush(table *Table) error {
	table.mu.RLock()
	defer table.mu.RUnlock()

	binary.LittleEndian.PutUint32(m.data[0:4], uint32(table.channels))
	binary.LittleEndian.PutUint32(m.data[4:8], uint32(table.samples))

	off := headerSize
	for c := 0; c < table.channels; c++ {
		for s := 0; s < table.samples; s++ {
			binary.LittleEndian.PutUint64(m.data[off:off+8], math.Float64bits(table.offsets[c][s]))
			off += 8
		}
	}
	return unix.Msync(m.data, unix.MS_ASYNC)
}

// Close unmaps and closes the backing file.
func (m *Mapping) Close() error {
	if err := unix.Munmap(m.data); err != nil {
		m.f.Close()
		return daqerr.Wrap("pedestal.Mapping.Close", daqerr.KindDeviceIO, err)
	}
	return m.f.Close()
}

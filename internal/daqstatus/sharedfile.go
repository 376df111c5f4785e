package daqstatus

import (
	"encoding/binary"
	"math"
	"os"

	"golang.org/x/sys/unix"

	"github.com/rno-g/rno-g-acq/internal/daqerr"
)

// recordSize is the fixed on-disk width of a serialized Status, sized
// generously around the field count so the mapping never needs to grow.
const recordSize = 512

// SharedFile mmaps a fixed-size backing file holding the live Status
// record, so external processes can map it read-only for liveness
// monitoring (design §6 "Shared status file"), grounded on the teacher's
// unix.Mmap usage in internal/uring/minimal.go.
type SharedFile struct {
	f    *os.File
	data []byte
}

// OpenSharedFile creates (if needed) and maps path as the shared-status
// backing file, sizing it to recordSize.
func OpenSharedFile(path string) (*SharedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, daqerr.Wrap("daqstatus.OpenSharedFile", daqerr.KindSharedStatus, err)
	}
	if err := f.Truncate(recordSize); err != nil {
		f.Close()
		return nil, daqerr.Wrap("daqstatus.OpenSharedFile", daqerr.KindSharedStatus, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, recordSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, daqerr.Wrap("daqstatus.OpenSharedFile", daqerr.KindSharedStatus, err)
	}

	return &SharedFile{f: f, data: data}, nil
}

// Close unmaps and closes the backing file.
func (s *SharedFile) Close() error {
	if err := unix.Munmap(s.data); err != nil {
		s.f.Close()
		return daqerr.Wrap("daqstatus.Close", daqerr.KindSharedStatus, err)
	}
	return s.f.Close()
}

// Write serializes st into the mapped region. Layout is a flat, fixed-
// offset encoding (not the device's opaque wire format, which is out of
// scope per design §1) sufficient for an external reader to recover the
// scaler/threshold snapshot without linking this package.
func (s *SharedFile) Write(st Status) {
	buf := s.data
	binary.LittleEndian.PutUint16(buf[0:2], st.StationID)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(st.Timestamp.Unix()))

	off := 16
	for i := 0; i < NumRadiantChannels; i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], st.Radiant.Scalers[i])
		off += 4
	}
	for i := 0; i < NumRadiantChannels; i++ {
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(st.Radiant.Thresholds[i]))
		off += 8
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], st.Radiant.PPSCount)
	off += 4

	for i := 0; i < NumFlowerChannels; i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], st.Flower.FastScalers[i])
		off += 4
	}
	for i := 0; i < NumFlowerChannels; i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], st.Flower.SlowScalers[i])
		off += 4
	}
	for i := 0; i < NumFlowerChannels; i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], st.Flower.GatedSlowScalers[i])
		off += 4
	}
	for i := 0; i < NumFlowerChannels; i++ {
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(st.Flower.Thresholds[i]))
		off += 8
	}
	buf[off] = st.Flower.FirmwareMajor
	buf[off+1] = st.Flower.FirmwareMinor
	buf[off+2] = st.Flower.FirmwareRev
}

// Sync flushes the mapped region to the backing file.
func (s *SharedFile) Sync() error {
	if err := unix.Msync(s.data, unix.MS_ASYNC); err != nil {
		return daqerr.Wrap("daqstatus.Sync", daqerr.KindSharedStatus, err)
	}
	return nil
}

// Package writer implements the writer thread (design §4.7): drains both
// ring queues, rotates gzip-wrapped output files on byte/record/time
// caps, mirrors status into shared memory, and publishes the health
// record and process-supervisor heartbeat.
package writer

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rno-g/rno-g-acq/internal/daqerr"
)

// RotationLimits bounds a single output file (design §4.7 step 5 and §8
// "Rotation boundaries": "first to trip wins").
type RotationLimits struct {
	MaxBytes   int64
	MaxRecords int
	MaxAge     time.Duration
}

// RotatingStream manages one gzip-wrapped output stream (waveforms,
// headers, or status records), opening a new ".tmp"-suffixed file when
// any rotation limit trips and atomically renaming the prior one on
// close.
type RotatingStream struct {
	dir    string
	ext    string // e.g. ".wf.dat.gz"
	limits RotationLimits

	seq int

	file      *os.File
	gz        *gzip.Writer
	written   int64
	records   int
	openedAt  time.Time
	curPath   string
	finalPath string
}

// NewRotatingStream creates a stream writing into dir with the given file
// extension (including its leading dot) and rotation limits.
func NewRotatingStream(dir, ext string, limits RotationLimits) *RotatingStream {
	return &RotatingStream{dir: dir, ext: ext, limits: limits}
}

// needsRotation reports whether the currently open file (if any) must be
// closed before the next record is written.
func (s *RotatingStream) needsRotation(now time.Time) bool {
	if s.file == nil {
		return true
	}
	if s.limits.MaxBytes > 0 && s.written >= s.limits.MaxBytes {
		return true
	}
	if s.limits.MaxRecords > 0 && s.records >= s.limits.MaxRecords {
		return true
	}
	if s.limits.MaxAge > 0 && now.Sub(s.openedAt) >= s.limits.MaxAge {
		return true
	}
	return false
}

// Write appends one record's bytes, rotating first if required. It
// returns the path of a file that was just finalized by this call, if
// rotation closed one (for the file-list append), or "" otherwise.
func (s *RotatingStream) Write(record []byte, now time.Time) (finalized string, err error) {
	if s.needsRotation(now) {
		finalized, err = s.rotate(now)
		if err != nil {
			return "", err
		}
	}

	n, err := s.gz.Write(record)
	if err != nil {
		return finalized, daqerr.Wrap("writer.RotatingStream.Write", daqerr.KindDeviceIO, err)
	}
	s.written += int64(n)
	s.records++
	return finalized, nil
}

func (s *RotatingStream) rotate(now time.Time) (string, error) {
	finalized, err := s.closeCurrent()
	if err != nil {
		return finalized, err
	}

	s.seq++
	name := fmt.Sprintf("%06d%s", s.seq, s.ext)
	s.curPath = filepath.Join(s.dir, name+".tmp")
	s.finalPath = filepath.Join(s.dir, name)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return finalized, daqerr.Wrap("writer.RotatingStream.rotate", daqerr.KindDeviceIO, err)
	}

	f, err := os.Create(s.curPath)
	if err != nil {
		return finalized, daqerr.Wrap("writer.RotatingStream.rotate", daqerr.KindDeviceIO, err)
	}
	s.file = f
	s.gz = gzip.NewWriter(f)
	s.written = 0
	s.records = 0
	s.openedAt = now
	return finalized, nil
}

// closeCurrent finalizes the currently open file (if any), returning its
// final (post-rename) path.
func (s *RotatingStream) closeCurrent() (string, error) {
	if s.file == nil {
		return "", nil
	}
	if err := s.gz.Close(); err != nil {
		s.file.Close()
		return "", daqerr.Wrap("writer.RotatingStream.closeCurrent", daqerr.KindDeviceIO, err)
	}
	if err := s.file.Close(); err != nil {
		return "", daqerr.Wrap("writer.RotatingStream.closeCurrent", daqerr.KindDeviceIO, err)
	}

	final := s.finalPath
	if err := renameAcrossFilesystems(s.curPath, final); err != nil {
		return "", err
	}

	s.file = nil
	s.gz = nil
	return final, nil
}

// Close finalizes any open file.
func (s *RotatingStream) Close() (string, error) {
	return s.closeCurrent()
}

// renameAcrossFilesystems renames oldpath to newpath, falling back to a
// stream copy and unlink if the rename fails because the paths span
// filesystems (design §7: "Cross-filesystem rename at teardown").
func renameAcrossFilesystems(oldpath, newpath string) error {
	err := os.Rename(oldpath, newpath)
	if err == nil {
		return nil
	}

	in, openErr := os.Open(oldpath)
	if openErr != nil {
		return daqerr.Wrap("writer.renameAcrossFilesystems", daqerr.KindRename, err)
	}
	defer in.Close()

	out, createErr := os.Create(newpath)
	if createErr != nil {
		return daqerr.Wrap("writer.renameAcrossFilesystems", daqerr.KindRename, createErr)
	}
	defer out.Close()

	buf := make([]byte, 64*1024)
	for {
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return daqerr.Wrap("writer.renameAcrossFilesystems", daqerr.KindRename, writeErr)
			}
		}
		if readErr != nil {
			break
		}
	}

	if err := os.Remove(oldpath); err != nil {
		return daqerr.Wrap("writer.renameAcrossFilesystems", daqerr.KindRename, err)
	}
	return nil
}

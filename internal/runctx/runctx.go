// Package runctx derives the run number and its output directory (design
// §3 "Run context"), loading and incrementing the run number atomically
// via a temp-file-then-rename write, matching the atomic-publish
// discipline used throughout the writer thread.
package runctx

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rno-g/rno-g-acq/internal/daqerr"
)

// LoadAndIncrement reads the next run number from path (treating a
// missing or empty file as run 0), writes number+1 back to path via a
// ".tmp" suffix and rename, and returns the number that should be used
// for the run that's about to start.
func LoadAndIncrement(path string) (uint32, error) {
	cur, err := readRunNumber(path)
	if err != nil {
		return 0, err
	}

	next := cur + 1
	if err := writeRunNumber(path, next); err != nil {
		return 0, err
	}
	return cur, nil
}

func readRunNumber(path string) (uint32, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, daqerr.Wrap("runctx.readRunNumber", daqerr.KindRunfile, err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, daqerr.Wrap("runctx.readRunNumber", daqerr.KindRunfile, err)
	}
	return uint32(n), nil
}

func writeRunNumber(path string, n uint32) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(uint64(n), 10)), 0o644); err != nil {
		return daqerr.Wrap("runctx.writeRunNumber", daqerr.KindRunfile, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return daqerr.Wrap("runctx.writeRunNumber", daqerr.KindRunfile, err)
	}
	return nil
}

// OutputDir deterministically derives a run's output directory from the
// base directory and run number: "<base>/run<N>".
func OutputDir(baseDir string, runNumber uint32) string {
	return filepath.Join(baseDir, fmt.Sprintf("run%d", runNumber))
}

// ReserveOutputDir returns a run number at or above the requested one
// whose output directory does not already exist, incrementing until a
// free path is found, unless allowOverwrite is set (design §3 invariant
// "Output-directory filenames never collide across runs").
func ReserveOutputDir(baseDir string, runNumber uint32, allowOverwrite bool) (uint32, string) {
	for {
		dir := OutputDir(baseDir, runNumber)
		if allowOverwrite {
			return runNumber, dir
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return runNumber, dir
		}
		runNumber++
	}
}

// Subdirs are the fixed per-run subdirectory names (design §6 on-disk
// layout).
var Subdirs = []string{"waveforms", "header", "daqstatus", "cfg", "aux"}

// MakeTree creates dir and all its fixed subdirectories.
func MakeTree(dir string) error {
	for _, sub := range append([]string{""}, Subdirs...) {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return daqerr.Wrap("runctx.MakeTree", daqerr.KindRunfile, err)
		}
	}
	return nil
}

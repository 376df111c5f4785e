package daqconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/rno-g/rno-g-acq/internal/daqerr"
)

// onceLogger is the minimal logging surface ConsumeOnceDir needs, narrow
// enough that callers can pass a *logging.Logger or any adapter.
type onceLogger interface {
	Info(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// searchPath lists the directories consulted, in order, when a bare
// filename (not an absolute or relative path) is given to Find. The first
// match wins, mirroring ice-common.c's find_config.
func searchPath(installDir string) []string {
	wd, _ := os.Getwd()
	return []string{
		wd,
		filepath.Join(installDir, "cfg"),
		"/rno-g/cfg",
	}
}

// Find resolves name to a config file path. If name is already absolute or
// contains a path separator, it is used as given (after an existence
// check). Otherwise it is searched for along searchPath.
func Find(name, installDir string) (string, error) {
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		if _, err := os.Stat(name); err != nil {
			return "", daqerr.Wrap("daqconfig.Find", daqerr.KindConfigMissing, err)
		}
		return name, nil
	}

	for _, dir := range searchPath(installDir) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", daqerr.New("daqconfig.Find", daqerr.KindConfigMissing,
		fmt.Sprintf("%q not found on search path", name))
}

// Load reads path as a TOML overlay atop Default(), returning the merged
// configuration. A missing file is not an error: Default() alone is
// returned, matching the acquisition daemon's "run with defaults if no
// config present" behavior.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, daqerr.Wrap("daqconfig.Load", daqerr.KindConfigParse, err)
	}
	return cfg, nil
}

// ConsumeOnceDir looks for the one-time configuration directory onceDir
// (a "<name>.once" directory) and, if present, overlays every *.cfg file inside it onto cfg in lexical order,
// then renames each consumed file to "<file>.used" (or
// "<file>.used.<n>" if that name is already taken), so a one-time
// configuration change is applied exactly once across daemon restarts.
func ConsumeOnceDir(cfg *Config, onceDir string, log onceLogger) error {
	entries, err := os.ReadDir(onceDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return daqerr.Wrap("daqconfig.ConsumeOnceDir", daqerr.KindConfigMissing, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".cfg") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		full := filepath.Join(onceDir, name)
		if _, err := toml.DecodeFile(full, cfg); err != nil {
			log.Error("once-config decode failed", "path", full, "error", err)
			continue
		}
		if err := archiveUsed(full); err != nil {
			log.Error("once-config archive failed", "path", full, "error", err)
		} else {
			log.Info("consumed one-time config", "path", full)
		}
	}
	return nil
}

// archiveUsed renames path to path+".used", or path+".used.N" for the
// smallest N that does not already exist, so repeated runs never collide.
func archiveUsed(path string) error {
	dest := path + ".used"
	if _, err := os.Stat(dest); err == nil {
		for n := 1; ; n++ {
			candidate := fmt.Sprintf("%s.used.%d", path, n)
			if _, err := os.Stat(candidate); os.IsNotExist(err) {
				dest = candidate
				break
			}
		}
	}
	return os.Rename(path, dest)
}

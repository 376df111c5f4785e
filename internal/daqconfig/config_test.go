package daqconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rno-g/rno-g-acq/internal/daqerr"
)

func TestDefaultIsSane(t *testing.T) {
	cfg := Default()
	require.Greater(t, cfg.Output.MaxKBPerFile, int64(0))
	require.Equal(t, NumRadiantChannels, len(cfg.Radiant.Thresholds.Initial))
	require.Equal(t, NumFlowerChannels, len(cfg.Flower.Trigger.Thresholds))
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.cfg"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acq.cfg")
	require.NoError(t, os.WriteFile(path, []byte(`
[output]
base_dir = "/tmp/data"
max_kB_per_file = 999

[radiant.servo]
enable = true
p = 0.5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/data", cfg.Output.BaseDir)
	require.Equal(t, int64(999), cfg.Output.MaxKBPerFile)
	require.True(t, cfg.Radiant.Servo.Enable)
	require.Equal(t, 0.5, cfg.Radiant.Servo.P)

	require.Equal(t, Default().Output.MinFreeMB, cfg.Output.MinFreeMB)
}

func TestLoadParseErrorIsDaqerr(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.cfg")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid toml"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.True(t, daqerr.IsKind(err, daqerr.KindConfigParse))
}

func TestFindSearchesInstallDirCfg(t *testing.T) {
	installDir := t.TempDir()
	cfgDir := filepath.Join(installDir, "cfg")
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	target := filepath.Join(cfgDir, "acq.cfg")
	require.NoError(t, os.WriteFile(target, []byte(""), 0o644))

	found, err := Find("acq.cfg", installDir)
	require.NoError(t, err)
	require.Equal(t, target, found)
}

func TestFindAbsolutePathChecksExistence(t *testing.T) {
	_, err := Find(filepath.Join(t.TempDir(), "missing.cfg"), "")
	require.Error(t, err)
}

func TestConsumeOnceDirAppliesAndArchives(t *testing.T) {
	dir := t.TempDir()
	onceDir := dir + ".once"
	require.NoError(t, os.MkdirAll(onceDir, 0o755))
	oncePath := filepath.Join(onceDir, "001-threshold-bump.cfg")
	require.NoError(t, os.WriteFile(oncePath, []byte(`
[radiant.thresholds]
max = 3.3
`), 0o644))

	cfg := Default()
	err := ConsumeOnceDir(cfg, onceDir, noopLogger{})
	require.NoError(t, err)
	require.Equal(t, 3.3, cfg.Radiant.Thresholds.Max)

	_, statErr := os.Stat(oncePath)
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(oncePath + ".used")
	require.NoError(t, statErr)
}

func TestConsumeOnceDirSecondArchiveGetsSuffix(t *testing.T) {
	dir := t.TempDir()
	onceDir := dir + ".once"
	require.NoError(t, os.MkdirAll(onceDir, 0o755))
	oncePath := filepath.Join(onceDir, "001-bump.cfg")
	require.NoError(t, os.WriteFile(oncePath, []byte(""), 0o644))
	require.NoError(t, os.WriteFile(oncePath+".used", []byte("already here"), 0o644))

	cfg := Default()
	require.NoError(t, ConsumeOnceDir(cfg, onceDir, noopLogger{}))

	_, err := os.Stat(oncePath + ".used.1")
	require.NoError(t, err)
}

func TestConsumeOnceDirMissingIsNotError(t *testing.T) {
	cfg := Default()
	require.NoError(t, ConsumeOnceDir(cfg, filepath.Join(t.TempDir(), "nope.once"), noopLogger{}))
}

func TestStoreReloadDumpsNumberedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acq.cfg")
	require.NoError(t, os.WriteFile(path, []byte(`
[radiant.thresholds]
max = 3.0
`), 0o644))

	dumpDir := filepath.Join(dir, "cfg")
	cfg, err := Load(path)
	require.NoError(t, err)
	store := NewStore(cfg, path, dir, dumpDir)

	require.NoError(t, os.WriteFile(path, []byte(`
[radiant.thresholds]
max = 4.5
`), 0o644))

	result, err := store.Reload(noopLogger{})
	require.NoError(t, err)
	require.True(t, result.RadiantChanged)
	require.Equal(t, 4.5, store.Get().Radiant.Thresholds.Max)

	entries, err := os.ReadDir(dumpDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestStoreReloadNoChangeReportsUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acq.cfg")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	store := NewStore(cfg, path, dir, "")

	result, err := store.Reload(noopLogger{})
	require.NoError(t, err)
	require.False(t, result.RadiantChanged)
	require.False(t, result.FlowerChanged)
	require.False(t, result.CalpulserChanged)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"

	"github.com/rno-g/rno-g-acq/internal/daqconfig"
	"github.com/rno-g/rno-g-acq/internal/device"
	"github.com/rno-g/rno-g-acq/internal/device/simdevice"
	"github.com/rno-g/rno-g-acq/internal/logging"
)

// writeConfig encodes daqconfig.Default(), mutated by fn, as TOML to a
// fresh temp file and returns its path, for tests that need Setup to load
// a non-default configuration.
func writeConfig(t *testing.T, fn func(c *daqconfig.Config)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acq.cfg")
	cfg := daqconfig.Default()
	fn(cfg)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, toml.NewEncoder(f).Encode(cfg))
	return path
}

func TestQuietStartupOneEventCleanShutdown(t *testing.T) {
	outDir := t.TempDir()

	primary := simdevice.NewPrimary()

	configPath := writeConfig(t, func(c *daqconfig.Config) {
		c.Output.BaseDir = outDir
		c.Output.PrintInterval = 0
		c.Output.AllowOverwrite = true
		c.Runtime.AcqBufSize = 4
		c.Runtime.StatusBufSize = 4
		c.Runtime.RunfilePath = filepath.Join(outDir, "runfile")
		c.Runtime.StationFile = filepath.Join(outDir, "station")
		c.Runtime.SharedStatusPath = ""
		c.Radiant.Trigger.Soft.Enabled = false
		c.Radiant.Trigger.RF[0].Enabled = false
		c.Radiant.Trigger.RF[1].Enabled = false
		c.Radiant.Analog.SettleTime = 0
		c.Radiant.Readout.PollMS = 20
	})

	d := Deps{
		ConfigPath: configPath,
		OpenPrimary: func() (device.Primary, error) {
			return primary, nil
		},
		Log: logging.Discard(),
	}

	var quit, reread atomic.Bool
	done := make(chan error, 1)
	go func() { done <- Run(d, &quit, &reread) }()

	time.Sleep(50 * time.Millisecond)
	primary.Trigger(1)

	require.Eventually(t, func() bool {
		entries, _ := os.ReadDir(filepath.Join(outDir, "run0", "waveforms"))
		return len(entries) > 0
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	quit.Store(true)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}

	runDir := filepath.Join(outDir, "run0")
	require.FileExists(t, filepath.Join(runDir, "run_info.txt"))

	waveforms, err := os.ReadDir(filepath.Join(runDir, "waveforms"))
	require.NoError(t, err)
	require.Len(t, waveforms, 1)

	headers, err := os.ReadDir(filepath.Join(runDir, "header"))
	require.NoError(t, err)
	require.Len(t, headers, 1)
	require.Equal(t, strings.TrimSuffix(waveforms[0].Name(), ".wf.dat.gz"),
		strings.TrimSuffix(headers[0].Name(), ".hd.dat.gz"))

	require.FileExists(t, filepath.Join(runDir, "cfg", "acq.cfg"))
	require.FileExists(t, filepath.Join(runDir, "aux", "acq-file-list.txt"))

	require.True(t, primary.Closed())
}

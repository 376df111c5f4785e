package writer

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rno-g/rno-g-acq/internal/daq"
	"github.com/rno-g/rno-g-acq/internal/daqconfig"
	"github.com/rno-g/rno-g-acq/internal/daqstatus"
	"github.com/rno-g/rno-g-acq/internal/health"
	"github.com/rno-g/rno-g-acq/internal/logging"
	"github.com/rno-g/rno-g-acq/internal/ringqueue"
)

func newTestDeps(t *testing.T) (Deps, string) {
	t.Helper()
	dir := t.TempDir()

	cfg := daqconfig.Default()
	cfg.Output.MaxRecordsPerFile = 2
	store := daqconfig.NewStore(cfg, "", "", "")
	var cfgMu sync.RWMutex

	return Deps{
		ConfigMu:    &cfgMu,
		Config:      store,
		EventQueue:  ringqueue.New[daq.EventItem](4),
		StatusQueue: ringqueue.New[daq.StatusItem](4),
		Status:      daqstatus.NewStore(1),
		Health:      health.NewStore(),
		HealthPath:  filepath.Join(dir, "health.json"),
		RunDir:      dir,
		Log:         logging.Discard(),
	}, dir
}

func TestLoopDrainsEventAndWritesFiles(t *testing.T) {
	d, dir := newTestDeps(t)

	slot := d.EventQueue.GetWriteSlot()
	slot.Reset()
	slot.Header.EventNumber = 1
	slot.Waveform = []byte{1, 2, 3, 4}
	d.EventQueue.Commit()

	var quit atomic.Bool
	done := make(chan struct{})
	go func() {
		Loop(d, &quit)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return d.EventQueue.Occupancy() == 0
	}, time.Second, 5*time.Millisecond)

	quit.Store(true)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer loop did not exit")
	}

	waveforms, err := os.ReadDir(filepath.Join(dir, "waveforms"))
	require.NoError(t, err)
	require.Len(t, waveforms, 1)
	require.Contains(t, waveforms[0].Name(), ".wf.dat.gz")
	require.NotContains(t, waveforms[0].Name(), ".tmp")

	headers, err := os.ReadDir(filepath.Join(dir, "header"))
	require.NoError(t, err)
	require.Len(t, headers, 1)
	require.Contains(t, headers[0].Name(), ".hd.dat.gz")
	require.NotContains(t, headers[0].Name(), ".tmp")
}

func TestLoopMirrorsStatusAndPublishesHealth(t *testing.T) {
	d, _ := newTestDeps(t)

	slot := d.StatusQueue.GetWriteSlot()
	slot.Status = daqstatus.Status{StationID: 7}
	d.StatusQueue.Commit()

	var quit atomic.Bool
	done := make(chan struct{})
	go func() {
		Loop(d, &quit)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return d.Status.Get().StationID == 7
	}, time.Second, 5*time.Millisecond)

	quit.Store(true)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer loop did not exit")
	}

	data, err := os.ReadFile(d.HealthPath)
	require.NoError(t, err)
	require.Contains(t, string(data), `"state":"stopped"`)
}

func TestAppendFileListIsNewlineDelimited(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "aux"), 0o755))
	s := newStreams(dir, RotationLimits{})

	s.appendFileList(filepath.Join(dir, "waveforms", "a.wf.dat.gz"))
	s.appendFileList(filepath.Join(dir, "waveforms", "b.wf.dat.gz"))

	data, err := os.ReadFile(filepath.Join(dir, "aux", "acq-file-list.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Equal(t, []string{
		filepath.Join("waveforms", "a.wf.dat.gz"),
		filepath.Join("waveforms", "b.wf.dat.gz"),
	}, lines)
}

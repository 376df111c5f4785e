package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordEventReadTracksCountsAndBytes(t *testing.T) {
	m := New()
	m.RecordEventRead(1024, time.Millisecond, nil)
	m.RecordEventRead(0, time.Millisecond, errors.New("boom"))

	snap := m.Snapshot()
	require.EqualValues(t, 2, snap.EventReads)
	require.EqualValues(t, 1, snap.EventReadErrors)
	require.EqualValues(t, 1024, snap.WaveformBytes)
}

func TestRecordQueueDepthTracksMax(t *testing.T) {
	m := New()
	m.RecordQueueDepth(1)
	m.RecordQueueDepth(5)
	m.RecordQueueDepth(3)

	snap := m.Snapshot()
	require.EqualValues(t, 5, snap.MaxQueueDepth)
	require.InDelta(t, 3.0, snap.AvgQueueDepth, 0.01)
}

func TestSnapshotComputesLatencyPercentiles(t *testing.T) {
	m := New()
	for i := 0; i < 100; i++ {
		m.RecordScalerRead(500*time.Microsecond, nil)
	}
	for i := 0; i < 5; i++ {
		m.RecordScalerRead(2*time.Second, nil)
	}

	snap := m.Snapshot()
	require.EqualValues(t, 105, snap.ScalerReads)
	require.Greater(t, snap.LatencyP50Ns, uint64(0))
	require.LessOrEqual(t, snap.LatencyP50Ns, snap.LatencyP99Ns)
}

func TestErrorRateReflectsFailedOperations(t *testing.T) {
	m := New()
	m.RecordThresholdWrite(time.Microsecond, nil)
	m.RecordThresholdWrite(time.Microsecond, errors.New("write failed"))

	snap := m.Snapshot()
	require.InDelta(t, 50.0, snap.ErrorRate, 0.01)
}

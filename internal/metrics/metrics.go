// Package metrics accumulates operational counters and a latency
// histogram for the devices the acquire and monitor threads drive,
// adapted from the teacher's block-device I/O metrics for event reads,
// scaler reads, and threshold writes instead of block reads/writes.
package metrics

import (
	"sync/atomic"
	"time"
)

// latencyBuckets are the histogram boundaries in nanoseconds, covering
// 1us to 10s with logarithmic spacing — wide enough to span both a
// fast scaler read and a stalled device poll.
var latencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numBuckets = 8

// Metrics tracks per-operation counts, byte totals, errors, and latency
// for the three device operations the acquire and monitor threads
// perform repeatedly: event reads, scaler reads, and threshold writes.
type Metrics struct {
	EventReads      atomic.Uint64
	ScalerReads     atomic.Uint64
	ThresholdWrites atomic.Uint64

	WaveformBytes atomic.Uint64

	EventReadErrors      atomic.Uint64
	ScalerReadErrors     atomic.Uint64
	ThresholdWriteErrors atomic.Uint64

	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numBuckets]atomic.Uint64

	StartTime atomic.Int64
}

// New creates a Metrics instance, stamping StartTime for uptime-derived
// rates in Snapshot.
func New() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordEventRead records one acquire-thread device read.
func (m *Metrics) RecordEventRead(waveformBytes uint64, latency time.Duration, err error) {
	m.EventReads.Add(1)
	if err != nil {
		m.EventReadErrors.Add(1)
	} else {
		m.WaveformBytes.Add(waveformBytes)
	}
	m.recordLatency(uint64(latency.Nanoseconds()))
}

// RecordScalerRead records one monitor-thread scaler poll.
func (m *Metrics) RecordScalerRead(latency time.Duration, err error) {
	m.ScalerReads.Add(1)
	if err != nil {
		m.ScalerReadErrors.Add(1)
	}
	m.recordLatency(uint64(latency.Nanoseconds()))
}

// RecordThresholdWrite records one monitor-thread servo threshold push.
func (m *Metrics) RecordThresholdWrite(latency time.Duration, err error) {
	m.ThresholdWrites.Add(1)
	if err != nil {
		m.ThresholdWriteErrors.Add(1)
	}
	m.recordLatency(uint64(latency.Nanoseconds()))
}

// RecordQueueDepth samples the event queue's current occupancy.
func (m *Metrics) RecordQueueDepth(depth int) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)
	for {
		current := m.MaxQueueDepth.Load()
		if depth <= int(current) {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, uint32(depth)) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range latencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Snapshot is a point-in-time, plain-value view of Metrics, suitable for
// JSON serialization by the status-serve metrics handler.
type Snapshot struct {
	EventReads      uint64 `json:"event_reads"`
	ScalerReads     uint64 `json:"scaler_reads"`
	ThresholdWrites uint64 `json:"threshold_writes"`

	WaveformBytes uint64 `json:"waveform_bytes"`

	EventReadErrors      uint64 `json:"event_read_errors"`
	ScalerReadErrors     uint64 `json:"scaler_read_errors"`
	ThresholdWriteErrors uint64 `json:"threshold_write_errors"`

	AvgQueueDepth float64 `json:"avg_queue_depth"`
	MaxQueueDepth uint32  `json:"max_queue_depth"`

	AvgLatencyNs uint64 `json:"avg_latency_ns"`
	UptimeNs     uint64 `json:"uptime_ns"`

	LatencyP50Ns uint64 `json:"latency_p50_ns"`
	LatencyP99Ns uint64 `json:"latency_p99_ns"`

	ErrorRate float64 `json:"error_rate_pct"`
}

// Snapshot computes derived rates and percentiles from the live counters.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		EventReads:           m.EventReads.Load(),
		ScalerReads:          m.ScalerReads.Load(),
		ThresholdWrites:      m.ThresholdWrites.Load(),
		WaveformBytes:        m.WaveformBytes.Load(),
		EventReadErrors:      m.EventReadErrors.Load(),
		ScalerReadErrors:     m.ScalerReadErrors.Load(),
		ThresholdWriteErrors: m.ThresholdWriteErrors.Load(),
		MaxQueueDepth:        m.MaxQueueDepth.Load(),
	}

	if count := m.QueueDepthCount.Load(); count > 0 {
		s.AvgQueueDepth = float64(m.QueueDepthTotal.Load()) / float64(count)
	}

	opCount := m.OpCount.Load()
	if opCount > 0 {
		s.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
		s.LatencyP50Ns = m.percentile(0.50)
		s.LatencyP99Ns = m.percentile(0.99)
	}

	s.UptimeNs = uint64(time.Now().UnixNano() - m.StartTime.Load())

	totalOps := s.EventReads + s.ScalerReads + s.ThresholdWrites
	totalErrors := s.EventReadErrors + s.ScalerReadErrors + s.ThresholdWriteErrors
	if totalOps > 0 {
		s.ErrorRate = float64(totalErrors) / float64(totalOps) * 100.0
	}

	return s
}

// percentile estimates the latency at the given percentile (0.0-1.0) by
// linear interpolation between histogram buckets.
func (m *Metrics) percentile(p float64) uint64 {
	total := m.OpCount.Load()
	if total == 0 {
		return 0
	}
	target := uint64(float64(total) * p)

	prevBucket := uint64(0)
	for i, bucket := range latencyBuckets {
		count := m.LatencyBuckets[i].Load()
		if count >= target {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if count == prevCount {
				return bucket
			}
			fraction := float64(target-prevCount) / float64(count-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return latencyBuckets[numBuckets-1]
}

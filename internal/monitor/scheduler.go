// Package monitor implements the monitor thread (design §4.6): scaler and
// servo cadences for both devices, status snapshotting, calpulser sweep
// advancement, and the soft-trigger generator.
package monitor

import (
	"math"
	"math/rand"
	"time"
)

// cadence tracks a single named interval's last-fired time, so Loop can
// decide each cycle whether that work is due.
type cadence struct {
	interval time.Duration
	last     time.Time
}

func newCadence(interval time.Duration) cadence {
	return cadence{interval: interval}
}

// due reports whether interval has elapsed since last, given now, and if
// so advances last to now.
func (c *cadence) due(now time.Time) bool {
	if c.interval <= 0 {
		return false
	}
	if now.Sub(c.last) < c.interval {
		return false
	}
	c.last = now
	return true
}

// SoftTriggerScheduler produces the timestamps at which the monitor
// thread should issue a software trigger (design §4.6 and §9: uniform
// with optional jitter, or exponential inter-arrival).
type SoftTriggerScheduler struct {
	enabled     bool
	useExp      bool
	interval    time.Duration
	jitter      time.Duration
	rng         *rand.Rand
	nextTrigger time.Time
}

// NewSoftTriggerScheduler builds a scheduler seeded deterministically from
// seed (design §9: "seed deterministically in tests").
func NewSoftTriggerScheduler(enabled, useExp bool, interval, jitter time.Duration, seed int64, start time.Time) *SoftTriggerScheduler {
	s := &SoftTriggerScheduler{
		enabled:  enabled,
		useExp:   useExp,
		interval: interval,
		jitter:   jitter,
		rng:      rand.New(rand.NewSource(seed)),
	}
	if enabled {
		s.nextTrigger = start.Add(s.drawInterval())
	}
	return s
}

func (s *SoftTriggerScheduler) drawInterval() time.Duration {
	if s.useExp {
		// Inter-arrival ~ Exponential(1/interval); rng.ExpFloat64() draws
		// from Exponential(1), scaled by the mean interval.
		mean := float64(s.interval)
		if mean <= 0 {
			mean = float64(time.Second)
		}
		return time.Duration(s.rng.ExpFloat64() * mean)
	}
	d := s.interval
	if s.jitter > 0 {
		delta := s.rng.Int63n(int64(2*s.jitter)) - int64(s.jitter)
		d += time.Duration(delta)
		if d < 0 {
			d = 0
		}
	}
	return d
}

// Due reports whether now has reached the next scheduled trigger time; if
// so it schedules the following one and returns true.
func (s *SoftTriggerScheduler) Due(now time.Time) bool {
	if !s.enabled {
		return false
	}
	if now.Before(s.nextTrigger) {
		return false
	}
	s.nextTrigger = now.Add(s.drawInterval())
	return true
}

// TimeToNext returns the duration until the next scheduled trigger, or a
// large value if the scheduler is disabled.
func (s *SoftTriggerScheduler) TimeToNext(now time.Time) time.Duration {
	if !s.enabled {
		return time.Hour
	}
	d := s.nextTrigger.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// MaxSleep is the monitor loop's sleep ceiling (design §4.6: "at most
// 100ms").
const MaxSleep = 100 * time.Millisecond

// sleepDuration computes the adaptive sleep: MaxSleep, reduced to
// three-quarters of the time-to-next-soft-trigger if that's sooner.
func sleepDuration(timeToNextTrigger time.Duration) time.Duration {
	threeQuarters := time.Duration(float64(timeToNextTrigger) * 0.75)
	if threeQuarters < MaxSleep {
		return time.Duration(math.Max(0, float64(threeQuarters)))
	}
	return MaxSleep
}

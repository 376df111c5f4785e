package monitor

import "time"

// CalpulserSweep advances a calibration-pulser attenuation sweep (design
// §4.6 and §3 Glossary "Bias scan"-style sweep, but over the pulser
// attenuation rather than the LAB4 bias): each StepDuration it moves
// Attenuation one Step toward Stop, wrapping back to Start.
type CalpulserSweep struct {
	Start, Stop, Step float64
	StepDuration      time.Duration

	Attenuation float64
	lastStep    time.Time
}

// NewCalpulserSweep creates a sweep starting at Start.
func NewCalpulserSweep(start, stop, step float64, stepDuration time.Duration) *CalpulserSweep {
	return &CalpulserSweep{
		Start: start, Stop: stop, Step: step, StepDuration: stepDuration,
		Attenuation: start,
	}
}

// Advance moves the sweep forward by one step if StepDuration has elapsed
// since the last step, returning the new attenuation and whether a step
// occurred.
func (c *CalpulserSweep) Advance(now time.Time) (float64, bool) {
	if c.StepDuration <= 0 {
		return c.Attenuation, false
	}
	if c.lastStep.IsZero() {
		c.lastStep = now
		return c.Attenuation, false
	}
	if now.Sub(c.lastStep) < c.StepDuration {
		return c.Attenuation, false
	}
	c.lastStep = now

	next := c.Attenuation + c.Step
	if (c.Step > 0 && next > c.Stop) || (c.Step < 0 && next < c.Stop) {
		next = c.Start
	}
	c.Attenuation = next
	return c.Attenuation, true
}

package monitor

// PPSClockMinCycleCount and PPSClockMaxCycleCount bound the plausible
// range of the auxiliary device's cycle counter for PPS clock refinement
// (design §4.6).
const (
	PPSClockMinCycleCount = 1.0e8
	PPSClockMaxCycleCount = 1.36e8
	ppsCycleCountDivisor  = 11.8
)

// RefinePPSClock returns the refined delayed-PPS clock estimate derived
// from the auxiliary device's cycle counter, and ok=false if the counter
// falls outside the plausible range and should be ignored.
func RefinePPSClock(cycleCount uint64) (estimate float64, ok bool) {
	v := float64(cycleCount)
	if v < PPSClockMinCycleCount || v > PPSClockMaxCycleCount {
		return 0, false
	}
	return v / ppsCycleCountDivisor, true
}

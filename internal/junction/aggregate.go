package junction

// Aggregate is the per-tick summary the scheduler consumes.
type Aggregate struct {
	// PassedNow counts crossings on the approaches that were green at the
	// start of the tick. Red approaches still accumulate counts but do not
	// keep the current phase alive.
	PassedNow int
	NSCount   int // Cumulative North + South
	EWCount   int // Cumulative East + West

	Counts Counts // Cumulative per approach
	Passed Counts // Crossings this tick per approach
}

// AggregateTick combines the four per-approach results using the phase that
// was active when the tick began.
func AggregateTick(results [4]TickResult, active Phase) Aggregate {
	var agg Aggregate
	for _, r := range results {
		agg.Counts[r.Direction] = r.Count
		agg.Passed[r.Direction] = r.Passed
		if active.Serves(r.Direction) {
			agg.PassedNow += r.Passed
		}
	}
	agg.NSCount = agg.Counts.Phase(PhaseNS)
	agg.EWCount = agg.Counts.Phase(PhaseEW)
	return agg
}

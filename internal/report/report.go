// Package report summarises a controller session: traffic per approach,
// how green time was split between the phases and what drove the changes.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/junction.report/internal/junction"
)

// IntervalStats describes the lengths of uninterrupted green intervals.
type IntervalStats struct {
	N      int
	Mean   time.Duration
	StdDev time.Duration
	Max    time.Duration
}

// Summary is the result of a session.
type Summary struct {
	Ticks      uint64
	Duration   time.Duration
	Counts     junction.Counts
	FlowPerMin [4]float64 // Vehicles per minute per approach
	GreenTime  map[junction.Phase]time.Duration
	Intervals  map[junction.Phase]IntervalStats
	Toggles    int
	Overrides  int
	Changes    map[junction.Reason]int
}

// GreenShare returns the fraction of the session p was green.
func (s Summary) GreenShare(p junction.Phase) float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.GreenTime[p]) / float64(s.Duration)
}

// Builder accumulates snapshots. It implements junction.Sink and is safe to
// read from another goroutine while the controller runs.
type Builder struct {
	mu sync.Mutex

	ticks  uint64
	first  time.Time
	last   time.Time
	phase  junction.Phase
	counts junction.Counts

	greenTime     map[junction.Phase]time.Duration
	intervalStart time.Time
	intervals     map[junction.Phase][]float64 // seconds

	toggles   int
	overrides int
	changes   map[junction.Reason]int
}

// NewBuilder starts a report at start with PhaseNS green, matching a new
// controller.
func NewBuilder(start time.Time) *Builder {
	return &Builder{
		first:         start,
		last:          start,
		phase:         junction.PhaseNS,
		intervalStart: start,
		greenTime:     make(map[junction.Phase]time.Duration),
		intervals:     make(map[junction.Phase][]float64),
		changes:       make(map[junction.Reason]int),
	}
}

// Emit implements junction.Sink.
func (b *Builder) Emit(_ context.Context, s junction.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Time since the previous tick belongs to the phase that was green then.
	if s.Time.After(b.last) {
		b.greenTime[b.phase] += s.Time.Sub(b.last)
	}
	b.last = s.Time
	b.ticks = s.Tick
	b.counts = s.Counts

	if s.Decision.Toggled {
		b.toggles++
	}
	if s.Decision.Overridden {
		b.overrides++
	}
	for _, ch := range s.Decision.Changes {
		b.changes[ch.Reason]++
	}

	if s.Phase != b.phase {
		b.closeInterval(s.Time)
		b.phase = s.Phase
	}
	return nil
}

func (b *Builder) closeInterval(end time.Time) {
	b.intervals[b.phase] = append(b.intervals[b.phase], end.Sub(b.intervalStart).Seconds())
	b.intervalStart = end
}

// Summary computes the report so far. The open green interval is included
// as if it ended at the last tick.
func (b *Builder) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Summary{
		Ticks:     b.ticks,
		Duration:  b.last.Sub(b.first),
		Counts:    b.counts,
		GreenTime: make(map[junction.Phase]time.Duration, 2),
		Intervals: make(map[junction.Phase]IntervalStats, 2),
		Toggles:   b.toggles,
		Overrides: b.overrides,
		Changes:   make(map[junction.Reason]int, len(b.changes)),
	}
	for p, d := range b.greenTime {
		s.GreenTime[p] = d
	}
	for r, n := range b.changes {
		s.Changes[r] = n
	}
	if minutes := s.Duration.Minutes(); minutes > 0 {
		for _, d := range junction.Directions {
			s.FlowPerMin[d] = float64(s.Counts[d]) / minutes
		}
	}

	for _, p := range []junction.Phase{junction.PhaseNS, junction.PhaseEW} {
		lengths := append([]float64(nil), b.intervals[p]...)
		if p == b.phase && b.last.After(b.intervalStart) {
			lengths = append(lengths, b.last.Sub(b.intervalStart).Seconds())
		}
		s.Intervals[p] = intervalStats(lengths)
	}
	return s
}

func intervalStats(seconds []float64) IntervalStats {
	st := IntervalStats{N: len(seconds)}
	if st.N == 0 {
		return st
	}
	mean, std := stat.MeanStdDev(seconds, nil)
	if st.N < 2 {
		std = 0
	}
	sorted := append([]float64(nil), seconds...)
	sort.Float64s(sorted)
	st.Mean = secondsToDuration(mean)
	st.StdDev = secondsToDuration(std)
	st.Max = secondsToDuration(sorted[len(sorted)-1])
	return st
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Millisecond)
}

// Write renders the summary as an aligned text table.
func (s Summary) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ticks\t%d\n", s.Ticks)
	fmt.Fprintf(tw, "duration\t%s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintln(tw, "\ndirection\tvehicles\tper min")
	for _, d := range junction.Directions {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\n", d, s.Counts[d], s.FlowPerMin[d])
	}
	fmt.Fprintln(tw, "\nphase\tgreen\tshare\tintervals\tmean\tstddev\tmax")
	for _, p := range []junction.Phase{junction.PhaseNS, junction.PhaseEW} {
		iv := s.Intervals[p]
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%d\t%s\t%s\t%s\n",
			p, s.GreenTime[p].Round(time.Millisecond), 100*s.GreenShare(p), iv.N, iv.Mean, iv.StdDev, iv.Max)
	}
	fmt.Fprintf(tw, "\ntoggles\t%d\n", s.Toggles)
	fmt.Fprintf(tw, "overrides\t%d\n", s.Overrides)
	for _, r := range []junction.Reason{junction.ReasonDuration, junction.ReasonInactivity, junction.ReasonPriority} {
		fmt.Fprintf(tw, "changes (%s)\t%d\n", r, s.Changes[r])
	}
	return tw.Flush()
}

package junction

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return t0.Add(d) }

func aggOf(passedNow, ns, ew int) Aggregate {
	return Aggregate{PassedNow: passedNow, NSCount: ns, EWCount: ew}
}

func TestPhaseScheduler_Initial(t *testing.T) {
	t.Parallel()
	s := NewPhaseScheduler(DefaultConfig(), t0)

	st := s.State()
	assert.Equal(t, PhaseNS, st.Phase)
	assert.Equal(t, t0, st.PhaseStart)
	assert.Equal(t, t0, st.LastVehicle)
}

func TestPhaseScheduler_TimeBound(t *testing.T) {
	t.Parallel()
	s := NewPhaseScheduler(DefaultConfig(), t0)

	// Steady served traffic and balanced counts: nothing fires before 60s.
	for sec := 1; sec < 60; sec++ {
		d := s.Advance(at(time.Duration(sec)*time.Second), aggOf(1, sec, sec))
		require.Equal(t, PhaseNS, d.Phase, "second %d", sec)
		require.False(t, d.Toggled, "second %d", sec)
		require.Empty(t, d.Changes, "second %d", sec)
	}
}

func TestPhaseScheduler_MaxDurationToggle(t *testing.T) {
	t.Parallel()
	s := NewPhaseScheduler(DefaultConfig(), t0)

	for sec := 1; sec < 60; sec++ {
		s.Advance(at(time.Duration(sec)*time.Second), aggOf(1, 0, 0))
	}
	d := s.Advance(at(60*time.Second), aggOf(1, 0, 0))

	assert.True(t, d.Toggled)
	assert.Equal(t, PhaseEW, d.Phase)
	require.Len(t, d.Changes, 1)
	assert.Equal(t, ReasonDuration, d.Changes[0].Reason)
	assert.Equal(t, at(60*time.Second), s.State().PhaseStart)
	assert.Equal(t, at(60*time.Second), s.State().LastVehicle)
}

func TestPhaseScheduler_InactivityTrigger(t *testing.T) {
	t.Parallel()
	s := NewPhaseScheduler(DefaultConfig(), t0)

	d := s.Advance(at(4900*time.Millisecond), aggOf(0, 0, 0))
	assert.Equal(t, PhaseNS, d.Phase)
	assert.False(t, d.Toggled)

	d = s.Advance(at(5*time.Second), aggOf(0, 0, 0))
	assert.True(t, d.Toggled)
	assert.Equal(t, PhaseEW, d.Phase)
	require.Len(t, d.Changes, 1)
	assert.Equal(t, PhaseChange{At: at(5 * time.Second), From: PhaseNS, To: PhaseEW, Reason: ReasonInactivity}, d.Changes[0])
}

func TestPhaseScheduler_ActivityDefersInactivity(t *testing.T) {
	t.Parallel()
	s := NewPhaseScheduler(DefaultConfig(), t0)

	s.Advance(at(4*time.Second), aggOf(2, 0, 0))
	d := s.Advance(at(8*time.Second), aggOf(0, 0, 0))
	assert.False(t, d.Toggled, "last served vehicle was 4s ago")
	assert.Equal(t, at(4*time.Second), s.State().LastVehicle)

	d = s.Advance(at(9*time.Second), aggOf(0, 0, 0))
	assert.True(t, d.Toggled)
}

func TestPhaseScheduler_PriorityOverride(t *testing.T) {
	t.Parallel()
	s := NewPhaseScheduler(DefaultConfig(), t0)

	// Reach EW through inactivity with balanced counts.
	d := s.Advance(at(5*time.Second), aggOf(0, 3, 3))
	require.Equal(t, PhaseEW, d.Phase)
	before := s.State()

	d = s.Advance(at(5100*time.Millisecond), aggOf(0, 10, 3))
	assert.Equal(t, PhaseNS, d.Phase)
	assert.True(t, d.Overridden)
	assert.False(t, d.Toggled)
	require.Len(t, d.Changes, 1)
	assert.Equal(t, ReasonPriority, d.Changes[0].Reason)

	after := s.State()
	assert.Equal(t, before.PhaseStart, after.PhaseStart, "override must not restart the phase timer")
	assert.Equal(t, before.LastVehicle, after.LastVehicle, "override must not refresh the vehicle timer")
}

func TestPhaseScheduler_OverrideUndoesToggle(t *testing.T) {
	t.Parallel()
	s := NewPhaseScheduler(DefaultConfig(), t0)

	// NS leads, NS is green but idle: the toggle fires and the override
	// immediately restores NS within the same evaluation.
	d := s.Advance(at(5*time.Second), aggOf(0, 4, 1))
	assert.True(t, d.Toggled)
	assert.True(t, d.Overridden)
	assert.Equal(t, PhaseNS, d.Phase)
	assert.False(t, d.Changed())
	require.Len(t, d.Changes, 2)
	assert.Equal(t, ReasonInactivity, d.Changes[0].Reason)
	assert.Equal(t, ReasonPriority, d.Changes[1].Reason)
	assert.Equal(t, at(5*time.Second), s.State().PhaseStart, "toggle reset survives the override")
}

func TestPhaseScheduler_CloseCountsOscillate(t *testing.T) {
	t.Parallel()
	s := NewPhaseScheduler(DefaultConfig(), t0)

	// Counts that lead alternately flip the phase every tick and never
	// restart the timers.
	want := []Phase{PhaseEW, PhaseNS, PhaseEW, PhaseNS}
	leads := []Aggregate{aggOf(1, 5, 6), aggOf(1, 7, 6), aggOf(1, 7, 8), aggOf(1, 9, 8)}
	for i, a := range leads {
		d := s.Advance(at(time.Duration(i+1)*100*time.Millisecond), a)
		assert.Equal(t, want[i], d.Phase, "tick %d", i)
		assert.True(t, d.Changed(), "tick %d", i)
	}
	assert.Equal(t, t0, s.State().PhaseStart)
}

func TestPhaseScheduler_Exclusivity(t *testing.T) {
	t.Parallel()
	s := NewPhaseScheduler(DefaultConfig(), t0)
	rng := rand.New(rand.NewSource(7))

	now := t0
	ns, ew := 0, 0
	for i := 0; i < 2000; i++ {
		now = now.Add(time.Duration(rng.Intn(3000)) * time.Millisecond)
		ns += rng.Intn(2)
		ew += rng.Intn(2)
		d := s.Advance(now, aggOf(rng.Intn(2), ns, ew))

		require.Contains(t, []Phase{PhaseNS, PhaseEW}, d.Phase)
		green := 0
		for _, dir := range Directions {
			if d.Phase.Serves(dir) {
				green++
			}
		}
		require.Equal(t, 2, green)
		switch d.Phase {
		case PhaseNS:
			require.Equal(t, [2]Direction{North, South}, d.Phase.Directions())
		case PhaseEW:
			require.Equal(t, [2]Direction{East, West}, d.Phase.Directions())
		}
	}
}

func TestAggregateTick(t *testing.T) {
	t.Parallel()
	results := [4]TickResult{
		{Direction: North, Count: 5, Passed: 1},
		{Direction: East, Count: 3, Passed: 2},
		{Direction: South, Count: 2, Passed: 0},
		{Direction: West, Count: 4, Passed: 1},
	}

	ns := AggregateTick(results, PhaseNS)
	assert.Equal(t, 1, ns.PassedNow, "only North and South are green")
	assert.Equal(t, 7, ns.NSCount)
	assert.Equal(t, 7, ns.EWCount)
	assert.Equal(t, Counts{5, 3, 2, 4}, ns.Counts)
	assert.Equal(t, Counts{1, 2, 0, 1}, ns.Passed)

	ew := AggregateTick(results, PhaseEW)
	assert.Equal(t, 3, ew.PassedNow)
}

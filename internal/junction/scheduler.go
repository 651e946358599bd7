package junction

import (
	"fmt"
	"time"
)

// Reason explains why the active phase changed.
type Reason string

const (
	ReasonDuration   Reason = "duration"   // Phase held green for MaxPhaseDuration
	ReasonInactivity Reason = "inactivity" // No served vehicle for InactivityTimeout
	ReasonPriority   Reason = "priority"   // Cumulative demand favoured the other pair
)

// event drives the phase transition table.
type event string

const (
	eventToggle  event = "toggle"
	eventForceNS event = "force_ns"
	eventForceEW event = "force_ew"
)

type transitionKey struct {
	from Phase
	ev   event
}

// transitions lists every edge of the two-state machine. Forcing the phase
// that is already active is a self-loop and is not reported as a change.
var transitions = map[transitionKey]Phase{
	{PhaseNS, eventToggle}:  PhaseEW,
	{PhaseEW, eventToggle}:  PhaseNS,
	{PhaseNS, eventForceNS}: PhaseNS,
	{PhaseEW, eventForceNS}: PhaseNS,
	{PhaseNS, eventForceEW}: PhaseEW,
	{PhaseEW, eventForceEW}: PhaseEW,
}

// PhaseChange records one transition between distinct phases.
type PhaseChange struct {
	At     time.Time
	From   Phase
	To     Phase
	Reason Reason
}

// SchedulerState is the mutable state owned by a PhaseScheduler.
type SchedulerState struct {
	Phase       Phase
	PhaseStart  time.Time // Reset only by a duration or inactivity toggle
	LastVehicle time.Time // Last crossing on a green approach, or the last toggle
}

// Decision is the outcome of one scheduler evaluation.
type Decision struct {
	From       Phase // Phase at the start of the evaluation
	Phase      Phase // Phase after the evaluation
	Toggled    bool
	Overridden bool
	Changes    []PhaseChange // In the order they happened; may cancel out
}

// Changed reports whether the phase differs from the one the tick started with.
func (d Decision) Changed() bool {
	return d.From != d.Phase
}

// PhaseScheduler decides which phase is green, once per tick.
//
// Each evaluation applies three rules in order: a served crossing refreshes
// LastVehicle; an expired phase or an idle green toggles the phase and
// restarts both timers; finally the pair with the larger cumulative count
// is forced green without touching the timers. Because the override can
// undo a toggle in the same tick, closely matched counts can make the phase
// flip on every evaluation.
type PhaseScheduler struct {
	maxDuration time.Duration
	inactivity  time.Duration
	state       SchedulerState
}

// NewPhaseScheduler returns a scheduler in PhaseNS with both timers started at now.
func NewPhaseScheduler(cfg Config, now time.Time) *PhaseScheduler {
	return &PhaseScheduler{
		maxDuration: cfg.MaxPhaseDuration,
		inactivity:  cfg.InactivityTimeout,
		state: SchedulerState{
			Phase:       PhaseNS,
			PhaseStart:  now,
			LastVehicle: now,
		},
	}
}

// Phase returns the active phase.
func (s *PhaseScheduler) Phase() Phase { return s.state.Phase }

// State returns a copy of the scheduler state.
func (s *PhaseScheduler) State() SchedulerState { return s.state }

// Advance evaluates the transition rules for a tick observed at now.
func (s *PhaseScheduler) Advance(now time.Time, agg Aggregate) Decision {
	d := Decision{From: s.state.Phase}

	if agg.PassedNow > 0 {
		s.state.LastVehicle = now
	}

	var reason Reason
	switch {
	case now.Sub(s.state.PhaseStart) >= s.maxDuration:
		reason = ReasonDuration
	case now.Sub(s.state.LastVehicle) >= s.inactivity:
		reason = ReasonInactivity
	}
	if reason != "" {
		s.fire(&d, now, eventToggle, reason)
		s.state.PhaseStart = now
		s.state.LastVehicle = now
		d.Toggled = true
	}

	switch {
	case agg.NSCount > agg.EWCount:
		d.Overridden = s.fire(&d, now, eventForceNS, ReasonPriority)
	case agg.EWCount > agg.NSCount:
		d.Overridden = s.fire(&d, now, eventForceEW, ReasonPriority)
	}

	d.Phase = s.state.Phase
	return d
}

// fire applies ev and reports whether the phase changed.
func (s *PhaseScheduler) fire(d *Decision, now time.Time, ev event, reason Reason) bool {
	to, ok := transitions[transitionKey{s.state.Phase, ev}]
	if !ok {
		panic(fmt.Sprintf("junction: no transition from %s on %s", s.state.Phase, ev))
	}
	if to == s.state.Phase {
		return false
	}
	d.Changes = append(d.Changes, PhaseChange{At: now, From: s.state.Phase, To: to, Reason: reason})
	s.state.Phase = to
	return true
}

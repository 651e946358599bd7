package junction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/junction.report/internal/monitoring"
	"github.com/banshee-data/junction.report/internal/timeutil"
)

// BlobSource yields the bounding boxes of moving blobs for one approach per
// tick. ended reports that the approach has no more frames.
type BlobSource interface {
	Next(ctx context.Context, d Direction) (ended bool, boxes []Box, err error)
}

// Sink receives every completed tick.
type Sink interface {
	Emit(ctx context.Context, s Snapshot) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, s Snapshot) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, s Snapshot) error { return f(ctx, s) }

// Snapshot is the record handed to sinks after each tick.
type Snapshot struct {
	Tick      uint64
	Time      time.Time
	Phase     Phase  // Active phase after the scheduler ran
	Counts    Counts // Cumulative crossings per approach
	Passed    Counts // Crossings this tick per approach
	Pending   Counts // Detections still waiting per approach
	Expired   Counts // Detections evicted this tick per approach
	PassedNow int    // Crossings on approaches green at the start of the tick
	Decision  Decision
}

// Green reports whether d has a green light in this snapshot.
func (s Snapshot) Green(d Direction) bool {
	return s.Phase.Serves(d)
}

// GreenMap returns the light state of every approach.
func (s Snapshot) GreenMap() map[Direction]bool {
	m := make(map[Direction]bool, len(Directions))
	for _, d := range Directions {
		m[d] = s.Green(d)
	}
	return m
}

// Controller runs the tick loop: it pulls boxes for all four approaches,
// counts crossings, advances the scheduler and fans the result out to the
// sinks. It holds no counting or timing state of its own.
type Controller struct {
	source    BlobSource
	clock     timeutil.Clock
	interval  time.Duration
	counters  [4]*LineCounter
	scheduler *PhaseScheduler
	sinks     []Sink
	tick      uint64
	newTicker func() timeutil.Ticker
}

// NewController validates cfg and builds a controller whose scheduler starts
// at clock.Now().
func NewController(cfg Config, source BlobSource, clock timeutil.Clock, sinks ...Sink) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, errors.New("junction: nil blob source")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	c := &Controller{
		source:    source,
		clock:     clock,
		interval:  cfg.TickInterval,
		scheduler: NewPhaseScheduler(cfg, clock.Now()),
		sinks:     sinks,
	}
	for _, d := range Directions {
		c.counters[d] = NewLineCounter(d, cfg)
	}
	c.newTicker = func() timeutil.Ticker { return c.clock.NewTicker(c.interval) }
	return c, nil
}

// AddSink registers another sink. It must not be called while Run is active.
func (c *Controller) AddSink(s Sink) {
	c.sinks = append(c.sinks, s)
}

// Unpaced makes Run process ticks back to back instead of on the tick
// interval. Timestamps still come from the controller's clock.
func (c *Controller) Unpaced() {
	c.newTicker = func() timeutil.Ticker { return timeutil.NewImmediateTicker(c.clock) }
}

// Phase returns the active phase.
func (c *Controller) Phase() Phase { return c.scheduler.Phase() }

// Tick returns the number of completed ticks.
func (c *Controller) Tick() uint64 { return c.tick }

// Counter returns the counter for d.
func (c *Controller) Counter(d Direction) *LineCounter { return c.counters[d] }

// Counts returns the cumulative crossings per approach.
func (c *Controller) Counts() Counts {
	var out Counts
	for _, d := range Directions {
		out[d] = c.counters[d].Count()
	}
	return out
}

// Step runs one tick. If any approach reports the end of its feed, Step
// returns an error wrapping ErrFeedExhausted and no counter, scheduler or
// sink sees the tick.
func (c *Controller) Step(ctx context.Context) (Snapshot, error) {
	startPhase := c.scheduler.Phase()

	var frames [4][]Box
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range Directions {
		g.Go(func() error {
			ended, boxes, err := c.source.Next(gctx, d)
			if err != nil {
				return &FeedError{Direction: d, Err: err}
			}
			if ended {
				return &FeedError{Direction: d, Err: ErrFeedExhausted}
			}
			frames[d] = boxes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	// Each counter is touched by exactly one goroutine; Wait is the barrier
	// before aggregation.
	var results [4]TickResult
	var og errgroup.Group
	for _, d := range Directions {
		og.Go(func() error {
			results[d] = c.counters[d].Observe(frames[d])
			return nil
		})
	}
	_ = og.Wait()

	agg := AggregateTick(results, startPhase)
	now := c.clock.Now()
	dec := c.scheduler.Advance(now, agg)
	c.tick++

	snap := Snapshot{
		Tick:      c.tick,
		Time:      now,
		Phase:     dec.Phase,
		Counts:    agg.Counts,
		Passed:    agg.Passed,
		PassedNow: agg.PassedNow,
		Decision:  dec,
	}
	for _, r := range results {
		snap.Pending[r.Direction] = r.Pending
		snap.Expired[r.Direction] = r.Expired
		if r.Rejected > 0 {
			monitoring.Debugf("tick %d: %s dropped %d invalid boxes", c.tick, r.Direction, r.Rejected)
		}
	}
	for _, ch := range dec.Changes {
		monitoring.Logf("tick %d: phase %s -> %s (%s)", c.tick, ch.From, ch.To, ch.Reason)
	}

	for _, s := range c.sinks {
		if err := s.Emit(ctx, snap); err != nil {
			monitoring.Logf("tick %d: sink error: %v", c.tick, err)
		}
	}
	return snap, nil
}

// Run steps the controller on every tick of its ticker until the context is
// cancelled or a feed fails. Feed exhaustion is returned as an error wrapping
// ErrFeedExhausted; callers that treat it as a normal end check errors.Is.
func (c *Controller) Run(ctx context.Context) error {
	ticker := c.newTicker()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}
		if _, err := c.Step(ctx); err != nil {
			if errors.Is(err, ErrFeedExhausted) {
				monitoring.Logf("stopping after %d ticks: %v", c.tick, err)
			}
			return fmt.Errorf("tick %d: %w", c.tick+1, err)
		}
	}
}

package junction

import (
	"github.com/google/uuid"
)

// TickResult is what one LineCounter reports for one tick.
type TickResult struct {
	Direction Direction
	Count     int // Cumulative crossings since the counter was created
	Passed    int // Crossings during this tick
	Added     int // Detections queued this tick
	Rejected  int // Boxes with non-positive extent, dropped
	Expired   int // Pending detections evicted by the retention policy
	Pending   int // Detections still waiting after this tick
}

// LineCounter counts vehicles crossing the detection line of one approach.
//
// Every qualifying blob becomes a Detection with its own id, even when its
// centroid equals one already pending. Detections are kept in insertion
// order and removed individually, so colliding centroids are never
// conflated. A LineCounter is not safe for concurrent use.
type LineCounter struct {
	direction Direction

	minWidth  int
	minHeight int
	lineY     int
	offset    int

	maxAge     int
	maxPending int

	tick    uint64
	count   int
	pending []Detection

	newID func() string
}

// NewLineCounter creates a counter for direction d.
func NewLineCounter(d Direction, cfg Config) *LineCounter {
	return &LineCounter{
		direction:  d,
		minWidth:   cfg.MinWidth,
		minHeight:  cfg.MinHeight,
		lineY:      cfg.LinePosition,
		offset:     cfg.LineOffset,
		maxAge:     cfg.MaxPendingAge,
		maxPending: cfg.MaxPending,
		newID:      uuid.NewString,
	}
}

// Direction returns the approach this counter serves.
func (lc *LineCounter) Direction() Direction { return lc.direction }

// Count returns the cumulative number of crossings.
func (lc *LineCounter) Count() int { return lc.count }

// Pending returns a copy of the detections waiting to cross, oldest first.
func (lc *LineCounter) Pending() []Detection {
	out := make([]Detection, len(lc.pending))
	copy(out, lc.pending)
	return out
}

// OnLine reports whether y lies strictly inside the counting band.
func (lc *LineCounter) OnLine(y int) bool {
	return lc.lineY-lc.offset < y && y < lc.lineY+lc.offset
}

// Observe ingests the boxes of one frame and counts every pending
// detection whose centroid lies inside the band.
func (lc *LineCounter) Observe(boxes []Box) TickResult {
	lc.tick++
	res := TickResult{Direction: lc.direction}

	for _, b := range boxes {
		if !b.Valid() {
			res.Rejected++
			continue
		}
		if b.W < lc.minWidth || b.H < lc.minHeight {
			continue
		}
		lc.pending = append(lc.pending, Detection{
			ID:        lc.newID(),
			Direction: lc.direction,
			Centroid:  b.Centroid(),
			Tick:      lc.tick,
		})
		res.Added++
	}

	// Filter in place; each crossing removes exactly the detection examined.
	kept := lc.pending[:0]
	for _, det := range lc.pending {
		if lc.OnLine(det.Centroid.Y) {
			lc.count++
			res.Passed++
			continue
		}
		kept = append(kept, det)
	}
	clearTail(lc.pending, len(kept))
	lc.pending = kept

	// Retention runs after the crossing check so nothing that is on the line
	// this tick is ever evicted.
	res.Expired = lc.expire()

	res.Count = lc.count
	res.Pending = len(lc.pending)
	return res
}

func (lc *LineCounter) expire() int {
	n := len(lc.pending)
	if lc.maxAge > 0 {
		kept := lc.pending[:0]
		for _, det := range lc.pending {
			if lc.tick-det.Tick < uint64(lc.maxAge) {
				kept = append(kept, det)
			}
		}
		clearTail(lc.pending, len(kept))
		lc.pending = kept
	}
	if lc.maxPending > 0 && len(lc.pending) > lc.maxPending {
		drop := len(lc.pending) - lc.maxPending
		lc.pending = append(lc.pending[:0], lc.pending[drop:]...)
		clearTail(lc.pending[:cap(lc.pending)], len(lc.pending))
	}
	return n - len(lc.pending)
}

// clearTail zeroes s[from:] so dropped detections do not pin their ids.
func clearTail(s []Detection, from int) {
	for i := from; i < len(s); i++ {
		s[i] = Detection{}
	}
}

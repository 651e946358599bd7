// Package junction implements vehicle counting at per-approach detection
// lines and the adaptive two-phase signal scheduler that consumes those
// counts.
//
// The package knows nothing about video. Each approach is fed a list of
// axis-aligned bounding boxes per tick by a BlobSource, and every completed
// tick is handed to one or more Sinks as a Snapshot.
package junction

import (
	"fmt"
	"strings"
)

// Direction identifies one approach of the intersection.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

// Directions lists every approach in processing order.
var Directions = [4]Direction{North, East, South, West}

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Valid reports whether d is one of the four approaches.
func (d Direction) Valid() bool {
	return d >= North && d <= West
}

// Phase returns the signal phase that gives d a green light.
func (d Direction) Phase() Phase {
	if d == North || d == South {
		return PhaseNS
	}
	return PhaseEW
}

// ParseDirection accepts full names or single-letter abbreviations, in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "n":
		return North, nil
	case "east", "e":
		return East, nil
	case "south", "s":
		return South, nil
	case "west", "w":
		return West, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Phase is the pairing of opposite approaches that currently has green.
type Phase string

const (
	PhaseNS Phase = "NS"
	PhaseEW Phase = "EW"
)

// Directions returns the two approaches served by the phase.
func (p Phase) Directions() [2]Direction {
	if p == PhaseEW {
		return [2]Direction{East, West}
	}
	return [2]Direction{North, South}
}

// Other returns the opposing phase.
func (p Phase) Other() Phase {
	if p == PhaseNS {
		return PhaseEW
	}
	return PhaseNS
}

// Serves reports whether d has a green light while p is active.
func (p Phase) Serves(d Direction) bool {
	return d.Phase() == p
}

// Box is an axis-aligned bounding box of a moving blob in frame coordinates.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Valid reports whether the box has a positive area.
func (b Box) Valid() bool {
	return b.W > 0 && b.H > 0
}

// Centroid returns the centre of the box, truncating each half-extent.
func (b Box) Centroid() Point {
	return Point{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

// Point is a position in frame coordinates.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Detection is a centroid waiting to cross the counting line.
type Detection struct {
	ID        string
	Direction Direction
	Centroid  Point
	// Tick on which the blob was observed.
	Tick uint64
}

// Counts holds one value per approach, indexed by Direction.
type Counts [4]int

// Get returns the value for d.
func (c Counts) Get(d Direction) int {
	return c[d]
}

// Phase sums the values for the two approaches served by p.
func (c Counts) Phase(p Phase) int {
	ds := p.Directions()
	return c[ds[0]] + c[ds[1]]
}

// Map returns the counts keyed by direction name.
func (c Counts) Map() map[string]int {
	m := make(map[string]int, len(c))
	for _, d := range Directions {
		m[d.String()] = c[d]
	}
	return m
}

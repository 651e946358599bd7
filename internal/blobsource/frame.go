// Package blobsource provides junction.BlobSource implementations fed by the
// external segmentation stage. Frames arrive as JSON lines, one per approach
// per tick:
//
//	{"tick":12,"direction":"north","boxes":[{"x":40,"y":505,"w":90,"h":90}]}
//	{"end":true}
//
// The end marker, or the end of input, ends every approach.
package blobsource

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/banshee-data/junction.report/internal/junction"
)

// Frame is one decoded line.
type Frame struct {
	Tick      uint64
	Direction junction.Direction
	Boxes     []junction.Box
	End       bool
}

type wireFrame struct {
	Tick      uint64         `json:"tick"`
	Direction string         `json:"direction"`
	Boxes     []junction.Box `json:"boxes"`
	End       bool           `json:"end,omitempty"`
}

// ParseLine decodes one JSON line. Blank lines are reported as ok=false.
func ParseLine(line []byte) (f Frame, ok bool, err error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Frame{}, false, nil
	}
	var w wireFrame
	if err := json.Unmarshal(line, &w); err != nil {
		return Frame{}, false, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	if w.End {
		return Frame{End: true}, true, nil
	}
	d, err := junction.ParseDirection(w.Direction)
	if err != nil {
		return Frame{}, false, err
	}
	return Frame{Tick: w.Tick, Direction: d, Boxes: w.Boxes}, true, nil
}

// MarshalLine encodes f as a single JSON line including the trailing newline.
func MarshalLine(f Frame) ([]byte, error) {
	var w wireFrame
	if f.End {
		w.End = true
	} else {
		w = wireFrame{Tick: f.Tick, Direction: f.Direction.String(), Boxes: f.Boxes}
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

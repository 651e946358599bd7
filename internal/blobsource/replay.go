package blobsource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/banshee-data/junction.report/internal/junction"
)

// Replay serves frames loaded up front from a recorded session. Each
// approach is an independent queue that ends when it runs dry.
type Replay struct {
	mu     sync.Mutex
	queues [4][][]junction.Box
}

// NewReplay reads every frame from r. Frames for one approach are served in
// the order they appear; the tick field is informational. Reading stops at
// an end marker.
func NewReplay(r io.Reader) (*Replay, error) {
	rp := &Replay{}
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		f, ok, err := ParseLine(scan.Bytes())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !ok {
			continue
		}
		if f.End {
			break
		}
		rp.queues[f.Direction] = append(rp.queues[f.Direction], f.Boxes)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	return rp, nil
}

// LoadReplay opens and reads a fixture file.
func LoadReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures file: %w", err)
	}
	defer f.Close()
	return NewReplay(f)
}

// Len returns the number of frames still queued for d.
func (rp *Replay) Len(d junction.Direction) int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return len(rp.queues[d])
}

// Next implements junction.BlobSource.
func (rp *Replay) Next(_ context.Context, d junction.Direction) (bool, []junction.Box, error) {
	if !d.Valid() {
		return false, nil, fmt.Errorf("invalid direction %d", int(d))
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	q := rp.queues[d]
	if len(q) == 0 {
		return true, nil, nil
	}
	rp.queues[d] = q[1:]
	return false, q[0], nil
}

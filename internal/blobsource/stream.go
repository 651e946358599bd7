package blobsource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/junction.report/internal/junction"
	"github.com/banshee-data/junction.report/internal/monitoring"
)

// maxLineBytes bounds a single frame line; a frame with hundreds of boxes
// still fits comfortably.
const maxLineBytes = 1 << 20

// DefaultStreamBuffer is the number of frames held per approach before the
// oldest is dropped; about four seconds of a 60 fps feed.
const DefaultStreamBuffer = 256

// Stream demultiplexes a live line feed into per-approach queues. Monitor
// must be running for Next to make progress.
//
// The demultiplexer never waits on a consumer: one approach running ahead
// of the others must not hide the lines of the approach the controller is
// waiting for. When a queue is full its oldest frame is dropped and counted.
type Stream struct {
	r      io.Reader
	buffer int

	mu        sync.Mutex
	queues    [4][][]junction.Box
	dropped   [4]int
	malformed int
	finished  bool
	err       error
	wake      chan struct{} // closed and replaced on every state change
}

// NewStream wraps r. buffer is the per-approach queue depth; zero uses
// DefaultStreamBuffer.
func NewStream(r io.Reader, buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultStreamBuffer
	}
	return &Stream{r: r, buffer: buffer, wake: make(chan struct{})}
}

// Monitor reads lines until the end marker, end of input, a read error or
// context cancellation. Malformed lines are logged and skipped. When
// Monitor returns every approach ends once its queue drains.
func (s *Stream) Monitor(ctx context.Context) error {
	err := s.monitor(ctx)
	s.finish(err)
	return err
}

func (s *Stream) monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.r)
	scan.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineChan := make(chan []byte)
	scanErrChan := make(chan error, 1)

	// The blocking Scan runs on its own goroutine so that cancellation is
	// observed even while the device is silent.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			line := append([]byte(nil), scan.Bytes()...)
			select {
			case lineChan <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return fmt.Errorf("failed to read frame stream: %w", err)

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return fmt.Errorf("failed to read frame stream: %w", err)
				default:
				}
				return nil
			}
			f, ok, err := ParseLine(line)
			if err != nil {
				s.mu.Lock()
				s.malformed++
				s.mu.Unlock()
				monitoring.Logf("skipping malformed frame: %v", err)
				continue
			}
			if !ok {
				continue
			}
			if f.End {
				return nil
			}
			s.push(f.Direction, f.Boxes)
		}
	}
}

func (s *Stream) push(d junction.Direction, boxes []junction.Box) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := append(s.queues[d], boxes)
	if len(q) > s.buffer {
		q[0] = nil
		q = q[1:]
		s.dropped[d]++
		monitoring.Logf("%s queue full (%d frames): dropped oldest frame, %d dropped so far", d, s.buffer, s.dropped[d])
	}
	s.queues[d] = q
	s.signal()
}

// signal wakes every waiting Next. Callers hold mu.
func (s *Stream) signal() {
	close(s.wake)
	s.wake = make(chan struct{})
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	s.signal()
}

// Err returns the error that stopped Monitor, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Malformed returns the number of lines skipped because they did not parse.
func (s *Stream) Malformed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.malformed
}

// Dropped returns the number of frames discarded from d's full queue.
func (s *Stream) Dropped(d junction.Direction) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped[d]
}

// Next implements junction.BlobSource. Queued frames are always delivered
// before the approach is reported as ended. A Monitor stopped by
// cancellation is reported as that error rather than as the end of the
// feed, so an interrupted session is not mistaken for an exhausted one.
func (s *Stream) Next(ctx context.Context, d junction.Direction) (bool, []junction.Box, error) {
	if !d.Valid() {
		return false, nil, fmt.Errorf("invalid direction %d", int(d))
	}
	for {
		if err := ctx.Err(); err != nil {
			return false, nil, err
		}
		s.mu.Lock()
		if q := s.queues[d]; len(q) > 0 {
			boxes := q[0]
			q[0] = nil
			s.queues[d] = q[1:]
			s.mu.Unlock()
			return false, boxes, nil
		}
		if s.finished {
			err := s.err
			s.mu.Unlock()
			if err != nil {
				return false, nil, err
			}
			return true, nil, nil
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return false, nil, ctx.Err()
		}
	}
}

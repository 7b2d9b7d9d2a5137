package samples

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/exp/slices"
)

var (
	ErrOutOfOrder = errors.New("sample is out of order")
	ErrClosed     = errors.New("history is closed")
)

// History is an append-only, ordered buffer of the Samples of a single run.
// It is safe for concurrent use: one writer (the control loop) and any
// number of readers.
type History struct {
	mu      sync.Mutex
	samples []Sample
	closed  bool

	// closed and replaced whenever a Sample is appended or the History is closed
	changed chan struct{}
}

func NewHistory() *History {
	return &History{
		changed: make(chan struct{}),
	}
}

// Ingest appends the given Sample. The time index of a Sample must be exactly
// the number of Samples already in the History.
func (h *History) Ingest(sample Sample) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if sample.TimeIndex != len(h.samples) {
		return fmt.Errorf("%w: expected time index %d, got %d", ErrOutOfOrder, len(h.samples), sample.TimeIndex)
	}

	h.samples = append(h.samples, sample)
	h.notify()
	return nil
}

// Close marks the end of the run. Subscriptions drain the remaining Samples
// and return io.EOF afterwards. Closing twice is a no-op.
func (h *History) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	h.notify()
}

// must be called with h.mu held
func (h *History) notify() {
	close(h.changed)
	h.changed = make(chan struct{})
}

func (h *History) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}

// Snapshot returns a copy of all Samples appended so far
func (h *History) Snapshot() []Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.samples)
}

// Last returns the most recent Sample, false if there is none yet
func (h *History) Last() (Sample, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) <= 0 {
		return Sample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// Subscribe creates a new Subscription starting at the very first Sample
func (h *History) Subscribe() *Subscription {
	return h.SubscribeFrom(0)
}

// SubscribeFrom creates a new Subscription starting at the given time index
func (h *History) SubscribeFrom(timeIndex int) *Subscription {
	if timeIndex < 0 {
		timeIndex = 0
	}
	return &Subscription{
		history: h,
		next:    timeIndex,
	}
}

// Subscription is a lazy, ordered reader of a History.
// A single Subscription must not be used from multiple goroutines.
type Subscription struct {
	history *History
	next    int
}

// Next blocks until the next Sample is available and returns it.
// Once the History is closed and all Samples have been read, io.EOF is returned.
func (s *Subscription) Next(ctx context.Context) (Sample, error) {
	for {
		h := s.history
		h.mu.Lock()
		if s.next < len(h.samples) {
			sample := h.samples[s.next]
			h.mu.Unlock()
			s.next++
			return sample, nil
		}
		if h.closed {
			h.mu.Unlock()
			return Sample{}, io.EOF
		}
		changed := h.changed
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		case <-changed:
		}
	}
}

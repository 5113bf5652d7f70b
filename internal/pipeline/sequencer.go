package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrStaleRecord indicates a record at or below the delivery cursor; late
	// results for already-resolved sequences are never delivered.
	ErrStaleRecord = errors.New("record sequence already delivered")
	// ErrDuplicateRecord indicates a second terminal record for a buffered
	// sequence.
	ErrDuplicateRecord = errors.New("record sequence already buffered")
)

// DeliverFunc receives terminal records strictly in sequence order. It is
// invoked with the sequencer lock held and must not call back into the
// sequencer.
type DeliverFunc func(Record)

// Sequencer buffers terminal records and releases them in spoken order.
// Dropped and Failed records advance the cursor without emitting payloads, so
// a gap from a rejected or expired task never stalls later utterances.
type Sequencer struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]Record
	deliver DeliverFunc
	closed  bool
}

// NewSequencer constructs a sequencer delivering from sequence zero.
func NewSequencer(deliver DeliverFunc) (*Sequencer, error) {
	if deliver == nil {
		return nil, fmt.Errorf("deliver func is required")
	}
	return &Sequencer{
		pending: make(map[uint64]Record),
		deliver: deliver,
	}, nil
}

// Offer accepts one terminal record. If the record is next in line it is
// delivered immediately along with any buffered successors; otherwise it
// waits for the earlier, still-pending sequences.
func (s *Sequencer) Offer(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sequencer is closed")
	}
	if record.Sequence < s.next {
		return fmt.Errorf("%w: sequence %d, next deliverable %d", ErrStaleRecord, record.Sequence, s.next)
	}
	if _, dup := s.pending[record.Sequence]; dup {
		return fmt.Errorf("%w: sequence %d", ErrDuplicateRecord, record.Sequence)
	}

	s.pending[record.Sequence] = record
	for {
		next, ok := s.pending[s.next]
		if !ok {
			return nil
		}
		delete(s.pending, s.next)
		s.next++
		s.deliver(next)
	}
}

// NextDeliverable returns the smallest sequence number not yet delivered.
func (s *Sequencer) NextDeliverable() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// PendingCount returns the number of buffered out-of-order records.
func (s *Sequencer) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close discards buffered state and rejects further records. Used on session
// teardown; buffered results are never delivered across a reconnect.
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = make(map[uint64]Record)
}

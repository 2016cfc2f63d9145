// Package sequencer numbers locally-issued game actions and tracks which of
// them the authoritative peer has acknowledged. Acknowledgments are
// cumulative: confirming sequence N resolves every pending input ≤ N.
package sequencer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Raincor5/tacmap/pkg/wire"
)

// Input is one submitted-but-unacknowledged action.
type Input struct {
	Seq         uint64
	Kind        string
	Msg         wire.Message
	SubmittedAt time.Time
}

type Sequencer struct {
	mu      sync.Mutex
	next    uint64
	pending []Input // arrival order, strictly increasing Seq
	log     *zap.Logger
}

func New(log *zap.Logger) *Sequencer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sequencer{next: 1, log: log}
}

// Submit assigns the next sequence number to msg and retains it until acked.
func (s *Sequencer) Submit(msg wire.Message) Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := Input{
		Seq:         s.next,
		Kind:        msg.Kind(),
		Msg:         msg,
		SubmittedAt: time.Now(),
	}
	s.next++
	s.pending = append(s.pending, in)
	return in
}

// Ack resolves every pending input with sequence ≤ seq and returns them in
// submission order. A stale or duplicate ack resolves nothing.
func (s *Sequencer) Ack(seq uint64) []Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	cut := 0
	for cut < len(s.pending) && s.pending[cut].Seq <= seq {
		cut++
	}
	if cut == 0 {
		return nil
	}
	resolved := append([]Input(nil), s.pending[:cut]...)
	s.pending = s.pending[cut:]
	s.log.Debug("inputs acknowledged",
		zap.Uint64("ack", seq),
		zap.Int("resolved", len(resolved)),
		zap.Int("pending", len(s.pending)))
	return resolved
}

// Drop abandons one pending input, e.g. after the outbound queue gave up on
// delivering it. Reports whether the sequence was pending.
func (s *Sequencer) Drop(seq uint64) (Input, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, in := range s.pending {
		if in.Seq == seq {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			s.log.Debug("input abandoned", zap.Uint64("seq", seq), zap.String("kind", in.Kind))
			return in, true
		}
	}
	return Input{}, false
}

// Pending returns a copy of the unacknowledged inputs in submission order.
func (s *Sequencer) Pending() []Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Input(nil), s.pending...)
}

func (s *Sequencer) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// LastSubmitted returns the most recently assigned sequence, 0 if none.
func (s *Sequencer) LastSubmitted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next - 1
}

// Reset drops all pending inputs and restarts numbering at 1. Called on
// session teardown; sequence numbers are scoped to a session.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 1
	s.pending = nil
}

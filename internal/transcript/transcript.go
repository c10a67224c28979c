// Package transcript holds the globally ordered log of conversation turns shared by every character session.
package transcript

import (
	"slices"

	"github.com/myrjola/turingtrial/internal/models"
)

// Shared is an append-only log of turns. It is owned by the event loop: Append and Snapshot must only be called
// from loop events, which is what makes the append order total and stable.
type Shared struct {
	turns []models.Turn
	next  int64
}

func New() *Shared {
	return &Shared{turns: nil, next: 1}
}

// Append stores turn with the next sequence number and returns that number. Any sequence set by the caller is
// overwritten.
func (s *Shared) Append(turn models.Turn) int64 {
	turn.Sequence = s.next
	s.next++
	s.turns = append(s.turns, turn)
	return turn.Sequence
}

// Snapshot returns a copy of every turn in append order.
func (s *Shared) Snapshot() []models.Turn {
	return slices.Clone(s.turns)
}

func (s *Shared) Len() int {
	return len(s.turns)
}

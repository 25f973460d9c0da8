// Package history keeps a bounded stack of canvas snapshots for undo.
//
// The store is a ring buffer: pushing past capacity overwrites the oldest
// snapshot. The oldest retained snapshot is the floor and is never removed by
// Undo.
package history

import (
	"errors"

	"kalam-backend/internal/shape"
)

const DefaultCapacity = 50

var ErrInvalidCapacity = errors.New("history capacity must be at least 1")

type Store struct {
	buf   [][]shape.Shape
	start int
	size  int
}

// New creates a store holding at most capacity snapshots, seeded with seed.
func New(capacity int, seed []shape.Shape) (*Store, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	s := &Store{buf: make([][]shape.Shape, capacity)}
	s.Push(seed)
	return s, nil
}

func (s *Store) Cap() int { return len(s.buf) }

func (s *Store) Len() int { return s.size }

// Push records a deep copy of state as the newest snapshot.
func (s *Store) Push(state []shape.Shape) {
	snap := shape.CloneAll(state)
	if s.size < len(s.buf) {
		s.buf[(s.start+s.size)%len(s.buf)] = snap
		s.size++
		return
	}
	s.buf[s.start] = snap
	s.start = (s.start + 1) % len(s.buf)
}

// Top returns a copy of the newest snapshot.
func (s *Store) Top() []shape.Shape {
	if s.size == 0 {
		return []shape.Shape{}
	}
	return shape.CloneAll(s.buf[s.index(s.size-1)])
}

// Undo discards the newest snapshot and returns a copy of the one below it.
// When only the floor snapshot remains it returns false and changes nothing.
func (s *Store) Undo() ([]shape.Shape, bool) {
	if s.size <= 1 {
		return nil, false
	}
	s.buf[s.index(s.size-1)] = nil
	s.size--
	return s.Top(), true
}

// Reset drops every snapshot and reseeds the store with state.
func (s *Store) Reset(state []shape.Shape) {
	for i := range s.buf {
		s.buf[i] = nil
	}
	s.start, s.size = 0, 0
	s.Push(state)
}

// Clear releases all snapshots, e.g. when the canvas view is torn down.
func (s *Store) Clear() {
	for i := range s.buf {
		s.buf[i] = nil
	}
	s.start, s.size = 0, 0
}

func (s *Store) index(i int) int {
	return (s.start + i) % len(s.buf)
}

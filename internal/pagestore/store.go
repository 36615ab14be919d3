// Package pagestore holds the loaded page handles of one document.
package pagestore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/five82/folio/internal/engine"
)

var (
	// ErrOutOfOrder is returned when a page is appended at the wrong index.
	ErrOutOfOrder = errors.New("page appended out of order")
	// ErrOutOfRange is returned for indices outside 0..Len.
	ErrOutOfRange = errors.New("page index out of range")
)

// Store is an ordered, append-only collection of page handles plus the set
// of pages with pending marks. It is owned by the interactive goroutine and
// is not safe for concurrent use.
type Store struct {
	pages   []engine.Page
	pending map[int]struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{pending: make(map[int]struct{})}
}

// Len reports the number of pages.
func (s *Store) Len() int {
	return len(s.pages)
}

// At returns the page at index i.
func (s *Store) At(i int) (engine.Page, bool) {
	if i < 0 || i >= len(s.pages) {
		return nil, false
	}
	return s.pages[i], true
}

// Append adds p, whose index must equal Len.
func (s *Store) Append(p engine.Page) error {
	if p == nil {
		return fmt.Errorf("append page: nil handle")
	}
	if p.Index() != len(s.pages) {
		return fmt.Errorf("append page %d at %d: %w", p.Index(), len(s.pages), ErrOutOfOrder)
	}
	s.pages = append(s.pages, p)
	return nil
}

// Rebind replaces the handle at index i and returns the previous one. The
// caller owns the returned handle.
func (s *Store) Rebind(i int, p engine.Page) (engine.Page, error) {
	if i < 0 || i >= len(s.pages) {
		return nil, fmt.Errorf("rebind page %d: %w", i, ErrOutOfRange)
	}
	if p == nil || p.Index() != i {
		return nil, fmt.Errorf("rebind page %d: %w", i, ErrOutOfOrder)
	}
	old := s.pages[i]
	s.pages[i] = p
	return old, nil
}

// ReleaseAll releases every handle and empties the store.
func (s *Store) ReleaseAll() {
	for _, p := range s.pages {
		p.Release()
	}
	s.pages = nil
	clear(s.pending)
}

// MarkPending flags page i as having unapplied marks.
func (s *Store) MarkPending(i int) error {
	if i < 0 || i >= len(s.pages) {
		return fmt.Errorf("mark page %d: %w", i, ErrOutOfRange)
	}
	s.pending[i] = struct{}{}
	return nil
}

// ClearPending removes page i from the pending set.
func (s *Store) ClearPending(i int) {
	delete(s.pending, i)
}

// HasPending reports whether page i has unapplied marks.
func (s *Store) HasPending(i int) bool {
	_, ok := s.pending[i]
	return ok
}

// Pending returns the pending page indices in ascending order.
func (s *Store) Pending() []int {
	out := make([]int, 0, len(s.pending))
	for i := range s.pending {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

package state

import (
	"fmt"
	"sync"
	"time"
)

// Layout summarizes the last layout pass.
type Layout struct {
	Page    int
	Columns int
	Scale   float64
}

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Path     string
	Kind     string
	Loaded   int
	Pages    int
	Complete bool
	Layout   Layout

	LastError   error
	ErrorCode   string
	Fatal       bool
	LastUpdated time.Time
	// WatchFailures counts consecutive failed checks of the open file.
	WatchFailures int
}

// IsStale returns true when the open file has been unreadable for
// multiple checks.
func (s Snapshot) IsStale() bool {
	return s.WatchFailures >= 2
}

// Store coordinates updates from the interactive goroutine and the file
// watcher.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Open resets the store for a newly opened document.
func (s *Store) Open(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = Snapshot{Path: path, LastUpdated: time.Now()}
}

// Progress records load progress.
func (s *Store) Progress(kind string, loaded, pages int, complete bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Kind = kind
	s.snapshot.Loaded = loaded
	s.snapshot.Pages = pages
	s.snapshot.Complete = complete
	s.snapshot.LastUpdated = time.Now()
}

// SetLayout records the last layout summary.
func (s *Store) SetLayout(l Layout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Layout = l
}

// Fail records an error. Fatal errors stay until the next Open; later
// non-fatal errors do not replace them.
func (s *Store) Fail(code string, err error, fatal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot.Fatal && !fatal {
		return
	}
	s.snapshot.LastError = err
	s.snapshot.ErrorCode = code
	s.snapshot.Fatal = fatal
	s.snapshot.LastUpdated = time.Now()
}

// ClearError forgets a non-fatal error.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot.Fatal {
		return
	}
	s.snapshot.LastError = nil
	s.snapshot.ErrorCode = ""
}

// WatchResult records the outcome of one file check. When err is non-nil
// the failure is counted; a success resets the count.
func (s *Store) WatchResult(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.snapshot.WatchFailures++
		return
	}
	s.snapshot.WatchFailures = 0
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

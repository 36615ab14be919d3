package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/five82/folio/internal/engine"
)

// EventKind identifies a session event.
type EventKind int

const (
	EventPageLoad EventKind = iota + 1
	EventDocComplete
	EventError
	EventSelectionChanged
	EventLayoutCompleted
	EventReload
	EventAlert
	EventGoToPage
)

func (k EventKind) String() string {
	switch k {
	case EventPageLoad:
		return "page-load"
	case EventDocComplete:
		return "doc-complete"
	case EventError:
		return "error"
	case EventSelectionChanged:
		return "selection-changed"
	case EventLayoutCompleted:
		return "layout-completed"
	case EventReload:
		return "reload"
	case EventAlert:
		return "alert"
	case EventGoToPage:
		return "go-to-page"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one notification to the host.
type Event struct {
	Kind EventKind
	// Count is the number of loaded pages for EventPageLoad.
	Count int
	// Code and Err describe EventError. Fatal errors end page loading.
	Code  Code
	Err   error
	Fatal bool
	// Start and End are the page range for EventSelectionChanged.
	Start, End int
	// Message carries script alerts.
	Message string
	// Page is the target of EventGoToPage.
	Page int
}

// Code is the host-facing error taxonomy.
type Code int

const (
	CodeNone                  Code = 0
	CodeUnsupportedFormat     Code = 1
	CodeEmptyDocument         Code = 2
	CodeUnableToLoad          Code = 4
	CodeUnsupportedEncryption Code = 5
	CodeAborted               Code = 6
	CodeOutOfMemory           Code = 7
	CodePasswordRequired      Code = 0x1000
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeUnsupportedFormat:
		return "unsupported format"
	case CodeEmptyDocument:
		return "empty document"
	case CodeUnableToLoad:
		return "unable to load"
	case CodeUnsupportedEncryption:
		return "unsupported encryption"
	case CodeAborted:
		return "aborted"
	case CodeOutOfMemory:
		return "out of memory"
	case CodePasswordRequired:
		return "password required"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// CodeOf classifies err. Unknown errors count as CodeUnableToLoad.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, engine.ErrPasswordRequired):
		return CodePasswordRequired
	case errors.Is(err, engine.ErrUnsupportedFormat):
		return CodeUnsupportedFormat
	case errors.Is(err, engine.ErrEmptyDocument):
		return CodeEmptyDocument
	case errors.Is(err, engine.ErrUnsupportedEncryption):
		return CodeUnsupportedEncryption
	case errors.Is(err, engine.ErrAborted):
		return CodeAborted
	case errors.Is(err, engine.ErrOutOfMemory):
		return CodeOutOfMemory
	default:
		return CodeUnableToLoad
	}
}

// Subscription receives events in publish order. Delivery never blocks the
// publisher; undelivered events queue without bound until Close.
type Subscription struct {
	out     chan Event
	bus     *bus
	mu      sync.Mutex
	q       []Event
	closing bool
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Events returns the delivery channel. It is closed after Close, or once
// queued events are delivered after the session ends its event stream.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Close stops delivery and unregisters the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.bus != nil {
			s.bus.remove(s)
		}
	})
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	s.q = append(s.q, ev)
	s.mu.Unlock()
	s.signal()
}

// finish closes the channel once everything queued has been delivered.
func (s *Subscription) finish() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.q) == 0 {
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.q[0]
		s.q[0] = Event{}
		s.q = s.q[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

// bus fans events out to subscriptions. Its only producer is the
// interactive goroutine.
type bus struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

func (b *bus) subscribe(replay []Event) *Subscription {
	s := &Subscription{
		out:  make(chan Event),
		bus:  b,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.q = append(s.q, replay...)
	go s.pump()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.finish()
		return s
	}
	b.subs = append(b.subs, s)
	return s
}

func (b *bus) publish(ev Event) {
	b.mu.Lock()
	subs := append([]*Subscription(nil), b.subs...)
	b.mu.Unlock()
	for _, s := range subs {
		s.push(ev)
	}
}

func (b *bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// close ends every subscription after its queued events are delivered.
func (b *bus) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, s := range subs {
		s.finish()
	}
}

package refresh

import (
	"fmt"
	"time"
)

// State is a point-in-time view of a coordinator.
type State[T any] struct {
	Data    T
	HasData bool

	// Loading is true while at least one attempt is in flight.
	Loading  bool
	InFlight int

	LastSync time.Time
	// SecondsAgo is derived from LastSync when the snapshot is taken.
	SecondsAgo int

	// Err is the failure of the most recently applied attempt. It is
	// cleared whenever a new attempt begins.
	Err    error
	Paused bool

	// Started counts attempts begun; Applied is the sequence number of the
	// last attempt whose outcome was applied.
	Started uint64
	Applied uint64
}

// Status is the type-erased projection of State used by groups and
// reporting surfaces.
type Status struct {
	Name       string
	HasData    bool
	Loading    bool
	InFlight   int
	Paused     bool
	LastSync   time.Time
	SecondsAgo int
	Err        error
	Started    uint64
	Applied    uint64
}

// EventKind identifies a coordinator event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventUpdated
	EventFailed
	EventDiscarded
	EventPaused
	EventResumed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventUpdated:
		return "updated"
	case EventFailed:
		return "failed"
	case EventDiscarded:
		return "discarded"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event reports a lifecycle step. Seq, Duration and Data are set for
// attempt events; Err for EventFailed and failed discards.
type Event[T any] struct {
	Kind     EventKind
	Seq      uint64
	At       time.Time
	Duration time.Duration
	Data     T
	Err      error
}

// FetchError wraps a failed fetch attempt.
type FetchError struct {
	Name string
	Seq  uint64
	Err  error
}

func (e *FetchError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("refresh: fetch failed: %v", e.Err)
	}
	return fmt.Sprintf("refresh %s: fetch failed: %v", e.Name, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Package eventlog merges heterogeneous timestamped events into one
// ordered per-trial timeline. It performs no unit conversion; ordering
// is always by timestamp, never by arrival order, because the audio,
// drawing and gaze producers are asynchronous.
package eventlog

import (
	"errors"
	"sort"
)

// ErrClosedLog is returned by Append after Finalize. Hitting it means
// a synchronization bug in the caller, not a recoverable condition.
var ErrClosedLog = errors.New("event log is finalized")

// Event is anything that can sit on the trial timeline.
type Event interface {
	// EventTime is the unix timestamp in seconds.
	EventTime() float64
	// EventKind distinguishes cue, landmark and gaze entries.
	EventKind() string
}

// Log is an append-only collection of events for one trial.
// Not safe for concurrent use; the acquisition loop is single-threaded.
type Log struct {
	events   []Event
	timeline *Timeline
}

// New returns an open, empty log.
func New() *Log {
	return &Log{}
}

// Append adds an event in O(1) amortized time. Fails with ErrClosedLog
// once the log has been finalized.
func (l *Log) Append(ev Event) error {
	if l.timeline != nil {
		return ErrClosedLog
	}
	l.events = append(l.events, ev)
	return nil
}

// Len reports the number of appended events.
func (l *Log) Len() int { return len(l.events) }

// Finalize sorts all events by timestamp (stable, so ties keep
// insertion order) and freezes the log. Idempotent: repeated calls
// return the same Timeline.
func (l *Log) Finalize() *Timeline {
	if l.timeline != nil {
		return l.timeline
	}
	sorted := make([]Event, len(l.events))
	copy(sorted, l.events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EventTime() < sorted[j].EventTime()
	})
	l.timeline = &Timeline{events: sorted}
	return l.timeline
}

// Timeline is the immutable, time-ordered view of a finalized log.
type Timeline struct {
	events []Event
}

// Events returns a copy of the ordered event slice.
func (t *Timeline) Events() []Event {
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Len reports the number of events on the timeline.
func (t *Timeline) Len() int { return len(t.events) }

// ByKind returns the ordered events of one kind.
func (t *Timeline) ByKind(kind string) []Event {
	var out []Event
	for _, ev := range t.events {
		if ev.EventKind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

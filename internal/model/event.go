// Package model defines the event record shared by log parsers and the
// trace builder.
package model

// Event is one row of an event log.
// Timestamps are nanoseconds since the Unix epoch; 0 means unknown.
type Event struct {
	// CaseID identifies the process instance the event belongs to.
	CaseID string

	// Activity is the event label.
	Activity string

	// Timestamp in nanoseconds since Unix epoch.
	Timestamp int64

	// Resource is the actor performing the activity. Optional.
	Resource string

	// Seq is the position of the event in its source, used to keep input
	// order among events with equal timestamps.
	Seq int64
}

// Valid reports whether the event carries the fields discovery needs.
func (e *Event) Valid() bool {
	return e.CaseID != "" && e.Activity != ""
}

// Reset clears the event for reuse from a pool.
func (e *Event) Reset() {
	*e = Event{}
}

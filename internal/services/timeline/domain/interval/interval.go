package interval

import (
	"cmp"
	"time"
)

// Interval is one continuous occupancy of a resource by a resident.
type Interval struct {
	ResidentID string
	ResourceID string
	Span
	// Priority is the source priority of the opening event.
	Priority int
	// Sequence is the store sequence of the opening event.
	Sequence int64
	// OpenedBy and ClosedBy name the events bounding the interval. ClosedBy is
	// empty while the interval is open.
	OpenedBy string
	ClosedBy string
}

// Compare is the total precedence order used wherever intervals are sorted:
// start ascending, priority descending, sequence ascending, then resident and
// resource ids.
func Compare(a, b Interval) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Sequence, b.Sequence); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ResidentID, b.ResidentID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ResourceID, b.ResourceID); c != 0 {
		return c
	}
	return CompareEnd(a.End, b.End)
}

// With returns a copy of iv restricted to span.
func (iv Interval) With(span Span) Interval {
	iv.Span = span
	return iv
}

// Duration of the interval, measuring open intervals up to until.
func (iv Interval) Duration(until time.Time) time.Duration {
	return iv.Span.Duration(until)
}

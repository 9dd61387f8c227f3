// Package interval turns an occupancy event log into half-open intervals per
// resident and resource.
package interval

import (
	"fmt"
	"time"
)

// Span is a half-open time range [Start, End). A zero End means the span is
// unbounded on the right.
type Span struct {
	Start time.Time
	End   time.Time
}

// Open reports whether the span has no end.
func (s Span) Open() bool { return s.End.IsZero() }

// Empty reports whether the span covers no time.
func (s Span) Empty() bool {
	return !s.Open() && !s.Start.Before(s.End)
}

// Contains reports whether instant t lies inside the span.
func (s Span) Contains(t time.Time) bool {
	return !t.Before(s.Start) && (s.Open() || t.Before(s.End))
}

// Overlaps reports whether the spans share any instant.
func (s Span) Overlaps(o Span) bool {
	return EndAfter(s.End, o.Start) && EndAfter(o.End, s.Start)
}

// Intersect returns the common part of two spans and whether it is non-empty.
func (s Span) Intersect(o Span) (Span, bool) {
	out := Span{Start: s.Start, End: MinEnd(s.End, o.End)}
	if o.Start.After(out.Start) {
		out.Start = o.Start
	}
	if out.Empty() {
		return Span{}, false
	}
	return out, true
}

// Duration returns the span length, measuring an open span up to until.
func (s Span) Duration(until time.Time) time.Duration {
	end := s.End
	if s.Open() {
		end = until
	}
	if !end.After(s.Start) {
		return 0
	}
	return end.Sub(s.Start)
}

// Validate checks the span is well formed for a query.
func (s Span) Validate() error {
	if s.Start.IsZero() && s.End.IsZero() {
		return nil
	}
	if !s.Open() && !s.Start.Before(s.End) {
		return fmt.Errorf("range start %s must precede end %s", s.Start.Format(time.RFC3339Nano), s.End.Format(time.RFC3339Nano))
	}
	return nil
}

func (s Span) String() string {
	end := "ongoing"
	if !s.Open() {
		end = s.End.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("[%s, %s)", s.Start.UTC().Format(time.RFC3339), end)
}

// EndAfter reports whether end, where zero means unbounded, lies after t.
func EndAfter(end, t time.Time) bool {
	return end.IsZero() || end.After(t)
}

// MinEnd returns the earlier of two ends, where zero means unbounded.
func MinEnd(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case a.Before(b):
		return a
	default:
		return b
	}
}

// CompareEnd orders ends with zero treated as unbounded.
func CompareEnd(a, b time.Time) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return 1
	case b.IsZero():
		return -1
	default:
		return a.Compare(b)
	}
}

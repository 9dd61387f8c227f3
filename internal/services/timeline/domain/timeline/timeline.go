// Package timeline assembles resolved intervals into a gap-annotated timeline
// for one resident or one resource.
package timeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/louisbranch/residency/internal/services/timeline/domain/interval"
)

// SubjectKind says whether a timeline follows a resident or a resource.
type SubjectKind uint8

const (
	SubjectUnspecified SubjectKind = iota
	SubjectResident
	SubjectResource
)

func (k SubjectKind) String() string {
	switch k {
	case SubjectResident:
		return "resident"
	case SubjectResource:
		return "resource"
	default:
		return "unspecified"
	}
}

// ParseSubjectKind maps a wire label to a SubjectKind.
func ParseSubjectKind(label string) (SubjectKind, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "resident":
		return SubjectResident, nil
	case "resource":
		return SubjectResource, nil
	default:
		return SubjectUnspecified, fmt.Errorf("unknown subject kind %q", label)
	}
}

// Subject identifies the resident or resource a timeline is about.
type Subject struct {
	Kind SubjectKind
	ID   string
}

func (s Subject) String() string { return s.Kind.String() + ":" + s.ID }

// Owns reports whether a record naming residentID on resourceID belongs to
// the subject itself rather than to something sharing its resources.
func (s Subject) Owns(residentID, resourceID string) bool {
	switch s.Kind {
	case SubjectResident:
		return strings.TrimSpace(residentID) == s.ID
	case SubjectResource:
		return strings.TrimSpace(resourceID) == s.ID
	default:
		return false
	}
}

// Validate checks the subject names a known kind and a non-empty id.
func (s Subject) Validate() error {
	if s.Kind != SubjectResident && s.Kind != SubjectResource {
		return fmt.Errorf("subject kind is required")
	}
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%s id is required", s.Kind)
	}
	return nil
}

// EntryKind distinguishes occupancy entries from inferred gaps.
type EntryKind uint8

const (
	EntryOccupied EntryKind = iota + 1
	EntryGap
)

func (k EntryKind) String() string {
	if k == EntryGap {
		return "gap"
	}
	return "occupied"
}

// Entry is one element of a timeline. An ongoing entry has a zero End.
type Entry struct {
	Kind  EntryKind
	Start time.Time
	End   time.Time
	// Ongoing marks an occupancy still open at the end of the range.
	Ongoing    bool
	ResidentID string
	ResourceID string
	Priority   int
	EventID    string
}

// Span returns the entry's time range.
func (e Entry) Span() interval.Span { return interval.Span{Start: e.Start, End: e.End} }

// Summary holds statistics derived from the entries.
type Summary struct {
	Total      time.Duration
	Occupied   time.Duration
	Vacant     time.Duration
	Gaps       int
	LongestGap time.Duration
	// Distinct counts occupants for resource timelines and resources for
	// resident timelines.
	Distinct int
}

// Timeline is the ordered partition of a bounded range.
type Timeline struct {
	Subject Subject
	Range   interval.Span
	Entries []Entry
	Summary Summary
}

// ErrUnboundedRange is returned when Build is given a range with no end.
var ErrUnboundedRange = errors.New("timeline range must be bounded")

// OverlapError reports resolved input that still overlaps.
type OverlapError struct {
	First  interval.Interval
	Second interval.Interval
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("intervals overlap: %s %s %s and %s %s %s",
		e.First.ResidentID, e.First.ResourceID, e.First.Span,
		e.Second.ResidentID, e.Second.ResourceID, e.Second.Span)
}

// Build partitions rng into occupied and gap entries. An empty range yields a
// timeline with no entries.
//
// Intervals must be conflict-free; overlapping input fails with
// *OverlapError. Intervals are clipped to rng. An interval with no end that
// reaches the end of rng becomes an ongoing entry with a zero End; its
// duration counts up to rng.End.
func Build(subject Subject, intervals []interval.Interval, rng interval.Span) (Timeline, error) {
	if rng.Open() {
		return Timeline{}, ErrUnboundedRange
	}
	if rng.End.Before(rng.Start) {
		return Timeline{}, fmt.Errorf("range start %s is after end %s", rng.Start.Format(time.RFC3339Nano), rng.End.Format(time.RFC3339Nano))
	}
	if rng.Start.Equal(rng.End) {
		return Timeline{Subject: subject, Range: rng}, nil
	}

	var clipped []interval.Interval
	for _, iv := range intervals {
		part, ok := iv.Intersect(rng)
		if !ok {
			continue
		}
		clipped = append(clipped, iv.With(interval.Span{Start: part.Start, End: iv.End}))
	}
	slices.SortFunc(clipped, interval.Compare)
	for i := 1; i < len(clipped); i++ {
		if clipped[i-1].Overlaps(clipped[i].Span) {
			return Timeline{}, &OverlapError{First: clipped[i-1], Second: clipped[i]}
		}
	}

	tl := Timeline{Subject: subject, Range: rng}
	cursor := rng.Start
	for _, iv := range clipped {
		if iv.Start.After(cursor) {
			tl.Entries = append(tl.Entries, Entry{Kind: EntryGap, Start: cursor, End: iv.Start})
		}
		entry := Entry{
			Kind:       EntryOccupied,
			Start:      iv.Start,
			ResidentID: iv.ResidentID,
			ResourceID: iv.ResourceID,
			Priority:   iv.Priority,
			EventID:    iv.OpenedBy,
		}
		if iv.Open() {
			entry.Ongoing = true
			cursor = rng.End
		} else {
			entry.End = interval.MinEnd(iv.End, rng.End)
			cursor = entry.End
		}
		tl.Entries = append(tl.Entries, entry)
	}
	if cursor.Before(rng.End) {
		tl.Entries = append(tl.Entries, Entry{Kind: EntryGap, Start: cursor, End: rng.End})
	}
	tl.Summary = summarize(subject, tl.Entries, rng)
	return tl, nil
}

func summarize(subject Subject, entries []Entry, rng interval.Span) Summary {
	s := Summary{Total: rng.Duration(rng.End)}
	distinct := make(map[string]struct{})
	for _, e := range entries {
		d := e.Span().Duration(rng.End)
		switch e.Kind {
		case EntryGap:
			s.Gaps++
			s.Vacant += d
			s.LongestGap = max(s.LongestGap, d)
		case EntryOccupied:
			s.Occupied += d
			if subject.Kind == SubjectResident {
				distinct[e.ResourceID] = struct{}{}
			} else {
				distinct[e.ResidentID] = struct{}{}
			}
		}
	}
	s.Distinct = len(distinct)
	return s
}

// At returns the occupied entry covering instant t, if any.
func (tl Timeline) At(t time.Time) (Entry, bool) {
	for _, e := range tl.Entries {
		if e.Kind != EntryOccupied {
			continue
		}
		span := e.Span()
		if e.Ongoing {
			span.End = tl.Range.End
		}
		if span.Contains(t) {
			return e, true
		}
	}
	return Entry{}, false
}

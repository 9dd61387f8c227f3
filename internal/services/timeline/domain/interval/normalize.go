package interval

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/louisbranch/residency/internal/services/timeline/domain/event"
)

// MalformedEventError reports a structural violation in the event log. It is
// surfaced to the caller and never corrected.
type MalformedEventError struct {
	EventID    string
	ResidentID string
	ResourceID string
	Kind       event.Kind
	Timestamp  time.Time
	Reason     string
}

func (e *MalformedEventError) Error() string {
	if e == nil {
		return "malformed event"
	}
	id := e.EventID
	if id == "" {
		id = "<unnamed>"
	}
	return fmt.Sprintf("malformed event %s (%s %s on %s at %s): %s",
		id, e.Kind, e.ResidentID, e.ResourceID, e.Timestamp.UTC().Format(time.RFC3339Nano), e.Reason)
}

const (
	reasonInvalid          = "invalid event"
	reasonDoubleAssignment = "assign at another priority while an assignment to the same resource is open"
	reasonOrphanRelease    = "release without an open assignment"
)

func malformed(evt event.Event, reason string) *MalformedEventError {
	return &MalformedEventError{
		EventID:    evt.ID,
		ResidentID: evt.ResidentID,
		ResourceID: evt.ResourceID,
		Kind:       evt.Kind,
		Timestamp:  evt.Timestamp,
		Reason:     reason,
	}
}

type pairKey struct {
	resident string
	resource string
}

// Normalize folds events into raw intervals.
//
// Events are processed in log order (timestamp, then sequence) whatever the
// input order. An assign opens an interval for its (resident, resource) pair;
// a release closes every interval open on the pair. A transfer closes every
// interval its resident holds and opens one on the event's resource.
//
// An assign onto a pair that is already open at the same priority opens a
// second, overlapping interval; the resolver reports the overlap as a
// conflict. At a different priority it fails with *MalformedEventError, as
// does a release with nothing open. Intervals that would close at their own
// start are dropped.
//
// The output is sorted by Compare and may overlap; that is the resolver's
// concern.
func Normalize(events []event.Event) ([]Interval, error) {
	ordered := event.Sorted(events)

	var closed []Interval
	open := make(map[pairKey][]Interval)
	byResident := make(map[string][]string)

	closePair := func(key pairKey, at event.Event) {
		for _, iv := range open[key] {
			if !at.Timestamp.After(iv.Start) {
				continue
			}
			iv.End = at.Timestamp
			iv.ClosedBy = at.ID
			closed = append(closed, iv)
		}
		delete(open, key)
		byResident[key.resident] = slices.DeleteFunc(byResident[key.resident], func(r string) bool { return r == key.resource })
	}
	openPair := func(key pairKey, at event.Event) {
		if len(open[key]) == 0 {
			byResident[key.resident] = append(byResident[key.resident], key.resource)
		}
		open[key] = append(open[key], Interval{
			ResidentID: key.resident,
			ResourceID: key.resource,
			Span:       Span{Start: at.Timestamp},
			Priority:   at.SourcePriority,
			Sequence:   at.Sequence,
			OpenedBy:   at.ID,
		})
	}

	for _, evt := range ordered {
		if err := evt.Validate(); err != nil {
			return nil, malformed(evt, reasonInvalid+": "+err.Error())
		}
		key := pairKey{resident: strings.TrimSpace(evt.ResidentID), resource: strings.TrimSpace(evt.ResourceID)}

		switch evt.Kind {
		case event.KindAssign:
			if held := open[key]; len(held) > 0 && held[0].Priority != evt.SourcePriority {
				return nil, malformed(evt, reasonDoubleAssignment)
			}
			openPair(key, evt)
		case event.KindRelease:
			if len(open[key]) == 0 {
				return nil, malformed(evt, reasonOrphanRelease)
			}
			closePair(key, evt)
		case event.KindTransfer:
			held := slices.Clone(byResident[key.resident])
			for _, resource := range held {
				closePair(pairKey{resident: key.resident, resource: resource}, evt)
			}
			openPair(key, evt)
		default:
			return nil, malformed(evt, reasonInvalid)
		}
	}

	out := closed
	for _, ivs := range open {
		out = append(out, ivs...)
	}
	slices.SortFunc(out, Compare)
	return out, nil
}

// NormalizeResidents normalizes each resident's events on their own, so one
// resident's malformed stream never hides another's intervals. Residents are
// independent because a transfer only closes its own resident's intervals.
//
// Residents whose stream is malformed contribute no intervals; their first
// error is returned in failed, ordered by resident id.
func NormalizeResidents(events []event.Event) (intervals []Interval, failed []*MalformedEventError) {
	groups := make(map[string][]event.Event)
	for _, evt := range events {
		id := strings.TrimSpace(evt.ResidentID)
		groups[id] = append(groups[id], evt)
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		ivs, err := Normalize(groups[id])
		if err != nil {
			var bad *MalformedEventError
			if !errors.As(err, &bad) {
				bad = &MalformedEventError{ResidentID: id, Reason: err.Error()}
			}
			failed = append(failed, bad)
			continue
		}
		intervals = append(intervals, ivs...)
	}
	slices.SortFunc(intervals, Compare)
	return intervals, failed
}

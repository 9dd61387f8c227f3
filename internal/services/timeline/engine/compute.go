package engine

import (
	"github.com/louisbranch/residency/internal/services/timeline/domain/conflict"
	"github.com/louisbranch/residency/internal/services/timeline/domain/event"
	"github.com/louisbranch/residency/internal/services/timeline/domain/interval"
	"github.com/louisbranch/residency/internal/services/timeline/domain/timeline"
	"github.com/louisbranch/residency/internal/services/timeline/projection"
)

// compute runs the pure pipeline for one subject.
//
// Each resident's events are normalized on their own. A malformed stream
// that belongs to the subject fails it; any other malformed resident is left
// out and listed in Excluded.
//
// Resource timelines resolve the resource lane only. Resident timelines first
// resolve every resource lane they touch, so higher priority occupants of a
// shared resource win, and then resolve the resident lane so the resident is
// never in two places at once.
func compute(subject timeline.Subject, window interval.Span, policy conflict.Policy, events []event.Event, key projection.Fingerprint) (Projection, error) {
	raw, failed := interval.NormalizeResidents(events)
	var excluded []*interval.MalformedEventError
	for _, bad := range failed {
		if subject.Owns(bad.ResidentID, bad.ResourceID) {
			return Projection{}, bad
		}
		excluded = append(excluded, bad)
	}

	var (
		resolved  []interval.Interval
		conflicts []conflict.UnresolvedConflict
	)
	switch subject.Kind {
	case timeline.SubjectResource:
		byResource := conflict.Resolve(keep(raw, func(iv interval.Interval) bool { return iv.ResourceID == subject.ID }), conflict.LaneResource, policy)
		resolved = byResource.Intervals
		conflicts = byResource.Conflicts
	case timeline.SubjectResident:
		byResource := conflict.Resolve(raw, conflict.LaneResource, policy)
		own := keep(byResource.Intervals, func(iv interval.Interval) bool { return iv.ResidentID == subject.ID })
		byResident := conflict.Resolve(own, conflict.LaneResident, policy)
		resolved = byResident.Intervals
		for _, c := range byResource.Conflicts {
			if c.Involves(subject.ID) {
				conflicts = append(conflicts, c)
			}
		}
		conflicts = append(conflicts, byResident.Conflicts...)
	}

	tl, err := timeline.Build(subject, resolved, window)
	if err != nil {
		return Projection{}, err
	}
	return Projection{
		Timeline:    tl,
		Conflicts:   clipConflicts(conflicts, window),
		Fingerprint: key,
		EventCount:  len(events),
		Excluded:    excluded,
	}, nil
}

func keep(ivs []interval.Interval, pred func(interval.Interval) bool) []interval.Interval {
	var out []interval.Interval
	for _, iv := range ivs {
		if pred(iv) {
			out = append(out, iv)
		}
	}
	return out
}

// clipConflicts drops conflicts outside window and trims the rest to it. A
// conflict still open at the end of the window stays open.
func clipConflicts(conflicts []conflict.UnresolvedConflict, window interval.Span) []conflict.UnresolvedConflict {
	var out []conflict.UnresolvedConflict
	for _, c := range conflicts {
		part, ok := c.Span.Intersect(window)
		if !ok {
			continue
		}
		if c.Span.Open() {
			part.End = c.Span.End
		}
		c.Span = part
		out = append(out, c)
	}
	return out
}

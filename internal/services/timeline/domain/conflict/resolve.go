// Package conflict resolves overlapping intervals into a conflict-free set.
//
// Resolution works per lane: all intervals sharing a lane key (a resource, or
// a resident) compete for the same time. Within a lane, every instant goes to
// the covering interval with the highest source priority. An interval
// therefore loses exactly the portion overlapped by higher priority intervals;
// truncating its end and delaying its start are the two edge forms, and a
// fully enclosed higher priority interval splits it.
//
// Instants claimed by two or more intervals of the same top priority are true
// conflicts. They are always reported as UnresolvedConflict values. Under
// PolicyEscalate the contested time is withheld from every party; under
// PolicyEarliest it is awarded by precedence order and the report is marked
// TieBroken.
//
// Output depends only on the input set, never on its order.
package conflict

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/louisbranch/residency/internal/services/timeline/domain/interval"
)

// Policy decides what happens to time contested at equal priority.
type Policy uint8

const (
	// PolicyEscalate withholds contested time from all parties.
	PolicyEscalate Policy = iota
	// PolicyEarliest awards contested time to the first party in precedence
	// order.
	PolicyEarliest
)

func (p Policy) String() string {
	switch p {
	case PolicyEarliest:
		return "earliest"
	default:
		return "escalate"
	}
}

// ParsePolicy maps a configuration label to a Policy. Empty means escalate.
func ParsePolicy(label string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "escalate":
		return PolicyEscalate, nil
	case "earliest":
		return PolicyEarliest, nil
	default:
		return PolicyEscalate, fmt.Errorf("unknown tie-break policy %q", label)
	}
}

// Lane selects what intervals compete with each other.
type Lane uint8

const (
	// LaneResource: a resource holds one resident at a time.
	LaneResource Lane = iota
	// LaneResident: a resident occupies one resource at a time.
	LaneResident
)

func (l Lane) String() string {
	if l == LaneResident {
		return "resident"
	}
	return "resource"
}

func (l Lane) key(iv interval.Interval) string {
	if l == LaneResident {
		return iv.ResidentID
	}
	return iv.ResourceID
}

// Party is one claimant in a conflict.
type Party struct {
	ResidentID string
	ResourceID string
	Priority   int
	// EventID is the event that opened the claiming interval.
	EventID string
}

// UnresolvedConflict is a maximal span during which the same parties claim a
// lane at equal priority. It is a result, not an error.
type UnresolvedConflict struct {
	Lane    Lane
	LaneID  string
	Span    interval.Span
	Parties []Party
	// TieBroken is set when the policy awarded the span to Parties[0].
	TieBroken bool
}

// ResourceID returns the contested resource for resource-lane conflicts.
func (c UnresolvedConflict) ResourceID() string {
	if c.Lane == LaneResource {
		return c.LaneID
	}
	return ""
}

// Involves reports whether residentID is a party to the conflict.
func (c UnresolvedConflict) Involves(residentID string) bool {
	return slices.ContainsFunc(c.Parties, func(p Party) bool { return p.ResidentID == residentID })
}

// Result is the conflict-free interval set plus the conflicts found.
type Result struct {
	Intervals []interval.Interval
	Conflicts []UnresolvedConflict
}

// Resolve resolves every lane present in intervals.
func Resolve(intervals []interval.Interval, lane Lane, policy Policy) Result {
	groups := make(map[string][]interval.Interval)
	for _, iv := range intervals {
		if iv.Empty() {
			continue
		}
		k := lane.key(iv)
		groups[k] = append(groups[k], iv)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var out Result
	for _, k := range keys {
		resolved, conflicts := resolveLane(groups[k], lane, k, policy)
		out.Intervals = append(out.Intervals, resolved...)
		out.Conflicts = append(out.Conflicts, conflicts...)
	}
	slices.SortFunc(out.Intervals, interval.Compare)
	slices.SortFunc(out.Conflicts, compareConflicts)
	return out
}

// segment is an elementary range between consecutive lane boundaries; no
// interval starts or ends strictly inside it.
type segment struct {
	span    interval.Span
	covered []int
}

func resolveLane(group []interval.Interval, lane Lane, laneID string, policy Policy) ([]interval.Interval, []UnresolvedConflict) {
	ivs := slices.Clone(group)
	slices.SortFunc(ivs, interval.Compare)

	pieces := make([][]interval.Span, len(ivs))
	var conflicts []UnresolvedConflict

	for _, seg := range segments(ivs) {
		top := topClaimants(ivs, seg.covered)
		winner := top[0]
		if len(top) > 1 {
			conflicts = appendConflict(conflicts, lane, laneID, seg.span, ivs, top, policy == PolicyEarliest)
			if policy == PolicyEscalate {
				continue
			}
		}
		pieces[winner] = appendPiece(pieces[winner], seg.span)
	}

	var out []interval.Interval
	for i, spans := range pieces {
		for _, span := range spans {
			out = append(out, ivs[i].With(span))
		}
	}
	return out, conflicts
}

func segments(ivs []interval.Interval) []segment {
	bounds := make([]time.Time, 0, 2*len(ivs))
	anyOpen := false
	for _, iv := range ivs {
		bounds = append(bounds, iv.Start)
		if iv.Open() {
			anyOpen = true
		} else {
			bounds = append(bounds, iv.End)
		}
	}
	slices.SortFunc(bounds, time.Time.Compare)
	bounds = slices.CompactFunc(bounds, time.Time.Equal)

	var segs []segment
	for i, start := range bounds {
		span := interval.Span{Start: start}
		if i+1 < len(bounds) {
			span.End = bounds[i+1]
		} else if !anyOpen {
			break
		}
		var covered []int
		for j, iv := range ivs {
			if !iv.Start.After(span.Start) && interval.CompareEnd(iv.End, span.End) >= 0 {
				covered = append(covered, j)
			}
		}
		if len(covered) > 0 {
			segs = append(segs, segment{span: span, covered: covered})
		}
	}
	return segs
}

// topClaimants returns the covering indexes sharing the highest priority, in
// precedence order.
func topClaimants(ivs []interval.Interval, covered []int) []int {
	best := ivs[covered[0]].Priority
	for _, i := range covered[1:] {
		best = max(best, ivs[i].Priority)
	}
	var top []int
	for _, i := range covered {
		if ivs[i].Priority == best {
			top = append(top, i)
		}
	}
	return top
}

func appendPiece(spans []interval.Span, span interval.Span) []interval.Span {
	if n := len(spans); n > 0 && !spans[n-1].Open() && spans[n-1].End.Equal(span.Start) {
		spans[n-1].End = span.End
		return spans
	}
	return append(spans, span)
}

func appendConflict(conflicts []UnresolvedConflict, lane Lane, laneID string, span interval.Span, ivs []interval.Interval, top []int, tieBroken bool) []UnresolvedConflict {
	parties := make([]Party, 0, len(top))
	for _, i := range top {
		parties = append(parties, Party{
			ResidentID: ivs[i].ResidentID,
			ResourceID: ivs[i].ResourceID,
			Priority:   ivs[i].Priority,
			EventID:    ivs[i].OpenedBy,
		})
	}
	if n := len(conflicts); n > 0 {
		last := &conflicts[n-1]
		if !last.Span.Open() && last.Span.End.Equal(span.Start) && slices.Equal(last.Parties, parties) {
			last.Span.End = span.End
			return conflicts
		}
	}
	return append(conflicts, UnresolvedConflict{
		Lane:      lane,
		LaneID:    laneID,
		Span:      span,
		Parties:   parties,
		TieBroken: tieBroken,
	})
}

func compareConflicts(a, b UnresolvedConflict) int {
	if c := cmp.Compare(a.Lane, b.Lane); c != 0 {
		return c
	}
	if c := cmp.Compare(a.LaneID, b.LaneID); c != 0 {
		return c
	}
	if c := a.Span.Start.Compare(b.Span.Start); c != 0 {
		return c
	}
	return interval.CompareEnd(a.Span.End, b.Span.End)
}

// ConflictFree reports whether no two intervals in the same lane overlap.
func ConflictFree(intervals []interval.Interval, lane Lane) bool {
	for i, a := range intervals {
		for _, b := range intervals[i+1:] {
			if lane.key(a) == lane.key(b) && a.Overlaps(b.Span) {
				return false
			}
		}
	}
	return true
}

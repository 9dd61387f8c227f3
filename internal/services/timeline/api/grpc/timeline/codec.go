package timeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/louisbranch/residency/internal/platform/errors"
	"github.com/louisbranch/residency/internal/services/timeline/domain/conflict"
	"github.com/louisbranch/residency/internal/services/timeline/domain/event"
	"github.com/louisbranch/residency/internal/services/timeline/domain/interval"
	"github.com/louisbranch/residency/internal/services/timeline/domain/timeline"
	"github.com/louisbranch/residency/internal/services/timeline/engine"
	"github.com/louisbranch/residency/internal/services/timeline/storage"
)

// request wraps the fields of an incoming Struct.
type request map[string]*structpb.Value

func newRequest(in *structpb.Struct) request {
	return request(in.GetFields())
}

func (r request) str(key string) string {
	return strings.TrimSpace(r[key].GetStringValue())
}

func (r request) int32(key string) int32 {
	v, ok := r[key]
	if !ok {
		return 0
	}
	n := v.GetNumberValue()
	switch {
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < math.MinInt32:
		return math.MinInt32
	}
	return int32(n)
}

// time parses an RFC 3339 field. Absent or empty fields are the zero time.
func (r request) time(key string) (time.Time, error) {
	raw := r.str(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, apperrors.WrapWithMetadata(apperrors.CodeInvalidRange, "parse "+key, map[string]string{
			"start": r.str("start"),
			"end":   r.str("end"),
		}, err)
	}
	return t.UTC(), nil
}

func (r request) span() (interval.Span, error) {
	start, err := r.time("start")
	if err != nil {
		return interval.Span{}, err
	}
	end, err := r.time("end")
	if err != nil {
		return interval.Span{}, err
	}
	return interval.Span{Start: start, End: end}, nil
}

func (r request) policy(fallback conflict.Policy) (conflict.Policy, error) {
	raw := r.str("tie_break")
	if raw == "" {
		return fallback, nil
	}
	policy, err := conflict.ParsePolicy(raw)
	if err != nil {
		return fallback, apperrors.Wrap(apperrors.CodeInvalidTieBreak, "parse tie_break", err)
	}
	return policy, nil
}

func decodeSubject(fields map[string]*structpb.Value) (timeline.Subject, error) {
	r := request(fields)
	kind, err := timeline.ParseSubjectKind(r.str("kind"))
	if err != nil {
		return timeline.Subject{}, apperrors.Wrap(apperrors.CodeInvalidScope, "parse subject kind", err)
	}
	return timeline.Subject{Kind: kind, ID: r.str("id")}, nil
}

func encodeTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func encodeSpan(s interval.Span) map[string]any {
	return map[string]any{"start": encodeTime(s.Start), "end": encodeTime(s.End)}
}

func encodeSubject(s timeline.Subject) map[string]any {
	return map[string]any{"kind": s.Kind.String(), "id": s.ID}
}

func millis(d time.Duration) int64 { return d.Milliseconds() }

func encodeProjection(p engine.Projection) map[string]any {
	tl := p.Timeline
	entries := make([]any, 0, len(tl.Entries))
	for _, e := range tl.Entries {
		entry := map[string]any{
			"kind":    e.Kind.String(),
			"start":   encodeTime(e.Start),
			"end":     encodeTime(e.End),
			"ongoing": e.Ongoing,
		}
		if e.Kind == timeline.EntryOccupied {
			entry["resident_id"] = e.ResidentID
			entry["resource_id"] = e.ResourceID
			entry["priority"] = e.Priority
			entry["event_id"] = e.EventID
		}
		entries = append(entries, entry)
	}
	return map[string]any{
		"subject": encodeSubject(tl.Subject),
		"range":   encodeSpan(tl.Range),
		"entries": entries,
		"summary": map[string]any{
			"total_ms":       millis(tl.Summary.Total),
			"occupied_ms":    millis(tl.Summary.Occupied),
			"vacant_ms":      millis(tl.Summary.Vacant),
			"gaps":           tl.Summary.Gaps,
			"longest_gap_ms": millis(tl.Summary.LongestGap),
			"distinct":       tl.Summary.Distinct,
		},
		"conflicts":   encodeConflicts(p.Conflicts),
		"excluded":    encodeExcluded(p.Excluded),
		"fingerprint": string(p.Fingerprint),
		"event_count": p.EventCount,
	}
}

func encodeExcluded(excluded []*interval.MalformedEventError) []any {
	out := make([]any, 0, len(excluded))
	for _, bad := range excluded {
		out = append(out, map[string]any{
			"resident_id": bad.ResidentID,
			"resource_id": bad.ResourceID,
			"event_id":    bad.EventID,
			"reason":      bad.Reason,
		})
	}
	return out
}

func encodeConflicts(conflicts []conflict.UnresolvedConflict) []any {
	out := make([]any, 0, len(conflicts))
	for _, c := range conflicts {
		parties := make([]any, 0, len(c.Parties))
		for _, p := range c.Parties {
			parties = append(parties, map[string]any{
				"resident_id": p.ResidentID,
				"resource_id": p.ResourceID,
				"priority":    p.Priority,
				"event_id":    p.EventID,
			})
		}
		out = append(out, map[string]any{
			"lane":       c.Lane.String(),
			"lane_id":    c.LaneID,
			"span":       encodeSpan(c.Span),
			"parties":    parties,
			"tie_broken": c.TieBroken,
		})
	}
	return out
}

func encodeOccupants(occupants []engine.Occupant) []any {
	out := make([]any, 0, len(occupants))
	for _, o := range occupants {
		out = append(out, map[string]any{
			"resident_id": o.ResidentID,
			"resource_id": o.ResourceID,
			"since":       encodeTime(o.Since),
			"event_id":    o.EventID,
			"contested":   o.Contested,
		})
	}
	return out
}

func encodeEvents(events []event.Event) []any {
	out := make([]any, 0, len(events))
	for _, e := range events {
		out = append(out, map[string]any{
			"id":              e.ID,
			"resident_id":     e.ResidentID,
			"resource_id":     e.ResourceID,
			"kind":            e.Kind.String(),
			"timestamp":       encodeTime(e.Timestamp),
			"source_priority": e.SourcePriority,
			"sequence":        e.Sequence,
		})
	}
	return out
}

func encodeResidents(residents []storage.Resident) []any {
	out := make([]any, 0, len(residents))
	for _, r := range residents {
		out = append(out, map[string]any{"id": r.ID, "display_name": r.DisplayName})
	}
	return out
}

func toStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

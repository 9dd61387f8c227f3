package engine

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/louisbranch/residency/internal/services/timeline/domain/event"
	"github.com/louisbranch/residency/internal/services/timeline/domain/interval"
	"github.com/louisbranch/residency/internal/services/timeline/domain/timeline"
	"github.com/louisbranch/residency/internal/services/timeline/storage"
)

// fakeReader is an in-memory Reader with the same scoping rules as the SQLite
// store. reverse returns events newest first to exercise order independence.
type fakeReader struct {
	mu      sync.Mutex
	events  []event.Event
	reverse bool
	fetches atomic.Int64
	err     error
}

func (f *fakeReader) add(events ...event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, evt := range events {
		evt.Sequence = int64(len(f.events) + 1)
		f.events = append(f.events, evt)
	}
}

func (f *fakeReader) FetchEvents(_ context.Context, subject timeline.Subject, rng interval.Span) ([]event.Event, error) {
	f.fetches.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	before := func(e event.Event) bool { return rng.End.IsZero() || e.Timestamp.Before(rng.End) }
	resources := map[string]bool{}
	for _, e := range f.events {
		if !before(e) {
			continue
		}
		if (subject.Kind == timeline.SubjectResource && e.ResourceID == subject.ID) ||
			(subject.Kind == timeline.SubjectResident && e.ResidentID == subject.ID) {
			resources[e.ResourceID] = true
		}
	}
	seen := map[string]bool{}
	for _, e := range f.events {
		if before(e) && resources[e.ResourceID] {
			seen[e.ResidentID] = true
		}
	}
	var out []event.Event
	for _, e := range f.events {
		if before(e) && (resources[e.ResourceID] || (e.Kind == event.KindTransfer && seen[e.ResidentID])) {
			out = append(out, e)
		}
	}
	out = event.Sorted(out)
	if f.reverse {
		slices.Reverse(out)
	}
	return out, nil
}

func (f *fakeReader) FetchClosing(_ context.Context, pairs []storage.Pair, from time.Time) ([]event.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	ordered := event.Sorted(f.events)
	seen := map[int64]bool{}
	var out []event.Event
	for _, p := range pairs {
		for _, e := range ordered {
			if e.Timestamp.Before(from) || e.ResidentID != p.ResidentID {
				continue
			}
			if e.Kind == event.KindTransfer || (e.Kind == event.KindRelease && e.ResourceID == p.ResourceID) {
				if !seen[e.Sequence] {
					seen[e.Sequence] = true
					out = append(out, e)
				}
				break
			}
		}
	}
	return event.Sorted(out), nil
}

func (f *fakeReader) ListEvents(_ context.Context, req storage.ListEventsRequest) (storage.EventPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := min(req.PageSize, len(f.events))
	return storage.EventPage{Events: slices.Clone(f.events[:n])}, nil
}

func (f *fakeReader) ListResidents(_ context.Context, pageSize int, _ string) (storage.ResidentPage, error) {
	return storage.ResidentPage{Residents: []storage.Resident{{ID: "R1"}}[:min(pageSize, 1)]}, nil
}

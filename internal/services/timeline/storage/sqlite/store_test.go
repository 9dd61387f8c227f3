package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/residency/internal/services/timeline/domain/event"
	"github.com/louisbranch/residency/internal/services/timeline/domain/interval"
	"github.com/louisbranch/residency/internal/services/timeline/domain/timeline"
	"github.com/louisbranch/residency/internal/services/timeline/storage"
)

var epoch = time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

func at(hours int) time.Time { return epoch.Add(time.Duration(hours) * time.Hour) }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "residency.db"), WithClock(func() time.Time { return epoch }))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func appendEvents(t *testing.T, store *Store, events ...event.Event) []event.Event {
	t.Helper()
	stored, err := store.AppendEvents(context.Background(), events)
	if err != nil {
		t.Fatalf("append events: %v", err)
	}
	return stored
}

func ev(id string, kind event.Kind, resident, resource string, hour int) event.Event {
	return event.Event{ID: id, Kind: kind, ResidentID: resident, ResourceID: resource, Timestamp: at(hour), SourcePriority: 1}
}

func ids(events []event.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func equalIDs(t *testing.T, got []event.Event, want ...string) {
	t.Helper()
	have := ids(got)
	if len(have) != len(want) {
		t.Fatalf("ids = %v, want %v", have, want)
	}
	for i := range want {
		if have[i] != want[i] {
			t.Fatalf("ids = %v, want %v", have, want)
		}
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenIsIdempotentAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "residency.db")
	first, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	appendEvents(t, first, ev("a1", event.KindAssign, "R1", "U1", 0))
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	got, err := second.FetchEvents(context.Background(), timeline.Subject{Kind: timeline.SubjectResource, ID: "U1"}, interval.Span{})
	if err != nil {
		t.Fatalf("fetch after reopen: %v", err)
	}
	equalIDs(t, got, "a1")
}

func TestAppendAssignsSequenceAndIDs(t *testing.T) {
	store := openTestStore(t)
	unnamed := ev("", event.KindAssign, "R1", "U1", 0)
	unnamed.Timestamp = unnamed.Timestamp.Add(1500 * time.Microsecond)

	stored := appendEvents(t, store, unnamed, ev("x1", event.KindRelease, "R1", "U1", 2))
	if stored[0].ID == "" {
		t.Fatal("expected generated id")
	}
	if stored[0].Sequence >= stored[1].Sequence || stored[0].Sequence <= 0 {
		t.Fatalf("unexpected sequences %d %d", stored[0].Sequence, stored[1].Sequence)
	}
	if !stored[0].Timestamp.Equal(at(0).Add(time.Millisecond)) {
		t.Fatalf("timestamp should be stored at millisecond precision, got %v", stored[0].Timestamp)
	}
}

func TestAppendRejectsDuplicatesAtomically(t *testing.T) {
	store := openTestStore(t)
	appendEvents(t, store, ev("a1", event.KindAssign, "R1", "U1", 0))

	_, err := store.AppendEvents(context.Background(), []event.Event{
		ev("a2", event.KindAssign, "R2", "U2", 1),
		ev("a1", event.KindAssign, "R1", "U1", 3),
	})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	page, err := store.ListEvents(context.Background(), storage.ListEventsRequest{PageSize: 10})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	equalIDs(t, page.Events, "a1")
}

func TestAppendRejectsInvalidEvent(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.AppendEvents(context.Background(), []event.Event{{ID: "bad", Kind: event.KindAssign}}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestFetchEventsResourceScope(t *testing.T) {
	store := openTestStore(t)
	appendEvents(t, store,
		ev("a1", event.KindAssign, "R1", "U1", 0),
		ev("a2", event.KindAssign, "R2", "U2", 0),
		ev("t1", event.KindTransfer, "R1", "U3", 4),
		ev("t2", event.KindTransfer, "R2", "U4", 5),
		ev("a3", event.KindAssign, "R3", "U1", 6),
		ev("x3", event.KindRelease, "R3", "U1", 30),
	)

	subject := timeline.Subject{Kind: timeline.SubjectResource, ID: "U1"}
	got, err := store.FetchEvents(context.Background(), subject, interval.Span{Start: at(5), End: at(24)})
	if err != nil {
		t.Fatalf("fetch events: %v", err)
	}
	// History before the range start is kept; events at or after the end are not.
	equalIDs(t, got, "a1", "t1", "a3")
}

func TestFetchEventsResidentScope(t *testing.T) {
	store := openTestStore(t)
	appendEvents(t, store,
		ev("a1", event.KindAssign, "R1", "U1", 0),
		ev("a2", event.KindAssign, "R2", "U2", 1),
		ev("x2", event.KindRelease, "R2", "U2", 2),
		ev("t1", event.KindTransfer, "R1", "U2", 3),
		ev("a9", event.KindAssign, "R9", "U9", 3),
		ev("t2", event.KindTransfer, "R2", "U9", 4),
	)

	subject := timeline.Subject{Kind: timeline.SubjectResident, ID: "R1"}
	got, err := store.FetchEvents(context.Background(), subject, interval.Span{})
	if err != nil {
		t.Fatalf("fetch events: %v", err)
	}
	equalIDs(t, got, "a1", "a2", "x2", "t1", "t2")
}

func TestFetchClosing(t *testing.T) {
	store := openTestStore(t)
	appendEvents(t, store,
		ev("a1", event.KindAssign, "R1", "U1", 0),
		ev("a2", event.KindAssign, "R2", "U1", 1),
		ev("x9", event.KindRelease, "R1", "U2", 12),
		ev("x1", event.KindRelease, "R1", "U1", 20),
		ev("x1b", event.KindRelease, "R1", "U1", 22),
		ev("t2", event.KindTransfer, "R2", "U5", 15),
		ev("x2", event.KindRelease, "R2", "U1", 16),
		ev("t2b", event.KindTransfer, "R2", "U6", 18),
	)
	if err := store.RetractEvent(context.Background(), "t2", "wrong unit"); err != nil {
		t.Fatalf("retract: %v", err)
	}

	got, err := store.FetchClosing(context.Background(), []storage.Pair{
		{ResidentID: "R1", ResourceID: "U1"},
		{ResidentID: "R2", ResourceID: "U1"},
		{ResidentID: "R2", ResourceID: "U7"},
		{ResidentID: "R3", ResourceID: "U1"},
	}, at(10))
	if err != nil {
		t.Fatalf("fetch closing: %v", err)
	}
	// R2's first closer on U1 is its release; the retracted transfer is
	// skipped. On U7 only its later transfer applies.
	equalIDs(t, got, "x2", "t2b", "x1")

	none, err := store.FetchClosing(context.Background(), nil, at(0))
	if err != nil || len(none) != 0 {
		t.Fatalf("no pairs: %v %v", none, err)
	}
}

func TestRetractedEventsAreHidden(t *testing.T) {
	store := openTestStore(t)
	appendEvents(t, store,
		ev("a1", event.KindAssign, "R1", "U1", 0),
		ev("x1", event.KindRelease, "R1", "U1", 1),
	)
	if err := store.RetractEvent(context.Background(), "x1", "entered twice"); err != nil {
		t.Fatalf("retract: %v", err)
	}
	if err := store.RetractEvent(context.Background(), "x1", "again"); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists on second retraction, got %v", err)
	}
	if err := store.RetractEvent(context.Background(), "nope", ""); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := store.FetchEvents(context.Background(), timeline.Subject{Kind: timeline.SubjectResource, ID: "U1"}, interval.Span{})
	if err != nil {
		t.Fatalf("fetch events: %v", err)
	}
	equalIDs(t, got, "a1")
}

func TestListEventsFilterAndPaging(t *testing.T) {
	store := openTestStore(t)
	appendEvents(t, store,
		ev("a1", event.KindAssign, "R1", "U1", 0),
		ev("a2", event.KindAssign, "R2", "U2", 1),
		ev("x1", event.KindRelease, "R1", "U1", 2),
		ev("a3", event.KindAssign, "R1", "U3", 3),
		ev("x3", event.KindRelease, "R1", "U3", 4),
	)

	req := storage.ListEventsRequest{Filter: `resident_id = "R1"`, PageSize: 2}
	first, err := store.ListEvents(context.Background(), req)
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	equalIDs(t, first.Events, "a1", "x1")
	if first.NextPageToken == "" {
		t.Fatal("expected next page token")
	}

	req.PageToken = first.NextPageToken
	second, err := store.ListEvents(context.Background(), req)
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	equalIDs(t, second.Events, "a3", "x3")
	if second.NextPageToken != "" {
		t.Fatalf("expected last page, got token %q", second.NextPageToken)
	}

	if _, err := store.ListEvents(context.Background(), storage.ListEventsRequest{Filter: `unknown = 1`, PageSize: 1}); err == nil {
		t.Fatal("expected filter error")
	}
	if _, err := store.ListEvents(context.Background(), storage.ListEventsRequest{PageToken: "%%%", PageSize: 1}); err == nil {
		t.Fatal("expected page token error")
	}
}

func TestListResidents(t *testing.T) {
	store := openTestStore(t)
	appendEvents(t, store,
		ev("a1", event.KindAssign, "R2", "U1", 0),
		ev("a2", event.KindAssign, "R1", "U2", 0),
		ev("a3", event.KindAssign, "R3", "U3", 0),
	)
	if err := store.PutResident(context.Background(), storage.Resident{ID: "R1", DisplayName: "Ada"}); err != nil {
		t.Fatalf("put resident: %v", err)
	}
	if err := store.PutResource(context.Background(), storage.Resource{ID: "U1", Label: "Room 1"}); err != nil {
		t.Fatalf("put resource: %v", err)
	}

	first, err := store.ListResidents(context.Background(), 2, "")
	if err != nil {
		t.Fatalf("list residents: %v", err)
	}
	if len(first.Residents) != 2 || first.Residents[0].ID != "R1" || first.Residents[0].DisplayName != "Ada" || first.Residents[1].ID != "R2" {
		t.Fatalf("unexpected first page %+v", first)
	}
	second, err := store.ListResidents(context.Background(), 2, first.NextPageToken)
	if err != nil {
		t.Fatalf("list residents page 2: %v", err)
	}
	if len(second.Residents) != 1 || second.Residents[0].ID != "R3" || second.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v", second)
	}
}

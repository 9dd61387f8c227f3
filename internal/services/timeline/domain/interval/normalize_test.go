package interval

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/louisbranch/residency/internal/services/timeline/domain/event"
)

func evt(seq int64, kind event.Kind, resident, resource string, hour, prio int) event.Event {
	return event.Event{
		ID:             fmt.Sprintf("e%d", seq),
		ResidentID:     resident,
		ResourceID:     resource,
		Kind:           kind,
		Timestamp:      at(hour),
		SourcePriority: prio,
		Sequence:       seq,
	}
}

func TestNormalizeAssignRelease(t *testing.T) {
	got, err := Normalize([]event.Event{
		evt(2, event.KindRelease, "r1", "u1", 10, 0),
		evt(1, event.KindAssign, "r1", "u1", 0, 1),
		evt(3, event.KindAssign, "r2", "u1", 5, 2),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(got))
	}
	if got[0].ResidentID != "r1" || !got[0].Start.Equal(at(0)) || !got[0].End.Equal(at(10)) {
		t.Fatalf("unexpected first interval %+v", got[0])
	}
	if got[0].OpenedBy != "e1" || got[0].ClosedBy != "e2" || got[0].Priority != 1 {
		t.Fatalf("unexpected provenance %+v", got[0])
	}
	if got[1].ResidentID != "r2" || !got[1].Open() || got[1].Priority != 2 {
		t.Fatalf("unexpected second interval %+v", got[1])
	}
}

func TestNormalizeReleaseWithoutAssign(t *testing.T) {
	_, err := Normalize([]event.Event{evt(1, event.KindRelease, "r1", "u1", 3, 0)})
	var malformedErr *MalformedEventError
	if !errors.As(err, &malformedErr) {
		t.Fatalf("expected MalformedEventError, got %v", err)
	}
	if malformedErr.EventID != "e1" || malformedErr.Kind != event.KindRelease {
		t.Fatalf("unexpected error detail %+v", malformedErr)
	}
}

func TestNormalizeDoubleAssignmentAtAnotherPriority(t *testing.T) {
	_, err := Normalize([]event.Event{
		evt(1, event.KindAssign, "r1", "u1", 0, 0),
		evt(2, event.KindAssign, "r1", "u1", 1, 1),
	})
	var malformedErr *MalformedEventError
	if !errors.As(err, &malformedErr) || malformedErr.EventID != "e2" {
		t.Fatalf("expected double assignment error on e2, got %v", err)
	}
}

func TestNormalizeRepeatedAssignAtSamePriorityOverlaps(t *testing.T) {
	got, err := Normalize([]event.Event{
		evt(1, event.KindAssign, "r1", "u1", 0, 1),
		evt(2, event.KindAssign, "r1", "u1", 2, 1),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(got) != 2 || !got[0].Open() || !got[1].Open() {
		t.Fatalf("expected two open intervals, got %+v", got)
	}
	if got[0].OpenedBy != "e1" || got[1].OpenedBy != "e2" || !got[0].Overlaps(got[1].Span) {
		t.Fatalf("unexpected intervals %+v", got)
	}

	released, err := Normalize([]event.Event{
		evt(1, event.KindAssign, "r1", "u1", 0, 1),
		evt(2, event.KindAssign, "r1", "u1", 2, 1),
		evt(3, event.KindRelease, "r1", "u1", 5, 0),
	})
	if err != nil {
		t.Fatalf("normalize with release: %v", err)
	}
	if len(released) != 2 || released[0].ClosedBy != "e3" || released[1].ClosedBy != "e3" {
		t.Fatalf("release should close both intervals, got %+v", released)
	}
}

func TestNormalizeResidentsIsolatesMalformedStreams(t *testing.T) {
	got, failed := NormalizeResidents([]event.Event{
		evt(1, event.KindAssign, "r1", "u1", 0, 0),
		evt(2, event.KindRelease, "r1", "u1", 3, 0),
		evt(3, event.KindRelease, "r2", "u1", 5, 0),
		evt(4, event.KindAssign, "r3", "u1", 6, 0),
	})
	if len(failed) != 1 || failed[0].ResidentID != "r2" || failed[0].EventID != "e3" {
		t.Fatalf("failed = %+v", failed)
	}
	if len(got) != 2 || got[0].ResidentID != "r1" || got[1].ResidentID != "r3" {
		t.Fatalf("intervals = %+v", got)
	}

	whole, err := Normalize([]event.Event{
		evt(1, event.KindAssign, "r1", "u1", 0, 0),
		evt(2, event.KindTransfer, "r1", "u2", 3, 0),
		evt(3, event.KindAssign, "r2", "u1", 4, 0),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	split, failed := NormalizeResidents([]event.Event{
		evt(3, event.KindAssign, "r2", "u1", 4, 0),
		evt(2, event.KindTransfer, "r1", "u2", 3, 0),
		evt(1, event.KindAssign, "r1", "u1", 0, 0),
	})
	if len(failed) != 0 || fmt.Sprint(split) != fmt.Sprint(whole) {
		t.Fatalf("per-resident output differs:\n%v\n%v (failed %v)", split, whole, failed)
	}
}

func TestNormalizeRejectsInvalidEvent(t *testing.T) {
	bad := evt(1, event.KindAssign, "", "u1", 0, 0)
	_, err := Normalize([]event.Event{bad})
	var malformedErr *MalformedEventError
	if !errors.As(err, &malformedErr) {
		t.Fatalf("expected MalformedEventError, got %v", err)
	}
}

func TestNormalizeTransferClosesEveryHeldResource(t *testing.T) {
	got, err := Normalize([]event.Event{
		evt(1, event.KindAssign, "r1", "u1", 0, 0),
		evt(2, event.KindAssign, "r1", "u2", 1, 0),
		evt(3, event.KindTransfer, "r1", "u3", 4, 1),
		evt(4, event.KindTransfer, "r1", "u3", 6, 1),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 intervals, got %+v", got)
	}
	want := []struct {
		resource   string
		start, end int
		open       bool
	}{
		{"u1", 0, 4, false},
		{"u2", 1, 4, false},
		{"u3", 4, 6, false},
		{"u3", 6, 0, true},
	}
	for i, w := range want {
		iv := got[i]
		if iv.ResourceID != w.resource || !iv.Start.Equal(at(w.start)) || iv.Open() != w.open {
			t.Fatalf("interval %d = %+v, want %+v", i, iv, w)
		}
		if !w.open && !iv.End.Equal(at(w.end)) {
			t.Fatalf("interval %d end = %v, want %v", i, iv.End, at(w.end))
		}
	}
}

func TestNormalizeDropsZeroLengthIntervals(t *testing.T) {
	got, err := Normalize([]event.Event{
		evt(1, event.KindAssign, "r1", "u1", 2, 0),
		evt(2, event.KindRelease, "r1", "u1", 2, 0),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected zero-length interval to be dropped, got %+v", got)
	}
}

func TestNormalizeIsOrderIndependent(t *testing.T) {
	events := []event.Event{
		evt(1, event.KindAssign, "r1", "u1", 0, 0),
		evt(2, event.KindTransfer, "r1", "u2", 3, 0),
		evt(3, event.KindAssign, "r2", "u1", 3, 0),
		evt(4, event.KindRelease, "r2", "u1", 8, 0),
	}
	want, err := Normalize(events)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	rng := rand.New(rand.NewPCG(7, 11))
	for range 20 {
		shuffled := append([]event.Event(nil), events...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, err := Normalize(shuffled)
		if err != nil {
			t.Fatalf("normalize shuffled: %v", err)
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("order dependent output:\n%v\n%v", got, want)
		}
	}
}

// TestNormalizeWellFormedProperty generates valid logs and checks that every
// interval is non-empty and a pair never overlaps itself.
func TestNormalizeWellFormedProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 1))
	residents := []string{"r1", "r2", "r3"}
	resources := []string{"u1", "u2"}

	for round := range 200 {
		var events []event.Event
		held := map[[2]string]bool{}
		for i := range 30 {
			resident := residents[rng.IntN(len(residents))]
			resource := resources[rng.IntN(len(resources))]
			key := [2]string{resident, resource}
			hour := i / 2
			seq := int64(i + 1)
			switch rng.IntN(3) {
			case 0:
				if held[key] {
					continue
				}
				held[key] = true
				events = append(events, evt(seq, event.KindAssign, resident, resource, hour, rng.IntN(3)))
			case 1:
				if !held[key] {
					continue
				}
				held[key] = false
				events = append(events, evt(seq, event.KindRelease, resident, resource, hour, 0))
			case 2:
				for _, r := range resources {
					held[[2]string{resident, r}] = false
				}
				held[key] = true
				events = append(events, evt(seq, event.KindTransfer, resident, resource, hour, rng.IntN(3)))
			}
		}

		got, err := Normalize(events)
		if err != nil {
			t.Fatalf("round %d: normalize valid log: %v", round, err)
		}
		for i, a := range got {
			if !a.Open() && !a.Start.Before(a.End) {
				t.Fatalf("round %d: empty interval %+v", round, a)
			}
			for _, b := range got[i+1:] {
				if a.ResidentID == b.ResidentID && a.ResourceID == b.ResourceID && a.Overlaps(b.Span) {
					t.Fatalf("round %d: self overlap %+v %+v", round, a, b)
				}
			}
		}
	}
}

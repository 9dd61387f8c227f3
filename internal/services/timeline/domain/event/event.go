package event

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Kind is the closed set of occupancy transitions.
type Kind uint8

const (
	KindUnspecified Kind = iota
	// KindAssign opens an occupancy of ResourceID by ResidentID.
	KindAssign
	// KindRelease closes the open occupancy of ResourceID by ResidentID.
	KindRelease
	// KindTransfer closes every open occupancy held by ResidentID and opens
	// one on ResourceID.
	KindTransfer
)

// ErrUnknownKind is returned when a kind label is not one of assign, release
// or transfer.
var ErrUnknownKind = errors.New("unknown event kind")

func (k Kind) String() string {
	switch k {
	case KindAssign:
		return "assign"
	case KindRelease:
		return "release"
	case KindTransfer:
		return "transfer"
	default:
		return "unspecified"
	}
}

// Valid reports whether k is one of the known transitions.
func (k Kind) Valid() bool {
	switch k {
	case KindAssign, KindRelease, KindTransfer:
		return true
	default:
		return false
	}
}

// Opens reports whether the kind starts an occupancy.
func (k Kind) Opens() bool {
	return k == KindAssign || k == KindTransfer
}

// ParseKind maps a stored or wire label to a Kind.
func ParseKind(label string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "assign":
		return KindAssign, nil
	case "release":
		return KindRelease, nil
	case "transfer":
		return KindTransfer, nil
	default:
		return KindUnspecified, fmt.Errorf("%w: %q", ErrUnknownKind, label)
	}
}

// Event is one recorded occupancy fact.
type Event struct {
	ID         string
	ResidentID string
	ResourceID string
	Kind       Kind
	Timestamp  time.Time
	// SourcePriority ranks the ingesting source; higher wins overlaps.
	SourcePriority int
	// Sequence is the store append order. It orders events that share a
	// timestamp.
	Sequence int64
}

// Validate checks the structural fields every stage relies on.
func (e Event) Validate() error {
	if strings.TrimSpace(e.ResidentID) == "" {
		return errors.New("resident id is required")
	}
	if strings.TrimSpace(e.ResourceID) == "" {
		return errors.New("resource id is required")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownKind, e.Kind)
	}
	if e.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}

// Compare orders events by timestamp, then sequence, then id.
func Compare(a, b Event) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Sequence, b.Sequence); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Sorted returns a copy of events in log order.
func Sorted(events []Event) []Event {
	out := slices.Clone(events)
	slices.SortStableFunc(out, Compare)
	return out
}

// Package storage defines the persistence boundary of the timeline service.
//
// The engine reads through EventReader only. Writes exist for ingestion tools
// such as the seed command; the engine never issues them.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/residency/internal/services/timeline/domain/event"
	"github.com/louisbranch/residency/internal/services/timeline/domain/interval"
	"github.com/louisbranch/residency/internal/services/timeline/domain/timeline"
)

var (
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a write collided with an existing record.
	ErrAlreadyExists = errors.New("record already exists")
)

// EventReader supplies the events a timeline is computed from.
//
// FetchEvents returns, in log order, every non-retracted event before
// rng.End that can affect the subject's timeline: all events on the
// subject's resources plus the transfers of any resident seen there. History
// before rng.Start is included so intervals already open at the start are
// known. A zero rng.End reads to the end of the log.
type EventReader interface {
	FetchEvents(ctx context.Context, subject timeline.Subject, rng interval.Span) ([]event.Event, error)
	// FetchClosing returns, for each pair, the first non-retracted event at
	// or after from that ends it: a release of the pair or any transfer by
	// its resident. Each event appears once, in log order.
	FetchClosing(ctx context.Context, pairs []Pair, from time.Time) ([]event.Event, error)
}

// Pair is one resident on one resource.
type Pair struct {
	ResidentID string
	ResourceID string
}

// ListEventsRequest pages through the raw event log.
type ListEventsRequest struct {
	// Filter is an AIP-160 expression over resident_id, resource_id, kind,
	// source_priority, ts and seq.
	Filter    string
	PageSize  int
	PageToken string
}

// EventPage is one page of the event log in sequence order.
type EventPage struct {
	Events        []event.Event
	NextPageToken string
}

// EventLister pages through the event log.
type EventLister interface {
	ListEvents(ctx context.Context, req ListEventsRequest) (EventPage, error)
}

// Resident is a directory entry for an occupant.
type Resident struct {
	ID          string
	DisplayName string
}

// Resource is a directory entry for an occupiable unit.
type Resource struct {
	ID    string
	Label string
}

// ResidentPage is one page of the resident directory ordered by id.
type ResidentPage struct {
	Residents     []Resident
	NextPageToken string
}

// Directory lists known residents.
type Directory interface {
	ListResidents(ctx context.Context, pageSize int, pageToken string) (ResidentPage, error)
}

// EventWriter appends to the event log.
type EventWriter interface {
	// AppendEvents stores events in order and returns them with ids and
	// sequences assigned.
	AppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error)
	// RetractEvent hides an event from every read without deleting it.
	RetractEvent(ctx context.Context, eventID, reason string) error
	PutResident(ctx context.Context, resident Resident) error
	PutResource(ctx context.Context, resource Resource) error
}

// Store is the full SQLite-backed surface.
type Store interface {
	EventReader
	EventLister
	Directory
	EventWriter
	Close() error
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/residency/internal/platform/grpc/pagination"
	"github.com/louisbranch/residency/internal/services/timeline/domain/event"
	"github.com/louisbranch/residency/internal/services/timeline/domain/interval"
	"github.com/louisbranch/residency/internal/services/timeline/domain/timeline"
	"github.com/louisbranch/residency/internal/services/timeline/storage"
	"github.com/louisbranch/residency/internal/services/timeline/storage/filter"
)

const eventColumns = "seq, id, resident_id, resource_id, kind, ts_ms, source_priority"

const (
	resourceScopeSQL = `SELECT ? AS resource_id`
	residentScopeSQL = `SELECT DISTINCT resource_id FROM live_events WHERE resident_id = ? AND ts_ms < ?`
)

// FetchEvents implements storage.EventReader.
func (s *Store) FetchEvents(ctx context.Context, subject timeline.Subject, rng interval.Span) ([]event.Event, error) {
	if err := subject.Validate(); err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	end := endMillis(rng.End)

	scopeSQL, scopeArgs := resourceScopeSQL, []any{subject.ID}
	if subject.Kind == timeline.SubjectResident {
		scopeSQL, scopeArgs = residentScopeSQL, []any{subject.ID, end}
	}

	query := `
WITH scope_resources AS (` + scopeSQL + `),
seen_residents AS (
    SELECT DISTINCT resident_id FROM live_events
    WHERE ts_ms < ? AND resource_id IN (SELECT resource_id FROM scope_resources)
)
SELECT ` + eventColumns + ` FROM live_events
WHERE ts_ms < ?
  AND (
    resource_id IN (SELECT resource_id FROM scope_resources)
    OR (kind = 'transfer' AND resident_id IN (SELECT resident_id FROM seen_residents))
  )
ORDER BY ts_ms, seq`

	args := append(scopeArgs, end, end)
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch events for %s: %w", subject, err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("fetch events for %s: %w", subject, err)
	}
	return events, nil
}

const closingSQL = `
SELECT ` + eventColumns + ` FROM live_events
WHERE ts_ms >= ? AND resident_id = ?
  AND (kind = 'transfer' OR (kind = 'release' AND resource_id = ?))
ORDER BY ts_ms, seq
LIMIT 1`

// FetchClosing implements storage.EventReader.
func (s *Store) FetchClosing(ctx context.Context, pairs []storage.Pair, from time.Time) ([]event.Event, error) {
	seen := make(map[int64]bool)
	var out []event.Event
	for _, pair := range pairs {
		rows, err := s.sqlDB.QueryContext(ctx, closingSQL, toMillis(from), pair.ResidentID, pair.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("fetch closing event for %s on %s: %w", pair.ResidentID, pair.ResourceID, err)
		}
		found, err := scanEvents(rows)
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("fetch closing event for %s on %s: %w", pair.ResidentID, pair.ResourceID, err)
		}
		for _, evt := range found {
			if !seen[evt.Sequence] {
				seen[evt.Sequence] = true
				out = append(out, evt)
			}
		}
	}
	return event.Sorted(out), nil
}

// ListEvents implements storage.EventLister with keyset paging on sequence.
func (s *Store) ListEvents(ctx context.Context, req storage.ListEventsRequest) (storage.EventPage, error) {
	cond, err := filter.Parse(req.Filter)
	if err != nil {
		return storage.EventPage{}, err
	}
	after, err := pagination.DecodeSeqToken(req.PageToken)
	if err != nil {
		return storage.EventPage{}, err
	}
	pageSize := max(req.PageSize, 1)

	where := []string{"seq > ?"}
	args := []any{after}
	if !cond.Empty() {
		where = append(where, cond.Clause)
		args = append(args, cond.Params...)
	}
	args = append(args, pageSize+1)

	query := fmt.Sprintf("SELECT %s FROM live_events WHERE %s ORDER BY seq LIMIT ?", eventColumns, strings.Join(where, " AND "))
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.EventPage{}, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return storage.EventPage{}, fmt.Errorf("list events: %w", err)
	}

	page := storage.EventPage{Events: events}
	if len(events) > pageSize {
		page.Events = events[:pageSize]
		page.NextPageToken = pagination.EncodeSeqToken(page.Events[pageSize-1].Sequence)
	}
	return page, nil
}

// AppendEvents implements storage.EventWriter. The batch is atomic.
func (s *Store) AppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	recordedAt := toMillis(s.now())
	out := make([]event.Event, 0, len(events))
	for i, evt := range events {
		if err := evt.Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if evt.ID == "" {
			if evt.ID, err = s.newID(); err != nil {
				return nil, fmt.Errorf("event %d: %w", i, err)
			}
		}
		evt.Timestamp = fromMillis(toMillis(evt.Timestamp))

		res, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, resident_id, resource_id, kind, ts_ms, source_priority, recorded_at_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			evt.ID, evt.ResidentID, evt.ResourceID, evt.Kind.String(), toMillis(evt.Timestamp), evt.SourcePriority, recordedAt,
		)
		if err != nil {
			if isConstraintError(err) {
				return nil, fmt.Errorf("event %s: %w", evt.ID, storage.ErrAlreadyExists)
			}
			return nil, fmt.Errorf("insert event %s: %w", evt.ID, err)
		}
		if evt.Sequence, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("read sequence of %s: %w", evt.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO residents (id) VALUES (?)`, evt.ResidentID); err != nil {
			return nil, fmt.Errorf("register resident %s: %w", evt.ResidentID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO resources (id) VALUES (?)`, evt.ResourceID); err != nil {
			return nil, fmt.Errorf("register resource %s: %w", evt.ResourceID, err)
		}
		out = append(out, evt)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return out, nil
}

// RetractEvent implements storage.EventWriter.
func (s *Store) RetractEvent(ctx context.Context, eventID, reason string) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	var found int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, eventID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("retract %s: %w", eventID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("retract %s: %w", eventID, err)
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO event_retractions (event_id, reason, retracted_at_ms) VALUES (?, ?, ?)`,
		eventID, strings.TrimSpace(reason), toMillis(s.now()),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("retract %s: %w", eventID, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("retract %s: %w", eventID, err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	var events []event.Event
	for rows.Next() {
		var (
			evt   event.Event
			kind  string
			tsMil int64
		)
		if err := rows.Scan(&evt.Sequence, &evt.ID, &evt.ResidentID, &evt.ResourceID, &kind, &tsMil, &evt.SourcePriority); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		parsed, err := event.ParseKind(kind)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", evt.ID, err)
		}
		evt.Kind = parsed
		evt.Timestamp = fromMillis(tsMil)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

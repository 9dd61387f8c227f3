package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/residency/internal/platform/errors"
	"github.com/louisbranch/residency/internal/services/timeline/domain/conflict"
	"github.com/louisbranch/residency/internal/services/timeline/domain/event"
	"github.com/louisbranch/residency/internal/services/timeline/domain/interval"
	"github.com/louisbranch/residency/internal/services/timeline/domain/timeline"
	"github.com/louisbranch/residency/internal/services/timeline/projection"
	"github.com/louisbranch/residency/internal/services/timeline/storage"
)

const (
	defaultBatchConcurrency = 8
	defaultClockStep        = time.Minute
)

// Reader is the read-only store surface the engine needs.
type Reader interface {
	storage.EventReader
	storage.EventLister
	storage.Directory
}

// Projection is a computed timeline plus the conflicts found building it.
type Projection struct {
	Timeline    timeline.Timeline
	Conflicts   []conflict.UnresolvedConflict
	Fingerprint projection.Fingerprint
	EventCount  int
	// Excluded lists other residents left out of resolution because their
	// events are malformed. The subject's own malformed events fail the
	// projection instead.
	Excluded []*interval.MalformedEventError
}

// Config tunes an Engine.
type Config struct {
	Policy conflict.Policy
	// BatchConcurrency bounds parallel computations in batch requests.
	BatchConcurrency int
	// ClockStep rounds the implicit "now" end of open ranges up to a step
	// boundary so repeated queries share a fingerprint.
	ClockStep time.Duration
	Now       func() time.Time
}

// Engine serves timeline queries.
type Engine struct {
	reader     Reader
	cache      *projection.Cache[Projection]
	policy     conflict.Policy
	batchLimit int
	clockStep  time.Duration
	now        func() time.Time
	tracer     trace.Tracer
}

// New wires an engine over reader and cache.
func New(reader Reader, cache *projection.Cache[Projection], cfg Config) (*Engine, error) {
	if reader == nil {
		return nil, errors.New("event reader is required")
	}
	if cache == nil {
		return nil, errors.New("projection cache is required")
	}
	e := &Engine{
		reader:     reader,
		cache:      cache,
		policy:     cfg.Policy,
		batchLimit: cfg.BatchConcurrency,
		clockStep:  cfg.ClockStep,
		now:        cfg.Now,
		tracer:     otel.Tracer("residency/timeline/engine"),
	}
	if e.batchLimit <= 0 {
		e.batchLimit = defaultBatchConcurrency
	}
	if e.clockStep <= 0 {
		e.clockStep = defaultClockStep
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Policy reports the tie-break policy in effect.
func (e *Engine) Policy() conflict.Policy { return e.policy }

// WithPolicy returns an engine sharing e's store and cache that resolves ties
// with policy. Fingerprints include the policy, so both share one cache safely.
func (e *Engine) WithPolicy(policy conflict.Policy) *Engine {
	if policy == e.policy {
		return e
	}
	clone := *e
	clone.policy = policy
	return &clone
}

// GetTimeline returns the projection of subject over rng.
//
// A zero rng.End means "now", rounded up to the clock step. A zero rng.Start
// means the subject's first event.
func (e *Engine) GetTimeline(ctx context.Context, subject timeline.Subject, rng interval.Span) (Projection, error) {
	ctx, span := e.tracer.Start(ctx, "engine.GetTimeline", trace.WithAttributes(
		attribute.String("subject.kind", subject.Kind.String()),
		attribute.String("subject.id", subject.ID),
	))
	defer span.End()

	proj, err := e.getTimeline(ctx, subject, rng)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Projection{}, err
	}
	span.SetAttributes(
		attribute.String("fingerprint", proj.Fingerprint.Short()),
		attribute.Int("events", proj.EventCount),
		attribute.Int("conflicts", len(proj.Conflicts)),
	)
	return proj, nil
}

func (e *Engine) getTimeline(ctx context.Context, subject timeline.Subject, rng interval.Span) (Projection, error) {
	subject.ID = strings.TrimSpace(subject.ID)
	if err := subject.Validate(); err != nil {
		return Projection{}, apperrors.Wrap(apperrors.CodeInvalidScope, "invalid timeline subject", err)
	}

	end := rng.End
	if end.IsZero() {
		end = e.clockEnd()
	}
	if !rng.Start.IsZero() && end.Before(rng.Start) {
		return Projection{}, apperrors.WithMetadata(apperrors.CodeInvalidRange, "range start is after range end", map[string]string{
			"start": rng.Start.UTC().Format(time.RFC3339Nano),
			"end":   end.UTC().Format(time.RFC3339Nano),
		})
	}

	events, err := e.reader.FetchEvents(ctx, subject, interval.Span{Start: rng.Start, End: end})
	if err != nil {
		return Projection{}, unavailable(ctx, "read events", err)
	}
	closing, err := e.fetchClosing(ctx, events, end)
	if err != nil {
		return Projection{}, unavailable(ctx, "read closing events", err)
	}
	events = append(events, closing...)

	start := rng.Start
	if start.IsZero() {
		start = end
		for _, evt := range events {
			if subject.Owns(evt.ResidentID, evt.ResourceID) && evt.Timestamp.Before(start) {
				start = evt.Timestamp
			}
		}
	}
	window := interval.Span{Start: start, End: end}

	key := projection.NewFingerprint(subject, window, e.policy, events)
	proj, err := e.cache.GetOrCompute(ctx, key, func(context.Context) (Projection, error) {
		return compute(subject, window, e.policy, events, key)
	})
	if err != nil {
		return Projection{}, classify(err)
	}
	return proj, nil
}

// fetchClosing reads the events that end intervals still open at end, so a
// past window shows them as finished rather than ongoing.
func (e *Engine) fetchClosing(ctx context.Context, events []event.Event, end time.Time) ([]event.Event, error) {
	raw, _ := interval.NormalizeResidents(events)
	var pairs []storage.Pair
	seen := make(map[storage.Pair]bool)
	for _, iv := range raw {
		if !iv.Open() {
			continue
		}
		p := storage.Pair{ResidentID: iv.ResidentID, ResourceID: iv.ResourceID}
		if !seen[p] {
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	return e.reader.FetchClosing(ctx, pairs, end)
}

func unavailable(ctx context.Context, what string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return apperrors.Wrap(apperrors.CodeUnavailable, what, err)
}

// GetConflicts returns the unresolved conflicts on a resource over rng.
func (e *Engine) GetConflicts(ctx context.Context, resourceID string, rng interval.Span) ([]conflict.UnresolvedConflict, error) {
	proj, err := e.GetTimeline(ctx, timeline.Subject{Kind: timeline.SubjectResource, ID: resourceID}, rng)
	if err != nil {
		return nil, err
	}
	return proj.Conflicts, nil
}

// Occupant is a resident holding, or contesting, a resource at an instant.
type Occupant struct {
	ResidentID string
	ResourceID string
	Since      time.Time
	EventID    string
	// Contested marks a party to an unresolved conflict covering the instant;
	// no contested party holds the resource.
	Contested bool
}

// ListCurrentOccupants reports who holds resourceID at instant at. A zero at
// means now.
func (e *Engine) ListCurrentOccupants(ctx context.Context, resourceID string, at time.Time) ([]Occupant, error) {
	rng := interval.Span{}
	instant := at
	if at.IsZero() {
		instant = e.now()
	} else {
		rng.End = at.Add(time.Millisecond)
	}

	proj, err := e.GetTimeline(ctx, timeline.Subject{Kind: timeline.SubjectResource, ID: resourceID}, rng)
	if err != nil {
		return nil, err
	}
	if entry, ok := proj.Timeline.At(instant); ok {
		return []Occupant{{
			ResidentID: entry.ResidentID,
			ResourceID: entry.ResourceID,
			Since:      entry.Start,
			EventID:    entry.EventID,
		}}, nil
	}

	var contested []Occupant
	for _, c := range proj.Conflicts {
		if !c.Span.Contains(instant) {
			continue
		}
		for _, p := range c.Parties {
			contested = append(contested, Occupant{
				ResidentID: p.ResidentID,
				ResourceID: p.ResourceID,
				Since:      c.Span.Start,
				EventID:    p.EventID,
				Contested:  true,
			})
		}
	}
	return contested, nil
}

// clockEnd returns the first clock step boundary strictly after now.
func (e *Engine) clockEnd() time.Time {
	return e.now().UTC().Truncate(e.clockStep).Add(e.clockStep)
}

func classify(err error) error {
	var malformed *interval.MalformedEventError
	if errors.As(err, &malformed) {
		return apperrors.WrapWithMetadata(apperrors.CodeMalformedEvent, "event log is malformed", map[string]string{
			"event_id":    malformed.EventID,
			"resident_id": malformed.ResidentID,
			"resource_id": malformed.ResourceID,
			"reason":      malformed.Reason,
		}, err)
	}
	var overlap *timeline.OverlapError
	if errors.As(err, &overlap) {
		return apperrors.Wrap(apperrors.CodeTimelineOverlap, "resolved timeline overlaps", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var compErr *projection.CacheComputationError
	if errors.As(err, &compErr) {
		return apperrors.Wrap(apperrors.CodeCacheComputation, "compute projection", err)
	}
	return fmt.Errorf("get timeline: %w", err)
}

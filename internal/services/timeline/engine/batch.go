package engine

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/louisbranch/residency/internal/platform/errors"
	"github.com/louisbranch/residency/internal/services/timeline/domain/interval"
	"github.com/louisbranch/residency/internal/services/timeline/domain/timeline"
)

// Failure is one subject whose projection could not be computed.
type Failure struct {
	Subject timeline.Subject
	Code    apperrors.Code
	Err     error
}

// BatchResult holds the projections that succeeded, in request order, and the
// subjects that failed.
type BatchResult struct {
	Projections []Projection
	Failures    []Failure
}

// BatchGetTimelines computes many timelines with bounded parallelism. A
// failing subject is reported in Failures and never aborts the others.
func (e *Engine) BatchGetTimelines(ctx context.Context, subjects []timeline.Subject, rng interval.Span) BatchResult {
	projections := make([]*Projection, len(subjects))
	errs := make([]error, len(subjects))

	var g errgroup.Group
	g.SetLimit(e.batchLimit)
	for i, subject := range subjects {
		g.Go(func() error {
			proj, err := e.GetTimeline(ctx, subject, rng)
			if err != nil {
				errs[i] = err
				return nil
			}
			projections[i] = &proj
			return nil
		})
	}
	_ = g.Wait()

	var out BatchResult
	for i, subject := range subjects {
		if errs[i] != nil {
			out.Failures = append(out.Failures, Failure{Subject: subject, Code: apperrors.CodeOf(errs[i]), Err: errs[i]})
			continue
		}
		out.Projections = append(out.Projections, *projections[i])
	}
	return out
}

// Warm computes the default-range projections of subjects so later queries
// are served from the cache. It returns how many were computed.
func (e *Engine) Warm(ctx context.Context, subjects ...timeline.Subject) int {
	result := e.BatchGetTimelines(ctx, subjects, interval.Span{})
	for _, f := range result.Failures {
		log.Printf("warm %s: %v", f.Subject, f.Err)
	}
	return len(result.Projections)
}

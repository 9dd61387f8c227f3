package timeline

import (
	"context"
	"errors"
	"log"

	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/louisbranch/residency/internal/platform/errors"
	"github.com/louisbranch/residency/internal/services/timeline/api/grpc/metadata"
	"github.com/louisbranch/residency/internal/services/timeline/domain/timeline"
	"github.com/louisbranch/residency/internal/services/timeline/engine"
)

// maxBatchSubjects bounds one BatchGetTimelines request.
const maxBatchSubjects = 256

// Service implements TimelineServiceServer over an engine.
type Service struct {
	engine *engine.Engine
}

// NewService creates the gRPC service.
func NewService(eng *engine.Engine) *Service {
	return &Service{engine: eng}
}

// fail logs server-side failures and converts err for the client.
func (s *Service) fail(ctx context.Context, method string, err error) error {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		switch apperrors.CodeOf(err).GRPCCode() {
		case codes.Internal, codes.Unavailable:
			log.Printf("%s request %s: %v", method, metadata.RequestIDFromContext(ctx), err)
		}
	}
	return apperrors.HandleError(err, metadata.LocaleFromContext(ctx))
}

func (s *Service) engineFor(r request) (*engine.Engine, error) {
	policy, err := r.policy(s.engine.Policy())
	if err != nil {
		return nil, err
	}
	return s.engine.WithPolicy(policy), nil
}

// GetTimeline renders one resident or resource timeline.
//
// Request: {kind, id, start?, end?, tie_break?}.
func (s *Service) GetTimeline(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	subject, err := decodeSubject(r)
	if err != nil {
		return nil, s.fail(ctx, MethodGetTimeline, err)
	}
	rng, err := r.span()
	if err != nil {
		return nil, s.fail(ctx, MethodGetTimeline, err)
	}
	eng, err := s.engineFor(r)
	if err != nil {
		return nil, s.fail(ctx, MethodGetTimeline, err)
	}
	proj, err := eng.GetTimeline(ctx, subject, rng)
	if err != nil {
		return nil, s.fail(ctx, MethodGetTimeline, err)
	}
	return toStruct(encodeProjection(proj))
}

// GetConflicts lists unresolved conflicts on a resource.
//
// Request: {resource_id, start?, end?, tie_break?}.
func (s *Service) GetConflicts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	rng, err := r.span()
	if err != nil {
		return nil, s.fail(ctx, MethodGetConflicts, err)
	}
	eng, err := s.engineFor(r)
	if err != nil {
		return nil, s.fail(ctx, MethodGetConflicts, err)
	}
	conflicts, err := eng.GetConflicts(ctx, r.str("resource_id"), rng)
	if err != nil {
		return nil, s.fail(ctx, MethodGetConflicts, err)
	}
	return toStruct(map[string]any{"conflicts": encodeConflicts(conflicts)})
}

// BatchGetTimelines renders many timelines over one range. Subjects that fail
// are listed under failures; the others are still returned.
//
// Request: {subjects: [{kind, id}], start?, end?, tie_break?}.
func (s *Service) BatchGetTimelines(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	rng, err := r.span()
	if err != nil {
		return nil, s.fail(ctx, MethodBatchGetTimelines, err)
	}
	eng, err := s.engineFor(r)
	if err != nil {
		return nil, s.fail(ctx, MethodBatchGetTimelines, err)
	}
	values := r["subjects"].GetListValue().GetValues()
	if len(values) > maxBatchSubjects {
		return nil, s.fail(ctx, MethodBatchGetTimelines, apperrors.New(apperrors.CodeInvalidScope, "too many subjects in batch"))
	}

	locale := metadata.LocaleFromContext(ctx)
	failures := make([]any, 0)
	subjects := make([]timeline.Subject, 0, len(values))
	for _, v := range values {
		subject, err := decodeSubject(v.GetStructValue().GetFields())
		if err != nil {
			failures = append(failures, encodeFailure(subject, err, locale))
			continue
		}
		subjects = append(subjects, subject)
	}

	result := eng.BatchGetTimelines(ctx, subjects, rng)
	if err := ctx.Err(); err != nil {
		return nil, s.fail(ctx, MethodBatchGetTimelines, err)
	}
	timelines := make([]any, 0, len(result.Projections))
	for _, p := range result.Projections {
		timelines = append(timelines, encodeProjection(p))
	}
	for _, f := range result.Failures {
		failures = append(failures, encodeFailure(f.Subject, f.Err, locale))
	}
	return toStruct(map[string]any{"timelines": timelines, "failures": failures})
}

func encodeFailure(subject timeline.Subject, err error, locale string) map[string]any {
	code := apperrors.CodeOf(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code = apperrors.CodeUnavailable
	}
	return map[string]any{
		"subject": encodeSubject(subject),
		"code":    string(code),
		"message": apperrors.Localize(err, locale),
	}
}

// ListCurrentOccupants reports who holds a resource at an instant.
//
// Request: {resource_id, at?}.
func (s *Service) ListCurrentOccupants(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	at, err := r.time("at")
	if err != nil {
		return nil, s.fail(ctx, MethodListCurrentOccupants, err)
	}
	occupants, err := s.engine.ListCurrentOccupants(ctx, r.str("resource_id"), at)
	if err != nil {
		return nil, s.fail(ctx, MethodListCurrentOccupants, err)
	}
	return toStruct(map[string]any{"occupants": encodeOccupants(occupants)})
}

// ListResidents pages through the resident directory.
//
// Request: {page_size?, page_token?}.
func (s *Service) ListResidents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	page, err := s.engine.ListResidents(ctx, r.int32("page_size"), r.str("page_token"))
	if err != nil {
		return nil, s.fail(ctx, MethodListResidents, err)
	}
	return toStruct(map[string]any{
		"residents":       encodeResidents(page.Residents),
		"next_page_token": page.NextPageToken,
	})
}

// ListEvents pages through the raw event log.
//
// Request: {filter?, page_size?, page_token?}.
func (s *Service) ListEvents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	page, err := s.engine.ListEvents(ctx, r.str("filter"), r.int32("page_size"), r.str("page_token"))
	if err != nil {
		return nil, s.fail(ctx, MethodListEvents, err)
	}
	return toStruct(map[string]any{
		"events":          encodeEvents(page.Events),
		"next_page_token": page.NextPageToken,
	})
}

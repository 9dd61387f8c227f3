package engine

import (
	"context"

	apperrors "github.com/louisbranch/residency/internal/platform/errors"
	"github.com/louisbranch/residency/internal/platform/grpc/pagination"
	"github.com/louisbranch/residency/internal/services/timeline/storage"
	"github.com/louisbranch/residency/internal/services/timeline/storage/filter"
)

var (
	eventPageSizes    = pagination.PageSizeConfig{Default: 100, Max: 1000}
	residentPageSizes = pagination.PageSizeConfig{Default: 50, Max: 500}
)

// ListEvents pages through the raw event log.
func (e *Engine) ListEvents(ctx context.Context, filterExpr string, pageSize int32, pageToken string) (storage.EventPage, error) {
	if _, err := filter.Parse(filterExpr); err != nil {
		return storage.EventPage{}, apperrors.Wrap(apperrors.CodeInvalidFilter, "invalid event filter", err)
	}
	if _, err := pagination.DecodeSeqToken(pageToken); err != nil {
		return storage.EventPage{}, apperrors.Wrap(apperrors.CodeInvalidPageToken, "invalid page token", err)
	}
	page, err := e.reader.ListEvents(ctx, storage.ListEventsRequest{
		Filter:    filterExpr,
		PageSize:  pagination.ClampPageSize(pageSize, eventPageSizes),
		PageToken: pageToken,
	})
	if err != nil {
		return storage.EventPage{}, apperrors.Wrap(apperrors.CodeUnavailable, "list events", err)
	}
	return page, nil
}

// ListResidents pages through the resident directory.
func (e *Engine) ListResidents(ctx context.Context, pageSize int32, pageToken string) (storage.ResidentPage, error) {
	if _, err := pagination.DecodeKeyToken(pageToken); err != nil {
		return storage.ResidentPage{}, apperrors.Wrap(apperrors.CodeInvalidPageToken, "invalid page token", err)
	}
	page, err := e.reader.ListResidents(ctx, pagination.ClampPageSize(pageSize, residentPageSizes), pageToken)
	if err != nil {
		return storage.ResidentPage{}, apperrors.Wrap(apperrors.CodeUnavailable, "list residents", err)
	}
	return page, nil
}

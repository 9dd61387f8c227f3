// Package errors provides coded domain errors that map onto gRPC statuses.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request validation
	CodeInvalidScope     Code = "TIMELINE_INVALID_SCOPE"
	CodeInvalidRange     Code = "TIMELINE_INVALID_RANGE"
	CodeInvalidFilter    Code = "TIMELINE_INVALID_FILTER"
	CodeInvalidPageToken Code = "TIMELINE_INVALID_PAGE_TOKEN"
	CodeInvalidTieBreak  Code = "TIMELINE_INVALID_TIE_BREAK"

	// Event log integrity
	CodeMalformedEvent Code = "EVENT_LOG_MALFORMED"
	CodeUnknownKind    Code = "EVENT_UNKNOWN_KIND"

	// Pipeline
	CodeTimelineOverlap  Code = "TIMELINE_OVERLAP"
	CodeCacheComputation Code = "PROJECTION_COMPUTATION_FAILED"

	// Storage
	CodeNotFound    Code = "NOT_FOUND"
	CodeUnavailable Code = "STORE_UNAVAILABLE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - bad request input
	case CodeInvalidScope,
		CodeInvalidRange,
		CodeInvalidFilter,
		CodeInvalidPageToken,
		CodeInvalidTieBreak:
		return codes.InvalidArgument

	// FailedPrecondition - the stored event log cannot produce a timeline
	case CodeMalformedEvent,
		CodeUnknownKind,
		CodeTimelineOverlap:
		return codes.FailedPrecondition

	case CodeNotFound:
		return codes.NotFound

	case CodeUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}

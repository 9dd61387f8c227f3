package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type kindError struct{}

func (kindError) Error() string   { return "unknown kind" }
func (kindError) ErrorCode() Code { return CodeUnknownKind }

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeUnavailable, "fetch events", stderrors.New("disk full"))
	if got := err.Error(); got != "fetch events: disk full" {
		t.Fatalf("error = %q", got)
	}
	if !stderrors.Is(err, New(CodeUnavailable, "")) {
		t.Fatal("expected errors.Is to match by code")
	}
	if stderrors.Is(err, New(CodeNotFound, "")) {
		t.Fatal("expected errors.Is to reject other codes")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(nil); got != "" {
		t.Fatalf("nil code = %q", got)
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("plain code = %q", got)
	}
	wrapped := fmt.Errorf("outer: %w", New(CodeInvalidRange, "range end before start"))
	if got := CodeOf(wrapped); got != CodeInvalidRange {
		t.Fatalf("wrapped code = %q", got)
	}
	if got := CodeOf(fmt.Errorf("normalize: %w", kindError{})); got != CodeUnknownKind {
		t.Fatalf("coded code = %q", got)
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	tests := map[Code]codes.Code{
		CodeInvalidRange:     codes.InvalidArgument,
		CodeInvalidFilter:    codes.InvalidArgument,
		CodeMalformedEvent:   codes.FailedPrecondition,
		CodeNotFound:         codes.NotFound,
		CodeUnavailable:      codes.Unavailable,
		CodeCacheComputation: codes.Internal,
		CodeUnknown:          codes.Internal,
	}
	for code, want := range tests {
		if got := code.GRPCCode(); got != want {
			t.Fatalf("%s -> %s, want %s", code, got, want)
		}
	}
}

func TestToGRPCStatusAttachesDetails(t *testing.T) {
	err := WithMetadata(CodeMalformedEvent, "release without assign", map[string]string{"event_id": "e1"})
	st, ok := status.FromError(err.ToGRPCStatus("en-US", "The event log is inconsistent."))
	if !ok {
		t.Fatal("expected gRPC status")
	}
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("status code = %s", st.Code())
	}
	var info *errdetails.ErrorInfo
	var localized *errdetails.LocalizedMessage
	for _, detail := range st.Details() {
		switch d := detail.(type) {
		case *errdetails.ErrorInfo:
			info = d
		case *errdetails.LocalizedMessage:
			localized = d
		}
	}
	if info == nil || info.GetReason() != string(CodeMalformedEvent) || info.GetMetadata()["event_id"] != "e1" {
		t.Fatalf("error info = %+v", info)
	}
	if localized == nil || localized.GetMessage() != "The event log is inconsistent." {
		t.Fatalf("localized = %+v", localized)
	}
}

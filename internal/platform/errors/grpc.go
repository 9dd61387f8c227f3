package errors

import (
	"context"
	stderrors "errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/louisbranch/residency/internal/platform/errors/i18n"
)

// DefaultLocale is the default locale for error messages.
const DefaultLocale = i18n.BaseLocale

// HandleError converts err into a gRPC status for clients. Domain errors get
// a message localized for locale; context errors keep their gRPC meaning;
// anything else is reported as an opaque internal error.
func HandleError(err error, locale string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if locale == "" {
		locale = DefaultLocale
	}

	var appErr *Error
	if stderrors.As(err, &appErr) {
		catalog := i18n.GetCatalog(locale)
		return appErr.ToGRPCStatus(catalog.Locale(), catalog.Format(string(appErr.Code), appErr.Metadata))
	}
	switch {
	case stderrors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case stderrors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, "an unexpected error occurred")
}

// Localize renders the user-facing message for err in locale. Errors without
// a domain code render the generic unknown-error message.
func Localize(err error, locale string) string {
	if err == nil {
		return ""
	}
	catalog := i18n.GetCatalog(locale)
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return catalog.Format(string(appErr.Code), appErr.Metadata)
	}
	return catalog.Format(string(CodeOf(err)), nil)
}

// ReasonOf returns the ErrorInfo reason carried by a gRPC status error, or
// an empty string.
func ReasonOf(err error) Code {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(interface{ GetReason() string }); ok {
			return Code(info.GetReason())
		}
	}
	return ""
}

package errors

import (
	stderrors "errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
)

// Domain is reported in ErrorInfo details.
const Domain = "github.com/louisbranch/residency"

// Error is a coded failure. Message is for operators; users see the
// localized text for Code, rendered with Metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	switch {
	case e.Cause == nil:
		return e.Message
	case e.Message == "":
		return e.Cause.Error()
	default:
		return e.Message + ": " + e.Cause.Error()
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// ErrorCode implements Coded.
func (e *Error) ErrorCode() Code { return e.Code }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func WrapWithMetadata(code Code, message string, metadata map[string]string, cause error) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata, Cause: cause}
}

// Coded errors carry a Code without being an *Error, such as domain error
// types that live below this package's users.
type Coded interface {
	error
	ErrorCode() Code
}

// CodeOf returns the first code in err's chain: "" for nil, CodeUnknown when
// nothing in the chain is coded.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded Coded
	if stderrors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return CodeUnknown
}

// ToGRPCStatus builds a status whose message is the operator text, with the
// code in ErrorInfo and userMessage as a LocalizedMessage.
func (e *Error) ToGRPCStatus(locale, userMessage string) error {
	st := status.New(e.Code.GRPCCode(), e.Error())
	detailed, err := st.WithDetails(
		&errdetails.ErrorInfo{Reason: string(e.Code), Domain: Domain, Metadata: e.Metadata},
		&errdetails.LocalizedMessage{Locale: locale, Message: userMessage},
	)
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

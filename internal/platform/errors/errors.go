package errors

import (
	stderrors "errors"

	"google.golang.org/grpc/status"
)

// Domain is the error domain for guildshop errors.
const Domain = "github.com/opshop/guildshop"

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs)
	Metadata map[string]string // Additional context (guild, user, role ids)
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message != "" {
		return e.Message + ": " + e.Cause.Error()
	}
	if e.Message == "" && e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithMetadata creates a domain error with metadata for log context.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GRPCStatus converts the error to a gRPC status so callers can use
// status.Code on domain errors transparently.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Code.GRPCCode(), e.Error())
}

// CodeOf extracts the domain code from err. Plain gRPC status errors are
// mapped back onto the closest domain code; anything else is CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		return domainErr.Code
	}
	if st, ok := status.FromError(err); ok {
		return codeFromGRPC(st.Code())
	}
	return CodeUnknown
}

// HasCode reports whether err carries the given domain code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsPermissionDenied reports whether err signals missing bot permissions.
func IsPermissionDenied(err error) bool {
	return HasCode(err, CodePermissionDenied)
}

// IsNotFound reports whether err signals a vanished resource.
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

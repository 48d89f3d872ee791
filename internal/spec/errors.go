package spec

import "fmt"

// ErrorCode categorizes normalizer errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError         ErrorCode = "InputError"
	NetworkError       ErrorCode = "NetworkError"
	ParseError         ErrorCode = "ParseError"
	UnresolvedRefError ErrorCode = "UnresolvedRefError"
)

// SpecError is a structured error with optional location and JSON Pointer.
type SpecError struct {
	Code        ErrorCode
	Message     string
	Location    string // file path or URL
	JSONPointer string // e.g. "#/paths/~1pets/get"
	Cause       error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

func errf(code ErrorCode, format string, args ...any) *SpecError {
	return &SpecError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func parseErr(format string, args ...any) *SpecError {
	return errf(ParseError, format, args...)
}

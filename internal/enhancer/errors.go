package enhancer

import "fmt"

// ErrorCode categorizes enhancer errors.
type ErrorCode string

const (
	InputError      ErrorCode = "InputError"
	StructuralError ErrorCode = "StructuralError"
)

// Error is returned when a document cannot be enhanced. Path is a JSON pointer
// to the offending node, e.g. "#/resources/0/methods/1/type".
type Error struct {
	Code    ErrorCode
	Message string
	Path    string
	Cause   error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (at %s)", e.Message, e.Path)
}

func (e *Error) Unwrap() error { return e.Cause }

func structuralf(path, format string, args ...any) *Error {
	return &Error{Code: StructuralError, Message: fmt.Sprintf(format, args...), Path: path}
}

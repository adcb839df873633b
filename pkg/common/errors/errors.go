package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds raised by sinkflow writers and sinks

var (
	// ErrNotImplemented indicates that no sink operation was configured for a dispatch
	ErrNotImplemented = errors.New("method not implemented")

	// ErrUnknownEncoding indicates that a text encoding name is not recognized
	ErrUnknownEncoding = errors.New("unknown encoding")

	// ErrInvalidArgType indicates that an argument has an unsupported type
	ErrInvalidArgType = errors.New("invalid argument type")

	// ErrDestroyed indicates an operation on a destroyed, or re-destroyed, stream
	ErrDestroyed = errors.New("stream was destroyed")

	// ErrWriteAfterEnd indicates a write issued after the stream was ended
	ErrWriteAfterEnd = errors.New("write after end")

	// ErrOutOfRange indicates a numeric configuration value outside its valid range
	ErrOutOfRange = errors.New("value out of range")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Code identifies the kind of a StreamError.
type Code string

const (
	CodeNotImplemented  Code = "ERR_METHOD_NOT_IMPLEMENTED"
	CodeUnknownEncoding Code = "ERR_UNKNOWN_ENCODING"
	CodeInvalidArgType  Code = "ERR_INVALID_ARG_TYPE"
	CodeDestroyed       Code = "ERR_STREAM_DESTROYED"
	CodeWriteAfterEnd   Code = "ERR_STREAM_WRITE_AFTER_END"
	CodeOutOfRange      Code = "ERR_OUT_OF_RANGE"
)

var codeSentinels = map[Code]error{
	CodeNotImplemented:  ErrNotImplemented,
	CodeUnknownEncoding: ErrUnknownEncoding,
	CodeInvalidArgType:  ErrInvalidArgType,
	CodeDestroyed:       ErrDestroyed,
	CodeWriteAfterEnd:   ErrWriteAfterEnd,
	CodeOutOfRange:      ErrOutOfRange,
}

// StreamError carries the kind of a failure together with the operation that raised it.
type StreamError struct {
	Code   Code
	Op     string
	Detail string
}

// New returns a StreamError of the given kind for operation op.
func New(code Code, op string, detail string) *StreamError {
	return &StreamError{Code: code, Op: op, Detail: detail}
}

func (e *StreamError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if sentinel, ok := codeSentinels[e.Code]; ok {
		b.WriteString(": ")
		b.WriteString(sentinel.Error())
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Unwrap returns the sentinel for the error's kind so errors.Is matches it.
func (e *StreamError) Unwrap() error {
	return codeSentinels[e.Code]
}

// NotImplemented reports that op has no implementation on the configured sink.
func NotImplemented(op string) error {
	return New(CodeNotImplemented, op, "")
}

// UnknownEncoding reports an unrecognized encoding name.
func UnknownEncoding(name string) error {
	return New(CodeUnknownEncoding, "", fmt.Sprintf("%q", name))
}

// InvalidArgType reports that argument arg held a value of an unsupported type.
func InvalidArgType(arg string, want string, got interface{}) error {
	return New(CodeInvalidArgType, "", fmt.Sprintf("the %q argument must be %s, received %T", arg, want, got))
}

// Destroyed reports that op was called on a destroyed stream.
func Destroyed(op string) error {
	return New(CodeDestroyed, op, "")
}

// WriteAfterEnd reports a write on an ended stream.
func WriteAfterEnd() error {
	return New(CodeWriteAfterEnd, "write", "")
}

// OutOfRange reports that field held a value outside the accepted range.
func OutOfRange(field string, accepted string, value interface{}) error {
	return New(CodeOutOfRange, "", fmt.Sprintf("the value of %q is out of range, it must be %s, received %v", field, accepted, value))
}

// CodeOf returns the kind of err, or the empty code when err is not a StreamError.
func CodeOf(err error) Code {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsDestroyed reports whether err was raised for a destroyed stream.
func IsDestroyed(err error) bool {
	return errors.Is(err, ErrDestroyed)
}

// IsWriteAfterEnd reports whether err was raised for a write after end.
func IsWriteAfterEnd(err error) bool {
	return errors.Is(err, ErrWriteAfterEnd)
}

// IsArgumentError returns true if the error was raised synchronously for
// a contract violation by the caller
func IsArgumentError(err error) bool {
	return errors.Is(err, ErrInvalidArgType) ||
		errors.Is(err, ErrUnknownEncoding) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrInvalidConfiguration)
}

// ValidationError describes a configuration field that failed validation.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
	Kind   error
}

// NewValidationError creates a ValidationError for field of module.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{Module: module, Field: field, Value: value, Reason: reason}
}

// WithKind marks the error as an instance of the given sentinel kind.
func (e *ValidationError) WithKind(kind error) *ValidationError {
	e.Kind = kind
	return e
}

// WithHint attaches a remediation hint to the error.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap lets errors.Is match ErrInvalidConfiguration and the error's kind.
func (e *ValidationError) Unwrap() []error {
	if e.Kind != nil {
		return []error{ErrInvalidConfiguration, e.Kind}
	}
	return []error{ErrInvalidConfiguration}
}

// IsValidationError returns true if err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

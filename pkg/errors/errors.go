// Package errors provides coded errors for alphaflow.
// Every error carries a code, a message, optional context and a short stack.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeFileNotFound     Code = "E101"
	CodeInvalidFormat    Code = "E102"
	CodeMissingColumn    Code = "E103"
	CodeInvalidTimestamp Code = "E104"
	CodeInvalidTrace     Code = "E105"
	CodeParseFailed      Code = "E106"

	// Discovery errors (2xx)
	CodeEmptyLog         Code = "E201"
	CodeInvalidThreshold Code = "E202"
	CodeDisconnectedLog  Code = "E203"
	CodeNameCollision    Code = "E204"

	// Output errors (3xx)
	CodeRenderFailed Code = "E301"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodeTimeout         Code = "E402"

	// Backend errors (5xx)
	CodeObjectStorage Code = "E501"
	CodeCache         Code = "E502"
	CodeQuery         Code = "E503"

	// Unknown
	CodeUnknown Code = "E999"
)

// LogFlowError is the base error type for all alphaflow errors.
type LogFlowError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface. Context keys are printed sorted so
// messages are stable.
func (e *LogFlowError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *LogFlowError) Unwrap() error {
	return e.Cause
}

// Is matches another LogFlowError with the same code.
func (e *LogFlowError) Is(target error) bool {
	if t, ok := target.(*LogFlowError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *LogFlowError) WithContext(key string, value interface{}) *LogFlowError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new LogFlowError.
func New(code Code, message string) *LogFlowError {
	return &LogFlowError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new LogFlowError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *LogFlowError {
	return &LogFlowError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *LogFlowError {
	if err == nil {
		return nil
	}

	return &LogFlowError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *LogFlowError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *LogFlowError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// FileNotFound creates a file not found error.
func FileNotFound(path string) *LogFlowError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// MissingColumn creates a missing column error.
func MissingColumn(column string, available []string) *LogFlowError {
	return New(CodeMissingColumn, "required column not found").
		WithContext("column", column).
		WithContext("available", available)
}

// EmptyLog reports that no usable trace was supplied.
func EmptyLog() *LogFlowError {
	return New(CodeEmptyLog, "event log contains no traces")
}

// InvalidThreshold reports a negative node or edge threshold.
func InvalidThreshold(name string, value int64) *LogFlowError {
	return New(CodeInvalidThreshold, "threshold must be non-negative").
		WithContext("threshold", name).
		WithContext("value", value)
}

// DisconnectedLog reports that the end event cannot be reached from the start
// event in the unreduced succession graph.
func DisconnectedLog(start, end string) *LogFlowError {
	return New(CodeDisconnectedLog, "no path from start to end activities").
		WithContext("start", start).
		WithContext("end", end)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *LogFlowError {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var lfErr *LogFlowError
	if errors.As(err, &lfErr) {
		return lfErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var lfErr *LogFlowError
	if errors.As(err, &lfErr) {
		return lfErr.Code
	}
	return CodeUnknown
}

// IsInputError reports whether err was caused by the caller's input rather
// than by the system. The HTTP layer maps these to 4xx responses.
func IsInputError(err error) bool {
	switch GetCode(err) {
	case CodeFileNotFound, CodeInvalidFormat, CodeMissingColumn, CodeInvalidTimestamp,
		CodeInvalidTrace, CodeParseFailed, CodeEmptyLog, CodeInvalidThreshold,
		CodeDisconnectedLog, CodeNameCollision:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeObjectStorage, CodeCache:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}

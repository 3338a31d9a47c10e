// Package errors is the coded error type used across renderbridge. Codes
// drive HTTP statuses and API error bodies; Op names the failing step and
// Fields carry structured context for logs.
package errors

import (
	"errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
)

type Error struct {
	Code    Code
	Message string
	// Op is the failing step, e.g. "input.upload".
	Op     string
	Err    error
	Fields map[string]any
	// Stack is captured where the error was built.
	Stack []Frame
}

type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// Error renders "op: [CODE] message: cause", omitting empty parts.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op + ": ")
	}
	if e.Code != "" {
		fmt.Fprintf(&b, "[%s] ", e.Code)
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any, 1)
	}
	e.Fields[key] = value
	return e
}

func (e *Error) WithFields(fields map[string]any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any, len(fields))
	}
	maps.Copy(e.Fields, fields)
	return e
}

func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// StackTrace formats Stack one frame per line.
func (e *Error) StackTrace() string {
	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

// build is the single constructor; callers are one frame above the public
// helper that called it.
func build(code Code, op, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
		Stack:   captureStack(3),
	}
}

func New(code Code, message string) *Error {
	return build(code, "", message, nil)
}

// Wrap adds op and message to err. A coded err keeps its code and a copy of
// its fields; anything else becomes INTERNAL_ERROR.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}
	var inner *Error
	if errors.As(err, &inner) {
		e := build(inner.Code, op, message, err)
		e.Fields = maps.Clone(inner.Fields)
		return e
	}
	return build(CodeInternal, op, message, err)
}

func Wrapf(err error, op string, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	e := Wrap(err, op, fmt.Sprintf(format, args...))
	e.Stack = captureStack(2)
	return e
}

// WrapWithCode wraps err under an explicit code, discarding any inner one.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}
	return build(code, op, message, err)
}

// NotFound reports a missing resource by kind and id.
func NotFound(resource string, id string) *Error {
	return build(CodeNotFound, "", fmt.Sprintf("%s not found: %s", resource, id), nil).
		WithFields(map[string]any{"resource": resource, "id": id})
}

func Validation(message string) *Error {
	return build(CodeValidation, "", message, nil)
}

func Validationf(format string, args ...any) *Error {
	return build(CodeValidation, "", fmt.Sprintf(format, args...), nil)
}

// ValidationField is a validation error about one request field.
func ValidationField(field string, message string) *Error {
	return build(CodeValidation, "", message, nil).WithField("field", field)
}

func Conflict(message string) *Error {
	return build(CodeConflict, "", message, nil)
}

func AlreadyExists(resource string, id string) *Error {
	return build(CodeAlreadyExists, "", fmt.Sprintf("%s already exists: %s", resource, id), nil).
		WithFields(map[string]any{"resource": resource, "id": id})
}

// Timeout reports operation running past its deadline.
func Timeout(operation string) *Error {
	return build(CodeTimeout, "", "operation timed out: "+operation, nil).
		WithField("operation", operation)
}

func Unavailable(service string) *Error {
	return build(CodeUnavailable, "", "service unavailable: "+service, nil).
		WithField("service", service)
}

// GetCode returns err's code, or CodeInternal for uncoded errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func GetHTTPStatus(err error) int {
	return GetCode(err).HTTPStatus()
}

// GetFields returns the fields of the outermost coded error in err's chain.
func GetFields(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

func IsValidation(err error) bool {
	return IsCode(err, CodeValidation)
}

func IsTimeout(err error) bool {
	return IsCode(err, CodeTimeout)
}

// IsConflict covers both CONFLICT and ALREADY_EXISTS.
func IsConflict(err error) bool {
	switch GetCode(err) {
	case CodeConflict, CodeAlreadyExists:
		return true
	}
	return false
}

// captureStack records up to ten non-runtime frames above skip.
func captureStack(skip int) []Frame {
	var pcs [32]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	it := runtime.CallersFrames(pcs[:n])

	frames := make([]Frame, 0, 10)
	for len(frames) < 10 {
		f, more := it.Next()
		if !strings.Contains(f.File, "runtime/") {
			frames = append(frames, Frame{File: f.File, Line: f.Line, Function: f.Function})
		}
		if !more {
			break
		}
	}
	return frames
}

// As calls the standard errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is calls the standard errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

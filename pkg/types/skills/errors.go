package skills

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind names a class of failure so callers can branch on it
type ErrorKind string

// Error kinds raised by the runtime
const (
	ErrValidation          ErrorKind = "ValidationError"
	ErrParse               ErrorKind = "ParseError"
	ErrFile                ErrorKind = "FileError"
	ErrNotFound            ErrorKind = "NotFoundError"
	ErrParameterValidation ErrorKind = "ParameterValidationError"
	ErrCircularHook        ErrorKind = "CircularHookError"
	ErrHookTimeout         ErrorKind = "HookTimeoutError"
	ErrSkillTimeout        ErrorKind = "SkillTimeoutError"
	ErrNativeExecution     ErrorKind = "NativeExecutionError"
	ErrScriptExecution     ErrorKind = "ScriptExecutionError"
	ErrMCPExecution        ErrorKind = "MCPExecutionError"
	ErrCompositeExecution  ErrorKind = "CompositeExecutionError"
	ErrHookExecution       ErrorKind = "HookExecutionError"
	ErrSkillExecution      ErrorKind = "SkillExecutionError"
)

// Error is the structured error every runtime failure is reported as. Skill
// names the skill the failure belongs to (or the document path for load-time
// errors) and Cause is the human-readable rule or reason.
type Error struct {
	Kind  ErrorKind
	Skill string
	Cause string
	Err   error
}

// NewError creates an Error with a formatted cause
func NewError(kind ErrorKind, skill string, format string, args ...any) *Error {
	return &Error{
		Kind:  kind,
		Skill: skill,
		Cause: fmt.Sprintf(format, args...),
	}
}

// WrapError creates an Error wrapping err. A nil err yields a plain Error.
func WrapError(err error, kind ErrorKind, skill string, format string, args ...any) *Error {
	e := NewError(kind, skill, format, args...)
	e.Err = err
	return e
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Skill != "" {
		msg += fmt.Sprintf(" [%s]", e.Skill)
	}
	if e.Cause != "" {
		msg += ": " + e.Cause
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind. A target with an empty Skill
// matches any skill.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Skill == "" || t.Skill == e.Skill)
}

type errorJSON struct {
	Kind    ErrorKind `json:"kind"`
	Skill   string    `json:"skill,omitempty"`
	Cause   string    `json:"cause,omitempty"`
	Message string    `json:"message"`
}

// MarshalJSON encodes the error with its full message so diagnostics survive
// serialisation even though the wrapped chain does not.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(errorJSON{
		Kind:    e.Kind,
		Skill:   e.Skill,
		Cause:   e.Cause,
		Message: e.Error(),
	})
}

// AsError returns the outermost *Error in err's chain
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether any *Error in err's chain has the given kind
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		if multi, ok := err.(interface{ WrappedErrors() []error }); ok {
			for _, inner := range multi.WrappedErrors() {
				if IsKind(inner, kind) {
					return true
				}
			}
			return false
		}
		err = errors.Unwrap(err)
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// Structured converts any error into an *Error, classifying foreign errors
// with the fallback kind.
func Structured(err error, fallback ErrorKind, skill string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return WrapError(err, fallback, skill, "unexpected failure")
}

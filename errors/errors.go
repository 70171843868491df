package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseEncode    Phase = "encode"    // name encoding
	PhaseRegister  Phase = "register"  // class registration
	PhaseLifecycle Phase = "lifecycle" // create/reference/free callbacks
	PhaseDispatch  Phase = "dispatch"  // virtual resolution
	PhaseTransport Phase = "transport" // wasm host module
	PhaseConfig    Phase = "config"    // scenario loading
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidName   Kind = "invalid_name"
	KindInvalidUTF8   Kind = "invalid_utf8"
	KindInvalidHandle Kind = "invalid_handle"
	KindDoubleFree    Kind = "double_free"
	KindTypeMismatch  Kind = "type_mismatch"
	KindRefCount      Kind = "ref_count"
	KindConsumed      Kind = "consumed"
	KindContract      Kind = "contract"
	KindUnsupported   Kind = "unsupported"
	KindNotFound      Kind = "not_found"
	KindDuplicate     Kind = "duplicate"
	KindRegistration  Kind = "registration"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindInvalidInput  Kind = "invalid_input"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Class  string
	GoType string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Class != "" {
		b.WriteString(" in class ")
		b.WriteString(e.Class)
	}

	if e.GoType != "" {
		b.WriteString(": Go type ")
		b.WriteString(e.GoType)
	}

	if e.Detail != "" {
		if e.GoType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Class sets the class name the error relates to
func (b *Builder) Class(name string) *Builder {
	b.err.Class = name
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidName creates an error for a class name the foreign ABI cannot carry
func InvalidName(name string, detail string) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindInvalidName,
		Value:  name,
		Detail: fmt.Sprintf("%q: %s", name, detail),
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// InvalidHandle creates an error for an instance pointer the bridge never minted
func InvalidHandle(phase Phase, ptr uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandle,
		Value:  ptr,
		Detail: fmt.Sprintf("instance pointer %#x is not live", ptr),
	}
}

// DoubleFree creates an error for a free of an already freed instance
func DoubleFree(class string, ptr uint64) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindDoubleFree,
		Class:  class,
		Value:  ptr,
		Detail: fmt.Sprintf("instance %#x freed twice", ptr),
	}
}

// TypeMismatch creates an error for a pointer recovered as the wrong Go type
func TypeMismatch(phase Phase, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		GoType: got,
		Detail: fmt.Sprintf("expected %s", want),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Value:  offset,
		Detail: fmt.Sprintf("range [%d, %d) out of bounds", offset, offset+length),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

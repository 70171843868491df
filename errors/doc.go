// Package errors provides structured error types for the extension bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes the class involved, the Go type, and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRegister, errors.KindDuplicate).
//		Class("Counter").
//		GoType("*classes.Counter").
//		Detail("already registered").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.DoubleFree("Counter", ptr)
//	err := errors.InvalidUTF8(errors.PhaseDispatch, raw)
//
// Contract violations at the foreign boundary are not returned. They are
// raised with Fatal, which panics with the *Error.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors

package errors

// Fatal reports a contract violation at the foreign boundary.
//
// Recovering is unsafe once the foreign runtime has been handed an
// inconsistent pointer, so Fatal panics with the *Error. When the callback
// was entered from a C caller the panic cannot unwind past the boundary and
// the process aborts.
func Fatal(err *Error) {
	panic(err)
}

// AsFatal extracts the *Error carried by a recovered Fatal panic.
func AsFatal(recovered any) (*Error, bool) {
	err, ok := recovered.(*Error)
	return err, ok
}

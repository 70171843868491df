// Package extbind binds Go types to a GDExtension-style foreign object
// runtime as extension classes.
//
// A Go type becomes a class by implementing class.ExtensionClass. Its
// registration submits a descriptor of C-ABI callbacks that the foreign
// runtime later calls to create, reference, convert, dispatch virtuals on
// and free native instances.
//
// # Architecture Overview
//
//	extbind/
//	├── abi/         Opaque pointers, class names and the creation info table
//	├── class/       The contract a Go type implements to become a class
//	├── classdb/     Descriptor builder and per-library class registry
//	├── storage/     Generation-tagged instance table and lifecycle events
//	├── dispatch/    Virtual method resolution by exact name
//	├── errors/      Structured error types for debugging
//	├── foreign/     In-process foreign runtime used by tests and the CLI
//	├── wasmhost/    wazero host module exposing the callbacks to guests
//	├── metrics/     Prometheus collector fed by storage events
//	├── scenario/    YAML lifecycle scenarios and their runner
//	└── cmd/extbind/ CLI with a TUI stepper and descriptor tables
//
// # Quick Start
//
// Declare a class and register it:
//
//	type Greeter struct {
//	    class.Base
//	}
//
//	func (*Greeter) ClassName() string { return "Greeter" }
//
//	reg := classdb.New(lib, iface)
//	if err := classdb.Register[Greeter](reg); err != nil {
//	    log.Fatal(err)
//	}
//
// # Contract Violations
//
// A callback that receives a pointer it did not mint, a double free or an
// unreference below zero cannot return an error to the foreign caller. These
// paths abort through errors.Fatal, which panics with an *errors.Error.
//
// # Thread Safety
//
// Registration happens once during initialization. Callbacks may arrive on
// any thread; the instance table is safe for concurrent use, the native
// values themselves are not synchronized.
package extbind

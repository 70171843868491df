// Package class defines the contract a native Go type satisfies to be bound
// as a foreign class.
//
// Implementations are produced outside the bridge (by a generator, by hand,
// or from a declaration). The bridge only calls through these interfaces.
// Methods are called on a pointer to the zero value for class-level queries
// (ClassName, BaseClassName, MemoryStrategy, HasToString, ResolveVirtual,
// RegisterMethods), so they must not depend on instance state.
package class

import (
	"github.com/wippyai/extbind/abi"
)

// Memory is the memory-management strategy of a class.
type Memory uint8

const (
	// MemRefCounted instances are freed by the foreign runtime once their
	// reference count drops to zero.
	MemRefCounted Memory = iota
	// MemManual instances live until explicitly freed.
	MemManual
)

func (m Memory) String() string {
	switch m {
	case MemRefCounted:
		return "ref_counted"
	case MemManual:
		return "manual"
	}
	return "unknown"
}

// Class is the class-level identity of a bindable type.
type Class interface {
	// ClassName is the name the foreign runtime knows the class by.
	ClassName() string
	// BaseClassName names the parent class the instance extends.
	BaseClassName() string
	// MemoryStrategy tags how instance lifetime is managed.
	MemoryStrategy() Memory
}

// ExtensionClass is the full contract consumed by class registration.
type ExtensionClass interface {
	Class

	// HasToString declares string conversion support. When true the type
	// must also implement Stringer.
	HasToString() bool

	// ResolveVirtual maps an exact virtual method name to its entry point,
	// or nil when the class does not implement it.
	ResolveVirtual(name string) abi.CallVirtual

	// RegisterMethods exposes methods once, after the class is registered.
	RegisterMethods(r MethodRegistrar)

	// Init default-constructs the instance, taking ownership of base.
	Init(base abi.ObjectPtr)
}

// Stringer converts an instance to its foreign string form.
type Stringer interface {
	ToString() string
}

// MethodRegistrar receives method declarations during RegisterMethods.
type MethodRegistrar interface {
	// ClassName returns the class the methods are registered on.
	ClassName() string
	// Method exposes one method. Errors from the foreign runtime are returned unchanged.
	Method(name string, call abi.MethodCall, opts ...MethodOption) error
}

// MethodOption configures a method declaration.
type MethodOption func(*abi.MethodInfo)

// WithArgs sets the declared argument count.
func WithArgs(n uint32) MethodOption {
	return func(m *abi.MethodInfo) {
		m.ArgumentCount = n
	}
}

// WithReturn declares that the method writes a return value.
func WithReturn() MethodOption {
	return func(m *abi.MethodInfo) {
		m.HasReturn = true
	}
}

// WithFlags replaces the method flags.
func WithFlags(f abi.MethodFlags) MethodOption {
	return func(m *abi.MethodInfo) {
		m.Flags = f
	}
}

// Base is embeddable by classes that keep their foreign base object and
// have no methods or virtuals of their own.
type Base struct {
	object abi.ObjectPtr
}

// Init stores the base object.
func (b *Base) Init(base abi.ObjectPtr) {
	b.object = base
}

// Object returns the foreign base object.
func (b *Base) Object() abi.ObjectPtr {
	return b.object
}

// HasToString reports no string conversion.
func (*Base) HasToString() bool { return false }

// ResolveVirtual resolves nothing.
func (*Base) ResolveVirtual(string) abi.CallVirtual { return nil }

// RegisterMethods registers nothing.
func (*Base) RegisterMethods(MethodRegistrar) {}

// MemoryStrategy defaults to reference counting.
func (*Base) MemoryStrategy() Memory { return MemRefCounted }

// BaseClassName defaults to RefCounted.
func (*Base) BaseClassName() string { return "RefCounted" }

// Package dispatch resolves virtual method names requested by the foreign
// runtime to native entry points.
//
// Resolution is an exact lookup delegated to the class's own mapping. There
// is no fuzzy matching and no case folding; a name either maps to one entry
// point or to "not found".
package dispatch

import (
	"sort"

	"github.com/wippyai/extbind/abi"
	"github.com/wippyai/extbind/class"
	"github.com/wippyai/extbind/storage"
)

// Resolve asks T for the entry point of the named virtual method.
// The second result is false when T does not implement it.
func Resolve[T any, PT interface {
	*T
	class.ExtensionClass
}](name string) (abi.CallVirtual, bool) {
	fn := PT(new(T)).ResolveVirtual(name)
	return fn, fn != nil
}

// Table is a class's declared virtual mapping, keyed by exact name.
type Table map[string]abi.CallVirtual

// Lookup returns the entry point for name, or nil.
func (t Table) Lookup(name string) abi.CallVirtual {
	return t[name]
}

// Names returns the declared virtual names in sorted order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Method is a virtual implementation written against the native type.
type Method[T any] func(self *T, args []abi.ConstTypePtr, ret abi.TypePtr)

// Bind adapts fn to the foreign entry point signature. The returned
// CallVirtual recovers the instance from the process-wide storage table.
func Bind[T any](fn Method[T]) abi.CallVirtual {
	return func(instance abi.ClassInstancePtr, args []abi.ConstTypePtr, ret abi.TypePtr) {
		s := storage.As[T](storage.Default(), instance)
		s.Touch(storage.EventVirtualCalled)
		fn(s.Get(), args, ret)
	}
}

// BindMethod adapts fn to the method ptrcall signature.
func BindMethod[T any](fn Method[T]) abi.MethodCall {
	return func(instance abi.ClassInstancePtr, args []abi.ConstTypePtr, ret abi.TypePtr) {
		fn(storage.As[T](storage.Default(), instance).Get(), args, ret)
	}
}

package storage

import (
	"fmt"
	"sync/atomic"

	"github.com/wippyai/extbind/abi"
	"github.com/wippyai/extbind/errors"
)

// InstanceStorage owns one native value, its reference count and the foreign
// base object it extends. The foreign runtime only ever holds the pointer
// returned by IntoRaw.
type InstanceStorage[T any] struct {
	value T
	table *Table
	class string
	base  abi.ObjectPtr
	ptr   abi.ClassInstancePtr
	refs  atomic.Int32
	freed bool
}

// New wraps value in storage with a reference count of one.
func New[T any](table *Table, class string, base abi.ObjectPtr, value T) *InstanceStorage[T] {
	s := &InstanceStorage[T]{
		value: value,
		table: table,
		class: class,
		base:  base,
	}
	s.refs.Store(1)
	return s
}

// ConstructDefault default-constructs T and hands it ownership of base.
// Init must not call back into class registration.
func ConstructDefault[T any, PT interface {
	*T
	Init(base abi.ObjectPtr)
}](table *Table, class string, base abi.ObjectPtr) *InstanceStorage[T] {
	s := New(table, class, base, *new(T))
	PT(&s.value).Init(base)
	return s
}

// Get returns the owned value.
func (s *InstanceStorage[T]) Get() *T {
	return &s.value
}

// Base returns the foreign object this instance extends.
func (s *InstanceStorage[T]) Base() abi.ObjectPtr {
	return s.base
}

// Class returns the registered class name.
func (s *InstanceStorage[T]) Class() string {
	return s.class
}

// Ptr returns the pointer minted by IntoRaw, or zero before that.
func (s *InstanceStorage[T]) Ptr() abi.ClassInstancePtr {
	return s.ptr
}

// RefCount returns the current reference count.
func (s *InstanceStorage[T]) RefCount() int32 {
	return s.refs.Load()
}

// IncRef increments the reference count.
func (s *InstanceStorage[T]) IncRef() {
	n := s.refs.Add(1)
	s.emit(EventReferenced, n)
}

// DecRef decrements the reference count. Releasing below zero means the
// foreign runtime paired its calls wrongly and aborts. Reaching zero does not
// free the instance; the foreign runtime decides when to call free.
func (s *InstanceStorage[T]) DecRef() {
	n := s.refs.Add(-1)
	if n < 0 {
		s.refs.Add(1)
		fatal(errors.New(errors.PhaseLifecycle, errors.KindRefCount).
			Class(s.class).
			Value(uint64(s.ptr)).
			Detail("unreference with zero references").
			Build())
	}
	s.emit(EventUnreferenced, n)
}

// Touch reports a non-mutating lifecycle event such as string conversion.
func (s *InstanceStorage[T]) Touch(typ EventType) {
	s.emit(typ, s.refs.Load())
}

// IntoRaw registers the storage in its table and returns the pointer the
// foreign runtime will hold. Ownership passes to the foreign side until Free.
func (s *InstanceStorage[T]) IntoRaw() abi.ClassInstancePtr {
	if s.ptr != 0 {
		fatal(errors.New(errors.PhaseLifecycle, errors.KindContract).
			Class(s.class).
			Detail("storage already handed to foreign runtime").
			Build())
	}
	s.ptr = s.table.insert(s.class, s)
	s.emit(EventCreated, s.refs.Load())
	return s.ptr
}

// Handle returns the typed handle of a storage that has been through IntoRaw.
func (s *InstanceStorage[T]) Handle() Handle[T] {
	return Handle[T]{ptr: s.ptr}
}

func (s *InstanceStorage[T]) emit(typ EventType, refs int32) {
	s.table.notify(Event{
		Type:     typ,
		Class:    s.class,
		Instance: s.ptr,
		Base:     s.base,
		RefCount: refs,
	})
}

// As recovers the storage behind a foreign instance pointer. A pointer that
// is not live or belongs to another Go type aborts.
func As[T any](table *Table, ptr abi.ClassInstancePtr) *InstanceStorage[T] {
	v, class, st := table.lookup(ptr)
	switch st {
	case statusFreed:
		fatal(errors.New(errors.PhaseLifecycle, errors.KindInvalidHandle).
			Class(class).
			Value(uint64(ptr)).
			Detail("use of freed instance %#x", uint64(ptr)).
			Build())
	case statusUnknown:
		fatal(errors.InvalidHandle(errors.PhaseLifecycle, uint64(ptr)))
	}

	s, ok := v.(*InstanceStorage[T])
	if !ok {
		fatal(errors.TypeMismatch(errors.PhaseLifecycle,
			fmt.Sprintf("%T", (*InstanceStorage[T])(nil)), fmt.Sprintf("%T", v)))
	}
	return s
}

// Free releases the storage behind ptr and runs the value's destruction
// exactly once. Freeing twice or freeing a pointer this table never minted
// aborts.
func Free[T any](table *Table, ptr abi.ClassInstancePtr) {
	v, _, _ := table.lookup(ptr)
	if v != nil {
		if _, ok := v.(*InstanceStorage[T]); !ok {
			fatal(errors.TypeMismatch(errors.PhaseLifecycle,
				fmt.Sprintf("%T", (*InstanceStorage[T])(nil)), fmt.Sprintf("%T", v)))
		}
	}

	v, class, st := table.remove(ptr)
	switch st {
	case statusFreed:
		fatal(errors.DoubleFree(class, uint64(ptr)))
	case statusUnknown:
		fatal(errors.InvalidHandle(errors.PhaseLifecycle, uint64(ptr)))
	}

	s := v.(*InstanceStorage[T])
	s.release()
}

func (s *InstanceStorage[T]) release() {
	if d, ok := any(&s.value).(Destroyer); ok {
		d.Destroy()
	}
	s.freed = true
	s.emit(EventFreed, s.refs.Load())
	var zero T
	s.value = zero
}

// Freed reports whether the foreign runtime has released the instance.
func (s *InstanceStorage[T]) Freed() bool {
	return s.freed
}

// Handle is a typed view of an instance pointer. Only this package converts
// between handles and storage.
type Handle[T any] struct {
	ptr abi.ClassInstancePtr
}

// HandleOf tags a foreign instance pointer with its native type.
func HandleOf[T any](ptr abi.ClassInstancePtr) Handle[T] {
	return Handle[T]{ptr: ptr}
}

// Raw returns the untyped pointer for the foreign runtime.
func (h Handle[T]) Raw() abi.ClassInstancePtr {
	return h.ptr
}

// IsZero reports whether the handle is unset.
func (h Handle[T]) IsZero() bool {
	return h.ptr == 0
}

// Storage recovers the storage in table.
func (h Handle[T]) Storage(table *Table) *InstanceStorage[T] {
	return As[T](table, h.ptr)
}

package abi

import (
	"fmt"
	"unsafe"
)

// LibraryPtr identifies this extension library to the foreign runtime.
type LibraryPtr uintptr

// ObjectPtr is a foreign-side object handle. The bridge never dereferences it.
type ObjectPtr uintptr

// ClassInstancePtr is the opaque pointer the foreign runtime holds for a native
// instance. It is minted and reinterpreted only by package storage; every
// other holder passes it back verbatim.
type ClassInstancePtr uintptr

// StringPtr addresses a foreign string that the bridge may write into.
type StringPtr uintptr

// TypePtr and ConstTypePtr carry ptrcall arguments and return slots.
type (
	TypePtr      unsafe.Pointer
	ConstTypePtr unsafe.Pointer
)

// Userdata is the class-level user pointer carried in the descriptor.
type Userdata unsafe.Pointer

func (p ObjectPtr) String() string {
	return fmt.Sprintf("object(%#x)", uintptr(p))
}

func (p ClassInstancePtr) String() string {
	return fmt.Sprintf("instance(%#x)", uintptr(p))
}

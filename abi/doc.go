// Package abi mirrors the foreign runtime's C-style extension interface.
//
// The foreign runtime drives native objects through a fixed table of
// callbacks (ClassCreationInfo) and exposes its own function table
// (Interface). Pointers crossing the boundary are distinct named types:
//
//	LibraryPtr        this library, as known to the foreign runtime
//	ObjectPtr         a foreign base object
//	ClassInstancePtr  a native instance, minted by package storage
//	StringPtr         a foreign string the bridge may write into
//
// # Names
//
// Class names are passed as NUL-terminated buffers. CString owns the buffer;
// its Ptr is valid while the CString is reachable:
//
//	name := abi.NewCString("Counter")
//	iface.ClassDBConstructObject(name.Ptr())
//	runtime.KeepAlive(name)
//
// # Descriptor layout
//
// ClassCreationInfo fields are declared in ABI order. Layout reports each
// slot as present, absent or unsupported; property introspection, set/get,
// notification and RID slots are permanently unsupported.
package abi

// Package storage owns the native side of every instance the foreign runtime
// creates.
//
// The foreign runtime never sees a Go pointer. It holds an
// abi.ClassInstancePtr minted by a Table; the pointer addresses a slot that
// owns an InstanceStorage[T]:
//
//	s := storage.ConstructDefault[Counter](table, "Counter", base)
//	ptr := s.IntoRaw()                        // foreign side now owns s
//	storage.As[Counter](table, ptr).IncRef()  // recover on callback
//	storage.Free[Counter](table, ptr)         // destroy exactly once
//
// # Instance Lifecycle
//
//	Uncreated -> Live(refs >= 1) -> Freed
//
// Reference counts start at one. Reaching zero does not free the instance;
// the foreign runtime decides when to call free. Freed is terminal.
//
// # Contract Violations
//
// Using a freed pointer, freeing twice, unreferencing below zero or
// recovering a pointer as the wrong Go type are foreign-side contract
// violations. They abort through errors.Fatal instead of returning errors.
//
// # Observers
//
// Register observers to track lifecycle events:
//
//	table.Subscribe(myObserver)
//
// Observers run synchronously on the thread that drove the callback.
package storage

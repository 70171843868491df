package storage

import (
	"github.com/wippyai/extbind/abi"
)

// EventType identifies an instance lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReferenced
	EventUnreferenced
	EventStringified
	EventVirtualCalled
	EventFreed
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventReferenced:
		return "referenced"
	case EventUnreferenced:
		return "unreferenced"
	case EventStringified:
		return "stringified"
	case EventVirtualCalled:
		return "virtual_called"
	case EventFreed:
		return "freed"
	}
	return "unknown"
}

// Event represents an instance lifecycle event.
type Event struct {
	Class    string
	Instance abi.ClassInstancePtr
	Base     abi.ObjectPtr
	RefCount int32
	Type     EventType
}

// Observer receives notifications about instance lifecycle events.
// Observers are called synchronously on the thread that drove the callback.
type Observer interface {
	OnInstanceEvent(Event)
}

// Destroyer is optionally implemented by native values that need cleanup
// when the foreign runtime frees their instance.
type Destroyer interface {
	Destroy()
}

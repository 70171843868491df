package abi

import (
	"github.com/wippyai/extbind/errors"
)

// Callback signatures of the class creation info table.
type (
	SetFunc              func(instance ClassInstancePtr, name *byte, value ConstTypePtr) bool
	GetFunc              func(instance ClassInstancePtr, name *byte, ret TypePtr) bool
	GetPropertyListFunc  func(instance ClassInstancePtr, count *uint32) *PropertyInfo
	FreePropertyListFunc func(instance ClassInstancePtr, list *PropertyInfo)
	NotificationFunc     func(instance ClassInstancePtr, what int32)
	ToStringFunc         func(instance ClassInstancePtr, out StringPtr)
	ReferenceFunc        func(instance ClassInstancePtr)
	UnreferenceFunc      func(instance ClassInstancePtr)
	CreateInstanceFunc   func(userdata Userdata) ObjectPtr
	FreeInstanceFunc     func(userdata Userdata, instance ClassInstancePtr)
	GetVirtualFunc       func(userdata Userdata, name *byte) CallVirtual
	GetRIDFunc           func(instance ClassInstancePtr) uint64
)

// CallVirtual is the entry point returned for a resolved virtual method.
// A nil CallVirtual means the class does not implement the method.
type CallVirtual func(instance ClassInstancePtr, args []ConstTypePtr, ret TypePtr)

// PropertyInfo describes an exposed property. Property introspection is not
// supported by this bridge; the type exists so the reserved slots keep their
// foreign signatures.
type PropertyInfo struct {
	Name       *byte
	ClassName  *byte
	HintString *byte
	Type       uint32
	Hint       uint32
	Usage      uint32
}

// ClassCreationInfo mirrors the foreign class creation info struct.
// Field order is the ABI order and must not change.
type ClassCreationInfo struct {
	SetFunc              SetFunc
	GetFunc              GetFunc
	GetPropertyListFunc  GetPropertyListFunc
	FreePropertyListFunc FreePropertyListFunc
	NotificationFunc     NotificationFunc
	ToStringFunc         ToStringFunc
	ReferenceFunc        ReferenceFunc
	UnreferenceFunc      UnreferenceFunc
	CreateInstanceFunc   CreateInstanceFunc
	FreeInstanceFunc     FreeInstanceFunc
	GetVirtualFunc       GetVirtualFunc
	GetRIDFunc           GetRIDFunc
	ClassUserdata        Userdata
}

// Slot identifies a callback field of ClassCreationInfo, in ABI order.
type Slot uint8

const (
	SlotSet Slot = iota
	SlotGet
	SlotGetPropertyList
	SlotFreePropertyList
	SlotNotification
	SlotToString
	SlotReference
	SlotUnreference
	SlotCreateInstance
	SlotFreeInstance
	SlotGetVirtual
	SlotGetRID

	slotCount
)

var slotNames = [slotCount]string{
	SlotSet:              "set_func",
	SlotGet:              "get_func",
	SlotGetPropertyList:  "get_property_list_func",
	SlotFreePropertyList: "free_property_list_func",
	SlotNotification:     "notification_func",
	SlotToString:         "to_string_func",
	SlotReference:        "reference_func",
	SlotUnreference:      "unreference_func",
	SlotCreateInstance:   "create_instance_func",
	SlotFreeInstance:     "free_instance_func",
	SlotGetVirtual:       "get_virtual_func",
	SlotGetRID:           "get_rid_func",
}

// Slots returns every callback slot in ABI order.
func Slots() []Slot {
	s := make([]Slot, slotCount)
	for i := range s {
		s[i] = Slot(i)
	}
	return s
}

// String returns the foreign field name.
func (s Slot) String() string {
	if s < slotCount {
		return slotNames[s]
	}
	return "unknown_slot"
}

// Required reports whether every registered class must fill the slot.
func (s Slot) Required() bool {
	switch s {
	case SlotReference, SlotUnreference, SlotCreateInstance, SlotFreeInstance, SlotGetVirtual:
		return true
	}
	return false
}

// Unsupported reports whether the bridge never implements the slot.
func (s Slot) Unsupported() bool {
	switch s {
	case SlotSet, SlotGet, SlotGetPropertyList, SlotFreePropertyList, SlotNotification, SlotGetRID:
		return true
	}
	return false
}

// SlotState describes how a slot is filled in a descriptor.
type SlotState uint8

const (
	SlotAbsent SlotState = iota
	SlotPresent
	SlotUnsupported
)

func (s SlotState) String() string {
	switch s {
	case SlotPresent:
		return "present"
	case SlotUnsupported:
		return "unsupported"
	default:
		return "absent"
	}
}

// SlotEntry is one row of a descriptor layout.
type SlotEntry struct {
	Name  string
	Slot  Slot
	State SlotState
}

// Has reports whether the slot holds a callback.
func (c *ClassCreationInfo) Has(s Slot) bool {
	switch s {
	case SlotSet:
		return c.SetFunc != nil
	case SlotGet:
		return c.GetFunc != nil
	case SlotGetPropertyList:
		return c.GetPropertyListFunc != nil
	case SlotFreePropertyList:
		return c.FreePropertyListFunc != nil
	case SlotNotification:
		return c.NotificationFunc != nil
	case SlotToString:
		return c.ToStringFunc != nil
	case SlotReference:
		return c.ReferenceFunc != nil
	case SlotUnreference:
		return c.UnreferenceFunc != nil
	case SlotCreateInstance:
		return c.CreateInstanceFunc != nil
	case SlotFreeInstance:
		return c.FreeInstanceFunc != nil
	case SlotGetVirtual:
		return c.GetVirtualFunc != nil
	case SlotGetRID:
		return c.GetRIDFunc != nil
	}
	return false
}

// Layout reports every slot in ABI order. Empty slots the bridge never
// implements are marked SlotUnsupported rather than SlotAbsent.
func (c *ClassCreationInfo) Layout() []SlotEntry {
	out := make([]SlotEntry, 0, slotCount)
	for _, s := range Slots() {
		state := SlotAbsent
		switch {
		case c.Has(s):
			state = SlotPresent
		case s.Unsupported():
			state = SlotUnsupported
		}
		out = append(out, SlotEntry{Slot: s, Name: s.String(), State: state})
	}
	return out
}

// Validate checks that required slots are filled and unsupported ones are
// empty.
func (c *ClassCreationInfo) Validate() error {
	for _, s := range Slots() {
		has := c.Has(s)
		if s.Required() && !has {
			return errors.New(errors.PhaseRegister, errors.KindContract).
				Detail("required slot %s is empty", s).
				Build()
		}
		if s.Unsupported() && has {
			return errors.Unsupported(errors.PhaseRegister, s.String())
		}
	}
	return nil
}

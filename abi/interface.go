package abi

// InstanceBindingCallbacks is the binding lifecycle table passed with an
// instance binding. The bridge only associates identity, so it always passes
// NopBindingCallbacks.
type InstanceBindingCallbacks struct {
	CreateCallback    func(token, instance Userdata) Userdata
	FreeCallback      func(token, instance, binding Userdata)
	ReferenceCallback func(token, binding Userdata, reference bool) bool
}

// NopBindingCallbacks returns the binding table with every hook empty.
func NopBindingCallbacks() InstanceBindingCallbacks {
	return InstanceBindingCallbacks{}
}

// MethodCall is the ptrcall entry point of an exposed method.
type MethodCall func(instance ClassInstancePtr, args []ConstTypePtr, ret TypePtr)

// MethodFlags mirror the foreign method flag bits.
type MethodFlags uint32

const (
	MethodFlagNormal  MethodFlags = 1
	MethodFlagEditor  MethodFlags = 2
	MethodFlagConst   MethodFlags = 4
	MethodFlagVirtual MethodFlags = 8
	MethodFlagVararg  MethodFlags = 16
	MethodFlagStatic  MethodFlags = 32

	MethodFlagsDefault = MethodFlagNormal
)

// MethodInfo describes one method submitted after class registration.
type MethodInfo struct {
	Name          *byte
	Call          MethodCall
	ArgumentCount uint32
	Flags         MethodFlags
	HasReturn     bool
}

// Interface is the function table the foreign runtime exposes to the
// extension library. Registration errors returned by the foreign side are
// propagated unchanged by callers.
type Interface interface {
	StringSink

	// ClassDBConstructObject allocates a new object of a foreign or registered class.
	ClassDBConstructObject(className *byte) ObjectPtr

	// ObjectSetInstance attaches a native instance to a foreign object.
	ObjectSetInstance(object ObjectPtr, className *byte, instance ClassInstancePtr)

	// ObjectSetInstanceBinding associates the instance with the object for this library.
	ObjectSetInstanceBinding(object ObjectPtr, library LibraryPtr, instance ClassInstancePtr, callbacks *InstanceBindingCallbacks)

	// ClassDBRegisterExtensionClass submits a class descriptor.
	ClassDBRegisterExtensionClass(library LibraryPtr, className, parentClassName *byte, info *ClassCreationInfo) error

	// ClassDBRegisterExtensionClassMethod exposes one method of a registered class.
	ClassDBRegisterExtensionClassMethod(library LibraryPtr, className *byte, info *MethodInfo) error
}

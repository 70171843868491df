// Package foreign provides an in-process stand-in for the plugin host that
// loads extension libraries.
//
// Runtime implements abi.Interface, so a classdb.Registry can register
// classes against it, and exposes the operations a host performs on those
// classes:
//
//	rt := foreign.New()
//	reg := classdb.New(1, rt)
//	classdb.MustRegister[classes.Counter](reg)
//
//	obj, _ := rt.Instantiate("Counter")
//	rt.Reference(obj)
//	s, _, _ := rt.ToString(obj)
//	rt.Unreference(obj)
//	rt.Free(obj)
//
// The runtime honours the host side of the contract: it never calls into an
// instance after freeing it, never releases more references than it took,
// and only calls to_string on classes whose descriptor fills the slot.
// Objects of classes deriving from RefCounted are freed automatically when
// their last reference is released unless WithAutoFree(false) is given.
//
// The builtin class hierarchy defaults to DefaultBuiltins and can be
// replaced with WithBuiltins. Registration rejects unknown parents and
// duplicate class names with errors that the bridge returns unchanged.
package foreign

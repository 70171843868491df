package foreign

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/wippyai/extbind/abi"
)

// Instantiate creates an object of the named class. Extension classes go
// through their create-instance callback; builtin classes get a plain object.
func (r *Runtime) Instantiate(className string) (abi.ObjectPtr, error) {
	r.mu.Lock()
	e, ok := r.classes[className]
	r.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownClass, className)
	}

	if e.builtin {
		name := abi.NewCString(className)
		obj := r.ClassDBConstructObject(name.Ptr())
		runtime.KeepAlive(name)
		return obj, nil
	}

	obj := e.info.CreateInstanceFunc(e.info.ClassUserdata)
	if obj == 0 {
		return 0, fmt.Errorf("create_instance for %s returned null", className)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.objects[obj]
	if !ok || o.instance == 0 {
		return 0, fmt.Errorf("%w: %s object %d", ErrNoInstance, className, obj)
	}
	Logger().Debug("instantiated", zap.String("class", className), zap.Stringer("object", obj))
	return obj, nil
}

// live returns the object and its extension class, refusing freed objects.
func (r *Runtime) live(obj abi.ObjectPtr) (*object, *classEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.objects[obj]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownObject, obj)
	}
	if o.freed {
		return nil, nil, fmt.Errorf("%w: %d", ErrFreed, obj)
	}
	if o.instance == 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrNoInstance, obj)
	}
	return o, r.classes[o.ext], nil
}

// Reference takes a reference on the object's instance.
func (r *Runtime) Reference(obj abi.ObjectPtr) error {
	o, e, err := r.live(obj)
	if err != nil {
		return err
	}
	e.info.ReferenceFunc(o.instance)

	r.mu.Lock()
	o.refs++
	r.mu.Unlock()
	return nil
}

// Unreference releases a reference. With auto-free enabled a reference
// counted object is freed when its last reference goes.
func (r *Runtime) Unreference(obj abi.ObjectPtr) error {
	o, e, err := r.live(obj)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if o.refs == 0 {
		r.mu.Unlock()
		return fmt.Errorf("object %d has no references to release", obj)
	}
	r.mu.Unlock()

	e.info.UnreferenceFunc(o.instance)

	r.mu.Lock()
	o.refs--
	release := o.refs == 0 && r.autoFree && r.inherits(o.ext, "RefCounted")
	r.mu.Unlock()

	if release {
		return r.Free(obj)
	}
	return nil
}

// Free destroys the object's instance. The object is unusable afterwards.
func (r *Runtime) Free(obj abi.ObjectPtr) error {
	o, e, err := r.live(obj)
	if err != nil {
		return err
	}

	e.info.FreeInstanceFunc(e.info.ClassUserdata, o.instance)

	r.mu.Lock()
	o.freed = true
	r.mu.Unlock()
	Logger().Debug("freed", zap.String("class", o.ext), zap.Stringer("object", obj))
	return nil
}

// ToString converts the object. Classes without a to-string slot get the
// runtime's default form and false.
func (r *Runtime) ToString(obj abi.ObjectPtr) (string, bool, error) {
	o, e, err := r.live(obj)
	if err != nil {
		return "", false, err
	}
	if e.info.ToStringFunc == nil {
		return fmt.Sprintf("<%s#%d>", o.ext, obj), false, nil
	}

	r.mu.Lock()
	r.nextStr++
	dest := abi.StringPtr(r.nextStr)
	r.mu.Unlock()

	e.info.ToStringFunc(o.instance, dest)

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.strings[dest]
	if !ok {
		return "", false, fmt.Errorf("to_string for %s wrote no string", o.ext)
	}
	delete(r.strings, dest)
	return s, true, nil
}

// GetVirtual asks an extension class for a virtual entry point.
func (r *Runtime) GetVirtual(className, method string) (abi.CallVirtual, error) {
	r.mu.Lock()
	e, ok := r.classes[className]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, className)
	}
	if e.builtin {
		return nil, fmt.Errorf("%w: %s", ErrNotExtension, className)
	}

	name := abi.NewCString(method)
	fn := e.info.GetVirtualFunc(e.info.ClassUserdata, name.Ptr())
	runtime.KeepAlive(name)
	return fn, nil
}

// CallVirtual invokes a virtual on the object if its class implements it.
// It returns false when the class falls back to the runtime's default.
func (r *Runtime) CallVirtual(obj abi.ObjectPtr, method string, args []abi.ConstTypePtr, ret abi.TypePtr) (bool, error) {
	o, _, err := r.live(obj)
	if err != nil {
		return false, err
	}
	fn, err := r.GetVirtual(o.ext, method)
	if err != nil || fn == nil {
		return false, err
	}
	fn(o.instance, args, ret)
	return true, nil
}

// CallMethod invokes a registered method on the object.
func (r *Runtime) CallMethod(obj abi.ObjectPtr, method string, args []abi.ConstTypePtr, ret abi.TypePtr) error {
	o, e, err := r.live(obj)
	if err != nil {
		return err
	}

	r.mu.Lock()
	m, ok := e.methods[method]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownMethod, o.ext, method)
	}
	if uint32(len(args)) != m.ArgumentCount {
		return fmt.Errorf("%s.%s takes %d arguments, got %d", o.ext, method, m.ArgumentCount, len(args))
	}
	m.Call(o.instance, args, ret)
	return nil
}

// InstanceOf returns the extension instance bound to the object for lib.
func (r *Runtime) InstanceOf(obj abi.ObjectPtr, lib abi.LibraryPtr) (abi.ClassInstancePtr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.objects[obj]
	if !ok || o.freed {
		return 0, false
	}
	inst, ok := o.bindings[lib]
	return inst, ok
}

// ClassOf returns the extension class of an object, or its builtin class.
func (r *Runtime) ClassOf(obj abi.ObjectPtr) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.objects[obj]
	if !ok {
		return ""
	}
	if o.ext != "" {
		return o.ext
	}
	return o.class
}

// RefCount returns the runtime's view of the object's reference count.
func (r *Runtime) RefCount(obj abi.ObjectPtr) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.objects[obj]; ok {
		return o.refs
	}
	return 0
}

// Freed reports whether the object has been freed.
func (r *Runtime) Freed(obj abi.ObjectPtr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.objects[obj]
	return ok && o.freed
}

package foreign

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/extbind/abi"
)

var (
	ErrUnknownClass  = errors.New("unknown class")
	ErrClassExists   = errors.New("class already exists")
	ErrUnknownParent = errors.New("unknown parent class")
	ErrUnknownObject = errors.New("unknown object")
	ErrFreed         = errors.New("object already freed")
	ErrNoInstance    = errors.New("object has no extension instance")
	ErrNotExtension  = errors.New("not an extension class")
	ErrUnknownMethod = errors.New("unknown method")
)

// Runtime is an in-process foreign runtime. It implements abi.Interface for
// the bridge and drives registered classes the way a plugin host would:
// it creates objects, adjusts references, frees them, converts them to
// strings and resolves virtuals, never calling into an object after freeing
// it.
type Runtime struct {
	classes  map[string]*classEntry
	objects  map[abi.ObjectPtr]*object
	strings  map[abi.StringPtr]string
	calls    []Call
	nextObj  uint64
	nextStr  uint64
	mu       sync.Mutex
	autoFree bool
}

type classEntry struct {
	info    *abi.ClassCreationInfo
	methods map[string]abi.MethodInfo
	name    string
	parent  string
	order   []string
	lib     abi.LibraryPtr
	builtin bool
	regs    int
}

type object struct {
	bindings map[abi.LibraryPtr]abi.ClassInstancePtr
	class    string
	ext      string
	instance abi.ClassInstancePtr
	refs     int32
	freed    bool
}

// Call records one abi.Interface call made by the bridge.
type Call struct {
	Op       string
	Class    string
	Parent   string
	Object   abi.ObjectPtr
	Instance abi.ClassInstancePtr
}

// DefaultBuiltins is the class hierarchy a Runtime starts with, keyed by
// class name with the parent as value.
var DefaultBuiltins = map[string]string{
	"Object":     "",
	"RefCounted": "Object",
	"Resource":   "RefCounted",
	"Node":       "Object",
	"Node2D":     "Node",
	"Node3D":     "Node",
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithBuiltins replaces the builtin class hierarchy.
func WithBuiltins(classes map[string]string) Option {
	return func(r *Runtime) {
		r.classes = make(map[string]*classEntry, len(classes))
		for name, parent := range classes {
			r.classes[name] = &classEntry{name: name, parent: parent, builtin: true}
		}
	}
}

// WithAutoFree frees instances of reference-counted classes when their last
// reference is released. Enabled by default.
func WithAutoFree(enabled bool) Option {
	return func(r *Runtime) {
		r.autoFree = enabled
	}
}

// New creates a runtime with the default builtin classes.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		objects:  make(map[abi.ObjectPtr]*object),
		strings:  make(map[abi.StringPtr]string),
		autoFree: true,
	}
	WithBuiltins(DefaultBuiltins)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ abi.Interface = (*Runtime)(nil)

func (r *Runtime) record(c Call) {
	r.calls = append(r.calls, c)
}

// ClassDBConstructObject allocates a plain object of the named class.
func (r *Runtime) ClassDBConstructObject(className *byte) abi.ObjectPtr {
	name := abi.GoString(className)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.record(Call{Op: "construct_object", Class: name})
	if _, ok := r.classes[name]; !ok {
		Logger().Warn("construct of unknown class", zap.String("class", name))
		return 0
	}
	r.nextObj++
	ptr := abi.ObjectPtr(r.nextObj)
	r.objects[ptr] = &object{
		class:    name,
		refs:     1,
		bindings: make(map[abi.LibraryPtr]abi.ClassInstancePtr),
	}
	return ptr
}

// ObjectSetInstance attaches a native instance to an object.
func (r *Runtime) ObjectSetInstance(obj abi.ObjectPtr, className *byte, instance abi.ClassInstancePtr) {
	name := abi.GoString(className)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.record(Call{Op: "object_set_instance", Class: name, Object: obj, Instance: instance})
	if o, ok := r.objects[obj]; ok {
		o.ext = name
		o.instance = instance
	}
}

// ObjectSetInstanceBinding associates an instance with an object for a library.
func (r *Runtime) ObjectSetInstanceBinding(obj abi.ObjectPtr, lib abi.LibraryPtr, instance abi.ClassInstancePtr, _ *abi.InstanceBindingCallbacks) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record(Call{Op: "object_set_instance_binding", Object: obj, Instance: instance})
	if o, ok := r.objects[obj]; ok {
		o.bindings[lib] = instance
	}
}

// ClassDBRegisterExtensionClass accepts a class whose parent is known and
// whose name is free.
func (r *Runtime) ClassDBRegisterExtensionClass(lib abi.LibraryPtr, className, parentClassName *byte, info *abi.ClassCreationInfo) error {
	name := abi.GoString(className)
	parent := abi.GoString(parentClassName)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.record(Call{Op: "register_extension_class", Class: name, Parent: parent})

	if e, ok := r.classes[name]; ok {
		e.regs++
		return fmt.Errorf("%w: %s", ErrClassExists, name)
	}
	if _, ok := r.classes[parent]; !ok {
		return fmt.Errorf("%w: %s extends %s", ErrUnknownParent, name, parent)
	}

	r.classes[name] = &classEntry{
		name:    name,
		parent:  parent,
		info:    info,
		lib:     lib,
		methods: make(map[string]abi.MethodInfo),
		regs:    1,
	}
	Logger().Debug("extension class registered", zap.String("class", name), zap.String("parent", parent))
	return nil
}

// ClassDBRegisterExtensionClassMethod records a method of a registered class.
func (r *Runtime) ClassDBRegisterExtensionClassMethod(_ abi.LibraryPtr, className *byte, info *abi.MethodInfo) error {
	name := abi.GoString(className)
	method := abi.GoString(info.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.record(Call{Op: "register_extension_class_method", Class: name})

	e, ok := r.classes[name]
	if !ok || e.builtin {
		return fmt.Errorf("%w: %s", ErrNotExtension, name)
	}
	copied := *info
	copied.Name = nil
	if _, exists := e.methods[method]; !exists {
		e.order = append(e.order, method)
	}
	e.methods[method] = copied
	return nil
}

// StringNewWithUTF8Chars stores a copy of contents at dest.
func (r *Runtime) StringNewWithUTF8Chars(dest abi.StringPtr, contents *byte) {
	s := abi.GoString(contents)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.strings[dest] = s
}

// Calls returns the interface calls made so far.
func (r *Runtime) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Registrations returns how many times a class was submitted for registration.
func (r *Runtime) Registrations(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.classes[name]; ok && !e.builtin {
		return e.regs
	}
	return 0
}

// Descriptor returns the creation info submitted for an extension class.
func (r *Runtime) Descriptor(name string) (*abi.ClassCreationInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.classes[name]
	if !ok || e.builtin {
		return nil, false
	}
	return e.info, true
}

// Methods returns the method names registered for a class, in order.
func (r *Runtime) Methods(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.classes[name]; ok {
		return append([]string(nil), e.order...)
	}
	return nil
}

// ExtensionClasses returns registered extension class names, sorted.
func (r *Runtime) ExtensionClasses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for name, e := range r.classes {
		if !e.builtin {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Inherits reports whether class derives from ancestor (or is it).
func (r *Runtime) Inherits(class, ancestor string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inherits(class, ancestor)
}

func (r *Runtime) inherits(class, ancestor string) bool {
	for seen := 0; class != "" && seen <= len(r.classes); seen++ {
		if class == ancestor {
			return true
		}
		e, ok := r.classes[class]
		if !ok {
			return false
		}
		class = e.parent
	}
	return false
}

// LiveObjects returns the number of objects not yet freed.
func (r *Runtime) LiveObjects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.objects {
		if !o.freed {
			n++
		}
	}
	return n
}

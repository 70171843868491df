package classdb

import (
	"reflect"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/extbind/abi"
	"github.com/wippyai/extbind/class"
	"github.com/wippyai/extbind/errors"
	"github.com/wippyai/extbind/storage"
)

// ErrAlreadyRegistered matches errors returned when a Go type is registered
// twice with the same Registry.
var ErrAlreadyRegistered = &errors.Error{Phase: errors.PhaseRegister, Kind: errors.KindDuplicate}

// ClassInfo describes a registered class.
type ClassInfo struct {
	GoType  reflect.Type
	Info    *abi.ClassCreationInfo
	Name    string
	Parent  string
	Methods []string
	Memory  class.Memory
}

// Registry registers native types with one foreign runtime on behalf of one
// extension library. It is written during initialization and read-only
// afterwards.
type Registry struct {
	iface  abi.Interface
	table  *storage.Table
	byType map[reflect.Type]*ClassInfo
	order  []*ClassInfo
	lib    abi.LibraryPtr
	mu     sync.RWMutex
}

// New creates a registry for library lib talking to iface.
// Instances live in the process-wide storage table.
func New(lib abi.LibraryPtr, iface abi.Interface) *Registry {
	return &Registry{
		iface:  iface,
		table:  storage.Default(),
		byType: make(map[reflect.Type]*ClassInfo),
		lib:    lib,
	}
}

// Library returns the library handle passed to the foreign runtime.
func (r *Registry) Library() abi.LibraryPtr {
	return r.lib
}

// Interface returns the foreign function table.
func (r *Registry) Interface() abi.Interface {
	return r.iface
}

// Table returns the storage table instances are kept in.
func (r *Registry) Table() *storage.Table {
	return r.table
}

// Register builds T's descriptor, submits it to the foreign runtime and
// then runs T's one-time method registration.
//
// The foreign entry point is called at most once per Go type and Registry.
// A Registry speaks for one library, so a process binding two libraries
// submits T once through each; the foreign runtime decides whether a class
// name may be registered again. Registering T again with the same Registry
// returns an error matching ErrAlreadyRegistered. An error from the foreign
// entry point is returned as-is.
//
// RegisterMethods runs without the registry lock held and may register
// further classes or query r.
func Register[T any, PT interface {
	*T
	class.ExtensionClass
}](r *Registry) error {
	proto := PT(new(T))
	ci, err := submit[T, PT](r, proto)
	if err != nil {
		return err
	}
	proto.RegisterMethods(&registrar{registry: r, class: ci})
	return nil
}

// submit records T and calls the foreign registration entry point under the
// registry lock.
func submit[T any, PT interface {
	*T
	class.ExtensionClass
}](r *Registry, proto PT) (*ClassInfo, error) {
	goType := reflect.TypeOf((*T)(nil)).Elem()
	name := proto.ClassName()
	parent := proto.BaseClassName()

	if name == "" {
		errors.Fatal(errors.InvalidName(name, "empty class name for "+goType.String()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byType[goType]; ok {
		return nil, errors.New(errors.PhaseRegister, errors.KindDuplicate).
			Class(name).
			GoType(goType.String()).
			Detail("already registered").
			Build()
	}

	info, err := buildCreationInfo[T, PT](r, name, parent, goType.String())
	if err != nil {
		return nil, err
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}

	className := abi.NewCString(name)
	parentName := abi.NewCString(parent)

	err = r.iface.ClassDBRegisterExtensionClass(r.lib, className.Ptr(), parentName.Ptr(), info)
	runtime.KeepAlive(className)
	runtime.KeepAlive(parentName)
	if err != nil {
		Logger().Error("class registration rejected",
			zap.String("class", name),
			zap.String("parent", parent),
			zap.Error(err))
		return nil, err
	}

	ci := &ClassInfo{
		GoType: goType,
		Info:   info,
		Name:   name,
		Parent: parent,
		Memory: proto.MemoryStrategy(),
	}
	r.byType[goType] = ci
	r.order = append(r.order, ci)

	Logger().Debug("class registered",
		zap.String("class", name),
		zap.String("parent", parent),
		zap.Stringer("memory", ci.Memory),
		zap.Bool("to_string", info.ToStringFunc != nil))

	return ci, nil
}

// MustRegister is Register for initialization code that cannot continue
// after a failed registration.
func MustRegister[T any, PT interface {
	*T
	class.ExtensionClass
}](r *Registry) {
	if err := Register[T, PT](r); err != nil {
		panic(err)
	}
}

// Classes returns the registered classes in registration order.
func (r *Registry) Classes() []ClassInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ClassInfo, len(r.order))
	for i, ci := range r.order {
		out[i] = *ci
		out[i].Methods = append([]string(nil), ci.Methods...)
	}
	return out
}

// Lookup returns the class registered under name.
func (r *Registry) Lookup(name string) (ClassInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		if ci := r.order[i]; ci.Name == name {
			out := *ci
			out.Methods = append([]string(nil), ci.Methods...)
			return out, true
		}
	}
	return ClassInfo{}, false
}

// registrar forwards method declarations to the foreign runtime.
type registrar struct {
	registry *Registry
	class    *ClassInfo
}

func (m *registrar) ClassName() string {
	return m.class.Name
}

func (m *registrar) Method(name string, call abi.MethodCall, opts ...class.MethodOption) error {
	methodName := abi.NewCString(name)
	className := abi.NewCString(m.class.Name)

	info := abi.MethodInfo{
		Name:  methodName.Ptr(),
		Call:  call,
		Flags: abi.MethodFlagsDefault,
	}
	for _, opt := range opts {
		opt(&info)
	}

	err := m.registry.iface.ClassDBRegisterExtensionClassMethod(m.registry.lib, className.Ptr(), &info)
	runtime.KeepAlive(methodName)
	runtime.KeepAlive(className)
	if err != nil {
		return err
	}

	m.registry.mu.Lock()
	m.class.Methods = append(m.class.Methods, name)
	m.registry.mu.Unlock()

	Logger().Debug("method registered",
		zap.String("class", m.class.Name),
		zap.String("method", name))
	return nil
}

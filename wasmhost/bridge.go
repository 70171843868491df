package wasmhost

import (
	"context"
	"math"
	"runtime"
	"strconv"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/extbind/abi"
	"github.com/wippyai/extbind/classdb"
	"github.com/wippyai/extbind/errors"
)

// ModuleName is the import module guests use for the bridge functions.
const ModuleName = "extbind"

// bridge-owned string destinations start here so they never collide with
// destinations allocated by the foreign runtime.
const stringBase = 1 << 30

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

type hostFunc struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
	handler func(b *Bridge, ctx context.Context, mod api.Module, stack []uint64)
}

var hostFuncs = []hostFunc{
	{"class_id", []api.ValueType{i32, i32}, []api.ValueType{i32}, (*Bridge).classID},
	{"create_instance", []api.ValueType{i32}, []api.ValueType{i64}, (*Bridge).createInstance},
	{"free_instance", []api.ValueType{i32, i64}, nil, (*Bridge).freeInstance},
	{"reference", []api.ValueType{i32, i64}, nil, (*Bridge).reference},
	{"unreference", []api.ValueType{i32, i64}, nil, (*Bridge).unreference},
	{"to_string", []api.ValueType{i32, i64, i32, i32}, []api.ValueType{i32}, (*Bridge).toString},
	{"call_virtual", []api.ValueType{i32, i64, i32, i32}, []api.ValueType{i32}, (*Bridge).callVirtual},
	{"instance_of", []api.ValueType{i64}, []api.ValueType{i64}, (*Bridge).instanceOf},
}

// Bridge exposes registered classes to WebAssembly guests. It sits between
// the registry and the foreign runtime, delegating every abi.Interface call
// while capturing instance bindings and strings meant for guest memory.
type Bridge struct {
	iface    abi.Interface
	registry *classdb.Registry
	bindings map[abi.ObjectPtr]abi.ClassInstancePtr
	strings  map[abi.StringPtr]string
	nextStr  uint64
	mu       sync.Mutex
}

// New creates a bridge for library lib in front of iface. Classes must be
// registered through Registry so their callbacks route through the bridge.
func New(lib abi.LibraryPtr, iface abi.Interface) *Bridge {
	b := &Bridge{
		iface:    iface,
		bindings: make(map[abi.ObjectPtr]abi.ClassInstancePtr),
		strings:  make(map[abi.StringPtr]string),
		nextStr:  stringBase,
	}
	b.registry = classdb.New(lib, b)
	return b
}

// Registry returns the registry whose classes the bridge exposes.
func (b *Bridge) Registry() *classdb.Registry {
	return b.registry
}

var _ abi.Interface = (*Bridge)(nil)

func (b *Bridge) ClassDBConstructObject(className *byte) abi.ObjectPtr {
	return b.iface.ClassDBConstructObject(className)
}

func (b *Bridge) ObjectSetInstance(obj abi.ObjectPtr, className *byte, instance abi.ClassInstancePtr) {
	b.iface.ObjectSetInstance(obj, className, instance)
}

func (b *Bridge) ObjectSetInstanceBinding(obj abi.ObjectPtr, lib abi.LibraryPtr, instance abi.ClassInstancePtr, callbacks *abi.InstanceBindingCallbacks) {
	b.mu.Lock()
	b.bindings[obj] = instance
	b.mu.Unlock()
	b.iface.ObjectSetInstanceBinding(obj, lib, instance, callbacks)
}

func (b *Bridge) ClassDBRegisterExtensionClass(lib abi.LibraryPtr, className, parentClassName *byte, info *abi.ClassCreationInfo) error {
	return b.iface.ClassDBRegisterExtensionClass(lib, className, parentClassName, info)
}

func (b *Bridge) ClassDBRegisterExtensionClassMethod(lib abi.LibraryPtr, className *byte, info *abi.MethodInfo) error {
	return b.iface.ClassDBRegisterExtensionClassMethod(lib, className, info)
}

// StringNewWithUTF8Chars keeps strings written to bridge-owned destinations
// and forwards the rest.
func (b *Bridge) StringNewWithUTF8Chars(dest abi.StringPtr, contents *byte) {
	if dest >= stringBase {
		b.mu.Lock()
		b.strings[dest] = abi.GoString(contents)
		b.mu.Unlock()
		return
	}
	b.iface.StringNewWithUTF8Chars(dest, contents)
}

// InstanceOf returns the instance bound to a base object created through
// the bridge. Bindings of instances freed by the foreign runtime itself are
// dropped on lookup.
func (b *Bridge) InstanceOf(obj abi.ObjectPtr) (abi.ClassInstancePtr, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inst, ok := b.bindings[obj]
	if ok && !b.registry.Table().Contains(inst) {
		delete(b.bindings, obj)
		return 0, false
	}
	return inst, ok
}

// Instantiate registers the extbind host module in rt.
func (b *Bridge) Instantiate(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	builder := rt.NewHostModuleBuilder(ModuleName)
	for _, f := range hostFuncs {
		handler := f.handler
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				handler(b, ctx, mod, stack)
			}), f.params, f.results).
			Export(f.name)
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTransport, errors.KindRegistration, err, "instantiate host module")
	}
	Logger().Debug("host module instantiated",
		zap.String("module", ModuleName),
		zap.Int("classes", len(b.registry.Classes())))
	return mod, nil
}

// class maps a guest class id to its registered descriptor. Ids are
// 1-based positions in registration order.
func (b *Bridge) class(id uint32) classdb.ClassInfo {
	classes := b.registry.Classes()
	if id == 0 || int(id) > len(classes) {
		errors.Fatal(errors.NotFound(errors.PhaseTransport, "class id", strconv.FormatUint(uint64(id), 10)))
	}
	return classes[id-1]
}

func readBytes(mod api.Module, ptr, length uint32) []byte {
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		errors.Fatal(errors.OutOfBounds(errors.PhaseTransport, ptr, length))
	}
	return data
}

func (b *Bridge) classID(_ context.Context, mod api.Module, stack []uint64) {
	name := string(readBytes(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1])))
	stack[0] = 0
	for i, ci := range b.registry.Classes() {
		if ci.Name == name {
			stack[0] = api.EncodeU32(uint32(i + 1))
			return
		}
	}
	Logger().Debug("unknown class requested", zap.String("class", name))
}

func (b *Bridge) createInstance(_ context.Context, _ api.Module, stack []uint64) {
	ci := b.class(api.DecodeU32(stack[0]))
	obj := ci.Info.CreateInstanceFunc(ci.Info.ClassUserdata)
	stack[0] = uint64(obj)
}

func (b *Bridge) freeInstance(_ context.Context, _ api.Module, stack []uint64) {
	ci := b.class(api.DecodeU32(stack[0]))
	ci.Info.FreeInstanceFunc(ci.Info.ClassUserdata, abi.ClassInstancePtr(stack[1]))

	b.mu.Lock()
	for obj, inst := range b.bindings {
		if inst == abi.ClassInstancePtr(stack[1]) {
			delete(b.bindings, obj)
		}
	}
	b.mu.Unlock()
}

func (b *Bridge) reference(_ context.Context, _ api.Module, stack []uint64) {
	ci := b.class(api.DecodeU32(stack[0]))
	ci.Info.ReferenceFunc(abi.ClassInstancePtr(stack[1]))
}

func (b *Bridge) unreference(_ context.Context, _ api.Module, stack []uint64) {
	ci := b.class(api.DecodeU32(stack[0]))
	ci.Info.UnreferenceFunc(abi.ClassInstancePtr(stack[1]))
}

func (b *Bridge) toString(_ context.Context, mod api.Module, stack []uint64) {
	ci := b.class(api.DecodeU32(stack[0]))
	instance := abi.ClassInstancePtr(stack[1])
	outPtr, outCap := api.DecodeU32(stack[2]), api.DecodeU32(stack[3])

	if ci.Info.ToStringFunc == nil {
		stack[0] = api.EncodeI32(-1)
		return
	}

	b.mu.Lock()
	dest := abi.StringPtr(b.nextStr)
	b.nextStr++
	b.mu.Unlock()

	ci.Info.ToStringFunc(instance, dest)

	b.mu.Lock()
	s := b.strings[dest]
	delete(b.strings, dest)
	b.mu.Unlock()

	n := uint32(len(s))
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	written := min(n, outCap)
	if written > 0 && !mod.Memory().Write(outPtr, []byte(s[:written])) {
		errors.Fatal(errors.OutOfBounds(errors.PhaseTransport, outPtr, written))
	}
	stack[0] = api.EncodeI32(int32(n))
}

func (b *Bridge) callVirtual(_ context.Context, mod api.Module, stack []uint64) {
	ci := b.class(api.DecodeU32(stack[0]))
	instance := abi.ClassInstancePtr(stack[1])
	raw := readBytes(mod, api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))

	name := abi.NewCString(string(raw))
	fn := ci.Info.GetVirtualFunc(ci.Info.ClassUserdata, name.Ptr())
	runtime.KeepAlive(name)

	if fn == nil {
		stack[0] = api.EncodeI32(0)
		return
	}
	fn(instance, nil, nil)
	stack[0] = api.EncodeI32(1)
}

func (b *Bridge) instanceOf(_ context.Context, _ api.Module, stack []uint64) {
	inst, _ := b.InstanceOf(abi.ObjectPtr(stack[0]))
	stack[0] = uint64(inst)
}

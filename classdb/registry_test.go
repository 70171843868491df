package classdb_test

import (
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/extbind/abi"
	"github.com/wippyai/extbind/class"
	"github.com/wippyai/extbind/classdb"
	"github.com/wippyai/extbind/dispatch"
	"github.com/wippyai/extbind/errors"
	"github.com/wippyai/extbind/foreign"
	"github.com/wippyai/extbind/storage"
)

// fakeHost records every entry point the bridge calls.
type fakeHost struct {
	mu          sync.Mutex
	calls       map[string]int
	classes     map[string]*abi.ClassCreationInfo
	parents     map[string]string
	methods     []abi.MethodInfo
	methodNames []string
	instances   map[abi.ObjectPtr]abi.ClassInstancePtr
	bindings    map[abi.ObjectPtr]*abi.InstanceBindingCallbacks
	strings     map[abi.StringPtr]string
	nextObj     uint64
	registerErr error
	methodErr   error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		calls:     make(map[string]int),
		classes:   make(map[string]*abi.ClassCreationInfo),
		parents:   make(map[string]string),
		instances: make(map[abi.ObjectPtr]abi.ClassInstancePtr),
		bindings:  make(map[abi.ObjectPtr]*abi.InstanceBindingCallbacks),
		strings:   make(map[abi.StringPtr]string),
	}
}

func (h *fakeHost) count(op string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[op]
}

func (h *fakeHost) ClassDBConstructObject(className *byte) abi.ObjectPtr {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["construct_object"]++
	h.nextObj++
	return abi.ObjectPtr(h.nextObj)
}

func (h *fakeHost) ObjectSetInstance(obj abi.ObjectPtr, _ *byte, instance abi.ClassInstancePtr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["object_set_instance"]++
	h.instances[obj] = instance
}

func (h *fakeHost) ObjectSetInstanceBinding(obj abi.ObjectPtr, _ abi.LibraryPtr, _ abi.ClassInstancePtr, callbacks *abi.InstanceBindingCallbacks) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["object_set_instance_binding"]++
	h.bindings[obj] = callbacks
}

func (h *fakeHost) ClassDBRegisterExtensionClass(_ abi.LibraryPtr, className, parent *byte, info *abi.ClassCreationInfo) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["register_extension_class"]++
	if h.registerErr != nil {
		return h.registerErr
	}
	name := abi.GoString(className)
	h.classes[name] = info
	h.parents[name] = abi.GoString(parent)
	return nil
}

func (h *fakeHost) ClassDBRegisterExtensionClassMethod(_ abi.LibraryPtr, _ *byte, info *abi.MethodInfo) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["register_extension_class_method"]++
	if h.methodErr != nil {
		return h.methodErr
	}
	h.methods = append(h.methods, *info)
	h.methodNames = append(h.methodNames, abi.GoString(info.Name))
	return nil
}

func (h *fakeHost) StringNewWithUTF8Chars(dest abi.StringPtr, contents *byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["string_new"]++
	h.strings[dest] = abi.GoString(contents)
}

var fooDestroyed int

type foo struct {
	class.Base
	label string
}

func (*foo) ClassName() string     { return "Foo" }
func (*foo) BaseClassName() string { return "Base" }
func (*foo) HasToString() bool     { return true }

func (f *foo) Init(base abi.ObjectPtr) {
	f.Base.Init(base)
	f.label = "fresh"
}

func (f *foo) ToString() string {
	return fmt.Sprintf("Foo(%s)", f.label)
}

func (f *foo) Destroy() { fooDestroyed++ }

var fooVirtuals = dispatch.Table{
	"_ready": dispatch.Bind(func(f *foo, _ []abi.ConstTypePtr, _ abi.TypePtr) {
		f.label = "ready"
	}),
}

func (*foo) ResolveVirtual(name string) abi.CallVirtual {
	return fooVirtuals.Lookup(name)
}

type mute struct{ class.Base }

func (*mute) ClassName() string { return "Mute" }

type liar struct{ class.Base }

func (*liar) ClassName() string { return "Liar" }
func (*liar) HasToString() bool { return true }

type nameless struct{ class.Base }

func (*nameless) ClassName() string { return "" }

type tool struct {
	class.Base
	hits int64
}

func (*tool) ClassName() string { return "Tool" }

func (*tool) RegisterMethods(r class.MethodRegistrar) {
	_ = r.Method("alpha", dispatch.BindMethod(func(t *tool, _ []abi.ConstTypePtr, _ abi.TypePtr) {
		t.hits++
	}))
	_ = r.Method("beta", dispatch.BindMethod(func(t *tool, args []abi.ConstTypePtr, _ abi.TypePtr) {
		t.hits += *(*int64)(args[0])
	}), class.WithArgs(1))
	_ = r.Method("gamma", dispatch.BindMethod(func(t *tool, _ []abi.ConstTypePtr, ret abi.TypePtr) {
		*(*int64)(ret) = t.hits
	}), class.WithReturn(), class.WithFlags(abi.MethodFlagNormal|abi.MethodFlagConst))
}

func expectFatal(t *testing.T, kind errors.Kind, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		err, ok := errors.AsFatal(recover())
		if !ok {
			t.Fatalf("expected fatal %s, got none", kind)
		}
		if err.Kind != kind {
			t.Fatalf("fatal kind = %s, want %s (%v)", err.Kind, kind, err)
		}
	}()
	fn()
}

func TestRegisterLifecycle(t *testing.T) {
	host := newFakeHost()
	reg := classdb.New(1, host)

	if err := classdb.Register[foo](reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if n := host.count("register_extension_class"); n != 1 {
		t.Fatalf("register calls = %d, want 1", n)
	}
	if p := host.parents["Foo"]; p != "Base" {
		t.Fatalf("parent = %q, want Base", p)
	}

	info := host.classes["Foo"]
	obj := info.CreateInstanceFunc(info.ClassUserdata)
	if obj == 0 {
		t.Fatal("create_instance returned null base")
	}
	inst, ok := host.instances[obj]
	if !ok || inst == 0 {
		t.Fatal("no instance associated with base object")
	}
	if cb := host.bindings[obj]; cb == nil || cb.CreateCallback != nil || cb.FreeCallback != nil || cb.ReferenceCallback != nil {
		t.Fatalf("binding callbacks = %+v, want no-op table", cb)
	}
	for _, op := range []string{"construct_object", "object_set_instance", "object_set_instance_binding"} {
		if n := host.count(op); n != 1 {
			t.Errorf("%s calls = %d, want 1", op, n)
		}
	}

	s := storage.As[foo](reg.Table(), inst)
	if s.Get().label != "fresh" || s.Get().Object() != obj {
		t.Fatalf("instance not default constructed: %+v", s.Get())
	}
	if s.Base() != obj {
		t.Fatalf("storage base = %v, want %v", s.Base(), obj)
	}

	info.ReferenceFunc(inst)
	if s.RefCount() != 2 {
		t.Fatalf("after reference count = %d, want 2", s.RefCount())
	}
	info.UnreferenceFunc(inst)
	if s.RefCount() != 1 {
		t.Fatalf("after unreference count = %d, want 1", s.RefCount())
	}

	before := fooDestroyed
	info.FreeInstanceFunc(info.ClassUserdata, inst)
	if fooDestroyed != before+1 {
		t.Fatalf("destroy ran %d times, want 1", fooDestroyed-before)
	}
	if reg.Table().Contains(inst) {
		t.Fatal("freed instance still in table")
	}
	expectFatal(t, errors.KindDoubleFree, func() {
		info.FreeInstanceFunc(info.ClassUserdata, inst)
	})
}

func TestToString(t *testing.T) {
	host := newFakeHost()
	reg := classdb.New(1, host)
	classdb.MustRegister[foo](reg)

	info := host.classes["Foo"]
	if info.ToStringFunc == nil {
		t.Fatal("to_string slot empty for a class declaring it")
	}

	obj := info.CreateInstanceFunc(nil)
	inst := host.instances[obj]
	defer info.FreeInstanceFunc(nil, inst)

	info.ToStringFunc(inst, abi.StringPtr(99))
	if got := host.strings[abi.StringPtr(99)]; got != "Foo(fresh)" {
		t.Fatalf("to_string = %q, want Foo(fresh)", got)
	}
}

func TestNoToStringSlot(t *testing.T) {
	host := newFakeHost()
	reg := classdb.New(1, host)
	classdb.MustRegister[mute](reg)

	info := host.classes["Mute"]
	if info.ToStringFunc != nil {
		t.Fatal("to_string slot filled for a class without string conversion")
	}
	for _, e := range info.Layout() {
		if e.Slot == abi.SlotToString && e.State != abi.SlotAbsent {
			t.Fatalf("to_string state = %s, want absent", e.State)
		}
	}
	if host.count("string_new") != 0 {
		t.Fatal("string conversion attempted")
	}
}

func TestLayout(t *testing.T) {
	host := newFakeHost()
	reg := classdb.New(1, host)
	classdb.MustRegister[foo](reg)

	info := host.classes["Foo"]
	if err := info.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	want := map[abi.Slot]abi.SlotState{
		abi.SlotSet:              abi.SlotUnsupported,
		abi.SlotGet:              abi.SlotUnsupported,
		abi.SlotGetPropertyList:  abi.SlotUnsupported,
		abi.SlotFreePropertyList: abi.SlotUnsupported,
		abi.SlotNotification:     abi.SlotUnsupported,
		abi.SlotToString:         abi.SlotPresent,
		abi.SlotReference:        abi.SlotPresent,
		abi.SlotUnreference:      abi.SlotPresent,
		abi.SlotCreateInstance:   abi.SlotPresent,
		abi.SlotFreeInstance:     abi.SlotPresent,
		abi.SlotGetVirtual:       abi.SlotPresent,
		abi.SlotGetRID:           abi.SlotUnsupported,
	}
	for _, e := range info.Layout() {
		if e.State != want[e.Slot] {
			t.Errorf("%s = %s, want %s", e.Name, e.State, want[e.Slot])
		}
	}
}

func TestGetVirtual(t *testing.T) {
	host := newFakeHost()
	reg := classdb.New(1, host)
	classdb.MustRegister[foo](reg)
	info := host.classes["Foo"]

	tests := []struct {
		name  string
		found bool
	}{
		{"_ready", true},
		{"_process", false},
		{"_Ready", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := abi.NewCString(tt.name)
			fn := info.GetVirtualFunc(info.ClassUserdata, name.Ptr())
			if (fn != nil) != tt.found {
				t.Fatalf("get_virtual(%q) found = %v, want %v", tt.name, fn != nil, tt.found)
			}
		})
	}

	obj := info.CreateInstanceFunc(nil)
	inst := host.instances[obj]
	defer info.FreeInstanceFunc(nil, inst)

	name := abi.NewCString("_ready")
	info.GetVirtualFunc(nil, name.Ptr())(inst, nil, nil)
	if got := storage.As[foo](reg.Table(), inst).Get().label; got != "ready" {
		t.Fatalf("label = %q, want ready", got)
	}
}

func TestGetVirtualInvalidUTF8(t *testing.T) {
	host := newFakeHost()
	reg := classdb.New(1, host)
	classdb.MustRegister[foo](reg)
	info := host.classes["Foo"]

	raw := []byte{'_', 0xff, 0xfe, 0}
	expectFatal(t, errors.KindInvalidUTF8, func() {
		info.GetVirtualFunc(nil, &raw[0])
	})
}

func TestRegisterTwice(t *testing.T) {
	host := newFakeHost()
	reg := classdb.New(1, host)
	classdb.MustRegister[foo](reg)

	err := classdb.Register[foo](reg)
	if !stderrors.Is(err, classdb.ErrAlreadyRegistered) {
		t.Fatalf("second Register = %v, want ErrAlreadyRegistered", err)
	}
	if n := host.count("register_extension_class"); n != 1 {
		t.Fatalf("register calls = %d, want 1", n)
	}
	if n := len(reg.Classes()); n != 1 {
		t.Fatalf("classes = %d, want 1", n)
	}

	other := classdb.New(2, host)
	if err := classdb.Register[foo](other); err != nil {
		t.Fatalf("Register with a second registry: %v", err)
	}
}

func TestForeignErrorReturnedUnchanged(t *testing.T) {
	host := newFakeHost()
	rejected := stderrors.New("parent Base is not registered")
	host.registerErr = rejected
	reg := classdb.New(1, host)

	err := classdb.Register[foo](reg)
	if err != rejected {
		t.Fatalf("Register = %v, want the foreign error itself", err)
	}
	if n := len(reg.Classes()); n != 0 {
		t.Fatalf("classes = %d after rejection", n)
	}
	if host.count("register_extension_class_method") != 0 {
		t.Fatal("methods registered after rejection")
	}

	host.registerErr = nil
	if err := classdb.Register[foo](reg); err != nil {
		t.Fatalf("retry after rejection: %v", err)
	}
}

func TestDeclaredToStringWithoutStringer(t *testing.T) {
	host := newFakeHost()
	reg := classdb.New(1, host)

	err := classdb.Register[liar](reg)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRegister, Kind: errors.KindContract}) {
		t.Fatalf("Register = %v, want contract error", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("Register = %T, want *errors.Error", err)
	}
	if e.Class != "Liar" || e.GoType != "classdb_test.liar" {
		t.Fatalf("contract error class/type = %q/%q", e.Class, e.GoType)
	}
	if host.count("register_extension_class") != 0 {
		t.Fatal("foreign runtime called for an invalid class")
	}
}

func TestEmptyClassNameAborts(t *testing.T) {
	reg := classdb.New(1, newFakeHost())
	expectFatal(t, errors.KindInvalidName, func() {
		_ = classdb.Register[nameless](reg)
	})
}

func TestMethodRegistration(t *testing.T) {
	host := newFakeHost()
	reg := classdb.New(1, host)
	classdb.MustRegister[tool](reg)

	want := []string{"alpha", "beta", "gamma"}
	if fmt.Sprint(host.methodNames) != fmt.Sprint(want) {
		t.Fatalf("foreign methods = %v, want %v", host.methodNames, want)
	}

	ci, ok := reg.Lookup("Tool")
	if !ok {
		t.Fatal("Lookup(Tool) failed")
	}
	if fmt.Sprint(ci.Methods) != fmt.Sprint(want) {
		t.Fatalf("class methods = %v, want %v", ci.Methods, want)
	}
	if ci.Memory != class.MemRefCounted || ci.Parent != "RefCounted" {
		t.Fatalf("class info = %+v", ci)
	}

	beta, gamma := host.methods[1], host.methods[2]
	if beta.ArgumentCount != 1 || beta.HasReturn {
		t.Errorf("beta info = %+v", beta)
	}
	if !gamma.HasReturn || gamma.Flags != abi.MethodFlagNormal|abi.MethodFlagConst {
		t.Errorf("gamma info = %+v", gamma)
	}
	if host.methods[0].Flags != abi.MethodFlagsDefault {
		t.Errorf("alpha flags = %d, want default", host.methods[0].Flags)
	}

	info := host.classes["Tool"]
	obj := info.CreateInstanceFunc(nil)
	inst := host.instances[obj]
	defer info.FreeInstanceFunc(nil, inst)

	n := int64(5)
	host.methods[0].Call(inst, nil, nil)
	host.methods[1].Call(inst, []abi.ConstTypePtr{abi.ConstTypePtr(&n)}, nil)
	var out int64
	host.methods[2].Call(inst, nil, abi.TypePtr(&out))
	if out != 6 {
		t.Fatalf("gamma returned %d, want 6", out)
	}
}

func TestMethodErrorNotRecorded(t *testing.T) {
	host := newFakeHost()
	host.methodErr = stderrors.New("no such class")
	reg := classdb.New(1, host)
	classdb.MustRegister[tool](reg)

	ci, _ := reg.Lookup("Tool")
	if len(ci.Methods) != 0 {
		t.Fatalf("methods recorded after rejection: %v", ci.Methods)
	}
	if n := host.count("register_extension_class_method"); n != 3 {
		t.Fatalf("method calls = %d, want 3", n)
	}
}

func TestReferenceOnFreedAborts(t *testing.T) {
	host := newFakeHost()
	reg := classdb.New(1, host)
	classdb.MustRegister[mute](reg)

	info := host.classes["Mute"]
	obj := info.CreateInstanceFunc(nil)
	inst := host.instances[obj]
	info.FreeInstanceFunc(nil, inst)

	expectFatal(t, errors.KindInvalidHandle, func() {
		info.ReferenceFunc(inst)
	})
}

func TestClassesOrder(t *testing.T) {
	reg := classdb.New(1, newFakeHost())
	classdb.MustRegister[mute](reg)
	classdb.MustRegister[foo](reg)
	classdb.MustRegister[tool](reg)

	var names []string
	for _, ci := range reg.Classes() {
		names = append(names, ci.Name)
	}
	if fmt.Sprint(names) != "[Mute Foo Tool]" {
		t.Fatalf("Classes() = %v", names)
	}
	if _, ok := reg.Lookup("Nope"); ok {
		t.Fatal("Lookup found an unregistered class")
	}
	if reg.Library() != 1 || reg.Interface() == nil {
		t.Fatal("registry accessors")
	}
}

var (
	hubRegistry *classdb.Registry
	hubSawSelf  bool
)

// hub queries its registry and registers a dependent class while its own
// methods are being declared.
type hub struct{ class.Base }

func (*hub) ClassName() string { return "Hub" }

func (*hub) RegisterMethods(r class.MethodRegistrar) {
	_, hubSawSelf = hubRegistry.Lookup(r.ClassName())
	classdb.MustRegister[mute](hubRegistry)
}

func TestRegisterMethodsMayUseRegistry(t *testing.T) {
	hubRegistry = classdb.New(1, newFakeHost())
	hubSawSelf = false

	done := make(chan error, 1)
	go func() { done <- classdb.Register[hub](hubRegistry) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Register did not return while RegisterMethods used the registry")
	}

	if !hubSawSelf {
		t.Error("class not visible to Lookup during RegisterMethods")
	}
	var names []string
	for _, ci := range hubRegistry.Classes() {
		names = append(names, ci.Name)
	}
	if fmt.Sprint(names) != "[Hub Mute]" {
		t.Fatalf("Classes() = %v", names)
	}
}

func TestRegisterOncePerRegistry(t *testing.T) {
	rt := foreign.New()
	first := classdb.New(1, rt)
	second := classdb.New(2, rt)
	classdb.MustRegister[mute](first)

	// The second registry has not seen mute, so the foreign runtime decides.
	err := classdb.Register[mute](second)
	if !stderrors.Is(err, foreign.ErrClassExists) {
		t.Fatalf("Register through a second registry = %v, want ErrClassExists", err)
	}
	if stderrors.Is(err, classdb.ErrAlreadyRegistered) {
		t.Fatal("foreign rejection reported as a registry duplicate")
	}
	if n := rt.Registrations("Mute"); n != 2 {
		t.Fatalf("foreign registrations = %d, want 2", n)
	}
	if n := len(second.Classes()); n != 0 {
		t.Fatalf("second registry recorded %d classes after rejection", n)
	}
	if _, ok := first.Lookup("Mute"); !ok {
		t.Fatal("first registry lost Mute")
	}
}

package class

import (
	"testing"

	"github.com/wippyai/extbind/abi"
)

type plain struct {
	Base
}

func (*plain) ClassName() string { return "Plain" }

var _ ExtensionClass = (*plain)(nil)

func TestBaseDefaults(t *testing.T) {
	p := &plain{}
	p.Init(9)

	if p.Object() != 9 {
		t.Errorf("Object = %v, want 9", p.Object())
	}
	if p.BaseClassName() != "RefCounted" {
		t.Errorf("BaseClassName = %q", p.BaseClassName())
	}
	if p.MemoryStrategy() != MemRefCounted {
		t.Errorf("MemoryStrategy = %s", p.MemoryStrategy())
	}
	if p.HasToString() {
		t.Error("HasToString should default to false")
	}
	if p.ResolveVirtual("_ready") != nil {
		t.Error("ResolveVirtual should resolve nothing")
	}
}

func TestMethodOptions(t *testing.T) {
	info := abi.MethodInfo{Flags: abi.MethodFlagsDefault}
	for _, opt := range []MethodOption{WithArgs(2), WithReturn(), WithFlags(abi.MethodFlagConst)} {
		opt(&info)
	}

	if info.ArgumentCount != 2 || !info.HasReturn || info.Flags != abi.MethodFlagConst {
		t.Errorf("info = %+v", info)
	}
}

func TestMemory_String(t *testing.T) {
	tests := map[Memory]string{
		MemRefCounted: "ref_counted",
		MemManual:     "manual",
		Memory(9):     "unknown",
	}
	for m, want := range tests {
		if m.String() != want {
			t.Errorf("%d.String() = %q, want %q", m, m.String(), want)
		}
	}
}

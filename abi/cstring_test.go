package abi

import (
	"bytes"
	"testing"

	"github.com/wippyai/extbind/errors"
)

func TestCString_RoundTrip(t *testing.T) {
	names := []string{"Counter", "RefCounted", "Node2D", "", "Ünïcødé", "with space"}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			c := NewCString(name)

			raw := c.Bytes()
			if len(raw) != len(name)+1 {
				t.Fatalf("len = %d, want %d", len(raw), len(name)+1)
			}
			if raw[len(raw)-1] != 0 {
				t.Fatal("missing trailing terminator")
			}
			if bytes.IndexByte(raw[:len(raw)-1], 0) >= 0 {
				t.Fatal("embedded terminator")
			}
			if c.String() != name {
				t.Errorf("String() = %q, want %q", c.String(), name)
			}
			if got := GoString(c.Ptr()); got != name {
				t.Errorf("GoString(Ptr()) = %q, want %q", got, name)
			}
			if c.Len() != len(name) {
				t.Errorf("Len() = %d, want %d", c.Len(), len(name))
			}
		})
	}
}

func TestCString_EmbeddedNULAborts(t *testing.T) {
	defer func() {
		err, ok := errors.AsFatal(recover())
		if !ok {
			t.Fatal("expected fatal *Error")
		}
		if err.Kind != errors.KindInvalidName {
			t.Errorf("Kind = %v, want %v", err.Kind, errors.KindInvalidName)
		}
	}()

	NewCString("Bad\x00Name")
	t.Fatal("NewCString accepted embedded terminator")
}

func TestCString_ZeroValue(t *testing.T) {
	var c CString
	if c.Ptr() != nil {
		t.Error("zero CString should have nil Ptr")
	}
	if c.String() != "" || c.Len() != 0 {
		t.Error("zero CString should decode to empty")
	}
	if GoString(nil) != "" {
		t.Error("GoString(nil) should be empty")
	}
}

func TestCBytes_StopsAtTerminator(t *testing.T) {
	buf := []byte("abc\x00def\x00")
	if got := string(CBytes(&buf[0])); got != "abc" {
		t.Errorf("CBytes = %q, want abc", got)
	}
}

type recordingSink struct {
	writes map[StringPtr]string
}

func (s *recordingSink) StringNewWithUTF8Chars(dest StringPtr, contents *byte) {
	if s.writes == nil {
		s.writes = make(map[StringPtr]string)
	}
	s.writes[dest] = GoString(contents)
}

func TestString_IntoForeign(t *testing.T) {
	sink := &recordingSink{}
	s := NewString("Counter(3)")

	s.IntoForeign(sink, 7)

	if sink.writes[7] != "Counter(3)" {
		t.Errorf("foreign string = %q", sink.writes[7])
	}
	if !s.Consumed() {
		t.Error("String should be consumed after transfer")
	}
}

func TestString_SecondTransferAborts(t *testing.T) {
	sink := &recordingSink{}
	s := NewString("once")
	s.IntoForeign(sink, 1)

	defer func() {
		err, ok := errors.AsFatal(recover())
		if !ok || err.Kind != errors.KindConsumed {
			t.Fatalf("expected consumed fatal, got %v", err)
		}
		if len(sink.writes) != 1 {
			t.Errorf("second transfer reached the sink")
		}
	}()

	s.IntoForeign(sink, 2)
}

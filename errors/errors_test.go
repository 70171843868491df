package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseRegister,
				Kind:   KindDuplicate,
				Class:  "Counter",
				GoType: "*classes.Counter",
				Detail: "already registered",
			},
			contains: []string{"[register]", "duplicate", "class Counter", "*classes.Counter", "already registered"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseLifecycle,
				Kind:  KindDoubleFree,
			},
			contains: []string{"[lifecycle]", "double_free"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRegister,
				Kind:   KindRegistration,
				Detail: "register extension class",
				Cause:  errors.New("unknown parent"),
			},
			contains: []string{"[register]", "registration", "caused by", "unknown parent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseTransport, KindRegistration, cause, "instantiate host module")

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should walk to cause")
	}
}

func TestError_Is(t *testing.T) {
	err := DoubleFree("Counter", 0x100000001)

	if !errors.Is(err, &Error{Phase: PhaseLifecycle, Kind: KindDoubleFree}) {
		t.Error("Is should match same phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseDispatch, Kind: KindDoubleFree}) {
		t.Error("Is should not match different phase")
	}
	if errors.Is(err, &Error{Phase: PhaseLifecycle, Kind: KindInvalidHandle}) {
		t.Error("Is should not match different kind")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseRegister, KindDuplicate).
		Class("Counter").
		GoType("*classes.Counter").
		Value(42).
		Cause(cause).
		Detail("registered %d times", 2).
		Build()

	if err.Phase != PhaseRegister {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseRegister)
	}
	if err.Kind != KindDuplicate {
		t.Errorf("Kind = %v, want %v", err.Kind, KindDuplicate)
	}
	if err.Class != "Counter" {
		t.Errorf("Class = %q, want Counter", err.Class)
	}
	if err.GoType != "*classes.Counter" {
		t.Errorf("GoType = %q", err.GoType)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "registered 2 times" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("InvalidName", func(t *testing.T) {
		err := InvalidName("Bad\x00Name", "embedded terminator")
		if err.Kind != KindInvalidName || err.Phase != PhaseEncode {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})

	t.Run("InvalidUTF8", func(t *testing.T) {
		err := InvalidUTF8(PhaseDispatch, []byte{0xff, 0xfe})
		if err.Kind != KindInvalidUTF8 {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidUTF8)
		}
		if !strings.Contains(err.Detail, "fffe") {
			t.Errorf("Detail = %q, should contain hex preview", err.Detail)
		}
	})

	t.Run("InvalidHandle", func(t *testing.T) {
		err := InvalidHandle(PhaseLifecycle, 0xdead)
		if err.Kind != KindInvalidHandle {
			t.Errorf("Kind = %v", err.Kind)
		}
		if err.Value != uint64(0xdead) {
			t.Errorf("Value = %v", err.Value)
		}
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		err := TypeMismatch(PhaseLifecycle, "*A", "*B")
		if err.Kind != KindTypeMismatch || err.GoType != "*B" {
			t.Errorf("got %+v", err)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseTransport, 10, 5)
		if !strings.Contains(err.Detail, "[10, 15)") {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseConfig, "class", "Missing")
		if err.Kind != KindNotFound || !strings.Contains(err.Detail, "Missing") {
			t.Errorf("got %+v", err)
		}
	})
}

func TestFatal(t *testing.T) {
	want := DoubleFree("Counter", 1)

	defer func() {
		got, ok := AsFatal(recover())
		if !ok {
			t.Fatal("expected *Error panic")
		}
		if got != want {
			t.Fatalf("panic value = %v, want %v", got, want)
		}
	}()

	Fatal(want)
	t.Fatal("Fatal returned")
}

func TestAsFatal_ForeignPanic(t *testing.T) {
	if _, ok := AsFatal("plain string"); ok {
		t.Fatal("AsFatal should reject non-*Error values")
	}
	if _, ok := AsFatal(nil); ok {
		t.Fatal("AsFatal should reject nil")
	}
}

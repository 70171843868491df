package abi

import (
	"runtime"
	"strconv"
	"strings"
	"unsafe"

	"github.com/wippyai/extbind/errors"
)

// CString is a NUL-terminated byte buffer handed to the foreign runtime by
// address. The pointer returned by Ptr is valid only while the CString value
// is reachable; callers keep it alive for the duration of the foreign call.
type CString struct {
	backing []byte
}

// NewCString encodes s with a single trailing terminator.
// Names come from trusted compile-time sources, so an embedded NUL is a
// programming error and aborts.
func NewCString(s string) CString {
	if i := strings.IndexByte(s, 0); i >= 0 {
		errors.Fatal(errors.InvalidName(s, "embedded terminator at byte "+strconv.Itoa(i)))
	}
	b := make([]byte, len(s)+1)
	copy(b, s)
	return CString{backing: b}
}

// Ptr returns the address of the first byte.
func (c CString) Ptr() *byte {
	if len(c.backing) == 0 {
		return nil
	}
	return &c.backing[0]
}

// Bytes returns the encoded buffer including the terminator.
func (c CString) Bytes() []byte {
	return c.backing
}

// String decodes the buffer back to text.
func (c CString) String() string {
	if len(c.backing) == 0 {
		return ""
	}
	return string(c.backing[:len(c.backing)-1])
}

// Len returns the text length, excluding the terminator.
func (c CString) Len() int {
	if len(c.backing) == 0 {
		return 0
	}
	return len(c.backing) - 1
}

// GoString copies a NUL-terminated foreign buffer into a Go string.
func GoString(p *byte) string {
	return string(CBytes(p))
}

// CBytes returns the bytes of a NUL-terminated foreign buffer without the
// terminator. The slice aliases foreign memory.
func CBytes(p *byte) []byte {
	if p == nil {
		return nil
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return unsafe.Slice(p, n)
}

// StringSink is the part of the foreign interface that receives strings.
type StringSink interface {
	// StringNewWithUTF8Chars initializes the foreign string at dest from a
	// NUL-terminated UTF-8 buffer. The foreign side copies the bytes.
	StringNewWithUTF8Chars(dest StringPtr, contents *byte)
}

// String is a native string whose contents are destined for the foreign
// runtime. IntoForeign consumes it.
type String struct {
	buf      CString
	consumed bool
}

// NewString takes a native string for transfer.
func NewString(s string) *String {
	return &String{buf: NewCString(s)}
}

// IntoForeign writes the contents into the foreign string at dest and
// releases the native copy. The String must not be used afterwards; a second
// transfer aborts.
func (s *String) IntoForeign(sink StringSink, dest StringPtr) {
	if s.consumed {
		errors.Fatal(errors.New(errors.PhaseLifecycle, errors.KindConsumed).
			Detail("string already transferred to foreign runtime").
			Build())
	}
	sink.StringNewWithUTF8Chars(dest, s.buf.Ptr())
	runtime.KeepAlive(s.buf)
	s.buf = CString{}
	s.consumed = true
}

// Consumed reports whether the contents have moved to the foreign side.
func (s *String) Consumed() bool {
	return s.consumed
}

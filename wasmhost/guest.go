package wasmhost

import (
	"github.com/tetratelabs/wazero/api"
)

// Guest builds a minimal guest module that imports host functions and
// re-exports each one under the same name, so an embedder can drive the
// bridge through a real instantiated module.
type Guest struct {
	hostModule  string
	memoryName  string
	funcs       []guestFunc
	memoryPages uint32
}

type guestFunc struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
}

// NewGuest creates a guest that imports from hostModule and exports one page
// of memory named "memory".
func NewGuest(hostModule string) *Guest {
	return &Guest{
		hostModule:  hostModule,
		memoryName:  "memory",
		memoryPages: 1,
	}
}

// ForwardingGuest returns the guest module forwarding every function of the
// extbind host module.
func ForwardingGuest() []byte {
	g := NewGuest(ModuleName)
	for _, f := range hostFuncs {
		g.AddForward(f.name, f.params, f.results)
	}
	return g.Build()
}

// AddForward imports name from the host module and exports a function with
// the same signature that calls it.
func (g *Guest) AddForward(name string, params, results []api.ValueType) *Guest {
	g.funcs = append(g.funcs, guestFunc{name: name, params: params, results: results})
	return g
}

// SetMemoryPages sets the size of the exported memory.
func (g *Guest) SetMemoryPages(pages uint32) *Guest {
	g.memoryPages = pages
	return g
}

// Build generates the module bytes.
func (g *Guest) Build() []byte {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// Types: one per function, shared by the import and its wrapper.
	var types []byte
	for _, f := range g.funcs {
		types = append(types, 0x60)
		types = append(types, encodeULEB128(uint32(len(f.params)))...)
		for _, t := range f.params {
			types = append(types, valType(t))
		}
		types = append(types, encodeULEB128(uint32(len(f.results)))...)
		for _, t := range f.results {
			types = append(types, valType(t))
		}
	}
	wasm = append(wasm, section(0x01, encodeVector(len(g.funcs), types))...)

	var imports []byte
	for i, f := range g.funcs {
		imports = append(imports, encodeName(g.hostModule)...)
		imports = append(imports, encodeName(f.name)...)
		imports = append(imports, 0x00)
		imports = append(imports, encodeULEB128(uint32(i))...)
	}
	wasm = append(wasm, section(0x02, encodeVector(len(g.funcs), imports))...)

	var funcs []byte
	for i := range g.funcs {
		funcs = append(funcs, encodeULEB128(uint32(i))...)
	}
	wasm = append(wasm, section(0x03, encodeVector(len(g.funcs), funcs))...)

	memory := []byte{0x00}
	memory = append(memory, encodeULEB128(g.memoryPages)...)
	wasm = append(wasm, section(0x05, encodeVector(1, memory))...)

	exports := encodeName(g.memoryName)
	exports = append(exports, 0x02, 0x00)
	imported := len(g.funcs)
	for i, f := range g.funcs {
		exports = append(exports, encodeName(f.name)...)
		exports = append(exports, 0x00)
		exports = append(exports, encodeULEB128(uint32(imported+i))...)
	}
	wasm = append(wasm, section(0x07, encodeVector(len(g.funcs)+1, exports))...)

	var code []byte
	for i, f := range g.funcs {
		body := g.forwardBody(i, f)
		code = append(code, encodeULEB128(uint32(len(body)))...)
		code = append(code, body...)
	}
	wasm = append(wasm, section(0x0a, encodeVector(len(g.funcs), code))...)

	return wasm
}

// forwardBody pushes every parameter and calls the import.
func (g *Guest) forwardBody(importIdx int, f guestFunc) []byte {
	body := []byte{0x00}
	for i := range f.params {
		body = append(body, 0x20)
		body = append(body, encodeULEB128(uint32(i))...)
	}
	body = append(body, 0x10)
	body = append(body, encodeULEB128(uint32(importIdx))...)
	return append(body, 0x0b)
}

// Package wasmtest hand-assembles minimal WASM modules for the execution
// engine's tests. No wat2wasm toolchain is available in this environment,
// so fixtures are built byte-by-byte against the module's binary encoding
// instead of compiled from text.
package wasmtest

// ValType is a WASM value type byte.
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
)

// FuncType is a (params) -> (results) signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Func is one function body: its type index, local declarations (beyond
// its params), and raw instruction bytes (callers assemble these with the
// Instr helpers below).
type Func struct {
	TypeIdx int
	Locals  []ValType
	Body    []byte
}

// Import is one imported function, referencing a type by index.
type Import struct {
	Module  string
	Name    string
	TypeIdx int
}

// Module is a builder for a minimal WASM binary: types, imports, functions,
// an optional memory, and exports.
type Module struct {
	Types     []FuncType
	Imports   []Import
	Funcs     []Func
	MemoryMin uint32
	HasMemory bool
	Exports   []Export
}

// FuncIdx returns the function-index space position of the i'th locally
// defined function, accounting for the imported functions that precede it
// in WASM's shared function index space.
func (m *Module) FuncIdx(i int) uint32 { return uint32(len(m.Imports) + i) }

type exportKind byte

const (
	exportFunc   exportKind = 0x00
	exportMemory exportKind = 0x02
)

type Export struct {
	Name string
	Kind exportKind
	Idx  uint32
}

func (m *Module) ExportFunction(name string, funcIdx int) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: exportFunc, Idx: uint32(funcIdx)})
}

func (m *Module) ExportMemory(name string) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: exportMemory, Idx: 0})
}

// Encode serializes the module to its binary representation.
func (m *Module) Encode() []byte {
	var out []byte
	out = append(out, "\x00asm"...)
	out = append(out, 0x01, 0x00, 0x00, 0x00)

	out = append(out, section(1, m.encodeTypes())...)
	if len(m.Imports) > 0 {
		out = append(out, section(2, m.encodeImports())...)
	}
	out = append(out, section(3, m.encodeFunctions())...)
	if m.HasMemory {
		out = append(out, section(5, m.encodeMemory())...)
	}
	out = append(out, section(7, m.encodeExports())...)
	out = append(out, section(10, m.encodeCode())...)
	return out
}

func section(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint32(len(payload)))...)
	out = append(out, payload...)
	return out
}

func (m *Module) encodeTypes() []byte {
	var out []byte
	out = append(out, uleb(uint32(len(m.Types)))...)
	for _, t := range m.Types {
		out = append(out, 0x60)
		out = append(out, uleb(uint32(len(t.Params)))...)
		for _, p := range t.Params {
			out = append(out, byte(p))
		}
		out = append(out, uleb(uint32(len(t.Results)))...)
		for _, r := range t.Results {
			out = append(out, byte(r))
		}
	}
	return out
}

func (m *Module) encodeImports() []byte {
	var out []byte
	out = append(out, uleb(uint32(len(m.Imports)))...)
	for _, im := range m.Imports {
		out = append(out, uleb(uint32(len(im.Module)))...)
		out = append(out, im.Module...)
		out = append(out, uleb(uint32(len(im.Name)))...)
		out = append(out, im.Name...)
		out = append(out, 0x00) // import kind: function
		out = append(out, uleb(uint32(im.TypeIdx))...)
	}
	return out
}

func (m *Module) encodeFunctions() []byte {
	var out []byte
	out = append(out, uleb(uint32(len(m.Funcs)))...)
	for _, f := range m.Funcs {
		out = append(out, uleb(uint32(f.TypeIdx))...)
	}
	return out
}

func (m *Module) encodeMemory() []byte {
	var out []byte
	out = append(out, uleb(1)...) // one memory
	out = append(out, 0x00)       // flags: min only
	out = append(out, uleb(m.MemoryMin)...)
	return out
}

func (m *Module) encodeExports() []byte {
	var out []byte
	out = append(out, uleb(uint32(len(m.Exports)))...)
	for _, e := range m.Exports {
		out = append(out, uleb(uint32(len(e.Name)))...)
		out = append(out, e.Name...)
		out = append(out, byte(e.Kind))
		out = append(out, uleb(e.Idx)...)
	}
	return out
}

func (m *Module) encodeCode() []byte {
	var out []byte
	out = append(out, uleb(uint32(len(m.Funcs)))...)
	for _, f := range m.Funcs {
		body := encodeLocals(f.Locals)
		body = append(body, f.Body...)
		body = append(body, 0x0B) // end
		out = append(out, uleb(uint32(len(body)))...)
		out = append(out, body...)
	}
	return out
}

func encodeLocals(locals []ValType) []byte {
	// Each local is declared individually as its own (count=1, type) pair;
	// simple and unambiguous for hand-built fixtures, at the cost of being
	// less compact than grouping runs of the same type.
	var out []byte
	out = append(out, uleb(uint32(len(locals)))...)
	for _, t := range locals {
		out = append(out, uleb(1)...)
		out = append(out, byte(t))
	}
	return out
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

func sleb(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

// Instruction-building helpers used to assemble function bodies by hand.

func I32Const(v int32) []byte { return append([]byte{0x41}, sleb(int64(v))...) }
func LocalGet(idx uint32) []byte { return append([]byte{0x20}, uleb(idx)...) }
func LocalSet(idx uint32) []byte { return append([]byte{0x21}, uleb(idx)...) }
func I32Add() []byte             { return []byte{0x6A} }
func I32Store(align, offset uint32) []byte {
	return append(append([]byte{0x36}, uleb(align)...), uleb(offset)...)
}
func I32Store8(offset uint32) []byte {
	return append([]byte{0x3A, 0x00}, uleb(offset)...)
}
func I32Load(align, offset uint32) []byte {
	return append(append([]byte{0x28}, uleb(align)...), uleb(offset)...)
}
func Return() []byte { return []byte{0x0F} }
func Call(funcIdx uint32) []byte { return append([]byte{0x10}, uleb(funcIdx)...) }
func Drop() []byte               { return []byte{0x1A} }

// F32Const is never emitted by the runner's own guest fixtures; it exists
// so the gatekeeper's rejection path has something disallowed to feed it.
func F32Const(bits uint32) []byte {
	return []byte{0x43, byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)}
}

func I64Const(v int64) []byte { return append([]byte{0x42}, sleb(v)...) }

// Loop opens a void-typed loop block; pair with Br(0) and End to spin.
func Loop() []byte          { return []byte{0x03, 0x40} }
func Br(depth uint32) []byte { return append([]byte{0x0C}, uleb(depth)...) }
func End() []byte            { return []byte{0x0B} }

// Concat joins instruction byte slices into one function body.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Package wasmgen encodes small core WebAssembly modules and reads the
// import section of arbitrary ones.
//
// The engine uses it to synthesize the per-run memory provider module and to
// learn the limits of a guest's imported memory, which wazero does not
// expose in full. Tests use it to build guest programs without an external
// toolchain. Imports must be declared before functions so function indices
// stay stable.
package wasmgen

import (
	"github.com/tetratelabs/wazero/api"
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	externFunc   = 0x00
	externMemory = 0x02
)

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// Limits describes a memory's page bounds.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
	Shared bool
}

type funcType struct {
	params  []api.ValueType
	results []api.ValueType
}

type importEntry struct {
	module string
	name   string
	kind   byte
	typ    uint32
	limits Limits
}

type function struct {
	typ  uint32
	body []byte
}

type export struct {
	name  string
	kind  byte
	index uint32
}

type segment struct {
	offset uint32
	data   []byte
}

// Module accumulates the sections of a core module.
type Module struct {
	types       []funcType
	imports     []importEntry
	funcs       []function
	memories    []Limits
	exports     []export
	data        []segment
	importFuncs uint32
}

// New creates an empty module.
func New() *Module {
	return &Module{}
}

func (m *Module) addType(params, results []api.ValueType) uint32 {
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

// ImportFunc declares a function import and returns its function index.
func (m *Module) ImportFunc(module, name string, params, results []api.ValueType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmgen: imports must precede function definitions")
	}
	m.imports = append(m.imports, importEntry{
		module: module,
		name:   name,
		kind:   externFunc,
		typ:    m.addType(params, results),
	})
	m.importFuncs++
	return m.importFuncs - 1
}

// ImportMemory declares a memory import.
func (m *Module) ImportMemory(module, name string, limits Limits) {
	m.imports = append(m.imports, importEntry{
		module: module,
		name:   name,
		kind:   externMemory,
		limits: limits,
	})
}

// Memory defines memory 0 and exports it under name when name is non-empty.
func (m *Module) Memory(limits Limits, name string) {
	m.memories = append(m.memories, limits)
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: externMemory, index: 0})
	}
}

// Func defines a function with body and exports it under name when name is
// non-empty. The trailing end opcode is appended automatically.
func (m *Module) Func(name string, params, results []api.ValueType, body *Code) uint32 {
	idx := m.importFuncs + uint32(len(m.funcs))
	code := []byte{0x00} // no local declarations
	code = append(code, body.buf...)
	code = append(code, opEnd)
	m.funcs = append(m.funcs, function{typ: m.addType(params, results), body: code})
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: externFunc, index: idx})
	}
	return idx
}

// Data adds an active data segment for memory 0.
func (m *Module) Data(offset uint32, data []byte) {
	m.data = append(m.data, segment{offset: offset, data: append([]byte(nil), data...)})
}

// Bytes encodes the module binary.
func (m *Module) Bytes() []byte {
	out := append([]byte(nil), header...)

	if len(m.types) > 0 {
		var s []byte
		s = AppendU32(s, uint32(len(m.types)))
		for _, t := range m.types {
			s = append(s, 0x60)
			s = appendValueTypes(s, t.params)
			s = appendValueTypes(s, t.results)
		}
		out = appendSection(out, sectionType, s)
	}

	if len(m.imports) > 0 {
		var s []byte
		s = AppendU32(s, uint32(len(m.imports)))
		for _, imp := range m.imports {
			s = appendName(s, imp.module)
			s = appendName(s, imp.name)
			s = append(s, imp.kind)
			if imp.kind == externFunc {
				s = AppendU32(s, imp.typ)
			} else {
				s = appendLimits(s, imp.limits)
			}
		}
		out = appendSection(out, sectionImport, s)
	}

	if len(m.funcs) > 0 {
		var s []byte
		s = AppendU32(s, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			s = AppendU32(s, f.typ)
		}
		out = appendSection(out, sectionFunction, s)
	}

	if len(m.memories) > 0 {
		var s []byte
		s = AppendU32(s, uint32(len(m.memories)))
		for _, l := range m.memories {
			s = appendLimits(s, l)
		}
		out = appendSection(out, sectionMemory, s)
	}

	if len(m.exports) > 0 {
		var s []byte
		s = AppendU32(s, uint32(len(m.exports)))
		for _, e := range m.exports {
			s = appendName(s, e.name)
			s = append(s, e.kind)
			s = AppendU32(s, e.index)
		}
		out = appendSection(out, sectionExport, s)
	}

	if len(m.funcs) > 0 {
		var s []byte
		s = AppendU32(s, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			s = AppendU32(s, uint32(len(f.body)))
			s = append(s, f.body...)
		}
		out = appendSection(out, sectionCode, s)
	}

	if len(m.data) > 0 {
		var s []byte
		s = AppendU32(s, uint32(len(m.data)))
		for _, d := range m.data {
			s = append(s, 0x00) // active, memory 0
			s = append(s, opI32Const)
			s = AppendS32(s, int32(d.offset))
			s = append(s, opEnd)
			s = AppendU32(s, uint32(len(d.data)))
			s = append(s, d.data...)
		}
		out = appendSection(out, sectionData, s)
	}

	return out
}

func appendSection(out []byte, id byte, contents []byte) []byte {
	out = append(out, id)
	out = AppendU32(out, uint32(len(contents)))
	return append(out, contents...)
}

func appendValueTypes(buf []byte, types []api.ValueType) []byte {
	buf = AppendU32(buf, uint32(len(types)))
	for _, t := range types {
		buf = append(buf, t)
	}
	return buf
}

// MemoryProvider returns a module that defines one memory with limits and
// exports it as name.
func MemoryProvider(name string, limits Limits) []byte {
	m := New()
	m.Memory(limits, name)
	return m.Bytes()
}

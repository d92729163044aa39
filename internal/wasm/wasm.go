// Package wasm is a section-level model of the WebAssembly binary format.
//
// It parses a module into its ordered list of sections, giving typed access
// to the sections the build pipeline edits (imports, functions, memories,
// exports, code bodies, custom sections) while carrying every other section
// as opaque payload bytes. Opaque sections are re-emitted byte-for-byte,
// which keeps the codec safe to run over modules produced by compilers the
// pipeline knows nothing about.
package wasm

import (
	"errors"
	"fmt"
)

// SectionID identifies a section kind in the binary format.
type SectionID byte

const (
	SectionCustom    SectionID = 0
	SectionType      SectionID = 1
	SectionImport    SectionID = 2
	SectionFunction  SectionID = 3
	SectionTable     SectionID = 4
	SectionMemory    SectionID = 5
	SectionGlobal    SectionID = 6
	SectionExport    SectionID = 7
	SectionStart     SectionID = 8
	SectionElement   SectionID = 9
	SectionCode      SectionID = 10
	SectionData      SectionID = 11
	SectionDataCount SectionID = 12
)

// ExternalKind classifies an import or export descriptor.
type ExternalKind byte

const (
	ExternalFunc   ExternalKind = 0
	ExternalTable  ExternalKind = 1
	ExternalMemory ExternalKind = 2
	ExternalGlobal ExternalKind = 3
)

// Limits describes the bounds of a memory or table.
type Limits struct {
	Flags byte // bit 0: max present
	Min   uint32
	Max   uint32
}

// HasMax reports whether the limits declare an upper bound.
func (l Limits) HasMax() bool { return l.Flags&0x01 != 0 }

// Import is one entry of the import section.
type Import struct {
	Module string
	Name   string
	Kind   ExternalKind

	TypeIndex uint32  // Kind == ExternalFunc
	Mem       *Limits // Kind == ExternalMemory
	desc      []byte  // raw descriptor for table/global kinds
}

// Export is one entry of the export section.
type Export struct {
	Name  string
	Kind  ExternalKind
	Index uint32
}

// Custom is a (name, opaque bytes) metadata section.
type Custom struct {
	Name string
	Data []byte
}

// Section is one entry of a module's ordered section list. Exactly one of
// the payload fields is meaningful, selected by ID.
type Section struct {
	ID SectionID

	Raw      []byte // every ID the model does not type
	Imports  []*Import
	Funcs    []uint32 // type indices, one per locally defined function
	Memories []Limits
	Exports  []*Export
	Bodies   [][]byte // code entries without their size prefix
	Custom   *Custom
}

// Module is the in-memory, mutable representation of one binary module.
// Mutations go through the edit methods; Encode serializes the result.
type Module struct {
	sections []*Section
}

var (
	// ErrInvalidMagic means the input does not begin with the wasm preamble.
	ErrInvalidMagic = errors.New("not a wasm module (bad magic)")
	// ErrUnsupportedVersion means the module declares a version other than 1.
	ErrUnsupportedVersion = errors.New("unsupported wasm binary version")
)

// ParseError reports a malformed module.
type ParseError struct {
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse wasm module at offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EmitError reports a failure to serialize or write a module.
type EmitError struct {
	Err error
}

func (e *EmitError) Error() string { return fmt.Sprintf("emit wasm module: %v", e.Err) }

func (e *EmitError) Unwrap() error { return e.Err }

// Sections returns the module's sections in binary order. The slice is the
// module's own backing store; callers must not reorder it.
func (m *Module) Sections() []*Section { return m.sections }

func (m *Module) section(id SectionID) *Section {
	for _, s := range m.sections {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// ensureSection returns the section with the given non-custom ID, inserting
// an empty one at its canonical position if the module lacks it. Custom
// sections do not constrain ordering.
func (m *Module) ensureSection(id SectionID) *Section {
	if s := m.section(id); s != nil {
		return s
	}
	s := &Section{ID: id}
	at := len(m.sections)
	for i, existing := range m.sections {
		if existing.ID != SectionCustom && existing.ID > id {
			at = i
			break
		}
	}
	m.sections = append(m.sections, nil)
	copy(m.sections[at+1:], m.sections[at:])
	m.sections[at] = s
	return s
}

// FindExport returns the export with the given name, if any.
func (m *Module) FindExport(name string) (*Export, bool) {
	s := m.section(SectionExport)
	if s == nil {
		return nil, false
	}
	for _, e := range s.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// DeleteExport removes the export with the given name. It reports whether
// an export was removed.
func (m *Module) DeleteExport(name string) bool {
	s := m.section(SectionExport)
	if s == nil {
		return false
	}
	for i, e := range s.Exports {
		if e.Name == name {
			s.Exports = append(s.Exports[:i], s.Exports[i+1:]...)
			return true
		}
	}
	return false
}

// Memories returns the module's locally declared linear memories.
func (m *Module) Memories() []Limits {
	s := m.section(SectionMemory)
	if s == nil {
		return nil
	}
	return s.Memories
}

// TakeFirstMemory removes and returns the first locally declared memory.
func (m *Module) TakeFirstMemory() (Limits, bool) {
	s := m.section(SectionMemory)
	if s == nil || len(s.Memories) == 0 {
		return Limits{}, false
	}
	mem := s.Memories[0]
	s.Memories = s.Memories[1:]
	return mem, true
}

// HasImportedMemory reports whether any import supplies a linear memory.
func (m *Module) HasImportedMemory() bool {
	s := m.section(SectionImport)
	if s == nil {
		return false
	}
	for _, imp := range s.Imports {
		if imp.Kind == ExternalMemory {
			return true
		}
	}
	return false
}

// AddMemoryImport appends a memory import from the given namespace/name pair.
func (m *Module) AddMemoryImport(module, name string, lim Limits) {
	s := m.ensureSection(SectionImport)
	s.Imports = append(s.Imports, &Import{
		Module: module,
		Name:   name,
		Kind:   ExternalMemory,
		Mem:    &lim,
	})
}

// NumImportedFuncs counts function imports. Locally defined functions occupy
// the index space after them.
func (m *Module) NumImportedFuncs() uint32 {
	s := m.section(SectionImport)
	if s == nil {
		return 0
	}
	var n uint32
	for _, imp := range s.Imports {
		if imp.Kind == ExternalFunc {
			n++
		}
	}
	return n
}

// stubBody is the smallest valid function body: no locals, `unreachable; end`.
var stubBody = []byte{0x00, 0x00, 0x0B}

// StubFuncBody replaces the body of the function at the given index in the
// function index space with an unreachable stub. Replacing instead of
// removing keeps every other function index valid, so call sites and element
// segments elsewhere in the module need no rewriting.
func (m *Module) StubFuncBody(funcIndex uint32) error {
	imported := m.NumImportedFuncs()
	if funcIndex < imported {
		return fmt.Errorf("function %d is imported and has no body", funcIndex)
	}
	local := funcIndex - imported
	code := m.section(SectionCode)
	if code == nil || uint32(len(code.Bodies)) <= local {
		return fmt.Errorf("function %d has no code entry", funcIndex)
	}
	code.Bodies[local] = stubBody
	return nil
}

// Customs returns the module's custom sections in binary order.
func (m *Module) Customs() []*Custom {
	var out []*Custom
	for _, s := range m.sections {
		if s.ID == SectionCustom {
			out = append(out, s.Custom)
		}
	}
	return out
}

// DeleteCustomsIf removes every custom section whose name satisfies the
// predicate and returns the number removed.
func (m *Module) DeleteCustomsIf(pred func(name string) bool) int {
	kept := m.sections[:0]
	removed := 0
	for _, s := range m.sections {
		if s.ID == SectionCustom && pred(s.Custom.Name) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	m.sections = kept
	return removed
}

package wasm

import (
	"bytes"
	"encoding/binary"
	"os"
)

// writer accumulates encoded module bytes.
type writer struct {
	bytes.Buffer
}

func (w *writer) uleb(v uint32) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func (w *writer) name(s string) {
	w.uleb(uint32(len(s)))
	w.WriteString(s)
}

func (w *writer) limits(lim Limits) {
	w.WriteByte(lim.Flags)
	w.uleb(lim.Min)
	if lim.HasMax() {
		w.uleb(lim.Max)
	}
}

// Encode serializes the module. Sections carried as opaque bytes are emitted
// verbatim; typed sections are re-encoded with minimal varints. Typed
// sections that became empty are dropped, except custom sections, which are
// meaningful even when empty.
func (m *Module) Encode() []byte {
	var w writer
	w.Write(wasmMagic)
	var version [4]byte
	binary.LittleEndian.PutUint32(version[:], wasmVersion)
	w.Write(version[:])

	for _, sec := range m.sections {
		payload := encodeSection(sec)
		if payload == nil {
			continue
		}
		w.WriteByte(byte(sec.ID))
		w.uleb(uint32(len(payload)))
		w.Write(payload)
	}
	return w.Bytes()
}

// EncodeFile serializes the module to the given path.
func (m *Module) EncodeFile(path string) error {
	if err := os.WriteFile(path, m.Encode(), 0o644); err != nil {
		return &EmitError{Err: err}
	}
	return nil
}

func encodeSection(sec *Section) []byte {
	var w writer
	switch sec.ID {
	case SectionCustom:
		w.name(sec.Custom.Name)
		w.Write(sec.Custom.Data)

	case SectionImport:
		if len(sec.Imports) == 0 {
			return nil
		}
		w.uleb(uint32(len(sec.Imports)))
		for _, imp := range sec.Imports {
			w.name(imp.Module)
			w.name(imp.Name)
			w.WriteByte(byte(imp.Kind))
			switch imp.Kind {
			case ExternalFunc:
				w.uleb(imp.TypeIndex)
			case ExternalMemory:
				w.limits(*imp.Mem)
			default:
				w.Write(imp.desc)
			}
		}

	case SectionFunction:
		if len(sec.Funcs) == 0 {
			return nil
		}
		w.uleb(uint32(len(sec.Funcs)))
		for _, idx := range sec.Funcs {
			w.uleb(idx)
		}

	case SectionMemory:
		if len(sec.Memories) == 0 {
			return nil
		}
		w.uleb(uint32(len(sec.Memories)))
		for _, lim := range sec.Memories {
			w.limits(lim)
		}

	case SectionExport:
		if len(sec.Exports) == 0 {
			return nil
		}
		w.uleb(uint32(len(sec.Exports)))
		for _, e := range sec.Exports {
			w.name(e.Name)
			w.WriteByte(byte(e.Kind))
			w.uleb(e.Index)
		}

	case SectionCode:
		if len(sec.Bodies) == 0 {
			return nil
		}
		w.uleb(uint32(len(sec.Bodies)))
		for _, body := range sec.Bodies {
			w.uleb(uint32(len(body)))
			w.Write(body)
		}

	default:
		return sec.Raw
	}
	return w.Bytes()
}

package wasm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6D}

const wasmVersion = 1

var errTruncated = errors.New("unexpected end of module")

// reader is a cursor over the raw module bytes.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) err(cause error) error {
	return &ParseError{Offset: r.pos, Err: cause}
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, r.err(errTruncated)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, r.err(errTruncated)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// uleb reads an unsigned LEB128-encoded 32-bit integer.
func (r *reader) uleb() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		if shift == 28 && b > 0x0F {
			return 0, r.err(errors.New("varint overflows uint32"))
		}
		result |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

func (r *reader) name() (string, error) {
	n, err := r.uleb()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) limits() (Limits, error) {
	flags, err := r.byte()
	if err != nil {
		return Limits{}, err
	}
	lim := Limits{Flags: flags}
	if lim.Min, err = r.uleb(); err != nil {
		return Limits{}, err
	}
	if lim.HasMax() {
		if lim.Max, err = r.uleb(); err != nil {
			return Limits{}, err
		}
	}
	return lim, nil
}

// Decode parses a binary module. The input bytes are not retained; opaque
// section payloads are copied so the caller may reuse the buffer.
func Decode(data []byte) (*Module, error) {
	r := &reader{buf: data}

	magic, err := r.take(4)
	if err != nil {
		return nil, err
	}
	if string(magic) != string(wasmMagic) {
		return nil, &ParseError{Offset: 0, Err: ErrInvalidMagic}
	}
	version, err := r.take(4)
	if err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(version) != wasmVersion {
		return nil, &ParseError{Offset: 4, Err: ErrUnsupportedVersion}
	}

	m := &Module{}
	for r.remaining() > 0 {
		id, err := r.byte()
		if err != nil {
			return nil, err
		}
		size, err := r.uleb()
		if err != nil {
			return nil, err
		}
		payload, err := r.take(int(size))
		if err != nil {
			return nil, err
		}
		sec, err := decodeSection(SectionID(id), payload)
		if err != nil {
			return nil, err
		}
		m.sections = append(m.sections, sec)
	}
	return m, nil
}

// DecodeFile reads and parses the module at the given path.
func DecodeFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func decodeSection(id SectionID, payload []byte) (*Section, error) {
	r := &reader{buf: payload}
	sec := &Section{ID: id}
	switch id {
	case SectionCustom:
		name, err := r.name()
		if err != nil {
			return nil, err
		}
		data := make([]byte, r.remaining())
		copy(data, payload[r.pos:])
		sec.Custom = &Custom{Name: name, Data: data}

	case SectionImport:
		count, err := r.uleb()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			imp, err := decodeImport(r)
			if err != nil {
				return nil, err
			}
			sec.Imports = append(sec.Imports, imp)
		}

	case SectionFunction:
		count, err := r.uleb()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			idx, err := r.uleb()
			if err != nil {
				return nil, err
			}
			sec.Funcs = append(sec.Funcs, idx)
		}

	case SectionMemory:
		count, err := r.uleb()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			lim, err := r.limits()
			if err != nil {
				return nil, err
			}
			sec.Memories = append(sec.Memories, lim)
		}

	case SectionExport:
		count, err := r.uleb()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			name, err := r.name()
			if err != nil {
				return nil, err
			}
			kind, err := r.byte()
			if err != nil {
				return nil, err
			}
			index, err := r.uleb()
			if err != nil {
				return nil, err
			}
			sec.Exports = append(sec.Exports, &Export{
				Name:  name,
				Kind:  ExternalKind(kind),
				Index: index,
			})
		}

	case SectionCode:
		count, err := r.uleb()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			size, err := r.uleb()
			if err != nil {
				return nil, err
			}
			raw, err := r.take(int(size))
			if err != nil {
				return nil, err
			}
			body := make([]byte, len(raw))
			copy(body, raw)
			sec.Bodies = append(sec.Bodies, body)
		}

	default:
		sec.Raw = make([]byte, len(payload))
		copy(sec.Raw, payload)
	}
	return sec, nil
}

func decodeImport(r *reader) (*Import, error) {
	module, err := r.name()
	if err != nil {
		return nil, err
	}
	name, err := r.name()
	if err != nil {
		return nil, err
	}
	kind, err := r.byte()
	if err != nil {
		return nil, err
	}
	imp := &Import{Module: module, Name: name, Kind: ExternalKind(kind)}
	switch imp.Kind {
	case ExternalFunc:
		if imp.TypeIndex, err = r.uleb(); err != nil {
			return nil, err
		}
	case ExternalMemory:
		lim, err := r.limits()
		if err != nil {
			return nil, err
		}
		imp.Mem = &lim
	case ExternalTable:
		mark := r.pos
		if _, err := r.byte(); err != nil { // reftype
			return nil, err
		}
		if _, err := r.limits(); err != nil {
			return nil, err
		}
		imp.desc = append([]byte(nil), r.buf[mark:r.pos]...)
	case ExternalGlobal:
		desc, err := r.take(2) // valtype, mutability
		if err != nil {
			return nil, err
		}
		imp.desc = append([]byte(nil), desc...)
	default:
		return nil, r.err(fmt.Errorf("unknown import kind 0x%02x", kind))
	}
	return imp, nil
}

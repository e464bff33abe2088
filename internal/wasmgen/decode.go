package wasmgen

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Decoding errors returned by ReadImports.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
	ErrOverflow       = errors.New("leb128: overflow")
)

const (
	sectionCustom = 0

	externTable  = 0x01
	externGlobal = 0x03
	externTag    = 0x04
)

// Import is one entry of a module's import section. Memory is set for
// memory imports only.
type Import struct {
	Module string
	Name   string
	Kind   byte
	Memory *Limits
}

// IsFunc reports whether the import is a function.
func (i Import) IsFunc() bool { return i.Kind == externFunc }

// ReadImports decodes the import section of a core module. Sections after
// the import section are not read.
func ReadImports(data []byte) ([]Import, error) {
	if len(data) < len(header) || !bytes.Equal(data[:4], header[:4]) {
		return nil, ErrInvalidMagic
	}
	if !bytes.Equal(data[4:8], header[4:8]) {
		return nil, ErrInvalidVersion
	}
	r := bytes.NewReader(data[8:])

	for {
		id, err := r.ReadByte()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		size, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("section %d size: %w", id, err)
		}
		switch {
		case id == sectionImport:
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("import section: %w", err)
			}
			imports, err := parseImports(bytes.NewReader(body))
			if err != nil {
				return nil, fmt.Errorf("import section: %w", err)
			}
			return imports, nil
		case id == sectionCustom || id == sectionType:
			if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, err
			}
		default:
			// Past the import section's position: there is none.
			return nil, nil
		}
	}
}

func parseImports(r *bytes.Reader) ([]Import, error) {
	count, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if int(count) > r.Len() {
		return nil, fmt.Errorf("import count %d exceeds section", count)
	}
	out := make([]Import, 0, count)
	for range count {
		var imp Import
		if imp.Module, err = readName(r); err != nil {
			return nil, err
		}
		if imp.Name, err = readName(r); err != nil {
			return nil, err
		}
		if imp.Kind, err = r.ReadByte(); err != nil {
			return nil, err
		}
		switch imp.Kind {
		case externFunc:
			_, err = readU32(r)
		case externTable:
			if _, err = r.ReadByte(); err == nil {
				_, err = readLimits(r)
			}
		case externMemory:
			var l Limits
			if l, err = readLimits(r); err == nil {
				imp.Memory = &l
			}
		case externGlobal:
			if _, err = r.ReadByte(); err == nil {
				_, err = r.ReadByte()
			}
		case externTag:
			if _, err = r.ReadByte(); err == nil {
				_, err = readU32(r)
			}
		default:
			return nil, fmt.Errorf("import %s.%s: unknown kind 0x%02x", imp.Module, imp.Name, imp.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("import %s.%s: %w", imp.Module, imp.Name, err)
		}
		out = append(out, imp)
	}
	return out, nil
}

func readU32(r io.ByteReader) (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, ErrOverflow
		}
	}
}

func readName(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readLimits(r *bytes.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags&0x04 != 0 {
		return Limits{}, errors.New("64-bit memories are not supported")
	}
	l := Limits{HasMax: flags&0x01 != 0, Shared: flags&0x02 != 0}
	if l.Min, err = readU32(r); err != nil {
		return Limits{}, err
	}
	if l.HasMax {
		if l.Max, err = readU32(r); err != nil {
			return Limits{}, err
		}
	}
	return l, nil
}

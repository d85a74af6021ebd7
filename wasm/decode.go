package wasm

import (
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/konkitoman/wasm-parse/wasm/internal/binary"
)

// DefaultMaxDepth bounds the nesting of block, loop and if bodies. Inputs
// nested deeper fail with ErrDepthExceeded instead of exhausting the stack.
const DefaultMaxDepth = 1000

// Option adjusts decoder behavior.
type Option func(*decoder)

// Lenient relaxes strict format checks: over-long LEB128 encodings are
// truncated to their width, reserved bytes may be non-zero, unknown vector
// sub-opcodes decode without immediates, and leftover section bytes are
// ignored. Truncated input still fails.
func Lenient() Option {
	return func(d *decoder) { d.lenient = true }
}

// MaxDepth replaces the default nesting limit. Values below one are
// ignored.
func MaxDepth(n int) Option {
	return func(d *decoder) {
		if n >= 1 {
			d.maxDepth = n
		}
	}
}

// Concurrent decodes section payloads in parallel. Section framing is
// still read sequentially; payloads are independent once sliced, and the
// decoded module preserves input order.
func Concurrent() Option {
	return func(d *decoder) { d.concurrent = true }
}

type decoder struct {
	lenient    bool
	maxDepth   int
	concurrent bool
}

// rawSection is a sliced but not yet decoded section payload.
type rawSection struct {
	id      byte
	payload *binary.Reader
}

// ParseModule decodes a binary module from data. The input must be a
// complete module: the 8-byte preamble followed by zero or more sections,
// with nothing after the last section.
func ParseModule(data []byte, opts ...Option) (*Module, error) {
	d := &decoder{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(d)
	}

	r := binary.NewReader(data)
	r.SetLenient(d.lenient)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, fmt.Errorf("preamble: %w", err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: 0x%08X", ErrInvalidMagic, magic)
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, fmt.Errorf("preamble: %w", err)
	}
	if version != Version && !d.lenient {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}

	raws, err := sliceSections(r)
	if err != nil {
		return nil, err
	}
	sections, err := d.decodeSections(raws)
	if err != nil {
		return nil, err
	}
	return &Module{Magic: magic, Version: version, Sections: sections}, nil
}

// sliceSections walks the section framing, carving each declared payload
// out of the input without decoding it.
func sliceSections(r *binary.Reader) ([]rawSection, error) {
	var raws []rawSection
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sectionName(id), err)
		}
		payload, err := r.Sub(int(size))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sectionName(id), err)
		}
		raws = append(raws, rawSection{id: id, payload: payload})
	}
	return raws, nil
}

func (d *decoder) decodeSections(raws []rawSection) ([]Section, error) {
	sections := make([]Section, len(raws))
	if !d.concurrent {
		for i, rs := range raws {
			sec, err := d.decodeSection(rs)
			if err != nil {
				return nil, err
			}
			sections[i] = sec
		}
		return sections, nil
	}

	var g errgroup.Group
	for i, rs := range raws {
		i, rs := i, rs
		g.Go(func() error {
			sec, err := d.decodeSection(rs)
			if err != nil {
				return err
			}
			sections[i] = sec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sections, nil
}

// decodeSection decodes one sliced payload and enforces that the payload
// was consumed exactly. Running out of bytes inside the payload means the
// declared size undershot the content, so the error carries both the
// size-mismatch and end-of-input sentinels.
func (d *decoder) decodeSection(rs rawSection) (Section, error) {
	sec, err := d.sectionPayload(rs.id, rs.payload)
	if err != nil {
		if errors.Is(err, ErrUnexpectedEnd) && !errors.Is(err, ErrSectionSizeMismatch) {
			err = fmt.Errorf("%w: %w", ErrSectionSizeMismatch, err)
		}
		return nil, fmt.Errorf("%s: %w", sectionName(rs.id), err)
	}
	if rs.payload.Len() != 0 && !d.lenient {
		return nil, fmt.Errorf("%s: at offset %d: %w: %d bytes left over",
			sectionName(rs.id), rs.payload.Position(), ErrSectionSizeMismatch, rs.payload.Len())
	}
	return sec, nil
}

func (d *decoder) sectionPayload(id byte, r *binary.Reader) (Section, error) {
	switch id {
	case SectionCustom:
		s, err := d.decodeCustomSection(r)
		return s, err
	case SectionType:
		s, err := d.decodeTypeSection(r)
		return s, err
	case SectionImport:
		s, err := d.decodeImportSection(r)
		return s, err
	case SectionFunction:
		s, err := d.decodeFunctionSection(r)
		return s, err
	case SectionTable:
		s, err := d.decodeTableSection(r)
		return s, err
	case SectionMemory:
		s, err := d.decodeMemorySection(r)
		return s, err
	case SectionGlobal:
		s, err := d.decodeGlobalSection(r)
		return s, err
	case SectionExport:
		s, err := d.decodeExportSection(r)
		return s, err
	case SectionStart:
		s, err := d.decodeStartSection(r)
		return s, err
	case SectionElement:
		s, err := d.decodeElementSection(r)
		return s, err
	case SectionCode:
		s, err := d.decodeCodeSection(r)
		return s, err
	case SectionData:
		s, err := d.decodeDataSection(r)
		return s, err
	case SectionDataCount:
		s, err := d.decodeDataCountSection(r)
		return s, err
	default:
		data, err := r.ReadBytes(r.Len())
		if err != nil {
			return nil, err
		}
		return UnknownSection{ID: id, Data: append([]byte(nil), data...)}, nil
	}
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom section"
	case SectionType:
		return "type section"
	case SectionImport:
		return "import section"
	case SectionFunction:
		return "function section"
	case SectionTable:
		return "table section"
	case SectionMemory:
		return "memory section"
	case SectionGlobal:
		return "global section"
	case SectionExport:
		return "export section"
	case SectionStart:
		return "start section"
	case SectionElement:
		return "element section"
	case SectionCode:
		return "code section"
	case SectionData:
		return "data section"
	case SectionDataCount:
		return "data count section"
	default:
		return fmt.Sprintf("section %d", id)
	}
}

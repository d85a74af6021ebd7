package wasm

import (
	"fmt"

	"github.com/konkitoman/wasm-parse/wasm/internal/binary"
)

// Module is a fully decoded binary module. Sections appear in the order
// they occur in the input, including repeated custom sections.
type Module struct {
	Magic    uint32
	Version  uint32
	Sections []Section
}

// Section is one decoded module section. The concrete type identifies the
// section kind; SectionID returns the kind byte from the input.
type Section interface {
	SectionID() byte
}

type CustomSection struct {
	Name string
	Data []byte
}

type TypeSection struct {
	Types []FuncType
}

type ImportSection struct {
	Imports []Import
}

type FunctionSection struct {
	TypeIndices []uint32
}

type TableSection struct {
	Tables []TableType
}

type MemorySection struct {
	Memories []MemoryType
}

type GlobalSection struct {
	Globals []Global
}

type ExportSection struct {
	Exports []Export
}

type StartSection struct {
	FuncIdx uint32
}

type ElementSection struct {
	Segments []Element
}

type CodeSection struct {
	Entries []Code
}

type DataSection struct {
	Segments []Data
}

type DataCountSection struct {
	Count uint32
}

// UnknownSection preserves a section whose ID is outside the defined
// range. The payload is kept verbatim.
type UnknownSection struct {
	ID   byte
	Data []byte
}

func (CustomSection) SectionID() byte    { return SectionCustom }
func (TypeSection) SectionID() byte      { return SectionType }
func (ImportSection) SectionID() byte    { return SectionImport }
func (FunctionSection) SectionID() byte  { return SectionFunction }
func (TableSection) SectionID() byte     { return SectionTable }
func (MemorySection) SectionID() byte    { return SectionMemory }
func (GlobalSection) SectionID() byte    { return SectionGlobal }
func (ExportSection) SectionID() byte    { return SectionExport }
func (StartSection) SectionID() byte     { return SectionStart }
func (ElementSection) SectionID() byte   { return SectionElement }
func (CodeSection) SectionID() byte      { return SectionCode }
func (DataSection) SectionID() byte      { return SectionData }
func (DataCountSection) SectionID() byte { return SectionDataCount }
func (s UnknownSection) SectionID() byte { return s.ID }

// Import is one entry of the import section. Desc carries the entity
// description for the import's kind.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// ImportDesc describes the imported entity. Exactly one of the pointer
// fields is set for table, memory and global kinds; TypeIdx is meaningful
// for KindFunc.
type ImportDesc struct {
	Kind    byte
	TypeIdx uint32
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
}

// Export is one entry of the export section.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Global is a defined global with its initializer expression.
type Global struct {
	Type GlobalType
	Init []Instruction
}

// Element is one element segment. Flags selects the encoding; the fields
// populated depend on it:
//
//	bit 0 — passive or declarative (clear: active)
//	bit 1 — active: explicit table index; passive: declarative
//	bit 2 — expression-encoded initializers instead of function indices
//
// Active forms carry an offset expression; expression forms fill Exprs,
// index forms fill FuncIdxs.
type Element struct {
	Flags    uint32
	TableIdx uint32
	Offset   []Instruction
	ElemKind byte
	Type     RefType
	FuncIdxs []uint32
	Exprs    [][]Instruction
}

// Code is one entry of the code section: a function body with its local
// declarations.
type Code struct {
	Locals []Locals
	Body   []Instruction
}

// Locals is one run of same-typed locals in a function body.
type Locals struct {
	Count uint32
	Type  ValType
}

// Data is one data segment. Flags 0 and 2 are active (2 with an explicit
// memory index), flag 1 is passive.
type Data struct {
	Flags  uint32
	MemIdx uint32
	Offset []Instruction
	Init   []byte
}

func (d *decoder) decodeCustomSection(r *binary.Reader) (CustomSection, error) {
	name, err := r.ReadName()
	if err != nil {
		return CustomSection{}, err
	}
	data, err := r.ReadBytes(r.Len())
	if err != nil {
		return CustomSection{}, err
	}
	return CustomSection{Name: name, Data: append([]byte(nil), data...)}, nil
}

func (d *decoder) decodeTypeSection(r *binary.Reader) (TypeSection, error) {
	types, err := decodeVec(r, decodeFuncType)
	if err != nil {
		return TypeSection{}, err
	}
	return TypeSection{Types: types}, nil
}

func (d *decoder) decodeImportSection(r *binary.Reader) (ImportSection, error) {
	imports, err := decodeVec(r, decodeImport)
	if err != nil {
		return ImportSection{}, err
	}
	return ImportSection{Imports: imports}, nil
}

func decodeImport(r *binary.Reader) (Import, error) {
	mod, err := r.ReadName()
	if err != nil {
		return Import{}, err
	}
	name, err := r.ReadName()
	if err != nil {
		return Import{}, err
	}
	desc, err := decodeImportDesc(r)
	if err != nil {
		return Import{}, err
	}
	return Import{Module: mod, Name: name, Desc: desc}, nil
}

func decodeImportDesc(r *binary.Reader) (ImportDesc, error) {
	pos := r.Position()
	kind, err := r.ReadByte()
	if err != nil {
		return ImportDesc{}, err
	}
	desc := ImportDesc{Kind: kind}
	switch kind {
	case KindFunc:
		desc.TypeIdx, err = r.ReadU32()
	case KindTable:
		var t TableType
		t, err = decodeTableType(r)
		desc.Table = &t
	case KindMemory:
		var m MemoryType
		m, err = decodeMemoryType(r)
		desc.Memory = &m
	case KindGlobal:
		var g GlobalType
		g, err = decodeGlobalType(r)
		desc.Global = &g
	default:
		return ImportDesc{}, fmt.Errorf("at offset %d: %w: import kind 0x%02X", pos, ErrInvalidDiscriminant, kind)
	}
	if err != nil {
		return ImportDesc{}, err
	}
	return desc, nil
}

func (d *decoder) decodeFunctionSection(r *binary.Reader) (FunctionSection, error) {
	indices, err := decodeVec(r, decodeU32)
	if err != nil {
		return FunctionSection{}, err
	}
	return FunctionSection{TypeIndices: indices}, nil
}

func (d *decoder) decodeTableSection(r *binary.Reader) (TableSection, error) {
	tables, err := decodeVec(r, decodeTableType)
	if err != nil {
		return TableSection{}, err
	}
	return TableSection{Tables: tables}, nil
}

func (d *decoder) decodeMemorySection(r *binary.Reader) (MemorySection, error) {
	memories, err := decodeVec(r, decodeMemoryType)
	if err != nil {
		return MemorySection{}, err
	}
	return MemorySection{Memories: memories}, nil
}

func (d *decoder) decodeGlobalSection(r *binary.Reader) (GlobalSection, error) {
	globals, err := decodeVec(r, d.decodeGlobal)
	if err != nil {
		return GlobalSection{}, err
	}
	return GlobalSection{Globals: globals}, nil
}

func (d *decoder) decodeGlobal(r *binary.Reader) (Global, error) {
	gt, err := decodeGlobalType(r)
	if err != nil {
		return Global{}, err
	}
	init, _, err := d.expr(r, 0, false)
	if err != nil {
		return Global{}, err
	}
	return Global{Type: gt, Init: init}, nil
}

func (d *decoder) decodeExportSection(r *binary.Reader) (ExportSection, error) {
	exports, err := decodeVec(r, decodeExport)
	if err != nil {
		return ExportSection{}, err
	}
	return ExportSection{Exports: exports}, nil
}

func decodeExport(r *binary.Reader) (Export, error) {
	name, err := r.ReadName()
	if err != nil {
		return Export{}, err
	}
	pos := r.Position()
	kind, err := r.ReadByte()
	if err != nil {
		return Export{}, err
	}
	if kind > KindGlobal {
		return Export{}, fmt.Errorf("at offset %d: %w: export kind 0x%02X", pos, ErrInvalidDiscriminant, kind)
	}
	idx, err := r.ReadU32()
	if err != nil {
		return Export{}, err
	}
	return Export{Name: name, Kind: kind, Idx: idx}, nil
}

func (d *decoder) decodeStartSection(r *binary.Reader) (StartSection, error) {
	idx, err := r.ReadU32()
	if err != nil {
		return StartSection{}, err
	}
	return StartSection{FuncIdx: idx}, nil
}

func (d *decoder) decodeElementSection(r *binary.Reader) (ElementSection, error) {
	segments, err := decodeVec(r, d.decodeElement)
	if err != nil {
		return ElementSection{}, err
	}
	return ElementSection{Segments: segments}, nil
}

func (d *decoder) decodeElement(r *binary.Reader) (Element, error) {
	pos := r.Position()
	flags, err := r.ReadU32()
	if err != nil {
		return Element{}, err
	}
	if flags > 7 {
		return Element{}, fmt.Errorf("at offset %d: %w: element flags %d", pos, ErrInvalidDiscriminant, flags)
	}
	elem := Element{Flags: flags, Type: FuncRef}

	active := flags&0x01 == 0
	explicit := flags&0x02 != 0
	useExprs := flags&0x04 != 0

	if active && explicit {
		elem.TableIdx, err = r.ReadU32()
		if err != nil {
			return Element{}, err
		}
	}
	if active {
		elem.Offset, _, err = d.expr(r, 0, false)
		if err != nil {
			return Element{}, err
		}
	}
	// Flags 0 and 4 imply funcref with no kind/type byte in the input.
	if flags&0x03 != 0 {
		if useExprs {
			elem.Type, err = decodeRefType(r)
			if err != nil {
				return Element{}, err
			}
		} else {
			pos := r.Position()
			elem.ElemKind, err = r.ReadByte()
			if err != nil {
				return Element{}, err
			}
			if elem.ElemKind != 0 {
				return Element{}, fmt.Errorf("at offset %d: %w: element kind 0x%02X", pos, ErrInvalidDiscriminant, elem.ElemKind)
			}
		}
	}
	if useExprs {
		elem.Exprs, err = decodeVec(r, func(r *binary.Reader) ([]Instruction, error) {
			e, _, err := d.expr(r, 0, false)
			return e, err
		})
	} else {
		elem.FuncIdxs, err = decodeVec(r, decodeU32)
	}
	if err != nil {
		return Element{}, err
	}
	return elem, nil
}

func (d *decoder) decodeCodeSection(r *binary.Reader) (CodeSection, error) {
	entries, err := decodeVec(r, d.decodeCode)
	if err != nil {
		return CodeSection{}, err
	}
	return CodeSection{Entries: entries}, nil
}

// decodeCode reads one size-framed function body. The declared size must
// match the bytes the body actually consumes.
func (d *decoder) decodeCode(r *binary.Reader) (Code, error) {
	size, err := r.ReadU32()
	if err != nil {
		return Code{}, err
	}
	body, err := r.Sub(int(size))
	if err != nil {
		return Code{}, err
	}
	locals, err := decodeVec(body, decodeLocals)
	if err != nil {
		return Code{}, err
	}
	instrs, _, err := d.expr(body, 0, false)
	if err != nil {
		return Code{}, err
	}
	if body.Len() != 0 && !d.lenient {
		return Code{}, fmt.Errorf("at offset %d: %w: %d bytes after function body", body.Position(), ErrSectionSizeMismatch, body.Len())
	}
	return Code{Locals: locals, Body: instrs}, nil
}

func decodeLocals(r *binary.Reader) (Locals, error) {
	count, err := r.ReadU32()
	if err != nil {
		return Locals{}, err
	}
	t, err := decodeValType(r)
	if err != nil {
		return Locals{}, err
	}
	return Locals{Count: count, Type: t}, nil
}

func (d *decoder) decodeDataSection(r *binary.Reader) (DataSection, error) {
	segments, err := decodeVec(r, d.decodeData)
	if err != nil {
		return DataSection{}, err
	}
	return DataSection{Segments: segments}, nil
}

func (d *decoder) decodeData(r *binary.Reader) (Data, error) {
	pos := r.Position()
	flags, err := r.ReadU32()
	if err != nil {
		return Data{}, err
	}
	if flags > 2 {
		return Data{}, fmt.Errorf("at offset %d: %w: data flags %d", pos, ErrInvalidDiscriminant, flags)
	}
	data := Data{Flags: flags}
	if flags == 2 {
		data.MemIdx, err = r.ReadU32()
		if err != nil {
			return Data{}, err
		}
	}
	if flags != 1 {
		data.Offset, _, err = d.expr(r, 0, false)
		if err != nil {
			return Data{}, err
		}
	}
	data.Init, err = r.ReadByteVec()
	if err != nil {
		return Data{}, err
	}
	return data, nil
}

func (d *decoder) decodeDataCountSection(r *binary.Reader) (DataCountSection, error) {
	count, err := r.ReadU32()
	if err != nil {
		return DataCountSection{}, err
	}
	return DataCountSection{Count: count}, nil
}

package wasm

import (
	"fmt"

	"github.com/konkitoman/wasm-parse/wasm/internal/binary"
)

// ValType is a one-byte value type: a numeric type (i32, i64, f32, f64),
// the v128 vector type, or a reference type (funcref, externref).
type ValType byte

// IsNum reports whether t is a numeric type.
func (t ValType) IsNum() bool {
	return t == ValI32 || t == ValI64 || t == ValF32 || t == ValF64
}

// IsVec reports whether t is the vector type.
func (t ValType) IsVec() bool {
	return t == ValV128
}

// IsRef reports whether t is a reference type.
func (t ValType) IsRef() bool {
	return t == ValFuncRef || t == ValExtern
}

func (t ValType) valid() bool {
	return t.IsNum() || t.IsVec() || t.IsRef()
}

// RefType is a one-byte reference type: funcref (0x70) or externref (0x6F).
type RefType byte

// Reference types.
const (
	FuncRef   RefType = RefType(ValFuncRef)
	ExternRef RefType = RefType(ValExtern)
)

// Limits bounds the size of a table or memory. Max is nil when no upper
// bound was declared.
type Limits struct {
	Min uint32
	Max *uint32
}

// FuncType is a function signature: parameter types and result types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// TableType describes a table: its element reference type and size limits.
type TableType struct {
	Elem   RefType
	Limits Limits
}

// MemoryType describes a linear memory by its size limits in pages.
type MemoryType struct {
	Limits Limits
}

// GlobalType describes a global: its value type and mutability.
type GlobalType struct {
	Type    ValType
	Mutable bool
}

func decodeValType(r *binary.Reader) (ValType, error) {
	at := r.Position()
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	t := ValType(b)
	if !t.valid() {
		return 0, fmt.Errorf("at offset %d: %w: value type 0x%02X", at, ErrInvalidDiscriminant, b)
	}
	return t, nil
}

func decodeRefType(r *binary.Reader) (RefType, error) {
	at := r.Position()
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	t := RefType(b)
	if t != FuncRef && t != ExternRef {
		return 0, fmt.Errorf("at offset %d: %w: reference type 0x%02X", at, ErrInvalidDiscriminant, b)
	}
	return t, nil
}

func decodeLimits(r *binary.Reader) (Limits, error) {
	at := r.Position()
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	min, err := r.ReadU32()
	if err != nil {
		return Limits{}, err
	}
	lim := Limits{Min: min}
	switch flags {
	case LimitsNoMax:
	case LimitsHasMax:
		max, err := r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		lim.Max = &max
	default:
		return Limits{}, fmt.Errorf("at offset %d: %w: limits flag 0x%02X", at, ErrInvalidDiscriminant, flags)
	}
	return lim, nil
}

func decodeFuncType(r *binary.Reader) (FuncType, error) {
	at := r.Position()
	b, err := r.ReadByte()
	if err != nil {
		return FuncType{}, err
	}
	if b != FuncTypeByte {
		return FuncType{}, fmt.Errorf("at offset %d: %w: function type 0x%02X", at, ErrInvalidDiscriminant, b)
	}
	params, err := decodeVec(r, decodeValType)
	if err != nil {
		return FuncType{}, err
	}
	results, err := decodeVec(r, decodeValType)
	if err != nil {
		return FuncType{}, err
	}
	return FuncType{Params: params, Results: results}, nil
}

func decodeTableType(r *binary.Reader) (TableType, error) {
	elem, err := decodeRefType(r)
	if err != nil {
		return TableType{}, err
	}
	lim, err := decodeLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{Elem: elem, Limits: lim}, nil
}

func decodeMemoryType(r *binary.Reader) (MemoryType, error) {
	lim, err := decodeLimits(r)
	if err != nil {
		return MemoryType{}, err
	}
	return MemoryType{Limits: lim}, nil
}

func decodeGlobalType(r *binary.Reader) (GlobalType, error) {
	t, err := decodeValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	at := r.Position()
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("at offset %d: %w: mutability 0x%02X", at, ErrInvalidDiscriminant, mut)
	}
	return GlobalType{Type: t, Mutable: mut == 1}, nil
}

// decodeVec decodes a count-prefixed sequence of elements. It fails on the
// first element error and never produces a partial result.
func decodeVec[T any](r *binary.Reader, elem func(*binary.Reader) (T, error)) ([]T, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	// Each element occupies at least one byte, so the remaining length
	// bounds a safe pre-allocation for adversarial counts.
	capHint := int(n)
	if capHint > r.Len() {
		capHint = r.Len()
	}
	out := make([]T, 0, capHint)
	for i := uint32(0); i < n; i++ {
		v, err := elem(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeU32(r *binary.Reader) (uint32, error) {
	return r.ReadU32()
}

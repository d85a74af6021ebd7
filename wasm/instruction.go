package wasm

import (
	"fmt"

	"github.com/konkitoman/wasm-parse/wasm/internal/binary"
)

// Instruction is one decoded operation. Opcode is the leading byte;
// prefixed operations (0xFC, 0xFD) additionally carry their sub-opcode.
// Imm holds the immediate payload for the opcode's shape, or nil when the
// operation takes no immediates.
type Instruction struct {
	Opcode    byte
	SubOpcode uint32
	Imm       any
}

// BlockKind discriminates the three encodings of a block type.
type BlockKind byte

const (
	BlockKindEmpty BlockKind = iota
	BlockKindValType
	BlockKindTypeIndex
)

// BlockType is the result arity annotation on block, loop and if.
type BlockType struct {
	Kind  BlockKind
	Val   ValType // set when Kind is BlockKindValType
	Index int64   // set when Kind is BlockKindTypeIndex
}

// MemArg is the alignment hint and address offset on memory access
// instructions.
type MemArg struct {
	Align  uint32
	Offset uint32
}

// Immediate payloads. Each struct corresponds to one immediate shape; the
// decoder guarantees Imm is exactly the struct for the instruction's shape.
type (
	BlockImm struct {
		Type BlockType
		Body []Instruction
	}
	IfImm struct {
		Type BlockType
		Then []Instruction
	}
	IfElseImm struct {
		Type BlockType
		Then []Instruction
		Else []Instruction
	}
	BranchImm struct {
		LabelIdx uint32
	}
	BrTableImm struct {
		Labels  []uint32
		Default uint32
	}
	CallImm struct {
		FuncIdx uint32
	}
	CallIndirectImm struct {
		TypeIdx  uint32
		TableIdx uint32
	}
	RefNullImm struct {
		HeapType uint32
	}
	RefFuncImm struct {
		FuncIdx uint32
	}
	SelectTypeImm struct {
		Types []ValType
	}
	LocalImm struct {
		LocalIdx uint32
	}
	GlobalImm struct {
		GlobalIdx uint32
	}
	TableImm struct {
		TableIdx uint32
	}
	TableInitImm struct {
		ElemIdx  uint32
		TableIdx uint32
	}
	TableCopyImm struct {
		DstTable uint32
		SrcTable uint32
	}
	ElemDropImm struct {
		ElemIdx uint32
	}
	MemoryInitImm struct {
		DataIdx uint32
	}
	DataDropImm struct {
		DataIdx uint32
	}
	I32Imm struct {
		Value int32
	}
	I64Imm struct {
		Value int64
	}
	F32Imm struct {
		Value float32
	}
	F64Imm struct {
		Value float64
	}
	V128Imm struct {
		Bytes [16]byte
	}
	ShuffleImm struct {
		Lanes [16]byte
	}
	LaneImm struct {
		LaneIdx byte
	}
	MemLaneImm struct {
		Mem     MemArg
		LaneIdx byte
	}
)

// decodeBlockType reads a block type annotation. The three forms share a
// first byte: 0x40 means no result, a value type byte means one result,
// and anything else restarts as a signed 33-bit type index.
func decodeBlockType(r *binary.Reader) (BlockType, error) {
	b, err := r.PeekByte()
	if err != nil {
		return BlockType{}, err
	}
	switch {
	case b == BlockTypeEmpty:
		r.ReadByte()
		return BlockType{Kind: BlockKindEmpty}, nil
	case ValType(b).valid():
		r.ReadByte()
		return BlockType{Kind: BlockKindValType, Val: ValType(b)}, nil
	default:
		idx, err := r.ReadS33()
		if err != nil {
			return BlockType{}, err
		}
		return BlockType{Kind: BlockKindTypeIndex, Index: idx}, nil
	}
}

// instr decodes one instruction, recursing into nested bodies for the
// structured control opcodes.
func (d *decoder) instr(r *binary.Reader, depth int) (Instruction, error) {
	pos := r.Position()
	op, err := r.ReadByte()
	if err != nil {
		return Instruction{}, err
	}

	in := Instruction{Opcode: op}
	switch tier1Shapes[op] {
	case shapeInvalid:
		return Instruction{}, fmt.Errorf("at offset %d: %w: opcode 0x%02X", pos, ErrInvalidOpcode, op)

	case shapeNone:
		return in, nil

	case shapeBlock:
		if depth >= d.maxDepth {
			return Instruction{}, fmt.Errorf("at offset %d: %w", pos, ErrDepthExceeded)
		}
		bt, err := decodeBlockType(r)
		if err != nil {
			return Instruction{}, err
		}
		body, _, err := d.expr(r, depth+1, false)
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = BlockImm{Type: bt, Body: body}

	case shapeIf:
		if depth >= d.maxDepth {
			return Instruction{}, fmt.Errorf("at offset %d: %w", pos, ErrDepthExceeded)
		}
		bt, err := decodeBlockType(r)
		if err != nil {
			return Instruction{}, err
		}
		thenBody, term, err := d.expr(r, depth+1, true)
		if err != nil {
			return Instruction{}, err
		}
		if term == OpElse {
			elseBody, _, err := d.expr(r, depth+1, false)
			if err != nil {
				return Instruction{}, err
			}
			in.Imm = IfElseImm{Type: bt, Then: thenBody, Else: elseBody}
		} else {
			in.Imm = IfImm{Type: bt, Then: thenBody}
		}

	case shapeLabel:
		label, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = BranchImm{LabelIdx: label}

	case shapeBrTable:
		labels, err := decodeVec(r, decodeU32)
		if err != nil {
			return Instruction{}, err
		}
		def, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = BrTableImm{Labels: labels, Default: def}

	case shapeCall:
		idx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = CallImm{FuncIdx: idx}

	case shapeCallIndirect:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		tableIdx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}

	case shapeSelectTypes:
		types, err := decodeVec(r, decodeValType)
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = SelectTypeImm{Types: types}

	case shapeLocal:
		idx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = LocalImm{LocalIdx: idx}

	case shapeGlobal:
		idx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = GlobalImm{GlobalIdx: idx}

	case shapeTable:
		idx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = TableImm{TableIdx: idx}

	case shapeMemArg:
		mem, err := decodeMemArg(r)
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = mem

	case shapeMemReserved:
		if err := d.reservedZero(r); err != nil {
			return Instruction{}, err
		}

	case shapeI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = I32Imm{Value: v}

	case shapeI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = I64Imm{Value: v}

	case shapeF32Const:
		v, err := r.ReadF32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = F32Imm{Value: v}

	case shapeF64Const:
		v, err := r.ReadF64()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = F64Imm{Value: v}

	case shapeRefNull:
		ht, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = RefNullImm{HeapType: ht}

	case shapeRefFunc:
		idx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = RefFuncImm{FuncIdx: idx}

	case shapePrefixMisc:
		return d.miscInstr(r, pos)

	case shapePrefixSIMD:
		return d.simdInstr(r, pos)
	}
	return in, nil
}

func decodeMemArg(r *binary.Reader) (MemArg, error) {
	align, err := r.ReadU32()
	if err != nil {
		return MemArg{}, err
	}
	offset, err := r.ReadU32()
	if err != nil {
		return MemArg{}, err
	}
	return MemArg{Align: align, Offset: offset}, nil
}

// reservedZero consumes a byte that the format reserves as zero.
func (d *decoder) reservedZero(r *binary.Reader) error {
	pos := r.Position()
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b != 0 && !d.lenient {
		return fmt.Errorf("at offset %d: %w: reserved byte 0x%02X", pos, ErrInvalidDiscriminant, b)
	}
	return nil
}

func (d *decoder) miscInstr(r *binary.Reader, pos int) (Instruction, error) {
	sub, err := r.ReadU32()
	if err != nil {
		return Instruction{}, err
	}
	in := Instruction{Opcode: OpPrefixMisc, SubOpcode: sub}
	switch miscShapes[sub] {
	case miscInvalid:
		return Instruction{}, fmt.Errorf("at offset %d: %w: opcode 0xFC %d", pos, ErrInvalidOpcode, sub)

	case miscNone:
		return in, nil

	case miscDataZero:
		idx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		if err := d.reservedZero(r); err != nil {
			return Instruction{}, err
		}
		in.Imm = MemoryInitImm{DataIdx: idx}

	case miscDataIdx:
		idx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = DataDropImm{DataIdx: idx}

	case miscZeroZero:
		if err := d.reservedZero(r); err != nil {
			return Instruction{}, err
		}
		if err := d.reservedZero(r); err != nil {
			return Instruction{}, err
		}

	case miscZero:
		if err := d.reservedZero(r); err != nil {
			return Instruction{}, err
		}

	case miscElemTable:
		elemIdx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		tableIdx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = TableInitImm{ElemIdx: elemIdx, TableIdx: tableIdx}

	case miscElemIdx:
		idx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = ElemDropImm{ElemIdx: idx}

	case miscTablePair:
		dst, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		src, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = TableCopyImm{DstTable: dst, SrcTable: src}

	case miscTableIdx:
		idx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = TableImm{TableIdx: idx}
	}
	return in, nil
}

func (d *decoder) simdInstr(r *binary.Reader, pos int) (Instruction, error) {
	sub, err := r.ReadU32()
	if err != nil {
		return Instruction{}, err
	}
	in := Instruction{Opcode: OpPrefixSIMD, SubOpcode: sub}
	shape := simdShapeOf(sub)
	if shape == simdInvalid {
		if !d.lenient {
			return Instruction{}, fmt.Errorf("at offset %d: %w: opcode 0xFD %d", pos, ErrInvalidOpcode, sub)
		}
		return in, nil
	}
	switch shape {
	case simdNone:
		return in, nil

	case simdMemArg:
		mem, err := decodeMemArg(r)
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = mem

	case simdConst:
		b, err := r.ReadBytes(16)
		if err != nil {
			return Instruction{}, err
		}
		var imm V128Imm
		copy(imm.Bytes[:], b)
		in.Imm = imm

	case simdShuffle:
		b, err := r.ReadBytes(16)
		if err != nil {
			return Instruction{}, err
		}
		var imm ShuffleImm
		copy(imm.Lanes[:], b)
		in.Imm = imm

	case simdLane:
		lane, err := r.ReadByte()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = LaneImm{LaneIdx: lane}

	case simdMemLane:
		mem, err := decodeMemArg(r)
		if err != nil {
			return Instruction{}, err
		}
		lane, err := r.ReadByte()
		if err != nil {
			return Instruction{}, err
		}
		in.Imm = MemLaneImm{Mem: mem, LaneIdx: lane}
	}
	return in, nil
}

// expr decodes instructions until a terminator: 0x0B always ends the
// sequence, and 0x05 ends it when allowElse is set. The terminator byte is
// consumed and returned so if bodies can tell which arm follows.
func (d *decoder) expr(r *binary.Reader, depth int, allowElse bool) ([]Instruction, byte, error) {
	var body []Instruction
	for {
		b, err := r.PeekByte()
		if err != nil {
			return nil, 0, err
		}
		if b == OpEnd || (allowElse && b == OpElse) {
			r.ReadByte()
			return body, b, nil
		}
		in, err := d.instr(r, depth)
		if err != nil {
			return nil, 0, err
		}
		body = append(body, in)
	}
}

package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konkitoman/wasm-parse/wasm/internal/binary"
)

// decodeExpr decodes an instruction sequence terminated by 0x0B.
func decodeExpr(t *testing.T, data []byte, opts ...Option) []Instruction {
	t.Helper()
	ins, err := decodeExprErr(data, opts...)
	require.NoError(t, err)
	return ins
}

func decodeExprErr(data []byte, opts ...Option) ([]Instruction, error) {
	d := &decoder{maxDepth: DefaultMaxDepth}
	for _, o := range opts {
		o(d)
	}
	r := binary.NewReader(data)
	r.SetLenient(d.lenient)
	ins, _, err := d.expr(r, 0, false)
	return ins, err
}

func TestDecodePlainInstructions(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  Instruction
	}{
		{name: "unreachable", input: []byte{0x00}, want: Instruction{Opcode: OpUnreachable}},
		{name: "nop", input: []byte{0x01}, want: Instruction{Opcode: OpNop}},
		{name: "drop", input: []byte{0x1A}, want: Instruction{Opcode: OpDrop}},
		{name: "br", input: []byte{0x0C, 0x02}, want: Instruction{Opcode: OpBr, Imm: BranchImm{LabelIdx: 2}}},
		{name: "br_if", input: []byte{0x0D, 0x00}, want: Instruction{Opcode: OpBrIf, Imm: BranchImm{LabelIdx: 0}}},
		{name: "br_table", input: []byte{0x0E, 0x02, 0x00, 0x01, 0x02}, want: Instruction{Opcode: OpBrTable, Imm: BrTableImm{Labels: []uint32{0, 1}, Default: 2}}},
		{name: "call", input: []byte{0x10, 0x07}, want: Instruction{Opcode: OpCall, Imm: CallImm{FuncIdx: 7}}},
		{name: "call_indirect", input: []byte{0x11, 0x02, 0x00}, want: Instruction{Opcode: OpCallIndirect, Imm: CallIndirectImm{TypeIdx: 2, TableIdx: 0}}},
		{name: "select typed", input: []byte{0x1C, 0x01, 0x7F}, want: Instruction{Opcode: OpSelectType, Imm: SelectTypeImm{Types: []ValType{ValI32}}}},
		{name: "local.tee", input: []byte{0x22, 0x05}, want: Instruction{Opcode: OpLocalTee, Imm: LocalImm{LocalIdx: 5}}},
		{name: "global.set", input: []byte{0x24, 0x01}, want: Instruction{Opcode: OpGlobalSet, Imm: GlobalImm{GlobalIdx: 1}}},
		{name: "table.get", input: []byte{0x25, 0x00}, want: Instruction{Opcode: OpTableGet, Imm: TableImm{TableIdx: 0}}},
		{name: "i64.load", input: []byte{0x29, 0x03, 0x10}, want: Instruction{Opcode: OpI64Load, Imm: MemArg{Align: 3, Offset: 16}}},
		{name: "memory.size", input: []byte{0x3F, 0x00}, want: Instruction{Opcode: OpMemorySize}},
		{name: "i32.const negative", input: []byte{0x41, 0x7B}, want: Instruction{Opcode: OpI32Const, Imm: I32Imm{Value: -5}}},
		{name: "i64.const", input: []byte{0x42, 0xC0, 0xBB, 0x78}, want: Instruction{Opcode: OpI64Const, Imm: I64Imm{Value: -123456}}},
		{name: "f32.const", input: []byte{0x43, 0x00, 0x00, 0xC0, 0x3F}, want: Instruction{Opcode: OpF32Const, Imm: F32Imm{Value: 1.5}}},
		{name: "f64.const", input: []byte{0x44, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xF0, 0x3F}, want: Instruction{Opcode: OpF64Const, Imm: F64Imm{Value: 1.0}}},
		{name: "ref.null", input: []byte{0xD0, 0x70}, want: Instruction{Opcode: OpRefNull, Imm: RefNullImm{HeapType: 0x70}}},
		{name: "ref.is_null", input: []byte{0xD1}, want: Instruction{Opcode: OpRefIsNull}},
		{name: "ref.func", input: []byte{0xD2, 0x03}, want: Instruction{Opcode: OpRefFunc, Imm: RefFuncImm{FuncIdx: 3}}},
		{name: "i32.add", input: []byte{0x6A}, want: Instruction{Opcode: OpI32Add}},
		{name: "f64.copysign", input: []byte{0xA6}, want: Instruction{Opcode: OpF64Copysign}},
		{name: "i64.extend32_s", input: []byte{0xC4}, want: Instruction{Opcode: OpI64Extend32S}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := decodeExpr(t, append(tt.input, OpEnd))
			require.Len(t, ins, 1)
			assert.Equal(t, tt.want, ins[0])
		})
	}
}

func TestDecodeInvalidOpcodes(t *testing.T) {
	for _, op := range []byte{0x06, 0x0A, 0x12, 0x1D, 0x27, 0xC5, 0xCF, 0xD3, 0xFB, 0xFE, 0xFF} {
		_, err := decodeExprErr([]byte{op, OpEnd})
		require.ErrorIs(t, err, ErrInvalidOpcode, "opcode 0x%02X", op)
	}

	// else is only a terminator inside an if body.
	_, err := decodeExprErr([]byte{OpElse, OpEnd})
	require.ErrorIs(t, err, ErrInvalidOpcode)
}

func TestDecodeBlockTypes(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		ins := decodeExpr(t, []byte{0x02, 0x40, 0x01, 0x0B, 0x0B})
		require.Len(t, ins, 1)
		imm := ins[0].Imm.(BlockImm)
		assert.Equal(t, BlockType{Kind: BlockKindEmpty}, imm.Type)
		require.Len(t, imm.Body, 1)
		assert.Equal(t, OpNop, imm.Body[0].Opcode)
	})
	t.Run("value type", func(t *testing.T) {
		ins := decodeExpr(t, []byte{0x02, 0x7F, 0x41, 0x2A, 0x0B, 0x0B})
		imm := ins[0].Imm.(BlockImm)
		assert.Equal(t, BlockType{Kind: BlockKindValType, Val: ValI32}, imm.Type)
		assert.Equal(t, I32Imm{Value: 42}, imm.Body[0].Imm)
	})
	t.Run("type index", func(t *testing.T) {
		ins := decodeExpr(t, []byte{0x02, 0x01, 0x0B, 0x0B})
		imm := ins[0].Imm.(BlockImm)
		assert.Equal(t, BlockType{Kind: BlockKindTypeIndex, Index: 1}, imm.Type)
		assert.Empty(t, imm.Body)
	})
	t.Run("loop", func(t *testing.T) {
		ins := decodeExpr(t, []byte{0x03, 0x40, 0x0C, 0x00, 0x0B, 0x0B})
		require.Equal(t, OpLoop, ins[0].Opcode)
		imm := ins[0].Imm.(BlockImm)
		assert.Equal(t, OpBr, imm.Body[0].Opcode)
	})
}

func TestDecodeIfElse(t *testing.T) {
	t.Run("with else", func(t *testing.T) {
		ins := decodeExpr(t, []byte{0x04, 0x40, 0x01, 0x05, 0x00, 0x0B, 0x0B})
		require.Len(t, ins, 1)
		imm := ins[0].Imm.(IfElseImm)
		assert.Equal(t, BlockType{Kind: BlockKindEmpty}, imm.Type)
		require.Len(t, imm.Then, 1)
		assert.Equal(t, OpNop, imm.Then[0].Opcode)
		require.Len(t, imm.Else, 1)
		assert.Equal(t, OpUnreachable, imm.Else[0].Opcode)
	})
	t.Run("without else", func(t *testing.T) {
		ins := decodeExpr(t, []byte{0x04, 0x40, 0x01, 0x0B, 0x0B})
		imm := ins[0].Imm.(IfImm)
		require.Len(t, imm.Then, 1)
		assert.Equal(t, OpNop, imm.Then[0].Opcode)
	})
	t.Run("else outside if", func(t *testing.T) {
		_, err := decodeExprErr([]byte{0x02, 0x40, 0x05, 0x0B, 0x0B})
		require.ErrorIs(t, err, ErrInvalidOpcode)
	})
}

// nestedBlocks builds n nested empty blocks around a nop, terminated as a
// complete expression.
func nestedBlocks(n int) []byte {
	b := make([]byte, 0, 2*n+2)
	for i := 0; i < n; i++ {
		b = append(b, OpBlock, BlockTypeEmpty)
	}
	b = append(b, OpNop)
	for i := 0; i < n; i++ {
		b = append(b, OpEnd)
	}
	return append(b, OpEnd)
}

func TestNestingDepthLimit(t *testing.T) {
	t.Run("default limit", func(t *testing.T) {
		_, err := decodeExprErr(nestedBlocks(10000))
		require.ErrorIs(t, err, ErrDepthExceeded)

		ins, err := decodeExprErr(nestedBlocks(DefaultMaxDepth))
		require.NoError(t, err)
		require.Len(t, ins, 1)
	})
	t.Run("custom limit", func(t *testing.T) {
		_, err := decodeExprErr(nestedBlocks(4), MaxDepth(3))
		require.ErrorIs(t, err, ErrDepthExceeded)

		_, err = decodeExprErr(nestedBlocks(3), MaxDepth(3))
		require.NoError(t, err)

		_, err = decodeExprErr(nestedBlocks(10000), MaxDepth(20000))
		require.NoError(t, err)
	})
}

func TestReservedByteChecks(t *testing.T) {
	_, err := decodeExprErr([]byte{0x3F, 0x01, 0x0B})
	require.ErrorIs(t, err, ErrInvalidDiscriminant)

	ins, err := decodeExprErr([]byte{0x3F, 0x01, 0x0B}, Lenient())
	require.NoError(t, err)
	assert.Equal(t, OpMemorySize, ins[0].Opcode)

	_, err = decodeExprErr([]byte{0x40, 0x01, 0x0B})
	require.ErrorIs(t, err, ErrInvalidDiscriminant)
}

func TestDecodeMiscInstructions(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  Instruction
	}{
		{name: "i32.trunc_sat_f32_s", input: []byte{0xFC, 0x00}, want: Instruction{Opcode: OpPrefixMisc, SubOpcode: MiscI32TruncSatF32S}},
		{name: "memory.init", input: []byte{0xFC, 0x08, 0x02, 0x00}, want: Instruction{Opcode: OpPrefixMisc, SubOpcode: MiscMemoryInit, Imm: MemoryInitImm{DataIdx: 2}}},
		{name: "data.drop", input: []byte{0xFC, 0x09, 0x01}, want: Instruction{Opcode: OpPrefixMisc, SubOpcode: MiscDataDrop, Imm: DataDropImm{DataIdx: 1}}},
		{name: "memory.copy", input: []byte{0xFC, 0x0A, 0x00, 0x00}, want: Instruction{Opcode: OpPrefixMisc, SubOpcode: MiscMemoryCopy}},
		{name: "memory.fill", input: []byte{0xFC, 0x0B, 0x00}, want: Instruction{Opcode: OpPrefixMisc, SubOpcode: MiscMemoryFill}},
		{name: "table.init", input: []byte{0xFC, 0x0C, 0x05, 0x01}, want: Instruction{Opcode: OpPrefixMisc, SubOpcode: MiscTableInit, Imm: TableInitImm{ElemIdx: 5, TableIdx: 1}}},
		{name: "elem.drop", input: []byte{0xFC, 0x0D, 0x04}, want: Instruction{Opcode: OpPrefixMisc, SubOpcode: MiscElemDrop, Imm: ElemDropImm{ElemIdx: 4}}},
		{name: "table.copy", input: []byte{0xFC, 0x0E, 0x02, 0x03}, want: Instruction{Opcode: OpPrefixMisc, SubOpcode: MiscTableCopy, Imm: TableCopyImm{DstTable: 2, SrcTable: 3}}},
		{name: "table.grow", input: []byte{0xFC, 0x0F, 0x01}, want: Instruction{Opcode: OpPrefixMisc, SubOpcode: MiscTableGrow, Imm: TableImm{TableIdx: 1}}},
		{name: "table.fill", input: []byte{0xFC, 0x11, 0x00}, want: Instruction{Opcode: OpPrefixMisc, SubOpcode: MiscTableFill, Imm: TableImm{TableIdx: 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := decodeExpr(t, append(tt.input, OpEnd))
			require.Len(t, ins, 1)
			assert.Equal(t, tt.want, ins[0])
		})
	}

	t.Run("unknown sub-opcode", func(t *testing.T) {
		_, err := decodeExprErr([]byte{0xFC, 0x12, 0x0B})
		require.ErrorIs(t, err, ErrInvalidOpcode)
	})
	t.Run("memory.init nonzero reserved byte", func(t *testing.T) {
		_, err := decodeExprErr([]byte{0xFC, 0x08, 0x02, 0x01, 0x0B})
		require.ErrorIs(t, err, ErrInvalidDiscriminant)

		_, err = decodeExprErr([]byte{0xFC, 0x08, 0x02, 0x01, 0x0B}, Lenient())
		require.NoError(t, err)
	})
}

func TestDecodeVectorInstructions(t *testing.T) {
	constBytes := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	t.Run("v128.load", func(t *testing.T) {
		ins := decodeExpr(t, []byte{0xFD, 0x00, 0x04, 0x10, OpEnd})
		assert.Equal(t, Instruction{Opcode: OpPrefixSIMD, SubOpcode: SimdV128Load, Imm: MemArg{Align: 4, Offset: 16}}, ins[0])
	})
	t.Run("v128.const", func(t *testing.T) {
		ins := decodeExpr(t, append(append([]byte{0xFD, 0x0C}, constBytes...), OpEnd))
		imm := ins[0].Imm.(V128Imm)
		assert.Equal(t, constBytes, imm.Bytes[:])
	})
	t.Run("i8x16.shuffle", func(t *testing.T) {
		ins := decodeExpr(t, append(append([]byte{0xFD, 0x0D}, constBytes...), OpEnd))
		imm := ins[0].Imm.(ShuffleImm)
		assert.Equal(t, constBytes, imm.Lanes[:])
	})
	t.Run("extract lane", func(t *testing.T) {
		ins := decodeExpr(t, []byte{0xFD, 0x15, 0x03, OpEnd})
		assert.Equal(t, Instruction{Opcode: OpPrefixSIMD, SubOpcode: SimdI8x16ExtractLaneS, Imm: LaneImm{LaneIdx: 3}}, ins[0])
	})
	t.Run("load lane", func(t *testing.T) {
		ins := decodeExpr(t, []byte{0xFD, 0x54, 0x00, 0x08, 0x05, OpEnd})
		assert.Equal(t, Instruction{Opcode: OpPrefixSIMD, SubOpcode: SimdV128Load8Lane, Imm: MemLaneImm{Mem: MemArg{Align: 0, Offset: 8}, LaneIdx: 5}}, ins[0])
	})
	t.Run("load zero", func(t *testing.T) {
		ins := decodeExpr(t, []byte{0xFD, 0x5C, 0x02, 0x00, OpEnd})
		assert.Equal(t, Instruction{Opcode: OpPrefixSIMD, SubOpcode: SimdV128Load32Zero, Imm: MemArg{Align: 2}}, ins[0])
	})
	t.Run("plain vector op", func(t *testing.T) {
		ins := decodeExpr(t, []byte{0xFD, 0x23, OpEnd})
		assert.Equal(t, Instruction{Opcode: OpPrefixSIMD, SubOpcode: 0x23}, ins[0])
	})
	t.Run("high plain op", func(t *testing.T) {
		// 0xFF encodes as two LEB groups.
		ins := decodeExpr(t, []byte{0xFD, 0xFF, 0x01, OpEnd})
		assert.Equal(t, Instruction{Opcode: OpPrefixSIMD, SubOpcode: 0xFF}, ins[0])
	})
	t.Run("sub-opcode out of range", func(t *testing.T) {
		_, err := decodeExprErr([]byte{0xFD, 0x80, 0x02, OpEnd})
		require.ErrorIs(t, err, ErrInvalidOpcode)

		ins, err := decodeExprErr([]byte{0xFD, 0x80, 0x02, OpEnd}, Lenient())
		require.NoError(t, err)
		assert.Equal(t, Instruction{Opcode: OpPrefixSIMD, SubOpcode: 256}, ins[0])
	})
}

// tier1Operands returns the smallest valid operand encoding for a
// single-byte opcode's immediate shape.
func tier1Operands(shape immShape) []byte {
	switch shape {
	case shapeBlock, shapeIf:
		return []byte{0x40, 0x0B}
	case shapeLabel, shapeCall, shapeLocal, shapeGlobal, shapeTable,
		shapeRefFunc, shapeI32Const, shapeI64Const, shapeMemReserved:
		return []byte{0x00}
	case shapeBrTable, shapeCallIndirect, shapeMemArg:
		return []byte{0x00, 0x00}
	case shapeSelectTypes:
		return []byte{0x01, 0x7F}
	case shapeF32Const:
		return make([]byte, 4)
	case shapeF64Const:
		return make([]byte, 8)
	case shapeRefNull:
		return []byte{0x70}
	}
	return nil
}

func tier1WantImm(shape immShape) any {
	switch shape {
	case shapeBlock:
		return BlockImm{}
	case shapeIf:
		return IfImm{}
	case shapeLabel:
		return BranchImm{}
	case shapeBrTable:
		return BrTableImm{}
	case shapeCall:
		return CallImm{}
	case shapeCallIndirect:
		return CallIndirectImm{}
	case shapeSelectTypes:
		return SelectTypeImm{}
	case shapeLocal:
		return LocalImm{}
	case shapeGlobal:
		return GlobalImm{}
	case shapeTable:
		return TableImm{}
	case shapeMemArg:
		return MemArg{}
	case shapeI32Const:
		return I32Imm{}
	case shapeI64Const:
		return I64Imm{}
	case shapeF32Const:
		return F32Imm{}
	case shapeF64Const:
		return F64Imm{}
	case shapeRefNull:
		return RefNullImm{}
	case shapeRefFunc:
		return RefFuncImm{}
	}
	return nil
}

// TestEveryOpcodeDecodes walks the dispatch tables themselves: every defined
// opcode and sub-opcode, fed its canonical minimal encoding, must decode to
// its own variant with the immediate type its shape dictates.
func TestEveryOpcodeDecodes(t *testing.T) {
	t.Run("single byte", func(t *testing.T) {
		for _, rg := range tier1Ranges {
			if rg.shape == shapePrefixMisc || rg.shape == shapePrefixSIMD {
				continue
			}
			for op := int(rg.lo); op <= int(rg.hi); op++ {
				input := append([]byte{byte(op)}, tier1Operands(rg.shape)...)
				ins := decodeExpr(t, append(input, OpEnd))
				require.Len(t, ins, 1, "opcode 0x%02X", op)
				assert.Equal(t, byte(op), ins[0].Opcode)
				if want := tier1WantImm(rg.shape); want != nil {
					assert.IsType(t, want, ins[0].Imm, "opcode 0x%02X", op)
				} else {
					assert.Nil(t, ins[0].Imm, "opcode 0x%02X", op)
				}
			}
		}
	})

	t.Run("misc prefix", func(t *testing.T) {
		operands := map[miscShape][]byte{
			miscDataZero:  {0x00, 0x00},
			miscDataIdx:   {0x00},
			miscZeroZero:  {0x00, 0x00},
			miscZero:      {0x00},
			miscElemTable: {0x00, 0x00},
			miscElemIdx:   {0x00},
			miscTablePair: {0x00, 0x00},
			miscTableIdx:  {0x00},
		}
		wantImm := map[miscShape]any{
			miscDataZero:  MemoryInitImm{},
			miscDataIdx:   DataDropImm{},
			miscElemTable: TableInitImm{},
			miscElemIdx:   ElemDropImm{},
			miscTablePair: TableCopyImm{},
			miscTableIdx:  TableImm{},
		}
		for sub, shape := range miscShapes {
			input := append([]byte{OpPrefixMisc, byte(sub)}, operands[shape]...)
			ins := decodeExpr(t, append(input, OpEnd))
			require.Len(t, ins, 1, "sub-opcode %d", sub)
			assert.Equal(t, OpPrefixMisc, ins[0].Opcode)
			assert.Equal(t, sub, ins[0].SubOpcode)
			if want, ok := wantImm[shape]; ok {
				assert.IsType(t, want, ins[0].Imm, "sub-opcode %d", sub)
			} else {
				assert.Nil(t, ins[0].Imm, "sub-opcode %d", sub)
			}
		}
	})

	t.Run("vector prefix", func(t *testing.T) {
		operands := map[simdShape][]byte{
			simdMemArg:  {0x00, 0x00},
			simdConst:   make([]byte, 16),
			simdShuffle: make([]byte, 16),
			simdLane:    {0x00},
			simdMemLane: {0x00, 0x00, 0x00},
		}
		wantImm := map[simdShape]any{
			simdMemArg:  MemArg{},
			simdConst:   V128Imm{},
			simdShuffle: ShuffleImm{},
			simdLane:    LaneImm{},
			simdMemLane: MemLaneImm{},
		}
		for sub := uint32(0); sub <= SimdMax; sub++ {
			shape := simdShapeOf(sub)
			require.NotEqual(t, simdInvalid, shape, "sub-opcode %d has no shape", sub)

			input := append([]byte{OpPrefixSIMD}, binary.EncodeUint(uint64(sub))...)
			input = append(input, operands[shape]...)
			ins := decodeExpr(t, append(input, OpEnd))
			require.Len(t, ins, 1, "sub-opcode %d", sub)
			assert.Equal(t, OpPrefixSIMD, ins[0].Opcode)
			assert.Equal(t, sub, ins[0].SubOpcode)
			if want, ok := wantImm[shape]; ok {
				assert.IsType(t, want, ins[0].Imm, "sub-opcode %d", sub)
			} else {
				assert.Nil(t, ins[0].Imm, "sub-opcode %d", sub)
			}
		}
	})
}

func TestUnterminatedExpression(t *testing.T) {
	_, err := decodeExprErr([]byte{0x01})
	require.ErrorIs(t, err, ErrUnexpectedEnd)

	_, err = decodeExprErr([]byte{0x02, 0x40, 0x01, 0x0B})
	require.ErrorIs(t, err, ErrUnexpectedEnd)
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		input []byte
		want  string
	}{
		{input: []byte{0x01}, want: "nop"},
		{input: []byte{0x0C, 0x02}, want: "br 2"},
		{input: []byte{0x0E, 0x02, 0x00, 0x01, 0x02}, want: "br_table 0 1 2"},
		{input: []byte{0x20, 0x00}, want: "local.get 0"},
		{input: []byte{0x29, 0x03, 0x10}, want: "i64.load align=3 offset=16"},
		{input: []byte{0x41, 0x7B}, want: "i32.const -5"},
		{input: []byte{0xFC, 0x0A, 0x00, 0x00}, want: "memory.copy"},
		{input: []byte{0xFD, 0x15, 0x03}, want: "i8x16.extract_lane_s 3"},
		{input: []byte{0xFD, 0x23}, want: "simd.35"},
	}

	for _, tt := range tests {
		ins := decodeExpr(t, append(tt.input, OpEnd))
		require.Len(t, ins, 1)
		assert.Equal(t, tt.want, ins[0].String())
	}
}

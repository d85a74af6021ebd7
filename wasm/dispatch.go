package wasm

// The instruction decoder is table-driven: each tier maps its opcode or
// sub-opcode space to an immediate shape, and the decoder interprets the
// shape. Adding an opcode means adding a table row, not a new branch, and
// two opcodes can never silently share a variant: the opcode/sub-opcode is
// always preserved on the decoded instruction.

// immShape classifies the immediate operands of a single-byte opcode.
type immShape byte

const (
	shapeInvalid immShape = iota
	shapeNone
	shapeBlock        // blocktype + nested body
	shapeIf           // blocktype + then body, optional else body
	shapeLabel        // one label index
	shapeBrTable      // label vector + default label
	shapeCall         // function index
	shapeCallIndirect // type index + table index
	shapeSelectTypes  // value type vector
	shapeLocal        // local index
	shapeGlobal       // global index
	shapeTable        // table index
	shapeMemArg       // alignment + offset
	shapeMemReserved  // one reserved zero byte
	shapeI32Const
	shapeI64Const
	shapeF32Const
	shapeF64Const
	shapeRefNull // heap type
	shapeRefFunc // function index
	shapePrefixMisc
	shapePrefixSIMD
)

type opRange struct {
	lo, hi byte
	shape  immShape
}

// tier1Ranges lists the defined single-byte opcode space. Bytes outside
// every range decode to an invalid-opcode error.
var tier1Ranges = []opRange{
	{OpUnreachable, OpNop, shapeNone},
	{OpBlock, OpLoop, shapeBlock},
	{OpIf, OpIf, shapeIf},
	{OpBr, OpBrIf, shapeLabel},
	{OpBrTable, OpBrTable, shapeBrTable},
	{OpReturn, OpReturn, shapeNone},
	{OpCall, OpCall, shapeCall},
	{OpCallIndirect, OpCallIndirect, shapeCallIndirect},
	{OpDrop, OpSelect, shapeNone},
	{OpSelectType, OpSelectType, shapeSelectTypes},
	{OpLocalGet, OpLocalTee, shapeLocal},
	{OpGlobalGet, OpGlobalSet, shapeGlobal},
	{OpTableGet, OpTableSet, shapeTable},
	{OpI32Load, OpI64Store32, shapeMemArg},
	{OpMemorySize, OpMemoryGrow, shapeMemReserved},
	{OpI32Const, OpI32Const, shapeI32Const},
	{OpI64Const, OpI64Const, shapeI64Const},
	{OpF32Const, OpF32Const, shapeF32Const},
	{OpF64Const, OpF64Const, shapeF64Const},
	{OpI32Eqz, OpI64Extend32S, shapeNone},
	{OpRefNull, OpRefNull, shapeRefNull},
	{OpRefIsNull, OpRefIsNull, shapeNone},
	{OpRefFunc, OpRefFunc, shapeRefFunc},
	{OpPrefixMisc, OpPrefixMisc, shapePrefixMisc},
	{OpPrefixSIMD, OpPrefixSIMD, shapePrefixSIMD},
}

var tier1Shapes = buildTier1Shapes()

func buildTier1Shapes() [256]immShape {
	var t [256]immShape
	for _, r := range tier1Ranges {
		for op := int(r.lo); op <= int(r.hi); op++ {
			t[op] = r.shape
		}
	}
	return t
}

// miscShape classifies the immediates of a 0xFC sub-opcode.
type miscShape byte

const (
	miscInvalid   miscShape = iota
	miscNone                // saturating truncations
	miscDataZero            // memory.init: data index + reserved zero byte
	miscDataIdx             // data.drop
	miscZeroZero            // memory.copy: two reserved zero bytes
	miscZero                // memory.fill: one reserved zero byte
	miscElemTable           // table.init: element index + table index
	miscElemIdx             // elem.drop
	miscTablePair           // table.copy: destination + source table index
	miscTableIdx            // table.grow, table.size, table.fill
)

var miscShapes = map[uint32]miscShape{
	MiscI32TruncSatF32S: miscNone,
	MiscI32TruncSatF32U: miscNone,
	MiscI32TruncSatF64S: miscNone,
	MiscI32TruncSatF64U: miscNone,
	MiscI64TruncSatF32S: miscNone,
	MiscI64TruncSatF32U: miscNone,
	MiscI64TruncSatF64S: miscNone,
	MiscI64TruncSatF64U: miscNone,
	MiscMemoryInit:      miscDataZero,
	MiscDataDrop:        miscDataIdx,
	MiscMemoryCopy:      miscZeroZero,
	MiscMemoryFill:      miscZero,
	MiscTableInit:       miscElemTable,
	MiscElemDrop:        miscElemIdx,
	MiscTableCopy:       miscTablePair,
	MiscTableGrow:       miscTableIdx,
	MiscTableSize:       miscTableIdx,
	MiscTableFill:       miscTableIdx,
}

// simdShape classifies the immediates of a 0xFD sub-opcode.
type simdShape byte

const (
	simdInvalid simdShape = iota
	simdNone
	simdMemArg  // loads, store, zero-extending loads
	simdConst   // 16-byte constant
	simdShuffle // 16-byte lane mask
	simdLane    // one lane index byte
	simdMemLane // memarg + lane index byte
)

type simdRange struct {
	lo, hi uint32
	shape  simdShape
}

var simdRanges = []simdRange{
	{SimdV128Load, SimdV128Store, simdMemArg},
	{SimdV128Const, SimdV128Const, simdConst},
	{SimdI8x16Shuffle, SimdI8x16Shuffle, simdShuffle},
	{SimdI8x16Swizzle, SimdF64x2Splat, simdNone},
	{SimdI8x16ExtractLaneS, SimdF64x2ReplaceLane, simdLane},
	{SimdF64x2ReplaceLane + 1, SimdV128Load8Lane - 1, simdNone},
	{SimdV128Load8Lane, SimdV128Store64Lane, simdMemLane},
	{SimdV128Load32Zero, SimdV128Load64Zero, simdMemArg},
	{SimdV128Load64Zero + 1, SimdMax, simdNone},
}

func simdShapeOf(sub uint32) simdShape {
	for _, r := range simdRanges {
		if sub >= r.lo && sub <= r.hi {
			return r.shape
		}
	}
	return simdInvalid
}

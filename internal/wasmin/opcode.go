package wasmin

// Opcode enumerates the WebAssembly instructions this compiler accepts:
// the MVP set plus the post-MVP extensions spec.md §1 names in scope
// (bulk-memory, reference types, sign-extension, non-trapping
// float-to-int, saturating truncation). SIMD and threads/atomics
// opcodes are deliberately absent. The classifier (internal/ir) does not
// report an opcode it has no case for as UnsupportedInstruction:
// ir.StackEffect panics on it.
//
// Numeric values are assigned in declaration order (iota); they do not
// match the Wasm binary format's opcode bytes.
type Opcode uint32

const (
	OpUnreachable Opcode = iota
	OpNop
	OpBlock
	OpLoop
	OpIf
	OpElse
	OpEnd
	OpBr
	OpBrIf
	OpBrTable
	OpReturn
	OpCall
	OpCallIndirect

	OpDrop
	OpSelect
	OpSelectT // select with explicit type immediate

	OpLocalGet
	OpLocalSet
	OpLocalTee
	OpGlobalGet
	OpGlobalSet

	OpTableGet
	OpTableSet
	OpTableInit
	OpElemDrop
	OpTableCopy
	OpTableGrow
	OpTableSize
	OpTableFill

	OpI32Load
	OpI64Load
	OpF32Load
	OpF64Load
	OpI32Load8S
	OpI32Load8U
	OpI32Load16S
	OpI32Load16U
	OpI64Load8S
	OpI64Load8U
	OpI64Load16S
	OpI64Load16U
	OpI64Load32S
	OpI64Load32U
	OpI32Store
	OpI64Store
	OpF32Store
	OpF64Store
	OpI32Store8
	OpI32Store16
	OpI64Store8
	OpI64Store16
	OpI64Store32
	OpMemorySize
	OpMemoryGrow
	OpMemoryInit
	OpDataDrop
	OpMemoryCopy
	OpMemoryFill

	OpI32Const
	OpI64Const
	OpF32Const
	OpF64Const

	OpRefNull
	OpRefIsNull
	OpRefFunc

	// Comparisons and arithmetic, grouped by type. The classifier treats
	// the i32-comparison subrange specially for test fusion (spec.md
	// §4.F): OpI32Eqz through OpI32GeU must stay contiguous.
	OpI32Eqz
	OpI32Eq
	OpI32Ne
	OpI32LtS
	OpI32LtU
	OpI32GtS
	OpI32GtU
	OpI32LeS
	OpI32LeU
	OpI32GeS
	OpI32GeU

	OpI64Eqz
	OpI64Eq
	OpI64Ne
	OpI64LtS
	OpI64LtU
	OpI64GtS
	OpI64GtU
	OpI64LeS
	OpI64LeU
	OpI64GeS
	OpI64GeU

	OpF32Eq
	OpF32Ne
	OpF32Lt
	OpF32Gt
	OpF32Le
	OpF32Ge

	OpF64Eq
	OpF64Ne
	OpF64Lt
	OpF64Gt
	OpF64Le
	OpF64Ge

	OpI32Clz
	OpI32Ctz
	OpI32Popcnt
	OpI32Add
	OpI32Sub
	OpI32Mul
	OpI32DivS
	OpI32DivU
	OpI32RemS
	OpI32RemU
	OpI32And
	OpI32Or
	OpI32Xor
	OpI32Shl
	OpI32ShrS
	OpI32ShrU
	OpI32Rotl
	OpI32Rotr

	OpI64Clz
	OpI64Ctz
	OpI64Popcnt
	OpI64Add
	OpI64Sub
	OpI64Mul
	OpI64DivS
	OpI64DivU
	OpI64RemS
	OpI64RemU
	OpI64And
	OpI64Or
	OpI64Xor
	OpI64Shl
	OpI64ShrS
	OpI64ShrU
	OpI64Rotl
	OpI64Rotr

	OpF32Abs
	OpF32Neg
	OpF32Ceil
	OpF32Floor
	OpF32Trunc
	OpF32Nearest
	OpF32Sqrt
	OpF32Add
	OpF32Sub
	OpF32Mul
	OpF32Div
	OpF32Min
	OpF32Max
	OpF32Copysign

	OpF64Abs
	OpF64Neg
	OpF64Ceil
	OpF64Floor
	OpF64Trunc
	OpF64Nearest
	OpF64Sqrt
	OpF64Add
	OpF64Sub
	OpF64Mul
	OpF64Div
	OpF64Min
	OpF64Max
	OpF64Copysign

	OpI32WrapI64
	OpI32TruncF32S
	OpI32TruncF32U
	OpI32TruncF64S
	OpI32TruncF64U
	OpI64ExtendI32S
	OpI64ExtendI32U
	OpI64TruncF32S
	OpI64TruncF32U
	OpI64TruncF64S
	OpI64TruncF64U
	OpF32ConvertI32S
	OpF32ConvertI32U
	OpF32ConvertI64S
	OpF32ConvertI64U
	OpF32DemoteF64
	OpF64ConvertI32S
	OpF64ConvertI32U
	OpF64ConvertI64S
	OpF64ConvertI64U
	OpF64PromoteF32
	OpI32ReinterpretF32
	OpI64ReinterpretF64
	OpF32ReinterpretI32
	OpF64ReinterpretI64

	OpI32Extend8S
	OpI32Extend16S
	OpI64Extend8S
	OpI64Extend16S
	OpI64Extend32S

	OpI32TruncSatF32S
	OpI32TruncSatF32U
	OpI32TruncSatF64S
	OpI32TruncSatF64U
	OpI64TruncSatF32S
	OpI64TruncSatF32U
	OpI64TruncSatF64S
	OpI64TruncSatF64U
)

// IsI32Compare reports whether op is one of the i32 comparison family
// (including i32.eqz) eligible for test fusion with a following br_if,
// select, or if (spec.md §4.F).
func (op Opcode) IsI32Compare() bool {
	return op >= OpI32Eqz && op <= OpI32GeU
}

// BlockType describes the signature of a block/loop/if construct: either
// an empty type, a single value type, or an index into the module's type
// table (the general multi-value form).
type BlockType struct {
	Empty     bool
	ValType   ValType
	HasVal    bool
	TypeIndex uint32
	HasIndex  bool
}

// MemArg is the alignment/offset immediate pair carried by every memory
// load/store instruction.
type MemArg struct {
	Align  uint32
	Offset uint32
}

// Instr is one instruction in a function body. Not every field is
// meaningful for every Op; the classifier (internal/ir) knows which
// fields each opcode uses.
type Instr struct {
	Op Opcode

	// Structured control flow. Body holds the then-arm (or the sole body
	// for block/loop); Body2 holds the else-arm when Op == OpIf.
	Block BlockType
	Body  []Instr
	Body2 []Instr

	// Branch targets, as relative block-nesting depths (the Wasm binary
	// format's own convention).
	LabelIdx   uint32
	LabelIdxs  []uint32 // br_table
	DefaultIdx uint32   // br_table

	FuncIdx   uint32
	TypeIdx   uint32
	TableIdx  uint32
	LocalIdx  uint32
	GlobalIdx uint32
	MemIdx    uint32
	ElemIdx   uint32
	DataIdx   uint32

	Mem MemArg

	I32 int32
	I64 int64
	F32 float32
	F64 float64

	RefType ValType // ref.null's type immediate
}

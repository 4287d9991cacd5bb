// Package rtlib is the runtime support library (spec.md §4.D): a fixed
// roster of roughly a hundred helper routines for the handful of
// WebAssembly operations that have no single corresponding Glulx opcode
// — swaps, bounds checks, typed memory access, unsigned division,
// bit-counting, the 64-bit integer arithmetic library, float/double
// rounding and saturating conversions, bulk memory/table operations, and
// trap thunks.
//
// Every routine here is a Go function that *emits* a Glulx subroutine (a
// []glulxasm.Item bound to a function label) — it runs on the target VM
// once assembled, not on the compiling host. This mirrors how
// `internal/moremath` in the teacher provides float intrinsics as plain
// Go functions that its compiler's codegen calls into: the shape is the
// same (a fixed library of numeric helpers factored out of the
// instruction-by-instruction codegen), only the output is VM code instead
// of a host-executed float result.
package rtlib

import "github.com/glulxvm/wasm2glulx/internal/glulxasm"

// Library holds the label of every routine, so codegen (internal/codegen)
// only ever needs to hold a *Library and call rt.Divu, rt.Add64, and so
// on — it never re-derives or re-emits the routines itself.
type Library struct {
	Swap        glulxasm.Label
	Swaps       glulxasm.Label
	Swaparray   glulxasm.Label
	Swapunistr  glulxasm.Label

	Checkaddr    glulxasm.Label
	Checkglkaddr glulxasm.Label
	Checkstr     glulxasm.Label
	Checkunistr  glulxasm.Label

	Memload8   glulxasm.Label
	Memload16  glulxasm.Label
	Memload32  glulxasm.Label
	Memload64  glulxasm.Label
	Memstore8  glulxasm.Label
	Memstore16 glulxasm.Label
	Memstore32 glulxasm.Label
	Memstore64 glulxasm.Label

	Divu glulxasm.Label
	Remu glulxasm.Label
	Rotl glulxasm.Label
	Rotr glulxasm.Label
	Clz  glulxasm.Label
	Ctz  glulxasm.Label
	Popcnt glulxasm.Label

	Eqz glulxasm.Label
	Eq  glulxasm.Label
	Ne  glulxasm.Label
	Lt  glulxasm.Label
	Ltu glulxasm.Label
	Le  glulxasm.Label
	Leu glulxasm.Label
	Gt  glulxasm.Label
	Gtu glulxasm.Label
	Ge  glulxasm.Label
	Geu glulxasm.Label

	Add64    glulxasm.Label
	Sub64    glulxasm.Label
	Mul64    glulxasm.Label
	And64    glulxasm.Label
	Or64     glulxasm.Label
	Xor64    glulxasm.Label
	Shl64    glulxasm.Label
	ShrS64   glulxasm.Label
	ShrU64   glulxasm.Label
	Rotl64   glulxasm.Label
	Rotr64   glulxasm.Label
	DivS64   glulxasm.Label
	DivU64   glulxasm.Label
	RemS64   glulxasm.Label
	RemU64   glulxasm.Label
	Clz64    glulxasm.Label
	Ctz64    glulxasm.Label
	Popcnt64 glulxasm.Label

	Eqz64 glulxasm.Label
	Eq64  glulxasm.Label
	Ne64  glulxasm.Label
	LtS64 glulxasm.Label
	LtU64 glulxasm.Label
	LeS64 glulxasm.Label
	LeU64 glulxasm.Label
	GtS64 glulxasm.Label
	GtU64 glulxasm.Label
	GeS64 glulxasm.Label
	GeU64 glulxasm.Label

	FTrunc    glulxasm.Label
	FNearest  glulxasm.Label
	FMin      glulxasm.Label
	FMax      glulxasm.Label
	FCopysign glulxasm.Label
	DTrunc    glulxasm.Label
	DNearest  glulxasm.Label
	DMin      glulxasm.Label
	DMax      glulxasm.Label
	DCopysign glulxasm.Label

	I32TruncF32S    glulxasm.Label
	I32TruncF32U    glulxasm.Label
	I32TruncF64S    glulxasm.Label
	I32TruncF64U    glulxasm.Label
	I64TruncF32S    glulxasm.Label
	I64TruncF32U    glulxasm.Label
	I64TruncF64S    glulxasm.Label
	I64TruncF64U    glulxasm.Label
	I32TruncSatF32S glulxasm.Label
	I32TruncSatF32U glulxasm.Label
	I32TruncSatF64S glulxasm.Label
	I32TruncSatF64U glulxasm.Label
	I64TruncSatF32S glulxasm.Label
	I64TruncSatF32U glulxasm.Label
	I64TruncSatF64S glulxasm.Label
	I64TruncSatF64U glulxasm.Label

	MemoryInit     glulxasm.Label
	MemoryCopy     glulxasm.Label
	MemoryFill     glulxasm.Label
	MemoryGrow     glulxasm.Label
	TableInitOrCopy glulxasm.Label
	TableGrow      glulxasm.Label
	TableFill      glulxasm.Label
	DataInit       glulxasm.Label
	TableInit      glulxasm.Label

	Trap map[TrapCode]glulxasm.Label

	// ClzTable/CtzTable/PopcntTable are 256-byte ROM lookup tables shared
	// by the bit-counting routines above, grounded on spec.md §4.D's
	// "256-entry table and byte lanes" description.
	ClzTable    glulxasm.Label
	CtzTable    glulxasm.Label
	PopcntTable glulxasm.Label
}

// TrapCode enumerates the WebAssembly trap reasons, each with its own
// thunk that reports a distinct debugtrap code before halting (spec.md
// §4.D "Trap thunks").
type TrapCode int

const (
	TrapUnreachable TrapCode = iota
	TrapIntegerOverflow
	TrapIntegerDivideByZero
	TrapInvalidConversionToInteger
	TrapOutOfBoundsMemoryAccess
	TrapIndirectCallTypeMismatch
	TrapOutOfBoundsTableAccess
	TrapUndefinedElement
	TrapUninitializedElement
	TrapCallStackExhausted
)

// builder threads the Sequencer and Assembly through every routine
// constructor in this package, matching the style of passing a single
// mutable builder through a layout/codegen pass elsewhere in this module.
type builder struct {
	seq *glulxasm.Sequencer
	a   *glulxasm.Assembly
}

// emitFunc allocates a function label, emits its Glulx function header
// (nLocals consecutive 4-byte locals; the call copies the arguments into
// the first of them in call order, and the rest are scratch), and appends
// body as the function's instructions.
func (b *builder) emitFunc(name string, nLocals int, body ...glulxasm.Item) glulxasm.Label {
	return b.emitFuncAt(b.seq.New(glulxasm.KindFunction, name), nLocals, body...)
}

// emitFuncAt emits a function body at a label allocated earlier (used
// for the trap thunks, whose labels are handed out before any routine
// body is built so the rest of the library can reference them).
func (b *builder) emitFuncAt(l glulxasm.Label, nLocals int, body ...glulxasm.Item) glulxasm.Label {
	b.a.EmitROM(glulxasm.ItemLabel{Name: l})
	if nLocals > 0 {
		b.a.EmitROM(glulxasm.ItemFnHeader{LocalRuns: [][2]byte{{4, byte(nLocals)}}})
	} else {
		b.a.EmitROM(glulxasm.ItemFnHeader{})
	}
	b.a.EmitROM(body...)
	return l
}

func instr(op uint32, operands ...glulxasm.Operand) glulxasm.Item {
	return glulxasm.ItemInstr{Instr: glulxasm.NewInstr(op, operands...)}
}

func local(slot uint32) glulxasm.Local { return glulxasm.Local{Slot: slot} }

// callN calls a routine that takes more than three arguments, for which
// Glulx has no direct callfiii-style opcode: push the arguments in
// reverse order, then call with an explicit argument count, per the
// Glulx VM Specification's stack-argument calling convention.
func callN(fn glulxasm.Label, dest glulxasm.Operand, args ...glulxasm.Operand) []glulxasm.Item {
	items := make([]glulxasm.Item, 0, len(args)+1)
	for i := len(args) - 1; i >= 0; i-- {
		items = append(items, instr(glulxasm.OpCopy, args[i], glulxasm.Push{}))
	}
	items = append(items, instr(glulxasm.OpCall, glulxasm.LabelRef{Target: fn}, glulxasm.Imm{Value: int32(len(args))}, dest))
	return items
}

// Build constructs every routine and returns the populated Library. Call
// this once per compilation, after the layout plan exists (several
// routines reference layout labels, e.g. memory bounds checks reference
// the plan's MemCurSize cell) but before function codegen runs, since
// codegen needs the finished Library to call into.
func Build(seq *glulxasm.Sequencer, a *glulxasm.Assembly, memCurSize, memBase, hiReturn glulxasm.Label, memMaxBytes uint32) *Library {
	b := &builder{seq: seq, a: a}
	l := &Library{Trap: map[TrapCode]glulxasm.Label{}}

	// Trap labels are allocated up front (but their bodies emitted last,
	// in buildTraps) so every other routine can reference
	// l.Trap[TrapXxx] as a plain call target regardless of build order.
	for _, code := range []TrapCode{
		TrapUnreachable, TrapIntegerOverflow, TrapIntegerDivideByZero,
		TrapInvalidConversionToInteger, TrapOutOfBoundsMemoryAccess,
		TrapIndirectCallTypeMismatch, TrapOutOfBoundsTableAccess,
		TrapUndefinedElement, TrapUninitializedElement, TrapCallStackExhausted,
	} {
		l.Trap[code] = seq.New(glulxasm.KindFunction, "trap")
	}

	buildSwap(b, l)
	buildCheck(b, l, memCurSize)
	buildMemAccess(b, l, memBase, hiReturn)
	buildIntOps(b, l)
	buildInt64(b, l, hiReturn)
	buildFloat(b, l, hiReturn)
	buildBulk(b, l, memCurSize, memBase, memMaxBytes)
	buildTraps(b, l)

	return l
}

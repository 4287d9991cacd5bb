package rtlib

import "github.com/glulxvm/wasm2glulx/internal/glulxasm"

// WebAssembly linear memory is little-endian; Glulx's own aload/astore
// family always treats multi-byte values as big-endian. Every typed
// memory access therefore swaps the byte order on the way in and out.
// swap/swaps/swaparray/swapunistr are exactly that byte-swap, at 32-bit,
// 16-bit, whole-array, and Unicode-string granularity respectively
// (spec.md §4.D "Endianness swap").

func buildSwap(b *builder, l *Library) {
	l.Swap = emitSwap32(b)
	l.Swaps = emitSwap16(b)
	l.Swaparray = emitSwaparray(b, l)
	l.Swapunistr = emitSwapunistr(b, l)
}

// emitSwap32 byte-reverses a 32-bit value: arg in local0, scratch in
// local1..local3, result returned in local1.
func emitSwap32(b *builder) glulxasm.Label {
	const v, a, c, d = 0, 1, 2, 3
	return b.emitFunc("swap", 4,
		instr(glulxasm.OpBitand, local(v), glulxasm.Imm{Value: 0xFF}, local(a)),
		instr(glulxasm.OpShiftl, local(a), glulxasm.Imm{Value: 24}, local(a)),
		instr(glulxasm.OpBitand, local(v), glulxasm.Imm{Value: 0xFF00}, local(c)),
		instr(glulxasm.OpShiftl, local(c), glulxasm.Imm{Value: 8}, local(c)),
		instr(glulxasm.OpUshiftr, local(v), glulxasm.Imm{Value: 8}, local(d)),
		instr(glulxasm.OpBitand, local(d), glulxasm.Imm{Value: 0xFF00}, local(d)),
		instr(glulxasm.OpUshiftr, local(v), glulxasm.Imm{Value: 24}, local(v)),
		instr(glulxasm.OpBitor, local(a), local(c), local(a)),
		instr(glulxasm.OpBitor, local(a), local(d), local(a)),
		instr(glulxasm.OpBitor, local(a), local(v), local(a)),
		instr(glulxasm.OpReturn, local(a)),
	)
}

// emitSwap16 byte-reverses the low 16 bits of a value; the high 16 bits
// of the argument are ignored and those of the result are zero (memload16
// and memstore16 both call it).
func emitSwap16(b *builder) glulxasm.Label {
	const v, a, c = 0, 1, 2
	return b.emitFunc("swaps", 3,
		instr(glulxasm.OpBitand, local(v), glulxasm.Imm{Value: 0xFF}, local(a)),
		instr(glulxasm.OpShiftl, local(a), glulxasm.Imm{Value: 8}, local(a)),
		instr(glulxasm.OpUshiftr, local(v), glulxasm.Imm{Value: 8}, local(c)),
		instr(glulxasm.OpBitand, local(c), glulxasm.Imm{Value: 0xFF}, local(c)),
		instr(glulxasm.OpBitor, local(a), local(c), local(a)),
		instr(glulxasm.OpReturn, local(a)),
	)
}

// emitSwaparray walks `count` consecutive 32-bit words starting at
// `addr`, swapping each in place. Used to marshal whole Glk-owned arrays
// across the host-call boundary (spec.md §4.J).
func emitSwaparray(b *builder, l *Library) glulxasm.Label {
	const addr, count, i, elemAddr, tmp = 0, 1, 2, 3, 4
	loopStart := b.seq.New(glulxasm.KindROM, "swaparray_loop")
	loopEnd := b.seq.New(glulxasm.KindROM, "swaparray_end")

	return b.emitFunc("swaparray", 5,
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(i)),
		glulxasm.ItemLabel{Name: loopStart},
		instr(glulxasm.OpJgeu, local(i), local(count), glulxasm.BranchTarget{Target: loopEnd}),
		instr(glulxasm.OpShiftl, local(i), glulxasm.Imm{Value: 2}, local(elemAddr)),
		instr(glulxasm.OpAdd, local(elemAddr), local(addr), local(elemAddr)),
		instr(glulxasm.OpAload, local(elemAddr), glulxasm.Imm{Value: 0}, local(tmp)),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Swap}, local(tmp), local(tmp)),
		instr(glulxasm.OpAstore, local(elemAddr), glulxasm.Imm{Value: 0}, local(tmp)),
		instr(glulxasm.OpAdd, local(i), glulxasm.Imm{Value: 1}, local(i)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: loopStart}),
		glulxasm.ItemLabel{Name: loopEnd},
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),
	)
}

// emitSwapunistr walks a NUL-terminated array of 32-bit Unicode code
// points, swapping each in place, stopping at the first zero word.
func emitSwapunistr(b *builder, l *Library) glulxasm.Label {
	const addr, i, elemAddr, tmp = 0, 1, 2, 3
	loopStart := b.seq.New(glulxasm.KindROM, "swapunistr_loop")
	loopEnd := b.seq.New(glulxasm.KindROM, "swapunistr_end")

	return b.emitFunc("swapunistr", 4,
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(i)),
		glulxasm.ItemLabel{Name: loopStart},
		instr(glulxasm.OpShiftl, local(i), glulxasm.Imm{Value: 2}, local(elemAddr)),
		instr(glulxasm.OpAdd, local(elemAddr), local(addr), local(elemAddr)),
		instr(glulxasm.OpAload, local(elemAddr), glulxasm.Imm{Value: 0}, local(tmp)),
		instr(glulxasm.OpJz, local(tmp), glulxasm.BranchTarget{Target: loopEnd}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Swap}, local(tmp), local(tmp)),
		instr(glulxasm.OpAstore, local(elemAddr), glulxasm.Imm{Value: 0}, local(tmp)),
		instr(glulxasm.OpAdd, local(i), glulxasm.Imm{Value: 1}, local(i)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: loopStart}),
		glulxasm.ItemLabel{Name: loopEnd},
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),
	)
}

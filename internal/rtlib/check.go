package rtlib

import "github.com/glulxvm/wasm2glulx/internal/glulxasm"

// buildCheck emits the address-checking family (spec.md §4.D): verify
// that addr+offset+size <= cur_size, branching to the out-of-bounds trap
// on failure. String checkers additionally compute the zero-terminated
// length by scanning forward from addr.
func buildCheck(b *builder, l *Library, memCurSize glulxasm.Label) {
	l.Checkaddr = emitCheckaddr(b, l, memCurSize)
	l.Checkglkaddr = emitCheckglkaddr(b, l)
	l.Checkstr = emitCheckstr(b, l, memCurSize)
	l.Checkunistr = emitCheckunistr(b, l, memCurSize)
}

// emitCheckaddr(addr, size) verifies addr+size <= cur_size; traps
// otherwise. Returns addr unchanged (so call sites can chain it directly
// into the access they're guarding).
func emitCheckaddr(b *builder, l *Library, memCurSize glulxasm.Label) glulxasm.Label {
	const addr, size, end = 0, 1, 2
	ok := b.seq.New(glulxasm.KindROM, "checkaddr_ok")
	return b.emitFunc("checkaddr", 3,
		instr(glulxasm.OpAdd, local(addr), local(size), local(end)),
		instr(glulxasm.OpJleu, local(end), glulxasm.Deref{Target: memCurSize}, glulxasm.BranchTarget{Target: ok}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Trap[TrapOutOfBoundsMemoryAccess]}, glulxasm.Imm{Value: 0}, glulxasm.Discard{}),
		glulxasm.ItemLabel{Name: ok},
		instr(glulxasm.OpReturn, local(addr)),
	)
}

// emitCheckglkaddr(addr, scratchBase, scratchSize) is checkaddr's
// counterpart for arrays handed to a Glk call: such arrays are owned by
// the Glk scratch area, not linear memory, so the bounds are supplied by
// the caller rather than read from a fixed cur_size cell (spec.md §4.J).
// It traps unless scratchBase <= addr < scratchBase+scratchSize, and
// returns addr unchanged.
func emitCheckglkaddr(b *builder, l *Library) glulxasm.Label {
	const addr, scratchBase, scratchSize, end = 0, 1, 2, 3
	ok := b.seq.New(glulxasm.KindROM, "checkglkaddr_ok")
	return b.emitFunc("checkglkaddr", 4,
		instr(glulxasm.OpSub, local(addr), local(scratchBase), local(end)),
		instr(glulxasm.OpJltu, local(end), local(scratchSize), glulxasm.BranchTarget{Target: ok}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Trap[TrapOutOfBoundsMemoryAccess]}, glulxasm.Imm{Value: 0}, glulxasm.Discard{}),
		glulxasm.ItemLabel{Name: ok},
		instr(glulxasm.OpReturn, local(addr)),
	)
}

// emitCheckstr(addr) bounds-checks a NUL-terminated Latin-1 string
// starting at addr and returns its length (not counting the terminator).
func emitCheckstr(b *builder, l *Library, memCurSize glulxasm.Label) glulxasm.Label {
	const addr, i, byteAddr, byteVal = 0, 1, 2, 3
	loop := b.seq.New(glulxasm.KindROM, "checkstr_loop")
	found := b.seq.New(glulxasm.KindROM, "checkstr_found")
	end := b.seq.New(glulxasm.KindROM, "checkstr_end")
	return b.emitFunc("checkstr", 4,
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(i)),
		glulxasm.ItemLabel{Name: loop},
		instr(glulxasm.OpAdd, local(addr), local(i), local(byteAddr)),
		instr(glulxasm.OpJltu, local(byteAddr), glulxasm.Deref{Target: memCurSize}, glulxasm.BranchTarget{Target: found}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Trap[TrapOutOfBoundsMemoryAccess]}, glulxasm.Imm{Value: 0}, glulxasm.Discard{}),
		glulxasm.ItemLabel{Name: found},
		instr(glulxasm.OpAloadb, local(byteAddr), glulxasm.Imm{Value: 0}, local(byteVal)),
		instr(glulxasm.OpJz, local(byteVal), glulxasm.BranchTarget{Target: end}),
		instr(glulxasm.OpAdd, local(i), glulxasm.Imm{Value: 1}, local(i)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: loop}),
		glulxasm.ItemLabel{Name: end},
		instr(glulxasm.OpReturn, local(i)),
	)
}

// emitCheckunistr is checkstr's 32-bit-code-point counterpart, used for
// strings passed to the Unicode Glk stream calls.
func emitCheckunistr(b *builder, l *Library, memCurSize glulxasm.Label) glulxasm.Label {
	const addr, i, elemAddr, word = 0, 1, 2, 3
	loop := b.seq.New(glulxasm.KindROM, "checkunistr_loop")
	boundOK := b.seq.New(glulxasm.KindROM, "checkunistr_boundok")
	end := b.seq.New(glulxasm.KindROM, "checkunistr_end")
	return b.emitFunc("checkunistr", 4,
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(i)),
		glulxasm.ItemLabel{Name: loop},
		instr(glulxasm.OpShiftl, local(i), glulxasm.Imm{Value: 2}, local(elemAddr)),
		instr(glulxasm.OpAdd, local(elemAddr), local(addr), local(elemAddr)),
		instr(glulxasm.OpAdd, local(elemAddr), glulxasm.Imm{Value: 4}, local(word)),
		instr(glulxasm.OpJleu, local(word), glulxasm.Deref{Target: memCurSize}, glulxasm.BranchTarget{Target: boundOK}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Trap[TrapOutOfBoundsMemoryAccess]}, glulxasm.Imm{Value: 0}, glulxasm.Discard{}),
		glulxasm.ItemLabel{Name: boundOK},
		instr(glulxasm.OpAload, local(elemAddr), glulxasm.Imm{Value: 0}, local(word)),
		instr(glulxasm.OpJz, local(word), glulxasm.BranchTarget{Target: end}),
		instr(glulxasm.OpAdd, local(i), glulxasm.Imm{Value: 1}, local(i)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: loop}),
		glulxasm.ItemLabel{Name: end},
		instr(glulxasm.OpReturn, local(i)),
	)
}

package rtlib

import "github.com/glulxvm/wasm2glulx/internal/glulxasm"

const wasmPageSize = 65536

// buildBulk emits the bulk memory/table family (spec.md §4.D):
// memory.init, memory.copy, memory.fill, memory.grow, and their table
// counterparts. Every routine bounds-checks its whole span before
// touching any storage, so a failing check never leaves a partial write
// behind.
//
// Tables are plural — a module can declare more than one — so unlike
// the single-memory routines in memaccess.go, the table routines here
// take each table's base/cur_count cell as a runtime argument rather
// than baking one table's layout in at emit time. Codegen passes the
// specific table's glulxasm.LabelRef at each call site, the same way a
// Glulx call passes any other address argument.
func buildBulk(b *builder, l *Library, memCurSize, memBase glulxasm.Label, memMaxBytes uint32) {
	l.MemoryInit = emitMemoryInit(b, l, memBase)
	l.MemoryCopy = emitMemoryCopy(b, l, memBase)
	l.MemoryFill = emitMemoryFill(b, l, memBase)
	l.MemoryGrow = emitMemoryGrow(b, l, memCurSize, memMaxBytes)

	l.TableInitOrCopy = emitTableInitOrCopy(b, l)
	l.TableGrow = emitTableGrow(b, l)
	l.TableFill = emitTableFill(b, l)
}

// emitMemoryInit(dataBase, dataLen, srcOffset, dstOffset, n) copies n
// bytes from a ROM data blob (dataBase, dataLen) into linear memory at
// dstOffset. dataBase/dataLen are supplied per call site (one data blob
// per data segment, see layout.Plan.DataBlobs), so this routine is
// shared across every memory.init site in the module.
func emitMemoryInit(b *builder, l *Library, memBase glulxasm.Label) glulxasm.Label {
	const dataBase, dataLen, srcOffset, dstOffset, n, srcEnd, dst, i, srcAddr, dstAddr, val = 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10
	boundOK := b.seq.New(glulxasm.KindROM, "memory_init_boundok")
	loop := b.seq.New(glulxasm.KindROM, "memory_init_loop")
	done := b.seq.New(glulxasm.KindROM, "memory_init_done")
	return b.emitFunc("memory_init", 11,
		instr(glulxasm.OpAdd, local(srcOffset), local(n), local(srcEnd)),
		instr(glulxasm.OpJleu, local(srcEnd), local(dataLen), glulxasm.BranchTarget{Target: boundOK}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Trap[TrapOutOfBoundsMemoryAccess]}, glulxasm.Imm{Value: 0}, glulxasm.Discard{}),
		glulxasm.ItemLabel{Name: boundOK},
		instr(glulxasm.OpCallfii, glulxasm.LabelRef{Target: l.Checkaddr}, local(dstOffset), local(n), local(dst)),
		instr(glulxasm.OpAdd, local(dst), glulxasm.LabelRef{Target: memBase}, local(dst)),
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(i)),
		glulxasm.ItemLabel{Name: loop},
		instr(glulxasm.OpJgeu, local(i), local(n), glulxasm.BranchTarget{Target: done}),
		instr(glulxasm.OpAdd, local(dataBase), local(srcOffset), local(srcAddr)),
		instr(glulxasm.OpAdd, local(srcAddr), local(i), local(srcAddr)),
		instr(glulxasm.OpAloadb, local(srcAddr), glulxasm.Imm{Value: 0}, local(val)),
		instr(glulxasm.OpAdd, local(dst), local(i), local(dstAddr)),
		instr(glulxasm.OpAstoreb, local(dstAddr), glulxasm.Imm{Value: 0}, local(val)),
		instr(glulxasm.OpAdd, local(i), glulxasm.Imm{Value: 1}, local(i)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: loop}),
		glulxasm.ItemLabel{Name: done},
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),
	)
}

// emitMemoryCopy(dstOffset, srcOffset, n) copies n bytes within linear
// memory. The source and destination spans may overlap in either
// direction, so the copy direction is chosen the way memmove chooses
// it: backward when the destination starts after the source, forward
// otherwise.
func emitMemoryCopy(b *builder, l *Library, memBase glulxasm.Label) glulxasm.Label {
	const dstOffset, srcOffset, n, dst, src, i, addr, val = 0, 1, 2, 3, 4, 5, 6, 7
	fwd := b.seq.New(glulxasm.KindROM, "memory_copy_fwd")
	fwdLoop := b.seq.New(glulxasm.KindROM, "memory_copy_fwdloop")
	bwdLoop := b.seq.New(glulxasm.KindROM, "memory_copy_bwdloop")
	done := b.seq.New(glulxasm.KindROM, "memory_copy_done")
	return b.emitFunc("memory_copy", 8,
		instr(glulxasm.OpCallfii, glulxasm.LabelRef{Target: l.Checkaddr}, local(dstOffset), local(n), local(dst)),
		instr(glulxasm.OpAdd, local(dst), glulxasm.LabelRef{Target: memBase}, local(dst)),
		instr(glulxasm.OpCallfii, glulxasm.LabelRef{Target: l.Checkaddr}, local(srcOffset), local(n), local(src)),
		instr(glulxasm.OpAdd, local(src), glulxasm.LabelRef{Target: memBase}, local(src)),
		instr(glulxasm.OpJleu, local(dst), local(src), glulxasm.BranchTarget{Target: fwd}),

		// dst > src: copy backward, from the last byte to the first.
		instr(glulxasm.OpCopy, local(n), local(i)),
		glulxasm.ItemLabel{Name: bwdLoop},
		instr(glulxasm.OpJz, local(i), glulxasm.BranchTarget{Target: done}),
		instr(glulxasm.OpSub, local(i), glulxasm.Imm{Value: 1}, local(i)),
		instr(glulxasm.OpAdd, local(src), local(i), local(addr)),
		instr(glulxasm.OpAloadb, local(addr), glulxasm.Imm{Value: 0}, local(val)),
		instr(glulxasm.OpAdd, local(dst), local(i), local(addr)),
		instr(glulxasm.OpAstoreb, local(addr), glulxasm.Imm{Value: 0}, local(val)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: bwdLoop}),

		glulxasm.ItemLabel{Name: fwd},
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(i)),
		glulxasm.ItemLabel{Name: fwdLoop},
		instr(glulxasm.OpJgeu, local(i), local(n), glulxasm.BranchTarget{Target: done}),
		instr(glulxasm.OpAdd, local(src), local(i), local(addr)),
		instr(glulxasm.OpAloadb, local(addr), glulxasm.Imm{Value: 0}, local(val)),
		instr(glulxasm.OpAdd, local(dst), local(i), local(addr)),
		instr(glulxasm.OpAstoreb, local(addr), glulxasm.Imm{Value: 0}, local(val)),
		instr(glulxasm.OpAdd, local(i), glulxasm.Imm{Value: 1}, local(i)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: fwdLoop}),

		glulxasm.ItemLabel{Name: done},
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),
	)
}

// emitMemoryFill(dstOffset, val, n) writes the low byte of val to each
// of n bytes starting at dstOffset.
func emitMemoryFill(b *builder, l *Library, memBase glulxasm.Label) glulxasm.Label {
	const dstOffset, val, n, dst, i, addr = 0, 1, 2, 3, 4, 5
	loop := b.seq.New(glulxasm.KindROM, "memory_fill_loop")
	done := b.seq.New(glulxasm.KindROM, "memory_fill_done")
	return b.emitFunc("memory_fill", 6,
		instr(glulxasm.OpCallfii, glulxasm.LabelRef{Target: l.Checkaddr}, local(dstOffset), local(n), local(dst)),
		instr(glulxasm.OpAdd, local(dst), glulxasm.LabelRef{Target: memBase}, local(dst)),
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(i)),
		glulxasm.ItemLabel{Name: loop},
		instr(glulxasm.OpJgeu, local(i), local(n), glulxasm.BranchTarget{Target: done}),
		instr(glulxasm.OpAdd, local(dst), local(i), local(addr)),
		instr(glulxasm.OpAstoreb, local(addr), glulxasm.Imm{Value: 0}, local(val)),
		instr(glulxasm.OpAdd, local(i), glulxasm.Imm{Value: 1}, local(i)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: loop}),
		glulxasm.ItemLabel{Name: done},
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),
	)
}

// emitMemoryGrow(deltaPages) grows linear memory by deltaPages 64KiB
// pages, rejecting growth past the module's declared maximum or past
// 2^32 bytes, and returns the memory's previous size in pages (or -1 on
// failure) per WebAssembly's memory.grow. On success it updates
// mem_cur_size; the interpreter's own memory map tracks the backing
// storage up to the planner-reserved maximum, so growth never needs to
// relocate anything — only the cur_size cell moves.
func emitMemoryGrow(b *builder, l *Library, memCurSize glulxasm.Label, maxBytes uint32) glulxasm.Label {
	const deltaPages, oldBytes, oldPages, newPages, newBytes = 0, 1, 2, 3, 4
	maxPages := int32(maxBytes / wasmPageSize)
	fail := b.seq.New(glulxasm.KindROM, "memory_grow_fail")
	return b.emitFunc("memory_grow", 5,
		instr(glulxasm.OpCopy, glulxasm.Deref{Target: memCurSize}, local(oldBytes)),
		instr(glulxasm.OpDiv, local(oldBytes), glulxasm.Imm{Value: wasmPageSize}, local(oldPages)),
		instr(glulxasm.OpAdd, local(oldPages), local(deltaPages), local(newPages)),
		// unsigned wraparound in the add, or past the declared maximum.
		instr(glulxasm.OpJltu, local(newPages), local(oldPages), glulxasm.BranchTarget{Target: fail}),
		instr(glulxasm.OpJgtu, local(newPages), glulxasm.Imm{Value: maxPages}, glulxasm.BranchTarget{Target: fail}),
		instr(glulxasm.OpMul, local(newPages), glulxasm.Imm{Value: wasmPageSize}, local(newBytes)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: memCurSize}, glulxasm.Imm{Value: 0}, local(newBytes)),
		instr(glulxasm.OpReturn, local(oldPages)),
		glulxasm.ItemLabel{Name: fail},
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: -1}),
	)
}

// emitTableInitOrCopy(dstBase, dstCurCount, srcBase, srcCount, dstIdx,
// srcIdx, n) copies n 4-byte elements from a source array into a
// destination table, bounds-checking both spans first. dstCurCount is
// the address of the destination table's live count cell (read here);
// srcCount is passed as a plain value — the fixed length of an element
// segment for table.init, or the caller's already-loaded cur_count for
// table.copy — so one routine serves both operations, the source's
// identity and overlap behavior being the only things that differ
// between them. The copy direction is chosen exactly like memory.copy
// so self-copies with overlapping ranges behave correctly.
func emitTableInitOrCopy(b *builder, l *Library) glulxasm.Label {
	const dstBase, dstCurCount, srcBase, srcCount, dstIdx, srcIdx, n, dstEnd, srcEnd, dst, src, i, addr, val, curVal = 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14
	dstOK := b.seq.New(glulxasm.KindROM, "table_initcopy_dstok")
	srcOK := b.seq.New(glulxasm.KindROM, "table_initcopy_srcok")
	fwd := b.seq.New(glulxasm.KindROM, "table_initcopy_fwd")
	fwdLoop := b.seq.New(glulxasm.KindROM, "table_initcopy_fwdloop")
	bwdLoop := b.seq.New(glulxasm.KindROM, "table_initcopy_bwdloop")
	done := b.seq.New(glulxasm.KindROM, "table_initcopy_done")
	return b.emitFunc("table_init_or_copy", 15,
		instr(glulxasm.OpAdd, local(dstIdx), local(n), local(dstEnd)),
		instr(glulxasm.OpAload, local(dstCurCount), glulxasm.Imm{Value: 0}, local(curVal)),
		instr(glulxasm.OpJleu, local(dstEnd), local(curVal), glulxasm.BranchTarget{Target: dstOK}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Trap[TrapOutOfBoundsTableAccess]}, glulxasm.Imm{Value: 0}, glulxasm.Discard{}),
		glulxasm.ItemLabel{Name: dstOK},
		instr(glulxasm.OpAdd, local(srcIdx), local(n), local(srcEnd)),
		instr(glulxasm.OpJleu, local(srcEnd), local(srcCount), glulxasm.BranchTarget{Target: srcOK}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Trap[TrapOutOfBoundsTableAccess]}, glulxasm.Imm{Value: 0}, glulxasm.Discard{}),
		glulxasm.ItemLabel{Name: srcOK},

		instr(glulxasm.OpMul, local(dstIdx), glulxasm.Imm{Value: 4}, local(dst)),
		instr(glulxasm.OpAdd, local(dst), local(dstBase), local(dst)),
		instr(glulxasm.OpMul, local(srcIdx), glulxasm.Imm{Value: 4}, local(src)),
		instr(glulxasm.OpAdd, local(src), local(srcBase), local(src)),
		instr(glulxasm.OpJleu, local(dst), local(src), glulxasm.BranchTarget{Target: fwd}),

		instr(glulxasm.OpCopy, local(n), local(i)),
		glulxasm.ItemLabel{Name: bwdLoop},
		instr(glulxasm.OpJz, local(i), glulxasm.BranchTarget{Target: done}),
		instr(glulxasm.OpSub, local(i), glulxasm.Imm{Value: 1}, local(i)),
		instr(glulxasm.OpMul, local(i), glulxasm.Imm{Value: 4}, local(addr)),
		instr(glulxasm.OpAdd, local(src), local(addr), local(addr)),
		instr(glulxasm.OpAload, local(addr), glulxasm.Imm{Value: 0}, local(val)),
		instr(glulxasm.OpMul, local(i), glulxasm.Imm{Value: 4}, local(addr)),
		instr(glulxasm.OpAdd, local(dst), local(addr), local(addr)),
		instr(glulxasm.OpAstore, local(addr), glulxasm.Imm{Value: 0}, local(val)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: bwdLoop}),

		glulxasm.ItemLabel{Name: fwd},
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(i)),
		glulxasm.ItemLabel{Name: fwdLoop},
		instr(glulxasm.OpJgeu, local(i), local(n), glulxasm.BranchTarget{Target: done}),
		instr(glulxasm.OpMul, local(i), glulxasm.Imm{Value: 4}, local(addr)),
		instr(glulxasm.OpAdd, local(src), local(addr), local(addr)),
		instr(glulxasm.OpAload, local(addr), glulxasm.Imm{Value: 0}, local(val)),
		instr(glulxasm.OpMul, local(i), glulxasm.Imm{Value: 4}, local(addr)),
		instr(glulxasm.OpAdd, local(dst), local(addr), local(addr)),
		instr(glulxasm.OpAstore, local(addr), glulxasm.Imm{Value: 0}, local(val)),
		instr(glulxasm.OpAdd, local(i), glulxasm.Imm{Value: 1}, local(i)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: fwdLoop}),

		glulxasm.ItemLabel{Name: done},
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),
	)
}

// emitTableGrow(base, curCount, maxCount, delta, initVal) grows a table
// by delta elements, filling the new slots with initVal, and returns
// the table's previous element count (or -1 if delta would exceed
// maxCount). curCount is the address of the table's live count cell.
func emitTableGrow(b *builder, l *Library) glulxasm.Label {
	const base, curCount, maxCount, delta, initVal, old, newCount, i, addr = 0, 1, 2, 3, 4, 5, 6, 7, 8
	fail := b.seq.New(glulxasm.KindROM, "table_grow_fail")
	loop := b.seq.New(glulxasm.KindROM, "table_grow_loop")
	done := b.seq.New(glulxasm.KindROM, "table_grow_done")
	return b.emitFunc("table_grow", 9,
		instr(glulxasm.OpAload, local(curCount), glulxasm.Imm{Value: 0}, local(old)),
		instr(glulxasm.OpAdd, local(old), local(delta), local(newCount)),
		instr(glulxasm.OpJltu, local(newCount), local(old), glulxasm.BranchTarget{Target: fail}),
		instr(glulxasm.OpJgtu, local(newCount), local(maxCount), glulxasm.BranchTarget{Target: fail}),
		instr(glulxasm.OpAstore, local(curCount), glulxasm.Imm{Value: 0}, local(newCount)),
		instr(glulxasm.OpCopy, local(old), local(i)),
		glulxasm.ItemLabel{Name: loop},
		instr(glulxasm.OpJgeu, local(i), local(newCount), glulxasm.BranchTarget{Target: done}),
		instr(glulxasm.OpMul, local(i), glulxasm.Imm{Value: 4}, local(addr)),
		instr(glulxasm.OpAdd, local(base), local(addr), local(addr)),
		instr(glulxasm.OpAstore, local(addr), glulxasm.Imm{Value: 0}, local(initVal)),
		instr(glulxasm.OpAdd, local(i), glulxasm.Imm{Value: 1}, local(i)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: loop}),
		glulxasm.ItemLabel{Name: done},
		instr(glulxasm.OpReturn, local(old)),
		glulxasm.ItemLabel{Name: fail},
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: -1}),
	)
}

// emitTableFill(base, curCount, dstIdx, val, n) writes val to n
// consecutive elements of a table starting at dstIdx. curCount is the
// address of the table's live count cell.
func emitTableFill(b *builder, l *Library) glulxasm.Label {
	const base, curCount, dstIdx, val, n, end, i, addr, curVal = 0, 1, 2, 3, 4, 5, 6, 7, 8
	ok := b.seq.New(glulxasm.KindROM, "table_fill_ok")
	loop := b.seq.New(glulxasm.KindROM, "table_fill_loop")
	done := b.seq.New(glulxasm.KindROM, "table_fill_done")
	return b.emitFunc("table_fill", 9,
		instr(glulxasm.OpAdd, local(dstIdx), local(n), local(end)),
		instr(glulxasm.OpAload, local(curCount), glulxasm.Imm{Value: 0}, local(curVal)),
		instr(glulxasm.OpJleu, local(end), local(curVal), glulxasm.BranchTarget{Target: ok}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Trap[TrapOutOfBoundsTableAccess]}, glulxasm.Imm{Value: 0}, glulxasm.Discard{}),
		glulxasm.ItemLabel{Name: ok},
		instr(glulxasm.OpCopy, local(dstIdx), local(i)),
		glulxasm.ItemLabel{Name: loop},
		instr(glulxasm.OpJgeu, local(i), local(end), glulxasm.BranchTarget{Target: done}),
		instr(glulxasm.OpMul, local(i), glulxasm.Imm{Value: 4}, local(addr)),
		instr(glulxasm.OpAdd, local(base), local(addr), local(addr)),
		instr(glulxasm.OpAstore, local(addr), glulxasm.Imm{Value: 0}, local(val)),
		instr(glulxasm.OpAdd, local(i), glulxasm.Imm{Value: 1}, local(i)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: loop}),
		glulxasm.ItemLabel{Name: done},
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),
	)
}

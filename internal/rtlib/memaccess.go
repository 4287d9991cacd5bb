package rtlib

import "github.com/glulxvm/wasm2glulx/internal/glulxasm"

// buildMemAccess emits the typed-memory-access family (spec.md §4.D):
// each combines a bounds check (against the guest's WebAssembly-relative
// offset) with a byte-order swap for the requested width. Signed vs.
// unsigned widening for sub-word loads is the codegen layer's job, not
// this library's — these return the raw widened-but-unswapped-no-more
// bit pattern, matching the teacher-adjacent idiom of keeping each helper
// to one concern.
//
// memBase is the label of linear memory's first byte; every offset
// argument here is relative to it, exactly as WebAssembly's own memory
// instructions are relative to the start of linear memory.
func buildMemAccess(b *builder, l *Library, memBase, hiReturn glulxasm.Label) {
	l.Memload8 = emitMemload(b, l, memBase, 1)
	l.Memload16 = emitMemload(b, l, memBase, 2)
	l.Memload32 = emitMemload(b, l, memBase, 4)
	l.Memload64 = emitMemload64(b, l, memBase, hiReturn)

	l.Memstore8 = emitMemstore(b, l, memBase, 1)
	l.Memstore16 = emitMemstore(b, l, memBase, 2)
	l.Memstore32 = emitMemstore(b, l, memBase, 4)
	l.Memstore64 = emitMemstore64(b, l, memBase, hiReturn)
}

// emitMemload(offset) -> value, for width in {1,2,4} bytes.
func emitMemload(b *builder, l *Library, memBase glulxasm.Label, width int) glulxasm.Label {
	const offset, addr, val = 0, 1, 2
	name := map[int]string{1: "memload8", 2: "memload16", 4: "memload32"}[width]
	body := []glulxasm.Item{
		instr(glulxasm.OpCallfii, glulxasm.LabelRef{Target: l.Checkaddr}, local(offset), glulxasm.Imm{Value: int32(width)}, local(addr)),
		instr(glulxasm.OpAdd, local(addr), glulxasm.LabelRef{Target: memBase}, local(addr)),
	}
	switch width {
	case 1:
		body = append(body, instr(glulxasm.OpAloadb, local(addr), glulxasm.Imm{Value: 0}, local(val)))
	case 2:
		body = append(body,
			instr(glulxasm.OpAloads, local(addr), glulxasm.Imm{Value: 0}, local(val)),
			instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Swaps}, local(val), local(val)),
		)
	default:
		body = append(body,
			instr(glulxasm.OpAload, local(addr), glulxasm.Imm{Value: 0}, local(val)),
			instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Swap}, local(val), local(val)),
		)
	}
	body = append(body, instr(glulxasm.OpReturn, local(val)))
	return b.emitFunc(name, 3, body...)
}

// emitMemload64(offset) loads an 8-byte little-endian value: the low
// word lives at offset+0, the high word at offset+4 (spec.md's
// multi-word convention — see the hi_return note in §4.D). Low word is
// the ordinary return value; high word is written to hi_return[0].
func emitMemload64(b *builder, l *Library, memBase, hiReturn glulxasm.Label) glulxasm.Label {
	const offset, addr, lo, hi = 0, 1, 2, 3
	return b.emitFunc("memload64", 4,
		instr(glulxasm.OpCallfii, glulxasm.LabelRef{Target: l.Checkaddr}, local(offset), glulxasm.Imm{Value: 8}, local(addr)),
		instr(glulxasm.OpAdd, local(addr), glulxasm.LabelRef{Target: memBase}, local(addr)),
		instr(glulxasm.OpAload, local(addr), glulxasm.Imm{Value: 0}, local(lo)),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Swap}, local(lo), local(lo)),
		instr(glulxasm.OpAload, local(addr), glulxasm.Imm{Value: 1}, local(hi)),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Swap}, local(hi), local(hi)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(hi)),
		instr(glulxasm.OpReturn, local(lo)),
	)
}

// emitMemstore(offset, value) for width in {1,2,4} bytes.
func emitMemstore(b *builder, l *Library, memBase glulxasm.Label, width int) glulxasm.Label {
	const offset, value, addr = 0, 1, 2
	name := map[int]string{1: "memstore8", 2: "memstore16", 4: "memstore32"}[width]
	body := []glulxasm.Item{
		instr(glulxasm.OpCallfii, glulxasm.LabelRef{Target: l.Checkaddr}, local(offset), glulxasm.Imm{Value: int32(width)}, local(addr)),
		instr(glulxasm.OpAdd, local(addr), glulxasm.LabelRef{Target: memBase}, local(addr)),
	}
	switch width {
	case 1:
		body = append(body, instr(glulxasm.OpAstoreb, local(addr), glulxasm.Imm{Value: 0}, local(value)))
	case 2:
		body = append(body,
			instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Swaps}, local(value), local(value)),
			instr(glulxasm.OpAstores, local(addr), glulxasm.Imm{Value: 0}, local(value)),
		)
	default:
		body = append(body,
			instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Swap}, local(value), local(value)),
			instr(glulxasm.OpAstore, local(addr), glulxasm.Imm{Value: 0}, local(value)),
		)
	}
	body = append(body, instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}))
	return b.emitFunc(name, 3, body...)
}

// emitMemstore64(offset, lo, hi) mirrors emitMemload64: three explicit
// arguments rather than reading hi back out of hi_return, since a store
// call site already has both halves in hand (it just finished computing
// them) with no need to round-trip through the scratch cell.
func emitMemstore64(b *builder, l *Library, memBase, hiReturn glulxasm.Label) glulxasm.Label {
	const offset, lo, hi, addr = 0, 1, 2, 3
	return b.emitFunc("memstore64", 4,
		instr(glulxasm.OpCallfii, glulxasm.LabelRef{Target: l.Checkaddr}, local(offset), glulxasm.Imm{Value: 8}, local(addr)),
		instr(glulxasm.OpAdd, local(addr), glulxasm.LabelRef{Target: memBase}, local(addr)),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Swap}, local(lo), local(lo)),
		instr(glulxasm.OpAstore, local(addr), glulxasm.Imm{Value: 0}, local(lo)),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Swap}, local(hi), local(hi)),
		instr(glulxasm.OpAstore, local(addr), glulxasm.Imm{Value: 1}, local(hi)),
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),
	)
}


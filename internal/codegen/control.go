package codegen

import (
	"github.com/glulxvm/wasm2glulx/internal/glulxasm"
	"github.com/glulxvm/wasm2glulx/internal/ir"
	"github.com/glulxvm/wasm2glulx/internal/rtlib"
	"github.com/glulxvm/wasm2glulx/internal/wasmin"
)

// emitSubseqs lowers a whole subsequenced body — the top level of a
// function, or the Body/Body2 of a block/loop/if recursed into from
// here — into Glulx items, one Subseq at a time.
func emitSubseqs(fr *frame, subseqs []ir.Subseq) []glulxasm.Item {
	var items []glulxasm.Item
	for _, s := range subseqs {
		switch s.Kind {
		case ir.SubseqCopy:
			for _, ld := range s.Loads {
				items = append(items, emitLoad(fr, ld)...)
			}
			items = append(items, emitStoresTail(fr, s.Stores, s.Ret)...)
		case ir.SubseqOther:
			for _, ld := range s.Loads {
				items = append(items, emitLoad(fr, ld)...)
			}
			items = append(items, emitNucleus(fr, s.Nucleus)...)
			items = append(items, emitStoresTail(fr, s.Stores, s.Ret)...)
		case ir.SubseqBlock:
			for _, ld := range s.Loads {
				items = append(items, emitLoad(fr, ld)...)
			}
			items = append(items, emitBlockOrIf(fr, s.Instr)...)
		case ir.SubseqLoop:
			for _, ld := range s.Loads {
				items = append(items, emitLoad(fr, ld)...)
			}
			items = append(items, emitLoop(fr, s.Instr)...)
		}
	}
	return items
}

// emitStoresTail lowers a Subseq's trailing store/return run. A plain
// store (local.set/global.set/drop) pops and writes; a return, which
// always arrives last when present, reconciles the live stack down to
// the function's own outermost block and branches to the epilogue —
// the two share one mechanism (spec.md §1 folds "return" and falling
// off the end of the function into the same control path).
func emitStoresTail(fr *frame, stores []ir.Instr, ret bool) []glulxasm.Item {
	var items []glulxasm.Item
	for _, st := range stores {
		if st.Class == ir.ClassRet {
			items = append(items, reconcileAndJump(fr, fr.blocks[0])...)
			continue
		}
		items = append(items, emitStore(fr, st)...)
	}
	_ = ret
	return items
}

// reconcileAndJump copies the top bc.resultWords() words of the live
// stack down to bc's own base depth (the position a branch's carried
// values must occupy for code resuming at bc.target to find them where
// it left them) and jumps there unconditionally.
func reconcileAndJump(fr *frame, bc *blockCtx) []glulxasm.Item {
	items := reconcileOnly(fr, bc)
	items = append(items, instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: bc.target}))
	return items
}

// reconcileOnly performs the copy-down without the trailing jump, for
// callers (the fused-if/br_if paths) that need to interleave it with
// their own conditional branch.
func reconcileOnly(fr *frame, bc *blockCtx) []glulxasm.Item {
	n := bc.resultWords()
	if n == 0 {
		return nil
	}
	top := fr.stackWords()
	srcBase := fr.scratchBase + uint32(top-n)
	dstBase := fr.scratchBase + uint32(bc.baseWords)
	if srcBase == dstBase {
		return nil
	}
	var items []glulxasm.Item
	for i := 0; i < n; i++ {
		items = append(items, instr(glulxasm.OpCopy, local(srcBase+uint32(i)), local(dstBase+uint32(i))))
	}
	return items
}

// blockSig resolves a block/loop/if's declared signature the same way
// internal/ir's own (unexported) blockSig does, since codegen recurses
// into Body/Body2 independently of the classifier.
func blockSig(ctx *Context, bt wasmin.BlockType) (params, results []wasmin.ValType) {
	switch {
	case bt.HasIndex:
		sig := ctx.Module.Types[bt.TypeIndex]
		return sig.Params, sig.Results
	case bt.HasVal:
		return nil, []wasmin.ValType{bt.ValType}
	default:
		return nil, nil
	}
}

// testArity is how many i32 operands a fused test consumes: one for
// eqz, two for every other i32 comparison.
func testArity(t ir.Test) int {
	if t == ir.TestI32Eqz {
		return 1
	}
	return 2
}

// testJumpTrue is the Glulx conditional-jump opcode that branches when
// the named fused test is true, operating directly on the test's own
// (popped) operands — used wherever "true" means "take the branch":
// br_if, and a fused if's direct entry into its then-arm.
func testJumpTrue(t ir.Test) uint32 {
	switch t {
	case ir.TestI32Eqz:
		return glulxasm.OpJz
	case ir.TestI32Eq:
		return glulxasm.OpJeq
	case ir.TestI32Ne:
		return glulxasm.OpJne
	case ir.TestI32LtS:
		return glulxasm.OpJlt
	case ir.TestI32LtU:
		return glulxasm.OpJltu
	case ir.TestI32GtS:
		return glulxasm.OpJgt
	case ir.TestI32GtU:
		return glulxasm.OpJgtu
	case ir.TestI32LeS:
		return glulxasm.OpJle
	case ir.TestI32LeU:
		return glulxasm.OpJleu
	case ir.TestI32GeS:
		return glulxasm.OpJge
	case ir.TestI32GeU:
		return glulxasm.OpJgeu
	default:
		return glulxasm.OpJnz
	}
}

// testJumpFalse is testJumpTrue's complement — branches when the test is
// false — used to skip an if's then-arm straight to its else/end.
func testJumpFalse(t ir.Test) uint32 {
	switch t {
	case ir.TestI32Eqz:
		return glulxasm.OpJnz
	case ir.TestI32Eq:
		return glulxasm.OpJne
	case ir.TestI32Ne:
		return glulxasm.OpJeq
	case ir.TestI32LtS:
		return glulxasm.OpJge
	case ir.TestI32LtU:
		return glulxasm.OpJgeu
	case ir.TestI32GtS:
		return glulxasm.OpJle
	case ir.TestI32GtU:
		return glulxasm.OpJleu
	case ir.TestI32LeS:
		return glulxasm.OpJgt
	case ir.TestI32LeU:
		return glulxasm.OpJgtu
	case ir.TestI32GeS:
		return glulxasm.OpJlt
	case ir.TestI32GeU:
		return glulxasm.OpJltu
	default:
		return glulxasm.OpJz
	}
}

// popTestOperands pops a fused test's own operands (testArity(in.Test)
// words, always i32) and returns them as Local operands in argument
// order, deepest first.
func popTestOperands(fr *frame, t ir.Test) []glulxasm.Operand {
	n := testArity(t)
	ops := make([]glulxasm.Operand, n)
	for i := n - 1; i >= 0; i-- {
		slot, _ := fr.pop()
		ops[i] = local(slot)
	}
	return ops
}

// emitBlockOrIf lowers a Subseq whose hard instruction is OpBlock or
// OpIf. Both open a nested scope with its own end label; if additionally
// consumes a condition (possibly fused into in.Test) to choose between
// its two Body/Body2 arms.
func emitBlockOrIf(fr *frame, in ir.Instr) []glulxasm.Item {
	w := in.Wasm
	params, results := blockSig(fr.ctx, w.Block)
	end := fr.ctx.Seq.New(glulxasm.KindROM, "block_end")

	var items []glulxasm.Item
	elseLabel := end

	if w.Op == wasmin.OpIf {
		if len(w.Body2) > 0 {
			elseLabel = fr.ctx.Seq.New(glulxasm.KindROM, "if_else")
		}
		if in.Test != ir.TestNone {
			ops := popTestOperands(fr, in.Test)
			items = append(items, instr(testJumpFalse(in.Test), append(append([]glulxasm.Operand{}, ops...), glulxasm.BranchTarget{Target: elseLabel})...))
		} else {
			slot, _ := fr.pop()
			items = append(items, instr(glulxasm.OpJz, local(slot), glulxasm.BranchTarget{Target: elseLabel}))
		}
	}

	base := fr.stackWords() - resultWords(params)
	bc := &blockCtx{baseWords: base, resultTypes: results, target: end}
	fr.blocks = append(fr.blocks, bc)

	savedStack := append([]wasmin.ValType{}, fr.stack...)
	fc := &ir.Func{Module: fr.ctx.Module, Fn: fr.fn, Sig: fr.sig}

	fr.stack = append([]wasmin.ValType{}, params...)
	thenClassified := ir.Classify(fc, w.Body, params)
	items = append(items, emitSubseqs(fr, ir.Subsequence(thenClassified))...)

	if w.Op == wasmin.OpIf && len(w.Body2) > 0 {
		items = append(items, instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: end}))
		items = append(items, glulxasm.ItemLabel{Name: elseLabel})
		fr.stack = append([]wasmin.ValType{}, params...)
		elseClassified := ir.Classify(fc, w.Body2, params)
		items = append(items, emitSubseqs(fr, ir.Subsequence(elseClassified))...)
	}

	items = append(items, glulxasm.ItemLabel{Name: end})
	fr.blocks = fr.blocks[:len(fr.blocks)-1]

	// The construct leaves exactly its result types on the stack,
	// occupying the same words its params started at.
	fr.stack = append(savedStack[:base], results...)

	return items
}

// emitLoop lowers a Subseq whose hard instruction is OpLoop: unlike a
// block, a branch to a loop re-enters at its own top carrying another
// round of its parameters, so its blockCtx's base and result types are
// both the loop's parameter list.
func emitLoop(fr *frame, in ir.Instr) []glulxasm.Item {
	w := in.Wasm
	params, results := blockSig(fr.ctx, w.Block)
	top := fr.ctx.Seq.New(glulxasm.KindROM, "loop_top")
	base := fr.stackWords() - resultWords(params)

	bc := &blockCtx{baseWords: base, resultTypes: params, target: top, isLoop: true}
	fr.blocks = append(fr.blocks, bc)

	var items []glulxasm.Item
	items = append(items, glulxasm.ItemLabel{Name: top})

	savedStack := append([]wasmin.ValType{}, fr.stack...)
	fr.stack = append([]wasmin.ValType{}, params...)

	fc := &ir.Func{Module: fr.ctx.Module, Fn: fr.fn, Sig: fr.sig}
	classified := ir.Classify(fc, w.Body, params)
	items = append(items, emitSubseqs(fr, ir.Subsequence(classified))...)

	fr.blocks = fr.blocks[:len(fr.blocks)-1]
	fr.stack = append(savedStack[:base], results...)

	return items
}

// findTarget resolves a branch's relative nesting depth into the
// blockCtx it names, per the Wasm binary format's "0 is the innermost
// enclosing construct" convention.
func findTarget(fr *frame, relDepth uint32) *blockCtx {
	return fr.blocks[len(fr.blocks)-1-int(relDepth)]
}

// emitBranch lowers br/br_table/unreachable — anything whose hard op
// unconditionally transfers control out of the current straight-line
// sequence. br_if is handled separately (emitBrIf) since its false path
// falls through instead of transferring control.
func emitBranch(fr *frame, in ir.Instr) []glulxasm.Item {
	w := in.Wasm
	switch w.Op {
	case wasmin.OpBr:
		return reconcileAndJump(fr, findTarget(fr, w.LabelIdx))
	case wasmin.OpBrTable:
		return emitBrTable(fr, w)
	case wasmin.OpUnreachable:
		return []glulxasm.Item{instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: fr.ctx.RT.Trap[rtlib.TrapUnreachable]}, glulxasm.Imm{Value: 0}, glulxasm.Discard{})}
	default:
		return nil
	}
}

// emitBrIf lowers a br_if, fused or not: pop (or consume, if fused) its
// condition, and when true, reconcile the live stack to the target's
// arity and jump — the false path falls through with the stack
// untouched, exactly as Wasm's br_if leaves its carried values in place
// when not taken.
func emitBrIf(fr *frame, in ir.Instr) []glulxasm.Item {
	target := findTarget(fr, in.Wasm.LabelIdx)
	var items []glulxasm.Item

	if in.Test != ir.TestNone {
		ops := popTestOperands(fr, in.Test)
		takeLabel := fr.ctx.Seq.New(glulxasm.KindROM, "br_if_taken")
		items = append(items, instr(testJumpTrue(in.Test), append(append([]glulxasm.Operand{}, ops...), glulxasm.BranchTarget{Target: takeLabel})...))
		after := fr.ctx.Seq.New(glulxasm.KindROM, "br_if_after")
		items = append(items, instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: after}))
		items = append(items, glulxasm.ItemLabel{Name: takeLabel})
		items = append(items, reconcileAndJump(fr, target)...)
		items = append(items, glulxasm.ItemLabel{Name: after})
		return items
	}

	slot, _ := fr.pop()
	after := fr.ctx.Seq.New(glulxasm.KindROM, "br_if_after")
	items = append(items, instr(glulxasm.OpJz, local(slot), glulxasm.BranchTarget{Target: after}))
	items = append(items, reconcileAndJump(fr, target)...)
	items = append(items, glulxasm.ItemLabel{Name: after})
	return items
}

// emitBrTable lowers br_table as a single indexed load from a ROM table
// of branch targets followed by an indirect jump (spec.md's S5
// scenario), falling back to the default target when the index is out
// of range. Each table entry is its own small trampoline, since distinct
// targets can sit at different stack depths and each needs its own
// reconciliation before the real jump.
func emitBrTable(fr *frame, w *wasmin.Instr) []glulxasm.Item {
	slot, _ := fr.pop()

	targets := make([]*blockCtx, len(w.LabelIdxs))
	for i, d := range w.LabelIdxs {
		targets[i] = findTarget(fr, d)
	}
	def := findTarget(fr, w.DefaultIdx)

	var items []glulxasm.Item
	defLabel := fr.ctx.Seq.New(glulxasm.KindROM, "br_table_default")
	items = append(items, instr(glulxasm.OpJgeu, local(slot), glulxasm.Imm{Value: int32(len(targets))}, glulxasm.BranchTarget{Target: defLabel}))

	table := fr.ctx.Seq.New(glulxasm.KindROM, "br_table_jumptable")
	items = append(items, instr(glulxasm.OpAload, glulxasm.LabelRef{Target: table}, local(slot), local(slot)))
	items = append(items, instr(glulxasm.OpJumpabs, local(slot)))

	items = append(items, glulxasm.ItemLabel{Name: defLabel})
	items = append(items, reconcileAndJump(fr, def)...)

	tramps := make([]glulxasm.Label, len(targets))
	for i := range targets {
		tramps[i] = fr.ctx.Seq.New(glulxasm.KindROM, "br_table_case")
	}

	items = append(items, glulxasm.ItemLabel{Name: table})
	for _, t := range tramps {
		items = append(items, glulxasm.ItemLabelRef{Target: t, Width: 4})
	}
	for i, bc := range targets {
		items = append(items, glulxasm.ItemLabel{Name: tramps[i]})
		items = append(items, reconcileAndJump(fr, bc)...)
	}
	return items
}

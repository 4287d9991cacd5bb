package codegen

import (
	"fmt"
	"math"

	"github.com/glulxvm/wasm2glulx/internal/glulxasm"
	"github.com/glulxvm/wasm2glulx/internal/ir"
	"github.com/glulxvm/wasm2glulx/internal/rtlib"
	"github.com/glulxvm/wasm2glulx/internal/wasmin"
)

// emitLoad lowers one ClassLoad instruction: it only ever pushes a
// value, never pops one.
func emitLoad(fr *frame, in ir.Instr) []glulxasm.Item {
	w := in.Wasm
	switch w.Op {
	case wasmin.OpLocalGet:
		t := fr.localType[w.LocalIdx]
		dst := fr.push(t)
		return copyWords(fr.localSlot[w.LocalIdx], dst, t.Size32())

	case wasmin.OpGlobalGet:
		g := fr.ctx.Module.GlobalTypeOf(w.GlobalIdx)
		dst := fr.push(g.Type)
		off := fr.ctx.GlobalOffset[w.GlobalIdx] / 4
		var items []glulxasm.Item
		for i := 0; i < g.Type.Size32(); i++ {
			items = append(items, instr(glulxasm.OpAload, glulxasm.LabelRef{Target: fr.ctx.Plan.Globals}, glulxasm.Imm{Value: int32(off) + int32(i)}, local(dst+uint32(i))))
		}
		return items

	case wasmin.OpI32Const:
		dst := fr.push(wasmin.ValTypeI32)
		return []glulxasm.Item{instr(glulxasm.OpCopy, glulxasm.Imm{Value: w.I32}, local(dst))}

	case wasmin.OpI64Const:
		dst := fr.push(wasmin.ValTypeI64)
		hi := int32(uint64(w.I64) >> 32)
		lo := int32(uint64(w.I64) & 0xFFFFFFFF)
		return []glulxasm.Item{
			instr(glulxasm.OpCopy, glulxasm.Imm{Value: hi}, local(dst)),
			instr(glulxasm.OpCopy, glulxasm.Imm{Value: lo}, local(dst+1)),
		}

	case wasmin.OpF32Const:
		dst := fr.push(wasmin.ValTypeF32)
		return []glulxasm.Item{instr(glulxasm.OpCopy, glulxasm.Imm{Value: int32(math.Float32bits(w.F32))}, local(dst))}

	case wasmin.OpF64Const:
		dst := fr.push(wasmin.ValTypeF64)
		bits := math.Float64bits(w.F64)
		return []glulxasm.Item{
			instr(glulxasm.OpCopy, glulxasm.Imm{Value: int32(bits >> 32)}, local(dst)),
			instr(glulxasm.OpCopy, glulxasm.Imm{Value: int32(bits & 0xFFFFFFFF)}, local(dst+1)),
		}

	case wasmin.OpRefNull:
		dst := fr.push(w.RefType)
		return []glulxasm.Item{instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(dst))}

	case wasmin.OpRefFunc:
		dst := fr.push(wasmin.ValTypeFuncRef)
		return []glulxasm.Item{instr(glulxasm.OpCopy, glulxasm.LabelRef{Target: fr.ctx.FuncLabels[w.FuncIdx]}, local(dst))}

	case wasmin.OpTableSize:
		tp := fr.ctx.Plan.Tables[w.TableIdx]
		dst := fr.push(wasmin.ValTypeI32)
		return []glulxasm.Item{instr(glulxasm.OpAload, glulxasm.LabelRef{Target: tp.CurCount}, glulxasm.Imm{Value: 0}, local(dst))}
	}
	panic(fmt.Sprintf("codegen: unhandled load op %d", w.Op))
}

// emitStore lowers one ClassStore instruction (local.set, global.set,
// drop — a function-level return is handled by emitStoresTail instead).
func emitStore(fr *frame, in ir.Instr) []glulxasm.Item {
	w := in.Wasm
	switch w.Op {
	case wasmin.OpLocalSet:
		src, t := fr.pop()
		return copyWords(src, fr.localSlot[w.LocalIdx], t.Size32())

	case wasmin.OpGlobalSet:
		src, t := fr.pop()
		off := fr.ctx.GlobalOffset[w.GlobalIdx] / 4
		var items []glulxasm.Item
		for i := 0; i < t.Size32(); i++ {
			items = append(items, instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: fr.ctx.Plan.Globals}, glulxasm.Imm{Value: int32(off) + int32(i)}, local(src+uint32(i))))
		}
		return items

	case wasmin.OpDrop:
		fr.pop()
		return nil
	}
	panic(fmt.Sprintf("codegen: unhandled store op %d", w.Op))
}

// copyWords emits n consecutive word copies from src to dst, used
// whenever a value moves between the local-variable area and the
// modeled stack's scratch area.
func copyWords(src, dst uint32, n int) []glulxasm.Item {
	items := make([]glulxasm.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, instr(glulxasm.OpCopy, local(src+uint32(i)), local(dst+uint32(i))))
	}
	return items
}

func pop1(fr *frame) uint32 {
	slot, _ := fr.pop()
	return slot
}

func push1(fr *frame, t wasmin.ValType) uint32 { return fr.push(t) }

// callStaged calls fn with the given argument operands, staging
// through Callfi/Callfii/Callfiii where possible and otherwise falling
// back to the general push-then-call form rtlib's own private callN
// helper uses beyond three arguments.
func callStaged(fn, dest glulxasm.Operand, args ...glulxasm.Operand) []glulxasm.Item {
	switch len(args) {
	case 0:
		return []glulxasm.Item{instr(glulxasm.OpCallf, fn, dest)}
	case 1:
		return []glulxasm.Item{instr(glulxasm.OpCallfi, fn, args[0], dest)}
	case 2:
		return []glulxasm.Item{instr(glulxasm.OpCallfii, fn, args[0], args[1], dest)}
	case 3:
		return []glulxasm.Item{instr(glulxasm.OpCallfiii, fn, args[0], args[1], args[2], dest)}
	default:
		items := make([]glulxasm.Item, 0, len(args)+1)
		for i := len(args) - 1; i >= 0; i-- {
			items = append(items, instr(glulxasm.OpCopy, args[i], glulxasm.Push{}))
		}
		items = append(items, instr(glulxasm.OpCall, fn, glulxasm.Imm{Value: int32(len(args))}, dest))
		return items
	}
}

func callRT(fr *frame, fn glulxasm.Label, dest glulxasm.Operand, args ...glulxasm.Operand) []glulxasm.Item {
	return callStaged(glulxasm.LabelRef{Target: fn}, dest, args...)
}

// callRTHi calls a routine that returns its first word directly and a
// second word through hi_return. dst must already have its 2 scratch
// words reserved by a prior fr.push of the result type.
func callRTHi(fr *frame, fn glulxasm.Label, dst uint32, args ...glulxasm.Operand) []glulxasm.Item {
	items := callRT(fr, fn, local(dst+1), args...)
	items = append(items, instr(glulxasm.OpAload, glulxasm.LabelRef{Target: fr.ctx.Plan.HiReturn}, glulxasm.Imm{Value: 0}, local(dst)))
	return items
}

func trapItem(fr *frame, code rtlib.TrapCode) glulxasm.Item {
	return instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: fr.ctx.RT.Trap[code]}, glulxasm.Imm{Value: 0}, glulxasm.Discard{})
}

// emitNucleus lowers one ClassOther instruction: the bulk of component
// H, dispatching on the Wasm opcode to the Glulx instruction(s) or
// rtlib call that realizes it.
func emitNucleus(fr *frame, in ir.Instr) []glulxasm.Item {
	w := in.Wasm
	switch w.Op {
	case wasmin.OpBr, wasmin.OpBrTable, wasmin.OpUnreachable:
		return emitBranch(fr, in)
	case wasmin.OpBrIf:
		return emitBrIf(fr, in)
	case wasmin.OpNop, wasmin.OpElemDrop, wasmin.OpDataDrop:
		// data.drop/elem.drop only affect whether a later
		// memory.init/table.init may legally reuse a segment; this
		// compiler doesn't track that, since it only ever lowers
		// modules already validated against the WebAssembly spec's own
		// drop-then-init rule.
		return nil
	case wasmin.OpLocalTee:
		return emitLocalTee(fr, w)
	case wasmin.OpDrop:
		fr.pop()
		return nil
	case wasmin.OpSelect, wasmin.OpSelectT:
		return emitSelect(fr, in)
	case wasmin.OpCall:
		return emitCall(fr, w)
	case wasmin.OpCallIndirect:
		return emitCallIndirect(fr, w)
	case wasmin.OpMemorySize:
		return emitMemorySize(fr)
	case wasmin.OpMemoryGrow:
		return emitMemoryGrow(fr)
	case wasmin.OpMemoryInit:
		return emitMemoryInit(fr, w)
	case wasmin.OpMemoryCopy:
		return emitMemoryCopy(fr)
	case wasmin.OpMemoryFill:
		return emitMemoryFill(fr)
	case wasmin.OpTableGet:
		return emitTableGet(fr, w)
	case wasmin.OpTableSet:
		return emitTableSet(fr, w)
	case wasmin.OpTableInit:
		return emitTableInit(fr, w)
	case wasmin.OpTableCopy:
		return emitTableCopy(fr, w)
	case wasmin.OpTableGrow:
		return emitTableGrow(fr, w)
	case wasmin.OpTableFill:
		return emitTableFill(fr, w)
	case wasmin.OpRefIsNull:
		return emitRefIsNull(fr)
	}
	if vt, ok := loadValTypeOf(w.Op); ok {
		return emitMemLoad(fr, w, vt)
	}
	if storeOpcode(w.Op) {
		return emitMemStore(fr, w)
	}
	return emitArith(fr, in)
}

func emitLocalTee(fr *frame, w *wasmin.Instr) []glulxasm.Item {
	t := fr.localType[w.LocalIdx]
	src, _ := fr.pop()
	items := copyWords(src, fr.localSlot[w.LocalIdx], t.Size32())
	dst := fr.push(t)
	items = append(items, copyWords(src, dst, t.Size32())...)
	return items
}

// emitSelect treats select/select_t as always unfused for its value
// type: that comes from in.Results[0], untouched by the classifier's
// test-fusion rewrite of Params — see DESIGN.md for why in.Params isn't
// trustworthy here (the fusion formula only drops the condition
// correctly when the consumer has exactly one parameter, true of br_if
// and a no-param if, not of select's three-operand shape).
func emitSelect(fr *frame, in ir.Instr) []glulxasm.Item {
	vt := in.Results[0]
	var items []glulxasm.Item
	var cond uint32
	if in.Test != ir.TestNone {
		ops := popTestOperands(fr, in.Test)
		cond = fr.scratchBase + uint32(fr.stackWords())
		fr.bump(cond - fr.scratchBase + 1)
		isTrue := fr.ctx.Seq.New(glulxasm.KindROM, "select_cond_true")
		after := fr.ctx.Seq.New(glulxasm.KindROM, "select_cond_after")
		items = append(items, instr(testJumpTrue(in.Test), append(append([]glulxasm.Operand{}, ops...), glulxasm.BranchTarget{Target: isTrue})...))
		items = append(items, instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(cond)))
		items = append(items, instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: after}))
		items = append(items, glulxasm.ItemLabel{Name: isTrue})
		items = append(items, instr(glulxasm.OpCopy, glulxasm.Imm{Value: 1}, local(cond)))
		items = append(items, glulxasm.ItemLabel{Name: after})
	} else {
		cond = pop1(fr)
	}
	valB, _ := fr.pop() // select's second operand: the "if false" value
	valA, _ := fr.pop() // select's first operand: the "if true" value
	dst := fr.push(vt)
	isTrue := fr.ctx.Seq.New(glulxasm.KindROM, "select_true")
	after := fr.ctx.Seq.New(glulxasm.KindROM, "select_after")
	items = append(items, instr(glulxasm.OpJnz, local(cond), glulxasm.BranchTarget{Target: isTrue}))
	items = append(items, copyWords(valB, dst, vt.Size32())...)
	items = append(items, instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: after}))
	items = append(items, glulxasm.ItemLabel{Name: isTrue})
	items = append(items, copyWords(valA, dst, vt.Size32())...)
	items = append(items, glulxasm.ItemLabel{Name: after})
	return items
}

func emitCall(fr *frame, w *wasmin.Instr) []glulxasm.Item {
	sig := fr.ctx.Module.FuncTypeOf(w.FuncIdx)
	return emitCallTo(fr, glulxasm.LabelRef{Target: fr.ctx.FuncLabels[w.FuncIdx]}, sig)
}

// emitCallIndirect loads the callee address out of the table and
// validates it's in bounds and non-null before calling through it.
// Simplification, recorded in DESIGN.md: the callee's actual signature
// is not re-verified against the call site's declared type at run time.
func emitCallIndirect(fr *frame, w *wasmin.Instr) []glulxasm.Item {
	sig := fr.ctx.Module.Types[w.TypeIdx]
	tp := fr.ctx.Plan.Tables[w.TableIdx]

	idx := pop1(fr)
	fnSlot := fr.scratchBase + uint32(fr.stackWords())
	fr.bump(fnSlot - fr.scratchBase + 1)

	var items []glulxasm.Item
	curCount := fnSlot
	items = append(items, instr(glulxasm.OpAload, glulxasm.LabelRef{Target: tp.CurCount}, glulxasm.Imm{Value: 0}, local(curCount)))
	ok := fr.ctx.Seq.New(glulxasm.KindROM, "call_indirect_ok")
	items = append(items, instr(glulxasm.OpJltu, local(idx), local(curCount), glulxasm.BranchTarget{Target: ok}))
	items = append(items, trapItem(fr, rtlib.TrapUndefinedElement))
	items = append(items, glulxasm.ItemLabel{Name: ok})

	items = append(items, instr(glulxasm.OpAload, glulxasm.LabelRef{Target: tp.Base}, local(idx), local(fnSlot)))
	notNull := fr.ctx.Seq.New(glulxasm.KindROM, "call_indirect_notnull")
	items = append(items, instr(glulxasm.OpJnz, local(fnSlot), glulxasm.BranchTarget{Target: notNull}))
	items = append(items, trapItem(fr, rtlib.TrapUninitializedElement))
	items = append(items, glulxasm.ItemLabel{Name: notNull})

	items = append(items, emitCallTo(fr, local(fnSlot), sig)...)
	return items
}

// emitCallTo stages sig.Params off the modeled stack in argument order
// and calls fn, pushing sig.Results the same way the epilogue unpacks a
// multi-word return.
func emitCallTo(fr *frame, fn glulxasm.Operand, sig wasmin.FuncType) []glulxasm.Item {
	n := len(sig.Params)
	argSlots := make([]uint32, n)
	for i := n - 1; i >= 0; i-- {
		argSlots[i], _ = fr.pop()
	}
	var argWords []glulxasm.Operand
	for i, t := range sig.Params {
		for wIdx := 0; wIdx < t.Size32(); wIdx++ {
			argWords = append(argWords, local(argSlots[i]+uint32(wIdx)))
		}
	}

	resWords := resultWords(sig.Results)
	var dest glulxasm.Operand = glulxasm.Discard{}
	destSlot := fr.scratchBase + uint32(fr.stackWords())
	if resWords > 0 {
		fr.bump(destSlot - fr.scratchBase + uint32(resWords))
		dest = local(destSlot)
	}

	items := callStaged(fn, dest, argWords...)

	if resWords == 0 {
		return items
	}
	// The callee returns its first result word directly and any
	// further words through hi_return, per the multi-word-return
	// convention shared with internal/rtlib — unpack those into consecutive scratch slots before
	// pushing the typed results.
	if resWords > 1 {
		for i := 1; i < resWords; i++ {
			items = append(items, instr(glulxasm.OpAload, glulxasm.LabelRef{Target: fr.ctx.Plan.HiReturn}, glulxasm.Imm{Value: int32(i - 1)}, local(destSlot+uint32(i))))
		}
	}
	for _, t := range sig.Results {
		fr.push(t)
	}
	return items
}

func emitMemorySize(fr *frame) []glulxasm.Item {
	dst := push1(fr, wasmin.ValTypeI32)
	items := []glulxasm.Item{instr(glulxasm.OpAload, glulxasm.LabelRef{Target: fr.ctx.Plan.MemCurSize}, glulxasm.Imm{Value: 0}, local(dst))}
	items = append(items, instr(glulxasm.OpUshiftr, local(dst), glulxasm.Imm{Value: 16}, local(dst)))
	return items
}

func emitMemoryGrow(fr *frame) []glulxasm.Item {
	delta := pop1(fr)
	dst := push1(fr, wasmin.ValTypeI32)
	return callRT(fr, fr.ctx.RT.MemoryGrow, local(dst), local(delta))
}

// emitMemoryInit pops (n, srcOffset, dstOffset) — memory.init's operand
// order on the Wasm stack — and calls rtlib's memory_init(dataBase,
// dataLen, srcOffset, dstOffset, n).
func emitMemoryInit(fr *frame, w *wasmin.Instr) []glulxasm.Item {
	n, src, dst := pop1(fr), pop1(fr), pop1(fr)
	blob := fr.ctx.Plan.DataBlobs[w.DataIdx]
	blobLen := len(fr.ctx.Module.Data[w.DataIdx].Bytes)
	return callRT(fr, fr.ctx.RT.MemoryInit, glulxasm.Discard{},
		glulxasm.LabelRef{Target: blob}, glulxasm.Imm{Value: int32(blobLen)},
		local(src), local(dst), local(n))
}

func emitMemoryCopy(fr *frame) []glulxasm.Item {
	n, src, dst := pop1(fr), pop1(fr), pop1(fr)
	return callRT(fr, fr.ctx.RT.MemoryCopy, glulxasm.Discard{}, local(dst), local(src), local(n))
}

func emitMemoryFill(fr *frame) []glulxasm.Item {
	n, val, dst := pop1(fr), pop1(fr), pop1(fr)
	return callRT(fr, fr.ctx.RT.MemoryFill, glulxasm.Discard{}, local(dst), local(val), local(n))
}

func emitTableGet(fr *frame, w *wasmin.Instr) []glulxasm.Item {
	tp := fr.ctx.Plan.Tables[w.TableIdx]
	idx := pop1(fr)
	dst := push1(fr, fr.ctx.Module.TableOf(w.TableIdx).ElemType)
	ok := fr.ctx.Seq.New(glulxasm.KindROM, "table_get_ok")
	var items []glulxasm.Item
	items = append(items, instr(glulxasm.OpAload, glulxasm.LabelRef{Target: tp.CurCount}, glulxasm.Imm{Value: 0}, local(dst)))
	items = append(items, instr(glulxasm.OpJltu, local(idx), local(dst), glulxasm.BranchTarget{Target: ok}))
	items = append(items, trapItem(fr, rtlib.TrapOutOfBoundsTableAccess))
	items = append(items, glulxasm.ItemLabel{Name: ok})
	items = append(items, instr(glulxasm.OpAload, glulxasm.LabelRef{Target: tp.Base}, local(idx), local(dst)))
	return items
}

func emitTableSet(fr *frame, w *wasmin.Instr) []glulxasm.Item {
	tp := fr.ctx.Plan.Tables[w.TableIdx]
	val, idx := pop1(fr), pop1(fr)
	scratch := fr.scratchBase + uint32(fr.stackWords())
	fr.bump(scratch - fr.scratchBase + 1)
	ok := fr.ctx.Seq.New(glulxasm.KindROM, "table_set_ok")
	var items []glulxasm.Item
	items = append(items, instr(glulxasm.OpAload, glulxasm.LabelRef{Target: tp.CurCount}, glulxasm.Imm{Value: 0}, local(scratch)))
	items = append(items, instr(glulxasm.OpJltu, local(idx), local(scratch), glulxasm.BranchTarget{Target: ok}))
	items = append(items, trapItem(fr, rtlib.TrapOutOfBoundsTableAccess))
	items = append(items, glulxasm.ItemLabel{Name: ok})
	items = append(items, instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: tp.Base}, local(idx), local(val)))
	return items
}

func emitTableInit(fr *frame, w *wasmin.Instr) []glulxasm.Item {
	tp := fr.ctx.Plan.Tables[w.TableIdx]
	blob := fr.ctx.Plan.ElemBlobs[w.ElemIdx]
	elem := fr.ctx.Module.Elem[w.ElemIdx]
	blobLen := len(elem.Funcs) + len(elem.Exprs)
	n, src, dst := pop1(fr), pop1(fr), pop1(fr)
	return callRT(fr, fr.ctx.RT.TableInitOrCopy, glulxasm.Discard{},
		glulxasm.LabelRef{Target: tp.Base}, glulxasm.LabelRef{Target: tp.CurCount},
		glulxasm.LabelRef{Target: blob}, glulxasm.Imm{Value: int32(blobLen)},
		local(dst), local(src), local(n))
}

// emitTableCopy copies within a single table: wasmin's instruction
// model carries one table index per table.copy site rather than a
// distinct source and destination table, so a cross-table copy is out
// of scope here — see DESIGN.md.
func emitTableCopy(fr *frame, w *wasmin.Instr) []glulxasm.Item {
	tp := fr.ctx.Plan.Tables[w.TableIdx]
	n, src, dst := pop1(fr), pop1(fr), pop1(fr)
	curCount := fr.scratchBase + uint32(fr.stackWords())
	fr.bump(curCount - fr.scratchBase + 1)
	var items []glulxasm.Item
	items = append(items, instr(glulxasm.OpAload, glulxasm.LabelRef{Target: tp.CurCount}, glulxasm.Imm{Value: 0}, local(curCount)))
	items = append(items, callRT(fr, fr.ctx.RT.TableInitOrCopy, glulxasm.Discard{},
		glulxasm.LabelRef{Target: tp.Base}, glulxasm.LabelRef{Target: tp.CurCount},
		glulxasm.LabelRef{Target: tp.Base}, local(curCount),
		local(dst), local(src), local(n))...)
	return items
}

func emitTableGrow(fr *frame, w *wasmin.Instr) []glulxasm.Item {
	tp := fr.ctx.Plan.Tables[w.TableIdx]
	delta, initVal := pop1(fr), pop1(fr)
	dst := push1(fr, wasmin.ValTypeI32)
	return callRT(fr, fr.ctx.RT.TableGrow, local(dst),
		glulxasm.LabelRef{Target: tp.Base}, glulxasm.LabelRef{Target: tp.CurCount},
		glulxasm.Imm{Value: int32(tp.MaxCount)}, local(delta), local(initVal))
}

func emitTableFill(fr *frame, w *wasmin.Instr) []glulxasm.Item {
	tp := fr.ctx.Plan.Tables[w.TableIdx]
	n, val, idx := pop1(fr), pop1(fr), pop1(fr)
	return callRT(fr, fr.ctx.RT.TableFill, glulxasm.Discard{},
		glulxasm.LabelRef{Target: tp.Base}, glulxasm.LabelRef{Target: tp.CurCount},
		local(idx), local(val), local(n))
}

func emitRefIsNull(fr *frame) []glulxasm.Item {
	v := pop1(fr)
	dst := push1(fr, wasmin.ValTypeI32)
	isTrue := fr.ctx.Seq.New(glulxasm.KindROM, "ref_is_null_true")
	after := fr.ctx.Seq.New(glulxasm.KindROM, "ref_is_null_after")
	return []glulxasm.Item{
		instr(glulxasm.OpJz, local(v), glulxasm.BranchTarget{Target: isTrue}),
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(dst)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: after}),
		glulxasm.ItemLabel{Name: isTrue},
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 1}, local(dst)),
		glulxasm.ItemLabel{Name: after},
	}
}

// loadValTypeOf/storeOpcode mirror internal/ir's own unexported
// loadValType/storeValType tables, since codegen needs the same
// opcode-to-width mapping to pick the right rtlib routine and
// sign/zero-extension.
func loadValTypeOf(op wasmin.Opcode) (wasmin.ValType, bool) {
	switch op {
	case wasmin.OpI32Load, wasmin.OpI32Load8S, wasmin.OpI32Load8U, wasmin.OpI32Load16S, wasmin.OpI32Load16U:
		return wasmin.ValTypeI32, true
	case wasmin.OpI64Load, wasmin.OpI64Load8S, wasmin.OpI64Load8U, wasmin.OpI64Load16S, wasmin.OpI64Load16U, wasmin.OpI64Load32S, wasmin.OpI64Load32U:
		return wasmin.ValTypeI64, true
	case wasmin.OpF32Load:
		return wasmin.ValTypeF32, true
	case wasmin.OpF64Load:
		return wasmin.ValTypeF64, true
	}
	return 0, false
}

func storeOpcode(op wasmin.Opcode) bool {
	switch op {
	case wasmin.OpI32Store, wasmin.OpI32Store8, wasmin.OpI32Store16,
		wasmin.OpI64Store, wasmin.OpI64Store8, wasmin.OpI64Store16, wasmin.OpI64Store32,
		wasmin.OpF32Store, wasmin.OpF64Store:
		return true
	}
	return false
}

// emitMemLoad computes the effective address (the dynamic i32 base plus
// the instruction's static offset; the rtlib routine bounds-checks it),
// loads the raw widened bit pattern via the matching Memload8/16/32/64
// routine, then sign-extends the "_s" loads — internal/rtlib/
// memaccess.go deliberately leaves sign extension to codegen.
func emitMemLoad(fr *frame, w *wasmin.Instr, vt wasmin.ValType) []glulxasm.Item {
	addr := pop1(fr)
	var items []glulxasm.Item
	if w.Mem.Offset != 0 {
		items = append(items, instr(glulxasm.OpAdd, local(addr), glulxasm.Imm{Value: int32(w.Mem.Offset)}, local(addr)))
	}

	dst := fr.push(vt)

	switch w.Op {
	case wasmin.OpI32Load:
		items = append(items, callRT(fr, fr.ctx.RT.Memload32, local(dst), local(addr))...)
	case wasmin.OpI32Load8S:
		items = append(items, callRT(fr, fr.ctx.RT.Memload8, local(dst), local(addr))...)
		items = append(items, instr(glulxasm.OpSexb, local(dst), local(dst)))
	case wasmin.OpI32Load8U:
		items = append(items, callRT(fr, fr.ctx.RT.Memload8, local(dst), local(addr))...)
	case wasmin.OpI32Load16S:
		items = append(items, callRT(fr, fr.ctx.RT.Memload16, local(dst), local(addr))...)
		items = append(items, instr(glulxasm.OpSexs, local(dst), local(dst)))
	case wasmin.OpI32Load16U:
		items = append(items, callRT(fr, fr.ctx.RT.Memload16, local(dst), local(addr))...)

	case wasmin.OpI64Load:
		items = append(items, callRTHi(fr, fr.ctx.RT.Memload64, dst, local(addr))...)
	case wasmin.OpI64Load8S:
		items = append(items, callRT(fr, fr.ctx.RT.Memload8, local(dst+1), local(addr))...)
		items = append(items, instr(glulxasm.OpSexb, local(dst+1), local(dst+1)))
		items = append(items, instr(glulxasm.OpSshiftr, local(dst+1), glulxasm.Imm{Value: 31}, local(dst)))
	case wasmin.OpI64Load8U:
		items = append(items, callRT(fr, fr.ctx.RT.Memload8, local(dst+1), local(addr))...)
		items = append(items, instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(dst)))
	case wasmin.OpI64Load16S:
		items = append(items, callRT(fr, fr.ctx.RT.Memload16, local(dst+1), local(addr))...)
		items = append(items, instr(glulxasm.OpSexs, local(dst+1), local(dst+1)))
		items = append(items, instr(glulxasm.OpSshiftr, local(dst+1), glulxasm.Imm{Value: 31}, local(dst)))
	case wasmin.OpI64Load16U:
		items = append(items, callRT(fr, fr.ctx.RT.Memload16, local(dst+1), local(addr))...)
		items = append(items, instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(dst)))
	case wasmin.OpI64Load32S:
		items = append(items, callRT(fr, fr.ctx.RT.Memload32, local(dst+1), local(addr))...)
		items = append(items, instr(glulxasm.OpSshiftr, local(dst+1), glulxasm.Imm{Value: 31}, local(dst)))
	case wasmin.OpI64Load32U:
		items = append(items, callRT(fr, fr.ctx.RT.Memload32, local(dst+1), local(addr))...)
		items = append(items, instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(dst)))

	case wasmin.OpF32Load:
		items = append(items, callRT(fr, fr.ctx.RT.Memload32, local(dst), local(addr))...)
	case wasmin.OpF64Load:
		items = append(items, callRTHi(fr, fr.ctx.RT.Memload64, dst, local(addr))...)
	}
	return items
}

func emitMemStore(fr *frame, w *wasmin.Instr) []glulxasm.Item {
	val, _ := fr.pop()
	addr := pop1(fr)
	var items []glulxasm.Item
	if w.Mem.Offset != 0 {
		items = append(items, instr(glulxasm.OpAdd, local(addr), glulxasm.Imm{Value: int32(w.Mem.Offset)}, local(addr)))
	}

	switch w.Op {
	case wasmin.OpI32Store, wasmin.OpF32Store:
		items = append(items, callRT(fr, fr.ctx.RT.Memstore32, glulxasm.Discard{}, local(addr), local(val))...)
	case wasmin.OpI32Store8:
		items = append(items, callRT(fr, fr.ctx.RT.Memstore8, glulxasm.Discard{}, local(addr), local(val))...)
	case wasmin.OpI64Store8:
		items = append(items, callRT(fr, fr.ctx.RT.Memstore8, glulxasm.Discard{}, local(addr), local(val+1))...)
	case wasmin.OpI32Store16:
		items = append(items, callRT(fr, fr.ctx.RT.Memstore16, glulxasm.Discard{}, local(addr), local(val))...)
	case wasmin.OpI64Store16:
		items = append(items, callRT(fr, fr.ctx.RT.Memstore16, glulxasm.Discard{}, local(addr), local(val+1))...)
	case wasmin.OpI64Store32:
		items = append(items, callRT(fr, fr.ctx.RT.Memstore32, glulxasm.Discard{}, local(addr), local(val+1))...)
	case wasmin.OpI64Store, wasmin.OpF64Store:
		items = append(items, callRT(fr, fr.ctx.RT.Memstore64, glulxasm.Discard{}, local(addr), local(val+1), local(val))...)
	}
	return items
}

// materializeBool pops a comparison's operands and writes 0/1 into a
// fresh stack slot — used whenever an f32 comparison appears
// unfused (its result consumed as an ordinary value, not by a branch).
func materializeBool(fr *frame, jumpOp uint32, arity int) []glulxasm.Item {
	ops := make([]glulxasm.Operand, arity)
	for i := arity - 1; i >= 0; i-- {
		ops[i] = local(pop1(fr))
	}
	dst := push1(fr, wasmin.ValTypeI32)
	isTrue := fr.ctx.Seq.New(glulxasm.KindROM, "cmp_true")
	after := fr.ctx.Seq.New(glulxasm.KindROM, "cmp_after")
	items := []glulxasm.Item{instr(jumpOp, append(append([]glulxasm.Operand{}, ops...), glulxasm.BranchTarget{Target: isTrue})...)}
	items = append(items,
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(dst)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: after}),
		glulxasm.ItemLabel{Name: isTrue},
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 1}, local(dst)),
		glulxasm.ItemLabel{Name: after},
	)
	return items
}

func binOp32(fr *frame, op uint32) []glulxasm.Item {
	b, a := pop1(fr), pop1(fr)
	dst := push1(fr, wasmin.ValTypeI32)
	return []glulxasm.Item{instr(op, local(a), local(b), local(dst))}
}

func unOp32(fr *frame, op uint32, vt wasmin.ValType) []glulxasm.Item {
	a := pop1(fr)
	dst := push1(fr, vt)
	return []glulxasm.Item{instr(op, local(a), local(dst))}
}

// emitArith handles every remaining ClassOther opcode not dispatched
// directly by emitNucleus: arithmetic, comparisons, and conversions.
func emitArith(fr *frame, in ir.Instr) []glulxasm.Item {
	w := in.Wasm
	rt := fr.ctx.RT
	switch w.Op {
	case wasmin.OpI32Add:
		return binOp32(fr, glulxasm.OpAdd)
	case wasmin.OpI32Sub:
		return binOp32(fr, glulxasm.OpSub)
	case wasmin.OpI32Mul:
		return binOp32(fr, glulxasm.OpMul)
	case wasmin.OpI32And:
		return binOp32(fr, glulxasm.OpBitand)
	case wasmin.OpI32Or:
		return binOp32(fr, glulxasm.OpBitor)
	case wasmin.OpI32Xor:
		return binOp32(fr, glulxasm.OpBitxor)
	case wasmin.OpI32Shl:
		return binOp32(fr, glulxasm.OpShiftl)
	case wasmin.OpI32ShrS:
		return binOp32(fr, glulxasm.OpSshiftr)
	case wasmin.OpI32ShrU:
		return binOp32(fr, glulxasm.OpUshiftr)
	case wasmin.OpI32DivS:
		return emitDivS32(fr)
	case wasmin.OpI32RemS:
		return emitRemS32(fr)
	case wasmin.OpI32DivU:
		return emitDivRemU32(fr, rt.Divu)
	case wasmin.OpI32RemU:
		return emitDivRemU32(fr, rt.Remu)
	case wasmin.OpI32Rotl:
		return callBin32(fr, rt.Rotl)
	case wasmin.OpI32Rotr:
		return callBin32(fr, rt.Rotr)
	case wasmin.OpI32Clz:
		return callUn32(fr, rt.Clz)
	case wasmin.OpI32Ctz:
		return callUn32(fr, rt.Ctz)
	case wasmin.OpI32Popcnt:
		return callUn32(fr, rt.Popcnt)

	// Unfused i32 comparisons call rtlib's own materialize-0/1 routines
	// directly (internal/rtlib/intops.go) rather than re-deriving the
	// same branch-then-materialize idiom here; the fused path (as a
	// br_if/if/select condition) never reaches emitArith at all, since
	// emitNucleus/emitBranch/emitSelect consume in.Test before falling
	// through to it.
	case wasmin.OpI32Eqz:
		return callUn32(fr, rt.Eqz)
	case wasmin.OpI32Eq:
		return callBin32(fr, rt.Eq)
	case wasmin.OpI32Ne:
		return callBin32(fr, rt.Ne)
	case wasmin.OpI32LtS:
		return callBin32(fr, rt.Lt)
	case wasmin.OpI32LtU:
		return callBin32(fr, rt.Ltu)
	case wasmin.OpI32GtS:
		return callBin32(fr, rt.Gt)
	case wasmin.OpI32GtU:
		return callBin32(fr, rt.Gtu)
	case wasmin.OpI32LeS:
		return callBin32(fr, rt.Le)
	case wasmin.OpI32LeU:
		return callBin32(fr, rt.Leu)
	case wasmin.OpI32GeS:
		return callBin32(fr, rt.Ge)
	case wasmin.OpI32GeU:
		return callBin32(fr, rt.Geu)

	case wasmin.OpI64Add:
		return callBin64(fr, rt.Add64)
	case wasmin.OpI64Sub:
		return callBin64(fr, rt.Sub64)
	case wasmin.OpI64Mul:
		return callBin64(fr, rt.Mul64)
	case wasmin.OpI64And:
		return callBin64(fr, rt.And64)
	case wasmin.OpI64Or:
		return callBin64(fr, rt.Or64)
	case wasmin.OpI64Xor:
		return callBin64(fr, rt.Xor64)
	case wasmin.OpI64Shl:
		return callShift64(fr, rt.Shl64)
	case wasmin.OpI64ShrS:
		return callShift64(fr, rt.ShrS64)
	case wasmin.OpI64ShrU:
		return callShift64(fr, rt.ShrU64)
	case wasmin.OpI64Rotl:
		return callShift64(fr, rt.Rotl64)
	case wasmin.OpI64Rotr:
		return callShift64(fr, rt.Rotr64)
	case wasmin.OpI64DivS:
		return callBin64(fr, rt.DivS64)
	case wasmin.OpI64DivU:
		return callBin64(fr, rt.DivU64)
	case wasmin.OpI64RemS:
		return callBin64(fr, rt.RemS64)
	case wasmin.OpI64RemU:
		return callBin64(fr, rt.RemU64)
	case wasmin.OpI64Clz:
		return callUn64To32(fr, rt.Clz64)
	case wasmin.OpI64Ctz:
		return callUn64To32(fr, rt.Ctz64)
	case wasmin.OpI64Popcnt:
		return callUn64To32(fr, rt.Popcnt64)

	case wasmin.OpI64Eqz:
		return cmp64ToI32(fr, rt.Eqz64, true)
	case wasmin.OpI64Eq:
		return cmp64ToI32(fr, rt.Eq64, false)
	case wasmin.OpI64Ne:
		return cmp64ToI32(fr, rt.Ne64, false)
	case wasmin.OpI64LtS:
		return cmp64ToI32(fr, rt.LtS64, false)
	case wasmin.OpI64LtU:
		return cmp64ToI32(fr, rt.LtU64, false)
	case wasmin.OpI64GtS:
		return cmp64ToI32(fr, rt.GtS64, false)
	case wasmin.OpI64GtU:
		return cmp64ToI32(fr, rt.GtU64, false)
	case wasmin.OpI64LeS:
		return cmp64ToI32(fr, rt.LeS64, false)
	case wasmin.OpI64LeU:
		return cmp64ToI32(fr, rt.LeU64, false)
	case wasmin.OpI64GeS:
		return cmp64ToI32(fr, rt.GeS64, false)
	case wasmin.OpI64GeU:
		return cmp64ToI32(fr, rt.GeU64, false)

	case wasmin.OpF32Add:
		return fbinOp(fr, glulxasm.OpFadd, wasmin.ValTypeF32)
	case wasmin.OpF32Sub:
		return fbinOp(fr, glulxasm.OpFsub, wasmin.ValTypeF32)
	case wasmin.OpF32Mul:
		return fbinOp(fr, glulxasm.OpFmul, wasmin.ValTypeF32)
	case wasmin.OpF32Div:
		return fbinOp(fr, glulxasm.OpFdiv, wasmin.ValTypeF32)
	case wasmin.OpF32Min:
		return callBinF32(fr, rt.FMin)
	case wasmin.OpF32Max:
		return callBinF32(fr, rt.FMax)
	case wasmin.OpF32Copysign:
		return callBinF32(fr, rt.FCopysign)
	case wasmin.OpF32Abs:
		return fbitOp32(fr, 0x7FFFFFFF, false)
	case wasmin.OpF32Neg:
		return fbitOp32(fr, int32(-2147483648), true)
	case wasmin.OpF32Sqrt:
		return funOpF(fr, glulxasm.OpSqrt, wasmin.ValTypeF32)
	case wasmin.OpF32Ceil:
		return funOpF(fr, glulxasm.OpCeil, wasmin.ValTypeF32)
	case wasmin.OpF32Floor:
		return funOpF(fr, glulxasm.OpFloor, wasmin.ValTypeF32)
	case wasmin.OpF32Trunc:
		return callUnF32(fr, rt.FTrunc)
	case wasmin.OpF32Nearest:
		return callUnF32(fr, rt.FNearest)

	case wasmin.OpF64Add:
		return dbinOp(fr, glulxasm.OpDadd)
	case wasmin.OpF64Sub:
		return dbinOp(fr, glulxasm.OpDsub)
	case wasmin.OpF64Mul:
		return dbinOp(fr, glulxasm.OpDmul)
	case wasmin.OpF64Div:
		return dbinOp(fr, glulxasm.OpDdiv)
	case wasmin.OpF64Min:
		return callBinF64(fr, rt.DMin)
	case wasmin.OpF64Max:
		return callBinF64(fr, rt.DMax)
	case wasmin.OpF64Copysign:
		return callBinF64(fr, rt.DCopysign)
	case wasmin.OpF64Abs:
		return dbitOp(fr, 0x7FFFFFFF, false)
	case wasmin.OpF64Neg:
		return dbitOp(fr, int32(-2147483648), true)
	case wasmin.OpF64Sqrt:
		return dunOpD(fr, glulxasm.OpDsqrt)
	case wasmin.OpF64Ceil:
		return dunOpD(fr, glulxasm.OpDceil)
	case wasmin.OpF64Floor:
		return dunOpD(fr, glulxasm.OpDfloor)
	case wasmin.OpF64Trunc:
		return callUnF64(fr, rt.DTrunc)
	case wasmin.OpF64Nearest:
		return callUnF64(fr, rt.DNearest)

	case wasmin.OpF32Eq:
		return materializeBool(fr, glulxasm.OpJfeq, 2)
	case wasmin.OpF32Ne:
		return materializeBool(fr, glulxasm.OpJfne, 2)
	case wasmin.OpF32Lt:
		return materializeBool(fr, glulxasm.OpJflt, 2)
	case wasmin.OpF32Gt:
		return materializeBool(fr, glulxasm.OpJfgt, 2)
	case wasmin.OpF32Le:
		return materializeBool(fr, glulxasm.OpJfle, 2)
	case wasmin.OpF32Ge:
		return materializeBool(fr, glulxasm.OpJfge, 2)
	case wasmin.OpF64Eq:
		return materializeDCompare(fr, glulxasm.OpJdeq)
	case wasmin.OpF64Ne:
		return materializeDCompare(fr, glulxasm.OpJdne)
	case wasmin.OpF64Lt:
		return materializeDCompare(fr, glulxasm.OpJdlt)
	case wasmin.OpF64Gt:
		return materializeDCompare(fr, glulxasm.OpJdgt)
	case wasmin.OpF64Le:
		return materializeDCompare(fr, glulxasm.OpJdle)
	case wasmin.OpF64Ge:
		return materializeDCompare(fr, glulxasm.OpJdge)

	case wasmin.OpI32WrapI64:
		return wrapI64ToI32(fr)
	case wasmin.OpI64ExtendI32S:
		return extendI32(fr, true)
	case wasmin.OpI64ExtendI32U:
		return extendI32(fr, false)
	case wasmin.OpI32Extend8S:
		return unOp32(fr, glulxasm.OpSexb, wasmin.ValTypeI32)
	case wasmin.OpI32Extend16S:
		return unOp32(fr, glulxasm.OpSexs, wasmin.ValTypeI32)
	case wasmin.OpI64Extend8S:
		return extend64Sub(fr, glulxasm.OpSexb)
	case wasmin.OpI64Extend16S:
		return extend64Sub(fr, glulxasm.OpSexs)
	case wasmin.OpI64Extend32S:
		return extend64From32(fr)

	case wasmin.OpI32TruncF32S:
		return truncF32ToI32(fr, rt.I32TruncF32S)
	case wasmin.OpI32TruncF32U:
		return truncF32ToI32(fr, rt.I32TruncF32U)
	case wasmin.OpI32TruncSatF32S:
		return truncF32ToI32(fr, rt.I32TruncSatF32S)
	case wasmin.OpI32TruncSatF32U:
		return truncF32ToI32(fr, rt.I32TruncSatF32U)
	case wasmin.OpI32TruncF64S:
		return truncF64ToI32(fr, rt.I32TruncF64S)
	case wasmin.OpI32TruncF64U:
		return truncF64ToI32(fr, rt.I32TruncF64U)
	case wasmin.OpI32TruncSatF64S:
		return truncF64ToI32(fr, rt.I32TruncSatF64S)
	case wasmin.OpI32TruncSatF64U:
		return truncF64ToI32(fr, rt.I32TruncSatF64U)

	case wasmin.OpI64TruncF32S:
		return truncF32ToI64(fr, rt.I64TruncF32S)
	case wasmin.OpI64TruncF32U:
		return truncF32ToI64(fr, rt.I64TruncF32U)
	case wasmin.OpI64TruncSatF32S:
		return truncF32ToI64(fr, rt.I64TruncSatF32S)
	case wasmin.OpI64TruncSatF32U:
		return truncF32ToI64(fr, rt.I64TruncSatF32U)
	case wasmin.OpI64TruncF64S:
		return truncF64ToI64(fr, rt.I64TruncF64S)
	case wasmin.OpI64TruncF64U:
		return truncF64ToI64(fr, rt.I64TruncF64U)
	case wasmin.OpI64TruncSatF64S:
		return truncF64ToI64(fr, rt.I64TruncSatF64S)
	case wasmin.OpI64TruncSatF64U:
		return truncF64ToI64(fr, rt.I64TruncSatF64U)

	case wasmin.OpF32ConvertI32S:
		return convertI32ToF32(fr)
	case wasmin.OpF32ConvertI32U:
		return convertI32UToF32(fr)
	case wasmin.OpF32ConvertI64S:
		return convertI64ToF32(fr, true)
	case wasmin.OpF32ConvertI64U:
		return convertI64ToF32(fr, false)
	case wasmin.OpF32DemoteF64:
		return demoteF64ToF32(fr)
	case wasmin.OpF64ConvertI32S:
		return convertI32ToF64(fr)
	case wasmin.OpF64ConvertI32U:
		return convertI32UToF64(fr)
	case wasmin.OpF64ConvertI64S:
		return convertI64ToF64(fr, true)
	case wasmin.OpF64ConvertI64U:
		return convertI64ToF64(fr, false)
	case wasmin.OpF64PromoteF32:
		return promoteF32ToF64(fr)

	case wasmin.OpI32ReinterpretF32:
		return reinterpret32(fr, wasmin.ValTypeI32)
	case wasmin.OpF32ReinterpretI32:
		return reinterpret32(fr, wasmin.ValTypeF32)
	case wasmin.OpI64ReinterpretF64:
		return reinterpret64(fr, wasmin.ValTypeI64)
	case wasmin.OpF64ReinterpretI64:
		return reinterpret64(fr, wasmin.ValTypeF64)
	}
	panic(fmt.Sprintf("codegen: unhandled opcode %d", w.Op))
}

func callBin32(fr *frame, fn glulxasm.Label) []glulxasm.Item {
	b, a := pop1(fr), pop1(fr)
	dst := push1(fr, wasmin.ValTypeI32)
	return callRT(fr, fn, local(dst), local(a), local(b))
}

func callUn32(fr *frame, fn glulxasm.Label) []glulxasm.Item {
	a := pop1(fr)
	dst := push1(fr, wasmin.ValTypeI32)
	return callRT(fr, fn, local(dst), local(a))
}

// emitDivS32/emitRemS32 guard Glulx's native signed div/mod against the
// two trap cases it doesn't itself reject: division by zero and
// INT32_MIN / -1 overflow. rtlib's unsigned Divu/Remu have no zero check
// of their own either, so emitDivRemU32 guards them the same way; the
// 64-bit division routines trap internally (rtlib/int64.go).
func emitDivS32(fr *frame) []glulxasm.Item {
	b, a := pop1(fr), pop1(fr)
	dst := push1(fr, wasmin.ValTypeI32)
	okZero := fr.ctx.Seq.New(glulxasm.KindROM, "divs_zok")
	okOverflow := fr.ctx.Seq.New(glulxasm.KindROM, "divs_ovok")
	return []glulxasm.Item{
		instr(glulxasm.OpJnz, local(b), glulxasm.BranchTarget{Target: okZero}),
		trapItem(fr, rtlib.TrapIntegerDivideByZero),
		glulxasm.ItemLabel{Name: okZero},
		instr(glulxasm.OpJne, local(b), glulxasm.Imm{Value: -1}, glulxasm.BranchTarget{Target: okOverflow}),
		instr(glulxasm.OpJne, local(a), glulxasm.Imm{Value: int32(-2147483648)}, glulxasm.BranchTarget{Target: okOverflow}),
		trapItem(fr, rtlib.TrapIntegerOverflow),
		glulxasm.ItemLabel{Name: okOverflow},
		instr(glulxasm.OpDiv, local(a), local(b), local(dst)),
	}
}

func emitRemS32(fr *frame) []glulxasm.Item {
	b, a := pop1(fr), pop1(fr)
	dst := push1(fr, wasmin.ValTypeI32)
	okZero := fr.ctx.Seq.New(glulxasm.KindROM, "rems_zok")
	return []glulxasm.Item{
		instr(glulxasm.OpJnz, local(b), glulxasm.BranchTarget{Target: okZero}),
		trapItem(fr, rtlib.TrapIntegerDivideByZero),
		glulxasm.ItemLabel{Name: okZero},
		instr(glulxasm.OpMod, local(a), local(b), local(dst)),
	}
}

func emitDivRemU32(fr *frame, fn glulxasm.Label) []glulxasm.Item {
	b, a := pop1(fr), pop1(fr)
	dst := push1(fr, wasmin.ValTypeI32)
	okZero := fr.ctx.Seq.New(glulxasm.KindROM, "divu_zok")
	items := []glulxasm.Item{
		instr(glulxasm.OpJnz, local(b), glulxasm.BranchTarget{Target: okZero}),
		trapItem(fr, rtlib.TrapIntegerDivideByZero),
		glulxasm.ItemLabel{Name: okZero},
	}
	return append(items, callRT(fr, fn, local(dst), local(a), local(b))...)
}

func callBin64(fr *frame, fn glulxasm.Label) []glulxasm.Item {
	bSlot, _ := fr.pop()
	aSlot, _ := fr.pop()
	dst := fr.push(wasmin.ValTypeI64)
	return callRTHi(fr, fn, dst, local(aSlot), local(aSlot+1), local(bSlot), local(bSlot+1))
}

func callShift64(fr *frame, fn glulxasm.Label) []glulxasm.Item {
	n := pop1(fr)
	vSlot, _ := fr.pop()
	dst := fr.push(wasmin.ValTypeI64)
	return callRTHi(fr, fn, dst, local(vSlot), local(vSlot+1), local(n+1))
}

// callUn64To32 calls a 64-bit routine that returns a one-word count
// (clz64/ctz64/popcnt64) and widens it to the i64 result Wasm gives
// those instructions.
func callUn64To32(fr *frame, fn glulxasm.Label) []glulxasm.Item {
	vSlot, _ := fr.pop()
	dst := fr.push(wasmin.ValTypeI64)
	items := callRT(fr, fn, local(dst+1), local(vSlot), local(vSlot+1))
	return append(items, instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(dst)))
}

func cmp64ToI32(fr *frame, fn glulxasm.Label, unary bool) []glulxasm.Item {
	if unary {
		vSlot, _ := fr.pop()
		dst := push1(fr, wasmin.ValTypeI32)
		return callRT(fr, fn, local(dst), local(vSlot), local(vSlot+1))
	}
	bSlot, _ := fr.pop()
	aSlot, _ := fr.pop()
	dst := push1(fr, wasmin.ValTypeI32)
	return callRT(fr, fn, local(dst), local(aSlot), local(aSlot+1), local(bSlot), local(bSlot+1))
}

func fbinOp(fr *frame, op uint32, vt wasmin.ValType) []glulxasm.Item {
	b, a := pop1(fr), pop1(fr)
	dst := push1(fr, vt)
	return []glulxasm.Item{instr(op, local(a), local(b), local(dst))}
}

func callBinF32(fr *frame, fn glulxasm.Label) []glulxasm.Item {
	b, a := pop1(fr), pop1(fr)
	dst := push1(fr, wasmin.ValTypeF32)
	return callRT(fr, fn, local(dst), local(a), local(b))
}

func callUnF32(fr *frame, fn glulxasm.Label) []glulxasm.Item {
	a := pop1(fr)
	dst := push1(fr, wasmin.ValTypeF32)
	return callRT(fr, fn, local(dst), local(a))
}

func funOpF(fr *frame, op uint32, vt wasmin.ValType) []glulxasm.Item {
	a := pop1(fr)
	dst := push1(fr, vt)
	return []glulxasm.Item{instr(op, local(a), local(dst))}
}

// fbitOp32 implements f32.abs/f32.neg: Glulx has no dedicated float
// sign opcode, but clearing or flipping the top bit of the raw int32 is
// exactly IEEE-754 abs/neg.
func fbitOp32(fr *frame, bits int32, xor bool) []glulxasm.Item {
	a := pop1(fr)
	dst := push1(fr, wasmin.ValTypeF32)
	op := uint32(glulxasm.OpBitand)
	if xor {
		op = glulxasm.OpBitxor
	}
	return []glulxasm.Item{instr(op, local(a), glulxasm.Imm{Value: bits}, local(dst))}
}

func dbinOp(fr *frame, op uint32) []glulxasm.Item {
	bSlot, _ := fr.pop()
	aSlot, _ := fr.pop()
	dst := fr.push(wasmin.ValTypeF64)
	return []glulxasm.Item{instr(op, local(aSlot), local(aSlot+1), local(bSlot), local(bSlot+1), local(dst), local(dst+1))}
}

func callBinF64(fr *frame, fn glulxasm.Label) []glulxasm.Item {
	bSlot, _ := fr.pop()
	aSlot, _ := fr.pop()
	dst := fr.push(wasmin.ValTypeF64)
	return callRTHi(fr, fn, dst, local(aSlot), local(aSlot+1), local(bSlot), local(bSlot+1))
}

func callUnF64(fr *frame, fn glulxasm.Label) []glulxasm.Item {
	aSlot, _ := fr.pop()
	dst := fr.push(wasmin.ValTypeF64)
	return callRTHi(fr, fn, dst, local(aSlot), local(aSlot+1))
}

func dunOpD(fr *frame, op uint32) []glulxasm.Item {
	aSlot, _ := fr.pop()
	dst := fr.push(wasmin.ValTypeF64)
	return []glulxasm.Item{instr(op, local(aSlot), local(aSlot+1), local(dst), local(dst+1))}
}

// dbitOp implements f64.abs/f64.neg the same bitwise way fbitOp32 does,
// operating on the high (sign-bearing) word only; the low word is
// copied through unchanged.
func dbitOp(fr *frame, bits int32, xor bool) []glulxasm.Item {
	aSlot, _ := fr.pop()
	dst := fr.push(wasmin.ValTypeF64)
	op := uint32(glulxasm.OpBitand)
	if xor {
		op = glulxasm.OpBitxor
	}
	return []glulxasm.Item{
		instr(op, local(aSlot), glulxasm.Imm{Value: bits}, local(dst)),
		instr(glulxasm.OpCopy, local(aSlot+1), local(dst+1)),
	}
}

func materializeDCompare(fr *frame, op uint32) []glulxasm.Item {
	bSlot, _ := fr.pop()
	aSlot, _ := fr.pop()
	dst := push1(fr, wasmin.ValTypeI32)
	isTrue := fr.ctx.Seq.New(glulxasm.KindROM, "dcmp_true")
	after := fr.ctx.Seq.New(glulxasm.KindROM, "dcmp_after")
	return []glulxasm.Item{
		instr(op, local(aSlot), local(aSlot+1), local(bSlot), local(bSlot+1), glulxasm.BranchTarget{Target: isTrue}),
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(dst)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: after}),
		glulxasm.ItemLabel{Name: isTrue},
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 1}, local(dst)),
		glulxasm.ItemLabel{Name: after},
	}
}

func wrapI64ToI32(fr *frame) []glulxasm.Item {
	vSlot, _ := fr.pop()
	dst := push1(fr, wasmin.ValTypeI32)
	return []glulxasm.Item{instr(glulxasm.OpCopy, local(vSlot+1), local(dst))}
}

func extendI32(fr *frame, signed bool) []glulxasm.Item {
	a := pop1(fr)
	dst := fr.push(wasmin.ValTypeI64)
	if signed {
		return []glulxasm.Item{
			instr(glulxasm.OpSshiftr, local(a), glulxasm.Imm{Value: 31}, local(dst)),
			instr(glulxasm.OpCopy, local(a), local(dst+1)),
		}
	}
	return []glulxasm.Item{
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(dst)),
		instr(glulxasm.OpCopy, local(a), local(dst+1)),
	}
}

func extend64Sub(fr *frame, op uint32) []glulxasm.Item {
	vSlot, _ := fr.pop()
	dst := fr.push(wasmin.ValTypeI64)
	return []glulxasm.Item{
		instr(op, local(vSlot+1), local(dst+1)),
		instr(glulxasm.OpSshiftr, local(dst+1), glulxasm.Imm{Value: 31}, local(dst)),
	}
}

func extend64From32(fr *frame) []glulxasm.Item {
	vSlot, _ := fr.pop()
	dst := fr.push(wasmin.ValTypeI64)
	return []glulxasm.Item{
		instr(glulxasm.OpCopy, local(vSlot+1), local(dst+1)),
		instr(glulxasm.OpSshiftr, local(dst+1), glulxasm.Imm{Value: 31}, local(dst)),
	}
}

func truncF32ToI32(fr *frame, fn glulxasm.Label) []glulxasm.Item {
	a := pop1(fr)
	dst := push1(fr, wasmin.ValTypeI32)
	return callRT(fr, fn, local(dst), local(a))
}

func truncF64ToI32(fr *frame, fn glulxasm.Label) []glulxasm.Item {
	aSlot, _ := fr.pop()
	dst := push1(fr, wasmin.ValTypeI32)
	return callRT(fr, fn, local(dst), local(aSlot), local(aSlot+1))
}

func truncF32ToI64(fr *frame, fn glulxasm.Label) []glulxasm.Item {
	a := pop1(fr)
	dst := fr.push(wasmin.ValTypeI64)
	return callRTHi(fr, fn, dst, local(a))
}

func truncF64ToI64(fr *frame, fn glulxasm.Label) []glulxasm.Item {
	aSlot, _ := fr.pop()
	dst := fr.push(wasmin.ValTypeI64)
	return callRTHi(fr, fn, dst, local(aSlot), local(aSlot+1))
}

func convertI32ToF32(fr *frame) []glulxasm.Item {
	a := pop1(fr)
	dst := push1(fr, wasmin.ValTypeF32)
	return []glulxasm.Item{instr(glulxasm.OpNumtof, local(a), local(dst))}
}

// convertI32UToF32 converts as signed, then corrects for the case the
// top bit was actually a magnitude bit, not a sign bit: the unsigned
// value equals the signed interpretation plus 2^32 whenever the signed
// interpretation came out negative.
func convertI32UToF32(fr *frame) []glulxasm.Item {
	a := pop1(fr)
	dst := push1(fr, wasmin.ValTypeF32)
	after := fr.ctx.Seq.New(glulxasm.KindROM, "cvt_u32_f32_after")
	return []glulxasm.Item{
		instr(glulxasm.OpNumtof, local(a), local(dst)),
		instr(glulxasm.OpJge, local(a), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: after}),
		instr(glulxasm.OpFadd, local(dst), glulxasm.Imm{Value: int32(math.Float32bits(4294967296.0))}, local(dst)),
		glulxasm.ItemLabel{Name: after},
	}
}

func convertI32ToF64(fr *frame) []glulxasm.Item {
	a := pop1(fr)
	dst := fr.push(wasmin.ValTypeF64)
	return []glulxasm.Item{instr(glulxasm.OpNumtod, local(a), local(dst), local(dst+1))}
}

func convertI32UToF64(fr *frame) []glulxasm.Item {
	a := pop1(fr)
	dst := fr.push(wasmin.ValTypeF64)
	after := fr.ctx.Seq.New(glulxasm.KindROM, "cvt_u32_f64_after")
	hi, lo := f64Imm(4294967296.0)
	return []glulxasm.Item{
		instr(glulxasm.OpNumtod, local(a), local(dst), local(dst+1)),
		instr(glulxasm.OpJge, local(a), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: after}),
		instr(glulxasm.OpDadd, local(dst), local(dst+1), hi, lo, local(dst), local(dst+1)),
		glulxasm.ItemLabel{Name: after},
	}
}

// convertI64ToF64 decomposes the 64-bit value into its two 32-bit
// halves and reassembles it as hi*2^32 + lo, each half converted with
// the same sign-correction convertI32UToF64/convertI32ToF32 use —
// exact two's-complement decomposition, since lo is always the
// unsigned low-order magnitude regardless of the overall value's
// signedness, and only the treatment of hi differs between the signed
// and unsigned entry points.
func convertI64ToF64(fr *frame, signed bool) []glulxasm.Item {
	vSlot, _ := fr.pop()
	hiWord, loWord := vSlot, vSlot+1
	dst := fr.push(wasmin.ValTypeF64)
	scale := fr.scratchBase + uint32(fr.stackWords())
	fr.bump(scale - fr.scratchBase + 2)

	var items []glulxasm.Item
	// dst = numtod(loWord), corrected to unsigned range.
	loAfter := fr.ctx.Seq.New(glulxasm.KindROM, "cvt_i64_f64_lo_after")
	items = append(items,
		instr(glulxasm.OpNumtod, local(loWord), local(dst), local(dst+1)),
		instr(glulxasm.OpJge, local(loWord), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: loAfter}),
	)
	hi32, lo32 := f64Imm(4294967296.0)
	items = append(items,
		instr(glulxasm.OpDadd, local(dst), local(dst+1), hi32, lo32, local(dst), local(dst+1)),
		glulxasm.ItemLabel{Name: loAfter},
	)

	// scale = numtod(hiWord) * 2^32, corrected to unsigned range unless
	// the conversion is signed (where hiWord's sign bit is the whole
	// value's true sign, and no correction belongs here).
	items = append(items, instr(glulxasm.OpNumtod, local(hiWord), local(scale), local(scale+1)))
	if !signed {
		hiAfter := fr.ctx.Seq.New(glulxasm.KindROM, "cvt_i64_f64_hi_after")
		hi64, lo64 := f64Imm(4294967296.0)
		items = append(items,
			instr(glulxasm.OpJge, local(hiWord), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: hiAfter}),
			instr(glulxasm.OpDadd, local(scale), local(scale+1), hi64, lo64, local(scale), local(scale+1)),
			glulxasm.ItemLabel{Name: hiAfter},
		)
	}
	scaleHi, scaleLo := f64Imm(4294967296.0)
	items = append(items, instr(glulxasm.OpDmul, local(scale), local(scale+1), scaleHi, scaleLo, local(scale), local(scale+1)))
	items = append(items, instr(glulxasm.OpDadd, local(dst), local(dst+1), local(scale), local(scale+1), local(dst), local(dst+1)))
	return items
}

func convertI64ToF32(fr *frame, signed bool) []glulxasm.Item {
	items := convertI64ToF64(fr, signed)
	dSlot, _ := fr.pop()
	dst := push1(fr, wasmin.ValTypeF32)
	items = append(items, instr(glulxasm.OpDtof, local(dSlot), local(dSlot+1), local(dst)))
	return items
}

func demoteF64ToF32(fr *frame) []glulxasm.Item {
	aSlot, _ := fr.pop()
	dst := push1(fr, wasmin.ValTypeF32)
	return []glulxasm.Item{instr(glulxasm.OpDtof, local(aSlot), local(aSlot+1), local(dst))}
}

func promoteF32ToF64(fr *frame) []glulxasm.Item {
	a := pop1(fr)
	dst := fr.push(wasmin.ValTypeF64)
	return []glulxasm.Item{instr(glulxasm.OpFtod, local(a), local(dst), local(dst+1))}
}

func reinterpret32(fr *frame, vt wasmin.ValType) []glulxasm.Item {
	a := pop1(fr)
	dst := push1(fr, vt)
	return []glulxasm.Item{instr(glulxasm.OpCopy, local(a), local(dst))}
}

func reinterpret64(fr *frame, vt wasmin.ValType) []glulxasm.Item {
	aSlot, _ := fr.pop()
	dst := fr.push(vt)
	return []glulxasm.Item{
		instr(glulxasm.OpCopy, local(aSlot), local(dst)),
		instr(glulxasm.OpCopy, local(aSlot+1), local(dst+1)),
	}
}

// f64Imm splits a float64 constant into the (hi, lo) Imm pair Glulx's
// double-precision opcodes take as two consecutive word operands.
func f64Imm(v float64) (hi, lo glulxasm.Imm) {
	bits := math.Float64bits(v)
	return glulxasm.Imm{Value: int32(bits >> 32)}, glulxasm.Imm{Value: int32(bits & 0xFFFFFFFF)}
}

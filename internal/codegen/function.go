package codegen

import (
	"github.com/glulxvm/wasm2glulx/internal/glulxasm"
	"github.com/glulxvm/wasm2glulx/internal/ir"
	"github.com/glulxvm/wasm2glulx/internal/wasmin"
)

// blockCtx is one entry of a frame's nested-control-flow stack: the
// bookkeeping a branch into this construct needs to reconcile the live
// value stack against the construct's own arity.
type blockCtx struct {
	// baseWords is the scratch-stack depth, in words, at the point this
	// construct was entered — the position its carried values must be
	// copied down to when a branch targets it.
	baseWords int

	// resultTypes is what a branch to this construct carries: the
	// construct's result types for a block/if, or its parameter types
	// for a loop (a loop's "branch target" is its own top, which expects
	// to receive another round of its parameters).
	resultTypes []wasmin.ValType

	// target is where execution resumes: the end label for a block/if,
	// the top label for a loop.
	target glulxasm.Label

	// isLoop distinguishes the two purely for readability at call sites;
	// resultTypes already encodes the behavioral difference.
	isLoop bool
}

func (b *blockCtx) resultWords() int { return resultWords(b.resultTypes) }

// frame is the per-function compilation state threaded through
// component H's codegen.
type frame struct {
	ctx   *Context
	fn    *wasmin.Function
	sig   wasmin.FuncType
	label glulxasm.Label

	// localSlot[i] is the scratch-local slot of the function-local index
	// i (parameters first, then declared locals, exactly as
	// wasmin.Module.LocalTypeOf resolves them).
	localSlot []uint32
	localType []wasmin.ValType

	// scratchBase is the first local slot not occupied by a parameter or
	// declared local — where the modeled value stack begins.
	scratchBase uint32

	// stack is the live Wasm operand stack, bottom first.
	stack []wasmin.ValType

	// maxWords tracks the deepest the scratch region has gone, so the
	// function header can reserve enough locals up front.
	maxWords uint32

	blocks []*blockCtx
}

// stackWords is the total word-width of everything currently on the
// modeled value stack.
func (fr *frame) stackWords() int { return resultWords(fr.stack) }

// slotOf returns the scratch slot of the stack entry at depth i from the
// bottom (0-indexed).
func (fr *frame) slotOf(i int) uint32 {
	w := 0
	for j := 0; j < i; j++ {
		w += fr.stack[j].Size32()
	}
	return fr.scratchBase + uint32(w)
}

func (fr *frame) bump(words uint32) {
	if words > fr.maxWords {
		fr.maxWords = words
	}
}

// push allocates the next scratch slot(s) for a value of type t and
// records it on the modeled stack, returning the slot its low word
// lives at for i32/f32 — or, for i64/f64, the slot its HIGH word lives
// at (the low word follows at slot+1), matching internal/wasmin's
// declared big-endian (hi, lo) word order and internal/rtlib's own
// (hi, lo) argument convention for its 64-bit routines, so a stack
// value can be passed straight through as (local(slot), local(slot+1))
// with no reshuffling.
func (fr *frame) push(t wasmin.ValType) uint32 {
	slot := fr.scratchBase + uint32(fr.stackWords())
	fr.stack = append(fr.stack, t)
	fr.bump(slot - fr.scratchBase + uint32(t.Size32()))
	return slot
}

// pop removes the top stack entry and returns its slot.
func (fr *frame) pop() (uint32, wasmin.ValType) {
	t := fr.stack[len(fr.stack)-1]
	slot := fr.slotOf(len(fr.stack) - 1)
	fr.stack = fr.stack[:len(fr.stack)-1]
	return slot, t
}

// operand returns the Local operand a value on the stack currently
// lives at, without popping it — used when an instruction's low-level
// emission wants to reference a stack slot directly as an operand.
func (fr *frame) operand(slot uint32) glulxasm.Operand { return local(slot) }

// buildLocalRuns packs n consecutive 4-byte locals into the
// glulxasm.ItemFnHeader run-length form, chunked at 255 per run (the
// format's per-run count is a single byte). internal/rtlib's emitFunc
// writes its routines' few locals as a single run instead.
func buildLocalRuns(n uint32) [][2]byte {
	var runs [][2]byte
	for n > 0 {
		c := n
		if c > 255 {
			c = 255
		}
		runs = append(runs, [2]byte{4, byte(c)})
		n -= c
	}
	return runs
}

// compileFunction lowers one locally defined function's body into a
// complete Glulx function at label, per spec.md §4.I: allocate locals
// for parameters and declared locals, classify and subsequence the
// body, emit every subsequence, then synthesize the epilogue every
// Wasm function implicitly falls off into (a return of whatever the
// signature's result types demand).
func compileFunction(ctx *Context, fn *wasmin.Function, label glulxasm.Label) {
	sig := ctx.Module.Types[fn.TypeIndex]

	fr := &frame{ctx: ctx, fn: fn, sig: sig, label: label}

	numLocals := uint32(len(sig.Params))
	for _, run := range fn.Locals {
		numLocals += run.Count
	}
	fr.localSlot = make([]uint32, numLocals)
	fr.localType = make([]wasmin.ValType, numLocals)
	slot := uint32(0)
	idx := uint32(0)
	for _, t := range sig.Params {
		fr.localSlot[idx] = slot
		fr.localType[idx] = t
		slot += uint32(t.Size32())
		idx++
	}
	for _, run := range fn.Locals {
		for i := uint32(0); i < run.Count; i++ {
			fr.localSlot[idx] = slot
			fr.localType[idx] = run.Type
			slot += uint32(run.Type.Size32())
			idx++
		}
	}
	fr.scratchBase = slot

	// The function's own body is lowered as though it were the body of
	// one outermost block whose result type is the signature's results
	// and whose "branch target" is the epilogue — this is exactly how
	// spec.md §1 describes `return` and fall-off-the-end unifying, and
	// lets emitEpilogue double as both paths' implementation.
	end := ctx.Seq.New(glulxasm.KindROM, "func_end")
	fr.blocks = []*blockCtx{{baseWords: 0, resultTypes: sig.Results, target: end}}

	fc := &ir.Func{Module: ctx.Module, Fn: fn, Sig: sig}
	classified := ir.Classify(fc, fn.Body, append([]wasmin.ValType{}, sig.Params...))
	subseqs := ir.Subsequence(classified)

	body := emitSubseqs(fr, subseqs)
	body = append(body, glulxasm.ItemLabel{Name: end})
	body = append(body, emitEpilogue(fr)...)

	ctx.A.EmitROM(glulxasm.ItemLabel{Name: label})
	ctx.A.EmitROM(glulxasm.ItemFnHeader{LocalRuns: buildLocalRuns(fr.scratchBase + fr.maxWords)})
	ctx.A.EmitROM(body...)
}

// emitEpilogue returns the signature's result words (already resting on
// top of the modeled stack by construction): the first word through a
// normal Glulx return, any further words through the shared hi_return
// scratch cells.
func emitEpilogue(fr *frame) []glulxasm.Item {
	n := len(fr.sig.Results)
	if n == 0 {
		return []glulxasm.Item{instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	}
	var items []glulxasm.Item
	// Pop every result off the modeled stack from the top down; word 0
	// of the signature's result list is the deepest (it was pushed
	// first) and ends up first in flattened word order.
	slots := make([]uint32, n)
	for i := n - 1; i >= 0; i-- {
		slots[i], _ = fr.pop()
	}
	words := make([]glulxasm.Operand, 0, resultWords(fr.sig.Results))
	for i, t := range fr.sig.Results {
		for w := 0; w < t.Size32(); w++ {
			words = append(words, local(slots[i]+uint32(w)))
		}
	}
	for i := 1; i < len(words); i++ {
		items = append(items, instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: fr.ctx.Plan.HiReturn}, glulxasm.Imm{Value: int32(i - 1)}, words[i]))
	}
	items = append(items, instr(glulxasm.OpReturn, words[0]))
	return items
}

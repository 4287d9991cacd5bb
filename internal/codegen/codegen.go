// Package codegen lowers a validated WebAssembly module into Glulx
// function bodies (spec.md §4.H, §4.I): function-by-function, turning
// each classified/subsequenced instruction stream (internal/ir) into a
// Glulx function that receives its arguments in its first locals.
//
// The Wasm operand stack is realized as a run of scratch locals rather
// than Glulx's own push-down stack: a value's word offset within the
// scratch region is the cumulative width of everything still logically
// beneath it, so pushing is "append a type, compute its slot" and
// popping is "remove the last type". Glulx's native Push/Pop operand
// modes are still used, the way internal/rtlib uses them, but only to
// marshal a single instruction's own operands (e.g. staging a multi-word
// call) — never to carry a value across an intervening instruction,
// since a branch or a call can disturb that stack in ways a Wasm value
// living across them can't afford. This mirrors the teacher's
// valueLocationStack in spirit (tracking where every live value lives)
// but without its register/stack dichotomy, since Glulx has no general
// registers to spill into.
package codegen

import (
	"github.com/glulxvm/wasm2glulx/internal/errs"
	"github.com/glulxvm/wasm2glulx/internal/glulxasm"
	"github.com/glulxvm/wasm2glulx/internal/layout"
	"github.com/glulxvm/wasm2glulx/internal/rtlib"
	"github.com/glulxvm/wasm2glulx/internal/wasmin"
)

// Context is the state threaded through every function's codegen.
type Context struct {
	Module *wasmin.Module
	Plan   *layout.Plan
	RT     *rtlib.Library
	Seq    *glulxasm.Sequencer
	A      *glulxasm.Assembly
	Sink   *errs.Sink

	// FuncLabels holds the call target for every entry in the function
	// index space (imports first, then locally defined functions).
	// The caller fills in the import slots before CompileFunctions
	// runs; CompileFunctions fills in the rest.
	FuncLabels []glulxasm.Label

	// GlobalOffset[i] is the byte offset of global i within Plan.Globals.
	GlobalOffset []uint32
}

// NewContext lays out the global index space and allocates FuncLabels at
// its final size, leaving the imported-function slots for the caller to
// fill in before CompileFunctions runs.
func NewContext(m *wasmin.Module, p *layout.Plan, rt *rtlib.Library, seq *glulxasm.Sequencer, a *glulxasm.Assembly, sink *errs.Sink) *Context {
	ctx := &Context{Module: m, Plan: p, RT: rt, Seq: seq, A: a, Sink: sink}
	ctx.FuncLabels = make([]glulxasm.Label, m.NumFuncs())

	ctx.GlobalOffset = make([]uint32, m.NumGlobals())
	off := uint32(0)
	for i := range ctx.GlobalOffset {
		ctx.GlobalOffset[i] = off
		off += uint32(m.GlobalTypeOf(uint32(i)).Type.Size32()) * 4
	}
	return ctx
}

// CompileFunctions runs component I over every locally defined function.
// Call after the imported-function slots have been filled in in
// ctx.FuncLabels, and before layout.BindFuncTable.
func CompileFunctions(ctx *Context) {
	base := ctx.Module.NumFuncs() - len(ctx.Module.Funcs)
	for i := range ctx.Module.Funcs {
		fn := &ctx.Module.Funcs[i]
		name := fn.Name
		if name == "" {
			name = "func"
		}
		label := ctx.Seq.New(glulxasm.KindFunction, name)
		ctx.FuncLabels[base+i] = label
		compileFunction(ctx, fn, label)
	}
}

func instr(op uint32, operands ...glulxasm.Operand) glulxasm.Item {
	return glulxasm.ItemInstr{Instr: glulxasm.NewInstr(op, operands...)}
}

func local(slot uint32) glulxasm.Local { return glulxasm.Local{Slot: slot} }

func popWord(dest uint32) glulxasm.Item {
	return instr(glulxasm.OpCopy, glulxasm.Pop{}, local(dest))
}

func pushWord(src glulxasm.Operand) glulxasm.Item {
	return instr(glulxasm.OpCopy, src, glulxasm.Push{})
}

// resultWords is the total 32-bit-word width of a list of value types.
func resultWords(ts []wasmin.ValType) int {
	n := 0
	for _, t := range ts {
		n += t.Size32()
	}
	return n
}

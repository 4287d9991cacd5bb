// Package ir is the instruction classifier and subsequencer (spec.md
// §4.F/§4.G): it sits between the raw wasmin instruction stream and
// codegen, sorting every instruction into one of six classes and then
// grouping runs of them into Copy/Block/Loop/Other subsequences so codegen
// can lower a whole subsequence at once instead of one opcode at a time.
//
// Grounded on original_source/.../codegen/classify.rs's ClassifiedInstr
// trait and InstrClass/Load/Store/Ret/Block/Loop/Other/Test enums, cut
// down to the opcode surface wasmin.Opcode actually declares: the Rust
// source's SIMD and threads/atomics arms have no counterpart here.
package ir

import "github.com/glulxvm/wasm2glulx/internal/wasmin"

// Class is the six-way partition of spec.md §4.F.
type Class int

const (
	ClassLoad Class = iota
	ClassStore
	ClassRet
	ClassBlock
	ClassLoop
	ClassOther
)

func (c Class) String() string {
	switch c {
	case ClassLoad:
		return "load"
	case ClassStore:
		return "store"
	case ClassRet:
		return "ret"
	case ClassBlock:
		return "block"
	case ClassLoop:
		return "loop"
	default:
		return "other"
	}
}

// Test names a fused i32 compare (or i32.eqz) consumed directly into a
// conditional branch instead of being materialized as a 0/1 value on the
// stack. spec.md §4.F scopes fusion to i32 comparisons only; the original
// Rust classifier additionally fuses f32 comparisons (its Test enum has
// F32Eq..F32Ge variants), a broader scope this port does not adopt — see
// DESIGN.md's open-question entry for internal/ir.
type Test int

const (
	TestNone Test = iota
	TestI32Eqz
	TestI32Eq
	TestI32Ne
	TestI32LtS
	TestI32LtU
	TestI32GtS
	TestI32GtU
	TestI32LeS
	TestI32LeU
	TestI32GeS
	TestI32GeU
)

// testFor reports the Test a given i32-comparison opcode fuses as, or
// TestNone if op isn't one of them.
func testFor(op wasmin.Opcode) Test {
	switch op {
	case wasmin.OpI32Eqz:
		return TestI32Eqz
	case wasmin.OpI32Eq:
		return TestI32Eq
	case wasmin.OpI32Ne:
		return TestI32Ne
	case wasmin.OpI32LtS:
		return TestI32LtS
	case wasmin.OpI32LtU:
		return TestI32LtU
	case wasmin.OpI32GtS:
		return TestI32GtS
	case wasmin.OpI32GtU:
		return TestI32GtU
	case wasmin.OpI32LeS:
		return TestI32LeS
	case wasmin.OpI32LeU:
		return TestI32LeU
	case wasmin.OpI32GeS:
		return TestI32GeS
	case wasmin.OpI32GeU:
		return TestI32GeU
	default:
		return TestNone
	}
}

// fusible reports whether op is one of the "hard" instructions a
// preceding i32 test can fuse into (spec.md §4.F): br_if, select, or if.
func fusible(op wasmin.Opcode) bool {
	switch op {
	case wasmin.OpBrIf, wasmin.OpSelect, wasmin.OpSelectT, wasmin.OpIf:
		return true
	default:
		return false
	}
}

// Instr is one classified instruction (or, when Test != TestNone, a fused
// pair collapsed into one). Wasm is the "hard" instruction — for a fused
// pair this is the br_if/select/if, not the compare that feeds it.
type Instr struct {
	Class   Class
	Wasm    *wasmin.Instr
	Test    Test
	Params  []wasmin.ValType
	Results []wasmin.ValType
}

// Func is the module/function/value-stack context StackEffect and
// Classify need to resolve index-dependent opcodes (local.get, call,
// table ops, ...).
type Func struct {
	Module *wasmin.Module
	Fn     *wasmin.Function
	Sig    wasmin.FuncType
}

func vt1(v wasmin.ValType) []wasmin.ValType { return []wasmin.ValType{v} }

var (
	i32    = wasmin.ValTypeI32
	i64    = wasmin.ValTypeI64
	f32    = wasmin.ValTypeF32
	f64    = wasmin.ValTypeF64
	noVals []wasmin.ValType
)

// binaryTypes maps the fixed-arity numeric binops/comparisons/unops to
// their (params, results), mirroring classify.rs's per-opcode stack_type
// arms for the non-SIMD, non-atomic subset.
var binaryTypes = map[wasmin.Opcode][2][]wasmin.ValType{
	wasmin.OpI32Add: {{i32, i32}, {i32}}, wasmin.OpI32Sub: {{i32, i32}, {i32}},
	wasmin.OpI32Mul: {{i32, i32}, {i32}}, wasmin.OpI32DivS: {{i32, i32}, {i32}},
	wasmin.OpI32DivU: {{i32, i32}, {i32}}, wasmin.OpI32RemS: {{i32, i32}, {i32}},
	wasmin.OpI32RemU: {{i32, i32}, {i32}}, wasmin.OpI32And: {{i32, i32}, {i32}},
	wasmin.OpI32Or: {{i32, i32}, {i32}}, wasmin.OpI32Xor: {{i32, i32}, {i32}},
	wasmin.OpI32Shl: {{i32, i32}, {i32}}, wasmin.OpI32ShrS: {{i32, i32}, {i32}},
	wasmin.OpI32ShrU: {{i32, i32}, {i32}}, wasmin.OpI32Rotl: {{i32, i32}, {i32}},
	wasmin.OpI32Rotr: {{i32, i32}, {i32}},

	wasmin.OpI64Add: {{i64, i64}, {i64}}, wasmin.OpI64Sub: {{i64, i64}, {i64}},
	wasmin.OpI64Mul: {{i64, i64}, {i64}}, wasmin.OpI64DivS: {{i64, i64}, {i64}},
	wasmin.OpI64DivU: {{i64, i64}, {i64}}, wasmin.OpI64RemS: {{i64, i64}, {i64}},
	wasmin.OpI64RemU: {{i64, i64}, {i64}}, wasmin.OpI64And: {{i64, i64}, {i64}},
	wasmin.OpI64Or: {{i64, i64}, {i64}}, wasmin.OpI64Xor: {{i64, i64}, {i64}},
	wasmin.OpI64Shl: {{i64, i64}, {i64}}, wasmin.OpI64ShrS: {{i64, i64}, {i64}},
	wasmin.OpI64ShrU: {{i64, i64}, {i64}}, wasmin.OpI64Rotl: {{i64, i64}, {i64}},
	wasmin.OpI64Rotr: {{i64, i64}, {i64}},

	wasmin.OpF32Add: {{f32, f32}, {f32}}, wasmin.OpF32Sub: {{f32, f32}, {f32}},
	wasmin.OpF32Mul: {{f32, f32}, {f32}}, wasmin.OpF32Div: {{f32, f32}, {f32}},
	wasmin.OpF32Min: {{f32, f32}, {f32}}, wasmin.OpF32Max: {{f32, f32}, {f32}},
	wasmin.OpF32Copysign: {{f32, f32}, {f32}},

	wasmin.OpF64Add: {{f64, f64}, {f64}}, wasmin.OpF64Sub: {{f64, f64}, {f64}},
	wasmin.OpF64Mul: {{f64, f64}, {f64}}, wasmin.OpF64Div: {{f64, f64}, {f64}},
	wasmin.OpF64Min: {{f64, f64}, {f64}}, wasmin.OpF64Max: {{f64, f64}, {f64}},
	wasmin.OpF64Copysign: {{f64, f64}, {f64}},

	wasmin.OpI32Eq: {{i32, i32}, {i32}}, wasmin.OpI32Ne: {{i32, i32}, {i32}},
	wasmin.OpI32LtS: {{i32, i32}, {i32}}, wasmin.OpI32LtU: {{i32, i32}, {i32}},
	wasmin.OpI32GtS: {{i32, i32}, {i32}}, wasmin.OpI32GtU: {{i32, i32}, {i32}},
	wasmin.OpI32LeS: {{i32, i32}, {i32}}, wasmin.OpI32LeU: {{i32, i32}, {i32}},
	wasmin.OpI32GeS: {{i32, i32}, {i32}}, wasmin.OpI32GeU: {{i32, i32}, {i32}},

	wasmin.OpI64Eq: {{i64, i64}, {i32}}, wasmin.OpI64Ne: {{i64, i64}, {i32}},
	wasmin.OpI64LtS: {{i64, i64}, {i32}}, wasmin.OpI64LtU: {{i64, i64}, {i32}},
	wasmin.OpI64GtS: {{i64, i64}, {i32}}, wasmin.OpI64GtU: {{i64, i64}, {i32}},
	wasmin.OpI64LeS: {{i64, i64}, {i32}}, wasmin.OpI64LeU: {{i64, i64}, {i32}},
	wasmin.OpI64GeS: {{i64, i64}, {i32}}, wasmin.OpI64GeU: {{i64, i64}, {i32}},

	wasmin.OpF32Eq: {{f32, f32}, {i32}}, wasmin.OpF32Ne: {{f32, f32}, {i32}},
	wasmin.OpF32Lt: {{f32, f32}, {i32}}, wasmin.OpF32Gt: {{f32, f32}, {i32}},
	wasmin.OpF32Le: {{f32, f32}, {i32}}, wasmin.OpF32Ge: {{f32, f32}, {i32}},

	wasmin.OpF64Eq: {{f64, f64}, {i32}}, wasmin.OpF64Ne: {{f64, f64}, {i32}},
	wasmin.OpF64Lt: {{f64, f64}, {i32}}, wasmin.OpF64Gt: {{f64, f64}, {i32}},
	wasmin.OpF64Le: {{f64, f64}, {i32}}, wasmin.OpF64Ge: {{f64, f64}, {i32}},

	wasmin.OpI32Eqz: {{i32}, {i32}}, wasmin.OpI64Eqz: {{i64}, {i32}},

	wasmin.OpI32Clz: {{i32}, {i32}}, wasmin.OpI32Ctz: {{i32}, {i32}}, wasmin.OpI32Popcnt: {{i32}, {i32}},
	wasmin.OpI64Clz: {{i64}, {i64}}, wasmin.OpI64Ctz: {{i64}, {i64}}, wasmin.OpI64Popcnt: {{i64}, {i64}},

	wasmin.OpF32Abs: {{f32}, {f32}}, wasmin.OpF32Neg: {{f32}, {f32}},
	wasmin.OpF32Ceil: {{f32}, {f32}}, wasmin.OpF32Floor: {{f32}, {f32}},
	wasmin.OpF32Trunc: {{f32}, {f32}}, wasmin.OpF32Nearest: {{f32}, {f32}}, wasmin.OpF32Sqrt: {{f32}, {f32}},
	wasmin.OpF64Abs: {{f64}, {f64}}, wasmin.OpF64Neg: {{f64}, {f64}},
	wasmin.OpF64Ceil: {{f64}, {f64}}, wasmin.OpF64Floor: {{f64}, {f64}},
	wasmin.OpF64Trunc: {{f64}, {f64}}, wasmin.OpF64Nearest: {{f64}, {f64}}, wasmin.OpF64Sqrt: {{f64}, {f64}},

	wasmin.OpI32WrapI64: {{i64}, {i32}},
	wasmin.OpI32TruncF32S: {{f32}, {i32}}, wasmin.OpI32TruncF32U: {{f32}, {i32}},
	wasmin.OpI32TruncF64S: {{f64}, {i32}}, wasmin.OpI32TruncF64U: {{f64}, {i32}},
	wasmin.OpI64ExtendI32S: {{i32}, {i64}}, wasmin.OpI64ExtendI32U: {{i32}, {i64}},
	wasmin.OpI64TruncF32S: {{f32}, {i64}}, wasmin.OpI64TruncF32U: {{f32}, {i64}},
	wasmin.OpI64TruncF64S: {{f64}, {i64}}, wasmin.OpI64TruncF64U: {{f64}, {i64}},
	wasmin.OpF32ConvertI32S: {{i32}, {f32}}, wasmin.OpF32ConvertI32U: {{i32}, {f32}},
	wasmin.OpF32ConvertI64S: {{i64}, {f32}}, wasmin.OpF32ConvertI64U: {{i64}, {f32}},
	wasmin.OpF32DemoteF64: {{f64}, {f32}},
	wasmin.OpF64ConvertI32S: {{i32}, {f64}}, wasmin.OpF64ConvertI32U: {{i32}, {f64}},
	wasmin.OpF64ConvertI64S: {{i64}, {f64}}, wasmin.OpF64ConvertI64U: {{i64}, {f64}},
	wasmin.OpF64PromoteF32: {{f32}, {f64}},
	wasmin.OpI32ReinterpretF32: {{f32}, {i32}}, wasmin.OpI64ReinterpretF64: {{f64}, {i64}},
	wasmin.OpF32ReinterpretI32: {{i32}, {f32}}, wasmin.OpF64ReinterpretI64: {{i64}, {f64}},

	wasmin.OpI32Extend8S: {{i32}, {i32}}, wasmin.OpI32Extend16S: {{i32}, {i32}},
	wasmin.OpI64Extend8S: {{i64}, {i64}}, wasmin.OpI64Extend16S: {{i64}, {i64}}, wasmin.OpI64Extend32S: {{i64}, {i64}},

	wasmin.OpI32TruncSatF32S: {{f32}, {i32}}, wasmin.OpI32TruncSatF32U: {{f32}, {i32}},
	wasmin.OpI32TruncSatF64S: {{f64}, {i32}}, wasmin.OpI32TruncSatF64U: {{f64}, {i32}},
	wasmin.OpI64TruncSatF32S: {{f32}, {i64}}, wasmin.OpI64TruncSatF32U: {{f32}, {i64}},
	wasmin.OpI64TruncSatF64S: {{f64}, {i64}}, wasmin.OpI64TruncSatF64U: {{f64}, {i64}},
}

// loadValType/storeValType map memory load/store opcodes to the value
// type they push/pop; every load/store also takes an i32 address
// argument underneath, added explicitly in StackEffect below.
var loadValType = map[wasmin.Opcode]wasmin.ValType{
	wasmin.OpI32Load: i32, wasmin.OpI32Load8S: i32, wasmin.OpI32Load8U: i32,
	wasmin.OpI32Load16S: i32, wasmin.OpI32Load16U: i32,
	wasmin.OpI64Load: i64, wasmin.OpI64Load8S: i64, wasmin.OpI64Load8U: i64,
	wasmin.OpI64Load16S: i64, wasmin.OpI64Load16U: i64,
	wasmin.OpI64Load32S: i64, wasmin.OpI64Load32U: i64,
	wasmin.OpF32Load: f32, wasmin.OpF64Load: f64,
}

var storeValType = map[wasmin.Opcode]wasmin.ValType{
	wasmin.OpI32Store: i32, wasmin.OpI32Store8: i32, wasmin.OpI32Store16: i32,
	wasmin.OpI64Store: i64, wasmin.OpI64Store8: i64, wasmin.OpI64Store16: i64, wasmin.OpI64Store32: i64,
	wasmin.OpF32Store: f32, wasmin.OpF64Store: f64,
}

// StackEffect returns the (params, results) of a single instruction —
// the values it pops and pushes — resolving index-dependent opcodes
// (locals, globals, calls, tables) against fc. stack is the full running
// value stack before in executes, needed by drop/select/ref.is_null,
// whose effect depends on what's underneath.
//
// Grounded on classify.rs's per-ClassifiedInstr stack_type impls.
func StackEffect(fc *Func, in wasmin.Instr, stack []wasmin.ValType) (params, results []wasmin.ValType) {
	if pr, ok := binaryTypes[in.Op]; ok {
		return pr[0], pr[1]
	}
	if vt, ok := loadValType[in.Op]; ok {
		return []wasmin.ValType{i32}, vt1(vt)
	}
	if vt, ok := storeValType[in.Op]; ok {
		return []wasmin.ValType{i32, vt}, noVals
	}

	switch in.Op {
	case wasmin.OpUnreachable, wasmin.OpNop:
		return noVals, noVals
	case wasmin.OpLocalGet:
		return noVals, vt1(fc.Module.LocalTypeOf(fc.Fn, in.LocalIdx))
	case wasmin.OpLocalSet:
		return vt1(fc.Module.LocalTypeOf(fc.Fn, in.LocalIdx)), noVals
	case wasmin.OpLocalTee:
		vt := fc.Module.LocalTypeOf(fc.Fn, in.LocalIdx)
		return vt1(vt), vt1(vt)
	case wasmin.OpGlobalGet:
		return noVals, vt1(fc.Module.GlobalTypeOf(in.GlobalIdx).Type)
	case wasmin.OpGlobalSet:
		return vt1(fc.Module.GlobalTypeOf(in.GlobalIdx).Type), noVals
	case wasmin.OpI32Const:
		return noVals, vt1(i32)
	case wasmin.OpI64Const:
		return noVals, vt1(i64)
	case wasmin.OpF32Const:
		return noVals, vt1(f32)
	case wasmin.OpF64Const:
		return noVals, vt1(f64)
	case wasmin.OpRefNull:
		return noVals, vt1(in.RefType)
	case wasmin.OpRefIsNull:
		vt := stack[len(stack)-1]
		return vt1(vt), vt1(i32)
	case wasmin.OpRefFunc:
		return noVals, vt1(wasmin.ValTypeFuncRef)
	case wasmin.OpDrop:
		return []wasmin.ValType{stack[len(stack)-1]}, noVals
	case wasmin.OpSelect:
		vt := stack[len(stack)-2]
		return []wasmin.ValType{vt, vt, i32}, vt1(vt)
	case wasmin.OpSelectT:
		return []wasmin.ValType{in.RefType, in.RefType, i32}, vt1(in.RefType)
	case wasmin.OpCall:
		sig := fc.Module.FuncTypeOf(in.FuncIdx)
		return sig.Params, sig.Results
	case wasmin.OpCallIndirect:
		sig := fc.Module.Types[in.TypeIdx]
		return append(append([]wasmin.ValType{}, sig.Params...), i32), sig.Results
	case wasmin.OpBr:
		return noVals, noVals
	case wasmin.OpBrIf:
		return vt1(i32), noVals
	case wasmin.OpBrTable:
		return vt1(i32), noVals
	case wasmin.OpReturn:
		return fc.Sig.Results, noVals
	case wasmin.OpMemorySize:
		return noVals, vt1(i32)
	case wasmin.OpMemoryGrow:
		return vt1(i32), vt1(i32)
	case wasmin.OpMemoryInit, wasmin.OpMemoryCopy, wasmin.OpMemoryFill:
		return []wasmin.ValType{i32, i32, i32}, noVals
	case wasmin.OpDataDrop:
		return noVals, noVals
	case wasmin.OpTableGet:
		return vt1(i32), vt1(fc.Module.TableOf(in.TableIdx).ElemType)
	case wasmin.OpTableSet:
		return []wasmin.ValType{i32, fc.Module.TableOf(in.TableIdx).ElemType}, noVals
	case wasmin.OpTableInit, wasmin.OpTableCopy:
		return []wasmin.ValType{i32, i32, i32}, noVals
	case wasmin.OpElemDrop:
		return noVals, noVals
	case wasmin.OpTableGrow:
		return []wasmin.ValType{fc.Module.TableOf(in.TableIdx).ElemType, i32}, vt1(i32)
	case wasmin.OpTableSize:
		return noVals, vt1(i32)
	case wasmin.OpTableFill:
		return []wasmin.ValType{i32, fc.Module.TableOf(in.TableIdx).ElemType, i32}, noVals
	case wasmin.OpBlock, wasmin.OpLoop:
		return blockSig(fc, in.Block)
	case wasmin.OpIf:
		p, r := blockSig(fc, in.Block)
		return append(append([]wasmin.ValType{}, p...), i32), r
	}
	panic("ir: unhandled opcode in StackEffect")
}

func blockSig(fc *Func, bt wasmin.BlockType) (params, results []wasmin.ValType) {
	switch {
	case bt.HasIndex:
		sig := fc.Module.Types[bt.TypeIndex]
		return sig.Params, sig.Results
	case bt.HasVal:
		return noVals, vt1(bt.ValType)
	default:
		return noVals, noVals
	}
}

// classOf partitions a single (unfused) instruction into its Class, per
// spec.md §4.F's Load/Store/Return/Block/Loop/Other grouping.
func classOf(op wasmin.Opcode) Class {
	switch op {
	case wasmin.OpLocalGet, wasmin.OpGlobalGet, wasmin.OpI32Const, wasmin.OpI64Const,
		wasmin.OpF32Const, wasmin.OpF64Const, wasmin.OpRefNull, wasmin.OpRefFunc, wasmin.OpTableSize:
		return ClassLoad
	case wasmin.OpLocalSet, wasmin.OpGlobalSet, wasmin.OpDrop:
		return ClassStore
	case wasmin.OpReturn:
		return ClassRet
	case wasmin.OpBlock, wasmin.OpIf:
		return ClassBlock
	case wasmin.OpLoop:
		return ClassLoop
	default:
		return ClassOther
	}
}

// Classify walks a flat instruction list (one block's worth of body —
// the Body/Body2 of a block/loop/if are classified separately, by
// recursing into them from codegen) and produces one ir.Instr per source
// instruction, fusing a leading i32 test into the br_if/select/if that
// consumes it where spec.md §4.F allows it.
func Classify(fc *Func, body []wasmin.Instr, stack []wasmin.ValType) []Instr {
	out := make([]Instr, 0, len(body))
	st := append([]wasmin.ValType{}, stack...)
	for i := 0; i < len(body); i++ {
		in := body[i]

		if in.Op.IsI32Compare() && i+1 < len(body) && fusible(body[i+1].Op) {
			next := body[i+1]
			testParams, _ := StackEffect(fc, in, st)
			st = popPush(st, testParams, vt1(i32))
			nextParams, nextResults := StackEffect(fc, next, st)
			st = popPush(st, nextParams, nextResults)
			out = append(out, Instr{
				Class:   classOf(next.Op),
				Wasm:    &body[i+1],
				Test:    testFor(in.Op),
				Params:  append(append([]wasmin.ValType{}, testParams...), nextParams[1:]...),
				Results: nextResults,
			})
			i++
			continue
		}

		params, results := StackEffect(fc, in, st)
		st = popPush(st, params, results)
		out = append(out, Instr{Class: classOf(in.Op), Wasm: &body[i], Params: params, Results: results})
	}
	return out
}

// popPush drops len(params) entries from the stack's top without checking
// their types (the caller trusts the input is already validated, per
// wasmin's package doc, so this only maintains the running stack shape)
// and replaces them with results.
func popPush(stack, params, results []wasmin.ValType) []wasmin.ValType {
	stack = stack[:len(stack)-len(params)]
	return append(stack, results...)
}

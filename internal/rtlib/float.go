package rtlib

import (
	"math"

	"github.com/glulxvm/wasm2glulx/internal/glulxasm"
)

// negZero32/negZero64 hold an actual IEEE-754 negative zero. A literal
// -0.0 in Go source is a constant and constants have no signed zero, so
// code that needs to compare against or return negative zero has to get
// it from a runtime computation instead.
var (
	negZero32 = float32(math.Copysign(0, -1))
	negZero64 = math.Copysign(0, -1)
)

// buildFloat emits the float/double rounding, min/max, copysign and
// truncating-conversion family (spec.md §4.D). Glulx's fadd/fsub/.../dadd
// family and the jfxx/jdxx branches cover arithmetic and comparison
// directly, and numtof/numtod cover signed int32 conversion, but
// rounding-mode and saturating-conversion edge cases (NaN, infinities,
// out-of-range magnitudes, negative zero) have no single opcode, so each
// is built here from explicit jisnan/jisinf/jfxx branch trees around the
// raw comparison and arithmetic opcodes:
// explicit jisnan/jisinf/jfxx branch trees around the raw comparison
// opcodes. Doubles reuse int64.go's hi_return convention for their
// second word.
func buildFloat(b *builder, l *Library, hiReturn glulxasm.Label) {
	l.FTrunc = emitFTrunc(b)
	l.FNearest = emitFNearest(b, l)
	l.FMin = emitFMin(b)
	l.FMax = emitFMax(b)
	l.FCopysign = emitFCopysign(b)

	l.DTrunc = emitDTrunc(b, hiReturn)
	l.DNearest = emitDNearest(b, l, hiReturn)
	l.DMin = emitDMin(b, hiReturn)
	l.DMax = emitDMax(b, hiReturn)
	l.DCopysign = emitDCopysign(b, hiReturn)

	l.I32TruncF32S, l.I32TruncSatF32S = emitI32TruncF32S(b, l)
	l.I32TruncF32U, l.I32TruncSatF32U = emitI32TruncF32U(b, l)
	l.I32TruncF64S, l.I32TruncSatF64S = emitI32TruncF64S(b, l)
	l.I32TruncF64U, l.I32TruncSatF64U = emitI32TruncF64U(b, l)
	l.I64TruncF32S, l.I64TruncSatF32S = emitI64TruncF32S(b, l, hiReturn)
	l.I64TruncF32U, l.I64TruncSatF32U = emitI64TruncF32U(b, l, hiReturn)
	l.I64TruncF64S, l.I64TruncSatF64S = emitI64TruncF64S(b, l, hiReturn)
	l.I64TruncF64U, l.I64TruncSatF64U = emitI64TruncF64U(b, l, hiReturn)
}

// f32imm is the 32-bit Glulx immediate holding v's IEEE-754 bit pattern:
// Glulx floats are plain int32s that fadd/fsub/... interpret as
// IEEE-754, the same trick rt.rs's f32_to_imm performs.
func f32imm(v float32) glulxasm.Imm {
	return glulxasm.Imm{Value: int32(math.Float32bits(v))}
}

// f64imm splits v's IEEE-754 double bit pattern into the hi:lo immediate
// pair every double opcode here takes and returns.
func f64imm(v float64) (hi, lo glulxasm.Imm) {
	bits := math.Float64bits(v)
	return glulxasm.Imm{Value: int32(bits >> 32)}, glulxasm.Imm{Value: int32(bits)}
}

func storeHi(hiReturn glulxasm.Label, src glulxasm.Operand) glulxasm.Item {
	return instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, src)
}

// emitFTrunc rounds toward zero: floor for non-negative, ceil for
// negative. The sign check is an *integer* comparison against zero,
// since a negative IEEE-754 float always has its top bit set and so
// always reads as a negative int32 — cheaper than a float comparison.
func emitFTrunc(b *builder) glulxasm.Label {
	const x = 0
	neg := b.seq.New(glulxasm.KindROM, "ftrunc_neg")
	return b.emitFunc("ftrunc", 1,
		instr(glulxasm.OpJlt, local(x), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: neg}),
		instr(glulxasm.OpFloor, local(x), glulxasm.Push{}),
		instr(glulxasm.OpReturn, glulxasm.Pop{}),
		glulxasm.ItemLabel{Name: neg},
		instr(glulxasm.OpCeil, local(x), glulxasm.Push{}),
		instr(glulxasm.OpReturn, glulxasm.Pop{}),
	)
}

// emitFNearest implements round-to-nearest-ties-to-even. NaN is returned
// quieted (top mantissa bit forced on); ±0, ±Inf round to themselves.
// Ties (fraction exactly 0.5 from both neighbors) break by comparing the
// trailing zero counts of the two candidate integers' bit patterns — the
// "more even" of the pair has strictly more of them.
func emitFNearest(b *builder, l *Library) glulxasm.Label {
	const x, xCeil, xFloor = 0, 1, 2
	nan := b.seq.New(glulxasm.KindROM, "fnearest_nan")
	ident := b.seq.New(glulxasm.KindROM, "fnearest_ident")
	neg := b.seq.New(glulxasm.KindROM, "fnearest_neg")
	lehalf := b.seq.New(glulxasm.KindROM, "fnearest_lehalf")
	geneghalf := b.seq.New(glulxasm.KindROM, "fnearest_geneghalf")
	chooseFloor := b.seq.New(glulxasm.KindROM, "fnearest_choosefloor")
	chooseCeil := b.seq.New(glulxasm.KindROM, "fnearest_chooseceil")
	mainCase := b.seq.New(glulxasm.KindROM, "fnearest_maincase")
	return b.emitFunc("fnearest", 3,
		instr(glulxasm.OpJisnan, local(x), glulxasm.BranchTarget{Target: nan}),
		instr(glulxasm.OpJisinf, local(x), glulxasm.BranchTarget{Target: ident}),
		instr(glulxasm.OpJfeq, local(x), f32imm(0), f32imm(0), glulxasm.BranchTarget{Target: ident}),
		instr(glulxasm.OpJflt, local(x), f32imm(0), glulxasm.BranchTarget{Target: neg}),
		instr(glulxasm.OpJfle, local(x), f32imm(0.5), glulxasm.BranchTarget{Target: lehalf}),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: mainCase}),
		glulxasm.ItemLabel{Name: neg},
		instr(glulxasm.OpJfge, local(x), f32imm(-0.5), glulxasm.BranchTarget{Target: geneghalf}),
		glulxasm.ItemLabel{Name: mainCase},
		instr(glulxasm.OpCeil, local(x), local(xCeil)),
		instr(glulxasm.OpFloor, local(x), local(xFloor)),
		instr(glulxasm.OpFsub, local(x), local(xFloor), glulxasm.Push{}),
		instr(glulxasm.OpJflt, glulxasm.Pop{}, f32imm(0.5), glulxasm.BranchTarget{Target: chooseFloor}),
		instr(glulxasm.OpFsub, local(xCeil), local(x), glulxasm.Push{}),
		instr(glulxasm.OpJflt, glulxasm.Pop{}, f32imm(0.5), glulxasm.BranchTarget{Target: chooseCeil}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Ctz}, local(xCeil), glulxasm.Push{}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Ctz}, local(xFloor), glulxasm.Push{}),
		instr(glulxasm.OpJgtu, glulxasm.Pop{}, glulxasm.Pop{}, glulxasm.BranchTarget{Target: chooseFloor}),
		glulxasm.ItemLabel{Name: chooseCeil},
		instr(glulxasm.OpReturn, local(xCeil)),
		glulxasm.ItemLabel{Name: nan},
		instr(glulxasm.OpBitor, local(x), glulxasm.Imm{Value: 0x00400000}, local(x)),
		glulxasm.ItemLabel{Name: ident},
		instr(glulxasm.OpReturn, local(x)),
		glulxasm.ItemLabel{Name: lehalf},
		instr(glulxasm.OpReturn, f32imm(0)),
		glulxasm.ItemLabel{Name: geneghalf},
		instr(glulxasm.OpReturn, f32imm(negZero32)),
		glulxasm.ItemLabel{Name: chooseFloor},
		instr(glulxasm.OpReturn, local(xFloor)),
	)
}

// emitFMin implements WebAssembly's f32.min: propagates a (quieted) NaN
// if either operand is one, treats -0 as strictly less than +0 (which
// jflt alone does not, since Glulx float comparison follows IEEE-754's
// equal-zeros rule), and otherwise compares normally.
func emitFMin(b *builder) glulxasm.Label {
	const y, x = 0, 1
	xNan := b.seq.New(glulxasm.KindROM, "fmin_xnan")
	yNan := b.seq.New(glulxasm.KindROM, "fmin_ynan")
	chooseX := b.seq.New(glulxasm.KindROM, "fmin_choosex")
	chooseY := b.seq.New(glulxasm.KindROM, "fmin_choosey")
	xNegZero := b.seq.New(glulxasm.KindROM, "fmin_xnegzero")
	yNegZero := b.seq.New(glulxasm.KindROM, "fmin_ynegzero")
	mainCase := b.seq.New(glulxasm.KindROM, "fmin_maincase")
	return b.emitFunc("fmin", 2,
		instr(glulxasm.OpJisnan, local(x), glulxasm.BranchTarget{Target: xNan}),
		instr(glulxasm.OpJisnan, local(y), glulxasm.BranchTarget{Target: yNan}),
		instr(glulxasm.OpJeq, local(x), f32imm(float32(math.Inf(-1))), glulxasm.BranchTarget{Target: chooseX}),
		instr(glulxasm.OpJeq, local(y), f32imm(float32(math.Inf(-1))), glulxasm.BranchTarget{Target: chooseY}),
		instr(glulxasm.OpJeq, local(x), f32imm(float32(math.Inf(1))), glulxasm.BranchTarget{Target: chooseY}),
		instr(glulxasm.OpJeq, local(y), f32imm(float32(math.Inf(1))), glulxasm.BranchTarget{Target: chooseX}),
		instr(glulxasm.OpJeq, local(x), f32imm(negZero32), glulxasm.BranchTarget{Target: xNegZero}),
		instr(glulxasm.OpJeq, local(y), f32imm(negZero32), glulxasm.BranchTarget{Target: yNegZero}),
		glulxasm.ItemLabel{Name: mainCase},
		instr(glulxasm.OpJflt, local(x), local(y), glulxasm.BranchTarget{Target: chooseX}),
		glulxasm.ItemLabel{Name: chooseY},
		instr(glulxasm.OpReturn, local(y)),
		glulxasm.ItemLabel{Name: xNan},
		instr(glulxasm.OpBitor, local(x), glulxasm.Imm{Value: 0x00400000}, local(x)),
		glulxasm.ItemLabel{Name: chooseX},
		instr(glulxasm.OpReturn, local(x)),
		glulxasm.ItemLabel{Name: yNan},
		instr(glulxasm.OpBitor, local(y), glulxasm.Imm{Value: 0x00400000}, local(y)),
		instr(glulxasm.OpReturn, local(y)),
		glulxasm.ItemLabel{Name: xNegZero},
		instr(glulxasm.OpJeq, local(y), f32imm(0), glulxasm.BranchTarget{Target: chooseX}),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: mainCase}),
		glulxasm.ItemLabel{Name: yNegZero},
		instr(glulxasm.OpJeq, local(x), f32imm(0), glulxasm.BranchTarget{Target: chooseY}),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: mainCase}),
	)
}

// emitFMax mirrors emitFMin with the comparison and the infinity/negative-
// zero branches swapped.
func emitFMax(b *builder) glulxasm.Label {
	const y, x = 0, 1
	xNan := b.seq.New(glulxasm.KindROM, "fmax_xnan")
	yNan := b.seq.New(glulxasm.KindROM, "fmax_ynan")
	chooseX := b.seq.New(glulxasm.KindROM, "fmax_choosex")
	chooseY := b.seq.New(glulxasm.KindROM, "fmax_choosey")
	xNegZero := b.seq.New(glulxasm.KindROM, "fmax_xnegzero")
	yNegZero := b.seq.New(glulxasm.KindROM, "fmax_ynegzero")
	mainCase := b.seq.New(glulxasm.KindROM, "fmax_maincase")
	return b.emitFunc("fmax", 2,
		instr(glulxasm.OpJisnan, local(x), glulxasm.BranchTarget{Target: xNan}),
		instr(glulxasm.OpJisnan, local(y), glulxasm.BranchTarget{Target: yNan}),
		instr(glulxasm.OpJeq, local(x), f32imm(float32(math.Inf(-1))), glulxasm.BranchTarget{Target: chooseY}),
		instr(glulxasm.OpJeq, local(y), f32imm(float32(math.Inf(-1))), glulxasm.BranchTarget{Target: chooseX}),
		instr(glulxasm.OpJeq, local(x), f32imm(float32(math.Inf(1))), glulxasm.BranchTarget{Target: chooseX}),
		instr(glulxasm.OpJeq, local(y), f32imm(float32(math.Inf(1))), glulxasm.BranchTarget{Target: chooseY}),
		instr(glulxasm.OpJeq, local(x), f32imm(negZero32), glulxasm.BranchTarget{Target: xNegZero}),
		instr(glulxasm.OpJeq, local(y), f32imm(negZero32), glulxasm.BranchTarget{Target: yNegZero}),
		glulxasm.ItemLabel{Name: mainCase},
		instr(glulxasm.OpJfgt, local(x), local(y), glulxasm.BranchTarget{Target: chooseX}),
		glulxasm.ItemLabel{Name: chooseY},
		instr(glulxasm.OpReturn, local(y)),
		glulxasm.ItemLabel{Name: xNan},
		instr(glulxasm.OpBitor, local(x), glulxasm.Imm{Value: 0x00400000}, local(x)),
		glulxasm.ItemLabel{Name: chooseX},
		instr(glulxasm.OpReturn, local(x)),
		glulxasm.ItemLabel{Name: yNan},
		instr(glulxasm.OpBitor, local(y), glulxasm.Imm{Value: 0x00400000}, local(y)),
		instr(glulxasm.OpReturn, local(y)),
		glulxasm.ItemLabel{Name: xNegZero},
		instr(glulxasm.OpJeq, local(y), f32imm(0), glulxasm.BranchTarget{Target: chooseY}),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: mainCase}),
		glulxasm.ItemLabel{Name: yNegZero},
		instr(glulxasm.OpJeq, local(x), f32imm(0), glulxasm.BranchTarget{Target: chooseX}),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: mainCase}),
	)
}

// emitFCopysign copies y's sign bit onto x's magnitude.
func emitFCopysign(b *builder) glulxasm.Label {
	const y, x = 0, 1
	return b.emitFunc("fcopysign", 2,
		instr(glulxasm.OpBitand, local(y), glulxasm.Imm{Value: -0x80000000}, glulxasm.Push{}),
		instr(glulxasm.OpBitand, local(x), glulxasm.Imm{Value: 0x7fffffff}, glulxasm.Push{}),
		instr(glulxasm.OpBitor, glulxasm.Pop{}, glulxasm.Pop{}, glulxasm.Push{}),
		instr(glulxasm.OpReturn, glulxasm.Pop{}),
	)
}

// emitDTrunc is emitFTrunc's double-precision counterpart, reusing a
// local slot as both dfloor/dceil's source and destination — safe since
// every Glulx instruction reads all of its load operands before writing
// any of its store operands.
func emitDTrunc(b *builder, hiReturn glulxasm.Label) glulxasm.Label {
	const xHi, xLo = 0, 1
	neg := b.seq.New(glulxasm.KindROM, "dtrunc_neg")
	return b.emitFunc("dtrunc", 2,
		instr(glulxasm.OpJlt, local(xHi), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: neg}),
		instr(glulxasm.OpDfloor, local(xHi), local(xLo), local(xLo), local(xHi)),
		storeHi(hiReturn, local(xHi)),
		instr(glulxasm.OpReturn, local(xLo)),
		glulxasm.ItemLabel{Name: neg},
		instr(glulxasm.OpDceil, local(xHi), local(xLo), local(xLo), local(xHi)),
		storeHi(hiReturn, local(xHi)),
		instr(glulxasm.OpReturn, local(xLo)),
	)
}

// emitDNearest is emitFNearest's double-precision counterpart.
func emitDNearest(b *builder, l *Library, hiReturn glulxasm.Label) glulxasm.Label {
	const xHi, xLo, xCeilHi, xCeilLo, xFloorHi, xFloorLo = 0, 1, 2, 3, 4, 5
	nan := b.seq.New(glulxasm.KindROM, "dnearest_nan")
	ident := b.seq.New(glulxasm.KindROM, "dnearest_ident")
	neg := b.seq.New(glulxasm.KindROM, "dnearest_neg")
	lehalf := b.seq.New(glulxasm.KindROM, "dnearest_lehalf")
	geneghalf := b.seq.New(glulxasm.KindROM, "dnearest_geneghalf")
	chooseFloor := b.seq.New(glulxasm.KindROM, "dnearest_choosefloor")
	chooseCeil := b.seq.New(glulxasm.KindROM, "dnearest_chooseceil")
	mainCase := b.seq.New(glulxasm.KindROM, "dnearest_maincase")
	halfHi, halfLo := f64imm(0.5)
	neghalfHi, neghalfLo := f64imm(-0.5)
	zeroHi, zeroLo := f64imm(0)
	negzeroHi, negzeroLo := f64imm(negZero64)
	return b.emitFunc("dnearest", 6,
		instr(glulxasm.OpJdisnan, local(xHi), local(xLo), glulxasm.BranchTarget{Target: nan}),
		instr(glulxasm.OpJdisinf, local(xHi), local(xLo), glulxasm.BranchTarget{Target: ident}),
		instr(glulxasm.OpJdeq, local(xHi), local(xLo), zeroHi, zeroLo, zeroHi, zeroLo, glulxasm.BranchTarget{Target: ident}),
		instr(glulxasm.OpJdlt, local(xHi), local(xLo), zeroHi, zeroLo, glulxasm.BranchTarget{Target: neg}),
		instr(glulxasm.OpJdle, local(xHi), local(xLo), halfHi, halfLo, glulxasm.BranchTarget{Target: lehalf}),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: mainCase}),
		glulxasm.ItemLabel{Name: neg},
		instr(glulxasm.OpJdge, local(xHi), local(xLo), neghalfHi, neghalfLo, glulxasm.BranchTarget{Target: geneghalf}),
		glulxasm.ItemLabel{Name: mainCase},
		instr(glulxasm.OpDceil, local(xHi), local(xLo), local(xCeilLo), local(xCeilHi)),
		instr(glulxasm.OpDfloor, local(xHi), local(xLo), local(xFloorLo), local(xFloorHi)),
		instr(glulxasm.OpDsub, local(xHi), local(xLo), local(xFloorHi), local(xFloorLo), glulxasm.Push{}, glulxasm.Push{}),
		instr(glulxasm.OpJdlt, glulxasm.Pop{}, glulxasm.Pop{}, halfHi, halfLo, glulxasm.BranchTarget{Target: chooseFloor}),
		instr(glulxasm.OpDsub, local(xCeilHi), local(xCeilLo), local(xHi), local(xLo), glulxasm.Push{}, glulxasm.Push{}),
		instr(glulxasm.OpJdlt, glulxasm.Pop{}, glulxasm.Pop{}, halfHi, halfLo, glulxasm.BranchTarget{Target: chooseCeil}),
		instr(glulxasm.OpCallfii, glulxasm.LabelRef{Target: l.Ctz64}, local(xCeilHi), local(xCeilLo), glulxasm.Push{}),
		instr(glulxasm.OpCallfii, glulxasm.LabelRef{Target: l.Ctz64}, local(xFloorHi), local(xFloorLo), glulxasm.Push{}),
		instr(glulxasm.OpJgtu, glulxasm.Pop{}, glulxasm.Pop{}, glulxasm.BranchTarget{Target: chooseFloor}),
		glulxasm.ItemLabel{Name: chooseCeil},
		storeHi(hiReturn, local(xCeilHi)),
		instr(glulxasm.OpReturn, local(xCeilLo)),
		glulxasm.ItemLabel{Name: nan},
		instr(glulxasm.OpBitor, local(xHi), glulxasm.Imm{Value: 0x00080000}, local(xHi)),
		glulxasm.ItemLabel{Name: ident},
		storeHi(hiReturn, local(xHi)),
		instr(glulxasm.OpReturn, local(xLo)),
		glulxasm.ItemLabel{Name: lehalf},
		storeHi(hiReturn, zeroHi),
		instr(glulxasm.OpReturn, zeroLo),
		glulxasm.ItemLabel{Name: geneghalf},
		storeHi(hiReturn, negzeroHi),
		instr(glulxasm.OpReturn, negzeroLo),
		glulxasm.ItemLabel{Name: chooseFloor},
		storeHi(hiReturn, local(xFloorHi)),
		instr(glulxasm.OpReturn, local(xFloorLo)),
	)
}

// emitDMin is emitFMin's double-precision counterpart.
func emitDMin(b *builder, hiReturn glulxasm.Label) glulxasm.Label {
	const yHi, yLo, xHi, xLo = 0, 1, 2, 3
	xNan := b.seq.New(glulxasm.KindROM, "dmin_xnan")
	yNan := b.seq.New(glulxasm.KindROM, "dmin_ynan")
	chooseX := b.seq.New(glulxasm.KindROM, "dmin_choosex")
	chooseY := b.seq.New(glulxasm.KindROM, "dmin_choosey")
	xNotNegZero := b.seq.New(glulxasm.KindROM, "dmin_xnotnegzero")
	xNegZero := b.seq.New(glulxasm.KindROM, "dmin_xnegzero")
	yNegZero := b.seq.New(glulxasm.KindROM, "dmin_ynegzero")
	mainCase := b.seq.New(glulxasm.KindROM, "dmin_maincase")
	infHi, _ := f64imm(math.Inf(1))
	neginfHi, _ := f64imm(math.Inf(-1))
	zeroHi, zeroLo := f64imm(0)
	negzeroHi, negzeroLo := f64imm(negZero64)
	return b.emitFunc("dmin", 4,
		instr(glulxasm.OpJdisnan, local(xHi), local(xLo), glulxasm.BranchTarget{Target: xNan}),
		instr(glulxasm.OpJdisnan, local(yHi), local(yLo), glulxasm.BranchTarget{Target: yNan}),
		instr(glulxasm.OpJeq, local(xHi), neginfHi, glulxasm.BranchTarget{Target: chooseX}),
		instr(glulxasm.OpJeq, local(yHi), neginfHi, glulxasm.BranchTarget{Target: chooseY}),
		instr(glulxasm.OpJeq, local(xHi), infHi, glulxasm.BranchTarget{Target: chooseY}),
		instr(glulxasm.OpJeq, local(yHi), infHi, glulxasm.BranchTarget{Target: chooseX}),
		instr(glulxasm.OpJne, local(xHi), negzeroHi, glulxasm.BranchTarget{Target: xNotNegZero}),
		instr(glulxasm.OpJeq, local(xLo), negzeroLo, glulxasm.BranchTarget{Target: xNegZero}),
		glulxasm.ItemLabel{Name: xNotNegZero},
		instr(glulxasm.OpJne, local(yHi), negzeroHi, glulxasm.BranchTarget{Target: mainCase}),
		instr(glulxasm.OpJeq, local(yLo), negzeroLo, glulxasm.BranchTarget{Target: yNegZero}),
		glulxasm.ItemLabel{Name: mainCase},
		instr(glulxasm.OpJdlt, local(xHi), local(xLo), local(yHi), local(yLo), glulxasm.BranchTarget{Target: chooseX}),
		glulxasm.ItemLabel{Name: chooseY},
		storeHi(hiReturn, local(yHi)),
		instr(glulxasm.OpReturn, local(yLo)),
		glulxasm.ItemLabel{Name: xNan},
		instr(glulxasm.OpBitor, local(xHi), glulxasm.Imm{Value: 0x00080000}, local(xHi)),
		glulxasm.ItemLabel{Name: chooseX},
		storeHi(hiReturn, local(xHi)),
		instr(glulxasm.OpReturn, local(xLo)),
		glulxasm.ItemLabel{Name: yNan},
		instr(glulxasm.OpBitor, local(yHi), glulxasm.Imm{Value: 0x00080000}, local(yHi)),
		storeHi(hiReturn, local(yHi)),
		instr(glulxasm.OpReturn, local(yLo)),
		glulxasm.ItemLabel{Name: xNegZero},
		instr(glulxasm.OpJne, local(yHi), zeroHi, glulxasm.BranchTarget{Target: mainCase}),
		instr(glulxasm.OpJeq, local(yLo), zeroLo, glulxasm.BranchTarget{Target: chooseX}),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: mainCase}),
		glulxasm.ItemLabel{Name: yNegZero},
		instr(glulxasm.OpJne, local(xHi), zeroHi, glulxasm.BranchTarget{Target: mainCase}),
		instr(glulxasm.OpJeq, local(xLo), zeroLo, glulxasm.BranchTarget{Target: chooseY}),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: mainCase}),
	)
}

// emitDMax mirrors emitDMin with the comparison and infinity branches
// swapped.
func emitDMax(b *builder, hiReturn glulxasm.Label) glulxasm.Label {
	const yHi, yLo, xHi, xLo = 0, 1, 2, 3
	xNan := b.seq.New(glulxasm.KindROM, "dmax_xnan")
	yNan := b.seq.New(glulxasm.KindROM, "dmax_ynan")
	chooseX := b.seq.New(glulxasm.KindROM, "dmax_choosex")
	chooseY := b.seq.New(glulxasm.KindROM, "dmax_choosey")
	xNotNegZero := b.seq.New(glulxasm.KindROM, "dmax_xnotnegzero")
	xNegZero := b.seq.New(glulxasm.KindROM, "dmax_xnegzero")
	yNegZero := b.seq.New(glulxasm.KindROM, "dmax_ynegzero")
	mainCase := b.seq.New(glulxasm.KindROM, "dmax_maincase")
	infHi, _ := f64imm(math.Inf(1))
	neginfHi, _ := f64imm(math.Inf(-1))
	zeroHi, zeroLo := f64imm(0)
	negzeroHi, negzeroLo := f64imm(negZero64)
	return b.emitFunc("dmax", 4,
		instr(glulxasm.OpJdisnan, local(xHi), local(xLo), glulxasm.BranchTarget{Target: xNan}),
		instr(glulxasm.OpJdisnan, local(yHi), local(yLo), glulxasm.BranchTarget{Target: yNan}),
		instr(glulxasm.OpJeq, local(xHi), neginfHi, glulxasm.BranchTarget{Target: chooseY}),
		instr(glulxasm.OpJeq, local(yHi), neginfHi, glulxasm.BranchTarget{Target: chooseX}),
		instr(glulxasm.OpJeq, local(xHi), infHi, glulxasm.BranchTarget{Target: chooseX}),
		instr(glulxasm.OpJeq, local(yHi), infHi, glulxasm.BranchTarget{Target: chooseY}),
		instr(glulxasm.OpJne, local(xHi), negzeroHi, glulxasm.BranchTarget{Target: xNotNegZero}),
		instr(glulxasm.OpJeq, local(xLo), negzeroLo, glulxasm.BranchTarget{Target: xNegZero}),
		glulxasm.ItemLabel{Name: xNotNegZero},
		instr(glulxasm.OpJne, local(yHi), negzeroHi, glulxasm.BranchTarget{Target: mainCase}),
		instr(glulxasm.OpJeq, local(yLo), negzeroLo, glulxasm.BranchTarget{Target: yNegZero}),
		glulxasm.ItemLabel{Name: mainCase},
		instr(glulxasm.OpJdgt, local(xHi), local(xLo), local(yHi), local(yLo), glulxasm.BranchTarget{Target: chooseX}),
		glulxasm.ItemLabel{Name: chooseY},
		storeHi(hiReturn, local(yHi)),
		instr(glulxasm.OpReturn, local(yLo)),
		glulxasm.ItemLabel{Name: xNan},
		instr(glulxasm.OpBitor, local(xHi), glulxasm.Imm{Value: 0x00080000}, local(xHi)),
		glulxasm.ItemLabel{Name: chooseX},
		storeHi(hiReturn, local(xHi)),
		instr(glulxasm.OpReturn, local(xLo)),
		glulxasm.ItemLabel{Name: yNan},
		instr(glulxasm.OpBitor, local(yHi), glulxasm.Imm{Value: 0x00080000}, local(yHi)),
		storeHi(hiReturn, local(yHi)),
		instr(glulxasm.OpReturn, local(yLo)),
		glulxasm.ItemLabel{Name: xNegZero},
		instr(glulxasm.OpJne, local(yHi), zeroHi, glulxasm.BranchTarget{Target: mainCase}),
		instr(glulxasm.OpJeq, local(yLo), zeroLo, glulxasm.BranchTarget{Target: chooseY}),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: mainCase}),
		glulxasm.ItemLabel{Name: yNegZero},
		instr(glulxasm.OpJne, local(xHi), zeroHi, glulxasm.BranchTarget{Target: mainCase}),
		instr(glulxasm.OpJeq, local(xLo), zeroLo, glulxasm.BranchTarget{Target: chooseX}),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: mainCase}),
	)
}

// emitDCopysign copies y's sign bit onto x's magnitude; the low word is
// unaffected since IEEE-754's sign bit lives in the high word alone.
func emitDCopysign(b *builder, hiReturn glulxasm.Label) glulxasm.Label {
	const yHi, _, xHi, xLo = 0, 1, 2, 3
	return b.emitFunc("dcopysign", 4,
		instr(glulxasm.OpBitand, local(yHi), glulxasm.Imm{Value: -0x80000000}, glulxasm.Push{}),
		instr(glulxasm.OpBitand, local(xHi), glulxasm.Imm{Value: 0x7fffffff}, glulxasm.Push{}),
		instr(glulxasm.OpBitor, glulxasm.Pop{}, glulxasm.Pop{}, glulxasm.Push{}),
		storeHi(hiReturn, glulxasm.Pop{}),
		instr(glulxasm.OpReturn, local(xLo)),
	)
}


// raiseTrap calls into the given trap thunk. Traps never return to their
// caller (the thunk itself halts execution), so callers still need a
// following OpReturn to give the Glulx assembler a well-formed function
// body.
func raiseTrap(l *Library, code TrapCode) glulxasm.Item {
	return instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Trap[code]}, glulxasm.Imm{Value: 0}, glulxasm.Discard{})
}

// u64MagFromF32Bits computes the unsigned 64-bit magnitude of the
// float32 value whose sign-stripped raw bit pattern sits in bitsSlot,
// writing the result to (outHiSlot, outLoSlot). Glulx's ftonumz only
// targets a 32-bit result, so a value whose truncated magnitude doesn't
// fit in 32 bits has to be rebuilt by hand: pull the 8-bit exponent and
// 23-bit mantissa out of the IEEE-754 bit pattern, restore the mantissa's
// implicit leading one, and shift it into position with the 64-bit shift
// routines. Every caller here has already range-checked its source value
// to within magnitude 2^64, which keeps the shift amount inside 0..63.
func u64MagFromF32Bits(b *builder, l *Library, hiReturn glulxasm.Label, bitsSlot, expSlot, mantSlot, shiftSlot, outHiSlot, outLoSlot uint32) []glulxasm.Item {
	zero := b.seq.New(glulxasm.KindROM, "f32mag_zero")
	small := b.seq.New(glulxasm.KindROM, "f32mag_small")
	done := b.seq.New(glulxasm.KindROM, "f32mag_done")
	return []glulxasm.Item{
		instr(glulxasm.OpUshiftr, local(bitsSlot), glulxasm.Imm{Value: 23}, local(expSlot)),
		instr(glulxasm.OpBitand, local(expSlot), glulxasm.Imm{Value: 0xff}, local(expSlot)),
		instr(glulxasm.OpSub, local(expSlot), glulxasm.Imm{Value: 127}, local(expSlot)),
		instr(glulxasm.OpBitand, local(bitsSlot), glulxasm.Imm{Value: 0x7fffff}, local(mantSlot)),
		instr(glulxasm.OpBitor, local(mantSlot), glulxasm.Imm{Value: 0x800000}, local(mantSlot)),
		instr(glulxasm.OpJlt, local(expSlot), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: zero}),
		instr(glulxasm.OpSub, local(expSlot), glulxasm.Imm{Value: 23}, local(shiftSlot)),
		instr(glulxasm.OpJlt, local(shiftSlot), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: small}),
		instr(glulxasm.OpCallfiii, glulxasm.LabelRef{Target: l.Shl64}, glulxasm.Imm{Value: 0}, local(mantSlot), local(shiftSlot), local(outLoSlot)),
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(outHiSlot)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: done}),
		glulxasm.ItemLabel{Name: small},
		instr(glulxasm.OpSub, glulxasm.Imm{Value: 0}, local(shiftSlot), local(shiftSlot)),
		instr(glulxasm.OpCallfiii, glulxasm.LabelRef{Target: l.ShrU64}, glulxasm.Imm{Value: 0}, local(mantSlot), local(shiftSlot), local(outLoSlot)),
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(outHiSlot)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: done}),
		glulxasm.ItemLabel{Name: zero},
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(outLoSlot)),
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(outHiSlot)),
		glulxasm.ItemLabel{Name: done},
	}
}

// u64MagFromF64Bits is u64MagFromF32Bits's double-precision counterpart:
// the 52-bit mantissa (53 with its implicit leading one) spans both
// words, so the low word passes through unchanged and only the high
// word needs the exponent/mantissa-top-bits extraction.
func u64MagFromF64Bits(b *builder, l *Library, hiReturn glulxasm.Label, bitsHiSlot, bitsLoSlot, expSlot, mantHiSlot, mantLoSlot, shiftSlot, outHiSlot, outLoSlot uint32) []glulxasm.Item {
	zero := b.seq.New(glulxasm.KindROM, "f64mag_zero")
	small := b.seq.New(glulxasm.KindROM, "f64mag_small")
	done := b.seq.New(glulxasm.KindROM, "f64mag_done")
	return []glulxasm.Item{
		instr(glulxasm.OpUshiftr, local(bitsHiSlot), glulxasm.Imm{Value: 20}, local(expSlot)),
		instr(glulxasm.OpBitand, local(expSlot), glulxasm.Imm{Value: 0x7ff}, local(expSlot)),
		instr(glulxasm.OpSub, local(expSlot), glulxasm.Imm{Value: 1023}, local(expSlot)),
		instr(glulxasm.OpBitand, local(bitsHiSlot), glulxasm.Imm{Value: 0xfffff}, local(mantHiSlot)),
		instr(glulxasm.OpBitor, local(mantHiSlot), glulxasm.Imm{Value: 0x100000}, local(mantHiSlot)),
		instr(glulxasm.OpCopy, local(bitsLoSlot), local(mantLoSlot)),
		instr(glulxasm.OpJlt, local(expSlot), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: zero}),
		instr(glulxasm.OpSub, local(expSlot), glulxasm.Imm{Value: 52}, local(shiftSlot)),
		instr(glulxasm.OpJlt, local(shiftSlot), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: small}),
		instr(glulxasm.OpCallfiii, glulxasm.LabelRef{Target: l.Shl64}, local(mantHiSlot), local(mantLoSlot), local(shiftSlot), local(outLoSlot)),
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(outHiSlot)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: done}),
		glulxasm.ItemLabel{Name: small},
		instr(glulxasm.OpSub, glulxasm.Imm{Value: 0}, local(shiftSlot), local(shiftSlot)),
		instr(glulxasm.OpCallfiii, glulxasm.LabelRef{Target: l.ShrU64}, local(mantHiSlot), local(mantLoSlot), local(shiftSlot), local(outLoSlot)),
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(outHiSlot)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: done}),
		glulxasm.ItemLabel{Name: zero},
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(outLoSlot)),
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(outHiSlot)),
		glulxasm.ItemLabel{Name: done},
	}
}

// emitI32TruncF32S builds i32.trunc_f32_s and its saturating variant:
// both share the bounds check and the direct ftonumz conversion, and
// differ only in how NaN/out-of-range input is handled.
func emitI32TruncF32S(b *builder, l *Library) (trap, sat glulxasm.Label) {
	const x = 0
	maxb := f32imm(2147483648.)
	minb := f32imm(-2147483648.)
	build := func(name string, nan, under, over []glulxasm.Item) glulxasm.Label {
		lnan := b.seq.New(glulxasm.KindROM, name+"_nan")
		lunder := b.seq.New(glulxasm.KindROM, name+"_under")
		lover := b.seq.New(glulxasm.KindROM, name+"_over")
		items := []glulxasm.Item{
			instr(glulxasm.OpJisnan, local(x), glulxasm.BranchTarget{Target: lnan}),
			instr(glulxasm.OpJfge, local(x), maxb, glulxasm.BranchTarget{Target: lover}),
			instr(glulxasm.OpJflt, local(x), minb, glulxasm.BranchTarget{Target: lunder}),
			instr(glulxasm.OpFtonumz, local(x), glulxasm.Push{}),
			instr(glulxasm.OpReturn, glulxasm.Pop{}),
			glulxasm.ItemLabel{Name: lnan},
		}
		items = append(items, nan...)
		items = append(items, glulxasm.ItemLabel{Name: lunder})
		items = append(items, under...)
		items = append(items, glulxasm.ItemLabel{Name: lover})
		items = append(items, over...)
		return b.emitFunc(name, 1, items...)
	}
	trapNan := []glulxasm.Item{raiseTrap(l, TrapInvalidConversionToInteger), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trapRange := []glulxasm.Item{raiseTrap(l, TrapIntegerOverflow), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trap = build("i32_trunc_f32_s", trapNan, trapRange, trapRange)
	sat = build("i32_trunc_sat_f32_s",
		[]glulxasm.Item{instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})},
		[]glulxasm.Item{instr(glulxasm.OpReturn, glulxasm.Imm{Value: -0x80000000})},
		[]glulxasm.Item{instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0x7fffffff})},
	)
	return trap, sat
}

// emitI32TruncF32U handles the unsigned case, where Glulx has no direct
// opcode: values in [2^31, 2^32) are shifted down by 2^31 before
// ftonumz (which only accepts a result fitting in a signed 32-bit int)
// and the bit re-added afterward.
func emitI32TruncF32U(b *builder, l *Library) (trap, sat glulxasm.Label) {
	const x, tmp = 0, 1
	half := f32imm(2147483648.)
	upper := f32imm(4294967296.)
	neg1 := f32imm(-1.0)
	build := func(name string, nan, under, over []glulxasm.Item) glulxasm.Label {
		lnan := b.seq.New(glulxasm.KindROM, name+"_nan")
		lunder := b.seq.New(glulxasm.KindROM, name+"_under")
		lover := b.seq.New(glulxasm.KindROM, name+"_over")
		lbig := b.seq.New(glulxasm.KindROM, name+"_big")
		items := []glulxasm.Item{
			instr(glulxasm.OpJisnan, local(x), glulxasm.BranchTarget{Target: lnan}),
			instr(glulxasm.OpJfle, local(x), neg1, glulxasm.BranchTarget{Target: lunder}),
			instr(glulxasm.OpJfge, local(x), upper, glulxasm.BranchTarget{Target: lover}),
			instr(glulxasm.OpJfge, local(x), half, glulxasm.BranchTarget{Target: lbig}),
			instr(glulxasm.OpFtonumz, local(x), glulxasm.Push{}),
			instr(glulxasm.OpReturn, glulxasm.Pop{}),
			glulxasm.ItemLabel{Name: lbig},
			instr(glulxasm.OpFsub, local(x), half, local(tmp)),
			instr(glulxasm.OpFtonumz, local(tmp), local(tmp)),
			instr(glulxasm.OpAdd, local(tmp), glulxasm.Imm{Value: -0x80000000}, glulxasm.Push{}),
			instr(glulxasm.OpReturn, glulxasm.Pop{}),
			glulxasm.ItemLabel{Name: lnan},
		}
		items = append(items, nan...)
		items = append(items, glulxasm.ItemLabel{Name: lunder})
		items = append(items, under...)
		items = append(items, glulxasm.ItemLabel{Name: lover})
		items = append(items, over...)
		return b.emitFunc(name, 2, items...)
	}
	trapNan := []glulxasm.Item{raiseTrap(l, TrapInvalidConversionToInteger), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trapRange := []glulxasm.Item{raiseTrap(l, TrapIntegerOverflow), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trap = build("i32_trunc_f32_u", trapNan, trapRange, trapRange)
	sat = build("i32_trunc_sat_f32_u",
		[]glulxasm.Item{instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})},
		[]glulxasm.Item{instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})},
		[]glulxasm.Item{instr(glulxasm.OpReturn, glulxasm.Imm{Value: -1})},
	)
	return trap, sat
}

// emitI32TruncF64S mirrors emitI32TruncF32S with double-precision
// comparisons and dtonumz in place of ftonumz.
func emitI32TruncF64S(b *builder, l *Library) (trap, sat glulxasm.Label) {
	const xHi, xLo = 0, 1
	maxHi, maxLo := f64imm(2147483648.)
	minHi, minLo := f64imm(-2147483648.)
	build := func(name string, nan, under, over []glulxasm.Item) glulxasm.Label {
		lnan := b.seq.New(glulxasm.KindROM, name+"_nan")
		lunder := b.seq.New(glulxasm.KindROM, name+"_under")
		lover := b.seq.New(glulxasm.KindROM, name+"_over")
		items := []glulxasm.Item{
			instr(glulxasm.OpJdisnan, local(xHi), local(xLo), glulxasm.BranchTarget{Target: lnan}),
			instr(glulxasm.OpJdge, local(xHi), local(xLo), maxHi, maxLo, glulxasm.BranchTarget{Target: lover}),
			instr(glulxasm.OpJdlt, local(xHi), local(xLo), minHi, minLo, glulxasm.BranchTarget{Target: lunder}),
			instr(glulxasm.OpDtonumz, local(xHi), local(xLo), glulxasm.Push{}),
			instr(glulxasm.OpReturn, glulxasm.Pop{}),
			glulxasm.ItemLabel{Name: lnan},
		}
		items = append(items, nan...)
		items = append(items, glulxasm.ItemLabel{Name: lunder})
		items = append(items, under...)
		items = append(items, glulxasm.ItemLabel{Name: lover})
		items = append(items, over...)
		return b.emitFunc(name, 2, items...)
	}
	trapNan := []glulxasm.Item{raiseTrap(l, TrapInvalidConversionToInteger), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trapRange := []glulxasm.Item{raiseTrap(l, TrapIntegerOverflow), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trap = build("i32_trunc_f64_s", trapNan, trapRange, trapRange)
	sat = build("i32_trunc_sat_f64_s",
		[]glulxasm.Item{instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})},
		[]glulxasm.Item{instr(glulxasm.OpReturn, glulxasm.Imm{Value: -0x80000000})},
		[]glulxasm.Item{instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0x7fffffff})},
	)
	return trap, sat
}

// emitI32TruncF64U mirrors emitI32TruncF32U with double precision.
func emitI32TruncF64U(b *builder, l *Library) (trap, sat glulxasm.Label) {
	const xHi, xLo, tmp = 0, 1, 2
	halfHi, halfLo := f64imm(2147483648.)
	upperHi, upperLo := f64imm(4294967296.)
	neg1Hi, neg1Lo := f64imm(-1.0)
	build := func(name string, nan, under, over []glulxasm.Item) glulxasm.Label {
		lnan := b.seq.New(glulxasm.KindROM, name+"_nan")
		lunder := b.seq.New(glulxasm.KindROM, name+"_under")
		lover := b.seq.New(glulxasm.KindROM, name+"_over")
		lbig := b.seq.New(glulxasm.KindROM, name+"_big")
		items := []glulxasm.Item{
			instr(glulxasm.OpJdisnan, local(xHi), local(xLo), glulxasm.BranchTarget{Target: lnan}),
			instr(glulxasm.OpJdle, local(xHi), local(xLo), neg1Hi, neg1Lo, glulxasm.BranchTarget{Target: lunder}),
			instr(glulxasm.OpJdge, local(xHi), local(xLo), upperHi, upperLo, glulxasm.BranchTarget{Target: lover}),
			instr(glulxasm.OpJdge, local(xHi), local(xLo), halfHi, halfLo, glulxasm.BranchTarget{Target: lbig}),
			instr(glulxasm.OpDtonumz, local(xHi), local(xLo), glulxasm.Push{}),
			instr(glulxasm.OpReturn, glulxasm.Pop{}),
			glulxasm.ItemLabel{Name: lbig},
			instr(glulxasm.OpDsub, local(xHi), local(xLo), halfHi, halfLo, glulxasm.Push{}, glulxasm.Push{}),
			instr(glulxasm.OpDtonumz, glulxasm.Pop{}, glulxasm.Pop{}, local(tmp)),
			instr(glulxasm.OpAdd, local(tmp), glulxasm.Imm{Value: -0x80000000}, glulxasm.Push{}),
			instr(glulxasm.OpReturn, glulxasm.Pop{}),
			glulxasm.ItemLabel{Name: lnan},
		}
		items = append(items, nan...)
		items = append(items, glulxasm.ItemLabel{Name: lunder})
		items = append(items, under...)
		items = append(items, glulxasm.ItemLabel{Name: lover})
		items = append(items, over...)
		return b.emitFunc(name, 3, items...)
	}
	trapNan := []glulxasm.Item{raiseTrap(l, TrapInvalidConversionToInteger), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trapRange := []glulxasm.Item{raiseTrap(l, TrapIntegerOverflow), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trap = build("i32_trunc_f64_u", trapNan, trapRange, trapRange)
	sat = build("i32_trunc_sat_f64_u",
		[]glulxasm.Item{instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})},
		[]glulxasm.Item{instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})},
		[]glulxasm.Item{instr(glulxasm.OpReturn, glulxasm.Imm{Value: -1})},
	)
	return trap, sat
}

// emitI64TruncF32S builds i64.trunc_f32_s and its saturating variant.
// The magnitude comes from u64MagFromF32Bits; a negative source negates
// the 64-bit magnitude afterward via the 64-bit subtract routine (0 -
// magnitude), reusing int64.go's two's-complement negation idiom.
func emitI64TruncF32S(b *builder, l *Library, hiReturn glulxasm.Label) (trap, sat glulxasm.Label) {
	const x, absBits, exp, mant, shiftAmt, magHi, magLo = 0, 1, 2, 3, 4, 5, 6
	maxb := f32imm(9223372036854775808.)
	minb := f32imm(-9223372036854775808.)
	build := func(name string, nan, under, over []glulxasm.Item) glulxasm.Label {
		lnan := b.seq.New(glulxasm.KindROM, name+"_nan")
		lunder := b.seq.New(glulxasm.KindROM, name+"_under")
		lover := b.seq.New(glulxasm.KindROM, name+"_over")
		lneg := b.seq.New(glulxasm.KindROM, name+"_neg")
		items := []glulxasm.Item{
			instr(glulxasm.OpJisnan, local(x), glulxasm.BranchTarget{Target: lnan}),
			instr(glulxasm.OpJfge, local(x), maxb, glulxasm.BranchTarget{Target: lover}),
			instr(glulxasm.OpJflt, local(x), minb, glulxasm.BranchTarget{Target: lunder}),
			instr(glulxasm.OpJlt, local(x), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: lneg}),
			instr(glulxasm.OpCopy, local(x), local(absBits)),
		}
		items = append(items, u64MagFromF32Bits(b, l, hiReturn, absBits, exp, mant, shiftAmt, magHi, magLo)...)
		items = append(items,
			storeHi(hiReturn, local(magHi)),
			instr(glulxasm.OpReturn, local(magLo)),
			glulxasm.ItemLabel{Name: lneg},
			instr(glulxasm.OpBitand, local(x), glulxasm.Imm{Value: 0x7fffffff}, local(absBits)),
		)
		items = append(items, u64MagFromF32Bits(b, l, hiReturn, absBits, exp, mant, shiftAmt, magHi, magLo)...)
		items = append(items, callN(l.Sub64, glulxasm.Push{}, glulxasm.Imm{Value: 0}, glulxasm.Imm{Value: 0}, local(magHi), local(magLo))...)
		items = append(items, instr(glulxasm.OpReturn, glulxasm.Pop{}))
		items = append(items, glulxasm.ItemLabel{Name: lnan})
		items = append(items, nan...)
		items = append(items, glulxasm.ItemLabel{Name: lunder})
		items = append(items, under...)
		items = append(items, glulxasm.ItemLabel{Name: lover})
		items = append(items, over...)
		return b.emitFunc(name, 7, items...)
	}
	trapNan := []glulxasm.Item{raiseTrap(l, TrapInvalidConversionToInteger), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trapRange := []glulxasm.Item{raiseTrap(l, TrapIntegerOverflow), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trap = build("i64_trunc_f32_s", trapNan, trapRange, trapRange)
	sat = build("i64_trunc_sat_f32_s",
		[]glulxasm.Item{storeHi(hiReturn, glulxasm.Imm{Value: 0}), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})},
		[]glulxasm.Item{storeHi(hiReturn, glulxasm.Imm{Value: -0x80000000}), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})},
		[]glulxasm.Item{storeHi(hiReturn, glulxasm.Imm{Value: 0x7fffffff}), instr(glulxasm.OpReturn, glulxasm.Imm{Value: -1})},
	)
	return trap, sat
}

// emitI64TruncF32U is the unsigned counterpart: no sign handling, just
// the magnitude extraction directly.
func emitI64TruncF32U(b *builder, l *Library, hiReturn glulxasm.Label) (trap, sat glulxasm.Label) {
	const x, absBits, exp, mant, shiftAmt, magHi, magLo = 0, 1, 2, 3, 4, 5, 6
	upper := f32imm(18446744073709551616.)
	neg1 := f32imm(-1.0)
	build := func(name string, nan, under, over []glulxasm.Item) glulxasm.Label {
		lnan := b.seq.New(glulxasm.KindROM, name+"_nan")
		lunder := b.seq.New(glulxasm.KindROM, name+"_under")
		lover := b.seq.New(glulxasm.KindROM, name+"_over")
		items := []glulxasm.Item{
			instr(glulxasm.OpJisnan, local(x), glulxasm.BranchTarget{Target: lnan}),
			instr(glulxasm.OpJfle, local(x), neg1, glulxasm.BranchTarget{Target: lunder}),
			instr(glulxasm.OpJfge, local(x), upper, glulxasm.BranchTarget{Target: lover}),
			instr(glulxasm.OpCopy, local(x), local(absBits)),
		}
		items = append(items, u64MagFromF32Bits(b, l, hiReturn, absBits, exp, mant, shiftAmt, magHi, magLo)...)
		items = append(items,
			storeHi(hiReturn, local(magHi)),
			instr(glulxasm.OpReturn, local(magLo)),
			glulxasm.ItemLabel{Name: lnan},
		)
		items = append(items, nan...)
		items = append(items, glulxasm.ItemLabel{Name: lunder})
		items = append(items, under...)
		items = append(items, glulxasm.ItemLabel{Name: lover})
		items = append(items, over...)
		return b.emitFunc(name, 7, items...)
	}
	trapNan := []glulxasm.Item{raiseTrap(l, TrapInvalidConversionToInteger), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trapRange := []glulxasm.Item{raiseTrap(l, TrapIntegerOverflow), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trap = build("i64_trunc_f32_u", trapNan, trapRange, trapRange)
	sat = build("i64_trunc_sat_f32_u",
		[]glulxasm.Item{storeHi(hiReturn, glulxasm.Imm{Value: 0}), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})},
		[]glulxasm.Item{storeHi(hiReturn, glulxasm.Imm{Value: 0}), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})},
		[]glulxasm.Item{storeHi(hiReturn, glulxasm.Imm{Value: -1}), instr(glulxasm.OpReturn, glulxasm.Imm{Value: -1})},
	)
	return trap, sat
}

// emitI64TruncF64S mirrors emitI64TruncF32S with double precision.
func emitI64TruncF64S(b *builder, l *Library, hiReturn glulxasm.Label) (trap, sat glulxasm.Label) {
	const xHi, xLo, absHi, exp, mantHi, mantLo, shiftAmt, magHi, magLo = 0, 1, 2, 3, 4, 5, 6, 7, 8
	maxHi, maxLo := f64imm(9223372036854775808.)
	minHi, minLo := f64imm(-9223372036854775808.)
	build := func(name string, nan, under, over []glulxasm.Item) glulxasm.Label {
		lnan := b.seq.New(glulxasm.KindROM, name+"_nan")
		lunder := b.seq.New(glulxasm.KindROM, name+"_under")
		lover := b.seq.New(glulxasm.KindROM, name+"_over")
		lneg := b.seq.New(glulxasm.KindROM, name+"_neg")
		items := []glulxasm.Item{
			instr(glulxasm.OpJdisnan, local(xHi), local(xLo), glulxasm.BranchTarget{Target: lnan}),
			instr(glulxasm.OpJdge, local(xHi), local(xLo), maxHi, maxLo, glulxasm.BranchTarget{Target: lover}),
			instr(glulxasm.OpJdlt, local(xHi), local(xLo), minHi, minLo, glulxasm.BranchTarget{Target: lunder}),
			instr(glulxasm.OpJlt, local(xHi), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: lneg}),
			instr(glulxasm.OpCopy, local(xHi), local(absHi)),
		}
		items = append(items, u64MagFromF64Bits(b, l, hiReturn, absHi, xLo, exp, mantHi, mantLo, shiftAmt, magHi, magLo)...)
		items = append(items,
			storeHi(hiReturn, local(magHi)),
			instr(glulxasm.OpReturn, local(magLo)),
			glulxasm.ItemLabel{Name: lneg},
			instr(glulxasm.OpBitand, local(xHi), glulxasm.Imm{Value: 0x7fffffff}, local(absHi)),
		)
		items = append(items, u64MagFromF64Bits(b, l, hiReturn, absHi, xLo, exp, mantHi, mantLo, shiftAmt, magHi, magLo)...)
		items = append(items, callN(l.Sub64, glulxasm.Push{}, glulxasm.Imm{Value: 0}, glulxasm.Imm{Value: 0}, local(magHi), local(magLo))...)
		items = append(items, instr(glulxasm.OpReturn, glulxasm.Pop{}))
		items = append(items, glulxasm.ItemLabel{Name: lnan})
		items = append(items, nan...)
		items = append(items, glulxasm.ItemLabel{Name: lunder})
		items = append(items, under...)
		items = append(items, glulxasm.ItemLabel{Name: lover})
		items = append(items, over...)
		return b.emitFunc(name, 9, items...)
	}
	trapNan := []glulxasm.Item{raiseTrap(l, TrapInvalidConversionToInteger), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trapRange := []glulxasm.Item{raiseTrap(l, TrapIntegerOverflow), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trap = build("i64_trunc_f64_s", trapNan, trapRange, trapRange)
	sat = build("i64_trunc_sat_f64_s",
		[]glulxasm.Item{storeHi(hiReturn, glulxasm.Imm{Value: 0}), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})},
		[]glulxasm.Item{storeHi(hiReturn, glulxasm.Imm{Value: -0x80000000}), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})},
		[]glulxasm.Item{storeHi(hiReturn, glulxasm.Imm{Value: 0x7fffffff}), instr(glulxasm.OpReturn, glulxasm.Imm{Value: -1})},
	)
	return trap, sat
}

// emitI64TruncF64U mirrors emitI64TruncF32U with double precision.
func emitI64TruncF64U(b *builder, l *Library, hiReturn glulxasm.Label) (trap, sat glulxasm.Label) {
	const xHi, xLo, absHi, exp, mantHi, mantLo, shiftAmt, magHi, magLo = 0, 1, 2, 3, 4, 5, 6, 7, 8
	upperHi, upperLo := f64imm(18446744073709551616.)
	neg1Hi, neg1Lo := f64imm(-1.0)
	build := func(name string, nan, under, over []glulxasm.Item) glulxasm.Label {
		lnan := b.seq.New(glulxasm.KindROM, name+"_nan")
		lunder := b.seq.New(glulxasm.KindROM, name+"_under")
		lover := b.seq.New(glulxasm.KindROM, name+"_over")
		items := []glulxasm.Item{
			instr(glulxasm.OpJdisnan, local(xHi), local(xLo), glulxasm.BranchTarget{Target: lnan}),
			instr(glulxasm.OpJdle, local(xHi), local(xLo), neg1Hi, neg1Lo, glulxasm.BranchTarget{Target: lunder}),
			instr(glulxasm.OpJdge, local(xHi), local(xLo), upperHi, upperLo, glulxasm.BranchTarget{Target: lover}),
			instr(glulxasm.OpCopy, local(xHi), local(absHi)),
		}
		items = append(items, u64MagFromF64Bits(b, l, hiReturn, absHi, xLo, exp, mantHi, mantLo, shiftAmt, magHi, magLo)...)
		items = append(items,
			storeHi(hiReturn, local(magHi)),
			instr(glulxasm.OpReturn, local(magLo)),
			glulxasm.ItemLabel{Name: lnan},
		)
		items = append(items, nan...)
		items = append(items, glulxasm.ItemLabel{Name: lunder})
		items = append(items, under...)
		items = append(items, glulxasm.ItemLabel{Name: lover})
		items = append(items, over...)
		return b.emitFunc(name, 9, items...)
	}
	trapNan := []glulxasm.Item{raiseTrap(l, TrapInvalidConversionToInteger), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trapRange := []glulxasm.Item{raiseTrap(l, TrapIntegerOverflow), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})}
	trap = build("i64_trunc_f64_u", trapNan, trapRange, trapRange)
	sat = build("i64_trunc_sat_f64_u",
		[]glulxasm.Item{storeHi(hiReturn, glulxasm.Imm{Value: 0}), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})},
		[]glulxasm.Item{storeHi(hiReturn, glulxasm.Imm{Value: 0}), instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})},
		[]glulxasm.Item{storeHi(hiReturn, glulxasm.Imm{Value: -1}), instr(glulxasm.OpReturn, glulxasm.Imm{Value: -1})},
	)
	return trap, sat
}

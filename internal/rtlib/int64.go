package rtlib

import "github.com/glulxvm/wasm2glulx/internal/glulxasm"

// buildInt64 emits the 64-bit integer library: every WebAssembly i64
// operation lowers to a call into one of these routines, since Glulx's
// registers and opcodes are all 32-bit. A 64-bit value is passed as two
// 32-bit arguments, high word first, and returned the other way
// around: the primary return is the low word, and the high word comes
// back in hiReturn[0], matching the multi-word return convention used
// throughout this package (spec.md §4.D).
//
// Calls among these routines mostly need four arguments (two 64-bit
// operands), which exceeds what callfi/callfii/callfiii can pass
// directly; those calls use the general call opcode instead, pushing
// arguments in backward order first (see callN in rtlib.go).
func buildInt64(b *builder, l *Library, hiReturn glulxasm.Label) {
	l.Add64 = emitAdd64(b, l, hiReturn)
	l.Sub64 = emitSub64(b, l, hiReturn)
	l.Mul64 = emitMul64(b, hiReturn)
	l.And64 = emitBitwise64(b, hiReturn, "and64", glulxasm.OpBitand)
	l.Or64 = emitBitwise64(b, hiReturn, "or64", glulxasm.OpBitor)
	l.Xor64 = emitBitwise64(b, hiReturn, "xor64", glulxasm.OpBitxor)

	l.Eqz64 = emitEqz64(b)
	l.Eq64 = emitEq64(b)
	l.Ne64 = emitNe64(b)
	l.LtU64 = emitLt64(b, "ltu64", glulxasm.OpJltu)
	l.LtS64 = emitLt64(b, "lts64", glulxasm.OpJlt)
	l.GtU64 = emitSwappedCall(b, "gtu64", l.LtU64, false)
	l.GtS64 = emitSwappedCall(b, "gts64", l.LtS64, false)
	l.LeU64 = emitSwappedCall(b, "leu64", l.LtU64, true)
	l.LeS64 = emitSwappedCall(b, "les64", l.LtS64, true)
	l.GeU64 = emitNegatedCall(b, "geu64", l.LtU64)
	l.GeS64 = emitNegatedCall(b, "ges64", l.LtS64)

	l.Shl64 = emitShl64(b, hiReturn)
	l.ShrU64 = emitShrU64(b, hiReturn)
	l.ShrS64 = emitShrS64(b, hiReturn)
	l.Rotl64 = emitRotl64(b, l, hiReturn)
	l.Rotr64 = emitRotr64(b, l, hiReturn)

	l.Clz64 = emitClz64(b, l)
	l.Ctz64 = emitCtz64(b, l)
	l.Popcnt64 = emitPopcnt64(b, l)

	divmodU64 := emitDivmodU64(b, l, hiReturn)
	l.DivU64 = emitDivU64(b, divmodU64)
	l.RemU64 = emitRemU64(b, hiReturn, divmodU64)
	l.DivS64 = emitDivS64(b, l, hiReturn)
	l.RemS64 = emitRemS64(b, l, hiReturn)
}

// emitAdd64(aHi, aLo, bHi, bLo) -> lo, hi: ordinary ripple-carry add. The
// carry out of the low words is detected with ltu against either addend,
// since an unsigned 32-bit sum wraps exactly when it compares less than
// one of its operands.
func emitAdd64(b *builder, l *Library, hiReturn glulxasm.Label) glulxasm.Label {
	const aHi, aLo, bHi, bLo, lo, hi, carry = 0, 1, 2, 3, 4, 5, 6
	return b.emitFunc("add64", 7,
		instr(glulxasm.OpAdd, local(aLo), local(bLo), local(lo)),
		instr(glulxasm.OpCallfii, glulxasm.LabelRef{Target: l.Ltu}, local(lo), local(aLo), local(carry)),
		instr(glulxasm.OpAdd, local(aHi), local(bHi), local(hi)),
		instr(glulxasm.OpAdd, local(hi), local(carry), local(hi)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(hi)),
		instr(glulxasm.OpReturn, local(lo)),
	)
}

// emitSub64(aHi, aLo, bHi, bLo) -> lo, hi: ripple-borrow subtract; the
// borrow out of the low words is exactly the case where a's low word
// was less than b's low word.
func emitSub64(b *builder, l *Library, hiReturn glulxasm.Label) glulxasm.Label {
	const aHi, aLo, bHi, bLo, lo, hi, borrow = 0, 1, 2, 3, 4, 5, 6
	return b.emitFunc("sub64", 7,
		instr(glulxasm.OpCallfii, glulxasm.LabelRef{Target: l.Ltu}, local(aLo), local(bLo), local(borrow)),
		instr(glulxasm.OpSub, local(aLo), local(bLo), local(lo)),
		instr(glulxasm.OpSub, local(aHi), local(bHi), local(hi)),
		instr(glulxasm.OpSub, local(hi), local(borrow), local(hi)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(hi)),
		instr(glulxasm.OpReturn, local(lo)),
	)
}

// emitMul64(aHi, aLo, bHi, bLo) -> lo, hi: the low word of a 64x64
// multiply is aLo*bLo truncated to 32 bits, which Glulx's mul already
// computes. The high word takes the carry out of that truncation (the
// upper 32 bits of aLo*bLo, computed via 16-bit-limb schoolbook
// multiplication, since Glulx's mul only keeps the low 32 bits of its
// own product) plus the cross terms aHi*bLo and aLo*bHi, each of which
// only contributes its own low 32 bits — everything else overflows out
// of the 64-bit result and is correctly discarded.
func emitMul64(b *builder, hiReturn glulxasm.Label) glulxasm.Label {
	const aHi, aLo, bHi, bLo = 0, 1, 2, 3
	const aLoLo, aLoHi, bLoLo, bLoHi = 4, 5, 6, 7
	const p0, p1, p2, p3 = 8, 9, 10, 11
	const mid, lo, hi = 12, 13, 14
	noCarry := b.seq.New(glulxasm.KindROM, "mul64_nocarry")
	return b.emitFunc("mul64", 15,
		instr(glulxasm.OpBitand, local(aLo), glulxasm.Imm{Value: 0xFFFF}, local(aLoLo)),
		instr(glulxasm.OpUshiftr, local(aLo), glulxasm.Imm{Value: 16}, local(aLoHi)),
		instr(glulxasm.OpBitand, local(bLo), glulxasm.Imm{Value: 0xFFFF}, local(bLoLo)),
		instr(glulxasm.OpUshiftr, local(bLo), glulxasm.Imm{Value: 16}, local(bLoHi)),

		instr(glulxasm.OpMul, local(aLoLo), local(bLoLo), local(p0)),
		instr(glulxasm.OpMul, local(aLoLo), local(bLoHi), local(p1)),
		instr(glulxasm.OpMul, local(aLoHi), local(bLoLo), local(p2)),
		instr(glulxasm.OpMul, local(aLoHi), local(bLoHi), local(p3)),

		instr(glulxasm.OpUshiftr, local(p0), glulxasm.Imm{Value: 16}, local(mid)),
		instr(glulxasm.OpAdd, local(mid), local(p1), local(mid)),
		instr(glulxasm.OpAdd, local(mid), local(p2), local(mid)),
		// A carry out of mid is worth 2^48 of the product: fold it into p3.
		instr(glulxasm.OpJgeu, local(mid), local(p2), glulxasm.BranchTarget{Target: noCarry}),
		instr(glulxasm.OpAdd, local(p3), glulxasm.Imm{Value: 0x10000}, local(p3)),
		glulxasm.ItemLabel{Name: noCarry},
		instr(glulxasm.OpBitand, local(p0), glulxasm.Imm{Value: 0xFFFF}, local(lo)),
		instr(glulxasm.OpShiftl, local(mid), glulxasm.Imm{Value: 16}, local(p0)),
		instr(glulxasm.OpAdd, local(lo), local(p0), local(lo)),
		instr(glulxasm.OpUshiftr, local(mid), glulxasm.Imm{Value: 16}, local(hi)),
		instr(glulxasm.OpAdd, local(hi), local(p3), local(hi)),

		instr(glulxasm.OpMul, local(aHi), local(bLo), local(p1)),
		instr(glulxasm.OpAdd, local(hi), local(p1), local(hi)),
		instr(glulxasm.OpMul, local(aLo), local(bHi), local(p2)),
		instr(glulxasm.OpAdd, local(hi), local(p2), local(hi)),

		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(hi)),
		instr(glulxasm.OpReturn, local(lo)),
	)
}

func emitBitwise64(b *builder, hiReturn glulxasm.Label, name string, op uint32) glulxasm.Label {
	const aHi, aLo, bHi, bLo, lo, hi = 0, 1, 2, 3, 4, 5
	return b.emitFunc(name, 6,
		instr(op, local(aLo), local(bLo), local(lo)),
		instr(op, local(aHi), local(bHi), local(hi)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(hi)),
		instr(glulxasm.OpReturn, local(lo)),
	)
}

// emitEqz64(hi, lo) -> 0/1: true exactly when both words are zero.
func emitEqz64(b *builder) glulxasm.Label {
	const hi, lo, acc = 0, 1, 2
	isTrue := b.seq.New(glulxasm.KindROM, "eqz64_true")
	return b.emitFunc("eqz64", 3,
		instr(glulxasm.OpBitor, local(hi), local(lo), local(acc)),
		instr(glulxasm.OpJz, local(acc), glulxasm.BranchTarget{Target: isTrue}),
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),
		glulxasm.ItemLabel{Name: isTrue},
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 1}),
	)
}

func emitEq64(b *builder) glulxasm.Label {
	const aHi, aLo, bHi, bLo, x, y, acc = 0, 1, 2, 3, 4, 5, 6
	isTrue := b.seq.New(glulxasm.KindROM, "eq64_true")
	return b.emitFunc("eq64", 7,
		instr(glulxasm.OpBitxor, local(aHi), local(bHi), local(x)),
		instr(glulxasm.OpBitxor, local(aLo), local(bLo), local(y)),
		instr(glulxasm.OpBitor, local(x), local(y), local(acc)),
		instr(glulxasm.OpJz, local(acc), glulxasm.BranchTarget{Target: isTrue}),
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),
		glulxasm.ItemLabel{Name: isTrue},
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 1}),
	)
}

func emitNe64(b *builder) glulxasm.Label {
	const aHi, aLo, bHi, bLo, x, y, acc = 0, 1, 2, 3, 4, 5, 6
	isFalse := b.seq.New(glulxasm.KindROM, "ne64_false")
	return b.emitFunc("ne64", 7,
		instr(glulxasm.OpBitxor, local(aHi), local(bHi), local(x)),
		instr(glulxasm.OpBitxor, local(aLo), local(bLo), local(y)),
		instr(glulxasm.OpBitor, local(x), local(y), local(acc)),
		instr(glulxasm.OpJz, local(acc), glulxasm.BranchTarget{Target: isFalse}),
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 1}),
		glulxasm.ItemLabel{Name: isFalse},
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),
	)
}

// emitLt64 builds a two-level (high-word-then-low-word) "less than"
// routine: if the high words differ, hiOp alone decides the result
// (signed for lts64, unsigned for ltu64); otherwise the low words decide
// it, always compared unsigned since two's-complement low words compare
// the same way regardless of the 64-bit value's overall signedness. Every
// other 64-bit ordering (gt/le/ge, both flavors) is derived from this
// rather than repeating the comparison logic.
func emitLt64(b *builder, name string, hiOp uint32) glulxasm.Label {
	const aHi, aLo, bHi, bLo = 0, 1, 2, 3
	hiDiffers := b.seq.New(glulxasm.KindROM, name+"_hidiffers")
	isTrue := b.seq.New(glulxasm.KindROM, name+"_true")
	return b.emitFunc(name, 4,
		instr(glulxasm.OpJne, local(aHi), local(bHi), glulxasm.BranchTarget{Target: hiDiffers}),
		instr(glulxasm.OpJltu, local(aLo), local(bLo), glulxasm.BranchTarget{Target: isTrue}),
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),

		glulxasm.ItemLabel{Name: hiDiffers},
		instr(hiOp, local(aHi), local(bHi), glulxasm.BranchTarget{Target: isTrue}),
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),

		glulxasm.ItemLabel{Name: isTrue},
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 1}),
	)
}

// emitSwappedCall builds gt64/le64 from lt64: gt(a,b) = lt(b,a), and
// le(a,b) = !lt(b,a) (negate selected with invert).
func emitSwappedCall(b *builder, name string, lt glulxasm.Label, invert bool) glulxasm.Label {
	const aHi, aLo, bHi, bLo, r = 0, 1, 2, 3, 4
	body := callN(lt, local(r), local(bHi), local(bLo), local(aHi), local(aLo))
	if invert {
		body = append(body, instr(glulxasm.OpBitxor, local(r), glulxasm.Imm{Value: 1}, local(r)))
	}
	body = append(body, instr(glulxasm.OpReturn, local(r)))
	return b.emitFunc(name, 5, body...)
}

// emitNegatedCall builds ge64 from lt64: ge(a,b) = !lt(a,b).
func emitNegatedCall(b *builder, name string, lt glulxasm.Label) glulxasm.Label {
	const aHi, aLo, bHi, bLo, r = 0, 1, 2, 3, 4
	body := callN(lt, local(r), local(aHi), local(aLo), local(bHi), local(bLo))
	body = append(body,
		instr(glulxasm.OpBitxor, local(r), glulxasm.Imm{Value: 1}, local(r)),
		instr(glulxasm.OpReturn, local(r)),
	)
	return b.emitFunc(name, 5, body...)
}

// emitShl64(hi, lo, n) -> lo, hi: shift left by n&63 bits, split into
// n==0 (passthrough), n<32 (each word absorbs bits shifted out of the
// other), and n>=32 (the low word moves entirely into the high word's
// position, shifted by n-32, with the low word zeroed) to avoid
// Glulx's shift-by-32 edge case.
func emitShl64(b *builder, hiReturn glulxasm.Label) glulxasm.Label {
	const hi, lo, n, nm, outHi, outLo = 0, 1, 2, 3, 4, 5
	wide := b.seq.New(glulxasm.KindROM, "shl64_wide")
	narrow := b.seq.New(glulxasm.KindROM, "shl64_narrow")
	return b.emitFunc("shl64", 6,
		instr(glulxasm.OpBitand, local(n), glulxasm.Imm{Value: 63}, local(nm)),
		instr(glulxasm.OpJgeu, local(nm), glulxasm.Imm{Value: 32}, glulxasm.BranchTarget{Target: wide}),
		instr(glulxasm.OpJz, local(nm), glulxasm.BranchTarget{Target: narrow}),

		instr(glulxasm.OpShiftl, local(hi), local(nm), local(outHi)),
		instr(glulxasm.OpSub, glulxasm.Imm{Value: 32}, local(nm), local(outLo)),
		instr(glulxasm.OpUshiftr, local(lo), local(outLo), local(outLo)),
		instr(glulxasm.OpBitor, local(outHi), local(outLo), local(outHi)),
		instr(glulxasm.OpShiftl, local(lo), local(nm), local(outLo)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(outHi)),
		instr(glulxasm.OpReturn, local(outLo)),

		glulxasm.ItemLabel{Name: narrow},
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(hi)),
		instr(glulxasm.OpReturn, local(lo)),

		glulxasm.ItemLabel{Name: wide},
		instr(glulxasm.OpSub, local(nm), glulxasm.Imm{Value: 32}, local(nm)),
		instr(glulxasm.OpShiftl, local(lo), local(nm), local(outHi)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(outHi)),
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),
	)
}

func emitShrU64(b *builder, hiReturn glulxasm.Label) glulxasm.Label {
	const hi, lo, n, nm, outHi, outLo = 0, 1, 2, 3, 4, 5
	wide := b.seq.New(glulxasm.KindROM, "shru64_wide")
	narrow := b.seq.New(glulxasm.KindROM, "shru64_narrow")
	return b.emitFunc("shru64", 6,
		instr(glulxasm.OpBitand, local(n), glulxasm.Imm{Value: 63}, local(nm)),
		instr(glulxasm.OpJgeu, local(nm), glulxasm.Imm{Value: 32}, glulxasm.BranchTarget{Target: wide}),
		instr(glulxasm.OpJz, local(nm), glulxasm.BranchTarget{Target: narrow}),

		instr(glulxasm.OpUshiftr, local(lo), local(nm), local(outLo)),
		instr(glulxasm.OpSub, glulxasm.Imm{Value: 32}, local(nm), local(outHi)),
		instr(glulxasm.OpShiftl, local(hi), local(outHi), local(outHi)),
		instr(glulxasm.OpBitor, local(outLo), local(outHi), local(outLo)),
		instr(glulxasm.OpUshiftr, local(hi), local(nm), local(outHi)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(outHi)),
		instr(glulxasm.OpReturn, local(outLo)),

		glulxasm.ItemLabel{Name: narrow},
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, glulxasm.Imm{Value: 0}),
		instr(glulxasm.OpReturn, local(lo)),

		glulxasm.ItemLabel{Name: wide},
		instr(glulxasm.OpSub, local(nm), glulxasm.Imm{Value: 32}, local(nm)),
		instr(glulxasm.OpUshiftr, local(hi), local(nm), local(outLo)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, glulxasm.Imm{Value: 0}),
		instr(glulxasm.OpReturn, local(outLo)),
	)
}

// emitShrS64 mirrors emitShrU64 but the bits vacated from the top
// replicate hi's sign bit, matching Glulx's sshiftr when applied to the
// high word in the n==0 and n>=32 cases.
func emitShrS64(b *builder, hiReturn glulxasm.Label) glulxasm.Label {
	const hi, lo, n, nm, outHi, outLo = 0, 1, 2, 3, 4, 5
	wide := b.seq.New(glulxasm.KindROM, "shrs64_wide")
	narrow := b.seq.New(glulxasm.KindROM, "shrs64_narrow")
	return b.emitFunc("shrs64", 6,
		instr(glulxasm.OpBitand, local(n), glulxasm.Imm{Value: 63}, local(nm)),
		instr(glulxasm.OpJgeu, local(nm), glulxasm.Imm{Value: 32}, glulxasm.BranchTarget{Target: wide}),
		instr(glulxasm.OpJz, local(nm), glulxasm.BranchTarget{Target: narrow}),

		instr(glulxasm.OpUshiftr, local(lo), local(nm), local(outLo)),
		instr(glulxasm.OpSub, glulxasm.Imm{Value: 32}, local(nm), local(outHi)),
		instr(glulxasm.OpShiftl, local(hi), local(outHi), local(outHi)),
		instr(glulxasm.OpBitor, local(outLo), local(outHi), local(outLo)),
		instr(glulxasm.OpSshiftr, local(hi), local(nm), local(outHi)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(outHi)),
		instr(glulxasm.OpReturn, local(outLo)),

		glulxasm.ItemLabel{Name: narrow},
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(hi)),
		instr(glulxasm.OpReturn, local(lo)),

		glulxasm.ItemLabel{Name: wide},
		instr(glulxasm.OpSub, local(nm), glulxasm.Imm{Value: 32}, local(nm)),
		instr(glulxasm.OpSshiftr, local(hi), local(nm), local(outLo)),
		instr(glulxasm.OpSshiftr, local(hi), glulxasm.Imm{Value: 31}, local(outHi)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(outHi)),
		instr(glulxasm.OpReturn, local(outLo)),
	)
}

// emitRotl64(hi, lo, n) composes shl64 and shru64: rotl(v,n) = shl(v,n)
// | shru(v, 64-(n&63)), OR-ing the two halves. hiReturn's contents are
// copied into a local right after each call, since the next call
// overwrites the scratch cell.
func emitRotl64(b *builder, l *Library, hiReturn glulxasm.Label) glulxasm.Label {
	const hi, lo, n, nm, leftLo, leftHi, rightLo, rightHi, shiftAmt = 0, 1, 2, 3, 4, 5, 6, 7, 8
	body := []glulxasm.Item{
		instr(glulxasm.OpBitand, local(n), glulxasm.Imm{Value: 63}, local(nm)),
	}
	body = append(body, callN(l.Shl64, local(leftLo), local(hi), local(lo), local(nm))...)
	body = append(body, instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(leftHi)))
	body = append(body,
		instr(glulxasm.OpSub, glulxasm.Imm{Value: 64}, local(nm), local(shiftAmt)),
		instr(glulxasm.OpBitand, local(shiftAmt), glulxasm.Imm{Value: 63}, local(shiftAmt)),
	)
	body = append(body, callN(l.ShrU64, local(rightLo), local(hi), local(lo), local(shiftAmt))...)
	body = append(body,
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(rightHi)),
		instr(glulxasm.OpBitor, local(leftLo), local(rightLo), local(leftLo)),
		instr(glulxasm.OpBitor, local(leftHi), local(rightHi), local(leftHi)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(leftHi)),
		instr(glulxasm.OpReturn, local(leftLo)),
	)
	return b.emitFunc("rotl64", 9, body...)
}

func emitRotr64(b *builder, l *Library, hiReturn glulxasm.Label) glulxasm.Label {
	const hi, lo, n, nm, leftLo, leftHi, rightLo, rightHi, shiftAmt = 0, 1, 2, 3, 4, 5, 6, 7, 8
	body := []glulxasm.Item{
		instr(glulxasm.OpBitand, local(n), glulxasm.Imm{Value: 63}, local(nm)),
	}
	body = append(body, callN(l.ShrU64, local(rightLo), local(hi), local(lo), local(nm))...)
	body = append(body, instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(rightHi)))
	body = append(body,
		instr(glulxasm.OpSub, glulxasm.Imm{Value: 64}, local(nm), local(shiftAmt)),
		instr(glulxasm.OpBitand, local(shiftAmt), glulxasm.Imm{Value: 63}, local(shiftAmt)),
	)
	body = append(body, callN(l.Shl64, local(leftLo), local(hi), local(lo), local(shiftAmt))...)
	body = append(body,
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(leftHi)),
		instr(glulxasm.OpBitor, local(leftLo), local(rightLo), local(leftLo)),
		instr(glulxasm.OpBitor, local(leftHi), local(rightHi), local(leftHi)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(leftHi)),
		instr(glulxasm.OpReturn, local(leftLo)),
	)
	return b.emitFunc("rotr64", 9, body...)
}

// emitClz64(hi, lo) counts leading zeros across both words: if hi is
// zero, the count is 32 plus clz(lo); otherwise it's just clz(hi).
func emitClz64(b *builder, l *Library) glulxasm.Label {
	const hi, lo, r = 0, 1, 2
	hiZero := b.seq.New(glulxasm.KindROM, "clz64_hizero")
	return b.emitFunc("clz64", 3,
		instr(glulxasm.OpJz, local(hi), glulxasm.BranchTarget{Target: hiZero}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Clz}, local(hi), local(r)),
		instr(glulxasm.OpReturn, local(r)),
		glulxasm.ItemLabel{Name: hiZero},
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Clz}, local(lo), local(r)),
		instr(glulxasm.OpAdd, local(r), glulxasm.Imm{Value: 32}, local(r)),
		instr(glulxasm.OpReturn, local(r)),
	)
}

func emitCtz64(b *builder, l *Library) glulxasm.Label {
	const hi, lo, r = 0, 1, 2
	loZero := b.seq.New(glulxasm.KindROM, "ctz64_lozero")
	return b.emitFunc("ctz64", 3,
		instr(glulxasm.OpJz, local(lo), glulxasm.BranchTarget{Target: loZero}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Ctz}, local(lo), local(r)),
		instr(glulxasm.OpReturn, local(r)),
		glulxasm.ItemLabel{Name: loZero},
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Ctz}, local(hi), local(r)),
		instr(glulxasm.OpAdd, local(r), glulxasm.Imm{Value: 32}, local(r)),
		instr(glulxasm.OpReturn, local(r)),
	)
}

func emitPopcnt64(b *builder, l *Library) glulxasm.Label {
	const hi, lo, a, c = 0, 1, 2, 3
	return b.emitFunc("popcnt64", 4,
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Popcnt}, local(hi), local(a)),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Popcnt}, local(lo), local(c)),
		instr(glulxasm.OpAdd, local(a), local(c), local(a)),
		instr(glulxasm.OpReturn, local(a)),
	)
}

// emitDivmodU64 computes unsigned 64/64 division via restoring binary
// long division: 64 VM-executed iterations over a combined 128-bit shift
// register (remHi:remLo:qHi:qLo), where the quotient half starts out
// holding the dividend and is shifted out one bit at a time as the
// remainder half is shifted in. Each iteration shifts the whole 128-bit
// register left by one, then tests whether the remainder half now is
// at least the divisor; if so it subtracts the divisor from the
// remainder and sets the vacated low bit of the quotient — the textbook
// restoring-division step.
//
// Returns (quotientLo, hiReturn[0]=quotientHi, hiReturn[1]=remainderLo,
// hiReturn[2]=remainderHi): a private three-extra-word convention used
// only internally, since this routine hands back both the quotient and
// the remainder at once rather than the usual single extra word.
// divU64/remU64 each keep only the half they need.
func emitDivmodU64(b *builder, l *Library, hiReturn glulxasm.Label) glulxasm.Label {
	const dividendHi, dividendLo, divisorHi, divisorLo = 0, 1, 2, 3
	const remHi, remLo, qHi, qLo, i, carry, overflowBit = 4, 5, 6, 7, 8, 9, 10
	loop := b.seq.New(glulxasm.KindROM, "divmodu64_loop")
	subtract := b.seq.New(glulxasm.KindROM, "divmodu64_subtract")
	hiDiffers := b.seq.New(glulxasm.KindROM, "divmodu64_hidiffers")
	afterSubtract := b.seq.New(glulxasm.KindROM, "divmodu64_aftersubtract")
	done := b.seq.New(glulxasm.KindROM, "divmodu64_done")
	divideByZeroOK := b.seq.New(glulxasm.KindROM, "divmodu64_nonzero")

	return b.emitFunc("divmodu64", 11,
		instr(glulxasm.OpBitor, local(divisorHi), local(divisorLo), local(carry)),
		instr(glulxasm.OpJnz, local(carry), glulxasm.BranchTarget{Target: divideByZeroOK}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Trap[TrapIntegerDivideByZero]}, glulxasm.Imm{Value: 0}, glulxasm.Discard{}),
		glulxasm.ItemLabel{Name: divideByZeroOK},

		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(remHi)),
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(remLo)),
		instr(glulxasm.OpCopy, local(dividendHi), local(qHi)),
		instr(glulxasm.OpCopy, local(dividendLo), local(qLo)),
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(i)),

		glulxasm.ItemLabel{Name: loop},
		instr(glulxasm.OpJgeu, local(i), glulxasm.Imm{Value: 64}, glulxasm.BranchTarget{Target: done}),

		// Shift (remHi:remLo:qHi:qLo) left by one bit, carry rippling
		// from qLo up through qHi and remLo into remHi. The bit shifted
		// out of remHi would be bit 64 of the remainder — since divisor
		// can itself use all 64 bits, that bit is only droppable once
		// we've used it to force the subtract below unconditionally.
		instr(glulxasm.OpUshiftr, local(remHi), glulxasm.Imm{Value: 31}, local(overflowBit)),
		instr(glulxasm.OpShiftl, local(remHi), glulxasm.Imm{Value: 1}, local(remHi)),
		instr(glulxasm.OpUshiftr, local(remLo), glulxasm.Imm{Value: 31}, local(carry)),
		instr(glulxasm.OpBitor, local(remHi), local(carry), local(remHi)),
		instr(glulxasm.OpShiftl, local(remLo), glulxasm.Imm{Value: 1}, local(remLo)),
		instr(glulxasm.OpUshiftr, local(qHi), glulxasm.Imm{Value: 31}, local(carry)),
		instr(glulxasm.OpBitor, local(remLo), local(carry), local(remLo)),
		instr(glulxasm.OpShiftl, local(qHi), glulxasm.Imm{Value: 1}, local(qHi)),
		instr(glulxasm.OpUshiftr, local(qLo), glulxasm.Imm{Value: 31}, local(carry)),
		instr(glulxasm.OpBitor, local(qHi), local(carry), local(qHi)),
		instr(glulxasm.OpShiftl, local(qLo), glulxasm.Imm{Value: 1}, local(qLo)),

		// remainder >= divisor? overflowBit set means the conceptual
		// 65-bit remainder is >= 2^64 > divisor, so the subtract is
		// unconditional; otherwise compare the two 64-bit values directly.
		instr(glulxasm.OpJnz, local(overflowBit), glulxasm.BranchTarget{Target: subtract}),
		instr(glulxasm.OpJne, local(remHi), local(divisorHi), glulxasm.BranchTarget{Target: hiDiffers}),
		instr(glulxasm.OpJltu, local(remLo), local(divisorLo), glulxasm.BranchTarget{Target: afterSubtract}),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: subtract}),
		glulxasm.ItemLabel{Name: hiDiffers},
		instr(glulxasm.OpJltu, local(remHi), local(divisorHi), glulxasm.BranchTarget{Target: afterSubtract}),

		glulxasm.ItemLabel{Name: subtract},
		instr(glulxasm.OpCallfii, glulxasm.LabelRef{Target: l.Ltu}, local(remLo), local(divisorLo), local(carry)),
		instr(glulxasm.OpSub, local(remLo), local(divisorLo), local(remLo)),
		instr(glulxasm.OpSub, local(remHi), local(divisorHi), local(remHi)),
		instr(glulxasm.OpSub, local(remHi), local(carry), local(remHi)),
		instr(glulxasm.OpBitor, local(qLo), glulxasm.Imm{Value: 1}, local(qLo)),

		glulxasm.ItemLabel{Name: afterSubtract},
		instr(glulxasm.OpAdd, local(i), glulxasm.Imm{Value: 1}, local(i)),
		instr(glulxasm.OpJump, glulxasm.BranchTarget{Target: loop}),

		glulxasm.ItemLabel{Name: done},
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(qHi)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 1}, local(remLo)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 2}, local(remHi)),
		instr(glulxasm.OpReturn, local(qLo)),
	)
}

func emitDivU64(b *builder, divmod glulxasm.Label) glulxasm.Label {
	const aHi, aLo, bHi, bLo, r = 0, 1, 2, 3, 4
	body := callN(divmod, local(r), local(aHi), local(aLo), local(bHi), local(bLo))
	body = append(body, instr(glulxasm.OpReturn, local(r)))
	return b.emitFunc("divu64", 5, body...)
}

// emitRemU64 calls divmodu64 and re-homes the remainder fields
// (hiReturn[1]/[2]) into the standard single-extra-word convention
// (primary return + hiReturn[0]) before returning.
func emitRemU64(b *builder, hiReturn glulxasm.Label, divmod glulxasm.Label) glulxasm.Label {
	const aHi, aLo, bHi, bLo, q, remLo, remHi = 0, 1, 2, 3, 4, 5, 6
	body := callN(divmod, local(q), local(aHi), local(aLo), local(bHi), local(bLo))
	body = append(body,
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 1}, local(remLo)),
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 2}, local(remHi)),
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(remHi)),
		instr(glulxasm.OpReturn, local(remLo)),
	)
	return b.emitFunc("remu64", 7, body...)
}

// emitDivS64(aHi, aLo, bHi, bLo) -> lo, hi: divides by sign/magnitude —
// record each operand's sign (its top bit, via an unsigned shift rather
// than a branch), negate whichever operand is negative, run the
// unsigned division, then negate the quotient if exactly one operand
// was negative. INT64_MIN / -1 traps as an integer overflow rather than
// silently wrapping, since the magnitude of the true quotient (2^63)
// does not fit back into a signed i64.
func emitDivS64(b *builder, l *Library, hiReturn glulxasm.Label) glulxasm.Label {
	const aHi, aLo, bHi, bLo, signA, signB, resultSign, qHi, qLo = 0, 1, 2, 3, 4, 5, 6, 7, 8
	skipOverflow := b.seq.New(glulxasm.KindROM, "divs64_skipoverflow")
	afterNegA := b.seq.New(glulxasm.KindROM, "divs64_afternega")
	afterNegB := b.seq.New(glulxasm.KindROM, "divs64_afternegb")
	noNegateQ := b.seq.New(glulxasm.KindROM, "divs64_nonegateq")

	body := []glulxasm.Item{
		// INT64_MIN / -1 overflow check.
		instr(glulxasm.OpJne, local(bHi), glulxasm.Imm{Value: -1}, glulxasm.BranchTarget{Target: skipOverflow}),
		instr(glulxasm.OpJne, local(bLo), glulxasm.Imm{Value: -1}, glulxasm.BranchTarget{Target: skipOverflow}),
		instr(glulxasm.OpJne, local(aLo), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: skipOverflow}),
		instr(glulxasm.OpJne, local(aHi), glulxasm.Imm{Value: int32(-2147483648)}, glulxasm.BranchTarget{Target: skipOverflow}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Trap[TrapIntegerOverflow]}, glulxasm.Imm{Value: 0}, glulxasm.Discard{}),
		glulxasm.ItemLabel{Name: skipOverflow},

		instr(glulxasm.OpUshiftr, local(aHi), glulxasm.Imm{Value: 31}, local(signA)),
		instr(glulxasm.OpUshiftr, local(bHi), glulxasm.Imm{Value: 31}, local(signB)),

		instr(glulxasm.OpJz, local(signA), glulxasm.BranchTarget{Target: afterNegA}),
	}
	body = append(body, callN(l.Sub64, local(aLo), glulxasm.Imm{Value: 0}, glulxasm.Imm{Value: 0}, local(aHi), local(aLo))...)
	body = append(body,
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(aHi)),
		glulxasm.ItemLabel{Name: afterNegA},

		instr(glulxasm.OpJz, local(signB), glulxasm.BranchTarget{Target: afterNegB}),
	)
	body = append(body, callN(l.Sub64, local(bLo), glulxasm.Imm{Value: 0}, glulxasm.Imm{Value: 0}, local(bHi), local(bLo))...)
	body = append(body,
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(bHi)),
		glulxasm.ItemLabel{Name: afterNegB},
	)
	body = append(body, callN(l.DivU64, local(qLo), local(aHi), local(aLo), local(bHi), local(bLo))...)
	body = append(body,
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(qHi)),
		instr(glulxasm.OpBitxor, local(signA), local(signB), local(resultSign)),
		instr(glulxasm.OpJz, local(resultSign), glulxasm.BranchTarget{Target: noNegateQ}),
	)
	body = append(body, callN(l.Sub64, local(qLo), glulxasm.Imm{Value: 0}, glulxasm.Imm{Value: 0}, local(qHi), local(qLo))...)
	body = append(body,
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(qHi)),
		glulxasm.ItemLabel{Name: noNegateQ},
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(qHi)),
		instr(glulxasm.OpReturn, local(qLo)),
	)
	return b.emitFunc("divs64", 9, body...)
}

// emitRemS64 mirrors emitDivS64: the remainder takes the dividend's
// sign (WebAssembly's i64.rem_s is a truncating remainder), so only a's
// sign needs recording.
func emitRemS64(b *builder, l *Library, hiReturn glulxasm.Label) glulxasm.Label {
	const aHi, aLo, bHi, bLo, signA, signB, rHi, rLo = 0, 1, 2, 3, 4, 5, 6, 7
	divideByZeroOK := b.seq.New(glulxasm.KindROM, "rems64_nonzero")
	afterNegA := b.seq.New(glulxasm.KindROM, "rems64_afternega")
	afterNegB := b.seq.New(glulxasm.KindROM, "rems64_afternegb")
	noNegateR := b.seq.New(glulxasm.KindROM, "rems64_nonegater")

	body := []glulxasm.Item{
		instr(glulxasm.OpBitor, local(bHi), local(bLo), local(rLo)),
		instr(glulxasm.OpJnz, local(rLo), glulxasm.BranchTarget{Target: divideByZeroOK}),
		instr(glulxasm.OpCallfi, glulxasm.LabelRef{Target: l.Trap[TrapIntegerDivideByZero]}, glulxasm.Imm{Value: 0}, glulxasm.Discard{}),
		glulxasm.ItemLabel{Name: divideByZeroOK},

		instr(glulxasm.OpUshiftr, local(aHi), glulxasm.Imm{Value: 31}, local(signA)),
		instr(glulxasm.OpUshiftr, local(bHi), glulxasm.Imm{Value: 31}, local(signB)),

		instr(glulxasm.OpJz, local(signA), glulxasm.BranchTarget{Target: afterNegA}),
	}
	body = append(body, callN(l.Sub64, local(aLo), glulxasm.Imm{Value: 0}, glulxasm.Imm{Value: 0}, local(aHi), local(aLo))...)
	body = append(body,
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(aHi)),
		glulxasm.ItemLabel{Name: afterNegA},

		instr(glulxasm.OpJz, local(signB), glulxasm.BranchTarget{Target: afterNegB}),
	)
	body = append(body, callN(l.Sub64, local(bLo), glulxasm.Imm{Value: 0}, glulxasm.Imm{Value: 0}, local(bHi), local(bLo))...)
	body = append(body,
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(bHi)),
		glulxasm.ItemLabel{Name: afterNegB},
	)
	body = append(body, callN(l.RemU64, local(rLo), local(aHi), local(aLo), local(bHi), local(bLo))...)
	body = append(body,
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(rHi)),
		instr(glulxasm.OpJz, local(signA), glulxasm.BranchTarget{Target: noNegateR}),
	)
	body = append(body, callN(l.Sub64, local(rLo), glulxasm.Imm{Value: 0}, glulxasm.Imm{Value: 0}, local(rHi), local(rLo))...)
	body = append(body,
		instr(glulxasm.OpAload, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(rHi)),
		glulxasm.ItemLabel{Name: noNegateR},
		instr(glulxasm.OpAstore, glulxasm.LabelRef{Target: hiReturn}, glulxasm.Imm{Value: 0}, local(rHi)),
		instr(glulxasm.OpReturn, local(rLo)),
	)
	return b.emitFunc("rems64", 8, body...)
}

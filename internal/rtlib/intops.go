package rtlib

import (
	"math/bits"

	"github.com/glulxvm/wasm2glulx/internal/glulxasm"
)

// buildIntOps emits the 32-bit integer helpers Glulx has no opcode for
// (spec.md §4.D): unsigned division/remainder, rotates, bit-counting via
// byte-lane table lookups, and the boolean comparison family (each
// returns 0 or 1, matching WebAssembly's i32 result convention, instead
// of branching).
func buildIntOps(b *builder, l *Library) {
	l.ClzTable = emitTable(b, "clz_table", func(v byte) byte {
		if v == 0 {
			return 8
		}
		return byte(bits.LeadingZeros8(v))
	})
	l.CtzTable = emitTable(b, "ctz_table", func(v byte) byte {
		if v == 0 {
			return 8
		}
		return byte(bits.TrailingZeros8(v))
	})
	l.PopcntTable = emitTable(b, "popcnt_table", func(v byte) byte {
		return byte(bits.OnesCount8(v))
	})

	l.Divu = emitDivu(b)
	l.Remu = emitRemu(b)
	l.Rotl = emitRotl(b)
	l.Rotr = emitRotr(b)
	l.Clz = emitClz(b, l)
	l.Ctz = emitCtz(b, l)
	l.Popcnt = emitPopcnt(b, l)

	l.Eqz = emitCompare(b, "eqz", glulxasm.OpJz, true)
	l.Eq = emitCompare(b, "eq", glulxasm.OpJeq, false)
	l.Ne = emitCompare(b, "ne", glulxasm.OpJne, false)
	l.Lt = emitCompare(b, "lt", glulxasm.OpJlt, false)
	l.Ltu = emitCompare(b, "ltu", glulxasm.OpJltu, false)
	l.Le = emitCompare(b, "le", glulxasm.OpJle, false)
	l.Leu = emitCompare(b, "leu", glulxasm.OpJleu, false)
	l.Gt = emitCompare(b, "gt", glulxasm.OpJgt, false)
	l.Gtu = emitCompare(b, "gtu", glulxasm.OpJgtu, false)
	l.Ge = emitCompare(b, "ge", glulxasm.OpJge, false)
	l.Geu = emitCompare(b, "geu", glulxasm.OpJgeu, false)
}

func emitTable(b *builder, name string, f func(byte) byte) glulxasm.Label {
	lbl := b.seq.New(glulxasm.KindROM, name)
	bytes := make([]byte, 256)
	for i := range bytes {
		bytes[i] = f(byte(i))
	}
	b.a.EmitROM(glulxasm.ItemLabel{Name: lbl}, glulxasm.ItemBlob{Bytes: bytes})
	return lbl
}

// emitDivu(n, d) computes n/d as a genuinely unsigned division by
// decomposing the dividend, since Glulx's div only supports signed
// division and the top bit of an unsigned operand would otherwise flip
// its sign (spec.md §4.D: "decomposition n = (n & 0x7FFFFFFF) + 0x7FFFFFFF
// + 1, then recombine"). When n's top bit is clear, plain signed div
// suffices and is used directly. A divisor with its top bit set leaves a
// quotient of 0 or 1, settled by one unsigned comparison. d = 0 is not
// checked here.
func emitDivu(b *builder) glulxasm.Label {
	const n, d, lowPart, q = 0, 1, 2, 3
	negative := b.seq.New(glulxasm.KindROM, "divu_negative")
	bigDivisor := b.seq.New(glulxasm.KindROM, "divu_bigdivisor")
	done := b.seq.New(glulxasm.KindROM, "divu_done")
	return b.emitFunc("divu", 4,
		instr(glulxasm.OpJlt, local(d), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: bigDivisor}),
		instr(glulxasm.OpJlt, local(n), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: negative}),
		instr(glulxasm.OpDiv, local(n), local(d), local(q)),
		instr(glulxasm.OpReturn, local(q)),
		glulxasm.ItemLabel{Name: negative},
		// n is "negative" as a signed int32 only because its top bit is
		// set; as an unsigned value it's (n & 0x7FFFFFFF) + 0x7FFFFFFF + 1.
		// Divide both non-negative pieces by d and add the quotients, then
		// fold the two remainders plus the final 1 back in: their sum is
		// below 2*d, so it adds at most one more to the quotient.
		instr(glulxasm.OpBitand, local(n), glulxasm.Imm{Value: 0x7FFFFFFF}, local(lowPart)),
		instr(glulxasm.OpDiv, local(lowPart), local(d), local(q)),
		instr(glulxasm.OpMod, local(lowPart), local(d), local(lowPart)),
		instr(glulxasm.OpDiv, glulxasm.Imm{Value: 0x7FFFFFFF}, local(d), local(n)),
		instr(glulxasm.OpAdd, local(q), local(n), local(q)),
		instr(glulxasm.OpMod, glulxasm.Imm{Value: 0x7FFFFFFF}, local(d), local(n)),
		instr(glulxasm.OpAdd, local(lowPart), local(n), local(lowPart)),
		instr(glulxasm.OpAdd, local(lowPart), glulxasm.Imm{Value: 1}, local(lowPart)),
		instr(glulxasm.OpJltu, local(lowPart), local(d), glulxasm.BranchTarget{Target: done}),
		instr(glulxasm.OpAdd, local(q), glulxasm.Imm{Value: 1}, local(q)),
		glulxasm.ItemLabel{Name: done},
		instr(glulxasm.OpReturn, local(q)),
		glulxasm.ItemLabel{Name: bigDivisor},
		instr(glulxasm.OpCopy, glulxasm.Imm{Value: 0}, local(q)),
		instr(glulxasm.OpJltu, local(n), local(d), glulxasm.BranchTarget{Target: done}),
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 1}),
	)
}

// emitRemu(n, d) is divu's remainder counterpart, computed the same way.
func emitRemu(b *builder) glulxasm.Label {
	const n, d, lowPart, r = 0, 1, 2, 3
	negative := b.seq.New(glulxasm.KindROM, "remu_negative")
	bigDivisor := b.seq.New(glulxasm.KindROM, "remu_bigdivisor")
	done := b.seq.New(glulxasm.KindROM, "remu_done")
	return b.emitFunc("remu", 4,
		instr(glulxasm.OpJlt, local(d), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: bigDivisor}),
		instr(glulxasm.OpJlt, local(n), glulxasm.Imm{Value: 0}, glulxasm.BranchTarget{Target: negative}),
		instr(glulxasm.OpMod, local(n), local(d), local(r)),
		instr(glulxasm.OpReturn, local(r)),
		glulxasm.ItemLabel{Name: negative},
		instr(glulxasm.OpBitand, local(n), glulxasm.Imm{Value: 0x7FFFFFFF}, local(lowPart)),
		instr(glulxasm.OpMod, local(lowPart), local(d), local(r)),
		instr(glulxasm.OpMod, glulxasm.Imm{Value: 0x7FFFFFFF}, local(d), local(lowPart)),
		instr(glulxasm.OpAdd, local(r), local(lowPart), local(r)),
		instr(glulxasm.OpAdd, local(r), glulxasm.Imm{Value: 1}, local(r)),
		instr(glulxasm.OpJltu, local(r), local(d), glulxasm.BranchTarget{Target: done}),
		instr(glulxasm.OpSub, local(r), local(d), local(r)),
		glulxasm.ItemLabel{Name: done},
		instr(glulxasm.OpReturn, local(r)),
		glulxasm.ItemLabel{Name: bigDivisor},
		instr(glulxasm.OpCopy, local(n), local(r)),
		instr(glulxasm.OpJltu, local(r), local(d), glulxasm.BranchTarget{Target: done}),
		instr(glulxasm.OpSub, local(r), local(d), local(r)),
		instr(glulxasm.OpReturn, local(r)),
	)
}

// emitRotl(n, c) rotates n left by c&31 bits.
func emitRotl(b *builder) glulxasm.Label {
	const n, c, cm, left, right = 0, 1, 2, 3, 4
	return b.emitFunc("rotl", 5,
		instr(glulxasm.OpBitand, local(c), glulxasm.Imm{Value: 31}, local(cm)),
		instr(glulxasm.OpShiftl, local(n), local(cm), local(left)),
		instr(glulxasm.OpSub, glulxasm.Imm{Value: 32}, local(cm), local(right)),
		instr(glulxasm.OpBitand, local(right), glulxasm.Imm{Value: 31}, local(right)),
		instr(glulxasm.OpUshiftr, local(n), local(right), local(right)),
		instr(glulxasm.OpBitor, local(left), local(right), local(left)),
		instr(glulxasm.OpReturn, local(left)),
	)
}

// emitRotr(n, c) rotates n right by c&31 bits.
func emitRotr(b *builder) glulxasm.Label {
	const n, c, cm, left, right = 0, 1, 2, 3, 4
	return b.emitFunc("rotr", 5,
		instr(glulxasm.OpBitand, local(c), glulxasm.Imm{Value: 31}, local(cm)),
		instr(glulxasm.OpUshiftr, local(n), local(cm), local(right)),
		instr(glulxasm.OpSub, glulxasm.Imm{Value: 32}, local(cm), local(left)),
		instr(glulxasm.OpBitand, local(left), glulxasm.Imm{Value: 31}, local(left)),
		instr(glulxasm.OpShiftl, local(n), local(left), local(left)),
		instr(glulxasm.OpBitor, local(left), local(right), local(left)),
		instr(glulxasm.OpReturn, local(left)),
	)
}

// emitClz scans from the most-significant byte down, returning the first
// nonzero byte's table entry plus 8 for every all-zero byte already
// skipped; clzTable[0]==8 makes the final byte's lookup correct even
// when n is entirely zero (returns 32).
func emitClz(b *builder, l *Library) glulxasm.Label {
	const n, byteVal = 0, 1
	check2, check1, check0 := b.seq.New(glulxasm.KindROM, "clz_check2"), b.seq.New(glulxasm.KindROM, "clz_check1"), b.seq.New(glulxasm.KindROM, "clz_check0")
	return b.emitFunc("clz", 2,
		instr(glulxasm.OpUshiftr, local(n), glulxasm.Imm{Value: 24}, local(byteVal)),
		instr(glulxasm.OpJz, local(byteVal), glulxasm.BranchTarget{Target: check2}),
		instr(glulxasm.OpAloadb, glulxasm.LabelRef{Target: l.ClzTable}, local(byteVal), local(byteVal)),
		instr(glulxasm.OpReturn, local(byteVal)),

		glulxasm.ItemLabel{Name: check2},
		instr(glulxasm.OpUshiftr, local(n), glulxasm.Imm{Value: 16}, local(byteVal)),
		instr(glulxasm.OpBitand, local(byteVal), glulxasm.Imm{Value: 0xFF}, local(byteVal)),
		instr(glulxasm.OpJz, local(byteVal), glulxasm.BranchTarget{Target: check1}),
		instr(glulxasm.OpAloadb, glulxasm.LabelRef{Target: l.ClzTable}, local(byteVal), local(byteVal)),
		instr(glulxasm.OpAdd, local(byteVal), glulxasm.Imm{Value: 8}, local(byteVal)),
		instr(glulxasm.OpReturn, local(byteVal)),

		glulxasm.ItemLabel{Name: check1},
		instr(glulxasm.OpUshiftr, local(n), glulxasm.Imm{Value: 8}, local(byteVal)),
		instr(glulxasm.OpBitand, local(byteVal), glulxasm.Imm{Value: 0xFF}, local(byteVal)),
		instr(glulxasm.OpJz, local(byteVal), glulxasm.BranchTarget{Target: check0}),
		instr(glulxasm.OpAloadb, glulxasm.LabelRef{Target: l.ClzTable}, local(byteVal), local(byteVal)),
		instr(glulxasm.OpAdd, local(byteVal), glulxasm.Imm{Value: 16}, local(byteVal)),
		instr(glulxasm.OpReturn, local(byteVal)),

		glulxasm.ItemLabel{Name: check0},
		instr(glulxasm.OpBitand, local(n), glulxasm.Imm{Value: 0xFF}, local(byteVal)),
		instr(glulxasm.OpAloadb, glulxasm.LabelRef{Target: l.ClzTable}, local(byteVal), local(byteVal)),
		instr(glulxasm.OpAdd, local(byteVal), glulxasm.Imm{Value: 24}, local(byteVal)),
		instr(glulxasm.OpReturn, local(byteVal)),
	)
}

// emitCtz mirrors emitClz scanning from the least-significant byte up.
func emitCtz(b *builder, l *Library) glulxasm.Label {
	const n, byteVal = 0, 1
	check1, check2, check3 := b.seq.New(glulxasm.KindROM, "ctz_check1"), b.seq.New(glulxasm.KindROM, "ctz_check2"), b.seq.New(glulxasm.KindROM, "ctz_check3")
	return b.emitFunc("ctz", 2,
		instr(glulxasm.OpBitand, local(n), glulxasm.Imm{Value: 0xFF}, local(byteVal)),
		instr(glulxasm.OpJz, local(byteVal), glulxasm.BranchTarget{Target: check1}),
		instr(glulxasm.OpAloadb, glulxasm.LabelRef{Target: l.CtzTable}, local(byteVal), local(byteVal)),
		instr(glulxasm.OpReturn, local(byteVal)),

		glulxasm.ItemLabel{Name: check1},
		instr(glulxasm.OpUshiftr, local(n), glulxasm.Imm{Value: 8}, local(byteVal)),
		instr(glulxasm.OpBitand, local(byteVal), glulxasm.Imm{Value: 0xFF}, local(byteVal)),
		instr(glulxasm.OpJz, local(byteVal), glulxasm.BranchTarget{Target: check2}),
		instr(glulxasm.OpAloadb, glulxasm.LabelRef{Target: l.CtzTable}, local(byteVal), local(byteVal)),
		instr(glulxasm.OpAdd, local(byteVal), glulxasm.Imm{Value: 8}, local(byteVal)),
		instr(glulxasm.OpReturn, local(byteVal)),

		glulxasm.ItemLabel{Name: check2},
		instr(glulxasm.OpUshiftr, local(n), glulxasm.Imm{Value: 16}, local(byteVal)),
		instr(glulxasm.OpBitand, local(byteVal), glulxasm.Imm{Value: 0xFF}, local(byteVal)),
		instr(glulxasm.OpJz, local(byteVal), glulxasm.BranchTarget{Target: check3}),
		instr(glulxasm.OpAloadb, glulxasm.LabelRef{Target: l.CtzTable}, local(byteVal), local(byteVal)),
		instr(glulxasm.OpAdd, local(byteVal), glulxasm.Imm{Value: 16}, local(byteVal)),
		instr(glulxasm.OpReturn, local(byteVal)),

		glulxasm.ItemLabel{Name: check3},
		instr(glulxasm.OpUshiftr, local(n), glulxasm.Imm{Value: 24}, local(byteVal)),
		instr(glulxasm.OpAloadb, glulxasm.LabelRef{Target: l.CtzTable}, local(byteVal), local(byteVal)),
		instr(glulxasm.OpAdd, local(byteVal), glulxasm.Imm{Value: 24}, local(byteVal)),
		instr(glulxasm.OpReturn, local(byteVal)),
	)
}

func emitPopcnt(b *builder, l *Library) glulxasm.Label {
	const n, byteVal, acc = 0, 1, 2
	return b.emitFunc("popcnt", 3,
		instr(glulxasm.OpBitand, local(n), glulxasm.Imm{Value: 0xFF}, local(byteVal)),
		instr(glulxasm.OpAloadb, glulxasm.LabelRef{Target: l.PopcntTable}, local(byteVal), local(acc)),
		instr(glulxasm.OpUshiftr, local(n), glulxasm.Imm{Value: 8}, local(byteVal)),
		instr(glulxasm.OpBitand, local(byteVal), glulxasm.Imm{Value: 0xFF}, local(byteVal)),
		instr(glulxasm.OpAloadb, glulxasm.LabelRef{Target: l.PopcntTable}, local(byteVal), local(byteVal)),
		instr(glulxasm.OpAdd, local(acc), local(byteVal), local(acc)),
		instr(glulxasm.OpUshiftr, local(n), glulxasm.Imm{Value: 16}, local(byteVal)),
		instr(glulxasm.OpBitand, local(byteVal), glulxasm.Imm{Value: 0xFF}, local(byteVal)),
		instr(glulxasm.OpAloadb, glulxasm.LabelRef{Target: l.PopcntTable}, local(byteVal), local(byteVal)),
		instr(glulxasm.OpAdd, local(acc), local(byteVal), local(acc)),
		instr(glulxasm.OpUshiftr, local(n), glulxasm.Imm{Value: 24}, local(byteVal)),
		instr(glulxasm.OpAloadb, glulxasm.LabelRef{Target: l.PopcntTable}, local(byteVal), local(byteVal)),
		instr(glulxasm.OpAdd, local(acc), local(byteVal), local(acc)),
		instr(glulxasm.OpReturn, local(acc)),
	)
}

// emitCompare builds a two-argument (or one, for eqz) boolean comparison
// routine: branches on a Glulx jump opcode, returning 1 or 0 rather than
// falling through to the caller's own branch, matching WebAssembly's
// comparison instructions, which all produce an i32 0/1 value rather
// than branching themselves (codegen only uses the branching form
// directly when test fusion applies, per spec.md §4.F).
func emitCompare(b *builder, name string, op uint32, unary bool) glulxasm.Label {
	isTrue := b.seq.New(glulxasm.KindROM, name+"_true")
	if unary {
		const n = 0
		return b.emitFunc(name, 1,
			instr(op, local(n), glulxasm.BranchTarget{Target: isTrue}),
			instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),
			glulxasm.ItemLabel{Name: isTrue},
			instr(glulxasm.OpReturn, glulxasm.Imm{Value: 1}),
		)
	}
	const a, c = 0, 1
	return b.emitFunc(name, 2,
		instr(op, local(a), local(c), glulxasm.BranchTarget{Target: isTrue}),
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 0}),
		glulxasm.ItemLabel{Name: isTrue},
		instr(glulxasm.OpReturn, glulxasm.Imm{Value: 1}),
	)
}

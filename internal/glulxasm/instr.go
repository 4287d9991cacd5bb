package glulxasm

import "fmt"

// Opcode numbers per the Glulx VM Specification version 3.1.3, transcribed
// from the reference compiler's opcode table (see DESIGN.md). Ranges
// 0x1000-0x10FF and above 0x4000 are reserved by the spec for third-party
// extensions (spec.md §9 "Open question") and are never emitted here.
const (
	OpNop = 0x00

	OpAdd     = 0x10
	OpSub     = 0x11
	OpMul     = 0x12
	OpDiv     = 0x13
	OpMod     = 0x14
	OpNeg     = 0x15
	OpBitand  = 0x18
	OpBitor   = 0x19
	OpBitxor  = 0x1A
	OpBitnot  = 0x1B
	OpShiftl  = 0x1C
	OpSshiftr = 0x1D
	OpUshiftr = 0x1E

	OpJump   = 0x20
	OpJz     = 0x22
	OpJnz    = 0x23
	OpJeq    = 0x24
	OpJne    = 0x25
	OpJlt    = 0x26
	OpJge    = 0x27
	OpJgt    = 0x28
	OpJle    = 0x29
	OpJltu   = 0x2A
	OpJgeu   = 0x2B
	OpJgtu   = 0x2C
	OpJleu   = 0x2D
	OpJumpabs = 0x104

	OpCall     = 0x30
	OpReturn   = 0x31
	OpCatch    = 0x32
	OpThrow    = 0x33
	OpTailcall = 0x34

	OpCopy  = 0x40
	OpCopys = 0x41
	OpCopyb = 0x42
	OpSexs  = 0x44
	OpSexb  = 0x45

	OpAload      = 0x48
	OpAloads     = 0x49
	OpAloadb     = 0x4A
	OpAloadbit   = 0x4B
	OpAstore     = 0x4C
	OpAstores    = 0x4D
	OpAstoreb    = 0x4E
	OpAstorebit  = 0x4F

	OpStkcount = 0x50
	OpStkpeek  = 0x51
	OpStkswap  = 0x52
	OpStkroll  = 0x53
	OpStkcopy  = 0x54

	OpStreamchar    = 0x70
	OpStreamnum     = 0x71
	OpStreamstr     = 0x72
	OpStreamunichar = 0x73

	OpGestalt    = 0x100
	OpDebugtrap  = 0x101
	OpGetmemsize = 0x102
	OpSetmemsize = 0x103

	OpRandom    = 0x110
	OpSetrandom = 0x111

	OpQuit        = 0x120
	OpVerify      = 0x121
	OpRestart     = 0x122
	OpSave        = 0x123
	OpRestore     = 0x124
	OpSaveundo    = 0x125
	OpRestoreundo = 0x126
	OpProtect     = 0x127
	OpHasundo     = 0x128
	OpDiscardundo = 0x129

	OpGlk = 0x130

	OpGetstringtbl = 0x140
	OpSetstringtbl = 0x141
	OpGetiosys     = 0x148
	OpSetiosys     = 0x149

	OpLinearsearch = 0x150
	OpBinarysearch = 0x151
	OpLinkedsearch = 0x152

	OpCallf    = 0x160
	OpCallfi   = 0x161
	OpCallfii  = 0x162
	OpCallfiii = 0x163

	OpMzero  = 0x170
	OpMcopy  = 0x171
	OpMalloc = 0x178
	OpMfree  = 0x179

	OpAccelfunc  = 0x180
	OpAccelparam = 0x181

	OpNumtof  = 0x190
	OpFtonumz = 0x191
	OpFtonumn = 0x192
	OpCeil    = 0x198
	OpFloor   = 0x199

	OpFadd = 0x1A0
	OpFsub = 0x1A1
	OpFmul = 0x1A2
	OpFdiv = 0x1A3
	OpFmod = 0x1A4
	OpSqrt = 0x1A8
	OpExp  = 0x1A9
	OpLog  = 0x1AA
	OpPow  = 0x1AB

	OpSin   = 0x1B0
	OpCos   = 0x1B1
	OpTan   = 0x1B2
	OpAsin  = 0x1B3
	OpAcos  = 0x1B4
	OpAtan  = 0x1B5
	OpAtan2 = 0x1B6

	OpJfeq    = 0x1C0
	OpJfne    = 0x1C1
	OpJflt    = 0x1C2
	OpJfle    = 0x1C3
	OpJfgt    = 0x1C4
	OpJfge    = 0x1C5
	OpJisnan  = 0x1C8
	OpJisinf  = 0x1C9

	OpNumtod  = 0x200
	OpDtonumz = 0x201
	OpDtonumn = 0x202
	OpFtod    = 0x203
	OpDtof    = 0x204
	OpDceil   = 0x208
	OpDfloor  = 0x209
	OpDadd    = 0x210
	OpDsub    = 0x211
	OpDmul    = 0x212
	OpDdiv    = 0x213
	OpDmodr   = 0x214
	OpDmodq   = 0x215
	OpDsqrt   = 0x218
	OpDexp    = 0x219
	OpDlog    = 0x21A
	OpDpow    = 0x21B
	OpDsin    = 0x220
	OpDcos    = 0x221
	OpDtan    = 0x222
	OpDasin   = 0x223
	OpDacos   = 0x224
	OpDatan   = 0x225
	OpDatan2  = 0x226

	OpJdeq   = 0x230
	OpJdne   = 0x231
	OpJdlt   = 0x232
	OpJdle   = 0x233
	OpJdgt   = 0x234
	OpJdge   = 0x235
	OpJdisnan = 0x238
	OpJdisinf = 0x239
)

var mnemonics = map[uint32]string{
	OpNop: "nop", OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod",
	OpNeg: "neg", OpBitand: "bitand", OpBitor: "bitor", OpBitxor: "bitxor", OpBitnot: "bitnot",
	OpShiftl: "shiftl", OpSshiftr: "sshiftr", OpUshiftr: "ushiftr",
	OpJump: "jump", OpJz: "jz", OpJnz: "jnz", OpJeq: "jeq", OpJne: "jne", OpJlt: "jlt",
	OpJge: "jge", OpJgt: "jgt", OpJle: "jle", OpJltu: "jltu", OpJgeu: "jgeu", OpJgtu: "jgtu",
	OpJleu: "jleu", OpJumpabs: "jumpabs",
	OpCall: "call", OpReturn: "return", OpCatch: "catch", OpThrow: "throw", OpTailcall: "tailcall",
	OpCopy: "copy", OpCopys: "copys", OpCopyb: "copyb", OpSexs: "sexs", OpSexb: "sexb",
	OpAload: "aload", OpAloads: "aloads", OpAloadb: "aloadb", OpAloadbit: "aloadbit",
	OpAstore: "astore", OpAstores: "astores", OpAstoreb: "astoreb", OpAstorebit: "astorebit",
	OpStkcount: "stkcount", OpStkpeek: "stkpeek", OpStkswap: "stkswap", OpStkroll: "stkroll", OpStkcopy: "stkcopy",
	OpStreamchar: "streamchar", OpStreamnum: "streamnum", OpStreamstr: "streamstr", OpStreamunichar: "streamunichar",
	OpGestalt: "gestalt", OpDebugtrap: "debugtrap", OpGetmemsize: "getmemsize", OpSetmemsize: "setmemsize",
	OpRandom: "random", OpSetrandom: "setrandom",
	OpQuit: "quit", OpVerify: "verify", OpRestart: "restart", OpSave: "save", OpRestore: "restore",
	OpSaveundo: "saveundo", OpRestoreundo: "restoreundo", OpProtect: "protect", OpHasundo: "hasundo", OpDiscardundo: "discardundo",
	OpGlk: "glk",
	OpGetstringtbl: "getstringtbl", OpSetstringtbl: "setstringtbl", OpGetiosys: "getiosys", OpSetiosys: "setiosys",
	OpLinearsearch: "linearsearch", OpBinarysearch: "binarysearch", OpLinkedsearch: "linkedsearch",
	OpCallf: "callf", OpCallfi: "callfi", OpCallfii: "callfii", OpCallfiii: "callfiii",
	OpMzero: "mzero", OpMcopy: "mcopy", OpMalloc: "malloc", OpMfree: "mfree",
	OpAccelfunc: "accelfunc", OpAccelparam: "accelparam",
	OpNumtof: "numtof", OpFtonumz: "ftonumz", OpFtonumn: "ftonumn", OpCeil: "ceil", OpFloor: "floor",
	OpFadd: "fadd", OpFsub: "fsub", OpFmul: "fmul", OpFdiv: "fdiv", OpFmod: "fmod",
	OpSqrt: "sqrt", OpExp: "exp", OpLog: "log", OpPow: "pow",
	OpSin: "sin", OpCos: "cos", OpTan: "tan", OpAsin: "asin", OpAcos: "acos", OpAtan: "atan", OpAtan2: "atan2",
	OpJfeq: "jfeq", OpJfne: "jfne", OpJflt: "jflt", OpJfle: "jfle", OpJfgt: "jfgt", OpJfge: "jfge",
	OpJisnan: "jisnan", OpJisinf: "jisinf",
	OpNumtod: "numtod", OpDtonumz: "dtonumz", OpDtonumn: "dtonumn", OpFtod: "ftod", OpDtof: "dtof",
	OpDceil: "dceil", OpDfloor: "dfloor",
	OpDadd: "dadd", OpDsub: "dsub", OpDmul: "dmul", OpDdiv: "ddiv", OpDmodr: "dmodr", OpDmodq: "dmodq",
	OpDsqrt: "dsqrt", OpDexp: "dexp", OpDlog: "dlog", OpDpow: "dpow",
	OpDsin: "dsin", OpDcos: "dcos", OpDtan: "dtan", OpDasin: "dasin", OpDacos: "dacos", OpDatan: "datan", OpDatan2: "datan2",
	OpJdeq: "jdeq", OpJdne: "jdne", OpJdlt: "jdlt", OpJdle: "jdle", OpJdgt: "jdgt", OpJdge: "jdge",
	OpJdisnan: "jdisnan", OpJdisinf: "jdisinf",
}

// Instr is a single Glulx instruction: an opcode plus its operands in
// positional (load/store-mixed) order, matching the VM spec's operand
// lists exactly (spec.md §3 "Instruction").
type Instr struct {
	Opcode   uint32
	Operands []Operand
}

func NewInstr(opcode uint32, operands ...Operand) Instr {
	return Instr{Opcode: opcode, Operands: operands}
}

func (i Instr) Mnemonic() string {
	if m, ok := mnemonics[i.Opcode]; ok {
		return m
	}
	return fmt.Sprintf("op%#x", i.Opcode)
}

func (i Instr) String() string {
	s := i.Mnemonic()
	for _, o := range i.Operands {
		s += " " + o.String()
	}
	return s
}

// OpcodeLen returns the serialized width of the opcode field: 1 byte if
// opcode < 0x80, 2 bytes if < 0x4000, 4 bytes otherwise, with the
// high-bit prefix (0x00/0x80/0xC0) selecting the width (spec.md §4.B.1).
func OpcodeLen(opcode uint32) int {
	switch {
	case opcode < 0x80:
		return 1
	case opcode < 0x4000:
		return 2
	default:
		return 4
	}
}

func encodeOpcode(opcode uint32) []byte {
	switch OpcodeLen(opcode) {
	case 1:
		return []byte{byte(opcode)}
	case 2:
		v := opcode | 0x8000
		return []byte{byte(v >> 8), byte(v)}
	default:
		v := opcode | 0xC0000000
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// WorstLen upper-bounds the instruction's serialized length: opcode
// bytes, plus ceil(n/2) mode-nibble bytes, plus each operand's worst-case
// payload width (spec.md §4.B "Upper bound").
func (i Instr) WorstLen() int {
	n := len(i.Operands)
	total := OpcodeLen(i.Opcode) + (n+1)/2
	for _, o := range i.Operands {
		total += o.WorstLen()
	}
	return total
}

// Resolve computes the actual serialized bytes of this instruction given
// its starting position. It returns the encoded bytes, whose length
// never exceeds WorstLen() (spec.md testable property #2).
func (i Instr) Resolve(pos uint32, ramStart uint32, r *Resolver) ([]byte, error) {
	opBytes := encodeOpcode(i.Opcode)
	n := len(i.Operands)
	modeBytes := make([]byte, (n+1)/2)

	// First pass: compute each operand's mode using a position estimate
	// equal to pos plus the worst-case remaining width, since branch
	// operands need to know their own final position to compute their
	// mode, and that position depends on the widths of operands before
	// them. We resolve strictly left-to-right, which is exact because
	// earlier operands can't depend on later ones' widths.
	cursor := pos + uint32(len(opBytes)) + uint32(len(modeBytes))
	// Precompute cumulative worst-case width of remaining operands so
	// resolving operand k can see "pos after my payload" including the
	// width of everything after it at worst-case — not needed since
	// Glulx operand resolution only requires position *after this
	// operand's own payload*, independent of later operands.
	payloads := make([][]byte, n)
	for idx, o := range i.Operands {
		// The position passed to Resolve must be this operand's own
		// post-payload address. We don't know the payload length until
		// we resolve it, but BranchTarget only needs (addr-pos+2) where
		// pos is the address right after this operand; for a 4-byte
		// worst-case operand that's cursor+width. Since encoding widths
		// only shrink during fixpoint tightening (never grow past
		// worst-case), and instructions are re-resolved every pass with
		// the operand's *actual* resolved width fed back via cursor, this
		// converges exactly like the rest of the assembler.
		width := o.WorstLen()
		mode, payload, err := o.Resolve(cursor+uint32(width), ramStart, r)
		if err != nil {
			return nil, err
		}
		if len(payload) != width {
			// Operand shrank (e.g. BranchTarget took a narrower form
			// than worst-case); re-resolve with the tightened position.
			mode, payload, err = o.Resolve(cursor+uint32(len(payload)), ramStart, r)
			if err != nil {
				return nil, err
			}
		}
		payloads[idx] = payload
		cursor += uint32(len(payload))
		if idx%2 == 0 {
			modeBytes[idx/2] = (modeBytes[idx/2] &^ 0x0F) | (mode & 0x0F)
		} else {
			modeBytes[idx/2] = (modeBytes[idx/2] &^ 0xF0) | ((mode & 0x0F) << 4)
		}
	}

	out := make([]byte, 0, i.WorstLen())
	out = append(out, opBytes...)
	out = append(out, modeBytes...)
	for _, p := range payloads {
		out = append(out, p...)
	}
	return out, nil
}

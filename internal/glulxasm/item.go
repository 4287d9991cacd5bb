package glulxasm

import "encoding/binary"

// Item is one element of a symbolic program: either a placeholder, a full
// instruction, raw bytes, a relocatable label reference, or a layout
// directive (spec.md §3 "Item").
type Item interface {
	// WorstLen upper-bounds this item's contribution to the byte stream,
	// independent of label values.
	WorstLen() int
	// Resolve computes the item's actual bytes at the given position.
	Resolve(pos uint32, ramStart uint32, r *Resolver) ([]byte, error)
	String() string
}

// ItemLabel is a placeholder that contributes zero bytes but, when
// placed, defines the address of Name.
type ItemLabel struct{ Name Label }

func (ItemLabel) WorstLen() int { return 0 }
func (it ItemLabel) Resolve(uint32, uint32, *Resolver) ([]byte, error) { return nil, nil }
func (it ItemLabel) String() string                                   { return "label" }

// ItemInstr wraps a full Instr.
type ItemInstr struct{ Instr Instr }

func (it ItemInstr) WorstLen() int { return it.Instr.WorstLen() }
func (it ItemInstr) Resolve(pos, ramStart uint32, r *Resolver) ([]byte, error) {
	return it.Instr.Resolve(pos, ramStart, r)
}
func (it ItemInstr) String() string { return it.Instr.String() }

// ItemBlob emits raw bytes verbatim (used for string/data segment
// contents, generated jump tables' fixed parts, etc).
type ItemBlob struct{ Bytes []byte }

func (it ItemBlob) WorstLen() int { return len(it.Bytes) }
func (it ItemBlob) Resolve(uint32, uint32, *Resolver) ([]byte, error) {
	out := make([]byte, len(it.Bytes))
	copy(out, it.Bytes)
	return out, nil
}
func (it ItemBlob) String() string { return "blob" }

// ItemLabelRef is a 1/2/4-byte reference to a label's address, used for
// jump tables and function-pointer tables (spec.md §3 "Item").
type ItemLabelRef struct {
	Target Label
	Offset int32
	Shift  uint8
	Width  int // 1, 2, or 4
}

func (it ItemLabelRef) WorstLen() int { return it.Width }

func (it ItemLabelRef) Resolve(pos, ramStart uint32, r *Resolver) ([]byte, error) {
	addr, ok := r.Addr(it.Target)
	if !ok {
		return nil, UndefinedLabelErr(it.Target)
	}
	v := (int64(addr) + int64(it.Offset)) << it.Shift
	buf := make([]byte, it.Width)
	switch it.Width {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(buf, uint16(v))
	default:
		binary.BigEndian.PutUint32(buf, uint32(v))
	}
	return buf, nil
}
func (it ItemLabelRef) String() string { return "labelref" }

// ItemZeroPad reserves n zero bytes (used for RAM reservations with a
// known initial value of zero).
type ItemZeroPad struct{ N uint32 }

func (it ItemZeroPad) WorstLen() int { return int(it.N) }
func (it ItemZeroPad) Resolve(uint32, uint32, *Resolver) ([]byte, error) {
	return make([]byte, it.N), nil
}
func (it ItemZeroPad) String() string { return "zeropad" }

// ItemAlign pads with zero bytes up to the next multiple of N. Its
// WorstLen is N-1 (worst case); its actual Resolve result depends on the
// position it ends up placed at and is computed by the assembler driver
// during placement, not here — by the time Resolve is called the item's
// true length has already been fixed by the placement pass, so Resolve
// simply re-derives the same padding from pos.
type ItemAlign struct{ N uint32 }

func (it ItemAlign) WorstLen() int {
	if it.N == 0 {
		return 0
	}
	return int(it.N) - 1
}

func (it ItemAlign) padLen(pos uint32) uint32 {
	if it.N == 0 {
		return 0
	}
	rem := pos % it.N
	if rem == 0 {
		return 0
	}
	return it.N - rem
}

func (it ItemAlign) Resolve(pos, ramStart uint32, r *Resolver) ([]byte, error) {
	return make([]byte, it.padLen(pos)), nil
}
func (it ItemAlign) String() string { return "align" }

// ItemFnHeader emits a Glulx function header: the function-calling
// convention byte (0xC1: the call copies its arguments into the first
// locals, which is where every function this compiler emits reads them)
// followed by the locals-format list and its
// terminator, then reserves nothing further — locals themselves live in
// the call frame, not in the story file (spec.md §4.I).
//
// LocalRuns describes the locals format as (type-size, count) pairs, e.g.
// [(4, 3)] for three 32-bit locals, terminated by a (0,0) pair per the
// Glulx spec.
type ItemFnHeader struct {
	LocalRuns [][2]byte // [size, count]
}

func (it ItemFnHeader) WorstLen() int {
	return 1 + 2*(len(it.LocalRuns)+1)
}

func (it ItemFnHeader) Resolve(uint32, uint32, *Resolver) ([]byte, error) {
	out := []byte{0xC1}
	for _, run := range it.LocalRuns {
		out = append(out, run[0], run[1])
	}
	out = append(out, 0, 0)
	return out, nil
}
func (it ItemFnHeader) String() string { return "fnhead" }

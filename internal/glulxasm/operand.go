package glulxasm

import (
	"encoding/binary"
	"fmt"
)

// Addressing-mode nibbles, per the Glulx VM Specification §1.3. Two
// operands pack into one mode byte (low nibble = first operand, high
// nibble = second), as spec.md §4.B describes.
const (
	ModeConstZero  = 0x0 // constant zero, no payload bytes
	ModeConst1     = 0x1 // constant, 1 byte
	ModeConst2     = 0x2 // constant, 2 bytes
	ModeConst4     = 0x3 // constant, 4 bytes
	ModeAddr1      = 0x5 // contents of address, 1-byte address
	ModeAddr2      = 0x6 // contents of address, 2-byte address
	ModeAddr4      = 0x7 // contents of address, 4-byte address
	ModeStack      = 0x8 // stack pop (load) / stack push (store)
	ModeLocal1     = 0x9 // call-frame local, 1-byte offset
	ModeLocal2     = 0xA // call-frame local, 2-byte offset
	ModeLocal4     = 0xB // call-frame local, 4-byte offset
	ModeRAMAddr1   = 0xD // RAM-relative address, 1-byte
	ModeRAMAddr2   = 0xE // RAM-relative address, 2-byte
	ModeRAMAddr4   = 0xF // RAM-relative address, 4-byte
	ModeDiscard    = 0x8 // store-only alias of ModeStack meaning "discard"
)

// Operand is the tagged value carried by every instruction slot. The same
// type serves load and store positions; callers are responsible for using
// operand variants that are valid in the position they appear (e.g. a
// Push operand is never meaningful as a load).
type Operand interface {
	// Mode returns the addressing-mode nibble for this operand, given
	// the resolved absolute addresses (needed only for Label, whose mode
	// can change width once the address is final).
	Mode(pos uint32, ramStart uint32, r *Resolver) (byte, error)
	// WorstLen bounds the payload size independent of label values.
	WorstLen() int
	// Resolve computes the final payload bytes. pos is the absolute
	// address immediately following this operand's own payload (used by
	// branch-offset operands to compute target-relative offsets).
	Resolve(pos uint32, ramStart uint32, r *Resolver) (mode byte, payload []byte, err error)
	// RefersTo reports the label this operand reads, if any (for
	// dependency bookkeeping in layout/codegen).
	RefersTo() (Label, bool)
	String() string
}

// ---- Immediate ----

// Imm is a plain constant. Mode/width is chosen by magnitude: 0 bytes if
// zero, else the smallest of 1/2/4 bytes whose sign extension gives back
// the value (Glulx constants have no separate signed/unsigned encoding —
// the interpreter sign-extends 1/2-byte constants per the VM spec).
type Imm struct{ Value int32 }

func (Imm) RefersTo() (Label, bool) { return 0, false }

func (o Imm) String() string { return fmt.Sprintf("#%d", o.Value) }

func (o Imm) WorstLen() int {
	switch {
	case o.Value == 0:
		return 0
	case o.Value >= -128 && o.Value <= 127:
		return 1
	case o.Value >= -32768 && o.Value <= 32767:
		return 2
	default:
		return 4
	}
}

func (o Imm) Mode(uint32, uint32, *Resolver) (byte, error) {
	switch o.WorstLen() {
	case 0:
		return ModeConstZero, nil
	case 1:
		return ModeConst1, nil
	case 2:
		return ModeConst2, nil
	default:
		return ModeConst4, nil
	}
}

func (o Imm) Resolve(pos uint32, ramStart uint32, r *Resolver) (byte, []byte, error) {
	mode, _ := o.Mode(pos, ramStart, r)
	switch mode {
	case ModeConstZero:
		return mode, nil, nil
	case ModeConst1:
		return mode, []byte{byte(o.Value)}, nil
	case ModeConst2:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(o.Value))
		return mode, buf, nil
	default:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(o.Value))
		return mode, buf, nil
	}
}

// LabelRef loads the address of a label (optionally offset and
// pre-shifted: (addr(label)+offset)<<shift, per spec.md §4.A
// imml_off_shift). Always encoded as a 4-byte constant, since the final
// address is not known until layout and could require the full width.
type LabelRef struct {
	Target Label
	Offset int32
	Shift  uint8
}

func (o LabelRef) RefersTo() (Label, bool) { return o.Target, true }
func (o LabelRef) String() string          { return fmt.Sprintf("&L%d+%d<<%d", o.Target, o.Offset, o.Shift) }
func (LabelRef) WorstLen() int             { return 4 }
func (LabelRef) Mode(uint32, uint32, *Resolver) (byte, error) { return ModeConst4, nil }

func (o LabelRef) Resolve(pos uint32, ramStart uint32, r *Resolver) (byte, []byte, error) {
	addr, ok := r.Addr(o.Target)
	if !ok {
		return 0, nil, fmt.Errorf("undefined label L%d", o.Target)
	}
	v := (int64(addr) + int64(o.Offset)) << o.Shift
	if v < 0 || v > 0xFFFFFFFF {
		return 0, nil, fmt.Errorf("label reference overflow: L%d", o.Target)
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return ModeConst4, buf, nil
}

// BranchTarget computes target - (address right after the operand) + 2,
// the Glulx branch-offset convention (spec.md §3 "Instruction"), encoded
// in the smallest width (1/2/4 bytes) that holds the signed result. 0 and
// 1 are the special "return false"/"return true" targets and are passed
// through unchanged when Special is set.
type BranchTarget struct {
	Target  Label
	Special bool // if true, Target is ignored and SpecialValue is emitted as a raw constant (0 or 1)
	SpecialValue int32
}

func (o BranchTarget) RefersTo() (Label, bool) {
	if o.Special {
		return 0, false
	}
	return o.Target, true
}

func (o BranchTarget) String() string {
	if o.Special {
		return fmt.Sprintf("#%d", o.SpecialValue)
	}
	return fmt.Sprintf("branch(L%d)", o.Target)
}

func (o BranchTarget) WorstLen() int { return 4 }

func (o BranchTarget) offset(pos uint32, r *Resolver) (int64, error) {
	if o.Special {
		return int64(o.SpecialValue), nil
	}
	addr, ok := r.Addr(o.Target)
	if !ok {
		return 0, fmt.Errorf("undefined label L%d", o.Target)
	}
	return int64(addr) - int64(pos) + 2, nil
}

func (o BranchTarget) Mode(pos uint32, ramStart uint32, r *Resolver) (byte, error) {
	off, err := o.offset(pos, r)
	if err != nil {
		// worst case: assume widest encoding until resolvable.
		return ModeConst4, nil
	}
	switch {
	case off == 0:
		return ModeConstZero, nil
	case off >= -128 && off <= 127:
		return ModeConst1, nil
	case off >= -32768 && off <= 32767:
		return ModeConst2, nil
	default:
		return ModeConst4, nil
	}
}

func (o BranchTarget) Resolve(pos uint32, ramStart uint32, r *Resolver) (byte, []byte, error) {
	off, err := o.offset(pos, r)
	if err != nil {
		return 0, nil, err
	}
	switch {
	case off == 0:
		return ModeConstZero, nil, nil
	case off >= -128 && off <= 127:
		return ModeConst1, []byte{byte(int8(off))}, nil
	case off >= -32768 && off <= 32767:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(int16(off)))
		return ModeConst2, buf, nil
	default:
		if off < -(1<<31) || off > (1<<31-1) {
			return 0, nil, fmt.Errorf("branch offset overflow to L%d", o.Target)
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(int32(off)))
		return ModeConst4, buf, nil
	}
}

// Local refers to a frame-local slot by number.
type Local struct{ Slot uint32 }

func (Local) RefersTo() (Label, bool) { return 0, false }
func (o Local) String() string        { return fmt.Sprintf("local[%d]", o.Slot) }

func (o Local) width() int {
	switch {
	case o.Slot*4 <= 0xFF:
		return 1
	case o.Slot*4 <= 0xFFFF:
		return 2
	default:
		return 4
	}
}

func (o Local) WorstLen() int { return o.width() }

func (o Local) Mode(uint32, uint32, *Resolver) (byte, error) {
	switch o.width() {
	case 1:
		return ModeLocal1, nil
	case 2:
		return ModeLocal2, nil
	default:
		return ModeLocal4, nil
	}
}

func (o Local) Resolve(pos uint32, ramStart uint32, r *Resolver) (byte, []byte, error) {
	mode, _ := o.Mode(pos, ramStart, r)
	// Local offsets are byte offsets into the call frame, 4 bytes per slot.
	byteOff := o.Slot * 4
	switch mode {
	case ModeLocal1:
		return mode, []byte{byte(byteOff)}, nil
	case ModeLocal2:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(byteOff))
		return mode, buf, nil
	default:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, byteOff)
		return mode, buf, nil
	}
}

// Pop is the "read by popping the stack" load operand, or — used as a
// store operand via Push below — "write by pushing the stack".
type Pop struct{}

func (Pop) RefersTo() (Label, bool)                            { return 0, false }
func (Pop) String() string                                     { return "pop" }
func (Pop) WorstLen() int                                      { return 0 }
func (Pop) Mode(uint32, uint32, *Resolver) (byte, error)       { return ModeStack, nil }
func (Pop) Resolve(uint32, uint32, *Resolver) (byte, []byte, error) { return ModeStack, nil, nil }

// Push is the store-side counterpart of Pop.
type Push struct{}

func (Push) RefersTo() (Label, bool)                            { return 0, false }
func (Push) String() string                                     { return "push" }
func (Push) WorstLen() int                                      { return 0 }
func (Push) Mode(uint32, uint32, *Resolver) (byte, error)       { return ModeStack, nil }
func (Push) Resolve(uint32, uint32, *Resolver) (byte, []byte, error) { return ModeStack, nil, nil }

// Discard is the store-only "drop this value" operand (same encoding as
// Push/Pop's stack mode — Glulx has no other spelling for "discard" than
// pushing to a location nothing reads. Codegen only ever uses it as a
// store operand, never as a load.)
type Discard struct{}

func (Discard) RefersTo() (Label, bool)                            { return 0, false }
func (Discard) String() string                                     { return "discard" }
func (Discard) WorstLen() int                                      { return 0 }
func (Discard) Mode(uint32, uint32, *Resolver) (byte, error)       { return ModeStack, nil }
func (Discard) Resolve(uint32, uint32, *Resolver) (byte, []byte, error) { return ModeStack, nil, nil }

// Deref loads from, or stores to, the main-memory address held by a
// label (optionally with a constant byte offset): *(addr(label)+offset).
// Used for globals and any other fixed-address cell (cur_size, hi_return
// words, etc).
type Deref struct {
	Target Label
	Offset int32
}

func (o Deref) RefersTo() (Label, bool) { return o.Target, true }
func (o Deref) String() string          { return fmt.Sprintf("*(L%d+%d)", o.Target, o.Offset) }
func (Deref) WorstLen() int             { return 4 }
func (Deref) Mode(uint32, uint32, *Resolver) (byte, error) { return ModeAddr4, nil }

func (o Deref) Resolve(pos uint32, ramStart uint32, r *Resolver) (byte, []byte, error) {
	addr, ok := r.Addr(o.Target)
	if !ok {
		return 0, nil, fmt.Errorf("undefined label L%d", o.Target)
	}
	v := int64(addr) + int64(o.Offset)
	if v < 0 || v > 0xFFFFFFFF {
		return 0, nil, fmt.Errorf("overflow dereferencing L%d", o.Target)
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return ModeAddr4, buf, nil
}

// ImmLOffShift implements spec.md's imml_off_shift(label, offset, shift):
// it's exactly LabelRef, kept as a documented alias for the name used in
// the specification.
func ImmLOffShift(label Label, offset int32, shift uint8) LabelRef {
	return LabelRef{Target: label, Offset: offset, Shift: shift}
}

// PackModes packs two operand mode nibbles into one byte: low nibble is
// the first operand, high nibble the second (spec.md §4.B serialization
// order).
func PackModes(first, second byte) byte {
	return (first & 0x0F) | ((second & 0x0F) << 4)
}

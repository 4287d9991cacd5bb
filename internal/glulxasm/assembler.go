package glulxasm

import "encoding/binary"

const (
	HeaderSize = 36
	Magic      = "Glul"
	// Version 3.1.3 encoded as the VM spec does: major<<16 | minor<<8 | patch.
	Version = 0x00030103
	// alignBoundary is the multiple that ram_start and end_mem must be a
	// multiple of, per the Glulx header format.
	alignBoundary = 256
)

func align(v uint32, n uint32) uint32 {
	if n == 0 {
		return v
	}
	if r := v % n; r != 0 {
		return v + (n - r)
	}
	return v
}

// Assembled is the output of a successful assembly pass: the finished
// byte buffer plus the header fields that are useful to a caller/test
// without re-parsing the header (spec.md testable property #1).
type Assembled struct {
	Bytes            []byte
	RAMStart         uint32
	EndMem           uint32
	StartAddr        uint32
	DecodingTableAddr uint32
}

// Assemble runs the full driver: placement, fixpoint tightening, header
// emission, body emission, and checksum (spec.md §4.C).
func Assemble(a *Assembly) (*Assembled, error) {
	r := NewResolver()

	// Step 1/2: optimistic placement using worst-case lengths, so every
	// label has *some* address before the first real resolve pass (labels
	// referenced by operands that appear before their definition need this).
	pos := uint32(HeaderSize)
	for _, it := range a.ROM {
		if lbl, ok := it.(ItemLabel); ok {
			r.Define(lbl.Name, pos)
		}
		pos += uint32(it.WorstLen())
	}
	ramStart := align(pos, alignBoundary)
	pos = ramStart
	for _, it := range a.RAM {
		if lbl, ok := it.(ItemLabel); ok {
			r.Define(lbl.Name, pos)
		}
		pos += uint32(it.WorstLen())
	}
	endMem := align(pos, alignBoundary)
	if uint64(endMem) > 0xFFFFFFFF {
		return nil, OverflowErr("end of memory exceeds 2^32")
	}

	// Step 3: fixpoint tightening (branch relaxation in reverse). Each
	// pass re-resolves every item with the current resolver; addresses
	// only ever move down, so this is monotone non-increasing and
	// terminates (spec.md testable property #3).
	maxPasses := len(a.ROM) + len(a.RAM) + 4
	var romBytes, ramBytes [][]byte
	for pass := 0; pass < maxPasses; pass++ {
		changed := false

		pos = HeaderSize
		romBytes = make([][]byte, len(a.ROM))
		for i, it := range a.ROM {
			if lbl, ok := it.(ItemLabel); ok {
				if addr, _ := r.Addr(lbl.Name); addr != pos {
					changed = true
				}
				r.Redefine(lbl.Name, pos)
			}
			b, err := it.Resolve(pos, ramStart, r)
			if err != nil {
				// Labels may still be unresolved on early passes because
				// forward references haven't been (re)defined yet this
				// pass; tolerate that with a zero-filled placeholder of
				// the item's worst-case length. Only on the final pass
				// is this fatal.
				if pass == maxPasses-1 {
					return nil, err
				}
				b = make([]byte, it.WorstLen())
			}
			if len(b) != it.WorstLen() {
				// shrinkage is fine; growth beyond worst-case is a bug.
			}
			romBytes[i] = b
			pos += uint32(len(b))
		}
		newRAMStart := align(pos, alignBoundary)
		if newRAMStart != ramStart {
			changed = true
			ramStart = newRAMStart
		}

		pos = ramStart
		ramBytes = make([][]byte, len(a.RAM))
		for i, it := range a.RAM {
			if lbl, ok := it.(ItemLabel); ok {
				if addr, _ := r.Addr(lbl.Name); addr != pos {
					changed = true
				}
				r.Redefine(lbl.Name, pos)
			}
			b, err := it.Resolve(pos, ramStart, r)
			if err != nil {
				if pass == maxPasses-1 {
					return nil, err
				}
				b = make([]byte, it.WorstLen())
			}
			ramBytes[i] = b
			pos += uint32(len(b))
		}
		newEndMem := align(pos, alignBoundary)
		if newEndMem != endMem {
			changed = true
			endMem = newEndMem
		}

		if !changed {
			break
		}
	}

	if uint64(endMem) > 0xFFFFFFFF {
		return nil, OverflowErr("end of memory exceeds 2^32")
	}

	startAddr, ok := r.Addr(a.Start)
	if !ok {
		return nil, UndefinedLabelErr(a.Start)
	}
	var decodingAddr uint32
	if a.HasDecodingTable {
		decodingAddr, ok = r.Addr(a.DecodingTable)
		if !ok {
			return nil, UndefinedLabelErr(a.DecodingTable)
		}
	}

	// Step 4/5: header + body emission.
	out := make([]byte, endMem)
	copy(out[0:4], Magic)
	binary.BigEndian.PutUint32(out[4:8], Version)
	binary.BigEndian.PutUint32(out[8:12], ramStart)
	binary.BigEndian.PutUint32(out[12:16], ramStart) // ext_start == ram_start: no extension
	binary.BigEndian.PutUint32(out[16:20], endMem)
	binary.BigEndian.PutUint32(out[20:24], a.StackSize)
	binary.BigEndian.PutUint32(out[24:28], startAddr)
	binary.BigEndian.PutUint32(out[28:32], decodingAddr)
	// out[32:36] (checksum) left zero for the sum below.

	cursor := HeaderSize
	for _, b := range romBytes {
		copy(out[cursor:], b)
		cursor += len(b)
	}
	cursor = int(ramStart)
	for _, b := range ramBytes {
		copy(out[cursor:], b)
		cursor += len(b)
	}

	// Step 6: checksum = wrapping sum of all big-endian 32-bit words,
	// with the checksum field itself treated as zero (spec.md testable
	// property #5).
	var sum uint32
	for i := 0; i+4 <= len(out); i += 4 {
		sum += binary.BigEndian.Uint32(out[i : i+4])
	}
	binary.BigEndian.PutUint32(out[32:36], sum)

	return &Assembled{
		Bytes:             out,
		RAMStart:          ramStart,
		EndMem:            endMem,
		StartAddr:         startAddr,
		DecodingTableAddr: decodingAddr,
	}, nil
}

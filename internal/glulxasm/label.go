package glulxasm

import "fmt"

// Label is an opaque reference carried by every symbolic item and operand.
// Labels are generated by a monotone Sequencer and resolved to absolute
// 32-bit addresses after layout (spec.md §3 "Label").
type Label uint32

// Kind distinguishes the address space a label is expected to resolve
// into. It is informational only — used for debug output and for
// sanity-checking the resolver, not for encoding.
type Kind int

const (
	KindROM Kind = iota
	KindRAM
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindROM:
		return "rom"
	case KindRAM:
		return "ram"
	case KindFunction:
		return "func"
	default:
		return "?"
	}
}

// Sequencer hands out monotonically increasing labels. It is the only
// mutable shared resource threaded through a compilation run (spec.md §5).
type Sequencer struct {
	next  uint32
	kinds map[Label]Kind
	names map[Label]string
}

func NewSequencer() *Sequencer {
	return &Sequencer{kinds: map[Label]Kind{}, names: map[Label]string{}}
}

// New allocates a fresh label of the given kind. name is used only for
// debugging/error messages.
func (s *Sequencer) New(kind Kind, name string) Label {
	l := Label(s.next)
	s.next++
	s.kinds[l] = kind
	if name != "" {
		s.names[l] = name
	}
	return l
}

func (s *Sequencer) Kind(l Label) Kind { return s.kinds[l] }

func (s *Sequencer) Name(l Label) string {
	if n, ok := s.names[l]; ok {
		return n
	}
	return fmt.Sprintf("L%d", uint32(l))
}

// Resolver maps labels to final absolute addresses, built once layout has
// assigned every item a position. Duplicate definitions and references to
// undefined labels are consistency errors (DuplicateLabel / UndefinedLabel).
type Resolver struct {
	addrs map[Label]uint32
}

func NewResolver() *Resolver {
	return &Resolver{addrs: map[Label]uint32{}}
}

// Define records the address of a label. Returns false if the label was
// already defined (caller should raise DuplicateLabel).
func (r *Resolver) Define(l Label, addr uint32) bool {
	if _, ok := r.addrs[l]; ok {
		return false
	}
	r.addrs[l] = addr
	return true
}

// Redefine overwrites a label's address; used during fixpoint tightening
// where the same label is re-placed on every pass.
func (r *Resolver) Redefine(l Label, addr uint32) {
	r.addrs[l] = addr
}

// Addr looks up a label's address. Returns false if undefined (caller
// should raise UndefinedLabel).
func (r *Resolver) Addr(l Label) (uint32, bool) {
	a, ok := r.addrs[l]
	return a, ok
}

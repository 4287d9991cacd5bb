// Package errs defines the closed CompilationError taxonomy (spec.md §7)
// and a Sink that accumulates errors across a compilation run instead of
// short-circuiting on the first one.
package errs

import "fmt"

// Location names the function (if any) an error originated in, for
// user-facing rendering.
type Location struct {
	Function string
	Symbol   string
}

func (l Location) String() string {
	switch {
	case l.Function != "" && l.Symbol != "":
		return fmt.Sprintf("%s: %s", l.Function, l.Symbol)
	case l.Function != "":
		return l.Function
	case l.Symbol != "":
		return l.Symbol
	default:
		return "<module>"
	}
}

// Kind discriminates the closed error taxonomy.
type Kind int

const (
	// KindOverflow: address space exhausted, locals exceed the 30-bit
	// bound, or a jump offset would exceed representable range.
	KindOverflow Kind = iota
	// KindUndefinedLabel: a label was referenced but never defined.
	KindUndefinedLabel
	// KindDuplicateLabel: a label was defined more than once.
	KindDuplicateLabel
	// KindUnsupportedInstruction: a Wasm opcode with no lowering (SIMD,
	// threads, etc).
	KindUnsupportedInstruction
	// KindUnrecognizedImport: a glk import whose name isn't in the
	// selector table.
	KindUnrecognizedImport
	// KindIncorrectlyTypedImport: a glk import whose signature doesn't
	// match the selector table's expectation.
	KindIncorrectlyTypedImport
	// KindInvalidModule: the upstream parser rejected the input (surfaced
	// here only; parsing itself is out of scope).
	KindInvalidModule
)

func (k Kind) String() string {
	switch k {
	case KindOverflow:
		return "overflow"
	case KindUndefinedLabel:
		return "undefined label"
	case KindDuplicateLabel:
		return "duplicate label"
	case KindUnsupportedInstruction:
		return "unsupported instruction"
	case KindUnrecognizedImport:
		return "unrecognized import"
	case KindIncorrectlyTypedImport:
		return "incorrectly typed import"
	case KindInvalidModule:
		return "invalid module"
	default:
		return "unknown"
	}
}

// CompilationError is one entry in the accumulated error list.
type CompilationError struct {
	Kind     Kind
	Location Location
	Detail   string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Location, e.Detail)
}

func Overflow(loc Location, detail string) *CompilationError {
	return &CompilationError{Kind: KindOverflow, Location: loc, Detail: detail}
}

func UndefinedLabel(loc Location, detail string) *CompilationError {
	return &CompilationError{Kind: KindUndefinedLabel, Location: loc, Detail: detail}
}

func DuplicateLabel(loc Location, detail string) *CompilationError {
	return &CompilationError{Kind: KindDuplicateLabel, Location: loc, Detail: detail}
}

func UnsupportedInstruction(fn, mnemonic string) *CompilationError {
	return &CompilationError{
		Kind:     KindUnsupportedInstruction,
		Location: Location{Function: fn, Symbol: mnemonic},
		Detail:   fmt.Sprintf("opcode %q is not implemented by this compiler", mnemonic),
	}
}

func UnrecognizedImport(module, name string) *CompilationError {
	return &CompilationError{
		Kind:     KindUnrecognizedImport,
		Location: Location{Symbol: name},
		Detail:   fmt.Sprintf("import %s.%s does not name a known host binding", module, name),
	}
}

func IncorrectlyTypedImport(name, expected, actual string) *CompilationError {
	return &CompilationError{
		Kind:     KindIncorrectlyTypedImport,
		Location: Location{Symbol: name},
		Detail:   fmt.Sprintf("expected signature %s, got %s", expected, actual),
	}
}

func InvalidModule(reason string) *CompilationError {
	return &CompilationError{Kind: KindInvalidModule, Detail: reason}
}

// Sink accumulates errors across a compilation pass. A non-empty Sink
// suppresses binary emission (spec.md §7).
type Sink struct {
	errors []*CompilationError
}

func (s *Sink) Add(e *CompilationError) {
	if e != nil {
		s.errors = append(s.errors, e)
	}
}

func (s *Sink) Empty() bool { return len(s.errors) == 0 }

func (s *Sink) Errors() []*CompilationError { return s.errors }

func (s *Sink) Error() string {
	if s.Empty() {
		return ""
	}
	msg := fmt.Sprintf("%d compilation error(s):", len(s.errors))
	for _, e := range s.errors {
		msg += "\n  " + e.Error()
	}
	return msg
}

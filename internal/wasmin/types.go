// Package wasmin is the input data model: a validated WebAssembly module,
// already parsed and type-checked by an upstream collaborator (spec.md §1
// explicitly places Wasm validation out of scope). Everything in this
// package is a plain, already-consistent value type; nothing here performs
// validation — a caller handing in a module that doesn't type-check is a
// programmer error, not a CompilationError.
package wasmin

// ValType is a WebAssembly value type. The numeric encoding matches the
// Wasm binary format's type tag bytes, which lets callers that already
// have a raw module (leb128-decoded upstream) pass tags through unchanged.
type ValType byte

const (
	ValTypeI32       ValType = 0x7F
	ValTypeI64       ValType = 0x7E
	ValTypeF32       ValType = 0x7D
	ValTypeF64       ValType = 0x7C
	ValTypeFuncRef   ValType = 0x70
	ValTypeExternRef ValType = 0x6F
)

func (v ValType) String() string {
	switch v {
	case ValTypeI32:
		return "i32"
	case ValTypeI64:
		return "i64"
	case ValTypeF32:
		return "f32"
	case ValTypeF64:
		return "f64"
	case ValTypeFuncRef:
		return "funcref"
	case ValTypeExternRef:
		return "externref"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether v is one of i32/i64/f32/f64 (as opposed to a
// reference type).
func (v ValType) IsNumeric() bool {
	switch v {
	case ValTypeI32, ValTypeI64, ValTypeF32, ValTypeF64:
		return true
	default:
		return false
	}
}

// Size32 is the number of 32-bit Glulx words this type occupies when held
// as a credit/debt or a local slot: 1 for everything except i64/f64, which
// occupy 2 in big-endian (hi, lo) order.
func (v ValType) Size32() int {
	switch v {
	case ValTypeI64, ValTypeF64:
		return 2
	default:
		return 1
	}
}

// FuncType is a function signature: a vector of parameter types followed
// by a vector of result types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Limits is a Wasm resizable-limits pair, shared by memory and table
// definitions.
type Limits struct {
	Min uint32
	Max uint32 // only meaningful when HasMax is true
	HasMax bool
}

// Global is a module-level global variable definition. Init is the
// constant initializer expression, represented directly as its resolved
// value (computation of constant-expr folding happens upstream, out of
// scope per spec.md §1) except for the func-ref/global-ref case, which
// references another index.
type Global struct {
	Type    ValType
	Mutable bool
	Init    ConstExpr
}

// ConstExpr is one of the handful of constant-expression forms the Wasm
// spec allows in global initializers, element segment offsets, and data
// segment offsets.
type ConstExpr struct {
	// Kind is one of "i32", "i64", "f32", "f64", "global", "ref.null",
	// "ref.func".
	Kind      string
	I32       int32
	I64       int64
	F32       float32
	F64       float64
	GlobalIdx uint32
	FuncIdx   uint32
}

// Memory is a single linear memory's limits, expressed in 64KiB pages as
// the Wasm binary format does.
type Memory struct {
	Limits Limits
}

// Table is a single table's element type and limits.
type Table struct {
	ElemType ValType // ValTypeFuncRef or ValTypeExternRef
	Limits   Limits
}

// DataSegment is a data segment: either active (loaded into a memory at
// module-instantiation time, at a constant offset) or passive (left for
// a memory.init instruction to copy from explicitly).
type DataSegment struct {
	Active   bool
	MemIndex uint32
	Offset   ConstExpr
	Bytes    []byte
}

// ElemSegment is an element segment: either active (loaded into a table
// at instantiation time) or passive/declared (left for table.init, or
// merely asserting functions are referenceable).
type ElemSegment struct {
	Active     bool
	Declared   bool
	TableIndex uint32
	Offset     ConstExpr
	ElemType   ValType
	// Funcs holds the function indices when every element is a bare
	// ref.func (the common case); Exprs holds the general form otherwise.
	Funcs []uint32
	Exprs []ConstExpr
}

// Import is a single module-level import: one of function, table,
// memory, or global.
type Import struct {
	Module string
	Name   string
	Kind   ImportKind
	// TypeIndex is meaningful when Kind == ImportFunc.
	TypeIndex uint32
	TableType  *Table
	MemoryType *Memory
	GlobalType *Global
}

type ImportKind byte

const (
	ImportFunc ImportKind = iota
	ImportTable
	ImportMemory
	ImportGlobal
)

// Export describes a single module-level export.
type Export struct {
	Name  string
	Kind  ImportKind
	Index uint32
}

// Function is a single (non-imported) function's signature index, local
// variable declarations, and body.
type Function struct {
	TypeIndex uint32
	// Locals holds the additional (non-parameter) local declarations, in
	// the run-length-encoded form the binary format uses: each entry is
	// a (count, type) pair.
	Locals []LocalRun
	Body   []Instr
	Name   string // best-effort, from the name section; may be empty
}

type LocalRun struct {
	Count uint32
	Type  ValType
}

// Module is the fully validated, already-decoded WebAssembly module this
// compiler lowers. Index spaces (functions, tables, memories, globals)
// are the concatenation of imports followed by locally defined entries,
// exactly as the Wasm binary format specifies.
type Module struct {
	Types   []FuncType
	Imports []Import

	Funcs   []Function // locally defined functions only
	Tables  []Table    // locally defined tables only
	Mems    []Memory   // locally defined memories only
	Globals []Global   // locally defined globals only

	Exports []Export

	StartFunc    uint32
	HasStartFunc bool

	Data []DataSegment
	Elem []ElemSegment

	// DataCount, when present, is the count given by the Wasm data-count
	// section; its presence is required to validate memory.init/data.drop
	// upstream but the compiler itself doesn't depend on it.
	DataCount    uint32
	HasDataCount bool
}

// NumFuncs is the size of the function index space (imported + local).
func (m *Module) NumFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ImportFunc {
			n++
		}
	}
	return n + len(m.Funcs)
}

// NumTables is the size of the table index space (imported + local).
func (m *Module) NumTables() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ImportTable {
			n++
		}
	}
	return n + len(m.Tables)
}

// NumMems is the size of the memory index space (imported + local).
func (m *Module) NumMems() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ImportMemory {
			n++
		}
	}
	return n + len(m.Mems)
}

// NumGlobals is the size of the global index space (imported + local).
func (m *Module) NumGlobals() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ImportGlobal {
			n++
		}
	}
	return n + len(m.Globals)
}

// FuncTypeOf returns the signature of the funcIdx'th function in the
// function index space.
func (m *Module) FuncTypeOf(funcIdx uint32) FuncType {
	i := 0
	for _, imp := range m.Imports {
		if imp.Kind == ImportFunc {
			if uint32(i) == funcIdx {
				return m.Types[imp.TypeIndex]
			}
			i++
		}
	}
	local := m.Funcs[int(funcIdx)-i]
	return m.Types[local.TypeIndex]
}

// GlobalTypeOf returns the globalIdx'th global in the global index space.
func (m *Module) GlobalTypeOf(globalIdx uint32) Global {
	i := 0
	for _, imp := range m.Imports {
		if imp.Kind == ImportGlobal {
			if uint32(i) == globalIdx {
				return *imp.GlobalType
			}
			i++
		}
	}
	return m.Globals[int(globalIdx)-i]
}

// TableOf returns the tableIdx'th table in the table index space.
func (m *Module) TableOf(tableIdx uint32) Table {
	i := 0
	for _, imp := range m.Imports {
		if imp.Kind == ImportTable {
			if uint32(i) == tableIdx {
				return *imp.TableType
			}
			i++
		}
	}
	return m.Tables[int(tableIdx)-i]
}

// MemOf returns the memIdx'th memory in the memory index space.
func (m *Module) MemOf(memIdx uint32) Memory {
	i := 0
	for _, imp := range m.Imports {
		if imp.Kind == ImportMemory {
			if uint32(i) == memIdx {
				return *imp.MemoryType
			}
			i++
		}
	}
	return m.Mems[int(memIdx)-i]
}

// LocalTypeOf returns the type of the localIdx'th local slot of fn: the
// function's parameters (from its signature in m.Types) followed by its
// declared locals, in the run-length-encoded order the binary format uses.
func (m *Module) LocalTypeOf(fn *Function, localIdx uint32) ValType {
	sig := m.Types[fn.TypeIndex]
	if int(localIdx) < len(sig.Params) {
		return sig.Params[localIdx]
	}
	idx := localIdx - uint32(len(sig.Params))
	for _, run := range fn.Locals {
		if idx < run.Count {
			return run.Type
		}
		idx -= run.Count
	}
	panic("wasmin: local index out of range")
}

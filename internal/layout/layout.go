// Package layout is the memory layout planner (spec.md §4.E): it gives a
// label to, and reserves space for, every fixed region a compiled module
// needs — hi_return, the function table, globals, linear memory (with its
// cur_size cell), the Glk scratch area, table arrays (with their
// cur_count cells), data/element segment blobs, the heap, and the
// decoding table — before codegen runs, so that every later reference is
// a plain label rather than a computed offset. Final addresses are
// assigned later, by the assembler. No header or start-function region
// is planned here.
//
// The planner itself does not decide sizes; it is handed the sizes
// (number of globals, declared memory/table limits, data segment byte
// counts, the configured Glk scratch and heap sizes) by the caller and
// turns them into an ordered list of glulxasm.Item placements bound to
// glulxasm.Labels. This mirrors xyproto-flapc's fixed-offset-header
// section-placement style by analogy (flapc plans ELF/Mach-O/PE section
// offsets before emission) even though no flapc code is reused.
package layout

import "github.com/glulxvm/wasm2glulx/internal/glulxasm"

// Sizes carries every size decision the planner needs but does not make
// itself — decided upstream from the Wasm module plus Config.
type Sizes struct {
	NumGlobals32 int // number of 32-bit-wide global slots (i64/f64 count as 2)
	NumFuncs     int // size of the function table (one label-ref slot per function)
	NumTables    int
	// TableMaxCounts[i] is the declared (or configured ceiling) element
	// count for table i; the planner reserves that many 4-byte slots.
	TableMaxCounts []uint32

	MemoryInitialPages uint32
	MemoryMaxPages     uint32 // only a planning ceiling; memory_grow enforces it at run time

	GlkAreaSize uint32
	HeapSize    uint32
	StackSize   uint32

	// DataBlobSizes/ElemBlobSizes are the byte sizes of each data segment
	// and of each element segment's function-index table; the planner
	// reserves that much zero-filled ROM for each and hands back labels
	// (Plan.DataBlobs/ElemBlobs).
	DataBlobSizes []uint32
	ElemBlobSizes []uint32

	HasDecodingTable   bool
	DecodingTableBytes []byte
}

const wasmPageSize = 65536

// Plan is the full set of labels the rest of the compiler binds to. Every
// field is defined (via glulxasm.Sequencer.New) before any codegen runs;
// codegen only ever reads addresses through the resolver after assembly,
// never computes them itself.
type Plan struct {
	HiReturn    glulxasm.Label // hi_return scratch: 32 bytes, multi-word return convention (spec.md §4.D)
	FuncTable   glulxasm.Label // NumFuncs consecutive 4-byte label-refs, ROM
	Globals     glulxasm.Label // NumGlobals32 consecutive 4-byte RAM cells
	MemBase     glulxasm.Label // start of linear memory, RAM
	MemCurSize  glulxasm.Label // 4-byte RAM cell: current memory size in bytes
	MemMaxBytes uint32         // not a label — a compile-time constant the planner computes
	GlkScratch  glulxasm.Label // RAM scratch area for marshaling Glk call arguments
	Heap        glulxasm.Label // RAM region available to the guest's own allocator, if any
	DecodingTable glulxasm.Label

	Tables        []TablePlan
	DataBlobs     []glulxasm.Label // ROM: raw bytes of each data segment
	ElemBlobs     []glulxasm.Label // ROM: function-index tables for each element segment
}

// TablePlan is the per-table layout: the element array plus its adjacent
// cur_count cell, as spec.md §4.E requires ("their cur_count/cur_size
// cells are adjacent to the array itself").
type TablePlan struct {
	Base     glulxasm.Label // RAM: MaxCount consecutive 4-byte element slots
	CurCount glulxasm.Label // RAM: 4-byte cell
	MaxCount uint32
}

// New allocates every label this module's memory layout needs and emits
// the ROM/RAM items that reserve their space. It does not decide
// addresses — that's the assembler's job (internal/glulxasm.Assemble) —
// it only establishes the label graph and the item stream the assembler
// will place.
func New(seq *glulxasm.Sequencer, a *glulxasm.Assembly, sizes Sizes) *Plan {
	p := &Plan{}

	p.HiReturn = seq.New(glulxasm.KindRAM, "hi_return")
	a.EmitRAM(glulxasm.ItemLabel{Name: p.HiReturn}, glulxasm.ItemZeroPad{N: 32})

	p.FuncTable = seq.New(glulxasm.KindROM, "func_table")
	// The caller fills in the actual ItemLabelRef entries once function
	// labels exist (function codegen runs after this planning pass);
	// here we only reserve the label identity. See BindFuncTable.

	if sizes.NumGlobals32 > 0 {
		p.Globals = seq.New(glulxasm.KindRAM, "globals")
		a.EmitRAM(glulxasm.ItemLabel{Name: p.Globals}, glulxasm.ItemZeroPad{N: uint32(sizes.NumGlobals32) * 4})
	}

	p.MemBase = seq.New(glulxasm.KindRAM, "mem_base")
	p.MemCurSize = seq.New(glulxasm.KindRAM, "mem_cur_size")
	p.MemMaxBytes = sizes.MemoryMaxPages * wasmPageSize
	a.EmitRAM(
		glulxasm.ItemLabel{Name: p.MemCurSize},
		glulxasm.ItemZeroPad{N: 4},
		glulxasm.ItemLabel{Name: p.MemBase},
		glulxasm.ItemZeroPad{N: sizes.MemoryInitialPages * wasmPageSize},
	)

	if sizes.GlkAreaSize > 0 {
		p.GlkScratch = seq.New(glulxasm.KindRAM, "glk_scratch")
		a.EmitRAM(glulxasm.ItemLabel{Name: p.GlkScratch}, glulxasm.ItemZeroPad{N: sizes.GlkAreaSize})
	}

	for i, max := range sizes.TableMaxCounts {
		tp := TablePlan{MaxCount: max}
		tp.CurCount = seq.New(glulxasm.KindRAM, "table_cur_count")
		tp.Base = seq.New(glulxasm.KindRAM, "table_base")
		a.EmitRAM(
			glulxasm.ItemLabel{Name: tp.CurCount},
			glulxasm.ItemZeroPad{N: 4},
			glulxasm.ItemLabel{Name: tp.Base},
			glulxasm.ItemZeroPad{N: max * 4},
		)
		p.Tables = append(p.Tables, tp)
		_ = i
	}

	for _, sz := range sizes.DataBlobSizes {
		l := seq.New(glulxasm.KindROM, "data_blob")
		p.DataBlobs = append(p.DataBlobs, l)
		a.EmitROM(glulxasm.ItemLabel{Name: l}, glulxasm.ItemZeroPad{N: sz})
	}
	for _, sz := range sizes.ElemBlobSizes {
		l := seq.New(glulxasm.KindROM, "elem_blob")
		p.ElemBlobs = append(p.ElemBlobs, l)
		a.EmitROM(glulxasm.ItemLabel{Name: l}, glulxasm.ItemZeroPad{N: sz})
	}

	if sizes.HeapSize > 0 {
		p.Heap = seq.New(glulxasm.KindRAM, "heap")
		a.EmitRAM(glulxasm.ItemLabel{Name: p.Heap}, glulxasm.ItemZeroPad{N: sizes.HeapSize})
	}

	if sizes.HasDecodingTable {
		p.DecodingTable = seq.New(glulxasm.KindROM, "decoding_table")
		a.EmitROM(glulxasm.ItemLabel{Name: p.DecodingTable}, glulxasm.ItemBlob{Bytes: sizes.DecodingTableBytes})
	}

	a.StackSize = sizes.StackSize

	return p
}

// BindFuncTable emits the function table's contents once every function
// has a label: one 4-byte label-ref per function, in function-index
// order, so that call_indirect's table lookup is a single memload plus
// an indexed call.
func BindFuncTable(a *glulxasm.Assembly, p *Plan, funcLabels []glulxasm.Label) {
	a.EmitROM(glulxasm.ItemLabel{Name: p.FuncTable})
	for _, fl := range funcLabels {
		a.EmitROM(glulxasm.ItemLabelRef{Target: fl, Width: 4})
	}
}

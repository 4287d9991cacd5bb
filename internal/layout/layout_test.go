package layout_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/glulxvm/wasm2glulx/internal/glulxasm"
	"github.com/glulxvm/wasm2glulx/internal/layout"
)

func TestPlanReservesDistinctLabels(t *testing.T) {
	seq := glulxasm.NewSequencer()
	start := seq.New(glulxasm.KindFunction, "start")
	a := glulxasm.NewAssembly(start)

	sizes := layout.Sizes{
		NumGlobals32:       3,
		TableMaxCounts:     []uint32{16},
		MemoryInitialPages: 1,
		MemoryMaxPages:     2,
		GlkAreaSize:        256,
		HeapSize:           1024,
		StackSize:          4096,
		DataBlobSizes:      []uint32{8, 0},
	}
	p := layout.New(seq, a, sizes)

	require.NotZero(t, p.Globals)
	require.NotZero(t, p.MemBase)
	require.NotZero(t, p.MemCurSize)
	require.Len(t, p.Tables, 1)
	require.EqualValues(t, 16, p.Tables[0].MaxCount)
	require.Len(t, p.DataBlobs, 2)
	require.NotEqual(t, p.MemBase, p.MemCurSize)
	require.EqualValues(t, 2*65536, p.MemMaxBytes)
}

func TestPlanSkipsZeroSizedRegions(t *testing.T) {
	seq := glulxasm.NewSequencer()
	start := seq.New(glulxasm.KindFunction, "start")
	a := glulxasm.NewAssembly(start)

	p := layout.New(seq, a, layout.Sizes{})

	require.Zero(t, p.Globals)
	require.Zero(t, p.GlkScratch)
	require.Zero(t, p.Heap)
	require.Empty(t, p.Tables)
}

func TestAssembleRoundTripsThroughLayout(t *testing.T) {
	seq := glulxasm.NewSequencer()
	start := seq.New(glulxasm.KindFunction, "start")
	a := glulxasm.NewAssembly(start)
	a.EmitROM(glulxasm.ItemLabel{Name: start}, glulxasm.ItemInstr{Instr: glulxasm.NewInstr(glulxasm.OpReturn, glulxasm.Imm{Value: 0})})

	_ = layout.New(seq, a, layout.Sizes{NumGlobals32: 1, StackSize: 2048})

	out, err := glulxasm.Assemble(a)
	require.NoError(t, err)
	require.Equal(t, "Glul", string(out.Bytes[0:4]))
	require.True(t, out.RAMStart%256 == 0)
	require.True(t, out.EndMem%256 == 0)
	require.True(t, out.EndMem >= out.RAMStart)
}

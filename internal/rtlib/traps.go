package rtlib

import "github.com/glulxvm/wasm2glulx/internal/glulxasm"

// buildTraps fills in the body of every trap thunk whose label was
// handed out up front in Build. Each reports its WebAssembly trap code
// via debugtrap and halts the VM with quit (spec.md §4.D) — the
// generated code's traps are terminal, matching how a Wasm trap halts
// the embedding instance rather than unwinding it.
func buildTraps(b *builder, l *Library) {
	for code, label := range l.Trap {
		b.emitFuncAt(label, 0,
			instr(glulxasm.OpDebugtrap, glulxasm.Imm{Value: int32(code)}),
			instr(glulxasm.OpQuit),
		)
	}
}

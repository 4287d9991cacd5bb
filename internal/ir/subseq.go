package ir

// Subseq is a run of classified instructions grouped by spec.md §4.G's
// subsequencer so codegen can lower a whole group in one pass instead of
// one instruction at a time. Kind selects which fields are meaningful.
type Subseq struct {
	Kind SubseqKind

	// Copy: a run of Loads immediately followed by the matching Stores
	// (no hard op in between) — "copy this tuple of values into these
	// destinations". Ret is set when the trailing instruction is a
	// function return rather than an ordinary store.
	Loads  []Instr
	Stores []Instr
	Ret    bool

	// Block/Loop: the load wing that feeds the block/loop's parameters,
	// followed by the control instruction itself. Codegen recurses into
	// Instr.Wasm.Body/Body2 to classify the nested body.
	Instr Instr

	// Other: a load prefix, the single "hard" instruction (Nucleus), and
	// a store/return suffix (also held in Stores) — e.g. local.get x;
	// local.get y; i32.add; local.set z compiles from one Subseq as one
	// Glulx add with no stack traffic in between.
	Nucleus Instr
}

type SubseqKind int

const (
	SubseqCopy SubseqKind = iota
	SubseqBlock
	SubseqLoop
	SubseqOther
)

// subseqState is the Start/SeenLoad/SeenNucleus state machine of spec.md
// §4.G. SeenNucleus covers two cases that behave identically under
// further Store/Return input (both just keep accumulating a trailing
// store run): a Copy whose load prefix has ended and whose first store
// has arrived, and an Other subsequence whose hard instruction has fired
// and is now collecting its store/return suffix. Which one it is tracked
// by whether a pending nucleus instruction is set.
type subseqState int

const (
	stateStart subseqState = iota
	stateSeenLoad
	stateSeenNucleus
)

// Subsequence groups a classified instruction stream into Copy/Block/
// Loop/Other runs, per spec.md §4.G's exact transition table:
//
//	State \ Input   Load          Store        Return          Block         Loop        Other
//	Start           → SeenLoad    emit Copy    emit Copy+ret   emit Block    emit Loop   → SeenNucleus
//	SeenLoad        accumulate    → SeenNucleus emit Copy+ret  emit Block    emit Loop   → SeenNucleus
//	SeenNucleus     close+start   accumulate   emit+ret        close+emit    close+emit  close+start
//
// A Return only ever appears last in a straight-line sequence — spec.md
// §1 places non-validating input out of scope, so a well-formed body
// never has unreachable code after one — so every "emit ...; stop" path
// below simply falls out of the loop naturally at the next iteration.
func Subsequence(instrs []Instr) []Subseq {
	var out []Subseq
	var loads, tail []Instr
	var nucleus Instr
	hasNucleus := false
	state := stateStart

	emit := func(ret bool) {
		if hasNucleus {
			out = append(out, Subseq{Kind: SubseqOther, Loads: loads, Nucleus: nucleus, Stores: tail, Ret: ret})
		} else {
			out = append(out, Subseq{Kind: SubseqCopy, Loads: loads, Stores: tail, Ret: ret})
		}
		loads, tail = nil, nil
		hasNucleus = false
		state = stateStart
	}

	for _, in := range instrs {
		switch in.Class {
		case ClassLoad:
			if state == stateSeenNucleus {
				emit(false)
			}
			loads = append(loads, in)
			state = stateSeenLoad

		case ClassStore:
			switch state {
			case stateStart:
				// No load prefix pending: this store has nothing to
				// pair with, so it closes out as its own one-store
				// Copy immediately rather than opening an
				// accumulation window (spec.md §4.G: Start+Store
				// emits directly, unlike SeenLoad+Store).
				out = append(out, Subseq{Kind: SubseqCopy, Stores: []Instr{in}})
			case stateSeenLoad:
				tail = []Instr{in}
				state = stateSeenNucleus
			case stateSeenNucleus:
				tail = append(tail, in)
			}

		case ClassRet:
			tail = append(tail, in)
			emit(true)

		case ClassBlock:
			if state == stateSeenNucleus {
				emit(false)
			}
			out = append(out, Subseq{Kind: SubseqBlock, Loads: loads, Instr: in})
			loads, tail = nil, nil
			hasNucleus = false
			state = stateStart

		case ClassLoop:
			if state == stateSeenNucleus {
				emit(false)
			}
			out = append(out, Subseq{Kind: SubseqLoop, Loads: loads, Instr: in})
			loads, tail = nil, nil
			hasNucleus = false
			state = stateStart

		default: // ClassOther
			if state == stateSeenNucleus {
				emit(false)
			}
			nucleus = in
			hasNucleus = true
			state = stateSeenNucleus
		}
	}
	if state == stateSeenNucleus || len(loads) > 0 {
		emit(false)
	}
	return out
}

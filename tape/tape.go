// Package tape defines the linear instruction stream a module compiles
// down to. A Tape is immutable once optimized.
package tape

import "github.com/jay-lang/jay/opcodes"

// ClassEntry is the tape-level description of a class: its super chain,
// the field names it declares, and where each of its methods starts.
type ClassEntry struct {
	Supers        []string
	Fields        []string
	FunctionRefs  map[string]int // method name -> instruction offset
}

// Tape is a module's compiled instruction stream plus its symbol tables
// Debug metadata is optional: the assembler/compiler can omit it, but when
// present it must stay aligned to instruction indices across optimization,
// since line numbers are reported against post-optimization indices.
type Tape struct {
	ModuleName    string
	Instructions  []opcodes.Instruction
	FunctionTable map[string]int // top-level function name -> entry offset
	ClassTable    map[string]*ClassEntry
	Lines         map[int]int // instruction index -> source line, optional
	SourceFile    string
}

func New(moduleName string) *Tape {
	return &Tape{
		ModuleName:    moduleName,
		FunctionTable: make(map[string]int),
		ClassTable:    make(map[string]*ClassEntry),
		Lines:         make(map[int]int),
	}
}

// InstructionCount reports how many instructions the tape holds.
func (t *Tape) InstructionCount() int { return len(t.Instructions) }

// LineAt resolves the best-effort source line for an instruction index, 0
// when no debug metadata was emitted.
func (t *Tape) LineAt(ip int) int {
	if t.Lines == nil {
		return 0
	}
	return t.Lines[ip]
}

// Append adds an instruction and returns its index, the way a compiler's
// code generator accumulates a function body before it knows final jump
// targets.
func (t *Tape) Append(ins opcodes.Instruction) int {
	t.Instructions = append(t.Instructions, ins)
	return len(t.Instructions) - 1
}

// PatchJumpTo rewrites instruction at idx (which must be a jump) so its
// relative offset lands on target: an offset of 0 means "step to the very
// next instruction".
func (t *Tape) PatchJumpTo(idx, target int) {
	t.Instructions[idx].Arg.IntVal = int32(target - (idx + 1))
}

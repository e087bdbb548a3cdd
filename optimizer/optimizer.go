// Package optimizer rewrites a compiled tape with a fixed sequence of
// peephole passes. Every pass looks at a small window of adjacent
// instructions and, when it recognizes a pattern, marks instructions for
// deletion or replacement. Passes never touch an instruction that is the
// target of some jump still in the tape, since collapsing or replacing a
// landing site would change where a branch lands.
package optimizer

import (
	"github.com/jay-lang/jay/opcodes"
	"github.com/jay-lang/jay/tape"
)

// pass inspects ins (a read-only snapshot of the tape before this pass
// runs) and gotos (indices any live jump currently lands on), and reports
// which indices to delete and which to overwrite in place. Both maps are
// built fresh from the same snapshot; a pass never sees its own edits
// mid-scan, matching how each rewrite is defined purely in terms of the
// instructions that existed when the pass started.
type pass func(ins []opcodes.Instruction, gotos map[int]bool) (removed map[int]bool, replaced map[int]opcodes.Instruction)

// Optimize runs every pass once, in order, compacting the tape after each
// one so later passes see the shortened, renumbered stream.
func Optimize(t *tape.Tape) {
	for _, p := range passOrder {
		gotos := jumpTargets(t.Instructions)
		removed, replaced := p(t.Instructions, gotos)
		if len(removed) == 0 && len(replaced) == 0 {
			continue
		}
		compact(t, removed, replaced)
	}
}

var passOrder = []pass{
	resPush,
	setRes,
	setPush,
	getPush,
	jmpRes,
	pushRes,
	resPush2,
	retRet,
	peekRes,
	increment,
	setEmpty,
	pushResEmpty,
	pushRes2,
	peekPeek,
	simpleMath,
	nilFold,
}

// jumpTargets returns the set of instruction indices any jump in ins
// currently lands on, using the tape package's offset convention: a jump
// at index i with operand v lands on i+1+v.
func jumpTargets(ins []opcodes.Instruction) map[int]bool {
	gotos := make(map[int]bool)
	for i, in := range ins {
		if !opcodes.IsJump(in.Op) {
			continue
		}
		target := i + 1 + int(in.Arg.IntVal)
		gotos[target] = true
	}
	return gotos
}

func argsEqual(a, b opcodes.Arg) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case opcodes.ArgID, opcodes.ArgString:
		return a.Text == b.Text
	case opcodes.ArgPrimitive:
		if a.IsFloat != b.IsFloat || a.IsChar != b.IsChar {
			return false
		}
		if a.IsFloat {
			return a.FloatVal == b.FloatVal
		}
		return a.IntVal == b.IntVal
	default:
		return true
	}
}

func isIntLiteral(a opcodes.Arg, v int32) bool {
	return a.Kind == opcodes.ArgPrimitive && !a.IsFloat && !a.IsChar && a.IntVal == v
}

func isNilID(a opcodes.Arg) bool {
	return a.Kind == opcodes.ArgID && a.Text == "nil"
}

func isMathOp(op opcodes.Op) bool {
	switch op {
	case opcodes.ADD, opcodes.SUB, opcodes.DIV, opcodes.MULT, opcodes.MOD,
		opcodes.LT, opcodes.LTE, opcodes.GTE, opcodes.GT, opcodes.EQ:
		return true
	default:
		return false
	}
}

// resPush collapses "RES id; PUSH" (push-the-resval) into a single
// "PUSH id", skipping the register round trip.
func resPush(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	removed := map[int]bool{}
	replaced := map[int]opcodes.Instruction{}
	for i := 1; i < len(ins); i++ {
		first, second := ins[i-1], ins[i]
		if first.Op == opcodes.RES && first.Arg.Kind != opcodes.ArgNone &&
			second.Op == opcodes.PUSH && second.Arg.Kind == opcodes.ArgNone &&
			!gotos[i-1] && !gotos[i] {
			removed[i] = true
			replaced[i-1] = opcodes.Instruction{Op: opcodes.PUSH, Arg: first.Arg}
		}
	}
	return removed, replaced
}

// setRes drops a "SET/LET id; RES id" pair: the RES is redundant because
// the preceding SET/LET already left that value in the result register.
func setRes(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	removed := map[int]bool{}
	for i := 1; i < len(ins); i++ {
		first, second := ins[i-1], ins[i]
		if (first.Op == opcodes.SET || first.Op == opcodes.LET) && first.Arg.Kind == opcodes.ArgID &&
			second.Op == opcodes.RES && second.Arg.Kind == opcodes.ArgID &&
			first.Arg.Text == second.Arg.Text && !gotos[i] {
			removed[i] = true
		}
	}
	return removed, nil
}

// setPush turns "SET/LET id; PUSH id" into "SET/LET id; PUSH" (no arg):
// the SET/LET already left the value in the result register, so the
// second PUSH doesn't need its own variable lookup.
func setPush(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	replaced := map[int]opcodes.Instruction{}
	for i := 1; i < len(ins); i++ {
		first, second := ins[i-1], ins[i]
		if (first.Op == opcodes.SET || first.Op == opcodes.LET) && first.Arg.Kind == opcodes.ArgID &&
			second.Op == opcodes.PUSH && second.Arg.Kind == opcodes.ArgID &&
			first.Arg.Text == second.Arg.Text && !gotos[i] {
			replaced[i] = opcodes.Instruction{Op: opcodes.PUSH}
		}
	}
	return nil, replaced
}

// getPush fuses "GET id; PUSH" into a single GTSH.
func getPush(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	removed := map[int]bool{}
	replaced := map[int]opcodes.Instruction{}
	for i := 1; i < len(ins); i++ {
		first, second := ins[i-1], ins[i]
		if first.Op == opcodes.GET && first.Arg.Kind != opcodes.ArgNone &&
			second.Op == opcodes.PUSH && second.Arg.Kind == opcodes.ArgNone &&
			!gotos[i-1] && !gotos[i] {
			removed[i] = true
			replaced[i-1] = opcodes.Instruction{Op: opcodes.GTSH, Arg: first.Arg}
		}
	}
	return removed, replaced
}

// jmpRes finds a backward jump guarded by "SET id" whose landing site is
// itself "SET id; RES id" for the same id, and drops the now-redundant
// RES at the landing site: the value SET just before the jump is already
// sitting in the result register when control arrives there.
func jmpRes(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	removed := map[int]bool{}
	for i := 1; i < len(ins); i++ {
		first, second := ins[i-1], ins[i]
		if first.Op != opcodes.SET || second.Op != opcodes.JMP {
			continue
		}
		jmpVal := int(second.Arg.IntVal)
		if jmpVal >= 0 {
			continue
		}
		targetIdx := i + 1 + jmpVal
		parentIdx := targetIdx - 1
		if parentIdx < 0 || targetIdx < 0 || targetIdx >= len(ins) {
			continue
		}
		parent, target := ins[parentIdx], ins[targetIdx]
		if parent.Op != opcodes.SET || parent.Arg.Text != first.Arg.Text ||
			target.Op != opcodes.RES || target.Arg.Kind != opcodes.ArgID ||
			target.Arg.Text != first.Arg.Text {
			continue
		}
		// This jump always lands on targetIdx; skip only when some other
		// jump lands there too.
		shared := false
		for j, in := range ins {
			if j != i && opcodes.IsJump(in.Op) && j+1+int(in.Arg.IntVal) == targetIdx {
				shared = true
				break
			}
		}
		if shared {
			continue
		}
		removed[targetIdx] = true
	}
	return removed, nil
}

// pushRes fuses "PUSH x; RES x" (same operand) into a single PSRS: push
// x and leave it sitting in the result register too, instead of pushing
// then separately re-reading it back out.
func pushRes(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	removed := map[int]bool{}
	replaced := map[int]opcodes.Instruction{}
	for i := 1; i < len(ins); i++ {
		first, second := ins[i-1], ins[i]
		if first.Op != opcodes.PUSH || second.Op != opcodes.RES || first.Arg.Kind != second.Arg.Kind || gotos[i] || gotos[i-1] {
			continue
		}
		if first.Arg.Kind != opcodes.ArgNone && !argsEqual(first.Arg, second.Arg) {
			continue
		}
		removed[i] = true
		replaced[i-1] = opcodes.Instruction{Op: opcodes.PSRS, Arg: first.Arg}
	}
	return removed, replaced
}

// resPush2 fuses a bare "RES; PUSH" (no operands) into a single PEEK:
// both halves already act on the result register / stack top, so there
// is nothing left for either instruction to do independently.
func resPush2(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	removed := map[int]bool{}
	replaced := map[int]opcodes.Instruction{}
	for i := 1; i < len(ins); i++ {
		first, second := ins[i-1], ins[i]
		if first.Op == opcodes.RES && first.Arg.Kind == opcodes.ArgNone &&
			second.Op == opcodes.PUSH && second.Arg.Kind == opcodes.ArgNone &&
			!gotos[i-1] && !gotos[i] {
			removed[i] = true
			replaced[i-1] = opcodes.Instruction{Op: opcodes.PEEK}
		}
	}
	return removed, replaced
}

// retRet collapses two consecutive bare returns into one.
func retRet(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	removed := map[int]bool{}
	for i := 1; i < len(ins); i++ {
		first, second := ins[i-1], ins[i]
		if first.Op == opcodes.RET && first.Arg.Kind == opcodes.ArgNone &&
			second.Op == opcodes.RET && second.Arg.Kind == opcodes.ArgNone &&
			!gotos[i-1] && !gotos[i] {
			removed[i] = true
		}
	}
	return removed, nil
}

// peekRes drops a PEEK immediately followed by a RES or TLEN: PEEK already
// copied the stack top into the result register, so the following read
// needs no fresh peek.
func peekRes(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	removed := map[int]bool{}
	for i := 1; i < len(ins); i++ {
		first, second := ins[i-1], ins[i]
		if first.Op == opcodes.PEEK && (second.Op == opcodes.RES || second.Op == opcodes.TLEN) && !gotos[i-1] {
			removed[i-1] = true
		}
	}
	return removed, nil
}

// increment recognizes two shapes of "add or subtract one, then store
// back into the same variable" and folds each into a single INC/DEC:
//
//	PUSH id; PUSH 1; ADD|SUB; SET id   (4-instruction window)
//	RES id;  ADD|SUB 1;       SET id   (3-instruction window)
func increment(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	removed := map[int]bool{}
	replaced := map[int]opcodes.Instruction{}

	for i := 3; i < len(ins); i++ {
		first, second, third, fourth := ins[i-3], ins[i-2], ins[i-1], ins[i]
		if first.Op == opcodes.PUSH && first.Arg.Kind == opcodes.ArgID &&
			second.Op == opcodes.PUSH && isIntLiteral(second.Arg, 1) &&
			(third.Op == opcodes.ADD || third.Op == opcodes.SUB) &&
			fourth.Op == opcodes.SET && fourth.Arg.Kind == opcodes.ArgID &&
			first.Arg.Text == fourth.Arg.Text &&
			!gotos[i] && !gotos[i-1] && !gotos[i-2] && !gotos[i-3] {
			removed[i] = true
			removed[i-1] = true
			removed[i-2] = true
			op := opcodes.INC
			if third.Op == opcodes.SUB {
				op = opcodes.DEC
			}
			replaced[i-3] = opcodes.Instruction{Op: op, Arg: first.Arg}
		}
	}

	for i := 2; i < len(ins); i++ {
		if removed[i] || removed[i-1] || removed[i-2] {
			continue
		}
		first, second, third := ins[i-2], ins[i-1], ins[i]
		if first.Op == opcodes.RES && first.Arg.Kind == opcodes.ArgID &&
			(second.Op == opcodes.ADD || second.Op == opcodes.SUB) && isIntLiteral(second.Arg, 1) &&
			third.Op == opcodes.SET && third.Arg.Kind == opcodes.ArgID &&
			first.Arg.Text == third.Arg.Text &&
			!gotos[i] && !gotos[i-1] && !gotos[i-2] {
			removed[i] = true
			removed[i-1] = true
			op := opcodes.INC
			if second.Op == opcodes.SUB {
				op = opcodes.DEC
			}
			replaced[i-2] = opcodes.Instruction{Op: op, Arg: first.Arg}
		}
	}
	return removed, replaced
}

// setEmpty drops a tuple-index read (TGET) that's immediately thrown
// away into the conventional "_" discard binding.
func setEmpty(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	removed := map[int]bool{}
	for i := 1; i < len(ins); i++ {
		first, second := ins[i-1], ins[i]
		if first.Op == opcodes.TGET && first.Arg.Kind == opcodes.ArgPrimitive &&
			(second.Op == opcodes.SET || second.Op == opcodes.LET) &&
			second.Arg.Kind == opcodes.ArgID && second.Arg.Text == "_" &&
			!gotos[i-1] && !gotos[i] {
			removed[i-1] = true
			removed[i] = true
		}
	}
	return removed, nil
}

// pushResEmpty drops a bare "PUSH; RES" pair: pushing the result register
// then immediately re-reading the stack top back into it is a no-op.
func pushResEmpty(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	removed := map[int]bool{}
	for i := 1; i < len(ins); i++ {
		first, second := ins[i-1], ins[i]
		if first.Op == opcodes.PUSH && first.Arg.Kind == opcodes.ArgNone &&
			second.Op == opcodes.RES && second.Arg.Kind == opcodes.ArgNone &&
			!gotos[i-1] && !gotos[i] {
			removed[i-1] = true
			removed[i] = true
		}
	}
	return removed, nil
}

// pushRes2 matches the same bare "PUSH; RES" shape, with the same
// jump-target guards, as pushResEmpty; running after pushResEmpty's
// compaction, it catches pairs that compaction made adjacent.
func pushRes2(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	removed := map[int]bool{}
	for i := 1; i < len(ins); i++ {
		first, second := ins[i-1], ins[i]
		if first.Op == opcodes.PUSH && second.Op == opcodes.RES &&
			first.Arg.Kind == second.Arg.Kind && first.Arg.Kind == opcodes.ArgNone &&
			!gotos[i] && !gotos[i-1] {
			removed[i] = true
			removed[i-1] = true
		}
	}
	return removed, nil
}

// peekPeek drops the first of two consecutive bare PEEKs; the second
// already observes the same stack top the first one did.
func peekPeek(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	removed := map[int]bool{}
	for i := 1; i < len(ins); i++ {
		first, second := ins[i-1], ins[i]
		if first.Op == opcodes.PEEK && first.Arg.Kind == opcodes.ArgNone &&
			second.Op == opcodes.PEEK && second.Arg.Kind == opcodes.ArgNone &&
			!gotos[i-1] {
			removed[i-1] = true
		}
	}
	return removed, nil
}

// simpleMath folds "PUSH a; PUSH b; <math-op>" into "RES a (or drop, if a
// has no operand); <math-op> b" -- one fewer push when the left operand
// can be read straight out of the result register.
func simpleMath(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	removed := map[int]bool{}
	replaced := map[int]opcodes.Instruction{}
	for i := 2; i < len(ins); i++ {
		first, second, third := ins[i-2], ins[i-1], ins[i]
		if first.Op != opcodes.PUSH || second.Op != opcodes.PUSH || !isMathOp(third.Op) {
			continue
		}
		if second.Arg.Kind != opcodes.ArgPrimitive && second.Arg.Kind != opcodes.ArgID {
			continue
		}
		if gotos[i] || gotos[i-1] || gotos[i-2] {
			continue
		}
		if first.Arg.Kind == opcodes.ArgNone {
			removed[i-2] = true
		} else {
			replaced[i-2] = opcodes.Instruction{Op: opcodes.RES, Arg: first.Arg}
		}
		replaced[i-1] = opcodes.Instruction{Op: third.Op, Arg: second.Arg}
		removed[i] = true
	}
	return removed, replaced
}

// nilFold rewrites "RES nil" / "PUSH nil" to the dedicated RNIL/PNIL
// no-arg forms, skipping the variable lookup for a name that can never
// resolve to anything but the nil value.
func nilFold(ins []opcodes.Instruction, gotos map[int]bool) (map[int]bool, map[int]opcodes.Instruction) {
	replaced := map[int]opcodes.Instruction{}
	for i, in := range ins {
		if in.Op != opcodes.RES && in.Op != opcodes.PUSH {
			continue
		}
		if !isNilID(in.Arg) {
			continue
		}
		op := opcodes.PNIL
		if in.Op == opcodes.RES {
			op = opcodes.RNIL
		}
		replaced[i] = opcodes.Instruction{Op: op}
	}
	return nil, replaced
}

// compact applies replaced in place, drops every index in removed, and
// renumbers jump offsets, line info, and symbol-table offsets to match
// the shortened instruction stream.
func compact(t *tape.Tape, removed map[int]bool, replaced map[int]opcodes.Instruction) {
	n := len(t.Instructions)
	working := make([]opcodes.Instruction, n)
	copy(working, t.Instructions)
	for idx, in := range replaced {
		working[idx] = in
	}

	newIndex := make([]int, n)
	out := make([]opcodes.Instruction, 0, n)
	for i, in := range working {
		if removed[i] {
			newIndex[i] = -1
			continue
		}
		newIndex[i] = len(out)
		out = append(out, in)
	}

	for i := range out {
		if !opcodes.IsJump(out[i].Op) {
			continue
		}
		oldIdx := remapOldIndex(newIndex, i)
		oldTarget := oldIdx + 1 + int(out[i].Arg.IntVal)
		newTarget := remapIndex(newIndex, oldTarget)
		out[i].Arg.IntVal = int32(newTarget - (i + 1))
	}

	if t.Lines != nil {
		lines := make(map[int]int, len(t.Lines))
		for oldIdx, line := range t.Lines {
			if oldIdx < 0 || oldIdx >= n || newIndex[oldIdx] < 0 {
				continue
			}
			lines[newIndex[oldIdx]] = line
		}
		t.Lines = lines
	}
	for name, off := range t.FunctionTable {
		t.FunctionTable[name] = remapIndex(newIndex, off)
	}
	for _, class := range t.ClassTable {
		for name, off := range class.FunctionRefs {
			class.FunctionRefs[name] = remapIndex(newIndex, off)
		}
	}

	t.Instructions = out
}

// remapOldIndex inverts newIndex to find which original index now sits
// at position newI in the compacted stream.
func remapOldIndex(newIndex []int, newI int) int {
	for old, ni := range newIndex {
		if ni == newI {
			return old
		}
	}
	return newI
}

// remapIndex maps an original instruction index to its position after
// compaction, falling forward to the next surviving instruction if the
// original index itself was deleted.
func remapIndex(newIndex []int, old int) int {
	if old < 0 {
		return old
	}
	if old >= len(newIndex) {
		return old - countRemoved(newIndex)
	}
	for i := old; i < len(newIndex); i++ {
		if newIndex[i] >= 0 {
			return newIndex[i]
		}
	}
	return len(newIndex) - countRemoved(newIndex)
}

func countRemoved(newIndex []int) int {
	removed := 0
	for _, ni := range newIndex {
		if ni < 0 {
			removed++
		}
	}
	return removed
}

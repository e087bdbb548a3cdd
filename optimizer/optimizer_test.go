package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jay-lang/jay/opcodes"
	"github.com/jay-lang/jay/tape"
)

func ins(op opcodes.Op, arg opcodes.Arg) opcodes.Instruction {
	return opcodes.Instruction{Op: op, Arg: arg}
}

func TestResPushFusesIntoPush(t *testing.T) {
	tp := tape.New("m")
	tp.Instructions = []opcodes.Instruction{
		ins(opcodes.RES, opcodes.IDArg("x")),
		ins(opcodes.PUSH, opcodes.NoArg()),
		ins(opcodes.RET, opcodes.NoArg()),
	}
	Optimize(tp)
	require.Equal(t, []opcodes.Instruction{
		ins(opcodes.PUSH, opcodes.IDArg("x")),
		ins(opcodes.RET, opcodes.NoArg()),
	}, tp.Instructions)
}

func TestSetResDropsRedundantRead(t *testing.T) {
	tp := tape.New("m")
	tp.Instructions = []opcodes.Instruction{
		ins(opcodes.SET, opcodes.IDArg("x")),
		ins(opcodes.RES, opcodes.IDArg("x")),
	}
	Optimize(tp)
	require.Equal(t, []opcodes.Instruction{ins(opcodes.SET, opcodes.IDArg("x"))}, tp.Instructions)
}

func TestGetPushFusesIntoGtsh(t *testing.T) {
	tp := tape.New("m")
	tp.Instructions = []opcodes.Instruction{
		ins(opcodes.GET, opcodes.IDArg("field")),
		ins(opcodes.PUSH, opcodes.NoArg()),
	}
	Optimize(tp)
	require.Equal(t, []opcodes.Instruction{ins(opcodes.GTSH, opcodes.IDArg("field"))}, tp.Instructions)
}

func TestIncrementFoldsFourInstructionWindow(t *testing.T) {
	tp := tape.New("m")
	tp.Instructions = []opcodes.Instruction{
		ins(opcodes.PUSH, opcodes.IDArg("i")),
		ins(opcodes.PUSH, opcodes.IntArg(1)),
		ins(opcodes.ADD, opcodes.NoArg()),
		ins(opcodes.SET, opcodes.IDArg("i")),
	}
	Optimize(tp)
	require.Equal(t, []opcodes.Instruction{ins(opcodes.INC, opcodes.IDArg("i"))}, tp.Instructions)
}

func TestIncrementFoldsThreeInstructionWindow(t *testing.T) {
	tp := tape.New("m")
	tp.Instructions = []opcodes.Instruction{
		ins(opcodes.RES, opcodes.IDArg("i")),
		ins(opcodes.SUB, opcodes.IntArg(1)),
		ins(opcodes.SET, opcodes.IDArg("i")),
	}
	Optimize(tp)
	require.Equal(t, []opcodes.Instruction{ins(opcodes.DEC, opcodes.IDArg("i"))}, tp.Instructions)
}

func TestSimpleMathDropsLeftPush(t *testing.T) {
	tp := tape.New("m")
	tp.Instructions = []opcodes.Instruction{
		ins(opcodes.PUSH, opcodes.NoArg()),
		ins(opcodes.PUSH, opcodes.IntArg(2)),
		ins(opcodes.ADD, opcodes.NoArg()),
	}
	Optimize(tp)
	require.Equal(t, []opcodes.Instruction{ins(opcodes.ADD, opcodes.IntArg(2))}, tp.Instructions)
}

func TestSimpleMathKeepsLeftAsRes(t *testing.T) {
	tp := tape.New("m")
	tp.Instructions = []opcodes.Instruction{
		ins(opcodes.PUSH, opcodes.IDArg("x")),
		ins(opcodes.PUSH, opcodes.IDArg("y")),
		ins(opcodes.LT, opcodes.NoArg()),
	}
	Optimize(tp)
	require.Equal(t, []opcodes.Instruction{
		ins(opcodes.RES, opcodes.IDArg("x")),
		ins(opcodes.LT, opcodes.IDArg("y")),
	}, tp.Instructions)
}

func TestSimpleMathFoldsEq(t *testing.T) {
	tp := tape.New("m")
	tp.Instructions = []opcodes.Instruction{
		ins(opcodes.PUSH, opcodes.IDArg("x")),
		ins(opcodes.PUSH, opcodes.IDArg("y")),
		ins(opcodes.EQ, opcodes.NoArg()),
	}
	Optimize(tp)
	require.Equal(t, []opcodes.Instruction{
		ins(opcodes.RES, opcodes.IDArg("x")),
		ins(opcodes.EQ, opcodes.IDArg("y")),
	}, tp.Instructions)
}

func TestNilFoldRewritesResAndPush(t *testing.T) {
	tp := tape.New("m")
	tp.Instructions = []opcodes.Instruction{
		ins(opcodes.RES, opcodes.IDArg("nil")),
		ins(opcodes.PUSH, opcodes.IDArg("nil")),
	}
	Optimize(tp)
	require.Equal(t, []opcodes.Instruction{
		ins(opcodes.RNIL, opcodes.NoArg()),
		ins(opcodes.PNIL, opcodes.NoArg()),
	}, tp.Instructions)
}

func TestJumpTargetsAreNeverRewritten(t *testing.T) {
	tp := tape.New("m")
	// JMP -4 lands back on the RES at index 1; that RES must survive
	// setRes/resPush rewriting even though it directly follows a SET.
	tp.Instructions = []opcodes.Instruction{
		ins(opcodes.SET, opcodes.IDArg("x")),
		ins(opcodes.RES, opcodes.IDArg("x")),
		ins(opcodes.IF, opcodes.IntArg(1)),
		ins(opcodes.GOTO, opcodes.NoArg()),
		ins(opcodes.JMP, opcodes.IntArg(-4)),
	}
	before := append([]opcodes.Instruction(nil), tp.Instructions...)
	Optimize(tp)
	require.Equal(t, before, tp.Instructions)
}

func TestOptimizePreservesBranchTargetAfterCompaction(t *testing.T) {
	tp := tape.New("m")
	// PEEK;PEEK collapses to one PEEK ahead of the jump; the jump must
	// still land on the same logical instruction (the RET) afterward.
	tp.Instructions = []opcodes.Instruction{
		ins(opcodes.PEEK, opcodes.NoArg()),
		ins(opcodes.PEEK, opcodes.NoArg()),
		ins(opcodes.IF, opcodes.IntArg(1)),
		ins(opcodes.GOTO, opcodes.NoArg()),
		ins(opcodes.RET, opcodes.NoArg()),
	}
	Optimize(tp)
	require.Len(t, tp.Instructions, 4)
	jumpIdx := -1
	for i, in := range tp.Instructions {
		if in.Op == opcodes.IF {
			jumpIdx = i
		}
	}
	require.NotEqual(t, -1, jumpIdx)
	target := jumpIdx + 1 + int(tp.Instructions[jumpIdx].Arg.IntVal)
	require.Equal(t, opcodes.RET, tp.Instructions[target].Op)
}

func TestFunctionTableOffsetsStayAligned(t *testing.T) {
	tp := tape.New("m")
	tp.Instructions = []opcodes.Instruction{
		ins(opcodes.SET, opcodes.IDArg("x")),
		ins(opcodes.RES, opcodes.IDArg("x")), // dropped by setRes
		ins(opcodes.RET, opcodes.NoArg()),
	}
	tp.FunctionTable["entry"] = 2
	Optimize(tp)
	require.Equal(t, opcodes.RET, tp.Instructions[tp.FunctionTable["entry"]].Op)
}

package bytecode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jay-lang/jay/opcodes"
	"github.com/jay-lang/jay/tape"
)

func buildSample() *tape.Tape {
	t := tape.New("demo")
	t.SourceFile = "demo.jv"
	t.FunctionTable["main"] = 0
	t.FunctionTable["square"] = 6
	t.ClassTable["Point"] = &tape.ClassEntry{
		Supers:       []string{"Object"},
		Fields:       []string{"x", "y"},
		FunctionRefs: map[string]int{"new": 12},
	}
	t.Lines[0] = 1
	t.Lines[1] = 2
	t.Append(opcodes.Instruction{Op: opcodes.RES, Arg: opcodes.IntArg(21)})
	t.Append(opcodes.Instruction{Op: opcodes.LET, Arg: opcodes.IDArg("x")})
	t.Append(opcodes.Instruction{Op: opcodes.PUSH, Arg: opcodes.StringArg(`"hi"`)})
	t.Append(opcodes.Instruction{Op: opcodes.RES, Arg: opcodes.FloatArg(2.5)})
	t.Append(opcodes.Instruction{Op: opcodes.RES, Arg: opcodes.CharArg('z')})
	t.Append(opcodes.Instruction{Op: opcodes.RET, Arg: opcodes.NoArg()})
	return t
}

func TestWriteReadRoundTrip(t *testing.T) {
	sample := buildSample()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample))

	parsed, err := Read(&buf)
	require.NoError(t, err)

	require.Equal(t, sample.ModuleName, parsed.ModuleName)
	require.Equal(t, sample.SourceFile, parsed.SourceFile)
	require.Equal(t, sample.FunctionTable, parsed.FunctionTable)
	require.Equal(t, sample.Lines, parsed.Lines)
	require.Equal(t, sample.Instructions, parsed.Instructions)
	require.Equal(t, sample.ClassTable["Point"].Supers, parsed.ClassTable["Point"].Supers)
	require.Equal(t, sample.ClassTable["Point"].Fields, parsed.ClassTable["Point"].Fields)
	require.Equal(t, sample.ClassTable["Point"].FunctionRefs, parsed.ClassTable["Point"].FunctionRefs)
}

func TestReadRejectsBadMagic(t *testing.T) {
	_, err := Read(bytes.NewBufferString("not a jay bytecode file"))
	require.Error(t, err)
}

func TestReadRejectsWrongVersion(t *testing.T) {
	var buf bytes.Buffer
	e := &encoder{w: &buf}
	e.u32(Magic)
	e.u16(999)
	require.NoError(t, e.err)

	_, err := Read(&buf)
	require.Error(t, err)
}

package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jay-lang/jay/asm"
	"github.com/jay-lang/jay/bytecode"
	"github.com/jay-lang/jay/libpath"
	"github.com/jay-lang/jay/opcodes"
	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/tape"
)

func writeModule(t *testing.T, dir, name, ext string) {
	t.Helper()
	tp := tape.New(name)
	tp.FunctionTable["main"] = 0
	tp.ClassTable["Counter"] = &tape.ClassEntry{
		Fields:       []string{"n"},
		FunctionRefs: map[string]int{"bump": 3},
	}
	tp.Append(opcodes.Instruction{Op: opcodes.RES, Arg: opcodes.IntArg(1)})
	tp.Append(opcodes.Instruction{Op: opcodes.RET, Arg: opcodes.NoArg()})

	path := filepath.Join(dir, name+ext)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	switch ext {
	case ".ja":
		require.NoError(t, asm.Write(f, tp))
	case ".jb":
		require.NoError(t, bytecode.Write(f, tp))
	}
}

func TestLoadResolvesDecodesAndCachesByName(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "greet", ".jb")

	resolver := libpath.NewResolver(dir, &libpath.Manifest{})
	reg := registry.New()
	l := New(resolver, reg)

	m1, err := l.Load("greet")
	require.NoError(t, err)
	require.Equal(t, "greet", m1.Name)
	require.Contains(t, m1.Functions, "main")
	require.Contains(t, m1.Classes, "Counter")
	require.Contains(t, m1.Classes["Counter"].Functions, "bump")

	m2, err := l.Load("greet")
	require.NoError(t, err)
	require.Same(t, m1, m2)

	installed, ok := reg.Lookup("greet")
	require.True(t, ok)
	require.Same(t, m1, installed)
}

func TestLoadPrefersTextualAssemblyWhenNoBinaryPresent(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "textual", ".ja")

	resolver := libpath.NewResolver(dir, &libpath.Manifest{})
	l := New(resolver, registry.New())

	m, err := l.Load("textual")
	require.NoError(t, err)
	require.Equal(t, "textual", m.Name)
}

func TestLoadReportsMissingModule(t *testing.T) {
	dir := t.TempDir()
	resolver := libpath.NewResolver(dir, &libpath.Manifest{})
	l := New(resolver, registry.New())

	_, err := l.Load("nope")
	require.Error(t, err)
}

func TestLoadRefusesRawSourceFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src.jv"), []byte("function main() {}"), 0o644))

	resolver := libpath.NewResolver(dir, &libpath.Manifest{})
	l := New(resolver, registry.New())

	_, err := l.Load("src")
	require.Error(t, err)
}

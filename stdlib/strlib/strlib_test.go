package strlib

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/tape"
	"github.com/jay-lang/jay/values"
	"github.com/jay-lang/jay/vm"
)

func newProcAndContext(t *testing.T) (*vm.Process, interface{}) {
	t.Helper()
	proc := vm.NewProcess(nil)
	mod := registry.NewModule("test", tape.New("test"))
	task, err := proc.Spawn(mod, values.NilRef, 0, nil)
	require.NoError(t, err)
	return proc, task.Contexts[0]
}

func method(t *testing.T, reg *registry.Registry, name string) registry.NativeFunc {
	t.Helper()
	class, ok := reg.LookupClass(registry.NewModule("", nil), "Array")
	require.True(t, ok)
	fn, ok := class.Functions[name]
	require.True(t, ok, "method %s not installed", name)
	return fn.Native
}

func TestUpperLowerTrim(t *testing.T) {
	reg := registry.New()
	Install(reg)
	proc, ctx := newProcAndContext(t)

	strRef, err := proc.NewString("  Hello World  ")
	require.NoError(t, err)

	upper := method(t, reg, "upper")
	v, err := upper(nil, ctx, strRef, nil)
	require.NoError(t, err)
	s, ok := proc.StringValue(v.ObjectRef())
	require.True(t, ok)
	require.Equal(t, "  HELLO WORLD  ", s)

	lower := method(t, reg, "lower")
	v, err = lower(nil, ctx, strRef, nil)
	require.NoError(t, err)
	s, ok = proc.StringValue(v.ObjectRef())
	require.True(t, ok)
	require.Equal(t, "  hello world  ", s)

	trim := method(t, reg, "trim")
	v, err = trim(nil, ctx, strRef, nil)
	require.NoError(t, err)
	s, ok = proc.StringValue(v.ObjectRef())
	require.True(t, ok)
	require.Equal(t, "Hello World", s)
}

func TestSplit(t *testing.T) {
	reg := registry.New()
	Install(reg)
	proc, ctx := newProcAndContext(t)

	strRef, err := proc.NewString("a,b,c")
	require.NoError(t, err)
	sepRef, err := proc.NewString(",")
	require.NoError(t, err)

	split := method(t, reg, "split")
	v, err := split(nil, ctx, strRef, []values.Entity{values.Object(sepRef)})
	require.NoError(t, err)

	n := proc.Heap.ArrayLen(v.ObjectRef())
	require.Equal(t, 3, n)

	want := []string{"a", "b", "c"}
	for i, w := range want {
		elem, ok := proc.Heap.ArrayGet(v.ObjectRef(), i)
		require.True(t, ok)
		s, ok := proc.StringValue(elem.ObjectRef())
		require.True(t, ok)
		require.Equal(t, w, s)
	}
}

func TestNotAStringErrors(t *testing.T) {
	reg := registry.New()
	Install(reg)
	proc, ctx := newProcAndContext(t)

	arr, err := proc.Heap.NewArray()
	require.NoError(t, err)
	proc.Heap.ArrayAppend(arr.Ref(), values.Int(1))
	proc.Heap.ArrayAppend(arr.Ref(), values.Int(2))

	upper := method(t, reg, "upper")
	_, err = upper(nil, ctx, arr.Ref(), nil)
	require.Error(t, err)

	split := method(t, reg, "split")
	_, err = split(nil, ctx, arr.Ref(), []values.Entity{values.Int(1)})
	require.Error(t, err)
}

func TestSplitWrongArity(t *testing.T) {
	reg := registry.New()
	Install(reg)
	proc, ctx := newProcAndContext(t)

	strRef, err := proc.NewString("a,b")
	require.NoError(t, err)

	split := method(t, reg, "split")
	_, err = split(nil, ctx, strRef, nil)
	require.Error(t, err)
}

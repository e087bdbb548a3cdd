package arraylib

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

func TestPushPopLength(t *testing.T) {
	reg := registry.New()
	Install(reg)
	proc, ctx := newProcAndContext(t)

	arr, err := proc.Heap.NewArray()
	require.NoError(t, err)
	ref := arr.Ref()

	push := method(t, reg, "push")
	_, err = push(nil, ctx, ref, []values.Entity{values.Int(1)})
	require.NoError(t, err)
	_, err = push(nil, ctx, ref, []values.Entity{values.Int(2)})
	require.NoError(t, err)

	length := method(t, reg, "length")
	n, err := length(nil, ctx, ref, nil)
	require.NoError(t, err)
	require.Equal(t, int32(2), n.IntValue())

	pop := method(t, reg, "pop")
	v, err := pop(nil, ctx, ref, nil)
	require.NoError(t, err)
	require.Equal(t, int32(2), v.IntValue())

	n, err = length(nil, ctx, ref, nil)
	require.NoError(t, err)
	require.Equal(t, int32(1), n.IntValue())
}

func TestReverseAndIndexOf(t *testing.T) {
	reg := registry.New()
	Install(reg)
	proc, ctx := newProcAndContext(t)

	arr, err := proc.Heap.NewArray()
	require.NoError(t, err)
	ref := arr.Ref()
	proc.Heap.ArrayAppend(ref, values.Int(10))
	proc.Heap.ArrayAppend(ref, values.Int(20))
	proc.Heap.ArrayAppend(ref, values.Int(30))

	reverse := method(t, reg, "reverse")
	_, err = reverse(nil, ctx, ref, nil)
	require.NoError(t, err)

	first, ok := proc.Heap.ArrayGet(ref, 0)
	require.True(t, ok)
	require.Equal(t, int32(30), first.IntValue())

	indexOf := method(t, reg, "indexOf")
	idx, err := indexOf(nil, ctx, ref, []values.Entity{values.Int(10)})
	require.NoError(t, err)
	require.Equal(t, int32(2), idx.IntValue())

	idx, err = indexOf(nil, ctx, ref, []values.Entity{values.Int(999)})
	require.NoError(t, err)
	require.Equal(t, int32(-1), idx.IntValue())
}

func TestContainsSubstringAndElement(t *testing.T) {
	reg := registry.New()
	Install(reg)
	proc, ctx := newProcAndContext(t)

	strRef, err := proc.NewString("hello world")
	require.NoError(t, err)
	needleRef, err := proc.NewString("world")
	require.NoError(t, err)

	contains := method(t, reg, "contains")
	v, err := contains(nil, ctx, strRef, []values.Entity{values.Object(needleRef)})
	require.NoError(t, err)
	require.True(t, v.Truthy())

	arr, err := proc.Heap.NewArray()
	require.NoError(t, err)
	proc.Heap.ArrayAppend(arr.Ref(), values.Int(7))

	v, err = contains(nil, ctx, arr.Ref(), []values.Entity{values.Int(7)})
	require.NoError(t, err)
	require.True(t, v.Truthy())

	v, err = contains(nil, ctx, arr.Ref(), []values.Entity{values.Int(8)})
	require.NoError(t, err)
	require.False(t, v.Truthy())
}

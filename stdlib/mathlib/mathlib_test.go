package mathlib

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/tape"
	"github.com/jay-lang/jay/values"
	"github.com/jay-lang/jay/vm"
)

func testContext(t *testing.T) (*vm.Process, interface{}) {
	t.Helper()
	proc := vm.NewProcess(nil)
	mod := registry.NewModule("test", tape.New("test"))
	task, err := proc.Spawn(mod, values.NilRef, 0, nil)
	require.NoError(t, err)
	return proc, task.Contexts[0]
}

func call(t *testing.T, m *registry.Module, name string, args ...values.Entity) (values.Entity, error) {
	t.Helper()
	fn, ok := m.Functions[name]
	require.True(t, ok, "function %s not installed", name)
	_, ctx := testContext(t)
	return fn.Native(nil, ctx, values.NilRef, args)
}

func TestSqrtFloorCeilRoundAbs(t *testing.T) {
	reg := registry.New()
	m := Install(reg)

	v, err := call(t, m, "sqrt", values.Float(16))
	require.NoError(t, err)
	require.Equal(t, 4.0, v.FloatValue())

	v, err = call(t, m, "floor", values.Float(3.7))
	require.NoError(t, err)
	require.Equal(t, 3.0, v.FloatValue())

	v, err = call(t, m, "ceil", values.Float(3.2))
	require.NoError(t, err)
	require.Equal(t, 4.0, v.FloatValue())

	v, err = call(t, m, "round", values.Float(3.5))
	require.NoError(t, err)
	require.Equal(t, 4.0, v.FloatValue())

	v, err = call(t, m, "abs", values.Int(-5))
	require.NoError(t, err)
	require.Equal(t, 5.0, v.FloatValue())
}

func TestPowMinMax(t *testing.T) {
	reg := registry.New()
	m := Install(reg)

	v, err := call(t, m, "pow", values.Float(2), values.Float(10))
	require.NoError(t, err)
	require.Equal(t, 1024.0, v.FloatValue())

	v, err = call(t, m, "min", values.Int(3), values.Int(7))
	require.NoError(t, err)
	require.Equal(t, int32(3), v.IntValue())

	v, err = call(t, m, "max", values.Int(3), values.Int(7))
	require.NoError(t, err)
	require.Equal(t, int32(7), v.IntValue())
}

func TestWrongArityErrors(t *testing.T) {
	reg := registry.New()
	m := Install(reg)

	_, err := call(t, m, "sqrt")
	require.Error(t, err)

	_, err = call(t, m, "pow", values.Int(1))
	require.Error(t, err)
}

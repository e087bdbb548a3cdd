package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jay-lang/jay/values"
)

func TestCycleCollection(t *testing.T) {
	h := New()

	root, err := h.New("Object", ClassHooks{})
	require.NoError(t, err)
	h.MakeRoot(root.Ref())

	x, err := h.New("Object", ClassHooks{})
	require.NoError(t, err)
	y, err := h.New("Object", ClassHooks{})
	require.NoError(t, err)

	// x.peer = y; y.peer = x -- a cycle with no other roots.
	h.SetMember(x.Ref(), "peer", values.Object(y.Ref()))
	h.SetMember(y.Ref(), "peer", values.Object(x.Ref()))

	// Root briefly references x so allocation + mutation above is legal,
	// then the binding is dropped, leaving the cycle with no root at all.
	h.SetMember(root.Ref(), "tmp", values.Object(x.Ref()))
	h.UnsetMember(root.Ref(), "tmp")

	freed := h.CollectGarbage()
	require.GreaterOrEqual(t, freed, uint32(2))

	again := h.CollectGarbage()
	require.Equal(t, uint32(0), again)
}

func TestMemberEdgeBalance(t *testing.T) {
	h := New()
	root, _ := h.New("Object", ClassHooks{})
	h.MakeRoot(root.Ref())
	child, _ := h.New("Object", ClassHooks{})

	h.SetMember(root.Ref(), "a", values.Object(child.Ref()))
	n := h.nodes[root.Ref()]
	require.Equal(t, int32(1), n.out[child.Ref()])

	// Overwriting with a different object rebalances: old edge removed,
	// new edge added.
	other, _ := h.New("Object", ClassHooks{})
	h.SetMember(root.Ref(), "a", values.Object(other.Ref()))
	require.Equal(t, int32(0), n.out[child.Ref()])
	require.Equal(t, int32(1), n.out[other.Ref()])

	h.UnsetMember(root.Ref(), "a")
	require.Equal(t, int32(0), n.out[other.Ref()])
}

func TestDeleteHookRunsBeforeMembersFreed(t *testing.T) {
	h := New()
	var obj *Object
	var sawMember bool
	obj, err := h.New("Custom", ClassHooks{
		Delete: func(self values.Ref) {
			// The node map entry is already removed by CollectGarbage
			// before the deleter runs for dead objects, so Get(self) fails
			// here; the deleter reads members through the Object pointer
			// captured at allocation instead.
			_, sawMember = obj.Members.Get("k")
		},
	})
	require.NoError(t, err)
	require.NotNil(t, obj)
	h.SetMember(obj.Ref(), "k", values.Int(1))

	freed := h.CollectGarbage()
	require.Equal(t, uint32(1), freed)
	require.True(t, sawMember)
}

func TestArrayEdges(t *testing.T) {
	h := New()
	root, _ := h.New("Object", ClassHooks{})
	h.MakeRoot(root.Ref())

	arr, _ := h.NewArray()
	h.SetMember(root.Ref(), "arr", values.Object(arr.Ref()))

	child, _ := h.New("Object", ClassHooks{})
	h.ArrayAppend(arr.Ref(), values.Object(child.Ref()))

	n := h.nodes[arr.Ref()]
	require.Equal(t, int32(1), n.out[child.Ref()])

	freed := h.CollectGarbage()
	require.Equal(t, uint32(0), freed)

	h.ArraySet(arr.Ref(), 0, values.Nil())
	require.Equal(t, int32(0), n.out[child.Ref()])

	freed = h.CollectGarbage()
	require.Equal(t, uint32(1), freed)
}

func TestCopyDeepCopiesArrayElementsAndMembers(t *testing.T) {
	h := New()

	inner, _ := h.New("Object", ClassHooks{})
	h.SetMember(inner.Ref(), "n", values.Int(1))

	arr, _ := h.NewArray()
	h.ArrayAppend(arr.Ref(), values.Int(7))
	h.ArrayAppend(arr.Ref(), values.Object(inner.Ref()))

	cpy, err := h.Copy(values.Object(arr.Ref()), nil)
	require.NoError(t, err)
	require.NotEqual(t, arr.Ref(), cpy.ObjectRef())
	require.Equal(t, 2, h.ArrayLen(cpy.ObjectRef()))

	innerCpyEnt, ok := h.ArrayGet(cpy.ObjectRef(), 1)
	require.True(t, ok)
	require.NotEqual(t, inner.Ref(), innerCpyEnt.ObjectRef())

	innerCpy, ok := h.Get(innerCpyEnt.ObjectRef())
	require.True(t, ok)
	n, ok := innerCpy.Members.Get("n")
	require.True(t, ok)
	require.Equal(t, int32(1), n.IntValue())

	// Mutating the copy's nested object must not affect the original.
	h.SetMember(innerCpyEnt.ObjectRef(), "n", values.Int(99))
	original, ok := inner.Members.Get("n")
	require.True(t, ok)
	require.Equal(t, int32(1), original.IntValue())
}

func TestCopyPreservesAliasingThroughACycle(t *testing.T) {
	h := New()

	a, _ := h.New("Object", ClassHooks{})
	b, _ := h.New("Object", ClassHooks{})
	h.SetMember(a.Ref(), "peer", values.Object(b.Ref()))
	h.SetMember(b.Ref(), "peer", values.Object(a.Ref()))

	cpy, err := h.Copy(values.Object(a.Ref()), nil)
	require.NoError(t, err)

	aCpy, ok := h.Get(cpy.ObjectRef())
	require.True(t, ok)
	bCpyEnt, ok := aCpy.Members.Get("peer")
	require.True(t, ok)

	bCpy, ok := h.Get(bCpyEnt.ObjectRef())
	require.True(t, ok)
	aCpyBack, ok := bCpy.Members.Get("peer")
	require.True(t, ok)
	require.Equal(t, cpy.ObjectRef(), aCpyBack.ObjectRef())
}

func TestCopyInvokesClassHookForOpaquePayload(t *testing.T) {
	h := New()

	obj, err := h.New("Custom", ClassHooks{})
	require.NoError(t, err)
	obj.Payload = "source-payload"

	var sawSrc, sawDst values.Ref
	hooksFor := func(className string) ClassHooks {
		return ClassHooks{
			Copy: func(src, dst values.Ref) {
				sawSrc, sawDst = src, dst
			},
		}
	}

	cpy, err := h.Copy(values.Object(obj.Ref()), hooksFor)
	require.NoError(t, err)
	require.Equal(t, obj.Ref(), sawSrc)
	require.Equal(t, cpy.ObjectRef(), sawDst)

	cpyObj, ok := h.Get(cpy.ObjectRef())
	require.True(t, ok)
	require.Equal(t, "source-payload", cpyObj.Payload)
}

func TestCopyPassesNonObjectEntitiesThrough(t *testing.T) {
	h := New()
	e, err := h.Copy(values.Int(5), nil)
	require.NoError(t, err)
	require.Equal(t, int32(5), e.IntValue())
}

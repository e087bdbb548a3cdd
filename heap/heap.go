// Package heap implements the object heap and its incremental, cycle-safe
// reference-counted graph collector. Reachability is computed over an edge
// multigraph: every object-producing mutation balances an inc_edge with a
// dec_edge, and collect_garbage sweeps whatever is not transitively
// reachable from a root even when it forms a cycle.
package heap

import (
	"fmt"
	"sync"

	"github.com/jay-lang/jay/values"
)

// OrderedMap is an insertion-ordered string-keyed map from interned string
// key to Entity.
type OrderedMap struct {
	keys  []string
	index map[string]int
	vals  []values.Entity
}

func NewOrderedMap() *OrderedMap {
	return &OrderedMap{index: make(map[string]int)}
}

func (m *OrderedMap) Get(key string) (values.Entity, bool) {
	if i, ok := m.index[key]; ok {
		return m.vals[i], true
	}
	return values.Nil(), false
}

// Set returns the previous value (if any) so callers can adjust edges.
func (m *OrderedMap) Set(key string, val values.Entity) (values.Entity, bool) {
	if i, ok := m.index[key]; ok {
		old := m.vals[i]
		m.vals[i] = val
		return old, true
	}
	m.index[key] = len(m.keys)
	m.keys = append(m.keys, key)
	m.vals = append(m.vals, val)
	return values.Nil(), false
}

func (m *OrderedMap) Delete(key string) (values.Entity, bool) {
	i, ok := m.index[key]
	if !ok {
		return values.Nil(), false
	}
	old := m.vals[i]
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.vals = append(m.vals[:i], m.vals[i+1:]...)
	delete(m.index, key)
	for k, idx := range m.index {
		if idx > i {
			m.index[k] = idx - 1
		}
	}
	return old, true
}

func (m *OrderedMap) Keys() []string { return m.keys }
func (m *OrderedMap) Len() int       { return len(m.keys) }

// Array is the internal payload of an Array-class object. Every stored
// object element adds one edge; strings never add object edges since they
// hold char primitives, not object references.
type Array struct {
	Elements []values.Entity
}

// Tuple is fixed-length; edges are only added at creation time.
type Tuple struct {
	Elements []values.Entity
}

// Object is a heap-allocated instance: a class name, an optional
// class-specific payload, and an insertion-ordered member map.
type Object struct {
	ref     values.Ref
	Class   string
	Payload interface{}
	Members *OrderedMap
}

func (o *Object) Ref() values.Ref { return o.ref }

type node struct {
	obj     *Object
	isRoot  bool
	out     map[values.Ref]int32
	deleter func(*Object)
}

// ClassHooks exposes just enough of a Class to drive lifecycle hooks
// without heap importing package registry (registry already imports
// values; heap only needs to call back into init/delete/copy closures).
type ClassHooks struct {
	Init   func(self values.Ref) error
	Delete func(self values.Ref)
	Copy   func(src, dst values.Ref)
}

// Heap owns allocation, the edge multigraph, and garbage collection for
// one Process, which holds a single lock over it.
type Heap struct {
	mu      sync.Mutex
	nodes   map[values.Ref]*node
	nextRef values.Ref
}

func New() *Heap {
	return &Heap{
		nodes:   make(map[values.Ref]*node),
		nextRef: 1, // 0 is reserved as values.NilRef
	}
}

// New allocates an object of the given class, running its init hook (if
// any) before the object is reachable from anywhere but the caller's stack.
func (h *Heap) New(className string, hooks ClassHooks) (*Object, error) {
	h.mu.Lock()
	ref := h.nextRef
	h.nextRef++
	obj := &Object{ref: ref, Class: className, Members: NewOrderedMap()}
	n := &node{obj: obj, out: make(map[values.Ref]int32)}
	n.deleter = func(o *Object) {
		if hooks.Delete != nil {
			hooks.Delete(o.ref)
		}
	}
	h.nodes[ref] = n
	h.mu.Unlock()

	if hooks.Init != nil {
		if err := hooks.Init(ref); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// Get fetches an object by handle. Safe to call after collection only for
// refs still present; callers that walk a stale reference get ok=false.
func (h *Heap) Get(ref values.Ref) (*Object, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[ref]
	if !ok {
		return nil, false
	}
	return n.obj, true
}

// MakeRoot marks ref as a GC root. Multiple roots are allowed; marking an
// already-rooted or freed ref is a no-op.
func (h *Heap) MakeRoot(ref values.Ref) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n, ok := h.nodes[ref]; ok {
		n.isRoot = true
	}
}

// UnmakeRoot clears a root flag, e.g. when a task finishes holding a
// temporary pin used during collection.
func (h *Heap) UnmakeRoot(ref values.Ref) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n, ok := h.nodes[ref]; ok {
		n.isRoot = false
	}
}

// IncEdge/DecEdge adjust the multiplicity of the parent->child edge.
// Decrementing to zero removes the edge entirely.
func (h *Heap) IncEdge(parent, child values.Ref) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[parent]
	if !ok {
		return
	}
	n.out[child]++
}

func (h *Heap) DecEdge(parent, child values.Ref) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[parent]
	if !ok {
		return
	}
	n.out[child]--
	if n.out[child] <= 0 {
		delete(n.out, child)
	}
}

// SetMember looks up or inserts the key, dec_edges the displaced object
// member (if any), inc_edges the new one (if it is an object), then writes.
func (h *Heap) SetMember(parent values.Ref, key string, val values.Entity) {
	obj, ok := h.Get(parent)
	if !ok {
		return
	}
	old, existed := obj.Members.Set(key, val)
	if existed && old.Kind() == values.KindObject {
		h.DecEdge(parent, old.ObjectRef())
	}
	if val.Kind() == values.KindObject {
		h.IncEdge(parent, val.ObjectRef())
	}
}

// UnsetMember removes a member, balancing its edge if it held an object.
func (h *Heap) UnsetMember(parent values.Ref, key string) {
	obj, ok := h.Get(parent)
	if !ok {
		return
	}
	old, existed := obj.Members.Delete(key)
	if existed && old.Kind() == values.KindObject {
		h.DecEdge(parent, old.ObjectRef())
	}
}

// NewArray allocates an Array-payload object with no elements.
func (h *Heap) NewArray() (*Object, error) {
	return h.New("Array", ClassHooks{})
}

// ArraySet mirrors SetMember's edge-balancing rule for indexed storage.
func (h *Heap) ArraySet(arrRef values.Ref, index int, val values.Entity) {
	obj, ok := h.Get(arrRef)
	if !ok {
		return
	}
	arr, ok := obj.Payload.(*Array)
	if !ok {
		arr = &Array{}
		obj.Payload = arr
	}
	for len(arr.Elements) <= index {
		arr.Elements = append(arr.Elements, values.Nil())
	}
	old := arr.Elements[index]
	if old.Kind() == values.KindObject {
		h.DecEdge(arrRef, old.ObjectRef())
	}
	arr.Elements[index] = val
	if val.Kind() == values.KindObject {
		h.IncEdge(arrRef, val.ObjectRef())
	}
}

func (h *Heap) ArrayAppend(arrRef values.Ref, val values.Entity) int {
	obj, ok := h.Get(arrRef)
	if !ok {
		return -1
	}
	arr, ok := obj.Payload.(*Array)
	if !ok {
		arr = &Array{}
		obj.Payload = arr
	}
	idx := len(arr.Elements)
	arr.Elements = append(arr.Elements, val)
	if val.Kind() == values.KindObject {
		h.IncEdge(arrRef, val.ObjectRef())
	}
	return idx
}

func (h *Heap) ArrayGet(arrRef values.Ref, index int) (values.Entity, bool) {
	obj, ok := h.Get(arrRef)
	if !ok {
		return values.Nil(), false
	}
	arr, ok := obj.Payload.(*Array)
	if !ok || index < 0 || index >= len(arr.Elements) {
		return values.Nil(), false
	}
	return arr.Elements[index], true
}

// ArrayTruncate shortens the array to n elements, dec_edge-ing every
// discarded object element, used by "pop" and any other length-shrinking
// built-in.
func (h *Heap) ArrayTruncate(arrRef values.Ref, n int) {
	obj, ok := h.Get(arrRef)
	if !ok {
		return
	}
	arr, ok := obj.Payload.(*Array)
	if !ok || n >= len(arr.Elements) {
		return
	}
	if n < 0 {
		n = 0
	}
	for _, e := range arr.Elements[n:] {
		if e.Kind() == values.KindObject {
			h.DecEdge(arrRef, e.ObjectRef())
		}
	}
	arr.Elements = arr.Elements[:n]
}

func (h *Heap) ArrayLen(arrRef values.Ref) int {
	obj, ok := h.Get(arrRef)
	if !ok {
		return 0
	}
	if arr, ok := obj.Payload.(*Array); ok {
		return len(arr.Elements)
	}
	return 0
}

// NewTuple allocates a fixed-length Tuple, adding one edge per object
// element up front since tuples never overwrite slots after creation.
func (h *Heap) NewTuple(elements []values.Entity) (*Object, error) {
	obj, err := h.New("Tuple", ClassHooks{})
	if err != nil {
		return nil, err
	}
	t := &Tuple{Elements: append([]values.Entity(nil), elements...)}
	obj.Payload = t
	for _, e := range t.Elements {
		if e.Kind() == values.KindObject {
			h.IncEdge(obj.ref, e.ObjectRef())
		}
	}
	return obj, nil
}

func (h *Heap) TupleGet(ref values.Ref, index int) (values.Entity, bool) {
	obj, ok := h.Get(ref)
	if !ok {
		return values.Nil(), false
	}
	t, ok := obj.Payload.(*Tuple)
	if !ok || index < 0 || index >= len(t.Elements) {
		return values.Nil(), false
	}
	return t.Elements[index], true
}

func (h *Heap) TupleLen(ref values.Ref) int {
	obj, ok := h.Get(ref)
	if !ok {
		return 0
	}
	if t, ok := obj.Payload.(*Tuple); ok {
		return len(t.Elements)
	}
	return 0
}

// ClassHooksFor resolves the lifecycle hooks for a class name during a
// Copy walk. Supplied by the caller so this package never needs to import
// registry to look a class up itself.
type ClassHooksFor func(className string) ClassHooks

// Copy deep-copies the object graph reachable from e, preserving aliasing
// within the copy: a ref visited twice (including through a cycle) yields
// the same copy both times, via a per-call ref->ref map. Array and Tuple
// payloads are copied element by element; any other payload is shared by
// default, then handed to the class's Copy hook (if it registered one) to
// fix up afterward -- the hook exists for payloads a shallow share isn't
// right for. Non-object entities pass through unchanged.
func (h *Heap) Copy(e values.Entity, hooksFor ClassHooksFor) (values.Entity, error) {
	return h.copyEntity(e, make(map[values.Ref]values.Ref), hooksFor)
}

func (h *Heap) copyEntity(e values.Entity, seen map[values.Ref]values.Ref, hooksFor ClassHooksFor) (values.Entity, error) {
	if e.Kind() != values.KindObject {
		return e, nil
	}
	ref, err := h.copyRef(e.ObjectRef(), seen, hooksFor)
	if err != nil {
		return values.Nil(), err
	}
	return values.Object(ref), nil
}

func (h *Heap) copyRef(ref values.Ref, seen map[values.Ref]values.Ref, hooksFor ClassHooksFor) (values.Ref, error) {
	if cpy, ok := seen[ref]; ok {
		return cpy, nil
	}
	obj, ok := h.Get(ref)
	if !ok {
		return values.NilRef, fmt.Errorf("heap: copy of dangling reference")
	}
	var hooks ClassHooks
	if hooksFor != nil {
		hooks = hooksFor(obj.Class)
	}
	cpyObj, err := h.New(obj.Class, ClassHooks{Delete: hooks.Delete})
	if err != nil {
		return values.NilRef, err
	}
	cpyRef := cpyObj.Ref()
	seen[ref] = cpyRef

	switch payload := obj.Payload.(type) {
	case *Array:
		elems := make([]values.Entity, len(payload.Elements))
		for i, elem := range payload.Elements {
			ce, err := h.copyEntity(elem, seen, hooksFor)
			if err != nil {
				return values.NilRef, err
			}
			elems[i] = ce
		}
		for _, ce := range elems {
			h.ArrayAppend(cpyRef, ce)
		}
	case *Tuple:
		elems := make([]values.Entity, len(payload.Elements))
		for i, elem := range payload.Elements {
			ce, err := h.copyEntity(elem, seen, hooksFor)
			if err != nil {
				return values.NilRef, err
			}
			elems[i] = ce
		}
		cpyObj.Payload = &Tuple{Elements: elems}
		for _, ce := range elems {
			if ce.Kind() == values.KindObject {
				h.IncEdge(cpyRef, ce.ObjectRef())
			}
		}
	default:
		cpyObj.Payload = obj.Payload
		if hooks.Copy != nil {
			hooks.Copy(ref, cpyRef)
		}
	}

	for _, key := range obj.Members.Keys() {
		val, _ := obj.Members.Get(key)
		cv, err := h.copyEntity(val, seen, hooksFor)
		if err != nil {
			return values.NilRef, err
		}
		h.SetMember(cpyRef, key, cv)
	}
	return cpyRef, nil
}

// CollectGarbage performs a mark-sweep over the edge graph starting from
// roots: reachability is the transitive closure over edges with
// multiplicity > 0. Destruction order within a freed component is
// unspecified; deleters must tolerate dangling children, which holds here
// because the member map is freed only after the deleter runs.
func (h *Heap) CollectGarbage() uint32 {
	h.mu.Lock()

	reachable := make(map[values.Ref]bool, len(h.nodes))
	var stack []values.Ref
	for ref, n := range h.nodes {
		if n.isRoot {
			reachable[ref] = true
			stack = append(stack, ref)
		}
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := h.nodes[cur]
		if !ok {
			continue
		}
		for child, count := range n.out {
			if count <= 0 {
				continue
			}
			if !reachable[child] {
				reachable[child] = true
				stack = append(stack, child)
			}
		}
	}

	var dead []*node
	for ref, n := range h.nodes {
		if !reachable[ref] {
			dead = append(dead, n)
			delete(h.nodes, ref)
		}
	}
	h.mu.Unlock()

	for _, n := range dead {
		if n.deleter != nil {
			n.deleter(n.obj)
		}
	}
	return uint32(len(dead))
}

// Len reports live node count, useful for tests and diagnostics.
func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.nodes)
}

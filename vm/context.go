package vm

import (
	"github.com/jay-lang/jay/heap"
	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/values"
)

// Context is a single call frame: instruction pointer, owning module,
// receiver, locals, and the catch target installed for this frame (if
// any). Locals live as members of a heap object rather than a plain Go
// map so variable bindings participate in the same edge-balanced member
// map the rest of the object model uses -- a local holding the only
// reference to an object is protected exactly like any other member slot.
type Context struct {
	IP       int
	Module   *registry.Module
	Self     values.Ref
	Locals   values.Ref
	CatchIns int
	Error    values.Ref
	Previous *Context
	task     *Task
	proc     *Process
}

func newContext(p *Process, task *Task, module *registry.Module, self values.Ref, previous *Context) (*Context, error) {
	locals, err := p.Heap.New("__Locals", heap.ClassHooks{})
	if err != nil {
		return nil, err
	}
	return &Context{
		Module:   module,
		Self:     self,
		Locals:   locals.Ref(),
		CatchIns: -1,
		Error:    values.NilRef,
		Previous: previous,
		task:     task,
		proc:     p,
	}, nil
}

// Process returns the VM process this frame runs under, letting a native
// function reach the heap, the registry, or string/render helpers without
// the NativeRegistry contract itself naming a *Process parameter.
func (c *Context) Process() *Process { return c.proc }

// Lookup walks outward through enclosing contexts, matching how NBLK
// scopes nest: a name not bound in the innermost block resolves to
// whichever enclosing block bound it.
func (c *Context) Lookup(h *heap.Heap, name string) (values.Entity, bool) {
	for cur := c; cur != nil; cur = cur.Previous {
		obj, ok := h.Get(cur.Locals)
		if !ok {
			continue
		}
		if v, ok := obj.Members.Get(name); ok {
			return v, true
		}
	}
	return values.Nil(), false
}

// Set rebinds whichever enclosing context already owns name, or this
// context if none does.
func (c *Context) Set(h *heap.Heap, name string, val values.Entity) {
	for cur := c; cur != nil; cur = cur.Previous {
		obj, ok := h.Get(cur.Locals)
		if !ok {
			continue
		}
		if _, ok := obj.Members.Get(name); ok {
			h.SetMember(cur.Locals, name, val)
			return
		}
	}
	h.SetMember(c.Locals, name, val)
}

// Let always binds in this context, shadowing any outer binding.
func (c *Context) Let(h *heap.Heap, name string, val values.Entity) {
	h.SetMember(c.Locals, name, val)
}

package vm

import (
	"github.com/jay-lang/jay/heap"
	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/values"
)

// Reserved method names user code overloads by defining a method of that
// exact name on a class; the VM only ever calls them through this fallback
// path, never directly off a bytecode CALL.
const (
	eqFnName      = "EQ_FN_NAME"
	neqFnName     = "NEQ_FN_NAME"
	arrayIndexKey = "ARRAYLIKE_INDEX_KEY"
	arraySetKey   = "ARRAYLIKE_SET_KEY"
)

// argsFromResval unpacks the caller's argument bundle: a lone Entity, or a
// Tuple object for a multi-argument call. The callee's own prologue (for
// bytecode functions) or native implementation reads it back out this way
// regardless of how many parameters it binds.
func (p *Process) argsFromResval(task *Task) []values.Entity {
	v := task.Resval
	if v.Kind() == values.KindObject {
		if obj, ok := p.Heap.Get(v.ObjectRef()); ok {
			if t, ok := obj.Payload.(*heap.Tuple); ok {
				return append([]values.Entity(nil), t.Elements...)
			}
		}
	}
	if v.Kind() == values.KindNil {
		return nil
	}
	return []values.Entity{v}
}

// deepCopyArgs copies the argument bundle before it crosses into a freshly
// spawned task, per registry.PayloadHooks.Copy / heap.ClassHooks.Copy:
// arguments are deep-copied rather than shared, so a callee mutating its
// own argument object can never alias the caller's. module supplies class
// lookup context for resolving each object's copy hook along the way.
func (p *Process) deepCopyArgs(module *registry.Module, bundle values.Entity) (values.Entity, error) {
	return p.Heap.Copy(bundle, func(className string) heap.ClassHooks {
		class, ok := p.Registry.LookupClass(module, className)
		if !ok {
			return heap.ClassHooks{}
		}
		return classHooks(class)
	})
}

// callID dispatches a CALL with an identifier operand: a method call
// against a receiver popped off the stack.
func (p *Process) callID(task *Task, cur *Context, methodName string) (bool, error) {
	recv, ok := task.pop()
	if !ok {
		return false, internalf("CALL %s: stack underflow", methodName)
	}
	if recv.Kind() != values.KindObject {
		return false, Errorf("cannot call method %s on a %s", methodName, recv.Kind())
	}
	return p.invokeMethod(task, recv.ObjectRef(), cur.Module, methodName)
}

func (p *Process) callBare(task *Task, cur *Context) (bool, error) {
	callee, ok := task.pop()
	if !ok {
		return false, internalf("CALL: stack underflow")
	}
	if callee.Kind() != values.KindObject {
		return false, Errorf("cannot call a %s", callee.Kind())
	}
	obj, ok := p.Heap.Get(callee.ObjectRef())
	if !ok {
		return false, internalf("CALL: dangling reference")
	}
	switch obj.Class {
	case "Function":
		fn, _ := obj.Payload.(*registry.Function)
		if fn == nil {
			return false, internalf("CALL: function reflection missing its payload")
		}
		return p.invokeFunction(task, fn, values.NilRef)
	case "Class":
		class, _ := obj.Payload.(*registry.Class)
		if class == nil {
			return false, internalf("CALL: class reflection missing its payload")
		}
		return p.construct(task, cur.Module, class)
	default:
		return false, Errorf("%s is not callable", obj.Class)
	}
}

// invokeMethod resolves methodName against receiver's class chain (bounded
// depth, per ResolveMethod) and runs it.
func (p *Process) invokeMethod(task *Task, receiver values.Ref, module *registry.Module, methodName string) (bool, error) {
	obj, ok := p.Heap.Get(receiver)
	if !ok {
		return false, internalf("CALL %s: dangling receiver", methodName)
	}
	fn, err := p.Registry.ResolveMethod(module, obj.Class, methodName)
	if err != nil {
		return false, Errorf("%s", err.Error())
	}
	return p.invokeFunction(task, fn, receiver)
}

// invokeFunction runs a native function synchronously or spawns a new task
// for a bytecode one. Every non-native call suspends the caller: the callee
// is its own cooperative task, chained back via DependentTask.
func (p *Process) invokeFunction(task *Task, fn *registry.Function, self values.Ref) (bool, error) {
	if fn.IsNative() {
		args := p.argsFromResval(task)
		result, err := fn.Native(task, task.current(), self, args)
		if err != nil {
			return false, err
		}
		task.Resval = result
		return false, nil
	}
	module, ok := p.Registry.Lookup(fn.Module)
	if !ok {
		return false, internalf("CALL %s: owning module %s not loaded", fn.Name, fn.Module)
	}
	argBundle, err := p.deepCopyArgs(module, task.Resval)
	if err != nil {
		return false, err
	}
	sub, err := p.Spawn(module, self, fn.Offset, task)
	if err != nil {
		return false, err
	}
	sub.Resval = argBundle
	return true, nil
}

// construct allocates a new instance of class and, if it defines "new",
// runs it as the constructor. The call's eventual result is always the new
// instance, never whatever the constructor body itself returns -- set via
// ReturnOverride since a bytecode constructor runs as its own task.
func (p *Process) construct(task *Task, module *registry.Module, class *registry.Class) (bool, error) {
	obj, err := p.Heap.New(class.Name, classHooks(class))
	if err != nil {
		return false, err
	}
	self := obj.Ref()
	ctor, err := p.Registry.ResolveMethod(module, class.Name, "new")
	if err != nil {
		task.Resval = values.Object(self)
		return false, nil
	}
	if ctor.IsNative() {
		args := p.argsFromResval(task)
		if _, err := ctor.Native(task, task.current(), self, args); err != nil {
			return false, err
		}
		task.Resval = values.Object(self)
		return false, nil
	}
	ctorModule, ok := p.Registry.Lookup(ctor.Module)
	if !ok {
		return false, internalf("CALL new: owning module %s not loaded", ctor.Module)
	}
	argBundle, err := p.deepCopyArgs(ctorModule, task.Resval)
	if err != nil {
		return false, err
	}
	sub, err := p.Spawn(ctorModule, self, ctor.Offset, task)
	if err != nil {
		return false, err
	}
	sub.Resval = argBundle
	result := values.Object(self)
	sub.ReturnOverride = &result
	return true, nil
}

// doImport implements LMDL: resolve (and, the first time, run) a module,
// then install it as a member of the importing module's own reflection.
func (p *Process) doImport(task *Task, cur *Context, name string) (bool, error) {
	m, err := p.resolveModule(name)
	if err != nil {
		return false, err
	}
	if cur.Module.Reflection != values.NilRef {
		p.Heap.SetMember(cur.Module.Reflection, name, values.Object(m.Reflection))
	}
	if m.IsInitialized {
		return false, nil
	}
	m.IsInitialized = true
	if _, err := p.Spawn(m, values.NilRef, 0, task); err != nil {
		return false, err
	}
	return true, nil
}

// isInstance walks the class chain rooted at className looking for target,
// bounded the same way ResolveMethod is against a misconfigured hierarchy.
func (p *Process) isInstance(module *registry.Module, className, target string) bool {
	const maxDepth = 256
	cur := className
	for depth := 0; depth < maxDepth; depth++ {
		if cur == target {
			return true
		}
		class, ok := p.Registry.LookupClass(module, cur)
		if !ok || class.Super == "" || class.Super == cur {
			return false
		}
		cur = class.Super
	}
	return false
}

// staticLookup walks the class chain for a class-level shared variable.
// Statics are populated when a class body's "static" member is lowered,
// not by any runtime opcode; SGET only ever reads.
func (p *Process) staticLookup(module *registry.Module, className, name string) (values.Entity, bool) {
	const maxDepth = 256
	cur := className
	for depth := 0; depth < maxDepth; depth++ {
		class, ok := p.Registry.LookupClass(module, cur)
		if !ok {
			break
		}
		if v, ok := class.Statics[name]; ok {
			return v, true
		}
		if class.Super == "" || class.Super == cur {
			break
		}
		cur = class.Super
	}
	return values.Nil(), false
}

// tupleCompare orders two tuples lexicographically by element, falling back
// to length once a shared prefix matches. Object elements only ever compare
// equal by reference; ordering two tuples that disagree on an object
// element is not defined and raises.
func (p *Process) tupleCompare(lhsRef, rhsRef values.Ref) (int, error) {
	ln, rn := p.Heap.TupleLen(lhsRef), p.Heap.TupleLen(rhsRef)
	n := ln
	if rn < n {
		n = rn
	}
	for i := 0; i < n; i++ {
		lv, _ := p.Heap.TupleGet(lhsRef, i)
		rv, _ := p.Heap.TupleGet(rhsRef, i)
		if lv.Kind() == values.KindObject || rv.Kind() == values.KindObject {
			if lv.Kind() == rv.Kind() && lv.ObjectRef() == rv.ObjectRef() {
				continue
			}
			return 0, &values.ArithError{Op: "TCMP", Lhs: lv, Rhs: rv}
		}
		c, err := values.Compare(lv, rv)
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return c, nil
		}
	}
	switch {
	case ln < rn:
		return -1, nil
	case ln > rn:
		return 1, nil
	default:
		return 0, nil
	}
}

func boolEntity(b bool) values.Entity {
	if b {
		return values.Int(1)
	}
	return values.Nil()
}

// Package arraylib installs the native built-in methods on the "Array"
// class: push/pop/length/contains/indexOf/reverse, the array side of
// spec.md's out-of-scope "individual built-in methods".
package arraylib

import (
	"strings"

	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/stdlib"
	"github.com/jay-lang/jay/values"
	"github.com/jay-lang/jay/vm"
)

// Install attaches the array methods to the process-wide built-in "Array"
// class, creating it if nothing has registered it yet.
func Install(reg *registry.Registry) {
	class := stdlib.EnsureArrayClass(reg)

	method := func(name string, fn registry.NativeFunc) {
		class.AddFunction(&registry.Function{Name: name, Class: "Array", Native: fn})
	}

	method("push", func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
		proc, err := stdlib.ProcessOf(context)
		if err != nil {
			return values.Nil(), err
		}
		if len(args) != 1 {
			return values.Nil(), stdlib.ArgCountError("push", 1, len(args))
		}
		n := proc.Heap.ArrayAppend(self, args[0])
		return values.Int(int32(n)), nil
	})

	method("pop", func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
		proc, err := stdlib.ProcessOf(context)
		if err != nil {
			return values.Nil(), err
		}
		n := proc.Heap.ArrayLen(self)
		if n == 0 {
			return values.Nil(), nil
		}
		v, _ := proc.Heap.ArrayGet(self, n-1)
		proc.Heap.ArrayTruncate(self, n-1)
		return v, nil
	})

	method("length", func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
		proc, err := stdlib.ProcessOf(context)
		if err != nil {
			return values.Nil(), err
		}
		return values.Int(int32(proc.Heap.ArrayLen(self))), nil
	})

	method("reverse", func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
		proc, err := stdlib.ProcessOf(context)
		if err != nil {
			return values.Nil(), err
		}
		n := proc.Heap.ArrayLen(self)
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			vi, _ := proc.Heap.ArrayGet(self, i)
			vj, _ := proc.Heap.ArrayGet(self, j)
			proc.Heap.ArraySet(self, i, vj)
			proc.Heap.ArraySet(self, j, vi)
		}
		return values.Object(self), nil
	})

	method("indexOf", func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
		proc, err := stdlib.ProcessOf(context)
		if err != nil {
			return values.Nil(), err
		}
		if len(args) != 1 {
			return values.Nil(), stdlib.ArgCountError("indexOf", 1, len(args))
		}
		n := proc.Heap.ArrayLen(self)
		for i := 0; i < n; i++ {
			v, _ := proc.Heap.ArrayGet(self, i)
			if stdlib.EntityEqual(v, args[0]) {
				return values.Int(int32(i)), nil
			}
		}
		return values.Int(-1), nil
	})

	method("contains", func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
		proc, err := stdlib.ProcessOf(context)
		if err != nil {
			return values.Nil(), err
		}
		if len(args) != 1 {
			return values.Nil(), stdlib.ArgCountError("contains", 1, len(args))
		}
		// A char-array receiver with a char-array argument is a string
		// doing a substring search; anything else is per-element equality.
		if s, ok := proc.StringValue(self); ok {
			if needle, ok := asStringArg(proc, args[0]); ok {
				return stdlib.BoolEntity(strings.Contains(s, needle)), nil
			}
		}
		n := proc.Heap.ArrayLen(self)
		for i := 0; i < n; i++ {
			v, _ := proc.Heap.ArrayGet(self, i)
			if stdlib.EntityEqual(v, args[0]) {
				return values.Int(1), nil
			}
		}
		return values.Nil(), nil
	})
}

func asStringArg(proc *vm.Process, e values.Entity) (string, bool) {
	if e.Kind() != values.KindObject {
		return "", false
	}
	return proc.StringValue(e.ObjectRef())
}

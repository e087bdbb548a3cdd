// Package stdlib wires the native built-in methods and functions spec.md
// names as out-of-scope external collaborators (individual built-in methods
// on strings/arrays/tuples/math) into concrete registry.Class/Module
// entries, through the same NativeRegistry contract any host embedding the
// VM would use.
package stdlib

import (
	"fmt"

	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/values"
	"github.com/jay-lang/jay/vm"
)

// ArgCountError is the uniform wrong-arity error every native function in
// stdlib raises, rendered the same way a VMError from bytecode would be.
func ArgCountError(name string, want, got int) error {
	return fmt.Errorf("%s expects %d argument(s), got %d", name, want, got)
}

// ProcessOf recovers the owning *vm.Process from the context argument every
// NativeFunc receives, the only way a native implementation outside
// package vm reaches the heap or registry.
func ProcessOf(context interface{}) (*vm.Process, error) {
	ctx, ok := context.(*vm.Context)
	if !ok {
		return nil, fmt.Errorf("native function called outside a VM context")
	}
	return ctx.Process(), nil
}

// BoolEntity is the uniform boolean encoding every stdlib predicate method
// returns: Int(1) for true, Nil() for false, matching the VM's own IF/IFN
// truthiness (only Nil is falsy).
func BoolEntity(b bool) values.Entity {
	if b {
		return values.Int(1)
	}
	return values.Nil()
}

// NotAStringError is raised when a string-only method (upper/lower/trim/
// split) is called on an Array receiver that isn't a char-array.
func NotAStringError(method string) error {
	return fmt.Errorf("%s: receiver is not a string", method)
}

// EntityEqual compares two Entities the way Array.indexOf/contains need to:
// primitives by promoted value, objects by reference identity.
func EntityEqual(a, b values.Entity) bool {
	if a.Kind() == values.KindObject || b.Kind() == values.KindObject {
		return a.Kind() == values.KindObject && b.Kind() == values.KindObject && a.ObjectRef() == b.ObjectRef()
	}
	eq, err := values.PrimitiveEqual(a, b)
	return err == nil && eq
}

// EnsureArrayClass returns the shared built-in "Array" class, creating and
// registering it the first time any stdlib package asks for it. Strings are
// themselves Array objects (see vm/strings.go), so array and string
// built-in methods both live on this one class.
func EnsureArrayClass(reg *registry.Registry) *registry.Class {
	return ensureBuiltinClass(reg, "Array")
}

// EnsureTupleClass returns the shared built-in "Tuple" class.
func EnsureTupleClass(reg *registry.Registry) *registry.Class {
	return ensureBuiltinClass(reg, "Tuple")
}

func ensureBuiltinClass(reg *registry.Registry, name string) *registry.Class {
	if existing, ok := reg.LookupClass(emptyModule, name); ok {
		return existing
	}
	c := registry.NewClass(name, "")
	reg.RegisterBuiltin(c)
	return c
}

// emptyModule has no classes of its own; LookupClass falls through to the
// registry's built-in table, which is all ensureBuiltinClass needs.
var emptyModule = registry.NewModule("", nil)

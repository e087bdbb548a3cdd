// Package strlib installs the native built-in methods on the "Array" class
// that only make sense for a char-array: upper/lower/trim/split.
// Strings have no dedicated primitive (see vm/strings.go); these methods
// simply refuse with an error when called on an Array whose elements
// aren't all Char. "contains" is shared with plain arrays and lives in
// arraylib, which already special-cases a char-array receiver.
package strlib

import (
	"strings"

	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/stdlib"
	"github.com/jay-lang/jay/values"
)

// Install attaches the string methods to the process-wide built-in "Array"
// class, creating it if nothing has registered it yet.
func Install(reg *registry.Registry) {
	class := stdlib.EnsureArrayClass(reg)

	transform := func(name string, f func(string) string) {
		class.AddFunction(&registry.Function{
			Name:  name,
			Class: "Array",
			Native: func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
				proc, err := stdlib.ProcessOf(context)
				if err != nil {
					return values.Nil(), err
				}
				s, ok := proc.StringValue(self)
				if !ok {
					return values.Nil(), stdlib.NotAStringError(name)
				}
				ref, err := proc.NewString(f(s))
				if err != nil {
					return values.Nil(), err
				}
				return values.Object(ref), nil
			},
		})
	}

	transform("upper", strings.ToUpper)
	transform("lower", strings.ToLower)
	transform("trim", strings.TrimSpace)

	class.AddFunction(&registry.Function{
		Name:  "split",
		Class: "Array",
		Native: func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
			proc, err := stdlib.ProcessOf(context)
			if err != nil {
				return values.Nil(), err
			}
			s, ok := proc.StringValue(self)
			if !ok {
				return values.Nil(), stdlib.NotAStringError("split")
			}
			if len(args) != 1 {
				return values.Nil(), stdlib.ArgCountError("split", 1, len(args))
			}
			sepRef, ok := refArg(args[0])
			if !ok {
				return values.Nil(), stdlib.NotAStringError("split")
			}
			sep, ok := proc.StringValue(sepRef)
			if !ok {
				return values.Nil(), stdlib.NotAStringError("split")
			}
			parts := strings.Split(s, sep)
			obj, err := proc.Heap.NewArray()
			if err != nil {
				return values.Nil(), err
			}
			for _, part := range parts {
				ref, err := proc.NewString(part)
				if err != nil {
					return values.Nil(), err
				}
				proc.Heap.ArrayAppend(obj.Ref(), values.Object(ref))
			}
			return values.Object(obj.Ref()), nil
		},
	})
}

func refArg(e values.Entity) (values.Ref, bool) {
	if e.Kind() != values.KindObject {
		return values.NilRef, false
	}
	return e.ObjectRef(), true
}

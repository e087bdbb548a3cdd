// Package mathlib installs the "math" module's native free functions: the
// elementary numeric helpers spec.md names as out-of-scope built-ins.
package mathlib

import (
	"math"

	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/stdlib"
	"github.com/jay-lang/jay/values"
)

// Install builds and registers the "math" module. Call once per Process,
// before any "import \"math\"" is reachable -- or let the loader resolve it
// lazily and register it as the Load implementation for the name "math".
func Install(reg *registry.Registry) *registry.Module {
	m := registry.NewModule("math", nil)
	m.IsInitialized = true // no top-level bytecode to run once

	unary := func(name string, f func(float64) float64) {
		m.Functions[name] = &registry.Function{
			Name:   name,
			Module: "math",
			Native: func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
				if len(args) != 1 {
					return values.Nil(), stdlib.ArgCountError(name, 1, len(args))
				}
				return values.Float(f(asFloat(args[0]))), nil
			},
		}
	}

	unary("sqrt", math.Sqrt)
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("round", math.Round)
	unary("abs", math.Abs)

	m.Functions["pow"] = &registry.Function{
		Name:   "pow",
		Module: "math",
		Native: func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
			if len(args) != 2 {
				return values.Nil(), stdlib.ArgCountError("pow", 2, len(args))
			}
			return values.Float(math.Pow(asFloat(args[0]), asFloat(args[1]))), nil
		},
	}

	m.Functions["min"] = &registry.Function{
		Name:   "min",
		Module: "math",
		Native: func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
			if len(args) != 2 {
				return values.Nil(), stdlib.ArgCountError("min", 2, len(args))
			}
			if asFloat(args[0]) <= asFloat(args[1]) {
				return args[0], nil
			}
			return args[1], nil
		},
	}

	m.Functions["max"] = &registry.Function{
		Name:   "max",
		Module: "math",
		Native: func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error) {
			if len(args) != 2 {
				return values.Nil(), stdlib.ArgCountError("max", 2, len(args))
			}
			if asFloat(args[0]) >= asFloat(args[1]) {
				return args[0], nil
			}
			return args[1], nil
		},
	}

	reg.Install(m)
	return m
}

func asFloat(e values.Entity) float64 {
	switch e.Kind() {
	case values.KindFloat:
		return e.FloatValue()
	case values.KindInt:
		return float64(e.IntValue())
	case values.KindChar:
		return float64(e.CharValue())
	default:
		return 0
	}
}

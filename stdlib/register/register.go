// Package register is the single place that wires every stdlib package
// into a Registry; kept separate from package stdlib itself so the leaf
// packages (mathlib, strlib, arraylib, db) can import stdlib's shared
// helpers without an import cycle.
package register

import (
	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/stdlib/arraylib"
	"github.com/jay-lang/jay/stdlib/db"
	"github.com/jay-lang/jay/stdlib/mathlib"
	"github.com/jay-lang/jay/stdlib/strlib"
)

// All installs every built-in module and class a fresh Process's registry
// needs before running user bytecode: the "math" module, the Array class's
// array and string methods, and the DBConnection native class.
func All(reg *registry.Registry) {
	mathlib.Install(reg)
	arraylib.Install(reg)
	strlib.Install(reg)
	db.Install(reg)
}

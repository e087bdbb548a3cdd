// Package registry models the compiled-time symbol tables: classes,
// functions, and modules, plus the reflection objects that make them
// visible to user code.
package registry

import (
	"fmt"
	"sync"

	"github.com/jay-lang/jay/tape"
	"github.com/jay-lang/jay/values"
)

// PayloadHooks are the optional class-specific lifecycle hooks a class may
// register: init runs when an instance is allocated, delete runs just
// before the heap reclaims it, and copy runs when an instance is deep
// copied across a task boundary.
type PayloadHooks struct {
	Init   func(self values.Ref) error
	Delete func(self values.Ref)
	Copy   func(src, dst values.Ref)
}

// NativeFunc is the signature every host-provided function must implement:
// (task, context, self, args). task/context are passed as interface{} here
// to avoid an import cycle with package vm; the vm package supplies
// concrete *vm.Task/*vm.Context values, and a native implementation
// type-asserts context back to *vm.Context to reach the heap (to allocate a
// string or array result) through its exported accessors.
type NativeFunc func(task, context interface{}, self values.Ref, args []values.Entity) (values.Entity, error)

// Function describes either a bytecode function (with a first-instruction
// offset into its owning module's tape) or a host-native one.
type Function struct {
	Name       string
	Module     string
	Class      string // owning class name, empty for free functions
	Offset     int    // first-instruction offset into the module tape
	IsConst    bool
	IsAsync    bool
	Native     NativeFunc
	Reflection values.Ref
}

func (f *Function) IsNative() bool { return f.Native != nil }

// Class holds the super-link, ordered field list, and method table.
type Class struct {
	Name       string
	Super      string // "" means root class Object
	Fields     []string
	Functions  map[string]*Function // ordered insertion is tracked via FuncOrder
	FuncOrder  []string
	Hooks      PayloadHooks
	Reflection values.Ref
	Statics    map[string]values.Entity // class-level shared variables, read by SGET
}

// NewClass installs defaults: a class with no super defaults to Object, per
// a root class.
func NewClass(name, super string) *Class {
	if super == "" && name != "Object" {
		super = "Object"
	}
	return &Class{
		Name:      name,
		Super:     super,
		Functions: make(map[string]*Function),
		Statics:   make(map[string]values.Entity),
	}
}

// AddFunction registers a method, preserving declaration order.
func (c *Class) AddFunction(fn *Function) {
	if _, exists := c.Functions[fn.Name]; !exists {
		c.FuncOrder = append(c.FuncOrder, fn.Name)
	}
	fn.Class = c.Name
	c.Functions[fn.Name] = fn
}

// Module holds a function table, class table, and lazy-init state: a
// module's top-level code runs exactly once, the first time something
// imports it, regardless of how many importers there are.
type Module struct {
	Name          string
	Tape          *tape.Tape
	Functions     map[string]*Function
	Classes       map[string]*Class
	IsInitialized bool
	Reflection    values.Ref
	LineInfo      *LineInfo
	Constants     map[string]values.Entity // module-level constants, set once via SETC/LETC, read via CNST
}

// LineInfo maps instruction indices back to source lines for diagnostics.
type LineInfo struct {
	File  string
	Lines map[int]int // instruction index -> source line
}

func NewModule(name string, t *tape.Tape) *Module {
	return &Module{
		Name:      name,
		Tape:      t,
		Functions: make(map[string]*Function),
		Classes:   make(map[string]*Class),
		Constants: make(map[string]values.Entity),
	}
}

// Registry is the process-wide (per-VM) table of loaded modules, installed
// once a ModuleLoader resolves them. Threadsafe because a ModuleLoader may
// be invoked from a sub-task spawned to run a module's top-level code while
// the importer is suspended.
type Registry struct {
	mu       sync.RWMutex
	modules  map[string]*Module
	builtins map[string]*Class
}

func New() *Registry {
	return &Registry{
		modules:  make(map[string]*Module),
		builtins: make(map[string]*Class),
	}
}

func (r *Registry) Install(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Name] = m
}

func (r *Registry) Lookup(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// RegisterBuiltin installs a class (Array, Tuple, Error, or a stdlib native
// class like DBConnection) visible to method resolution from every module,
// not just the one that declared it. Built-in primitive/array/tuple methods
// (spec's out-of-scope "individual built-in methods") have no declaring
// module of their own, so they live here instead of any one Module.Classes.
func (r *Registry) RegisterBuiltin(c *Class) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[c.Name] = c
}

func (r *Registry) lookupClass(m *Module, name string) (*Class, bool) {
	return r.LookupClass(m, name)
}

// LookupClass resolves className first against the calling module's own
// class table, then against the process-wide built-in table, the same
// precedence ResolveMethod uses. Exported for callers outside this package
// that need a class without also resolving a method on it (IS, ADR).
func (r *Registry) LookupClass(m *Module, name string) (*Class, bool) {
	if c, ok := m.Classes[name]; ok {
		return c, true
	}
	r.mu.RLock()
	c, ok := r.builtins[name]
	r.mu.RUnlock()
	return c, ok
}

// ResolveMethod walks the class chain looking for a method, bounded by the
// super-link depth so a cyclic/misconfigured hierarchy cannot hang. A name
// not declared in the calling module falls back to the process-wide
// built-in class table, so "hello".upper() resolves the same way regardless
// of which module's bytecode is making the call.
func (r *Registry) ResolveMethod(m *Module, className, methodName string) (*Function, error) {
	const maxDepth = 256
	cur := className
	for depth := 0; depth < maxDepth; depth++ {
		class, ok := r.lookupClass(m, cur)
		if !ok {
			break
		}
		if fn, ok := class.Functions[methodName]; ok {
			return fn, nil
		}
		if class.Super == "" || class.Super == cur {
			break
		}
		cur = class.Super
	}
	return nil, fmt.Errorf("method %s not found on class %s", methodName, className)
}

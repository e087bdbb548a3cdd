package vm

import (
	"github.com/jay-lang/jay/heap"
	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/values"
)

// resolveModule returns an already-installed module or asks the loader to
// produce and install one, ensuring its reflection objects exist either way.
func (p *Process) resolveModule(name string) (*registry.Module, error) {
	if m, ok := p.Registry.Lookup(name); ok {
		if err := p.ensureModuleReflection(m); err != nil {
			return nil, err
		}
		return m, nil
	}
	if p.Loader == nil {
		return nil, Errorf("module %q not found", name)
	}
	m, err := p.Loader.Load(name)
	if err != nil {
		return nil, Errorf("loading module %q: %s", name, err)
	}
	p.Registry.Install(m)
	if err := p.ensureModuleReflection(m); err != nil {
		return nil, err
	}
	return m, nil
}

// EnsureModuleReflection installs m's Module/Class/Function reflection
// objects if they don't already exist yet. Exported so a driver that loads
// a module directly through a ModuleLoader (rather than through an
// in-bytecode LMDL, which already calls this on the way in) can still
// reach that module's reflection object, e.g. to install a global before
// spawning its entry point.
func (p *Process) EnsureModuleReflection(m *registry.Module) error {
	return p.ensureModuleReflection(m)
}

// ensureModuleReflection installs the Module/Class/Function reflection
// objects a module exposes to user code the first time anything observes
// it, rather than up front at parse time, so a module nobody imports never
// pays for reflection it never needed.
func (p *Process) ensureModuleReflection(m *registry.Module) error {
	if m.Reflection == values.NilRef {
		obj, err := p.Heap.New("Module", heap.ClassHooks{})
		if err != nil {
			return err
		}
		obj.Payload = m
		m.Reflection = obj.Ref()
		p.Heap.MakeRoot(m.Reflection)
	}
	for _, fn := range m.Functions {
		if err := p.ensureFunctionReflection(fn); err != nil {
			return err
		}
		p.Heap.SetMember(m.Reflection, fn.Name, values.Object(fn.Reflection))
	}
	for _, class := range m.Classes {
		if err := p.ensureClassReflection(class); err != nil {
			return err
		}
		p.Heap.SetMember(m.Reflection, class.Name, values.Object(class.Reflection))
	}
	return nil
}

func (p *Process) ensureFunctionReflection(fn *registry.Function) error {
	if fn.Reflection != values.NilRef {
		return nil
	}
	obj, err := p.Heap.New("Function", heap.ClassHooks{})
	if err != nil {
		return err
	}
	obj.Payload = fn
	fn.Reflection = obj.Ref()
	p.Heap.MakeRoot(fn.Reflection)
	return nil
}

func (p *Process) ensureClassReflection(class *registry.Class) error {
	if class.Reflection == values.NilRef {
		obj, err := p.Heap.New("Class", heap.ClassHooks{})
		if err != nil {
			return err
		}
		obj.Payload = class
		class.Reflection = obj.Ref()
		p.Heap.MakeRoot(class.Reflection)
	}
	for _, fn := range class.Functions {
		if err := p.ensureFunctionReflection(fn); err != nil {
			return err
		}
	}
	return nil
}

func classHooks(c *registry.Class) heap.ClassHooks {
	return heap.ClassHooks{
		Init:   c.Hooks.Init,
		Delete: c.Hooks.Delete,
		Copy:   c.Hooks.Copy,
	}
}

// Package loader implements vm.ModuleLoader: resolving a bare module name
// via libpath, reading its compiled form with the bytecode or asm codec
// (a resolved .jv source file is refused with an error; there is no source
// compiler here), and installing the result into a shared Registry exactly
// once per module name.
package loader

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jay-lang/jay/asm"
	"github.com/jay-lang/jay/bytecode"
	"github.com/jay-lang/jay/libpath"
	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/tape"
)

// Loader satisfies vm.ModuleLoader. One Loader is shared by every Process
// in a run so a module compiled or read once is never re-parsed.
type Loader struct {
	resolver *libpath.Resolver
	reg      *registry.Registry

	mu      sync.Mutex
	modules map[string]*registry.Module
}

// New builds a Loader that resolves modules under resolver and installs
// them into reg, the same Registry the VM resolves classes/functions
// against (so stdlib built-ins registered there are visible to every
// loaded module's method calls).
func New(resolver *libpath.Resolver, reg *registry.Registry) *Loader {
	return &Loader{
		resolver: resolver,
		reg:      reg,
		modules:  make(map[string]*registry.Module),
	}
}

// Load resolves name to a module file, decodes it (.jb or .ja) to a Tape,
// builds the Module's Function/Class tables from the Tape's symbol
// tables, and installs it into the shared Registry. A module already
// loaded is returned as-is: top-level code must still run exactly once,
// which the VM enforces via Module.IsInitialized on the returned value.
func (l *Loader) Load(name string) (*registry.Module, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.modules[name]; ok {
		return m, nil
	}
	if m, ok := l.reg.Lookup(name); ok {
		l.modules[name] = m
		return m, nil
	}

	path, ext, err := l.resolver.Resolve(name)
	if err != nil {
		return nil, err
	}

	t, err := readTape(path, ext)
	if err != nil {
		return nil, fmt.Errorf("loading module %q: %w", name, err)
	}

	m := moduleFromTape(name, t)
	l.reg.Install(m)
	l.modules[name] = m
	return m, nil
}

func readTape(path, ext string) (*tape.Tape, error) {
	switch ext {
	case ".jb":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return bytecode.Read(f)
	case ".ja":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return asm.Read(f)
	case ".jv":
		return nil, fmt.Errorf("%s is a source file; compile it with jvc first (surface parsing is outside this loader's scope)", path)
	default:
		return nil, fmt.Errorf("unrecognized module extension %q", ext)
	}
}

// moduleFromTape builds a Module's Function and Class tables from a Tape's
// FunctionTable/ClassTable, the bridge between the compiled symbol tables
// (name -> offset) and the runtime Function/Class values the VM dispatches
// against.
func moduleFromTape(name string, t *tape.Tape) *registry.Module {
	m := registry.NewModule(name, t)

	for fname, offset := range t.FunctionTable {
		if strings.Contains(fname, ".") {
			continue // method entries are installed via ClassTable below
		}
		m.Functions[fname] = &registry.Function{
			Name:   fname,
			Module: name,
			Offset: offset,
		}
	}

	for cname, entry := range t.ClassTable {
		super := ""
		if len(entry.Supers) > 0 {
			super = entry.Supers[0]
		}
		class := registry.NewClass(cname, super)
		class.Fields = entry.Fields
		for mname, offset := range entry.FunctionRefs {
			class.AddFunction(&registry.Function{
				Name:   mname,
				Module: name,
				Class:  cname,
				Offset: offset,
			})
		}
		m.Classes[cname] = class
	}

	return m
}

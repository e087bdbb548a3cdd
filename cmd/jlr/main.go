// Command jlr loads and runs a compiled jay module (.jb or .ja): resolve
// it through libpath, install every stdlib built-in, spawn its "main"
// function as the process's first task, and drain the scheduler. --repl
// drops into an interactive bytecode assembler prompt instead, reusing the
// same asm/loader machinery one instruction block at a time.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/jay-lang/jay/asm"
	"github.com/jay-lang/jay/diagnostics"
	"github.com/jay-lang/jay/heap"
	"github.com/jay-lang/jay/libpath"
	"github.com/jay-lang/jay/loader"
	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/stdlib/register"
	"github.com/jay-lang/jay/values"
	"github.com/jay-lang/jay/version"
	"github.com/jay-lang/jay/vm"
)

func main() {
	app := &cli.Command{
		Name:      "jlr",
		Usage:     "load and run a jay bytecode module",
		Version:   version.Version(),
		ArgsUsage: "<module>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "args",
				Usage: "k=v pairs set as members of the module's args object",
			},
			&cli.StringFlag{
				Name:  "debug",
				Usage: "diagnostics level: none, basic, detailed",
				Value: "none",
			},
			&cli.BoolFlag{
				Name:  "repl",
				Usage: "drop into an interactive bytecode prompt instead of running a module",
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "project directory to resolve modules and jay.yaml from",
				Value: ".",
			},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "jlr: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	projectDir := cmd.String("path")
	manifest, err := libpath.LoadManifest(filepath.Join(projectDir, "jay.yaml"))
	if err != nil {
		return err
	}
	resolver := libpath.NewResolver(projectDir, manifest)
	reg := registry.New()
	register.All(reg)
	l := loader.New(resolver, reg)

	level, err := parseDebugLevel(cmd.String("debug"))
	if err != nil {
		return err
	}

	if cmd.Bool("repl") {
		return runREPL(reg, l, level)
	}

	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: jlr [flags] <module>")
	}
	return runModule(l, reg, level, name, cmd.StringSlice("args"))
}

func parseDebugLevel(s string) (diagnostics.DebugLevel, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return diagnostics.DebugLevelNone, nil
	case "basic":
		return diagnostics.DebugLevelBasic, nil
	case "detailed":
		return diagnostics.DebugLevelDetailed, nil
	default:
		return diagnostics.DebugLevelNone, fmt.Errorf("unknown debug level %q", s)
	}
}

func runModule(l *loader.Loader, reg *registry.Registry, level diagnostics.DebugLevel, name string, args []string) error {
	mod, err := l.Load(name)
	if err != nil {
		return err
	}
	entry, ok := mod.Functions["main"]
	if !ok {
		return fmt.Errorf("module %q has no main function", name)
	}

	proc := vm.NewProcess(l)
	proc.Registry = reg
	proc.SetRecorder(diagnostics.New(level))

	if err := proc.EnsureModuleReflection(mod); err != nil {
		return err
	}
	argsObj, err := proc.Heap.New("Object", heap.ClassHooks{})
	if err != nil {
		return err
	}
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("bad --args entry %q, want k=v", kv)
		}
		ref, err := proc.NewString(v)
		if err != nil {
			return err
		}
		proc.Heap.SetMember(argsObj.Ref(), k, values.Object(ref))
	}
	proc.Heap.SetMember(mod.Reflection, "args", values.Object(argsObj.Ref()))

	if _, err := proc.Spawn(mod, values.NilRef, entry.Offset, nil); err != nil {
		return err
	}
	proc.Run()

	if level != diagnostics.DebugLevelNone {
		fmt.Fprintln(os.Stderr, proc.Recorder.Summary())
	}
	return nil
}

// runREPL reads one line at a time (blank lines are skipped), assembles it
// with the asm package, and runs it as its own module so a
// user can experiment with raw bytecode interactively -- the closest thing
// to a shell this module has, since surface-language parsing is out of
// scope (see DESIGN.md's "loader" entry).
func runREPL(reg *registry.Registry, l *loader.Loader, level diagnostics.DebugLevel) error {
	register.All(reg)
	proc := vm.NewProcess(l)
	proc.Registry = reg
	proc.SetRecorder(diagnostics.New(level))

	prompt := "jlr> "
	var rl *readline.Instance
	var scanner *bufio.Scanner
	if isatty.IsTerminal(os.Stdin.Fd()) {
		var err error
		rl, err = readline.New(prompt)
		if err != nil {
			return err
		}
		defer rl.Close()
	} else {
		scanner = bufio.NewScanner(os.Stdin)
	}

	counter := 0
	for {
		var line string
		var err error
		if rl != nil {
			line, err = rl.Readline()
			if err != nil {
				return nil // EOF or Ctrl-D/Ctrl-C ends the session cleanly
			}
		} else {
			if !scanner.Scan() {
				return scanner.Err()
			}
			line = scanner.Text()
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		t, err := asm.Read(strings.NewReader(line + "\nRET\n"))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		counter++
		mod := registry.NewModule(fmt.Sprintf("repl%d", counter), t)
		reg.Install(mod)

		task, err := proc.Spawn(mod, values.NilRef, 0, nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		proc.Run()
		fmt.Println(proc.Render(task.Resval))
	}
}

// Command jvc is the bytecode assembler driver: it turns a textual .ja
// module into a binary .jb one, or back again, since surface parsing of
// .jv source is outside this module's scope (see DESIGN.md's "loader"
// entry) -- jvc operates purely on the two compiled artifact formats the
// asm and bytecode packages already implement.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jay-lang/jay/asm"
	"github.com/jay-lang/jay/bytecode"
	"github.com/jay-lang/jay/version"
)

func main() {
	app := &cli.Command{
		Name:    "jvc",
		Usage:   "assemble and disassemble jay bytecode modules",
		Version: version.Version(),
		Commands: []*cli.Command{
			assembleCommand,
			disassembleCommand,
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "jvc: %v\n", err)
		os.Exit(1)
	}
}

var assembleCommand = &cli.Command{
	Name:      "assemble",
	Usage:     "compile a .ja textual module into a .jb binary module",
	ArgsUsage: "<in.ja> [out.jb]",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		in := cmd.Args().First()
		if in == "" {
			return fmt.Errorf("usage: jvc assemble <in.ja> [out.jb]")
		}
		out := cmd.Args().Get(1)
		if out == "" {
			out = strings.TrimSuffix(in, ".ja") + ".jb"
		}

		src, err := os.Open(in)
		if err != nil {
			return err
		}
		defer src.Close()

		t, err := asm.Read(src)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", in, err)
		}

		dst, err := os.Create(out)
		if err != nil {
			return err
		}
		defer dst.Close()

		if err := bytecode.Write(dst, t); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		fmt.Printf("wrote %s\n", out)
		return nil
	},
}

var disassembleCommand = &cli.Command{
	Name:      "disassemble",
	Usage:     "decode a .jb binary module back into readable .ja text",
	ArgsUsage: "<in.jb> [out.ja]",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		in := cmd.Args().First()
		if in == "" {
			return fmt.Errorf("usage: jvc disassemble <in.jb> [out.ja]")
		}
		out := cmd.Args().Get(1)
		if out == "" {
			out = strings.TrimSuffix(in, ".jb") + ".ja"
		}

		src, err := os.Open(in)
		if err != nil {
			return err
		}
		defer src.Close()

		t, err := bytecode.Read(src)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", in, err)
		}

		dst, err := os.Create(out)
		if err != nil {
			return err
		}
		defer dst.Close()

		if err := asm.Write(dst, t); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		fmt.Printf("wrote %s\n", out)
		return nil
	},
}

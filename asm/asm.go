// Package asm implements the textual assembly format (.ja): a
// human-readable, re-assemblable rendering of a Tape, satisfying spec.md
// §6's "Textual assembly" external-collaborator contract. Grounded on
// opcodes.Instruction.String() and the opcode name tables in
// opcodes/opcodes.go -- Write reuses the same "OP arg" shape Instruction's
// own Stringer produces, and Read is its inverse.
package asm

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/jay-lang/jay/opcodes"
	"github.com/jay-lang/jay/tape"
)

// Write renders t as textual assembly: a header of .module/.function/
// .class directives naming the symbol tables, a blank line, then one
// instruction per line in declaration order.
func Write(w io.Writer, t *tape.Tape) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, ".module %s\n", t.ModuleName)

	names := sortedKeys(t.FunctionTable)
	for _, name := range names {
		fmt.Fprintf(bw, ".function %s %d\n", name, t.FunctionTable[name])
	}

	classNames := make([]string, 0, len(t.ClassTable))
	for name := range t.ClassTable {
		classNames = append(classNames, name)
	}
	sort.Strings(classNames)
	for _, name := range classNames {
		entry := t.ClassTable[name]
		fmt.Fprintf(bw, ".class %s\n", name)
		for _, super := range entry.Supers {
			fmt.Fprintf(bw, ".super %s\n", super)
		}
		for _, field := range entry.Fields {
			fmt.Fprintf(bw, ".field %s\n", field)
		}
		for _, mname := range sortedKeys(entry.FunctionRefs) {
			fmt.Fprintf(bw, ".method %s %d\n", mname, entry.FunctionRefs[mname])
		}
	}

	fmt.Fprintln(bw)
	for _, ins := range t.Instructions {
		fmt.Fprintln(bw, ins.String())
	}
	return bw.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Read parses textual assembly back into a Tape. Every directive must
// appear before the first instruction line; a blank line ends the header
// (the header is optional -- a bare instruction stream with no directives
// parses as an anonymous module with no symbol table entries).
func Read(r io.Reader) (*tape.Tape, error) {
	t := tape.New("")
	scanner := bufio.NewScanner(r)
	var curClass *tape.ClassEntry
	inHeader := true

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if inHeader {
				inHeader = false
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if inHeader && strings.HasPrefix(line, ".") {
			if err := parseDirective(t, line, &curClass); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			continue
		}
		inHeader = false
		ins, err := parseInstruction(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		t.Instructions = append(t.Instructions, ins)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func parseDirective(t *tape.Tape, line string, curClass **tape.ClassEntry) error {
	fields := strings.SplitN(line, " ", 3)
	switch fields[0] {
	case ".module":
		if len(fields) < 2 {
			return fmt.Errorf(".module requires a name")
		}
		t.ModuleName = fields[1]
	case ".function":
		if len(fields) < 3 {
			return fmt.Errorf(".function requires a name and offset")
		}
		off, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf(".function offset: %w", err)
		}
		t.FunctionTable[fields[1]] = off
	case ".class":
		if len(fields) < 2 {
			return fmt.Errorf(".class requires a name")
		}
		entry := &tape.ClassEntry{FunctionRefs: make(map[string]int)}
		t.ClassTable[fields[1]] = entry
		*curClass = entry
	case ".super":
		if *curClass == nil {
			return fmt.Errorf(".super outside a .class block")
		}
		(*curClass).Supers = append((*curClass).Supers, fields[1])
	case ".field":
		if *curClass == nil {
			return fmt.Errorf(".field outside a .class block")
		}
		(*curClass).Fields = append((*curClass).Fields, fields[1])
	case ".method":
		if *curClass == nil {
			return fmt.Errorf(".method outside a .class block")
		}
		if len(fields) < 3 {
			return fmt.Errorf(".method requires a name and offset")
		}
		off, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf(".method offset: %w", err)
		}
		(*curClass).FunctionRefs[fields[1]] = off
	default:
		return fmt.Errorf("unknown directive %q", fields[0])
	}
	return nil
}

func parseInstruction(line string) (opcodes.Instruction, error) {
	opName, rest, hasArg := strings.Cut(line, " ")
	op, ok := opcodes.Lookup(opName)
	if !ok {
		return opcodes.Instruction{}, fmt.Errorf("unknown opcode %q", opName)
	}
	if !hasArg || strings.TrimSpace(rest) == "" {
		return opcodes.Instruction{Op: op, Arg: opcodes.NoArg()}, nil
	}
	rest = strings.TrimSpace(rest)
	return opcodes.Instruction{Op: op, Arg: parseArg(rest)}, nil
}

func parseArg(tok string) opcodes.Arg {
	switch {
	case strings.HasPrefix(tok, `"`) && strings.HasSuffix(tok, `"`) && len(tok) >= 2:
		return opcodes.StringArg(tok)
	case strings.HasPrefix(tok, "'") && strings.HasSuffix(tok, "'") && len(tok) == 3:
		return opcodes.CharArg(int8(tok[1]))
	default:
		if f, err := strconv.ParseFloat(tok, 64); err == nil && strings.ContainsAny(tok, ".eE") {
			return opcodes.FloatArg(f)
		}
		if n, err := strconv.ParseInt(tok, 10, 32); err == nil {
			return opcodes.IntArg(int32(n))
		}
		return opcodes.IDArg(tok)
	}
}

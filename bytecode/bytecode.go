// Package bytecode implements the binary object format (.jb): a compact,
// versioned encoding of a Tape using encoding/binary, satisfying spec.md's
// out-of-scope "binary bytecode codec" external-collaborator contract so a
// compiled module can be distributed without its source.
package bytecode

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/jay-lang/jay/opcodes"
	"github.com/jay-lang/jay/tape"
)

// Magic identifies a .jb file; Version gates format changes so a loader can
// refuse a file produced by an incompatible encoder.
const (
	Magic   uint32 = 0x4a41594a // "JAYJ"
	Version uint16 = 1
)

// Write encodes t in binary form to w.
func Write(w io.Writer, t *tape.Tape) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}

	e.u32(Magic)
	e.u16(Version)
	e.str(t.ModuleName)
	e.str(t.SourceFile)

	e.u32(uint32(len(t.FunctionTable)))
	for name, off := range t.FunctionTable {
		e.str(name)
		e.u32(uint32(off))
	}

	e.u32(uint32(len(t.ClassTable)))
	for name, entry := range t.ClassTable {
		e.str(name)
		e.u32(uint32(len(entry.Supers)))
		for _, s := range entry.Supers {
			e.str(s)
		}
		e.u32(uint32(len(entry.Fields)))
		for _, f := range entry.Fields {
			e.str(f)
		}
		e.u32(uint32(len(entry.FunctionRefs)))
		for mname, off := range entry.FunctionRefs {
			e.str(mname)
			e.u32(uint32(off))
		}
	}

	e.u32(uint32(len(t.Lines)))
	for ip, line := range t.Lines {
		e.u32(uint32(ip))
		e.u32(uint32(line))
	}

	e.u32(uint32(len(t.Instructions)))
	for _, ins := range t.Instructions {
		e.instruction(ins)
	}

	if e.err != nil {
		return e.err
	}
	return bw.Flush()
}

// Read decodes a binary tape produced by Write.
func Read(r io.Reader) (*tape.Tape, error) {
	d := &decoder{r: bufio.NewReader(r)}

	if magic := d.u32(); magic != Magic {
		return nil, fmt.Errorf("bytecode: bad magic %#x", magic)
	}
	if ver := d.u16(); ver != Version {
		return nil, fmt.Errorf("bytecode: unsupported version %d", ver)
	}

	t := tape.New(d.str())
	t.SourceFile = d.str()

	for n := d.u32(); n > 0; n-- {
		name := d.str()
		t.FunctionTable[name] = int(d.u32())
	}

	for n := d.u32(); n > 0; n-- {
		name := d.str()
		entry := &tape.ClassEntry{FunctionRefs: make(map[string]int)}
		for m := d.u32(); m > 0; m-- {
			entry.Supers = append(entry.Supers, d.str())
		}
		for m := d.u32(); m > 0; m-- {
			entry.Fields = append(entry.Fields, d.str())
		}
		for m := d.u32(); m > 0; m-- {
			mname := d.str()
			entry.FunctionRefs[mname] = int(d.u32())
		}
		t.ClassTable[name] = entry
	}

	for n := d.u32(); n > 0; n-- {
		ip := int(d.u32())
		t.Lines[ip] = int(d.u32())
	}

	count := d.u32()
	t.Instructions = make([]opcodes.Instruction, 0, count)
	for n := count; n > 0; n-- {
		t.Instructions = append(t.Instructions, d.instruction())
	}

	if d.err != nil {
		return nil, d.err
	}
	return t, nil
}

type encoder struct {
	w   io.Writer
	err error
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *encoder) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.write(b[:])
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.write(b[:])
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.write(b[:])
}

func (e *encoder) i8(v int8) {
	e.write([]byte{byte(v)})
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.write([]byte(s))
}

func (e *encoder) instruction(ins opcodes.Instruction) {
	e.write([]byte{byte(ins.Op), byte(ins.Arg.Kind)})
	switch ins.Arg.Kind {
	case opcodes.ArgNone:
	case opcodes.ArgID, opcodes.ArgString:
		e.str(ins.Arg.Text)
	case opcodes.ArgPrimitive:
		flags := byte(0)
		if ins.Arg.IsFloat {
			flags |= 1
		}
		if ins.Arg.IsChar {
			flags |= 2
		}
		e.write([]byte{flags})
		switch {
		case ins.Arg.IsFloat:
			e.u64(math.Float64bits(ins.Arg.FloatVal))
		case ins.Arg.IsChar:
			e.i8(int8(ins.Arg.IntVal))
		default:
			e.u32(uint32(ins.Arg.IntVal))
		}
	}
}

type decoder struct {
	r   *bufio.Reader
	err error
}

func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return make([]byte, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = err
	}
	return b
}

func (d *decoder) u16() uint16 { return binary.BigEndian.Uint16(d.read(2)) }
func (d *decoder) u32() uint32 { return binary.BigEndian.Uint32(d.read(4)) }
func (d *decoder) u64() uint64 { return binary.BigEndian.Uint64(d.read(8)) }
func (d *decoder) i8() int8    { return int8(d.read(1)[0]) }

func (d *decoder) str() string {
	n := d.u32()
	return string(d.read(int(n)))
}

func (d *decoder) instruction() opcodes.Instruction {
	header := d.read(2)
	op := opcodes.Op(header[0])
	kind := opcodes.ArgKind(header[1])
	switch kind {
	case opcodes.ArgNone:
		return opcodes.Instruction{Op: op, Arg: opcodes.NoArg()}
	case opcodes.ArgID:
		return opcodes.Instruction{Op: op, Arg: opcodes.IDArg(d.str())}
	case opcodes.ArgString:
		return opcodes.Instruction{Op: op, Arg: opcodes.StringArg(d.str())}
	case opcodes.ArgPrimitive:
		flags := d.read(1)[0]
		switch {
		case flags&1 != 0:
			return opcodes.Instruction{Op: op, Arg: opcodes.FloatArg(math.Float64frombits(d.u64()))}
		case flags&2 != 0:
			return opcodes.Instruction{Op: op, Arg: opcodes.CharArg(d.i8())}
		default:
			return opcodes.Instruction{Op: op, Arg: opcodes.IntArg(int32(d.u32()))}
		}
	default:
		return opcodes.Instruction{Op: op, Arg: opcodes.NoArg()}
	}
}

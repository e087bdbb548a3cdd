package vm

import (
	"fmt"
	"os"

	"github.com/jay-lang/jay/heap"
	"github.com/jay-lang/jay/opcodes"
	"github.com/jay-lang/jay/values"
)

// haltSignal is exec's sentinel return for EXIT: it stops the whole
// process, unlike an ordinary error which only unwinds the current task.
type haltSignal struct{}

func (haltSignal) Error() string { return "halt" }

var errHalt error = haltSignal{}

// runTask drives task until it suspends (a non-native call, a module
// import, or an arraylike/equality fallback dispatch), completes (its
// context stack empties), or errors with nothing left to catch it.
func (p *Process) runTask(task *Task) TaskState {
	if task.ChildTaskHasError {
		if cur := task.current(); cur != nil && task.Resval.Kind() == values.KindObject {
			cur.Error = task.Resval.ObjectRef()
		}
		task.ChildTaskHasError = false
	}

	for {
		cur := task.current()
		if cur == nil {
			task.State = TaskComplete
			return TaskComplete
		}
		if cur.Error != values.NilRef {
			if !p.unwind(task) {
				task.State = TaskError
				return TaskError
			}
			continue
		}

		ins := cur.Module.Tape.Instructions
		if cur.IP < 0 || cur.IP >= len(ins) {
			// Falling off the end of a block with no explicit RET or BBLK
			// resumes whatever block (or nothing, ending the task) enclosed
			// it -- one frame at a time, same as BBLK.
			task.popContext()
			continue
		}

		suspend, err := p.exec(task, cur)
		if err == errHalt {
			task.Contexts = nil
			task.State = TaskComplete
			p.halted = true
			return TaskComplete
		}
		if err != nil {
			p.raise(task, cur, err)
			continue
		}
		if suspend {
			task.State = TaskWaiting
			return TaskWaiting
		}
	}
}

// unwind looks for a live catch target, starting at the context holding
// the error and walking outward. Finding one resumes execution there with
// Resval holding the Error object; exhausting the context stack instead
// leaves Resval holding it for whatever is waiting on this task.
func (p *Process) unwind(task *Task) bool {
	for {
		cur := task.current()
		if cur == nil {
			return false
		}
		if cur.CatchIns >= 0 {
			task.Resval = values.Object(cur.Error)
			cur.IP = cur.CatchIns
			cur.CatchIns = -1
			cur.Error = values.NilRef
			return true
		}
		errRef := cur.Error
		task.popContext()
		parent := task.current()
		if parent == nil {
			task.Resval = values.Object(errRef)
			return false
		}
		parent.Error = errRef
	}
}

// raise turns a Go error surfaced by exec into catchable VM state: an
// InternalError means malformed bytecode and kills the task outright
// (never reaches user code); anything else becomes an Error object with a
// captured trace, installed on the raising context so the next loop
// iteration's unwind check picks it up.
func (p *Process) raise(task *Task, cur *Context, cause error) {
	if ierr, ok := cause.(*InternalError); ok {
		fmt.Fprintln(os.Stderr, ierr.Error())
		task.Contexts = nil
		task.Resval = values.Nil()
		return
	}
	vmErr, ok := cause.(*VMError)
	if !ok {
		vmErr = Errorf("%s", cause.Error())
	}
	vmErr.Trace = p.trace(task)
	ref, err := p.newErrorObject(vmErr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		task.Contexts = nil
		return
	}
	cur.Error = ref
}

func (p *Process) trace(task *Task) []StackLine {
	var lines []StackLine
	for i := len(task.Contexts) - 1; i >= 0; i-- {
		c := task.Contexts[i]
		text := ""
		if c.IP >= 0 && c.IP < len(c.Module.Tape.Instructions) {
			text = c.Module.Tape.Instructions[c.IP].String()
		}
		lines = append(lines, StackLine{Module: c.Module.Name, Line: c.Module.Tape.LineAt(c.IP), Text: text})
	}
	return lines
}

func (p *Process) newErrorObject(vmErr *VMError) (values.Ref, error) {
	obj, err := p.Heap.New("Error", heap.ClassHooks{})
	if err != nil {
		return values.NilRef, err
	}
	msgRef, err := p.NewString(vmErr.Msg)
	if err != nil {
		return values.NilRef, err
	}
	p.Heap.SetMember(obj.Ref(), "msg", values.Object(msgRef))

	traceObj, err := p.Heap.NewArray()
	if err == nil {
		for _, line := range vmErr.Trace {
			lineObj, err := p.Heap.New("StackLine", heap.ClassHooks{})
			if err != nil {
				continue
			}
			if modRef, err := p.NewString(line.Module); err == nil {
				p.Heap.SetMember(lineObj.Ref(), "module", values.Object(modRef))
			}
			p.Heap.SetMember(lineObj.Ref(), "line", values.Int(int32(line.Line)))
			if textRef, err := p.NewString(line.Text); err == nil {
				p.Heap.SetMember(lineObj.Ref(), "text", values.Object(textRef))
			}
			p.Heap.ArrayAppend(traceObj.Ref(), values.Object(lineObj.Ref()))
		}
		p.Heap.SetMember(obj.Ref(), "trace", values.Object(traceObj.Ref()))
	}
	return obj.Ref(), nil
}

// resolveOperand materializes the value an Arg names: a local variable for
// ArgID, a freshly built char-array for ArgString, the literal itself for
// ArgPrimitive. ArgNone has no value of its own; callers branch on it
// before reaching here.
func (p *Process) resolveOperand(cur *Context, arg opcodes.Arg) (values.Entity, error) {
	switch arg.Kind {
	case opcodes.ArgID:
		if arg.Text == "nil" {
			return values.Nil(), nil
		}
		v, _ := cur.Lookup(p.Heap, arg.Text)
		return v, nil
	case opcodes.ArgString:
		ref, err := p.NewString(unquote(arg.Text))
		if err != nil {
			return values.Nil(), err
		}
		return values.Object(ref), nil
	case opcodes.ArgPrimitive:
		if arg.IsFloat {
			return values.Float(arg.FloatVal), nil
		}
		if arg.IsChar {
			return values.Char(int8(arg.IntVal)), nil
		}
		return values.Int(arg.IntVal), nil
	default:
		return values.Nil(), nil
	}
}

// binaryOperands resolves the two operands a dual-form arithmetic/
// comparison op acts on: a bare op pops both off the stack, an op carrying
// an operand reads its left side straight out of Resval (the simpleMath
// peephole's whole reason for existing) and its right side from the arg.
func (p *Process) binaryOperands(task *Task, cur *Context, arg opcodes.Arg) (values.Entity, values.Entity, error) {
	if arg.Kind == opcodes.ArgNone {
		rhs, ok := task.pop()
		if !ok {
			return values.Nil(), values.Nil(), internalf("stack underflow")
		}
		lhs, ok := task.pop()
		if !ok {
			return values.Nil(), values.Nil(), internalf("stack underflow")
		}
		return lhs, rhs, nil
	}
	rhs, err := p.resolveOperand(cur, arg)
	if err != nil {
		return values.Nil(), values.Nil(), err
	}
	return task.Resval, rhs, nil
}

// exec performs the single instruction at cur.IP, advancing cur.IP first so
// that a suspending op's saved resume point is always the instruction
// right after it -- exactly where the dependent task's completion hands
// control back.
func (p *Process) exec(task *Task, cur *Context) (bool, error) {
	p.Recorder.Observe(cur.Module.Name, cur.IP)
	ins := cur.Module.Tape.Instructions[cur.IP]
	op, arg := ins.Op, ins.Arg
	cur.IP++

	switch op {
	case opcodes.NOP, opcodes.GOTO:
		// structural only; GOTO survives in the tape as a label marker but
		// never itself branches.

	case opcodes.EXIT:
		return false, errHalt

	case opcodes.RES:
		if arg.Kind == opcodes.ArgNone {
			v, ok := task.pop()
			if !ok {
				return false, internalf("RES: stack underflow")
			}
			task.Resval = v
		} else {
			v, err := p.resolveOperand(cur, arg)
			if err != nil {
				return false, err
			}
			task.Resval = v
		}

	case opcodes.PUSH:
		if arg.Kind == opcodes.ArgNone {
			task.push(task.Resval)
		} else {
			v, err := p.resolveOperand(cur, arg)
			if err != nil {
				return false, err
			}
			task.push(v)
		}

	case opcodes.PEEK:
		v, ok := task.pop()
		if !ok {
			return false, internalf("PEEK: stack underflow")
		}
		task.Resval = v
		task.push(v)

	case opcodes.PSRS:
		v, err := p.resolveOperand(cur, arg)
		if err != nil {
			return false, err
		}
		task.push(v)
		task.Resval = v

	case opcodes.DUP:
		v, ok := task.peek()
		if !ok {
			return false, internalf("DUP: stack underflow")
		}
		task.push(v)

	case opcodes.PNIL:
		task.push(values.Nil())

	case opcodes.RNIL:
		task.Resval = values.Nil()

	case opcodes.LET:
		cur.Let(p.Heap, arg.Text, task.Resval)

	case opcodes.SET:
		cur.Set(p.Heap, arg.Text, task.Resval)

	case opcodes.GET:
		obj, ok := p.Heap.Get(cur.Self)
		if !ok {
			return false, Errorf("GET %s: no receiver in this context", arg.Text)
		}
		v, _ := obj.Members.Get(arg.Text)
		task.Resval = v

	case opcodes.GTSH:
		obj, ok := p.Heap.Get(cur.Self)
		if !ok {
			return false, Errorf("GTSH %s: no receiver in this context", arg.Text)
		}
		v, _ := obj.Members.Get(arg.Text)
		task.Resval = v
		task.push(v)

	case opcodes.FLD:
		recv, ok := task.pop()
		if !ok {
			return false, internalf("FLD: stack underflow")
		}
		if recv.Kind() != values.KindObject {
			return false, Errorf("cannot read field %s of a %s", arg.Text, recv.Kind())
		}
		obj, ok := p.Heap.Get(recv.ObjectRef())
		if !ok {
			return false, internalf("FLD: dangling reference")
		}
		v, _ := obj.Members.Get(arg.Text)
		task.Resval = v

	case opcodes.JMP:
		cur.IP += int(arg.IntVal)

	case opcodes.IF:
		if task.Resval.Truthy() {
			cur.IP += int(arg.IntVal)
		}

	case opcodes.IFN:
		if !task.Resval.Truthy() {
			cur.IP += int(arg.IntVal)
		}

	case opcodes.NBLK:
		child, err := newContext(p, task, cur.Module, cur.Self, cur)
		if err != nil {
			return false, err
		}
		child.IP = cur.IP
		task.pushContext(child)

	case opcodes.BBLK:
		popped := task.popContext()
		if parent := task.current(); parent != nil && popped != nil {
			parent.IP = popped.IP
		}

	case opcodes.RET:
		task.Contexts = nil

	case opcodes.CTCH:
		cur.CatchIns = cur.IP + int(arg.IntVal)

	case opcodes.RAIS:
		val, ok := task.pop()
		if !ok {
			return false, internalf("RAIS: stack underflow")
		}
		if val.Kind() == values.KindObject {
			if obj, ok := p.Heap.Get(val.ObjectRef()); ok && obj.Class == "Error" {
				cur.Error = val.ObjectRef()
				return false, nil
			}
		}
		return false, Errorf("%s", p.Render(val))

	case opcodes.CALL:
		if arg.Kind == opcodes.ArgID {
			return p.callID(task, cur, arg.Text)
		}
		return p.callBare(task, cur)

	case opcodes.CLLN:
		task.Resval = values.Nil()
		if arg.Kind == opcodes.ArgID {
			return p.callID(task, cur, arg.Text)
		}
		return p.callBare(task, cur)

	case opcodes.ADD, opcodes.SUB, opcodes.MULT, opcodes.DIV, opcodes.MOD:
		lhs, rhs, err := p.binaryOperands(task, cur, arg)
		if err != nil {
			return false, err
		}
		var result values.Entity
		switch op {
		case opcodes.ADD:
			result, err = values.Add(lhs, rhs)
		case opcodes.SUB:
			result, err = values.Sub(lhs, rhs)
		case opcodes.MULT:
			result, err = values.Mult(lhs, rhs)
		case opcodes.DIV:
			result, err = values.Div(lhs, rhs)
		case opcodes.MOD:
			result, err = values.Mod(lhs, rhs)
		}
		if err != nil {
			return false, Errorf("%s", err.Error())
		}
		task.Resval = result

	case opcodes.LT, opcodes.GT, opcodes.LTE, opcodes.GTE:
		lhs, rhs, err := p.binaryOperands(task, cur, arg)
		if err != nil {
			return false, err
		}
		c, err := values.Compare(lhs, rhs)
		if err != nil {
			return false, Errorf("%s", err.Error())
		}
		var b bool
		switch op {
		case opcodes.LT:
			b = c < 0
		case opcodes.GT:
			b = c > 0
		case opcodes.LTE:
			b = c <= 0
		case opcodes.GTE:
			b = c >= 0
		}
		task.Resval = boolEntity(b)

	case opcodes.EQ:
		return p.execEq(task, cur, arg, false)

	case opcodes.NEQ:
		return p.execEq(task, cur, arg, true)

	case opcodes.AND, opcodes.OR, opcodes.XOR:
		rhs, ok := task.pop()
		if !ok {
			return false, internalf("%s: stack underflow", op)
		}
		lhs, ok := task.pop()
		if !ok {
			return false, internalf("%s: stack underflow", op)
		}
		var result values.Entity
		var err error
		switch op {
		case opcodes.AND:
			result, err = values.BitAnd(lhs, rhs)
		case opcodes.OR:
			result, err = values.BitOr(lhs, rhs)
		case opcodes.XOR:
			result, err = values.BitXor(lhs, rhs)
		}
		if err != nil {
			return false, Errorf("%s", err.Error())
		}
		task.Resval = result

	case opcodes.NOT:
		task.Resval = boolEntity(!task.Resval.Truthy())

	case opcodes.NOTC:
		if task.Resval.Truthy() {
			task.Resval = values.Int(0)
		} else {
			task.Resval = values.Int(1)
		}

	case opcodes.INC, opcodes.DEC, opcodes.FINC, opcodes.FDEC, opcodes.SINC:
		cv, _ := cur.Lookup(p.Heap, arg.Text)
		var nv values.Entity
		switch op {
		case opcodes.INC, opcodes.SINC:
			nv = values.Inc(cv)
		case opcodes.DEC:
			nv = values.Dec(cv)
		case opcodes.FINC:
			nv, _ = values.Add(cv, values.Float(1))
		case opcodes.FDEC:
			nv, _ = values.Sub(cv, values.Float(1))
		}
		cur.Set(p.Heap, arg.Text, nv)
		task.Resval = nv

	case opcodes.ANEW:
		obj, err := p.Heap.NewArray()
		if err != nil {
			return false, err
		}
		task.Resval = values.Object(obj.Ref())
		task.push(task.Resval)

	case opcodes.AIDX:
		return p.execAidx(task, cur)

	case opcodes.ASET:
		return p.execAset(task, cur)

	case opcodes.TUPL:
		n := int(arg.IntVal)
		if n < 0 || n > len(task.Stack) {
			return false, internalf("TUPL %d: stack underflow", n)
		}
		elems := make([]values.Entity, n)
		for i := n - 1; i >= 0; i-- {
			elems[i], _ = task.pop()
		}
		obj, err := p.Heap.NewTuple(elems)
		if err != nil {
			return false, err
		}
		task.Resval = values.Object(obj.Ref())
		task.push(task.Resval)

	case opcodes.TLEN:
		v, ok := task.peek()
		if !ok || v.Kind() != values.KindObject {
			return false, Errorf("TLEN: top of stack is not a tuple")
		}
		task.Resval = values.Int(int32(p.Heap.TupleLen(v.ObjectRef())))

	case opcodes.TGET:
		v, ok := task.peek()
		if !ok || v.Kind() != values.KindObject {
			return false, Errorf("TGET: top of stack is not a tuple")
		}
		elem, ok := p.Heap.TupleGet(v.ObjectRef(), int(arg.IntVal))
		if !ok {
			return false, Errorf("tuple index %d out of range", arg.IntVal)
		}
		task.Resval = elem

	case opcodes.TGTE, opcodes.TLTE, opcodes.TEQ:
		rhs, ok := task.pop()
		if !ok {
			return false, internalf("%s: stack underflow", op)
		}
		lhs, ok := task.pop()
		if !ok {
			return false, internalf("%s: stack underflow", op)
		}
		if lhs.Kind() != values.KindObject || rhs.Kind() != values.KindObject {
			return false, Errorf("%s requires two tuples", op)
		}
		c, err := p.tupleCompare(lhs.ObjectRef(), rhs.ObjectRef())
		if err != nil {
			return false, err
		}
		var b bool
		switch op {
		case opcodes.TGTE:
			b = c >= 0
		case opcodes.TLTE:
			b = c <= 0
		case opcodes.TEQ:
			b = c == 0
		}
		task.Resval = boolEntity(b)

	case opcodes.LMDL:
		return p.doImport(task, cur, arg.Text)

	case opcodes.IS:
		recv, ok := task.pop()
		if !ok {
			return false, internalf("IS %s: stack underflow", arg.Text)
		}
		result := false
		if recv.Kind() == values.KindObject {
			if obj, ok := p.Heap.Get(recv.ObjectRef()); ok {
				result = p.isInstance(cur.Module, obj.Class, arg.Text)
			}
		}
		task.Resval = boolEntity(result)

	case opcodes.ADR:
		recv, ok := task.pop()
		if !ok {
			return false, internalf("ADR: stack underflow")
		}
		task.Resval = values.Nil()
		if recv.Kind() == values.KindObject {
			if obj, ok := p.Heap.Get(recv.ObjectRef()); ok {
				if class, ok := p.Registry.LookupClass(cur.Module, obj.Class); ok {
					if err := p.ensureClassReflection(class); err != nil {
						return false, err
					}
					task.Resval = values.Object(class.Reflection)
				}
			}
		}

	case opcodes.CNST:
		v, ok := cur.Module.Constants[arg.Text]
		if !ok {
			return false, Errorf("constant %q is not defined", arg.Text)
		}
		task.Resval = v

	case opcodes.SETC, opcodes.LETC:
		cur.Module.Constants[arg.Text] = task.Resval

	case opcodes.SGET:
		obj, ok := p.Heap.Get(cur.Self)
		if !ok {
			return false, Errorf("SGET %s: no receiver in this context", arg.Text)
		}
		v, _ := p.staticLookup(cur.Module, obj.Class, arg.Text)
		task.Resval = v

	case opcodes.PRNT:
		v, ok := task.pop()
		if !ok {
			return false, internalf("PRNT: stack underflow")
		}
		fmt.Println(p.Render(v))

	default:
		return false, internalf("unimplemented opcode %s", op)
	}
	return false, nil
}

// execEq implements EQ/NEQ: an Object receiver with an EQ_FN_NAME/
// NEQ_FN_NAME method overload gets the call dispatched to it (which may
// suspend); everything else compares by promoted primitive value, or by
// reference for two Objects with no overload. Like the arithmetic and
// comparison ops, EQ/NEQ carries the dual bare/arg-carrying form the
// simpleMath peephole produces, so operands are resolved the same way
// binaryOperands resolves them for LT/GT/etc.
func (p *Process) execEq(task *Task, cur *Context, arg opcodes.Arg, negate bool) (bool, error) {
	lhs, rhs, err := p.binaryOperands(task, cur, arg)
	if err != nil {
		return false, err
	}

	if lhs.Kind() == values.KindObject {
		ref := lhs.ObjectRef()
		methodName := eqFnName
		if negate {
			methodName = neqFnName
		}
		if obj, ok := p.Heap.Get(ref); ok {
			if _, err := p.Registry.ResolveMethod(cur.Module, obj.Class, methodName); err == nil {
				task.Resval = rhs
				return p.invokeMethod(task, ref, cur.Module, methodName)
			}
		}
		eq := rhs.Kind() == values.KindObject && rhs.ObjectRef() == ref
		if negate {
			eq = !eq
		}
		task.Resval = boolEntity(eq)
		return false, nil
	}
	if rhs.Kind() == values.KindObject {
		task.Resval = boolEntity(negate)
		return false, nil
	}
	eq, err := values.PrimitiveEqual(lhs, rhs)
	if err != nil {
		return false, err
	}
	if negate {
		eq = !eq
	}
	task.Resval = boolEntity(eq)
	return false, nil
}

// execAidx implements AIDX: Array/Tuple receivers index directly, anything
// else falls back to its ARRAYLIKE_INDEX_KEY method (which may suspend).
func (p *Process) execAidx(task *Task, cur *Context) (bool, error) {
	idxEnt, ok := task.pop()
	if !ok {
		return false, internalf("AIDX: stack underflow")
	}
	recvEnt, ok := task.pop()
	if !ok {
		return false, internalf("AIDX: stack underflow")
	}
	if recvEnt.Kind() != values.KindObject {
		return false, Errorf("cannot index a %s", recvEnt.Kind())
	}
	ref := recvEnt.ObjectRef()
	obj, ok := p.Heap.Get(ref)
	if !ok {
		return false, internalf("AIDX: dangling reference")
	}
	switch obj.Class {
	case "Array":
		idx := int(idxEnt.IntValue())
		v, ok := p.Heap.ArrayGet(ref, idx)
		if !ok {
			return false, Errorf("array index %d out of range", idx)
		}
		task.Resval = v
		return false, nil
	case "Tuple":
		idx := int(idxEnt.IntValue())
		v, ok := p.Heap.TupleGet(ref, idx)
		if !ok {
			return false, Errorf("tuple index %d out of range", idx)
		}
		task.Resval = v
		return false, nil
	default:
		task.Resval = idxEnt
		return p.invokeMethod(task, ref, cur.Module, arrayIndexKey)
	}
}

// execAset implements ASET: Array receivers store directly, tuples refuse
// (fixed-length), anything else falls back to ARRAYLIKE_SET_KEY with the
// (index, value) pair boxed as a 2-tuple argument.
func (p *Process) execAset(task *Task, cur *Context) (bool, error) {
	valEnt, ok := task.pop()
	if !ok {
		return false, internalf("ASET: stack underflow")
	}
	idxEnt, ok := task.pop()
	if !ok {
		return false, internalf("ASET: stack underflow")
	}
	recvEnt, ok := task.pop()
	if !ok {
		return false, internalf("ASET: stack underflow")
	}
	if recvEnt.Kind() != values.KindObject {
		return false, Errorf("cannot index-assign a %s", recvEnt.Kind())
	}
	ref := recvEnt.ObjectRef()
	obj, ok := p.Heap.Get(ref)
	if !ok {
		return false, internalf("ASET: dangling reference")
	}
	switch obj.Class {
	case "Array":
		idx := int(idxEnt.IntValue())
		p.Heap.ArraySet(ref, idx, valEnt)
		task.Resval = valEnt
		return false, nil
	case "Tuple":
		return false, Errorf("cannot assign into a tuple")
	default:
		tup, err := p.Heap.NewTuple([]values.Entity{idxEnt, valEnt})
		if err != nil {
			return false, err
		}
		task.Resval = values.Object(tup.Ref())
		return p.invokeMethod(task, ref, cur.Module, arraySetKey)
	}
}

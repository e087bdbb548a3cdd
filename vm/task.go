package vm

import (
	"github.com/google/uuid"

	"github.com/jay-lang/jay/values"
)

// TaskState is the scheduler-visible lifecycle of a Task.
type TaskState byte

const (
	TaskCreated TaskState = iota
	TaskRunning
	TaskWaiting
	TaskComplete
	TaskError
)

func (s TaskState) String() string {
	switch s {
	case TaskCreated:
		return "Created"
	case TaskRunning:
		return "Running"
	case TaskWaiting:
		return "Waiting"
	case TaskComplete:
		return "Complete"
	case TaskError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Task is a user-visible unit of execution: a stack of call frames, one
// operand stack, and the resval register those frames share.
type Task struct {
	ID                uuid.UUID
	Contexts          []*Context
	Stack             []values.Entity
	Resval            values.Entity
	DependentTask     *Task
	State             TaskState
	WaitReason        string
	ChildTaskHasError bool
	Reflection        values.Ref

	// ReturnOverride replaces Resval when this task hands control back to
	// its dependent, used by constructor dispatch: "new Foo()" yields the
	// new instance regardless of what the constructor body itself returns.
	ReturnOverride *values.Entity
}

func newTask() *Task {
	return &Task{ID: uuid.New(), State: TaskCreated, Resval: values.Nil()}
}

func (t *Task) current() *Context {
	if len(t.Contexts) == 0 {
		return nil
	}
	return t.Contexts[len(t.Contexts)-1]
}

func (t *Task) pushContext(c *Context) { t.Contexts = append(t.Contexts, c) }

func (t *Task) popContext() *Context {
	if len(t.Contexts) == 0 {
		return nil
	}
	c := t.Contexts[len(t.Contexts)-1]
	t.Contexts = t.Contexts[:len(t.Contexts)-1]
	return c
}

func (t *Task) push(e values.Entity) { t.Stack = append(t.Stack, e) }

func (t *Task) pop() (values.Entity, bool) {
	if len(t.Stack) == 0 {
		return values.Nil(), false
	}
	e := t.Stack[len(t.Stack)-1]
	t.Stack = t.Stack[:len(t.Stack)-1]
	return e, true
}

func (t *Task) peek() (values.Entity, bool) {
	if len(t.Stack) == 0 {
		return values.Nil(), false
	}
	return t.Stack[len(t.Stack)-1], true
}

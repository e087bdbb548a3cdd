package vm

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/jay-lang/jay/diagnostics"
	"github.com/jay-lang/jay/heap"
	"github.com/jay-lang/jay/registry"
	"github.com/jay-lang/jay/values"
)

// ModuleLoader resolves a bare module name to an installed Module. The
// compiler, the textual assembler, and the binary bytecode codec are each
// valid producers of the Tape a loader attaches to the Module it returns;
// the VM only ever talks to this interface.
type ModuleLoader interface {
	Load(name string) (*registry.Module, error)
}

// Process is a scheduling domain: one heap, one ready queue, one lock
// guarding the queues and heap collection.
type Process struct {
	ID       uuid.UUID
	Heap     *heap.Heap
	Registry *registry.Registry
	Loader   ModuleLoader
	Recorder *diagnostics.Recorder

	mu        sync.Mutex
	ready     []*Task
	waiting   map[uuid.UUID]*Task
	completed map[uuid.UUID]*Task
	halted    bool
}

func NewProcess(loader ModuleLoader) *Process {
	return &Process{
		ID:        uuid.New(),
		Heap:      heap.New(),
		Registry:  registry.New(),
		Loader:    loader,
		waiting:   make(map[uuid.UUID]*Task),
		completed: make(map[uuid.UUID]*Task),
	}
}

// SetRecorder attaches a diagnostics.Recorder; nil disables recording
// again (every Recorder method already tolerates a nil receiver, so
// dispatch and GC call sites never need to branch on whether one is set).
func (p *Process) SetRecorder(r *diagnostics.Recorder) {
	p.Recorder = r
}

func (p *Process) enqueue(t *Task) {
	p.mu.Lock()
	p.ready = append(p.ready, t)
	p.mu.Unlock()
}

func (p *Process) dequeue() (*Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ready) == 0 {
		return nil, false
	}
	t := p.ready[0]
	p.ready = p.ready[1:]
	return t, true
}

// Spawn creates a task whose first context starts at entry within module,
// with self bound to selfRef (values.NilRef for free functions), and
// queues it ready to run. dependent is notified when the new task
// completes or errors; pass nil for a task nothing is waiting on (the
// main task).
func (p *Process) Spawn(module *registry.Module, selfRef values.Ref, entry int, dependent *Task) (*Task, error) {
	t := newTask()
	t.DependentTask = dependent
	ctx, err := newContext(p, t, module, selfRef, nil)
	if err != nil {
		return nil, err
	}
	ctx.IP = entry
	t.pushContext(ctx)
	p.enqueue(t)
	return t, nil
}

// Run drains the ready queue, running each task to its next suspension,
// completion, or error, and reacting to the resulting state transition
// exactly as the scheduler does: a completed or errored task's dependent
// (if any) is enqueued; an errored task with no dependent is reported and
// the process keeps draining the rest of the queue.
func (p *Process) Run() {
	for {
		if p.halted {
			return
		}
		task, ok := p.dequeue()
		if !ok {
			return
		}
		task.State = TaskRunning
		state := p.runTask(task)
		switch state {
		case TaskWaiting:
			p.mu.Lock()
			p.waiting[task.ID] = task
			p.mu.Unlock()
		case TaskComplete:
			p.mu.Lock()
			delete(p.waiting, task.ID)
			p.completed[task.ID] = task
			dep := task.DependentTask
			p.mu.Unlock()
			if dep != nil {
				dep.ChildTaskHasError = false
				if task.ReturnOverride != nil {
					dep.Resval = *task.ReturnOverride
				} else {
					dep.Resval = task.Resval
				}
				p.enqueue(dep)
			}
		case TaskError:
			p.mu.Lock()
			delete(p.waiting, task.ID)
			dep := task.DependentTask
			p.mu.Unlock()
			if dep != nil {
				dep.ChildTaskHasError = true
				dep.Resval = task.Resval
				p.enqueue(dep)
			} else {
				p.reportUnhandled(task)
			}
		}
	}
}

// reportUnhandled stands in for the built-in errorln function: a task that
// errors with nobody waiting on it prints its message and stops.
func (p *Process) reportUnhandled(task *Task) {
	if obj, ok := p.Heap.Get(task.Resval.ObjectRef()); ok && task.Resval.Kind() == values.KindObject {
		if msg, ok := obj.Members.Get("msg"); ok {
			fmt.Fprintln(os.Stderr, p.Render(msg))
			return
		}
	}
	fmt.Fprintln(os.Stderr, "unhandled error")
}

// CollectGarbage runs the heap's mark-sweep collector. Per the pre-bump
// rule, every object transitively reachable from a live task's stack,
// resval, and context chain (including locals) is temporarily rooted for
// the duration of the sweep, then unrooted again, so an in-flight
// computation is never torn down out from under a task that isn't
// currently executing.
func (p *Process) CollectGarbage() uint32 {
	p.mu.Lock()
	bumped := p.bumpLiveTasks()
	p.mu.Unlock()

	freed := p.Heap.CollectGarbage()

	p.mu.Lock()
	for _, ref := range bumped {
		p.Heap.UnmakeRoot(ref)
	}
	p.mu.Unlock()
	p.Recorder.ObserveGC(freed, p.Heap.Len())
	return freed
}

func (p *Process) bumpLiveTasks() []values.Ref {
	var bumped []values.Ref
	seen := make(map[values.Ref]bool)
	bump := func(ref values.Ref) {
		if ref == values.NilRef || seen[ref] {
			return
		}
		seen[ref] = true
		p.Heap.MakeRoot(ref)
		bumped = append(bumped, ref)
	}

	visit := func(t *Task) {
		if t.Resval.Kind() == values.KindObject {
			bump(t.Resval.ObjectRef())
		}
		for _, e := range t.Stack {
			if e.Kind() == values.KindObject {
				bump(e.ObjectRef())
			}
		}
		for _, c := range t.Contexts {
			bump(c.Self)
			bump(c.Locals)
			bump(c.Error)
		}
	}
	for _, t := range p.ready {
		visit(t)
	}
	for _, t := range p.waiting {
		visit(t)
	}
	return bumped
}

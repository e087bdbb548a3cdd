// Package diagnostics is an opt-in profiling recorder a Process feeds
// instruction and GC events into, queried after the fact for
// hot-instruction counts and collection stats. Kept as a standalone
// package (rather than folded into vm); every Recorder method tolerates a
// nil receiver, so a Process that never sets a Recorder pays nothing.
package diagnostics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
)

// DebugLevel controls how much a Recorder tracks. Basic only counts GC
// runs; Detailed also tracks per-instruction-pointer execution counts,
// which costs a map write per dispatched instruction.
type DebugLevel int

const (
	DebugLevelNone DebugLevel = iota
	DebugLevelBasic
	DebugLevelDetailed
)

// HotSpot is one instruction pointer paired with how many times it ran.
type HotSpot struct {
	Module string
	IP     int
	Count  int
}

// GCStats summarizes one CollectGarbage call.
type GCStats struct {
	Freed    uint32
	HeapSize int
}

// Recorder accumulates diagnostics across a Process's lifetime. Safe for
// concurrent use since a Process's tasks may observe instructions from
// more than one goroutine-adjacent call path (a native function blocking
// on I/O, a scheduled GC sweep) even though dispatch itself is single
// threaded per process.
type Recorder struct {
	level DebugLevel

	mu                sync.Mutex
	instructionCounts map[string]map[int]int
	gcRuns            []GCStats
}

// New builds a Recorder at the given level. DebugLevelNone still returns a
// usable Recorder whose Observe/ObserveGC calls are no-ops, so callers
// never need to nil-check it.
func New(level DebugLevel) *Recorder {
	return &Recorder{
		level:             level,
		instructionCounts: make(map[string]map[int]int),
	}
}

// Observe records one dispatched instruction. Only does work at
// DebugLevelDetailed.
func (r *Recorder) Observe(module string, ip int) {
	if r == nil || r.level < DebugLevelDetailed {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.instructionCounts[module]
	if !ok {
		m = make(map[int]int)
		r.instructionCounts[module] = m
	}
	m[ip]++
}

// ObserveGC records one CollectGarbage call's result. Runs at
// DebugLevelBasic and above.
func (r *Recorder) ObserveGC(freed uint32, heapSize int) {
	if r == nil || r.level < DebugLevelBasic {
		return
	}
	r.mu.Lock()
	r.gcRuns = append(r.gcRuns, GCStats{Freed: freed, HeapSize: heapSize})
	r.mu.Unlock()
}

// HotSpots returns the n most-executed instruction pointers across every
// module observed, most-frequent first. n <= 0 returns every spot.
func (r *Recorder) HotSpots(n int) []HotSpot {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var spots []HotSpot
	for module, counts := range r.instructionCounts {
		for ip, count := range counts {
			spots = append(spots, HotSpot{Module: module, IP: ip, Count: count})
		}
	}
	sort.Slice(spots, func(i, j int) bool {
		if spots[i].Count == spots[j].Count {
			if spots[i].Module == spots[j].Module {
				return spots[i].IP < spots[j].IP
			}
			return spots[i].Module < spots[j].Module
		}
		return spots[i].Count > spots[j].Count
	})
	if n <= 0 || n >= len(spots) {
		return spots
	}
	return spots[:n]
}

// Summary renders a human-readable report of everything recorded so far,
// formatting counts and byte-ish sizes with go-humanize the way a CLI's
// --debug output would.
func (r *Recorder) Summary() string {
	if r == nil || r.level == DebugLevelNone {
		return "diagnostics disabled"
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var totalInstructions uint64
	for _, counts := range r.instructionCounts {
		for _, c := range counts {
			totalInstructions += uint64(c)
		}
	}

	var freed uint64
	var lastHeap int
	for _, run := range r.gcRuns {
		freed += uint64(run.Freed)
		lastHeap = run.HeapSize
	}

	return fmt.Sprintf(
		"instructions executed: %s across %d module(s); gc runs: %d, objects freed: %s, last heap size: %s objects",
		humanize.Comma(int64(totalInstructions)), len(r.instructionCounts),
		len(r.gcRuns), humanize.Comma(int64(freed)), humanize.Comma(int64(lastHeap)),
	)
}

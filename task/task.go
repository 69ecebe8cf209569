// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

// Package task implements the Task Store (spec.md §4.3): a keyed
// collection of task-tree nodes that tracks parent/child result join and
// feeds a work-stealing runner pool through a ready queue.
package task

import (
	"sync"
	"sync/atomic"

	"github.com/irifrance/paracube/engine"
	"github.com/irifrance/paracube/path"
)

// State is a task's position in its lifecycle.
type State int

const (
	StateNew State = iota
	StateWork
	StateWaitChildren
	StateOffloaded
	StateDone
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateWork:
		return "Work"
	case StateWaitChildren:
		return "WaitChildren"
	case StateOffloaded:
		return "Offloaded"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Result is a task's outcome.
type Result int

const (
	ResultUnknown Result = iota
	ResultSAT
	ResultUNSAT
	ResultAborted
	ResultNoSplitsLeft
)

func (r Result) String() string {
	switch r {
	case ResultSAT:
		return "SAT"
	case ResultUNSAT:
		return "UNSAT"
	case ResultAborted:
		return "Aborted"
	case ResultNoSplitsLeft:
		return "NoSplitsLeft"
	default:
		return "Unknown"
	}
}

// Key identifies a task by the originator that introduced its formula
// and its position in that originator's task tree.
type Key struct {
	Originator uint64
	Path       path.Path
}

// rootParent is the root-sentinel parent key: a root task has no parent,
// represented by path.Unrooted in ParentPath.
var rootParent = path.Unrooted

// Task is one node of a cube-and-conquer task tree.
//
// Task fields are guarded by the per-task mutex; Store callers never
// reach into a Task directly, they go through Store's methods, which is
// the single writer for all state transitions (spec.md §5).
type Task struct {
	mu sync.Mutex

	Key              Key
	OwningOriginator uint64 // never reassigned after creation
	ParentPath       path.Path
	Cube             []engine.Lit

	state  State
	result Result

	leftResult, rightResult *Result
	left, right              *Key

	assignedPeer uint64 // 0 = none (local or unassigned)

	// isRemoteRoot marks a task adopted from a peer's TaskPush: its
	// ParentPath is the rootParent sentinel like a true root, but its
	// completion must be reported back over the network (to the peer
	// that owns the surrounding tree) rather than delivered on this
	// node's own roots channel.
	isRemoteRoot bool

	stop        atomic.Bool
	offloadable atomic.Bool

	eng engine.Engine // bound while this task runs locally
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Result returns the task's result; meaningful only once State() == Done.
func (t *Task) Result() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Engine returns the engine bound to this task, or nil if none is (yet).
func (t *Task) Engine() engine.Engine {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng
}

// SetEngine binds an engine instance to this task; the runner pool calls
// this on each child right after splitting its parent.
func (t *Task) SetEngine(e engine.Engine) {
	t.mu.Lock()
	t.eng = e
	t.mu.Unlock()
}

// Stop reports whether abort_subtree has been called on this task.
func (t *Task) Stop() bool { return t.stop.Load() }

// Offloadable reports whether split() marked this task as a backpressure
// offload candidate (spec.md §4.3's "Backpressure" note).
func (t *Task) Offloadable() bool { return t.offloadable.Load() }

// AssignedPeer returns the peer this task is offloaded to, or 0.
func (t *Task) AssignedPeer() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.assignedPeer
}

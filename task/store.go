// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package task

import (
	"context"
	"sync"

	"github.com/irifrance/paracube/engine"
	"github.com/irifrance/paracube/path"
	"github.com/irifrance/paracube/perr"
)

// Config bounds the ready queue's backlog before split() starts marking
// right children Offloadable for C6 to pick up (spec.md §4.3, §4.6).
type Config struct {
	Workers int
	Backlog int // soft bound = Workers * Backlog
}

// DefaultConfig mirrors crisp's default of one handler per accepted
// connection scaled down to a modest per-core worker count; callers
// building a real daemon size Workers from runtime.NumCPU().
var DefaultConfig = Config{Workers: 4, Backlog: 4}

// Store is the task tree for every originator this node knows about: a
// keyed (originator, path) table plus the ready queue that feeds the
// runner pool. One Store per node; C9 owns it.
type Store struct {
	mu    sync.RWMutex
	tasks map[Key]*Task
	ready *readyQueue
	cfg   Config

	roots map[uint64]chan Result // originator -> root-completion channel

	remoteMu    sync.Mutex
	onRemoteDone func(key Key, result Result) // set by the broker, reports adopted subtrees back to their owner
}

// NewStore returns an empty Store.
func NewStore(cfg Config) *Store {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig.Workers
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = DefaultConfig.Backlog
	}
	return &Store{
		tasks: make(map[Key]*Task),
		ready: newReadyQueue(),
		cfg:   cfg,
		roots: make(map[uint64]chan Result),
	}
}

// softBound is the backlog above which split() marks a freshly split
// right child Offloadable.
func (s *Store) softBound() int { return s.cfg.Workers * s.cfg.Backlog }

// Get returns the task for key, or nil if unknown.
func (s *Store) Get(key Key) *Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[key]
}

// NewRoot creates the root task for originator, binds eng as its
// Engine, and enqueues it as runnable work. The returned channel receives
// exactly one Result once the whole tree under this root reaches Done.
func (s *Store) NewRoot(originator uint64, eng engine.Engine) (Key, <-chan Result) {
	key := Key{Originator: originator, Path: path.Root}

	t := &Task{
		Key:              key,
		OwningOriginator: originator,
		ParentPath:       rootParent,
		state:            StateWork,
		eng:              eng,
	}

	done := make(chan Result, 1)

	s.mu.Lock()
	s.tasks[key] = t
	s.roots[originator] = done
	s.mu.Unlock()

	s.ready.push(key)
	return key, done
}

// SetRemoteDoneHandler registers the callback invoked when an adopted
// remote subtree (see AdoptRemote) reaches Done. The broker uses this to
// send a TaskResult back to the peer that offloaded the task.
func (s *Store) SetRemoteDoneHandler(fn func(key Key, result Result)) {
	s.remoteMu.Lock()
	s.onRemoteDone = fn
	s.remoteMu.Unlock()
}

// AdoptRemote materializes a task offloaded from another node at
// exactly key, whose Path addresses a position in that peer's tree, not
// necessarily this node's. It is bound to eng and enqueued as
// runnable Work, same as any locally split task; any further splitting
// and parent-join happens entirely within this Store. Once the whole
// adopted subtree reaches Done, the registered remote-done handler is
// invoked instead of a local roots channel.
func (s *Store) AdoptRemote(key Key, eng engine.Engine, cube []engine.Lit) {
	t := &Task{
		Key:              key,
		OwningOriginator: key.Originator,
		ParentPath:       rootParent,
		Cube:             cube,
		state:            StateWork,
		eng:              eng,
		isRemoteRoot:     true,
	}
	s.mu.Lock()
	s.tasks[key] = t
	s.mu.Unlock()
	s.ready.push(key)
}

// Split transitions task into WaitChildren and creates its two children
// as fresh Work tasks, each carrying the parent cube extended by its
// branch literal. It returns the children's keys in left-then-right
// order, the order they're pushed onto the ready queue.
func (s *Store) Split(key Key, leftLit, rightLit engine.Lit) (leftKey, rightKey Key, err error) {
	t := s.Get(key)
	if t == nil {
		return Key{}, Key{}, perr.New(perr.CodeProtocol, "task: split of unknown task")
	}

	leftPath, err := key.Path.Extend(0)
	if err != nil {
		return Key{}, Key{}, perr.Wrap(perr.CodeProtocol, 0, "task: split left", err)
	}
	rightPath, err := key.Path.Extend(1)
	if err != nil {
		return Key{}, Key{}, perr.Wrap(perr.CodeProtocol, 0, "task: split right", err)
	}

	leftKey = Key{Originator: key.Originator, Path: leftPath}
	rightKey = Key{Originator: key.Originator, Path: rightPath}

	t.mu.Lock()
	if t.state == StateDone {
		t.mu.Unlock()
		return Key{}, Key{}, perr.New(perr.CodeProtocol, "task: split of already-done task")
	}
	cube := t.Cube
	t.state = StateWaitChildren
	t.left = &leftKey
	t.right = &rightKey
	t.mu.Unlock()

	newCube := func(lit engine.Lit) []engine.Lit {
		c := make([]engine.Lit, len(cube), len(cube)+1)
		copy(c, cube)
		return append(c, lit)
	}

	left := &Task{
		Key:              leftKey,
		OwningOriginator: key.Originator,
		ParentPath:       key.Path,
		Cube:             newCube(leftLit),
		state:            StateWork,
	}
	right := &Task{
		Key:              rightKey,
		OwningOriginator: key.Originator,
		ParentPath:       key.Path,
		Cube:             newCube(rightLit),
		state:            StateWork,
	}

	s.mu.Lock()
	s.tasks[leftKey] = left
	s.tasks[rightKey] = right
	s.mu.Unlock()

	s.ready.push(leftKey)

	if s.ready.len() >= s.softBound() {
		right.offloadable.Store(true)
	}
	s.ready.push(rightKey)

	return leftKey, rightKey, nil
}

// PopWork is the non-blocking pop_work primitive: it returns ok=false
// immediately when no work is queued.
func (s *Store) PopWork() (Key, bool) {
	return s.ready.tryPop()
}

// PopWorkWait blocks a runner-pool worker until work is available, the
// store is closed, or ctx is done.
func (s *Store) PopWorkWait(ctx context.Context) (Key, bool) {
	return s.ready.popWait(ctx)
}

// Close shuts the ready queue down, waking every blocked popWait.
func (s *Store) Close() { s.ready.close() }

// ReadyLen reports the current ready-queue backlog.
func (s *Store) ReadyLen() int { return s.ready.len() }

// QueueSizeByOriginator counts, per originator, the tasks currently in
// Work or Offloaded state — the registry's (C5) local_status() uses this
// as the per-originator work-queue size it reports in its Status.
func (s *Store) QueueSizeByOriginator() map[uint64]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sizes := make(map[uint64]uint64)
	for key, t := range s.tasks {
		t.mu.Lock()
		st := t.state
		t.mu.Unlock()
		if st == StateWork || st == StateOffloaded {
			sizes[key.Originator]++
		}
	}
	return sizes
}

// Complete records a task's result and, if it has a parent, attempts the
// parent join. A NoSplitsLeft result is not a final outcome: it means a
// worker (local or remote) made no progress, so the task is reclaimed
// back onto the ready queue rather than finalized (spec.md §4.6's
// NoSplitsLeft-triggers-reclaim rule).
func (s *Store) Complete(key Key, result Result) error {
	t := s.Get(key)
	if t == nil {
		return perr.New(perr.CodeProtocol, "task: complete of unknown task")
	}

	if result == ResultNoSplitsLeft {
		return s.reclaimLocked(t)
	}

	t.mu.Lock()
	if t.state == StateDone {
		t.mu.Unlock()
		return nil // idempotent: duplicate TaskResult
	}
	t.state = StateDone
	t.result = result
	t.eng = nil
	parentPath := t.ParentPath
	owner := t.OwningOriginator
	remote := t.isRemoteRoot
	t.mu.Unlock()

	if parentPath.IsUnrooted() {
		if remote {
			s.remoteMu.Lock()
			fn := s.onRemoteDone
			s.remoteMu.Unlock()
			if fn != nil {
				fn(key, result)
			}
			return nil
		}
		s.finishRoot(owner, result)
		return nil
	}

	parentKey := Key{Originator: key.Originator, Path: parentPath}
	return s.joinParent(parentKey, key, result)
}

// joinParent records child's result in its parent's left/right slot.
// A SAT child finalizes the parent as SAT immediately, aborting the
// sibling subtree rather than waiting on it, per spec.md §4.3/§8's SAT
// short-circuit: either branch alone proves satisfiability, so there's
// nothing left for the sibling to contribute. Otherwise the parent is
// only reduced once both slots are filled, and only recursed into
// Complete if the reduction is ready, not "wait".
func (s *Store) joinParent(parentKey, childKey Key, childResult Result) error {
	parent := s.Get(parentKey)
	if parent == nil {
		return perr.New(perr.CodeProtocol, "task: parent of completed task not found")
	}

	parent.mu.Lock()
	isLeft := parent.left != nil && *parent.left == childKey
	r := childResult
	if isLeft {
		parent.leftResult = &r
	} else {
		parent.rightResult = &r
	}
	leftResult, rightResult := parent.leftResult, parent.rightResult
	var sibling *Key
	if isLeft {
		sibling = parent.right
	} else {
		sibling = parent.left
	}
	parent.mu.Unlock()

	if childResult == ResultSAT {
		if sibling != nil {
			s.AbortSubtree(*sibling)
		}
		return s.Complete(parentKey, ResultSAT)
	}

	if leftResult == nil || rightResult == nil {
		return nil // still waiting on the other branch
	}

	reduced, ready := reduce(*leftResult, *rightResult)
	if !ready {
		return nil
	}
	return s.Complete(parentKey, reduced)
}

func (s *Store) finishRoot(originator uint64, result Result) {
	s.mu.Lock()
	ch := s.roots[originator]
	delete(s.roots, originator)
	s.mu.Unlock()
	if ch != nil {
		ch <- result
		close(ch)
	}
}

// AssignRemote marks a Work task Offloaded to peer. It fails if the task
// isn't currently Work (already offloaded, already done, or waiting on
// children).
func (s *Store) AssignRemote(key Key, peer uint64) error {
	t := s.Get(key)
	if t == nil {
		return perr.New(perr.CodeProtocol, "task: assign_remote of unknown task")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateWork {
		return perr.New(perr.CodeProtocol, "task: assign_remote requires Work state")
	}
	t.state = StateOffloaded
	t.assignedPeer = peer
	return nil
}

// Reclaim pulls an Offloaded task back to local Work and re-enqueues it;
// the broker calls it when an offload attempt is abandoned. Complete
// applies the same reclaim to a NoSplitsLeft result.
func (s *Store) Reclaim(key Key) error {
	t := s.Get(key)
	if t == nil {
		return perr.New(perr.CodeProtocol, "task: reclaim of unknown task")
	}
	return s.reclaimLocked(t)
}

func (s *Store) reclaimLocked(t *Task) error {
	t.mu.Lock()
	if t.state != StateOffloaded && t.state != StateWork {
		t.mu.Unlock()
		return nil
	}
	t.state = StateWork
	t.assignedPeer = 0
	key := t.Key
	t.mu.Unlock()

	s.ready.push(key)
	return nil
}

// AbortSubtree marks key and every descendant reachable through split()
// as stopped, terminating any engine currently bound to one of them.
// Descendants are discovered through the left/right pointers split()
// records, since the Store never holds a reverse child index.
func (s *Store) AbortSubtree(key Key) {
	t := s.Get(key)
	if t == nil {
		return
	}
	s.abortOne(t)

	t.mu.Lock()
	left, right := t.left, t.right
	t.mu.Unlock()

	if left != nil {
		s.AbortSubtree(*left)
	}
	if right != nil {
		s.AbortSubtree(*right)
	}
}

func (s *Store) abortOne(t *Task) {
	t.stop.Store(true)
	t.mu.Lock()
	eng := t.eng
	t.mu.Unlock()
	if eng != nil {
		eng.Terminate()
	}
}

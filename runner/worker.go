// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package runner

import (
	"context"

	"github.com/irifrance/paracube/engine"
	"github.com/irifrance/paracube/task"
)

// worker is one of the pool's fixed goroutines. It repeatedly pulls the
// next runnable task from the store and drives it to either a split (two
// new children pushed back onto the ready queue) or a local Solve.
type worker struct {
	id    int
	pool  *Pool
	trace *bool
}

// serve mirrors crisp/server.go's handler.serve(connChan) loop: block on
// the shared queue until one item is ready or the pool is shutting down.
func (w *worker) serve(ctx context.Context) {
	defer w.pool.wg.Done()
	for {
		key, ok := w.pool.store.PopWorkWait(ctx)
		if !ok {
			return
		}
		w.run(ctx, key)
	}
}

func (w *worker) run(ctx context.Context, key task.Key) {
	t := w.pool.store.Get(key)
	if t == nil {
		return
	}
	if t.Stop() {
		w.pool.store.Complete(key, task.ResultAborted)
		return
	}

	eng := t.Engine()
	if eng == nil {
		w.pool.log.Printf("worker %d: task %v has no bound engine, reclaiming", w.id, key)
		w.pool.store.Complete(key, task.ResultNoSplitsLeft)
		return
	}

	if len(t.Cube) > 0 {
		eng.Assume(t.Cube)
	}

	splitCtx, cancel := context.WithTimeout(ctx, w.pool.cfg.SplitTimeout)
	split := eng.GenerateCubes(splitCtx, int(key.Path.Depth()), w.pool.cfg.MinDepth, w.pool.cfg.MaxDepth)
	cancel()
	switch split.Kind {
	case engine.Splitted:
		w.split(key, t, eng, split.Literal)
	case engine.SplitSAT:
		w.pool.store.Complete(key, task.ResultSAT)
	case engine.SplitUNSAT:
		w.pool.store.Complete(key, task.ResultUNSAT)
	case engine.NoSplitsLeft:
		w.solve(ctx, key, eng)
	}
}

func (w *worker) solve(ctx context.Context, key task.Key, eng engine.Engine) {
	result := eng.Solve(ctx)
	w.pool.store.Complete(key, taskResultFrom(result))
}

func (w *worker) split(key task.Key, t *task.Task, eng engine.Engine, lit engine.Lit) {
	leftEng, err := eng.CloneForChild()
	if err != nil {
		w.pool.log.Printf("worker %d: clone left failed: %s", w.id, err)
		w.pool.store.Complete(key, task.ResultNoSplitsLeft)
		return
	}
	rightEng, err := eng.CloneForChild()
	if err != nil {
		w.pool.log.Printf("worker %d: clone right failed: %s", w.id, err)
		w.pool.store.Complete(key, task.ResultNoSplitsLeft)
		return
	}

	leftKey, rightKey, err := w.pool.store.Split(key, lit, -lit)
	if err != nil {
		w.pool.log.Printf("worker %d: split failed: %s", w.id, err)
		return
	}

	if left := w.pool.store.Get(leftKey); left != nil {
		left.SetEngine(leftEng)
	}
	if right := w.pool.store.Get(rightKey); right != nil {
		right.SetEngine(rightEng)
	}
}

func taskResultFrom(r engine.Result) task.Result {
	switch r {
	case engine.SAT:
		return task.ResultSAT
	case engine.UNSAT:
		return task.ResultUNSAT
	case engine.Aborted:
		return task.ResultAborted
	default:
		return task.ResultUnknown
	}
}

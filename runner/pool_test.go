// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package runner

import (
	"context"
	"testing"
	"time"

	"github.com/irifrance/paracube/engine"
	"github.com/irifrance/paracube/task"
)

// scriptedEngine is a deterministic engine.Engine stub: it splits a
// fixed number of times, then resolves to a fixed Result.
type scriptedEngine struct {
	splitsLeft int
	result     engine.Result
	terminated bool
}

func (e *scriptedEngine) CloneForChild() (engine.Engine, error) {
	return &scriptedEngine{splitsLeft: e.splitsLeft - 1, result: e.result}, nil
}
func (e *scriptedEngine) Assume(cube []engine.Lit) {}
func (e *scriptedEngine) Solve(ctx context.Context) engine.Result {
	return e.result
}
func (e *scriptedEngine) GenerateCubes(ctx context.Context, depth, minDepth, maxDepth int) engine.Split {
	if e.splitsLeft > 0 {
		return engine.Split{Kind: engine.Splitted, Literal: 1}
	}
	return engine.Split{Kind: engine.NoSplitsLeft}
}
func (e *scriptedEngine) Terminate()              { e.terminated = true }
func (e *scriptedEngine) Assignment() []engine.Lit { return nil }
func (e *scriptedEngine) MaxVar() int             { return 1 }

func TestPoolSolvesWithoutSplitting(t *testing.T) {
	store := task.NewStore(task.Config{Workers: 2, Backlog: 4})
	_, done := store.NewRoot(1, &scriptedEngine{splitsLeft: 0, result: engine.UNSAT})

	p := New(store, Config{Workers: 2, MinDepth: 1, MaxDepth: 4})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Shutdown()

	select {
	case r := <-done:
		if r != task.ResultUNSAT {
			t.Fatalf("result = %v, want UNSAT", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pool never finished the root task")
	}
}

func TestPoolSplitsThenSolves(t *testing.T) {
	store := task.NewStore(task.Config{Workers: 2, Backlog: 4})
	_, done := store.NewRoot(1, &scriptedEngine{splitsLeft: 1, result: engine.SAT})

	p := New(store, Config{Workers: 2, MinDepth: 1, MaxDepth: 4})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Shutdown()

	select {
	case r := <-done:
		if r != task.ResultSAT {
			t.Fatalf("result = %v, want SAT", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pool never finished after a split")
	}
}

func TestPoolShutdownJoinsAllWorkers(t *testing.T) {
	store := task.NewStore(task.Config{Workers: 2, Backlog: 4})
	p := New(store, Config{Workers: 3, MinDepth: 1, MaxDepth: 4})
	p.Start(context.Background())

	done := make(chan struct{})
	go func() {
		p.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Shutdown did not join workers in time")
	}
}

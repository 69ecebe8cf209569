// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
)

// solveForever bounds the underlying GoSolve call; it is not a real
// timeout, just long enough that only an explicit Terminate or a real
// result ends the call (mirrors crisp/netsolve.go's Try(d)/Stop() shape).
const solveForever = 365 * 24 * time.Hour

// goSolveHandle is the subset of github.com/go-air/gini/inter.Solve that
// GiniEngine needs: a handle on a Solve running in its own goroutine,
// stoppable from any other goroutine.
type goSolveHandle interface {
	Test() (int, bool)
	Try(time.Duration) int
	Stop() int
}

// GiniEngine is the production Engine backed by github.com/go-air/gini.
// It keeps its own copy of the clauses it was given, because gini's
// public API exposes no internal clause/activity state for the
// one-step lookahead GenerateCubes needs (see lookahead.go).
type GiniEngine struct {
	g *gini.Gini

	mu         sync.Mutex
	solving    goSolveHandle
	terminated atomic.Bool

	clauses [][]int32 // retained, shared read-only with clones
	curLit  []int32   // clause currently being accumulated by Add
	maxVar  int
}

// NewGiniEngine returns an empty engine ready to receive clauses via Add.
func NewGiniEngine() *GiniEngine {
	return &GiniEngine{g: gini.New()}
}

// Add implements Adder: it both loads the literal into the underlying
// gini instance and retains the clause for the lookahead heuristic.
func (e *GiniEngine) Add(lit int32) {
	e.g.Add(z.Dimacs2Lit(int(lit)))
	if lit == 0 {
		if len(e.curLit) > 0 {
			e.clauses = append(e.clauses, e.curLit)
			e.curLit = nil
		}
		return
	}
	e.curLit = append(e.curLit, lit)
	v := lit
	if v < 0 {
		v = -v
	}
	if int(v) > e.maxVar {
		e.maxVar = int(v)
	}
}

func (e *GiniEngine) CloneForChild() (Engine, error) {
	return &GiniEngine{
		g:       e.g.Copy(),
		clauses: e.clauses, // immutable after parse; safe to share
		maxVar:  e.maxVar,
	}, nil
}

func (e *GiniEngine) Assume(cube []Lit) {
	lits := make([]z.Lit, len(cube))
	for i, l := range cube {
		lits[i] = z.Dimacs2Lit(int(l))
	}
	e.g.Assume(lits...)
}

func (e *GiniEngine) Solve(ctx context.Context) Result {
	if e.terminated.Load() {
		return Aborted
	}
	sh, ok := e.g.GoSolve().(goSolveHandle)
	if !ok {
		panic("engine: gini.GoSolve() does not implement the expected handle shape")
	}
	e.mu.Lock()
	e.solving = sh
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.solving = nil
		e.mu.Unlock()
	}()

	resultCh := make(chan int, 1)
	go func() { resultCh <- sh.Try(solveForever) }()

	select {
	case <-ctx.Done():
		sh.Stop()
		return e.resultFrom(<-resultCh)
	case r := <-resultCh:
		return e.resultFrom(r)
	}
}

func (e *GiniEngine) resultFrom(r int) Result {
	switch r {
	case 1:
		return SAT
	case -1:
		return UNSAT
	default:
		if e.terminated.Load() {
			return Aborted
		}
		return Unknown
	}
}

func (e *GiniEngine) Terminate() {
	e.terminated.Store(true)
	e.mu.Lock()
	sh := e.solving
	e.mu.Unlock()
	if sh != nil {
		sh.Stop()
	}
}

func (e *GiniEngine) GenerateCubes(ctx context.Context, depth, minDepth, maxDepth int) Split {
	if e.terminated.Load() {
		return Split{Kind: NoSplitsLeft}
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultLookaheadBudget)
		defer cancel()
	}
	return lookaheadSplit(ctx, e.clauses, e.maxVar, depth, minDepth, maxDepth)
}

func (e *GiniEngine) Assignment() []Lit {
	n := e.g.MaxVar()
	out := make([]Lit, 0, int(n))
	for v := z.Var(1); v <= n; v++ {
		if e.g.Value(v.Pos()) {
			out = append(out, int32(v))
		} else {
			out = append(out, -int32(v))
		}
	}
	return out
}

func (e *GiniEngine) MaxVar() int { return e.maxVar }

// GiniFactory is the production Factory: it parses a Source into a fresh
// GiniEngine.
type GiniFactory struct{}

func (GiniFactory) Parse(src Source) (*Parsed, error) {
	path := src.Path
	if path == "" {
		tmp, err := materializeTemp(src.Data)
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp)
		path = tmp
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("engine: open %s: %w", path, err)
	}
	defer f.Close()

	eng := NewGiniEngine()
	numVars, numClauses, cubes, err := ReadDimacs(f, eng)
	if err != nil {
		return nil, err
	}
	return &Parsed{
		Engine:     eng,
		Cubes:      cubes,
		NumVars:    numVars,
		NumClauses: numClauses,
	}, nil
}

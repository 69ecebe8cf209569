// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

// Package runner implements the fixed-size worker pool (spec.md §4.4)
// that drains a task.Store's ready queue and drives each task either to
// a split or to a local Solve.
//
// Grounded on crisp/server.go's Serve: a fixed number of goroutines fed
// by one shared channel, generalized here to task.Store's ready queue
// (an unbounded queue rather than a bare channel, since the task tree
// can burst wider than any fixed channel buffer during a split storm).
package runner

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/irifrance/paracube/task"
)

// Config bounds a worker's per-task GenerateCubes call.
type Config struct {
	Workers  int
	MinDepth int
	MaxDepth int
	// SplitTimeout bounds how long a single GenerateCubes lookahead may
	// run before the worker gives up and falls back to a local Solve,
	// per spec.md §6's --initial-split-timeout flag.
	SplitTimeout time.Duration
}

// DefaultConfig sizes the pool off the number of CPUs, matching
// crisp/server.go's maxClients: runtime.NumCPU() default.
var DefaultConfig = Config{Workers: runtime.NumCPU(), MinDepth: 1, MaxDepth: 20, SplitTimeout: 2 * time.Second}

// Pool is a fixed set of workers draining a task.Store's ready queue.
type Pool struct {
	store *task.Store
	cfg   Config
	trace bool
	log   *log.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New returns a Pool bound to store. Call Start to launch its workers.
// The pool logs through a "runner: "-prefixed *log.Logger by default;
// SetLogger overrides it, per spec.md §9's "no statics" design note.
func New(store *task.Store, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig.Workers
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultConfig.MaxDepth
	}
	if cfg.MinDepth <= 0 {
		cfg.MinDepth = DefaultConfig.MinDepth
	}
	if cfg.SplitTimeout <= 0 {
		cfg.SplitTimeout = DefaultConfig.SplitTimeout
	}
	return &Pool{
		store: store,
		cfg:   cfg,
		log:   log.New(log.Writer(), "runner: ", log.LstdFlags),
	}
}

// SetLogger overrides the pool's logger; call before Start.
func (p *Pool) SetLogger(l *log.Logger) { p.log = l }

// Start launches cfg.Workers goroutines, each serving the ready queue
// until ctx is done or Shutdown is called.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < p.cfg.Workers; i++ {
		w := &worker{id: i + 1, pool: p, trace: &p.trace}
		p.wg.Add(1)
		go w.serve(ctx)
	}
	p.log.Printf("started %d workers", p.cfg.Workers)
}

// Trace enables or disables per-task log lines.
func (p *Pool) Trace(b bool) { p.trace = b }

// Shutdown cancels every worker's context and closes the store's ready
// queue, then blocks until all workers have returned.
func (p *Pool) Shutdown() {
	if p.cancel != nil {
		p.cancel()
	}
	p.store.Close()
	p.wg.Wait()
}

// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package task

import (
	"context"
	"sync"
)

// readyQueue is the soft-bounded FIFO of runnable task keys that the
// runner pool drains (spec.md §4.3/§4.4). It generalizes the channel of
// connections crisp/server.go's Serve hands to its fixed handler pool
// to an unbounded queue, since the task tree can momentarily outgrow
// any fixed channel capacity during a wide split burst.
type readyQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Key
	closed bool
}

func newReadyQueue() *readyQueue {
	q := &readyQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *readyQueue) push(k Key) {
	q.mu.Lock()
	q.items = append(q.items, k)
	q.mu.Unlock()
	q.cond.Signal()
}

// len reports the current backlog, used for the split() backpressure
// check (workers * K soft bound).
func (q *readyQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// tryPop is the non-blocking pop_work primitive: it returns ok=false
// immediately if the queue is empty rather than waiting.
func (q *readyQueue) tryPop() (Key, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Key{}, false
	}
	k := q.items[0]
	q.items = q.items[1:]
	return k, true
}

// popWait blocks until an item is available, the queue is closed, or ctx
// is done. The runner pool's workers use this to sleep between polls
// instead of busy-looping on tryPop.
func (q *readyQueue) popWait(ctx context.Context) (Key, bool) {
	if ctx != nil {
		watchDone := make(chan struct{})
		defer close(watchDone)
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			case <-watchDone:
			}
		}()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		if ctx != nil && ctx.Err() != nil {
			return Key{}, false
		}
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Key{}, false
	}
	k := q.items[0]
	q.items = q.items[1:]
	return k, true
}

func (q *readyQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

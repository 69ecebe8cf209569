// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package transport

import (
	"container/list"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// entry is one queued or in-flight message, tracked with enough state to
// drive retransmission once it has aged past half its timeout.
type entry struct {
	msg    Message
	sentAt time.Time
	retry  int
}

// SendQueue is the per-peer reliable send queue from spec.md §4.7: a
// FIFO of not-yet-written entries plus a waiting_for_ack map, guarded by
// two separate mutexes acquired queued-then-ack and never held across an
// I/O call (spec.md §5's ordering rule).
//
// Grounded directly on
// original_source/modules/communicator/message_send_queue.hpp: the same
// front()/popFromQueued()/handleACK()/empty()/registerTCPConnection
// method set, translated from std::queue/std::map + two std::mutex into
// container/list + sync.Mutex.
type SendQueue struct {
	queuedMu sync.Mutex
	queued   *list.List // of *entry

	ackMu         sync.Mutex
	waitingForAck map[uint32]*entry

	nextSeq uint32 // atomic, monotonic per peer

	availableToSend atomic.Bool

	connMu sync.Mutex
	conn   *TCPConnection // weak back-reference, cleared on disconnect

	timeout time.Duration
}

// DefaultAckTimeout matches spec.md §4.8's stated default.
const DefaultAckTimeout = 30 * time.Second

// NewSendQueue returns an empty SendQueue with the given ACK timeout.
func NewSendQueue(timeout time.Duration) *SendQueue {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	return &SendQueue{
		queued:        list.New(),
		waitingForAck: make(map[uint32]*entry),
		timeout:       timeout,
	}
}

// Send assigns the next seq, appends payload to queued, and returns the
// seq it was assigned.
func (q *SendQueue) Send(kind Kind, payload []byte) uint32 {
	seq := atomic.AddUint32(&q.nextSeq, 1)
	q.queuedMu.Lock()
	q.queued.PushBack(&entry{msg: Message{Kind: kind, Seq: seq, Payload: payload}})
	q.queuedMu.Unlock()
	return seq
}

// Front returns the topmost queued message without removing it.
func (q *SendQueue) Front() (Message, bool) {
	q.queuedMu.Lock()
	defer q.queuedMu.Unlock()
	if q.queued.Len() == 0 {
		return Message{}, false
	}
	return q.queued.Front().Value.(*entry).msg, true
}

// PopFront moves the topmost queued entry into waiting_for_ack, stamping
// its send time. Called by the reactor right after a successful write.
func (q *SendQueue) PopFront() {
	q.queuedMu.Lock()
	el := q.queued.Front()
	if el == nil {
		q.queuedMu.Unlock()
		return
	}
	e := el.Value.(*entry)
	q.queued.Remove(el)
	q.queuedMu.Unlock()

	e.sentAt = time.Now()
	q.ackMu.Lock()
	q.waitingForAck[e.msg.Seq] = e
	q.ackMu.Unlock()
}

// HandleAck clears seq from waiting_for_ack. An unknown seq (already
// ACKed, or never sent by this queue) is dropped silently.
func (q *SendQueue) HandleAck(seq uint32) {
	q.ackMu.Lock()
	delete(q.waitingForAck, seq)
	q.ackMu.Unlock()
}

// Empty reports whether both queued and waiting_for_ack are empty. As a
// side effect, any waiting_for_ack entry older than half the configured
// timeout is moved back onto queued for retransmission, preserving its
// original seq.
func (q *SendQueue) Empty() bool {
	half := q.timeout / 2
	now := time.Now()

	q.ackMu.Lock()
	var aged []*entry
	for seq, e := range q.waitingForAck {
		if now.Sub(e.sentAt) > half {
			aged = append(aged, e)
			delete(q.waitingForAck, seq)
		}
	}
	ackEmpty := len(q.waitingForAck) == 0
	q.ackMu.Unlock()

	if len(aged) > 0 {
		sort.Slice(aged, func(i, j int) bool { return aged[i].msg.Seq < aged[j].msg.Seq })
		q.queuedMu.Lock()
		for _, e := range aged {
			e.retry++
			q.queued.PushBack(e)
		}
		q.queuedMu.Unlock()
	}

	q.queuedMu.Lock()
	queuedEmpty := q.queued.Len() == 0
	q.queuedMu.Unlock()

	return queuedEmpty && ackEmpty
}

// RegisterConnection binds conn as this queue's active TCPConnection,
// marking it available to send.
func (q *SendQueue) RegisterConnection(conn *TCPConnection) {
	q.connMu.Lock()
	q.conn = conn
	q.connMu.Unlock()
	q.availableToSend.Store(true)
}

// Connection returns the currently registered TCPConnection, or nil.
func (q *SendQueue) Connection() *TCPConnection {
	q.connMu.Lock()
	defer q.connMu.Unlock()
	return q.conn
}

// ClearConnection drops the active connection on disconnect: every
// in-flight entry is moved back to the head of queued, in original seq
// order, and AvailableToSend goes false.
func (q *SendQueue) ClearConnection() {
	q.connMu.Lock()
	q.conn = nil
	q.connMu.Unlock()
	q.availableToSend.Store(false)

	q.ackMu.Lock()
	inflight := make([]*entry, 0, len(q.waitingForAck))
	for _, e := range q.waitingForAck {
		inflight = append(inflight, e)
	}
	q.waitingForAck = make(map[uint32]*entry)
	q.ackMu.Unlock()

	if len(inflight) == 0 {
		return
	}
	sort.Slice(inflight, func(i, j int) bool { return inflight[i].msg.Seq < inflight[j].msg.Seq })

	q.queuedMu.Lock()
	for i := len(inflight) - 1; i >= 0; i-- {
		q.queued.PushFront(inflight[i])
	}
	q.queuedMu.Unlock()
}

// AvailableToSend reports whether a live connection currently backs
// this queue.
func (q *SendQueue) AvailableToSend() bool { return q.availableToSend.Load() }

// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package transport

import (
	"context"
	"log"
	"net"
	"sync"
	"time"
)

// Handler receives reactor-domain callbacks. Every method is invoked
// from the reactor's single event-loop goroutine and must return
// quickly: spec.md §5's "callbacks must be non-blocking" rule for timers
// applies to every callback the reactor makes.
type Handler interface {
	// LocalHandshake returns this node's own handshake payload, sent on
	// every newly accepted or dialed connection before anything else.
	LocalHandshake() Handshake
	// OnEstablished fires once a peer's handshake has been read and
	// validated. q is that peer's send queue, now backed by a live
	// connection; the handler uses it (or Reactor.Send) to publish.
	OnEstablished(peer Handshake, q *SendQueue)
	// OnFrame fires once per fully reassembled application frame (Ack
	// frames are intercepted by the reactor itself and never reach
	// here).
	OnFrame(peerID uint64, kind Kind, seq uint32, payload []byte)
	// OnDisconnected fires once a connection moves to Closed.
	OnDisconnected(peerID uint64)
}

type eventKind int

const (
	evHandshake eventKind = iota
	evFrame
	evClosed
	evTimer
)

type event struct {
	kind   eventKind
	connID uint64
	hs     Handshake
	frame  Frame
	fn     func()
}

// drainInterval is how often the reactor goroutine checks every
// established peer's SendQueue for outbound work. A dedicated
// per-queue wakeup channel would shave this latency to zero, but a
// short poll keeps the single-goroutine invariant simple and is well
// under the ACK timeout either way.
const drainInterval = 20 * time.Millisecond

// Reactor is the single I/O thread from spec.md §4.8/§5: one goroutine
// owns every connection's state transitions, every frame write, and
// every ACK. Go cannot multiplex blocking net.Conn.Read calls onto one
// goroutine the way an epoll-based C++ reactor would, so each
// connection gets its own read goroutine that only ever reads and
// forwards what it read through a channel; all mutation and all writes
// happen on the loop goroutine, generalizing the fixed-goroutine,
// channel-fed pattern in the teacher's crisp.Handler.serve.
type Reactor struct {
	handler  Handler
	listener net.Listener
	timers   *TimeoutController
	events   chan event
	log      *log.Logger

	mu         sync.Mutex
	conns      map[uint64]*TCPConnection // connID -> conn, pre- and post-handshake
	queues     map[uint64]*SendQueue     // peerID -> queue, post-handshake only
	asm        map[uint64]*Assembler     // connID -> chunk reassembler
	nextConnID uint64

	wg sync.WaitGroup
}

// NewReactor wraps an already-listening TCP listener with its handler.
// It logs through a "transport: "-prefixed *log.Logger by default;
// SetLogger overrides it, per spec.md §9's "no statics" design note.
func NewReactor(l net.Listener, h Handler) *Reactor {
	return &Reactor{
		handler:  h,
		listener: l,
		timers:   NewTimeoutController(),
		events:   make(chan event, 64),
		log:      log.New(log.Writer(), "transport: ", log.LstdFlags),
		conns:    make(map[uint64]*TCPConnection),
		queues:   make(map[uint64]*SendQueue),
		asm:      make(map[uint64]*Assembler),
	}
}

// SetLogger overrides the reactor's logger; call before Run.
func (re *Reactor) SetLogger(l *log.Logger) { re.log = l }

// Run drives the accept loop and the serializing event loop until ctx
// is cancelled.
func (re *Reactor) Run(ctx context.Context) {
	re.wg.Add(1)
	go func() {
		defer re.wg.Done()
		re.acceptLoop(ctx)
	}()
	re.loop(ctx)
}

// Dial opens an outbound connection and begins serving it under the
// same state machine as an accepted one.
func (re *Reactor) Dial(ctx context.Context, addr string) error {
	nc, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	re.wg.Add(1)
	go re.serveConn(ctx, nc, false)
	return nil
}

// Send enqueues payload on peerID's send queue, returning ok=false if
// the peer isn't currently established.
func (re *Reactor) Send(peerID uint64, kind Kind, payload []byte) (seq uint32, ok bool) {
	re.mu.Lock()
	q := re.queues[peerID]
	re.mu.Unlock()
	if q == nil {
		return 0, false
	}
	return q.Send(kind, payload), true
}

// Broadcast enqueues payload to every established peer.
func (re *Reactor) Broadcast(kind Kind, payload []byte) {
	re.mu.Lock()
	queues := make([]*SendQueue, 0, len(re.queues))
	for _, q := range re.queues {
		queues = append(queues, q)
	}
	re.mu.Unlock()
	for _, q := range queues {
		q.Send(kind, payload)
	}
}

// Every schedules fn to run on the reactor goroutine every d, per
// spec.md §4.8's heartbeat/status-gossip timers. The TimeoutController
// callback only posts an event; fn itself runs inside loop(), so it may
// safely call Send/Broadcast without racing the reactor's own state.
func (re *Reactor) Every(d time.Duration, fn func()) TimerID {
	return re.timers.Every(d, func() {
		select {
		case re.events <- event{kind: evTimer, fn: fn}:
		default:
			// event channel full: a tick is dropped rather than
			// blocking the timer goroutine.
		}
	})
}

// Shutdown cancels every timer and closes every connection and the
// listener, then waits for all goroutines to exit.
func (re *Reactor) Shutdown() {
	re.timers.CancelAll()
	re.listener.Close()

	re.mu.Lock()
	conns := make([]*TCPConnection, 0, len(re.conns))
	for _, c := range re.conns {
		conns = append(conns, c)
	}
	re.mu.Unlock()
	for _, c := range conns {
		c.transition(Draining)
		c.transition(Closed)
		c.Conn.Close()
	}
	re.wg.Wait()
}

func (re *Reactor) acceptLoop(ctx context.Context) {
	for {
		nc, err := re.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				re.log.Printf("accept: %s", err)
				return
			}
		}
		re.wg.Add(1)
		go re.serveConn(ctx, nc, true)
	}
}

// serveConn performs the handshake inline (Connecting/Handshaking are
// not yet visible to the rest of the reactor) and then only reads,
// handing every frame to the loop goroutine over the event channel.
func (re *Reactor) serveConn(ctx context.Context, nc net.Conn, inbound bool) {
	defer re.wg.Done()

	c := newConn(nc, !inbound)
	c.transition(Handshaking)

	re.mu.Lock()
	connID := re.nextConnID
	re.nextConnID++
	re.conns[connID] = c
	re.asm[connID] = NewAssembler()
	re.mu.Unlock()

	if err := WriteHandshake(nc, re.handler.LocalHandshake()); err != nil {
		re.closeConn(ctx, connID, c)
		return
	}
	peerHS, err := DecodeHandshake(nc)
	if err != nil {
		re.closeConn(ctx, connID, c)
		return
	}
	c.setPeerID(peerHS.PeerID)
	c.transition(Established)

	select {
	case re.events <- event{kind: evHandshake, connID: connID, hs: peerHS}:
	case <-ctx.Done():
		return
	}

	for {
		f, err := ReadFrame(nc)
		if err != nil {
			re.closeConn(ctx, connID, c)
			return
		}
		select {
		case re.events <- event{kind: evFrame, connID: connID, frame: f}:
		case <-ctx.Done():
			return
		}
	}
}

func (re *Reactor) closeConn(ctx context.Context, connID uint64, c *TCPConnection) {
	c.transition(Closed)
	c.Conn.Close()
	select {
	case re.events <- event{kind: evClosed, connID: connID}:
	case <-ctx.Done():
	}
}

// loop is the reactor's single serializing goroutine: every state
// mutation, every frame write, and every Handler callback happens here.
func (re *Reactor) loop(ctx context.Context) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-re.events:
			re.handleEvent(ev)
		case <-ticker.C:
			re.drainAll()
		}
	}
}

func (re *Reactor) handleEvent(ev event) {
	switch ev.kind {
	case evHandshake:
		re.handleHandshake(ev)
	case evFrame:
		re.handleFrame(ev)
	case evClosed:
		re.handleClosed(ev)
	case evTimer:
		ev.fn()
	}
}

func (re *Reactor) handleHandshake(ev event) {
	peerID := ev.hs.PeerID

	re.mu.Lock()
	q, ok := re.queues[peerID]
	if !ok {
		q = NewSendQueue(DefaultAckTimeout)
		re.queues[peerID] = q
	}
	conn := re.conns[ev.connID]
	re.mu.Unlock()

	if conn != nil {
		q.RegisterConnection(conn)
	}
	re.handler.OnEstablished(ev.hs, q)
}

func (re *Reactor) handleFrame(ev event) {
	f := ev.frame

	re.mu.Lock()
	conn := re.conns[ev.connID]
	asm := re.asm[ev.connID]
	re.mu.Unlock()
	if conn == nil {
		return
	}
	peerID := conn.peerID()

	if f.Kind == KindAck {
		if len(f.Payload) >= 4 {
			re.mu.Lock()
			q := re.queues[peerID]
			re.mu.Unlock()
			if q != nil {
				q.HandleAck(getU32(f.Payload))
			}
		}
		return
	}

	kind, payload, ok := asm.Feed(f)
	if !ok {
		return
	}

	re.handler.OnFrame(peerID, kind, f.Seq, payload)

	re.mu.Lock()
	q := re.queues[peerID]
	re.mu.Unlock()
	if q != nil {
		var ackPayload [4]byte
		putU32(ackPayload[:], f.Seq)
		q.Send(KindAck, ackPayload[:])
	}
}

func (re *Reactor) handleClosed(ev event) {
	re.mu.Lock()
	conn := re.conns[ev.connID]
	delete(re.conns, ev.connID)
	delete(re.asm, ev.connID)
	re.mu.Unlock()
	if conn == nil {
		return
	}
	peerID := conn.peerID()
	if peerID == 0 {
		return
	}

	re.mu.Lock()
	q := re.queues[peerID]
	re.mu.Unlock()
	if q != nil {
		q.ClearConnection()
	}
	re.handler.OnDisconnected(peerID)
}

// drainAll writes every established peer's queued entries, in seq
// order, chunking payloads over 64KiB as frame.go requires.
func (re *Reactor) drainAll() {
	re.mu.Lock()
	queues := make(map[uint64]*SendQueue, len(re.queues))
	for id, q := range re.queues {
		queues[id] = q
	}
	re.mu.Unlock()

	for _, q := range queues {
		re.drainQueue(q)
	}
}

func (re *Reactor) drainQueue(q *SendQueue) {
	if !q.AvailableToSend() {
		return
	}
	conn := q.Connection()
	if conn == nil {
		return
	}
	for {
		msg, ok := q.Front()
		if !ok {
			q.Empty() // retransmit anything aged past half its timeout
			return
		}
		frames := Chunk(msg.Kind, msg.Seq, msg.Payload)
		failed := false
		for _, f := range frames {
			if err := WriteFrame(conn.Conn, f); err != nil {
				failed = true
				break
			}
		}
		if failed {
			return
		}
		q.PopFront()
	}
}

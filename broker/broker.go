// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

// Package broker implements the Broker (C9) from spec.md §4.9: the glue
// between formula ingest, the task store, the runner pool, the compute
// node registry, and the transport reactor. It owns the process's one
// TCP/UDP listener pair and is the single transport.Handler /
// transport.UDPHandler bound to them.
//
// Grounded on crisp/handler.go's Crisp() dispatch-by-message-kind loop
// (the same shape, over a different message-kind enum) and on
// original_source/modules/broker/broker_compute_node.hpp's
// receiveMessage*From method family.
package broker

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/irifrance/paracube/engine"
	"github.com/irifrance/paracube/offload"
	"github.com/irifrance/paracube/path"
	"github.com/irifrance/paracube/registry"
	"github.com/irifrance/paracube/runner"
	"github.com/irifrance/paracube/task"
	"github.com/irifrance/paracube/transport"
)

// offloadSweepPeriod is how often the broker checks whether local
// backlog justifies offloading a task, per spec.md §4.6.
const offloadSweepPeriod = 500 * time.Millisecond

// Config bundles everything the broker needs to stand up a node.
type Config struct {
	LocalID  uint64
	Name     string
	Host     string
	TCPAddr  string // bind address for the reactor's listener
	UDPAddr  string // bind address for the UDP announcer
	Daemon   bool

	Task     task.Config
	Runner   runner.Config
	Registry registry.Config
	Offload  offload.Config
}

// Broker is one running node: it owns the task store, the runner pool,
// the peer registry, and drives both off the transport reactor's
// callbacks.
type Broker struct {
	cfg     Config
	factory engine.Factory
	log     *log.Logger

	store    *task.Store
	pool     *runner.Pool
	registry *registry.Registry

	reactor *transport.Reactor
	udp     *transport.UDPAnnouncer

	// protoMu/proto cache one unassumed, freshly-cloned Engine per
	// originator this node has parsed a formula for, so an inbound
	// TaskPush for that originator can clone its own copy to Assume the
	// pushed cube against, without re-parsing the CNF from scratch.
	protoMu sync.Mutex
	proto   map[uint64]engine.Engine

	ready chan struct{} // closed once Listen has bound its sockets
}

// New constructs a Broker. Call Listen to bind its sockets and start
// serving. Every collaborator (runner pool, transport reactor) is
// handed its own "paracube: <component>: "-prefixed *log.Logger at
// construction time, per spec.md §9's "no statics" design note — none
// of them reaches for the package-level log functions directly.
func New(cfg Config, factory engine.Factory) *Broker {
	store := task.NewStore(cfg.Task)
	pool := runner.New(store, cfg.Runner)
	pool.SetLogger(log.New(log.Writer(), "paracube: runner: ", log.LstdFlags))

	b := &Broker{
		cfg:     cfg,
		factory: factory,
		log:     log.New(log.Writer(), "paracube: broker: ", log.LstdFlags),
		store:   store,
		pool:    pool,
		proto:   make(map[uint64]engine.Engine),
		ready:   make(chan struct{}),
	}
	localDesc := registry.Description{
		Name:          cfg.Name,
		Host:          cfg.Host,
		Workers:       uint32(cfg.Runner.Workers),
		TCPListenPort: tcpPort(cfg.TCPAddr),
		UDPListenPort: udpPort(cfg.UDPAddr),
		Daemon:        cfg.Daemon,
	}
	b.registry = registry.New(cfg.LocalID, localDesc, store, cfg.Registry)
	store.SetRemoteDoneHandler(b.onRemoteSubtreeDone)
	return b
}

// Trace enables or disables the runner pool's per-task log lines,
// forwarding to runner.Pool.Trace; cmd/paracube wires this to
// --log-level trace/debug.
func (b *Broker) Trace(on bool) { b.pool.Trace(on) }

// IngestFormula parses src as this node's own formula, creates its root
// task, and returns the channel that receives the final result once the
// whole tree completes (spec.md §4.9's "ingest a formula, create root
// task" responsibility).
func (b *Broker) IngestFormula(originator uint64, src engine.Source) (<-chan task.Result, error) {
	parsed, err := b.factory.Parse(src)
	if err != nil {
		return nil, err
	}
	if proto, cerr := parsed.Engine.CloneForChild(); cerr == nil {
		b.protoMu.Lock()
		b.proto[originator] = proto
		b.protoMu.Unlock()
	} else {
		b.log.Printf("could not cache prototype engine for originator %d: %s", originator, cerr)
	}
	b.registry.MarkFormulaReceived(originator)
	b.registry.MarkFormulaParsed(originator)
	_, done := b.store.NewRoot(originator, parsed.Engine)
	return done, nil
}

// Listen binds the TCP and UDP sockets and starts the reactor, the
// runner pool, and the offload-sweep timer. It blocks until ctx is
// cancelled.
func (b *Broker) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.cfg.TCPAddr)
	if err != nil {
		return err
	}
	b.reactor = transport.NewReactor(ln, b)
	b.reactor.SetLogger(log.New(log.Writer(), "paracube: transport: ", log.LstdFlags))

	udp, err := transport.ListenUDP(b.cfg.UDPAddr, b)
	if err != nil {
		ln.Close()
		return err
	}
	b.udp = udp
	go udp.Serve()

	b.pool.Start(ctx)
	b.reactor.Every(offloadSweepPeriod, b.sweepOffload)
	b.reactor.Every(transport.DefaultStatusPeriod, b.gossipStatus)

	close(b.ready)
	b.reactor.Run(ctx)
	return nil
}

// Ready closes once Listen has bound its sockets and started the
// reactor and runner pool; Dial before then would race b.reactor's
// assignment. cmd/paracube waits on it before dialing --connect peers.
func (b *Broker) Ready() <-chan struct{} { return b.ready }

// Shutdown tears down the reactor, UDP listener, and runner pool.
func (b *Broker) Shutdown() {
	if b.reactor != nil {
		b.reactor.Shutdown()
	}
	if b.udp != nil {
		b.udp.Close()
	}
	b.pool.Shutdown()
}

// Dial connects to a known remote, per addr "host:port".
func (b *Broker) Dial(ctx context.Context, addr string) error {
	return b.reactor.Dial(ctx, addr)
}

// --- transport.Handler ---

// LocalHandshake implements transport.Handler.
func (b *Broker) LocalHandshake() transport.Handshake {
	return transport.Handshake{
		Version: transport.HandshakeVersion,
		PeerID:  b.cfg.LocalID,
		Workers: uint32(b.cfg.Runner.Workers),
		TCPPort: tcpPort(b.cfg.TCPAddr),
		UDPPort: udpPort(b.cfg.UDPAddr),
		Name:    b.cfg.Name,
		Host:    b.cfg.Host,
		Daemon:  b.cfg.Daemon,
	}
}

// OnEstablished implements transport.Handler: registers the peer's
// Description and immediately shares known remotes with it.
func (b *Broker) OnEstablished(peer transport.Handshake, q *transport.SendQueue) {
	b.registry.UpsertDescription(peer.PeerID, registry.Description{
		Name:          peer.Name,
		Host:          peer.Host,
		Workers:       peer.Workers,
		TCPListenPort: peer.TCPPort,
		UDPListenPort: peer.UDPPort,
		Daemon:        peer.Daemon,
	})
	remotes := b.registry.KnownRemotes()
	if len(remotes) > 0 {
		q.Send(transport.KindKnownRemotes, encodeKnownRemotes(remotes))
	}
}

// OnDisconnected implements transport.Handler by logging the disconnect.
// Tasks offloaded to that peer stay Offloaded; they are not reclaimed
// back to local work here.
func (b *Broker) OnDisconnected(peerID uint64) {
	b.log.Printf("peer %d disconnected", peerID)
}

// OnFrame implements transport.Handler, dispatching by Kind the same
// way crisp.Handler.Crisp dispatches by ProtoPoint.
func (b *Broker) OnFrame(peerID uint64, kind transport.Kind, seq uint32, payload []byte) {
	switch kind {
	case transport.KindTaskPush:
		b.handleTaskPush(payload)
	case transport.KindTaskResult:
		b.handleTaskResult(payload)
	case transport.KindStatus:
		b.handleStatus(peerID, payload)
	case transport.KindKnownRemotes:
		b.handleKnownRemotes(payload)
	case transport.KindOfflineAnnouncement:
		b.handleOffline(payload)
	case transport.KindEnd:
		// peer is draining; nothing else to do, Closed follows.
	default:
		b.log.Printf("unexpected frame kind %s from peer %d", kind, peerID)
	}
}

func (b *Broker) handleTaskPush(payload []byte) {
	key, cube, err := decodeTaskPush(payload)
	if err != nil {
		b.log.Printf("bad task-push: %s", err)
		return
	}
	b.registry.MarkFormulaReceived(key.Originator)

	b.protoMu.Lock()
	proto := b.proto[key.Originator]
	b.protoMu.Unlock()
	if proto == nil {
		b.log.Printf("task-push for unknown originator %d (formula never ingested locally)", key.Originator)
		return
	}
	eng, err := proto.CloneForChild()
	if err != nil {
		b.log.Printf("clone prototype engine for adopted task: %s", err)
		return
	}
	b.registry.MarkFormulaParsed(key.Originator)
	b.store.AdoptRemote(key, eng, cube)
}

func (b *Broker) handleTaskResult(payload []byte) {
	key, result, err := decodeTaskResult(payload)
	if err != nil {
		b.log.Printf("bad task-result: %s", err)
		return
	}
	if err := b.store.Complete(key, result); err != nil {
		b.log.Printf("complete(%v): %s", key, err)
	}
}

func (b *Broker) handleStatus(peerID uint64, payload []byte) {
	status, err := decodeStatus(payload)
	if err != nil {
		b.log.Printf("bad status: %s", err)
		return
	}
	b.registry.ApplyStatus(peerID, status)
}

func (b *Broker) handleKnownRemotes(payload []byte) {
	remotes, err := decodeKnownRemotes(payload)
	if err != nil {
		b.log.Printf("bad known-remotes: %s", err)
		return
	}
	for _, r := range remotes {
		if r.PeerID == b.cfg.LocalID {
			continue
		}
		addr := net.JoinHostPort(r.Host, portString(r.TCPPort))
		if err := b.reactor.Dial(context.Background(), addr); err != nil {
			b.log.Printf("dial known remote %s: %s", addr, err)
		}
	}
}

func (b *Broker) handleOffline(payload []byte) {
	originator, err := decodeOffline(payload)
	if err != nil {
		b.log.Printf("bad offline-announcement: %s", err)
		return
	}
	root := task.Key{Originator: originator, Path: path.Root}
	b.store.AbortSubtree(root)
}

// --- transport.UDPHandler ---

// OnAnnouncement implements transport.UDPHandler for short
// KnownRemotes/OfflineAnnouncement datagrams.
func (b *Broker) OnAnnouncement(from *net.UDPAddr, kind transport.Kind, payload []byte) {
	switch kind {
	case transport.KindKnownRemotes:
		b.handleKnownRemotes(payload)
	case transport.KindOfflineAnnouncement:
		b.handleOffline(payload)
	}
}

// --- internal machinery ---

// onRemoteSubtreeDone is the task.Store remote-done callback: an
// adopted subtree finished. The result is broadcast as a TaskResult;
// Store.Complete is idempotent and keyed by (originator, path), so only
// the peer actually holding that task's parent acts on it.
func (b *Broker) onRemoteSubtreeDone(key task.Key, result task.Result) {
	payload := encodeTaskResult(key, result)
	b.reactor.Broadcast(transport.KindTaskResult, payload)
}

func (b *Broker) sweepOffload() {
	if !offload.ShouldOffload(b.store.ReadyLen(), b.cfg.Runner.Workers, b.cfg.Offload) {
		return
	}
	key, ok := b.store.PopWork()
	if !ok {
		return
	}
	t := b.store.Get(key)
	if t == nil {
		return
	}
	if !t.Offloadable() {
		b.store.Reclaim(key) // not a candidate; give it back to a local worker
		return
	}
	peer, ok := offload.Target(b.registry, b.cfg.LocalID, b.cfg.Offload)
	if !ok {
		b.store.Reclaim(key) // no qualifying peer; hand it back to a local worker
		return
	}
	if err := b.store.AssignRemote(key, peer); err != nil {
		b.log.Printf("assign_remote: %s", err)
		return
	}
	if _, sent := b.reactor.Send(peer, transport.KindTaskPush, encodeTaskPush(key, t.Cube)); !sent {
		b.store.Reclaim(key)
	}
}

func (b *Broker) gossipStatus() {
	current := b.registry.LocalStatus()
	for _, peerID := range b.registry.PeerIDs(true) {
		if !b.registry.ConditionallySendStatusTo(peerID, current) {
			continue
		}
		if _, ok := b.reactor.Send(peerID, transport.KindStatus, encodeStatus(current)); !ok {
			b.registry.DoneSending(peerID)
			continue
		}
		b.registry.DoneSending(peerID)
	}
}

func tcpPort(addr string) uint16 { return parsePort(addr) }
func udpPort(addr string) uint16 { return parsePort(addr) }

func parsePort(addr string) uint16 {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	var p uint16
	for _, c := range portStr {
		if c < '0' || c > '9' {
			return 0
		}
		p = p*10 + uint16(c-'0')
	}
	return p
}

func portString(p uint16) string {
	if p == 0 {
		return "0"
	}
	digits := [5]byte{}
	i := len(digits)
	for p > 0 {
		i--
		digits[i] = byte('0' + p%10)
		p /= 10
	}
	return string(digits[i:])
}

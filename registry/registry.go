// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package registry

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func keyString(id uint64) string { return strconv.FormatUint(id, 10) }

// QueueSizer is the subset of task.Store the registry needs to compute
// the local node's own Status on demand, without importing the task
// package and risking an import cycle (task never needs registry).
type QueueSizer interface {
	QueueSizeByOriginator() map[uint64]uint64
}

var (
	utilizationGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "paracube",
		Name:      "peer_utilization",
		Help:      "Current utilization of a known peer, (running+queued)/workers.",
	}, []string{"peer"})

	queueSizeGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "paracube",
		Name:      "originator_queue_size",
		Help:      "Work-queue size of an originator's tasks, as last reported by a remote peer.",
	}, []string{"originator"})
)

// RemoteInfo is one entry of known_remotes(): enough for a newcomer to
// dial the peer directly.
type RemoteInfo struct {
	PeerID   uint64
	Host     string
	TCPPort  uint16
}

// Registry is the peer table plus the local node's authoritative status
// (spec.md §4.5). One instance per running node.
type Registry struct {
	mu      sync.RWMutex
	nodes   map[uint64]*node
	localID uint64
	cfg     Config
	store   QueueSizer

	parsedMu sync.Mutex
	parsed   map[uint64]bool // originator -> formula parsed locally
	received map[uint64]bool
}

// New returns a Registry seeded with the local node's own entry.
func New(localID uint64, localDesc Description, store QueueSizer, cfg Config) *Registry {
	if cfg.StatusRelDelta == 0 {
		cfg = DefaultConfig
	}
	localDesc.Local = true
	r := &Registry{
		nodes:    make(map[uint64]*node),
		localID:  localID,
		cfg:      cfg,
		store:    store,
		parsed:   make(map[uint64]bool),
		received: make(map[uint64]bool),
	}
	local := newNode(localID)
	local.setDescription(localDesc)
	r.nodes[localID] = local
	return r
}

// UpsertDescription inserts or replaces peerID's Description. Idempotent:
// a later call for the same peer simply supersedes the earlier one.
func (r *Registry) UpsertDescription(peerID uint64, desc Description) {
	r.mu.Lock()
	n, ok := r.nodes[peerID]
	if !ok {
		n = newNode(peerID)
		r.nodes[peerID] = n
	}
	r.mu.Unlock()
	n.setDescription(desc)
}

// ApplyStatus records a remote peer's reported Status snapshot.
func (r *Registry) ApplyStatus(peerID uint64, status Status) {
	n := r.get(peerID)
	if n == nil {
		return
	}
	n.setStatus(status)
	queueSizeGauge.Reset()
	for originator, si := range status.SolverInstances {
		queueSizeGauge.WithLabelValues(keyString(originator)).Set(float64(si.WorkQueueSize))
	}
}

func (r *Registry) get(peerID uint64) *node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes[peerID]
}

// MarkFormulaReceived records that originator's formula bytes arrived
// locally, reflected in the next LocalStatus().
func (r *Registry) MarkFormulaReceived(originator uint64) {
	r.parsedMu.Lock()
	r.received[originator] = true
	r.parsedMu.Unlock()
}

// MarkFormulaParsed records that originator's formula has been parsed
// into an engine locally.
func (r *Registry) MarkFormulaParsed(originator uint64) {
	r.parsedMu.Lock()
	r.parsed[originator] = true
	r.parsedMu.Unlock()
}

// LocalStatus computes the local node's current Status from C3's task
// store: per-originator work-queue size plus the received/parsed flags.
func (r *Registry) LocalStatus() Status {
	sizes := map[uint64]uint64{}
	if r.store != nil {
		sizes = r.store.QueueSizeByOriginator()
	}

	r.parsedMu.Lock()
	defer r.parsedMu.Unlock()

	seen := make(map[uint64]bool)
	status := Status{SolverInstances: make(map[uint64]SolverInstance)}
	for originator, size := range sizes {
		seen[originator] = true
		status.SolverInstances[originator] = SolverInstance{
			FormulaReceived: r.received[originator],
			FormulaParsed:   r.parsed[originator],
			WorkQueueSize:   size,
		}
	}
	for originator := range r.received {
		if !seen[originator] {
			status.SolverInstances[originator] = SolverInstance{
				FormulaReceived: true,
				FormulaParsed:   r.parsed[originator],
			}
		}
	}
	return status
}

// ConditionallySendStatusTo reports whether the local node should
// publish `current` to peerID: isDiffWorthwhile(shadow, current) holds
// and no publish to that peer is already in flight. On true, the shadow
// is updated and the in-flight guard set; the caller must call
// DoneSending once the publish completes (success or failure).
//
// Grounded on ComputeNode::conditionallySendStatusTo plus its dirty
// flag / m_writeFlag test-and-set pair.
func (r *Registry) ConditionallySendStatusTo(peerID uint64, current Status) bool {
	n := r.get(peerID)
	if n == nil {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sending {
		return false
	}
	if !isDiffWorthwhile(n.shadow, current, r.cfg) {
		return false
	}
	n.sending = true
	n.shadow = current.clone()
	n.dirty = false
	return true
}

// DoneSending clears the in-flight publish guard set by
// ConditionallySendStatusTo.
func (r *Registry) DoneSending(peerID uint64) {
	n := r.get(peerID)
	if n == nil {
		return
	}
	n.mu.Lock()
	n.sending = false
	n.mu.Unlock()
}

// KnownRemotes lists every non-local peer with a live Description, for
// the known-remotes gossip broadcast.
func (r *Registry) KnownRemotes() []RemoteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RemoteInfo, 0, len(r.nodes))
	for id, n := range r.nodes {
		if id == r.localID {
			continue
		}
		d := n.description()
		if d == nil {
			continue // partially described nodes are not visible
		}
		out = append(out, RemoteInfo{PeerID: id, Host: d.Host, TCPPort: d.TCPListenPort})
	}
	return out
}

// Utilization returns (running+queued)/workers for peerID, clamped to
// [0, +inf). Peers with a zero or unknown worker count report 0 rather
// than dividing by zero.
func (r *Registry) Utilization(peerID uint64) float32 {
	return r.FutureUtilization(peerID, 0)
}

// FutureUtilization adds extra/workers to Utilization, modeling the
// effect of offloading `extra` more tasks to peerID.
func (r *Registry) FutureUtilization(peerID uint64, extra uint64) float32 {
	n := r.get(peerID)
	if n == nil {
		return 0
	}
	var queue uint64
	var workers uint32
	if peerID == r.localID && r.store != nil {
		for _, v := range r.store.QueueSizeByOriginator() {
			queue += v
		}
		workers = n.workerCount()
	} else {
		queue = n.queueSize()
		workers = n.workerCount()
	}
	if workers == 0 {
		return 0
	}
	u := float32(queue+extra) / float32(workers)
	if u < 0 {
		u = 0
	}
	utilizationGauge.WithLabelValues(keyString(peerID)).Set(float64(u))
	return u
}

// PeerIDs lists every known peer with a live Description, excluding the
// local node when excludeSelf is set.
func (r *Registry) PeerIDs(excludeSelf bool) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.nodes))
	for id, n := range r.nodes {
		if excludeSelf && id == r.localID {
			continue
		}
		if n.description() == nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// PeerByLowestUtilization returns the non-offloaded peer with the
// lowest Utilization, excluding the local node when excludeSelf is set.
func (r *Registry) PeerByLowestUtilization(excludeSelf bool) (uint64, bool) {
	best, bestU, found := uint64(0), float32(0), false
	for _, id := range r.PeerIDs(excludeSelf) {
		u := r.Utilization(id)
		if !found || u < bestU {
			best, bestU, found = id, u, true
		}
	}
	return best, found
}

// PeerSnapshot is one peer's description and last-known status,
// assembled for the read-only HTTP status surface.
type PeerSnapshot struct {
	PeerID      uint64
	Description Description
	Status      Status
	Utilization float32
}

// Snapshot returns every known peer's Description and Status, the local
// node included, for broker/httpapi.go's /status endpoint.
func (r *Registry) Snapshot() []PeerSnapshot {
	r.mu.RLock()
	ids := make([]uint64, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	out := make([]PeerSnapshot, 0, len(ids))
	for _, id := range ids {
		n := r.get(id)
		if n == nil {
			continue
		}
		d := n.description()
		var desc Description
		if d != nil {
			desc = *d
		}
		if id == r.localID {
			out = append(out, PeerSnapshot{PeerID: id, Description: desc, Status: r.LocalStatus(), Utilization: r.Utilization(id)})
			continue
		}
		n.mu.RLock()
		status := n.status.clone()
		n.mu.RUnlock()
		out = append(out, PeerSnapshot{PeerID: id, Description: desc, Status: status, Utilization: r.Utilization(id)})
	}
	return out
}

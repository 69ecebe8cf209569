// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

// Package registry implements the Compute-Node Registry (spec.md §4.5):
// the peer table, status gossip diff-worthiness, and the utilization
// metric the offload policy (C6) reads.
package registry

import "sync"

// Description is a peer's static identity, gossiped once on connect and
// superseded only by a later Description for the same peer.
//
// Grounded on original_source/modules/broker/broker_compute_node.hpp's
// ComputeNode::Description, minus its cereal serialize() method — wire
// encoding is transport's concern, not the registry's.
type Description struct {
	Name          string
	Host          string
	Workers       uint32
	UDPListenPort uint16
	TCPListenPort uint16
	Daemon        bool
	Local         bool
}

// SolverInstance is one originator's state on a given peer.
type SolverInstance struct {
	FormulaReceived bool
	FormulaParsed   bool
	WorkQueueSize   uint64
}

// Status is a peer's reported (or, for the local node, computed) state
// across every originator it knows about.
type Status struct {
	SolverInstances map[uint64]SolverInstance // keyed by originator id
}

// clone returns a deep copy, since Status values are handed across the
// dirty/shadow comparison boundary and must not alias the caller's map.
func (st Status) clone() Status {
	out := Status{SolverInstances: make(map[uint64]SolverInstance, len(st.SolverInstances))}
	for k, v := range st.SolverInstances {
		out.SolverInstances[k] = v
	}
	return out
}

// node is one entry in the registry, local or remote.
type node struct {
	mu sync.RWMutex

	peerID uint64
	desc   *Description
	status Status

	// shadow is the last Status we actually sent to this peer about our
	// own local state, used to gate further publishes (spec.md §4.5's
	// "cached local→remote status shadow").
	shadow  Status
	dirty   bool
	sending bool // single-writer test-and-set: at most one in-flight publish
}

func newNode(peerID uint64) *node {
	return &node{
		peerID: peerID,
		status: Status{SolverInstances: make(map[uint64]SolverInstance)},
		shadow: Status{SolverInstances: make(map[uint64]SolverInstance)},
		dirty:  true,
	}
}

func (n *node) setDescription(d Description) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.desc = &d
}

func (n *node) description() *Description {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.desc
}

func (n *node) setStatus(s Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = s.clone()
}

func (n *node) workerCount() uint32 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.desc == nil {
		return 0
	}
	return n.desc.Workers
}

func (n *node) queueSize() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var total uint64
	for _, si := range n.status.SolverInstances {
		total += si.WorkQueueSize
	}
	return total
}

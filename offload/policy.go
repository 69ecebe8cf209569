// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

// Package offload implements the Offload Policy (spec.md §4.6): deciding
// when a task should leave the local node and which peer should receive
// it.
package offload

// Utilizer is the subset of registry.Registry the policy needs: local
// utilization plus the best remote candidate's projected utilization.
//
// Grounded on original_source/modules/broker/broker_compute_node.hpp's
// ComputeNode::compareByUtilization and tryToOffloadTask, kept here as a
// narrow interface so offload never imports registry directly (registry
// stays a pure data structure; offload is the policy layered on top).
type Utilizer interface {
	Utilization(peerID uint64) float32
	FutureUtilization(peerID uint64, extra uint64) float32
	PeerIDs(excludeSelf bool) []uint64
}

// Config tunes the offload decision.
type Config struct {
	// Epsilon is the hysteresis margin: a candidate peer must be at
	// least this much less utilized than the local node to be chosen,
	// avoiding an offload/reclaim oscillation between two close peers.
	Epsilon float32
	// Backlog is K_offload: the ready-queue backlog, in multiples of
	// the worker count, above which offload is considered even absent
	// an Offloadable-marked task.
	Backlog int
}

// DefaultConfig matches spec.md §4.6's stated defaults.
var DefaultConfig = Config{Epsilon: 0.25, Backlog: 4}

// ShouldOffload reports whether the ready-queue backlog alone justifies
// asking for an offload target, independent of any Offloadable mark on
// a specific task.
func ShouldOffload(readyLen, workers int, cfg Config) bool {
	if workers <= 0 {
		return false
	}
	bound := cfg.Backlog
	if bound <= 0 {
		bound = DefaultConfig.Backlog
	}
	return readyLen > workers*bound
}

// Target picks the offload destination for one task: the peer with the
// lowest future_utilization(peer, 1) that is still at least Epsilon
// below the local node's current utilization. It returns ok=false if no
// peer qualifies, in which case the caller must leave the task local.
func Target(u Utilizer, localID uint64, cfg Config) (peerID uint64, ok bool) {
	eps := cfg.Epsilon
	if eps == 0 {
		eps = DefaultConfig.Epsilon
	}

	local := u.Utilization(localID)
	threshold := local - eps

	best, bestFuture, found := uint64(0), float32(0), false
	for _, peer := range u.PeerIDs(true) {
		fu := u.FutureUtilization(peer, 1)
		if !found || fu < bestFuture {
			best, bestFuture, found = peer, fu, true
		}
	}
	if !found || bestFuture > threshold {
		return 0, false
	}
	return best, true
}

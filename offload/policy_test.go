// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package offload

import "testing"

type fakeUtilizer struct {
	local   float32
	peers   map[uint64]float32 // peer -> future_utilization(peer,1)
	current map[uint64]float32
}

func (f fakeUtilizer) Utilization(peerID uint64) float32 {
	if peerID == 0 {
		return f.local
	}
	return f.current[peerID]
}

func (f fakeUtilizer) FutureUtilization(peerID uint64, extra uint64) float32 {
	return f.peers[peerID]
}

func (f fakeUtilizer) PeerIDs(excludeSelf bool) []uint64 {
	ids := make([]uint64, 0, len(f.peers))
	for id := range f.peers {
		ids = append(ids, id)
	}
	return ids
}

func TestTargetPicksLowestQualifyingFutureUtilization(t *testing.T) {
	u := fakeUtilizer{
		local: 1.0,
		peers: map[uint64]float32{2: 0.5, 3: 0.3},
	}
	peer, ok := Target(u, 0, DefaultConfig)
	if !ok || peer != 3 {
		t.Fatalf("Target = (%v,%v), want (3,true)", peer, ok)
	}
}

func TestTargetRejectsWhenNoPeerBelowThreshold(t *testing.T) {
	u := fakeUtilizer{
		local: 0.4,
		peers: map[uint64]float32{2: 0.35, 3: 0.3},
	}
	_, ok := Target(u, 0, DefaultConfig)
	if ok {
		t.Fatalf("expected no qualifying peer: local=0.4, eps=0.25, best peer future=0.3 > 0.15")
	}
}

func TestTargetRejectsWithNoPeers(t *testing.T) {
	u := fakeUtilizer{local: 1.0, peers: map[uint64]float32{}}
	if _, ok := Target(u, 0, DefaultConfig); ok {
		t.Fatalf("expected no target with an empty peer set")
	}
}

func TestShouldOffloadOnBacklog(t *testing.T) {
	if !ShouldOffload(20, 4, DefaultConfig) {
		t.Fatalf("expected backlog of 20 over 4 workers (bound 16) to trigger offload")
	}
	if ShouldOffload(10, 4, DefaultConfig) {
		t.Fatalf("expected backlog of 10 under the bound to not trigger offload")
	}
}

func TestShouldOffloadWithZeroWorkers(t *testing.T) {
	if ShouldOffload(100, 0, DefaultConfig) {
		t.Fatalf("expected zero workers to never trigger offload")
	}
}

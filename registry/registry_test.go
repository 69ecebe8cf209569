// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package registry

import "testing"

type fakeQueueSizer map[uint64]uint64

func (f fakeQueueSizer) QueueSizeByOriginator() map[uint64]uint64 { return f }

func TestUpsertDescriptionIsIdempotent(t *testing.T) {
	r := New(1, Description{Name: "local", Workers: 4}, nil, DefaultConfig)
	r.UpsertDescription(2, Description{Name: "a", Host: "10.0.0.2", Workers: 4})
	r.UpsertDescription(2, Description{Name: "a-renamed", Host: "10.0.0.2", Workers: 8})

	remotes := r.KnownRemotes()
	if len(remotes) != 1 {
		t.Fatalf("KnownRemotes = %v, want exactly one peer", remotes)
	}
	n := r.get(2)
	if n.description().Workers != 8 {
		t.Fatalf("later description did not supersede earlier one")
	}
}

func TestUtilizationComputesRunningPlusQueuedOverWorkers(t *testing.T) {
	r := New(1, Description{Workers: 4}, nil, DefaultConfig)
	r.UpsertDescription(2, Description{Workers: 4})
	r.ApplyStatus(2, Status{SolverInstances: map[uint64]SolverInstance{
		100: {WorkQueueSize: 3},
		200: {WorkQueueSize: 5},
	}})

	got := r.Utilization(2)
	want := float32(8) / float32(4)
	if got != want {
		t.Fatalf("Utilization = %v, want %v", got, want)
	}
}

func TestFutureUtilizationAddsExtra(t *testing.T) {
	r := New(1, Description{Workers: 4}, nil, DefaultConfig)
	r.UpsertDescription(2, Description{Workers: 4})
	r.ApplyStatus(2, Status{SolverInstances: map[uint64]SolverInstance{
		100: {WorkQueueSize: 2},
	}})

	got := r.FutureUtilization(2, 2)
	want := float32(4) / float32(4)
	if got != want {
		t.Fatalf("FutureUtilization = %v, want %v", got, want)
	}
}

func TestPeerByLowestUtilizationExcludesSelf(t *testing.T) {
	r := New(1, Description{Workers: 4}, fakeQueueSizer{900: 100}, DefaultConfig)
	r.UpsertDescription(2, Description{Workers: 4})
	r.ApplyStatus(2, Status{SolverInstances: map[uint64]SolverInstance{100: {WorkQueueSize: 1}}})
	r.UpsertDescription(3, Description{Workers: 4})
	r.ApplyStatus(3, Status{SolverInstances: map[uint64]SolverInstance{100: {WorkQueueSize: 3}}})

	best, ok := r.PeerByLowestUtilization(true)
	if !ok || best != 2 {
		t.Fatalf("PeerByLowestUtilization = (%v,%v), want (2,true)", best, ok)
	}
}

func TestPeerByLowestUtilizationSkipsUndescribedNodes(t *testing.T) {
	r := New(1, Description{Workers: 4}, nil, DefaultConfig)
	if _, ok := r.PeerByLowestUtilization(true); ok {
		t.Fatalf("expected no peer when only the local node is registered")
	}
}

func TestLocalStatusReflectsStoreAndParsedFlags(t *testing.T) {
	r := New(1, Description{Workers: 4}, fakeQueueSizer{42: 5}, DefaultConfig)
	r.MarkFormulaReceived(42)
	r.MarkFormulaParsed(42)

	s := r.LocalStatus()
	si, ok := s.SolverInstances[42]
	if !ok {
		t.Fatalf("LocalStatus missing originator 42")
	}
	if si.WorkQueueSize != 5 || !si.FormulaParsed || !si.FormulaReceived {
		t.Fatalf("LocalStatus = %+v, want {true,true,5}", si)
	}
}

func TestConditionallySendStatusToGatesOnDiffAndInFlight(t *testing.T) {
	r := New(1, Description{Workers: 4}, nil, DefaultConfig)
	r.UpsertDescription(2, Description{Workers: 4})

	s1 := Status{SolverInstances: map[uint64]SolverInstance{100: {WorkQueueSize: 1}}}
	if !r.ConditionallySendStatusTo(2, s1) {
		t.Fatalf("expected first status publish to be worthwhile")
	}
	// Same status again before DoneSending: in-flight guard blocks it.
	if r.ConditionallySendStatusTo(2, s1) {
		t.Fatalf("expected second publish to be blocked while one is in flight")
	}
	r.DoneSending(2)

	// Unchanged status: not worth a new publish.
	s2 := Status{SolverInstances: map[uint64]SolverInstance{100: {WorkQueueSize: 1}}}
	if r.ConditionallySendStatusTo(2, s2) {
		t.Fatalf("expected unchanged status to not be worth sending")
	}
}

func TestIsDiffWorthwhileOnParsedFlip(t *testing.T) {
	prev := Status{SolverInstances: map[uint64]SolverInstance{1: {FormulaParsed: false}}}
	next := Status{SolverInstances: map[uint64]SolverInstance{1: {FormulaParsed: true}}}
	if !isDiffWorthwhile(prev, next, DefaultConfig) {
		t.Fatalf("expected parsed-flag flip to be diff-worthy")
	}
}

func TestIsDiffWorthwhileOnRelativeQueueChange(t *testing.T) {
	prev := Status{SolverInstances: map[uint64]SolverInstance{1: {WorkQueueSize: 10}}}
	next := Status{SolverInstances: map[uint64]SolverInstance{1: {WorkQueueSize: 13}}}
	if !isDiffWorthwhile(prev, next, DefaultConfig) {
		t.Fatalf("expected a 30%% queue-size change to be diff-worthy")
	}
}

func TestIsDiffWorthwhileFalseBelowBothThresholds(t *testing.T) {
	prev := Status{SolverInstances: map[uint64]SolverInstance{1: {WorkQueueSize: 100}}}
	next := Status{SolverInstances: map[uint64]SolverInstance{1: {WorkQueueSize: 102}}}
	if isDiffWorthwhile(prev, next, DefaultConfig) {
		t.Fatalf("expected a tiny queue-size change to not be diff-worthy")
	}
}

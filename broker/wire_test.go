// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package broker

import (
	"testing"

	"github.com/irifrance/paracube/engine"
	"github.com/irifrance/paracube/path"
	"github.com/irifrance/paracube/registry"
	"github.com/irifrance/paracube/task"
)

func TestTaskPushRoundTrip(t *testing.T) {
	p, _ := path.Root.Extend(1)
	p, _ = p.Extend(0)
	k := task.Key{Originator: 42, Path: p}
	cube := []engine.Lit{1, -2, 3}

	gotK, gotCube, err := decodeTaskPush(encodeTaskPush(k, cube))
	if err != nil {
		t.Fatalf("decodeTaskPush: %s", err)
	}
	if !gotK.Path.Equal(k.Path) || gotK.Originator != k.Originator {
		t.Fatalf("key mismatch: got %+v, want %+v", gotK, k)
	}
	if len(gotCube) != len(cube) {
		t.Fatalf("cube length = %d, want %d", len(gotCube), len(cube))
	}
	for i := range cube {
		if gotCube[i] != cube[i] {
			t.Fatalf("cube[%d] = %d, want %d", i, gotCube[i], cube[i])
		}
	}
}

func TestTaskResultRoundTrip(t *testing.T) {
	k := task.Key{Originator: 7, Path: path.Root}
	gotK, gotResult, err := decodeTaskResult(encodeTaskResult(k, task.ResultUNSAT))
	if err != nil {
		t.Fatalf("decodeTaskResult: %s", err)
	}
	if gotResult != task.ResultUNSAT {
		t.Fatalf("result = %s, want UNSAT", gotResult)
	}
	if !gotK.Path.Equal(k.Path) {
		t.Fatal("path mismatch")
	}
}

func TestStatusRoundTrip(t *testing.T) {
	want := registry.Status{SolverInstances: map[uint64]registry.SolverInstance{
		1: {FormulaReceived: true, FormulaParsed: false, WorkQueueSize: 12},
		2: {FormulaReceived: true, FormulaParsed: true, WorkQueueSize: 0},
	}}
	got, err := decodeStatus(encodeStatus(want))
	if err != nil {
		t.Fatalf("decodeStatus: %s", err)
	}
	if len(got.SolverInstances) != len(want.SolverInstances) {
		t.Fatalf("got %d instances, want %d", len(got.SolverInstances), len(want.SolverInstances))
	}
	for originator, si := range want.SolverInstances {
		if got.SolverInstances[originator] != si {
			t.Fatalf("instance %d = %+v, want %+v", originator, got.SolverInstances[originator], si)
		}
	}
}

func TestKnownRemotesRoundTrip(t *testing.T) {
	want := []registry.RemoteInfo{
		{PeerID: 1, Host: "10.0.0.1", TCPPort: 7000},
		{PeerID: 2, Host: "host-b", TCPPort: 7001},
	}
	got, err := decodeKnownRemotes(encodeKnownRemotes(want))
	if err != nil {
		t.Fatalf("decodeKnownRemotes: %s", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d remotes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("remote[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestOfflineRoundTrip(t *testing.T) {
	got, err := decodeOffline(encodeOffline(99))
	if err != nil {
		t.Fatalf("decodeOffline: %s", err)
	}
	if got != 99 {
		t.Fatalf("originator = %d, want 99", got)
	}
}

func TestDecodeTaskPushRejectsShortPayload(t *testing.T) {
	if _, _, err := decodeTaskPush([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short task-push payload")
	}
}

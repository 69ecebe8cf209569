// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package engine

import (
	"context"
	"testing"
)

func TestLookaheadSplitPicksOccurringVar(t *testing.T) {
	clauses := [][]int32{
		{1, 2},
		{-1, 2},
		{1, -2},
	}
	s := lookaheadSplit(context.Background(), clauses, 2, 0, 1, 10)
	if s.Kind != Splitted {
		t.Fatalf("expected Splitted, got %v", s.Kind)
	}
	if s.Literal != 1 && s.Literal != -1 {
		t.Fatalf("expected split on variable 1 (ties in score go to the lowest variable), got %d", s.Literal)
	}
}

func TestLookaheadSplitNoClauses(t *testing.T) {
	s := lookaheadSplit(context.Background(), nil, 0, 0, 1, 10)
	if s.Kind != NoSplitsLeft {
		t.Fatalf("expected NoSplitsLeft for empty formula, got %v", s.Kind)
	}
}

func TestLookaheadSplitRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := lookaheadSplit(ctx, [][]int32{{1, 2}}, 2, 0, 1, 10)
	if s.Kind != NoSplitsLeft {
		t.Fatalf("expected NoSplitsLeft on cancelled context, got %v", s.Kind)
	}
}

func TestLookaheadSplitStopsAtMaxDepth(t *testing.T) {
	clauses := [][]int32{
		{1, 2},
		{-1, 2},
		{1, -2},
	}
	s := lookaheadSplit(context.Background(), clauses, 2, 10, 1, 10)
	if s.Kind != NoSplitsLeft {
		t.Fatalf("expected NoSplitsLeft at depth == maxDepth, got %v", s.Kind)
	}
	s = lookaheadSplit(context.Background(), clauses, 2, 11, 1, 10)
	if s.Kind != NoSplitsLeft {
		t.Fatalf("expected NoSplitsLeft at depth > maxDepth, got %v", s.Kind)
	}
	s = lookaheadSplit(context.Background(), clauses, 2, 9, 1, 10)
	if s.Kind != Splitted {
		t.Fatalf("expected Splitted below maxDepth, got %v", s.Kind)
	}
}

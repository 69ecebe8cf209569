// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

// Package engine defines the uniform contract Paracube's task store uses
// to drive a pluggable CDCL back end (spec.md §4.2), and a production
// implementation backed by github.com/go-air/gini.
package engine

import (
	"context"
	"time"
)

// Result is the outcome of a Solve call.
type Result int

const (
	Unknown Result = iota
	SAT
	UNSAT
	Aborted
)

func (r Result) String() string {
	switch r {
	case SAT:
		return "SAT"
	case UNSAT:
		return "UNSAT"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// SplitKind distinguishes the outcomes of GenerateCubes.
type SplitKind int

const (
	// Splitted means a split literal was chosen; Literal is set.
	Splitted SplitKind = iota
	SplitSAT
	SplitUNSAT
	NoSplitsLeft
)

// Split is the return value of GenerateCubes.
type Split struct {
	Kind    SplitKind
	Literal int32 // valid iff Kind == Splitted; signed DIMACS literal
}

// Lit is a signed DIMACS literal: positive for a true assumption on the
// variable, negative for false.  Zero is never a valid literal.
type Lit = int32

// Engine is the contract the task store (C3) and runner pool (C4) use to
// drive an arbitrary CDCL back end.  It exposes no state beyond these
// operations — everything else about the underlying solver is opaque.
type Engine interface {
	// CloneForChild produces an independent engine pre-loaded with this
	// engine's clauses.  Children never mutate the parent's state.
	CloneForChild() (Engine, error)

	// Assume sets the current assumption set; subsequent Solve calls
	// operate under these assumptions only.
	Assume(cube []Lit)

	// Solve runs the decision procedure under the current assumptions.
	// It may be interrupted by Terminate from another goroutine; after
	// termination, Solve returns Aborted.
	Solve(ctx context.Context) Result

	// GenerateCubes performs a one-step lookahead to pick a split
	// literal, honoring the deadline on ctx.  depth is the calling
	// task's current position in the cube tree (path.Path.Depth());
	// once depth reaches maxDepth, GenerateCubes returns NoSplitsLeft
	// regardless of what the lookahead would otherwise pick, so the
	// caller falls back to a local Solve instead of splitting past the
	// tree's depth limit. On timeout it also returns NoSplitsLeft
	// rather than blocking past the deadline.
	GenerateCubes(ctx context.Context, depth, minDepth, maxDepth int) Split

	// Terminate is an idempotent asynchronous cancel, safe to call from
	// any goroutine while Solve or GenerateCubes is running.
	Terminate()

	// Assignment returns the satisfying assignment after a SAT result.
	// Its behavior is undefined if the last Solve did not return SAT.
	Assignment() []Lit

	// MaxVar returns the highest variable number seen so far.
	MaxVar() int
}

// Source is an in-memory or on-disk CNF formula handed to Parse.
type Source struct {
	// Path is a filesystem path; empty if Data is used instead.
	Path string
	// Data is an in-memory DIMACS blob.  If set, Parse materializes a
	// temp file for it and removes the temp file once parsing is done.
	Data []byte
}

// Parsed is the result of successfully parsing a Source: the loaded
// engine plus any pregenerated cube table found in the input (spec.md §6).
type Parsed struct {
	Engine Engine
	// Cubes holds pregenerated cubes read from "a <lit>* 0" lines, in
	// file order.  Nil if the input carried none.
	Cubes [][]Lit
	// NumVars and NumClauses come from the "p cnf" header.
	NumVars, NumClauses int
}

// Factory builds a fresh, empty Engine and parses a Source into it.
// GiniFactory is the production implementation.
type Factory interface {
	Parse(src Source) (*Parsed, error)
}

// defaultLookaheadBudget bounds how long GenerateCubes may spend picking
// a literal before giving up and reporting NoSplitsLeft, absent a tighter
// deadline on the context passed in.
const defaultLookaheadBudget = 2 * time.Second

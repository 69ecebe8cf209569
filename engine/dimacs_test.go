// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package engine

import (
	"strings"
	"testing"
)

type fakeAdder struct {
	clauses [][]int32
	cur     []int32
}

func (a *fakeAdder) Add(lit int32) {
	if lit == 0 {
		a.clauses = append(a.clauses, a.cur)
		a.cur = nil
		return
	}
	a.cur = append(a.cur, lit)
}

func TestReadDimacsClauses(t *testing.T) {
	src := "c a comment\np cnf 2 1\n1 2 0\n"
	a := &fakeAdder{}
	numVars, numClauses, cubes, err := ReadDimacs(strings.NewReader(src), a)
	if err != nil {
		t.Fatalf("ReadDimacs: %s", err)
	}
	if numVars != 2 || numClauses != 1 {
		t.Fatalf("header = (%d,%d), want (2,1)", numVars, numClauses)
	}
	if len(a.clauses) != 1 || len(a.clauses[0]) != 2 {
		t.Fatalf("clauses = %v, want one clause of two literals", a.clauses)
	}
	if cubes != nil {
		t.Fatalf("expected no cubes, got %v", cubes)
	}
}

func TestReadDimacsCubeTable(t *testing.T) {
	src := "p cnf 2 1\n1 2 0\na 1 0\na -1 0\n"
	a := &fakeAdder{}
	_, _, cubes, err := ReadDimacs(strings.NewReader(src), a)
	if err != nil {
		t.Fatalf("ReadDimacs: %s", err)
	}
	want := [][]int32{{1}, {-1}}
	if len(cubes) != len(want) {
		t.Fatalf("cubes = %v, want %v", cubes, want)
	}
	for i := range want {
		if len(cubes[i]) != 1 || cubes[i][0] != want[i][0] {
			t.Fatalf("cubes[%d] = %v, want %v", i, cubes[i], want[i])
		}
	}
}

func TestReadDimacsMissingHeader(t *testing.T) {
	a := &fakeAdder{}
	if _, _, _, err := ReadDimacs(strings.NewReader("1 2 0\n"), a); err == nil {
		t.Fatalf("expected error for clause before header")
	}
}

func TestReadDimacsMalformedHeader(t *testing.T) {
	a := &fakeAdder{}
	if _, _, _, err := ReadDimacs(strings.NewReader("p cnf 2\n"), a); err == nil {
		t.Fatalf("expected error for malformed header")
	}
}

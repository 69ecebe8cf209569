// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package engine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Adder receives clause literals one at a time, zero-terminated, exactly
// like github.com/go-air/gini's inter.Adder.  ReadDimacs feeds clauses to
// an Adder so it can drive any Engine implementation, not only gini's.
type Adder interface {
	Add(lit int32)
}

// ReadDimacs scans DIMACS CNF from r, feeding clause literals to dst and
// collecting any pregenerated cube table found in "a <lit>* 0" lines
// (spec.md §6's extension to the format).  Lines beginning with 'c' are
// comments; "p cnf <vars> <clauses>" is the header.
//
// Grounded on other_examples/adenizgelir0-satfarm's line-oriented header
// scan, generalized to also read clause bodies and the cube extension.
func ReadDimacs(r io.Reader, dst Adder) (numVars, numClauses int, cubes [][]int32, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	sawHeader := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "c") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "p":
			if len(fields) < 4 || fields[1] != "cnf" {
				return 0, 0, nil, fmt.Errorf("dimacs: malformed header %q", line)
			}
			numVars, err = strconv.Atoi(fields[2])
			if err != nil {
				return 0, 0, nil, fmt.Errorf("dimacs: bad var count: %w", err)
			}
			numClauses, err = strconv.Atoi(fields[3])
			if err != nil {
				return 0, 0, nil, fmt.Errorf("dimacs: bad clause count: %w", err)
			}
			sawHeader = true
		case "a":
			cube, cerr := parseTerminatedInts(fields[1:])
			if cerr != nil {
				return 0, 0, nil, fmt.Errorf("dimacs: bad cube line %q: %w", line, cerr)
			}
			cubes = append(cubes, cube)
		default:
			if !sawHeader {
				return 0, 0, nil, fmt.Errorf("dimacs: clause before header: %q", line)
			}
			lits, lerr := parseTerminatedInts(fields)
			if lerr != nil {
				return 0, 0, nil, fmt.Errorf("dimacs: bad clause %q: %w", line, lerr)
			}
			for _, lit := range lits {
				dst.Add(lit)
			}
			dst.Add(0)
		}
	}
	if serr := sc.Err(); serr != nil {
		return 0, 0, nil, fmt.Errorf("dimacs: scan: %w", serr)
	}
	if !sawHeader {
		return 0, 0, nil, fmt.Errorf("dimacs: no p-line found")
	}
	return numVars, numClauses, cubes, nil
}

// parseTerminatedInts parses a sequence of signed integers terminated by
// a literal 0, returning the literals without the terminator.
func parseTerminatedInts(fields []string) ([]int32, error) {
	out := make([]int32, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, int32(n))
	}
	return nil, fmt.Errorf("missing zero terminator")
}

// materializeTemp writes data to a temp file so path-based engines can
// load it uniformly; the caller must remove the returned path.
func materializeTemp(data []byte) (path string, err error) {
	f, err := os.CreateTemp("", "paracube-*.cnf")
	if err != nil {
		return "", fmt.Errorf("dimacs: create temp file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("dimacs: write temp file: %w", err)
	}
	return f.Name(), nil
}

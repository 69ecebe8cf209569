// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package engine

import "context"

// lookaheadSplit picks a one-step lookahead split literal by scoring
// variable occurrence balance over the retained clause set: a variable
// that appears often, with its two polarities close to evenly split,
// tends to prune both children well when branched on.
//
// depth is the calling task's current position in the cube tree. Once
// depth reaches maxDepth, lookaheadSplit stops offering new splits and
// reports NoSplitsLeft so the caller solves the cube locally instead of
// extending the tree past its configured depth bound; below minDepth it
// keeps splitting as long as a candidate variable exists, since the
// caller must not settle for a leaf before the tree has grown that far.
//
// Grounded on other_examples/adenizgelir0-satfarm__cube.go's depth
// selection (ceil-to-power-of-two with caps), generalized here from a
// fixed pregenerated table to a single step-by-step choice honoring the
// spec's max_depth/min_depth/timeout contract directly.
func lookaheadSplit(ctx context.Context, clauses [][]int32, maxVar, depth, minDepth, maxDepth int) Split {
	if maxVar <= 0 || len(clauses) == 0 {
		return Split{Kind: NoSplitsLeft}
	}
	if maxDepth <= 0 || depth >= maxDepth {
		return Split{Kind: NoSplitsLeft}
	}

	select {
	case <-ctx.Done():
		return Split{Kind: NoSplitsLeft}
	default:
	}

	pos := make([]int, maxVar+1)
	neg := make([]int, maxVar+1)
	for _, clause := range clauses {
		select {
		case <-ctx.Done():
			return Split{Kind: NoSplitsLeft}
		default:
		}
		for _, lit := range clause {
			v := lit
			if v < 0 {
				v = -v
				neg[v]++
			} else {
				pos[v]++
			}
		}
	}

	bestVar := 0
	bestScore := -1
	for v := 1; v <= maxVar; v++ {
		total := pos[v] + neg[v]
		if total == 0 {
			continue
		}
		balance := pos[v]
		if neg[v] < balance {
			balance = neg[v]
		}
		// Weight total occurrence by how balanced the polarities are;
		// an all-one-polarity variable gets no balance bonus and is
		// scored by its occurrence count alone.
		score := total + 2*balance
		if score > bestScore {
			bestScore = score
			bestVar = v
		}
	}

	if bestVar == 0 || minDepth > maxDepth {
		return Split{Kind: NoSplitsLeft}
	}

	lit := int32(bestVar)
	if neg[bestVar] > pos[bestVar] {
		lit = -lit
	}
	return Split{Kind: Splitted, Literal: lit}
}

// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package task

// reduce implements the parent-result join table from spec.md §4.3.
//
//	            UNSAT        SAT    Unknown/Aborted
//	UNSAT       UNSAT        SAT    wait
//	SAT         SAT          SAT    SAT
//	Unk/Abort   wait         SAT    Unknown if both Aborted, else wait
//
// "wait" means the join isn't ready: the caller must leave the parent in
// WaitChildren and not finalize it yet. SAT short-circuits regardless of
// the other side's value, matching a cube-and-conquer split in which
// either branch alone can prove satisfiability.
func reduce(left, right Result) (Result, bool) {
	if left == ResultSAT || right == ResultSAT {
		return ResultSAT, true
	}
	if left == ResultUNSAT && right == ResultUNSAT {
		return ResultUNSAT, true
	}

	leftPending := left == ResultUnknown || left == ResultAborted
	rightPending := right == ResultUnknown || right == ResultAborted

	if leftPending && rightPending {
		if left == ResultAborted && right == ResultAborted {
			return ResultUnknown, true
		}
		return ResultUnknown, false
	}

	// One side UNSAT, the other Unknown/Aborted: the whole isn't decided.
	return ResultUnknown, false
}

// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package registry

// Config tunes status diffusion thresholds (spec.md §9 Open Question c).
type Config struct {
	// StatusAbsDelta is the absolute per-originator queue-size change
	// that alone makes a status diff worthwhile.
	StatusAbsDelta uint64
	// StatusRelDelta is the relative queue-size change fraction (0..1)
	// above which a diff is worthwhile even without crossing the
	// absolute threshold.
	StatusRelDelta float64
	// Epsilon is the offload hysteresis margin (C6's ε).
	Epsilon float32
}

// DefaultConfig matches spec.md §4.5/§4.6's stated defaults.
var DefaultConfig = Config{
	StatusAbsDelta: 4,
	StatusRelDelta: 0.25,
	Epsilon:        0.25,
}

// isDiffWorthwhile reports whether next differs enough from prev to
// justify a Status publish: any parsed-flag flip, any per-originator
// queue-size change past the absolute threshold, or a relative change
// above cfg.StatusRelDelta.
//
// Grounded on original_source/modules/broker/broker_compute_node.hpp's
// Status::isDiffWorthwhile, whose exact thresholds were left to the
// implementation; spec.md §9(c) resolves that as a Config here.
func isDiffWorthwhile(prev, next Status, cfg Config) bool {
	seen := make(map[uint64]bool, len(next.SolverInstances))
	for originator, ns := range next.SolverInstances {
		seen[originator] = true
		ps, ok := prev.SolverInstances[originator]
		if !ok {
			return true // a brand new originator is always worth announcing
		}
		if ps.FormulaParsed != ns.FormulaParsed || ps.FormulaReceived != ns.FormulaReceived {
			return true
		}
		if queueDeltaWorthwhile(ps.WorkQueueSize, ns.WorkQueueSize, cfg) {
			return true
		}
	}
	for originator := range prev.SolverInstances {
		if !seen[originator] {
			return true // an originator disappeared
		}
	}
	return false
}

func queueDeltaWorthwhile(prev, next uint64, cfg Config) bool {
	var delta uint64
	if next > prev {
		delta = next - prev
	} else {
		delta = prev - next
	}
	if delta == 0 {
		return false
	}
	if delta > cfg.StatusAbsDelta {
		return true
	}
	if prev == 0 {
		return true // any change off a zero baseline is a 100% relative change
	}
	rel := float64(delta) / float64(prev)
	return rel > cfg.StatusRelDelta
}

package metrics

// Enabled is checked by the constructor functions for all of the standard
// metrics. If it is false, the metric returned is a stub.
//
// This global kill-switch helps quantify the observer effect and makes
// for less cluttered pprof profiles.
var Enabled = false

// Enable enables the metrics package. Uses of this function are short-lived
// test-harness calls; it is never mutated concurrently with metric
// collection in this codebase.
func Enable() { Enabled = true }

// Package reconcile merges the two pollers' outputs into one reading per
// logical unit.
//
// All fallback logic lives here: the static preference table decides which
// protocol is consulted first per category, the other protocol backs it up,
// and a unit with no data from either side is marked SourceNone rather than
// dropped. No other component re-implements "try X then Y".
package reconcile

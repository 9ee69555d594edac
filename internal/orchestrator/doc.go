// Package orchestrator runs evolutionary chains of simulation processes
// using the run directory as its only persistent state.
//
// Layout under the run root:
//   - <anatomy>.<t1>_<t2>/rep<r>.<g> is generation g of replication r.
//   - <anatomy>.<t1>_<t2>/_completed/ holds archived generations.
//   - Names starting with "_" (archive, staging dirs, manifest, journal)
//     are never treated as generations.
//
// Each tick scans the tree, advances finished generations into their
// successors, and dispatches queued generations up to the process ceiling.
// Everything except the pending queue is re-derived from disk, so a restart
// only needs to discard generations that were running when it stopped.
package orchestrator

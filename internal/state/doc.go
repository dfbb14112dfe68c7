// Package state tracks the health of each polling stream.
//
// # Overview
//
// The sync engine polls several independent streams (unread notifications,
// the friend graph, the open chat). Each poll either succeeds or fails, and
// a failure never touches previously applied data. This package records the
// outcome per stream so the UI can tell stale-but-valid data from a service
// that stopped answering.
//
// # Update Semantics
//
//	store.RecordSuccess("friends")
//	→ LastError = nil, ConsecutiveFailures = 0, LastSuccess = now
//
//	store.RecordFailure("friends", err)
//	→ LastError = err, ConsecutiveFailures++, LastSuccess unchanged
//
// A stream is offline after two consecutive failures.
//
// # Defensive Copying
//
// Health and Snapshot return copies; errors are re-wrapped so callers never
// hold the instance stored here.
//
// The zero Store is ready to use.
package state

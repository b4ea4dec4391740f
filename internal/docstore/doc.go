// Package docstore provides the local document store: point reads, optimistic
// revision-checked writes, a bulk read of live documents, an ordered change
// feed (one-shot and live), and the replication primitives (replicated bulk
// writes, revision diffs, non-replicated local documents) that the replicate
// package drives.
//
// # Storage
//
// The SQLite engine keeps one row per document holding only the winning
// revision. Every write appends to the changes log, whose AUTOINCREMENT key is
// the document's new local sequence. Physically removed documents keep a
// deleted stub so the deletion still travels through the change feed and
// through replication.
//
// # Engines
//
// Callers never construct an engine directly; they ask an Opener for a named
// Database. NewOpener selects the engine by name ("sqlite" or "memory").
package docstore

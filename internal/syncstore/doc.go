// Package syncstore is the store facade: a local document database kept
// in sync with an optional remote one, with dirty tracking, a live
// in-memory projection and subscriber notification on top.
//
// Data flow:
//
//	CRUD -> local database -> change feed -> local watcher
//	                                         |- projection
//	                                         |- meta record (unuploaded ids)
//	                                         '- subscribers
//
// Pulled remote documents enter the local database through the same
// change feed. The remote sync flags each of them before writing, so the
// local watcher applies them to the projection without marking them dirty.
//
// Thread-safety: every exported method is safe for concurrent use. The
// local watcher, meta watcher and live pull each run in their own
// goroutine and handle their events one at a time; the meta record and
// the projection carry their own locks.
package syncstore

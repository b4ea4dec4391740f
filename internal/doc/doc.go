// Package doc defines the document envelope shared by every layer of docsync.
//
// A Document is an opaque caller payload (Fields) wrapped in envelope fields
// that the store and the sync layer own: identity, revision, tombstone flag and
// the provenance stamps written by each mutation. Envelope fields are stored
// alongside the payload in a flat JSON object, so a document read back from
// any replica has the same shape it was written with.
package doc

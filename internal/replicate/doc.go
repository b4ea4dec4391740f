// Package replicate copies document revisions from a source Database to a
// target Database.
//
// A replication reads the source change feed from the last checkpoint,
// asks the target which revisions it lacks, and writes those verbatim with
// BulkWrite. Checkpoints are local documents written to both sides under an
// id derived from the two database identities and the filter options, so
// every replication between the same pair with the same filter resumes from
// the same point.
//
// Run performs one pass. Start runs in the background and, in live mode,
// keeps following the source feed, retrying failures with exponential
// backoff.
package replicate

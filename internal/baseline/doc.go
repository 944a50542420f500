// Package baseline manages the versioned per-scope baseline lifecycle:
// recalculation requests that compute private candidates, optimistic
// version-checked commits, and discards. The committed baseline stays
// readable throughout a recalculation; two racing commits resolve by
// compare-and-swap on the version, with the loser told to re-request.
//
// The Store interface is the persistence seam; MemStore is the in-process
// implementation. SampleSource is the data-access collaborator that supplies
// timestamp-ordered measurement samples.
package baseline

// Package transfer synchronizes pattern stores across machines through
// signed, portable snapshots.
//
// Export reads a filtered snapshot of a store, serializes it
// deterministically, and signs the canonical bytes with SHA-256 so any
// tampering or corruption is detected before a single record is applied.
// Import verifies the signature, validates namespaces record by record, and
// reconciles each record into the target store through the shared merge
// logic, producing a full audit trail.
//
// The engine never mutates a source store: it reads snapshots and writes
// into targets only through the store's merge API, so recovering from a
// failed import means discarding the partially-updated target.
package transfer

// Package knowledge wires the subsystem together: the conversation buffer
// feeding extracted patterns into the persistent store, periodic confidence
// decay, and file-level export/import of signed manifests.
//
// The Service owns the store's file lock and the buffer's event log for its
// lifetime; callers construct one Service per store path and Close it when
// done. Lower-level packages (conversation, patternstore, transfer) stay
// usable on their own — the service is plumbing, not policy.
package knowledge

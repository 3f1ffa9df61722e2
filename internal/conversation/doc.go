// Package conversation provides the bounded short-term buffer of recent
// interaction summaries feeding the pattern store.
//
// The buffer holds at most N entries in arrival order. At most one entry is
// active at a time and the active entry is never evicted. Entries evicted to
// make room are staged until the next extraction pass, so an external
// extractor can still read them and produce pattern records before they are
// dropped for good.
//
// Buffer state survives restarts through an append-only JSONL event log,
// replayed at startup and then trimmed back to the capacity invariant.
package conversation

// Package patternstore implements the long-term, file-backed store of
// learned pattern records.
//
// The store is a single-writer collection keyed by record id. Mutations are
// serialized behind one write lock; an advisory file lock keeps a second
// process from opening the same store path. Duplicate-id inserts never
// silently overwrite: they go through the same conflict-resolution logic the
// transfer engine uses for imports.
//
// Decay is a pure in-memory transformation; persisting the result is a
// separate, explicit Save so the algorithm stays testable without I/O.
package patternstore

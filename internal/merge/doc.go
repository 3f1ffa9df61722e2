// Package merge implements similarity scoring and conflict resolution for
// pattern records sharing an id.
//
// Conflicts between a local and an incoming record are expected outcomes
// with a defined resolution, never errors: resolution returns a tagged
// Outcome alongside the surviving record. The same logic backs both direct
// store upserts and manifest imports, so the two paths cannot drift apart.
package merge

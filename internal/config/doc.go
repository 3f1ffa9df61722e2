// Package config loads knowledge-store configuration from an explicitly
// provided YAML file.
//
// Configuration is never read from ambient process state: callers pass the
// path (or raw bytes) in, and the loader layers the file over hardcoded
// defaults. Every store, buffer, and decay knob can also be set directly on
// the structs for programmatic use.
package config

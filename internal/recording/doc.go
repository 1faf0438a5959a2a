// Package recording defines the durable recording document, its SQLite
// store, and the captured interaction-event input format.
//
// The recording record is the single source of truth for a recording's
// status and produced artifacts. Every mutation is a targeted field update
// owned by exactly one pipeline stage, so concurrent workers writing
// disjoint fields never overwrite each other's state.
package recording

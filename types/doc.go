// Package types defines the core domain types shared across the Aegis
// coordination layer: resource records, QoS profiles, tasks, session
// context, and the unified error taxonomy.
//
// The types package is the lowest-level package with no internal
// dependencies, so every other package may import it without creating
// circular imports.
package types

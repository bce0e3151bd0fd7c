// Package persistence provides the optional durable backends behind the
// gateway registry and the principal's sessions. The in-memory registry is
// always authoritative at runtime; these stores are write-through mirrors
// used to survive restarts.
package persistence

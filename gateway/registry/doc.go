// Package registry implements the gateway's resource record store: the
// authoritative, concurrency-safe home of every registered resource and the
// capability index that discovery intersects against.
//
// The store keeps two indexes in lockstep under one lock: the primary map
// from resource id to record, and the capability index from capability token
// to the set of ids advertising it. A mutation is visible in both or in
// neither.
package registry

// Package syncer contains the moving parts of the sync engine: the pure
// last-write-wins conflict resolver, the sync coordinator that decides when
// and how local state is pushed, and the reconciliation engine that drains
// the outbox after connectivity returns.
//
// Scheduling is cooperative. A single in-flight guard is the only mutual
// exclusion between flush cycles; every network call is a suspension point
// and nothing blocks the caller beyond the duration of the attempt.
package syncer

// Package tracker is the consumer-facing surface of the progress engine.
// It composes the local record store, the outbox, and the sync coordinator
// behind a small set of operations a learning application calls: record
// progress, mark completion, switch lessons, read aggregates, and observe
// sync status.
//
// All operations complete locally first; network synchronization is the
// coordinator's concern and never blocks a caller beyond local persistence.
package tracker

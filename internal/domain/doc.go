// Package domain contains the core entities of the progress sync engine:
// per-lesson progress records, durable outbox events, confirmation entries
// used for idempotent replay, and the sync status values observable by
// consumers. Entities are plain structs with explicit normalization and
// validation; nothing in this package performs I/O.
package domain

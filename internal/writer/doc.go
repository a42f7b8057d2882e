// Package writer records click events to PostgreSQL.
//
// Events are handed to a ClickWriter through Record, buffered in a bounded
// Queue and inserted in batches. Inserts are append-only and keyed on the
// event ID, so replaying a batch after a partial failure is harmless.
package writer

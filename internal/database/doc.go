// Package database provides the Postgres connection pool and schema used by
// the click recorder.
//
// Tables:
//   - click_events: one row per received click, keyed by the locally assigned ID
package database

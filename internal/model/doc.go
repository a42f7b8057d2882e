// Package model defines shared data types used across linkpulse.
//
// Conventions:
//   - Topics are short codes (e.g. "abc123") and are compared byte-for-byte
//   - Timestamps are time.Time in UTC
//   - Click IDs are uuid.UUID, assigned locally when an event is received
package model

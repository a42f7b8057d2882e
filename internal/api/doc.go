// Package api provides the REST client for the shortener's link statistics.
//
// Endpoints:
//   - GET /api/links                 paginated list of the caller's links
//   - GET /api/links/{code}/stats    click totals for one short code
//
// Requests carry the same bearer token as the realtime feed and are retried
// with jittered exponential backoff on 5xx and 429 responses.
package api

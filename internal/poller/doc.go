// Package poller implements the Stats Poller component.
//
// The Stats Poller:
//   - Polls the REST API on an interval for click totals of watched links
//   - Seeds counters before the first realtime event arrives
//   - Reconciles counters with events missed while the feed was down
//   - Uses bounded concurrent requests
package poller

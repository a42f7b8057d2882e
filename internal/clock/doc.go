// Package clock provides an injectable time source for code that schedules
// work in the future.
//
// Production code uses Real(). Tests use Fake(), whose time only moves when
// Advance is called, so reconnect backoff and similar timer-driven behavior
// can be asserted without sleeping:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	m := connection.NewManager(cfg, dialer, nil, connection.WithClock(c))
//	// ... trigger an unexpected close ...
//	c.Advance(time.Second) // fires the first reconnect attempt
package clock

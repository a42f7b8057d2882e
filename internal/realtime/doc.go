// Package realtime is the client surface of the click feed. A Client ties
// one connection.Manager, one subscription.Registry and one router.Router
// together; callers construct as many independent Clients as they need.
package realtime

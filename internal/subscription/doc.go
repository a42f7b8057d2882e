// Package subscription implements the Subscription Registry.
//
// The registry maps each topic (a short code) to the ordered set of
// listeners registered for it. A wire "subscribe" is sent when a topic gains
// its first listener and a wire "unsubscribe" when it loses its last one, so
// the server sees at most one subscription per topic no matter how many
// listeners share it.
package subscription

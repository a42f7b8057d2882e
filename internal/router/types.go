package router

import (
	"github.com/rickgao/linkpulse/internal/subscription"
)

// Lookup returns the listeners currently registered for a topic, in
// registration order. *subscription.Registry satisfies it.
type Lookup interface {
	Listeners(topic string) []*subscription.Listener
}

// Stats contains runtime statistics.
type Stats struct {
	MessagesReceived int64
	EventsDispatched int64 // Events delivered to at least one listener
	ListenerCalls    int64
	EventsDropped    int64 // Events for topics with no listeners
	ParseErrors      int64
	UnknownMessages  int64
	ListenerPanics   int64
	Acks             int64 // subscribed/unsubscribed confirmations
	ServerErrors     int64
}

// Wire types for JSON parsing

// clickWire is the wire format of a click payload.
type clickWire struct {
	Topic     string `json:"topic"`
	Timestamp string `json:"timestamp"`
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
	Referrer  string `json:"referrer"`
	Country   string `json:"country"`
}

// knownClickFields are the payload keys clickWire decodes.
var knownClickFields = []string{"topic", "timestamp", "ipAddress", "userAgent", "referrer", "country"}

// ackWire is the payload of subscribed/unsubscribed acknowledgements.
type ackWire struct {
	Topic string `json:"topic"`
}

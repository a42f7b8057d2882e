package subscription

import (
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/rickgao/linkpulse/internal/connection"
)

// Sender is the outbound half of the connection the registry talks through.
// connection.Manager satisfies it.
type Sender interface {
	Send(data []byte) error
	IsConnected() bool
}

// Stats contains registry statistics.
type Stats struct {
	Topics           int
	Listeners        int
	SubscribesSent   int64
	UnsubscribesSent int64
	Ignored          int64 // Subscribe calls dropped because the connection was down
	SendErrors       int64
}

// Registry tracks which listeners are subscribed to which topics.
// Registry is safe for concurrent use.
type Registry struct {
	sender Sender
	logger *slog.Logger

	// sendMu is held across a registry change and the wire send it causes, so
	// frames leave in the same order as the changes. mu guards the map and
	// counters only and is never held during a send, so Listeners lookups
	// from the read loop do not wait on a slow write.
	sendMu sync.Mutex
	mu     sync.Mutex
	topics map[string][]*Listener

	subscribesSent   int64
	unsubscribesSent int64
	ignored          int64
	sendErrors       int64
}

// NewRegistry creates an empty Registry that sends through sender.
func NewRegistry(sender Sender, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sender: sender,
		logger: logger,
		topics: make(map[string][]*Listener),
	}
}

// Subscribe registers l for topic. Registering the same listener twice for a
// topic is a no-op. The first listener for a topic sends a wire subscribe.
// When the connection is down the call is logged and dropped.
func (r *Registry) Subscribe(topic string, l *Listener) {
	if l == nil {
		r.logger.Warn("subscribe with nil listener ignored", "topic", topic)
		return
	}

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.mu.Lock()
	listeners := r.topics[topic]
	if slices.Contains(listeners, l) {
		r.mu.Unlock()
		r.logger.Debug("listener already subscribed", "topic", topic)
		return
	}

	if !r.sender.IsConnected() {
		r.ignored++
		r.mu.Unlock()
		r.logger.Warn("subscribe while not connected, ignoring", "topic", topic)
		return
	}

	r.topics[topic] = append(listeners, l)
	r.mu.Unlock()

	if len(listeners) == 0 {
		r.send(connection.MsgSubscribe, topic)
	}
}

// Unsubscribe removes l from topic. A nil l removes every listener for the
// topic. When the topic is left with no listeners a wire unsubscribe is sent
// and the topic is forgotten.
func (r *Registry) Unsubscribe(topic string, l *Listener) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.mu.Lock()
	listeners, ok := r.topics[topic]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("unsubscribe for unknown topic", "topic", topic)
		return
	}

	if l != nil {
		i := slices.Index(listeners, l)
		if i < 0 {
			r.mu.Unlock()
			r.logger.Debug("unsubscribe for unregistered listener", "topic", topic)
			return
		}
		// Copy so snapshots handed to the router stay untouched.
		listeners = slices.Delete(slices.Clone(listeners), i, i+1)
		if len(listeners) > 0 {
			r.topics[topic] = listeners
			r.mu.Unlock()
			return
		}
	}

	delete(r.topics, topic)
	r.mu.Unlock()

	if r.sender.IsConnected() {
		r.send(connection.MsgUnsubscribe, topic)
	}
}

// UnsubscribeAll removes every listener for topic.
func (r *Registry) UnsubscribeAll(topic string) {
	r.Unsubscribe(topic, nil)
}

// Listeners returns a snapshot of the listeners for topic in registration
// order, or nil if the topic has none.
func (r *Registry) Listeners(topic string) []*Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.topics[topic])
}

// Count returns the number of listeners registered for topic.
func (r *Registry) Count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics[topic])
}

// ActiveTopics returns the topics with at least one listener, sorted.
func (r *Registry) ActiveTopics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeTopicsLocked()
}

// Resync sends a wire subscribe for every active topic. Called after the
// connection is (re)opened, since server-side subscriptions do not outlive
// the connection that made them.
func (r *Registry) Resync() {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	topics := r.ActiveTopics()
	if len(topics) == 0 {
		return
	}
	if !r.sender.IsConnected() {
		r.logger.Debug("resync skipped, not connected", "topics", len(topics))
		return
	}

	for _, topic := range topics {
		r.send(connection.MsgSubscribe, topic)
	}
	r.logger.Info("resubscribed active topics", "topics", len(topics))
}

// Stats returns current statistics.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ls := range r.topics {
		n += len(ls)
	}
	return Stats{
		Topics:           len(r.topics),
		Listeners:        n,
		SubscribesSent:   r.subscribesSent,
		UnsubscribesSent: r.unsubscribesSent,
		Ignored:          r.ignored,
		SendErrors:       r.sendErrors,
	}
}

func (r *Registry) activeTopicsLocked() []string {
	topics := make([]string, 0, len(r.topics))
	for t := range r.topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// send writes one command frame. Caller holds r.sendMu but not r.mu.
func (r *Registry) send(msgType, topic string) {
	data, err := connection.EncodeTopicCommand(msgType, topic)
	if err != nil {
		r.mu.Lock()
		r.sendErrors++
		r.mu.Unlock()
		r.logger.Error("failed to encode command", "type", msgType, "topic", topic, "error", err)
		return
	}

	err = r.sender.Send(data)

	r.mu.Lock()
	switch {
	case err != nil:
		r.sendErrors++
	case msgType == connection.MsgSubscribe:
		r.subscribesSent++
	case msgType == connection.MsgUnsubscribe:
		r.unsubscribesSent++
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("failed to send command", "type", msgType, "topic", topic, "error", err)
		return
	}
	r.logger.Debug("command sent", "type", msgType, "topic", topic)
}

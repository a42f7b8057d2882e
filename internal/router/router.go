package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/linkpulse/internal/connection"
	"github.com/rickgao/linkpulse/internal/model"
	"github.com/rickgao/linkpulse/internal/subscription"
)

// Router parses inbound frames and dispatches click events to the listeners
// registered for the event's topic.
type Router interface {
	connection.MessageHandler

	// Stats returns current router statistics.
	Stats() Stats
}

var errMissingTopic = errors.New("click payload has no topic")

// router is the internal implementation.
type router struct {
	lookup Lookup
	logger *slog.Logger

	mu              sync.Mutex
	received        int64
	dispatched      int64
	listenerCalls   int64
	dropped         int64
	parseErrors     int64
	unknownMessages int64
	panics          int64
	acks            int64
	serverErrors    int64
}

// NewRouter creates a new Event Router that finds listeners through lookup.
func NewRouter(lookup Lookup, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		lookup: lookup,
		logger: logger,
	}
}

// HandleMessage routes a single inbound frame.
func (r *router) HandleMessage(raw connection.RawMessage) {
	r.count(&r.received)

	var env connection.Envelope
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		r.logger.Warn("failed to parse message envelope", "error", err)
		r.count(&r.parseErrors)
		return
	}

	switch env.Type {
	case connection.MsgClick:
		ev, err := parseClick(env.Payload, raw.ReceivedAt)
		if err != nil {
			r.logger.Warn("failed to parse click", "error", err)
			r.count(&r.parseErrors)
			return
		}
		r.dispatch(ev)

	case connection.MsgSubscribed, connection.MsgUnsubscribed:
		var ack ackWire
		if err := json.Unmarshal(env.Payload, &ack); err != nil {
			r.logger.Warn("failed to parse acknowledgement", "type", env.Type, "error", err)
			r.count(&r.parseErrors)
			return
		}
		r.count(&r.acks)
		r.logger.Debug("server acknowledged", "type", env.Type, "topic", ack.Topic)

	case connection.MsgError:
		var msg connection.ErrorMsg
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			r.logger.Warn("failed to parse server error", "error", err)
			r.count(&r.parseErrors)
			return
		}
		r.count(&r.serverErrors)
		r.logger.Warn("server error",
			"code", msg.Code,
			"message", msg.Message,
			"topic", msg.Topic,
		)

	default:
		r.count(&r.unknownMessages)
		r.logger.Debug("skipping message type", "type", env.Type)
	}
}

// dispatch invokes every listener of ev.Topic in registration order. No lock
// is held while listeners run, so they may subscribe or unsubscribe.
func (r *router) dispatch(ev model.ClickEvent) {
	listeners := r.lookup.Listeners(ev.Topic)
	if len(listeners) == 0 {
		// The topic may have been unsubscribed while the event was in flight.
		r.count(&r.dropped)
		return
	}

	for _, l := range listeners {
		r.invoke(l, ev)
	}

	r.mu.Lock()
	r.dispatched++
	r.listenerCalls += int64(len(listeners))
	r.mu.Unlock()
}

func (r *router) invoke(l *subscription.Listener, ev model.ClickEvent) {
	defer func() {
		if p := recover(); p != nil {
			r.count(&r.panics)
			r.logger.Error("listener panicked",
				"topic", ev.Topic,
				"panic", fmt.Sprint(p),
			)
		}
	}()
	l.Handle(ev)
}

// Stats returns current statistics.
func (r *router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		MessagesReceived: r.received,
		EventsDispatched: r.dispatched,
		ListenerCalls:    r.listenerCalls,
		EventsDropped:    r.dropped,
		ParseErrors:      r.parseErrors,
		UnknownMessages:  r.unknownMessages,
		ListenerPanics:   r.panics,
		Acks:             r.acks,
		ServerErrors:     r.serverErrors,
	}
}

func (r *router) count(n *int64) {
	r.mu.Lock()
	*n++
	r.mu.Unlock()
}

// parseClick decodes a click payload. A missing or malformed timestamp falls
// back to receivedAt.
func parseClick(payload json.RawMessage, receivedAt time.Time) (model.ClickEvent, error) {
	var wire clickWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return model.ClickEvent{}, err
	}
	if wire.Topic == "" {
		return model.ClickEvent{}, errMissingTopic
	}

	ts, err := time.Parse(time.RFC3339Nano, wire.Timestamp)
	if err != nil {
		ts = receivedAt
	}

	ev := model.ClickEvent{
		ID:         uuid.New(),
		Topic:      wire.Topic,
		Timestamp:  ts.UTC(),
		ReceivedAt: receivedAt,
		IPAddress:  wire.IPAddress,
		UserAgent:  wire.UserAgent,
		Referrer:   wire.Referrer,
		Country:    wire.Country,
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err == nil {
		for _, k := range knownClickFields {
			delete(fields, k)
		}
		if len(fields) > 0 {
			ev.Extra = fields
		}
	}

	return ev, nil
}

package realtime

import (
	"context"
	"log/slog"

	"github.com/rickgao/linkpulse/internal/clock"
	"github.com/rickgao/linkpulse/internal/connection"
	"github.com/rickgao/linkpulse/internal/model"
	"github.com/rickgao/linkpulse/internal/router"
	"github.com/rickgao/linkpulse/internal/subscription"
)

// Listener is a registered click callback. See subscription.Listener.
type Listener = subscription.Listener

// NewListener wraps fn in a new Listener. Keep the returned pointer to
// unsubscribe later.
func NewListener(fn func(model.ClickEvent)) *Listener {
	return subscription.NewListener(fn)
}

// Stats aggregates the statistics of a Client's parts.
type Stats struct {
	Connection connection.ManagerStats
	Registry   subscription.Stats
	Router     router.Stats
}

// Option configures a Client.
type Option func(*options)

type options struct {
	clock    clock.Clock
	observer func(from, to connection.State)
}

// WithClock sets the clock used for reconnect timers.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithStateObserver registers fn to be told about connection state changes.
// fn must not call back into the Client.
func WithStateObserver(fn func(from, to connection.State)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// Client is a realtime click-feed client: one connection multiplexing any
// number of topic subscriptions.
type Client struct {
	manager  connection.Manager
	registry *subscription.Registry
	router   router.Router
	logger   *slog.Logger
}

// New creates a Client that opens transports with dial.
func New(cfg connection.ManagerConfig, dial connection.DialFunc, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{logger: logger}
	c.registry = subscription.NewRegistry(managerSender{c}, logger.With("component", "registry"))
	c.router = router.NewRouter(c.registry, logger.With("component", "router"))

	mgrOpts := []connection.Option{connection.WithOpenHook(c.registry.Resync)}
	if o.clock != nil {
		mgrOpts = append(mgrOpts, connection.WithClock(o.clock))
	}
	if o.observer != nil {
		mgrOpts = append(mgrOpts, connection.WithStateObserver(o.observer))
	}
	c.manager = connection.NewManager(cfg, dial, c.router, logger.With("component", "connection"), mgrOpts...)

	return c
}

// NewWebSocketClient creates a Client speaking to the server at clientCfg.URL.
func NewWebSocketClient(clientCfg connection.ClientConfig, mgrCfg connection.ManagerConfig, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	dial := connection.WebSocketDialer(clientCfg, logger.With("component", "websocket"))
	return New(mgrCfg, dial, logger, opts...)
}

// Connect opens the connection, authenticating with credential. It is a
// no-op when already connected. An error means the first open failed; the
// client keeps retrying in the background.
func (c *Client) Connect(ctx context.Context, credential string) error {
	return c.manager.Connect(ctx, credential)
}

// Disconnect closes the connection and stops reconnecting. Registrations are
// kept and restored on the next Connect.
func (c *Client) Disconnect() error {
	return c.manager.Disconnect()
}

// Stop disconnects and waits for background work to finish.
func (c *Client) Stop(ctx context.Context) error {
	return c.manager.Stop(ctx)
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	return c.manager.IsConnected()
}

// State returns the connection state.
func (c *Client) State() connection.State {
	return c.manager.State()
}

// Subscribe registers l for clicks on topic. Ignored while not connected.
func (c *Client) Subscribe(topic string, l *Listener) {
	c.registry.Subscribe(topic, l)
}

// Unsubscribe removes l from topic, or every listener when l is nil.
func (c *Client) Unsubscribe(topic string, l *Listener) {
	c.registry.Unsubscribe(topic, l)
}

// UnsubscribeAll removes every listener for topic.
func (c *Client) UnsubscribeAll(topic string) {
	c.registry.UnsubscribeAll(topic)
}

// ActiveTopics returns the topics with at least one listener, sorted.
func (c *Client) ActiveTopics() []string {
	return c.registry.ActiveTopics()
}

// Stats returns current statistics.
func (c *Client) Stats() Stats {
	return Stats{
		Connection: c.manager.Stats(),
		Registry:   c.registry.Stats(),
		Router:     c.router.Stats(),
	}
}

// managerSender lets the registry send through the manager, which is
// created after it.
type managerSender struct {
	c *Client
}

func (s managerSender) Send(data []byte) error {
	return s.c.manager.Send(data)
}

func (s managerSender) IsConnected() bool {
	return s.c.manager.IsConnected()
}

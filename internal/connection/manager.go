package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/linkpulse/internal/clock"
)

// Manager owns the single transport connection and its reconnect policy.
type Manager interface {
	// Connect opens the connection with credential. It is a no-op when
	// already connected or while an open is in flight. A failed open is
	// returned for diagnostics; the reconnect policy has already taken it.
	Connect(ctx context.Context, credential string) error

	// Disconnect closes the connection and cancels any pending reconnect.
	// The Manager stays in StateDisconnected until Connect is called again.
	Disconnect() error

	// Stop disconnects and waits for the read loop to exit. Must not be
	// called from a MessageHandler.
	Stop(ctx context.Context) error

	// IsConnected reports whether the state is StateConnected.
	IsConnected() bool

	// State returns the current lifecycle state.
	State() State

	// Send writes a frame on the current connection.
	Send(data []byte) error

	// Stats returns current connection statistics.
	Stats() ManagerStats
}

// MessageHandler receives every inbound frame, serially, on the read loop.
type MessageHandler interface {
	HandleMessage(msg RawMessage)
}

// MessageHandlerFunc is a function adapter for MessageHandler.
type MessageHandlerFunc func(RawMessage)

func (f MessageHandlerFunc) HandleMessage(msg RawMessage) {
	f(msg)
}

// Option configures a Manager.
type Option func(*manager)

// WithClock sets the clock used to schedule reconnect attempts.
func WithClock(c clock.Clock) Option {
	return func(m *manager) {
		m.clock = c
	}
}

// WithStateObserver registers fn to be told about every state transition.
// fn runs with the Manager's lock held and must not call back into it.
func WithStateObserver(fn func(from, to State)) Option {
	return func(m *manager) {
		m.observer = fn
	}
}

// WithOpenHook registers fn to run after every successful open, outside the
// Manager's lock. Used to restore server-side subscriptions.
func WithOpenHook(fn func()) Option {
	return func(m *manager) {
		m.onOpen = fn
	}
}

// manager implements the Manager interface.
type manager struct {
	cfg      ManagerConfig
	dial     DialFunc
	handler  MessageHandler
	clock    clock.Clock
	logger   *slog.Logger
	observer func(from, to State)
	onOpen   func()

	mu         sync.Mutex
	state      State
	client     Client
	credential string
	attempts   int
	// gen identifies the current connection lifetime. Every open, drop and
	// Disconnect bumps it, so events from older clients and timers scheduled
	// for older lifetimes are ignored.
	gen   uint64
	timer clock.Timer
	stop  chan struct{}

	dials      int64
	reconnects int64
	failures   int64
	since      time.Time

	wg sync.WaitGroup
}

// NewManager creates a new connection Manager. Inbound frames are handed to
// handler; handler may be nil when only outbound traffic matters.
func NewManager(cfg ManagerConfig, dial DialFunc, handler MessageHandler, logger *slog.Logger, opts ...Option) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = MessageHandlerFunc(func(RawMessage) {})
	}

	m := &manager{
		cfg:     cfg,
		dial:    dial,
		handler: handler,
		clock:   clock.Real(),
		logger:  logger,
		state:   StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect opens the connection.
func (m *manager) Connect(ctx context.Context, credential string) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected, StateConnecting:
		m.mu.Unlock()
		return nil
	}

	m.cancelTimerLocked()
	m.credential = credential
	m.attempts = 0
	m.gen++
	gen := m.gen
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	return m.open(ctx, gen, false)
}

// Disconnect closes the connection and halts reconnection.
func (m *manager) Disconnect() error {
	m.mu.Lock()
	m.cancelTimerLocked()
	m.gen++
	c := m.client
	m.client = nil
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.attempts = 0
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	m.logger.Info("disconnected by caller")

	if c != nil {
		return c.Close()
	}
	return nil
}

// Stop disconnects and waits for background work to finish.
func (m *manager) Stop(ctx context.Context) error {
	err := m.Disconnect()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("connection manager stop timed out")
	}

	return err
}

// IsConnected reports whether the connection is open.
func (m *manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

// State returns the current state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Send writes data on the open connection.
func (m *manager) Send(data []byte) error {
	m.mu.Lock()
	c := m.client
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || c == nil {
		return ErrNotConnected
	}
	return c.Send(data)
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStats{
		State:      m.state,
		Attempts:   m.attempts,
		Dials:      m.dials,
		Reconnects: m.reconnects,
		Failures:   m.failures,
		Since:      m.since,
	}
}

// open dials a new client for lifetime gen and installs it if gen is still
// current when the dial returns.
func (m *manager) open(ctx context.Context, gen uint64, reconnect bool) error {
	if m.cfg.OpenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.OpenTimeout)
		defer cancel()
	}

	m.mu.Lock()
	credential := m.credential
	m.dials++
	m.mu.Unlock()

	c, err := m.dial(ctx, credential)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	m.mu.Lock()
	if gen != m.gen {
		// Disconnect or a newer Connect won while we were dialing.
		m.mu.Unlock()
		if c != nil {
			c.Close()
		}
		return ErrAlreadyClosed
	}

	if err != nil {
		m.logger.Warn("connection open failed",
			"attempt", m.attempts,
			"error", err,
		)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return err
	}

	stop := make(chan struct{})
	m.client = c
	m.stop = stop
	m.attempts = 0
	if reconnect {
		m.reconnects++
	}
	m.setStateLocked(StateConnected)
	m.wg.Add(1)
	go m.readLoop(c, gen, stop)
	onOpen := m.onOpen
	m.mu.Unlock()

	if reconnect {
		m.logger.Info("reconnected")
	} else {
		m.logger.Info("connected")
	}

	if onOpen != nil {
		onOpen()
	}
	return nil
}

// scheduleReconnectLocked arms the next reconnect timer, or enters
// StateFailed once the attempt budget is spent. Caller holds m.mu.
func (m *manager) scheduleReconnectLocked() {
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.failures++
		m.setStateLocked(StateFailed)
		m.logger.Error("reconnect attempts exhausted, giving up",
			"attempts", m.attempts,
		)
		return
	}

	m.attempts++
	wait := backoffDelay(m.cfg.ReconnectBaseWait, m.cfg.ReconnectMaxWait, m.attempts)
	gen := m.gen
	m.setStateLocked(StateReconnecting)
	m.timer = m.clock.AfterFunc(wait, func() {
		m.attemptReconnect(gen)
	})

	m.logger.Info("reconnect scheduled",
		"attempt", m.attempts,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"wait", wait,
	)
}

// attemptReconnect runs when a reconnect timer fires.
func (m *manager) attemptReconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.gen++
	next := m.gen
	attempt := m.attempts
	m.mu.Unlock()

	m.logger.Info("attempting reconnection", "attempt", attempt)

	m.open(context.Background(), next, true)
}

// handleClose reacts to client c of lifetime gen ending on its own.
func (m *manager) handleClose(c Client, gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.client = nil
	m.stop = nil
	m.gen++

	if m.isServerDisconnect(err) {
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		m.logger.Info("server closed the connection, not reconnecting", "reason", err)
		c.Close()
		return
	}

	m.logger.Warn("connection lost", "error", err)
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	c.Close()
}

func (m *manager) isServerDisconnect(err error) bool {
	var ce *CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return slices.Contains(m.cfg.ServerDisconnectCodes, ce.Code)
}

// readLoop forwards frames from c to the handler until c ends or stop closes.
func (m *manager) readLoop(c Client, gen uint64, stop <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case <-stop:
			return

		case err := <-c.Errors():
			// Frames read before the failure are still delivered.
			m.drain(c, stop)
			m.handleClose(c, gen, err)
			return

		case msg, ok := <-c.Messages():
			if !ok {
				return
			}
			m.deliver(msg, stop)
		}
	}
}

func (m *manager) drain(c Client, stop <-chan struct{}) {
	for {
		select {
		case msg := <-c.Messages():
			m.deliver(msg, stop)
		default:
			return
		}
	}
}

func (m *manager) deliver(msg TimestampedMessage, stop <-chan struct{}) {
	select {
	case <-stop:
		return
	default:
	}
	m.handler.HandleMessage(RawMessage{
		Data:       msg.Data,
		ReceivedAt: msg.ReceivedAt,
	})
}

func (m *manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *manager) setStateLocked(s State) {
	if s == m.state {
		return
	}
	from := m.state
	m.state = s
	m.since = m.clock.Now()
	m.logger.Debug("connection state changed", "from", from, "to", s)
	if m.observer != nil {
		m.observer(from, s)
	}
}

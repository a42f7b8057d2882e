package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrTimeout         = errors.New("open timeout")
	ErrAlreadyClosed   = errors.New("already closed")
)

// State is the lifecycle state of the managed connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Wire message types.
const (
	MsgSubscribe    = "subscribe"
	MsgUnsubscribe  = "unsubscribe"
	MsgClick        = "click"
	MsgSubscribed   = "subscribed"
	MsgUnsubscribed = "unsubscribed"
	MsgError        = "error"
)

// Close codes carried on the websocket close frame.
const (
	CloseNormalClosure = 1000
	// CloseServerDisconnect is sent by the server when it drops a client on
	// purpose (kicked, token revoked). Clients must not reconnect.
	CloseServerDisconnect = 4000
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// RawMessage is an inbound frame handed from the Manager to its MessageHandler.
type RawMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// Command is an outbound message to the server.
type Command struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// TopicPayload is the payload of subscribe and unsubscribe commands.
type TopicPayload struct {
	Topic string `json:"topic"`
}

// EncodeTopicCommand builds a subscribe/unsubscribe frame for topic.
func EncodeTopicCommand(msgType, topic string) ([]byte, error) {
	return json.Marshal(Command{
		Type:    msgType,
		Payload: TopicPayload{Topic: topic},
	})
}

// Envelope is the outer shape of every inbound message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorMsg is the payload of an "error" message.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Topic   string `json:"topic,omitempty"`
}

// CloseError reports the close frame that ended a connection.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed (code %d)", e.Code)
	}
	return fmt.Sprintf("connection closed (code %d): %s", e.Code, e.Reason)
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://sho.rt/ws)
	Credential       string        // Bearer token sent on the handshake ("" = anonymous)
	Header           http.Header   // Extra handshake headers
	HandshakeTimeout time.Duration // Upper bound on the opening handshake
	PingInterval     time.Duration // How often to ping the server
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     25 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the connection Manager.
type ManagerConfig struct {
	OpenTimeout           time.Duration // Bound on a single connection attempt
	ReconnectBaseWait     time.Duration // Delay before the first reconnect attempt
	ReconnectMaxWait      time.Duration // Cap on any single delay (0 = uncapped)
	MaxReconnectAttempts  int           // Attempts before giving up and entering StateFailed
	ServerDisconnectCodes []int         // Close codes that mean "do not reconnect"
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		OpenTimeout:           10 * time.Second,
		ReconnectBaseWait:     1 * time.Second,
		ReconnectMaxWait:      60 * time.Second,
		MaxReconnectAttempts:  5,
		ServerDisconnectCodes: []int{CloseServerDisconnect},
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State      State
	Attempts   int       // Reconnect attempts since the last successful open
	Dials      int64     // Total transport opens tried
	Reconnects int64     // Successful opens that followed an unexpected drop
	Failures   int64     // Times the reconnect policy was exhausted
	Since      time.Time // When State was entered; zero before the first transition
}

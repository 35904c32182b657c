package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/vault-relay/internal/model"
)

// Errors
var (
	ErrNotConnected        = errors.New("not connected")
	ErrStaleConnection     = errors.New("connection stale (no inbound frames)")
	ErrAlreadyClosed       = errors.New("already closed")
	ErrUnknownSubscription = errors.New("unknown subscription handle")
)

// Handle identifies a live subscription. Every successful Subscribe returns a new one.
type Handle = uuid.UUID

// SubscribeError reports a failed subscribe for an account.
type SubscribeError struct {
	Account model.Account
	Err     error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("subscribe %s: %v", model.WireAccount(e.Account), e.Err)
}

func (e *SubscribeError) Unwrap() error { return e.Err }

// UnsubscribeError reports a failed unsubscribe for a handle.
type UnsubscribeError struct {
	Handle Handle
	Err    error
}

func (e *UnsubscribeError) Error() string {
	return fmt.Sprintf("unsubscribe %s: %v", e.Handle, e.Err)
}

func (e *UnsubscribeError) Unwrap() error { return e.Err }

// TimestampedMessage wraps raw frame data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Message is a decoded data frame forwarded to the ingestor.
type Message struct {
	Channel    string          // e.g. "user"
	Data       json.RawMessage // Channel payload, undecoded
	ReceivedAt time.Time
}

// Channels the Source treats specially.
const (
	ChannelUser                 = "user"
	ChannelPong                 = "pong"
	ChannelSubscriptionResponse = "subscriptionResponse"
	ChannelError                = "error"
)

// UserEventsFilter selects the user event stream of one account.
type UserEventsFilter struct {
	User model.Account
}

// wire returns the subscription object sent to the venue.
func (f UserEventsFilter) wire() subscriptionWire {
	return subscriptionWire{Type: "userEvents", User: model.WireAccount(f.User)}
}

// subscriptionWire is the "subscription" object of a (un)subscribe frame.
type subscriptionWire struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

// Command is a frame sent to the server.
type Command struct {
	Method       string            `json:"method"` // "subscribe", "unsubscribe", "ping"
	Subscription *subscriptionWire `json:"subscription,omitempty"`
}

// envelope is the outer shape of every inbound frame.
type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., wss://api.hyperliquid.xyz/ws)
	PingInterval time.Duration // Interval between application pings
	ReadTimeout  time.Duration // Max time without any inbound frame before the connection is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 50 * time.Second,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// SourceConfig configures the event Source.
type SourceConfig struct {
	Client            ClientConfig
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection
	MessageBufferSize int           // Buffer size for the inbound Message channel
}

// DefaultSourceConfig returns sensible defaults.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		Client:            DefaultClientConfig(),
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
		MessageBufferSize: 1000,
	}
}

package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/vault-relay/internal/metrics"
	"github.com/rickgao/vault-relay/internal/model"
)

// SourceStats describes the event stream for health reporting.
type SourceStats struct {
	Connected     bool
	Subscriptions int
	Reconnects    int64
}

// Source is the push-based event source: one WebSocket connection carrying
// every user-events subscription, plus the inbound Message channel.
type Source struct {
	cfg     SourceConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	// mu serializes every use of the transport for (un)subscribe and
	// reconnection, and guards the subscription registry.
	mu     sync.Mutex
	client Client
	subs   map[Handle]UserEventsFilter
	// refs counts live handles per filter. The venue holds one subscription
	// per filter no matter how many handles share it.
	refs map[UserEventsFilter]int

	out chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reconnects atomic.Int64
}

// NewSource creates a new event source. Start must be called before use.
func NewSource(cfg SourceConfig, m *metrics.Metrics, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MessageBufferSize < 1 {
		cfg.MessageBufferSize = 1
	}
	defaults := DefaultSourceConfig()
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = defaults.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait < cfg.ReconnectBaseWait {
		cfg.ReconnectMaxWait = max(defaults.ReconnectMaxWait, cfg.ReconnectBaseWait)
	}

	return &Source{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		subs:    make(map[Handle]UserEventsFilter),
		refs:    make(map[UserEventsFilter]int),
		out:     make(chan Message, cfg.MessageBufferSize),
	}
}

// Start connects to the venue and begins reading frames.
func (s *Source) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	c := NewClient(s.cfg.Client, s.logger)
	if err := c.Connect(s.ctx); err != nil {
		return fmt.Errorf("connect %s: %w", s.cfg.Client.URL, err)
	}

	s.mu.Lock()
	s.client = c
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(c)

	s.logger.Info("event source started", "url", s.cfg.Client.URL)
	return nil
}

// Stop closes the connection and the Messages channel.
func (s *Source) Stop(ctx context.Context) error {
	s.logger.Info("stopping event source")

	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	if s.client != nil {
		s.client.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(s.out)
		s.logger.Info("event source stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("event source stop timed out")
		return ctx.Err()
	}
}

// Messages returns the inbound channel of data frames.
func (s *Source) Messages() <-chan Message {
	return s.out
}

// Subscribe registers a user-events subscription and returns a fresh handle.
// Only the first handle for a filter sends a subscribe frame; later handles
// share the existing venue subscription.
func (s *Source) Subscribe(ctx context.Context, filter UserEventsFilter) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, &SubscribeError{Account: filter.User, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return uuid.Nil, &SubscribeError{Account: filter.User, Err: ErrNotConnected}
	}

	if s.refs[filter] == 0 {
		sub := filter.wire()
		if err := s.client.Send(Command{Method: "subscribe", Subscription: &sub}); err != nil {
			return uuid.Nil, &SubscribeError{Account: filter.User, Err: err}
		}
	}

	h := uuid.New()
	s.subs[h] = filter
	s.refs[filter]++

	s.logger.Debug("subscribed",
		"account", model.WireAccount(filter.User),
		"handle", h,
		"refs", s.refs[filter],
	)
	return h, nil
}

// Unsubscribe cancels the subscription identified by h. The unsubscribe frame
// is sent only when h is the last handle for its filter.
func (s *Source) Unsubscribe(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return &UnsubscribeError{Handle: h, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filter, ok := s.subs[h]
	if !ok {
		return &UnsubscribeError{Handle: h, Err: ErrUnknownSubscription}
	}
	if s.client == nil {
		return &UnsubscribeError{Handle: h, Err: ErrNotConnected}
	}

	if s.refs[filter] == 1 {
		sub := filter.wire()
		if err := s.client.Send(Command{Method: "unsubscribe", Subscription: &sub}); err != nil {
			return &UnsubscribeError{Handle: h, Err: err}
		}
	}

	delete(s.subs, h)
	s.refs[filter]--
	if s.refs[filter] <= 0 {
		delete(s.refs, filter)
	}

	s.logger.Debug("unsubscribed",
		"account", model.WireAccount(filter.User),
		"handle", h,
		"refs", s.refs[filter],
	)
	return nil
}

// IsConnected reports whether the current connection is up.
func (s *Source) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.client.IsConnected()
}

// Stats returns current statistics.
func (s *Source) Stats() SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SourceStats{
		Connected:     s.client != nil && s.client.IsConnected(),
		Subscriptions: len(s.subs),
		Reconnects:    s.reconnects.Load(),
	}
}

// readLoop reads frames from one client until it fails or the source stops.
func (s *Source) readLoop(c Client) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case err := <-c.Errors():
			s.logger.Warn("event stream error", "error", err)
			s.wg.Add(1)
			go s.reconnect(c)
			return

		case msg, ok := <-c.Messages():
			if !ok {
				return
			}
			if !s.handleFrame(msg) {
				return
			}
		}
	}
}

// handleFrame decodes one frame; control frames are consumed here and data
// frames are forwarded. Returns false if the source is stopping.
func (s *Source) handleFrame(msg TimestampedMessage) bool {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		s.logger.Warn("failed to decode frame", "error", err, "size", len(msg.Data))
		return true
	}

	switch env.Channel {
	case ChannelPong:
		return true
	case ChannelSubscriptionResponse:
		s.logger.Debug("subscription response", "data", string(env.Data))
		return true
	case ChannelError:
		s.logger.Warn("venue error frame", "data", string(env.Data))
		return true
	}

	select {
	case s.out <- Message{Channel: env.Channel, Data: env.Data, ReceivedAt: msg.ReceivedAt}:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// reconnect replaces a failed client with exponential backoff and replays
// one subscribe per registered filter on the new connection. Handles survive.
func (s *Source) reconnect(failed Client) {
	defer s.wg.Done()

	failed.Close()

	wait := s.cfg.ReconnectBaseWait
	maxWait := s.cfg.ReconnectMaxWait

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(wait):
		}

		s.logger.Info("attempting reconnection", "url", s.cfg.Client.URL)

		c := NewClient(s.cfg.Client, s.logger)
		if err := c.Connect(s.ctx); err != nil {
			s.logger.Warn("reconnection failed", "error", err, "next_wait", min(wait*2, maxWait))

			wait *= 2
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}

		s.mu.Lock()
		if s.ctx.Err() != nil {
			s.mu.Unlock()
			c.Close()
			return
		}
		s.client = c
		replayed, failedReplays := 0, 0
		for filter, n := range s.refs {
			sub := filter.wire()
			if err := c.Send(Command{Method: "subscribe", Subscription: &sub}); err != nil {
				s.logger.Warn("failed to replay subscription",
					"account", model.WireAccount(filter.User),
					"handles", n,
					"error", err,
				)
				failedReplays++
				continue
			}
			replayed++
		}
		s.mu.Unlock()

		s.reconnects.Add(1)
		s.metrics.StreamReconnected()
		s.logger.Info("reconnected", "replayed", replayed, "failed", failedReplays)

		s.wg.Add(1)
		go s.readLoop(c)
		return
	}
}

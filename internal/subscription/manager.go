package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/rickgao/vault-relay/internal/connection"
	"github.com/rickgao/vault-relay/internal/metrics"
	"github.com/rickgao/vault-relay/internal/model"
)

// EventSource is the subset of the push API the Manager drives.
type EventSource interface {
	Subscribe(ctx context.Context, filter connection.UserEventsFilter) (connection.Handle, error)
	Unsubscribe(ctx context.Context, h connection.Handle) error
}

// Status is the state of a subscription slot.
type Status int

const (
	StatusActive Status = iota
	StatusFailedPendingRetry
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusFailedPendingRetry:
		return "failed_pending_retry"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Subscription is one account's slot.
type Subscription struct {
	Account   model.Account
	Handle    connection.Handle // uuid.Nil when no subscription is outstanding
	Status    Status
	LastErr   error
	Failures  int // consecutive failed cycles
	UpdatedAt time.Time
}

// HasHandle reports whether the slot holds an outstanding handle.
func (s Subscription) HasHandle() bool {
	return s.Handle != uuid.Nil
}

// Config holds manager configuration.
type Config struct {
	RefreshInterval time.Duration // Interval between refresh cycles (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: 30 * time.Second,
	}
}

// Stats is a point-in-time summary of the slots.
type Stats struct {
	Active int
	Failed int
	Cycles int64
}

// Manager owns the subscription slots.
type Manager struct {
	cfg     Config
	source  EventSource
	metrics *metrics.Metrics
	logger  *slog.Logger

	// cycleMu serializes Initialize and RefreshCycle; the network calls of a
	// cycle run under it but never under mu.
	cycleMu sync.Mutex

	mu    sync.RWMutex
	slots []Subscription

	cycles atomic.Int64
}

// NewManager creates a new Manager.
func NewManager(cfg Config, source EventSource, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultConfig().RefreshInterval
	}
	return &Manager{
		cfg:     cfg,
		source:  source,
		metrics: m,
		logger:  logger.With("component", "subscriptions"),
	}
}

// Initialize subscribes every account once. Accounts whose subscribe fails are
// logged and left out; they are not retried. Duplicate accounts are
// subscribed once. Returns the slots that were established.
func (m *Manager) Initialize(ctx context.Context, accounts []model.Account) []Subscription {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	seen := mapset.NewThreadUnsafeSet[model.Account]()
	slots := make([]Subscription, 0, len(accounts))

	for _, account := range accounts {
		if !seen.Add(account) {
			continue
		}

		h, err := m.source.Subscribe(ctx, connection.UserEventsFilter{User: account})
		if err != nil {
			m.logger.Warn("initial subscribe failed, account will not be watched",
				"account", model.WireAccount(account),
				"error", err,
			)
			m.metrics.SubscriptionFailed("subscribe")
			continue
		}

		slots = append(slots, Subscription{
			Account:   account,
			Handle:    h,
			Status:    StatusActive,
			UpdatedAt: time.Now(),
		})
	}

	m.commit(slots)

	m.logger.Info("subscriptions initialized",
		"requested", len(accounts),
		"active", len(slots),
	)
	return slices.Clone(slots)
}

// RefreshCycle tears down and re-establishes every tracked subscription.
// Per-account failures are logged and leave the slot FailedPendingRetry;
// they never stop the rest of the cycle.
func (m *Manager) RefreshCycle(ctx context.Context) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	start := time.Now()

	m.mu.RLock()
	current := slices.Clone(m.slots)
	m.mu.RUnlock()

	next := make([]Subscription, 0, len(current))
	for _, slot := range current {
		next = append(next, m.refreshSlot(ctx, slot))
	}

	kept, orphans := dedupe(next)
	for _, h := range orphans {
		m.logger.Warn("duplicate subscription handle removed", "handle", h)
		if err := m.source.Unsubscribe(ctx, h); err != nil {
			m.logger.Warn("failed to cancel duplicate subscription", "handle", h, "error", err)
		}
	}

	m.commit(kept)
	m.cycles.Add(1)
	m.metrics.RefreshCycle()

	stats := m.Stats()
	m.logger.Debug("refresh cycle complete",
		"active", stats.Active,
		"failed", stats.Failed,
		"duration", time.Since(start),
	)
}

// refreshSlot runs unsubscribe-then-subscribe for one slot and returns the
// replacement slot.
func (m *Manager) refreshSlot(ctx context.Context, slot Subscription) Subscription {
	account := model.WireAccount(slot.Account)
	next := slot
	next.UpdatedAt = time.Now()

	if slot.HasHandle() {
		err := m.source.Unsubscribe(ctx, slot.Handle)
		switch {
		case errors.Is(err, connection.ErrUnknownSubscription):
			// The source no longer knows the handle, so it cannot be live.
			m.logger.Warn("unsubscribe failed, handle presumed dead",
				"account", account,
				"handle", slot.Handle,
				"error", err,
			)
			m.metrics.SubscriptionFailed("unsubscribe")
			return failed(next, uuid.Nil, err)
		case err != nil:
			m.logger.Warn("unsubscribe failed, retrying next cycle",
				"account", account,
				"handle", slot.Handle,
				"error", err,
			)
			m.metrics.SubscriptionFailed("unsubscribe")
			return failed(next, slot.Handle, err)
		}
	}

	h, err := m.source.Subscribe(ctx, connection.UserEventsFilter{User: slot.Account})
	if err != nil {
		m.logger.Warn("subscribe failed, retrying next cycle",
			"account", account,
			"error", err,
		)
		m.metrics.SubscriptionFailed("subscribe")
		return failed(next, uuid.Nil, err)
	}

	if slot.Status != StatusActive {
		m.logger.Info("subscription recovered",
			"account", account,
			"after_failures", slot.Failures,
		)
	}

	next.Handle = h
	next.Status = StatusActive
	next.LastErr = nil
	next.Failures = 0
	return next
}

func failed(slot Subscription, h connection.Handle, err error) Subscription {
	slot.Handle = h
	slot.Status = StatusFailedPendingRetry
	slot.LastErr = err
	slot.Failures++
	return slot
}

// dedupe guarantees one slot per account and one slot per handle. For an
// account seen more than once, an Active slot wins over a failed one and
// otherwise the first occurrence wins. Handles held only by discarded slots
// are returned as orphans so the caller can cancel them.
func dedupe(slots []Subscription) (kept []Subscription, orphans []connection.Handle) {
	winner := make(map[model.Account]int, len(slots))
	for i, s := range slots {
		j, ok := winner[s.Account]
		if !ok || (slots[j].Status != StatusActive && s.Status == StatusActive) {
			winner[s.Account] = i
		}
	}

	accounts := mapset.NewThreadUnsafeSet[model.Account]()
	handles := mapset.NewThreadUnsafeSet[connection.Handle]()
	kept = make([]Subscription, 0, len(winner))

	for i, s := range slots {
		if winner[s.Account] != i || !accounts.Add(s.Account) {
			continue
		}
		if s.HasHandle() && !handles.Add(s.Handle) {
			// Another account already claims this handle.
			s = failed(s, uuid.Nil, errors.New("duplicate handle"))
		}
		kept = append(kept, s)
	}

	for i, s := range slots {
		if winner[s.Account] != i && s.HasHandle() && handles.Add(s.Handle) {
			orphans = append(orphans, s.Handle)
		}
	}

	return kept, orphans
}

func (m *Manager) commit(slots []Subscription) {
	active, failedCount := 0, 0
	for _, s := range slots {
		if s.Status == StatusActive {
			active++
		} else {
			failedCount++
		}
	}

	m.mu.Lock()
	m.slots = slots
	m.mu.Unlock()

	m.metrics.SetSubscriptions(active, failedCount)
}

// Run invokes RefreshCycle every RefreshInterval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	m.logger.Info("refresh loop started", "interval", m.cfg.RefreshInterval)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("refresh loop stopped")
			return nil
		case <-ticker.C:
			m.RefreshCycle(ctx)
		}
	}
}

// Slots returns a copy of the current slots.
func (m *Manager) Slots() []Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.slots)
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{Cycles: m.cycles.Load()}
	for _, s := range m.slots {
		if s.Status == StatusActive {
			stats.Active++
		} else {
			stats.Failed++
		}
	}
	return stats
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/vault-relay/internal/metrics"
	"github.com/rickgao/vault-relay/internal/model"
)

// ErrFatalDelivery is returned when a delivery fails under PolicyExit.
var ErrFatalDelivery = errors.New("fatal delivery failure")

// Mode selects how fills are delivered.
type Mode string

const (
	ModeBatched   Mode = "batched"
	ModeImmediate Mode = "immediate"
)

// FailurePolicy selects what a failed delivery does.
type FailurePolicy string

const (
	PolicyDrop FailurePolicy = "drop"
	PolicyExit FailurePolicy = "exit"
)

// Deliverer sends one message. *Sink implements it.
type Deliverer interface {
	Deliver(ctx context.Context, content string) error
}

// Config holds dispatcher configuration.
type Config struct {
	Mode          Mode
	FailurePolicy FailurePolicy
	FlushInterval time.Duration   // batched: interval between flushes (default: 1s)
	PaceInterval  time.Duration   // immediate: minimum gap between deliveries (default: 5s)
	MinSize       decimal.Decimal // fills with |size| below this are skipped; zero disables
	MaxLength     int             // batched: split messages above this many bytes; zero disables
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeBatched,
		FailurePolicy: PolicyDrop,
		FlushInterval: time.Second,
		PaceInterval:  5 * time.Second,
		MaxLength:     2000,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Pending   int
	Delivered int64
	Failed    int64
	Skipped   int64
	Abandoned int64 // lines dropped because shutdown interrupted the pacing wait
	Flushes   int64
}

// Dispatcher formats fills and delivers them through a Deliverer.
type Dispatcher struct {
	cfg     Config
	sink    Deliverer
	metrics *metrics.Metrics
	logger  *slog.Logger

	pending lineBuffer

	// paceMu serializes immediate deliveries and guards lastSent.
	paceMu   sync.Mutex
	lastSent time.Time

	delivered atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	abandoned atomic.Int64
	flushes   atomic.Int64
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(cfg Config, sink Deliverer, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = defaults.Mode
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = PolicyDrop
		if cfg.Mode == ModeImmediate {
			cfg.FailurePolicy = PolicyExit
		}
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.PaceInterval < 0 {
		cfg.PaceInterval = 0
	}

	return &Dispatcher{
		cfg:     cfg,
		sink:    sink,
		metrics: m,
		logger:  logger.With("component", "notify", "mode", string(cfg.Mode)),
	}
}

// HandleFills formats a batch in order. In batched mode the lines are queued
// for the next flush; in immediate mode each one is delivered before
// returning.
func (d *Dispatcher) HandleFills(ctx context.Context, fills []model.FillEvent) error {
	lines := make([]string, 0, len(fills))
	for _, f := range fills {
		if d.skip(f) {
			continue
		}
		lines = append(lines, Format(f))
	}

	if d.cfg.Mode == ModeBatched {
		d.pending.Append(lines...)
		return nil
	}

	for _, line := range lines {
		if err := d.deliverPaced(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// skip reports whether f falls under MinSize.
func (d *Dispatcher) skip(f model.FillEvent) bool {
	if d.cfg.MinSize.IsZero() {
		return false
	}

	size, err := f.SizeDecimal()
	if err != nil {
		d.logger.Warn("unparseable fill size, delivering anyway", "error", err, "coin", f.Coin)
		return false
	}
	if size.Abs().LessThan(d.cfg.MinSize) {
		d.logger.Debug("fill below min size", "coin", f.Coin, "size", f.Size, "min_size", d.cfg.MinSize)
		d.skipped.Add(1)
		return true
	}
	return false
}

// deliverPaced waits until PaceInterval has passed since the previous
// delivery, then delivers content.
func (d *Dispatcher) deliverPaced(ctx context.Context, content string) error {
	d.paceMu.Lock()
	defer d.paceMu.Unlock()

	if !d.lastSent.IsZero() {
		if wait := time.Until(d.lastSent.Add(d.cfg.PaceInterval)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				d.abandoned.Add(1)
				d.metrics.Delivery("dropped")
				d.logger.Warn("pacing wait interrupted, message dropped",
					"error", ctx.Err(),
					"bytes", len(content),
				)
				return nil
			case <-timer.C:
			}
		}
	}

	err := d.deliver(ctx, content)
	d.lastSent = time.Now()
	return err
}

// Flush delivers every pending line. An empty buffer makes no request.
func (d *Dispatcher) Flush(ctx context.Context) error {
	lines := d.pending.Swap()
	if len(lines) == 0 {
		return nil
	}

	d.flushes.Add(1)
	for _, msg := range chunk(lines, d.cfg.MaxLength) {
		if err := d.deliver(ctx, msg); err != nil {
			return err
		}
	}

	d.logger.Debug("flushed", "lines", len(lines))
	return nil
}

// deliver sends one message and applies the failure policy.
func (d *Dispatcher) deliver(ctx context.Context, content string) error {
	err := d.sink.Deliver(ctx, content)
	if err == nil {
		d.delivered.Add(1)
		d.metrics.Delivery("ok")
		return nil
	}

	d.failed.Add(1)

	if d.cfg.FailurePolicy == PolicyExit {
		d.metrics.Delivery("failed")
		d.logger.Error("delivery failed", "error", err)
		return fmt.Errorf("%w: %w", ErrFatalDelivery, err)
	}

	d.metrics.Delivery("dropped")
	d.logger.Warn("delivery failed, message dropped", "error", err, "bytes", len(content))
	return nil
}

// Run drives the flush timer in batched mode until ctx is done, then performs
// a final flush. In immediate mode it only waits for ctx. A fatal delivery
// error stops the loop and is returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.cfg.Mode != ModeBatched {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	d.logger.Info("flush loop started", "interval", d.cfg.FlushInterval)

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := d.Flush(flushCtx); err != nil {
				return err
			}
			d.logger.Info("flush loop stopped")
			return nil
		case <-ticker.C:
			if err := d.Flush(ctx); err != nil {
				return err
			}
		}
	}
}

// Stats returns current statistics.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Pending:   d.pending.Len(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Skipped:   d.skipped.Load(),
		Abandoned: d.abandoned.Load(),
		Flushes:   d.flushes.Load(),
	}
}

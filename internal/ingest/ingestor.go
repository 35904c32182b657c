package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rickgao/vault-relay/internal/connection"
	"github.com/rickgao/vault-relay/internal/metrics"
	"github.com/rickgao/vault-relay/internal/model"
)

// Ingestor consumes inbound messages and routes fill batches to handlers.
type Ingestor struct {
	input    <-chan connection.Message
	handlers []Handler
	metrics  *metrics.Metrics
	logger   *slog.Logger

	received    atomic.Int64
	reports     atomic.Int64
	fills       atomic.Int64
	parseErrors atomic.Int64
	discarded   atomic.Int64
}

// New creates a new Ingestor. Handlers are called in the order given.
func New(input <-chan connection.Message, m *metrics.Metrics, logger *slog.Logger, handlers ...Handler) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		input:    input,
		handlers: handlers,
		metrics:  m,
		logger:   logger.With("component", "ingest"),
	}
}

// Run drains the input until ctx is done or the input is closed. A handler
// error stops the loop and is returned.
func (in *Ingestor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in.input:
			if !ok {
				in.logger.Info("input channel closed")
				return nil
			}
			if err := in.handle(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// handle processes a single message.
func (in *Ingestor) handle(ctx context.Context, msg connection.Message) error {
	in.received.Add(1)

	fills, ok := in.extractFills(msg)
	if !ok || len(fills) == 0 {
		return nil
	}

	in.reports.Add(1)
	in.fills.Add(int64(len(fills)))
	in.metrics.FillsIngested(len(fills))

	in.logger.Debug("fills received", "count", len(fills), "account", accountAttr(fills[0]))

	for _, h := range in.handlers {
		if err := h.HandleFills(ctx, fills); err != nil {
			return fmt.Errorf("handle fills: %w", err)
		}
	}
	return nil
}

// extractFills decodes a fills report. ok is false for anything else.
func (in *Ingestor) extractFills(msg connection.Message) (fills []model.FillEvent, ok bool) {
	if msg.Channel != connection.ChannelUser {
		in.discarded.Add(1)
		return nil, false
	}

	var data userEventsData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		in.logger.Warn("failed to parse user event", "error", err)
		in.parseErrors.Add(1)
		return nil, false
	}
	if data.Fills == nil {
		in.discarded.Add(1)
		return nil, false
	}

	var account model.Account
	if data.User != "" {
		a, err := model.ParseAccount(data.User)
		if err != nil {
			in.logger.Warn("ignoring bad user field", "error", err)
		} else {
			account = a
		}
	}

	fills = make([]model.FillEvent, len(data.Fills))
	for i, f := range data.Fills {
		fills[i] = transform(account, f)
	}
	return fills, true
}

// transform converts a wire fill to a FillEvent.
func transform(account model.Account, f wireFill) model.FillEvent {
	return model.FillEvent{
		Account: account,
		Coin:    f.Coin,
		Side:    model.Side(f.Side),
		Size:    f.Sz,
		Price:   f.Px,
		Time:    f.Time,
		Hash:    f.Hash,
		OrderID: f.Oid,
		TradeID: f.Tid,
		Dir:     f.Dir,
		Fee:     f.Fee,
	}
}

func accountAttr(f model.FillEvent) string {
	if !f.HasAccount() {
		return ""
	}
	return model.WireAccount(f.Account)
}

// Stats returns current statistics.
func (in *Ingestor) Stats() Stats {
	return Stats{
		MessagesReceived: in.received.Load(),
		FillReports:      in.reports.Load(),
		FillsIngested:    in.fills.Load(),
		ParseErrors:      in.parseErrors.Load(),
		Discarded:        in.discarded.Load(),
	}
}

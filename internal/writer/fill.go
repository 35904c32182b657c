package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/vault-relay/internal/metrics"
	"github.com/rickgao/vault-relay/internal/model"
)

const insertFill = `
	INSERT INTO fills (tid, account, coin, side, sz, px, fee, dir, hash, oid, exchange_ts, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (tid) DO NOTHING
`

// FillWriter journals fills to the fills table.
type FillWriter struct {
	cfg     WriterConfig
	db      DB
	metrics *metrics.Metrics
	logger  *slog.Logger

	// Batching
	batch   []fillRow
	batchMu sync.Mutex
	kick    chan struct{}

	stats WriterMetrics
}

// NewFillWriter creates a new FillWriter.
func NewFillWriter(cfg WriterConfig, db DB, m *metrics.Metrics, logger *slog.Logger) *FillWriter {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultWriterConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	return &FillWriter{
		cfg:     cfg,
		db:      db,
		metrics: m,
		logger:  logger.With("component", "journal"),
		batch:   make([]fillRow, 0, cfg.BatchSize),
		kick:    make(chan struct{}, 1),
	}
}

// EnsureSchema creates the fills table if needed.
func (w *FillWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create fills table: %w", err)
	}
	return nil
}

// HandleFills queues fills for the next flush. It never fails; journal
// problems are logged and counted.
func (w *FillWriter) HandleFills(_ context.Context, fills []model.FillEvent) error {
	receivedAt := time.Now()

	w.batchMu.Lock()
	for _, f := range fills {
		w.batch = append(w.batch, w.transform(f, receivedAt))
	}
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Run flushes every FlushInterval, or early when the batch fills, until ctx
// is done. A final flush runs before returning.
func (w *FillWriter) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	w.logger.Info("fill journal started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			w.flush(flushCtx)
			cancel()
			w.logger.Info("fill journal stopped")
			return nil
		case <-ticker.C:
			w.flush(ctx)
		case <-w.kick:
			w.flush(ctx)
		}
	}
}

// Stats returns current metrics.
func (w *FillWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// transform converts a FillEvent to a fillRow.
func (w *FillWriter) transform(f model.FillEvent, receivedAt time.Time) fillRow {
	var account string
	if f.HasAccount() {
		account = model.WireAccount(f.Account)
	}
	return fillRow{
		TradeID:    f.TradeID,
		Account:    account,
		Coin:       f.Coin,
		Side:       string(f.Side),
		Size:       w.parseDecimal("sz", f.Size),
		Price:      w.parseDecimal("px", f.Price),
		Fee:        w.parseDecimal("fee", f.Fee),
		Dir:        f.Dir,
		Hash:       f.Hash,
		OrderID:    f.OrderID,
		ExchangeTs: f.Time,
		ReceivedAt: receivedAt,
	}
}

// parseDecimal returns a NULL decimal for empty or malformed input.
func (w *FillWriter) parseDecimal(field, s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		w.logger.Debug("unparseable decimal, storing NULL", "field", field, "value", s)
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// flush writes the current batch to the database.
func (w *FillWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]fillRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		w.metrics.JournalRows("error", len(batch))
		return
	}

	w.batchMu.Lock()
	w.stats.Inserts += int64(len(batch) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.metrics.JournalRows("inserted", len(batch)-conflicts)
	w.metrics.JournalRows("conflict", conflicts)

	w.logger.Debug("flushed fills",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *FillWriter) batchInsert(ctx context.Context, rows []fillRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertFill,
			r.TradeID, r.Account, r.Coin, r.Side, r.Size, r.Price, r.Fee,
			r.Dir, r.Hash, r.OrderID, r.ExchangeTs, r.ReceivedAt,
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// WriterConfig holds configuration for writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
	}
}

// WriterMetrics contains writer statistics.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// fillRow represents a row to be inserted into the fills table.
type fillRow struct {
	TradeID    int64
	Account    string // lowercase 0x address, empty if unattributed
	Coin       string
	Side       string
	Size       decimal.NullDecimal
	Price      decimal.NullDecimal
	Fee        decimal.NullDecimal
	Dir        string
	Hash       string
	OrderID    int64
	ExchangeTs int64 // Milliseconds
	ReceivedAt time.Time
}

// Schema creates the fills table if it does not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS fills (
	tid         BIGINT PRIMARY KEY,
	account     TEXT NOT NULL,
	coin        TEXT NOT NULL,
	side        TEXT NOT NULL,
	sz          NUMERIC,
	px          NUMERIC,
	fee         NUMERIC,
	dir         TEXT NOT NULL,
	hash        TEXT NOT NULL,
	oid         BIGINT NOT NULL,
	exchange_ts BIGINT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
)`

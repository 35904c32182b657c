// Package writer implements the optional fill journal.
//
// FillWriter accumulates fills in memory and batch-inserts them into the
// Postgres fills table on a timer or when the batch is full. The journal is
// append-only (never update, only insert) and deduplicates on the venue
// trade id. Nothing is read back.
package writer

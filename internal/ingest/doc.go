// Package ingest drains the event source and extracts fill reports.
//
// Only the "user" channel's fills variant is consumed; every other channel and
// user-event variant (funding, liquidation, nonUserCancel) is discarded. Fills
// are handed to each Handler in arrival order, one batch per message.
package ingest

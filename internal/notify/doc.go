// Package notify turns fill batches into webhook messages.
//
// The Dispatcher runs in one of two modes:
//
//   - batched: formatted lines are appended to a pending buffer and flushed
//     as one newline-joined message every flush interval. An empty buffer
//     makes no request.
//   - immediate: each fill is delivered on its own, at most one delivery per
//     pace interval.
//
// A failed delivery is either dropped (logged and counted) or fatal, in which
// case the Dispatcher returns ErrFatalDelivery and the process exits.
package notify

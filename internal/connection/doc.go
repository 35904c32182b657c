// Package connection implements the venue event stream.
//
// A Source owns one WebSocket connection and:
//   - Issues subscribe/unsubscribe frames and hands out opaque handles
//   - Sends application-level pings and detects stale connections
//   - Reconnects with exponential backoff and replays registered subscriptions
//   - Forwards every data frame to a single inbound channel
package connection

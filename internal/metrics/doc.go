// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Subscription slots by status and subscribe/unsubscribe failures
//   - Refresh cycles and stream reconnects
//   - Fills ingested and webhook deliveries by result
//   - Journal rows written and failed
//
// All recording methods are safe to call on a nil *Metrics.
package metrics

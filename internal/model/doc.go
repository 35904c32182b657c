// Package model defines shared data types used across the relay.
//
// Conventions:
//   - Accounts: 20-byte 0x addresses, encoded lowercase on the wire
//   - Sizes and prices: decimal strings exactly as the venue sent them
//   - Timestamps: int64 milliseconds since Unix epoch (venue native)
package model

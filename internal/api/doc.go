// Package api provides the venue info-endpoint client.
//
// Info endpoint:
//   - Mainnet: https://api.hyperliquid.xyz/info
//   - Testnet: https://api.hyperliquid-testnet.xyz/info
//
// Every request is a POST with a JSON body whose "type" field selects the query.
// Only "vaultDetails" is used here, to resolve a vault's child accounts.
package api

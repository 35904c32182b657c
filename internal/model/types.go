package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Account is a watched account identifier. Immutable once resolved.
type Account = common.Address

// ParseAccount parses a 0x-prefixed hex address.
func ParseAccount(s string) (Account, error) {
	if !common.IsHexAddress(s) {
		return Account{}, fmt.Errorf("invalid account address %q", s)
	}
	return common.HexToAddress(s), nil
}

// WireAccount returns the lowercase hex form the venue expects in subscriptions.
func WireAccount(a Account) string {
	return strings.ToLower(a.Hex())
}

// Side is the venue's side code for a fill.
type Side string

const (
	SideAsk Side = "A"
	SideBid Side = "B"
)

// Label returns the human-readable label used in notifications.
// Anything other than "A" or "B" is reported as "Unknown".
func (s Side) Label() string {
	switch s {
	case SideAsk:
		return "Long"
	case SideBid:
		return "Short"
	default:
		return "Unknown"
	}
}

// FillEvent is a single trade execution affecting a watched account.
// Consumed once by the dispatcher and discarded.
type FillEvent struct {
	Account Account // Zero if the venue did not attribute the batch
	Coin    string  // Instrument symbol (e.g., "BTC")
	Side    Side    // "A", "B", or anything else
	Size    string  // Decimal magnitude, verbatim
	Price   string  // Decimal price, verbatim
	Time    int64   // Exchange time (ms since epoch)
	Hash    string  // Transaction hash
	OrderID int64   // oid
	TradeID int64   // tid, unique per fill
	Dir     string  // e.g. "Open Long", "Close Short"
	Fee     string
}

// SizeDecimal parses Size. An empty size is zero.
func (f FillEvent) SizeDecimal() (decimal.Decimal, error) {
	if f.Size == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(f.Size)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse size %q: %w", f.Size, err)
	}
	return d, nil
}

// HasAccount reports whether the fill is attributed to an account.
func (f FillEvent) HasAccount() bool {
	return f.Account != (Account{})
}

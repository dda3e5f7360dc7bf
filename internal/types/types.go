// Package types holds shared domain types used across packages.
// Kept separate to avoid import cycles.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of a binary market.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// OrderStatus is the lifecycle state of a simulated order.
type OrderStatus string

const (
	OrderOpen     OrderStatus = "open"
	OrderFilled   OrderStatus = "filled"
	OrderCanceled OrderStatus = "canceled"

	// OrderUnknown is returned for ids the ledger does not recognize.
	// Callers treat it as "still pending", never as an error.
	OrderUnknown OrderStatus = "unknown"
)

// MarketSpec identifies one up/down trading window: two CLOB token ids
// plus the unix timestamp the window resolves at. Immutable once
// selected; rotation replaces it wholesale.
type MarketSpec struct {
	Slug     string
	YesAsset string
	NoAsset  string
	EndTS    int64
}

// TTE returns the time to expiry at now, floored at zero.
func (m MarketSpec) TTE(now time.Time) time.Duration {
	d := time.Unix(m.EndTS, 0).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// AssetFor maps a side to its token id.
func (m MarketSpec) AssetFor(side Side) string {
	if side == SideYes {
		return m.YesAsset
	}
	return m.NoAsset
}

// OrderSnapshot is a read-only view of an order held by the ledger.
type OrderSnapshot struct {
	ID           string
	AssetID      string
	Side         string // "buy" or "sell"
	Price        decimal.Decimal
	Size         decimal.Decimal
	PostOnly     bool
	Status       OrderStatus
	CreatedAt    time.Time
	FilledAt     *time.Time
	AvgFillPrice decimal.NullDecimal
}

package coretypes

import "time"

// Side is the direction of an order or trade leg.
type Side int8

const (
	Buy  Side = 1
	Sell Side = 2
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// OrderType enumerates the order primitives plus the triggered shells
// layered over them. Stop/trailing/iceberg/bracket/OCO are shells around
// a limit/market primitive, not independent matching behaviors.
type OrderType string

const (
	Market       OrderType = "market"
	Limit        OrderType = "limit"
	Stop         OrderType = "stop"
	StopLimit    OrderType = "stop_limit"
	TrailingStop OrderType = "trailing_stop"
	Iceberg      OrderType = "iceberg"
	Bracket      OrderType = "bracket"
	OCO          OrderType = "oco"
)

// TimeInForce controls residual handling after a crossing attempt.
type TimeInForce string

const (
	GTC TimeInForce = "gtc"
	IOC TimeInForce = "ioc"
	FOK TimeInForce = "fok"
	GTD TimeInForce = "gtd"
)

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusOpen            OrderStatus = "open"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
	StatusExpired         OrderStatus = "expired"
)

// IsTerminal reports whether the status is one of the terminal states:
// once reached, no field of the order may mutate again.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusRejected, StatusExpired, StatusFilled:
		return true
	default:
		return false
	}
}

// WorkingType selects the reference price used to evaluate a stop/trailing
// trigger: the symbol's mark price (futures) or its last traded price.
type WorkingType int8

const (
	WorkingLast WorkingType = 0
	WorkingMark WorkingType = 1
)

// Order is the full lifecycle record for a single order.
type Order struct {
	// Identity
	ID       string
	ClientID string
	Owner    string
	Symbol   string

	// Intent
	Side          Side
	Type          OrderType
	TIF           TimeInForce
	Price         Price // limit price; zero for pure market orders
	StopPrice     Price // stop / stop-limit trigger price
	TrailAmount   Price // absolute trail distance, zero if TrailPercent is set
	TrailPercent  float64
	Quantity      Qty
	DisplayQty    Qty // iceberg visible size; zero disables icebergs
	PostOnly      bool // maker-only: reject instead of taking liquidity
	ReduceOnly    bool
	ClosePosition bool
	WorkingType   WorkingType
	Leverage      int       // perpetual-only; <= 0 defaults to 1x at admission
	ExpireAt      time.Time // GTD expiry instant, zero if not GTD

	// State
	Status       OrderStatus
	Filled       Qty
	AvgFillPrice Price
	ParentID     string   // bracket/OCO parent, empty if none
	ChildIDs     []string // bracket stop-loss/take-profit, or OCO sibling

	// Reserved is the ledger amount still held against this order's
	// unfilled remainder (quote for buys and perpetual margin, base for
	// spot sells). Maintained by the book; not client-settable.
	Reserved Price

	AdmittedAt time.Time
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() Qty {
	return o.Quantity.Sub(o.Filled)
}

// IsFullyFilled reports filled == quantity exactly, the terminal condition
// for a match-driven fill (as opposed to cancel/expire/reject).
func (o *Order) IsFullyFilled() bool {
	return o.Filled.GreaterThanOrEqual(o.Quantity)
}

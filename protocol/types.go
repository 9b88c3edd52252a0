// Package protocol defines the versioned wire schema at the engine's
// edges: the ingress request envelope, the internal command carrier, and
// the market-data egress streams. The in-engine API stays strongly typed
// and schema-independent; everything here is the serialized face of it.
package protocol

// Side represents the order side (Buy/Sell).
type Side int8

const (
	SideBuy  Side = 1
	SideSell Side = 2
)

// OrderType represents the type of order, including the triggered shells.
type OrderType string

const (
	OrderTypeMarket       OrderType = "market"
	OrderTypeLimit        OrderType = "limit"
	OrderTypeStop         OrderType = "stop"
	OrderTypeStopLimit    OrderType = "stop_limit"
	OrderTypeTrailingStop OrderType = "trailing_stop"
	OrderTypeIceberg      OrderType = "iceberg"
)

// TimeInForce controls residual handling after the crossing attempt.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceFOK TimeInForce = "fok"
	TimeInForceGTD TimeInForce = "gtd"
)

// LogType represents the type of event log.
type LogType string

const (
	LogTypeOpen    LogType = "open"
	LogTypeMatch   LogType = "match"
	LogTypeCancel  LogType = "cancel"
	LogTypeAmend   LogType = "amend"
	LogTypeReject  LogType = "reject"
	LogTypeExpire  LogType = "expire"
	LogTypeTrigger LogType = "trigger"
)

// RejectReason is the wire form of the engine's stable rejection codes.
type RejectReason string

const (
	RejectReasonNone                RejectReason = ""
	RejectReasonUnknownSymbol       RejectReason = "unknown_symbol"
	RejectReasonQuantityOutOfRange  RejectReason = "quantity_out_of_range"
	RejectReasonPriceOffTick        RejectReason = "price_off_tick"
	RejectReasonInsufficientBalance RejectReason = "insufficient_balance"
	RejectReasonLeverageExceeded    RejectReason = "leverage_exceeded"
	RejectReasonReduceOnly          RejectReason = "reduce_only_violation"
	RejectReasonStaleOracle         RejectReason = "stale_oracle"
	RejectReasonNoLiquidity         RejectReason = "no_liquidity"
	RejectReasonInsufficientSize    RejectReason = "insufficient_size"
	RejectReasonSelfTrade           RejectReason = "self_trade_prevented"
	RejectReasonPostOnlyMatch       RejectReason = "post_only_match"
	RejectReasonOverloaded          RejectReason = "overloaded"
	RejectReasonNotFound            RejectReason = "not_found"
	RejectReasonNotOwned            RejectReason = "not_owned"
	RejectReasonTerminal            RejectReason = "terminal"
	RejectReasonMarketSuspended     RejectReason = "market_suspended"
	RejectReasonInvalidPayload      RejectReason = "invalid_payload"
)

// DepthItem is one aggregated price level in a depth response.
type DepthItem struct {
	Price string `json:"price"`
	Size  string `json:"size"`
	Count int64  `json:"count"`
}

// GetDepthResponse represents the state of the order book depth.
type GetDepthResponse struct {
	UpdateID uint64       `json:"update_id"`
	Asks     []*DepthItem `json:"asks"`
	Bids     []*DepthItem `json:"bids"`
}

// GetStatsResponse contains statistics about one market's ladders.
type GetStatsResponse struct {
	AskDepthCount int64  `json:"ask_depth_count"`
	AskOrderCount int64  `json:"ask_order_count"`
	BidDepthCount int64  `json:"bid_depth_count"`
	BidOrderCount int64  `json:"bid_order_count"`
	LastTrade     string `json:"last_trade"`
	SessionVolume string `json:"session_volume"`
}

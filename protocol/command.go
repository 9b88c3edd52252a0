package protocol

// CommandType identifies the payload carried by a Command.
type CommandType uint8

// Command type numbering: 0-50 are market-management commands (internal,
// low frequency), 51+ are trading commands (external, hot path).
const (
	CmdUnknown       CommandType = 0
	CmdCreateMarket  CommandType = 1
	CmdSuspendMarket CommandType = 2
	CmdResumeMarket  CommandType = 3

	CmdPlaceOrder  CommandType = 51
	CmdCancelOrder CommandType = 52
	CmdAmendOrder  CommandType = 53
)

// MarketState represents the lifecycle state of one market's book.
type MarketState uint8

const (
	// MarketStateRunning indicates the market accepts all trading operations.
	MarketStateRunning MarketState = 0
	// MarketStateSuspended indicates new orders are rejected; cancels still work.
	MarketStateSuspended MarketState = 1
	// MarketStateHalted indicates the market is permanently stopped.
	MarketStateHalted MarketState = 2
)

// Command is the standard carrier for commands entering the engine from
// a journal or bus. The payload stays serialized until the market router
// has dispatched it, so routing never pays for a full decode.
type Command struct {
	// Version is the protocol version for backward compatibility.
	Version uint8 `json:"version"`

	// Symbol is the target market for this command (routing header).
	Symbol string `json:"symbol"`

	// SeqID is used for global ordering and deduplication.
	SeqID uint64 `json:"seq_id"`

	// Type identifies the payload type for fast routing.
	Type CommandType `json:"type"`

	// Payload contains the serialized business data, e.g. the JSON bytes
	// of a PlaceOrderCommand.
	Payload []byte `json:"payload"`

	// Metadata stores non-business context (tracing id, source ip).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PlaceOrderCommand is the payload for placing a new order. Prices and
// quantities travel as strings to survive JSON without precision loss.
type PlaceOrderCommand struct {
	ClientOrderID string      `json:"client_order_id,omitempty"`
	Owner         string      `json:"owner"`
	Side          Side        `json:"side"`
	OrderType     OrderType   `json:"order_type"`
	TimeInForce   TimeInForce `json:"time_in_force"`
	Price         string      `json:"price,omitempty"`
	StopPrice     string      `json:"stop_price,omitempty"`
	TrailAmount   string      `json:"trail_amount,omitempty"`
	TrailPercent  float64     `json:"trail_percent,omitempty"`
	Quantity      string      `json:"quantity"`
	DisplayQty    string      `json:"display_qty,omitempty"`
	PostOnly      bool        `json:"post_only,omitempty"`
	ReduceOnly    bool        `json:"reduce_only,omitempty"`
	ClosePosition bool        `json:"close_position,omitempty"`
	Leverage      int         `json:"leverage,omitempty"`
	WorkingMark   bool        `json:"working_mark,omitempty"` // trigger off mark instead of last
	ExpireAtNs    int64       `json:"expire_at_ns,omitempty"` // GTD only
	Timestamp     int64       `json:"timestamp"`
}

// CancelOrderCommand is the payload for cancelling an existing order.
type CancelOrderCommand struct {
	OrderID   string `json:"order_id"`
	Owner     string `json:"owner"`
	Timestamp int64  `json:"timestamp"`
}

// AmendOrderCommand is the payload for modifying an existing order.
type AmendOrderCommand struct {
	OrderID   string `json:"order_id"`
	Owner     string `json:"owner"`
	NewPrice  string `json:"new_price,omitempty"`
	NewQty    string `json:"new_qty,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// CreateMarketCommand is the payload for creating a new market. It is
// the wire shape of the symbol's static configuration.
type CreateMarketCommand struct {
	OperatorID string  `json:"operator_id"` // audit trail
	Symbol     string  `json:"symbol"`
	BaseAsset  string  `json:"base_asset"`
	QuoteAsset string  `json:"quote_asset"`
	Tick       string  `json:"tick"`
	Lot        string  `json:"lot"`
	MinQty     string  `json:"min_qty,omitempty"`
	MaxQty     string  `json:"max_qty,omitempty"`
	MakerFee   float64 `json:"maker_fee,omitempty"`
	TakerFee   float64 `json:"taker_fee,omitempty"`

	// Perpetual-only fields.
	LinearPerpetual       bool    `json:"linear_perpetual,omitempty"`
	MaxLeverage           int     `json:"max_leverage,omitempty"`
	InitialMarginRate     float64 `json:"initial_margin_rate,omitempty"`
	MaintenanceMarginRate float64 `json:"maintenance_margin_rate,omitempty"`
	FundingIntervalSec    int64   `json:"funding_interval_sec,omitempty"`
}

// SuspendMarketCommand is the payload for suspending a market.
type SuspendMarketCommand struct {
	OperatorID string `json:"operator_id"`
	Symbol     string `json:"symbol"`
	Reason     string `json:"reason"`
}

// ResumeMarketCommand is the payload for resuming a suspended market.
type ResumeMarketCommand struct {
	OperatorID string `json:"operator_id"`
	Symbol     string `json:"symbol"`
}

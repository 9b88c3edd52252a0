package protocol

import "time"

// Method is the ingress verb of the request envelope.
type Method string

const (
	MethodSubmit    Method = "submit"
	MethodCancel    Method = "cancel"
	MethodAmend     Method = "amend"
	MethodSubscribe Method = "subscribe"
	MethodSnapshot  Method = "snapshot"
)

// Envelope is the versioned ingress request carrier: a method, its
// serialized parameters, and a client-chosen correlation id that the
// response echoes back.
type Envelope struct {
	Version       uint8  `json:"version"`
	CorrelationID string `json:"correlation_id"`
	Method        Method `json:"method"`
	Params        []byte `json:"params"`
}

// EnvelopeResponse is the reply to an Envelope, echoing its correlation id.
type EnvelopeResponse struct {
	CorrelationID string       `json:"correlation_id"`
	OK            bool         `json:"ok"`
	RejectReason  RejectReason `json:"reject_reason,omitempty"`
	Detail        string       `json:"detail,omitempty"`
	Result        []byte       `json:"result,omitempty"`
}

// SubmitParams is the Envelope.Params payload for MethodSubmit, covering
// every order shape the engine admits: the limit/market primitives, the
// stop/trailing/iceberg shells, and grouped bracket/OCO submissions.
type SubmitParams struct {
	ClientOrderID string      `json:"client_order_id"`
	Symbol        string      `json:"symbol"`
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
	WorkingMark   bool        `json:"working_mark,omitempty"`
	ExpireAtNs    int64       `json:"expire_at_ns,omitempty"` // unix nanos, GTD only

	// Bracket/OCO: the caller submits the whole group in one envelope.
	StopLoss   *SubmitParams `json:"stop_loss,omitempty"`
	TakeProfit *SubmitParams `json:"take_profit,omitempty"`
	OCOSibling *SubmitParams `json:"oco_sibling,omitempty"`
}

// CancelParams is the Envelope.Params payload for MethodCancel.
type CancelParams struct {
	Symbol  string `json:"symbol"`
	OrderID string `json:"order_id"`
	Owner   string `json:"owner"`
}

// AmendParams is the Envelope.Params payload for MethodAmend.
type AmendParams struct {
	Symbol   string `json:"symbol"`
	OrderID  string `json:"order_id"`
	Owner    string `json:"owner"`
	NewPrice string `json:"new_price,omitempty"`
	NewQty   string `json:"new_qty,omitempty"`
}

// SubscribeParams is the Envelope.Params payload for MethodSubscribe.
type SubscribeParams struct {
	Symbol  string   `json:"symbol"`
	Streams []string `json:"streams"` // "book", "trades"
}

// SnapshotParams is the Envelope.Params payload for MethodSnapshot.
type SnapshotParams struct {
	Symbol string `json:"symbol"`
	Depth  int    `json:"depth"`
}

// BookUpdateKind distinguishes a full snapshot from an incremental delta
// in the book-update egress stream.
type BookUpdateKind string

const (
	BookUpdateSnapshot BookUpdateKind = "snapshot"
	BookUpdateDelta    BookUpdateKind = "delta"
)

// BookLevelUpdate is one changed (price, aggregate) pair in a delta.
type BookLevelUpdate struct {
	Price     string `json:"price"`
	Aggregate string `json:"aggregate"`
}

// BookUpdate is one message of the book-update egress stream. Sequence
// numbers are monotonic per symbol, so a consumer can detect gaps and
// re-request a snapshot.
type BookUpdate struct {
	Symbol      string            `json:"symbol"`
	Sequence    uint64            `json:"sequence"`
	TimestampUs int64             `json:"timestamp_us"`
	Kind        BookUpdateKind    `json:"kind"`
	Bids        []BookLevelUpdate `json:"bids,omitempty"`
	Asks        []BookLevelUpdate `json:"asks,omitempty"`
}

// TradeMessage is one message of the trade egress stream: an immutable
// trade record, emitted in trade order.
type TradeMessage struct {
	Symbol      string `json:"symbol"`
	TradeID     uint64 `json:"trade_id"`
	Sequence    uint64 `json:"sequence"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	MakerSide   Side   `json:"maker_side"`
	TimestampUs int64  `json:"timestamp_us"`
}

// IndexPriceUpdate is the oracle ingress message: a per-symbol index
// price with a timestamp and the freshness window it must be evaluated
// against.
type IndexPriceUpdate struct {
	Symbol      string        `json:"symbol"`
	IndexPrice  string        `json:"index_price"`
	ObservedAt  time.Time     `json:"observed_at"`
	FreshWindow time.Duration `json:"fresh_window"`
}

// Stale reports whether this update is too old, as of now, to be
// trusted. A stale index freezes mark-price updates and suppresses
// liquidations for its symbol.
func (u IndexPriceUpdate) Stale(now time.Time) bool {
	if u.FreshWindow <= 0 {
		return false
	}
	return now.Sub(u.ObservedAt) > u.FreshWindow
}

// HealthStatus is the operational health probe response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// EngineStats is the operational statistics probe response, measured in
// the facade from admission to response.
type EngineStats struct {
	OrdersProcessed  uint64  `json:"orders_processed"`
	TradesExecuted   uint64  `json:"trades_executed"`
	AvgLatencyNs     int64   `json:"avg_latency_ns"`
	MinLatencyNs     int64   `json:"min_latency_ns"`
	MaxLatencyNs     int64   `json:"max_latency_ns"`
	ThroughputPerSec float64 `json:"throughput_per_sec"`
}

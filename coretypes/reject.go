package coretypes

// RejectReason is a stable, client-visible rejection code.
type RejectReason string

const (
	RejectNone RejectReason = ""

	// Validation (rejected at admission)
	RejectUnknownSymbol       RejectReason = "unknown_symbol"
	RejectQuantityOutOfRange  RejectReason = "quantity_out_of_range"
	RejectPriceOffTick        RejectReason = "price_off_tick"
	RejectInsufficientBalance RejectReason = "insufficient_balance"
	RejectLeverageExceeded    RejectReason = "leverage_exceeded"
	RejectReduceOnlyViolation RejectReason = "reduce_only_violation"
	RejectStaleOracle         RejectReason = "stale_oracle"
	RejectNoLiquidity         RejectReason = "no_liquidity"
	RejectPriceMismatch       RejectReason = "price_mismatch"
	RejectInsufficientSize    RejectReason = "insufficient_size"
	RejectWouldCrossSpread    RejectReason = "would_cross_spread"
	RejectPriceBand           RejectReason = "price_band_exceeded"
	RejectSelfTrade           RejectReason = "self_trade_prevented"
	RejectPostOnlyMatch       RejectReason = "post_only_match"
	RejectInvalidParam        RejectReason = "invalid_param"

	// Contention (transient)
	RejectOverloaded RejectReason = "overloaded"

	// Not-found / not-owned / terminal (cancel/amend path)
	RejectNotFound RejectReason = "not_found"
	RejectNotOwned RejectReason = "not_owned"
	RejectTerminal RejectReason = "terminal"

	// Degraded (oracle freshness / operator action)
	RejectMarketSuspended RejectReason = "market_suspended"
)

// Rejection carries a stable code plus a human-readable detail, so a
// failed call never has to be expressed as an empty string or a zero id.
type Rejection struct {
	Reason RejectReason
	Detail string
}

func (r Rejection) Error() string {
	if r.Detail != "" {
		return string(r.Reason) + ": " + r.Detail
	}
	return string(r.Reason)
}

// NewRejection builds a Rejection with an optional detail string.
func NewRejection(reason RejectReason, detail string) *Rejection {
	return &Rejection{Reason: reason, Detail: detail}
}

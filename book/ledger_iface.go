package book

import "github.com/lattice-exchange/matchcore/coretypes"

// Ledger is the account-balance collaborator a Book calls into from
// inside its own single-threaded critical section, so a fill's balance
// mutation is observed atomically with the trade emission: there is no
// unlock between the trade and the settlement call. Implemented by
// ledger.AccountLedger.
type Ledger interface {
	// Reserve attempts to reserve amount of asset for owner at admission.
	// Returns a Rejection if free balance is insufficient.
	Reserve(owner, asset string, amount coretypes.Price) *coretypes.Rejection

	// Release returns a previously reserved amount to free, used on
	// cancel/expire of a resting order's unfilled remainder and on the
	// unused tail of a reservation after a full fill at a better price.
	Release(owner, asset string, amount coretypes.Price)

	// Credit applies a signed amount to owner's free balance, used for
	// fee debits on margin markets.
	Credit(owner, asset string, amount coretypes.Price)

	// SettleFill moves reserved notional between the two owners of one
	// spot trade leg pair. base/quote name the symbol's two assets;
	// buyerOwner pays quote and receives base, sellerOwner pays base and
	// receives quote, each net of their fee.
	SettleFill(buyerOwner, sellerOwner, base, quote string, price, qty, buyerFee, sellerFee coretypes.Price) error
}

// PositionObserver receives fill notifications for a perpetual futures
// symbol so the derivatives position book can update size/entry/P&L and
// settle margin in the same call stack as the trade. nil for spot
// symbols.
type PositionObserver interface {
	// OnFill applies both legs of a perpetual trade. buyerLeverage and
	// sellerLeverage size the margin of a position opened by this fill;
	// they are ignored once a position already exists, since leverage is
	// fixed for the life of a position.
	OnFill(symbol, quoteAsset string, buyerOwner, sellerOwner string, price, qty coretypes.Price, buyerLeverage, sellerLeverage int) error

	// WouldIncreaseSize backs the reduce-only crossing check: a
	// reduce_only fill must never grow the position's absolute size.
	WouldIncreaseSize(owner, symbol string, side coretypes.Side, qty coretypes.Qty) bool
}

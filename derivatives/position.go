// Package derivatives implements the perpetual futures position book,
// margin accounting, mark-price/funding loop, and liquidation engine.
package derivatives

import (
	"sort"
	"sync"

	"github.com/lattice-exchange/matchcore/coretypes"
)

// MarginMode selects whether a position's margin is isolated to itself or
// pooled across the owner's whole wallet.
type MarginMode int8

const (
	MarginIsolated MarginMode = 0
	MarginCross    MarginMode = 1
)

// Position is one owner's open exposure to one perpetual symbol.
type Position struct {
	Owner  string
	Symbol string

	Side coretypes.Side // Buy = long, Sell = short
	Size coretypes.Qty  // always non-negative; direction carried by Side

	EntryPrice coretypes.Price
	Leverage   int
	Mode       MarginMode

	RealizedPnL   coretypes.Price
	FundingPaid   coretypes.Price // cumulative, negative means net paid out
	LiquidationPx coretypes.Price
}

func (p *Position) IsFlat() bool { return p.Size.IsZero() }

// UnrealizedPnL returns (mark - entry) * size, sign-flipped for shorts.
func (p *Position) UnrealizedPnL(mark coretypes.Price) coretypes.Price {
	if p.IsFlat() {
		return coretypes.Zero
	}
	diff := mark.Sub(p.EntryPrice)
	if p.Side == coretypes.Sell {
		diff = p.EntryPrice.Sub(mark)
	}
	return diff.Mul(p.Size)
}

func (p *Position) Notional(mark coretypes.Price) coretypes.Price {
	return mark.Mul(p.Size)
}

func (p *Position) InitialMargin(mark coretypes.Price) coretypes.Price {
	if p.Leverage <= 0 {
		return coretypes.Zero
	}
	return coretypes.Div(p.Notional(mark), coretypes.FromInt(int64(p.Leverage)))
}

func (p *Position) MaintenanceMargin(mark coretypes.Price, mmr float64) coretypes.Price {
	return coretypes.FromFloat64(coretypes.ToFloat64(p.Notional(mark)) * mmr)
}

// applyExtend grows an existing (or flat) position in the same direction,
// VWAP-weighting the entry price.
func (p *Position) applyExtend(side coretypes.Side, price, qty coretypes.Price) {
	if p.IsFlat() {
		p.Side = side
		p.EntryPrice = price
		p.Size = qty
		return
	}
	notionalOld := p.EntryPrice.Mul(p.Size)
	notionalNew := price.Mul(qty)
	newSize := p.Size.Add(qty)
	p.EntryPrice = coretypes.Div(notionalOld.Add(notionalNew), newSize)
	p.Size = newSize
}

// applyReduce shrinks a position without flipping it, realizing P&L on
// the reduced portion: qty * (fill_price - entry_price), sign-flipped for
// shorts.
func (p *Position) applyReduce(price, qty coretypes.Price) {
	diff := price.Sub(p.EntryPrice)
	if p.Side == coretypes.Sell {
		diff = p.EntryPrice.Sub(price)
	}
	p.RealizedPnL = p.RealizedPnL.Add(diff.Mul(qty))
	p.Size = p.Size.Sub(qty)
}

// ApplyFill updates the position for one fill leg of size qty at price on
// the given side (Buy = the position-holder bought, Sell = sold): extend,
// reduce, or flip through zero. Returns whether the direction flipped.
func (p *Position) ApplyFill(side coretypes.Side, price, qty coretypes.Price) (flipped bool) {
	if p.IsFlat() {
		p.applyExtend(side, price, qty)
		return false
	}
	if side == p.Side {
		p.applyExtend(side, price, qty)
		return false
	}
	if qty.LessThanOrEqual(p.Size) {
		p.applyReduce(price, qty)
		return false
	}
	// Flip: close the existing side entirely, then open the residual on
	// the new side at the fill price.
	residual := qty.Sub(p.Size)
	p.applyReduce(price, p.Size)
	p.Side = side
	p.EntryPrice = price
	p.Size = residual
	return true
}

// MarginLedger is the slice of the account ledger the position book needs
// to settle margin and realized P&L on a fill: releasing the reserved
// margin of a closed portion back to free, and crediting (or debiting)
// the realized result.
type MarginLedger interface {
	Release(owner, asset string, amount coretypes.Price)
	Credit(owner, asset string, amount coretypes.Price)
}

// Book shards perpetual positions by owner, the same sharding discipline
// as the account ledger. ledger may be nil, in which case fills move
// position state only (pure position accounting, used by tests).
type Book struct {
	mu        sync.RWMutex
	ledger    MarginLedger
	positions map[string]map[string]*Position // owner -> symbol -> position
}

func NewBook(ledger MarginLedger) *Book {
	return &Book{ledger: ledger, positions: make(map[string]map[string]*Position)}
}

func (b *Book) Get(owner, symbol string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.positions[owner]
	if !ok {
		return Position{}, false
	}
	p, ok := m[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

func (b *Book) getOrCreate(owner, symbol string, leverage int, mode MarginMode) *Position {
	m, ok := b.positions[owner]
	if !ok {
		m = make(map[string]*Position)
		b.positions[owner] = m
	}
	p, ok := m[symbol]
	if !ok {
		p = &Position{Owner: owner, Symbol: symbol, Leverage: leverage, Mode: mode}
		m[symbol] = p
	}
	return p
}

// Positions returns a copy of every open (non-flat) position for owner,
// sorted by symbol.
func (b *Book) Positions(owner string) []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m := b.positions[owner]
	out := make([]Position, 0, len(m))
	for _, p := range m {
		if !p.IsFlat() {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// WouldIncreaseSize reports whether a fill of qty on side against owner's
// existing symbol position would grow the position's absolute size
// (same-direction extension or a flip past zero into more size than
// before). This is the check a reduce_only order must fail.
func (b *Book) WouldIncreaseSize(owner, symbol string, side coretypes.Side, qty coretypes.Qty) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m := b.positions[owner]
	p, ok := m[symbol]
	if !ok || p.IsFlat() {
		return true
	}
	if side == p.Side {
		return true
	}
	return qty.GreaterThan(p.Size)
}

// SizeFor returns owner's current absolute position size in symbol, used
// to size a close_position order at admission.
func (b *Book) SizeFor(owner, symbol string) coretypes.Qty {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m := b.positions[owner]
	p, ok := m[symbol]
	if !ok {
		return coretypes.Zero
	}
	return p.Size
}

// SideFor returns the direction of owner's position in symbol, or false
// if flat.
func (b *Book) SideFor(owner, symbol string) (coretypes.Side, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m := b.positions[owner]
	p, ok := m[symbol]
	if !ok || p.IsFlat() {
		return 0, false
	}
	return p.Side, true
}

// OnFill implements book.PositionObserver: applies both legs of a trade
// to their respective positions and settles margin/realized P&L against
// the ledger. The reduced portion's reserved margin (entry price * qty /
// leverage) returns to free and its realized P&L is credited; an extended
// portion keeps the margin the admitting order already reserved.
func (b *Book) OnFill(symbol, quoteAsset string, buyerOwner, sellerOwner string, price, qty coretypes.Price, buyerLeverage, sellerLeverage int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyLeg(buyerOwner, symbol, quoteAsset, coretypes.Buy, price, qty, buyerLeverage)
	b.applyLeg(sellerOwner, symbol, quoteAsset, coretypes.Sell, price, qty, sellerLeverage)
	return nil
}

func (b *Book) applyLeg(owner, symbol, quote string, side coretypes.Side, price, qty coretypes.Price, leverage int) {
	p := b.getOrCreate(owner, symbol, leverage, MarginIsolated)

	entryBefore := p.EntryPrice
	sizeBefore := p.Size
	sideBefore := p.Side
	pnlBefore := p.RealizedPnL

	p.ApplyFill(side, price, qty)

	if b.ledger == nil || quote == "" {
		return
	}
	if sizeBefore.IsZero() || side == sideBefore {
		return
	}
	reduced := qty
	if reduced.GreaterThan(sizeBefore) {
		reduced = sizeBefore
	}
	lev := p.Leverage
	if lev <= 0 {
		lev = 1
	}
	releasedMargin := coretypes.Div(entryBefore.Mul(reduced), coretypes.FromInt(int64(lev)))
	b.ledger.Release(owner, quote, releasedMargin)
	b.ledger.Credit(owner, quote, p.RealizedPnL.Sub(pnlBefore))
}

// AllOpenPositions returns a copy of every non-flat position across every
// owner, sorted by (owner, symbol) so the position monitor's sweep is
// deterministic.
func (b *Book) AllOpenPositions() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Position
	for _, m := range b.positions {
		for _, p := range m {
			if !p.IsFlat() {
				out = append(out, *p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// UpdateLiquidationPrice records the monitor's latest liquidation price
// for owner's position in symbol.
func (b *Book) UpdateLiquidationPrice(owner, symbol string, px coretypes.Price) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.positions[owner]
	if p, ok := m[symbol]; ok {
		p.LiquidationPx = px
	}
}

// OpenInterest returns half the summed absolute position size in symbol:
// every contract has a long and a short holding it, so the naive sum
// double-counts.
func (b *Book) OpenInterest(symbol string) coretypes.Qty {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := coretypes.Zero
	for _, m := range b.positions {
		if p, ok := m[symbol]; ok {
			total = total.Add(p.Size)
		}
	}
	return coretypes.Div(total, coretypes.FromInt(2))
}

// FundingTransfer is one owner's settled funding amount for a boundary,
// signed the same way as FundingPayment (negative = the position paid).
type FundingTransfer struct {
	Owner  string
	Amount coretypes.Price
}

// SettleFundingAll applies a funding settlement to every open position in
// symbol and returns the per-owner transfers for the caller to move
// against wallet balances, sorted by owner.
func (b *Book) SettleFundingAll(symbol string, mark coretypes.Price, rate float64) []FundingTransfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []FundingTransfer
	for _, m := range b.positions {
		p, ok := m[symbol]
		if !ok || p.IsFlat() {
			continue
		}
		out = append(out, FundingTransfer{Owner: p.Owner, Amount: SettleFunding(p, mark, rate)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out
}
